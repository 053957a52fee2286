package collection

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storage-engine/internal/common"
)

func TestPayloadValue_Constructors(t *testing.T) {
	b := BoolValue(true)
	v, ok := b.Bool()
	assert.True(t, ok)
	assert.True(t, v)

	i := IntValue(42)
	n, ok := i.Int()
	assert.True(t, ok)
	assert.EqualValues(t, 42, n)

	kw := KeywordValue("alpha")
	s, ok := kw.Keyword()
	assert.True(t, ok)
	assert.Equal(t, "alpha", s)

	gp := GeoPointValue(1.5, -2.5)
	lat, lon, ok := gp.GeoPoint()
	assert.True(t, ok)
	assert.Equal(t, 1.5, lat)
	assert.Equal(t, -2.5, lon)
}

func TestPayloadValue_StringKey(t *testing.T) {
	cases := []struct {
		name    string
		val     PayloadValue
		want    string
		keyable bool
	}{
		{"keyword", KeywordValue("blue"), "blue", true},
		{"text", TextValue("blue"), "blue", true},
		{"bool true", BoolValue(true), "true", true},
		{"bool false", BoolValue(false), "false", true},
		{"integer", IntValue(7), "7", true},
		{"float not keyable", FloatValue(1.5), "", false},
		{"geopoint not keyable", GeoPointValue(1, 2), "", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			key, keyable := c.val.StringKey()
			assert.Equal(t, c.keyable, keyable)
			if c.keyable {
				assert.Equal(t, c.want, key)
			}
		})
	}
}

func TestPayloadValue_JSONLazyParse(t *testing.T) {
	raw, err := json.Marshal(map[string]any{"a": 1})
	require.NoError(t, err)
	v := JSONValue(raw)

	var dst map[string]any
	ok, err := v.JSON(&dst)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 1, dst["a"])

	notJSON := IntValue(1)
	ok, err = notJSON.JSON(&dst)
	assert.False(t, ok)
	assert.NoError(t, err)
}

func TestPayloadValue_MarshalUnmarshalRoundTrip(t *testing.T) {
	values := []PayloadValue{
		BoolValue(true),
		IntValue(-17),
		FloatValue(3.14),
		TextValue("hello"),
		KeywordValue("tag"),
		GeoPointValue(40.7, -74.0),
		TimestampValue(1700000000),
		JSONValue([]byte(`{"x":1}`)),
	}
	for _, v := range values {
		out, err := json.Marshal(v)
		require.NoError(t, err)

		var got PayloadValue
		require.NoError(t, json.Unmarshal(out, &got))
		assert.Equal(t, v.Kind, got.Kind)
	}
}

func TestVectorDocument_ValidateDimension(t *testing.T) {
	doc := &VectorDocument{ID: common.NewID(), Vector: make([]float32, 3)}
	assert.NoError(t, doc.ValidateDimension(3))

	err := doc.ValidateDimension(4)
	require.Error(t, err)
	assert.True(t, common.Is(err, common.KindValidation))
}
