package common

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID_TimeOrdered(t *testing.T) {
	a := NewID()
	b := NewID()
	assert.NotEqual(t, a, b)
	assert.True(t, a.Less(b) || a == b)
}

func TestID_StringRoundTrip(t *testing.T) {
	id := NewID()
	s := id.String()
	assert.Len(t, s, 32)

	parsed, err := ParseID(s)
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestParseID_WrongLength(t *testing.T) {
	_, err := ParseID("too-short")
	require.Error(t, err)
	assert.True(t, Is(err, KindValidation))
}

func TestIDFromBytes(t *testing.T) {
	id := NewID()
	got, err := IDFromBytes(id.Bytes())
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = IDFromBytes([]byte{1, 2, 3})
	require.Error(t, err)
	assert.True(t, Is(err, KindValidation))
}

func TestID_Less(t *testing.T) {
	var a, b ID
	a[0] = 1
	b[0] = 2
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.False(t, a.Less(a))
}

func TestID_JSONRoundTrip(t *testing.T) {
	id := NewID()
	out, err := json.Marshal(id)
	require.NoError(t, err)

	var got ID
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, id, got)
}

func TestID_UnmarshalJSON_Invalid(t *testing.T) {
	var id ID
	err := json.Unmarshal([]byte(`123`), &id)
	require.Error(t, err)
}
