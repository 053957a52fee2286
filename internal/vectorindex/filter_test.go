package vectorindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storage-engine/internal/collection"
)

func TestFilterIndex_ObserveAndBuildBitmap(t *testing.T) {
	fi := NewFilterIndex([]string{"tag"})
	fi.Observe(0, collection.Payload{"tag": collection.KeywordValue("red")})
	fi.Observe(1, collection.Payload{"tag": collection.KeywordValue("blue")})
	fi.Observe(2, collection.Payload{"tag": collection.KeywordValue("red")})

	bm, ok := fi.BuildFilterBitmap("tag", []collection.PayloadValue{collection.KeywordValue("red")})
	require.True(t, ok)
	assert.True(t, bm.Contains(0))
	assert.True(t, bm.Contains(2))
	assert.False(t, bm.Contains(1))
}

func TestFilterIndex_BuildBitmapUnionsMultipleValues(t *testing.T) {
	fi := NewFilterIndex([]string{"tag"})
	fi.Observe(0, collection.Payload{"tag": collection.KeywordValue("red")})
	fi.Observe(1, collection.Payload{"tag": collection.KeywordValue("blue")})
	fi.Observe(2, collection.Payload{"tag": collection.KeywordValue("green")})

	bm, ok := fi.BuildFilterBitmap("tag", []collection.PayloadValue{
		collection.KeywordValue("red"), collection.KeywordValue("green"),
	})
	require.True(t, ok)
	assert.True(t, bm.Contains(0))
	assert.True(t, bm.Contains(2))
	assert.False(t, bm.Contains(1))
}

func TestFilterIndex_UnindexedFieldNotOK(t *testing.T) {
	fi := NewFilterIndex([]string{"tag"})
	_, ok := fi.BuildFilterBitmap("other", []collection.PayloadValue{collection.KeywordValue("x")})
	assert.False(t, ok)
}

func TestFilterIndex_ForgetRemovesOrdinal(t *testing.T) {
	fi := NewFilterIndex([]string{"tag"})
	payload := collection.Payload{"tag": collection.KeywordValue("red")}
	fi.Observe(0, payload)
	fi.Forget(0, payload)

	bm, ok := fi.BuildFilterBitmap("tag", []collection.PayloadValue{collection.KeywordValue("red")})
	require.True(t, ok)
	assert.False(t, bm.Contains(0))
}

func TestFilterIndex_NonKeyableValuesSkipped(t *testing.T) {
	fi := NewFilterIndex([]string{"score"})
	assert.NotPanics(t, func() {
		fi.Observe(0, collection.Payload{"score": collection.FloatValue(1.5)})
		fi.Forget(0, collection.Payload{"score": collection.FloatValue(1.5)})
	})

	bm, ok := fi.BuildFilterBitmap("score", []collection.PayloadValue{collection.FloatValue(1.5)})
	require.True(t, ok)
	assert.Equal(t, uint64(0), bm.GetCardinality())
}

func TestFilterIndex_IndexedFields(t *testing.T) {
	fi := NewFilterIndex([]string{"tag", "active"})
	fields := fi.IndexedFields()
	assert.ElementsMatch(t, []string{"tag", "active"}, fields)
}
