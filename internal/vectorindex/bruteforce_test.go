package vectorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storage-engine/internal/collection"
	"storage-engine/internal/common"
)

func docWithVector(vec []float32) *collection.VectorDocument {
	return &collection.VectorDocument{ID: common.NewID(), Vector: vec}
}

func TestBruteForce_InsertAndCount(t *testing.T) {
	idx := NewBruteForce(3, collection.Cosine)
	ctx := context.Background()

	doc := docWithVector([]float32{1, 0, 0})
	ordinal, err := idx.Insert(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), ordinal)
	assert.Equal(t, 1, idx.Count())
}

func TestBruteForce_InsertWrongDimension(t *testing.T) {
	idx := NewBruteForce(3, collection.Cosine)
	_, err := idx.Insert(context.Background(), docWithVector([]float32{1, 0}))
	require.Error(t, err)
	assert.True(t, common.Is(err, common.KindValidation))
}

func TestBruteForce_DuplicateInsertIdempotent(t *testing.T) {
	idx := NewBruteForce(3, collection.Cosine)
	ctx := context.Background()
	doc := docWithVector([]float32{1, 2, 3})

	first, err := idx.Insert(ctx, doc)
	require.NoError(t, err)
	second, err := idx.Insert(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, idx.Count())
}

func TestBruteForce_DuplicateIDDifferentContentConflicts(t *testing.T) {
	idx := NewBruteForce(3, collection.Cosine)
	ctx := context.Background()
	id := common.NewID()

	_, err := idx.Insert(ctx, &collection.VectorDocument{ID: id, Vector: []float32{1, 0, 0}})
	require.NoError(t, err)
	_, err = idx.Insert(ctx, &collection.VectorDocument{ID: id, Vector: []float32{0, 1, 0}})
	require.Error(t, err)
	assert.True(t, common.Is(err, common.KindConflict))
}

func TestBruteForce_DeleteThenSearchExcludes(t *testing.T) {
	idx := NewBruteForce(2, collection.Dot)
	ctx := context.Background()
	doc := docWithVector([]float32{1, 1})
	_, err := idx.Insert(ctx, doc)
	require.NoError(t, err)

	require.NoError(t, idx.Delete(ctx, doc.ID))
	assert.Equal(t, 0, idx.Count())

	results, err := idx.Search(ctx, []float32{1, 1}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBruteForce_DeleteUnknownNotFound(t *testing.T) {
	idx := NewBruteForce(2, collection.Dot)
	err := idx.Delete(context.Background(), common.NewID())
	require.Error(t, err)
	assert.True(t, common.Is(err, common.KindNotFound))
}

func TestBruteForce_SearchRanksByScoreDescending(t *testing.T) {
	idx := NewBruteForce(2, collection.Dot)
	ctx := context.Background()

	near := docWithVector([]float32{1, 0})
	mid := docWithVector([]float32{0.5, 0})
	far := docWithVector([]float32{0.1, 0})
	for _, d := range []*collection.VectorDocument{far, near, mid} {
		_, err := idx.Insert(ctx, d)
		require.NoError(t, err)
	}

	results, err := idx.Search(ctx, []float32{1, 0}, 3, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, near.ID, results[0].DocID)
	assert.Equal(t, mid.ID, results[1].DocID)
	assert.Equal(t, far.ID, results[2].DocID)
}

func TestBruteForce_SearchTopKBoundsResults(t *testing.T) {
	idx := NewBruteForce(1, collection.Dot)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_, err := idx.Insert(ctx, docWithVector([]float32{float32(i)}))
		require.NoError(t, err)
	}

	results, err := idx.Search(ctx, []float32{5}, 3, nil)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestBruteForce_SearchTieBreaksByDocID(t *testing.T) {
	idx := NewBruteForce(1, collection.Dot)
	ctx := context.Background()

	var ids []common.DocumentID
	for i := 0; i < 4; i++ {
		doc := docWithVector([]float32{1})
		_, err := idx.Insert(ctx, doc)
		require.NoError(t, err)
		ids = append(ids, doc.ID)
	}

	results, err := idx.Search(ctx, []float32{1}, 4, nil)
	require.NoError(t, err)
	require.Len(t, results, 4)
	for i := 1; i < len(results); i++ {
		assert.True(t, results[i-1].DocID.Less(results[i].DocID) || results[i-1].DocID == results[i].DocID)
	}
}

func TestBruteForce_SearchRejectsBadInput(t *testing.T) {
	idx := NewBruteForce(2, collection.Dot)
	ctx := context.Background()

	_, err := idx.Search(ctx, []float32{1}, 1, nil)
	require.Error(t, err)
	assert.True(t, common.Is(err, common.KindValidation))

	_, err = idx.Search(ctx, []float32{1, 1}, 0, nil)
	require.Error(t, err)
	assert.True(t, common.Is(err, common.KindValidation))
}

func TestBruteForce_DocumentReconstruction(t *testing.T) {
	idx := NewBruteForce(2, collection.Dot)
	ctx := context.Background()
	doc := &collection.VectorDocument{ID: common.NewID(), Vector: []float32{1, 2}, Payload: collection.Payload{"tag": collection.KeywordValue("x")}}
	_, err := idx.Insert(ctx, doc)
	require.NoError(t, err)

	got, ok := idx.Document(doc.ID)
	require.True(t, ok)
	assert.Equal(t, doc.Vector, got.Vector)

	require.NoError(t, idx.Delete(ctx, doc.ID))
	_, ok = idx.Document(doc.ID)
	assert.False(t, ok)
}

func TestBruteForce_CosineRankingKnownScores(t *testing.T) {
	idx := NewBruteForce(2, collection.Cosine)
	ctx := context.Background()

	a := docWithVector([]float32{1, 0})
	b := docWithVector([]float32{0, 1})
	c := docWithVector([]float32{1, 1})
	for _, d := range []*collection.VectorDocument{a, b, c} {
		_, err := idx.Insert(ctx, d)
		require.NoError(t, err)
	}

	results, err := idx.Search(ctx, []float32{1, 0}, 3, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, a.ID, results[0].DocID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, c.ID, results[1].DocID)
	assert.InDelta(t, 0.70710678, results[1].Score, 1e-6)
	assert.Equal(t, b.ID, results[2].DocID)
	assert.InDelta(t, 0.0, results[2].Score, 1e-6)
}

func TestBruteForce_CosineZeroNormNeverOutranks(t *testing.T) {
	idx := NewBruteForce(2, collection.Cosine)
	ctx := context.Background()

	zero := docWithVector([]float32{0, 0})
	far := docWithVector([]float32{-1, 0})
	for _, d := range []*collection.VectorDocument{zero, far} {
		_, err := idx.Insert(ctx, d)
		require.NoError(t, err)
	}

	results, err := idx.Search(ctx, []float32{1, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, far.ID, results[0].DocID)
}

func TestBruteForce_SearchWithFilterBitmapNarrows(t *testing.T) {
	idx := NewBruteForce(2, collection.Dot)
	filters := NewFilterIndex([]string{"tag"})
	ctx := context.Background()

	tags := []string{"alpha", "beta", "gamma", "alpha", "gamma"}
	byTag := make(map[string][]common.DocumentID)
	for i, tag := range tags {
		doc := &collection.VectorDocument{
			ID:      common.NewID(),
			Vector:  []float32{float32(i), 1},
			Payload: collection.Payload{"tag": collection.KeywordValue(tag)},
		}
		ordinal, err := idx.Insert(ctx, doc)
		require.NoError(t, err)
		filters.Observe(ordinal, doc.Payload)
		byTag[tag] = append(byTag[tag], doc.ID)
	}

	unfiltered, err := idx.Search(ctx, []float32{1, 1}, 10, nil)
	require.NoError(t, err)
	assert.Len(t, unfiltered, 5)

	bm, ok := filters.BuildFilterBitmap("tag", []collection.PayloadValue{
		collection.KeywordValue("alpha"), collection.KeywordValue("beta"),
	})
	require.True(t, ok)

	filtered, err := idx.Search(ctx, []float32{1, 1}, 10, bm)
	require.NoError(t, err)
	require.Len(t, filtered, 3)
	want := append(append([]common.DocumentID(nil), byTag["alpha"]...), byTag["beta"]...)
	var got []common.DocumentID
	for _, r := range filtered {
		got = append(got, r.DocID)
	}
	assert.ElementsMatch(t, want, got)
}
