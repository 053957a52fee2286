package vectorindex

import (
	"container/heap"
	"context"
	"math"
	"reflect"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"storage-engine/internal/collection"
	"storage-engine/internal/common"
)

type entry struct {
	id      common.DocumentID
	vector  []float32
	payload collection.Payload
}

// BruteForce is the append-only, tombstone-on-delete vector index:
// every search scans every non-tombstoned entry. Inserts and deletes take a writer
// latch; searches take a reader latch and snapshot the tombstone set
// and entry count so a reader never observes a torn mix of pre- and
// post-write state.
type BruteForce struct {
	mu         sync.RWMutex
	dim        uint32
	metric     collection.DistanceMetric
	entries    []entry
	byID       map[common.DocumentID]int
	tombstones *roaring.Bitmap
}

// NewBruteForce creates an empty index for a collection of the given
// dimension and distance metric.
func NewBruteForce(dim uint32, metric collection.DistanceMetric) *BruteForce {
	return &BruteForce{
		dim:        dim,
		metric:     metric,
		byID:       make(map[common.DocumentID]int),
		tombstones: roaring.New(),
	}
}

func (idx *BruteForce) Dimension() uint32                 { return idx.dim }
func (idx *BruteForce) Metric() collection.DistanceMetric { return idx.metric }

// Count returns the number of live (non-tombstoned) entries.
func (idx *BruteForce) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries) - int(idx.tombstones.GetCardinality())
}

// Insert adds a document, or - if its id already exists - validates
// that the existing entry's content matches exactly (a no-op) or
// reports Conflict.
func (idx *BruteForce) Insert(ctx context.Context, doc *collection.VectorDocument) (uint32, error) {
	if err := doc.ValidateDimension(idx.dim); err != nil {
		return 0, err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if ordinal, exists := idx.byID[doc.ID]; exists {
		existing := idx.entries[ordinal]
		if idx.tombstones.Contains(uint32(ordinal)) {
			return 0, common.Conflict("document %s was deleted; re-insert under a new id", doc.ID)
		}
		if vectorsEqual(existing.vector, doc.Vector) && reflect.DeepEqual(existing.payload, doc.Payload) {
			return uint32(ordinal), nil
		}
		return 0, common.Conflict("document %s already exists with different content", doc.ID)
	}

	ordinal := len(idx.entries)
	idx.entries = append(idx.entries, entry{id: doc.ID, vector: append([]float32(nil), doc.Vector...), payload: doc.Payload})
	idx.byID[doc.ID] = ordinal
	return uint32(ordinal), nil
}

func vectorsEqual(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Delete tombstones a document. Deleting an unknown or already
// deleted id returns NotFound.
func (idx *BruteForce) Delete(ctx context.Context, id common.DocumentID) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	ordinal, exists := idx.byID[id]
	if !exists || idx.tombstones.Contains(uint32(ordinal)) {
		return common.NotFound("document %s not found", id)
	}
	idx.tombstones.Add(uint32(ordinal))
	return nil
}

// Search scans every non-tombstoned entry (optionally narrowed by
// filter, a bitmap of eligible ordinals), scores it against query per
// the index's distance metric, and returns the k best results sorted
// by score with ties broken by ascending document id.
func (idx *BruteForce) Search(ctx context.Context, query []float32, k int, filter *roaring.Bitmap) ([]SearchResult, error) {
	if uint32(len(query)) != idx.dim {
		return nil, common.Validation("query vector dimension %d does not match index dimension %d", len(query), idx.dim)
	}
	if k <= 0 {
		return nil, common.Validation("top_k must be >= 1")
	}

	idx.mu.RLock()
	entries := idx.entries
	tombstones := idx.tombstones.Clone()
	idx.mu.RUnlock()

	h := make(worstHeap, 0, k)
	for ordinal, e := range entries {
		if tombstones.Contains(uint32(ordinal)) {
			continue
		}
		if filter != nil && !filter.Contains(uint32(ordinal)) {
			continue
		}
		// A cancelled or expired context stops the scan early and
		// returns whatever the heap holds so far rather than an
		// error: the execution engine is the
		// layer that turns an incomplete scan into a
		// truncated=true response, not the index itself.
		if ordinal%4096 == 0 && ctx.Err() != nil {
			break
		}

		score, ok := scoreFor(idx.metric, query, e.vector)
		if !ok {
			continue
		}
		cand := SearchResult{DocID: e.id, Score: score}

		if h.Len() < k {
			heap.Push(&h, cand)
			continue
		}
		if compareResults(cand, h[0]) < 0 {
			h[0] = cand
			heap.Fix(&h, 0)
		}
	}

	out := make([]SearchResult, len(h))
	copy(out, h)
	sort.Slice(out, func(i, j int) bool { return compareResults(out[i], out[j]) < 0 })
	return out, nil
}

// Document returns the live (non-tombstoned) document stored under
// id, for callers that need to rematerialize an index's full content
// (the collection service's segment-sealing path).
func (idx *BruteForce) Document(id common.DocumentID) (collection.VectorDocument, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	ordinal, exists := idx.byID[id]
	if !exists || idx.tombstones.Contains(uint32(ordinal)) {
		return collection.VectorDocument{}, false
	}
	e := idx.entries[ordinal]
	return collection.VectorDocument{
		ID:      e.id,
		Vector:  append([]float32(nil), e.vector...),
		Payload: e.payload,
	}, true
}

// scoreFor computes a higher-is-better score for the given metric,
// returning ok=false if the result is NaN/±Inf and the candidate
// must be treated as absent.
func scoreFor(metric collection.DistanceMetric, a, b []float32) (float64, bool) {
	switch metric {
	case collection.L2:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		score := -sum
		return score, isFinite(score)
	case collection.Dot:
		var dot float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
		}
		return dot, isFinite(dot)
	default: // Cosine
		var dot, normA, normB float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
			normA += float64(a[i]) * float64(a[i])
			normB += float64(b[i]) * float64(b[i])
		}
		if normA == 0 || normB == 0 {
			// A zero vector has no direction to compare, so it can never
			// legitimately rank above a candidate that does; pin it below
			// the metric's entire valid range ([-1, 1]) instead of
			// scoring it a middling 0.
			return -math.MaxFloat64, true
		}
		score := dot / (math.Sqrt(normA) * math.Sqrt(normB))
		return score, isFinite(score)
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
