// Package vectorindex implements the in-memory vector index
// abstraction: a brute-force nearest-neighbor scan plus a payload
// bitmap filter, both built for concurrent reads against a single
// serialized writer.
package vectorindex

import (
	"context"

	"github.com/RoaringBitmap/roaring/v2"

	"storage-engine/internal/collection"
	"storage-engine/internal/common"
)

// SearchResult is one ranked hit: a document id and its score, always
// oriented higher-is-better regardless of the underlying metric.
type SearchResult struct {
	DocID common.DocumentID
	Score float64
}

// Index is the contract every vector index implementation satisfies:
// insert, delete, a bounded top-k search optionally narrowed by a
// bitmap filter, and introspection.
type Index interface {
	// Insert returns the ordinal the document was assigned, so callers
	// maintaining a parallel structure keyed by ordinal (FilterIndex)
	// observe it under the same slot the index itself will scan it at.
	Insert(ctx context.Context, doc *collection.VectorDocument) (uint32, error)
	Delete(ctx context.Context, id common.DocumentID) error
	Search(ctx context.Context, query []float32, k int, filter *roaring.Bitmap) ([]SearchResult, error)
	Count() int
	Dimension() uint32
	Metric() collection.DistanceMetric
}
