package query

import (
	"storage-engine/internal/collection"
	"storage-engine/internal/vectorindex"
)

// Shard is one searchable unit of a collection: an index (the live,
// still-mutable in-memory index, or a read-only index rebuilt from a
// sealed segment) paired with the FilterIndex built over that same
// index's ordinal space. Bitmap filters are ordinal-scoped, so a
// shard's FilterIndex can only ever be resolved against its own
// Index, never another shard's.
type Shard struct {
	Index   vectorindex.Index
	Filters *vectorindex.FilterIndex
}

// Catalog is the planner and engine's view of collection state: the
// descriptor used for validation, and the set of shards a query must
// fan out across. internal/collectionservice implements this.
type Catalog interface {
	Descriptor(collectionName string) (*collection.Descriptor, bool)
	Shards(collectionName string) ([]Shard, bool)
}
