// Package query turns a query request into a small physical plan and
// interprets it against one or more vector index shards, merging
// their ranked results into a single top-k response. Planning is
// split from execution so plans stay deterministic and
// side-effect-free while the engine owns concurrency and deadlines,
// with leaf searches fanned out as goroutines joined through
// errgroup.
package query

import (
	"encoding/json"

	"github.com/RoaringBitmap/roaring/v2"

	"storage-engine/internal/vectorindex"
)

// Request is the client-facing query payload.
type Request struct {
	Collection string          `json:"collection"`
	Vector     []float32       `json:"vector"`
	TopK       int             `json:"top_k"`
	Filter     json.RawMessage `json:"filter,omitempty"`
	TimeoutMs  int64           `json:"timeout_ms"`
}

// Response is the structured result returned to the caller.
type Response struct {
	Collection string                     `json:"collection"`
	TopK       int                        `json:"top_k"`
	Results    []vectorindex.SearchResult `json:"results"`
	Truncated  bool                       `json:"truncated"`
}

// NodeID identifies a node within a PhysicalPlan's DAG.
type NodeID uint32

// NodeKind discriminates the PlanNode sum type.
type NodeKind int

const (
	NodeAnnSearch NodeKind = iota
	NodeFilter
	NodeMerge
)

// AnnSearchNode is a leaf: one shard's search against a vector index.
type AnnSearchNode struct {
	Shard  vectorindex.Index
	Query  []float32
	K      int
	Filter *roaring.Bitmap
}

// FilterNode pairs an input node with a bitmap. Engine.Execute returns
// the input's results unchanged; the bitmap is not applied to them.
type FilterNode struct {
	Input  NodeID
	Filter *roaring.Bitmap
}

// MergeNode merges two sorted result streams, de-duplicating by doc
// id and keeping the best score.
type MergeNode struct {
	Left, Right NodeID
}

// PlanNode is one node of a PhysicalPlan: exactly one of AnnSearch,
// Filter, or Merge is populated, selected by Kind.
type PlanNode struct {
	Kind      NodeKind
	AnnSearch *AnnSearchNode
	Filter    *FilterNode
	Merge     *MergeNode
}

// PhysicalPlan is the DAG of plan nodes a Planner produces and an
// Engine interprets.
type PhysicalPlan struct {
	Root  NodeID
	Nodes map[NodeID]*PlanNode
}
