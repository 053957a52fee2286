package query

import (
	"github.com/RoaringBitmap/roaring/v2"

	"storage-engine/internal/common"
)

// Planner turns a validated Request into a PhysicalPlan. Planning is
// deterministic and side-effect-free; all validation happens here so
// the Engine only ever sees well-formed plans.
type Planner struct {
	Catalog Catalog
}

// NewPlanner builds a Planner over the given catalog.
func NewPlanner(catalog Catalog) *Planner {
	return &Planner{Catalog: catalog}
}

// Plan validates req against the collection's descriptor and compiles
// it into a PhysicalPlan: one AnnSearchNode per shard (with the
// filter bitmap, if any, resolved against that shard's own ordinal
// space and embedded directly in the node), folded together with
// MergeNodes when the collection has more than one shard.
//
// A resolved filter is embedded directly into each AnnSearchNode
// rather than wrapped in a separate FilterNode: BruteForce.Search
// already evaluates a supplied bitmap during its single scan, so a
// standalone Filter node would just repeat work a
// leaf already does. FilterNode exists in the plan vocabulary for a
// planner or engine extension that post-filters an index incapable of
// accepting a bitmap natively (e.g. a future graph index); the
// brute-force planner never needs to emit one.
func (p *Planner) Plan(req Request) (*PhysicalPlan, error) {
	desc, ok := p.Catalog.Descriptor(req.Collection)
	if !ok {
		return nil, common.NotFound("collection %q not found", req.Collection)
	}
	if uint32(len(req.Vector)) != desc.Dimension {
		return nil, common.Validation("query vector dimension %d does not match collection dimension %d", len(req.Vector), desc.Dimension)
	}
	if req.TopK < 1 || req.TopK > 10000 {
		return nil, common.Validation("top_k %d out of range [1,10000]", req.TopK)
	}

	shards, ok := p.Catalog.Shards(req.Collection)
	if !ok || len(shards) == 0 {
		return nil, common.NotFound("collection %q has no shards", req.Collection)
	}

	hasFilter := len(req.Filter) > 0

	nodes := make(map[NodeID]*PlanNode, len(shards)*2)
	var nextID NodeID
	newNode := func(n *PlanNode) NodeID {
		id := nextID
		nodes[id] = n
		nextID++
		return id
	}

	leaves := make([]NodeID, 0, len(shards))
	for _, shard := range shards {
		var bitmap *roaring.Bitmap
		if hasFilter {
			fieldName, vals, err := parseFilter(req.Filter, desc.PayloadSchema)
			if err != nil {
				return nil, err
			}
			bm, ok := shard.Filters.BuildFilterBitmap(fieldName, vals)
			if !ok {
				return nil, common.Validation("field %q is not indexed and cannot be filtered", fieldName)
			}
			bitmap = bm
		}

		leafID := newNode(&PlanNode{
			Kind: NodeAnnSearch,
			AnnSearch: &AnnSearchNode{
				Shard:  shard.Index,
				Query:  req.Vector,
				K:      req.TopK,
				Filter: bitmap,
			},
		})
		leaves = append(leaves, leafID)
	}

	root := leaves[0]
	for _, leafID := range leaves[1:] {
		root = newNode(&PlanNode{
			Kind:  NodeMerge,
			Merge: &MergeNode{Left: root, Right: leafID},
		})
	}

	return &PhysicalPlan{Root: root, Nodes: nodes}, nil
}
