package query

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"storage-engine/internal/common"
	"storage-engine/internal/vectorindex"
)

// Engine interprets a PhysicalPlan against live vector index shards,
// executing leaf searches concurrently and folding their results
// upward through the DAG.
type Engine struct{}

// NewEngine builds an Engine. The engine is stateless; all state lives
// in the plan and the shards it references.
func NewEngine() *Engine { return &Engine{} }

// Execute runs req's plan to completion or until req.TimeoutMs
// elapses, whichever comes first. A deadline that expires mid-scan
// does not fail the request: the partial results gathered so far are
// returned with Truncated set.
func (e *Engine) Execute(ctx context.Context, req Request, plan *PhysicalPlan) (*Response, error) {
	if req.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	results, truncated, err := e.eval(ctx, plan, plan.Root)
	if err != nil {
		return nil, err
	}

	if len(results) > req.TopK {
		results = results[:req.TopK]
	}

	return &Response{
		Collection: req.Collection,
		TopK:       req.TopK,
		Results:    results,
		Truncated:  truncated,
	}, nil
}

// eval recursively interprets one plan node, returning its ranked
// results and whether the result is a truncated partial.
func (e *Engine) eval(ctx context.Context, plan *PhysicalPlan, id NodeID) ([]vectorindex.SearchResult, bool, error) {
	node, ok := plan.Nodes[id]
	if !ok {
		return nil, false, common.Internal("plan references unknown node %d", id)
	}

	switch node.Kind {
	case NodeAnnSearch:
		n := node.AnnSearch
		results, err := n.Shard.Search(ctx, n.Query, n.K, n.Filter)
		if err != nil {
			return nil, false, err
		}
		return results, ctx.Err() != nil, nil

	case NodeFilter:
		// A FilterNode evaluates to its input's results unchanged:
		// SearchResult carries no ordinal to test against the
		// bitmap, so no intersection is applied here. The planner
		// emits no FilterNode; BruteForce.Search takes the bitmap
		// directly inside NodeAnnSearch.
		return e.eval(ctx, plan, node.Filter.Input)

	case NodeMerge:
		n := node.Merge
		var left, right []vectorindex.SearchResult
		var leftTrunc, rightTrunc bool

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			left, leftTrunc, err = e.eval(gctx, plan, n.Left)
			return err
		})
		g.Go(func() error {
			var err error
			right, rightTrunc, err = e.eval(gctx, plan, n.Right)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, false, err
		}

		merged := mergeResults(left, right)
		return merged, leftTrunc || rightTrunc, nil

	default:
		return nil, false, common.Internal("plan node %d has unknown kind %d", id, node.Kind)
	}
}

// mergeResults folds two already-ranked result lists into one,
// de-duplicating by document id (keeping the better-scored copy) and
// re-sorting by the collection's ranking rule.
func mergeResults(left, right []vectorindex.SearchResult) []vectorindex.SearchResult {
	best := make(map[common.DocumentID]vectorindex.SearchResult, len(left)+len(right))
	for _, r := range left {
		best[r.DocID] = r
	}
	for _, r := range right {
		if existing, ok := best[r.DocID]; !ok || vectorindex.CompareResults(r, existing) < 0 {
			best[r.DocID] = r
		}
	}

	out := make([]vectorindex.SearchResult, 0, len(best))
	for _, r := range best {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return vectorindex.CompareResults(out[i], out[j]) < 0 })
	return out
}
