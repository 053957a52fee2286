package vectorindex

import "bytes"

// compareResults orders two results by the collection's ranking rule:
// higher score wins; ties break by ascending document id bytes. It
// returns a negative number if a ranks better than b, positive if
// worse, zero only when they are the same document.
func compareResults(a, b SearchResult) int {
	if a.Score > b.Score {
		return -1
	}
	if a.Score < b.Score {
		return 1
	}
	return bytes.Compare(a.DocID.Bytes(), b.DocID.Bytes())
}

// CompareResults exposes compareResults to callers outside this
// package (the execution engine's Merge plan node) that need the same
// score-then-doc-id ranking rule when folding multiple shards'
// results together.
func CompareResults(a, b SearchResult) int { return compareResults(a, b) }

// worstHeap is a bounded min-heap over SearchResult ordered so that
// the worst-ranked candidate (per compareResults) sits at the root,
// ready to be evicted when a better candidate arrives.
type worstHeap []SearchResult

func (h worstHeap) Len() int { return len(h) }
func (h worstHeap) Less(i, j int) bool {
	return compareResults(h[i], h[j]) > 0
}
func (h worstHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *worstHeap) Push(x any) {
	*h = append(*h, x.(SearchResult))
}

func (h *worstHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
