package vectorindex

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"storage-engine/internal/common"
)

func TestCompareResults_HigherScoreWins(t *testing.T) {
	a := SearchResult{DocID: common.NewID(), Score: 0.9}
	b := SearchResult{DocID: common.NewID(), Score: 0.1}
	assert.Negative(t, CompareResults(a, b))
	assert.Positive(t, CompareResults(b, a))
}

func TestCompareResults_TieBreaksByDocID(t *testing.T) {
	var idA, idB common.DocumentID
	idA[0] = 1
	idB[0] = 2

	a := SearchResult{DocID: idA, Score: 0.5}
	b := SearchResult{DocID: idB, Score: 0.5}
	assert.Negative(t, CompareResults(a, b))
	assert.Zero(t, CompareResults(a, a))
}
