package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storage-engine/internal/collection"
	"storage-engine/internal/common"
	"storage-engine/internal/segment"
)

func newTestManifest() *Manifest {
	return New(&collection.Descriptor{Name: "docs", Dimension: 4, Distance: collection.Cosine})
}

func TestManifest_New(t *testing.T) {
	m := newTestManifest()
	assert.Equal(t, "docs", m.Collection)
	assert.Equal(t, uint64(0), m.Epoch)
	assert.Empty(t, m.Segments)
	assert.False(t, m.IsLegacy())
}

func TestManifest_BumpRevisionMonotonic(t *testing.T) {
	m := newTestManifest()
	m.BumpRevision()
	assert.Equal(t, uint64(1), m.Epoch)
	m.BumpRevision()
	assert.Equal(t, uint64(2), m.Epoch)
}

func TestManifest_BumpRevisionSaturates(t *testing.T) {
	m := newTestManifest()
	m.Epoch = ^uint64(0)
	m.LatestVersion = ^uint64(0)
	m.BumpRevision()
	assert.Equal(t, ^uint64(0), m.Epoch)
	assert.Equal(t, ^uint64(0), m.LatestVersion)
}

func TestManifest_CheckEpoch(t *testing.T) {
	m := newTestManifest()
	m.Epoch = 3
	require.NoError(t, CheckEpoch(m, 3))

	err := CheckEpoch(m, 2)
	require.Error(t, err)
	assert.True(t, common.Is(err, common.KindConflict))
}

func entryWithLSN(lo, hi uint64) Entry {
	return Entry{Descriptor: segment.Descriptor{
		SegmentID:   common.NewID(),
		RecordCount: 10,
		VectorDim:   4,
		LSNRange:    segment.LSNRange{Lo: lo, Hi: hi},
		State:       segment.Sealed,
	}}
}

func TestManifest_AddEntry_RejectsDimensionMismatch(t *testing.T) {
	m := newTestManifest()
	e := entryWithLSN(1, 10)
	e.Descriptor.VectorDim = 8

	err := m.AddEntry(e)
	require.Error(t, err)
	assert.True(t, common.Is(err, common.KindValidation))
	assert.Empty(t, m.Segments)
}

func TestManifest_AddEntry_RejectsOverlap(t *testing.T) {
	m := newTestManifest()
	require.NoError(t, m.AddEntry(entryWithLSN(1, 10)))

	err := m.AddEntry(entryWithLSN(5, 15))
	require.Error(t, err)
	assert.True(t, common.Is(err, common.KindValidation))
	assert.Len(t, m.Segments, 1)
}

func TestManifest_AddEntry_UpdatesTotalVectors(t *testing.T) {
	m := newTestManifest()
	require.NoError(t, m.AddEntry(entryWithLSN(1, 10)))
	require.NoError(t, m.AddEntry(entryWithLSN(11, 20)))
	assert.Equal(t, uint64(20), m.TotalVectors)
}

func TestManifest_RemoveEntry(t *testing.T) {
	m := newTestManifest()
	e := entryWithLSN(1, 10)
	require.NoError(t, m.AddEntry(e))

	ok := m.RemoveEntry(e.Descriptor.SegmentID)
	assert.True(t, ok)
	assert.Empty(t, m.Segments)
	assert.Equal(t, uint64(0), m.TotalVectors)

	ok = m.RemoveEntry(common.NewID())
	assert.False(t, ok)
}

func TestManifest_UpgradeLegacy(t *testing.T) {
	e := entryWithLSN(1, 10)
	legacy := &Manifest{
		Collection: "docs",
		Snapshot:   &Snapshot{ManifestID: common.NewID(), Entries: []Entry{e}},
	}
	require.True(t, legacy.IsLegacy())

	legacy.UpgradeLegacy()
	assert.False(t, legacy.IsLegacy())
	assert.Nil(t, legacy.Snapshot)
	require.Len(t, legacy.Segments, 1)
	assert.Equal(t, e.Descriptor.SegmentID, legacy.Segments[0].Descriptor.SegmentID)

	// idempotent
	legacy.UpgradeLegacy()
	assert.Len(t, legacy.Segments, 1)
}

func TestManifest_TotalVectorCount_ExcludesArchived(t *testing.T) {
	m := newTestManifest()
	active := entryWithLSN(1, 10)
	archived := entryWithLSN(11, 20)
	archived.Descriptor.State = segment.Archived

	m.Segments = append(m.Segments, active, archived)
	assert.Equal(t, uint64(10), m.TotalVectorCount())
}
