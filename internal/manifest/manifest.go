// Package manifest implements the collection manifest: the versioned,
// atomically-swapped record of which segments currently make up a
// collection. A manifest is persisted under optimistic concurrency
// control keyed by its epoch.
package manifest

import (
	"time"

	"storage-engine/internal/collection"
	"storage-engine/internal/common"
	"storage-engine/internal/segment"
)

// Entry describes one segment's place in a manifest, plus the storage
// URIs of its three on-disk blocks.
type Entry struct {
	Descriptor segment.Descriptor `json:"descriptor"`
	VectorURI  string             `json:"vector_uri"`
	PayloadURI string             `json:"payload_uri"`
	BitmapURI  string             `json:"bitmap_uri,omitempty"`
}

// Snapshot is an immutable set of entries as of a manifest version.
// Retained for backward compatibility with the legacy manifest shape.
type Snapshot struct {
	ManifestID common.ManifestID `json:"manifest_id"`
	Entries    []Entry           `json:"entries"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Manifest is a collection's current view of its segments. It carries
// both the legacy fields (latest_version, snapshot) and the MANIFESTv1
// fields (epoch, segments) so that a legacy manifest on disk can be
// read and upgraded in place; new manifests are always written in v1
// shape (UpgradeLegacy, below).
type Manifest struct {
	Collection string `json:"collection"`

	// Legacy fields.
	LatestVersion uint64    `json:"latest_version"`
	UpdatedAt     time.Time `json:"updated_at"`

	// MANIFESTv1 fields.
	Dimension    uint32                    `json:"dimension"`
	Distance     collection.DistanceMetric `json:"metric"`
	TotalVectors uint64                    `json:"total_vectors"`
	Epoch        uint64                    `json:"epoch"`
	CreatedAt    *time.Time                `json:"created_at,omitempty"`

	// Legacy format carries a Snapshot; v1 carries Segments directly.
	Snapshot *Snapshot `json:"snapshot,omitempty"`
	Segments []Entry   `json:"segments"`
}

// New returns an empty v1 manifest for a freshly created collection.
func New(desc *collection.Descriptor) *Manifest {
	now := common.Now()
	return &Manifest{
		Collection: desc.Name,
		Dimension:  desc.Dimension,
		Distance:   desc.Distance,
		CreatedAt:  &now,
		UpdatedAt:  now,
		Segments:   []Entry{},
	}
}

// BumpRevision advances the manifest's optimistic-concurrency epoch
// and bookkeeping timestamp. Both epoch and latest_version use
// saturating addition: at u64 max they simply stop advancing rather
// than wrapping, since reaching that ceiling would take longer than
// the collection's useful lifetime.
func (m *Manifest) BumpRevision() {
	m.UpdatedAt = common.Now()
	m.Epoch = saturatingAdd1(m.Epoch)
	m.LatestVersion = saturatingAdd1(m.LatestVersion)
}

func saturatingAdd1(v uint64) uint64 {
	if v == ^uint64(0) {
		return v
	}
	return v + 1
}

// IsLegacy reports whether the manifest was read from disk in the
// pre-v1 shape (a populated Snapshot, no Segments).
func (m *Manifest) IsLegacy() bool {
	return m.Snapshot != nil && len(m.Segments) == 0
}

// UpgradeLegacy converts a legacy manifest (segments nested under a
// named Snapshot) into v1 shape (segments listed directly), in place.
// It is a one-way, idempotent upgrade: calling it on an already-v1
// manifest is a no-op. The caller is responsible for persisting the
// result; UpgradeLegacy never touches storage itself.
func (m *Manifest) UpgradeLegacy() {
	if !m.IsLegacy() {
		return
	}
	m.Segments = append([]Entry(nil), m.Snapshot.Entries...)
	m.Snapshot = nil
}

// TotalVectorCount recomputes total_vectors from the live segment set,
// excluding Archived segments.
func (m *Manifest) TotalVectorCount() uint64 {
	var total uint64
	for _, e := range m.Segments {
		if e.Descriptor.State == segment.Archived {
			continue
		}
		total += uint64(e.Descriptor.RecordCount)
	}
	return total
}

// CheckEpoch enforces optimistic concurrency: a write is only valid
// if the caller's expected epoch matches the manifest's current
// epoch. A mismatch means another writer persisted a newer manifest
// first.
func CheckEpoch(current *Manifest, expectedEpoch uint64) error {
	if current.Epoch != expectedEpoch {
		return common.Conflict("manifest epoch conflict: expected %d, current %d", expectedEpoch, current.Epoch)
	}
	return nil
}

// AddEntry appends a sealed segment to the manifest's live set. It
// returns a Validation error if the entry's dimension differs from the
// manifest's or its LSN range overlaps an existing entry.
func (m *Manifest) AddEntry(e Entry) error {
	if uint32(e.Descriptor.VectorDim) != m.Dimension {
		return common.Validation("segment %s dimension %d does not match manifest dimension %d",
			e.Descriptor.SegmentID, e.Descriptor.VectorDim, m.Dimension)
	}
	for _, existing := range m.Segments {
		if existing.Descriptor.LSNRange.Overlaps(e.Descriptor.LSNRange) {
			return common.Validation("segment %s lsn range overlaps existing segment %s",
				e.Descriptor.SegmentID, existing.Descriptor.SegmentID)
		}
	}
	m.Segments = append(m.Segments, e)
	m.TotalVectors = m.TotalVectorCount()
	return nil
}

// RemoveEntry drops a segment from the manifest's live set (used once
// a compacted or superseded segment's replacement has been durably
// written).
func (m *Manifest) RemoveEntry(id common.SegmentID) bool {
	for i, e := range m.Segments {
		if e.Descriptor.SegmentID == id {
			m.Segments = append(m.Segments[:i], m.Segments[i+1:]...)
			m.TotalVectors = m.TotalVectorCount()
			return true
		}
	}
	return false
}
