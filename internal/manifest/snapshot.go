package manifest

import (
	"context"
	"time"

	"storage-engine/internal/common"
)

// SnapshotDescriptor identifies a point-in-time, durable copy of a
// collection's manifest and segments.
type SnapshotDescriptor struct {
	SnapshotID      common.SnapshotID `json:"snapshot_id"`
	Collection      string            `json:"collection"`
	ManifestVersion uint64            `json:"manifest_version"`
	CreatedAt       time.Time         `json:"created_at"`
	TotalBytes      uint64            `json:"total_bytes"`
	Finalized       bool              `json:"finalized"`
}

// Coordinator drives the three-phase snapshot protocol: begin
// allocates an id, materialize copies segment/manifest bytes to the
// snapshot's storage location, finalize writes the marker that makes
// the snapshot visible to readers. A snapshot with no finalize marker
// after materialize is an orphan and must be ignored (and eventually
// garbage collected) by readers.
type Coordinator interface {
	BeginSnapshot(ctx context.Context, collection string, manifestVersion uint64) (*SnapshotDescriptor, error)
	Materialize(ctx context.Context, d *SnapshotDescriptor, m *Manifest) error
	Finalize(ctx context.Context, d *SnapshotDescriptor) error
}

// Reader lists and loads previously finalized snapshots.
type Reader interface {
	ListSnapshots(ctx context.Context, collection string) ([]*SnapshotDescriptor, error)
	LoadSnapshot(ctx context.Context, d *SnapshotDescriptor) (*Manifest, error)
}

// Orphans filters a list of snapshot descriptors down to those that
// were materialized but never finalized: the janitor's cleanup set.
func Orphans(descriptors []*SnapshotDescriptor) []*SnapshotDescriptor {
	var out []*SnapshotDescriptor
	for _, d := range descriptors {
		if !d.Finalized {
			out = append(out, d)
		}
	}
	return out
}
