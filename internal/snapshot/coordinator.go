// Package snapshot implements manifest.Coordinator and manifest.Reader
// over a block.Backend: the three-phase begin/materialize/finalize
// protocol for producing a durable, point-in-time copy of a
// collection's manifest and segments.
package snapshot

import (
	"context"
	"encoding/json"
	"strings"

	"storage-engine/internal/common"
	"storage-engine/internal/manifest"
	"storage-engine/internal/storage/block"
)

func snapshotPrefix(collectionName string, id common.SnapshotID) string {
	return "collections/" + collectionName + "/snapshots/" + id.String() + "/"
}

func manifestObjectPath(collectionName string, id common.SnapshotID) string {
	return snapshotPrefix(collectionName, id) + "manifest.json"
}

func segmentObjectPath(collectionName string, id common.SnapshotID, segID common.SegmentID) string {
	return snapshotPrefix(collectionName, id) + "segments/" + segID.String() + ".seg"
}

func finalizedMarkerPath(collectionName string, id common.SnapshotID) string {
	return snapshotPrefix(collectionName, id) + "_finalized"
}

// Coordinator drives the begin/materialize/finalize protocol over a
// block.Backend's object store.
type Coordinator struct {
	Backend block.Backend
}

var (
	_ manifest.Coordinator = (*Coordinator)(nil)
	_ manifest.Reader      = (*Coordinator)(nil)
)

// NewCoordinator builds a Coordinator over the given backend.
func NewCoordinator(backend block.Backend) *Coordinator {
	return &Coordinator{Backend: backend}
}

// BeginSnapshot allocates a fresh snapshot id. It performs no I/O: the
// descriptor only becomes visible to readers once Finalize writes its
// marker; until then it is an orphan.
func (c *Coordinator) BeginSnapshot(ctx context.Context, collectionName string, manifestVersion uint64) (*manifest.SnapshotDescriptor, error) {
	return &manifest.SnapshotDescriptor{
		SnapshotID:      common.NewID(),
		Collection:      collectionName,
		ManifestVersion: manifestVersion,
		CreatedAt:       common.Now(),
	}, nil
}

// Materialize copies every segment the manifest references, plus the
// manifest body itself, into the snapshot's own object prefix, and
// records the total bytes copied on the descriptor.
func (c *Coordinator) Materialize(ctx context.Context, d *manifest.SnapshotDescriptor, m *manifest.Manifest) error {
	var total uint64

	for _, entry := range m.Segments {
		blob, err := c.Backend.ReadSegment(ctx, entry.VectorURI)
		if err != nil {
			return err
		}
		dst := segmentObjectPath(d.Collection, d.SnapshotID, entry.Descriptor.SegmentID)
		if err := c.Backend.PutObject(ctx, dst, blob); err != nil {
			return err
		}
		total += uint64(len(blob))
	}

	body, err := json.Marshal(m)
	if err != nil {
		return common.Serialization("encoding manifest for snapshot %s: %v", d.SnapshotID, err)
	}
	if err := c.Backend.PutObject(ctx, manifestObjectPath(d.Collection, d.SnapshotID), body); err != nil {
		return err
	}
	total += uint64(len(body))

	d.TotalBytes = total
	return nil
}

// Finalize writes the marker object that makes a materialized
// snapshot visible to ListSnapshots/LoadSnapshot.
func (c *Coordinator) Finalize(ctx context.Context, d *manifest.SnapshotDescriptor) error {
	if err := c.Backend.PutObject(ctx, finalizedMarkerPath(d.Collection, d.SnapshotID), []byte("true")); err != nil {
		return err
	}
	d.Finalized = true
	return nil
}

// ListSnapshots returns every snapshot descriptor recorded for a
// collection, finalized or not - callers that only want durable
// snapshots should pair this with manifest.Orphans to filter.
func (c *Coordinator) ListSnapshots(ctx context.Context, collectionName string) ([]*manifest.SnapshotDescriptor, error) {
	prefix := "collections/" + collectionName + "/snapshots/"
	paths, err := c.Backend.ListObjects(ctx, prefix)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []*manifest.SnapshotDescriptor
	for _, p := range paths {
		rest := strings.TrimPrefix(p, prefix)
		idx := strings.Index(rest, "/")
		if idx < 0 {
			continue
		}
		idStr := rest[:idx]
		if seen[idStr] {
			continue
		}
		seen[idStr] = true

		id, err := common.ParseID(idStr)
		if err != nil {
			continue
		}
		body, err := c.Backend.GetObject(ctx, manifestObjectPath(collectionName, id))
		if err != nil {
			continue
		}
		var m manifest.Manifest
		if err := json.Unmarshal(body, &m); err != nil {
			return nil, common.Serialization("decoding snapshot manifest %s: %v", idStr, err)
		}

		finalized, _ := c.Backend.ObjectExists(ctx, finalizedMarkerPath(collectionName, id))
		out = append(out, &manifest.SnapshotDescriptor{
			SnapshotID:      id,
			Collection:      collectionName,
			ManifestVersion: m.LatestVersion,
			CreatedAt:       m.UpdatedAt,
			Finalized:       finalized,
		})
	}
	return out, nil
}

// LoadSnapshot reads back the manifest body materialized under d.
func (c *Coordinator) LoadSnapshot(ctx context.Context, d *manifest.SnapshotDescriptor) (*manifest.Manifest, error) {
	body, err := c.Backend.GetObject(ctx, manifestObjectPath(d.Collection, d.SnapshotID))
	if err != nil {
		return nil, err
	}
	var m manifest.Manifest
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, common.Serialization("decoding snapshot manifest %s: %v", d.SnapshotID, err)
	}
	m.UpgradeLegacy()
	return &m, nil
}

// Janitor removes every materialized-but-never-finalized snapshot.
type Janitor struct {
	Backend     block.Backend
	Coordinator *Coordinator
}

// Sweep lists a collection's snapshots and deletes the orphaned ones.
func (j *Janitor) Sweep(ctx context.Context, collectionName string) (int, error) {
	descriptors, err := j.Coordinator.ListSnapshots(ctx, collectionName)
	if err != nil {
		return 0, err
	}
	orphans := manifest.Orphans(descriptors)
	for _, d := range orphans {
		paths, err := j.Backend.ListObjects(ctx, snapshotPrefix(collectionName, d.SnapshotID))
		if err != nil {
			return 0, err
		}
		for _, p := range paths {
			if err := j.Backend.DeleteObject(ctx, p); err != nil && !common.Is(err, common.KindNotFound) {
				return 0, err
			}
		}
	}
	return len(orphans), nil
}
