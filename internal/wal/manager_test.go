package wal

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storage-engine/internal/collection"
	"storage-engine/internal/common"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := DefaultConfig(t.TempDir())
	cfg.SyncPolicy = SyncAlways
	m, err := NewManager(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestManager_AppendAssignsIncreasingLSNs(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	lsn1, err := m.AppendInsert(ctx, &collection.VectorDocument{ID: common.NewID(), Vector: []float32{1}})
	require.NoError(t, err)
	lsn2, err := m.AppendDelete(ctx, common.NewID())
	require.NoError(t, err)

	assert.Less(t, lsn1, lsn2)
	assert.Equal(t, lsn2+1, m.NextLSN())
}

func TestManager_AppendPurgeRoundTrip(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.AppendPurge(ctx, "external-123")
	require.NoError(t, err)

	var gotExternalID string
	err = m.Replay(ctx, 1, func(rec *Record) error {
		if rec.Op == OpPurge {
			gotExternalID = DecodePurge(rec)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "external-123", gotExternalID)
}

func TestManager_InsertReplayRoundTrip(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	doc := &collection.VectorDocument{ID: common.NewID(), Vector: []float32{1, 2, 3}}
	_, err := m.AppendInsert(ctx, doc)
	require.NoError(t, err)

	var replayed []*collection.VectorDocument
	err = m.Replay(ctx, 1, func(rec *Record) error {
		if rec.Op == OpInsert {
			d, decErr := DecodeInsert(rec)
			if decErr != nil {
				return decErr
			}
			replayed = append(replayed, d)
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, replayed, 1)
	assert.Equal(t, doc.ID, replayed[0].ID)
	assert.Equal(t, doc.Vector, replayed[0].Vector)
}

func TestManager_DeleteDecodesDocumentID(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	id := common.NewID()

	_, err := m.AppendDelete(ctx, id)
	require.NoError(t, err)

	var got common.DocumentID
	err = m.Replay(ctx, 1, func(rec *Record) error {
		if rec.Op == OpDelete {
			var decErr error
			got, decErr = DecodeDelete(rec)
			return decErr
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestManager_ReplayFromLSNSkipsEarlier(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.AppendDelete(ctx, common.NewID())
	require.NoError(t, err)
	lsn2, err := m.AppendDelete(ctx, common.NewID())
	require.NoError(t, err)

	var seen []uint64
	err = m.Replay(ctx, lsn2, func(rec *Record) error {
		seen = append(seen, rec.LSN)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{lsn2}, seen)
}

func TestManager_CheckpointDropsCoveredSegments(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	cfg.SyncPolicy = SyncAlways
	cfg.SegmentSize = 1 // force rotation on every append
	m, err := NewManager(cfg)
	require.NoError(t, err)
	defer m.Close()

	ctx := context.Background()
	lsn1, err := m.AppendDelete(ctx, common.NewID())
	require.NoError(t, err)
	_, err = m.AppendDelete(ctx, common.NewID())
	require.NoError(t, err)

	require.NoError(t, m.Checkpoint(ctx, lsn1))

	var seen []uint64
	err = m.Replay(ctx, 1, func(rec *Record) error {
		seen = append(seen, rec.LSN)
		return nil
	})
	require.NoError(t, err)
	assert.NotContains(t, seen, lsn1)
}

func TestManager_ReopenRecoversNextLSN(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.SyncPolicy = SyncAlways

	m1, err := NewManager(cfg)
	require.NoError(t, err)
	_, err = m1.AppendDelete(context.Background(), common.NewID())
	require.NoError(t, err)
	require.NoError(t, m1.Close())

	m2, err := NewManager(cfg)
	require.NoError(t, err)
	defer m2.Close()
	assert.Equal(t, uint64(2), m2.NextLSN())
}

func TestManager_ReopenTruncatesCorruptTail(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.SyncPolicy = SyncAlways

	m1, err := NewManager(cfg)
	require.NoError(t, err)
	_, err = m1.AppendDelete(context.Background(), common.NewID())
	require.NoError(t, err)
	lsn2, err := m1.AppendDelete(context.Background(), common.NewID())
	require.NoError(t, err)
	require.NoError(t, m1.Close())

	// Append a partial record: a length prefix promising more bytes
	// than follow, as a crash mid-write would leave behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	f, err := os.OpenFile(filepath.Join(dir, entries[0].Name()), os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0xff, 0x00, 0x00, 0x00, 0x01, 0x02})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	m2, err := NewManager(cfg)
	require.NoError(t, err)
	defer m2.Close()
	assert.Equal(t, lsn2+1, m2.NextLSN())

	var seen []uint64
	err = m2.Replay(context.Background(), 1, func(rec *Record) error {
		seen = append(seen, rec.LSN)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, seen)
}
