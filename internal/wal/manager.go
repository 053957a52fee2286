package wal

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"storage-engine/internal/collection"
	"storage-engine/internal/common"
)

// Manager owns one collection stream's sequence of WAL segment
// files: LSN assignment, rotation, group-commit batching, and
// replay.
type Manager struct {
	mu  sync.Mutex
	cfg Config

	segments []*segmentFile
	current  *segmentFile
	nextLSN  uint64
	closed   bool

	flushCond *sync.Cond
	syncGen   uint64
	syncErr   error
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewManager opens (or creates) the WAL directory for one stream and
// recovers its segment set, ready to accept further appends.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.SegmentSize <= 0 {
		cfg.SegmentSize = 64 << 20
	}
	if cfg.SegmentAge <= 0 {
		cfg.SegmentAge = 5 * time.Minute
	}
	if cfg.GroupCommitInterval <= 0 {
		cfg.GroupCommitInterval = 2 * time.Millisecond
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, asStorageErr("creating wal directory "+cfg.Dir, err)
	}

	m := &Manager{cfg: cfg, nextLSN: 1}
	m.flushCond = sync.NewCond(&m.mu)

	if err := m.loadSegments(); err != nil {
		return nil, err
	}
	if m.current == nil {
		if err := m.rotate(1); err != nil {
			return nil, err
		}
	}

	if cfg.SyncPolicy == SyncGroup {
		m.stopCh = make(chan struct{})
		m.wg.Add(1)
		go m.flushLoop()
	}
	return m, nil
}

func (m *Manager) loadSegments() error {
	entries, err := os.ReadDir(m.cfg.Dir)
	if err != nil {
		return asStorageErr("reading wal directory "+m.cfg.Dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".log") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		sf, err := openSegmentFile(filepath.Join(m.cfg.Dir, name))
		if err != nil {
			return asStorageErr("opening wal segment "+name, err)
		}
		m.segments = append(m.segments, sf)
	}
	if len(m.segments) > 0 {
		last := m.segments[len(m.segments)-1]
		m.current = last
		if last.hasRecords {
			m.nextLSN = last.maxLSN + 1
		} else {
			m.nextLSN = last.firstLSNHint
		}
	}
	return nil
}

func (m *Manager) rotate(firstLSN uint64) error {
	if m.current != nil {
		if err := m.current.Sync(); err != nil {
			return asStorageErr("fsyncing wal segment before rotation", err)
		}
	}
	sf, err := createSegmentFile(m.cfg.Dir, firstLSN)
	if err != nil {
		return asStorageErr("creating wal segment", err)
	}
	m.segments = append(m.segments, sf)
	m.current = sf
	return nil
}

func (m *Manager) flushLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.GroupCommitInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.mu.Lock()
			if m.current != nil {
				m.syncErr = m.current.Sync()
			}
			m.syncGen++
			m.flushCond.Broadcast()
			m.mu.Unlock()
		}
	}
}

// Append assigns the next LSN to a record and writes it to the
// current segment, rotating first if the segment has grown past its
// size or age threshold. Durability depends on the configured
// SyncPolicy: SyncAlways fsyncs before returning, SyncGroup waits for
// the next periodic group flush, SyncNever returns as soon as the
// write syscall completes.
func (m *Manager) Append(ctx context.Context, op OpKind, payload []byte) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, common.Timeout("wal append cancelled: %v", err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, common.Internal("wal manager is closed")
	}

	lsn := m.nextLSN
	m.nextLSN++
	rec := &Record{LSN: lsn, Op: op, Payload: payload}
	buf := rec.encode()

	if m.current.hasRecords && (m.current.size+int64(len(buf)) >= m.cfg.SegmentSize || time.Since(m.current.createdAt) >= m.cfg.SegmentAge) {
		if err := m.rotate(lsn); err != nil {
			m.mu.Unlock()
			return 0, err
		}
	}

	if err := m.current.write(buf); err != nil {
		m.mu.Unlock()
		return 0, asStorageErr("appending wal record", err)
	}
	m.current.recordAppended(lsn)

	switch m.cfg.SyncPolicy {
	case SyncAlways:
		err := m.current.Sync()
		m.mu.Unlock()
		if err != nil {
			return 0, asStorageErr("fsyncing wal segment", err)
		}
		return lsn, nil
	case SyncNever:
		m.mu.Unlock()
		return lsn, nil
	default: // SyncGroup
		waitGen := m.syncGen
		for m.syncGen == waitGen && !m.closed {
			m.flushCond.Wait()
		}
		err := m.syncErr
		m.mu.Unlock()
		if err != nil {
			return 0, asStorageErr("fsyncing wal segment", err)
		}
		return lsn, nil
	}
}

// AppendInsert durably logs a document insertion.
func (m *Manager) AppendInsert(ctx context.Context, doc *collection.VectorDocument) (uint64, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return 0, common.Serialization("encoding wal insert payload: %v", err)
	}
	return m.Append(ctx, OpInsert, payload)
}

// AppendDelete durably logs a document deletion.
func (m *Manager) AppendDelete(ctx context.Context, id common.DocumentID) (uint64, error) {
	return m.Append(ctx, OpDelete, id.Bytes())
}

// AppendPurge durably logs a deletion keyed by external id rather
// than document id.
func (m *Manager) AppendPurge(ctx context.Context, externalID string) (uint64, error) {
	return m.Append(ctx, OpPurge, []byte(externalID))
}

// DecodeInsert parses an OpInsert record's payload back into a document.
func DecodeInsert(rec *Record) (*collection.VectorDocument, error) {
	var doc collection.VectorDocument
	if err := json.Unmarshal(rec.Payload, &doc); err != nil {
		return nil, common.Serialization("decoding wal insert payload at lsn %d: %v", rec.LSN, err)
	}
	return &doc, nil
}

// DecodeDelete parses an OpDelete record's payload back into a document id.
func DecodeDelete(rec *Record) (common.DocumentID, error) {
	return common.IDFromBytes(rec.Payload)
}

// DecodePurge parses an OpPurge record's payload back into the
// external id it names.
func DecodePurge(rec *Record) string {
	return string(rec.Payload)
}

// Replay streams every record at or after fromLSN, across every
// retained segment in order, to handler.
func (m *Manager) Replay(ctx context.Context, fromLSN uint64, handler func(*Record) error) error {
	m.mu.Lock()
	segments := append([]*segmentFile(nil), m.segments...)
	m.mu.Unlock()

	for _, sf := range segments {
		if sf.hasRecords && sf.maxLSN < fromLSN {
			continue
		}
		if err := sf.replay(fromLSN, handler); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return common.Timeout("wal replay cancelled: %v", err)
		}
	}
	return nil
}

// Checkpoint drops every segment whose entire LSN range is covered by
// upToLSN, leaving the current segment untouched.
func (m *Manager) Checkpoint(ctx context.Context, upToLSN uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var keep []*segmentFile
	for _, sf := range m.segments {
		if sf == m.current || !sf.hasRecords || sf.maxLSN > upToLSN {
			keep = append(keep, sf)
			continue
		}
		if err := sf.Close(); err != nil {
			return asStorageErr("closing wal segment before checkpoint removal", err)
		}
		if err := os.Remove(sf.path); err != nil {
			return asStorageErr("removing checkpointed wal segment", err)
		}
	}
	m.segments = keep
	return nil
}

// Close flushes and closes every open segment file.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.flushCond.Broadcast()
	m.mu.Unlock()

	if m.stopCh != nil {
		close(m.stopCh)
		m.wg.Wait()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sf := range m.segments {
		if err := sf.Sync(); err != nil {
			return asStorageErr("fsyncing wal segment on close", err)
		}
		if err := sf.Close(); err != nil {
			return asStorageErr("closing wal segment", err)
		}
	}
	return nil
}

// NextLSN reports the LSN that the next Append will assign.
func (m *Manager) NextLSN() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextLSN
}
