// Package collectionservice wires the write-ahead log, the in-memory
// vector index, and segment/manifest persistence into a single
// ingest -> flush -> query pipeline:
// writes are appended to a collection's WAL, applied to its live
// index, and periodically sealed into an immutable segment with the
// manifest bumped atomically; a restart replays the WAL tail atop the
// sealed segments to recover the live index.
package collectionservice

import (
	"context"
	"fmt"
	"sync"

	"storage-engine/internal/collection"
	"storage-engine/internal/common"
	"storage-engine/internal/config"
	"storage-engine/internal/query"
	"storage-engine/internal/storage/block"
	"storage-engine/internal/vectorindex"
	"storage-engine/internal/wal"
)

// Metrics counts a Service's lifetime operation totals, trimmed to
// the counters this engine's pipeline actually produces.
type Metrics struct {
	mu              sync.RWMutex
	IngestedRecords int64
	DeletedRecords  int64
	Flushes         int64
	ReplayedRecords int64
}

func (m *Metrics) recordIngest() {
	m.mu.Lock()
	m.IngestedRecords++
	m.mu.Unlock()
}

func (m *Metrics) recordDelete() {
	m.mu.Lock()
	m.DeletedRecords++
	m.mu.Unlock()
}

func (m *Metrics) recordFlush() {
	m.mu.Lock()
	m.Flushes++
	m.mu.Unlock()
}

func (m *Metrics) recordReplay(n int64) {
	m.mu.Lock()
	m.ReplayedRecords += n
	m.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the counters.
func (m *Metrics) Snapshot() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Metrics{
		IngestedRecords: m.IngestedRecords,
		DeletedRecords:  m.DeletedRecords,
		Flushes:         m.Flushes,
		ReplayedRecords: m.ReplayedRecords,
	}
}

// collectionState is everything the service keeps in memory for one
// open collection.
type collectionState struct {
	mu sync.Mutex

	desc *collection.Descriptor
	wal  *wal.Manager

	live        *vectorindex.BruteForce
	liveFilters *vectorindex.FilterIndex
	liveCount   int

	sealed []query.Shard

	// location tracks which shard (-1 for live, otherwise an index
	// into sealed) currently owns a document id, so Delete can route
	// a tombstone to the right index without scanning every shard.
	location map[common.DocumentID]int

	// byExternalID resolves a document's optional external id back to
	// its document id, so Purge can tombstone by external id the same
	// way Delete tombstones by document id.
	byExternalID map[string]common.DocumentID

	epoch         uint64
	checkpointLSN uint64

	// degraded is set by Replay when a manifest segment had to be
	// excluded for a checksum or decode failure.
	degraded bool
}

// Service implements query.Catalog and is the engine's single entry
// point for mutating a collection's data.
type Service struct {
	cfg     *config.EngineConfig
	backend block.Backend

	mu          sync.RWMutex
	collections map[string]*collectionState

	Metrics Metrics
}

// New builds a Service over the given backend, using cfg for WAL
// sync policy, storage root, and flush threshold.
func New(cfg *config.EngineConfig, backend block.Backend) *Service {
	return &Service{
		cfg:         cfg,
		backend:     backend,
		collections: make(map[string]*collectionState),
	}
}

func (s *Service) walDir(name string) string {
	return fmt.Sprintf("%s/%s", s.cfg.WALRoot(), name)
}

// CreateCollection validates and persists a new collection's
// descriptor and empty manifest, then opens its WAL stream and
// in-memory index ready to accept writes.
func (s *Service) CreateCollection(ctx context.Context, desc *collection.Descriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	for _, f := range desc.PayloadSchema.Fields {
		if f.Name == reservedIDField {
			return common.Validation("payload field name %q is reserved", reservedIDField)
		}
	}
	if err := s.backend.CreateCollection(ctx, desc); err != nil {
		return err
	}

	walMgr, err := wal.NewManager(s.cfg.WALConfig(s.walDir(desc.Name)))
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[desc.Name] = &collectionState{
		desc:         desc,
		wal:          walMgr,
		live:         vectorindex.NewBruteForce(desc.Dimension, desc.Distance),
		liveFilters:  vectorindex.NewFilterIndex(desc.PayloadSchema.IndexedFields()),
		location:     make(map[common.DocumentID]int),
		byExternalID: make(map[string]common.DocumentID),
		epoch:        1, // backend.CreateCollection persists the first manifest at epoch 1
	}
	return nil
}

// DropCollection removes a collection's persisted state and in-memory
// structures. It is not safe to call concurrently with an in-flight
// Ingest/Delete/Flush on the same collection.
func (s *Service) DropCollection(ctx context.Context, name string) error {
	if err := s.backend.DropCollection(ctx, name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.collections[name]; ok {
		st.wal.Close()
		delete(s.collections, name)
	}
	return nil
}

func (s *Service) state(name string) (*collectionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.collections[name]
	if !ok {
		return nil, common.NotFound("collection %q is not open", name)
	}
	return st, nil
}

// Descriptor implements query.Catalog.
func (s *Service) Descriptor(name string) (*collection.Descriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.collections[name]
	if !ok {
		return nil, false
	}
	return st.desc, true
}

// Shards implements query.Catalog: the live index plus every sealed,
// read-only shard produced by a prior Flush.
func (s *Service) Shards(name string) ([]query.Shard, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.collections[name]
	if !ok {
		return nil, false
	}
	out := make([]query.Shard, 0, len(st.sealed)+1)
	out = append(out, st.sealed...)
	out = append(out, query.Shard{Index: st.live, Filters: st.liveFilters})
	return out, true
}
