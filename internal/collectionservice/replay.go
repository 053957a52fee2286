package collectionservice

import (
	"context"

	"storage-engine/internal/common"
	"storage-engine/internal/query"
	"storage-engine/internal/vectorindex"
	"storage-engine/internal/wal"
)

// Replay recovers a previously created collection into memory:
// every sealed segment in its manifest is decoded back into a
// read-only shard, the collection's WAL is reopened (recovering its
// own on-disk segment set), and any record with an LSN past the last
// checkpoint is re-applied to a fresh live index. Re-inserting a
// document the live index already holds from a prior partial replay
// is idempotent: BruteForce.Insert treats a byte-identical duplicate
// insert as a no-op.
func (s *Service) Replay(ctx context.Context, name string) error {
	desc, err := s.backend.LoadCollection(ctx, name)
	if err != nil {
		return err
	}
	m, err := s.backend.LoadManifest(ctx, name)
	if err != nil {
		return err
	}

	sealed := make([]query.Shard, 0, len(m.Segments))
	location := make(map[common.DocumentID]int)
	byExternalID := make(map[string]common.DocumentID)
	var checkpointLSN uint64

	degraded := false
	for _, entry := range m.Segments {
		// A sealed segment covers its LSN range even when it is
		// excluded below, so its records are not re-applied from the WAL.
		if entry.Descriptor.LSNRange.Hi > checkpointLSN {
			checkpointLSN = entry.Descriptor.LSNRange.Hi
		}

		blob, err := s.backend.ReadSegment(ctx, entry.VectorURI)
		if err != nil {
			if common.Is(err, common.KindNotFound) || common.Is(err, common.KindStorage) {
				degraded = true
				continue
			}
			return err
		}
		docs, err := decodeSegment(desc, blob)
		if err != nil {
			// A checksum or decode failure excludes just that segment:
			// the collection comes up degraded with the rest of its
			// data intact instead of refusing to open at all.
			if common.Is(err, common.KindStorage) || common.Is(err, common.KindSerialization) {
				degraded = true
				continue
			}
			return err
		}

		shardIdx := len(sealed)
		idx := vectorindex.NewBruteForce(desc.Dimension, desc.Distance)
		filters := vectorindex.NewFilterIndex(desc.PayloadSchema.IndexedFields())
		for _, d := range docs {
			doc := d
			ordinal, err := idx.Insert(ctx, &doc)
			if err != nil {
				return err
			}
			filters.Observe(ordinal, doc.Payload)
			location[doc.ID] = shardIdx
			if doc.ExternalID != "" {
				byExternalID[doc.ExternalID] = doc.ID
			}
		}
		sealed = append(sealed, query.Shard{Index: idx, Filters: filters})
	}

	walMgr, err := wal.NewManager(s.cfg.WALConfig(s.walDir(name)))
	if err != nil {
		return err
	}

	live := vectorindex.NewBruteForce(desc.Dimension, desc.Distance)
	liveFilters := vectorindex.NewFilterIndex(desc.PayloadSchema.IndexedFields())
	var replayed int64

	err = walMgr.Replay(ctx, checkpointLSN+1, func(rec *wal.Record) error {
		switch rec.Op {
		case wal.OpInsert:
			doc, err := wal.DecodeInsert(rec)
			if err != nil {
				return err
			}
			ordinal, err := live.Insert(ctx, doc)
			if err != nil {
				if !common.Is(err, common.KindConflict) {
					return err
				}
				// Incompatible duplicate from a partial prior replay; the
				// live index rejected it and assigned it no ordinal, so
				// there is nothing new to observe in the filter index.
				replayed++
				return nil
			}
			liveFilters.Observe(ordinal, doc.Payload)
			location[doc.ID] = liveShardLocation
			if doc.ExternalID != "" {
				byExternalID[doc.ExternalID] = doc.ID
			}
			replayed++
		case wal.OpDelete:
			id, err := wal.DecodeDelete(rec)
			if err != nil {
				return err
			}
			if loc, ok := location[id]; ok {
				if loc == liveShardLocation {
					live.Delete(ctx, id)
				} else {
					sealed[loc].Index.Delete(ctx, id)
				}
				delete(location, id)
			}
			replayed++
		case wal.OpPurge:
			externalID := wal.DecodePurge(rec)
			if id, ok := byExternalID[externalID]; ok {
				if loc, ok := location[id]; ok {
					if loc == liveShardLocation {
						live.Delete(ctx, id)
					} else {
						sealed[loc].Index.Delete(ctx, id)
					}
					delete(location, id)
				}
			}
			replayed++
		}
		return nil
	})
	if err != nil {
		walMgr.Close()
		return err
	}
	s.Metrics.recordReplay(replayed)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[name] = &collectionState{
		desc:          desc,
		wal:           walMgr,
		live:          live,
		liveFilters:   liveFilters,
		liveCount:     live.Count(),
		sealed:        sealed,
		location:      location,
		byExternalID:  byExternalID,
		epoch:         m.Epoch,
		checkpointLSN: checkpointLSN,
		degraded:      degraded,
	}
	return nil
}

// Degraded reports whether the collection came up with one or more
// segments excluded for checksum or decode failures during Replay.
func (s *Service) Degraded(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.collections[name]
	return ok && st.degraded
}
