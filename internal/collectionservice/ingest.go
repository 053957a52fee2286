package collectionservice

import (
	"context"

	"storage-engine/internal/collection"
	"storage-engine/internal/common"
)

const liveShardLocation = -1

// Ingest appends doc to the collection's WAL, applies it to the live
// index, and seals a new segment once the live index has accumulated
// cfg.FlushThreshold documents.
func (s *Service) Ingest(ctx context.Context, collectionName string, doc *collection.VectorDocument) error {
	st, err := s.state(collectionName)
	if err != nil {
		return err
	}
	if err := doc.ValidateDimension(st.desc.Dimension); err != nil {
		return err
	}

	if _, err := st.wal.AppendInsert(ctx, doc); err != nil {
		return err
	}

	st.mu.Lock()
	err = s.applyInsert(st, doc)
	shouldFlush := err == nil && st.liveCount >= s.cfg.FlushThreshold
	st.mu.Unlock()
	if err != nil {
		return err
	}
	s.Metrics.recordIngest()

	if shouldFlush {
		return s.Flush(ctx, collectionName)
	}
	return nil
}

// applyInsert mutates a collectionState's live index, filter index,
// and location map for one document. It does not touch the WAL;
// callers that are replaying already-durable records use this
// directly without a redundant append.
func (s *Service) applyInsert(st *collectionState, doc *collection.VectorDocument) error {
	ordinal, err := st.live.Insert(context.Background(), doc)
	if err != nil {
		return err
	}
	st.liveFilters.Observe(ordinal, doc.Payload)
	st.location[doc.ID] = liveShardLocation
	if doc.ExternalID != "" {
		st.byExternalID[doc.ExternalID] = doc.ID
	}
	st.liveCount++
	return nil
}

// Delete appends a tombstone to the WAL and removes the document from
// whichever shard currently owns it - the live index, or one of the
// read-only sealed shards produced by an earlier Flush.
func (s *Service) Delete(ctx context.Context, collectionName string, id common.DocumentID) error {
	st, err := s.state(collectionName)
	if err != nil {
		return err
	}

	st.mu.Lock()
	_, ok := st.location[id]
	st.mu.Unlock()
	if !ok {
		return common.NotFound("document %s not found", id)
	}

	if _, err := st.wal.AppendDelete(ctx, id); err != nil {
		return err
	}
	return s.tombstone(ctx, st, id)
}

// Purge resolves externalID to the document it names and deletes it,
// the same way Delete does by document id. Purging an id with no
// currently-live document under it is NotFound, matching Delete's
// contract.
func (s *Service) Purge(ctx context.Context, collectionName string, externalID string) error {
	st, err := s.state(collectionName)
	if err != nil {
		return err
	}

	st.mu.Lock()
	id, ok := st.byExternalID[externalID]
	if ok {
		_, ok = st.location[id]
	}
	st.mu.Unlock()
	if !ok {
		return common.NotFound("external id %q not found", externalID)
	}

	if _, err := st.wal.AppendPurge(ctx, externalID); err != nil {
		return err
	}
	return s.tombstone(ctx, st, id)
}

// tombstone removes id from whichever shard currently owns it and
// drops its bookkeeping entries. Callers have already made the
// corresponding WAL record durable.
func (s *Service) tombstone(ctx context.Context, st *collectionState, id common.DocumentID) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	loc, ok := st.location[id]
	if !ok {
		return nil
	}
	if loc == liveShardLocation {
		if err := st.live.Delete(ctx, id); err != nil {
			return err
		}
		st.liveCount--
	} else {
		if err := st.sealed[loc].Index.Delete(ctx, id); err != nil {
			return err
		}
	}
	delete(st.location, id)
	s.Metrics.recordDelete()
	return nil
}
