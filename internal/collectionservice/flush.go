package collectionservice

import (
	"context"
	"sort"

	roaring "github.com/RoaringBitmap/roaring/v2"

	"storage-engine/internal/collection"
	"storage-engine/internal/common"
	"storage-engine/internal/manifest"
	"storage-engine/internal/metadata"
	"storage-engine/internal/query"
	"storage-engine/internal/segment"
	"storage-engine/internal/vectorindex"
)

// Flush seals the collection's live index into a new immutable
// segment, persists it through the block backend, records it in the
// manifest under optimistic concurrency, and replaces the live index
// with a fresh empty one - demoting the sealed data to a new read-only
// shard rather than discarding it. Flushing an empty live index is a
// no-op.
func (s *Service) Flush(ctx context.Context, collectionName string) error {
	st, err := s.state(collectionName)
	if err != nil {
		return err
	}

	st.mu.Lock()
	if st.liveCount == 0 {
		st.mu.Unlock()
		return nil
	}
	oldLive, oldFilters := st.live, st.liveFilters
	checkpointLSN := st.wal.NextLSN() - 1
	st.mu.Unlock()

	docs, err := snapshotDocuments(ctx, oldLive)
	if err != nil {
		return err
	}

	blob, err := encodeSegment(st.desc, docs)
	if err != nil {
		return err
	}

	segID := common.NewID()
	var uri string
	err = common.Retry(ctx, common.DefaultRetryConfig(), func() error {
		var werr error
		uri, werr = s.backend.WriteSegment(ctx, collectionName, segID, blob)
		return werr
	})
	if err != nil {
		return err
	}

	desc := segment.Descriptor{
		SegmentID:   segID,
		Collection:  collectionName,
		RecordCount: uint32(len(docs)),
		VectorDim:   uint16(st.desc.Dimension),
		LSNRange:    segment.LSNRange{Lo: checkpointLSN - uint64(len(docs)) + 1, Hi: checkpointLSN},
		State:       segment.Sealed,
		CreatedAt:   common.Now(),
	}
	if desc.LSNRange.Lo < 1 {
		desc.LSNRange.Lo = 1
	}
	if err := desc.Validate(); err != nil {
		return err
	}

	st.mu.Lock()
	m, err := s.backend.LoadManifest(ctx, collectionName)
	if err != nil {
		st.mu.Unlock()
		return err
	}
	if err := m.AddEntry(manifest.Entry{Descriptor: desc, VectorURI: uri}); err != nil {
		st.mu.Unlock()
		return err
	}
	if err := s.backend.PersistManifest(ctx, m, st.epoch); err != nil {
		st.mu.Unlock()
		return err
	}
	st.epoch = m.Epoch

	sealedIdx := len(st.sealed)
	st.sealed = append(st.sealed, query.Shard{Index: oldLive, Filters: oldFilters})
	for _, d := range docs {
		st.location[d.ID] = sealedIdx
	}

	st.live = vectorindex.NewBruteForce(st.desc.Dimension, st.desc.Distance)
	st.liveFilters = vectorindex.NewFilterIndex(st.desc.PayloadSchema.IndexedFields())
	st.liveCount = 0
	st.checkpointLSN = checkpointLSN
	st.mu.Unlock()

	if err := st.wal.Checkpoint(ctx, checkpointLSN); err != nil {
		return err
	}

	s.Metrics.recordFlush()
	return nil
}

// snapshotDocuments reconstructs every live (non-tombstoned) document
// out of idx by running an unfiltered top-k search wide enough to
// cover the whole index. BruteForce keeps no ordinal-indexed document
// accessor of its own, so Flush drives the same Search path a query
// would, sorted back into a stable id order before encoding.
func snapshotDocuments(ctx context.Context, idx *vectorindex.BruteForce) ([]collection.VectorDocument, error) {
	count := idx.Count()
	if count == 0 {
		return nil, nil
	}
	zero := make([]float32, idx.Dimension())
	results, err := idx.Search(ctx, zero, count, nil)
	if err != nil {
		return nil, err
	}
	docs := make([]collection.VectorDocument, 0, len(results))
	for _, r := range results {
		doc, ok := idx.Document(r.DocID)
		if !ok {
			continue
		}
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID.Less(docs[j].ID) })
	return docs, nil
}

// reservedIDField carries a document's id alongside its declared
// payload fields in a sealed segment's Arrow block. The segment
// format has no dedicated id column, so document identity rides in
// the same Arrow-IPC payloads block under a field name no collection
// schema is allowed to declare.
const reservedIDField = "_doc_id"

// segmentSchema extends a collection's declared payload schema with
// the reserved id column, giving encodeSegment and decodeSegment a
// single shared Arrow schema to write and read against.
func segmentSchema(desc *collection.Descriptor) collection.PayloadSchema {
	fields := make([]collection.PayloadField, 0, len(desc.PayloadSchema.Fields)+1)
	fields = append(fields, desc.PayloadSchema.Fields...)
	fields = append(fields, collection.PayloadField{Name: reservedIDField, Type: collection.TypeKeyword})
	return collection.PayloadSchema{Fields: fields}
}

// encodeSegment serializes docs into a segment blob: a zstd-compressed
// vectors block, an Arrow-IPC payloads block (declared fields plus the
// reserved id column), and an empty tombstone bitmap (a freshly sealed
// segment starts with nothing deleted).
func encodeSegment(desc *collection.Descriptor, docs []collection.VectorDocument) ([]byte, error) {
	vectors := make([]float32, 0, len(docs)*int(desc.Dimension))
	rows := make([]collection.Payload, len(docs))
	for i, d := range docs {
		vectors = append(vectors, d.Vector...)
		row := make(collection.Payload, len(d.Payload)+1)
		for k, v := range d.Payload {
			row[k] = v
		}
		row[reservedIDField] = collection.KeywordValue(d.ID.String())
		rows[i] = row
	}

	block, err := metadata.FromJSON(segmentSchema(desc), rows)
	if err != nil {
		return nil, err
	}
	defer block.Release()
	payloadBytes, err := metadata.Serialize(block)
	if err != nil {
		return nil, err
	}

	bitmapBytes, err := roaring.New().ToBytes()
	if err != nil {
		return nil, common.Serialization("encoding empty tombstone bitmap: %v", err)
	}

	return segment.Encode(desc.Dimension, uint64(len(docs)), vectors, payloadBytes, bitmapBytes, segment.WriteOptions{
		Compression: segment.CompressionZstd,
		Checksum:    segment.ChecksumXXHash64,
	})
}

// decodeSegment reverses encodeSegment: given a collection descriptor
// and a segment blob, it reconstructs the documents the segment was
// built from, splitting the reserved id column back out of each row's
// payload.
func decodeSegment(desc *collection.Descriptor, blob []byte) ([]collection.VectorDocument, error) {
	data, err := segment.Decode(blob)
	if err != nil {
		return nil, err
	}

	schema := segmentSchema(desc)
	block, err := metadata.Deserialize(data.Payloads)
	if err != nil {
		return nil, err
	}
	defer block.Release()
	rows, err := metadata.ToJSON(schema, block)
	if err != nil {
		return nil, err
	}

	dim := int(desc.Dimension)
	docs := make([]collection.VectorDocument, len(rows))
	for i, row := range rows {
		idStr, ok := row[reservedIDField].Keyword()
		if !ok {
			return nil, common.Serialization("segment row %d missing reserved id column", i)
		}
		id, err := common.ParseID(idStr)
		if err != nil {
			return nil, common.Serialization("segment row %d has malformed id: %v", i, err)
		}
		delete(row, reservedIDField)
		docs[i] = collection.VectorDocument{
			ID:      id,
			Vector:  append([]float32(nil), data.Vectors[i*dim:(i+1)*dim]...),
			Payload: row,
		}
	}
	return docs, nil
}
