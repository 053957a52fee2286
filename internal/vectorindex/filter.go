package vectorindex

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"storage-engine/internal/collection"
)

// FilterIndex maintains, per indexed payload field, a dictionary from
// value to the bitmap of ordinals holding that value, so a query's
// payload filter can be resolved to a candidate bitmap without a full
// scan.
type FilterIndex struct {
	mu     sync.RWMutex
	fields map[string]map[string]*roaring.Bitmap
}

// NewFilterIndex creates an empty filter index over the given indexed
// field names.
func NewFilterIndex(indexedFields []string) *FilterIndex {
	fi := &FilterIndex{fields: make(map[string]map[string]*roaring.Bitmap, len(indexedFields))}
	for _, f := range indexedFields {
		fi.fields[f] = make(map[string]*roaring.Bitmap)
	}
	return fi
}

// Observe records that ordinal holds payload at the index's set of
// indexed fields. Fields absent from payload, or not in the indexed
// set, are ignored.
func (fi *FilterIndex) Observe(ordinal uint32, payload collection.Payload) {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	for field, values := range fi.fields {
		pv, ok := payload[field]
		if !ok {
			continue
		}
		key, keyable := pv.StringKey()
		if !keyable {
			continue
		}
		bm, ok := values[key]
		if !ok {
			bm = roaring.New()
			values[key] = bm
		}
		bm.Add(ordinal)
	}
}

// Forget removes ordinal from the bitmap of each indexed field's value
// in payload, undoing a prior Observe. The collection service does not
// call it on delete; a deleted ordinal is skipped by the index's
// tombstone set instead.
func (fi *FilterIndex) Forget(ordinal uint32, payload collection.Payload) {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	for field, values := range fi.fields {
		pv, ok := payload[field]
		if !ok {
			continue
		}
		key, keyable := pv.StringKey()
		if !keyable {
			continue
		}
		if bm, ok := values[key]; ok {
			bm.Remove(ordinal)
		}
	}
}

// BuildFilterBitmap resolves an equality filter (field == one of
// values) to the union of the matching value bitmaps. A field that is
// not indexed yields a nil bitmap and ok=false, signaling the caller
// to fall back to a full scan or reject the query as unsupported.
func (fi *FilterIndex) BuildFilterBitmap(field string, values []collection.PayloadValue) (*roaring.Bitmap, bool) {
	fi.mu.RLock()
	defer fi.mu.RUnlock()

	byValue, ok := fi.fields[field]
	if !ok {
		return nil, false
	}

	result := roaring.New()
	for _, v := range values {
		key, keyable := v.StringKey()
		if !keyable {
			continue
		}
		if bm, ok := byValue[key]; ok {
			result.Or(bm)
		}
	}
	return result, true
}

// IndexedFields reports the field names this index tracks.
func (fi *FilterIndex) IndexedFields() []string {
	fi.mu.RLock()
	defer fi.mu.RUnlock()
	out := make([]string, 0, len(fi.fields))
	for f := range fi.fields {
		out = append(out, f)
	}
	return out
}
