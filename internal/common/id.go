package common

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// ID is a 128-bit time-ordered unique identifier (UUIDv7), serialized
// as 32-char lowercase hex in JSON and raw bytes on disk.
type ID [16]byte

// NewID generates a fresh time-ordered ID.
func NewID() ID {
	u, err := uuid.NewV7()
	if err != nil {
		// entropy source failure; uuid.NewV7 only errors if the
		// global rand reader is broken, which we treat as fatal
		// the same way crypto/rand callers do.
		panic(fmt.Sprintf("common: failed to generate id: %v", err))
	}
	return ID(u)
}

// IDFromBytes builds an ID from a raw 16-byte slice.
func IDFromBytes(b []byte) (ID, error) {
	var id ID
	if len(b) != 16 {
		return id, Validation("id must be 16 bytes, got %d", len(b))
	}
	copy(id[:], b)
	return id, nil
}

// ParseID parses the 32-char lowercase hex form produced by String.
func ParseID(s string) (ID, error) {
	var id ID
	if len(s) != 32 {
		return id, Validation("id string must be 32 hex chars, got %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, Validation("id is not valid hex: %v", err)
	}
	copy(id[:], b)
	return id, nil
}

// String renders the id as 32-char lowercase hex (no dashes).
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns the raw 16-byte representation.
func (id ID) Bytes() []byte {
	out := make([]byte, 16)
	copy(out, id[:])
	return out
}

// Less reports whether id sorts before other, ascending lexicographic
// on the raw bytes. Search results use it to break score ties
// deterministically.
func (id ID) Less(other ID) bool {
	for i := range id {
		if id[i] != other[i] {
			return id[i] < other[i]
		}
	}
	return false
}

func (id ID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.String() + `"`), nil
}

func (id *ID) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return Validation("id must be a JSON string")
	}
	parsed, err := ParseID(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// DocumentID uniquely identifies a vector document within a collection.
type DocumentID = ID

// SegmentID uniquely identifies a persisted segment.
type SegmentID = ID

// ManifestID uniquely identifies a manifest revision artifact.
type ManifestID = ID

// SnapshotID uniquely identifies a snapshot.
type SnapshotID = ID

// StreamID uniquely identifies a WAL stream, one per collection.
type StreamID = ID
