// Package segment implements the immutable on-disk segment format:
// a self-describing binary blob of vectors, payloads, and an optional
// tombstone/filter bitmap, guarded by header and body checksums.
package segment

import (
	"time"

	"storage-engine/internal/common"
)

// State is a segment's lifecycle stage. Transitions only ever move
// forward: Active -> Sealed -> Compacting -> Archived.
type State int

const (
	Active State = iota
	Sealed
	Compacting
	Archived
)

func (s State) String() string {
	switch s {
	case Active:
		return "Active"
	case Sealed:
		return "Sealed"
	case Compacting:
		return "Compacting"
	case Archived:
		return "Archived"
	default:
		return "Unknown"
	}
}

func (s State) MarshalJSON() ([]byte, error) { return []byte(`"` + s.String() + `"`), nil }

func (s *State) UnmarshalJSON(data []byte) error {
	str := string(data)
	if len(str) >= 2 {
		str = str[1 : len(str)-1]
	}
	switch str {
	case "Active":
		*s = Active
	case "Sealed":
		*s = Sealed
	case "Compacting":
		*s = Compacting
	case "Archived":
		*s = Archived
	default:
		return common.Validation("unknown segment state %q", str)
	}
	return nil
}

// LSNRange is an inclusive [Lo, Hi] range of WAL sequence numbers
// covered by a segment. Lo <= Hi always holds.
type LSNRange struct {
	Lo uint64 `json:"lo"`
	Hi uint64 `json:"hi"`
}

// Overlaps reports whether two LSN ranges share any sequence number.
// Manifest entries must never overlap.
func (r LSNRange) Overlaps(other LSNRange) bool {
	return r.Lo <= other.Hi && other.Lo <= r.Hi
}

// Descriptor describes a persisted segment's identity, shape, and
// lifecycle state, independent of its binary encoding.
type Descriptor struct {
	SegmentID        common.SegmentID `json:"segment_id"`
	Collection       string           `json:"collection"`
	RecordCount      uint32           `json:"record_count"`
	VectorDim        uint16           `json:"vector_dim"`
	LSNRange         LSNRange         `json:"lsn_range"`
	CompressionLevel uint8            `json:"compression_level"`
	CreatedAt        time.Time        `json:"created_at"`
	State            State            `json:"state"`
}

// Validate checks the segment descriptor's invariants: an ordered
// LSN range, a compression level within zstd's bounds, and a known
// state.
func (d *Descriptor) Validate() error {
	if d.LSNRange.Lo > d.LSNRange.Hi {
		return common.Validation("segment lsn range lo=%d > hi=%d", d.LSNRange.Lo, d.LSNRange.Hi)
	}
	if d.CompressionLevel > 22 {
		return common.Validation("compression level %d out of range [0,22]", d.CompressionLevel)
	}
	return nil
}
