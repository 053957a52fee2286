// Package collection defines the collection descriptor, payload schema,
// and vector document types shared by every other package in the engine.
package collection

import (
	"storage-engine/internal/common"
)

// DistanceMetric selects how ANN search ranks candidates.
type DistanceMetric int

const (
	// Cosine is the default metric for new collections.
	Cosine DistanceMetric = iota
	L2
	Dot
)

func (m DistanceMetric) String() string {
	switch m {
	case Cosine:
		return "Cosine"
	case L2:
		return "L2"
	case Dot:
		return "Dot"
	default:
		return "Unknown"
	}
}

// ParseDistanceMetric parses the manifest JSON's metric field.
func ParseDistanceMetric(s string) (DistanceMetric, error) {
	switch s {
	case "Cosine", "":
		return Cosine, nil
	case "L2":
		return L2, nil
	case "Dot":
		return Dot, nil
	default:
		return Cosine, common.Validation("unknown distance metric %q", s)
	}
}

func (m DistanceMetric) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

func (m *DistanceMetric) UnmarshalJSON(data []byte) error {
	if len(data) < 2 {
		return common.Validation("invalid distance metric json")
	}
	parsed, err := ParseDistanceMetric(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// PayloadDataType is one of the eight supported payload value types.
type PayloadDataType string

const (
	TypeBoolean   PayloadDataType = "boolean"
	TypeInteger   PayloadDataType = "integer"
	TypeFloat     PayloadDataType = "float"
	TypeText      PayloadDataType = "text"
	TypeKeyword   PayloadDataType = "keyword"
	TypeGeoPoint  PayloadDataType = "geo_point"
	TypeTimestamp PayloadDataType = "timestamp"
	TypeJSON      PayloadDataType = "json"
)

// PayloadField describes one field of a collection's payload schema.
type PayloadField struct {
	Name    string          `json:"name"`
	Type    PayloadDataType `json:"data_type"`
	Indexed bool            `json:"indexed"`
}

// PayloadSchema is the ordered list of payload field descriptors
// fixed at collection-creation time.
type PayloadSchema struct {
	Fields []PayloadField `json:"fields"`
}

// IndexedFields returns the names of fields flagged for bitmap indexing.
func (s PayloadSchema) IndexedFields() []string {
	var out []string
	for _, f := range s.Fields {
		if f.Indexed {
			out = append(out, f.Name)
		}
	}
	return out
}

// Descriptor is a collection's immutable identity: name, dimension,
// and distance metric never change for the life of the collection.
type Descriptor struct {
	Name              string        `json:"name"`
	Dimension         uint32        `json:"dimension"`
	Distance          DistanceMetric `json:"distance"`
	ReplicationFactor uint8         `json:"replication_factor"`
	ShardCount        uint16        `json:"shard_count"`
	PayloadSchema     PayloadSchema `json:"payload_schema"`
	WALStreamID       common.StreamID `json:"wal_stream_id"`
}

// Validate checks the descriptor's invariants: non-empty name,
// dimension in 1..=65535, and replication factor and shard count of at
// least 1 (their integer types bound the maxima). The payload schema is
// not inspected.
func (d *Descriptor) Validate() error {
	if d.Name == "" {
		return common.Validation("collection name must not be empty")
	}
	if d.Dimension == 0 || d.Dimension > 65535 {
		return common.Validation("dimension %d out of range [1,65535]", d.Dimension)
	}
	if d.ReplicationFactor == 0 {
		return common.Validation("replication factor must be >= 1")
	}
	if d.ShardCount == 0 {
		return common.Validation("shard count must be >= 1")
	}
	return nil
}
