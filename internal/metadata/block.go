// Package metadata implements the payloads block: a columnar,
// Arrow-IPC-encoded representation of a segment's structured payload
// values, addressed by row order (row i corresponds to the i'th
// vector in the same segment), committing to Arrow IPC as the
// concrete encoding.
package metadata

import (
	"bytes"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"

	"storage-engine/internal/collection"
	"storage-engine/internal/common"
)

// Block holds one segment's payloads as an Arrow schema plus a single
// record batch, one row per document in the segment.
type Block struct {
	Schema *arrow.Schema
	Batch  arrow.Record
}

// Release drops the underlying Arrow buffers. Callers that keep a
// Block around (rather than serializing it immediately) must call
// this once they are done with it.
func (b *Block) Release() {
	if b.Batch != nil {
		b.Batch.Release()
	}
}

// BuildSchema derives a deterministic Arrow schema from a collection's
// payload schema: one nullable column per declared field, in
// declaration order.
func BuildSchema(schema collection.PayloadSchema) (*arrow.Schema, error) {
	fields := make([]arrow.Field, len(schema.Fields))
	for i, f := range schema.Fields {
		dt, err := arrowType(f.Type)
		if err != nil {
			return nil, err
		}
		fields[i] = arrow.Field{Name: f.Name, Type: dt, Nullable: true}
	}
	return arrow.NewSchema(fields, nil), nil
}

func arrowType(t collection.PayloadDataType) (arrow.DataType, error) {
	switch t {
	case collection.TypeBoolean:
		return arrow.FixedWidthTypes.Boolean, nil
	case collection.TypeInteger:
		return arrow.PrimitiveTypes.Int64, nil
	case collection.TypeFloat:
		return arrow.PrimitiveTypes.Float64, nil
	case collection.TypeText, collection.TypeKeyword, collection.TypeJSON:
		return arrow.BinaryTypes.String, nil
	case collection.TypeTimestamp:
		return arrow.PrimitiveTypes.Int64, nil
	case collection.TypeGeoPoint:
		return arrow.StructOf(
			arrow.Field{Name: "lat", Type: arrow.PrimitiveTypes.Float64},
			arrow.Field{Name: "lon", Type: arrow.PrimitiveTypes.Float64},
		), nil
	default:
		return nil, common.Validation("unsupported payload data type %q for metadata block", t)
	}
}

// FromJSON builds a Block from a collection's payload schema and the
// per-row payload values it describes. A row missing a declared field
// gets a null in that column rather than an error, since the payload
// schema binds what fields a collection MAY carry, not what every
// document must carry.
func FromJSON(schema collection.PayloadSchema, rows []collection.Payload) (*Block, error) {
	arrowSchema, err := BuildSchema(schema)
	if err != nil {
		return nil, err
	}

	alloc := memory.NewGoAllocator()
	builders := make([]array.Builder, len(schema.Fields))
	for i, f := range schema.Fields {
		dt, _ := arrowType(f.Type)
		builders[i] = array.NewBuilder(alloc, dt)
	}
	defer func() {
		for _, b := range builders {
			b.Release()
		}
	}()

	for _, row := range rows {
		for i, f := range schema.Fields {
			if err := appendValue(builders[i], f.Type, row[f.Name]); err != nil {
				return nil, err
			}
		}
	}

	cols := make([]arrow.Array, len(builders))
	for i, b := range builders {
		cols[i] = b.NewArray()
	}
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	batch := array.NewRecord(arrowSchema, cols, int64(len(rows)))
	return &Block{Schema: arrowSchema, Batch: batch}, nil
}

func appendValue(b array.Builder, kind collection.PayloadDataType, v collection.PayloadValue) error {
	if v.Kind == "" {
		b.AppendNull()
		return nil
	}
	if v.Kind != kind {
		return common.Validation("payload value kind %q does not match schema field kind %q", v.Kind, kind)
	}
	switch kind {
	case collection.TypeBoolean:
		val, _ := v.Bool()
		b.(*array.BooleanBuilder).Append(val)
	case collection.TypeInteger:
		val, _ := v.Int()
		b.(*array.Int64Builder).Append(val)
	case collection.TypeFloat:
		val, _ := v.Float()
		b.(*array.Float64Builder).Append(val)
	case collection.TypeText:
		val, _ := v.Text()
		b.(*array.StringBuilder).Append(val)
	case collection.TypeKeyword:
		val, _ := v.Keyword()
		b.(*array.StringBuilder).Append(val)
	case collection.TypeJSON:
		b.(*array.StringBuilder).Append(string(v.RawJSON()))
	case collection.TypeTimestamp:
		val, _ := v.Timestamp()
		b.(*array.Int64Builder).Append(val)
	case collection.TypeGeoPoint:
		lat, lon, _ := v.GeoPoint()
		sb := b.(*array.StructBuilder)
		sb.Append(true)
		sb.FieldBuilder(0).(*array.Float64Builder).Append(lat)
		sb.FieldBuilder(1).(*array.Float64Builder).Append(lon)
	default:
		return common.Validation("unsupported payload data type %q", kind)
	}
	return nil
}

// ToJSON reconstructs one Payload per row from a Block.
func ToJSON(schema collection.PayloadSchema, b *Block) ([]collection.Payload, error) {
	n := int(b.Batch.NumRows())
	rows := make([]collection.Payload, n)
	for i := range rows {
		rows[i] = collection.Payload{}
	}

	for colIdx, f := range schema.Fields {
		col := b.Batch.Column(colIdx)
		for row := 0; row < n; row++ {
			if col.IsNull(row) {
				continue
			}
			val, err := readValue(col, f.Type, row)
			if err != nil {
				return nil, err
			}
			rows[row][f.Name] = val
		}
	}
	return rows, nil
}

func readValue(col arrow.Array, kind collection.PayloadDataType, row int) (collection.PayloadValue, error) {
	switch kind {
	case collection.TypeBoolean:
		return collection.BoolValue(col.(*array.Boolean).Value(row)), nil
	case collection.TypeInteger:
		return collection.IntValue(col.(*array.Int64).Value(row)), nil
	case collection.TypeFloat:
		return collection.FloatValue(col.(*array.Float64).Value(row)), nil
	case collection.TypeText:
		return collection.TextValue(col.(*array.String).Value(row)), nil
	case collection.TypeKeyword:
		return collection.KeywordValue(col.(*array.String).Value(row)), nil
	case collection.TypeJSON:
		return collection.JSONValue([]byte(col.(*array.String).Value(row))), nil
	case collection.TypeTimestamp:
		return collection.TimestampValue(col.(*array.Int64).Value(row)), nil
	case collection.TypeGeoPoint:
		sc := col.(*array.Struct)
		lat := sc.Field(0).(*array.Float64).Value(row)
		lon := sc.Field(1).(*array.Float64).Value(row)
		return collection.GeoPointValue(lat, lon), nil
	default:
		return collection.PayloadValue{}, common.Validation("unsupported payload data type %q", kind)
	}
}

// Serialize encodes a Block as a single-batch Arrow IPC stream, the
// bytes that get written into a segment's payloads block.
func Serialize(b *Block) ([]byte, error) {
	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(b.Schema))
	if err := w.Write(b.Batch); err != nil {
		return nil, common.Serialization("writing arrow ipc stream: %v", err)
	}
	if err := w.Close(); err != nil {
		return nil, common.Serialization("closing arrow ipc stream: %v", err)
	}
	return buf.Bytes(), nil
}

// Deserialize decodes a single-batch Arrow IPC stream back into a
// Block. It returns a Serialization error (never a partial Block) if
// the stream is truncated or carries more than one batch, since a
// segment's payloads block is defined to hold exactly one.
func Deserialize(data []byte) (*Block, error) {
	r, err := ipc.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, common.Serialization("opening arrow ipc stream: %v", err)
	}
	defer r.Release()

	if !r.Next() {
		return nil, common.Serialization("arrow ipc stream has no record batch")
	}
	batch := r.Record()
	batch.Retain()

	if r.Next() {
		batch.Release()
		return nil, common.Serialization("arrow ipc stream has more than one record batch")
	}
	if err := r.Err(); err != nil {
		batch.Release()
		return nil, common.Serialization("reading arrow ipc stream: %v", err)
	}

	return &Block{Schema: r.Schema(), Batch: batch}, nil
}
