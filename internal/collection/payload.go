package collection

import (
	"encoding/json"

	"storage-engine/internal/common"
)

// PayloadValue is a tagged variant over the eight payload data types.
// JSON blobs are retained as raw bytes and parsed lazily to avoid
// dynamic dispatch on the hot search path.
type PayloadValue struct {
	Kind PayloadDataType

	boolVal  bool
	intVal   int64
	floatVal float64
	textVal  string
	lat, lon float64
	tsUnix   int64
	jsonRaw  []byte
}

func BoolValue(v bool) PayloadValue     { return PayloadValue{Kind: TypeBoolean, boolVal: v} }
func IntValue(v int64) PayloadValue     { return PayloadValue{Kind: TypeInteger, intVal: v} }
func FloatValue(v float64) PayloadValue { return PayloadValue{Kind: TypeFloat, floatVal: v} }
func TextValue(v string) PayloadValue   { return PayloadValue{Kind: TypeText, textVal: v} }
func KeywordValue(v string) PayloadValue {
	return PayloadValue{Kind: TypeKeyword, textVal: v}
}
func GeoPointValue(lat, lon float64) PayloadValue {
	return PayloadValue{Kind: TypeGeoPoint, lat: lat, lon: lon}
}
func TimestampValue(unixSeconds int64) PayloadValue {
	return PayloadValue{Kind: TypeTimestamp, tsUnix: unixSeconds}
}
func JSONValue(raw []byte) PayloadValue { return PayloadValue{Kind: TypeJSON, jsonRaw: raw} }

func (v PayloadValue) Bool() (bool, bool)       { return v.boolVal, v.Kind == TypeBoolean }
func (v PayloadValue) Int() (int64, bool)       { return v.intVal, v.Kind == TypeInteger }
func (v PayloadValue) Float() (float64, bool)   { return v.floatVal, v.Kind == TypeFloat }
func (v PayloadValue) Text() (string, bool)      { return v.textVal, v.Kind == TypeText }
func (v PayloadValue) Keyword() (string, bool)   { return v.textVal, v.Kind == TypeKeyword }
func (v PayloadValue) GeoPoint() (lat, lon float64, ok bool) {
	return v.lat, v.lon, v.Kind == TypeGeoPoint
}
func (v PayloadValue) Timestamp() (int64, bool) { return v.tsUnix, v.Kind == TypeTimestamp }

// JSON lazily parses the retained raw bytes into dst.
func (v PayloadValue) JSON(dst any) (bool, error) {
	if v.Kind != TypeJSON {
		return false, nil
	}
	if err := json.Unmarshal(v.jsonRaw, dst); err != nil {
		return true, common.Serialization("decoding json payload value: %v", err)
	}
	return true, nil
}

// RawJSON returns the retained bytes without parsing them.
func (v PayloadValue) RawJSON() []byte { return v.jsonRaw }

// StringKey renders a PayloadValue as a canonical string usable as a
// bitmap-index dictionary key (keyword/text/integer/boolean only;
// floats, geo-points, timestamps, and JSON are not bitmap-indexable
// equality keys).
func (v PayloadValue) StringKey() (string, bool) {
	switch v.Kind {
	case TypeKeyword, TypeText:
		return v.textVal, true
	case TypeBoolean:
		if v.boolVal {
			return "true", true
		}
		return "false", true
	case TypeInteger:
		return jsonInt(v.intVal), true
	default:
		return "", false
	}
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

type payloadValueJSON struct {
	Kind PayloadDataType `json:"type"`
	Bool *bool           `json:"bool,omitempty"`
	Int  *int64          `json:"int,omitempty"`
	Flt  *float64        `json:"float,omitempty"`
	Text *string         `json:"text,omitempty"`
	Lat  *float64        `json:"lat,omitempty"`
	Lon  *float64        `json:"lon,omitempty"`
	TS   *int64          `json:"ts,omitempty"`
	JSON json.RawMessage `json:"json,omitempty"`
}

func (v PayloadValue) MarshalJSON() ([]byte, error) {
	out := payloadValueJSON{Kind: v.Kind}
	switch v.Kind {
	case TypeBoolean:
		out.Bool = &v.boolVal
	case TypeInteger:
		out.Int = &v.intVal
	case TypeFloat:
		out.Flt = &v.floatVal
	case TypeText, TypeKeyword:
		out.Text = &v.textVal
	case TypeGeoPoint:
		out.Lat, out.Lon = &v.lat, &v.lon
	case TypeTimestamp:
		out.TS = &v.tsUnix
	case TypeJSON:
		out.JSON = v.jsonRaw
	}
	return json.Marshal(out)
}

func (v *PayloadValue) UnmarshalJSON(data []byte) error {
	var in payloadValueJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return common.Serialization("decoding payload value: %v", err)
	}
	out := PayloadValue{Kind: in.Kind}
	switch in.Kind {
	case TypeBoolean:
		if in.Bool != nil {
			out.boolVal = *in.Bool
		}
	case TypeInteger:
		if in.Int != nil {
			out.intVal = *in.Int
		}
	case TypeFloat:
		if in.Flt != nil {
			out.floatVal = *in.Flt
		}
	case TypeText, TypeKeyword:
		if in.Text != nil {
			out.textVal = *in.Text
		}
	case TypeGeoPoint:
		if in.Lat != nil {
			out.lat = *in.Lat
		}
		if in.Lon != nil {
			out.lon = *in.Lon
		}
	case TypeTimestamp:
		if in.TS != nil {
			out.tsUnix = *in.TS
		}
	case TypeJSON:
		out.jsonRaw = []byte(in.JSON)
	}
	*v = out
	return nil
}

// Payload maps field names to typed values.
type Payload map[string]PayloadValue

// VectorDocument is the unit of ingestion: an id, an optional external
// id, a fixed-dimension vector, and a structured payload.
type VectorDocument struct {
	ID         common.DocumentID `json:"id"`
	ExternalID string            `json:"external_id,omitempty"`
	Vector     []float32         `json:"vector"`
	Payload    Payload           `json:"payload,omitempty"`
}

// ValidateDimension checks the invariant |vector| = D.
func (d *VectorDocument) ValidateDimension(dim uint32) error {
	if uint32(len(d.Vector)) != dim {
		return common.Validation("vector dimension %d does not match collection dimension %d", len(d.Vector), dim)
	}
	return nil
}
