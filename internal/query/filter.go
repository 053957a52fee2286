package query

import (
	"encoding/json"

	"storage-engine/internal/collection"
	"storage-engine/internal/common"
)

// predicate is the supported filter shape: field IN [values...]. A
// bare "eq" is accepted as sugar for a single-value "in".
type predicate struct {
	Field string            `json:"field"`
	In    []json.RawMessage `json:"in,omitempty"`
	Eq    json.RawMessage   `json:"eq,omitempty"`
}

// parseFilter decodes a query's raw JSON filter against the
// collection's payload schema, returning the field name and the typed
// values to match. Unknown fields, unindexed fields, and malformed
// JSON all report Validation.
func parseFilter(raw json.RawMessage, schema collection.PayloadSchema) (string, []collection.PayloadValue, error) {
	var p predicate
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", nil, common.Validation("malformed filter: %v", err)
	}
	if p.Field == "" {
		return "", nil, common.Validation("filter must name a field")
	}

	var fieldType collection.PayloadDataType
	found := false
	indexed := false
	for _, f := range schema.Fields {
		if f.Name == p.Field {
			fieldType = f.Type
			indexed = f.Indexed
			found = true
			break
		}
	}
	if !found {
		return "", nil, common.Validation("filter references unknown field %q", p.Field)
	}
	if !indexed {
		return "", nil, common.Validation("field %q is not indexed and cannot be filtered", p.Field)
	}

	raws := p.In
	if len(raws) == 0 && p.Eq != nil {
		raws = []json.RawMessage{p.Eq}
	}
	if len(raws) == 0 {
		return "", nil, common.Validation("filter on %q must supply \"in\" or \"eq\"", p.Field)
	}

	values := make([]collection.PayloadValue, 0, len(raws))
	for _, r := range raws {
		v, err := decodePayloadValue(fieldType, r)
		if err != nil {
			return "", nil, err
		}
		values = append(values, v)
	}
	return p.Field, values, nil
}

func decodePayloadValue(fieldType collection.PayloadDataType, raw json.RawMessage) (collection.PayloadValue, error) {
	switch fieldType {
	case collection.TypeKeyword:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return collection.PayloadValue{}, common.Validation("filter value for keyword field must be a string: %v", err)
		}
		return collection.KeywordValue(s), nil
	case collection.TypeText:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return collection.PayloadValue{}, common.Validation("filter value for text field must be a string: %v", err)
		}
		return collection.TextValue(s), nil
	case collection.TypeInteger:
		var n int64
		if err := json.Unmarshal(raw, &n); err != nil {
			return collection.PayloadValue{}, common.Validation("filter value for integer field must be an integer: %v", err)
		}
		return collection.IntValue(n), nil
	case collection.TypeBoolean:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return collection.PayloadValue{}, common.Validation("filter value for boolean field must be a bool: %v", err)
		}
		return collection.BoolValue(b), nil
	default:
		return collection.PayloadValue{}, common.Validation("field type %q does not support equality filtering", fieldType)
	}
}
