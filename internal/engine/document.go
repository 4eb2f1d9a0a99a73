package engine

import (
	"encoding/json"
	"time"

	"github.com/bayardsearch/bayard/internal/apierr"
	"github.com/bayardsearch/bayard/internal/schema"
)

// Document is a key/value record with a distinguished id, as spec.md §3.
// Fields are opaque bytes on the wire, interpreted against the index's
// schema; internally a Document carries the decoded field map.
type Document struct {
	ID        string             `json:"id"`
	Score     float64            `json:"score,omitempty"`
	SortValue float64            `json:"sort_value,omitempty"`
	Timestamp int64              `json:"timestamp,omitempty"`
	Fields    map[string]any     `json:"fields"`
}

// ParseDocument decodes raw JSON bytes into a Document and validates every
// field against the schema. An unknown field or a type mismatch fails the
// whole document (and, per put_documents semantics, the whole batch it is
// in) with SchemaViolation.
func ParseDocument(raw []byte, sc schema.Schema) (Document, error) {
	var wire struct {
		ID     string          `json:"id"`
		Fields json.RawMessage `json:"fields"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Document{}, apierr.Wrap(apierr.InvalidArgument, err, "malformed document JSON")
	}
	if wire.ID == "" {
		return Document{}, apierr.New(apierr.InvalidArgument, "document id must not be empty")
	}

	var rawFields map[string]json.RawMessage
	if len(wire.Fields) > 0 {
		if err := json.Unmarshal(wire.Fields, &rawFields); err != nil {
			return Document{}, apierr.Wrap(apierr.InvalidArgument, err, "malformed document fields")
		}
	}

	fields := make(map[string]any, len(rawFields))
	for name, raw := range rawFields {
		fieldDef, ok := sc.Field(name)
		if !ok {
			return Document{}, apierr.New(apierr.SchemaViolation, "document %q: unknown field %q", wire.ID, name)
		}
		val, err := decodeTyped(raw, fieldDef.Type)
		if err != nil {
			return Document{}, apierr.New(apierr.SchemaViolation, "document %q: field %q: %s", wire.ID, name, err)
		}
		fields[name] = val
	}

	return Document{ID: wire.ID, Fields: fields}, nil
}

func decodeTyped(raw json.RawMessage, t schema.FieldType) (any, error) {
	switch t {
	case schema.FieldText, schema.FieldBytes:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, errWrongType("string")
		}
		return s, nil
	case schema.FieldU64, schema.FieldI64:
		var n int64
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, errWrongType("integer")
		}
		if t == schema.FieldU64 && n < 0 {
			return nil, errWrongType("non-negative integer")
		}
		return n, nil
	case schema.FieldF64:
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, errWrongType("number")
		}
		return f, nil
	case schema.FieldBool:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, errWrongType("bool")
		}
		return b, nil
	case schema.FieldDate:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, errWrongType("RFC3339 date string")
		}
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			return nil, errWrongType("RFC3339 date string")
		}
		return s, nil
	default:
		return nil, errWrongType(string(t))
	}
}

type wrongTypeErr struct{ want string }

func (e wrongTypeErr) Error() string { return "expected " + e.want }

func errWrongType(want string) error { return wrongTypeErr{want: want} }
