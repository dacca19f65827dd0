// Package codec implements the bidirectional marshaling between the
// engine's storage types (integer, real, text, blob) and embedkit's
// logical row model (spec.md §4.2), grounded on the teacher's
// PRAGMA-table_info-driven column decoding in
// database/sqlite/introspector.go — generalized from "read a declared
// type string" to "encode/decode a typed logical value".
package codec

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/embedkit/embedkit/schema"
)

// EncodeValue converts a logical value into a storage parameter suitable
// for binding to a prepared statement, per spec.md §4.2's encoding rules.
func EncodeValue(col schema.Column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch col.Kind {
	case schema.KindInt, schema.KindReal, schema.KindText:
		return v, nil
	case schema.KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("column %q: expected bool, got %T", col.Name, v)
		}
		if b {
			return int64(1), nil
		}
		return int64(0), nil
	case schema.KindDate:
		return encodeDate(v)
	case schema.KindJSON:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("column %q: marshal json: %w", col.Name, err)
		}
		return string(b), nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

func encodeDate(v any) (any, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UnixMilli(), nil
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case float64:
		return int64(t), nil
	default:
		return nil, fmt.Errorf("expected date-like value, got %T", v)
	}
}

// DecodeValue converts a raw engine value for a known column back to its
// logical representation, per spec.md §4.2's decoding rules. json values
// that fail to parse fall back silently to the raw string, matching the
// source's documented behavior.
func DecodeValue(col schema.Column, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch col.Kind {
	case schema.KindDate:
		ms, err := asInt64(raw)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col.Name, err)
		}
		return time.UnixMilli(ms).UTC(), nil
	case schema.KindBool:
		n, err := asInt64(raw)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col.Name, err)
		}
		return n == 1, nil
	case schema.KindJSON:
		s, ok := asString(raw)
		if !ok {
			return raw, nil
		}
		var parsed any
		if err := json.Unmarshal([]byte(s), &parsed); err != nil {
			return raw, nil // silent fallback to raw text, per spec.md §4.2
		}
		return parsed, nil
	default:
		return raw, nil
	}
}

// DecodeRow decodes a full engine row given the column names returned by
// the driver and their raw scanned values. Columns the schema doesn't know
// about (e.g. from a raw query) pass through unchanged.
func DecodeRow(t schema.Table, colNames []string, values []any) (schema.Row, error) {
	row := make(schema.Row, len(colNames))
	for i, name := range colNames {
		col, known := t.Column(name)
		if !known {
			row[name] = values[i]
			continue
		}
		v, err := DecodeValue(col, values[i])
		if err != nil {
			return nil, err
		}
		row[name] = v
	}
	return row, nil
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("expected integer-like value, got %T", v)
	}
}

func asString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	default:
		return "", false
	}
}
