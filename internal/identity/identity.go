// Package identity normalizes the heterogeneous entity-id shapes seen on
// the wire (raw string, numeric id, embedded object carrying an id field)
// to one canonical string key, so every comparison in the engine goes
// through a single code path.
package identity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Key returns the canonical string key for v, or "" when no id can be
// extracted. Supported shapes: string, integer/float, json.Number,
// fmt.Stringer, and maps with an "id" or "_id" entry (recursively
// normalized).
func Key(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		// JSON decodes numbers to float64; ids are integral in practice.
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]any:
		if id, ok := t["id"]; ok {
			return Key(id)
		}
		if id, ok := t["_id"]; ok {
			return Key(id)
		}
		return ""
	case fmt.Stringer:
		return t.String()
	default:
		return ""
	}
}

// FromJSON normalizes a raw JSON value (quoted string, number, or object
// carrying an id field) to its canonical key. Invalid or absent input
// yields "".
func FromJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return ""
	}
	return Key(v)
}

// Equal reports whether a and b normalize to the same non-empty key.
func Equal(a, b any) bool {
	ka := Key(a)
	return ka != "" && ka == Key(b)
}
