package jifdb

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// IDField is the reserved document key holding the store-assigned id.
const IDField = "id"

// Document is one stored record: JSON values keyed by field name.
//
// Values are whatever encoding/json produces or accepts: nil, bool, numbers
// (json.Number when read from disk), string, []any and map[string]any.
// The "id" key is reserved; the store assigns it on create and never changes it.
type Document map[string]any

// ID returns the document's id if it holds a positive integer.
func (d Document) ID() (int64, bool) {
	return intValue(d[IDField])
}

// Clone returns a deep copy of d. Maps and slices are copied, scalars shared.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}

	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}

	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case Document:
		return val.Clone()
	case map[string]any:
		return map[string]any(Document(val).Clone())
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}

		return out
	default:
		return v
	}
}

// intValue extracts a positive integer from the numeric types a document can
// hold, whether built in Go or decoded from disk.
func intValue(v any) (int64, bool) {
	var n int64

	switch val := v.(type) {
	case int:
		n = int64(val)
	case int32:
		n = int64(val)
	case int64:
		n = val
	case uint32:
		n = int64(val)
	case float64:
		if val != math.Trunc(val) || val > math.MaxInt64 {
			return 0, false
		}

		n = int64(val)
	case json.Number:
		parsed, err := strconv.ParseInt(val.String(), 10, 64)
		if err != nil {
			return 0, false
		}

		n = parsed
	default:
		return 0, false
	}

	if n <= 0 {
		return 0, false
	}

	return n, true
}

// ParseDocument decodes a JSON object into a Document. Numbers are kept as
// json.Number so large integers survive a round trip.
//
// Returns an error wrapping [ErrInvalidDocument] if data is not exactly one
// JSON object.
func ParseDocument(data []byte) (Document, error) {
	v, err := decodeJSON(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: want JSON object, got %s", ErrInvalidDocument, jsonKind(v))
	}

	return Document(obj), nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case json.Number, float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
