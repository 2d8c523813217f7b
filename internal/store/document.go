package store

import "encoding/json"

// Document is one logical resource: a flat key to JSON value mapping.
// Keys are group or member IDs; values are decoded on demand by callers.
type Document map[string]json.RawMessage

// Get decodes the value at key into T. The second return is false when the
// key is absent or its value does not decode.
func Get[T any](doc Document, key string) (T, bool) {
	var v T
	raw, ok := doc[key]
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false
	}
	return v, true
}

// Set encodes v at key. Values that fail to encode leave the document
// untouched.
func Set[T any](doc Document, key string, v T) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	doc[key] = raw
}

// Decode decodes the whole document into a typed map, skipping entries
// that do not decode.
func Decode[T any](doc Document) map[string]T {
	out := make(map[string]T, len(doc))
	for key, raw := range doc {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			continue
		}
		out[key] = v
	}
	return out
}

// Clone returns a shallow copy. Update callbacks receive a clone so a
// failed save never leaves the caller holding mutated shared state.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
