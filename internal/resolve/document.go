// Package resolve merges divergent local and remote entity versions into
// one canonical state.
//
// Resolution is a total, deterministic, idempotent function: it never
// errors over two structurally valid documents, re-resolving an already
// resolved pair yields the same value, and resolving a document against
// itself returns it unchanged. Structurally incompatible inputs are a
// precondition violation caught earlier in the pipeline.
package resolve

import (
	"encoding/json"
	"fmt"
	"time"
)

// Field is one entity field with its own modification timestamp.
// A zero UpdatedAt means the source system tracks no per-field time;
// field-level merging then falls back to the entity-level timestamp.
type Field struct {
	Value     any       `json:"value"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Document is the strategy-independent shape both sides of a conflict
// are expressed in. Entities using field-level merge carry per-field
// timestamps; others only need the entity-level UpdatedAt.
type Document struct {
	EntityID  string           `json:"entity_id"`
	UpdatedAt time.Time        `json:"updated_at"`
	Fields    map[string]Field `json:"fields"`
}

// DecodeDocument parses a JSON payload into a Document.
func DecodeDocument(payload []byte) (Document, error) {
	var d Document
	if err := json.Unmarshal(payload, &d); err != nil {
		return Document{}, fmt.Errorf("decode document: %w", err)
	}
	return d, nil
}

// MarshalDocument renders a document as canonical JSON: sorted keys,
// NFC-normalized strings, no HTML escaping. Two equal documents always
// produce identical bytes.
func MarshalDocument(d Document) ([]byte, error) {
	fields := make(map[string]any, len(d.Fields))
	for name, f := range d.Fields {
		fv := map[string]any{"value": f.Value}
		if !f.UpdatedAt.IsZero() {
			fv["updated_at"] = f.UpdatedAt.UTC().Format(time.RFC3339Nano)
		}
		fields[name] = fv
	}
	return marshalCanonical(map[string]any{
		"entity_id":  d.EntityID,
		"updated_at": d.UpdatedAt.UTC().Format(time.RFC3339Nano),
		"fields":     fields,
	})
}

// Equal reports whether two documents are identical under canonical
// serialization.
func Equal(a, b Document) bool {
	ab, errA := MarshalDocument(a)
	bb, errB := MarshalDocument(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ab) == string(bb)
}
