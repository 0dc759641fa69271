package uor

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Canonicalize produces the canonical representation of a logical data
// payload. The encoding is deterministic: object keys are emitted in sorted
// order at every depth, numbers keep their source notation, and no
// insignificant whitespace is produced. Two payloads with equal logical
// content canonicalize to byte-identical strings regardless of key order.
func Canonicalize(data json.RawMessage) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("uor: cannot canonicalize empty data")
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		return "", fmt.Errorf("uor: canonicalize: %w", err)
	}
	// A second value after the first document means trailing garbage.
	if decoder.More() {
		return "", fmt.Errorf("uor: canonicalize: trailing data after JSON document")
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("uor: canonicalize: %w", err)
	}
	return string(encoded), nil
}

// CanonicalizeObject computes the canonical representation of an object's
// data. Transient fields (the stored representation and the observer frame)
// are excluded by construction: only Data participates.
func CanonicalizeObject(obj *Object) (string, error) {
	if obj == nil {
		return "", fmt.Errorf("uor: cannot canonicalize nil object")
	}
	return Canonicalize(obj.Data)
}

// Attach computes and stores the canonical representation on obj.
func Attach(obj *Object) error {
	canonical, err := CanonicalizeObject(obj)
	if err != nil {
		return err
	}
	obj.CanonicalRepresentation = canonical
	return nil
}

// CoherenceError reports drift between an object's data and its stored
// canonical representation. It is reported to the caller, never repaired in
// place, since silent correction could mask data corruption.
type CoherenceError struct {
	Reference Reference
	Stored    string
	Computed  string
}

func (e *CoherenceError) Error() string {
	return fmt.Sprintf("uor: coherence violation on %s: stored canonical representation does not match data", e.Reference)
}

// VerifyCoherence recomputes the canonical representation of obj and
// compares it to the stored one. A mismatch returns a *CoherenceError.
// Objects without a stored representation fail verification outright.
func VerifyCoherence(obj *Object) error {
	computed, err := CanonicalizeObject(obj)
	if err != nil {
		return err
	}
	if obj.CanonicalRepresentation == "" {
		return &CoherenceError{Reference: obj.Reference(), Computed: computed}
	}
	if obj.CanonicalRepresentation != computed {
		return &CoherenceError{
			Reference: obj.Reference(),
			Stored:    obj.CanonicalRepresentation,
			Computed:  computed,
		}
	}
	return nil
}

// Projection is a frame-specific view over an object. It is purely additive:
// the canonical representation travels with the view, untouched.
type Projection struct {
	Reference string          `json:"reference"`
	Frame     string          `json:"observerFrame"`
	Data      json.RawMessage `json:"data"`
	Canonical string          `json:"canonicalRepresentation"`
}

// Project derives a view of obj under the named observer frame. The frame
// never affects identity or equality of the underlying object; projecting
// leaves obj unchanged.
func Project(obj *Object, frame string) (*Projection, error) {
	if obj == nil {
		return nil, fmt.Errorf("uor: cannot project nil object")
	}
	if frame == "" {
		return nil, fmt.Errorf("uor: observer frame required")
	}
	canonical := obj.CanonicalRepresentation
	if canonical == "" {
		computed, err := CanonicalizeObject(obj)
		if err != nil {
			return nil, err
		}
		canonical = computed
	}
	return &Projection{
		Reference: obj.Reference().String(),
		Frame:     frame,
		Data:      append(json.RawMessage(nil), obj.Data...),
		Canonical: canonical,
	}, nil
}
