package uor_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/UOR-Foundation/uordb/uor"
)

func TestCanonicalizeDeterministicUnderKeyOrder(t *testing.T) {
	a := json.RawMessage(`{"b":2,"a":1,"nested":{"y":[1,2,{"z":true,"q":null}],"x":"s"}}`)
	b := json.RawMessage(`{"nested":{"x":"s","y":[1,2,{"q":null,"z":true}]},"a":1,"b":2}`)
	ca, err := uor.Canonicalize(a)
	if err != nil {
		t.Fatalf("canonicalize a: %v", err)
	}
	cb, err := uor.Canonicalize(b)
	if err != nil {
		t.Fatalf("canonicalize b: %v", err)
	}
	if ca != cb {
		t.Fatalf("canonical forms differ:\n%s\n%s", ca, cb)
	}
}

func TestCanonicalizePreservesNumberNotation(t *testing.T) {
	got, err := uor.Canonicalize(json.RawMessage(`{"n":9007199254740993}`))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if got != `{"n":9007199254740993}` {
		t.Fatalf("large integer mangled: %s", got)
	}
}

func TestCanonicalizeRejectsBadInput(t *testing.T) {
	if _, err := uor.Canonicalize(nil); err == nil {
		t.Fatalf("expected error for empty data")
	}
	if _, err := uor.Canonicalize(json.RawMessage(`{"a":1} extra`)); err == nil {
		t.Fatalf("expected error for trailing data")
	}
	if _, err := uor.Canonicalize(json.RawMessage(`{`)); err == nil {
		t.Fatalf("expected error for malformed JSON")
	}
}

func TestCanonicalizeObjectIgnoresTransientFields(t *testing.T) {
	base := &uor.Object{
		ID:        "42",
		Type:      uor.TypeConcept,
		Namespace: "alice",
		Data:      json.RawMessage(`{"title":"prime"}`),
	}
	withFrame := &uor.Object{
		ID:                      "42",
		Type:                    uor.TypeConcept,
		Namespace:               "alice",
		Data:                    json.RawMessage(`{"title":"prime"}`),
		CanonicalRepresentation: "stale",
		ObserverFrame:           "display",
	}
	ca, err := uor.CanonicalizeObject(base)
	if err != nil {
		t.Fatalf("canonicalize base: %v", err)
	}
	cb, err := uor.CanonicalizeObject(withFrame)
	if err != nil {
		t.Fatalf("canonicalize framed: %v", err)
	}
	if ca != cb {
		t.Fatalf("transient fields leaked into canonical form: %q vs %q", ca, cb)
	}
}

func TestVerifyCoherence(t *testing.T) {
	obj := &uor.Object{
		ID:        "42",
		Type:      uor.TypeConcept,
		Namespace: "alice",
		Data:      json.RawMessage(`{"title":"prime","rank":1}`),
	}
	if err := uor.Attach(obj); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := uor.VerifyCoherence(obj); err != nil {
		t.Fatalf("verify fresh object: %v", err)
	}

	obj.Data = json.RawMessage(`{"title":"composite","rank":1}`)
	err := uor.VerifyCoherence(obj)
	var coherence *uor.CoherenceError
	if !errors.As(err, &coherence) {
		t.Fatalf("expected coherence error, got %v", err)
	}
	if coherence.Stored == coherence.Computed {
		t.Fatalf("coherence error should carry differing representations")
	}

	obj.CanonicalRepresentation = ""
	if err := uor.VerifyCoherence(obj); err == nil {
		t.Fatalf("expected failure for missing canonical representation")
	}
}

func TestProjectLeavesCanonicalFormIntact(t *testing.T) {
	obj := &uor.Object{
		ID:        "1",
		Type:      uor.TypeTopic,
		Namespace: "bob",
		Data:      json.RawMessage(`{"name":"geometry"}`),
	}
	if err := uor.Attach(obj); err != nil {
		t.Fatalf("attach: %v", err)
	}
	before := obj.CanonicalRepresentation

	view, err := uor.Project(obj, "display")
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if view.Frame != "display" {
		t.Fatalf("unexpected frame %q", view.Frame)
	}
	if view.Canonical != before {
		t.Fatalf("projection altered canonical form")
	}
	if obj.CanonicalRepresentation != before {
		t.Fatalf("projection mutated the object")
	}
	if _, err := uor.Project(obj, ""); err == nil {
		t.Fatalf("expected error for empty frame")
	}
}
