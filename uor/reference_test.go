package uor_test

import (
	"testing"

	"github.com/UOR-Foundation/uordb/uor"
)

func TestParseReferenceRoundTrip(t *testing.T) {
	ref, err := uor.ParseReference("uor://alice/concept/math/prime-42")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ref.Namespace != "alice" || ref.Type != uor.TypeConcept || ref.ID != "math/prime-42" {
		t.Fatalf("unexpected reference %+v", ref)
	}
	if got := ref.String(); got != "uor://alice/concept/math/prime-42" {
		t.Fatalf("string round trip: %s", got)
	}
	if !ref.In("alice") || ref.In("bob") {
		t.Fatalf("namespace membership wrong for %+v", ref)
	}
}

func TestParseReferenceNormalizesCase(t *testing.T) {
	ref, err := uor.ParseReference("uor://Alice/Concept/Prime")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ref.String() != "uor://alice/concept/prime" {
		t.Fatalf("expected lowercased reference, got %s", ref)
	}
}

func TestParseReferenceRejectsMalformed(t *testing.T) {
	for _, raw := range []string{
		"",
		"http://alice/concept/1",
		"uor://alice",
		"uor://alice/concept",
		"uor://al ice/concept/1",
		"uor://alice/concept/",
	} {
		if _, err := uor.ParseReference(raw); err == nil {
			t.Fatalf("expected parse failure for %q", raw)
		}
	}
}
