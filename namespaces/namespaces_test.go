package namespaces_test

import (
	"strings"
	"testing"

	"github.com/UOR-Foundation/uordb/namespaces"
)

func TestNormalizeAppliesFallback(t *testing.T) {
	ns, err := namespaces.Normalize("", "alice")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if ns != "alice" {
		t.Fatalf("expected fallback namespace, got %q", ns)
	}
	if _, err := namespaces.Normalize("", ""); err == nil {
		t.Fatalf("expected error for empty namespace without fallback")
	}
}

func TestNormalizeComponentLowercasesAndValidates(t *testing.T) {
	got, err := namespaces.NormalizeComponent("  Alice-01  ")
	if err != nil {
		t.Fatalf("normalize component: %v", err)
	}
	if got != "alice-01" {
		t.Fatalf("unexpected component %q", got)
	}
	for _, bad := range []string{"", "sp ace", "slash/inside", "ünïcode", strings.Repeat("a", namespaces.MaxLength+1)} {
		if _, err := namespaces.NormalizeComponent(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestNormalizeIDAllowsHierarchy(t *testing.T) {
	got, err := namespaces.NormalizeID("Topic/42")
	if err != nil {
		t.Fatalf("normalize id: %v", err)
	}
	if got != "topic/42" {
		t.Fatalf("unexpected id %q", got)
	}
	if _, err := namespaces.NormalizeID("topic//42"); err == nil {
		t.Fatalf("expected error for empty segment")
	}
}
