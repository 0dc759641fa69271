package search_test

import (
	"encoding/json"
	"testing"

	"github.com/UOR-Foundation/uordb/internal/search"
)

func TestParseRejectsMalformedTerms(t *testing.T) {
	for _, raw := range []string{"^=x", "~=x", "=value"} {
		if _, err := search.Parse(raw); err == nil {
			t.Fatalf("expected parse failure for %q", raw)
		}
	}
}

func TestMatchesTermKinds(t *testing.T) {
	doc := json.RawMessage(`{"title":"Prime numbers","meta":{"rank":3,"published":true},"tags":["math","number-theory"]}`)

	cases := []struct {
		query string
		want  bool
	}{
		{"", true},
		{"title=Prime numbers", false},
		{"meta.rank=3", true},
		{"meta.published=true", true},
		{"title^=Prime", true},
		{"title^=numbers", false},
		{"title~=numbers", true},
		{"theory", true},
		{"geometry", false},
		{"meta.rank=3 title~=Prime", true},
		{"meta.rank=4 title~=Prime", false},
		{"meta.missing=1", false},
	}
	for _, tc := range cases {
		q, err := search.Parse(tc.query)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.query, err)
		}
		if got := q.Matches(doc); got != tc.want {
			t.Fatalf("query %q: got %v want %v", tc.query, got, tc.want)
		}
	}
}
