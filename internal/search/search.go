// Package search evaluates uordb.search queries against object data
// in memory. A query is a whitespace-separated conjunction of terms:
//
//	field=value   exact match at a dot-delimited path
//	field^=text   prefix match
//	field~=text   substring match
//	text          substring match anywhere in the document
//
// All terms must match for a document to qualify.
package search

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type termKind int

const (
	termEq termKind = iota
	termPrefix
	termContains
	termAnywhere
)

type term struct {
	kind  termKind
	field string
	value string
}

// Query is a parsed search expression.
type Query struct {
	terms []term
}

// Parse compiles a query string. An empty query matches everything.
func Parse(raw string) (*Query, error) {
	q := &Query{}
	for _, token := range strings.Fields(raw) {
		switch {
		case strings.Contains(token, "^="):
			field, value, _ := strings.Cut(token, "^=")
			if field == "" || value == "" {
				return nil, fmt.Errorf("search: malformed term %q", token)
			}
			q.terms = append(q.terms, term{kind: termPrefix, field: field, value: value})
		case strings.Contains(token, "~="):
			field, value, _ := strings.Cut(token, "~=")
			if field == "" || value == "" {
				return nil, fmt.Errorf("search: malformed term %q", token)
			}
			q.terms = append(q.terms, term{kind: termContains, field: field, value: value})
		case strings.Contains(token, "="):
			field, value, _ := strings.Cut(token, "=")
			if field == "" {
				return nil, fmt.Errorf("search: malformed term %q", token)
			}
			q.terms = append(q.terms, term{kind: termEq, field: field, value: value})
		default:
			q.terms = append(q.terms, term{kind: termAnywhere, value: token})
		}
	}
	return q, nil
}

// Matches reports whether the JSON document satisfies every term.
func (q *Query) Matches(data json.RawMessage) bool {
	if len(q.terms) == 0 {
		return true
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return false
	}
	for _, t := range q.terms {
		if !matchTerm(t, doc) {
			return false
		}
	}
	return true
}

func matchTerm(t term, doc any) bool {
	if t.kind == termAnywhere {
		return containsAnywhere(doc, strings.ToLower(t.value))
	}
	value, ok := valueAtPath(doc, t.field)
	if !ok {
		return false
	}
	current, ok := valueToString(value)
	if !ok {
		return false
	}
	switch t.kind {
	case termEq:
		return current == t.value
	case termPrefix:
		return strings.HasPrefix(current, t.value)
	case termContains:
		return strings.Contains(current, t.value)
	}
	return false
}

func valueAtPath(doc any, path string) (any, bool) {
	current := doc
	for _, segment := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func valueToString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	case nil:
		return "null", true
	}
	return "", false
}

func containsAnywhere(doc any, needle string) bool {
	switch v := doc.(type) {
	case string:
		return strings.Contains(strings.ToLower(v), needle)
	case map[string]any:
		for key, value := range v {
			if strings.Contains(strings.ToLower(key), needle) || containsAnywhere(value, needle) {
				return true
			}
		}
	case []any:
		for _, item := range v {
			if containsAnywhere(item, needle) {
				return true
			}
		}
	case float64, bool:
		s, _ := valueToString(v)
		return strings.Contains(s, needle)
	}
	return false
}
