package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/UOR-Foundation/uordb/internal/storage"
	"github.com/UOR-Foundation/uordb/uor"
)

// Record is one cross-namespace resolver edge, stored in the resolver
// collection of its source namespace. A bidirectional record may also
// be traversed from target back to source.
type Record struct {
	ID               string `json:"id"`
	Source           string `json:"source"`
	Target           string `json:"target"`
	Bidirectional    bool   `json:"bidirectional,omitempty"`
	ResolutionMethod string `json:"resolutionMethod,omitempty"`
}

// Validate reports whether the record is well formed.
func (r *Record) Validate() error {
	if r.Source == "" || r.Target == "" {
		return fmt.Errorf("resolver: record %q needs source and target namespaces", r.ID)
	}
	if r.Source == r.Target {
		return fmt.Errorf("resolver: record %q links a namespace to itself", r.ID)
	}
	return nil
}

// loadRecords reads all resolver records of one namespace in id order.
// Records are persisted as full object envelopes; the record fields
// live in the envelope's data.
func loadRecords(ctx context.Context, store storage.Backend, namespace string) ([]Record, error) {
	listing, err := store.List(ctx, namespace, storage.ListOptions{Collection: storage.ResolverCollection})
	if err != nil {
		return nil, fmt.Errorf("resolver: list records in %q: %w", namespace, err)
	}
	records := make([]Record, 0, len(listing.Objects))
	for _, info := range listing.Objects {
		got, err := store.Get(ctx, namespace, storage.ResolverCollection, info.ID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("resolver: load record %q: %w", info.ID, err)
		}
		var obj uor.Object
		if err := json.Unmarshal(got.Body, &obj); err != nil {
			return nil, fmt.Errorf("resolver: decode record %q: %w", info.ID, err)
		}
		var record Record
		if len(obj.Data) > 0 {
			if err := json.Unmarshal(obj.Data, &record); err != nil {
				return nil, fmt.Errorf("resolver: decode record %q: %w", info.ID, err)
			}
		}
		if record.ID == "" {
			record.ID = obj.ID
		}
		if record.ID == "" {
			record.ID = info.ID
		}
		if err := record.Validate(); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

// nextHop picks the record to follow from current toward the wanted
// namespace. A record targeting wanted directly wins; otherwise the
// first traversable record in id order is taken.
func nextHop(records []Record, current, wanted string) (string, bool) {
	type edge struct {
		to string
	}
	var first *edge
	for i := range records {
		record := records[i]
		var to string
		switch {
		case record.Source == current:
			to = record.Target
		case record.Bidirectional && record.Target == current:
			to = record.Source
		default:
			continue
		}
		if to == wanted {
			return to, true
		}
		if first == nil {
			first = &edge{to: to}
		}
	}
	if first != nil {
		return first.to, true
	}
	return "", false
}
