package resolver_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/UOR-Foundation/uordb/internal/clock"
	"github.com/UOR-Foundation/uordb/internal/resolver"
	"github.com/UOR-Foundation/uordb/internal/storage"
	"github.com/UOR-Foundation/uordb/internal/storage/memory"
	"github.com/UOR-Foundation/uordb/uor"
)

// countingBackend tallies reads so tests can assert whether a resolve
// hit the backend or the cache.
type countingBackend struct {
	storage.Backend
	gets  atomic.Int64
	lists atomic.Int64
}

func (c *countingBackend) Get(ctx context.Context, namespace, collection, id string) (storage.GetResult, error) {
	c.gets.Add(1)
	return c.Backend.Get(ctx, namespace, collection, id)
}

func (c *countingBackend) List(ctx context.Context, namespace string, opts storage.ListOptions) (storage.ListResult, error) {
	c.lists.Add(1)
	return c.Backend.List(ctx, namespace, opts)
}

func putObjectT(t *testing.T, store storage.Backend, namespace string, typ uor.Type, id, data string) {
	t.Helper()
	obj := &uor.Object{ID: id, Type: typ, Namespace: namespace, Data: json.RawMessage(data)}
	if err := uor.Attach(obj); err != nil {
		t.Fatalf("attach: %v", err)
	}
	body, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := store.Put(context.Background(), namespace, string(typ), id, body, storage.PutOptions{}); err != nil {
		t.Fatalf("put %s/%s/%s: %v", namespace, typ, id, err)
	}
}

func putRecordT(t *testing.T, store storage.Backend, record resolver.Record) {
	t.Helper()
	data, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("marshal record: %v", err)
	}
	obj := &uor.Object{ID: record.ID, Type: uor.TypeResolver, Namespace: record.Source, Data: data}
	if err := uor.Attach(obj); err != nil {
		t.Fatalf("attach record: %v", err)
	}
	body, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshal record envelope: %v", err)
	}
	if _, err := store.Put(context.Background(), record.Source, storage.ResolverCollection, record.ID, body, storage.PutOptions{}); err != nil {
		t.Fatalf("put record %s: %v", record.ID, err)
	}
}

func newResolverT(t *testing.T, cfg resolver.Config) *resolver.Resolver {
	t.Helper()
	r, err := resolver.New(cfg)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	return r
}

func TestResolveWithinOwnNamespaceSkipsRecords(t *testing.T) {
	ctx := context.Background()
	backend := &countingBackend{Backend: memory.New()}
	putObjectT(t, backend, "alice", uor.TypeConcept, "prime", `{"n":7}`)
	r := newResolverT(t, resolver.Config{Store: backend, CacheTTL: -1})

	backend.lists.Store(0)
	res, err := r.Resolve(ctx, "alice", uor.Reference{Namespace: "alice", Type: uor.TypeConcept, ID: "prime"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(res.Chain) != 1 || res.Chain[0] != "alice" {
		t.Fatalf("unexpected chain %v", res.Chain)
	}
	if backend.lists.Load() != 0 {
		t.Fatalf("expected no resolver record listings, got %d", backend.lists.Load())
	}
	if res.Object.ID != "prime" || res.FromCache {
		t.Fatalf("unexpected resolution %+v", res)
	}
}

func TestResolveFollowsRecordChain(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	putObjectT(t, backend, "carol", uor.TypeConcept, "prime", `{"n":7}`)
	putRecordT(t, backend, resolver.Record{ID: "to-bob", Source: "alice", Target: "bob"})
	putRecordT(t, backend, resolver.Record{ID: "to-carol", Source: "bob", Target: "carol"})
	r := newResolverT(t, resolver.Config{Store: backend, CacheTTL: -1})

	ref := uor.Reference{Namespace: "carol", Type: uor.TypeConcept, ID: "prime"}
	res, err := r.Resolve(ctx, "alice", ref)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := []string{"alice", "bob", "carol"}
	if len(res.Chain) != len(want) {
		t.Fatalf("unexpected chain %v", res.Chain)
	}
	for i := range want {
		if res.Chain[i] != want[i] {
			t.Fatalf("unexpected chain %v", res.Chain)
		}
	}

	if err := backend.Delete(ctx, "bob", storage.ResolverCollection, "to-carol", storage.DeleteOptions{}); err != nil {
		t.Fatalf("delete record: %v", err)
	}
	if _, err := r.Resolve(ctx, "alice", ref); !errors.Is(err, resolver.ErrNoPath) {
		t.Fatalf("expected no-path error after record removal, got %v", err)
	}
}

func TestResolvePrefersDirectTarget(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	putObjectT(t, backend, "carol", uor.TypeConcept, "prime", `{"n":7}`)
	// The detour record sorts first; the direct record must still win.
	putRecordT(t, backend, resolver.Record{ID: "a-detour", Source: "alice", Target: "bob"})
	putRecordT(t, backend, resolver.Record{ID: "z-direct", Source: "alice", Target: "carol"})
	r := newResolverT(t, resolver.Config{Store: backend, CacheTTL: -1})

	res, err := r.Resolve(ctx, "alice", uor.Reference{Namespace: "carol", Type: uor.TypeConcept, ID: "prime"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(res.Chain) != 2 || res.Chain[1] != "carol" {
		t.Fatalf("expected direct hop, got chain %v", res.Chain)
	}
}

func TestResolveTraversesBidirectionalRecordBackwards(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	putObjectT(t, backend, "alice", uor.TypeConcept, "prime", `{"n":7}`)
	// Only alice holds the record; bob reaches her through the
	// bidirectional flag. The record must be readable from bob's walk,
	// so it is stored under both source listing and mirrored here via
	// bob's own collection.
	putRecordT(t, backend, resolver.Record{ID: "pair", Source: "alice", Target: "bob", Bidirectional: true})
	mirror := resolver.Record{ID: "pair", Source: "alice", Target: "bob", Bidirectional: true}
	data, err := json.Marshal(mirror)
	if err != nil {
		t.Fatalf("marshal mirror record: %v", err)
	}
	mirrorObj := &uor.Object{ID: mirror.ID, Type: uor.TypeResolver, Namespace: "bob", Data: data}
	if err := uor.Attach(mirrorObj); err != nil {
		t.Fatalf("attach mirror record: %v", err)
	}
	body, err := json.Marshal(mirrorObj)
	if err != nil {
		t.Fatalf("marshal mirror record envelope: %v", err)
	}
	if _, err := backend.Put(ctx, "bob", storage.ResolverCollection, "pair", body, storage.PutOptions{}); err != nil {
		t.Fatalf("mirror record: %v", err)
	}
	r := newResolverT(t, resolver.Config{Store: backend, CacheTTL: -1})

	res, err := r.Resolve(ctx, "bob", uor.Reference{Namespace: "alice", Type: uor.TypeConcept, ID: "prime"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(res.Chain) != 2 || res.Chain[1] != "alice" {
		t.Fatalf("unexpected chain %v", res.Chain)
	}
}

func TestResolveDetectsCycle(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	putRecordT(t, backend, resolver.Record{ID: "to-bob", Source: "alice", Target: "bob"})
	putRecordT(t, backend, resolver.Record{ID: "to-alice", Source: "bob", Target: "alice"})
	r := newResolverT(t, resolver.Config{Store: backend, CacheTTL: -1})

	_, err := r.Resolve(ctx, "alice", uor.Reference{Namespace: "carol", Type: uor.TypeConcept, ID: "x"})
	var cycle *resolver.CircularReferenceError
	if !errors.As(err, &cycle) {
		t.Fatalf("expected circular reference error, got %v", err)
	}
	want := []string{"alice", "bob", "alice"}
	if len(cycle.Chain) != len(want) {
		t.Fatalf("unexpected cycle chain %v", cycle.Chain)
	}
	for i := range want {
		if cycle.Chain[i] != want[i] {
			t.Fatalf("unexpected cycle chain %v", cycle.Chain)
		}
	}
}

func TestResolveDepthBoundIsExact(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	putObjectT(t, backend, "n2", uor.TypeConcept, "x", `{}`)
	putObjectT(t, backend, "n3", uor.TypeConcept, "x", `{}`)
	putRecordT(t, backend, resolver.Record{ID: "r1", Source: "n0", Target: "n1"})
	putRecordT(t, backend, resolver.Record{ID: "r2", Source: "n1", Target: "n2"})
	putRecordT(t, backend, resolver.Record{ID: "r3", Source: "n2", Target: "n3"})
	r := newResolverT(t, resolver.Config{Store: backend, MaxDepth: 2, CacheTTL: -1})

	// Exactly two hops: allowed.
	if _, err := r.Resolve(ctx, "n0", uor.Reference{Namespace: "n2", Type: uor.TypeConcept, ID: "x"}); err != nil {
		t.Fatalf("resolve at depth limit: %v", err)
	}
	// Three hops: rejected.
	_, err := r.Resolve(ctx, "n0", uor.Reference{Namespace: "n3", Type: uor.TypeConcept, ID: "x"})
	var depth *resolver.DepthExceededError
	if !errors.As(err, &depth) {
		t.Fatalf("expected depth exceeded, got %v", err)
	}
	if depth.MaxDepth != 2 {
		t.Fatalf("unexpected max depth %d", depth.MaxDepth)
	}
}

func TestResolveCachesAndInvalidatesByChain(t *testing.T) {
	ctx := context.Background()
	backend := &countingBackend{Backend: memory.New()}
	putObjectT(t, backend, "carol", uor.TypeConcept, "prime", `{"n":7}`)
	putRecordT(t, backend, resolver.Record{ID: "to-bob", Source: "alice", Target: "bob"})
	putRecordT(t, backend, resolver.Record{ID: "to-carol", Source: "bob", Target: "carol"})
	manual := clock.NewManual(time.Unix(1700000000, 0))
	r := newResolverT(t, resolver.Config{Store: backend, Clock: manual, CacheTTL: time.Minute})

	ref := uor.Reference{Namespace: "carol", Type: uor.TypeConcept, ID: "prime"}
	if _, err := r.Resolve(ctx, "alice", ref); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	listsAfterFirst := backend.lists.Load()

	res, err := r.Resolve(ctx, "alice", ref)
	if err != nil {
		t.Fatalf("cached resolve: %v", err)
	}
	if !res.FromCache {
		t.Fatalf("expected cache hit")
	}
	if backend.lists.Load() != listsAfterFirst {
		t.Fatalf("cache hit still touched the backend")
	}
	if r.CacheLen() != 1 {
		t.Fatalf("expected one cache entry, got %d", r.CacheLen())
	}

	// A mutation in any chain namespace drops the entry.
	if dropped := r.InvalidateNamespace(ctx, "bob"); dropped != 1 {
		t.Fatalf("expected one dropped entry, got %d", dropped)
	}
	res, err = r.Resolve(ctx, "alice", ref)
	if err != nil {
		t.Fatalf("resolve after invalidation: %v", err)
	}
	if res.FromCache || backend.lists.Load() == listsAfterFirst {
		t.Fatalf("expected fresh traversal after invalidation")
	}

	// Entries also lapse with the clock.
	manual.Advance(2 * time.Minute)
	res, err = r.Resolve(ctx, "alice", ref)
	if err != nil {
		t.Fatalf("resolve after expiry: %v", err)
	}
	if res.FromCache {
		t.Fatalf("expected expired entry to be refetched")
	}
}

func TestResolveHonorsAccessPolicy(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	putObjectT(t, backend, "carol", uor.TypeConcept, "prime", `{"n":7}`)
	putRecordT(t, backend, resolver.Record{ID: "a", Source: "alice", Target: "carol"})
	putRecordT(t, backend, resolver.Record{ID: "b", Source: "bob", Target: "carol"})
	policy := []byte(`{"public":false,"allow":["bob"]}`)
	if _, err := backend.Put(ctx, "carol", "policy", "access", policy, storage.PutOptions{}); err != nil {
		t.Fatalf("put policy: %v", err)
	}
	r := newResolverT(t, resolver.Config{Store: backend, CacheTTL: -1})

	ref := uor.Reference{Namespace: "carol", Type: uor.TypeConcept, ID: "prime"}
	_, err := r.Resolve(ctx, "alice", ref)
	var denied *resolver.AccessDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected access denied for alice, got %v", err)
	}
	if denied.Namespace != "carol" || denied.Requester != "alice" {
		t.Fatalf("unexpected denial %+v", denied)
	}
	if _, err := r.Resolve(ctx, "bob", ref); err != nil {
		t.Fatalf("expected bob to pass the policy: %v", err)
	}
	// The owner is never subject to their own policy.
	if _, err := r.Resolve(ctx, "carol", ref); err != nil {
		t.Fatalf("owner resolve: %v", err)
	}
}

// stalledBackend blocks reads until the caller's context expires.
type stalledBackend struct {
	storage.Backend
}

func (s *stalledBackend) List(ctx context.Context, namespace string, opts storage.ListOptions) (storage.ListResult, error) {
	<-ctx.Done()
	return storage.ListResult{}, ctx.Err()
}

func TestResolveTimesOut(t *testing.T) {
	ctx := context.Background()
	backend := &stalledBackend{Backend: memory.New()}
	r := newResolverT(t, resolver.Config{Store: backend, Timeout: 20 * time.Millisecond, CacheTTL: -1})

	_, err := r.Resolve(ctx, "alice", uor.Reference{Namespace: "bob", Type: uor.TypeConcept, ID: "x"})
	if !errors.Is(err, resolver.ErrResolutionTimeout) {
		t.Fatalf("expected resolution timeout, got %v", err)
	}
}

func TestResolveSurvivesCallerCancellation(t *testing.T) {
	backend := memory.New()
	putObjectT(t, backend, "carol", uor.TypeConcept, "prime", `{"n":7}`)
	putRecordT(t, backend, resolver.Record{ID: "to-carol", Source: "alice", Target: "carol"})
	r := newResolverT(t, resolver.Config{Store: backend, CacheTTL: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := r.Resolve(ctx, "alice", uor.Reference{Namespace: "carol", Type: uor.TypeConcept, ID: "prime"})
	if err != nil {
		t.Fatalf("resolve with cancelled caller: %v", err)
	}
	if res.Object.ID != "prime" {
		t.Fatalf("unexpected object %+v", res.Object)
	}
	if r.CacheLen() != 1 {
		t.Fatalf("expected traversal to populate the cache")
	}
}

// gatedBackend blocks the first record listing until released so
// concurrent lookups pile up behind one traversal.
type gatedBackend struct {
	storage.Backend
	release chan struct{}
	started chan struct{}
	once    sync.Once
	lists   atomic.Int64
}

func (g *gatedBackend) List(ctx context.Context, namespace string, opts storage.ListOptions) (storage.ListResult, error) {
	g.lists.Add(1)
	g.once.Do(func() {
		close(g.started)
		<-g.release
	})
	return g.Backend.List(ctx, namespace, opts)
}

func TestResolveCoalescesConcurrentLookups(t *testing.T) {
	inner := memory.New()
	putObjectT(t, inner, "bob", uor.TypeConcept, "x", `{}`)
	putRecordT(t, inner, resolver.Record{ID: "to-bob", Source: "alice", Target: "bob"})
	backend := &gatedBackend{
		Backend: inner,
		release: make(chan struct{}),
		started: make(chan struct{}),
	}
	r := newResolverT(t, resolver.Config{Store: backend, CacheTTL: -1})

	ref := uor.Reference{Namespace: "bob", Type: uor.TypeConcept, ID: "x"}
	const callers = 4
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = r.Resolve(context.Background(), "alice", ref)
		}(i)
	}
	<-backend.started
	// Give the remaining callers time to join the in-flight lookup.
	time.Sleep(50 * time.Millisecond)
	close(backend.release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	if got := backend.lists.Load(); got != 1 {
		t.Fatalf("expected one coalesced traversal, got %d listings", got)
	}
}
