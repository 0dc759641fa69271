// Package resolver walks cross-namespace resolver records to locate
// objects outside the requesting namespace. Traversal is bounded by a
// depth limit and a timeout, detects cycles via a visited set, and
// feeds a chain-indexed cache so repeated lookups skip the walk.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
	"pkt.systems/pslog"

	"github.com/UOR-Foundation/uordb/internal/clock"
	"github.com/UOR-Foundation/uordb/internal/storage"
	"github.com/UOR-Foundation/uordb/internal/svcfields"
	"github.com/UOR-Foundation/uordb/uor"
)

const (
	// DefaultMaxDepth bounds the number of namespace hops.
	DefaultMaxDepth = 10
	// DefaultTimeout bounds one traversal end to end.
	DefaultTimeout = 5 * time.Second
	// DefaultCacheTTL is how long completed resolutions stay cached.
	DefaultCacheTTL = 5 * time.Minute

	policyCollection = "policy"
	policyID         = "access"
)

// Config wires a Resolver to its backend.
type Config struct {
	Store    storage.Backend
	Logger   pslog.Logger
	Clock    clock.Clock
	MaxDepth int
	Timeout  time.Duration
	CacheTTL time.Duration
}

// Resolution is the outcome of a successful resolve.
type Resolution struct {
	Object *uor.Object
	// Chain lists the namespaces visited, starting at the requester.
	Chain []string
	// ETag is the storage ETag of the resolved object.
	ETag string
	// FromCache marks results served without a traversal.
	FromCache bool
}

// Resolver resolves references across namespaces.
type Resolver struct {
	store    storage.Backend
	logger   pslog.Logger
	clk      clock.Clock
	maxDepth int
	timeout  time.Duration
	cache    *cache
	group    singleflight.Group
	metrics  *resolverMetrics
}

// New constructs a Resolver from cfg.
func New(cfg Config) (*Resolver, error) {
	if cfg.Store == nil {
		return nil, errors.New("resolver: store required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	logger = svcfields.WithSubsystem(logger, svcfields.Subsystem("uordb", "resolver"))
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	maxDepth := cfg.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = DefaultCacheTTL
	}
	return &Resolver{
		store:    cfg.Store,
		logger:   logger,
		clk:      clk,
		maxDepth: maxDepth,
		timeout:  timeout,
		cache:    newCache(clk, ttl),
		metrics:  newResolverMetrics(logger),
	}, nil
}

// Resolve locates ref on behalf of the from namespace. Identical
// concurrent lookups are coalesced into one traversal, and a caller's
// cancellation does not abort a traversal other callers may be
// waiting on.
func (r *Resolver) Resolve(ctx context.Context, from string, ref uor.Reference) (*Resolution, error) {
	key := cacheKey{from: from, reference: ref.String()}
	if cached, ok := r.cache.get(key); ok {
		r.metrics.recordCacheHit(ctx)
		hit := *cached
		hit.FromCache = true
		return &hit, nil
	}

	result, err, _ := r.group.Do(from+"\x00"+ref.String(), func() (any, error) {
		walkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		resolution, err := r.walk(walkCtx, from, ref)
		if err != nil {
			r.metrics.recordOutcome(ctx, outcomeLabel(err), 0)
			return nil, err
		}
		r.cache.put(key, resolution)
		r.metrics.recordOutcome(ctx, "ok", len(resolution.Chain)-1)
		return resolution, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Resolution), nil
}

func (r *Resolver) walk(ctx context.Context, from string, ref uor.Reference) (*Resolution, error) {
	current := from
	chain := []string{from}
	visited := map[string]struct{}{from: {}}

	for {
		if err := ctx.Err(); err != nil {
			return nil, mapTimeout(err)
		}
		if current == ref.Namespace {
			return r.finish(ctx, from, ref, chain)
		}
		if len(chain)-1 >= r.maxDepth {
			return nil, &DepthExceededError{MaxDepth: r.maxDepth, Chain: chain}
		}
		records, err := loadRecords(ctx, r.store, current)
		if err != nil {
			return nil, mapTimeout(err)
		}
		next, ok := nextHop(records, current, ref.Namespace)
		if !ok {
			return nil, fmt.Errorf("%w from %q toward %q", ErrNoPath, current, ref.Namespace)
		}
		if _, seen := visited[next]; seen {
			return nil, &CircularReferenceError{Chain: append(chain, next)}
		}
		visited[next] = struct{}{}
		chain = append(chain, next)
		current = next
	}
}

func (r *Resolver) finish(ctx context.Context, from string, ref uor.Reference, chain []string) (*Resolution, error) {
	if from != ref.Namespace {
		if err := r.checkAccess(ctx, from, ref.Namespace); err != nil {
			return nil, err
		}
	}
	got, err := r.store.Get(ctx, ref.Namespace, string(ref.Type), ref.ID)
	if err != nil {
		return nil, mapTimeout(err)
	}
	var obj uor.Object
	if err := json.Unmarshal(got.Body, &obj); err != nil {
		return nil, fmt.Errorf("resolver: decode %s: %w", ref, err)
	}
	r.logger.Debug("resolver.resolved",
		"reference", ref.String(), "from", from, "hops", len(chain)-1)
	return &Resolution{Object: &obj, Chain: chain, ETag: got.Info.ETag}, nil
}

type accessPolicy struct {
	Public bool     `json:"public"`
	Allow  []string `json:"allow,omitempty"`
}

// checkAccess consults the resolved namespace's access policy. A
// missing policy object means the namespace is public.
func (r *Resolver) checkAccess(ctx context.Context, from, namespace string) error {
	got, err := r.store.Get(ctx, namespace, policyCollection, policyID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return mapTimeout(err)
	}
	var policy accessPolicy
	if err := json.Unmarshal(got.Body, &policy); err != nil {
		return fmt.Errorf("resolver: decode access policy of %q: %w", namespace, err)
	}
	if policy.Public {
		return nil
	}
	for _, allowed := range policy.Allow {
		if allowed == from {
			return nil
		}
	}
	return &AccessDeniedError{Namespace: namespace, Requester: from}
}

// InvalidateNamespace drops every cached resolution whose chain
// touched the namespace. Call it after any mutation in the namespace.
func (r *Resolver) InvalidateNamespace(ctx context.Context, namespace string) int {
	dropped := r.cache.invalidateNamespace(namespace)
	if dropped > 0 {
		r.metrics.recordInvalidations(ctx, namespace, dropped)
		r.logger.Debug("resolver.cache.invalidated", "namespace", namespace, "entries", dropped)
	}
	return dropped
}

// CacheLen reports the number of live cache entries.
func (r *Resolver) CacheLen() int {
	return r.cache.len()
}

// WatchNamespace subscribes to backend change notifications for the
// namespace's resolver collection, invalidating the cache on every
// signal. Returns storage.ErrNotImplemented when the backend has no
// change feed.
func (r *Resolver) WatchNamespace(ctx context.Context, namespace string) (storage.ChangeSubscription, error) {
	feed, ok := r.store.(storage.ChangeFeed)
	if !ok {
		return nil, storage.ErrNotImplemented
	}
	sub, err := feed.SubscribeChanges(namespace, storage.ResolverCollection)
	if err != nil {
		return nil, err
	}
	go func() {
		for range sub.Events() {
			r.InvalidateNamespace(ctx, namespace)
		}
	}()
	return sub, nil
}

func mapTimeout(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrResolutionTimeout
	}
	return err
}

func outcomeLabel(err error) string {
	var cycle *CircularReferenceError
	var depth *DepthExceededError
	var denied *AccessDeniedError
	switch {
	case errors.As(err, &cycle):
		return "cycle"
	case errors.As(err, &depth):
		return "depth_exceeded"
	case errors.As(err, &denied):
		return "access_denied"
	case errors.Is(err, ErrNoPath):
		return "no_path"
	case errors.Is(err, ErrResolutionTimeout):
		return "timeout"
	case errors.Is(err, storage.ErrNotFound):
		return "not_found"
	}
	return "error"
}
