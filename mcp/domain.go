package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/UOR-Foundation/uordb/api"
	"github.com/UOR-Foundation/uordb/internal/resolver"
	"github.com/UOR-Foundation/uordb/internal/search"
	"github.com/UOR-Foundation/uordb/internal/storage"
	"github.com/UOR-Foundation/uordb/internal/version"
	"github.com/UOR-Foundation/uordb/namespaces"
	"github.com/UOR-Foundation/uordb/uor"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

func (g *Gateway) handleResolve(ctx context.Context, sess *Session, params json.RawMessage) (any, *api.ErrorObject) {
	var p api.ResolveParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, rpcError(api.CodeInvalidParams, "invalid resolve params: %v", err)
	}
	if p.Reference == "" {
		return nil, rpcError(api.CodeInvalidParams, "reference required")
	}
	ref, err := uor.ParseReference(p.Reference)
	if err != nil {
		return nil, rpcError(api.CodeInvalidParams, "%v", err)
	}
	from, err := namespaces.Normalize(p.Namespace, sess.Namespace)
	if err != nil {
		return nil, rpcError(api.CodeInvalidParams, "%v", err)
	}
	res, err := g.resolver.Resolve(ctx, from, ref)
	if err != nil {
		return nil, domainError(err)
	}
	if err := uor.VerifyCoherence(res.Object); err != nil {
		g.logger.Warn("mcp.resolve.incoherent", "reference", ref.String(), "error", err)
		return nil, domainError(err)
	}
	return &api.ResolveResult{
		Reference: ref.String(),
		Namespace: res.Object.Namespace,
		Type:      string(res.Object.Type),
		ID:        res.Object.ID,
		Data:      res.Object.Data,
		Canonical: res.Object.CanonicalRepresentation,
		Chain:     res.Chain,
		FromCache: res.FromCache,
	}, nil
}

func (g *Gateway) handleCreate(ctx context.Context, sess *Session, params json.RawMessage) (any, *api.ErrorObject) {
	if !sess.Authenticated {
		return nil, rpcError(api.CodeAuthenticationRequired, "authentication required for writes")
	}
	var p api.CreateParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, rpcError(api.CodeInvalidParams, "invalid create params: %v", err)
	}
	if errObj := requireOwnNamespace(sess, p.Namespace); errObj != nil {
		return nil, errObj
	}
	id := p.ID
	if id == "" {
		id = xid.New().String()
	}
	obj := &uor.Object{
		ID:        id,
		Type:      uor.Type(p.Type),
		Namespace: sess.Namespace,
		Data:      p.Data,
	}
	if err := obj.Validate(); err != nil {
		return nil, rpcError(api.CodeInvalidParams, "%v", err)
	}
	if obj.Type == uor.TypeResolver {
		var record resolver.Record
		if err := json.Unmarshal(obj.Data, &record); err != nil {
			return nil, rpcError(api.CodeInvalidParams, "invalid resolver record: %v", err)
		}
		if record.ID == "" {
			record.ID = obj.ID
		}
		if err := record.Validate(); err != nil {
			return nil, rpcError(api.CodeInvalidParams, "%v", err)
		}
		if record.Source != sess.Namespace {
			return nil, rpcError(api.CodeInvalidParams, "resolver record source %q must match namespace %q", record.Source, sess.Namespace)
		}
	}
	if err := uor.Attach(obj); err != nil {
		return nil, rpcError(api.CodeInvalidParams, "%v", err)
	}
	body, err := json.Marshal(obj)
	if err != nil {
		return nil, rpcError(api.CodeInternalError, "encode object: %v", err)
	}
	if _, err := g.store.Put(ctx, obj.Namespace, string(obj.Type), obj.ID, body, storage.PutOptions{IfNotExists: true}); err != nil {
		if errors.Is(err, storage.ErrCASMismatch) {
			return nil, rpcError(api.CodeInvalidParams, "object %s already exists", obj.Reference())
		}
		return nil, domainError(err)
	}
	g.afterMutation(ctx, obj.Namespace)
	return &api.CreateResult{
		Reference: obj.Reference().String(),
		Canonical: obj.CanonicalRepresentation,
	}, nil
}

func (g *Gateway) handleUpdate(ctx context.Context, sess *Session, params json.RawMessage) (any, *api.ErrorObject) {
	if !sess.Authenticated {
		return nil, rpcError(api.CodeAuthenticationRequired, "authentication required for writes")
	}
	var p api.UpdateParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, rpcError(api.CodeInvalidParams, "invalid update params: %v", err)
	}
	if p.Reference == "" {
		return nil, rpcError(api.CodeInvalidParams, "reference required")
	}
	ref, err := uor.ParseReference(p.Reference)
	if err != nil {
		return nil, rpcError(api.CodeInvalidParams, "%v", err)
	}
	if errObj := requireOwnNamespace(sess, ref.Namespace); errObj != nil {
		return nil, errObj
	}
	got, err := g.store.Get(ctx, ref.Namespace, string(ref.Type), ref.ID)
	if err != nil {
		return nil, domainError(err)
	}
	var obj uor.Object
	if err := json.Unmarshal(got.Body, &obj); err != nil {
		return nil, rpcError(api.CodeInternalError, "decode stored object: %v", err)
	}
	obj.Data = p.Data
	if err := uor.Attach(&obj); err != nil {
		return nil, rpcError(api.CodeInvalidParams, "%v", err)
	}
	body, err := json.Marshal(&obj)
	if err != nil {
		return nil, rpcError(api.CodeInternalError, "encode object: %v", err)
	}
	if _, err := g.store.Put(ctx, ref.Namespace, string(ref.Type), ref.ID, body, storage.PutOptions{ExpectedETag: got.Info.ETag}); err != nil {
		if errors.Is(err, storage.ErrCASMismatch) {
			return nil, rpcError(api.CodeInternalError, "concurrent update of %s lost the race", ref)
		}
		return nil, domainError(err)
	}
	g.afterMutation(ctx, ref.Namespace)
	return &api.UpdateResult{
		Reference: ref.String(),
		Canonical: obj.CanonicalRepresentation,
	}, nil
}

// handleDelete is idempotent: deleting an absent object succeeds with
// deleted=false.
func (g *Gateway) handleDelete(ctx context.Context, sess *Session, params json.RawMessage) (any, *api.ErrorObject) {
	if !sess.Authenticated {
		return nil, rpcError(api.CodeAuthenticationRequired, "authentication required for writes")
	}
	var p api.DeleteParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, rpcError(api.CodeInvalidParams, "invalid delete params: %v", err)
	}
	if p.Reference == "" {
		return nil, rpcError(api.CodeInvalidParams, "reference required")
	}
	ref, err := uor.ParseReference(p.Reference)
	if err != nil {
		return nil, rpcError(api.CodeInvalidParams, "%v", err)
	}
	if errObj := requireOwnNamespace(sess, ref.Namespace); errObj != nil {
		return nil, errObj
	}
	deleted := true
	if err := g.store.Delete(ctx, ref.Namespace, string(ref.Type), ref.ID, storage.DeleteOptions{}); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, domainError(err)
		}
		deleted = false
	}
	if deleted {
		g.afterMutation(ctx, ref.Namespace)
	}
	return &api.DeleteResult{Reference: ref.String(), Deleted: deleted}, nil
}

func (g *Gateway) handleList(ctx context.Context, sess *Session, params json.RawMessage) (any, *api.ErrorObject) {
	var p api.ListParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, rpcError(api.CodeInvalidParams, "invalid list params: %v", err)
		}
	}
	ns, err := namespaces.Normalize(p.Namespace, sess.Namespace)
	if err != nil {
		return nil, rpcError(api.CodeInvalidParams, "%v", err)
	}
	limit := clampLimit(p.Limit)
	listing, err := g.store.List(ctx, ns, storage.ListOptions{
		Collection: p.Type,
		StartAfter: p.Cursor,
		Limit:      limit,
	})
	if err != nil {
		return nil, domainError(err)
	}
	result := &api.ListResult{Objects: make([]api.ObjectSummary, 0, len(listing.Objects))}
	for _, info := range listing.Objects {
		result.Objects = append(result.Objects, summaryOf(info))
	}
	if listing.Truncated {
		cursor := listing.NextStartAfter
		result.NextCursor = &cursor
	}
	return result, nil
}

func (g *Gateway) handleSearch(ctx context.Context, sess *Session, params json.RawMessage) (any, *api.ErrorObject) {
	var p api.SearchParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, rpcError(api.CodeInvalidParams, "invalid search params: %v", err)
	}
	query, err := search.Parse(p.Query)
	if err != nil {
		return nil, rpcError(api.CodeInvalidParams, "%v", err)
	}
	ns, err := namespaces.Normalize(p.Namespace, sess.Namespace)
	if err != nil {
		return nil, rpcError(api.CodeInvalidParams, "%v", err)
	}
	limit := clampLimit(p.Limit)

	result := &api.SearchResult{Objects: []api.ObjectSummary{}}
	cursor := ""
	for {
		listing, err := g.store.List(ctx, ns, storage.ListOptions{
			Collection: p.Type,
			StartAfter: cursor,
			Limit:      maxListLimit,
		})
		if err != nil {
			return nil, domainError(err)
		}
		for _, info := range listing.Objects {
			if info.Collection == storage.ResolverCollection {
				continue
			}
			got, err := g.store.Get(ctx, ns, info.Collection, info.ID)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					continue
				}
				return nil, domainError(err)
			}
			var obj uor.Object
			if err := json.Unmarshal(got.Body, &obj); err != nil {
				continue
			}
			if !query.Matches(obj.Data) {
				continue
			}
			result.Total++
			if len(result.Objects) < limit {
				result.Objects = append(result.Objects, summaryOf(info))
			}
		}
		if !listing.Truncated {
			return result, nil
		}
		cursor = listing.NextStartAfter
	}
}

func (g *Gateway) handleStatus(ctx context.Context) (any, *api.ErrorObject) {
	status := &api.StatusResult{
		Version:         version.Version,
		ProtocolVersion: api.ProtocolVersion,
		Backend:         g.backendName,
		CacheEntries:    g.resolver.CacheLen(),
		Uptime:          g.clk.Now().Sub(g.startedAt).Truncate(time.Second).String(),
	}
	if lister, ok := g.store.(storage.NamespaceLister); ok {
		names, err := lister.ListNamespaces(ctx)
		if err != nil {
			return nil, domainError(err)
		}
		status.Namespaces = len(names)
		for _, ns := range names {
			cursor := ""
			for {
				listing, err := g.store.List(ctx, ns, storage.ListOptions{StartAfter: cursor, Limit: maxListLimit})
				if err != nil {
					return nil, domainError(err)
				}
				status.Objects += len(listing.Objects)
				if !listing.Truncated {
					break
				}
				cursor = listing.NextStartAfter
			}
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		status.HostMemoryUsed = vm.Used
		status.HostMemoryTotal = vm.Total
	}
	return status, nil
}

func (g *Gateway) handleInitializeNamespace(ctx context.Context, sess *Session, params json.RawMessage) (any, *api.ErrorObject) {
	if !sess.Authenticated {
		return nil, rpcError(api.CodeAuthenticationRequired, "authentication required for writes")
	}
	var p api.InitializeNamespaceParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, rpcError(api.CodeInvalidParams, "invalid initialize params: %v", err)
		}
	}
	if errObj := requireOwnNamespace(sess, p.Namespace); errObj != nil {
		return nil, errObj
	}
	identity := &uor.Object{
		ID:        "self",
		Type:      uor.TypeIdentity,
		Namespace: sess.Namespace,
		Data:      json.RawMessage(fmt.Sprintf(`{"namespace":%q}`, sess.Namespace)),
	}
	if err := uor.Attach(identity); err != nil {
		return nil, rpcError(api.CodeInternalError, "%v", err)
	}
	body, err := json.Marshal(identity)
	if err != nil {
		return nil, rpcError(api.CodeInternalError, "encode identity: %v", err)
	}
	created := true
	if _, err := g.store.Put(ctx, sess.Namespace, string(uor.TypeIdentity), "self", body, storage.PutOptions{IfNotExists: true}); err != nil {
		if !errors.Is(err, storage.ErrCASMismatch) {
			return nil, domainError(err)
		}
		created = false
	}
	if created {
		g.afterMutation(ctx, sess.Namespace)
	}
	return &api.InitializeNamespaceResult{Namespace: sess.Namespace, Created: created}, nil
}

// afterMutation drops cached resolutions whose chains touch the
// mutated namespace.
func (g *Gateway) afterMutation(ctx context.Context, namespace string) {
	g.resolver.InvalidateNamespace(ctx, namespace)
}

func requireOwnNamespace(sess *Session, requested string) *api.ErrorObject {
	if requested != "" && requested != sess.Namespace {
		return rpcError(api.CodeInvalidParams, "writes are limited to namespace %q", sess.Namespace)
	}
	return nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	}
	return limit
}

func summaryOf(info storage.ObjectInfo) api.ObjectSummary {
	ref := uor.Reference{Namespace: info.Namespace, Type: uor.Type(info.Collection), ID: info.ID}
	return api.ObjectSummary{
		Reference: ref.String(),
		Namespace: info.Namespace,
		Type:      info.Collection,
		ID:        info.ID,
	}
}

// domainError maps storage, resolver, and coherence failures onto
// JSON-RPC error objects with a machine-readable kind in data.
func domainError(err error) *api.ErrorObject {
	var cycle *resolver.CircularReferenceError
	var depth *resolver.DepthExceededError
	var denied *resolver.AccessDeniedError
	var coherence *uor.CoherenceError
	switch {
	case errors.As(err, &cycle):
		return &api.ErrorObject{
			Code:    api.CodeInternalError,
			Message: err.Error(),
			Data:    map[string]any{"kind": "circular_reference", "chain": cycle.Chain},
		}
	case errors.As(err, &depth):
		return &api.ErrorObject{
			Code:    api.CodeInternalError,
			Message: err.Error(),
			Data:    map[string]any{"kind": "resolution_depth_exceeded", "maxDepth": depth.MaxDepth, "chain": depth.Chain},
		}
	case errors.As(err, &denied):
		return &api.ErrorObject{
			Code:    api.CodeInternalError,
			Message: err.Error(),
			Data:    map[string]any{"kind": "access_denied", "namespace": denied.Namespace},
		}
	case errors.As(err, &coherence):
		return &api.ErrorObject{
			Code:    api.CodeInternalError,
			Message: err.Error(),
			Data:    map[string]any{"kind": "coherence_violation", "reference": coherence.Reference.String()},
		}
	case errors.Is(err, resolver.ErrNoPath):
		return &api.ErrorObject{
			Code:    api.CodeInternalError,
			Message: err.Error(),
			Data:    map[string]any{"kind": "no_resolution_path"},
		}
	case errors.Is(err, resolver.ErrResolutionTimeout):
		return &api.ErrorObject{
			Code:    api.CodeInternalError,
			Message: err.Error(),
			Data:    map[string]any{"kind": "resolution_timeout"},
		}
	case errors.Is(err, storage.ErrNotFound):
		return &api.ErrorObject{
			Code:    api.CodeInternalError,
			Message: "object not found",
			Data:    map[string]any{"kind": "not_found"},
		}
	}
	return &api.ErrorObject{
		Code:    api.CodeInternalError,
		Message: err.Error(),
		Data:    map[string]any{"kind": "store_error", "retryable": storage.IsTransient(err)},
	}
}
