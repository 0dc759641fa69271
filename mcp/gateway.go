package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"pkt.systems/pslog"

	"github.com/UOR-Foundation/uordb/api"
	"github.com/UOR-Foundation/uordb/internal/clock"
	"github.com/UOR-Foundation/uordb/internal/resolver"
	"github.com/UOR-Foundation/uordb/internal/storage"
	"github.com/UOR-Foundation/uordb/internal/svcfields"
	"github.com/UOR-Foundation/uordb/internal/version"
)

// DefaultBatchConcurrency bounds parallel execution within one batch.
const DefaultBatchConcurrency = 8

// Config wires a Gateway to its collaborators.
type Config struct {
	Store    storage.Backend
	Resolver *resolver.Resolver
	Logger   pslog.Logger
	Clock    clock.Clock
	// ServerName and ServerVersion identify this side of the
	// initialize handshake.
	ServerName    string
	ServerVersion string
	// BackendName labels the storage backend in uordb.status.
	BackendName string
	// BatchConcurrency bounds parallel batch execution.
	BatchConcurrency int
	// MaxBodyBytes caps one HTTP request body. Zero means
	// MaxRequestBodySize.
	MaxBodyBytes int64
}

// Gateway executes JSON-RPC requests against the UOR domain.
type Gateway struct {
	store       storage.Backend
	resolver    *resolver.Resolver
	logger      pslog.Logger
	clk         clock.Clock
	serverInfo  api.Implementation
	backendName string
	concurrency int
	maxBody     int64
	sessions    *sessionStore
	startedAt   time.Time
}

// New constructs a Gateway from cfg.
func New(cfg Config) (*Gateway, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("mcp: store required")
	}
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("mcp: resolver required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	logger = svcfields.WithSubsystem(logger, svcfields.Subsystem("uordb", "mcp"))
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	name := cfg.ServerName
	if name == "" {
		name = "uordb"
	}
	ver := cfg.ServerVersion
	if ver == "" {
		ver = version.Version
	}
	concurrency := cfg.BatchConcurrency
	if concurrency <= 0 {
		concurrency = DefaultBatchConcurrency
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = MaxRequestBodySize
	}
	return &Gateway{
		store:       cfg.Store,
		resolver:    cfg.Resolver,
		logger:      logger,
		clk:         clk,
		serverInfo:  api.Implementation{Name: name, Version: ver},
		backendName: cfg.BackendName,
		concurrency: concurrency,
		maxBody:     maxBody,
		sessions:    newSessionStore(),
		startedAt:   clk.Now(),
	}, nil
}

// Handle executes one JSON-RPC payload, single request or batch, and
// returns the marshaled response. A nil result means the payload held
// only notifications and there is nothing to send.
func (g *Gateway) Handle(ctx context.Context, sess *Session, raw []byte) []byte {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return marshalResponse(errorResponse(nil, api.CodeInvalidRequest, "empty request body"))
	}
	if trimmed[0] != '[' {
		resp := g.dispatchRaw(ctx, sess, raw)
		if resp == nil {
			return nil
		}
		return marshalResponse(resp)
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil {
		return marshalResponse(errorResponse(nil, api.CodeParseError, "invalid JSON batch"))
	}
	if len(elements) == 0 {
		return marshalResponse(errorResponse(nil, api.CodeInvalidRequest, "empty batch"))
	}

	// Batch entries may run concurrently; responses keep request order
	// and notifications contribute nothing.
	slots := make([]*api.Response, len(elements))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(g.concurrency)
	for i, element := range elements {
		group.Go(func() error {
			slots[i] = g.dispatchRaw(groupCtx, sess, element)
			return nil
		})
	}
	_ = group.Wait()

	responses := make([]*api.Response, 0, len(slots))
	for _, resp := range slots {
		if resp != nil {
			responses = append(responses, resp)
		}
	}
	if len(responses) == 0 {
		return nil
	}
	encoded, err := json.Marshal(responses)
	if err != nil {
		g.logger.Error("mcp.batch.encode_failed", "error", err)
		return marshalResponse(errorResponse(nil, api.CodeInternalError, "failed to encode batch response"))
	}
	return encoded
}

// dispatchRaw decodes and executes one request. Nil means notification.
func (g *Gateway) dispatchRaw(ctx context.Context, sess *Session, raw []byte) *api.Response {
	var req api.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		if json.Valid(raw) {
			return errorResponse(nil, api.CodeInvalidRequest, "request must be a JSON object")
		}
		return errorResponse(nil, api.CodeParseError, "invalid JSON")
	}
	if !validRequestID(req.ID) {
		return errorResponse(nil, api.CodeInvalidRequest, "id must be a string, number or null")
	}
	if req.JSONRPC != api.JSONRPCVersion {
		return errorResponse(req.ID, api.CodeInvalidRequest, `jsonrpc must be "2.0"`)
	}
	if req.Method == "" {
		return errorResponse(req.ID, api.CodeInvalidRequest, "method required")
	}
	if !validParams(req.Params) {
		return errorResponse(req.ID, api.CodeInvalidRequest, "params must be an object")
	}
	return g.dispatch(ctx, sess, &req)
}

// validRequestID accepts an absent id or a JSON string, number or null.
func validRequestID(id json.RawMessage) bool {
	trimmed := bytes.TrimSpace(id)
	if len(trimmed) == 0 {
		return true
	}
	switch trimmed[0] {
	case '"', 'n', '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return true
	}
	return false
}

// validParams accepts absent or null params, otherwise an object.
func validParams(params json.RawMessage) bool {
	trimmed := bytes.TrimSpace(params)
	if len(trimmed) == 0 {
		return true
	}
	return trimmed[0] == '{' || trimmed[0] == 'n'
}

func (g *Gateway) dispatch(ctx context.Context, sess *Session, req *api.Request) (resp *api.Response) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("mcp.handler.panic", "method", req.Method, "panic", fmt.Sprint(r))
			if !req.IsNotification() {
				resp = errorResponse(req.ID, api.CodeInternalError, "internal error")
			}
		}
	}()

	method, known := ParseMethod(req.Method)
	if !known {
		if req.IsNotification() {
			g.logger.Debug("mcp.notification.unknown", "method", req.Method)
			return nil
		}
		return errorResponse(req.ID, api.CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
	if method != MethodInitialize && method != MethodInitialized && !sess.Initialized() {
		g.logger.Warn("mcp.session.uninitialized", "method", req.Method, "session", sess.ID)
	}

	var result any
	var rpcErr *api.ErrorObject
	switch method {
	case MethodInitialize:
		result, rpcErr = g.handleInitialize(sess, req.Params)
	case MethodInitialized:
		// Handshake completion notification, nothing to do.
		return nil
	case MethodPing:
		result = struct{}{}
	case MethodToolsList:
		result, rpcErr = g.handleToolsList(req.Params)
	case MethodToolsCall:
		result, rpcErr = g.handleToolsCall(ctx, sess, req.Params)
	case MethodResourcesList:
		result, rpcErr = g.handleResourcesList(ctx, sess, req.Params)
	case MethodResolve:
		result, rpcErr = g.handleResolve(ctx, sess, req.Params)
	case MethodCreate:
		result, rpcErr = g.handleCreate(ctx, sess, req.Params)
	case MethodUpdate:
		result, rpcErr = g.handleUpdate(ctx, sess, req.Params)
	case MethodDelete:
		result, rpcErr = g.handleDelete(ctx, sess, req.Params)
	case MethodList:
		result, rpcErr = g.handleList(ctx, sess, req.Params)
	case MethodSearch:
		result, rpcErr = g.handleSearch(ctx, sess, req.Params)
	case MethodStatus:
		result, rpcErr = g.handleStatus(ctx)
	case MethodInitializeNamespace:
		result, rpcErr = g.handleInitializeNamespace(ctx, sess, req.Params)
	}

	if req.IsNotification() {
		if rpcErr != nil {
			g.logger.Debug("mcp.notification.failed", "method", req.Method, "error", rpcErr.Message)
		}
		return nil
	}
	if rpcErr != nil {
		return &api.Response{JSONRPC: api.JSONRPCVersion, ID: req.ID, Error: rpcErr}
	}
	return &api.Response{JSONRPC: api.JSONRPCVersion, ID: req.ID, Result: result}
}

func errorResponse(id json.RawMessage, code int, message string) *api.Response {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return &api.Response{
		JSONRPC: api.JSONRPCVersion,
		ID:      id,
		Error:   &api.ErrorObject{Code: code, Message: message},
	}
}

func rpcError(code int, format string, args ...any) *api.ErrorObject {
	return &api.ErrorObject{Code: code, Message: fmt.Sprintf(format, args...)}
}

func marshalResponse(resp *api.Response) []byte {
	if len(resp.ID) == 0 {
		resp.ID = json.RawMessage("null")
	}
	encoded, err := json.Marshal(resp)
	if err != nil {
		return []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"failed to encode response"}}`)
	}
	return encoded
}
