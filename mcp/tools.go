package mcp

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/UOR-Foundation/uordb/api"
)

const toolPageSize = 16

// toolCatalog is the fixed tool surface, one tool per domain method.
// Order is stable so cursor pagination stays deterministic.
var toolCatalog = []api.ToolInfo{
	{
		Name:        "uor_resolve",
		Description: "Resolve a uor:// reference, following cross-namespace resolver records when the object lives elsewhere.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"reference":{"type":"string","description":"uor://namespace/type/id"},"namespace":{"type":"string","description":"Origin namespace, defaults to the session namespace"}},"required":["reference"]}`),
	},
	{
		Name:        "uor_create",
		Description: "Create an object in the session namespace. Requires authentication.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"type":{"type":"string"},"id":{"type":"string","description":"Generated when omitted"},"data":{"type":"object"}},"required":["type","data"]}`),
	},
	{
		Name:        "uor_update",
		Description: "Replace the data of an existing object in the session namespace. Requires authentication.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"reference":{"type":"string"},"data":{"type":"object"}},"required":["reference","data"]}`),
	},
	{
		Name:        "uor_delete",
		Description: "Delete an object from the session namespace. Requires authentication.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"reference":{"type":"string"}},"required":["reference"]}`),
	},
	{
		Name:        "uordb_list",
		Description: "List objects in a namespace with cursor pagination.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"namespace":{"type":"string"},"type":{"type":"string"},"cursor":{"type":"string"},"limit":{"type":"integer"}}}`),
	},
	{
		Name:        "uordb_search",
		Description: "Search object data. Terms: field=value, field^=prefix, field~=substring, or bare text.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"namespace":{"type":"string"},"type":{"type":"string"},"query":{"type":"string"},"limit":{"type":"integer"}},"required":["query"]}`),
	},
	{
		Name:        "uordb_status",
		Description: "Report server version, backend, object counts, and cache state.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
	},
	{
		Name:        "uordb_initialize",
		Description: "Initialize the session namespace. Requires authentication.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"namespace":{"type":"string"}}}`),
	},
}

func (g *Gateway) handleToolsList(params json.RawMessage) (any, *api.ErrorObject) {
	var p api.ListToolsParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, rpcError(api.CodeInvalidParams, "invalid tools/list params: %v", err)
		}
	}
	start := 0
	if p.Cursor != "" {
		parsed, err := strconv.Atoi(p.Cursor)
		if err != nil || parsed < 0 || parsed > len(toolCatalog) {
			return nil, rpcError(api.CodeInvalidParams, "invalid cursor %q", p.Cursor)
		}
		start = parsed
	}
	end := start + toolPageSize
	if end > len(toolCatalog) {
		end = len(toolCatalog)
	}
	result := &api.ListToolsResult{Tools: toolCatalog[start:end]}
	if end < len(toolCatalog) {
		cursor := strconv.Itoa(end)
		result.NextCursor = &cursor
	}
	return result, nil
}

// handleToolsCall runs one tool. Everything past a missing tool name
// is a tool-level failure: the JSON-RPC response succeeds and carries
// isError instead.
func (g *Gateway) handleToolsCall(ctx context.Context, sess *Session, params json.RawMessage) (any, *api.ErrorObject) {
	var p api.CallToolParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, rpcError(api.CodeInvalidParams, "invalid tools/call params: %v", err)
		}
	}
	if p.Name == "" {
		return nil, rpcError(api.CodeInvalidParams, "tool name required")
	}
	// Tools are also addressable by their JSON-RPC method names
	// (uor.resolve alongside uor_resolve).
	name := strings.ReplaceAll(p.Name, ".", "_")

	var result any
	var errObj *api.ErrorObject
	switch name {
	case "uor_resolve":
		result, errObj = g.handleResolve(ctx, sess, p.Arguments)
	case "uor_create":
		result, errObj = g.handleCreate(ctx, sess, p.Arguments)
	case "uor_update":
		result, errObj = g.handleUpdate(ctx, sess, p.Arguments)
	case "uor_delete":
		result, errObj = g.handleDelete(ctx, sess, p.Arguments)
	case "uordb_list":
		result, errObj = g.handleList(ctx, sess, p.Arguments)
	case "uordb_search":
		result, errObj = g.handleSearch(ctx, sess, p.Arguments)
	case "uordb_status":
		result, errObj = g.handleStatus(ctx)
	case "uordb_initialize":
		result, errObj = g.handleInitializeNamespace(ctx, sess, p.Arguments)
	default:
		return toolErrorResult("unknown_tool", "unknown tool "+p.Name, false), nil
	}
	if errObj != nil {
		return toolErrorFromRPC(errObj), nil
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return toolErrorResult("encode_failed", "failed to encode tool result", false), nil
	}
	return api.TextResult(string(encoded)), nil
}
