// Package api defines the JSON-RPC 2.0 envelope and the MCP protocol
// types carried over it, together with the request and result shapes of
// the uor.* and uordb.* methods.
package api

import "encoding/json"

// JSONRPCVersion is the only protocol version accepted in envelopes.
const JSONRPCVersion = "2.0"

// Request is a single JSON-RPC 2.0 request or notification. A request
// with a nil ID is a notification and produces no response.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request carries no id. A JSON null
// id counts as absent.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

// Response is a JSON-RPC 2.0 response. Exactly one of Result and Error
// is populated.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// ErrorObject is the JSON-RPC 2.0 error member.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *ErrorObject) Error() string { return e.Message }

// JSON-RPC 2.0 error codes, plus the implementation-defined codes this
// server emits.
const (
	CodeParseError             = -32700
	CodeInvalidRequest         = -32600
	CodeMethodNotFound         = -32601
	CodeInvalidParams          = -32602
	CodeInternalError          = -32603
	CodeAuthenticationRequired = -32001
)

// ProtocolVersion is the MCP protocol revision this server prefers
// during the initialize handshake.
const ProtocolVersion = "2025-03-26"

// Implementation identifies one endpoint of the MCP handshake.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ServerCapabilities advertises the optional protocol features the
// server supports.
type ServerCapabilities struct {
	Tools     *ToolsCapability     `json:"tools,omitempty"`
	Resources *ResourcesCapability `json:"resources,omitempty"`
}

// ToolsCapability describes tool support.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ResourcesCapability describes resource support.
type ResourcesCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
	Subscribe   bool `json:"subscribe,omitempty"`
}

// InitializeParams are the params of the initialize method.
type InitializeParams struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    json.RawMessage `json:"capabilities,omitempty"`
	ClientInfo      Implementation  `json:"clientInfo"`
}

// InitializeResult is the result of the initialize method.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

// ToolInfo describes one callable tool.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ListToolsParams are the params of tools/list.
type ListToolsParams struct {
	Cursor string `json:"cursor,omitempty"`
}

// ListToolsResult is the result of tools/list. NextCursor is an
// explicit null when the listing is exhausted.
type ListToolsResult struct {
	Tools      []ToolInfo `json:"tools"`
	NextCursor *string    `json:"nextCursor"`
}

// CallToolParams are the params of tools/call.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolContent is one content block of a tool result.
type ToolContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// CallToolResult is the result of tools/call. Tool-level failures set
// IsError and remain JSON-RPC successes.
type CallToolResult struct {
	Content []ToolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// TextResult builds a single-block text tool result.
func TextResult(text string) *CallToolResult {
	return &CallToolResult{Content: []ToolContent{{Type: "text", Text: text}}}
}

// ToolError builds a tool-level error result.
func ToolError(text string) *CallToolResult {
	return &CallToolResult{Content: []ToolContent{{Type: "text", Text: text}}, IsError: true}
}

// ResourceInfo describes one addressable resource.
type ResourceInfo struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ListResourcesParams are the params of resources/list.
type ListResourcesParams struct {
	Cursor string `json:"cursor,omitempty"`
}

// ListResourcesResult is the result of resources/list.
type ListResourcesResult struct {
	Resources  []ResourceInfo `json:"resources"`
	NextCursor *string        `json:"nextCursor"`
}

// ResolveParams are the params of uor.resolve.
type ResolveParams struct {
	Reference string `json:"reference"`
	Namespace string `json:"namespace,omitempty"`
}

// ResolveResult is the result of uor.resolve.
type ResolveResult struct {
	Reference string          `json:"reference"`
	Namespace string          `json:"namespace"`
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Data      json.RawMessage `json:"data"`
	Canonical string          `json:"canonicalRepresentation"`
	Chain     []string        `json:"resolutionChain,omitempty"`
	FromCache bool            `json:"fromCache,omitempty"`
}

// CreateParams are the params of uor.create.
type CreateParams struct {
	Namespace string          `json:"namespace,omitempty"`
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Data      json.RawMessage `json:"data"`
}

// CreateResult is the result of uor.create.
type CreateResult struct {
	Reference string `json:"reference"`
	Canonical string `json:"canonicalRepresentation"`
}

// UpdateParams are the params of uor.update.
type UpdateParams struct {
	Reference string          `json:"reference"`
	Data      json.RawMessage `json:"data"`
}

// UpdateResult is the result of uor.update.
type UpdateResult struct {
	Reference string `json:"reference"`
	Canonical string `json:"canonicalRepresentation"`
}

// DeleteParams are the params of uor.delete.
type DeleteParams struct {
	Reference string `json:"reference"`
}

// DeleteResult is the result of uor.delete.
type DeleteResult struct {
	Reference string `json:"reference"`
	Deleted   bool   `json:"deleted"`
}

// ListParams are the params of uordb.list.
type ListParams struct {
	Namespace string `json:"namespace,omitempty"`
	Type      string `json:"type,omitempty"`
	Cursor    string `json:"cursor,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// ObjectSummary is one entry of a listing or search result.
type ObjectSummary struct {
	Reference string `json:"reference"`
	Namespace string `json:"namespace"`
	Type      string `json:"type"`
	ID        string `json:"id"`
}

// ListResult is the result of uordb.list.
type ListResult struct {
	Objects    []ObjectSummary `json:"objects"`
	NextCursor *string         `json:"nextCursor"`
}

// SearchParams are the params of uordb.search.
type SearchParams struct {
	Namespace string `json:"namespace,omitempty"`
	Type      string `json:"type,omitempty"`
	Query     string `json:"query"`
	Limit     int    `json:"limit,omitempty"`
}

// SearchResult is the result of uordb.search.
type SearchResult struct {
	Objects []ObjectSummary `json:"objects"`
	Total   int             `json:"total"`
}

// StatusResult is the result of uordb.status.
type StatusResult struct {
	Version         string `json:"version"`
	ProtocolVersion string `json:"protocolVersion"`
	Backend         string `json:"backend"`
	Namespaces      int    `json:"namespaces"`
	Objects         int    `json:"objects"`
	CacheEntries    int    `json:"cacheEntries"`
	HostMemoryUsed  uint64 `json:"hostMemoryUsed,omitempty"`
	HostMemoryTotal uint64 `json:"hostMemoryTotal,omitempty"`
	Uptime          string `json:"uptime"`
}

// InitializeNamespaceParams are the params of uordb.initialize.
type InitializeNamespaceParams struct {
	Namespace string `json:"namespace"`
}

// InitializeNamespaceResult is the result of uordb.initialize.
type InitializeNamespaceResult struct {
	Namespace string `json:"namespace"`
	Created   bool   `json:"created"`
}
