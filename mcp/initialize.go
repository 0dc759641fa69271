package mcp

import (
	"encoding/json"

	"github.com/UOR-Foundation/uordb/api"
)

// supportedProtocolVersions are the MCP revisions the gateway accepts.
// A client asking for any other revision is rejected outright.
var supportedProtocolVersions = map[string]struct{}{
	"2024-11-05":        {},
	api.ProtocolVersion: {},
}

// handleInitialize performs the protocol handshake. Repeating it on an
// initialized session renegotiates and returns the same shape, so the
// call is idempotent.
func (g *Gateway) handleInitialize(sess *Session, params json.RawMessage) (any, *api.ErrorObject) {
	var p api.InitializeParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, rpcError(api.CodeInvalidParams, "invalid initialize params: %v", err)
		}
	}
	negotiated := api.ProtocolVersion
	if p.ProtocolVersion != "" {
		if _, ok := supportedProtocolVersions[p.ProtocolVersion]; !ok {
			return nil, rpcError(api.CodeInvalidRequest, "unsupported protocol version %q", p.ProtocolVersion)
		}
		negotiated = p.ProtocolVersion
	}
	sess.markInitialized(negotiated)
	g.logger.Info("mcp.session.initialized",
		"session", sess.ID,
		"namespace", sess.Namespace,
		"protocol", negotiated,
		"client", p.ClientInfo.Name)
	return &api.InitializeResult{
		ProtocolVersion: negotiated,
		Capabilities: api.ServerCapabilities{
			Tools:     &api.ToolsCapability{ListChanged: false},
			Resources: &api.ResourcesCapability{ListChanged: false, Subscribe: false},
		},
		ServerInfo:   g.serverInfo,
		Instructions: "UOR object store. Objects are addressed as uor://namespace/type/id; use the uor.* and uordb.* tools to resolve, create, and search them.",
	}, nil
}
