package mcp

import (
	"encoding/json"

	"github.com/UOR-Foundation/uordb/api"
)

// toolErrorEnvelope is the structured body of a tool-level failure,
// serialized into the text content of an isError result so clients
// can branch on error_code without parsing prose.
type toolErrorEnvelope struct {
	ErrorCode string `json:"error_code"`
	Detail    string `json:"detail,omitempty"`
	Retryable bool   `json:"retryable"`
}

func toolErrorResult(code, detail string, retryable bool) *api.CallToolResult {
	envelope := map[string]any{"error": toolErrorEnvelope{
		ErrorCode: code,
		Detail:    detail,
		Retryable: retryable,
	}}
	encoded, err := json.Marshal(envelope)
	if err != nil {
		return api.ToolError(`{"error":{"error_code":"tool_error","detail":"failed to encode error envelope"}}`)
	}
	return api.ToolError(string(encoded))
}

// toolErrorFromRPC rewraps a domain error object as a tool failure,
// carrying the kind from the error data when present.
func toolErrorFromRPC(errObj *api.ErrorObject) *api.CallToolResult {
	code := "tool_error"
	retryable := false
	if data, ok := errObj.Data.(map[string]any); ok {
		if kind, ok := data["kind"].(string); ok && kind != "" {
			code = kind
		}
		if r, ok := data["retryable"].(bool); ok {
			retryable = r
		}
	}
	switch errObj.Code {
	case api.CodeAuthenticationRequired:
		code = "authentication_required"
	case api.CodeInvalidParams:
		if code == "tool_error" {
			code = "invalid_arguments"
		}
	}
	if code == "resolution_timeout" {
		retryable = true
	}
	return toolErrorResult(code, errObj.Message, retryable)
}
