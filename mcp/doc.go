// Package mcp implements the JSON-RPC 2.0 gateway speaking the Model
// Context Protocol. It owns the request state machine: envelope
// validation, the initialize handshake, batch execution, tool and
// resource listings, and dispatch into the UOR domain operations.
//
// Tool-level failures are reported as successful tools/call responses
// with isError set; JSON-RPC error objects are reserved for protocol
// violations.
package mcp
