package mcp_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/UOR-Foundation/uordb/api"
	"github.com/UOR-Foundation/uordb/mcp"
)

func newHTTPServer(t *testing.T) *httptest.Server {
	t.Helper()
	gw, _ := newGateway(t)
	auth := func(token string) (string, bool) {
		if token == "secret-alice" {
			return "alice", true
		}
		return "", false
	}
	server := httptest.NewServer(gw.HTTPHandler(auth, "public"))
	t.Cleanup(server.Close)
	return server
}

func TestHTTPRejectsNonPost(t *testing.T) {
	server := newHTTPServer(t)
	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestHTTPNotificationGets202(t *testing.T) {
	server := newHTTPServer(t)
	resp, err := http.Post(server.URL, "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	if resp.Header.Get(mcp.SessionHeader) == "" {
		t.Fatalf("expected session header")
	}
}

func TestHTTPSessionRoundTrip(t *testing.T) {
	server := newHTTPServer(t)
	first, err := http.Post(server.URL, "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","clientInfo":{"name":"t","version":"1"}}}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	first.Body.Close()
	id := first.Header.Get(mcp.SessionHeader)
	if id == "" {
		t.Fatalf("expected session id")
	}

	req, _ := http.NewRequest(http.MethodPost, server.URL, strings.NewReader(`{"jsonrpc":"2.0","id":2,"method":"ping"}`))
	req.Header.Set(mcp.SessionHeader, id)
	second, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("second post: %v", err)
	}
	defer second.Body.Close()
	if second.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", second.StatusCode)
	}
	if got := second.Header.Get(mcp.SessionHeader); got != id {
		t.Fatalf("session id changed: %s vs %s", got, id)
	}

	// Unknown sessions are rejected.
	req, _ = http.NewRequest(http.MethodPost, server.URL, strings.NewReader(`{"jsonrpc":"2.0","id":3,"method":"ping"}`))
	req.Header.Set(mcp.SessionHeader, "bogus")
	third, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("third post: %v", err)
	}
	third.Body.Close()
	if third.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", third.StatusCode)
	}
}

func TestHTTPBearerTokenGrantsWrites(t *testing.T) {
	server := newHTTPServer(t)

	payload := `{"jsonrpc":"2.0","id":1,"method":"uor.create","params":{"type":"concept","id":"x","data":{}}}`

	// Without a token the session is read-only.
	resp, err := http.Post(server.URL, "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	var decoded wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if decoded.Error == nil || decoded.Error.Code != api.CodeAuthenticationRequired {
		t.Fatalf("expected auth required, got %+v", decoded)
	}

	req, _ := http.NewRequest(http.MethodPost, server.URL, strings.NewReader(payload))
	req.Header.Set("Authorization", "Bearer secret-alice")
	authed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("authed post: %v", err)
	}
	decoded = wireResponse{}
	if err := json.NewDecoder(authed.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	authed.Body.Close()
	if decoded.Error != nil {
		t.Fatalf("authed create failed: %+v", decoded.Error)
	}

	// Wrong tokens are refused outright.
	req, _ = http.NewRequest(http.MethodPost, server.URL, strings.NewReader(payload))
	req.Header.Set("Authorization", "Bearer nope")
	denied, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("denied post: %v", err)
	}
	denied.Body.Close()
	if denied.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", denied.StatusCode)
	}
}
