package mcp

import (
	"io"
	"net/http"
	"strings"
)

// MaxRequestBodySize caps one JSON-RPC payload.
const MaxRequestBodySize = 1 << 20

// SessionHeader carries the session id both ways.
const SessionHeader = "Mcp-Session-Id"

// AuthFunc validates a bearer token and returns the namespace it
// grants write access to.
type AuthFunc func(token string) (namespace string, ok bool)

// HTTPHandler serves the gateway over HTTP POST. Unauthenticated
// requests get read-only sessions in defaultNamespace; a valid bearer
// token binds the session to the token's namespace with write access.
func (g *Gateway) HTTPHandler(auth AuthFunc, defaultNamespace string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
		case http.MethodDelete:
			if id := r.Header.Get(SessionHeader); id != "" {
				g.sessions.remove(id)
			}
			w.WriteHeader(http.StatusNoContent)
			return
		default:
			w.Header().Set("Allow", "POST, DELETE")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, g.maxBody+1))
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
		if int64(len(body)) > g.maxBody {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}

		namespace := defaultNamespace
		authenticated := false
		if header := r.Header.Get("Authorization"); header != "" {
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				http.Error(w, "unsupported authorization scheme", http.StatusUnauthorized)
				return
			}
			if auth == nil {
				http.Error(w, "authentication not configured", http.StatusUnauthorized)
				return
			}
			ns, ok := auth(strings.TrimSpace(token))
			if !ok {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			namespace = ns
			authenticated = true
		}

		var sess *Session
		if id := r.Header.Get(SessionHeader); id != "" {
			existing, ok := g.sessions.get(id)
			if !ok {
				http.Error(w, "unknown session", http.StatusNotFound)
				return
			}
			sess = existing
		} else {
			sess = NewSession(namespace, authenticated)
			g.sessions.add(sess)
		}
		w.Header().Set(SessionHeader, sess.ID)

		response := g.Handle(r.Context(), sess, body)
		if response == nil {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(response); err != nil {
			g.logger.Debug("mcp.http.write_failed", "error", err)
		}
	})
}
