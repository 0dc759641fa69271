package mcp

import (
	"sync"

	"github.com/rs/xid"
)

// Session is the explicit per-client state the gateway operates on.
// One session maps to one namespace; writes require Authenticated.
type Session struct {
	mu sync.Mutex

	// ID is the opaque session identifier echoed in Mcp-Session-Id.
	ID string
	// Namespace scopes writes and is the origin of resolutions.
	Namespace string
	// Authenticated is set when the client presented a valid token.
	Authenticated bool

	protocolVersion string
	initialized     bool
}

// NewSession mints a session bound to namespace.
func NewSession(namespace string, authenticated bool) *Session {
	return &Session{
		ID:            xid.New().String(),
		Namespace:     namespace,
		Authenticated: authenticated,
	}
}

// Initialized reports whether the initialize handshake completed.
func (s *Session) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// ProtocolVersion returns the negotiated protocol revision.
func (s *Session) ProtocolVersion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.protocolVersion
}

func (s *Session) markInitialized(version string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = true
	s.protocolVersion = version
}

// sessionStore tracks live sessions by id.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*Session)}
}

func (s *sessionStore) get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *sessionStore) add(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
}

func (s *sessionStore) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}
