package uordb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/http2"
	"pkt.systems/pslog"

	"github.com/UOR-Foundation/uordb/internal/clock"
	"github.com/UOR-Foundation/uordb/internal/resolver"
	"github.com/UOR-Foundation/uordb/internal/storage"
	"github.com/UOR-Foundation/uordb/internal/svcfields"
	"github.com/UOR-Foundation/uordb/internal/version"
	"github.com/UOR-Foundation/uordb/mcp"
)

// Server binds the storage backend, resolver, and MCP gateway to an
// HTTP listener.
type Server struct {
	cfg          Config
	logger       pslog.Logger
	backend      storage.Backend
	ownedBackend bool
	resolver     *resolver.Resolver
	gateway      *mcp.Gateway
	httpSrv      *http.Server
	listener     net.Listener
	clk          clock.Clock
	telemetry    *telemetryBundle
	watchCancel  context.CancelFunc
	watches      []storage.ChangeSubscription

	mu           sync.Mutex
	shutdown     bool
	lastServeErr error
	readyOnce    sync.Once
	readyCh      chan struct{}
}

// Option configures server instances.
type Option func(*options)

type options struct {
	Logger       pslog.Logger
	Backend      storage.Backend
	Clock        clock.Clock
	OTLPEndpoint string
}

// WithLogger supplies a custom logger.
func WithLogger(l pslog.Logger) Option {
	return func(o *options) {
		o.Logger = l
	}
}

// WithBackend injects a pre-built backend (useful for tests).
func WithBackend(b storage.Backend) Option {
	return func(o *options) {
		o.Backend = b
	}
}

// WithClock injects a custom clock implementation.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.Clock = c
	}
}

// WithOTLPEndpoint overrides the OTLP collector endpoint used for
// telemetry.
func WithOTLPEndpoint(endpoint string) Option {
	return func(o *options) {
		o.OTLPEndpoint = endpoint
	}
}

// NewServer constructs a uordb server according to cfg.
func NewServer(cfg Config, opts ...Option) (*Server, error) {
	cfgCopy := cfg
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.OTLPEndpoint != "" {
		cfgCopy.OTLPEndpoint = o.OTLPEndpoint
	}
	if err := cfgCopy.Validate(); err != nil {
		return nil, err
	}
	cfg = cfgCopy

	logger := o.Logger
	if logger == nil {
		logger = pslog.NoopLogger()
	}

	telemetry, err := setupTelemetry(context.Background(), cfg, svcfields.WithSubsystem(logger, "telemetry"))
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*Server, error) {
		if telemetry != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = telemetry.Shutdown(shutdownCtx)
			cancel()
		}
		return nil, err
	}

	backend := o.Backend
	backendName := "custom"
	ownedBackend := false
	if backend == nil {
		backend, backendName, err = openBackend(cfg)
		if err != nil {
			return fail(err)
		}
		ownedBackend = true
	}
	serverClock := o.Clock
	if serverClock == nil {
		serverClock = clock.Real{}
	}

	res, err := resolver.New(resolver.Config{
		Store:    backend,
		Logger:   logger,
		Clock:    serverClock,
		MaxDepth: cfg.MaxDepth,
		Timeout:  cfg.ResolveTimeout,
		CacheTTL: cfg.CacheTTL,
	})
	if err != nil {
		if ownedBackend {
			_ = backend.Close()
		}
		return fail(err)
	}
	gateway, err := mcp.New(mcp.Config{
		Store:            backend,
		Resolver:         res,
		Logger:           logger,
		Clock:            serverClock,
		ServerVersion:    version.Version,
		BackendName:      backendName,
		BatchConcurrency: cfg.BatchConcurrency,
		MaxBodyBytes:     cfg.MaxBodyBytes,
	})
	if err != nil {
		if ownedBackend {
			_ = backend.Close()
		}
		return fail(err)
	}

	srv := &Server{
		cfg:          cfg,
		logger:       svcfields.WithSubsystem(logger, "server"),
		backend:      backend,
		ownedBackend: ownedBackend,
		resolver:     res,
		gateway:      gateway,
		clk:          serverClock,
		telemetry:    telemetry,
		readyCh:      make(chan struct{}),
	}

	if len(cfg.WatchNamespaces) > 0 {
		watchCtx, cancel := context.WithCancel(context.Background())
		srv.watchCancel = cancel
		for _, ns := range cfg.WatchNamespaces {
			sub, err := res.WatchNamespace(watchCtx, ns)
			if err != nil {
				if errors.Is(err, storage.ErrNotImplemented) {
					srv.logger.Warn("namespace watch unsupported by backend", "namespace", ns, "backend", backendName)
					continue
				}
				cancel()
				srv.closeWatches()
				if ownedBackend {
					_ = backend.Close()
				}
				return fail(fmt.Errorf("watch namespace %q: %w", ns, err))
			}
			srv.watches = append(srv.watches, sub)
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/mcp", otelhttp.NewHandler(gateway.HTTPHandler(authFromTokens(cfg.AuthTokens), cfg.DefaultNamespace), "mcp"))
	mux.HandleFunc("/healthz", srv.handleHealthz)
	srv.httpSrv = &http.Server{
		Addr:    cfg.Listen,
		Handler: mux,
		BaseContext: func(net.Listener) context.Context {
			return context.Background()
		},
	}
	if err := http2.ConfigureServer(srv.httpSrv, &http2.Server{}); err != nil {
		return fail(fmt.Errorf("configure http2: %w", err))
	}
	return srv, nil
}

func authFromTokens(tokens map[string]string) mcp.AuthFunc {
	if len(tokens) == 0 {
		return nil
	}
	return func(token string) (string, bool) {
		ns, ok := tokens[token]
		return ns, ok
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

// Handler returns the underlying HTTP handler so uordb can be mounted
// inside an existing mux when embedding the server into another
// program.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Start begins serving requests and blocks until the server stops.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Listen, err)
	}
	s.listener = ln
	s.signalReady()
	s.logger.Info("listening", "address", ln.Addr().String(), "store", s.cfg.Store)
	serveErr := s.httpSrv.Serve(ln)
	s.recordServeErr(serveErr)
	if errors.Is(serveErr, http.ErrServerClosed) {
		return nil
	}
	if serveErr != nil {
		return fmt.Errorf("http serve: %w", serveErr)
	}
	return nil
}

// Shutdown gracefully stops the server and returns any fatal
// serve or shutdown error.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	s.mu.Unlock()

	if err := s.httpSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	s.closeWatches()
	if l := s.listener; l != nil {
		_ = l.Close()
		s.listener = nil
	}
	if s.ownedBackend {
		if err := s.backend.Close(); err != nil {
			return err
		}
	}
	if s.telemetry != nil {
		telemetryCtx := ctx
		if telemetryCtx.Err() != nil {
			var cancel context.CancelFunc
			telemetryCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
		}
		if err := s.telemetry.Shutdown(telemetryCtx); err != nil {
			return err
		}
		s.telemetry = nil
	}
	if err := s.LastServeError(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close gracefully shuts the server down using a background context.
func (s *Server) Close() error {
	return s.Shutdown(context.Background())
}

func (s *Server) closeWatches() {
	for _, sub := range s.watches {
		_ = sub.Close()
	}
	s.watches = nil
}

func (s *Server) signalReady() {
	s.readyOnce.Do(func() {
		close(s.readyCh)
	})
}

// WaitUntilReady blocks until the server listener is initialized or
// context ends.
func (s *Server) WaitUntilReady(ctx context.Context) error {
	select {
	case <-s.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ListenerAddr returns the bound listener address once available.
func (s *Server) ListenerAddr() net.Addr {
	if l := s.listener; l != nil {
		return l.Addr()
	}
	return nil
}

func (s *Server) recordServeErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.lastServeErr = err
	}
}

// LastServeError reports the last fatal serve error, if any.
func (s *Server) LastServeError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastServeErr
}
