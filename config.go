package uordb

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/UOR-Foundation/uordb/internal/resolver"
	"github.com/UOR-Foundation/uordb/mcp"
	"github.com/UOR-Foundation/uordb/namespaces"
)

const (
	// DefaultListen is the TCP endpoint the server binds to when no
	// listen address is configured.
	DefaultListen = ":8090"
	// DefaultStore points the server at the in-memory backend.
	DefaultStore = "mem://"
	// DefaultNamespace is the namespace unauthenticated sessions read
	// from when callers omit one.
	DefaultNamespace = "public"
	// DefaultMaxBodyBytes bounds incoming JSON-RPC payloads.
	DefaultMaxBodyBytes = int64(mcp.MaxRequestBodySize)
	// DefaultMaxDepth bounds resolver namespace hops.
	DefaultMaxDepth = resolver.DefaultMaxDepth
	// DefaultResolveTimeout bounds one resolution end to end.
	DefaultResolveTimeout = resolver.DefaultTimeout
	// DefaultCacheTTL is how long resolutions stay cached. Negative
	// disables caching.
	DefaultCacheTTL = resolver.DefaultCacheTTL
	// DefaultMetricsListen disables the Prometheus endpoint unless
	// explicitly configured.
	DefaultMetricsListen = ""
	// DefaultPprofListen disables the pprof endpoint unless explicitly
	// configured.
	DefaultPprofListen = ""
	// DefaultConfigFileName is the YAML file read from the config dir.
	DefaultConfigFileName = "config.yaml"
)

// Config drives NewServer.
type Config struct {
	// Listen is the TCP address of the MCP endpoint.
	Listen string
	// Store is the storage backend URL: mem://, disk:///path,
	// s3://host[:port]/bucket[/prefix], github://owner[/repo-prefix].
	Store string
	// DefaultNamespace is granted read-only to unauthenticated
	// sessions.
	DefaultNamespace string
	// AuthTokens maps bearer tokens to the namespace each one may
	// write.
	AuthTokens map[string]string
	// MaxDepth bounds resolver hops; zero means DefaultMaxDepth.
	MaxDepth int
	// ResolveTimeout bounds one resolution; zero means
	// DefaultResolveTimeout.
	ResolveTimeout time.Duration
	// CacheTTL controls the resolution cache; zero means
	// DefaultCacheTTL, negative disables.
	CacheTTL time.Duration
	// BatchConcurrency bounds parallel execution within one JSON-RPC
	// batch.
	BatchConcurrency int
	// MaxBodyBytes caps one HTTP request body.
	MaxBodyBytes int64
	// WatchNamespaces lists namespaces whose storage changes evict
	// cached resolutions automatically. Requires a backend with change
	// notifications.
	WatchNamespaces []string

	// MetricsListen exposes Prometheus metrics when set.
	MetricsListen string
	// PprofListen exposes debug/pprof when set.
	PprofListen string
	// EnableProfilingMetrics adds Go runtime metrics to the Prometheus
	// endpoint.
	EnableProfilingMetrics bool
	// OTLPEndpoint enables trace export when set, e.g.
	// grpc://localhost:4317.
	OTLPEndpoint string

	// S3Region selects the region for s3:// stores.
	S3Region string
	// GitHubToken authenticates github:// stores.
	GitHubToken string
	// GitHubBranch overrides the branch for github:// stores.
	GitHubBranch string
}

// Validate applies defaults and sanity-checks the configuration.
func (c *Config) Validate() error {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.Store == "" {
		c.Store = DefaultStore
	}
	ns, err := namespaces.Normalize(c.DefaultNamespace, DefaultNamespace)
	if err != nil {
		return fmt.Errorf("config: default namespace: %w", err)
	}
	c.DefaultNamespace = ns
	for token, target := range c.AuthTokens {
		if strings.TrimSpace(token) == "" {
			return fmt.Errorf("config: empty auth token")
		}
		normalized, err := namespaces.Normalize(target, "")
		if err != nil {
			return fmt.Errorf("config: auth token namespace %q: %w", target, err)
		}
		c.AuthTokens[token] = normalized
	}
	for i, watched := range c.WatchNamespaces {
		normalized, err := namespaces.Normalize(watched, "")
		if err != nil {
			return fmt.Errorf("config: watch namespace %q: %w", watched, err)
		}
		c.WatchNamespaces[i] = normalized
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("config: max depth must be >= 0")
	}
	if c.MaxDepth == 0 {
		c.MaxDepth = DefaultMaxDepth
	}
	if c.ResolveTimeout < 0 {
		return fmt.Errorf("config: resolve timeout must be >= 0")
	}
	if c.ResolveTimeout == 0 {
		c.ResolveTimeout = DefaultResolveTimeout
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.BatchConcurrency < 0 {
		return fmt.Errorf("config: batch concurrency must be >= 0")
	}
	if c.BatchConcurrency == 0 {
		c.BatchConcurrency = mcp.DefaultBatchConcurrency
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.EnableProfilingMetrics && strings.TrimSpace(c.MetricsListen) == "" {
		return fmt.Errorf("config: profiling metrics require metrics-listen")
	}
	return nil
}

// DefaultConfigDir returns the per-user configuration directory.
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".uordb"), nil
}
