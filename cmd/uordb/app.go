package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"pkt.systems/pslog"

	"github.com/UOR-Foundation/uordb"
	"github.com/UOR-Foundation/uordb/internal/svcfields"
)

func submain(ctx context.Context) int {
	baseLogger := pslog.LoggerFromEnv(
		pslog.WithEnvPrefix("UORDB_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(os.Stderr),
	).With("app", "uordb")
	cmd := newRootCommand(baseLogger)
	ctx = withSignalCancel(ctx)
	if _, err := cmd.ExecuteContextC(ctx); err != nil {
		if err != context.Canceled {
			svcfields.WithSubsystem(baseLogger, "cli.root").Error("command failed", "error", err)
		}
		return 1
	}
	return 0
}

func humanizeBytes(n int64) string {
	return strings.ReplaceAll(humanize.Bytes(uint64(n)), " ", "")
}

func parseByteSize(raw string) (int64, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("parse byte size %q: %w", raw, err)
	}
	return int64(n), nil
}

func loadConfigFile() (string, error) {
	cfgPath := strings.TrimSpace(viper.GetString("config"))
	explicit := cfgPath != ""

	if cfgPath == "" {
		if dir, err := uordb.DefaultConfigDir(); err == nil {
			candidate := filepath.Join(dir, uordb.DefaultConfigFileName)
			if _, err := os.Stat(candidate); err == nil {
				cfgPath = candidate
			}
		}
	}
	if cfgPath == "" {
		return "", nil
	}

	expanded, err := expandPath(cfgPath)
	if err != nil {
		return "", fmt.Errorf("expand config path %q: %w", cfgPath, err)
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return "", nil
		}
		return "", fmt.Errorf("config file %q: %w", expanded, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("config file %q is a directory", expanded)
	}

	viper.SetConfigFile(expanded)
	if err := viper.ReadInConfig(); err != nil {
		return "", fmt.Errorf("read config file %q: %w", expanded, err)
	}
	return expanded, nil
}

func expandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if len(p) == 1 {
			p = home
		} else if p[1] == '/' || p[1] == '\\' {
			p = filepath.Join(home, p[2:])
		}
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return abs, nil
}

func newRootCommand(baseLogger pslog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "uordb",
		Short:         "uordb serves universally addressable content over the Model Context Protocol",
		SilenceErrors: true,
		Example: `
  # In-memory storage (tests/dev only)
  uordb --store mem://

  # Disk backend rooted at /var/lib/uordb
  uordb --store disk:///var/lib/uordb

  # MinIO backend over plain HTTP
  UORDB_STORE=s3://localhost:9000/uordb-data?insecure=1 uordb

  # GitHub-hosted namespaces, one repo per namespace
  UORDB_GITHUB_TOKEN=ghp_... uordb --store github://uor-foundation/uordb-
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := baseLogger
			cliLogger := svcfields.WithSubsystem(logger, "cli.root")
			ctx := cmd.Context()
			cmd.SilenceUsage = true

			configFile, err := loadConfigFile()
			if err != nil {
				return err
			}
			if configFile != "" {
				cliLogger.Info("loaded config file", "path", configFile)
			}

			var cfg uordb.Config
			if err := bindConfig(&cfg); err != nil {
				return err
			}

			logLevel := strings.TrimSpace(viper.GetString("log-level"))
			if logLevel == "" {
				logLevel = "info"
			}
			if level, ok := pslog.ParseLevel(logLevel); ok {
				logger = logger.LogLevel(level)
				cliLogger = svcfields.WithSubsystem(logger, "cli.root")
			}

			server, err := uordb.NewServer(cfg, uordb.WithLogger(logger))
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = server.Shutdown(shutdownCtx)
			}()

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					cliLogger.Error("shutdown failed", "error", err)
				}
			}()

			err = server.Start()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	persistentFlags := cmd.PersistentFlags()
	persistentFlags.StringP("config", "c", "", "path to YAML config file (defaults to $HOME/.uordb/"+uordb.DefaultConfigFileName+")")

	flags := cmd.Flags()
	flags.String("listen", uordb.DefaultListen, "listen address for the MCP endpoint")
	flags.String("store", "", "storage backend URL (mem://, disk:///path, s3://host[:port]/bucket, github://owner[/prefix])")
	flags.StringP("default-namespace", "n", uordb.DefaultNamespace, "namespace served to unauthenticated sessions")
	flags.StringToString("auth-token", nil, "bearer token to namespace binding (token=namespace, repeatable)")
	flags.Int("max-depth", uordb.DefaultMaxDepth, "maximum namespace hops per resolution")
	flags.Duration("resolve-timeout", uordb.DefaultResolveTimeout, "maximum duration of one resolution")
	flags.Duration("cache-ttl", uordb.DefaultCacheTTL, "resolution cache TTL (negative disables caching)")
	flags.Int("batch-concurrency", 0, "parallel requests per JSON-RPC batch (0 uses default)")
	flags.String("body-max", humanizeBytes(uordb.DefaultMaxBodyBytes), "maximum JSON-RPC request body size")
	flags.StringSlice("watch-namespace", nil, "namespaces whose storage changes evict cached resolutions")
	flags.String("metrics-listen", uordb.DefaultMetricsListen, "metrics listen address (Prometheus scrape endpoint; empty disables)")
	flags.String("pprof-listen", uordb.DefaultPprofListen, "pprof listen address (debug/pprof endpoints; empty disables)")
	flags.Bool("enable-profiling-metrics", false, "enable Go runtime profiling metrics on the Prometheus endpoint")
	flags.String("otlp-endpoint", "", "OTLP collector endpoint (e.g. grpc://localhost:4317)")
	flags.String("s3-region", "", "region for s3:// stores")
	flags.String("github-token", "", "token for github:// stores (or UORDB_GITHUB_TOKEN)")
	flags.String("github-branch", "", "branch for github:// stores (defaults to main)")
	flags.String("log-level", "info", "log level (trace, debug, info, warn, error)")

	bindFlag := func(name string) {
		flag := flags.Lookup(name)
		if flag == nil {
			flag = persistentFlags.Lookup(name)
		}
		if flag == nil {
			panic(fmt.Sprintf("flag %q not found", name))
		}
		if err := viper.BindPFlag(name, flag); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("UORDB")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	for _, name := range []string{
		"config",
		"listen", "store", "default-namespace", "auth-token",
		"max-depth", "resolve-timeout", "cache-ttl", "batch-concurrency", "body-max", "watch-namespace",
		"metrics-listen", "pprof-listen", "enable-profiling-metrics", "otlp-endpoint",
		"s3-region", "github-token", "github-branch",
		"log-level",
	} {
		bindFlag(name)
	}

	cmd.AddCommand(newConfigCommand())
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func bindConfig(cfg *uordb.Config) error {
	cfg.Listen = viper.GetString("listen")
	cfg.Store = viper.GetString("store")
	cfg.DefaultNamespace = viper.GetString("default-namespace")
	cfg.AuthTokens = viper.GetStringMapString("auth-token")
	cfg.MaxDepth = viper.GetInt("max-depth")
	cfg.ResolveTimeout = viper.GetDuration("resolve-timeout")
	cfg.CacheTTL = viper.GetDuration("cache-ttl")
	cfg.BatchConcurrency = viper.GetInt("batch-concurrency")
	bodyMax, err := parseByteSize(viper.GetString("body-max"))
	if err != nil {
		return err
	}
	cfg.MaxBodyBytes = bodyMax
	cfg.WatchNamespaces = viper.GetStringSlice("watch-namespace")
	cfg.MetricsListen = viper.GetString("metrics-listen")
	cfg.PprofListen = viper.GetString("pprof-listen")
	cfg.EnableProfilingMetrics = viper.GetBool("enable-profiling-metrics")
	cfg.OTLPEndpoint = viper.GetString("otlp-endpoint")
	cfg.S3Region = viper.GetString("s3-region")
	cfg.GitHubToken = viper.GetString("github-token")
	cfg.GitHubBranch = viper.GetString("github-branch")
	return nil
}

func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}
