package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/UOR-Foundation/uordb"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage uordb configuration files",
	}
	cmd.AddCommand(newConfigGenCommand())
	return cmd
}

func newConfigGenCommand() *cobra.Command {
	var outPath string
	var force bool
	var stdout bool
	defaultOutput := "$HOME/.uordb/" + uordb.DefaultConfigFileName
	if dir, err := uordb.DefaultConfigDir(); err == nil {
		defaultOutput = filepath.Join(dir, uordb.DefaultConfigFileName)
	}

	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate a default uordb configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if stdout && outPath != "" {
				return fmt.Errorf("--stdout and --out are mutually exclusive")
			}
			if outPath == "" {
				dir, err := uordb.DefaultConfigDir()
				if err != nil {
					return fmt.Errorf("resolve config dir: %w", err)
				}
				outPath = filepath.Join(dir, uordb.DefaultConfigFileName)
			}

			data, err := defaultConfigYAML()
			if err != nil {
				return err
			}
			if stdout {
				fmt.Fprint(cmd.OutOrStdout(), string(data))
				return nil
			}

			if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
				return fmt.Errorf("create config dir: %w", err)
			}
			if !force {
				if _, err := os.Stat(outPath); err == nil {
					return fmt.Errorf("config file %s already exists (use --force to overwrite)", outPath)
				} else if !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("stat config file: %w", err)
				}
			}
			if err := os.WriteFile(outPath, data, 0o600); err != nil {
				return fmt.Errorf("write config file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote default config to %s\n", outPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "", fmt.Sprintf("output path for generated config (defaults to %s)", defaultOutput))
	cmd.Flags().BoolVar(&force, "force", false, "overwrite the target file if it already exists")
	cmd.Flags().BoolVar(&stdout, "stdout", false, "print the config to stdout instead of writing a file")
	return cmd
}

type configDefaults struct {
	Listen           string   `yaml:"listen"`
	Store            string   `yaml:"store"`
	DefaultNamespace string   `yaml:"default-namespace"`
	MaxDepth         int      `yaml:"max-depth"`
	ResolveTimeout   string   `yaml:"resolve-timeout"`
	CacheTTL         string   `yaml:"cache-ttl"`
	BodyMax          string   `yaml:"body-max"`
	WatchNamespaces  []string `yaml:"watch-namespace"`
	MetricsListen    string   `yaml:"metrics-listen"`
	PprofListen      string   `yaml:"pprof-listen"`
	OTLPEndpoint     string   `yaml:"otlp-endpoint"`
	LogLevel         string   `yaml:"log-level"`
}

func defaultConfigYAML() ([]byte, error) {
	defaults := configDefaults{
		Listen:           uordb.DefaultListen,
		Store:            uordb.DefaultStore,
		DefaultNamespace: uordb.DefaultNamespace,
		MaxDepth:         uordb.DefaultMaxDepth,
		ResolveTimeout:   uordb.DefaultResolveTimeout.String(),
		CacheTTL:         uordb.DefaultCacheTTL.String(),
		BodyMax:          humanizeBytes(uordb.DefaultMaxBodyBytes),
		MetricsListen:    uordb.DefaultMetricsListen,
		PprofListen:      uordb.DefaultPprofListen,
		LogLevel:         "info",
	}
	data, err := yaml.Marshal(defaults)
	if err != nil {
		return nil, fmt.Errorf("marshal default config: %w", err)
	}
	return data, nil
}
