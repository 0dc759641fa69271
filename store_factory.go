package uordb

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/UOR-Foundation/uordb/internal/storage"
	"github.com/UOR-Foundation/uordb/internal/storage/disk"
	"github.com/UOR-Foundation/uordb/internal/storage/github"
	"github.com/UOR-Foundation/uordb/internal/storage/memory"
	"github.com/UOR-Foundation/uordb/internal/storage/s3"
)

func openBackend(cfg Config) (storage.Backend, string, error) {
	u, err := url.Parse(cfg.Store)
	if err != nil {
		return nil, "", fmt.Errorf("parse store URL: %w", err)
	}
	switch u.Scheme {
	case "memory", "mem", "":
		return memory.New(), "memory", nil
	case "disk":
		diskCfg, err := BuildDiskConfig(cfg)
		if err != nil {
			return nil, "", err
		}
		backend, err := disk.New(diskCfg)
		if err != nil {
			return nil, "", err
		}
		return backend, "disk", nil
	case "s3":
		s3cfg, err := BuildS3Config(cfg)
		if err != nil {
			return nil, "", err
		}
		backend, err := s3.New(s3cfg)
		if err != nil {
			return nil, "", err
		}
		ok, err := backend.BucketExists(context.Background())
		if err != nil {
			_ = backend.Close()
			return nil, "", fmt.Errorf("s3 store: check bucket: %w", err)
		}
		if !ok {
			_ = backend.Close()
			return nil, "", fmt.Errorf("s3 store: bucket %q does not exist", s3cfg.Bucket)
		}
		return backend, "s3", nil
	case "github":
		ghCfg, err := BuildGitHubConfig(cfg)
		if err != nil {
			return nil, "", err
		}
		backend, err := github.New(ghCfg)
		if err != nil {
			return nil, "", err
		}
		return backend, "github", nil
	default:
		return nil, "", fmt.Errorf("store scheme %q not supported", u.Scheme)
	}
}

// BuildDiskConfig parses disk:// store URLs into a disk backend config.
func BuildDiskConfig(cfg Config) (disk.Config, error) {
	u, err := url.Parse(cfg.Store)
	if err != nil {
		return disk.Config{}, fmt.Errorf("parse store URL: %w", err)
	}
	if u.Scheme != "disk" {
		return disk.Config{}, fmt.Errorf("store scheme %q not supported", u.Scheme)
	}
	root := u.Path
	if u.Opaque != "" {
		root = u.Opaque
	} else if u.Host != "" {
		// disk://relative/path parses the first segment as host.
		root = u.Host + u.Path
	}
	if strings.TrimSpace(root) == "" {
		return disk.Config{}, fmt.Errorf("disk store missing path (expected disk:///var/lib/uordb)")
	}
	return disk.Config{Root: root}, nil
}

// BuildS3Config parses s3:// store URLs targeting S3-compatible
// services (AWS, MinIO, etc.).
func BuildS3Config(cfg Config) (s3.Config, error) {
	u, err := url.Parse(cfg.Store)
	if err != nil {
		return s3.Config{}, fmt.Errorf("parse store URL: %w", err)
	}
	if u.Scheme != "s3" {
		return s3.Config{}, fmt.Errorf("store scheme %q not supported", u.Scheme)
	}
	endpoint := strings.TrimSpace(u.Host)
	path := strings.Trim(strings.TrimPrefix(u.Path, "/"), "/")
	if path == "" {
		return s3.Config{}, fmt.Errorf("s3 store missing bucket (expected s3://host[:port]/bucket[/prefix])")
	}
	parts := strings.SplitN(path, "/", 2)
	bucket := strings.TrimSpace(parts[0])
	if bucket == "" {
		return s3.Config{}, fmt.Errorf("s3 store missing bucket name")
	}
	var prefix string
	if len(parts) == 2 {
		prefix = strings.Trim(parts[1], "/")
	}
	query := u.Query()
	insecure := false
	if v := query.Get("scheme"); strings.EqualFold(v, "http") {
		insecure = true
	}
	if v := query.Get("insecure"); v != "" {
		if ok, err := strconv.ParseBool(v); err == nil {
			insecure = ok
		}
	}
	pathStyle := endpoint != ""
	if v := query.Get("path-style"); v != "" {
		if ok, err := strconv.ParseBool(v); err == nil {
			pathStyle = ok
		}
	}
	region := cfg.S3Region
	if v := query.Get("region"); v != "" {
		region = v
	}
	return s3.Config{
		Endpoint:       endpoint,
		Bucket:         bucket,
		Prefix:         prefix,
		Region:         region,
		Insecure:       insecure,
		ForcePathStyle: pathStyle,
	}, nil
}

// BuildGitHubConfig parses github://owner[/repo-prefix] store URLs.
func BuildGitHubConfig(cfg Config) (github.Config, error) {
	u, err := url.Parse(cfg.Store)
	if err != nil {
		return github.Config{}, fmt.Errorf("parse store URL: %w", err)
	}
	if u.Scheme != "github" {
		return github.Config{}, fmt.Errorf("store scheme %q not supported", u.Scheme)
	}
	owner := strings.TrimSpace(u.Host)
	if owner == "" {
		return github.Config{}, fmt.Errorf("github store missing owner (expected github://owner[/repo-prefix])")
	}
	repoPrefix := strings.Trim(u.Path, "/")
	query := u.Query()
	branch := cfg.GitHubBranch
	if v := query.Get("branch"); v != "" {
		branch = v
	}
	token := cfg.GitHubToken
	if v := query.Get("token"); v != "" {
		token = v
	}
	return github.Config{
		Owner:      owner,
		RepoPrefix: repoPrefix,
		Token:      token,
		Branch:     branch,
		BaseURL:    query.Get("api"),
	}, nil
}
