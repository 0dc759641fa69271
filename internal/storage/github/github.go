// Package github implements a storage backend on the GitHub contents
// API. Each namespace maps to one repository under the configured
// owner, objects live at <collection>/<id>.json, and the blob SHA the
// API returns on every read and write is the CAS ETag.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/UOR-Foundation/uordb/internal/storage"
)

const (
	defaultBaseURL = "https://api.github.com"
	defaultBranch  = "main"
	objectSuffix   = ".json"
	acceptHeader   = "application/vnd.github+json"
)

// Config carries GitHub backend settings.
type Config struct {
	// Owner is the user or organization holding namespace repos.
	Owner string
	// RepoPrefix is prepended to the namespace to form the repo name.
	RepoPrefix string
	// Token authenticates API calls. Unauthenticated access is
	// read-only and heavily rate limited.
	Token string
	// Branch defaults to main.
	Branch string
	// BaseURL overrides the API endpoint, used for GitHub Enterprise
	// and test servers.
	BaseURL string
	Client  *http.Client
}

// Store is the GitHub backend.
type Store struct {
	cfg    Config
	client *http.Client
}

// New validates cfg and returns a Store.
func New(cfg Config) (*Store, error) {
	if cfg.Owner == "" {
		return nil, fmt.Errorf("github: owner is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Branch == "" {
		cfg.Branch = defaultBranch
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Store{cfg: cfg, client: client}, nil
}

func (s *Store) repo(namespace string) string {
	return s.cfg.RepoPrefix + namespace
}

func (s *Store) contentsURL(namespace, path string) string {
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		s.cfg.BaseURL, url.PathEscape(s.cfg.Owner), url.PathEscape(s.repo(namespace)), path)
}

func (s *Store) do(ctx context.Context, method, rawURL string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("github: build request: %w", err)
	}
	req.Header.Set("Accept", acceptHeader)
	if s.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, storage.NewTransientError(fmt.Errorf("github: %s %s: %w", method, rawURL, err))
	}
	return resp, nil
}

type contentsResponse struct {
	Type    string `json:"type"`
	Path    string `json:"path"`
	SHA     string `json:"sha"`
	Size    int64  `json:"size"`
	Content string `json:"content"`
}

type commitResponse struct {
	Content struct {
		SHA  string `json:"sha"`
		Size int64  `json:"size"`
	} `json:"content"`
}

func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	err := fmt.Errorf("github: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return storage.ErrNotFound
	case resp.StatusCode == http.StatusConflict,
		resp.StatusCode == http.StatusUnprocessableEntity:
		// The contents API reports a stale or missing sha this way.
		return storage.ErrCASMismatch
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= http.StatusInternalServerError:
		return storage.NewTransientError(err)
	}
	return err
}

// Get fetches one object.
func (s *Store) Get(ctx context.Context, namespace, collection, id string) (storage.GetResult, error) {
	rawURL := s.contentsURL(namespace, collection+"/"+id+objectSuffix) + "?ref=" + url.QueryEscape(s.cfg.Branch)
	resp, err := s.do(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return storage.GetResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return storage.GetResult{}, apiError(resp)
	}
	var contents contentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&contents); err != nil {
		return storage.GetResult{}, fmt.Errorf("github: decode contents: %w", err)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(contents.Content, "\n", ""))
	if err != nil {
		return storage.GetResult{}, fmt.Errorf("github: decode content body: %w", err)
	}
	return storage.GetResult{
		Body: decoded,
		Info: storage.ObjectInfo{
			Namespace:  namespace,
			Collection: collection,
			ID:         id,
			ETag:       contents.SHA,
			Size:       int64(len(decoded)),
		},
	}, nil
}

// Put writes an object. The contents API requires the current blob sha
// on updates, which is exactly CAS: a stale sha is rejected upstream.
func (s *Store) Put(ctx context.Context, namespace, collection, id string, body []byte, opts storage.PutOptions) (storage.ObjectInfo, error) {
	sha := opts.ExpectedETag
	if sha == "" && !opts.IfNotExists {
		// Unconditional writes still need the current sha when the
		// file already exists.
		if current, err := s.Get(ctx, namespace, collection, id); err == nil {
			sha = current.Info.ETag
		}
	}
	fields := map[string]any{
		"message": fmt.Sprintf("put %s/%s", collection, id),
		"content": base64.StdEncoding.EncodeToString(body),
		"branch":  s.cfg.Branch,
	}
	if sha != "" {
		fields["sha"] = sha
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("github: encode put: %w", err)
	}
	rawURL := s.contentsURL(namespace, collection+"/"+id+objectSuffix)
	resp, err := s.do(ctx, http.MethodPut, rawURL, payload)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return storage.ObjectInfo{}, apiError(resp)
	}
	var commit commitResponse
	if err := json.NewDecoder(resp.Body).Decode(&commit); err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("github: decode commit: %w", err)
	}
	return storage.ObjectInfo{
		Namespace:    namespace,
		Collection:   collection,
		ID:           id,
		ETag:         commit.Content.SHA,
		Size:         int64(len(body)),
		LastModified: time.Now().UTC(),
	}, nil
}

// Delete removes one object. The API demands the current sha, so a
// missing ExpectedETag triggers a lookup first.
func (s *Store) Delete(ctx context.Context, namespace, collection, id string, opts storage.DeleteOptions) error {
	sha := opts.ExpectedETag
	if sha == "" {
		current, err := s.Get(ctx, namespace, collection, id)
		if err != nil {
			if opts.IgnoreNotFound && errors.Is(err, storage.ErrNotFound) {
				return nil
			}
			return err
		}
		sha = current.Info.ETag
	}
	payload, err := json.Marshal(map[string]any{
		"message": fmt.Sprintf("delete %s/%s", collection, id),
		"branch":  s.cfg.Branch,
		"sha":     sha,
	})
	if err != nil {
		return fmt.Errorf("github: encode delete: %w", err)
	}
	rawURL := s.contentsURL(namespace, collection+"/"+id+objectSuffix)
	resp, err := s.do(ctx, http.MethodDelete, rawURL, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err := apiError(resp)
		if opts.IgnoreNotFound && errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	return nil
}

type treeResponse struct {
	Tree []struct {
		Path string `json:"path"`
		Type string `json:"type"`
		SHA  string `json:"sha"`
		Size int64  `json:"size"`
	} `json:"tree"`
	Truncated bool `json:"truncated"`
}

// List enumerates objects via one recursive git tree read.
func (s *Store) List(ctx context.Context, namespace string, opts storage.ListOptions) (storage.ListResult, error) {
	rawURL := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1",
		s.cfg.BaseURL, url.PathEscape(s.cfg.Owner), url.PathEscape(s.repo(namespace)), url.PathEscape(s.cfg.Branch))
	resp, err := s.do(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return storage.ListResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return storage.ListResult{}, apiError(resp)
	}
	var tree treeResponse
	if err := json.NewDecoder(resp.Body).Decode(&tree); err != nil {
		return storage.ListResult{}, fmt.Errorf("github: decode tree: %w", err)
	}

	prefix := ""
	if opts.Collection != "" {
		prefix = opts.Collection + "/"
	}
	type row struct {
		key  string
		sha  string
		size int64
	}
	var rows []row
	for _, node := range tree.Tree {
		if node.Type != "blob" || !strings.HasSuffix(node.Path, objectSuffix) {
			continue
		}
		key := strings.TrimSuffix(node.Path, objectSuffix)
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			continue
		}
		rows = append(rows, row{key: key, sha: node.SHA, size: node.Size})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].key < rows[j].key })

	result := storage.ListResult{}
	for _, r := range rows {
		if opts.StartAfter != "" && r.key <= opts.StartAfter {
			continue
		}
		if opts.Limit > 0 && len(result.Objects) >= opts.Limit {
			result.Truncated = true
			result.NextStartAfter = result.Objects[len(result.Objects)-1].Collection + "/" + result.Objects[len(result.Objects)-1].ID
			break
		}
		collection, id, ok := strings.Cut(r.key, "/")
		if !ok {
			continue
		}
		result.Objects = append(result.Objects, storage.ObjectInfo{
			Namespace:  namespace,
			Collection: collection,
			ID:         id,
			ETag:       r.sha,
			Size:       r.size,
		})
	}
	return result, nil
}

// Close satisfies storage.Backend.
func (s *Store) Close() error { return nil }

var _ storage.Backend = (*Store)(nil)
