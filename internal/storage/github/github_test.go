package github_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/UOR-Foundation/uordb/internal/storage"
	"github.com/UOR-Foundation/uordb/internal/storage/github"
)

// fakeContentsAPI is a minimal in-memory contents endpoint covering the
// calls the backend issues.
type fakeContentsAPI struct {
	mu    sync.Mutex
	files map[string][]byte
	shas  map[string]string
	next  int
}

func newFakeContentsAPI() *fakeContentsAPI {
	return &fakeContentsAPI{files: make(map[string][]byte), shas: make(map[string]string)}
}

func (f *fakeContentsAPI) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer token-1" {
			t.Errorf("missing bearer token, got %q", got)
		}
		path := strings.TrimPrefix(r.URL.Path, "/repos/uor-foundation/uordb-alice/contents/")
		f.mu.Lock()
		defer f.mu.Unlock()
		switch r.Method {
		case http.MethodGet:
			body, ok := f.files[path]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"type":    "file",
				"path":    path,
				"sha":     f.shas[path],
				"size":    len(body),
				"content": base64.StdEncoding.EncodeToString(body),
			})
		case http.MethodPut:
			var req struct {
				Content string `json:"content"`
				SHA     string `json:"sha"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if current, exists := f.shas[path]; exists && req.SHA != current {
				w.WriteHeader(http.StatusConflict)
				return
			}
			decoded, err := base64.StdEncoding.DecodeString(req.Content)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			f.next++
			sha := fmt.Sprintf("sha-%d", f.next)
			f.files[path] = decoded
			f.shas[path] = sha
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]any{
				"content": map[string]any{"sha": sha, "size": len(decoded)},
			})
		case http.MethodDelete:
			var req struct {
				SHA string `json:"sha"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			current, exists := f.shas[path]
			if !exists {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			if req.SHA != current {
				w.WriteHeader(http.StatusConflict)
				return
			}
			delete(f.files, path)
			delete(f.shas, path)
			json.NewEncoder(w).Encode(map[string]any{"content": nil})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

func newStore(t *testing.T) (*github.Store, *fakeContentsAPI) {
	t.Helper()
	api := newFakeContentsAPI()
	server := httptest.NewServer(api.handler(t))
	t.Cleanup(server.Close)
	store, err := github.New(github.Config{
		Owner:      "uor-foundation",
		RepoPrefix: "uordb-",
		Token:      "token-1",
		BaseURL:    server.URL,
		Client:     server.Client(),
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store, api
}

func TestPutGetDeleteAgainstContentsAPI(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)

	info, err := store.Put(ctx, "alice", "concept", "prime", []byte(`{"n":7}`), storage.PutOptions{IfNotExists: true})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.ETag == "" {
		t.Fatalf("expected sha etag")
	}
	got, err := store.Get(ctx, "alice", "concept", "prime")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got.Body) != `{"n":7}` || got.Info.ETag != info.ETag {
		t.Fatalf("unexpected read %s etag=%s", got.Body, got.Info.ETag)
	}
	if err := store.Delete(ctx, "alice", "concept", "prime", storage.DeleteOptions{ExpectedETag: info.ETag}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "alice", "concept", "prime"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStaleSHARejected(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)

	first, err := store.Put(ctx, "alice", "concept", "x", []byte(`{"v":1}`), storage.PutOptions{})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "alice", "concept", "x", []byte(`{"v":2}`), storage.PutOptions{ExpectedETag: "stale"}); !errors.Is(err, storage.ErrCASMismatch) {
		t.Fatalf("expected cas mismatch, got %v", err)
	}
	if _, err := store.Put(ctx, "alice", "concept", "x", []byte(`{"v":2}`), storage.PutOptions{ExpectedETag: first.ETag}); err != nil {
		t.Fatalf("cas put: %v", err)
	}
	if err := store.Delete(ctx, "alice", "concept", "x", storage.DeleteOptions{ExpectedETag: first.ETag}); !errors.Is(err, storage.ErrCASMismatch) {
		t.Fatalf("expected delete cas mismatch, got %v", err)
	}
}
