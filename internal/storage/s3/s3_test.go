package s3

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"

	"github.com/UOR-Foundation/uordb/internal/storage"
)

func setupFakeS3(t *testing.T) (*httptest.Server, Config) {
	t.Helper()
	backend := s3mem.New()
	fs := gofakes3.New(backend)
	server := httptest.NewServer(fs.Server())
	bucket := "uordb-test"
	if err := backend.CreateBucket(bucket); err != nil {
		t.Fatalf("create bucket: %v", err)
	}
	endpoint := strings.TrimPrefix(server.URL, "http://")
	os.Setenv("AWS_ACCESS_KEY_ID", "test")
	os.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	cfg := Config{
		Endpoint:       endpoint,
		Region:         "us-east-1",
		Bucket:         bucket,
		Insecure:       true,
		ForcePathStyle: true,
	}
	return server, cfg
}

func TestObjectLifecycle(t *testing.T) {
	server, cfg := setupFakeS3(t)
	defer server.Close()

	store, err := New(cfg)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	info, err := store.Put(ctx, "alice", "concept", "prime", []byte(`{"n":7}`), storage.PutOptions{})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := store.Get(ctx, "alice", "concept", "prime")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got.Body) != `{"n":7}` {
		t.Fatalf("unexpected body %s", got.Body)
	}
	if got.Info.ETag != info.ETag {
		t.Fatalf("etag mismatch %s vs %s", got.Info.ETag, info.ETag)
	}

	if err := store.Delete(ctx, "alice", "concept", "prime", storage.DeleteOptions{ExpectedETag: "bogus"}); !errors.Is(err, storage.ErrCASMismatch) {
		t.Fatalf("expected delete cas mismatch, got %v", err)
	}
	if err := store.Delete(ctx, "alice", "concept", "prime", storage.DeleteOptions{ExpectedETag: info.ETag}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "alice", "concept", "prime"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.Delete(ctx, "alice", "concept", "prime", storage.DeleteOptions{IgnoreNotFound: true}); err != nil {
		t.Fatalf("idempotent delete: %v", err)
	}
}

func TestListWithinNamespace(t *testing.T) {
	server, cfg := setupFakeS3(t)
	defer server.Close()

	store, err := New(cfg)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if _, err := store.Put(ctx, "alice", "concept", id, []byte(`{}`), storage.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
	}
	if _, err := store.Put(ctx, "bob", "concept", "z", []byte(`{}`), storage.PutOptions{}); err != nil {
		t.Fatalf("put bob: %v", err)
	}

	page, err := store.List(ctx, "alice", storage.ListOptions{Collection: "concept", Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Objects) != 2 || page.Objects[0].ID != "a" || !page.Truncated {
		t.Fatalf("unexpected page %+v", page)
	}
	rest, err := store.List(ctx, "alice", storage.ListOptions{Collection: "concept", StartAfter: page.NextStartAfter})
	if err != nil {
		t.Fatalf("list rest: %v", err)
	}
	if len(rest.Objects) != 1 || rest.Objects[0].ID != "c" {
		t.Fatalf("unexpected rest %+v", rest)
	}

	namespaces, err := store.ListNamespaces(ctx)
	if err != nil {
		t.Fatalf("namespaces: %v", err)
	}
	if len(namespaces) != 2 || namespaces[0] != "alice" || namespaces[1] != "bob" {
		t.Fatalf("unexpected namespaces %v", namespaces)
	}
}
