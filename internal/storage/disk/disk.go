// Package disk implements a filesystem storage backend. Objects live
// under <root>/<namespace>/<collection>/<id>.json and every write goes
// through a temp file plus rename so readers never observe partial
// content. ETags are the hex SHA-256 of the object body.
package disk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/UOR-Foundation/uordb/internal/storage"
)

const objectSuffix = ".json"

// Config carries disk backend settings.
type Config struct {
	// Root is the directory holding all namespaces.
	Root string
}

// Store is the filesystem backend.
type Store struct {
	root   string
	tmpDir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New prepares the root and temp directories and returns a Store.
func New(cfg Config) (*Store, error) {
	if cfg.Root == "" {
		return nil, errors.New("disk: root directory required")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("disk: resolve root: %w", err)
	}
	tmpDir := filepath.Join(root, ".tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("disk: prepare %q: %w", tmpDir, err)
	}
	return &Store{
		root:   root,
		tmpDir: tmpDir,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

func (s *Store) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}

func (s *Store) objectPath(namespace, collection, id string) string {
	return filepath.Join(s.root, namespace, collection, filepath.FromSlash(id)+objectSuffix)
}

func etagOf(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Get fetches one object.
func (s *Store) Get(_ context.Context, namespace, collection, id string) (storage.GetResult, error) {
	path := s.objectPath(namespace, collection, id)
	body, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return storage.GetResult{}, storage.ErrNotFound
		}
		return storage.GetResult{}, storage.NewTransientError(fmt.Errorf("disk: read %q: %w", path, err))
	}
	stat, err := os.Stat(path)
	if err != nil {
		return storage.GetResult{}, storage.NewTransientError(fmt.Errorf("disk: stat %q: %w", path, err))
	}
	return storage.GetResult{
		Body: body,
		Info: storage.ObjectInfo{
			Namespace:    namespace,
			Collection:   collection,
			ID:           id,
			ETag:         etagOf(body),
			Size:         int64(len(body)),
			LastModified: stat.ModTime().UTC(),
		},
	}, nil
}

// Put writes an object atomically, enforcing CAS when requested.
func (s *Store) Put(_ context.Context, namespace, collection, id string, body []byte, opts storage.PutOptions) (storage.ObjectInfo, error) {
	path := s.objectPath(namespace, collection, id)
	lock := s.keyLock(path)
	lock.Lock()
	defer lock.Unlock()

	existing, err := os.ReadFile(path)
	exists := err == nil
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return storage.ObjectInfo{}, storage.NewTransientError(fmt.Errorf("disk: read %q: %w", path, err))
	}
	switch {
	case opts.ExpectedETag != "":
		if !exists || etagOf(existing) != opts.ExpectedETag {
			return storage.ObjectInfo{}, storage.ErrCASMismatch
		}
	case opts.IfNotExists:
		if exists {
			return storage.ObjectInfo{}, storage.ErrCASMismatch
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("disk: prepare %q: %w", filepath.Dir(path), err)
	}
	tmp, err := os.CreateTemp(s.tmpDir, "object-*")
	if err != nil {
		return storage.ObjectInfo{}, storage.NewTransientError(fmt.Errorf("disk: create temp: %w", err))
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return storage.ObjectInfo{}, storage.NewTransientError(fmt.Errorf("disk: write temp: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return storage.ObjectInfo{}, storage.NewTransientError(fmt.Errorf("disk: close temp: %w", err))
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return storage.ObjectInfo{}, storage.NewTransientError(fmt.Errorf("disk: rename into %q: %w", path, err))
	}
	stat, err := os.Stat(path)
	if err != nil {
		return storage.ObjectInfo{}, storage.NewTransientError(fmt.Errorf("disk: stat %q: %w", path, err))
	}
	return storage.ObjectInfo{
		Namespace:    namespace,
		Collection:   collection,
		ID:           id,
		ETag:         etagOf(body),
		Size:         int64(len(body)),
		LastModified: stat.ModTime().UTC(),
	}, nil
}

// Delete removes one object.
func (s *Store) Delete(_ context.Context, namespace, collection, id string, opts storage.DeleteOptions) error {
	path := s.objectPath(namespace, collection, id)
	lock := s.keyLock(path)
	lock.Lock()
	defer lock.Unlock()

	existing, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if opts.IgnoreNotFound {
				return nil
			}
			return storage.ErrNotFound
		}
		return storage.NewTransientError(fmt.Errorf("disk: read %q: %w", path, err))
	}
	if opts.ExpectedETag != "" && etagOf(existing) != opts.ExpectedETag {
		return storage.ErrCASMismatch
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return storage.NewTransientError(fmt.Errorf("disk: remove %q: %w", path, err))
	}
	return nil
}

// List enumerates objects within a namespace in lexical order of
// collection/id.
func (s *Store) List(ctx context.Context, namespace string, opts storage.ListOptions) (storage.ListResult, error) {
	nsDir := filepath.Join(s.root, namespace)
	walkRoot := nsDir
	if opts.Collection != "" {
		walkRoot = filepath.Join(nsDir, opts.Collection)
	}
	var keys []string
	err := filepath.WalkDir(walkRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), objectSuffix) {
			return nil
		}
		rel, err := filepath.Rel(nsDir, path)
		if err != nil {
			return err
		}
		key := strings.TrimSuffix(filepath.ToSlash(rel), objectSuffix)
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return storage.ListResult{}, storage.NewTransientError(fmt.Errorf("disk: walk %q: %w", walkRoot, err))
	}
	sort.Strings(keys)

	result := storage.ListResult{}
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return storage.ListResult{}, err
		}
		if opts.StartAfter != "" && key <= opts.StartAfter {
			continue
		}
		if opts.Limit > 0 && len(result.Objects) >= opts.Limit {
			result.Truncated = true
			result.NextStartAfter = result.Objects[len(result.Objects)-1].Collection + "/" + result.Objects[len(result.Objects)-1].ID
			break
		}
		collection, id, ok := strings.Cut(key, "/")
		if !ok {
			continue
		}
		got, err := s.Get(ctx, namespace, collection, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return storage.ListResult{}, err
		}
		result.Objects = append(result.Objects, got.Info)
	}
	return result, nil
}

// ListNamespaces reports every namespace directory under the root.
func (s *Store) ListNamespaces(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, storage.NewTransientError(fmt.Errorf("disk: read %q: %w", s.root, err))
	}
	var out []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		out = append(out, entry.Name())
	}
	sort.Strings(out)
	return out, nil
}

// Close releases backend resources.
func (s *Store) Close() error {
	return nil
}

var (
	_ storage.Backend         = (*Store)(nil)
	_ storage.NamespaceLister = (*Store)(nil)
)
