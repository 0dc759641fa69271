// Package memory implements an in-process storage backend. It is the
// default backend for tests and single-process deployments.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/UOR-Foundation/uordb/internal/storage"
)

type entry struct {
	body     []byte
	etag     string
	modified time.Time
}

// Store keeps all objects in memory guarded by one mutex.
type Store struct {
	mu         sync.Mutex
	namespaces map[string]map[string]entry
	subs       map[string][]*subscription
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		namespaces: make(map[string]map[string]entry),
		subs:       make(map[string][]*subscription),
	}
}

func objectKey(collection, id string) string {
	return collection + "/" + id
}

// Get fetches one object.
func (s *Store) Get(_ context.Context, namespace, collection, id string) (storage.GetResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.namespaces[namespace]
	if !ok {
		return storage.GetResult{}, storage.ErrNotFound
	}
	e, ok := ns[objectKey(collection, id)]
	if !ok {
		return storage.GetResult{}, storage.ErrNotFound
	}
	body := append([]byte(nil), e.body...)
	return storage.GetResult{
		Body: body,
		Info: storage.ObjectInfo{
			Namespace:    namespace,
			Collection:   collection,
			ID:           id,
			ETag:         e.etag,
			Size:         int64(len(body)),
			LastModified: e.modified,
		},
	}, nil
}

// Put writes an object, enforcing CAS when requested.
func (s *Store) Put(_ context.Context, namespace, collection, id string, body []byte, opts storage.PutOptions) (storage.ObjectInfo, error) {
	s.mu.Lock()
	ns, ok := s.namespaces[namespace]
	if !ok {
		ns = make(map[string]entry)
		s.namespaces[namespace] = ns
	}
	key := objectKey(collection, id)
	existing, exists := ns[key]
	switch {
	case opts.ExpectedETag != "":
		if !exists || existing.etag != opts.ExpectedETag {
			s.mu.Unlock()
			return storage.ObjectInfo{}, storage.ErrCASMismatch
		}
	case opts.IfNotExists:
		if exists {
			s.mu.Unlock()
			return storage.ObjectInfo{}, storage.ErrCASMismatch
		}
	}
	e := entry{
		body:     append([]byte(nil), body...),
		etag:     uuid.NewString(),
		modified: time.Now().UTC(),
	}
	ns[key] = e
	s.mu.Unlock()
	s.notify(namespace, collection)
	return storage.ObjectInfo{
		Namespace:    namespace,
		Collection:   collection,
		ID:           id,
		ETag:         e.etag,
		Size:         int64(len(e.body)),
		LastModified: e.modified,
	}, nil
}

// Delete removes one object.
func (s *Store) Delete(_ context.Context, namespace, collection, id string, opts storage.DeleteOptions) error {
	s.mu.Lock()
	ns, ok := s.namespaces[namespace]
	key := objectKey(collection, id)
	var existing entry
	if ok {
		existing, ok = ns[key]
	}
	if !ok {
		s.mu.Unlock()
		if opts.IgnoreNotFound {
			return nil
		}
		return storage.ErrNotFound
	}
	if opts.ExpectedETag != "" && existing.etag != opts.ExpectedETag {
		s.mu.Unlock()
		return storage.ErrCASMismatch
	}
	delete(ns, key)
	if len(ns) == 0 {
		delete(s.namespaces, namespace)
	}
	s.mu.Unlock()
	s.notify(namespace, collection)
	return nil
}

// List enumerates objects within a namespace in lexical order.
func (s *Store) List(_ context.Context, namespace string, opts storage.ListOptions) (storage.ListResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns := s.namespaces[namespace]
	keys := make([]string, 0, len(ns))
	prefix := ""
	if opts.Collection != "" {
		prefix = opts.Collection + "/"
	}
	for key := range ns {
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			continue
		}
		if opts.StartAfter != "" && key <= opts.StartAfter {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	result := storage.ListResult{}
	for _, key := range keys {
		if opts.Limit > 0 && len(result.Objects) >= opts.Limit {
			result.Truncated = true
			result.NextStartAfter = result.Objects[len(result.Objects)-1].Collection + "/" + result.Objects[len(result.Objects)-1].ID
			break
		}
		e := ns[key]
		collection, id, _ := strings.Cut(key, "/")
		result.Objects = append(result.Objects, storage.ObjectInfo{
			Namespace:    namespace,
			Collection:   collection,
			ID:           id,
			ETag:         e.etag,
			Size:         int64(len(e.body)),
			LastModified: e.modified,
		})
	}
	return result, nil
}

// ListNamespaces reports every namespace holding at least one object.
func (s *Store) ListNamespaces(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.namespaces))
	for ns := range s.namespaces {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out, nil
}

type subscription struct {
	store  *Store
	key    string
	events chan struct{}
	once   sync.Once
}

// Events returns the change signal channel.
func (s *subscription) Events() <-chan struct{} { return s.events }

// Close detaches the subscription.
func (s *subscription) Close() error {
	s.once.Do(func() {
		s.store.mu.Lock()
		subs := s.store.subs[s.key]
		for i, candidate := range subs {
			if candidate == s {
				s.store.subs[s.key] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		s.store.mu.Unlock()
	})
	return nil
}

// SubscribeChanges signals whenever an object in the collection mutates.
func (s *Store) SubscribeChanges(namespace, collection string) (storage.ChangeSubscription, error) {
	sub := &subscription{
		store:  s,
		key:    namespace + "/" + collection,
		events: make(chan struct{}, 1),
	}
	s.mu.Lock()
	s.subs[sub.key] = append(s.subs[sub.key], sub)
	s.mu.Unlock()
	return sub, nil
}

func (s *Store) notify(namespace, collection string) {
	key := namespace + "/" + collection
	s.mu.Lock()
	subs := append([]*subscription(nil), s.subs[key]...)
	s.mu.Unlock()
	for _, sub := range subs {
		select {
		case sub.events <- struct{}{}:
		default:
		}
	}
}

// Close releases the store.
func (s *Store) Close() error {
	return nil
}

var (
	_ storage.Backend         = (*Store)(nil)
	_ storage.NamespaceLister = (*Store)(nil)
	_ storage.ChangeFeed      = (*Store)(nil)
)
