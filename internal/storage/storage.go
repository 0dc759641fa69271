// Package storage defines the backend contract for persisting UOR
// objects. Objects are keyed by (namespace, collection, id) where the
// collection is the object type, and every write is guarded by
// ETag-based compare-and-swap.
package storage

import (
	"context"
	"errors"
	"time"
)

// ContentTypeJSON is the content type every stored object carries.
const ContentTypeJSON = "application/json"

// ResolverCollection is the collection holding cross-namespace
// resolver records.
const ResolverCollection = "resolver"

var (
	ErrNotFound       = errors.New("storage: not found")
	ErrCASMismatch    = errors.New("storage: cas mismatch")
	ErrNotImplemented = errors.New("storage: not implemented")
)

// ObjectInfo captures the metadata backends expose per object.
type ObjectInfo struct {
	Namespace    string
	Collection   string
	ID           string
	ETag         string
	Size         int64
	LastModified time.Time
}

// PutOptions controls conditional semantics for Put.
type PutOptions struct {
	// ExpectedETag enables CAS. When empty, no CAS is enforced.
	ExpectedETag string
	// IfNotExists enforces creation-only semantics. Ignored when
	// ExpectedETag is provided.
	IfNotExists bool
}

// DeleteOptions controls conditional semantics for Delete.
type DeleteOptions struct {
	ExpectedETag   string
	IgnoreNotFound bool
}

// ListOptions guides List traversal within one namespace.
type ListOptions struct {
	// Collection limits the listing to one collection when set.
	Collection string
	// StartAfter resumes after the supplied collection/id key.
	StartAfter string
	// Limit caps the number of returned entries when >0.
	Limit int
}

// ListResult captures one page of a listing.
type ListResult struct {
	Objects        []ObjectInfo
	NextStartAfter string
	Truncated      bool
}

// GetResult pairs an object's body with its metadata.
type GetResult struct {
	Body []byte
	Info ObjectInfo
}

// Backend is the storage contract the server and resolver depend on.
// Listings are returned in ascending lexical order of collection/id.
type Backend interface {
	// Get fetches one object. Returns ErrNotFound when absent.
	Get(ctx context.Context, namespace, collection, id string) (GetResult, error)
	// Put writes an object, applying conditional semantics when
	// opts.ExpectedETag or opts.IfNotExists is set.
	Put(ctx context.Context, namespace, collection, id string, body []byte, opts PutOptions) (ObjectInfo, error)
	// Delete removes one object, optionally enforcing a matching
	// ETag via opts.ExpectedETag.
	Delete(ctx context.Context, namespace, collection, id string, opts DeleteOptions) error
	// List enumerates objects within a namespace.
	List(ctx context.Context, namespace string, opts ListOptions) (ListResult, error)
	// Close releases backend resources.
	Close() error
}

// NamespaceLister reports all namespaces present in the backend, when
// the backend supports enumerating them.
type NamespaceLister interface {
	ListNamespaces(ctx context.Context) ([]string, error)
}

// ChangeSubscription receives signals when watched objects change.
type ChangeSubscription interface {
	Events() <-chan struct{}
	Close() error
}

// ChangeFeed indicates the backend can emit change notifications for a
// collection, used to invalidate resolution caches when resolver
// records mutate outside the server.
type ChangeFeed interface {
	SubscribeChanges(namespace, collection string) (ChangeSubscription, error)
}

type transientError struct {
	err error
}

func (t transientError) Error() string { return t.err.Error() }
func (t transientError) Unwrap() error { return t.err }

// NewTransientError marks err as retryable.
func NewTransientError(err error) error {
	if err == nil {
		return nil
	}
	return transientError{err: err}
}

// IsTransient reports whether err was marked as retryable.
func IsTransient(err error) bool {
	var te transientError
	return errors.As(err, &te)
}
