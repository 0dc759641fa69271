// Package s3 implements a storage backend on any S3-compatible object
// store via the MinIO client. Conditional writes use If-Match and
// If-None-Match so CAS is enforced server side.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/UOR-Foundation/uordb/internal/storage"
)

const objectSuffix = ".json"

// Config carries S3 backend settings.
type Config struct {
	// Endpoint defaults to AWS S3 for the configured region.
	Endpoint string
	Bucket   string
	Prefix   string
	Region   string
	// Insecure disables TLS, used against local test servers.
	Insecure bool
	// ForcePathStyle selects path-style bucket addressing.
	ForcePathStyle bool
	// CustomCreds overrides the default environment credential chain.
	CustomCreds *credentials.Credentials
	Transport   http.RoundTripper
}

// Store is the S3 backend.
type Store struct {
	client *minio.Client
	cfg    Config
}

// New constructs a Store from cfg.
func New(cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		if cfg.Region != "" {
			endpoint = fmt.Sprintf("s3.%s.amazonaws.com", cfg.Region)
		} else {
			endpoint = "s3.amazonaws.com"
		}
	}
	if cfg.Transport == nil {
		cfg.Transport = defaultTransport()
	}
	creds := cfg.CustomCreds
	if creds == nil {
		creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.EnvMinio{},
			&credentials.FileAWSCredentials{},
			&credentials.IAM{},
		})
	}
	options := &minio.Options{
		Creds:     creds,
		Secure:    !cfg.Insecure,
		Region:    cfg.Region,
		Transport: cfg.Transport,
	}
	if cfg.ForcePathStyle {
		options.BucketLookup = minio.BucketLookupPath
	}
	client, err := minio.New(endpoint, options)
	if err != nil {
		return nil, fmt.Errorf("s3: create client: %w", err)
	}
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	return &Store{client: client, cfg: cfg}, nil
}

func defaultTransport() http.RoundTripper {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return http.DefaultTransport
	}
	clone := base.Clone()
	if clone.MaxIdleConnsPerHost == 0 {
		clone.MaxIdleConnsPerHost = 64
	}
	if clone.IdleConnTimeout == 0 {
		clone.IdleConnTimeout = 90 * time.Second
	}
	return clone
}

func (s *Store) objectKey(namespace, collection, id string) string {
	key := namespace + "/" + collection + "/" + id + objectSuffix
	if s.cfg.Prefix != "" {
		key = s.cfg.Prefix + "/" + key
	}
	return key
}

func (s *Store) namespacePrefix(namespace string) string {
	prefix := namespace + "/"
	if s.cfg.Prefix != "" {
		prefix = s.cfg.Prefix + "/" + prefix
	}
	return prefix
}

// Get fetches one object.
func (s *Store) Get(ctx context.Context, namespace, collection, id string) (storage.GetResult, error) {
	key := s.objectKey(namespace, collection, id)
	obj, err := s.client.GetObject(ctx, s.cfg.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return storage.GetResult{}, mapError(fmt.Errorf("s3: get %q: %w", key, err))
	}
	defer obj.Close()
	body, err := io.ReadAll(obj)
	if err != nil {
		return storage.GetResult{}, mapError(fmt.Errorf("s3: read %q: %w", key, err))
	}
	stat, err := obj.Stat()
	if err != nil {
		return storage.GetResult{}, mapError(fmt.Errorf("s3: stat %q: %w", key, err))
	}
	return storage.GetResult{
		Body: body,
		Info: storage.ObjectInfo{
			Namespace:    namespace,
			Collection:   collection,
			ID:           id,
			ETag:         stat.ETag,
			Size:         stat.Size,
			LastModified: stat.LastModified.UTC(),
		},
	}, nil
}

// Put writes an object with server-side conditional semantics.
func (s *Store) Put(ctx context.Context, namespace, collection, id string, body []byte, opts storage.PutOptions) (storage.ObjectInfo, error) {
	key := s.objectKey(namespace, collection, id)
	putOpts := minio.PutObjectOptions{ContentType: storage.ContentTypeJSON}
	switch {
	case opts.ExpectedETag != "":
		putOpts.SetMatchETag(opts.ExpectedETag)
	case opts.IfNotExists:
		putOpts.SetMatchETagExcept("*")
	}
	info, err := s.client.PutObject(ctx, s.cfg.Bucket, key, bytes.NewReader(body), int64(len(body)), putOpts)
	if err != nil {
		return storage.ObjectInfo{}, mapError(fmt.Errorf("s3: put %q: %w", key, err))
	}
	return storage.ObjectInfo{
		Namespace:    namespace,
		Collection:   collection,
		ID:           id,
		ETag:         info.ETag,
		Size:         info.Size,
		LastModified: info.LastModified.UTC(),
	}, nil
}

// Delete removes one object. CAS is checked via StatObject before the
// remove; S3 offers no conditional delete.
func (s *Store) Delete(ctx context.Context, namespace, collection, id string, opts storage.DeleteOptions) error {
	key := s.objectKey(namespace, collection, id)
	stat, err := s.client.StatObject(ctx, s.cfg.Bucket, key, minio.StatObjectOptions{})
	if err != nil {
		err = mapError(fmt.Errorf("s3: stat %q: %w", key, err))
		if errors.Is(err, storage.ErrNotFound) && opts.IgnoreNotFound {
			return nil
		}
		return err
	}
	if opts.ExpectedETag != "" && stat.ETag != opts.ExpectedETag {
		return storage.ErrCASMismatch
	}
	if err := s.client.RemoveObject(ctx, s.cfg.Bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return mapError(fmt.Errorf("s3: remove %q: %w", key, err))
	}
	return nil
}

// List enumerates objects within a namespace in ascending key order.
func (s *Store) List(ctx context.Context, namespace string, opts storage.ListOptions) (storage.ListResult, error) {
	prefix := s.namespacePrefix(namespace)
	if opts.Collection != "" {
		prefix += opts.Collection + "/"
	}
	listOpts := minio.ListObjectsOptions{Prefix: prefix, Recursive: true}
	if opts.StartAfter != "" {
		listOpts.StartAfter = s.namespacePrefix(namespace) + opts.StartAfter + objectSuffix
	}
	result := storage.ListResult{}
	for obj := range s.client.ListObjects(ctx, s.cfg.Bucket, listOpts) {
		if obj.Err != nil {
			return storage.ListResult{}, mapError(fmt.Errorf("s3: list %q: %w", prefix, obj.Err))
		}
		rel := strings.TrimPrefix(obj.Key, s.namespacePrefix(namespace))
		rel = strings.TrimSuffix(rel, objectSuffix)
		collection, id, ok := strings.Cut(rel, "/")
		if !ok {
			continue
		}
		if opts.Limit > 0 && len(result.Objects) >= opts.Limit {
			result.Truncated = true
			result.NextStartAfter = result.Objects[len(result.Objects)-1].Collection + "/" + result.Objects[len(result.Objects)-1].ID
			break
		}
		result.Objects = append(result.Objects, storage.ObjectInfo{
			Namespace:    namespace,
			Collection:   collection,
			ID:           id,
			ETag:         obj.ETag,
			Size:         obj.Size,
			LastModified: obj.LastModified.UTC(),
		})
	}
	return result, ctx.Err()
}

// ListNamespaces enumerates the top-level namespace prefixes.
func (s *Store) ListNamespaces(ctx context.Context) ([]string, error) {
	prefix := ""
	if s.cfg.Prefix != "" {
		prefix = s.cfg.Prefix + "/"
	}
	seen := make(map[string]struct{})
	for obj := range s.client.ListObjects(ctx, s.cfg.Bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, mapError(fmt.Errorf("s3: list namespaces: %w", obj.Err))
		}
		rel := strings.TrimPrefix(obj.Key, prefix)
		ns, _, ok := strings.Cut(rel, "/")
		if !ok {
			continue
		}
		seen[ns] = struct{}{}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(seen))
	for ns := range seen {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out, nil
}

// BucketExists reports whether the configured bucket exists.
func (s *Store) BucketExists(ctx context.Context) (bool, error) {
	return s.client.BucketExists(ctx, s.cfg.Bucket)
}

// Close satisfies storage.Backend and is a no-op for the S3 client.
func (s *Store) Close() error { return nil }

func mapError(err error) error {
	if err == nil {
		return nil
	}
	resp := minio.ToErrorResponse(err)
	switch resp.StatusCode {
	case http.StatusNotFound:
		return storage.ErrNotFound
	case http.StatusPreconditionFailed:
		return storage.ErrCASMismatch
	}
	if isRetryable(err, resp) {
		return storage.NewTransientError(err)
	}
	return err
}

func isRetryable(err error, resp minio.ErrorResponse) bool {
	if resp.StatusCode >= http.StatusInternalServerError ||
		resp.StatusCode == http.StatusTooManyRequests ||
		resp.StatusCode == http.StatusRequestTimeout {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	return false
}

var (
	_ storage.Backend         = (*Store)(nil)
	_ storage.NamespaceLister = (*Store)(nil)
)
