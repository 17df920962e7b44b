// Package storage defines the object store gateway used by the file service.
// Two drivers are provided: MinIO (minio-go) and generic S3 (aws-sdk-go-v2).
// Both address a single bucket fixed at construction time.
package storage

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

// DefaultRegion is used when creating a missing bucket and no region is configured.
const DefaultRegion = "us-east-1"

var (
	// ErrNotFound is returned by Get when the key does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrUnavailable wraps transport, credential and other backend failures.
	ErrUnavailable = errors.New("object storage unavailable")
)

// Gateway is the capability the file service needs from an object store.
type Gateway interface {
	// EnsureBucket creates the named bucket if it does not exist yet.
	// Losing a concurrent creation race is not an error.
	EnsureBucket(ctx context.Context, name string) error
	// Put uploads size bytes from r under key.
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	// Get opens the object stored under key. The caller must close it.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Remove deletes the object under key. A missing key is not an error.
	Remove(ctx context.Context, key string) error
}

// bucketGuard runs the bucket-ensure step once per process. A failed attempt
// is not remembered, so the next operation tries again.
type bucketGuard struct {
	ready atomic.Bool
	mu    sync.Mutex
}

func (g *bucketGuard) do(ctx context.Context, ensure func(context.Context) error) error {
	if g.ready.Load() {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ready.Load() {
		return nil
	}
	if err := ensure(ctx); err != nil {
		return err
	}
	g.ready.Store(true)
	return nil
}
