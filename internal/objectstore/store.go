// Package objectstore is the staging area between pipeline stages.
package objectstore

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrNotFound is returned by Get for missing objects.
	ErrNotFound = errors.New("object not found")
	// ErrBucketNotFound is returned when the bucket itself does not exist.
	ErrBucketNotFound = errors.New("bucket not found")
)

// ObjectInfo describes one listed object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Store is the subset of an S3-style API the pipeline needs.
type Store interface {
	// EnsureBucket creates the bucket if it does not exist. An existing bucket is not an error.
	EnsureBucket(ctx context.Context, bucket string) error
	Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error
	// Get opens a streaming read. The caller closes it.
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	// List returns every object under prefix, recursively, in key order.
	List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
}
