// Package storage stores analysis documents in S3-compatible object storage.
package storage

import (
	"context"
	"errors"
)

// ErrObjectNotFound is returned by GetObject when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStorage captures the minimal S3-compatible operations the document
// store needs.
type ObjectStorage interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	GetObject(ctx context.Context, key string) ([]byte, error)
	DeleteObject(ctx context.Context, key string) error
}
