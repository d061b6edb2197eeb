package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a named object does not exist
var ErrNotFound = errors.New("not found")

// BlobStore defines the contract for raw object storage
type BlobStore interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}
