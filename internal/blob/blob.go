package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no object exists at key.
var ErrNotFound = errors.New("blob not found")

// Store keeps reference images under slash separated keys.
type Store interface {
	// Put writes data at key and returns where it landed (URL or key).
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// List returns every key starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}
