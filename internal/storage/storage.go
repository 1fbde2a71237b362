package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when no object exists under the given key.
var ErrNotFound = errors.New("object not found")

// Store is the narrow contract to the file backend. The rest of the system
// only ever puts, gets, deletes and stats whole objects by key.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader) (int64, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Stat(ctx context.Context, key string) (int64, error)
}
