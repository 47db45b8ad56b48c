// Package storage provides the opaque key/value collaborator used for
// session-usage persistence. Two drivers exist: Redis and an in-memory
// fallback. Callers only ever see the Store interface.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when a key does not exist or has expired.
var ErrNotFound = errors.New("storage: key not found")

// Store is an async get/set-with-ttl/delete service over opaque string
// keys.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Disconnect() error
}
