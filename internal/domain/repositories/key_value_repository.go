package repositories

import "context"

// KeyValueStore persists opaque string values under a key.
// Get returns domainerrors.ErrNotFound for a missing key.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
