package repositories

import (
	"context"
	"sync"

	domainerrors "crosspay.backend/internal/domain/errors"
)

// MemoryKeyValueRepository keeps values for the lifetime of the process
type MemoryKeyValueRepository struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryKeyValueRepository() *MemoryKeyValueRepository {
	return &MemoryKeyValueRepository{values: make(map[string]string)}
}

func (r *MemoryKeyValueRepository) Get(_ context.Context, key string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	value, ok := r.values[key]
	if !ok {
		return "", domainerrors.ErrNotFound
	}
	return value, nil
}

func (r *MemoryKeyValueRepository) Set(_ context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = value
	return nil
}

func (r *MemoryKeyValueRepository) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.values, key)
	return nil
}
