// Persistencia del carrito: un blob por clave
package cart

import (
	"context"
	"errors"
	"sync"
)

var ErrNotFound = errors.New("not found")

// Repository is the durable key-value store holding serialized carts. Get
// returns ErrNotFound when nothing was ever stored under key.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

type memoryRepo struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryRepo keeps blobs in process memory. Used when no database path
// is configured and in tests.
func NewMemoryRepo() Repository { return &memoryRepo{blobs: map[string][]byte{}} }

func (r *memoryRepo) Get(_ context.Context, key string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.blobs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (r *memoryRepo) Set(_ context.Context, key string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blobs[key] = append([]byte(nil), data...)
	return nil
}

func (r *memoryRepo) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.blobs, key)
	return nil
}
