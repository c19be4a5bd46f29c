package catalog

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// BookSource is the part of the API the cache reads through.
type BookSource interface {
	ListBooks(ctx context.Context) ([]Book, error)
	GetBook(ctx context.Context, id string) (Book, error)
}

// BookCache keeps recently seen books for display and add-to-cart lookups.
// Stock read from here is as stale as ttl allows; checkout never uses it.
type BookCache struct {
	src   BookSource
	books *expirable.LRU[string, Book]
}

func NewBookCache(src BookSource, size int, ttl time.Duration) *BookCache {
	if size <= 0 {
		size = 512
	}
	return &BookCache{src: src, books: expirable.NewLRU[string, Book](size, nil, ttl)}
}

// List always goes to the API and refreshes the cached entries.
func (c *BookCache) List(ctx context.Context) ([]Book, error) {
	books, err := c.src.ListBooks(ctx)
	if err != nil {
		return nil, err
	}
	for _, b := range books {
		c.books.Add(b.ID, b)
	}
	return books, nil
}

func (c *BookCache) Get(ctx context.Context, id string) (Book, error) {
	if b, ok := c.books.Get(id); ok {
		return b, nil
	}
	b, err := c.src.GetBook(ctx, id)
	if err != nil {
		return b, err
	}
	c.books.Add(b.ID, b)
	return b, nil
}

func (c *BookCache) Forget(id string) { c.books.Remove(id) }
