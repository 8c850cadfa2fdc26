package cache

import (
	"sync"
	"time"

	"github.com/karlseguin/ccache/v3"
)

var DefaultInfoTTL = 1 * time.Hour

// Cache is a mutex-guarded in-memory LRU for catalog metadata lookups that
// are requested repeatedly within one batch run.
type Cache[T any] struct {
	c   *ccache.Cache[T]
	mux sync.Mutex
}

func New[T any](maxSize int64) *Cache[T] {
	return &Cache[T]{
		c: ccache.New(
			ccache.Configure[T]().
				MaxSize(maxSize).
				GetsPerPromote(3).
				ItemsToPrune(1),
		),
		mux: sync.Mutex{},
	}
}

func (c *Cache[T]) Fetch(k string, ttl time.Duration, fetch func() (T, error)) (T, error) {
	c.mux.Lock()
	defer c.mux.Unlock()
	item, err := c.c.Fetch(k, ttl, fetch)
	if nil != err {
		var zero T
		return zero, err
	}
	return item.Value(), nil
}
