package cache

import (
	"sync"

	"github.com/archivekit/vaultline/log"
)

// Cache is a generic, mutex-guarded in-memory key-value store. It backs the
// job-status table behind GET /task/{id}.
type Cache[T interface{}] struct {
	cache map[string]T
	mutex sync.Mutex
}

func New[T interface{}]() *Cache[T] {
	return &Cache[T]{
		cache: make(map[string]T),
	}
}

func (c *Cache[T]) Remove(jobID, key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.cache, key)
	log.Log(jobID, "deleting from cache", "key", key)
}

func (c *Cache[T]) Get(key string) T {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	info, ok := c.cache[key]
	if ok {
		return info
	}
	var zero T
	return zero
}

func (c *Cache[T]) GetAll() map[string]T {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	out := make(map[string]T, len(c.cache))
	for k, v := range c.cache {
		out[k] = v
	}
	return out
}

func (c *Cache[T]) Store(key string, value T) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.cache[key] = value
}

func (c *Cache[T]) UnittestIntrospection() *map[string]T {
	return &c.cache
}
