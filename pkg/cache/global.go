package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

var (
	globalCache Cache
	globalOnce  sync.Once
	globalMu    sync.RWMutex
)

// InitGlobalCache initialises the global cache instance
func InitGlobalCache(config Config) error {
	var err error
	globalOnce.Do(func() {
		globalMu.Lock()
		defer globalMu.Unlock()

		globalCache, err = NewCache(config)
	})
	return err
}

// GetGlobalCache returns the global cache, falling back to a default local cache
func GetGlobalCache() Cache {
	globalMu.RLock()
	if globalCache != nil {
		globalMu.RUnlock()
		return globalCache
	}
	globalMu.RUnlock()

	globalMu.Lock()
	defer globalMu.Unlock()

	if globalCache == nil {
		globalCache = NewLocalCache(LocalConfig{
			MaxSize:           1000,
			DefaultExpiration: 5 * time.Minute,
			CleanupInterval:   10 * time.Minute,
		})
	}
	return globalCache
}

// SetGlobalCache replaces the global cache (mainly for tests)
func SetGlobalCache(c Cache) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalCache = c
}

// CloseGlobalCache closes the global cache connection
func CloseGlobalCache() error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalCache != nil {
		err := globalCache.Close()
		globalCache = nil
		return err
	}
	return nil
}

// GetInto reads key into out. Local entries of the same type are copied directly;
// redis entries are decoded from JSON.
func GetInto[T any](ctx context.Context, c Cache, key string, out *T) bool {
	v, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	switch val := v.(type) {
	case T:
		*out = val
		return true
	case *T:
		*out = *val
		return true
	case json.RawMessage:
		return json.Unmarshal(val, out) == nil
	}
	return false
}
