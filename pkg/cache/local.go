package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// LocalCache in-process cache backed by go-cache
type LocalCache struct {
	store   *gocache.Cache
	maxSize int
}

// NewLocalCache creates a local cache. MaxSize <= 0 means unbounded.
func NewLocalCache(config LocalConfig) *LocalCache {
	if config.DefaultExpiration == 0 {
		config.DefaultExpiration = 5 * time.Minute
	}
	if config.CleanupInterval == 0 {
		config.CleanupInterval = 10 * time.Minute
	}
	return &LocalCache{
		store:   gocache.New(config.DefaultExpiration, config.CleanupInterval),
		maxSize: config.MaxSize,
	}
}

func (l *LocalCache) Get(_ context.Context, key string) (interface{}, bool) {
	return l.store.Get(key)
}

func (l *LocalCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	if l.maxSize > 0 && l.store.ItemCount() >= l.maxSize {
		if _, found := l.store.Get(key); !found {
			l.store.DeleteExpired()
			if l.store.ItemCount() >= l.maxSize {
				// full: drop everything rather than grow without bound
				l.store.Flush()
			}
		}
	}
	if expiration == 0 {
		expiration = gocache.DefaultExpiration
	}
	l.store.Set(key, value, expiration)
	return nil
}

func (l *LocalCache) Delete(_ context.Context, key string) error {
	l.store.Delete(key)
	return nil
}

func (l *LocalCache) Exists(_ context.Context, key string) bool {
	_, ok := l.store.Get(key)
	return ok
}

func (l *LocalCache) Clear(_ context.Context) error {
	l.store.Flush()
	return nil
}

func (l *LocalCache) Close() error {
	return nil
}
