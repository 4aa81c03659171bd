package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	TypeLocal = "local"
	TypeRedis = "redis"
)

// Cache common cache abstraction
type Cache interface {
	Get(ctx context.Context, key string) (interface{}, bool)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) bool
	Clear(ctx context.Context) error
	Close() error
}

// Config cache configuration
type Config struct {
	Type  string
	Redis RedisConfig
	Local LocalConfig
}

// RedisConfig redis connection settings
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	KeyPrefix    string
}

// LocalConfig in-process cache settings
type LocalConfig struct {
	MaxSize           int
	DefaultExpiration time.Duration
	CleanupInterval   time.Duration
}

// NewCache creates a cache by type
func NewCache(config Config) (Cache, error) {
	switch config.Type {
	case TypeRedis:
		return NewRedisCache(config.Redis)
	case TypeLocal, "":
		return NewLocalCache(config.Local), nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", config.Type)
	}
}
