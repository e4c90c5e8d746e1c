package cache

import (
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Config 缓存配置
type Config struct {
	Type              string        `env:"CACHE_TYPE"`
	DefaultExpiration time.Duration `env:"CACHE_DEFAULT_EXPIRATION"`
	CleanupInterval   time.Duration `env:"CACHE_CLEANUP_INTERVAL"`
}

// Cache is a small read-through cache for derived, re-fetchable data. It must
// never hold authoritative state.
type Cache interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{}, ttl time.Duration)
	Delete(key string)
}

// NewCache 根据配置创建缓存实例
func NewCache(cfg Config) (Cache, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalCache(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// LocalCache 本地内存缓存
type LocalCache struct {
	c *gocache.Cache
}

func NewLocalCache(cfg Config) *LocalCache {
	expiration := cfg.DefaultExpiration
	if expiration <= 0 {
		expiration = time.Minute
	}
	cleanup := cfg.CleanupInterval
	if cleanup <= 0 {
		cleanup = 5 * time.Minute
	}
	return &LocalCache{c: gocache.New(expiration, cleanup)}
}

func (l *LocalCache) Get(key string) (interface{}, bool) {
	return l.c.Get(key)
}

func (l *LocalCache) Set(key string, value interface{}, ttl time.Duration) {
	l.c.Set(key, value, ttl)
}

func (l *LocalCache) Delete(key string) {
	l.c.Delete(key)
}
