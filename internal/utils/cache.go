package utils

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// CacheItem 包装缓存数据和过期时间
type CacheItem struct {
	Data      any
	ExpiresAt time.Time
}

// GlobalCache 进程内 LRU 缓存，每个条目带 TTL
type GlobalCache struct {
	lruCache *lru.Cache[string, CacheItem]
	now      func() time.Time
}

var (
	cacheInstance *GlobalCache
	cacheOnce     sync.Once
)

// NewCache 创建指定容量的缓存
func NewCache(size int) (*GlobalCache, error) {
	l, err := lru.New[string, CacheItem](size)
	if err != nil {
		return nil, err
	}
	return &GlobalCache{lruCache: l, now: time.Now}, nil
}

// GetCache 获取单例缓存实例
func GetCache() *GlobalCache {
	cacheOnce.Do(func() {
		c, err := NewCache(500)
		if err != nil {
			zap.L().Fatal("failed to create LRU cache", zap.Error(err))
		}
		cacheInstance = c
	})
	return cacheInstance
}

// Set 设置缓存，TTL 为过期时间
func (c *GlobalCache) Set(key string, data any, ttl time.Duration) {
	c.lruCache.Add(key, CacheItem{
		Data:      data,
		ExpiresAt: c.now().Add(ttl),
	})
}

// Get 获取缓存，若不存在或已过期则返回 nil
func (c *GlobalCache) Get(key string) any {
	val, ok := c.lruCache.Get(key)
	if !ok {
		return nil
	}
	if c.now().After(val.ExpiresAt) {
		c.lruCache.Remove(key)
		return nil
	}
	return val.Data
}

// Delete 删除指定缓存
func (c *GlobalCache) Delete(key string) {
	c.lruCache.Remove(key)
}

// Purge 清空缓存
func (c *GlobalCache) Purge() {
	c.lruCache.Purge()
}
