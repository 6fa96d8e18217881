package memcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/sync/singleflight"
)

// HashKey 生成定长缓存键，避免把长文本直接当键。
func HashKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// Fetcher 将二级缓存与上游取数函数组合，并用 singleflight
// 合并同一键的并发未命中，保证上游只被取一次。
type Fetcher[V any] struct {
	cache *Tiered[V]
	group singleflight.Group
	fetch func(ctx context.Context, key string) (V, int64, error)
}

// NewFetcher 创建取数器。fetch 返回值与其 sizeHint。
func NewFetcher[V any](cache *Tiered[V], fetch func(ctx context.Context, key string) (V, int64, error)) *Fetcher[V] {
	return &Fetcher[V]{cache: cache, fetch: fetch}
}

// Get 命中直接返回；未命中时经 singleflight 取数并写回缓存。
// 取数失败由调用方处理，缓存不记录失败结果。
func (f *Fetcher[V]) Get(ctx context.Context, key string) (V, error) {
	if v, ok := f.cache.Get(ctx, key); ok {
		return v, nil
	}

	res, err, _ := f.group.Do(key, func() (any, error) {
		if v, ok := f.cache.Get(ctx, key); ok {
			return v, nil
		}
		v, size, err := f.fetch(ctx, key)
		if err != nil {
			return nil, err
		}
		f.cache.Set(ctx, key, v, size)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}
