package memcache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Tiered 在本地有界缓存之上叠加可选的 Redis 二级。
// 二级未命中或出错都只降级为本地语义，从不向调用方报错。
type Tiered[V any] struct {
	local     *Cache[V]
	redis     *redis.Client
	keyPrefix string
	redisTTL  time.Duration
	logger    *zap.Logger
}

// NewTiered 创建二级缓存。rdb 为 nil 时退化为纯本地缓存。
func NewTiered[V any](local *Cache[V], rdb *redis.Client, keyPrefix string, redisTTL time.Duration, logger *zap.Logger) *Tiered[V] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tiered[V]{
		local:     local,
		redis:     rdb,
		keyPrefix: keyPrefix,
		redisTTL:  redisTTL,
		logger:    logger.With(zap.String("component", "memcache_tiered")),
	}
}

// Get 先查本地，本地未命中时查 Redis 并回填本地。
// 回填的 sizeHint 取序列化长度。
func (t *Tiered[V]) Get(ctx context.Context, key string) (V, bool) {
	if v, ok := t.local.Get(key); ok {
		return v, true
	}

	var zero V
	if t.redis == nil {
		return zero, false
	}

	data, err := t.redis.Get(ctx, t.redisKey(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			t.logger.Warn("redis get error", zap.Error(err))
		}
		return zero, false
	}

	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		t.logger.Warn("redis entry decode error", zap.Error(err))
		return zero, false
	}

	// 回填本地缓存
	t.local.Set(key, v, int64(len(data)))
	t.logger.Debug("redis cache hit", zap.String("key", key))
	return v, true
}

// Set 同时写本地与 Redis。
func (t *Tiered[V]) Set(ctx context.Context, key string, value V, sizeHint int64) {
	t.local.Set(key, value, sizeHint)

	if t.redis == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		t.logger.Warn("redis entry encode error", zap.Error(err))
		return
	}
	if err := t.redis.Set(ctx, t.redisKey(key), data, t.redisTTL).Err(); err != nil {
		t.logger.Warn("redis set error", zap.Error(err))
	}
}

// Invalidate 删除两级中的键。
func (t *Tiered[V]) Invalidate(ctx context.Context, key string) {
	t.local.Invalidate(key)
	if t.redis != nil {
		if err := t.redis.Del(ctx, t.redisKey(key)).Err(); err != nil {
			t.logger.Warn("redis del error", zap.Error(err))
		}
	}
}

// Local 返回底层本地缓存（统计与清扫入口）。
func (t *Tiered[V]) Local() *Cache[V] { return t.local }

func (t *Tiered[V]) redisKey(key string) string {
	return t.keyPrefix + key
}
