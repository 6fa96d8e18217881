package memcache

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config 缓存预算配置
type Config struct {
	// MaxEntries 最大条目数，<=0 按 1 处理
	MaxEntries int

	// MaxBytes 最大字节数，0 表示不设字节上限
	MaxBytes int64

	// TTL 条目存活时间，<=0 表示永不过期
	TTL time.Duration

	// Now 用于测试的时钟注入，默认 time.Now
	Now func() time.Time
}

// Stats 缓存统计
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Entries int     `json:"entries"`
	Bytes   int64   `json:"bytes"`
	HitRate float64 `json:"hit_rate"`
}

// Cache 是带 TTL 与 LRU 淘汰的有界缓存。
// 使用双向链表实现 O(1) 的命中提升与尾部淘汰。
type Cache[V any] struct {
	mu sync.Mutex

	maxEntries int
	maxBytes   int64
	ttl        time.Duration
	now        func() time.Time

	items map[string]*node[V]
	head  *node[V] // 最近使用
	tail  *node[V] // 最久未使用

	bytes  int64
	hits   int64
	misses int64

	logger *zap.Logger
}

type node[V any] struct {
	key         string
	value       V
	size        int64
	createdAt   time.Time
	lastAccess  time.Time
	accessCount int64
	prev        *node[V]
	next        *node[V]
}

// New 创建有界缓存
func New[V any](cfg Config, logger *zap.Logger) *Cache[V] {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 1
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Cache[V]{
		maxEntries: cfg.MaxEntries,
		maxBytes:   cfg.MaxBytes,
		ttl:        cfg.TTL,
		now:        now,
		items:      make(map[string]*node[V]),
		logger:     logger.With(zap.String("component", "memcache")),
	}
}

// Get 查找缓存。命中时更新访问时间与计数；
// 已超过 TTL 的条目视为未命中并被惰性删除。
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	n, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, false
	}

	now := c.now()
	if c.expired(n, now) {
		c.removeLocked(n)
		c.misses++
		return zero, false
	}

	n.lastAccess = now
	n.accessCount++
	c.moveToHead(n)
	c.hits++
	return n.value, true
}

// Set 写入缓存。单条超过字节预算一半的条目被静默拒绝；
// 之后按 预算淘汰顺序：先清已过期条目，再按 LRU 从尾部淘汰，
// 直到条目数与字节数预算同时满足。
func (c *Cache[V]) Set(key string, value V, sizeHint int64) {
	if sizeHint < 0 {
		sizeHint = 0
	}

	// 准入控制：超大条目会挤掉整个工作集，直接拒绝
	if c.maxBytes > 0 && sizeHint > c.maxBytes/2 {
		c.logger.Debug("cache admission rejected",
			zap.String("key", key),
			zap.Int64("size", sizeHint),
			zap.Int64("max_bytes", c.maxBytes))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	if n, ok := c.items[key]; ok {
		c.bytes += sizeHint - n.size
		n.value = value
		n.size = sizeHint
		n.createdAt = now
		n.lastAccess = now
		c.moveToHead(n)
		c.evictLocked(now)
		return
	}

	n := &node[V]{
		key:        key,
		value:      value,
		size:       sizeHint,
		createdAt:  now,
		lastAccess: now,
	}
	c.items[key] = n
	c.bytes += sizeHint
	c.pushHead(n)

	c.evictLocked(now)
}

// Invalidate 删除单个键
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.items[key]; ok {
		c.removeLocked(n)
	}
}

// InvalidatePattern 删除所有满足谓词的键
func (c *Cache[V]) InvalidatePattern(match func(key string) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, n := range c.items {
		if match(key) {
			c.removeLocked(n)
			removed++
		}
	}
	return removed
}

// Sweep 移除所有已过期条目，供周期任务调用，
// 保证从不再被访问的键也能回收内存。
func (c *Cache[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for _, n := range c.items {
		if c.expired(n, now) {
			c.removeLocked(n)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Debug("cache sweep", zap.Int("removed", removed))
	}
	return removed
}

// Len 返回当前条目数
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats 返回命中统计
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Hits:    c.hits,
		Misses:  c.misses,
		Entries: len(c.items),
		Bytes:   c.bytes,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// Clear 清空缓存
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*node[V])
	c.head = nil
	c.tail = nil
	c.bytes = 0
}

func (c *Cache[V]) expired(n *node[V], now time.Time) bool {
	return c.ttl > 0 && now.Sub(n.createdAt) >= c.ttl
}

// evictLocked 按优先级淘汰：先删已过期条目，再按 LRU 从尾部淘汰
func (c *Cache[V]) evictLocked(now time.Time) {
	if c.overBudget() {
		for _, n := range c.items {
			if c.expired(n, now) {
				c.removeLocked(n)
				if !c.overBudget() {
					return
				}
			}
		}
	}

	for c.overBudget() && c.tail != nil {
		c.logger.Debug("cache lru evict", zap.String("key", c.tail.key))
		c.removeLocked(c.tail)
	}
}

func (c *Cache[V]) overBudget() bool {
	if len(c.items) > c.maxEntries {
		return true
	}
	return c.maxBytes > 0 && c.bytes > c.maxBytes
}

// ============================================================
// 双向链表操作（O(1)）
// ============================================================

func (c *Cache[V]) pushHead(n *node[V]) {
	n.prev = nil
	n.next = c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
}

func (c *Cache[V]) moveToHead(n *node[V]) {
	if c.head == n {
		return
	}
	c.unlink(n)
	c.pushHead(n)
}

func (c *Cache[V]) unlink(n *node[V]) {
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if c.head == n {
		c.head = n.next
	}
	if c.tail == n {
		c.tail = n.prev
	}
	n.prev = nil
	n.next = nil
}

func (c *Cache[V]) removeLocked(n *node[V]) {
	c.unlink(n)
	delete(c.items, n.key)
	c.bytes -= n.size
}
