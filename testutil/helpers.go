package testutil

import (
	"context"
	"sync"
	"testing"
	"time"
)

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// FixedClock 是可手动推进的确定性时钟，供依赖注入 Now 的组件使用。
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedClock 创建定格在 t 的时钟
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{now: t}
}

// Now 返回当前时刻
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance 将时钟向前推进 d
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set 将时钟定格到 t
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
