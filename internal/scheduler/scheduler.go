// Package scheduler provides owned background tasks for cache sweeps
// and memory expiry. This package is internal and should not be
// imported by external projects.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// ⏰ 周期任务调度器
// =============================================================================

// Scheduler 持有一组命名的周期任务，与缓存/存储同生命周期，
// 通过显式 Stop 关闭，不依赖进程级信号处理。
type Scheduler struct {
	mu      sync.Mutex
	cancel  context.CancelFunc
	ctx     context.Context
	wg      sync.WaitGroup
	stopped bool
	logger  *zap.Logger
}

// New 创建调度器
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With(zap.String("component", "scheduler")),
	}
}

// Every 注册并启动一个周期任务。任务在 panic 之外的错误上自行
// 决定是否记录；调度器只负责节拍与关停。
func (s *Scheduler) Every(name string, interval time.Duration, task func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || interval <= 0 {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		s.logger.Debug("scheduled task started",
			zap.String("task", name),
			zap.Duration("interval", interval))

		for {
			select {
			case <-s.ctx.Done():
				s.logger.Debug("scheduled task stopped", zap.String("task", name))
				return
			case <-ticker.C:
				task(s.ctx)
			}
		}
	}()
}

// Stop 停止所有任务并等待退出。幂等。
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}
