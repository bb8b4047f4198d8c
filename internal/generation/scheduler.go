package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/purpose168/gemchat-cn/internal/csync"
	"golang.org/x/sync/semaphore"
)

// retryBackoff 重试前的等待时间
const retryBackoff = 2 * time.Second

// Scheduler 生成任务调度器
// 限制全局并发流数量，并保证每个会话同一时刻至多一个活跃流
// 等待者按先到先得的顺序获得执行机会
type Scheduler struct {
	global   *semaphore.Weighted
	sessions *csync.Map[string, *semaphore.Weighted]
	timeout  time.Duration
	retries  int
}

// NewScheduler 创建新的调度器
// maxStreams 为全局并发流上限；timeout 为单次尝试的时限，0 表示不限时；
// retries 为超时或临时失败后的固定重试次数
func NewScheduler(maxStreams int64, timeout time.Duration, retries int) *Scheduler {
	if maxStreams < 1 {
		maxStreams = 1
	}
	return &Scheduler{
		global:   semaphore.NewWeighted(maxStreams),
		sessions: csync.NewMap[string, *semaphore.Weighted](),
		timeout:  timeout,
		retries:  retries,
	}
}

// Run 在调度约束下执行生成函数
// 先取得会话槽位再取得全局槽位，执行结束后按相反顺序释放
func (s *Scheduler) Run(ctx context.Context, sessionID string, fn func(ctx context.Context) error) error {
	sessionSem := s.sessions.GetOrSet(sessionID, func() *semaphore.Weighted {
		return semaphore.NewWeighted(1)
	})
	if err := sessionSem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("等待会话槽位失败: %w", err)
	}
	defer sessionSem.Release(1)

	if err := s.global.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("等待全局槽位失败: %w", err)
	}
	defer s.global.Release(1)

	return s.attempt(ctx, sessionID, fn)
}

// attempt 执行生成函数并在超时后固定次数重试
// 外层上下文被取消时立即停止，不再重试
func (s *Scheduler) attempt(ctx context.Context, sessionID string, fn func(ctx context.Context) error) error {
	var lastErr error
	for i := 0; i <= s.retries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if i > 0 {
			slog.Info("重试生成任务", "session", sessionID, "attempt", i)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBackoff):
			}
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if s.timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, s.timeout)
		}
		err := fn(attemptCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return nil
		}
		lastErr = err
		// 只有单次尝试超时才重试，其余错误直接返回
		if !errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return err
		}
		slog.Warn("生成任务超时", "session", sessionID, "attempt", i, "timeout", s.timeout)
	}
	return lastErr
}
