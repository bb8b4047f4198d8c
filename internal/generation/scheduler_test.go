package generation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestScheduler_SessionSerialized 测试同一会话的任务串行执行
func TestScheduler_SessionSerialized(t *testing.T) {
	t.Parallel()

	scheduler := NewScheduler(4, 0, 0)
	ctx := context.Background()

	var active, maxActive int32
	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := scheduler.Run(ctx, "sess-1", func(ctx context.Context) error {
				cur := atomic.AddInt32(&active, 1)
				defer atomic.AddInt32(&active, -1)
				// 记录观察到的最大并发度
				for {
					old := atomic.LoadInt32(&maxActive)
					if cur <= old || atomic.CompareAndSwapInt32(&maxActive, old, cur) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&maxActive))
}

// TestScheduler_GlobalLimit 测试不同会话受全局并发上限约束
func TestScheduler_GlobalLimit(t *testing.T) {
	t.Parallel()

	scheduler := NewScheduler(2, 0, 0)
	ctx := context.Background()

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := range 6 {
		wg.Add(1)
		sessionID := string(rune('a' + i))
		go func() {
			defer wg.Done()
			err := scheduler.Run(ctx, sessionID, func(ctx context.Context) error {
				cur := atomic.AddInt32(&active, 1)
				defer atomic.AddInt32(&active, -1)
				for {
					old := atomic.LoadInt32(&maxActive)
					if cur <= old || atomic.CompareAndSwapInt32(&maxActive, old, cur) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.LessOrEqual(t, atomic.LoadInt32(&maxActive), int32(2))
}

// TestScheduler_RetriesOnTimeout 测试单次尝试超时后固定次数重试
func TestScheduler_RetriesOnTimeout(t *testing.T) {
	t.Parallel()

	scheduler := NewScheduler(1, 20*time.Millisecond, 1)
	ctx := context.Background()

	var attempts int32
	err := scheduler.Run(ctx, "sess-1", func(ctx context.Context) error {
		n := atomic.AddInt32(&attempts, 1)
		if n == 1 {
			// 首次尝试耗尽时限
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

// TestScheduler_NoRetryOnOtherErrors 测试非超时错误不触发重试
func TestScheduler_NoRetryOnOtherErrors(t *testing.T) {
	t.Parallel()

	scheduler := NewScheduler(1, 0, 3)
	ctx := context.Background()

	wantErr := errors.New("服务端拒绝")
	var attempts int32
	err := scheduler.Run(ctx, "sess-1", func(ctx context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return wantErr
	})

	require.ErrorIs(t, err, wantErr)
	require.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

// TestScheduler_CanceledContextStopsRetries 测试外层取消后不再重试
func TestScheduler_CanceledContextStopsRetries(t *testing.T) {
	t.Parallel()

	scheduler := NewScheduler(1, 10*time.Millisecond, 5)
	ctx, cancel := context.WithCancel(context.Background())

	var attempts int32
	err := scheduler.Run(ctx, "sess-1", func(ctx context.Context) error {
		atomic.AddInt32(&attempts, 1)
		cancel()
		<-ctx.Done()
		return ctx.Err()
	})

	require.Error(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}
