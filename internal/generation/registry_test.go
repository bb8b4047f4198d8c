package generation

import (
	"context"
	"testing"
	"time"

	"github.com/purpose168/gemchat-cn/internal/message"
	"github.com/purpose168/gemchat-cn/internal/pubsub"
	"github.com/stretchr/testify/require"
)

// TestRegistry_AddAndComplete 测试任务注册与完成的基本流程
func TestRegistry_AddAndComplete(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	t.Cleanup(registry.Shutdown)

	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry.Add("gen-1", "sess-1", "msg-1", cancel)
	require.Equal(t, 1, registry.Len())
	require.True(t, registry.IsSessionLoading("sess-1"))
	require.False(t, registry.IsSessionLoading("sess-2"))

	job, ok := registry.Get("gen-1")
	require.True(t, ok)
	require.Equal(t, "msg-1", job.MessageID)

	require.True(t, registry.Complete("gen-1"))
	require.Equal(t, 0, registry.Len())
	require.False(t, registry.IsSessionLoading("sess-1"))
}

// TestRegistry_CompleteIdempotent 测试任务完成的幂等性
func TestRegistry_CompleteIdempotent(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	t.Cleanup(registry.Shutdown)

	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	registry.Add("gen-1", "sess-1", "msg-1", cancel)

	// 只有首次完成生效
	require.True(t, registry.Complete("gen-1"))
	require.False(t, registry.Complete("gen-1"))
	require.False(t, registry.Complete("unknown"))
}

// TestRegistry_AbortStoresReasonBeforeCancel 测试中止时原因先于取消可见
func TestRegistry_AbortStoresReasonBeforeCancel(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	t.Cleanup(registry.Shutdown)

	ctx, cancel := context.WithCancel(context.Background())
	job := registry.Add("gen-1", "sess-1", "msg-1", cancel)
	require.Empty(t, job.AbortReason())

	require.True(t, registry.Abort("gen-1", message.FinishReasonStopped))

	// 上下文已被取消且原因可读
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("中止未取消任务上下文")
	}
	require.Equal(t, message.FinishReasonStopped, job.AbortReason())

	require.False(t, registry.Abort("unknown", message.FinishReasonStopped))
}

// TestRegistry_AbortSession 测试按会话中止只影响该会话的任务
func TestRegistry_AbortSession(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	t.Cleanup(registry.Shutdown)

	ctx1, cancel1 := context.WithCancel(context.Background())
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()

	registry.Add("gen-1", "sess-1", "msg-1", cancel1)
	registry.Add("gen-2", "sess-2", "msg-2", cancel2)

	registry.AbortSession("sess-1", message.FinishReasonCanceled)

	select {
	case <-ctx1.Done():
	case <-time.After(time.Second):
		t.Fatal("会话任务未被中止")
	}
	require.NoError(t, ctx2.Err())
}

// TestRegistry_PublishesLifecycleEvents 测试任务生命周期事件的发布
func TestRegistry_PublishesLifecycleEvents(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	t.Cleanup(registry.Shutdown)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := registry.Subscribe(ctx)

	registry.Add("gen-1", "sess-1", "msg-1", func() {})

	ev := <-events
	require.Equal(t, pubsub.CreatedEvent, ev.Type)
	require.Equal(t, "gen-1", ev.Payload.ID)

	registry.Complete("gen-1")
	ev = <-events
	require.Equal(t, pubsub.DeletedEvent, ev.Type)
	require.Equal(t, "gen-1", ev.Payload.ID)
}
