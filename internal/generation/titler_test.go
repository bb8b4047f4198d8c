package generation

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/purpose168/gemchat-cn/internal/session"
	"github.com/stretchr/testify/require"
)

// TestTitler_NamesSessionAfterFirstExchange 测试首个往返完成后自动命名
func TestTitler_NamesSessionAfterFirstExchange(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{
		generateTitle: func(ctx context.Context, apiKey, model, userText, modelText string) (string, error) {
			require.Equal(t, "Explain context", userText)
			require.Equal(t, "ok", modelText)
			return "Go context explained", nil
		},
	}
	env := newTestEnv(t, transport)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.titler.Start(ctx)

	sess, err := env.sessions.Create(ctx, session.DefaultTitle)
	require.NoError(t, err)

	genID, err := env.coordinator.Send(ctx, sess.ID, "Explain context", nil)
	require.NoError(t, err)
	env.waitGeneration(t, sess.ID, genID)

	require.Eventually(t, func() bool {
		got, err := env.sessions.Get(ctx, sess.ID)
		return err == nil && got.Title == "Go context explained"
	}, 5*time.Second, 10*time.Millisecond)

	// 命名不构成会话活动，最后活动时间保持不变
	got, err := env.sessions.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, sess.UpdatedAt, got.UpdatedAt)
}

// TestTitler_SkipsCustomTitle 测试已有自定义标题的会话不被重命名
func TestTitler_SkipsCustomTitle(t *testing.T) {
	t.Parallel()

	titled := make(chan struct{}, 1)
	transport := &fakeTransport{
		generateTitle: func(ctx context.Context, apiKey, model, userText, modelText string) (string, error) {
			titled <- struct{}{}
			return "Should not happen", nil
		},
	}
	env := newTestEnv(t, transport)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.titler.Start(ctx)

	sess, err := env.sessions.Create(ctx, "My project notes")
	require.NoError(t, err)

	genID, err := env.coordinator.Send(ctx, sess.ID, "hello", nil)
	require.NoError(t, err)
	env.waitGeneration(t, sess.ID, genID)

	select {
	case <-titled:
		t.Fatal("自定义标题的会话不应触发命名")
	case <-time.After(300 * time.Millisecond):
	}

	got, err := env.sessions.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, "My project notes", got.Title)
}

// TestTitler_SkipsLaterExchanges 测试后续往返不再触发命名
func TestTitler_SkipsLaterExchanges(t *testing.T) {
	t.Parallel()

	var titleCalls atomic.Int32
	transport := &fakeTransport{
		generateTitle: func(ctx context.Context, apiKey, model, userText, modelText string) (string, error) {
			titleCalls.Add(1)
			return "First title", nil
		},
	}
	env := newTestEnv(t, transport)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.titler.Start(ctx)

	sess, err := env.sessions.Create(ctx, session.DefaultTitle)
	require.NoError(t, err)

	genID, err := env.coordinator.Send(ctx, sess.ID, "first question", nil)
	require.NoError(t, err)
	env.waitGeneration(t, sess.ID, genID)

	require.Eventually(t, func() bool {
		got, err := env.sessions.Get(ctx, sess.ID)
		return err == nil && got.Title == "First title"
	}, 5*time.Second, 10*time.Millisecond)

	// 第二个往返不应再触发命名
	genID, err = env.coordinator.Send(ctx, sess.ID, "second question", nil)
	require.NoError(t, err)
	env.waitGeneration(t, sess.ID, genID)
	time.Sleep(300 * time.Millisecond)

	got, err := env.sessions.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, "First title", got.Title)
	require.Equal(t, int32(1), titleCalls.Load())
}
