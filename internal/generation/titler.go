package generation

import (
	"context"
	"log/slog"
	"strings"

	"github.com/purpose168/gemchat-cn/internal/config"
	"github.com/purpose168/gemchat-cn/internal/csync"
	"github.com/purpose168/gemchat-cn/internal/event"
	"github.com/purpose168/gemchat-cn/internal/gemini"
	"github.com/purpose168/gemchat-cn/internal/keyring"
	"github.com/purpose168/gemchat-cn/internal/message"
	"github.com/purpose168/gemchat-cn/internal/pubsub"
	"github.com/purpose168/gemchat-cn/internal/session"
)

// Titler 会话自动命名器
// 在会话完成首个往返（一条用户消息加一条模型响应）后，
// 用辅助模型生成简短标题替换默认标题；命名失败只记录日志，不影响对话
type Titler struct {
	cfg       *config.Config
	transport gemini.Transport
	keys      *keyring.Rotator
	sessions  session.Service
	messages  message.Service
	inFlight  *csync.Map[string, struct{}]
}

// NewTitler 创建新的自动命名器
func NewTitler(
	cfg *config.Config,
	transport gemini.Transport,
	keys *keyring.Rotator,
	sessions session.Service,
	messages message.Service,
) *Titler {
	return &Titler{
		cfg:       cfg,
		transport: transport,
		keys:      keys,
		sessions:  sessions,
		messages:  messages,
		inFlight:  csync.NewMap[string, struct{}](),
	}
}

// Start 启动命名器，订阅会话里程碑事件直到上下文结束
func (t *Titler) Start(ctx context.Context) {
	go func() {
		for ev := range t.sessions.Subscribe(ctx) {
			t.handle(ctx, ev)
		}
	}()
}

// handle 处理单个会话事件
// 只响应首个往返完成的里程碑事件，其余事件直接忽略
func (t *Titler) handle(ctx context.Context, ev pubsub.Event[session.Session]) {
	if ev.Type != pubsub.MilestoneEvent {
		return
	}
	sessionID := ev.Payload.ID

	// 同一会话只命名一次
	if _, busy := t.inFlight.Get(sessionID); busy {
		return
	}
	t.inFlight.Set(sessionID, struct{}{})
	defer func() {
		// 未实际命名时允许后续事件重试
		t.inFlight.Del(sessionID)
	}()

	sess, err := t.sessions.Get(ctx, sessionID)
	if err != nil {
		slog.Warn("自动命名时获取会话失败", "session", sessionID, "error", err)
		return
	}
	if sess.Title != "" && sess.Title != session.DefaultTitle {
		return
	}

	userText, modelText, ok := t.firstExchange(ctx, sessionID)
	if !ok {
		return
	}

	apiKey, err := t.keys.KeyForRequest(ctx, sess.Settings.LockedAPIKey)
	if err != nil {
		slog.Warn("自动命名时获取密钥失败", "session", sessionID, "error", err)
		return
	}
	title, err := t.transport.GenerateTitle(ctx, apiKey, t.cfg.TitleModel(), userText, modelText)
	if err != nil {
		slog.Warn("自动命名失败", "session", sessionID, "error", err)
		return
	}

	sess.Title = title
	// 命名不构成会话活动，不影响列表排序
	if _, err := t.sessions.SaveSettings(ctx, sess); err != nil {
		slog.Warn("保存自动生成的标题失败", "session", sessionID, "error", err)
		return
	}
	slog.Info("会话已自动命名", "session", sessionID, "title", title)
	event.SessionTitled()
}

// firstExchange 返回会话的首个往返
// 只有当会话恰好包含一条已完成的用户消息和一条已完成的模型消息时才触发命名
func (t *Titler) firstExchange(ctx context.Context, sessionID string) (string, string, bool) {
	msgs, err := t.messages.List(ctx, sessionID)
	if err != nil {
		slog.Warn("自动命名时获取消息失败", "session", sessionID, "error", err)
		return "", "", false
	}
	var userText, modelText string
	finished := 0
	for i := range msgs {
		msg := &msgs[i]
		if !msg.IsFinished() {
			return "", "", false
		}
		finished++
		switch msg.Role {
		case message.User:
			if userText == "" {
				userText = msg.Content().Text
			}
		case message.Model:
			if modelText == "" {
				modelText = msg.Content().Text
			}
		}
	}
	if finished != 2 || strings.TrimSpace(userText) == "" || strings.TrimSpace(modelText) == "" {
		return "", "", false
	}
	return userText, modelText, true
}
