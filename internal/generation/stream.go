package generation

import (
	"context"
	"log/slog"
	"time"

	"github.com/purpose168/gemchat-cn/internal/message"
)

// persistInterval 流式增量落库的最小间隔
// 增量事件频率远高于客户端刷新需要，按间隔合并写入
const persistInterval = 100 * time.Millisecond

// streamHandler 将流式事件合并进模型消息并按节奏落库
// 实现 gemini.StreamHandler 接口，所有方法在流读取协程上同步调用
type streamHandler struct {
	ctx      context.Context
	messages message.Service
	message  message.Message

	lastPersist time.Time
	dirty       bool
}

// newStreamHandler 创建新的流式事件处理器
func newStreamHandler(ctx context.Context, messages message.Service, target message.Message) *streamHandler {
	return &streamHandler{
		ctx:      ctx,
		messages: messages,
		message:  target,
	}
}

// HandleTextDelta 处理文本增量
func (h *streamHandler) HandleTextDelta(delta string) {
	h.stampThinking()
	h.message.AppendContent(delta)
	h.persist(false)
}

// HandleThoughtDelta 处理思考内容增量
func (h *streamHandler) HandleThoughtDelta(delta string) {
	h.message.AppendReasoningContent(delta)
	h.persist(false)
}

// HandlePart 处理非文本内容部分
func (h *streamHandler) HandlePart(part message.ContentPart) {
	h.stampThinking()
	h.message.Parts = append(h.message.Parts, part)
	h.persist(true)
}

// stampThinking 在首个可见内容到达时记录思考耗时
// 耗时从任务启动算起，覆盖排队与请求建立的时间，只记录一次
func (h *streamHandler) stampThinking() {
	if h.message.ThinkingMs != 0 {
		return
	}
	h.message.FinishThinking()
	h.message.ThinkingMs = time.Now().UnixMilli() - h.message.StartedAt
}

// HandleUsage 处理令牌使用统计快照
// 快照为累计值，整体覆盖已有统计；累计总量由收尾流程计算
func (h *streamHandler) HandleUsage(usage message.TokenUsage) {
	h.message.Usage.Prompt = usage.Prompt
	h.message.Usage.Completion = usage.Completion
	h.message.Usage.Total = usage.Total
	h.dirty = true
}

// HandleGrounding 处理检索溯源元数据快照
func (h *streamHandler) HandleGrounding(grounding message.GroundingContent) {
	h.message.SetGrounding(grounding)
	h.persist(true)
}

// persist 将当前消息状态落库
// force 为 false 时按最小间隔合并写入
func (h *streamHandler) persist(force bool) {
	h.dirty = true
	if !force && time.Since(h.lastPersist) < persistInterval {
		return
	}
	h.flush()
}

// flush 立即落库未保存的变更
// 使用不可取消的上下文，保证取消后已收到的内容不丢失
func (h *streamHandler) flush() {
	if !h.dirty {
		return
	}
	if err := h.messages.Update(context.WithoutCancel(h.ctx), h.message); err != nil {
		slog.Warn("保存流式增量失败", "message", h.message.ID, "error", err)
		return
	}
	h.lastPersist = time.Now()
	h.dirty = false
}
