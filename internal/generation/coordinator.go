package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/purpose168/gemchat-cn/internal/config"
	"github.com/purpose168/gemchat-cn/internal/csync"
	"github.com/purpose168/gemchat-cn/internal/event"
	"github.com/purpose168/gemchat-cn/internal/gemini"
	"github.com/purpose168/gemchat-cn/internal/keyring"
	"github.com/purpose168/gemchat-cn/internal/log"
	"github.com/purpose168/gemchat-cn/internal/message"
	"github.com/purpose168/gemchat-cn/internal/session"
	"github.com/purpose168/gemchat-cn/internal/upload"
)

// emptyResponseText 模型返回空响应时转换出的错误消息文案
const emptyResponseText = "Empty response from model."

// Coordinator 生成协调器
// 串联密钥轮换、调度、传输与消息落库，驱动一次生成的完整生命周期
type Coordinator struct {
	cfg       *config.Config
	registry  *Registry
	scheduler *Scheduler
	transport gemini.Transport
	keys      *keyring.Rotator
	sessions  session.Service
	messages  message.Service
	uploads   *upload.Service
	msgLocks  *csync.Map[string, *sync.Mutex]

	// turns 跟踪进行中的生成协程，关闭时据此等待收尾写入完成
	turns sync.WaitGroup
}

// NewCoordinator 创建新的生成协调器
func NewCoordinator(
	cfg *config.Config,
	registry *Registry,
	scheduler *Scheduler,
	transport gemini.Transport,
	keys *keyring.Rotator,
	sessions session.Service,
	messages message.Service,
	uploads *upload.Service,
) *Coordinator {
	return &Coordinator{
		cfg:       cfg,
		registry:  registry,
		scheduler: scheduler,
		transport: transport,
		keys:      keys,
		sessions:  sessions,
		messages:  messages,
		uploads:   uploads,
		msgLocks:  csync.NewMap[string, *sync.Mutex](),
	}
}

// Registry 返回协调器使用的任务注册表
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// Send 发送用户消息并发起生成
// 返回生成任务的标识符；附件先上传至文件服务，全部可用后才发起请求
// 带附件时先固定本回合的密钥，上传与生成使用同一密钥
func (c *Coordinator) Send(ctx context.Context, sessionID, text string, attachments []message.Attachment) (string, error) {
	if strings.TrimSpace(text) == "" && len(attachments) == 0 {
		return "", ErrEmptyPrompt
	}

	sess, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("获取会话失败: %w", err)
	}

	// 文件句柄与上传它们的密钥绑定，上传前先确定本回合的密钥
	var pinnedKey string
	if len(attachments) > 0 {
		pinnedKey, err = c.keys.KeyForRequest(ctx, sess.Settings.LockedAPIKey)
		if err != nil {
			return "", c.failWithoutJob(ctx, sess.ID, err)
		}
	}

	// 上传附件并等待全部进入终止状态
	parts := []message.ContentPart{}
	for _, attachment := range attachments {
		uploadID, err := c.uploads.Start(ctx, sessionID, pinnedKey, attachment)
		if err != nil {
			return "", err
		}
		file, err := c.uploads.Result(ctx, uploadID)
		if err != nil {
			return "", err
		}
		parts = append(parts, file)
	}
	if strings.TrimSpace(text) != "" {
		parts = append(parts, message.TextContent{Text: text})
	}

	// 落库用户消息
	if _, err := c.messages.Create(ctx, sessionID, message.CreateMessageParams{
		Role:  message.User,
		Parts: parts,
	}); err != nil {
		return "", fmt.Errorf("保存用户消息失败: %w", err)
	}

	return c.startGeneration(ctx, sess, pinnedKey)
}

// startGeneration 创建占位模型消息并异步执行生成
// 无可用密钥时不注册任务，直接落一条错误消息
func (c *Coordinator) startGeneration(ctx context.Context, sess session.Session, pinnedKey string) (string, error) {
	if pinnedKey == "" && sess.Settings.LockedAPIKey == "" && c.keys.Len() == 0 {
		return "", c.failWithoutJob(ctx, sess.ID, keyring.ErrNoAPIKey)
	}

	genID := uuid.New().String()
	target, err := c.messages.Create(ctx, sess.ID, message.CreateMessageParams{
		Role:         message.Model,
		GenerationID: genID,
		StartedAt:    time.Now().UnixMilli(),
	})
	if err != nil {
		return "", fmt.Errorf("创建模型消息失败: %w", err)
	}
	c.launch(sess, target, genID, pinnedKey)
	return genID, nil
}

// failWithoutJob 在不注册任务的情况下以错误消息结束本回合
// 不产生任务也不进入加载状态，对话记录中只留下一条错误消息
func (c *Coordinator) failWithoutJob(ctx context.Context, sessionID string, cause error) error {
	_, err := c.messages.Create(ctx, sessionID, message.CreateMessageParams{
		Role: message.Error,
		Parts: []message.ContentPart{
			message.TextContent{Text: cause.Error()},
			message.Finish{
				Reason:  message.FinishReasonError,
				Time:    time.Now().UnixMilli(),
				Message: cause.Error(),
			},
		},
	})
	if err != nil {
		slog.Error("保存错误消息失败", "session", sessionID, "error", err)
	}
	return cause
}

// launch 注册任务并在后台协程中驱动生成
func (c *Coordinator) launch(sess session.Session, target message.Message, genID, pinnedKey string) {
	genCtx, cancel := context.WithCancel(context.Background())
	job := c.registry.Add(genID, sess.ID, target.ID, cancel)

	c.turns.Add(1)
	go func() {
		defer c.turns.Done()
		defer log.RecoverPanic("generation-"+genID, func() {
			c.finalize(job, errors.New("生成协程发生异常"))
		})
		err := c.scheduler.Run(genCtx, sess.ID, func(ctx context.Context) error {
			return c.generate(ctx, sess, target.ID, genID, pinnedKey)
		})
		c.finalize(job, err)
	}()
}

// Drain 等待所有进行中的生成协程收尾，超时后放弃等待
// 收尾包括最终的消息落库，应用关闭时在关闭数据库前调用
func (c *Coordinator) Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		c.turns.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		slog.Warn("等待生成任务收尾超时", "remaining", c.registry.Len())
		return false
	}
}

// generate 执行一次生成尝试，按模型族分派到对应路径
// 回合成功且请求引用了已上传的文件句柄时，将本次密钥锁定到会话
func (c *Coordinator) generate(ctx context.Context, sess session.Session, messageID, genID, pinnedKey string) error {
	settings := c.resolveSettings(sess.Settings)

	apiKey := pinnedKey
	if apiKey == "" {
		var err error
		apiKey, err = c.keys.KeyForRequest(ctx, settings.LockedAPIKey)
		if err != nil {
			return err
		}
	}

	model := settings.Model
	var err error
	switch {
	case strings.Contains(model, "-tts"):
		err = c.generateSpeechTurn(ctx, sess, messageID, apiKey, settings)
	case strings.Contains(model, "image-preview"):
		err = c.editImagesTurn(ctx, sess, messageID, apiKey, settings)
	case strings.Contains(model, "imagen") || strings.Contains(model, "image-generation"):
		err = c.generateImagesTurn(ctx, sess, messageID, apiKey, settings)
	default:
		err = c.generateStreamTurn(ctx, sess, messageID, genID, apiKey, settings)
	}
	if err != nil {
		return err
	}

	// 文件句柄与密钥绑定：引用过文件的会话固定使用同一密钥
	if sess.Settings.LockedAPIKey == "" && c.historyHasFileHandles(ctx, sess.ID) {
		if _, lockErr := c.sessions.LockAPIKey(context.WithoutCancel(ctx), sess.ID, apiKey); lockErr != nil {
			slog.Warn("锁定会话密钥失败", "session", sess.ID, "error", lockErr)
		}
	}
	return nil
}

// historyHasFileHandles 检查会话历史中是否引用了已上传的文件句柄
func (c *Coordinator) historyHasFileHandles(ctx context.Context, sessionID string) bool {
	msgs, err := c.messages.List(ctx, sessionID)
	if err != nil {
		return false
	}
	for _, msg := range msgs {
		for _, file := range msg.FileContents() {
			if file.State == message.UploadActive {
				return true
			}
		}
	}
	return false
}

// generateStreamTurn 执行流式文本生成
func (c *Coordinator) generateStreamTurn(ctx context.Context, sess session.Session, messageID, genID, apiKey string, settings session.Settings) error {
	history, err := c.historyBefore(ctx, sess.ID, messageID)
	if err != nil {
		return err
	}
	target, err := c.messages.Get(ctx, messageID)
	if err != nil {
		return err
	}

	handler := newStreamHandler(ctx, c.messages, target)
	finishReason, err := c.transport.SendStream(ctx, gemini.Request{
		APIKey:   apiKey,
		Model:    settings.Model,
		History:  history,
		Settings: settings,
	}, handler)
	handler.flush()
	if err != nil {
		return err
	}
	if finishReason == "MAX_TOKENS" {
		handler.message.AddFinish(message.FinishReasonMaxTokens, "")
		return c.messages.Update(context.WithoutCancel(ctx), handler.message)
	}
	return nil
}

// finalize 生成结束后的统一收尾
// 无论正常结束、用户停止、取消还是出错都必须执行，且只执行一次
func (c *Coordinator) finalize(job *Job, genErr error) {
	if !c.registry.Complete(job.ID) {
		return
	}
	ctx := context.Background()

	target, err := c.messages.Get(ctx, job.MessageID)
	if err != nil {
		slog.Error("收尾时获取消息失败", "job", job.ID, "message", job.MessageID, "error", err)
		return
	}

	reason := job.AbortReason()
	switch {
	case reason == message.FinishReasonStopped:
		// 用户停止：保留已生成内容并附加标注
		if target.HasVisibleContent() {
			target.AppendContent(stoppedSuffix)
			target.AddFinish(message.FinishReasonStopped, "")
		} else {
			target.Role = message.Error
			target.Parts = []message.ContentPart{message.TextContent{Text: "[Stopped by user]"}}
			target.AddFinish(message.FinishReasonStopped, "")
		}
	case reason == message.FinishReasonCanceled:
		if target.HasVisibleContent() {
			target.AppendContent(canceledSuffix)
		} else {
			target.Role = message.Error
			target.Parts = []message.ContentPart{message.TextContent{Text: "[Cancelled by user]"}}
		}
		target.AddFinish(message.FinishReasonCanceled, "")
	case genErr != nil:
		// 出错：有部分内容则保留，否则整条转换为错误消息
		if target.HasVisibleContent() {
			target.AddFinish(message.FinishReasonError, genErr.Error())
		} else {
			target.Role = message.Error
			target.Parts = []message.ContentPart{message.TextContent{Text: genErr.Error()}}
			target.AddFinish(message.FinishReasonError, genErr.Error())
		}
		slog.Error("生成任务失败", "job", job.ID, "session", job.SessionID, "error", genErr)
	case !target.HasVisibleContent():
		// 空响应转换为错误消息
		target.Role = message.Error
		target.Parts = []message.ContentPart{message.TextContent{Text: emptyResponseText}}
		target.AddFinish(message.FinishReasonError, emptyResponseText)
	default:
		if !target.IsFinished() {
			target.AddFinish(message.FinishReasonStop, "")
		}
	}

	switch {
	case reason == message.FinishReasonStopped:
		event.GenerationStopped()
	case genErr == nil && reason == "":
		event.GenerationCompleted("耗时（秒）", time.Since(job.StartedAt).Truncate(time.Second).Seconds())
		if target.Usage.Total > 0 {
			event.TokensUsed(
				"提示令牌", target.Usage.Prompt,
				"完成令牌", target.Usage.Completion,
				"总令牌", target.Usage.Total,
			)
		}
	}

	// 记录思考耗时与结束时间
	if target.ThinkingMs == 0 {
		target.ThinkingMs = target.ThinkingDuration().Milliseconds()
	}
	if f := target.FinishPart(); f != nil {
		target.FinishedAt = f.Time
	}

	if err := c.messages.Update(ctx, target); err != nil {
		slog.Error("收尾时保存消息失败", "job", job.ID, "message", job.MessageID, "error", err)
	}

	// 令牌统计向后传播，并刷新会话累计用量
	if err := c.recomputeUsage(ctx, job.SessionID); err != nil {
		slog.Warn("刷新令牌统计失败", "session", job.SessionID, "error", err)
	}

	c.checkMilestone(ctx, job.SessionID)
}

// checkMilestone 检测会话是否刚完成首个往返，是则发布里程碑事件
// 自动命名等下游能力订阅该事件
func (c *Coordinator) checkMilestone(ctx context.Context, sessionID string) {
	msgs, err := c.messages.List(ctx, sessionID)
	if err != nil || len(msgs) != 2 {
		return
	}
	first, second := msgs[0], msgs[1]
	if first.Role != message.User || !first.IsFinished() {
		return
	}
	if second.Role != message.Model || !second.IsFinished() || !second.HasVisibleContent() {
		return
	}
	sess, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return
	}
	c.sessions.NotifyMilestone(sess)
}

// Stop 停止指定会话的进行中生成
// 已生成的内容保留，并附加停止标注
func (c *Coordinator) Stop(sessionID string) {
	c.registry.AbortSession(sessionID, message.FinishReasonStopped)
}

// Cancel 取消指定会话的进行中生成
// 与停止不同，取消表示用户放弃本回合
func (c *Coordinator) Cancel(sessionID string) {
	c.registry.AbortSession(sessionID, message.FinishReasonCanceled)
}

// CancelAll 取消所有会话的进行中生成，用于应用退出
func (c *Coordinator) CancelAll() {
	c.registry.AbortAll(message.FinishReasonCanceled)
}

// EditMessage 编辑用户消息并重新生成
// 被编辑消息之后的全部对话历史被截断，然后以新内容发起生成
func (c *Coordinator) EditMessage(ctx context.Context, sessionID, messageID, newText string) (string, error) {
	if strings.TrimSpace(newText) == "" {
		return "", ErrEmptyPrompt
	}
	target, err := c.messages.Get(ctx, messageID)
	if err != nil {
		return "", err
	}
	if target.Role != message.User || target.SessionID != sessionID {
		return "", ErrMessageNotEditable
	}

	// 截断前先取消进行中的任务
	c.registry.AbortSession(sessionID, message.FinishReasonCanceled)

	sess, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}

	// 替换文本内容，保留附件
	parts := []message.ContentPart{}
	for _, part := range target.Parts {
		if _, ok := part.(message.TextContent); ok {
			continue
		}
		if _, ok := part.(message.Finish); ok {
			continue
		}
		parts = append(parts, part)
	}
	parts = append(parts, message.TextContent{Text: newText})
	target.Parts = parts
	target.AddFinish(message.FinishReasonStop, "")
	if err := c.messages.Update(ctx, target); err != nil {
		return "", err
	}

	// 截断其后的对话历史
	if err := c.messages.DeleteAfter(ctx, sessionID, target.ID); err != nil {
		return "", fmt.Errorf("截断对话历史失败: %w", err)
	}

	return c.startGeneration(ctx, sess, "")
}

// RetryMessage 重新生成指定的模型消息
// 当前响应归档为备选，新响应生成到同一条消息中
func (c *Coordinator) RetryMessage(ctx context.Context, sessionID, messageID string) (string, error) {
	lock := c.messageLock(messageID)
	lock.Lock()
	defer lock.Unlock()

	target, err := c.messages.Get(ctx, messageID)
	if err != nil {
		return "", err
	}
	if (target.Role != message.Model && target.Role != message.Error) || target.SessionID != sessionID {
		return "", ErrMessageNotEditable
	}
	if target.IsLoading() {
		return "", ErrSessionBusy
	}

	sess, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	// 无可用密钥时不改动原消息
	if sess.Settings.LockedAPIKey == "" && c.keys.Len() == 0 {
		return "", c.failWithoutJob(ctx, sess.ID, keyring.ErrNoAPIKey)
	}

	c.registry.AbortSession(sessionID, message.FinishReasonCanceled)

	// 归档当前响应为备选，错误消息不归档
	if target.Role == message.Model && target.HasVisibleContent() {
		target.Versions = append(target.Versions, message.Version{
			Parts:      target.Parts,
			Usage:      target.Usage,
			ThinkingMs: target.ThinkingMs,
			FinishedAt: target.FinishedAt,
		})
	}

	genID := uuid.New().String()
	target.Role = message.Model
	target.Parts = []message.ContentPart{}
	target.GenerationID = genID
	target.ActiveVersion = -1
	target.Usage = message.TokenUsage{}
	target.ThinkingMs = 0
	target.FinishedAt = 0
	target.StartedAt = time.Now().UnixMilli()
	if err := c.messages.Update(ctx, target); err != nil {
		return "", err
	}

	// 重试消息之后的历史一并截断
	if err := c.messages.DeleteAfter(ctx, sessionID, target.ID); err != nil {
		return "", fmt.Errorf("截断对话历史失败: %w", err)
	}

	c.launch(sess, target, genID, "")
	return genID, nil
}

// DeleteMessage 删除指定消息
// 消息仍在生成中时先取消对应任务，删除后刷新令牌统计
func (c *Coordinator) DeleteMessage(ctx context.Context, sessionID, messageID string) error {
	target, err := c.messages.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if target.SessionID != sessionID {
		return ErrMessageNotEditable
	}
	if target.IsLoading() && target.GenerationID != "" {
		c.registry.Abort(target.GenerationID, message.FinishReasonCanceled)
	}
	if err := c.messages.Delete(ctx, messageID); err != nil {
		return err
	}
	return c.recomputeUsage(ctx, sessionID)
}

// GenerateSuggestions 根据会话上下文生成后续问题建议
func (c *Coordinator) GenerateSuggestions(ctx context.Context, sessionID string) ([]string, error) {
	sess, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	history, err := c.messages.List(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	apiKey, err := c.keys.KeyForRequest(ctx, sess.Settings.LockedAPIKey)
	if err != nil {
		return nil, err
	}
	return c.transport.GenerateSuggestions(ctx, apiKey, c.cfg.TitleModel(), history)
}

// Transcribe 将音频附件转写为文本
func (c *Coordinator) Transcribe(ctx context.Context, audio message.Attachment) (string, error) {
	apiKey, err := c.keys.KeyForRequest(ctx, "")
	if err != nil {
		return "", err
	}
	return c.transport.TranscribeAudio(ctx, apiKey, c.cfg.Model(), audio)
}

// Translate 将文本翻译为目标语言
func (c *Coordinator) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	apiKey, err := c.keys.KeyForRequest(ctx, "")
	if err != nil {
		return "", err
	}
	return c.transport.TranslateText(ctx, apiKey, c.cfg.Model(), text, targetLanguage)
}

// historyBefore 返回指定消息之前的对话历史（含该消息之前的全部消息）
func (c *Coordinator) historyBefore(ctx context.Context, sessionID, messageID string) ([]message.Message, error) {
	all, err := c.messages.List(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	history := []message.Message{}
	for _, msg := range all {
		if msg.ID == messageID {
			break
		}
		history = append(history, msg)
	}
	return history, nil
}

// resolveSettings 将应用级默认值合并进会话配置
func (c *Coordinator) resolveSettings(s session.Settings) session.Settings {
	d := c.cfg.Defaults
	if s.Model == "" {
		s.Model = c.cfg.Model()
	}
	if s.SystemInstruction == "" {
		s.SystemInstruction = d.SystemInstruction
	}
	if s.Temperature == nil {
		s.Temperature = d.Temperature
	}
	if s.TopP == nil {
		s.TopP = d.TopP
	}
	if s.ThinkingBudget == nil {
		s.ThinkingBudget = d.ThinkingBudget
	}
	if s.Voice == "" {
		s.Voice = c.cfg.Voice()
	}
	if !s.UseGoogleSearch {
		s.UseGoogleSearch = d.UseGoogleSearch
	}
	if !s.UseCodeExecution {
		s.UseCodeExecution = d.UseCodeExecution
	}
	if !s.UseURLContext {
		s.UseURLContext = d.UseURLContext
	}
	return s
}

// recomputeUsage 重新计算会话内的累计令牌统计并刷新会话总量
// 截断、删除或完成一个回合后调用，保证累计值向后正确传播
func (c *Coordinator) recomputeUsage(ctx context.Context, sessionID string) error {
	msgs, err := c.messages.List(ctx, sessionID)
	if err != nil {
		return err
	}
	var running, prompt, completion int64
	for i := range msgs {
		msg := &msgs[i]
		if msg.Role != message.Model || msg.IsLoading() {
			continue
		}
		running += msg.Usage.Total
		prompt += msg.Usage.Prompt
		completion += msg.Usage.Completion
		if msg.Usage.Cumulative != running {
			msg.Usage.Cumulative = running
			if err := c.messages.Update(ctx, *msg); err != nil {
				return err
			}
		}
	}

	sess, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.PromptTokens != prompt || sess.CompletionTokens != completion || sess.TotalTokens != running {
		sess.PromptTokens = prompt
		sess.CompletionTokens = completion
		sess.TotalTokens = running
		if _, err := c.sessions.Save(ctx, sess); err != nil {
			return err
		}
	}
	return nil
}

// messageLock 返回指定消息的互斥锁
func (c *Coordinator) messageLock(messageID string) *sync.Mutex {
	return c.msgLocks.GetOrSet(messageID, func() *sync.Mutex {
		return &sync.Mutex{}
	})
}
