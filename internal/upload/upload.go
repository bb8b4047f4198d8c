// Package upload 提供附件上传服务
// 负责驱动上传状态机，支持在文件进入可用状态前取消
package upload

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/purpose168/gemchat-cn/internal/csync"
	"github.com/purpose168/gemchat-cn/internal/event"
	"github.com/purpose168/gemchat-cn/internal/gemini"
	"github.com/purpose168/gemchat-cn/internal/keyring"
	"github.com/purpose168/gemchat-cn/internal/message"
	"github.com/purpose168/gemchat-cn/internal/pubsub"
)

// Upload 表示一次附件上传
type Upload struct {
	// ID 包含上传的唯一标识符
	ID string
	// SessionID 包含发起上传的会话标识符
	SessionID string
	// File 包含文件内容的当前状态
	File message.FileContent
	// StartedAt 包含上传开始时间
	StartedAt time.Time
}

// Done 检查上传是否已进入终止状态
func (u Upload) Done() bool {
	switch u.File.State {
	case message.UploadActive, message.UploadFailed, message.UploadCanceled:
		return true
	}
	return false
}

// upload 上传的内部跟踪结构
// state 在上传协程与查询方之间共享，经由 csync.Value 读写
// err 只在 done 关闭前写入，等待方经由通道关闭同步后读取
type upload struct {
	state  *csync.Value[Upload]
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Service 附件上传服务
type Service struct {
	*pubsub.Broker[Upload]
	transport gemini.Transport
	keys      *keyring.Rotator
	active    *csync.Map[string, *upload]
}

// NewService 创建新的上传服务实例
func NewService(transport gemini.Transport, keys *keyring.Rotator) *Service {
	return &Service{
		Broker:    pubsub.NewBroker[Upload](),
		transport: transport,
		keys:      keys,
		active:    csync.NewMap[string, *upload](),
	}
}

// Start 发起一次异步上传并返回上传标识符
// lockedKey 非空时上传使用该密钥，保证文件句柄与本回合的生成密钥一致
// 状态变化通过事件发布，最终结果通过 Result 获取
func (s *Service) Start(ctx context.Context, sessionID, lockedKey string, attachment message.Attachment) (string, error) {
	apiKey, err := s.keys.KeyForRequest(ctx, lockedKey)
	if err != nil {
		return "", err
	}

	id := uuid.New().String()
	uploadCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	u := &upload{
		state: csync.NewValue(Upload{
			ID:        id,
			SessionID: sessionID,
			File: message.FileContent{
				FileName: attachment.FileName,
				MIMEType: attachment.MimeType,
				Size:     int64(len(attachment.Content)),
				State:    message.UploadPending,
			},
			StartedAt: time.Now(),
		}),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.active.Set(id, u)
	s.Publish(pubsub.CreatedEvent, u.state.Get())

	slog.Info("开始上传附件",
		"upload", id,
		"session", sessionID,
		"file", attachment.FileName,
		"size", humanize.Bytes(uint64(len(attachment.Content))),
	)

	go s.run(uploadCtx, u, apiKey, attachment)
	return id, nil
}

// run 执行上传并驱动状态事件
func (s *Service) run(ctx context.Context, u *upload, apiKey string, attachment message.Attachment) {
	defer close(u.done)
	file, err := s.transport.UploadFile(ctx, apiKey, attachment, func(fc message.FileContent) {
		state := u.state.Get()
		state.File = fc
		u.state.Set(state)
		s.Publish(pubsub.UpdatedEvent, state)
	})
	state := u.state.Get()
	state.File = file
	u.state.Set(state)
	u.err = err
	if err != nil {
		slog.Warn("附件上传未完成", "upload", state.ID, "file", attachment.FileName, "state", file.State, "error", err)
		return
	}
	slog.Info("附件上传完成", "upload", state.ID, "file", attachment.FileName, "uri", file.URI)
	event.FileUploaded("类型", attachment.MimeType, "大小", humanize.Bytes(uint64(len(attachment.Content))))
}

// Cancel 取消指定上传
// 已进入终止状态的上传不受影响
func (s *Service) Cancel(id string) {
	if u, ok := s.active.Get(id); ok {
		u.cancel()
	}
}

// CancelSession 取消指定会话的所有进行中上传
func (s *Service) CancelSession(sessionID string) {
	for u := range s.active.Seq() {
		if state := u.state.Get(); state.SessionID == sessionID && !state.Done() {
			u.cancel()
		}
	}
}

// Result 等待上传进入终止状态并返回最终文件内容
// 上传失败或被取消时返回相应错误
func (s *Service) Result(ctx context.Context, id string) (message.FileContent, error) {
	u, ok := s.active.Get(id)
	if !ok {
		return message.FileContent{}, fmt.Errorf("未找到上传: %s", id)
	}
	select {
	case <-ctx.Done():
		return u.state.Get().File, ctx.Err()
	case <-u.done:
	}
	// 终止后从活跃表移除
	s.active.Del(id)
	return u.state.Get().File, u.err
}

// Get 返回指定上传的当前状态
func (s *Service) Get(id string) (Upload, bool) {
	u, ok := s.active.Get(id)
	if !ok {
		return Upload{}, false
	}
	return u.state.Get(), true
}
