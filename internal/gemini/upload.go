package gemini

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/purpose168/gemchat-cn/internal/message"
	"google.golang.org/genai"
)

const (
	// uploadPollInterval 上传后轮询文件状态的间隔
	uploadPollInterval = 2 * time.Second
	// uploadPollTimeout 等待文件进入可用状态的上限
	uploadPollTimeout = 10 * time.Minute
)

// UploadFile 将附件上传至文件服务并等待其进入可用状态
// 状态流转：pending → uploading → processing → active/failed
// 进入可用状态前上下文被取消时返回 ErrUploadCanceled
func (t *transport) UploadFile(ctx context.Context, apiKey string, attachment message.Attachment, onState func(message.FileContent)) (message.FileContent, error) {
	fc := message.FileContent{
		FileName: attachment.FileName,
		MIMEType: attachment.MimeType,
		Size:     int64(len(attachment.Content)),
		State:    message.UploadPending,
	}
	notify := func() {
		if onState != nil {
			onState(fc)
		}
	}
	notify()

	client, err := t.client(ctx, apiKey)
	if err != nil {
		fc.State = message.UploadFailed
		fc.Error = err.Error()
		notify()
		return fc, err
	}

	fc.State = message.UploadUploading
	notify()

	file, err := client.Files.Upload(ctx, bytes.NewReader(attachment.Content), &genai.UploadFileConfig{
		MIMEType:    attachment.MimeType,
		DisplayName: attachment.FileName,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fc.State = message.UploadCanceled
			notify()
			return fc, ErrUploadCanceled
		}
		fc.State = message.UploadFailed
		fc.Error = err.Error()
		notify()
		return fc, fmt.Errorf("上传文件 %s 失败: %w", attachment.FileName, err)
	}

	fc.Name = file.Name
	fc.URI = file.URI
	fc.State = message.UploadProcessing
	notify()

	// 轮询等待服务端处理完成
	deadline := time.Now().Add(uploadPollTimeout)
	for file.State != genai.FileStateActive {
		if file.State == genai.FileStateFailed {
			fc.State = message.UploadFailed
			if file.Error != nil {
				fc.Error = file.Error.Message
			}
			notify()
			return fc, fmt.Errorf("%w: 服务端处理文件 %s 失败", ErrUploadFailed, attachment.FileName)
		}
		if time.Now().After(deadline) {
			// 软超时：返回最后观察到的状态，不判定为失败
			slog.Warn("等待文件处理超时，保留当前状态", "file", fc.Name, "state", fc.State)
			return fc, nil
		}
		select {
		case <-ctx.Done():
			fc.State = message.UploadCanceled
			notify()
			return fc, ErrUploadCanceled
		case <-time.After(uploadPollInterval):
		}
		file, err = client.Files.Get(ctx, file.Name, nil)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				fc.State = message.UploadCanceled
				notify()
				return fc, ErrUploadCanceled
			}
			// 单次查询失败不终止轮询
			slog.Warn("查询文件状态失败", "file", fc.Name, "error", err)
			file = &genai.File{Name: fc.Name, URI: fc.URI, State: genai.FileStateProcessing}
		}
	}

	fc.URI = file.URI
	fc.State = message.UploadActive
	notify()
	return fc, nil
}
