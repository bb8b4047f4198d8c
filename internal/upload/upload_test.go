package upload

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/purpose168/gemchat-cn/internal/db"
	"github.com/purpose168/gemchat-cn/internal/gemini"
	"github.com/purpose168/gemchat-cn/internal/keyring"
	"github.com/purpose168/gemchat-cn/internal/message"
	"github.com/purpose168/gemchat-cn/internal/pubsub"
	"github.com/stretchr/testify/require"
)

// fakeStore 满足密钥轮换器需要的最小存储实现
type fakeStore struct {
	db.Querier
}

func (fakeStore) GetAppState(ctx context.Context, key string) (db.AppState, error) {
	return db.AppState{}, sql.ErrNoRows
}

func (fakeStore) SetAppState(ctx context.Context, arg db.SetAppStateParams) error {
	return nil
}

func (fakeStore) IncrementKeyUsage(ctx context.Context, digest string) error {
	return nil
}

// fakeTransport 只实现上传，其余操作不会被上传服务调用
type fakeTransport struct {
	gemini.Transport

	uploadFile func(ctx context.Context, apiKey string, attachment message.Attachment, onState func(message.FileContent)) (message.FileContent, error)
}

func (f *fakeTransport) UploadFile(ctx context.Context, apiKey string, attachment message.Attachment, onState func(message.FileContent)) (message.FileContent, error) {
	return f.uploadFile(ctx, apiKey, attachment, onState)
}

func newTestService(t *testing.T, transport *fakeTransport) *Service {
	t.Helper()
	keys := keyring.NewRotator([]string{"test-key"}, fakeStore{})
	svc := NewService(transport, keys)
	t.Cleanup(svc.Shutdown)
	return svc
}

// TestService_StartResult 测试上传状态机走到可用状态
func TestService_StartResult(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{
		uploadFile: func(ctx context.Context, apiKey string, attachment message.Attachment, onState func(message.FileContent)) (message.FileContent, error) {
			file := message.FileContent{
				FileName: attachment.FileName,
				MIMEType: attachment.MimeType,
				Size:     int64(len(attachment.Content)),
			}
			for _, state := range []message.UploadState{
				message.UploadUploading,
				message.UploadProcessing,
				message.UploadActive,
			} {
				file.State = state
				if state == message.UploadActive {
					file.Name = "files/abc"
					file.URI = "https://files.example/abc"
				}
				onState(file)
			}
			return file, nil
		},
	}
	svc := newTestService(t, transport)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := svc.Subscribe(ctx)

	attachment := message.Attachment{
		FilePath: "/tmp/report.pdf",
		FileName: "report.pdf",
		MimeType: "application/pdf",
		Content:  []byte("pdf bytes"),
	}
	id, err := svc.Start(ctx, "sess-1", "", attachment)
	require.NoError(t, err)

	file, err := svc.Result(ctx, id)
	require.NoError(t, err)
	require.Equal(t, message.UploadActive, file.State)
	require.Equal(t, "https://files.example/abc", file.URI)
	require.Equal(t, int64(len(attachment.Content)), file.Size)

	// 事件流依次经过等待、上传中、处理中、可用
	var types []pubsub.EventType
	var states []message.UploadState
	deadline := time.After(time.Second)
	for len(states) < 4 {
		select {
		case ev := <-events:
			types = append(types, ev.Type)
			states = append(states, ev.Payload.File.State)
		case <-deadline:
			t.Fatalf("状态事件不完整: %v", states)
		}
	}
	require.Equal(t, []message.UploadState{
		message.UploadPending,
		message.UploadUploading,
		message.UploadProcessing,
		message.UploadActive,
	}, states)
	require.Equal(t, pubsub.CreatedEvent, types[0])
}

// TestService_Cancel 测试进入可用状态前取消上传
func TestService_Cancel(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	transport := &fakeTransport{
		uploadFile: func(ctx context.Context, apiKey string, attachment message.Attachment, onState func(message.FileContent)) (message.FileContent, error) {
			file := message.FileContent{FileName: attachment.FileName, State: message.UploadUploading}
			onState(file)
			close(started)
			<-ctx.Done()
			file.State = message.UploadCanceled
			onState(file)
			return file, gemini.ErrUploadCanceled
		},
	}
	svc := newTestService(t, transport)
	ctx := context.Background()

	id, err := svc.Start(ctx, "sess-1", "", message.Attachment{FileName: "big.bin", Content: []byte{1}})
	require.NoError(t, err)

	<-started
	svc.Cancel(id)

	file, err := svc.Result(ctx, id)
	require.ErrorIs(t, err, gemini.ErrUploadCanceled)
	require.Equal(t, message.UploadCanceled, file.State)
}

// TestService_CancelSession 测试按会话取消只影响该会话的上传
func TestService_CancelSession(t *testing.T) {
	t.Parallel()

	started := make(chan struct{}, 2)
	transport := &fakeTransport{
		uploadFile: func(ctx context.Context, apiKey string, attachment message.Attachment, onState func(message.FileContent)) (message.FileContent, error) {
			file := message.FileContent{FileName: attachment.FileName, State: message.UploadUploading}
			onState(file)
			started <- struct{}{}
			select {
			case <-ctx.Done():
				file.State = message.UploadCanceled
				return file, gemini.ErrUploadCanceled
			case <-time.After(2 * time.Second):
				file.State = message.UploadActive
				return file, nil
			}
		},
	}
	svc := newTestService(t, transport)
	ctx := context.Background()

	id1, err := svc.Start(ctx, "sess-1", "", message.Attachment{FileName: "a.bin", Content: []byte{1}})
	require.NoError(t, err)
	id2, err := svc.Start(ctx, "sess-2", "", message.Attachment{FileName: "b.bin", Content: []byte{2}})
	require.NoError(t, err)

	<-started
	<-started
	svc.CancelSession("sess-1")

	_, err = svc.Result(ctx, id1)
	require.ErrorIs(t, err, gemini.ErrUploadCanceled)

	file, err := svc.Result(ctx, id2)
	require.NoError(t, err)
	require.Equal(t, message.UploadActive, file.State)
}

// TestService_LockedKey 测试指定密钥后上传使用该密钥而非轮换到下一个
func TestService_LockedKey(t *testing.T) {
	t.Parallel()

	usedKey := make(chan string, 1)
	transport := &fakeTransport{
		uploadFile: func(ctx context.Context, apiKey string, attachment message.Attachment, onState func(message.FileContent)) (message.FileContent, error) {
			usedKey <- apiKey
			return message.FileContent{FileName: attachment.FileName, State: message.UploadActive}, nil
		},
	}
	keys := keyring.NewRotator([]string{"key-a", "key-b"}, fakeStore{})
	svc := NewService(transport, keys)
	t.Cleanup(svc.Shutdown)
	ctx := context.Background()

	id, err := svc.Start(ctx, "sess-1", "key-b", message.Attachment{FileName: "a.png", Content: []byte{1}})
	require.NoError(t, err)
	_, err = svc.Result(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "key-b", <-usedKey)
}

// TestService_ProcessingTimeout 测试处理超时返回最后状态而非失败
func TestService_ProcessingTimeout(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{
		uploadFile: func(ctx context.Context, apiKey string, attachment message.Attachment, onState func(message.FileContent)) (message.FileContent, error) {
			file := message.FileContent{
				FileName: attachment.FileName,
				Name:     "files/slow",
				URI:      "https://files.example/slow",
				State:    message.UploadProcessing,
			}
			onState(file)
			return file, nil
		},
	}
	svc := newTestService(t, transport)
	ctx := context.Background()

	id, err := svc.Start(ctx, "sess-1", "", message.Attachment{FileName: "slow.mp4", Content: []byte{1}})
	require.NoError(t, err)

	file, err := svc.Result(ctx, id)
	require.NoError(t, err)
	require.Equal(t, message.UploadProcessing, file.State)
	require.Equal(t, "https://files.example/slow", file.URI)
}

// TestUpload_Done 测试终止状态的判定
func TestUpload_Done(t *testing.T) {
	t.Parallel()

	for state, done := range map[message.UploadState]bool{
		message.UploadPending:    false,
		message.UploadUploading:  false,
		message.UploadProcessing: false,
		message.UploadActive:     true,
		message.UploadFailed:     true,
		message.UploadCanceled:   true,
	} {
		u := Upload{File: message.FileContent{State: state}}
		require.Equal(t, done, u.Done(), "状态 %s", state)
	}
}
