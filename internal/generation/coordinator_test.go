package generation

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/purpose168/gemchat-cn/internal/gemini"
	"github.com/purpose168/gemchat-cn/internal/keyring"
	"github.com/purpose168/gemchat-cn/internal/message"
	"github.com/stretchr/testify/require"
)

// TestCoordinator_Send_StreamsResponse 测试完整的流式生成回合
func TestCoordinator_Send_StreamsResponse(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{
		sendStream: func(ctx context.Context, req gemini.Request, handler gemini.StreamHandler) (string, error) {
			handler.HandleThoughtDelta("考虑回答")
			handler.HandleTextDelta("Hello")
			handler.HandleTextDelta(", world")
			handler.HandleUsage(message.TokenUsage{Prompt: 10, Completion: 5, Total: 15})
			return "STOP", nil
		},
	}
	env := newTestEnv(t, transport)
	ctx := context.Background()

	sess, err := env.sessions.Create(ctx, "New chat")
	require.NoError(t, err)

	genID, err := env.coordinator.Send(ctx, sess.ID, "Say hello", nil)
	require.NoError(t, err)

	result := env.waitGeneration(t, sess.ID, genID)
	require.Equal(t, message.Model, result.Role)
	require.Equal(t, "Hello, world", result.Content().Text)
	require.Equal(t, "考虑回答", result.ReasoningContent().Thinking)
	require.Equal(t, message.FinishReasonStop, result.FinishReason())
	require.Equal(t, int64(15), result.Usage.Total)
	require.Equal(t, int64(15), result.Usage.Cumulative)
	require.NotZero(t, result.FinishedAt)

	// 用户消息与模型消息各一条
	msgs, err := env.messages.List(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, message.User, msgs[0].Role)
	require.Equal(t, "Say hello", msgs[0].Content().Text)

	// 会话累计用量随收尾刷新；纯文本回合不锁定密钥
	require.Eventually(t, func() bool {
		got, err := env.sessions.Get(ctx, sess.ID)
		return err == nil && got.TotalTokens == 15 && got.Settings.LockedAPIKey == ""
	}, 5*time.Second, 10*time.Millisecond)
}

// TestCoordinator_Send_EmptyPrompt 测试空白提示被拒绝
func TestCoordinator_Send_EmptyPrompt(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeTransport{})
	ctx := context.Background()

	sess, err := env.sessions.Create(ctx, "New chat")
	require.NoError(t, err)

	_, err = env.coordinator.Send(ctx, sess.ID, "   \n", nil)
	require.ErrorIs(t, err, ErrEmptyPrompt)
}

// TestCoordinator_Send_EmptyResponseBecomesError 测试空响应转换为错误消息
func TestCoordinator_Send_EmptyResponseBecomesError(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{
		sendStream: func(ctx context.Context, req gemini.Request, handler gemini.StreamHandler) (string, error) {
			// 只有思考内容，没有可见正文
			handler.HandleThoughtDelta("无话可说")
			return "STOP", nil
		},
	}
	env := newTestEnv(t, transport)
	ctx := context.Background()

	sess, err := env.sessions.Create(ctx, "New chat")
	require.NoError(t, err)

	genID, err := env.coordinator.Send(ctx, sess.ID, "hi", nil)
	require.NoError(t, err)

	result := env.waitGeneration(t, sess.ID, genID)
	require.Equal(t, message.Error, result.Role)
	require.Equal(t, "Empty response from model.", result.Content().Text)
	require.Equal(t, message.FinishReasonError, result.FinishReason())
}

// TestCoordinator_Send_TransportError 测试传输错误转换为错误消息
func TestCoordinator_Send_TransportError(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{
		sendStream: func(ctx context.Context, req gemini.Request, handler gemini.StreamHandler) (string, error) {
			return "", errors.New("quota exceeded")
		},
	}
	env := newTestEnv(t, transport)
	ctx := context.Background()

	sess, err := env.sessions.Create(ctx, "New chat")
	require.NoError(t, err)

	genID, err := env.coordinator.Send(ctx, sess.ID, "hi", nil)
	require.NoError(t, err)

	result := env.waitGeneration(t, sess.ID, genID)
	require.Equal(t, message.Error, result.Role)
	require.Contains(t, result.Content().Text, "quota exceeded")
	require.Equal(t, message.FinishReasonError, result.FinishReason())
}

// TestCoordinator_Stop_KeepsPartialContent 测试停止时保留已生成内容并附加标注
func TestCoordinator_Stop_KeepsPartialContent(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	transport := &fakeTransport{
		sendStream: func(ctx context.Context, req gemini.Request, handler gemini.StreamHandler) (string, error) {
			handler.HandleTextDelta("partial answer")
			close(started)
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	env := newTestEnv(t, transport)
	ctx := context.Background()

	sess, err := env.sessions.Create(ctx, "New chat")
	require.NoError(t, err)

	genID, err := env.coordinator.Send(ctx, sess.ID, "long question", nil)
	require.NoError(t, err)

	<-started
	env.coordinator.Stop(sess.ID)

	result := env.waitGeneration(t, sess.ID, genID)
	require.Equal(t, message.Model, result.Role)
	require.Equal(t, "partial answer\n\n[Stopped by user]", result.Content().Text)
	require.Equal(t, message.FinishReasonStopped, result.FinishReason())
}

// TestCoordinator_Stop_WithoutContent 测试无内容时停止转换为错误消息
func TestCoordinator_Stop_WithoutContent(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	transport := &fakeTransport{
		sendStream: func(ctx context.Context, req gemini.Request, handler gemini.StreamHandler) (string, error) {
			close(started)
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	env := newTestEnv(t, transport)
	ctx := context.Background()

	sess, err := env.sessions.Create(ctx, "New chat")
	require.NoError(t, err)

	genID, err := env.coordinator.Send(ctx, sess.ID, "question", nil)
	require.NoError(t, err)

	<-started
	env.coordinator.Stop(sess.ID)

	result := env.waitGeneration(t, sess.ID, genID)
	require.Equal(t, message.Error, result.Role)
	require.Equal(t, "[Stopped by user]", result.Content().Text)
	require.Equal(t, message.FinishReasonStopped, result.FinishReason())
}

// TestCoordinator_Drain_WaitsForFinalize 测试排空等待收尾落库完成
func TestCoordinator_Drain_WaitsForFinalize(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	transport := &fakeTransport{
		sendStream: func(ctx context.Context, req gemini.Request, handler gemini.StreamHandler) (string, error) {
			handler.HandleTextDelta("partial")
			close(started)
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	env := newTestEnv(t, transport)
	ctx := context.Background()

	sess, err := env.sessions.Create(ctx, "New chat")
	require.NoError(t, err)

	genID, err := env.coordinator.Send(ctx, sess.ID, "question", nil)
	require.NoError(t, err)

	<-started
	env.coordinator.CancelAll()
	require.True(t, env.coordinator.Drain(2*time.Second))

	// 排空返回后收尾写入已完成，无需再等待
	msgs, err := env.messages.List(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, genID, msgs[1].GenerationID)
	require.True(t, msgs[1].IsFinished())
	require.Equal(t, message.FinishReasonCanceled, msgs[1].FinishReason())
}

// TestCoordinator_EditMessage_TruncatesHistory 测试编辑用户消息截断后续历史并重新生成
func TestCoordinator_EditMessage_TruncatesHistory(t *testing.T) {
	t.Parallel()

	var turn atomic.Int32
	transport := &fakeTransport{
		sendStream: func(ctx context.Context, req gemini.Request, handler gemini.StreamHandler) (string, error) {
			if turn.Add(1) == 1 {
				handler.HandleTextDelta("first response")
			} else {
				handler.HandleTextDelta("second response")
			}
			return "STOP", nil
		},
	}
	env := newTestEnv(t, transport)
	ctx := context.Background()

	sess, err := env.sessions.Create(ctx, "New chat")
	require.NoError(t, err)

	genID, err := env.coordinator.Send(ctx, sess.ID, "original question", nil)
	require.NoError(t, err)
	env.waitGeneration(t, sess.ID, genID)

	msgs, err := env.messages.List(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	userMsg := msgs[0]

	// 编辑模型消息不被允许
	_, err = env.coordinator.EditMessage(ctx, sess.ID, msgs[1].ID, "nope")
	require.ErrorIs(t, err, ErrMessageNotEditable)

	// 空白的新内容不被允许
	_, err = env.coordinator.EditMessage(ctx, sess.ID, userMsg.ID, "  ")
	require.ErrorIs(t, err, ErrEmptyPrompt)

	genID, err = env.coordinator.EditMessage(ctx, sess.ID, userMsg.ID, "edited question")
	require.NoError(t, err)
	env.waitGeneration(t, sess.ID, genID)

	msgs, err = env.messages.List(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, userMsg.ID, msgs[0].ID)
	require.Equal(t, "edited question", msgs[0].Content().Text)
	require.Equal(t, "second response", msgs[1].Content().Text)
}

// TestCoordinator_RetryMessage_ArchivesVersion 测试重试时当前响应归档为备选
func TestCoordinator_RetryMessage_ArchivesVersion(t *testing.T) {
	t.Parallel()

	var turn atomic.Int32
	transport := &fakeTransport{
		sendStream: func(ctx context.Context, req gemini.Request, handler gemini.StreamHandler) (string, error) {
			if turn.Add(1) == 1 {
				handler.HandleTextDelta("first answer")
			} else {
				handler.HandleTextDelta("second answer")
			}
			handler.HandleUsage(message.TokenUsage{Prompt: 4, Completion: 4, Total: 8})
			return "STOP", nil
		},
	}
	env := newTestEnv(t, transport)
	ctx := context.Background()

	sess, err := env.sessions.Create(ctx, "New chat")
	require.NoError(t, err)

	genID, err := env.coordinator.Send(ctx, sess.ID, "question", nil)
	require.NoError(t, err)
	first := env.waitGeneration(t, sess.ID, genID)

	// 用户消息不可重试
	msgs, err := env.messages.List(ctx, sess.ID)
	require.NoError(t, err)
	_, err = env.coordinator.RetryMessage(ctx, sess.ID, msgs[0].ID)
	require.ErrorIs(t, err, ErrMessageNotEditable)

	genID, err = env.coordinator.RetryMessage(ctx, sess.ID, first.ID)
	require.NoError(t, err)
	second := env.waitGeneration(t, sess.ID, genID)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "second answer", second.Content().Text)
	require.Equal(t, int64(-1), second.ActiveVersion)
	require.Len(t, second.Versions, 1)

	// 归档的备选保留首次响应的内容与统计
	archived := second.Versions[0]
	require.Equal(t, message.TextContent{Text: "first answer"}, archived.Parts[0])
	require.Equal(t, int64(8), archived.Usage.Total)
}

// TestCoordinator_SwitchVersion 测试备选响应的切换
func TestCoordinator_SwitchVersion(t *testing.T) {
	t.Parallel()

	var turn atomic.Int32
	transport := &fakeTransport{
		sendStream: func(ctx context.Context, req gemini.Request, handler gemini.StreamHandler) (string, error) {
			if turn.Add(1) == 1 {
				handler.HandleTextDelta("first answer")
			} else {
				handler.HandleTextDelta("second answer")
			}
			return "STOP", nil
		},
	}
	env := newTestEnv(t, transport)
	ctx := context.Background()

	sess, err := env.sessions.Create(ctx, "New chat")
	require.NoError(t, err)

	genID, err := env.coordinator.Send(ctx, sess.ID, "question", nil)
	require.NoError(t, err)
	first := env.waitGeneration(t, sess.ID, genID)

	genID, err = env.coordinator.RetryMessage(ctx, sess.ID, first.ID)
	require.NoError(t, err)
	env.waitGeneration(t, sess.ID, genID)

	// 切换到归档的备选
	switched, err := env.coordinator.SwitchVersion(ctx, sess.ID, first.ID, 0)
	require.NoError(t, err)
	require.Equal(t, "first answer", textOfParts(switched.ActiveParts()))

	// 切回主响应
	switched, err = env.coordinator.SwitchVersion(ctx, sess.ID, first.ID, -1)
	require.NoError(t, err)
	require.Equal(t, "second answer", textOfParts(switched.ActiveParts()))

	// 越界索引返回错误
	_, err = env.coordinator.SwitchVersion(ctx, sess.ID, first.ID, 5)
	require.Error(t, err)
}

// TestCoordinator_DeleteMessage_RecomputesUsage 测试删除消息后累计统计向后传播
func TestCoordinator_DeleteMessage_RecomputesUsage(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{
		sendStream: func(ctx context.Context, req gemini.Request, handler gemini.StreamHandler) (string, error) {
			handler.HandleTextDelta("answer")
			handler.HandleUsage(message.TokenUsage{Prompt: 10, Completion: 5, Total: 15})
			return "STOP", nil
		},
	}
	env := newTestEnv(t, transport)
	ctx := context.Background()

	sess, err := env.sessions.Create(ctx, "New chat")
	require.NoError(t, err)

	genID, err := env.coordinator.Send(ctx, sess.ID, "first", nil)
	require.NoError(t, err)
	firstModel := env.waitGeneration(t, sess.ID, genID)

	genID, err = env.coordinator.Send(ctx, sess.ID, "second", nil)
	require.NoError(t, err)
	secondModel := env.waitGeneration(t, sess.ID, genID)

	// 两个回合的累计量分别为 15 与 30
	require.Eventually(t, func() bool {
		got, err := env.messages.Get(ctx, secondModel.ID)
		return err == nil && got.Usage.Cumulative == 30
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, env.coordinator.DeleteMessage(ctx, sess.ID, firstModel.ID))

	// 删除后剩余回合的累计量回落，会话总量同步刷新
	got, err := env.messages.Get(ctx, secondModel.ID)
	require.NoError(t, err)
	require.Equal(t, int64(15), got.Usage.Cumulative)

	updated, err := env.sessions.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, int64(15), updated.TotalTokens)
}

// TestCoordinator_Send_ImageModel 测试图片生成模型的回合
func TestCoordinator_Send_ImageModel(t *testing.T) {
	t.Parallel()

	var gotCount atomic.Int32
	transport := &fakeTransport{
		generateImages: func(ctx context.Context, apiKey, model, prompt string, count int) ([]message.ImageContent, error) {
			gotCount.Store(int32(count))
			images := make([]message.ImageContent, count)
			for i := range images {
				images[i] = message.ImageContent{MIMEType: "image/png", Data: []byte{byte(i)}}
			}
			return images, nil
		},
	}
	env := newTestEnv(t, transport)
	ctx := context.Background()

	sess, err := env.sessions.CreateWithSettings(ctx, "New chat", sessionSettingsWithModel("imagen-4.0-generate-001"))
	require.NoError(t, err)

	genID, err := env.coordinator.Send(ctx, sess.ID, "draw a cat", nil)
	require.NoError(t, err)

	result := env.waitGeneration(t, sess.ID, genID)
	require.Equal(t, message.Model, result.Role)
	require.Equal(t, "Generated image(s) for: draw a cat", result.Content().Text)
	require.Len(t, result.ImageContents(), 4)
	require.Equal(t, int32(4), gotCount.Load())
	require.Equal(t, message.FinishReasonStop, result.FinishReason())
}

// TestCoordinator_Send_SpeechModel 测试语音合成模型的回合
func TestCoordinator_Send_SpeechModel(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{}
	env := newTestEnv(t, transport)
	ctx := context.Background()

	sess, err := env.sessions.CreateWithSettings(ctx, "New chat", sessionSettingsWithModel("gemini-2.5-flash-preview-tts"))
	require.NoError(t, err)

	genID, err := env.coordinator.Send(ctx, sess.ID, "read this aloud", nil)
	require.NoError(t, err)

	result := env.waitGeneration(t, sess.ID, genID)
	require.Equal(t, message.Model, result.Role)
	require.Equal(t, message.FinishReasonStop, result.FinishReason())

	var audio *message.AudioContent
	for _, part := range result.Parts {
		if a, ok := part.(message.AudioContent); ok {
			audio = &a
		}
	}
	require.NotNil(t, audio)
	// 未配置音色时使用内置默认值
	require.Equal(t, "Zephyr", audio.Voice)
}

// TestCoordinator_Send_WithAttachment 测试带附件的发送流程
// 上传与生成必须使用同一密钥，成功后该密钥锁定到会话
func TestCoordinator_Send_WithAttachment(t *testing.T) {
	t.Parallel()

	var uploadKey, streamKey atomic.Value
	transport := &fakeTransport{
		uploadFile: func(ctx context.Context, apiKey string, attachment message.Attachment, onState func(message.FileContent)) (message.FileContent, error) {
			uploadKey.Store(apiKey)
			file := message.FileContent{
				Name:     "files/fake",
				FileName: attachment.FileName,
				MIMEType: attachment.MimeType,
				URI:      "https://files.example/fake",
				Size:     int64(len(attachment.Content)),
				State:    message.UploadActive,
			}
			onState(file)
			return file, nil
		},
		sendStream: func(ctx context.Context, req gemini.Request, handler gemini.StreamHandler) (string, error) {
			streamKey.Store(req.APIKey)
			handler.HandleTextDelta("summary")
			return "STOP", nil
		},
	}
	env := newTestEnv(t, transport)
	ctx := context.Background()

	sess, err := env.sessions.Create(ctx, "New chat")
	require.NoError(t, err)

	attachment := message.Attachment{
		FilePath: "/tmp/notes.txt",
		FileName: "notes.txt",
		MimeType: "text/plain",
		Content:  []byte("some notes"),
	}
	genID, err := env.coordinator.Send(ctx, sess.ID, "summarize this", []message.Attachment{attachment})
	require.NoError(t, err)
	env.waitGeneration(t, sess.ID, genID)

	msgs, err := env.messages.List(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	files := msgs[0].FileContents()
	require.Len(t, files, 1)
	require.Equal(t, "notes.txt", files[0].FileName)
	require.Equal(t, message.UploadActive, files[0].State)
	require.Equal(t, "https://files.example/fake", files[0].URI)
	require.Equal(t, "summarize this", msgs[0].Content().Text)

	// 文件句柄与密钥绑定：两次请求的密钥一致，并锁定到会话
	require.Equal(t, uploadKey.Load(), streamKey.Load())
	require.Eventually(t, func() bool {
		got, err := env.sessions.Get(ctx, sess.ID)
		return err == nil && got.Settings.LockedAPIKey == uploadKey.Load().(string)
	}, 5*time.Second, 10*time.Millisecond)
}

// TestCoordinator_Send_NoKeys 测试无可用密钥时的快速失败
// 不注册任务、不产生加载占位，对话中只留下一条错误消息
func TestCoordinator_Send_NoKeys(t *testing.T) {
	t.Parallel()

	env := newTestEnvWithKeys(t, &fakeTransport{}, nil)
	ctx := context.Background()

	sess, err := env.sessions.Create(ctx, "New chat")
	require.NoError(t, err)

	_, err = env.coordinator.Send(ctx, sess.ID, "hello", nil)
	require.ErrorIs(t, err, keyring.ErrNoAPIKey)

	require.Zero(t, env.registry.Len())
	require.False(t, env.registry.IsSessionLoading(sess.ID))

	msgs, err := env.messages.List(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, message.User, msgs[0].Role)
	require.Equal(t, message.Error, msgs[1].Role)
	require.Equal(t, "API key is not configured", msgs[1].Content().Text)
	require.True(t, msgs[1].IsFinished())
}

// TestCoordinator_Send_ImageEditModel 测试图片编辑模型的回合
// 以用户消息的文件附件为源图，产出多个编辑变体
func TestCoordinator_Send_ImageEditModel(t *testing.T) {
	t.Parallel()

	var gotSources atomic.Int32
	transport := &fakeTransport{
		editImage: func(ctx context.Context, apiKey, model, prompt string, sources []message.FileContent) ([]message.ImageContent, error) {
			gotSources.Store(int32(len(sources)))
			return []message.ImageContent{{MIMEType: "image/png", Data: []byte{0x89}}}, nil
		},
	}
	env := newTestEnv(t, transport)
	ctx := context.Background()

	sess, err := env.sessions.CreateWithSettings(ctx, "New chat", sessionSettingsWithModel("gemini-2.5-flash-image-preview"))
	require.NoError(t, err)

	attachment := message.Attachment{
		FileName: "photo.png",
		MimeType: "image/png",
		Content:  []byte{1, 2, 3},
	}
	genID, err := env.coordinator.Send(ctx, sess.ID, "make it brighter", []message.Attachment{attachment})
	require.NoError(t, err)

	result := env.waitGeneration(t, sess.ID, genID)
	require.Equal(t, message.Model, result.Role)
	require.Equal(t, "Generated image(s) for: make it brighter", result.Content().Text)
	require.Len(t, result.ImageContents(), 2)
	require.Equal(t, int32(1), gotSources.Load())
	require.Equal(t, message.FinishReasonStop, result.FinishReason())
}

// TestCoordinator_Send_ImageEditPartialFailure 测试部分变体失败时保留成功结果并标注
func TestCoordinator_Send_ImageEditPartialFailure(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	transport := &fakeTransport{
		editImage: func(ctx context.Context, apiKey, model, prompt string, sources []message.FileContent) ([]message.ImageContent, error) {
			if calls.Add(1) == 1 {
				return nil, errors.New("variant failed")
			}
			return []message.ImageContent{{MIMEType: "image/png", Data: []byte{0x89}}}, nil
		},
	}
	env := newTestEnv(t, transport)
	ctx := context.Background()

	sess, err := env.sessions.CreateWithSettings(ctx, "New chat", sessionSettingsWithModel("gemini-2.5-flash-image-preview"))
	require.NoError(t, err)

	genID, err := env.coordinator.Send(ctx, sess.ID, "sharpen it", nil)
	require.NoError(t, err)

	result := env.waitGeneration(t, sess.ID, genID)
	require.Equal(t, message.Model, result.Role)
	require.Len(t, result.ImageContents(), 1)

	var texts []string
	for _, part := range result.Parts {
		if text, ok := part.(message.TextContent); ok {
			texts = append(texts, text.Text)
		}
	}
	require.Len(t, texts, 2)
	require.Equal(t, "1 of 2 image variants failed.", texts[1])
}

// TestCoordinator_Send_ThinkingDuration 测试思考耗时覆盖首个可见内容前的全部时间
func TestCoordinator_Send_ThinkingDuration(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{
		sendStream: func(ctx context.Context, req gemini.Request, handler gemini.StreamHandler) (string, error) {
			handler.HandleThoughtDelta("thinking")
			time.Sleep(150 * time.Millisecond)
			handler.HandleTextDelta("answer")
			return "STOP", nil
		},
	}
	env := newTestEnv(t, transport)
	ctx := context.Background()

	sess, err := env.sessions.Create(ctx, "New chat")
	require.NoError(t, err)

	genID, err := env.coordinator.Send(ctx, sess.ID, "hard question", nil)
	require.NoError(t, err)
	result := env.waitGeneration(t, sess.ID, genID)

	// 耗时从任务启动算起，至少包含正文到达前的等待
	require.GreaterOrEqual(t, result.ThinkingMs, int64(100))
}

// TestCoordinator_Send_ToolOutputOrdering 测试工具输出后的文本另起新部分
func TestCoordinator_Send_ToolOutputOrdering(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{
		sendStream: func(ctx context.Context, req gemini.Request, handler gemini.StreamHandler) (string, error) {
			handler.HandleTextDelta("Let me compute.")
			handler.HandlePart(message.ExecutableCodeContent{Language: "python", Code: "print(2+2)"})
			handler.HandlePart(message.CodeExecutionResultContent{Outcome: "OUTCOME_OK", Output: "4"})
			handler.HandleTextDelta("The answer is 4.")
			return "STOP", nil
		},
	}
	env := newTestEnv(t, transport)
	ctx := context.Background()

	sess, err := env.sessions.Create(ctx, "New chat")
	require.NoError(t, err)

	genID, err := env.coordinator.Send(ctx, sess.ID, "run 2+2", nil)
	require.NoError(t, err)
	result := env.waitGeneration(t, sess.ID, genID)

	// 文本、代码、执行结果、文本各自独立，顺序与到达顺序一致
	var kinds []string
	var texts []string
	for _, part := range result.Parts {
		switch p := part.(type) {
		case message.TextContent:
			kinds = append(kinds, "text")
			texts = append(texts, p.Text)
		case message.ExecutableCodeContent:
			kinds = append(kinds, "code")
		case message.CodeExecutionResultContent:
			kinds = append(kinds, "result")
		}
	}
	require.Equal(t, []string{"text", "code", "result", "text"}, kinds)
	require.Equal(t, []string{"Let me compute.", "The answer is 4."}, texts)
}

// TestCoordinator_TextToSpeech 测试为已完成的模型消息追加语音
func TestCoordinator_TextToSpeech(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeTransport{})
	ctx := context.Background()

	sess, err := env.sessions.Create(ctx, "New chat")
	require.NoError(t, err)

	genID, err := env.coordinator.Send(ctx, sess.ID, "question", nil)
	require.NoError(t, err)
	result := env.waitGeneration(t, sess.ID, genID)

	// 用户消息不可合成
	msgs, err := env.messages.List(ctx, sess.ID)
	require.NoError(t, err)
	_, err = env.coordinator.TextToSpeech(ctx, sess.ID, msgs[0].ID)
	require.ErrorIs(t, err, ErrMessageNotEditable)

	audio, err := env.coordinator.TextToSpeech(ctx, sess.ID, result.ID)
	require.NoError(t, err)
	require.Equal(t, "audio/pcm", audio.MIMEType)

	got, err := env.messages.Get(ctx, result.ID)
	require.NoError(t, err)
	var found bool
	for _, part := range got.Parts {
		if _, ok := part.(message.AudioContent); ok {
			found = true
		}
	}
	require.True(t, found)
}
