package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/purpose168/gemchat-cn/internal/event"
	"github.com/purpose168/gemchat-cn/internal/message"
	"github.com/purpose168/gemchat-cn/internal/session"
)

// imagenVariantCount Imagen 模型单回合生成的候选图片数量
const imagenVariantCount = 4

// imageEditVariantCount 图片编辑回合并发产出的变体数量
const imageEditVariantCount = 2

// generatedImagesText 图片生成回合的文本标注模板，文案不可更改
const generatedImagesText = "Generated image(s) for: %s"

// partialImagesNote 部分变体失败时附加的标注模板，文案不可更改
const partialImagesNote = "%d of %d image variants failed."

// generateImagesTurn 执行图片生成回合
// 以最近一条用户消息的文本作为提示词
func (c *Coordinator) generateImagesTurn(ctx context.Context, sess session.Session, messageID, apiKey string, settings session.Settings) error {
	prompt, err := c.lastUserText(ctx, sess.ID, messageID)
	if err != nil {
		return err
	}
	if prompt == "" {
		return ErrEmptyPrompt
	}

	count := 1
	if strings.Contains(settings.Model, "imagen") {
		count = imagenVariantCount
	}
	images, failed, err := c.fanOutImages(ctx, apiKey, settings.Model, prompt, count)
	if err != nil {
		return err
	}

	target, err := c.messages.Get(ctx, messageID)
	if err != nil {
		return err
	}
	parts := []message.ContentPart{
		message.TextContent{Text: fmt.Sprintf(generatedImagesText, prompt)},
	}
	for _, img := range images {
		parts = append(parts, img)
	}
	if failed > 0 {
		slog.Warn("部分图片变体生成失败", "session", sess.ID, "failed", failed, "total", count)
		parts = append(parts, message.TextContent{Text: fmt.Sprintf(partialImagesNote, failed, count)})
	}
	target.Parts = parts
	event.ImagesGenerated("数量", len(images))
	return c.messages.Update(context.WithoutCancel(ctx), target)
}

// editImagesTurn 执行图片编辑回合
// 以最近一条用户消息的文本为指令、其文件附件为源图，并发产出多个变体
func (c *Coordinator) editImagesTurn(ctx context.Context, sess session.Session, messageID, apiKey string, settings session.Settings) error {
	prompt, sources, err := c.lastUserTurn(ctx, sess.ID, messageID)
	if err != nil {
		return err
	}
	if prompt == "" {
		return ErrEmptyPrompt
	}

	images, failed, err := c.fanOutEdits(ctx, apiKey, settings.Model, prompt, sources)
	if err != nil {
		return err
	}

	target, err := c.messages.Get(ctx, messageID)
	if err != nil {
		return err
	}
	parts := []message.ContentPart{
		message.TextContent{Text: fmt.Sprintf(generatedImagesText, prompt)},
	}
	for _, img := range images {
		parts = append(parts, img)
	}
	if failed > 0 {
		slog.Warn("部分编辑变体生成失败", "session", sess.ID, "failed", failed, "total", imageEditVariantCount)
		parts = append(parts, message.TextContent{Text: fmt.Sprintf(partialImagesNote, failed, imageEditVariantCount)})
	}
	target.Parts = parts
	event.ImagesGenerated("数量", len(images))
	return c.messages.Update(context.WithoutCancel(ctx), target)
}

// fanOutImages 生成指定数量的图片
// Imagen 系列由服务端一次返回全部候选；其余模型并发发起多次请求，
// 只要有任意一次成功即视为成功，全部失败时返回首个错误
// 返回值中的 failed 为失败的请求数，供调用方在结果中标注
func (c *Coordinator) fanOutImages(ctx context.Context, apiKey, model, prompt string, count int) ([]message.ImageContent, int, error) {
	if count <= 1 || strings.Contains(model, "imagen") {
		images, err := c.transport.GenerateImages(ctx, apiKey, model, prompt, count)
		if err != nil {
			return nil, count, err
		}
		return images, 0, nil
	}

	results := make([][]message.ImageContent, count)
	errs := make([]error, count)
	var wg sync.WaitGroup
	for i := range count {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = c.transport.GenerateImages(ctx, apiKey, model, prompt, 1)
		}()
	}
	wg.Wait()

	images := []message.ImageContent{}
	failed := 0
	var firstErr error
	for i := range count {
		if errs[i] != nil {
			failed++
			if firstErr == nil {
				firstErr = errs[i]
			}
			continue
		}
		images = append(images, results[i]...)
	}

	if len(images) == 0 {
		if firstErr != nil {
			return nil, failed, firstErr
		}
		return nil, failed, errors.New("图片生成未返回任何结果")
	}
	return images, failed, nil
}

// fanOutEdits 并发产出图片编辑变体
// 与图片生成同样采用部分成功策略，全部失败时返回首个错误
func (c *Coordinator) fanOutEdits(ctx context.Context, apiKey, model, prompt string, sources []message.FileContent) ([]message.ImageContent, int, error) {
	count := imageEditVariantCount
	results := make([][]message.ImageContent, count)
	errs := make([]error, count)
	var wg sync.WaitGroup
	for i := range count {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = c.transport.EditImage(ctx, apiKey, model, prompt, sources)
		}()
	}
	wg.Wait()

	images := []message.ImageContent{}
	failed := 0
	var firstErr error
	for i := range count {
		if errs[i] != nil {
			failed++
			if firstErr == nil {
				firstErr = errs[i]
			}
			continue
		}
		images = append(images, results[i]...)
	}

	if len(images) == 0 {
		if firstErr != nil {
			return nil, failed, firstErr
		}
		return nil, failed, errors.New("图片编辑未返回任何结果")
	}
	return images, failed, nil
}

// generateSpeechTurn 执行语音合成回合
// 以最近一条用户消息的文本作为合成内容
func (c *Coordinator) generateSpeechTurn(ctx context.Context, sess session.Session, messageID, apiKey string, settings session.Settings) error {
	text, err := c.lastUserText(ctx, sess.ID, messageID)
	if err != nil {
		return err
	}
	if text == "" {
		return ErrEmptyPrompt
	}

	audio, err := c.transport.GenerateSpeech(ctx, apiKey, settings.Model, text, settings.Voice)
	if err != nil {
		return err
	}

	target, err := c.messages.Get(ctx, messageID)
	if err != nil {
		return err
	}
	target.Parts = []message.ContentPart{audio}
	event.SpeechGenerated()
	return c.messages.Update(context.WithoutCancel(ctx), target)
}

// TextToSpeech 为指定的模型消息合成语音
// 合成结果作为音频内容追加到该消息中
func (c *Coordinator) TextToSpeech(ctx context.Context, sessionID, messageID string) (message.AudioContent, error) {
	lock := c.messageLock(messageID)
	lock.Lock()
	defer lock.Unlock()

	target, err := c.messages.Get(ctx, messageID)
	if err != nil {
		return message.AudioContent{}, err
	}
	if target.Role != message.Model || target.SessionID != sessionID {
		return message.AudioContent{}, ErrMessageNotEditable
	}
	if target.IsLoading() {
		return message.AudioContent{}, ErrVersionConflict
	}
	text := textOfParts(target.ActiveParts())
	if text == "" {
		return message.AudioContent{}, ErrEmptyPrompt
	}

	sess, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return message.AudioContent{}, err
	}
	settings := c.resolveSettings(sess.Settings)
	apiKey, err := c.keys.KeyForRequest(ctx, settings.LockedAPIKey)
	if err != nil {
		return message.AudioContent{}, err
	}

	audio, err := c.transport.GenerateSpeech(ctx, apiKey, ttsModel(settings.Model), text, settings.Voice)
	if err != nil {
		return message.AudioContent{}, err
	}

	target.Parts = append(target.Parts, audio)
	if err := c.messages.Update(ctx, target); err != nil {
		return message.AudioContent{}, err
	}
	event.SpeechGenerated()
	return audio, nil
}

// ttsModel 返回用于语音合成的模型
// 会话模型本身不是语音模型时使用内置语音模型
func ttsModel(model string) string {
	if strings.Contains(model, "-tts") {
		return model
	}
	return "gemini-2.5-flash-preview-tts"
}

// lastUserText 返回指定消息之前最近一条用户消息的文本
func (c *Coordinator) lastUserText(ctx context.Context, sessionID, beforeMessageID string) (string, error) {
	history, err := c.historyBefore(ctx, sessionID, beforeMessageID)
	if err != nil {
		return "", err
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == message.User {
			return strings.TrimSpace(history[i].Content().Text), nil
		}
	}
	return "", nil
}

// lastUserTurn 返回指定消息之前最近一条用户消息的文本与文件附件
func (c *Coordinator) lastUserTurn(ctx context.Context, sessionID, beforeMessageID string) (string, []message.FileContent, error) {
	history, err := c.historyBefore(ctx, sessionID, beforeMessageID)
	if err != nil {
		return "", nil, err
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != message.User {
			continue
		}
		files := []message.FileContent{}
		for _, file := range history[i].FileContents() {
			if file.State == message.UploadActive {
				files = append(files, file)
			}
		}
		return strings.TrimSpace(history[i].Content().Text), files, nil
	}
	return "", nil, nil
}

// textOfParts 提取内容部分中的首个文本
func textOfParts(parts []message.ContentPart) string {
	for _, part := range parts {
		if c, ok := part.(message.TextContent); ok {
			return c.Text
		}
	}
	return ""
}
