package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/purpose168/gemchat-cn/internal/message"
	"google.golang.org/genai"
)

// GenerateImages 使用图片生成模型生成指定数量的图片
// Imagen 系列走专用接口，其余图片模型走通用生成接口并声明图片响应模态
func (t *transport) GenerateImages(ctx context.Context, apiKey, model, prompt string, count int) ([]message.ImageContent, error) {
	if count < 1 {
		count = 1
	}
	if strings.Contains(model, "imagen") {
		return t.generateImagesDedicated(ctx, apiKey, model, prompt, count)
	}
	return t.generateImagesInline(ctx, apiKey, model, prompt, count)
}

// generateImagesDedicated 通过 Imagen 专用接口生成图片
func (t *transport) generateImagesDedicated(ctx context.Context, apiKey, model, prompt string, count int) ([]message.ImageContent, error) {
	client, err := t.client(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	resp, err := client.Models.GenerateImages(ctx, model, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: int32(count),
	})
	if err != nil {
		return nil, fmt.Errorf("图片生成请求失败: %w", err)
	}
	images := make([]message.ImageContent, 0, len(resp.GeneratedImages))
	for _, generated := range resp.GeneratedImages {
		if generated.Image == nil || len(generated.Image.ImageBytes) == 0 {
			continue
		}
		mimeType := generated.Image.MIMEType
		if mimeType == "" {
			mimeType = "image/png"
		}
		images = append(images, message.ImageContent{
			MIMEType: mimeType,
			Data:     generated.Image.ImageBytes,
		})
	}
	if len(images) == 0 {
		return nil, ErrEmptyResponse
	}
	return images, nil
}

// generateImagesInline 通过通用生成接口产出内联图片
// 每次请求最多产出一张图片，数量大于一时由调用方并发发起多次请求
func (t *transport) generateImagesInline(ctx context.Context, apiKey, model, prompt string, count int) ([]message.ImageContent, error) {
	client, err := t.client(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	contents := []*genai.Content{{
		Role:  string(message.User),
		Parts: []*genai.Part{{Text: prompt}},
	}}
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}

	images := make([]message.ImageContent, 0, count)
	for range count {
		resp, err := client.Models.GenerateContent(ctx, model, contents, config)
		if err != nil {
			return nil, fmt.Errorf("图片生成请求失败: %w", err)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}
		for _, part := range resp.Candidates[0].Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				images = append(images, message.ImageContent{
					MIMEType: part.InlineData.MIMEType,
					Data:     part.InlineData.Data,
				})
			}
		}
	}
	if len(images) == 0 {
		return nil, ErrEmptyResponse
	}
	return images, nil
}

// EditImage 按文本指令编辑给定的源图片
// 源图片以文件服务句柄随请求发送，响应中的内联图片即编辑结果
func (t *transport) EditImage(ctx context.Context, apiKey, model, prompt string, sources []message.FileContent) ([]message.ImageContent, error) {
	client, err := t.client(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	parts := make([]*genai.Part, 0, len(sources)+1)
	for _, source := range sources {
		parts = append(parts, &genai.Part{FileData: &genai.FileData{
			FileURI:  source.URI,
			MIMEType: source.MIMEType,
		}})
	}
	parts = append(parts, &genai.Part{Text: prompt})
	contents := []*genai.Content{{
		Role:  string(message.User),
		Parts: parts,
	}}
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}
	resp, err := client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("图片编辑请求失败: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, ErrEmptyResponse
	}
	images := []message.ImageContent{}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
			images = append(images, message.ImageContent{
				MIMEType: part.InlineData.MIMEType,
				Data:     part.InlineData.Data,
			})
		}
	}
	if len(images) == 0 {
		return nil, ErrEmptyResponse
	}
	return images, nil
}

// GenerateSpeech 将文本合成为语音
// 通过声明音频响应模态与语音配置完成合成
func (t *transport) GenerateSpeech(ctx context.Context, apiKey, model, text, voice string) (message.AudioContent, error) {
	client, err := t.client(ctx, apiKey)
	if err != nil {
		return message.AudioContent{}, err
	}
	contents := []*genai.Content{{
		Role:  string(message.User),
		Parts: []*genai.Part{{Text: text}},
	}}
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{
					VoiceName: voice,
				},
			},
		},
	}
	resp, err := client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return message.AudioContent{}, fmt.Errorf("语音合成请求失败: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return message.AudioContent{}, ErrEmptyResponse
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
			mimeType := part.InlineData.MIMEType
			if mimeType == "" {
				mimeType = "audio/pcm"
			}
			return message.AudioContent{
				MIMEType: mimeType,
				Data:     part.InlineData.Data,
				Voice:    voice,
			}, nil
		}
	}
	return message.AudioContent{}, ErrEmptyResponse
}
