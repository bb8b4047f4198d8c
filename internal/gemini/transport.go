// Package gemini 封装对 Gemini API 的访问
// 包括流式与一次性文本生成、图片生成、语音合成、文件上传等能力
package gemini

import (
	"context"
	"errors"

	"github.com/purpose168/gemchat-cn/internal/message"
	"github.com/purpose168/gemchat-cn/internal/session"
)

// 包级错误定义
var (
	// ErrEmptyResponse 表示模型返回了空响应
	ErrEmptyResponse = errors.New("模型未返回任何内容")
	// ErrUploadFailed 表示文件上传或服务端处理失败
	ErrUploadFailed = errors.New("文件上传失败")
	// ErrUploadCanceled 表示文件在进入可用状态前被取消
	ErrUploadCanceled = errors.New("文件上传已取消")
)

// Request 表示一次生成请求
type Request struct {
	// APIKey 包含本次请求使用的 API 密钥
	APIKey string
	// Model 包含模型名称
	Model string
	// History 包含完整对话历史，最后一条为当前用户消息
	History []message.Message
	// Settings 包含已解析的会话级生成配置
	Settings session.Settings
}

// Result 表示一次生成的最终结果
type Result struct {
	// Parts 包含响应的全部内容部分（不含完成标记）
	Parts []message.ContentPart
	// Usage 包含本回合的令牌使用统计
	Usage message.TokenUsage
	// FinishReason 包含服务端报告的结束原因
	FinishReason string
}

// StreamHandler 接收流式生成过程中的增量事件
// 所有方法都在流读取协程上同步调用
type StreamHandler interface {
	// HandleTextDelta 处理文本增量
	HandleTextDelta(delta string)
	// HandleThoughtDelta 处理思考内容增量
	HandleThoughtDelta(delta string)
	// HandlePart 处理非文本内容部分（图片、代码、执行结果等）
	HandlePart(part message.ContentPart)
	// HandleUsage 处理令牌使用统计快照
	// 快照为累计值，后到的快照覆盖先到的
	HandleUsage(usage message.TokenUsage)
	// HandleGrounding 处理检索溯源元数据快照
	HandleGrounding(grounding message.GroundingContent)
}

// Transport 定义对 Gemini API 的全部访问操作
// 生成协调器只依赖此接口，便于测试替换
type Transport interface {
	// SendStream 发起流式生成请求，通过 handler 逐步回传内容
	// 返回服务端报告的结束原因；上下文取消时返回已收到的部分对应的错误
	SendStream(ctx context.Context, req Request, handler StreamHandler) (string, error)
	// SendOnce 发起一次性生成请求，返回完整结果
	SendOnce(ctx context.Context, req Request) (Result, error)
	// GenerateImages 使用图片生成模型生成指定数量的图片
	GenerateImages(ctx context.Context, apiKey, model, prompt string, count int) ([]message.ImageContent, error)
	// EditImage 按文本指令编辑给定的源图片，返回编辑后的图片
	EditImage(ctx context.Context, apiKey, model, prompt string, sources []message.FileContent) ([]message.ImageContent, error)
	// GenerateSpeech 将文本合成为语音
	GenerateSpeech(ctx context.Context, apiKey, model, text, voice string) (message.AudioContent, error)
	// GenerateTitle 根据会话首个往返生成简短标题
	GenerateTitle(ctx context.Context, apiKey, model, userText, modelText string) (string, error)
	// GenerateSuggestions 根据对话上下文生成后续问题建议
	GenerateSuggestions(ctx context.Context, apiKey, model string, history []message.Message) ([]string, error)
	// TranscribeAudio 将音频转写为文本
	TranscribeAudio(ctx context.Context, apiKey, model string, audio message.Attachment) (string, error)
	// TranslateText 将文本翻译为目标语言
	TranslateText(ctx context.Context, apiKey, model, text, targetLanguage string) (string, error)
	// UploadFile 将附件上传至文件服务并等待其进入可用状态
	// onState 在每次状态变化时被调用
	UploadFile(ctx context.Context, apiKey string, attachment message.Attachment, onState func(message.FileContent)) (message.FileContent, error)
}
