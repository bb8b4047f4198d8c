// Package message 提供消息内容处理相关的类型定义和方法
// 本包定义了消息角色、内容部分、备选响应等核心数据结构
package message

import (
	"time"
)

// MessageRole 定义消息角色的类型
type MessageRole string

const (
	// User 表示用户角色
	User MessageRole = "user"
	// Model 表示模型角色
	Model MessageRole = "model"
	// Error 表示错误角色，用于展示生成失败的回合
	Error MessageRole = "error"
)

// FinishReason 定义消息结束原因的类型
type FinishReason string

const (
	// FinishReasonStop 表示回合正常结束
	FinishReasonStop FinishReason = "stop"
	// FinishReasonStopped 表示用户主动停止，已生成内容保留
	FinishReasonStopped FinishReason = "stopped"
	// FinishReasonCanceled 表示已取消
	FinishReasonCanceled FinishReason = "canceled"
	// FinishReasonMaxTokens 表示达到最大令牌数限制
	FinishReasonMaxTokens FinishReason = "max_tokens"
	// FinishReasonError 表示发生错误
	FinishReasonError FinishReason = "error"

	// FinishReasonUnknown 表示未知结束原因（不应发生）
	FinishReasonUnknown FinishReason = "unknown"
)

// UploadState 定义文件内容的上传状态
type UploadState string

const (
	// UploadPending 表示等待上传
	UploadPending UploadState = "pending"
	// UploadUploading 表示正在上传字节流
	UploadUploading UploadState = "uploading"
	// UploadProcessing 表示服务端正在处理
	UploadProcessing UploadState = "processing"
	// UploadActive 表示文件已可用于生成请求
	UploadActive UploadState = "active"
	// UploadFailed 表示上传或处理失败
	UploadFailed UploadState = "failed"
	// UploadCanceled 表示在进入可用状态前被取消
	UploadCanceled UploadState = "canceled"
)

// ContentPart 定义内容部分的接口
// 所有内容类型都必须实现此接口以作为消息的一部分
type ContentPart interface {
	isPart()
}

// TextContent 表示文本内容
type TextContent struct {
	// Text 包含文本内容
	Text string `json:"text"`
}

// String 返回文本内容
func (tc TextContent) String() string {
	return tc.Text
}

// isPart 实现 ContentPart 接口
func (TextContent) isPart() {}

// ReasoningContent 表示推理内容，包含模型的思考过程
type ReasoningContent struct {
	// Thinking 包含思考过程的文本内容
	Thinking string `json:"thinking"`
	// StartedAt 表示推理开始时间戳（Unix毫秒）
	StartedAt int64 `json:"started_at,omitempty"`
	// FinishedAt 表示推理结束时间戳（Unix毫秒）
	FinishedAt int64 `json:"finished_at,omitempty"`
}

// String 返回推理内容的文本表示
func (rc ReasoningContent) String() string {
	return rc.Thinking
}

// isPart 实现 ContentPart 接口
func (ReasoningContent) isPart() {}

// FileContent 表示文件内容，引用已上传到文件服务的附件
type FileContent struct {
	// Name 包含文件服务分配的资源名称
	Name string `json:"name,omitempty"`
	// FileName 包含原始文件名
	FileName string `json:"file_name"`
	// MIMEType 包含 MIME 类型
	MIMEType string `json:"mime_type"`
	// URI 包含文件服务返回的访问地址
	URI string `json:"uri,omitempty"`
	// Size 包含文件字节数
	Size int64 `json:"size,omitempty"`
	// State 包含上传状态
	State UploadState `json:"state"`
	// Error 包含上传失败时的错误描述
	Error string `json:"error,omitempty"`
}

// String 返回文件的显示名称
func (fc FileContent) String() string {
	return fc.FileName
}

// isPart 实现 ContentPart 接口
func (FileContent) isPart() {}

// ImageContent 表示模型生成的图片内容
type ImageContent struct {
	// MIMEType 包含 MIME 类型
	MIMEType string `json:"mime_type"`
	// Data 包含图片字节数据
	Data []byte `json:"data"`
}

// isPart 实现 ContentPart 接口
func (ImageContent) isPart() {}

// AudioContent 表示语音合成产生的音频内容
type AudioContent struct {
	// MIMEType 包含 MIME 类型
	MIMEType string `json:"mime_type"`
	// Data 包含音频字节数据
	Data []byte `json:"data"`
	// Voice 包含合成所用的语音名称
	Voice string `json:"voice,omitempty"`
}

// isPart 实现 ContentPart 接口
func (AudioContent) isPart() {}

// ExecutableCodeContent 表示模型通过代码执行工具生成的代码
type ExecutableCodeContent struct {
	// Language 包含代码语言
	Language string `json:"language"`
	// Code 包含代码文本
	Code string `json:"code"`
}

// isPart 实现 ContentPart 接口
func (ExecutableCodeContent) isPart() {}

// CodeExecutionResultContent 表示代码执行工具的运行结果
type CodeExecutionResultContent struct {
	// Outcome 包含执行结果状态
	Outcome string `json:"outcome"`
	// Output 包含执行输出
	Output string `json:"output"`
}

// isPart 实现 ContentPart 接口
func (CodeExecutionResultContent) isPart() {}

// GroundingChunk 表示一条检索来源引用
type GroundingChunk struct {
	// Title 包含来源标题
	Title string `json:"title"`
	// URI 包含来源地址
	URI string `json:"uri"`
}

// URLContextEntry 表示一条 URL 上下文检索记录
type URLContextEntry struct {
	// URI 包含被检索的地址
	URI string `json:"uri"`
	// Status 包含检索状态
	Status string `json:"status"`
}

// GroundingContent 表示检索溯源元数据的最终快照
type GroundingContent struct {
	// Queries 包含模型发起的搜索查询
	Queries []string `json:"queries,omitempty"`
	// Chunks 包含来源引用列表
	Chunks []GroundingChunk `json:"chunks,omitempty"`
	// URLs 包含 URL 上下文检索记录，按地址去重
	URLs []URLContextEntry `json:"urls,omitempty"`
}

// isPart 实现 ContentPart 接口
func (GroundingContent) isPart() {}

// Finish 表示消息结束信息
type Finish struct {
	// Reason 包含结束原因
	Reason FinishReason `json:"reason"`
	// Time 包含结束时间戳（Unix毫秒）
	Time int64 `json:"time"`
	// Message 包含结束消息
	Message string `json:"message,omitempty"`
}

// isPart 实现 ContentPart 接口
func (Finish) isPart() {}

// TokenUsage 表示一个回合的令牌使用统计
type TokenUsage struct {
	// Prompt 包含提示词令牌数
	Prompt int64 `json:"prompt"`
	// Completion 包含完成令牌数（含思考令牌）
	Completion int64 `json:"completion"`
	// Total 包含本回合总令牌数
	Total int64 `json:"total"`
	// Cumulative 包含会话内截至本回合的累计总令牌数
	Cumulative int64 `json:"cumulative"`
}

// Version 表示模型消息的一个备选响应
// 重试会将当前响应归档为备选，用户可在备选间切换
type Version struct {
	// Parts 包含该备选响应的内容部分
	Parts []ContentPart `json:"parts"`
	// Usage 包含该备选响应的令牌使用统计
	Usage TokenUsage `json:"usage"`
	// ThinkingMs 包含该备选响应的思考耗时（毫秒）
	ThinkingMs int64 `json:"thinking_ms"`
	// FinishedAt 包含该备选响应的结束时间戳（Unix毫秒）
	FinishedAt int64 `json:"finished_at"`
}

// Message 表示一条完整的消息
type Message struct {
	// ID 包含消息的唯一标识符
	ID string
	// SessionID 包含会话标识符
	SessionID string
	// Role 包含消息角色
	Role MessageRole
	// Parts 包含消息的所有内容部分
	Parts []ContentPart
	// GenerationID 包含产生本消息的生成任务标识符
	GenerationID string
	// StartedAt 包含生成开始时间戳（Unix毫秒）
	StartedAt int64
	// FinishedAt 包含生成结束时间戳（Unix毫秒）
	FinishedAt int64
	// ThinkingMs 包含思考阶段耗时（毫秒）
	ThinkingMs int64
	// Usage 包含令牌使用统计
	Usage TokenUsage
	// Versions 包含归档的备选响应
	Versions []Version
	// ActiveVersion 包含当前显示的备选响应索引，-1 表示显示主响应
	ActiveVersion int64
	// CreatedAt 包含消息创建时间戳（Unix毫秒）
	CreatedAt int64
	// UpdatedAt 包含消息更新时间戳（Unix毫秒）
	UpdatedAt int64
}

// Content 返回消息中的文本内容
// 如果存在多个文本内容部分，返回第一个找到的
func (m *Message) Content() TextContent {
	for _, part := range m.Parts {
		if c, ok := part.(TextContent); ok {
			return c
		}
	}
	return TextContent{}
}

// ReasoningContent 返回消息中的推理内容
// 如果存在多个推理内容部分，返回第一个找到的
func (m *Message) ReasoningContent() ReasoningContent {
	for _, part := range m.Parts {
		if c, ok := part.(ReasoningContent); ok {
			return c
		}
	}
	return ReasoningContent{}
}

// FileContents 返回消息中的所有文件内容
func (m *Message) FileContents() []FileContent {
	fileContents := make([]FileContent, 0)
	for _, part := range m.Parts {
		if c, ok := part.(FileContent); ok {
			fileContents = append(fileContents, c)
		}
	}
	return fileContents
}

// ImageContents 返回消息中的所有图片内容
func (m *Message) ImageContents() []ImageContent {
	imageContents := make([]ImageContent, 0)
	for _, part := range m.Parts {
		if c, ok := part.(ImageContent); ok {
			imageContents = append(imageContents, c)
		}
	}
	return imageContents
}

// GroundingContent 返回消息中的检索溯源内容
// 如果不存在，返回 nil
func (m *Message) GroundingContent() *GroundingContent {
	for _, part := range m.Parts {
		if c, ok := part.(GroundingContent); ok {
			return &c
		}
	}
	return nil
}

// IsFinished 检查消息是否已结束
func (m *Message) IsFinished() bool {
	for _, part := range m.Parts {
		if _, ok := part.(Finish); ok {
			return true
		}
	}
	return false
}

// IsLoading 检查消息是否仍在生成中
func (m *Message) IsLoading() bool {
	return !m.IsFinished()
}

// FinishPart 返回消息的结束部分
// 如果不存在结束部分，返回 nil
func (m *Message) FinishPart() *Finish {
	for _, part := range m.Parts {
		if c, ok := part.(Finish); ok {
			return &c
		}
	}
	return nil
}

// FinishReason 返回消息的结束原因
// 如果消息未结束，返回空字符串
func (m *Message) FinishReason() FinishReason {
	for _, part := range m.Parts {
		if c, ok := part.(Finish); ok {
			return c.Reason
		}
	}
	return ""
}

// IsThinking 检查消息是否正在思考中
// 当存在推理内容但没有文本内容且未结束时返回 true
func (m *Message) IsThinking() bool {
	if m.ReasoningContent().Thinking != "" && m.Content().Text == "" && !m.IsFinished() {
		return true
	}
	return false
}

// HasVisibleContent 检查消息是否包含可见内容
// 仅含推理或检索元数据的消息视为空响应
func (m *Message) HasVisibleContent() bool {
	for _, part := range m.Parts {
		switch part.(type) {
		case TextContent, FileContent, ImageContent, AudioContent,
			ExecutableCodeContent, CodeExecutionResultContent:
			return true
		}
	}
	return false
}

// AppendContent 向消息追加文本内容增量
// 增量只并入紧邻的文本部分；工具输出或媒体内容之后的文本另起新部分，
// 推理、溯源与完成标记属于元数据，不阻断文本合并
func (m *Message) AppendContent(delta string) {
	for i := len(m.Parts) - 1; i >= 0; i-- {
		switch part := m.Parts[i].(type) {
		case TextContent:
			m.Parts[i] = TextContent{Text: part.Text + delta}
			return
		case ReasoningContent, GroundingContent, Finish:
			continue
		default:
			m.Parts = append(m.Parts, TextContent{Text: delta})
			return
		}
	}
	m.Parts = append(m.Parts, TextContent{Text: delta})
}

// AppendReasoningContent 向消息追加推理内容增量
// 如果已存在推理内容部分，则追加到该部分；否则创建新的推理内容部分
func (m *Message) AppendReasoningContent(delta string) {
	found := false
	for i, part := range m.Parts {
		if c, ok := part.(ReasoningContent); ok {
			m.Parts[i] = ReasoningContent{
				Thinking:   c.Thinking + delta,
				StartedAt:  c.StartedAt,
				FinishedAt: c.FinishedAt,
			}
			found = true
		}
	}
	if !found {
		m.Parts = append(m.Parts, ReasoningContent{
			Thinking:  delta,
			StartedAt: time.Now().UnixMilli(),
		})
	}
}

// FinishThinking 标记推理内容结束
// 设置推理结束时间戳，重复调用不会覆盖首次记录的时间
func (m *Message) FinishThinking() {
	for i, part := range m.Parts {
		if c, ok := part.(ReasoningContent); ok {
			if c.FinishedAt == 0 {
				m.Parts[i] = ReasoningContent{
					Thinking:   c.Thinking,
					StartedAt:  c.StartedAt,
					FinishedAt: time.Now().UnixMilli(),
				}
			}
			return
		}
	}
}

// ThinkingDuration 返回推理持续时间
// 如果推理未开始，返回 0；如果推理未结束，使用当前时间计算
func (m *Message) ThinkingDuration() time.Duration {
	reasoning := m.ReasoningContent()
	if reasoning.StartedAt == 0 {
		return 0
	}

	endTime := reasoning.FinishedAt
	if endTime == 0 {
		endTime = time.Now().UnixMilli()
	}

	return time.Duration(endTime-reasoning.StartedAt) * time.Millisecond
}

// SetGrounding 设置检索溯源内容的最终快照
// 如果已存在则整体替换，不做增量合并
func (m *Message) SetGrounding(grounding GroundingContent) {
	for i, part := range m.Parts {
		if _, ok := part.(GroundingContent); ok {
			m.Parts[i] = grounding
			return
		}
	}
	m.Parts = append(m.Parts, grounding)
}

// AddFinish 添加消息结束标记
// 如果已存在结束部分则替换，保证消息只有一个结束标记
func (m *Message) AddFinish(reason FinishReason, message string) {
	// 移除已有的结束部分
	for i, part := range m.Parts {
		if _, ok := part.(Finish); ok {
			m.Parts = append(m.Parts[:i], m.Parts[i+1:]...)
			break
		}
	}
	m.Parts = append(m.Parts, Finish{
		Reason:  reason,
		Time:    time.Now().UnixMilli(),
		Message: message,
	})
}

// ActiveParts 返回当前显示的内容部分
// 当激活了某个备选响应时返回该备选的内容，否则返回主响应内容
func (m *Message) ActiveParts() []ContentPart {
	if m.ActiveVersion >= 0 && int(m.ActiveVersion) < len(m.Versions) {
		return m.Versions[m.ActiveVersion].Parts
	}
	return m.Parts
}

// Clone 创建消息的深拷贝
// 用于在发布事件前隔离 Parts 切片，避免并发修改产生竞态条件
func (m *Message) Clone() Message {
	clone := *m
	clone.Parts = make([]ContentPart, len(m.Parts))
	copy(clone.Parts, m.Parts)
	clone.Versions = make([]Version, len(m.Versions))
	for i, v := range m.Versions {
		vc := v
		vc.Parts = make([]ContentPart, len(v.Parts))
		copy(vc.Parts, v.Parts)
		clone.Versions[i] = vc
	}
	return clone
}
