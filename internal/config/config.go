// Package config 负责加载与持有应用程序配置。
package config

import (
	"strings"
)

const (
	appName              = "gemchat"
	defaultDataDirectory = ".gemchat"

	// DefaultModel 默认的聊天模型
	DefaultModel = "gemini-2.5-flash"
	// DefaultTitleModel 自动生成会话标题使用的小模型
	DefaultTitleModel = "gemini-2.5-flash-lite"
	// DefaultVoice 语音合成的默认音色
	DefaultVoice = "Zephyr"
)

// Options 应用级行为开关。
type Options struct {
	// Debug 是否启用调试日志
	Debug bool `json:"debug,omitempty"`
	// Notifications 后台会话生成完成时是否发送系统通知；nil 表示启用
	Notifications *bool `json:"notifications,omitempty"`
	// MaxConcurrentStreams 全局并发流式请求上限；0 表示使用默认值
	MaxConcurrentStreams int `json:"max_concurrent_streams,omitempty"`
	// StreamTimeoutSeconds 单个流式请求的硬超时（秒）；0 表示使用默认值
	StreamTimeoutSeconds int `json:"stream_timeout_seconds,omitempty"`
	// StreamRetries 流式请求失败后的固定重试次数
	StreamRetries int `json:"stream_retries,omitempty"`
}

// Defaults 新会话的默认生成配置。
type Defaults struct {
	// Model 模型 ID
	Model string `json:"model,omitempty"`
	// TitleModel 标题/建议等辅助调用使用的模型 ID
	TitleModel string `json:"title_model,omitempty"`
	// Voice 语音合成音色
	Voice string `json:"voice,omitempty"`
	// Temperature 采样温度
	Temperature *float64 `json:"temperature,omitempty"`
	// TopP 核采样参数
	TopP *float64 `json:"top_p,omitempty"`
	// SystemInstruction 系统指令
	SystemInstruction string `json:"system_instruction,omitempty"`
	// ThinkingBudget 思考令牌预算；nil 表示由服务端决定
	ThinkingBudget *int32 `json:"thinking_budget,omitempty"`
	// UseGoogleSearch 是否启用搜索工具
	UseGoogleSearch bool `json:"use_google_search,omitempty"`
	// UseCodeExecution 是否启用代码执行工具
	UseCodeExecution bool `json:"use_code_execution,omitempty"`
	// UseURLContext 是否启用 URL 上下文工具
	UseURLContext bool `json:"use_url_context,omitempty"`
}

// Config 应用程序配置。
type Config struct {
	// APIKeys 换行分隔的 Gemini API 密钥列表
	APIKeys string `json:"api_keys,omitempty"`
	// Defaults 新会话的默认生成配置
	Defaults Defaults `json:"defaults,omitempty"`
	// Options 应用级行为开关
	Options Options `json:"options,omitempty"`

	dataDir string
}

// DataDir 返回应用数据目录。
func (c *Config) DataDir() string {
	return c.dataDir
}

// KeyList 返回配置的 API 密钥列表。
// 按行拆分，忽略空行与首尾空白。
func (c *Config) KeyList() []string {
	var keys []string
	for line := range strings.Lines(c.APIKeys) {
		key := strings.TrimSpace(line)
		if key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}

// Model 返回默认聊天模型，未配置时回退到内置默认值。
func (c *Config) Model() string {
	if c.Defaults.Model != "" {
		return c.Defaults.Model
	}
	return DefaultModel
}

// TitleModel 返回辅助调用模型，未配置时回退到内置默认值。
func (c *Config) TitleModel() string {
	if c.Defaults.TitleModel != "" {
		return c.Defaults.TitleModel
	}
	return DefaultTitleModel
}

// Voice 返回语音合成音色，未配置时回退到内置默认值。
func (c *Config) Voice() string {
	if c.Defaults.Voice != "" {
		return c.Defaults.Voice
	}
	return DefaultVoice
}

// NotificationsEnabled 返回是否启用完成通知，默认启用。
func (c *Config) NotificationsEnabled() bool {
	return c.Options.Notifications == nil || *c.Options.Notifications
}
