// 由 sqlc 自动生成的代码。请勿手动编辑。
// 版本信息:
//   sqlc v1.30.0

package db

import (
	"database/sql"
)

// AppState 表示应用状态键值记录
type AppState struct {
	Key   string `json:"key"`   // 状态键
	Value string `json:"value"` // 状态值
}

// KeyUsage 表示按密钥摘要记录的请求计数
type KeyUsage struct {
	Digest    string `json:"digest"`     // 密钥的 SHA-256 摘要
	Requests  int64  `json:"requests"`   // 累计请求次数
	UpdatedAt int64  `json:"updated_at"` // 更新时间戳（Unix秒）
}

// Message 表示消息记录的结构体
type Message struct {
	ID               string         `json:"id"`                // 消息唯一标识符
	SessionID        string         `json:"session_id"`        // 所属会话的ID
	Role             string         `json:"role"`              // 消息角色（user、model、error）
	Parts            string         `json:"parts"`             // 消息内容部分（JSON格式）
	GenerationID     sql.NullString `json:"generation_id"`     // 产生该消息的生成任务ID
	StartedAt        int64          `json:"started_at"`        // 生成开始时间（Unix毫秒，0表示非生成消息）
	FinishedAt       int64          `json:"finished_at"`       // 生成结束时间（Unix毫秒）
	ThinkingMs       int64          `json:"thinking_ms"`       // 从任务开始到第一个内容令牌的耗时（毫秒）
	PromptTokens     int64          `json:"prompt_tokens"`     // 提示词令牌数
	CompletionTokens int64          `json:"completion_tokens"` // 完成令牌数
	TotalTokens      int64          `json:"total_tokens"`      // 本回合总令牌数
	CumulativeTokens int64          `json:"cumulative_tokens"` // 会话内的累计令牌总数
	Versions         sql.NullString `json:"versions"`          // 重试产生的备选响应（JSON格式）
	ActiveVersion    int64          `json:"active_version"`    // 当前显示的备选响应索引
	CreatedAt        int64          `json:"created_at"`        // 创建时间戳（Unix毫秒）
	UpdatedAt        int64          `json:"updated_at"`        // 更新时间戳（Unix毫秒）
}

// Session 表示会话记录的结构体
type Session struct {
	ID               string  `json:"id"`                // 会话唯一标识符
	Title            string  `json:"title"`             // 会话标题
	Settings         string  `json:"settings"`          // 会话级生成配置（JSON格式）
	MessageCount     int64   `json:"message_count"`     // 消息总数
	PromptTokens     int64   `json:"prompt_tokens"`     // 提示词令牌使用量
	CompletionTokens int64   `json:"completion_tokens"` // 完成令牌使用量
	TotalTokens      int64   `json:"total_tokens"`      // 总令牌使用量
	CreatedAt        int64   `json:"created_at"`        // 创建时间戳（Unix秒）
	UpdatedAt        int64   `json:"updated_at"`        // 最后活动时间戳（Unix秒），用作历史列表的排序键
}
