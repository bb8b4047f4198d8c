// 由 sqlc 自动生成的代码。请勿编辑。
// 版本信息:
//   sqlc v1.30.0
// 源文件: messages.sql

package db

import (
	"context"
	"database/sql"
)

const createMessage = `-- 名称: CreateMessage :one
INSERT INTO messages (
    id,
    session_id,
    role,
    parts,
    generation_id,
    started_at,
    finished_at,
    thinking_ms,
    prompt_tokens,
    completion_tokens,
    total_tokens,
    cumulative_tokens,
    versions,
    active_version,
    created_at,
    updated_at
) VALUES (?, ?, ?, ?, ?, ?, 0, 0, 0, 0, 0, 0, null, 0, ?, ?)
RETURNING id, session_id, role, parts, generation_id, started_at, finished_at, thinking_ms, prompt_tokens, completion_tokens, total_tokens, cumulative_tokens, versions, active_version, created_at, updated_at
`

// CreateMessageParams 创建消息参数结构体
type CreateMessageParams struct {
	ID           string         `json:"id"`            // 消息ID
	SessionID    string         `json:"session_id"`    // 所属会话ID
	Role         string         `json:"role"`          // 消息角色
	Parts        string         `json:"parts"`         // 消息内容部分（JSON格式）
	GenerationID sql.NullString `json:"generation_id"` // 生成任务ID
	StartedAt    int64          `json:"started_at"`    // 生成开始时间（Unix毫秒）
	CreatedAt    int64          `json:"created_at"`    // 创建时间戳（Unix毫秒）
	UpdatedAt    int64          `json:"updated_at"`    // 更新时间戳（Unix毫秒）
}

// CreateMessage 创建新消息
func (q *Queries) CreateMessage(ctx context.Context, arg CreateMessageParams) (Message, error) {
	row := q.queryRow(ctx, q.createMessageStmt, createMessage,
		arg.ID,
		arg.SessionID,
		arg.Role,
		arg.Parts,
		arg.GenerationID,
		arg.StartedAt,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	var i Message
	err := row.Scan(
		&i.ID,
		&i.SessionID,
		&i.Role,
		&i.Parts,
		&i.GenerationID,
		&i.StartedAt,
		&i.FinishedAt,
		&i.ThinkingMs,
		&i.PromptTokens,
		&i.CompletionTokens,
		&i.TotalTokens,
		&i.CumulativeTokens,
		&i.Versions,
		&i.ActiveVersion,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const deleteMessage = `-- 名称: DeleteMessage :exec
DELETE FROM messages
WHERE id = ?
`

// DeleteMessage 删除消息
func (q *Queries) DeleteMessage(ctx context.Context, id string) error {
	_, err := q.exec(ctx, q.deleteMessageStmt, deleteMessage, id)
	return err
}

const deleteSessionMessages = `-- 名称: DeleteSessionMessages :exec
DELETE FROM messages
WHERE session_id = ?
`

// DeleteSessionMessages 删除指定会话的所有消息
func (q *Queries) DeleteSessionMessages(ctx context.Context, sessionID string) error {
	_, err := q.exec(ctx, q.deleteSessionMessagesStmt, deleteSessionMessages, sessionID)
	return err
}

const getMessage = `-- 名称: GetMessage :one
SELECT id, session_id, role, parts, generation_id, started_at, finished_at, thinking_ms, prompt_tokens, completion_tokens, total_tokens, cumulative_tokens, versions, active_version, created_at, updated_at
FROM messages
WHERE id = ? LIMIT 1
`

// GetMessage 根据ID获取消息
func (q *Queries) GetMessage(ctx context.Context, id string) (Message, error) {
	row := q.queryRow(ctx, q.getMessageStmt, getMessage, id)
	var i Message
	err := row.Scan(
		&i.ID,
		&i.SessionID,
		&i.Role,
		&i.Parts,
		&i.GenerationID,
		&i.StartedAt,
		&i.FinishedAt,
		&i.ThinkingMs,
		&i.PromptTokens,
		&i.CompletionTokens,
		&i.TotalTokens,
		&i.CumulativeTokens,
		&i.Versions,
		&i.ActiveVersion,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listMessagesBySession = `-- 名称: ListMessagesBySession :many
SELECT id, session_id, role, parts, generation_id, started_at, finished_at, thinking_ms, prompt_tokens, completion_tokens, total_tokens, cumulative_tokens, versions, active_version, created_at, updated_at
FROM messages
WHERE session_id = ?
ORDER BY created_at ASC, id ASC
`

// ListMessagesBySession 按创建时间升序列出指定会话的所有消息
func (q *Queries) ListMessagesBySession(ctx context.Context, sessionID string) ([]Message, error) {
	rows, err := q.query(ctx, q.listMessagesBySessionStmt, listMessagesBySession, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Message{}
	for rows.Next() {
		var i Message
		if err := rows.Scan(
			&i.ID,
			&i.SessionID,
			&i.Role,
			&i.Parts,
			&i.GenerationID,
			&i.StartedAt,
			&i.FinishedAt,
			&i.ThinkingMs,
			&i.PromptTokens,
			&i.CompletionTokens,
			&i.TotalTokens,
			&i.CumulativeTokens,
			&i.Versions,
			&i.ActiveVersion,
			&i.CreatedAt,
			&i.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updateMessage = `-- 名称: UpdateMessage :exec
UPDATE messages
SET
    role = ?,
    parts = ?,
    finished_at = ?,
    thinking_ms = ?,
    prompt_tokens = ?,
    completion_tokens = ?,
    total_tokens = ?,
    cumulative_tokens = ?,
    versions = ?,
    active_version = ?,
    updated_at = ?
WHERE id = ?
`

// UpdateMessageParams 更新消息参数结构体
type UpdateMessageParams struct {
	Role             string         `json:"role"`              // 消息角色
	Parts            string         `json:"parts"`             // 消息内容部分（JSON格式）
	FinishedAt       int64          `json:"finished_at"`       // 生成结束时间（Unix毫秒）
	ThinkingMs       int64          `json:"thinking_ms"`       // 思考耗时（毫秒）
	PromptTokens     int64          `json:"prompt_tokens"`     // 提示词令牌数
	CompletionTokens int64          `json:"completion_tokens"` // 完成令牌数
	TotalTokens      int64          `json:"total_tokens"`      // 本回合总令牌数
	CumulativeTokens int64          `json:"cumulative_tokens"` // 会话内累计令牌总数
	Versions         sql.NullString `json:"versions"`          // 备选响应（JSON格式）
	ActiveVersion    int64          `json:"active_version"`    // 当前显示的备选响应索引
	UpdatedAt        int64          `json:"updated_at"`        // 更新时间戳（Unix毫秒）
	ID               string         `json:"id"`                // 消息ID
}

// UpdateMessage 更新消息
func (q *Queries) UpdateMessage(ctx context.Context, arg UpdateMessageParams) error {
	_, err := q.exec(ctx, q.updateMessageStmt, updateMessage,
		arg.Role,
		arg.Parts,
		arg.FinishedAt,
		arg.ThinkingMs,
		arg.PromptTokens,
		arg.CompletionTokens,
		arg.TotalTokens,
		arg.CumulativeTokens,
		arg.Versions,
		arg.ActiveVersion,
		arg.UpdatedAt,
		arg.ID,
	)
	return err
}
