// 由 sqlc 自动生成的代码。请勿编辑。
// 版本信息:
//   sqlc v1.30.0
// 源文件: sessions.sql

package db

import (
	"context"
)

const createSession = `-- 名称: CreateSession :one
INSERT INTO sessions (
    id,
    title,
    settings,
    message_count,
    prompt_tokens,
    completion_tokens,
    total_tokens,
    created_at,
    updated_at
) VALUES (
    ?,
    ?,
    ?,
    0,
    0,
    0,
    0,
    strftime('%s', 'now'),
    strftime('%s', 'now')
) RETURNING id, title, settings, message_count, prompt_tokens, completion_tokens, total_tokens, created_at, updated_at
`

// CreateSessionParams 创建会话参数结构体
type CreateSessionParams struct {
	ID       string `json:"id"`       // 会话ID
	Title    string `json:"title"`    // 会话标题
	Settings string `json:"settings"` // 会话级生成配置（JSON格式）
}

// CreateSession 创建新会话
func (q *Queries) CreateSession(ctx context.Context, arg CreateSessionParams) (Session, error) {
	row := q.queryRow(ctx, q.createSessionStmt, createSession,
		arg.ID,
		arg.Title,
		arg.Settings,
	)
	var i Session
	err := row.Scan(
		&i.ID,
		&i.Title,
		&i.Settings,
		&i.MessageCount,
		&i.PromptTokens,
		&i.CompletionTokens,
		&i.TotalTokens,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const deleteSession = `-- 名称: DeleteSession :exec
DELETE FROM sessions
WHERE id = ?
`

// DeleteSession 删除会话
func (q *Queries) DeleteSession(ctx context.Context, id string) error {
	_, err := q.exec(ctx, q.deleteSessionStmt, deleteSession, id)
	return err
}

const getSessionByID = `-- 名称: GetSessionByID :one
SELECT id, title, settings, message_count, prompt_tokens, completion_tokens, total_tokens, created_at, updated_at
FROM sessions
WHERE id = ? LIMIT 1
`

// GetSessionByID 根据ID获取会话
func (q *Queries) GetSessionByID(ctx context.Context, id string) (Session, error) {
	row := q.queryRow(ctx, q.getSessionByIDStmt, getSessionByID, id)
	var i Session
	err := row.Scan(
		&i.ID,
		&i.Title,
		&i.Settings,
		&i.MessageCount,
		&i.PromptTokens,
		&i.CompletionTokens,
		&i.TotalTokens,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listSessions = `-- 名称: ListSessions :many
SELECT id, title, settings, message_count, prompt_tokens, completion_tokens, total_tokens, created_at, updated_at
FROM sessions
ORDER BY updated_at DESC
`

// ListSessions 按最后活动时间倒序列出所有会话
func (q *Queries) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := q.query(ctx, q.listSessionsStmt, listSessions)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Session{}
	for rows.Next() {
		var i Session
		if err := rows.Scan(
			&i.ID,
			&i.Title,
			&i.Settings,
			&i.MessageCount,
			&i.PromptTokens,
			&i.CompletionTokens,
			&i.TotalTokens,
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

const updateSession = `-- 名称: UpdateSession :one
UPDATE sessions
SET
    title = ?,
    settings = ?,
    prompt_tokens = ?,
    completion_tokens = ?,
    total_tokens = ?,
    updated_at = ?
WHERE id = ?
RETURNING id, title, settings, message_count, prompt_tokens, completion_tokens, total_tokens, created_at, updated_at
`

// UpdateSessionParams 更新会话参数结构体
type UpdateSessionParams struct {
	Title            string `json:"title"`             // 会话标题
	Settings         string `json:"settings"`          // 会话级生成配置（JSON格式）
	PromptTokens     int64  `json:"prompt_tokens"`     // 提示词令牌使用量
	CompletionTokens int64  `json:"completion_tokens"` // 完成令牌使用量
	TotalTokens      int64  `json:"total_tokens"`      // 总令牌使用量
	UpdatedAt        int64  `json:"updated_at"`        // 最后活动时间戳（由调用方控制，良性重载不改变排序）
	ID               string `json:"id"`                // 会话ID
}

// UpdateSession 更新会话
func (q *Queries) UpdateSession(ctx context.Context, arg UpdateSessionParams) (Session, error) {
	row := q.queryRow(ctx, q.updateSessionStmt, updateSession,
		arg.Title,
		arg.Settings,
		arg.PromptTokens,
		arg.CompletionTokens,
		arg.TotalTokens,
		arg.UpdatedAt,
		arg.ID,
	)
	var i Session
	err := row.Scan(
		&i.ID,
		&i.Title,
		&i.Settings,
		&i.MessageCount,
		&i.PromptTokens,
		&i.CompletionTokens,
		&i.TotalTokens,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}
