// 由 sqlc 自动生成的代码。请勿编辑。
// 版本信息:
//   sqlc v1.30.0
// 源文件: appstate.sql

package db

import (
	"context"
)

const getAppState = `-- 名称: GetAppState :one
SELECT key, value
FROM app_state
WHERE key = ? LIMIT 1
`

// GetAppState 获取应用状态值
func (q *Queries) GetAppState(ctx context.Context, key string) (AppState, error) {
	row := q.queryRow(ctx, q.getAppStateStmt, getAppState, key)
	var i AppState
	err := row.Scan(&i.Key, &i.Value)
	return i, err
}

const setAppState = `-- 名称: SetAppState :exec
INSERT INTO app_state (key, value)
VALUES (?, ?)
ON CONFLICT (key) DO UPDATE SET value = excluded.value
`

// SetAppStateParams 设置应用状态参数结构体
type SetAppStateParams struct {
	Key   string `json:"key"`   // 状态键
	Value string `json:"value"` // 状态值
}

// SetAppState 设置应用状态值（不存在时插入，存在时覆盖）
func (q *Queries) SetAppState(ctx context.Context, arg SetAppStateParams) error {
	_, err := q.exec(ctx, q.setAppStateStmt, setAppState, arg.Key, arg.Value)
	return err
}

const getKeyUsage = `-- 名称: GetKeyUsage :one
SELECT digest, requests, updated_at
FROM key_usage
WHERE digest = ? LIMIT 1
`

// GetKeyUsage 获取密钥使用计数
func (q *Queries) GetKeyUsage(ctx context.Context, digest string) (KeyUsage, error) {
	row := q.queryRow(ctx, q.getKeyUsageStmt, getKeyUsage, digest)
	var i KeyUsage
	err := row.Scan(&i.Digest, &i.Requests, &i.UpdatedAt)
	return i, err
}

const incrementKeyUsage = `-- 名称: IncrementKeyUsage :exec
INSERT INTO key_usage (digest, requests, updated_at)
VALUES (?, 1, strftime('%s', 'now'))
ON CONFLICT (digest) DO UPDATE SET
    requests = requests + 1,
    updated_at = strftime('%s', 'now')
`

// IncrementKeyUsage 递增密钥使用计数（仅用于观测，不参与任何决策）
func (q *Queries) IncrementKeyUsage(ctx context.Context, digest string) error {
	_, err := q.exec(ctx, q.incrementKeyUsageStmt, incrementKeyUsage, digest)
	return err
}
