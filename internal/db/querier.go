// 由 sqlc 自动生成的代码。请勿编辑。
// 版本信息:
//   sqlc v1.30.0

package db

import (
	"context"
)

// Querier 定义所有数据库查询操作的接口
type Querier interface {
	// CreateMessage 创建消息
	CreateMessage(ctx context.Context, arg CreateMessageParams) (Message, error)
	// CreateSession 创建会话
	CreateSession(ctx context.Context, arg CreateSessionParams) (Session, error)
	// DeleteMessage 删除消息
	DeleteMessage(ctx context.Context, id string) error
	// DeleteSession 删除会话
	DeleteSession(ctx context.Context, id string) error
	// DeleteSessionMessages 删除会话的所有消息
	DeleteSessionMessages(ctx context.Context, sessionID string) error
	// GetAppState 获取应用状态值
	GetAppState(ctx context.Context, key string) (AppState, error)
	// GetKeyUsage 获取密钥使用计数
	GetKeyUsage(ctx context.Context, digest string) (KeyUsage, error)
	// GetMessage 根据ID获取消息
	GetMessage(ctx context.Context, id string) (Message, error)
	// GetSessionByID 根据ID获取会话
	GetSessionByID(ctx context.Context, id string) (Session, error)
	// IncrementKeyUsage 递增密钥使用计数
	IncrementKeyUsage(ctx context.Context, digest string) error
	// ListMessagesBySession 按会话列出消息
	ListMessagesBySession(ctx context.Context, sessionID string) ([]Message, error)
	// ListSessions 列出所有会话
	ListSessions(ctx context.Context) ([]Session, error)
	// SetAppState 设置应用状态值
	SetAppState(ctx context.Context, arg SetAppStateParams) error
	// UpdateMessage 更新消息
	UpdateMessage(ctx context.Context, arg UpdateMessageParams) error
	// UpdateSession 更新会话
	UpdateSession(ctx context.Context, arg UpdateSessionParams) (Session, error)
}

var _ Querier = (*Queries)(nil)
