// 由 sqlc 自动生成的代码。请勿编辑。
// 版本信息:
//   sqlc v1.30.0

package db

import (
	"context"
	"database/sql"
	"fmt"
)

// DBTX 定义数据库事务接口，封装了数据库操作的核心方法
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// New 创建并返回一个新的 Queries 实例
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Prepare 预编译所有 SQL 查询语句并返回 Queries 实例
func Prepare(ctx context.Context, db DBTX) (*Queries, error) {
	q := Queries{db: db}
	var err error
	if q.createMessageStmt, err = db.PrepareContext(ctx, createMessage); err != nil {
		return nil, fmt.Errorf("准备查询 CreateMessage 时出错: %w", err)
	}
	if q.createSessionStmt, err = db.PrepareContext(ctx, createSession); err != nil {
		return nil, fmt.Errorf("准备查询 CreateSession 时出错: %w", err)
	}
	if q.deleteMessageStmt, err = db.PrepareContext(ctx, deleteMessage); err != nil {
		return nil, fmt.Errorf("准备查询 DeleteMessage 时出错: %w", err)
	}
	if q.deleteSessionStmt, err = db.PrepareContext(ctx, deleteSession); err != nil {
		return nil, fmt.Errorf("准备查询 DeleteSession 时出错: %w", err)
	}
	if q.deleteSessionMessagesStmt, err = db.PrepareContext(ctx, deleteSessionMessages); err != nil {
		return nil, fmt.Errorf("准备查询 DeleteSessionMessages 时出错: %w", err)
	}
	if q.getAppStateStmt, err = db.PrepareContext(ctx, getAppState); err != nil {
		return nil, fmt.Errorf("准备查询 GetAppState 时出错: %w", err)
	}
	if q.getKeyUsageStmt, err = db.PrepareContext(ctx, getKeyUsage); err != nil {
		return nil, fmt.Errorf("准备查询 GetKeyUsage 时出错: %w", err)
	}
	if q.getMessageStmt, err = db.PrepareContext(ctx, getMessage); err != nil {
		return nil, fmt.Errorf("准备查询 GetMessage 时出错: %w", err)
	}
	if q.getSessionByIDStmt, err = db.PrepareContext(ctx, getSessionByID); err != nil {
		return nil, fmt.Errorf("准备查询 GetSessionByID 时出错: %w", err)
	}
	if q.incrementKeyUsageStmt, err = db.PrepareContext(ctx, incrementKeyUsage); err != nil {
		return nil, fmt.Errorf("准备查询 IncrementKeyUsage 时出错: %w", err)
	}
	if q.listMessagesBySessionStmt, err = db.PrepareContext(ctx, listMessagesBySession); err != nil {
		return nil, fmt.Errorf("准备查询 ListMessagesBySession 时出错: %w", err)
	}
	if q.listSessionsStmt, err = db.PrepareContext(ctx, listSessions); err != nil {
		return nil, fmt.Errorf("准备查询 ListSessions 时出错: %w", err)
	}
	if q.setAppStateStmt, err = db.PrepareContext(ctx, setAppState); err != nil {
		return nil, fmt.Errorf("准备查询 SetAppState 时出错: %w", err)
	}
	if q.updateMessageStmt, err = db.PrepareContext(ctx, updateMessage); err != nil {
		return nil, fmt.Errorf("准备查询 UpdateMessage 时出错: %w", err)
	}
	if q.updateSessionStmt, err = db.PrepareContext(ctx, updateSession); err != nil {
		return nil, fmt.Errorf("准备查询 UpdateSession 时出错: %w", err)
	}
	return &q, nil
}

// Close 关闭所有预编译的 SQL 语句，释放相关资源
func (q *Queries) Close() error {
	var err error
	if q.createMessageStmt != nil {
		if cerr := q.createMessageStmt.Close(); cerr != nil {
			err = fmt.Errorf("关闭 createMessageStmt 时出错: %w", cerr)
		}
	}
	if q.createSessionStmt != nil {
		if cerr := q.createSessionStmt.Close(); cerr != nil {
			err = fmt.Errorf("关闭 createSessionStmt 时出错: %w", cerr)
		}
	}
	if q.deleteMessageStmt != nil {
		if cerr := q.deleteMessageStmt.Close(); cerr != nil {
			err = fmt.Errorf("关闭 deleteMessageStmt 时出错: %w", cerr)
		}
	}
	if q.deleteSessionStmt != nil {
		if cerr := q.deleteSessionStmt.Close(); cerr != nil {
			err = fmt.Errorf("关闭 deleteSessionStmt 时出错: %w", cerr)
		}
	}
	if q.deleteSessionMessagesStmt != nil {
		if cerr := q.deleteSessionMessagesStmt.Close(); cerr != nil {
			err = fmt.Errorf("关闭 deleteSessionMessagesStmt 时出错: %w", cerr)
		}
	}
	if q.getAppStateStmt != nil {
		if cerr := q.getAppStateStmt.Close(); cerr != nil {
			err = fmt.Errorf("关闭 getAppStateStmt 时出错: %w", cerr)
		}
	}
	if q.getKeyUsageStmt != nil {
		if cerr := q.getKeyUsageStmt.Close(); cerr != nil {
			err = fmt.Errorf("关闭 getKeyUsageStmt 时出错: %w", cerr)
		}
	}
	if q.getMessageStmt != nil {
		if cerr := q.getMessageStmt.Close(); cerr != nil {
			err = fmt.Errorf("关闭 getMessageStmt 时出错: %w", cerr)
		}
	}
	if q.getSessionByIDStmt != nil {
		if cerr := q.getSessionByIDStmt.Close(); cerr != nil {
			err = fmt.Errorf("关闭 getSessionByIDStmt 时出错: %w", cerr)
		}
	}
	if q.incrementKeyUsageStmt != nil {
		if cerr := q.incrementKeyUsageStmt.Close(); cerr != nil {
			err = fmt.Errorf("关闭 incrementKeyUsageStmt 时出错: %w", cerr)
		}
	}
	if q.listMessagesBySessionStmt != nil {
		if cerr := q.listMessagesBySessionStmt.Close(); cerr != nil {
			err = fmt.Errorf("关闭 listMessagesBySessionStmt 时出错: %w", cerr)
		}
	}
	if q.listSessionsStmt != nil {
		if cerr := q.listSessionsStmt.Close(); cerr != nil {
			err = fmt.Errorf("关闭 listSessionsStmt 时出错: %w", cerr)
		}
	}
	if q.setAppStateStmt != nil {
		if cerr := q.setAppStateStmt.Close(); cerr != nil {
			err = fmt.Errorf("关闭 setAppStateStmt 时出错: %w", cerr)
		}
	}
	if q.updateMessageStmt != nil {
		if cerr := q.updateMessageStmt.Close(); cerr != nil {
			err = fmt.Errorf("关闭 updateMessageStmt 时出错: %w", cerr)
		}
	}
	if q.updateSessionStmt != nil {
		if cerr := q.updateSessionStmt.Close(); cerr != nil {
			err = fmt.Errorf("关闭 updateSessionStmt 时出错: %w", cerr)
		}
	}
	return err
}

// exec 执行 SQL 语句，根据是否在事务中使用预编译语句或直接执行
func (q *Queries) exec(ctx context.Context, stmt *sql.Stmt, query string, args ...interface{}) (sql.Result, error) {
	switch {
	case stmt != nil && q.tx != nil:
		return q.tx.StmtContext(ctx, stmt).ExecContext(ctx, args...)
	case stmt != nil:
		return stmt.ExecContext(ctx, args...)
	default:
		return q.db.ExecContext(ctx, query, args...)
	}
}

// query 执行 SQL 查询并返回多行结果
func (q *Queries) query(ctx context.Context, stmt *sql.Stmt, query string, args ...interface{}) (*sql.Rows, error) {
	switch {
	case stmt != nil && q.tx != nil:
		return q.tx.StmtContext(ctx, stmt).QueryContext(ctx, args...)
	case stmt != nil:
		return stmt.QueryContext(ctx, args...)
	default:
		return q.db.QueryContext(ctx, query, args...)
	}
}

// queryRow 执行 SQL 查询并返回单行结果
func (q *Queries) queryRow(ctx context.Context, stmt *sql.Stmt, query string, args ...interface{}) *sql.Row {
	switch {
	case stmt != nil && q.tx != nil:
		return q.tx.StmtContext(ctx, stmt).QueryRowContext(ctx, args...)
	case stmt != nil:
		return stmt.QueryRowContext(ctx, args...)
	default:
		return q.db.QueryRowContext(ctx, query, args...)
	}
}

// Queries 结构体封装了所有数据库查询操作
type Queries struct {
	db                        DBTX      // 数据库连接对象，实现了 DBTX 接口
	tx                        *sql.Tx   // 数据库事务对象（可选）
	createMessageStmt         *sql.Stmt // 创建消息的预编译语句
	createSessionStmt         *sql.Stmt // 创建会话的预编译语句
	deleteMessageStmt         *sql.Stmt // 删除消息的预编译语句
	deleteSessionStmt         *sql.Stmt // 删除会话的预编译语句
	deleteSessionMessagesStmt *sql.Stmt // 删除会话消息的预编译语句
	getAppStateStmt           *sql.Stmt // 获取应用状态的预编译语句
	getKeyUsageStmt           *sql.Stmt // 获取密钥使用计数的预编译语句
	getMessageStmt            *sql.Stmt // 获取消息的预编译语句
	getSessionByIDStmt        *sql.Stmt // 根据ID获取会话的预编译语句
	incrementKeyUsageStmt     *sql.Stmt // 递增密钥使用计数的预编译语句
	listMessagesBySessionStmt *sql.Stmt // 按会话列出消息的预编译语句
	listSessionsStmt          *sql.Stmt // 列出会话的预编译语句
	setAppStateStmt           *sql.Stmt // 设置应用状态的预编译语句
	updateMessageStmt         *sql.Stmt // 更新消息的预编译语句
	updateSessionStmt         *sql.Stmt // 更新会话的预编译语句
}

// WithTx 创建并返回一个与指定事务关联的新的 Queries 实例
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{
		db:                        tx,
		tx:                        tx,
		createMessageStmt:         q.createMessageStmt,
		createSessionStmt:         q.createSessionStmt,
		deleteMessageStmt:         q.deleteMessageStmt,
		deleteSessionStmt:         q.deleteSessionStmt,
		deleteSessionMessagesStmt: q.deleteSessionMessagesStmt,
		getAppStateStmt:           q.getAppStateStmt,
		getKeyUsageStmt:           q.getKeyUsageStmt,
		getMessageStmt:            q.getMessageStmt,
		getSessionByIDStmt:        q.getSessionByIDStmt,
		incrementKeyUsageStmt:     q.incrementKeyUsageStmt,
		listMessagesBySessionStmt: q.listMessagesBySessionStmt,
		listSessionsStmt:          q.listSessionsStmt,
		setAppStateStmt:           q.setAppStateStmt,
		updateMessageStmt:         q.updateMessageStmt,
		updateSessionStmt:         q.updateSessionStmt,
	}
}
