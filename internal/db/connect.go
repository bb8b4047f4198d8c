package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/pressly/goose/v3"
)

// Connect 打开 SQLite 数据库连接并运行迁移。
func Connect(ctx context.Context, dataDir string) (*sql.DB, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data.dir 未设置")
	}
	dbPath := filepath.Join(dataDir, "gemchat.db")

	db, err := openDB(dbPath)
	if err != nil {
		return nil, err
	}

	// 验证数据库连接是否可用
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	goose.SetBaseFS(FS)

	if err := goose.SetDialect("sqlite3"); err != nil {
		slog.Error("设置方言失败", "error", err)
		return nil, fmt.Errorf("设置方言失败: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		slog.Error("应用迁移失败", "error", err)
		return nil, fmt.Errorf("应用迁移失败: %w", err)
	}

	return db, nil
}
