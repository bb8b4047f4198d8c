// Package keyring 提供 API 密钥的轮换与使用统计
// 多个密钥按轮询顺序分摊请求，轮询游标持久化保存，重启后继续轮换
package keyring

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strconv"
	"sync"

	"github.com/purpose168/gemchat-cn/internal/db"
)

// ErrNoAPIKey 表示未配置任何 API 密钥
// 错误文案与客户端提示保持一致
var ErrNoAPIKey = errors.New("API key is not configured")

// cursorKey 应用状态表中记录轮询游标的键
const cursorKey = "key_cursor"

// Rotator 按轮询顺序分发 API 密钥
type Rotator struct {
	mu   sync.Mutex
	keys []string
	q    db.Querier
}

// NewRotator 创建新的密钥轮换器
// keys 为空时轮换器仍可创建，取键时返回 ErrNoAPIKey
func NewRotator(keys []string, q db.Querier) *Rotator {
	return &Rotator{
		keys: keys,
		q:    q,
	}
}

// Len 返回已配置的密钥数量
func (r *Rotator) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}

// KeyForRequest 返回本次请求应使用的密钥
// locked 不为空时直接返回锁定密钥，否则按轮询顺序取下一个密钥并推进游标
func (r *Rotator) KeyForRequest(ctx context.Context, locked string) (string, error) {
	if locked != "" {
		r.recordUsage(ctx, locked)
		return locked, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.keys) == 0 {
		return "", ErrNoAPIKey
	}

	cursor := r.loadCursor(ctx)
	key := r.keys[cursor%len(r.keys)]
	r.storeCursor(ctx, (cursor+1)%len(r.keys))
	r.recordUsage(ctx, key)
	return key, nil
}

// loadCursor 从应用状态读取轮询游标
// 读取失败或值非法时从 0 开始
func (r *Rotator) loadCursor(ctx context.Context) int {
	state, err := r.q.GetAppState(ctx, cursorKey)
	if err != nil {
		return 0
	}
	cursor, err := strconv.Atoi(state.Value)
	if err != nil || cursor < 0 {
		return 0
	}
	return cursor
}

// storeCursor 持久化轮询游标
// 写入失败只记录日志，不影响本次请求
func (r *Rotator) storeCursor(ctx context.Context, cursor int) {
	err := r.q.SetAppState(ctx, db.SetAppStateParams{
		Key:   cursorKey,
		Value: strconv.Itoa(cursor),
	})
	if err != nil {
		slog.Warn("持久化密钥轮询游标失败", "error", err)
	}
}

// recordUsage 记录密钥使用计数
// 以摘要形式存储，数据库中不出现密钥明文
func (r *Rotator) recordUsage(ctx context.Context, key string) {
	if err := r.q.IncrementKeyUsage(ctx, Digest(key)); err != nil {
		slog.Warn("记录密钥使用计数失败", "error", err)
	}
}

// Digest 返回密钥的 SHA-256 摘要的十六进制表示
func Digest(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
