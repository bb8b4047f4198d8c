package gemini

import (
	"context"
	"fmt"

	"github.com/purpose168/gemchat-cn/internal/csync"
	"github.com/purpose168/gemchat-cn/internal/keyring"
	"google.golang.org/genai"
)

// transport 是 Transport 接口基于官方 SDK 的实现
type transport struct {
	// clients 按密钥摘要缓存 SDK 客户端，避免每次请求重建
	clients *csync.Map[string, *genai.Client]
}

// NewTransport 创建新的 Gemini API 传输层实例
func NewTransport() Transport {
	return &transport{
		clients: csync.NewMap[string, *genai.Client](),
	}
}

// client 返回指定密钥对应的 SDK 客户端
// 客户端按密钥摘要缓存，同一密钥复用同一客户端
func (t *transport) client(ctx context.Context, apiKey string) (*genai.Client, error) {
	digest := keyring.Digest(apiKey)
	if c, ok := t.clients.Get(digest); ok {
		return c, nil
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 Gemini 客户端失败: %w", err)
	}
	return t.clients.GetOrSet(digest, func() *genai.Client { return c }), nil
}
