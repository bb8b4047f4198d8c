package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// configFileName 数据目录中配置文件的名称
const configFileName = "gemchat.json"

// Load 从数据目录加载配置。
// 配置文件缺失不是错误，此时返回默认配置；
// 环境变量 GEMINI_API_KEY 会追加到密钥列表，便于不落盘地提供凭据。
func Load(dataDir string, debug bool) (*Config, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("解析用户主目录失败: %w", err)
		}
		dataDir = filepath.Join(home, defaultDataDirectory)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}

	cfg := &Config{dataDir: dataDir}

	data, err := os.ReadFile(filepath.Join(dataDir, configFileName))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// 没有配置文件时使用默认配置
	case err != nil:
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	// 数据目录下的 .env 可以补充环境变量，已存在的变量不被覆盖
	if err := godotenv.Load(filepath.Join(dataDir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("加载 .env 文件失败", "error", err)
	}

	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		if cfg.APIKeys == "" {
			cfg.APIKeys = key
		} else {
			cfg.APIKeys += "\n" + key
		}
	}

	cfg.Options.Debug = cfg.Options.Debug || debug
	return cfg, nil
}
