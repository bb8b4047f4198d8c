// Package log 负责初始化日志系统并提供 panic 恢复工具。
package log

import (
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	initOnce    sync.Once   // 确保初始化只执行一次
	initialized atomic.Bool // 标记日志系统是否已初始化
)

// Setup 初始化日志系统。
// 参数:
//   - logFile: 日志文件路径
//   - debug: 是否启用调试模式（调试模式会输出更详细的日志）
func Setup(logFile string, debug bool) {
	initOnce.Do(func() {
		// 日志轮转器，控制日志文件的大小和保留时长
		logRotator := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // 单个日志文件最大大小（MB）
			MaxBackups: 0,
			MaxAge:     30, // 保留旧日志文件的最大天数
			Compress:   false,
		}

		level := slog.LevelInfo
		if debug {
			level = slog.LevelDebug
		}

		logger := slog.NewJSONHandler(logRotator, &slog.HandlerOptions{
			Level:     level,
			AddSource: true,
		})

		slog.SetDefault(slog.New(logger))
		initialized.Store(true)
	})
}

// Initialized 检查日志系统是否已初始化。
func Initialized() bool {
	return initialized.Load()
}

// RecoverPanic 恢复 panic 并记录错误信息。
// 该函数应在 defer 语句中调用。
// 参数:
//   - name: panic 发生位置的标识名称
//   - cleanup: 清理函数，在 panic 发生后执行（可选）
func RecoverPanic(name string, cleanup func()) {
	if r := recover(); r != nil {
		slog.Error("发生 panic", "name", name, "panic", r)

		// 创建带有时间戳的 panic 日志文件
		timestamp := time.Now().Format("20060102-150405")
		filename := fmt.Sprintf("gemchat-panic-%s-%s.log", name, timestamp)

		file, err := os.Create(filename)
		if err == nil {
			defer file.Close()

			fmt.Fprintf(file, "Panic in %s: %v\n\n", name, r)
			fmt.Fprintf(file, "Time: %s\n\n", time.Now().Format(time.RFC3339))
			fmt.Fprintf(file, "Stack Trace:\n%s\n", debug.Stack())

			if cleanup != nil {
				cleanup()
			}
		}
	}
}
