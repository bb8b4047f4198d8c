package event

import (
	"fmt"
	"log/slog"

	"github.com/posthog/posthog-go"
)

// 编译时检查 logger 实现了 posthog.Logger 接口
var _ posthog.Logger = logger{}

// logger 将 PostHog 的日志调用转发到标准库的 slog 包
type logger struct{}

// Debugf 记录调试级别的日志消息
func (logger) Debugf(format string, args ...any) {
	slog.Debug(fmt.Sprintf(format, args...))
}

// Logf 记录信息级别的日志消息
func (logger) Logf(format string, args ...any) {
	slog.Info(fmt.Sprintf(format, args...))
}

// Warnf 记录警告级别的日志消息
func (logger) Warnf(format string, args ...any) {
	slog.Warn(fmt.Sprintf(format, args...))
}

// Errorf 记录错误级别的日志消息
func (logger) Errorf(format string, args ...any) {
	slog.Error(fmt.Sprintf(format, args...))
}
