// Package event 提供应用程序事件跟踪和记录功能
// 该文件定义了应用程序生命周期和会话管理相关的事件记录函数
package event

import (
	"time"
)

// appStartTime 记录应用程序启动时间
var appStartTime time.Time

// AppInitialized 记录应用程序初始化完成事件
func AppInitialized() {
	appStartTime = time.Now()
	send("应用已初始化")
}

// AppExited 记录应用程序退出事件，计算并记录应用运行时长
func AppExited() {
	duration := time.Since(appStartTime).Truncate(time.Second)
	send(
		"应用已退出",
		"应用运行时长（可读格式）", duration.String(),
		"应用运行时长（秒）", int64(duration.Seconds()),
	)
	Flush()
}

// SessionCreated 记录会话创建事件
func SessionCreated() {
	send("会话已创建")
}

// SessionDeleted 记录会话删除事件
func SessionDeleted() {
	send("会话已删除")
}

// SessionTitled 记录会话自动命名事件
func SessionTitled() {
	send("会话已自动命名")
}

// PromptSent 记录提示消息发送事件
// props: 附加的事件属性，以键值对形式传入
func PromptSent(props ...any) {
	send(
		"提示已发送",
		props...,
	)
}

// GenerationCompleted 记录生成完成事件
// props: 附加的事件属性，以键值对形式传入
func GenerationCompleted(props ...any) {
	send(
		"生成已完成",
		props...,
	)
}

// GenerationStopped 记录用户停止生成事件
func GenerationStopped() {
	send("生成已停止")
}

// TokensUsed 记录令牌使用事件
// props: 附加的事件属性，以键值对形式传入
func TokensUsed(props ...any) {
	send(
		"令牌已使用",
		props...,
	)
}

// FileUploaded 记录附件上传完成事件
// props: 附加的事件属性，以键值对形式传入
func FileUploaded(props ...any) {
	send(
		"附件已上传",
		props...,
	)
}

// ImagesGenerated 记录图片生成事件
// props: 附加的事件属性，以键值对形式传入
func ImagesGenerated(props ...any) {
	send(
		"图片已生成",
		props...,
	)
}

// SpeechGenerated 记录语音合成事件
func SpeechGenerated() {
	send("语音已合成")
}
