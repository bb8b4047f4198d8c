// Package generation 提供消息生成的协调与调度
// 负责发起生成任务、驱动流式响应落库、处理停止/取消/重试等生命周期操作
package generation

import "errors"

// 包级错误定义
var (
	// ErrSessionBusy 表示会话已有进行中的生成任务
	ErrSessionBusy = errors.New("会话存在进行中的生成任务")
	// ErrJobNotFound 表示指定的生成任务不存在
	ErrJobNotFound = errors.New("未找到生成任务")
	// ErrEmptyPrompt 表示请求内容为空
	ErrEmptyPrompt = errors.New("请求内容为空")
	// ErrMessageNotEditable 表示消息不可编辑
	ErrMessageNotEditable = errors.New("消息不可编辑")
	// ErrVersionConflict 表示备选响应操作与进行中的生成冲突
	ErrVersionConflict = errors.New("消息正在生成中，无法切换备选响应")
)

// 展示给客户端的结束标注，文案不可更改
const (
	// stoppedSuffix 用户停止时附加在已生成内容后的标注
	stoppedSuffix = "\n\n[Stopped by user]"
	// canceledSuffix 任务被系统取消时附加的标注
	canceledSuffix = "\n\n[Cancelled by user]"
)
