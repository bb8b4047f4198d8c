package generation

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/purpose168/gemchat-cn/internal/csync"
	"github.com/purpose168/gemchat-cn/internal/message"
	"github.com/purpose168/gemchat-cn/internal/pubsub"
)

const (
	// jobMaxAge 任务的最长存活时间，超过后由清理协程强制回收
	jobMaxAge = time.Hour
	// gcInterval 清理协程的运行间隔
	gcInterval = time.Hour
)

// Job 表示一个进行中的生成任务
type Job struct {
	// ID 包含生成任务的唯一标识符
	ID string
	// SessionID 包含任务所属会话的标识符
	SessionID string
	// MessageID 包含任务写入的消息标识符
	MessageID string
	// StartedAt 包含任务开始时间
	StartedAt time.Time

	cancel    context.CancelFunc
	reason    atomic.Value // message.FinishReason，中止时先写原因再取消
	completed atomic.Bool
}

// AbortReason 返回任务被中止的原因
// 未被中止时返回空字符串
func (j *Job) AbortReason() message.FinishReason {
	if r, ok := j.reason.Load().(message.FinishReason); ok {
		return r
	}
	return ""
}

// Registry 生成任务注册表
// 跟踪所有进行中的任务，保证任务完成的幂等性
type Registry struct {
	*pubsub.Broker[Job]
	jobs *csync.Map[string, *Job]
}

// NewRegistry 创建新的任务注册表
func NewRegistry() *Registry {
	return &Registry{
		Broker: pubsub.NewBroker[Job](),
		jobs:   csync.NewMap[string, *Job](),
	}
}

// Add 注册新的生成任务
func (r *Registry) Add(id, sessionID, messageID string, cancel context.CancelFunc) *Job {
	job := &Job{
		ID:        id,
		SessionID: sessionID,
		MessageID: messageID,
		StartedAt: time.Now(),
		cancel:    cancel,
	}
	r.jobs.Set(id, job)
	r.Publish(pubsub.CreatedEvent, *job)
	return job
}

// Get 返回指定的生成任务
func (r *Registry) Get(id string) (*Job, bool) {
	return r.jobs.Get(id)
}

// SessionJobs 返回指定会话的所有进行中任务
func (r *Registry) SessionJobs(sessionID string) []*Job {
	jobs := []*Job{}
	for job := range r.jobs.Seq() {
		if job.SessionID == sessionID {
			jobs = append(jobs, job)
		}
	}
	return jobs
}

// IsSessionLoading 检查指定会话是否有进行中的任务
func (r *Registry) IsSessionLoading(sessionID string) bool {
	for job := range r.jobs.Seq() {
		if job.SessionID == sessionID {
			return true
		}
	}
	return false
}

// Len 返回进行中任务的数量
func (r *Registry) Len() int {
	return r.jobs.Len()
}

// Complete 将任务标记为完成并从注册表移除
// 幂等操作：同一任务只有首次调用返回 true，后续调用不产生任何效果
func (r *Registry) Complete(id string) bool {
	job, ok := r.jobs.Get(id)
	if !ok {
		return false
	}
	if !job.completed.CompareAndSwap(false, true) {
		return false
	}
	r.jobs.Del(id)
	r.Publish(pubsub.DeletedEvent, *job)
	return true
}

// Abort 以指定原因中止任务
// 原因先于取消写入，完成流程据此选择结束标注
func (r *Registry) Abort(id string, reason message.FinishReason) bool {
	job, ok := r.jobs.Get(id)
	if !ok {
		return false
	}
	job.reason.Store(reason)
	job.cancel()
	return true
}

// AbortSession 中止指定会话的所有任务
func (r *Registry) AbortSession(sessionID string, reason message.FinishReason) {
	for _, job := range r.SessionJobs(sessionID) {
		r.Abort(job.ID, reason)
	}
}

// AbortAll 中止所有进行中的任务
func (r *Registry) AbortAll(reason message.FinishReason) {
	for id := range r.jobs.Seq2() {
		r.Abort(id, reason)
	}
}

// StartGC 启动后台清理协程
// 周期性回收超过最长存活时间仍未完成的任务
func (r *Registry) StartGC(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(gcInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.gc()
			}
		}
	}()
}

// gc 回收超龄任务
func (r *Registry) gc() {
	cutoff := time.Now().Add(-jobMaxAge)
	for id, job := range r.jobs.Seq2() {
		if job.StartedAt.Before(cutoff) {
			slog.Warn("回收超龄生成任务", "job", id, "session", job.SessionID, "started_at", job.StartedAt)
			r.Abort(id, message.FinishReasonCanceled)
			r.Complete(id)
		}
	}
}
