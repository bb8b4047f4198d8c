// Package pubsub 提供进程内的发布-订阅事件分发机制。
// 会话、消息、上传与加载状态的变更都通过这里广播给 UI 层。
package pubsub

import (
	"context"
	"sync"
)

// bufferSize 订阅者通道的默认缓冲区大小
const bufferSize = 64

// Broker 事件代理，实现发布-订阅模式。
// T 是事件载荷的类型。
type Broker[T any] struct {
	subs map[chan Event[T]]struct{} // 订阅者通道集合
	mu   sync.RWMutex               // 保护 subs 的读写锁
	done chan struct{}              // 关闭信号
}

// NewBroker 创建新的事件代理。
func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{
		subs: make(map[chan Event[T]]struct{}),
		done: make(chan struct{}),
	}
}

// Shutdown 关闭事件代理，关闭所有订阅者通道并清理资源。
func (b *Broker[T]) Shutdown() {
	select {
	case <-b.done: // 已经关闭
		return
	default:
		close(b.done)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}

// Subscribe 订阅事件。
// 返回一个事件通道；当上下文取消时自动取消订阅并关闭通道。
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	// 代理已关闭时返回一个已关闭的通道
	select {
	case <-b.done:
		ch := make(chan Event[T])
		close(ch)
		return ch
	default:
	}

	sub := make(chan Event[T], bufferSize)
	b.subs[sub] = struct{}{}

	go func() {
		<-ctx.Done()

		b.mu.Lock()
		defer b.mu.Unlock()

		select {
		case <-b.done:
			return
		default:
		}

		delete(b.subs, sub)
		close(sub)
	}()

	return sub
}

// Publish 发布事件，将事件发送给所有订阅者。
// 订阅者通道已满时跳过该订阅者，避免阻塞发布方。
func (b *Broker[T]) Publish(t EventType, payload T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	select {
	case <-b.done:
		return
	default:
	}

	event := Event[T]{Type: t, Payload: payload}
	for sub := range b.subs {
		select {
		case sub <- event:
		default:
			// 订阅者处理较慢，丢弃此事件
		}
	}
}
