package csync

import (
	"iter"
	"slices"
	"sync"
)

// Slice 是一个线程安全的切片实现，提供并发访问能力。
type Slice[T any] struct {
	inner []T
	mu    sync.RWMutex
}

// NewSlice 创建一个新的线程安全切片。
func NewSlice[T any]() *Slice[T] {
	return &Slice[T]{
		inner: make([]T, 0),
	}
}

// NewSliceFrom 从现有切片创建一个新的线程安全切片。
func NewSliceFrom[T any](s []T) *Slice[T] {
	inner := make([]T, len(s))
	copy(inner, s)
	return &Slice[T]{
		inner: inner,
	}
}

// Append 在切片末尾添加一个或多个元素。
func (s *Slice[T]) Append(items ...T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inner = append(s.inner, items...)
}

// Get 返回指定索引位置的元素。
func (s *Slice[T]) Get(index int) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var zero T
	if index < 0 || index >= len(s.inner) {
		return zero, false
	}
	return s.inner[index], true
}

// Shift 移除并返回切片的第一个元素。
func (s *Slice[T]) Shift() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	if len(s.inner) == 0 {
		return zero, false
	}
	head := s.inner[0]
	s.inner = slices.Delete(s.inner, 0, 1)
	return head, true
}

// Len 返回切片中元素的数量。
func (s *Slice[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.inner)
}

// Copy 返回内部切片的副本。
func (s *Slice[T]) Copy() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dst := make([]T, len(s.inner))
	copy(dst, s.inner)
	return dst
}

// Seq 返回一个迭代器，从切片的快照中产出元素。
func (s *Slice[T]) Seq() iter.Seq[T] {
	dst := s.Copy()
	return func(yield func(T) bool) {
		for _, v := range dst {
			if !yield(v) {
				return
			}
		}
	}
}
