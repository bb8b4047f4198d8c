package csync

import (
	"reflect"
	"sync"
)

// Value 以读写锁保护单个值，适用于任意可整体替换的值类型。
//
// 切片与映射有专用的 [Slice] 和 [Map]，指针请直接使用原子操作。
type Value[T any] struct {
	v  T
	mu sync.RWMutex
}

// NewValue 用初始值构造 Value。
//
// 传入指针、切片或映射类型会触发 panic，这些类型的锁只能保护引用本身，
// 保护不了底层数据。
func NewValue[T any](t T) *Value[T] {
	switch reflect.ValueOf(t).Kind() {
	case reflect.Pointer:
		panic("csync.Value 不支持指针类型")
	case reflect.Slice:
		panic("csync.Value 不支持切片类型；请使用 csync.Slice")
	case reflect.Map:
		panic("csync.Value 不支持映射类型；请使用 csync.Map")
	}
	return &Value[T]{v: t}
}

// Get 返回当前值。
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.v
}

// Set 替换当前值。
func (v *Value[T]) Set(t T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.v = t
}
