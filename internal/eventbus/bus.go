package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"k8s.io/klog/v2"
)

// Event 带类型标识的事件
type Event[K comparable] interface {
	EventType() K
}

type Handler[V any] func(ctx context.Context, event V) error

// Bus 进程内按事件类型分发的发布订阅总线
type Bus[K comparable, V Event[K]] struct {
	mutex       sync.RWMutex
	subscribers map[K]map[uint64]Handler[V]
	counter     uint64
	wg          sync.WaitGroup
}

func NewBus[K comparable, V Event[K]]() *Bus[K, V] {
	return &Bus[K, V]{
		subscribers: make(map[K]map[uint64]Handler[V]),
	}
}

// Subscribe 注册处理函数，返回取消订阅函数
func (b *Bus[K, V]) Subscribe(eventType K, handler Handler[V]) func() {
	if handler == nil {
		return func() {}
	}
	id := atomic.AddUint64(&b.counter, 1)
	b.mutex.Lock()
	if b.subscribers[eventType] == nil {
		b.subscribers[eventType] = make(map[uint64]Handler[V])
	}
	b.subscribers[eventType][id] = handler
	b.mutex.Unlock()
	return func() {
		b.mutex.Lock()
		handlers, ok := b.subscribers[eventType]
		if ok {
			delete(handlers, id)
			if len(handlers) == 0 {
				delete(b.subscribers, eventType)
			}
		}
		b.mutex.Unlock()
	}
}

// Publish 同步调用所有订阅者，汇总返回错误
func (b *Bus[K, V]) Publish(ctx context.Context, event V) error {
	b.mutex.RLock()
	handlersMap := b.subscribers[event.EventType()]
	handlers := make([]Handler[V], 0, len(handlersMap))
	for _, handler := range handlersMap {
		handlers = append(handlers, handler)
	}
	b.mutex.RUnlock()

	var errs []error
	for _, handler := range handlers {
		if err := invoke(ctx, handler, event); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// PublishAsync 在后台协程中发布，错误只记录日志。
// 事件处理不受调用方 ctx 取消的影响。
func (b *Bus[K, V]) PublishAsync(ctx context.Context, event V) {
	ctx = context.WithoutCancel(ctx)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := b.Publish(ctx, event); err != nil {
			klog.Errorf("eventbus: publish failed: type=%v, err=%v", event.EventType(), err)
		}
	}()
}

// invoke 单个订阅者 panic 时转为错误，不影响其他订阅者
func invoke[V any](ctx context.Context, handler Handler[V], event V) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return handler(ctx, event)
}

// Wait 等待所有异步发布结束
func (b *Bus[K, V]) Wait() {
	b.wg.Wait()
}
