package eventbus

import (
	"sync"
	"time"
)

// Event 总线事件（埋点/分析用，fire-and-forget）
type Event struct {
	Name   string
	At     time.Time
	Fields map[string]interface{}
}

// Handler 事件处理函数
type Handler func(Event)

// Bus 进程内发布订阅总线
// 显式构造、依赖注入使用：启动时创建一次，退出时 Close
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]Handler
	all    []Handler
	closed bool
}

// New 创建事件总线
func New() *Bus {
	return &Bus{
		subs: make(map[string][]Handler),
	}
}

// Subscribe 订阅指定名称的事件
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.subs[name] = append(b.subs[name], h)
}

// SubscribeAll 订阅全部事件
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.all = append(b.all, h)
}

// Publish 发布事件，同步调用各订阅者
// Close 之后发布为空操作
func (b *Bus) Publish(name string, fields map[string]interface{}) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	handlers := make([]Handler, 0, len(b.subs[name])+len(b.all))
	handlers = append(handlers, b.subs[name]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	ev := Event{
		Name:   name,
		At:     time.Now(),
		Fields: fields,
	}
	for _, h := range handlers {
		h(ev)
	}
}

// Close 关闭总线，之后的 Publish/Subscribe 均为空操作
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.subs = make(map[string][]Handler)
	b.all = nil
}
