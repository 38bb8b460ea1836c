package eventbus

import (
	"context"
	"sync"
)

type Handler func(payload []byte)

// Bus 按主题发布/订阅，订阅者只收到自己主题的消息
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(topic string, h Handler) (unsubscribe func())
	Close() error
}

// LocalBus 进程内实现，Publish 同步调用订阅者
type LocalBus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[string]map[uint64]Handler
}

func NewLocalBus() *LocalBus {
	return &LocalBus{handlers: make(map[string]map[uint64]Handler)}
}

func (b *LocalBus) Publish(_ context.Context, topic string, payload []byte) error {
	b.dispatch(topic, payload)
	return nil
}

func (b *LocalBus) dispatch(topic string, payload []byte) {
	b.mu.RLock()
	hs := make([]Handler, 0, len(b.handlers[topic]))
	for _, h := range b.handlers[topic] {
		hs = append(hs, h)
	}
	b.mu.RUnlock()

	for _, h := range hs {
		h(payload)
	}
}

func (b *LocalBus) Subscribe(topic string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	if b.handlers[topic] == nil {
		b.handlers[topic] = make(map[uint64]Handler)
	}
	b.handlers[topic][id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.handlers[topic], id)
			if len(b.handlers[topic]) == 0 {
				delete(b.handlers, topic)
			}
		})
	}
}

func (b *LocalBus) Close() error { return nil }
