package session

import (
	"context"
	"sync"
)

// Bus broadcasts the unauthorized signal to every subscriber. It implements
// transport.Notifier. Subscribers run synchronously, in subscription order.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(ctx context.Context)
	order  []int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]func(ctx context.Context))}
}

// Subscribe registers fn and returns a function that removes it.
func (b *Bus) Subscribe(fn func(ctx context.Context)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.order = append(b.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Notify fires the unauthorized signal.
func (b *Bus) Notify(ctx context.Context) {
	b.mu.RLock()
	fns := make([]func(context.Context), 0, len(b.order))
	for _, id := range b.order {
		fns = append(fns, b.subs[id])
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(ctx)
	}
}
