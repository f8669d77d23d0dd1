// Package notify carries change notices from the datastore to the parts of a
// session that react to them.
package notify

import (
	"sync"

	"github.com/golang/glog"
	"github.com/google/uuid"
)

// Bus delivers every published event to every subscriber exactly once, in
// publish order. Each subscriber runs on its own goroutine so a slow handler
// never blocks the publisher or other subscribers.
type Bus[T any] struct {
	name string

	mu     sync.Mutex
	subs   map[uuid.UUID]*subscriber[T]
	closed bool
	wg     sync.WaitGroup
}

type Subscription struct {
	ID          uuid.UUID
	unsubscribe func()
	once        sync.Once
}

// Unsubscribe stops delivery. Events still queued for the subscriber are
// discarded. Safe to call from inside the handler.
func (s *Subscription) Unsubscribe() {
	s.once.Do(s.unsubscribe)
}

type subscriber[T any] struct {
	fn     func(T)
	mu     sync.Mutex
	queue  []T
	signal chan struct{}
	quit   chan struct{}
}

func NewBus[T any](name string) *Bus[T] {
	return &Bus[T]{
		name: name,
		subs: make(map[uuid.UUID]*subscriber[T]),
	}
}

func (b *Bus[T]) Subscribe(fn func(T)) *Subscription {
	id := uuid.New()
	sub := &subscriber[T]{
		fn:     fn,
		signal: make(chan struct{}, 1),
		quit:   make(chan struct{}),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.quit)
		return &Subscription{ID: id, unsubscribe: func() {}}
	}
	b.subs[id] = sub
	b.wg.Add(1)
	go b.run(id, sub)

	return &Subscription{ID: id, unsubscribe: func() { b.remove(id) }}
}

func (b *Bus[T]) remove(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(sub.quit)
	}
}

// Publish never blocks on subscribers. Events published after Close are
// dropped.
func (b *Bus[T]) Publish(event T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		sub.mu.Lock()
		sub.queue = append(sub.queue, event)
		sub.mu.Unlock()
		select {
		case sub.signal <- struct{}{}:
		default:
		}
	}
}

func (b *Bus[T]) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close removes every subscriber and waits for their goroutines to exit.
// It must not be called from a handler of the same bus.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.quit)
	}
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *Bus[T]) run(id uuid.UUID, sub *subscriber[T]) {
	defer b.wg.Done()
	for {
		select {
		case <-sub.quit:
			return
		case <-sub.signal:
		}

		for {
			sub.mu.Lock()
			if len(sub.queue) == 0 {
				sub.mu.Unlock()
				break
			}
			event := sub.queue[0]
			sub.queue = sub.queue[1:]
			sub.mu.Unlock()

			select {
			case <-sub.quit:
				return
			default:
			}
			b.deliver(id, sub, event)
		}
	}
}

func (b *Bus[T]) deliver(id uuid.UUID, sub *subscriber[T], event T) {
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("%s subscriber %s panicked: %v", b.name, id, r)
		}
	}()
	sub.fn(event)
}
