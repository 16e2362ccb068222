package event

import (
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Handler is a function that handles a notification.
type Handler func(Notification)

// PanicReporter receives recovered handler panics. A nil reporter drops them.
type PanicReporter func(kind Kind, recovered any, stack []byte)

// wildcard is the subscription key used by SubscribeAll.
const wildcard Kind = "*"

type subscription struct {
	id      uint64
	kind    Kind
	handler Handler
}

// Bus is a simple synchronous pub-sub bus.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[Kind][]subscription
	nextID        atomic.Uint64
	onPanic       PanicReporter
}

// NewBus creates a new bus. onPanic may be nil.
func NewBus(onPanic PanicReporter) *Bus {
	return &Bus{
		subscriptions: make(map[Kind][]subscription),
		onPanic:       onPanic,
	}
}

// Subscribe registers a handler for one kind of notification and returns a
// function that removes it.
func (b *Bus) Subscribe(kind Kind, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID.Add(1)
	b.subscriptions[kind] = append(b.subscriptions[kind], subscription{id: id, kind: kind, handler: handler})
	return func() { b.unsubscribe(kind, id) }
}

// SubscribeAll registers a handler for every kind.
func (b *Bus) SubscribeAll(handler Handler) (unsubscribe func()) {
	return b.Subscribe(wildcard, handler)
}

func (b *Bus) unsubscribe(kind Kind, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscriptions[kind]
	for i, sub := range subs {
		if sub.id == id {
			b.subscriptions[kind] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Publish dispatches n to all handlers for its kind, then to wildcard
// handlers, each group in registration order. A panicking handler is
// recovered and reported; delivery continues with the remaining handlers.
func (b *Bus) Publish(n Notification) {
	b.mu.RLock()
	specific := append([]subscription(nil), b.subscriptions[n.Kind]...)
	all := append([]subscription(nil), b.subscriptions[wildcard]...)
	b.mu.RUnlock()

	for _, sub := range specific {
		b.safeCall(sub.handler, n)
	}
	for _, sub := range all {
		b.safeCall(sub.handler, n)
	}
}

func (b *Bus) safeCall(handler Handler, n Notification) {
	defer func() {
		if r := recover(); r != nil && b.onPanic != nil {
			b.onPanic(n.Kind, r, debug.Stack())
		}
	}()
	handler(n)
}

// SubscriptionCount returns the number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, subs := range b.subscriptions {
		count += len(subs)
	}
	return count
}

// String implements fmt.Stringer for debugging.
func (b *Bus) String() string {
	return fmt.Sprintf("event.Bus{subscriptions: %d}", b.SubscriptionCount())
}
