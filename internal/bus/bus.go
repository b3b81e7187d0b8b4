// Package bus is a keyed publish/subscribe registry shared by the pollers
// and the console views. A Bus is created once at startup, passed to every
// component that needs it, and closed on shutdown.
package bus

import (
	"fmt"
	"sync"
)

type Bus struct {
	mu     sync.Mutex
	topics map[string]*topic
	closed bool
}

type topic struct {
	value       any
	subscribers []subscriber
	nextID      int

	// deliver serializes publishes so every subscriber observes the same
	// sequence of values.
	deliver sync.Mutex
}

type subscriber struct {
	id      int
	handler any
}

func New() *Bus {
	return &Bus{topics: map[string]*topic{}}
}

// Close drops every subscriber. Setters obtained earlier become no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.topics = map[string]*topic{}
}

// Register declares a key with an initial value and returns the current
// value and a setter. The first registration of a key stores initial; later
// registrations leave the stored value alone. Registering one key with two
// different types panics.
//
// The setter compares with ==, so pointer values notify only when a new
// pointer is published. Subscribers are called synchronously on the
// publishing goroutine in subscription order. A handler must not publish to
// the key it is handling.
func Register[T comparable](b *Bus, key string, initial T) (T, func(T)) {
	b.mu.Lock()
	t, ok := b.topics[key]
	if !ok {
		t = &topic{value: initial}
		if !b.closed {
			b.topics[key] = t
		}
	}
	current, typed := t.value.(T)
	b.mu.Unlock()
	if !typed {
		panic(fmt.Sprintf("bus: key %q registered as %T, not %T", key, t.value, initial))
	}
	return current, func(value T) { publish(b, key, t, value) }
}

func publish[T comparable](b *Bus, key string, t *topic, value T) {
	t.deliver.Lock()
	defer t.deliver.Unlock()

	b.mu.Lock()
	if b.closed || b.topics[key] != t {
		b.mu.Unlock()
		return
	}
	if previous, ok := t.value.(T); ok && previous == value {
		b.mu.Unlock()
		return
	}
	t.value = value
	handlers := make([]func(T), 0, len(t.subscribers))
	for _, sub := range t.subscribers {
		if handler, ok := sub.handler.(func(T)); ok {
			handlers = append(handlers, handler)
		}
	}
	b.mu.Unlock()

	for _, handler := range handlers {
		handler(value)
	}
}

// Subscribe adds a change listener for key and returns a function that
// removes it. Subscribing to a key nobody registered creates the key with
// the zero value of T.
func Subscribe[T comparable](b *Bus, key string, handler func(T)) func() {
	if handler == nil {
		return func() {}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	t, ok := b.topics[key]
	if !ok {
		var zero T
		t = &topic{value: zero}
		b.topics[key] = t
	}
	if _, typed := t.value.(T); !typed {
		panic(fmt.Sprintf("bus: key %q registered as %T, subscriber wants %T", key, t.value, *new(T)))
	}
	t.nextID++
	id := t.nextID
	t.subscribers = append(t.subscribers, subscriber{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, sub := range t.subscribers {
			if sub.id == id {
				t.subscribers = append(t.subscribers[:i:i], t.subscribers[i+1:]...)
				return
			}
		}
	}
}

// Get returns the current value of key.
func Get[T comparable](b *Bus, key string) (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var zero T
	t, ok := b.topics[key]
	if !ok {
		return zero, false
	}
	value, typed := t.value.(T)
	if !typed {
		return zero, false
	}
	return value, true
}
