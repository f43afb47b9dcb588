package app

import "sync"

// Event names a kind of session notification.
type Event string

const (
	EventLocalStream     Event = "localStream"
	EventRemoteStream    Event = "remoteStream"
	EventConnectionState Event = "connectionState"
)

// EventBus is the in-process fan-out the session notifies observers through.
// Delivery is synchronous and in subscription order within one Emit call.
// There is no replay for late subscribers.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[Event][]func(any)
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[Event][]func(any))}
}

func (b *EventBus) Subscribe(ev Event, fn func(any)) {
	b.mu.Lock()
	b.subscribers[ev] = append(b.subscribers[ev], fn)
	b.mu.Unlock()
}

func (b *EventBus) Emit(ev Event, payload any) {
	b.mu.RLock()
	subs := b.subscribers[ev]
	b.mu.RUnlock()
	for _, fn := range subs {
		fn(payload)
	}
}
