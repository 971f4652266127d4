package session

import (
	"sync"
	"time"

	"tradesim/internal/domain"
)

// EventType classifies session notifications.
type EventType string

const (
	// EventTick is a live price update for an active trade.
	EventTick EventType = "tick"
	// EventTradeFinalized is emitted exactly once per trade.
	EventTradeFinalized EventType = "trade_finalized"
	// EventSessionComplete is emitted exactly once per session, when
	// every spawned monitor has finalized.
	EventSessionComplete EventType = "session_complete"
)

// Event is one entry in a session's notification stream.
type Event struct {
	Type       EventType                 `json:"type"`
	SessionID  string                    `json:"session_id"`
	Trade      *domain.ActiveTrade       `json:"trade,omitempty"`
	Statistics *domain.SessionStatistics `json:"statistics,omitempty"`
	Reason     string                    `json:"reason,omitempty"`
	Time       time.Time                 `json:"time"`
}

// subscriberBuffer is the per-subscriber channel capacity. Slow
// subscribers lose events rather than blocking finalization.
const subscriberBuffer = 64

// broadcaster fans session events out to subscribers.
type broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool

	onDrop      func()
	onSubscribe func(delta int)
}

func newBroadcaster(onDrop func(), onSubscribe func(delta int)) *broadcaster {
	if onDrop == nil {
		onDrop = func() {}
	}
	if onSubscribe == nil {
		onSubscribe = func(int) {}
	}
	return &broadcaster{
		subs:        make(map[int]chan Event),
		onDrop:      onDrop,
		onSubscribe: onSubscribe,
	}
}

// subscribe registers a new subscriber. The returned cancel func is
// idempotent. Subscribing to a closed broadcaster yields an immediately
// closed channel.
func (b *broadcaster) subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.onSubscribe(1)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
				b.onSubscribe(-1)
			}
		})
	}
	return ch, cancel
}

// publish delivers an event without blocking: full subscriber buffers
// drop the event.
func (b *broadcaster) publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.onDrop()
		}
	}
}

// close ends the stream for all subscribers.
func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
		b.onSubscribe(-1)
	}
}
