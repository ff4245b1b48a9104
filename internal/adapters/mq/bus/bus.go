// Package bus carries feedback events from the recording subsystem to
// subscribers inside the process.
//
// Subscriptions are explicit handles with deterministic teardown: after
// Cancel returns, no further event is delivered on the subscription's
// channel and the channel is closed.
package bus

import (
	"context"
	"sync"
)

// Event is a feedback notification payload, either model.FeedbackSaved
// or model.FeedbackSaveFailed.
type Event = any

// Bus provides non-blocking publish and channel-based subscriptions.
type Bus interface {
	// Publish delivers e to every active subscription. Returns false if
	// any subscription buffer was full and dropped the event, or the bus
	// is closed.
	Publish(ctx context.Context, e Event) bool

	// Subscribe registers a new subscription.
	Subscribe(ctx context.Context) *Subscription

	// Close shuts the bus down and cancels all subscriptions.
	Close() error
}

// Subscription is one subscriber's handle on the bus.
type Subscription struct {
	ch     chan Event
	cancel func()
	once   sync.Once
}

// C returns the channel events are delivered on. The channel is closed
// when the subscription is canceled or the bus closes.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Cancel detaches the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

// InMemoryBus implements Bus with per-subscription buffered channels.
type InMemoryBus struct {
	mu         sync.RWMutex
	subs       map[int]chan Event
	nextID     int
	bufferSize int
	closed     bool
}

// NewInMemoryBus creates a bus with configuration options.
func NewInMemoryBus(opts ...Option) *InMemoryBus {
	b := &InMemoryBus{
		subs:       make(map[int]chan Event),
		bufferSize: defaultBufferSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish delivers e to every active subscription without blocking.
func (b *InMemoryBus) Publish(ctx context.Context, e Event) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false
	}

	delivered := true
	for _, ch := range b.subs {
		select {
		case ch <- e:
		case <-ctx.Done():
			return false
		default:
			// Subscriber buffer full; the event is dropped for this
			// subscriber rather than blocking the publisher.
			delivered = false
		}
	}
	return delivered
}

// Subscribe registers a new subscription.
func (b *InMemoryBus) Subscribe(_ context.Context) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	if b.closed {
		close(ch)
		return &Subscription{ch: ch, cancel: func() {}}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	return &Subscription{
		ch: ch,
		cancel: func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(ch)
			}
		},
	}
}

// Close shuts the bus down and closes all subscription channels.
func (b *InMemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
	return nil
}

// SubscriberCount returns the number of active subscriptions.
func (b *InMemoryBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
