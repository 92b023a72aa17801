package events

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/nodewatch/pkg/types"
)

// Subscriber is a channel that receives one owner's notification events
type Subscriber chan *types.NotificationEvent

// Broker fans notification events out to live subscribers, keyed by owner
type Broker struct {
	subscribers map[Subscriber]string // subscriber -> owner
	mu          sync.RWMutex
	eventCh     chan *types.NotificationEvent
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]string),
		eventCh:     make(chan *types.NotificationEvent, 100), // Buffer up to 100 events
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker. Pending events are dropped.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Subscribe creates a subscription for owner's events
func (b *Broker) Subscribe(owner string) Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50) // Buffer per subscriber
	b.subscribers[sub] = owner
	return sub
}

// Unsubscribe removes a subscription and closes its channel
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	close(sub)
}

// Publish queues an event for distribution. It gives up when ctx is done
// or the broker is stopped.
func (b *Broker) Publish(ctx context.Context, event *types.NotificationEvent) bool {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
		return true
	case <-ctx.Done():
		return false
	case <-b.stopCh:
		return false
	}
}

// Send publishes event for userID and reports the number of live
// subscribers it was addressed to. It lets the broker act as a
// notification dispatcher.
func (b *Broker) Send(ctx context.Context, userID string, event types.NotificationEvent) (int, error) {
	n := b.SubscriberCount(userID)
	if n == 0 {
		return 0, nil
	}
	event.Owner = userID
	if !b.Publish(ctx, &event) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return 0, nil
	}
	return n, nil
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *types.NotificationEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub, owner := range b.subscribers {
		if owner != event.Owner {
			continue
		}
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers for owner, or
// of all subscribers when owner is empty
func (b *Broker) SubscriberCount(owner string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if owner == "" {
		return len(b.subscribers)
	}
	n := 0
	for _, o := range b.subscribers {
		if o == owner {
			n++
		}
	}
	return n
}
