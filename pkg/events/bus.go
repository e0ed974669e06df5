// Package events provides the broadcast bus carrying daemon events.
// Publishers never learn who listens; a slow subscriber is skipped rather
// than allowed to stall the source.
package events

import (
	"sync"

	"github.com/grovetools/weave/pkg/models"
)

// Bus is a fan-out channel set for models.Event.
type Bus struct {
	mu          sync.Mutex
	subscribers map[chan models.Event]struct{}
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[chan models.Event]struct{})}
}

// Subscribe creates a new buffered subscription channel.
func (b *Bus) Subscribe() chan models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan models.Event, 256)
	b.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(ch chan models.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
}

// Publish broadcasts an event with non-blocking sends.
func (b *Bus) Publish(event models.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
