// Package broadcast fans committed events out to live subscribers such as
// the server-sent events stream.
package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/mr1hm/spot-safety/internal/models"
)

const DefaultBuffer = 64

type subscriber struct {
	ch     chan models.Event
	spotID string
}

type Broadcaster struct {
	subscribers map[uint64]subscriber
	nextID      atomic.Uint64
	buffer      int
	mu          sync.RWMutex
}

func New(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broadcaster{
		subscribers: make(map[uint64]subscriber),
		buffer:      buffer,
	}
}

// Subscribe registers a listener. A non-empty spotID limits it to events for
// that spot.
func (b *Broadcaster) Subscribe(spotID string) (uint64, <-chan models.Event) {
	id := b.nextID.Add(1)
	ch := make(chan models.Event, b.buffer)

	b.mu.Lock()
	b.subscribers[id] = subscriber{ch: ch, spotID: spotID}
	b.mu.Unlock()

	return id, ch
}

func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	if sub, ok := b.subscribers[id]; ok {
		close(sub.ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

// Broadcast delivers ev to every matching subscriber and returns how many
// were skipped because their buffer was full.
func (b *Broadcaster) Broadcast(ev models.Event) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	skipped := 0
	for _, sub := range b.subscribers {
		if sub.spotID != "" && sub.spotID != ev.SpotID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			skipped++
		}
	}
	return skipped
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes every subscriber channel so open streams end.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subscribers {
		close(sub.ch)
		delete(b.subscribers, id)
	}
}
