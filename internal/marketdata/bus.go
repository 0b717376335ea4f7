package marketdata

import (
	"sync"
	"sync/atomic"
)

const (
	EventQuote   = "quote"
	EventAccount = "account"
	EventRequest = "request"
)

type Event struct {
	Type string `json:"type"`
	// Account scopes the event to one account's stream; empty means broadcast.
	Account string `json:"-"`
	Data    any    `json:"data"`
}

// Bus fans events out to websocket subscribers. Publish never blocks: a
// subscriber whose buffer is full misses the event.
type Bus struct {
	mu      sync.RWMutex
	subs    map[chan Event]struct{}
	size    int
	dropped atomic.Int64
}

func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 100
	}
	return &Bus{subs: make(map[chan Event]struct{}), size: buffer}
}

func (b *Bus) Subscribe() chan Event {
	ch := make(chan Event, b.size)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	for ch := range b.subs {
		select {
		case ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
	b.mu.RUnlock()
}

func (b *Bus) Dropped() int64 { return b.dropped.Load() }
