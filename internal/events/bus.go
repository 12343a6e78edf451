package events

import (
	"io"
	"log/slog"
	"sync"
)

// Bus fans messages out to subscribers. A subscriber that is not keeping up
// misses messages instead of blocking publishers.
type Bus struct {
	mu      sync.Mutex
	clients map[int]chan Message
	nextID  int
	buffer  int
	closed  bool
	dropped uint64
	log     *slog.Logger
}

// NewBus creates a bus whose subscriber channels hold buffer messages.
func NewBus(buffer int, log *slog.Logger) *Bus {
	if buffer < 1 {
		buffer = 1
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Bus{clients: make(map[int]chan Message), buffer: buffer, log: log}
}

// Subscribe adds a subscriber. The channel is closed by Unsubscribe or Close.
func (b *Bus) Subscribe() (int, <-chan Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Message, b.buffer)
	if b.closed {
		close(ch)
		return id, ch
	}
	b.clients[id] = ch
	b.log.Debug("event subscriber added", slog.Int("id", id), slog.Int("subscribers", len(b.clients)))
	return id, ch
}

// Unsubscribe removes a subscriber. Unknown ids are ignored.
func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.clients[id]; ok {
		close(ch)
		delete(b.clients, id)
		b.log.Debug("event subscriber removed", slog.Int("id", id), slog.Int("subscribers", len(b.clients)))
	}
}

// Publish delivers m to every subscriber with room in its buffer.
func (b *Bus) Publish(m Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.clients {
		select {
		case ch <- m:
		default:
			b.dropped++
			b.log.Warn("event subscriber lagging, message dropped", slog.Int("id", id))
		}
	}
}

// Subscribers returns the number of active subscribers.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Dropped returns how many deliveries were skipped for slow subscribers.
func (b *Bus) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Close closes every subscriber channel. Later subscribers get a closed channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.clients {
		close(ch)
		delete(b.clients, id)
	}
}
