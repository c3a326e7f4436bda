package agreement

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// broadcaster fans state change events out to subscribers. Slow subscribers
// lose events rather than blocking negotiation.
type broadcaster struct {
	mu     sync.RWMutex
	subs   map[string]chan Event
	buffer int
	logger *zap.Logger
}

func newBroadcaster(buffer int, logger *zap.Logger) *broadcaster {
	if buffer <= 0 {
		buffer = 64
	}
	return &broadcaster{subs: make(map[string]chan Event), buffer: buffer, logger: logger}
}

func (b *broadcaster) subscribe() (string, <-chan Event) {
	id := uuid.NewString()
	ch := make(chan Event, b.buffer)
	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()
	return id, ch
}

func (b *broadcaster) unsubscribe(id string) {
	b.mu.Lock()
	ch, ok := b.subs[id]
	delete(b.subs, id)
	b.mu.Unlock()
	if ok {
		close(ch)
	}
}

func (b *broadcaster) publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Debug("event dropped for slow subscriber",
				zap.String("subscriber", id),
				zap.String("asset", ev.AssetID))
		}
	}
}

func (b *broadcaster) count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
