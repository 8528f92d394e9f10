package session

import (
	"sync"

	"github.com/parley-ai/parley/pkg/types"
)

// broadcaster fans stream events out to subscribers over per-subscriber
// buffered channels.
//
// Delivery of non-terminal events is best-effort: a subscriber that stops
// draining loses deltas, never blocks the stream. Terminal events evict the
// oldest buffered event until they fit, so every attached subscriber observes
// the end of each stream.
type broadcaster struct {
	mu     sync.Mutex
	subs   map[uint64]chan types.StreamEvent
	nextID uint64
	buffer int
	closed bool
}

func newBroadcaster(buffer int) *broadcaster {
	if buffer < 1 {
		buffer = 1
	}
	return &broadcaster{
		subs:   make(map[uint64]chan types.StreamEvent),
		buffer: buffer,
	}
}

// subscribe attaches a new subscriber. The returned detach func is idempotent
// and never interrupts an in-flight stream.
func (b *broadcaster) subscribe() (<-chan types.StreamEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan types.StreamEvent, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	detach := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(ch)
			}
		})
	}
	return ch, detach
}

// publish delivers an event to all subscribers.
func (b *broadcaster) publish(ev types.StreamEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		if !ev.IsTerminal() {
			continue
		}
		// Terminal events must land. The buffer is only filled here, under
		// b.mu, so evicting makes room even against a stalled subscriber.
		for {
			select {
			case ch <- ev:
			default:
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// close detaches every subscriber and rejects future ones.
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
	}
}
