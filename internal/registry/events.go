package registry

import (
	"sync"

	"github.com/fetchkit/browsecore/models"
)

// eventBufferSize bounds each subscriber's channel so one slow consumer
// (the external Domain Group Learner) can't block pattern mutations.
const eventBufferSize = 64

// broadcaster replaces the purify-style listener-array pattern this system's
// REDESIGN FLAGS call out: instead of holding live references into the
// registry's internal state, each subscriber gets its own bounded channel
// and receives events by value.
type broadcaster struct {
	mu   sync.Mutex
	subs []chan models.PatternChangeEvent
}

func newBroadcaster() *broadcaster {
	return &broadcaster{}
}

// Subscribe returns a channel of future pattern-change events. The channel
// is never closed by the registry; callers that stop listening should just
// stop reading (the channel is garbage collected once unreferenced).
func (b *broadcaster) Subscribe() <-chan models.PatternChangeEvent {
	ch := make(chan models.PatternChangeEvent, eventBufferSize)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// publish delivers ev to every subscriber, dropping it for any subscriber
// whose buffer is full rather than blocking the caller.
func (b *broadcaster) publish(ev models.PatternChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
