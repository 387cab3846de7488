package bus

import (
	"sync"
	"time"
)

// Bus is the single ordered event channel. Publish never blocks the
// caller; the queue grows without bound (memory is the only limit),
// so a stalled dispatcher cannot back-pressure a hardware poller.
type Bus struct {
	mu     sync.Mutex
	queue  []Event
	notify chan struct{}
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		notify: make(chan struct{}, 1),
	}
}

// Publish appends an event with the current wall-clock time.
func (b *Bus) Publish(origin, tag string, payload map[string]any) {
	b.publish(Event{
		Origin:  origin,
		Tag:     tag,
		Payload: payload,
		Time:    time.Now(),
	})
}

func (b *Bus) publish(e Event) {
	b.mu.Lock()
	b.queue = append(b.queue, e)
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Next returns the oldest queued event, waiting up to timeout for one
// to arrive. The second return is false if the wait timed out.
func (b *Bus) Next(timeout time.Duration) (Event, bool) {
	deadline := time.Now().Add(timeout)
	for {
		b.mu.Lock()
		if len(b.queue) > 0 {
			e := b.queue[0]
			b.queue = b.queue[1:]
			b.mu.Unlock()
			return e, true
		}
		b.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Event{}, false
		}

		select {
		case <-b.notify:
		case <-time.After(remaining):
			return Event{}, false
		}
	}
}

// Len returns the number of queued, undispatched events.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
