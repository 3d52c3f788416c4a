// Package progress implements the in-process Progress Bus: a per-task
// topic that coalesces state/percent/message snapshots and delivers them
// to subscribers over Server-Sent Events, falling back cleanly to a
// polling snapshot for clients that never subscribe.
package progress

import (
	"sync"

	"github.com/hwvendor/triage-orchestrator/pkg/models"
)

// ringSize is the buffer depth of each subscriber channel. When it is
// full, the oldest buffered event is dropped to make room for the newest;
// that loses nothing a reader needs, since ProgressEvent is a full-state
// snapshot, not a delta. A late subscriber is seeded only with the last
// snapshot (see Snapshot), not with earlier events.
const ringSize = 32

// topic is one task's subscriber set plus its last known snapshot.
type topic struct {
	mu          sync.Mutex
	last        *models.ProgressEvent
	subscribers map[chan models.ProgressEvent]struct{}
}

// Bus owns every task's topic. One Bus instance per pod; cross-pod
// delivery is not required since HTTP clients reconnect to whichever
// pod currently owns the SSE connection and poll the store as a
// cross-pod-safe fallback when the event was published by a different
// pod's worker.
type Bus struct {
	mu     sync.RWMutex
	topics map[string]*topic
}

// New constructs an empty Bus.
func New() *Bus {
	return &Bus{topics: make(map[string]*topic)}
}

// Publish implements queue.ProgressPublisher: it is called by a worker
// after every state transition, terminal or not.
func (b *Bus) Publish(event models.ProgressEvent) {
	t := b.topicFor(event.TaskID)

	t.mu.Lock()
	snapshot := event
	t.last = &snapshot
	subs := make([]chan models.ProgressEvent, 0, len(t.subscribers))
	for ch := range t.subscribers {
		subs = append(subs, ch)
	}
	t.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			// Slow subscriber: never block the publishing worker. Drop
			// the oldest buffered event so the latest snapshot (in
			// particular a terminal one) still reaches the reader.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- event:
			default:
			}
		}
	}
}

// Subscribe registers a channel for taskID's events and returns an
// unsubscribe func. The channel is buffered so Publish never blocks on
// a merely-slow reader; a stuck one loses its oldest buffered events.
func (b *Bus) Subscribe(taskID string) (<-chan models.ProgressEvent, func()) {
	t := b.topicFor(taskID)
	ch := make(chan models.ProgressEvent, ringSize)

	t.mu.Lock()
	t.subscribers[ch] = struct{}{}
	t.mu.Unlock()

	unsubscribe := func() {
		t.mu.Lock()
		delete(t.subscribers, ch)
		t.mu.Unlock()
		close(ch)
	}
	return ch, unsubscribe
}

// Snapshot returns the last published event for taskID, if any. Used to
// seed a newly-opened SSE stream and to serve polling clients that never
// subscribe.
func (b *Bus) Snapshot(taskID string) (models.ProgressEvent, bool) {
	b.mu.RLock()
	t, ok := b.topics[taskID]
	b.mu.RUnlock()
	if !ok {
		return models.ProgressEvent{}, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return models.ProgressEvent{}, false
	}
	return *t.last, true
}

func (b *Bus) topicFor(taskID string) *topic {
	b.mu.RLock()
	t, ok := b.topics[taskID]
	b.mu.RUnlock()
	if ok {
		return t
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok = b.topics[taskID]; ok {
		return t
	}
	t = &topic{subscribers: make(map[chan models.ProgressEvent]struct{})}
	b.topics[taskID] = t
	return t
}

// Forget drops a task's topic once it has reached a terminal state and
// every SSE client has disconnected, so the Bus does not grow unbounded
// over the life of a long-running process.
func (b *Bus) Forget(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.topics, taskID)
}
