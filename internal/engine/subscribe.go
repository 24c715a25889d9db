package engine

import (
	"sync"

	"sendme/internal/types"
)

type EventType string

const (
	EventInserted EventType = "inserted"
	EventUpdated  EventType = "updated"
	EventRemoved  EventType = "removed"
)

// Event carries a copy of the record as it was right after the change.
type Event struct {
	Type   EventType
	Ref    uint64
	Record types.Record
}

// Subscribe returns a buffered stream of collection changes. A subscriber
// that falls behind misses events rather than stalling the engine; Snapshot
// is always authoritative.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	e.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			if existing, ok := e.subs[id]; ok {
				delete(e.subs, id)
				close(existing)
			}
		})
	}
}

func (e *Engine) publishLocked(kind EventType, ent *entry) {
	if len(e.subs) == 0 {
		return
	}
	ev := Event{Type: kind, Ref: ent.rec.Ref, Record: ent.rec}
	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
			e.dropped.Add(1)
		}
	}
}

// Dropped reports how many events were discarded for slow subscribers.
func (e *Engine) Dropped() uint64 {
	return e.dropped.Load()
}
