package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"imgpick/internal/picker"
)

// bindingName is the page function the injected script reports through.
const bindingName = "__imgpickEvent"

type bindingPayload struct {
	Type string  `json:"t"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Key  string  `json:"key,omitempty"`
}

func decodePayload(raw string) (picker.Event, error) {
	var p bindingPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return picker.Event{}, fmt.Errorf("binding payload: %w", err)
	}
	ev := picker.Event{X: p.X, Y: p.Y, Key: p.Key}
	switch p.Type {
	case "move":
		ev.Kind = picker.EventMove
	case "click":
		ev.Kind = picker.EventClick
	case "key":
		ev.Kind = picker.EventKey
	case "cancel":
		ev.Kind = picker.EventCancel
	default:
		return picker.Event{}, fmt.Errorf("binding payload: unknown type %q", p.Type)
	}
	return ev, nil
}

// eventQueue decouples the CDP event goroutine, which must never block,
// from the session. Consecutive moves collapse into the latest one; other
// events keep their order.
type eventQueue struct {
	mu      sync.Mutex
	pending []picker.Event
	closed  bool
	wake    chan struct{}
	out     chan picker.Event
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		wake: make(chan struct{}, 1),
		out:  make(chan picker.Event, 16),
	}
}

func (q *eventQueue) push(ev picker.Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	if n := len(q.pending); n > 0 && ev.Kind == picker.EventMove && q.pending[n-1].Kind == picker.EventMove {
		q.pending[n-1] = ev
	} else {
		q.pending = append(q.pending, ev)
	}
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// run forwards queued events to out until ctx ends or close is called,
// then closes out.
func (q *eventQueue) run(ctx context.Context) {
	defer close(q.out)
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return
		}
		batch := q.pending
		q.pending = nil
		q.mu.Unlock()

		for _, ev := range batch {
			select {
			case q.out <- ev:
			case <-ctx.Done():
				return
			}
		}
		select {
		case <-q.wake:
		case <-ctx.Done():
			return
		}
	}
}

func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.pending = nil
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
