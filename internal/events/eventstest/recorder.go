// Package eventstest provides an in-memory events.Publisher for tests.
package eventstest

import (
	"context"
	"sync"

	"auction-market/internal/events"
)

var _ events.Publisher = (*Recorder)(nil)

// Recorder keeps published events in memory
type Recorder struct {
	mu       sync.Mutex
	recorded []events.Event

	// Err, when set, is returned from every Publish
	Err error
}

func (r *Recorder) Publish(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.recorded = append(r.recorded, ev)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of the recorded events, optionally filtered by type
func (r *Recorder) Events(types ...string) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]events.Event, 0, len(r.recorded))
	for _, ev := range r.recorded {
		if len(types) == 0 {
			out = append(out, ev)
			continue
		}
		for _, t := range types {
			if ev.Type == t {
				out = append(out, ev)
				break
			}
		}
	}
	return out
}
