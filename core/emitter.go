package core

import (
	"context"
	"sync"
)

// Emitter is the single funnel every event producer in a run writes through.
// It stamps events with the run ID, applies backpressure through a bounded
// channel, and guarantees the channel closes exactly once.
//
// The run pipeline is the sole writer; Close is called by the pipeline owner
// after the last Emit has returned.
type Emitter struct {
	runID  string
	ch     chan Event
	closed chan struct{}
	once   sync.Once
}

// NewEmitter creates an emitter for a run with the given channel capacity.
func NewEmitter(runID string, buffer int) *Emitter {
	if buffer < 1 {
		buffer = 1
	}
	return &Emitter{
		runID:  runID,
		ch:     make(chan Event, buffer),
		closed: make(chan struct{}),
	}
}

// RunID returns the run this emitter belongs to.
func (e *Emitter) RunID() string { return e.runID }

// Emit stamps the event with the run ID and delivers it. It blocks while the
// buffer is full and returns the context error if the run is cancelled or the
// emitter is closed before delivery.
func (e *Emitter) Emit(ctx context.Context, ev Event) error {
	ev.RunID = e.runID
	select {
	case <-e.closed:
		return context.Canceled
	default:
	}
	select {
	case e.ch <- ev:
		return nil
	case <-e.closed:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events returns the receive side of the stream.
func (e *Emitter) Events() <-chan Event { return e.ch }

// Close ends the stream. Safe to call more than once.
func (e *Emitter) Close() {
	e.once.Do(func() {
		close(e.closed)
		close(e.ch)
	})
}
