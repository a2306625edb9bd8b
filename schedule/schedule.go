// Package schedule interleaves the output of several concurrent event
// producers into one ordered stream. It exists for multi-speaker sessions
// such as panel discussions: every participant streams in its own goroutine,
// and the scheduler merges the fragments fairly so no speaker can starve the
// others, while fragments of a single speaker keep their relative order.
package schedule

import (
	"context"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/graph"
	"github.com/hupe1980/dialogmesh/logging"
)

// Source is one participant of a scheduled session. Run produces fragments
// through yield and returns the participant's state contribution. yield
// returns an error when the session is shutting down; Run should stop then.
type Source struct {
	Name string
	Run  func(ctx context.Context, yield func(core.Event) error) (core.Delta, error)
}

// Options configure a Scheduler.
type Options struct {
	// Burst bounds how many consecutive fragments one speaker may emit
	// before the rotation moves on.
	Burst int

	// Buffer is the per-source channel capacity.
	Buffer int

	Logger logging.Logger
}

// Scheduler merges the streams of several Sources into a run's emitter.
type Scheduler struct {
	opts Options
}

// New creates a Scheduler.
func New(optFns ...func(o *Options)) *Scheduler {
	opts := Options{
		Burst:  8,
		Buffer: 32,
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Burst < 1 {
		opts.Burst = 1
	}
	if opts.Buffer < 1 {
		opts.Buffer = 1
	}
	return &Scheduler{opts: opts}
}

// source fan-in bookkeeping for one participant.
type participant struct {
	src   Source
	ch    chan core.Event
	delta core.Delta
	err   error
	done  bool // terminal event emitted
}

// Run executes all sources concurrently and forwards their fragments through
// rc.Emitter in round-robin order, at most Burst fragments per speaker per
// turn. Every speaker gets exactly one terminal event, carrying its failure
// if any. A failing participant never aborts the session; its error is
// reported per speaker and the session continues. After all sources finish,
// their deltas merge in declared order and the combined delta is returned.
//
// Run returns an error only for run-level failures such as cancellation.
func (s *Scheduler) Run(ctx context.Context, rc *graph.RunContext, sources []Source) (core.Delta, error) {
	if len(sources) == 0 {
		return nil, nil
	}

	parts := make([]*participant, len(sources))
	notify := make(chan struct{}, 1)
	ping := func() {
		select {
		case notify <- struct{}{}:
		default:
		}
	}

	for i, src := range sources {
		p := &participant{src: src, ch: make(chan core.Event, s.opts.Buffer)}
		parts[i] = p

		go func() {
			defer func() {
				close(p.ch)
				ping()
			}()
			yield := func(ev core.Event) error {
				ev.Speaker = p.src.Name
				ev.Kind = core.EventMultiToken
				select {
				case p.ch <- ev:
					ping()
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			p.delta, p.err = p.src.Run(ctx, yield)
		}()
	}

	next := 0
	for {
		forwarded := 0

		for range parts {
			p := parts[next]
			next = (next + 1) % len(parts)
			if p.done {
				continue
			}

			n, open, err := s.drain(ctx, rc, p)
			forwarded += n
			if err != nil {
				s.finishRemaining(parts)
				return nil, err
			}
			if !open {
				// Producer goroutine has stored delta and err before
				// closing the channel.
				if p.err != nil {
					p.err = &core.ParticipantError{Speaker: p.src.Name, Err: p.err}
					s.opts.Logger.Warn("participant failed", "speaker", p.src.Name, "error", p.err)
				}
				if emitErr := rc.Emitter.Emit(ctx, core.NewSpeakerDoneEvent(rc.RunID, p.src.Name, p.err)); emitErr != nil {
					s.finishRemaining(parts)
					return nil, emitErr
				}
				p.done = true
			}
		}

		if allDone(parts) {
			break
		}
		if forwarded == 0 {
			// Nothing moved this rotation; sleep until a producer pings.
			select {
			case <-notify:
			case <-ctx.Done():
				s.finishRemaining(parts)
				return nil, ctx.Err()
			}
		}
	}

	merged := core.Delta{}
	for _, p := range parts {
		for k, v := range p.delta {
			merged[k] = v
		}
	}
	return merged, nil
}

// drain forwards up to Burst buffered fragments from p. It reports how many
// fragments moved and whether the source channel is still open.
func (s *Scheduler) drain(ctx context.Context, rc *graph.RunContext, p *participant) (int, bool, error) {
	for n := 0; n < s.opts.Burst; n++ {
		select {
		case ev, ok := <-p.ch:
			if !ok {
				return n, false, nil
			}
			if err := rc.Emitter.Emit(ctx, ev); err != nil {
				return n, true, err
			}
		default:
			return n, true, nil
		}
	}
	return s.opts.Burst, true, nil
}

// finishRemaining drains producer goroutines after an abort so they can
// observe cancellation and exit.
func (s *Scheduler) finishRemaining(parts []*participant) {
	for _, p := range parts {
		go func(ch chan core.Event) {
			for range ch {
			}
		}(p.ch)
	}
}

func allDone(parts []*participant) bool {
	for _, p := range parts {
		if !p.done {
			return false
		}
	}
	return true
}
