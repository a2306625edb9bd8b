package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/graph"
)

func newRunContext(buffer int) *graph.RunContext {
	runID := core.NewID()
	return &graph.RunContext{
		RunID:   runID,
		State:   core.NewState("q", "u1", "s1", "g", nil),
		Emitter: core.NewEmitter(runID, buffer),
	}
}

// textSource yields each fragment in order, then contributes a delta naming
// its full text.
func textSource(name string, fragments ...string) Source {
	return Source{
		Name: name,
		Run: func(ctx context.Context, yield func(core.Event) error) (core.Delta, error) {
			for _, f := range fragments {
				if err := yield(core.NewTokenEvent("", f)); err != nil {
					return nil, err
				}
			}
			return core.Delta{name: strings.Join(fragments, "")}, nil
		},
	}
}

func runAndCollect(t *testing.T, s *Scheduler, rc *graph.RunContext, sources []Source) (core.Delta, []core.Event) {
	t.Helper()
	delta, err := s.Run(context.Background(), rc, sources)
	require.NoError(t, err)
	rc.Emitter.Close()
	var events []core.Event
	for ev := range rc.Emitter.Events() {
		events = append(events, ev)
	}
	return delta, events
}

func TestSchedulerPreservesPerSpeakerOrder(t *testing.T) {
	rc := newRunContext(256)
	sources := []Source{
		textSource("pro", "p1", "p2", "p3", "p4"),
		textSource("con", "c1", "c2", "c3"),
		textSource("mod", "m1", "m2"),
	}

	delta, events := runAndCollect(t, New(), rc, sources)

	perSpeaker := map[string][]string{}
	terminals := map[string]int{}
	for _, ev := range events {
		require.Equal(t, core.EventMultiToken, ev.Kind)
		if ev.Done {
			terminals[ev.Speaker]++
			continue
		}
		perSpeaker[ev.Speaker] = append(perSpeaker[ev.Speaker], ev.Payload)
	}

	assert.Equal(t, []string{"p1", "p2", "p3", "p4"}, perSpeaker["pro"])
	assert.Equal(t, []string{"c1", "c2", "c3"}, perSpeaker["con"])
	assert.Equal(t, []string{"m1", "m2"}, perSpeaker["mod"])

	for _, name := range []string{"pro", "con", "mod"} {
		assert.Equal(t, 1, terminals[name], "speaker %s terminal events", name)
	}

	assert.Equal(t, "p1p2p3p4", delta["pro"])
	assert.Equal(t, "c1c2c3", delta["con"])
	assert.Equal(t, "m1m2", delta["mod"])
}

func TestSchedulerBurstFairness(t *testing.T) {
	rc := newRunContext(4096)

	// One chatty speaker must not monopolize the stream.
	frags := make([]string, 200)
	for i := range frags {
		frags[i] = fmt.Sprintf("a%d", i)
	}
	sources := []Source{
		textSource("chatty", frags...),
		textSource("quiet", "q1", "q2"),
	}

	s := New(func(o *Options) {
		o.Burst = 4
		o.Buffer = 1024
	})
	_, events := runAndCollect(t, s, rc, sources)

	// Both speakers' fragments must interleave: the quiet speaker's first
	// fragment may not sit behind the chatty speaker's entire stream.
	quietFirst, chattyCount := -1, 0
	for i, ev := range events {
		if ev.Done {
			continue
		}
		if ev.Speaker == "quiet" && quietFirst < 0 {
			quietFirst = i
		}
		if ev.Speaker == "chatty" {
			chattyCount++
		}
	}
	require.Equal(t, 200, chattyCount)
	require.GreaterOrEqual(t, quietFirst, 0)
	assert.Less(t, quietFirst, 100, "quiet speaker starved behind the chatty stream")

	// Relative order within each speaker survives the merge.
	var chattySeen []string
	for _, ev := range events {
		if !ev.Done && ev.Speaker == "chatty" {
			chattySeen = append(chattySeen, ev.Payload)
		}
	}
	assert.Equal(t, frags, chattySeen)
}

func TestSchedulerParticipantFailureIsolated(t *testing.T) {
	rc := newRunContext(256)
	boom := errors.New("model unavailable")

	failing := Source{
		Name: "con",
		Run: func(ctx context.Context, yield func(core.Event) error) (core.Delta, error) {
			if err := yield(core.NewTokenEvent("", "partial")); err != nil {
				return nil, err
			}
			return nil, boom
		},
	}
	sources := []Source{textSource("pro", "p1", "p2"), failing}

	delta, events := runAndCollect(t, New(), rc, sources)

	var conTerminal, proTerminal *core.Event
	for i := range events {
		ev := events[i]
		if ev.Done {
			switch ev.Speaker {
			case "con":
				conTerminal = &events[i]
			case "pro":
				proTerminal = &events[i]
			}
		}
	}

	require.NotNil(t, conTerminal)
	assert.Contains(t, conTerminal.Metadata["error"], "model unavailable")

	require.NotNil(t, proTerminal)
	assert.Empty(t, proTerminal.Metadata["error"])
	assert.Equal(t, "p1p2", delta["pro"])
}

func TestSchedulerCancellation(t *testing.T) {
	rc := newRunContext(8)
	ctx, cancel := context.WithCancel(context.Background())

	blocked := Source{
		Name: "stuck",
		Run: func(ctx context.Context, yield func(core.Event) error) (core.Delta, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}

	go cancel()
	_, err := New().Run(ctx, rc, []Source{blocked})
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
		return
	}
	// The producer may observe cancellation first; then the session ends
	// normally with the failure isolated to the participant's terminal event.
	rc.Emitter.Close()
	var sawTerminal bool
	for ev := range rc.Emitter.Events() {
		if ev.Done && ev.Speaker == "stuck" {
			sawTerminal = true
			assert.Contains(t, ev.Metadata["error"], "context canceled")
		}
	}
	assert.True(t, sawTerminal)
}

func TestSchedulerNoSources(t *testing.T) {
	rc := newRunContext(8)
	delta, err := New().Run(context.Background(), rc, nil)
	require.NoError(t, err)
	assert.Nil(t, delta)
}
