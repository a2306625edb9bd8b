package translate

import (
	"context"
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

func collect(rc *graph.RunContext) []core.Event {
	rc.Emitter.Close()
	var events []core.Event
	for ev := range rc.Emitter.Events() {
		events = append(events, ev)
	}
	return events
}

func unpaced() *Translator {
	return New(func(o *Options) { o.CharDelay = 0 })
}

func TestStreamTextCharacterPacing(t *testing.T) {
	rc := newRunContext(64)
	msg := core.Message{Role: "assistant", Content: "안녕하세요"}

	require.NoError(t, unpaced().StreamText(context.Background(), rc, msg))
	events := collect(rc)

	// One partial per character plus the single final event.
	require.Len(t, events, 6)

	var rebuilt strings.Builder
	for _, ev := range events[:5] {
		assert.Equal(t, core.EventToken, ev.Kind)
		assert.False(t, ev.Done)
		rebuilt.WriteString(ev.Payload)
	}
	assert.Equal(t, "안녕하세요", rebuilt.String())

	final := events[5]
	assert.True(t, final.Done)
	require.NotNil(t, final.Message)
	assert.Equal(t, "안녕하세요", final.Message.Content)
}

func TestStreamTextExactlyOneFinalEvent(t *testing.T) {
	rc := newRunContext(64)
	require.NoError(t, unpaced().StreamText(context.Background(), rc, core.Message{Content: "abc"}))

	var finals int
	for _, ev := range collect(rc) {
		if ev.Done {
			finals++
		}
	}
	assert.Equal(t, 1, finals)
}

func TestTranslateDirectiveWins(t *testing.T) {
	rc := newRunContext(64)
	tr := unpaced()

	d := core.Delta{
		core.KeyStream: &core.StreamDirective{
			Kind: core.EventToken,
			Text: "from directive",
			Links: []string{
				"https://example.com/a",
			},
		},
		core.KeyDisplayText: "ignored",
	}
	require.NoError(t, tr.Translate(context.Background(), rc, "answer", d))

	events := collect(rc)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Message)
	assert.Equal(t, "from directive", events[0].Message.Content)
	assert.Equal(t, []string{"https://example.com/a"}, events[0].Message.Attachments.Links)
}

func TestTranslateStatusDirective(t *testing.T) {
	rc := newRunContext(8)
	d := core.Delta{
		core.KeyStream: &core.StreamDirective{Kind: core.EventStatus, Text: "searching materials"},
	}
	require.NoError(t, unpaced().Translate(context.Background(), rc, "materials", d))

	events := collect(rc)
	require.Len(t, events, 1)
	assert.Equal(t, core.EventStatus, events[0].Kind)
	assert.Equal(t, "searching materials", events[0].Payload)
	assert.False(t, events[0].Done)
}

func TestTranslateStageOverride(t *testing.T) {
	rc := newRunContext(8)
	tr := New(func(o *Options) {
		o.CharDelay = 0
		o.Overrides = map[string]OverrideFunc{
			"wrap_up": func(ctx context.Context, rc *graph.RunContext, d core.Delta) error {
				return rc.Emitter.Emit(ctx, core.NewStatusEvent(rc.RunID, "override ran"))
			},
		}
	})

	require.NoError(t, tr.Translate(context.Background(), rc, "wrap_up", core.Delta{"summary": "x"}))
	events := collect(rc)
	require.Len(t, events, 1)
	assert.Equal(t, "override ran", events[0].Payload)
}

func TestTranslateDisplayTextFallback(t *testing.T) {
	rc := newRunContext(64)
	d := core.Delta{core.KeyDisplayText: "hi"}
	require.NoError(t, unpaced().Translate(context.Background(), rc, "answer", d))

	events := collect(rc)
	require.Len(t, events, 3) // "h", "i", final
	assert.True(t, events[2].Done)
	assert.Equal(t, "hi", events[2].Payload)
}

func TestTranslateSilentDelta(t *testing.T) {
	rc := newRunContext(8)
	require.NoError(t, unpaced().Translate(context.Background(), rc, "prepare_context", core.Delta{"internal": 1}))
	assert.Empty(t, collect(rc))
}

func TestStreamTextCancellation(t *testing.T) {
	rc := newRunContext(1) // tiny buffer forces Emit to block
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := unpaced().StreamText(ctx, rc, core.Message{Content: "long enough to block"})
	assert.ErrorIs(t, err, context.Canceled)
}
