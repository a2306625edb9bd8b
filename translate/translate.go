// Package translate turns completed stage deltas into the outbound event
// stream. Stages stay transport-agnostic: they describe what to present via
// state keys or a StreamDirective, and the translator renders tokens, status
// markers and final messages without per-agent streaming code.
package translate

import (
	"context"
	"time"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/graph"
)

// OverrideFunc renders one specific stage's delta, replacing the generic
// extraction for that stage.
type OverrideFunc func(ctx context.Context, rc *graph.RunContext, d core.Delta) error

// Options configure a Translator.
type Options struct {
	// CharDelay paces character streaming of final answers. Zero disables
	// pacing.
	CharDelay time.Duration

	// Overrides map stage names to custom rendering.
	Overrides map[string]OverrideFunc
}

// Translator is the default graph.Translator. Rendering precedence per
// delta: a StreamDirective under core.KeyStream wins, then a stage override,
// then the generic core.KeyDisplayText extractor. Deltas carrying none of
// these produce no events.
type Translator struct {
	opts Options
}

// New creates a Translator.
func New(optFns ...func(o *Options)) *Translator {
	opts := Options{
		CharDelay: 10 * time.Millisecond,
		Overrides: map[string]OverrideFunc{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Translator{opts: opts}
}

// Translate implements graph.Translator.
func (t *Translator) Translate(ctx context.Context, rc *graph.RunContext, stage string, d core.Delta) error {
	if v, ok := d[core.KeyStream]; ok {
		if dir, ok := v.(*core.StreamDirective); ok && dir != nil {
			return t.render(ctx, rc, dir)
		}
	}
	if override, ok := t.opts.Overrides[stage]; ok {
		return override(ctx, rc, d)
	}
	if text, ok := d[core.KeyDisplayText].(string); ok && text != "" {
		return t.render(ctx, rc, &core.StreamDirective{
			Kind:       core.EventToken,
			Text:       text,
			Role:       "assistant",
			CharPacing: true,
		})
	}
	return nil
}

func (t *Translator) render(ctx context.Context, rc *graph.RunContext, dir *core.StreamDirective) error {
	switch dir.Kind {
	case core.EventStatus:
		return rc.Emitter.Emit(ctx, core.NewStatusEvent(rc.RunID, dir.Text))
	case core.EventToken, "":
		msg := core.Message{
			Role:    roleOrDefault(dir.Role),
			Content: dir.Text,
			Attachments: core.Attachments{
				Links:  dir.Links,
				Images: dir.Images,
			},
		}
		if dir.CharPacing {
			return t.StreamText(ctx, rc, msg)
		}
		return rc.Emitter.Emit(ctx, core.NewFinalTokenEvent(rc.RunID, msg))
	default:
		return rc.Emitter.Emit(ctx, core.NewStatusEvent(rc.RunID, dir.Text))
	}
}

// StreamText emits msg.Content character by character as partial token
// events, paced by the configured delay, then exactly one final token event
// carrying the complete message. Multi-byte characters are emitted whole.
func (t *Translator) StreamText(ctx context.Context, rc *graph.RunContext, msg core.Message) error {
	for _, r := range msg.Content {
		if err := rc.Emitter.Emit(ctx, core.NewTokenEvent(rc.RunID, string(r))); err != nil {
			return err
		}
		if t.opts.CharDelay > 0 {
			select {
			case <-time.After(t.opts.CharDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return rc.Emitter.Emit(ctx, core.NewFinalTokenEvent(rc.RunID, msg))
}

func roleOrDefault(role string) string {
	if role == "" {
		return "assistant"
	}
	return role
}
