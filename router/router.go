// Package router classifies a user query into one of an agent's declared
// intents. Classification happens exactly once per request, before graph
// execution; the resulting intent is written into the state and drives the
// graph's conditional edges.
package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/internal/jsonx"
	"github.com/hupe1980/dialogmesh/logging"
	"github.com/hupe1980/dialogmesh/model"
)

// Classifier assigns an intent to a query. Implementations must only return
// intents from the accepted set; the caller treats anything else as a routing
// contract violation.
type Classifier interface {
	Classify(ctx context.Context, s *core.State, accepted []core.Intent) (core.Intent, error)
}

// Static always returns the same intent. Useful for agents with a single
// entry behavior and for tests.
type Static struct {
	Intent core.Intent
}

// Classify implements Classifier.
func (s Static) Classify(ctx context.Context, _ *core.State, accepted []core.Intent) (core.Intent, error) {
	for _, a := range accepted {
		if a == s.Intent {
			return s.Intent, nil
		}
	}
	return "", fmt.Errorf("static intent %q not in accepted set", s.Intent)
}

// ModelClassifierOptions configure a ModelClassifier.
type ModelClassifierOptions struct {
	// Fallback is returned when the model's answer is not valid JSON or
	// names an unknown intent. Empty disables the fallback and surfaces an
	// error instead.
	Fallback core.Intent

	Logger logging.Logger
}

// ModelClassifier asks a language model to pick the intent. The model answers
// with a small JSON object; malformed or out-of-set answers degrade to the
// configured fallback intent.
type ModelClassifier struct {
	model model.Model
	opts  ModelClassifierOptions
}

// NewModelClassifier creates a ModelClassifier.
func NewModelClassifier(m model.Model, optFns ...func(o *ModelClassifierOptions)) *ModelClassifier {
	opts := ModelClassifierOptions{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &ModelClassifier{model: m, opts: opts}
}

// Classify implements Classifier.
func (c *ModelClassifier) Classify(ctx context.Context, s *core.State, accepted []core.Intent) (core.Intent, error) {
	names := make([]string, len(accepted))
	for i, a := range accepted {
		names[i] = string(a)
	}

	system := fmt.Sprintf(
		`You classify a user's message into exactly one intent.
Allowed intents: %s.
Consider the conversation history when the message alone is ambiguous.
Respond with JSON only: {"intent": "<one allowed intent>"}`,
		strings.Join(names, ", "),
	)

	messages := make([]model.Message, 0, len(s.History)+1)
	for _, turn := range s.History {
		messages = append(messages, model.Message{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, model.Message{Role: "user", Content: s.Query})

	respCh, errCh := c.model.Generate(ctx, model.Request{System: system, Messages: messages})
	text, err := model.Collect(respCh, errCh)
	if err != nil {
		return "", fmt.Errorf("classify: %w", err)
	}

	var out struct {
		Intent string `json:"intent"`
	}
	if err := jsonx.Decode(text, &out); err != nil {
		return c.fallback(fmt.Errorf("classify: %w", err))
	}

	intent := core.Intent(strings.TrimSpace(out.Intent))
	for _, a := range accepted {
		if a == intent {
			return intent, nil
		}
	}
	return c.fallback(fmt.Errorf("classify: model returned %q outside the accepted set", intent))
}

func (c *ModelClassifier) fallback(err error) (core.Intent, error) {
	if c.opts.Fallback == "" {
		return "", err
	}
	c.opts.Logger.Warn("classification degraded to fallback", "fallback", c.opts.Fallback, "error", err)
	return c.opts.Fallback, nil
}
