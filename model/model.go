package model

import (
	"context"
	"fmt"
	"strings"
)

// Message is one chat turn handed to a provider.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Request captures the normalized model input produced by graph stages.
type Request struct {
	System   string    `json:"system,omitempty"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a streaming model.
// Partial chunks carry a text delta; the final chunk carries the full text
// and a finish reason.
type Response struct {
	Partial      bool        `json:"partial"`
	Text         string      `json:"text"`
	FinishReason string      `json:"finish_reason,omitempty"`
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", etc.
}

// Model is the minimal interface graph stages use to drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Collect drains a Generate stream and returns the final text. Convenience
// for callers that do not care about partial chunks, such as classifiers.
func Collect(respCh <-chan Response, errCh <-chan error) (string, error) {
	var final string
	for resp := range respCh {
		if !resp.Partial {
			final = resp.Text
		}
	}
	if err := <-errCh; err != nil {
		return "", err
	}
	return final, nil
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
// Responses registered with AddResponse match when the last message contains
// the registered prompt; queued responses registered with Enqueue take
// priority and are consumed in order.
type MockModel struct {
	info      Info
	responses map[string]string
	queue     []string
	failWith  error
}

// NewMockModel constructs a MockModel.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: "mock"},
		responses: make(map[string]string),
	}
}

// AddResponse registers a canned completion for inputs containing prompt.
func (m *MockModel) AddResponse(prompt, response string) { m.responses[prompt] = response }

// Enqueue appends a response consumed ahead of keyed responses.
func (m *MockModel) Enqueue(response string) { m.queue = append(m.queue, response) }

// FailWith makes every subsequent Generate call report err.
func (m *MockModel) FailWith(err error) { m.failWith = err }

// Generate implements Model; emits streaming rune chunks then a final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	full, err := m.pick(req)

	go func() {
		defer close(respCh)
		defer close(errCh)
		if err != nil {
			errCh <- err
			return
		}
		if req.Stream {
			for _, r := range full {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Text: string(r)}:
				}
			}
		}
		respCh <- Response{Text: full, FinishReason: "stop"}
	}()
	return respCh, errCh
}

func (m *MockModel) pick(req Request) (string, error) {
	if m.failWith != nil {
		return "", m.failWith
	}
	if len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]
		return next, nil
	}
	if len(req.Messages) == 0 {
		return "", fmt.Errorf("no messages provided")
	}
	last := req.Messages[len(req.Messages)-1].Content
	for prompt, resp := range m.responses {
		if strings.Contains(last, prompt) {
			return resp, nil
		}
	}
	return fmt.Sprintf("Mock response to: %s", last), nil
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
