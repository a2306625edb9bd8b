package model

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockModelKeyedResponse(t *testing.T) {
	m := NewMockModel("test")
	m.AddResponse("capital of France", "Paris")

	respCh, errCh := m.Generate(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "What is the capital of France?"}},
	})

	text, err := Collect(respCh, errCh)
	require.NoError(t, err)
	assert.Equal(t, "Paris", text)
}

func TestMockModelStreamingChunks(t *testing.T) {
	m := NewMockModel("test")
	m.AddResponse("greet", "hello")

	respCh, errCh := m.Generate(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "greet"}},
		Stream:   true,
	})

	var partials []string
	var final string
	for resp := range respCh {
		if resp.Partial {
			partials = append(partials, resp.Text)
		} else {
			final = resp.Text
		}
	}
	require.NoError(t, <-errCh)

	assert.Equal(t, []string{"h", "e", "l", "l", "o"}, partials)
	assert.Equal(t, "hello", final)
	assert.Equal(t, final, strings.Join(partials, ""))
}

func TestMockModelQueueTakesPriority(t *testing.T) {
	m := NewMockModel("test")
	m.AddResponse("anything", "keyed")
	m.Enqueue("first")
	m.Enqueue("second")

	for _, want := range []string{"first", "second", "keyed"} {
		respCh, errCh := m.Generate(context.Background(), Request{
			Messages: []Message{{Role: "user", Content: "anything"}},
		})
		text, err := Collect(respCh, errCh)
		require.NoError(t, err)
		assert.Equal(t, want, text)
	}
}

func TestMockModelFailure(t *testing.T) {
	m := NewMockModel("test")
	boom := errors.New("provider down")
	m.FailWith(boom)

	respCh, errCh := m.Generate(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})

	_, err := Collect(respCh, errCh)
	assert.ErrorIs(t, err, boom)
}

func TestMockModelNoMessages(t *testing.T) {
	m := NewMockModel("test")
	respCh, errCh := m.Generate(context.Background(), Request{})
	_, err := Collect(respCh, errCh)
	assert.Error(t, err)
}
