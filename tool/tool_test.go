package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type searchArgs struct {
	Topic string `json:"topic" description:"Discussion topic to look up"`
	Limit int    `json:"limit,omitempty"`
}

func newSearchTool(fn func(ctx context.Context, args map[string]any) (any, error)) *FunctionTool {
	return NewFunctionToolFromStruct(
		"search_materials",
		"Search reference materials for a discussion topic",
		searchArgs{},
		fn,
	)
}

func TestFunctionToolSchemaFromStruct(t *testing.T) {
	tl := newSearchTool(nil)
	schema := tl.Parameters()

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "topic")
	assert.Contains(t, props, "limit")

	topic := props["topic"].(map[string]any)
	assert.Equal(t, "string", topic["type"])
	assert.Equal(t, "Discussion topic to look up", topic["description"])

	// omitempty fields are optional.
	assert.Equal(t, []string{"topic"}, schema["required"])
}

func TestRegistryCall(t *testing.T) {
	r := NewRegistry()
	r.Register(newSearchTool(func(ctx context.Context, args map[string]any) (any, error) {
		return "materials for " + args["topic"].(string), nil
	}))

	out, err := r.Call(context.Background(), "search_materials", map[string]any{"topic": "basic income"})
	require.NoError(t, err)
	assert.Equal(t, "materials for basic income", out)
}

func TestRegistryCallValidation(t *testing.T) {
	r := NewRegistry()
	r.Register(newSearchTool(func(ctx context.Context, args map[string]any) (any, error) {
		t.Fatal("tool must not run on invalid args")
		return nil, nil
	}))

	t.Run("missing required field", func(t *testing.T) {
		_, err := r.Call(context.Background(), "search_materials", map[string]any{})
		var toolErr *ToolError
		require.ErrorAs(t, err, &toolErr)
		assert.Equal(t, CodeValidation, toolErr.Code)
	})

	t.Run("wrong type", func(t *testing.T) {
		_, err := r.Call(context.Background(), "search_materials", map[string]any{"topic": 42})
		var toolErr *ToolError
		require.ErrorAs(t, err, &toolErr)
		assert.Equal(t, CodeValidation, toolErr.Code)
	})
}

func TestRegistryCallUnknownTool(t *testing.T) {
	r := NewRegistry()
	_, err := r.Call(context.Background(), "nope", nil)

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeNotFound, toolErr.Code)
}

func TestRegistryWrapsExecutionErrors(t *testing.T) {
	r := NewRegistry()
	r.Register(newSearchTool(func(ctx context.Context, args map[string]any) (any, error) {
		return nil, errors.New("upstream down")
	}))

	_, err := r.Call(context.Background(), "search_materials", map[string]any{"topic": "x"})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeExecution, toolErr.Code)
	assert.Contains(t, toolErr.Message, "upstream down")
}
