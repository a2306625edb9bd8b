package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dialogmesh/model"
)

func TestExtractorParsesBuckets(t *testing.T) {
	m := model.NewMockModel("extractor")
	m.Enqueue("```json\n" + `{
  "semantic": {
    "preferences": [
      {"content": "prefers concise answers", "importance": 0.8, "source": "user message"},
      {"content": "writes in Korean", "importance": 0.9, "source": "user message"}
    ]
  },
  "episodic": {
    "events": [
      {"content": "asked about the debate feature", "source": "conversation"}
    ]
  }
}` + "\n```")

	records, err := NewExtractor(m).Extract(context.Background(), "u1", "chat", []Entry{
		{User: "간결하게 답해줘", Bot: "네"},
	})
	require.NoError(t, err)
	require.Len(t, records, 3)

	byContent := map[string]Record{}
	for _, r := range records {
		assert.Equal(t, "u1", r.UserID)
		assert.Equal(t, "chat", r.AgentID)
		byContent[r.Content] = r
	}

	pref := byContent["prefers concise answers"]
	assert.Equal(t, TypeSemantic, pref.Type)
	assert.Equal(t, "preferences", pref.Category)
	assert.Equal(t, 0.8, pref.Importance)

	// Facts without a score fall back to the default importance.
	event := byContent["asked about the debate feature"]
	assert.Equal(t, TypeEpisodic, event.Type)
	assert.Equal(t, 1.0, event.Importance)
}

func TestExtractorEmptyTranscriptSkipsModel(t *testing.T) {
	m := model.NewMockModel("extractor")
	m.FailWith(assert.AnError) // would fail if the model were called

	records, err := NewExtractor(m).Extract(context.Background(), "u1", "chat", nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestExtractorRejectsNonJSON(t *testing.T) {
	m := model.NewMockModel("extractor")
	m.Enqueue("I could not find any memories worth saving.")

	_, err := NewExtractor(m).Extract(context.Background(), "u1", "chat", []Entry{
		{User: "hi"},
	})
	assert.Error(t, err)
}

func TestExtractorSkipsBlankFacts(t *testing.T) {
	m := model.NewMockModel("extractor")
	m.Enqueue(`{"semantic": {"misc": [{"content": "  "}, {"content": "real fact", "importance": 0.5}]}}`)

	records, err := NewExtractor(m).Extract(context.Background(), "u1", "chat", []Entry{
		{User: "hello"},
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "real fact", records[0].Content)
}
