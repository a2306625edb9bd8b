package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/dialogmesh/internal/jsonx"
	"github.com/hupe1980/dialogmesh/model"
)

const extractSystemPrompt = `You extract long-term memories from a conversation transcript.
Classify every fact worth remembering into three buckets:
- "semantic": stable facts about the user (preferences, attributes, relationships)
- "episodic": things that happened in this conversation worth recalling later
- "procedural": how the user wants the assistant to behave

Respond with JSON only, in this shape:
{
  "semantic": {"<category>": [{"content": "...", "importance": 0.0, "source": "..."}]},
  "episodic": {"<category>": [{"content": "...", "importance": 0.0, "source": "..."}]},
  "procedural": {"<category>": [{"content": "...", "importance": 0.0, "source": "..."}]}
}
importance is between 0 and 1. Omit empty buckets. Do not invent facts.`

// extractedFact mirrors one fact object of the model's JSON output.
type extractedFact struct {
	Content    string   `json:"content"`
	Importance *float64 `json:"importance"`
	Source     string   `json:"source"`
}

// Extractor derives long-term Records from a session transcript using a
// language model.
type Extractor struct {
	model model.Model

	// DefaultImportance fills facts the model returned without a score.
	DefaultImportance float64
}

// NewExtractor creates an Extractor.
func NewExtractor(m model.Model) *Extractor {
	return &Extractor{model: m, DefaultImportance: 1.0}
}

// Extract asks the model to mine the transcript and returns one Record per
// fact and category, all attributed to the given agent. An empty transcript
// yields no records and no model call.
func (e *Extractor) Extract(ctx context.Context, userID, agentID string, transcript []Entry) ([]Record, error) {
	if len(transcript) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	for _, entry := range transcript {
		if entry.Kind == KindSummary {
			sb.WriteString("summary: ")
			sb.WriteString(entry.Bot)
			sb.WriteString("\n")
			continue
		}
		if entry.User != "" {
			sb.WriteString("user: ")
			sb.WriteString(entry.User)
			sb.WriteString("\n")
		}
		if entry.Bot != "" {
			sb.WriteString("assistant: ")
			sb.WriteString(entry.Bot)
			sb.WriteString("\n")
		}
	}

	respCh, errCh := e.model.Generate(ctx, model.Request{
		System: extractSystemPrompt,
		Messages: []model.Message{
			{Role: "user", Content: sb.String()},
		},
	})
	text, err := model.Collect(respCh, errCh)
	if err != nil {
		return nil, fmt.Errorf("memory extraction: %w", err)
	}

	var buckets map[string]map[string][]extractedFact
	if err := jsonx.Decode(text, &buckets); err != nil {
		return nil, fmt.Errorf("memory extraction: %w", err)
	}

	var records []Record
	for _, memType := range Types {
		categories, ok := buckets[string(memType)]
		if !ok {
			continue
		}
		for category, facts := range categories {
			for _, fact := range facts {
				if strings.TrimSpace(fact.Content) == "" {
					continue
				}
				importance := e.DefaultImportance
				if fact.Importance != nil {
					importance = *fact.Importance
				}
				records = append(records, Record{
					UserID:     userID,
					AgentID:    agentID,
					Type:       memType,
					Category:   category,
					Content:    fact.Content,
					Importance: importance,
					Source:     fact.Source,
				})
			}
		}
	}
	return records, nil
}
