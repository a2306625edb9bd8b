package agents

import (
	"context"
	"fmt"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/internal/util"
	"github.com/hupe1980/dialogmesh/model"
)

// Extension keys the agents' stages share through the run state.
const (
	// KeyUserFacts holds long-term facts about the user recalled during
	// context preparation.
	KeyUserFacts = "user_facts"
	// KeyTopic holds the planned discussion topic.
	KeyTopic = "topic"
	// KeySpeakers holds the planned []Speaker of a discussion.
	KeySpeakers = "speakers"
	// KeyRules holds the planned discussion ground rules.
	KeyRules = "discussion_rules"
	// KeyMaterials holds per-speaker reference materials, map[string][]string.
	KeyMaterials = "materials"
	// KeyScript holds the accumulated []Speech of a discussion.
	KeyScript = "script"
	// KeyTopicSuggestions holds follow-up discussion topics offered to the
	// user alongside a response.
	KeyTopicSuggestions = "topic_suggestions"
)

// Speaker is one planned participant of a discussion.
type Speaker struct {
	Name string `json:"speaker"`
	Role string `json:"role,omitempty"`
}

// Speech is one delivered contribution of a discussion script.
type Speech struct {
	Speaker string `json:"speaker"`
	Text    string `json:"speech"`
}

// historyMessages converts a state's conversation history into model turns,
// ending with the current query.
func historyMessages(s *core.State) []model.Message {
	msgs := make([]model.Message, 0, len(s.History)+1)
	for _, turn := range s.History {
		role := turn.Role
		if role != "user" && role != "assistant" {
			role = "user"
		}
		msgs = append(msgs, model.Message{Role: role, Content: turn.Content})
	}
	return append(msgs, model.Message{Role: "user", Content: s.Query})
}

// generate renders a prompt template and runs it through the model, returning
// the final text.
func generate(ctx context.Context, m model.Model, system, prompt string, data map[string]any) (string, error) {
	rendered, err := util.RenderTemplate(prompt, data)
	if err != nil {
		return "", err
	}
	respCh, errCh := m.Generate(ctx, model.Request{
		System:   system,
		Messages: []model.Message{{Role: "user", Content: rendered}},
	})
	text, err := model.Collect(respCh, errCh)
	if err != nil {
		return "", fmt.Errorf("model generation: %w", err)
	}
	return text, nil
}
