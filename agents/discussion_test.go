package agents

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/model"
	"github.com/hupe1980/dialogmesh/tool"
)

const discussionPlan = `{
  "topic": "원격 근무 전면 도입",
  "speakers": [
    {"speaker": "찬성 측", "role": "원격 근무 옹호"},
    {"speaker": "반대 측", "role": "사무실 근무 옹호"},
    {"speaker": "사회자", "role": "중립 진행"}
  ],
  "discussion_rules": ["상대의 발언을 존중한다"]
}`

func discussionModel() *model.MockModel {
	m := model.NewMockModel("discussion")
	m.AddResponse("Plan a panel discussion", discussionPlan)
	m.AddResponse("You are 찬성 측", "원격 근무는 생산성을 높입니다. 통근 시간이 사라지기 때문입니다.")
	m.AddResponse("You are 반대 측", "대면 협업의 가치는 대체하기 어렵습니다.")
	m.AddResponse("You are 사회자", "양측 모두 좋은 지적입니다. 계속 들어보겠습니다.")
	m.AddResponse("A panel discussion just ended", `{"message": "오늘 토론을 정리하겠습니다. 수고하셨습니다.", "topic_suggestions": ["주 4일제", "하이브리드 근무"]}`)
	return m
}

func discussionState(query string) *core.State {
	s := core.NewState(query, "u1", "s1", DiscussionAgentCode, nil)
	s.Intent = core.IntentStartDiscussion
	return s
}

func TestNewDiscussionRequiresModel(t *testing.T) {
	_, err := NewDiscussion(DiscussionConfig{})

	var cfgErr *core.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestDiscussionFullFlow(t *testing.T) {
	var (
		mu        sync.Mutex
		toolCalls []string
		toolPersp []string
	)
	tools := tool.NewRegistry()
	tools.Register(tool.NewFunctionTool(
		MaterialsToolName,
		"searches reference materials for a discussion perspective",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"topic":       map[string]any{"type": "string"},
				"perspective": map[string]any{"type": "string"},
			},
			"required": []string{"topic"},
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			mu.Lock()
			defer mu.Unlock()
			toolCalls = append(toolCalls, args["topic"].(string))
			toolPersp = append(toolPersp, args["perspective"].(string))
			return []string{"원격 근무 생산성 연구 2025"}, nil
		},
	))

	b, err := NewDiscussion(DiscussionConfig{Model: discussionModel(), Tools: tools})
	require.NoError(t, err)

	state := discussionState("원격 근무를 주제로 토론 진행해줘")
	events := runBinding(t, b, state)

	// Host opening streams first, carrying topic and panel size.
	host := finalMessageFor(t, events, "host")
	assert.Contains(t, host.Content, "원격 근무 전면 도입")
	assert.Contains(t, host.Content, "3명")

	// Every speaker searched materials for the planned topic.
	assert.Len(t, toolCalls, 3)
	for _, topic := range toolCalls {
		assert.Equal(t, "원격 근무 전면 도입", topic)
	}
	assert.ElementsMatch(t, []string{"찬성 측", "반대 측", "사회자"}, toolPersp)

	// Each panelist streamed fragments and got exactly one terminal event.
	terminals := map[string]int{}
	speakerText := map[string]string{}
	for _, ev := range events {
		if ev.Kind != core.EventMultiToken {
			continue
		}
		if ev.Done {
			terminals[ev.Speaker]++
			assert.False(t, ev.Failed())
			continue
		}
		speakerText[ev.Speaker] += ev.Payload
	}
	assert.Equal(t, map[string]int{"찬성 측": 1, "반대 측": 1, "사회자": 1}, terminals)
	assert.Contains(t, speakerText["찬성 측"], "생산성")

	// The script keeps the planned speaking order.
	script, ok := state.Get(KeyScript)
	require.True(t, ok)
	speeches := script.([]Speech)
	require.Len(t, speeches, 3)
	assert.Equal(t, "찬성 측", speeches[0].Speaker)
	assert.Equal(t, "반대 측", speeches[1].Speaker)
	assert.Equal(t, "사회자", speeches[2].Speaker)

	// Wrap-up closes the run and leaves follow-up suggestions.
	assert.Equal(t, "오늘 토론을 정리하겠습니다. 수고하셨습니다.", state.GetString(core.KeyFinalAnswer))
	suggestions, ok := state.Get(KeyTopicSuggestions)
	require.True(t, ok)
	assert.Equal(t, []string{"주 4일제", "하이브리드 근무"}, suggestions)

	// The stored exchange carries the whole script plus the summary, not
	// just the closing message.
	memText := state.GetString(core.KeyMemoryText)
	assert.Contains(t, memText, "찬성 측: ")
	assert.Contains(t, memText, "사회자: ")
	assert.Contains(t, memText, "오늘 토론을 정리하겠습니다. 수고하셨습니다.")
}

func TestDiscussionPlanFallback(t *testing.T) {
	m := model.NewMockModel("discussion")
	m.AddResponse("Plan a panel discussion", "도저히 JSON으로는 못 내겠어요")
	m.AddResponse("You are", "짧은 발언입니다.")
	m.AddResponse("A panel discussion just ended", `{"message": "마무리하겠습니다.", "topic_suggestions": []}`)

	b, err := NewDiscussion(DiscussionConfig{Model: m})
	require.NoError(t, err)

	state := discussionState("토론 진행해줘")
	events := runBinding(t, b, state)

	// The default panel carries the discussion with the query as topic.
	host := finalMessageFor(t, events, "host")
	assert.Contains(t, host.Content, "토론 진행해줘")

	speakers := stateSpeakers(state)
	require.Len(t, speakers, 3)
	assert.Equal(t, "찬성 측", speakers[0].Name)
	assert.Equal(t, "사회자", speakers[2].Name)
}

func TestDiscussionToolFailureYieldsEmptyMaterials(t *testing.T) {
	tools := tool.NewRegistry()
	tools.Register(tool.NewFunctionTool(
		MaterialsToolName,
		"always fails",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(ctx context.Context, args map[string]any) (any, error) {
			return nil, errors.New("search backend down")
		},
	))

	b, err := NewDiscussion(DiscussionConfig{Model: discussionModel(), Tools: tools})
	require.NoError(t, err)

	state := discussionState("원격 근무를 주제로 토론 진행해줘")
	runBinding(t, b, state)

	materials, ok := stateValue[map[string][]string](state, KeyMaterials)
	require.True(t, ok)
	for _, docs := range materials {
		assert.Empty(t, docs)
	}

	script, _ := stateValue[[]Speech](state, KeyScript)
	assert.Len(t, script, 3, "discussion proceeds without materials")
}

func TestDiscussionSpeakerFailureIsolated(t *testing.T) {
	m := &failingSpeakerModel{
		inner:    discussionModel(),
		failWhen: "You are 반대 측",
		err:      errors.New("model unavailable"),
	}

	b, err := NewDiscussion(DiscussionConfig{Model: m})
	require.NoError(t, err)

	state := discussionState("원격 근무를 주제로 토론 진행해줘")
	events := runBinding(t, b, state)

	var failedTerminals, okTerminals int
	for _, ev := range events {
		if ev.Kind != core.EventMultiToken || !ev.Done {
			continue
		}
		if ev.Failed() {
			failedTerminals++
			assert.Equal(t, "반대 측", ev.Speaker)
			assert.Contains(t, ev.Metadata["error"], "model unavailable")
		} else {
			okTerminals++
		}
	}
	assert.Equal(t, 1, failedTerminals)
	assert.Equal(t, 2, okTerminals)

	// The failed speaker is simply absent from the script.
	script, _ := stateValue[[]Speech](state, KeyScript)
	require.Len(t, script, 2)
	assert.Equal(t, "찬성 측", script[0].Speaker)
	assert.Equal(t, "사회자", script[1].Speaker)
}

// finalMessageFor returns the final token event message with the given role.
func finalMessageFor(t *testing.T, events []core.Event, role string) core.Message {
	t.Helper()
	for _, ev := range events {
		if ev.Kind == core.EventToken && ev.Done && ev.Message != nil && ev.Message.Role == role {
			return *ev.Message
		}
	}
	t.Fatalf("no final token event with role %q", role)
	return core.Message{}
}

// failingSpeakerModel delegates to an inner model but fails requests whose
// prompt contains failWhen.
type failingSpeakerModel struct {
	inner    model.Model
	failWhen string
	err      error
}

func (m *failingSpeakerModel) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	last := ""
	if len(req.Messages) > 0 {
		last = req.Messages[len(req.Messages)-1].Content
	}
	if strings.Contains(last, m.failWhen) {
		respCh := make(chan model.Response)
		errCh := make(chan error, 1)
		close(respCh)
		errCh <- m.err
		close(errCh)
		return respCh, errCh
	}
	return m.inner.Generate(ctx, req)
}

func (m *failingSpeakerModel) Info() model.Info { return model.Info{Name: "failing", Provider: "mock"} }
