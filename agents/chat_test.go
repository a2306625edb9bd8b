package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/graph"
	"github.com/hupe1980/dialogmesh/memory"
	"github.com/hupe1980/dialogmesh/model"
	"github.com/hupe1980/dialogmesh/registry"
	"github.com/hupe1980/dialogmesh/translate"
)

// runBinding executes a binding's graph for one state and returns the events
// it produced. Streaming is unpaced to keep tests fast.
func runBinding(t *testing.T, b registry.Binding, state *core.State) []core.Event {
	t.Helper()

	translator := translate.New(func(o *translate.Options) { o.CharDelay = 0 })
	executor := graph.NewExecutor(func(o *graph.ExecutorOptions) { o.Translator = translator })

	emitter := core.NewEmitter("run-1", 4096)
	rc := &graph.RunContext{RunID: "run-1", State: state, Emitter: emitter}

	require.NoError(t, executor.Execute(context.Background(), b.Graph, rc))
	emitter.Close()

	var events []core.Event
	for ev := range emitter.Events() {
		events = append(events, ev)
	}
	return events
}

func chatState(query string, intent core.Intent) *core.State {
	s := core.NewState(query, "u1", "s1", ChatAgentCode, nil)
	s.Intent = intent
	return s
}

func finalMessage(t *testing.T, events []core.Event) core.Message {
	t.Helper()
	for _, ev := range events {
		if ev.Kind == core.EventToken && ev.Done {
			require.NotNil(t, ev.Message)
			return *ev.Message
		}
	}
	t.Fatal("no final token event")
	return core.Message{}
}

func TestNewChatRequiresModel(t *testing.T) {
	_, err := NewChat(ChatConfig{})

	var cfgErr *core.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestChatAnswersGeneralQuestion(t *testing.T) {
	m := model.NewMockModel("chat")
	m.AddResponse("한국의 수도", "한국의 수도는 서울입니다.")

	b, err := NewChat(ChatConfig{Model: m})
	require.NoError(t, err)

	state := chatState("한국의 수도는 어디야?", core.IntentGeneralQuestion)
	events := runBinding(t, b, state)

	msg := finalMessage(t, events)
	assert.Equal(t, "assistant", msg.Role)
	assert.Equal(t, "한국의 수도는 서울입니다.", msg.Content)
	assert.Equal(t, "한국의 수도는 서울입니다.", state.GetString(core.KeyFinalAnswer))

	var fragments string
	for _, ev := range events {
		if ev.Kind == core.EventToken && !ev.Done {
			fragments += ev.Payload
		}
	}
	assert.Equal(t, msg.Content, fragments, "answer streams character by character")
}

func TestChatSuggestsDiscussionTopics(t *testing.T) {
	m := model.NewMockModel("chat")
	m.AddResponse("환경", `{"message": "환경 문제는 토론하기 좋은 주제예요. 토론을 시작해 볼까요?", "topic_suggestions": ["탄소세 도입", "원전 확대"]}`)

	b, err := NewChat(ChatConfig{Model: m})
	require.NoError(t, err)

	state := chatState("요즘 환경 문제가 심각한 것 같아", core.IntentDiscussableTopic)
	events := runBinding(t, b, state)

	msg := finalMessage(t, events)
	assert.Contains(t, msg.Content, "토론을 시작해 볼까요")

	suggestions, ok := state.Get(KeyTopicSuggestions)
	require.True(t, ok)
	assert.Equal(t, []string{"탄소세 도입", "원전 확대"}, suggestions)
}

func TestChatSuggestTopicSurvivesMalformedModelOutput(t *testing.T) {
	m := model.NewMockModel("chat")
	m.AddResponse("환경", "환경 문제로 토론해 보는 건 어때요?")

	b, err := NewChat(ChatConfig{Model: m})
	require.NoError(t, err)

	state := chatState("환경 이야기 해보자", core.IntentDiscussableTopic)
	events := runBinding(t, b, state)

	msg := finalMessage(t, events)
	assert.Equal(t, "환경 문제로 토론해 보는 건 어때요?", msg.Content)

	_, ok := state.Get(KeyTopicSuggestions)
	assert.False(t, ok, "no suggestions without parseable output")
}

func TestChatSmallTalk(t *testing.T) {
	m := model.NewMockModel("chat")
	m.AddResponse("안녕", "반가워요! 무엇을 도와드릴까요?")

	b, err := NewChat(ChatConfig{Model: m})
	require.NoError(t, err)

	state := chatState("안녕", core.IntentNonDiscussable)
	events := runBinding(t, b, state)

	msg := finalMessage(t, events)
	assert.Equal(t, "반가워요! 무엇을 도와드릴까요?", msg.Content)
}

func TestChatHandoffWithoutRedirect(t *testing.T) {
	m := model.NewMockModel("chat")

	b, err := NewChat(ChatConfig{Model: m})
	require.NoError(t, err)

	for _, intent := range []core.Intent{core.IntentSetupDiscussion, core.IntentStartDiscussion} {
		state := chatState("토론 진행해줘", intent)
		events := runBinding(t, b, state)

		msg := finalMessage(t, events)
		assert.Contains(t, msg.Content, "토론")
	}
}

func TestChatRecallsLongTermFacts(t *testing.T) {
	stm, err := memory.NewInMemoryShortTerm(16)
	require.NoError(t, err)
	ltm := memory.NewInMemoryLongTerm()
	mgr := memory.NewManager(stm, ltm, nil)

	require.NoError(t, ltm.Save(context.Background(), []memory.Record{{
		UserID:     "u1",
		AgentID:    ChatAgentCode,
		Type:       memory.TypeSemantic,
		Category:   "preference",
		Content:    "사용자는 간결한 답변을 선호한다",
		Importance: 1.0,
	}}))

	m := model.NewMockModel("chat")
	m.AddResponse("날씨", "오늘은 맑아요.")

	b, err := NewChat(ChatConfig{Model: m, Memory: mgr})
	require.NoError(t, err)

	state := chatState("오늘 날씨 어때?", core.IntentGeneralQuestion)
	runBinding(t, b, state)

	facts, ok := state.Get(KeyUserFacts)
	require.True(t, ok)
	assert.Contains(t, facts, "사용자는 간결한 답변을 선호한다")
}

func TestChatRecallScopedToOwnAgent(t *testing.T) {
	stm, err := memory.NewInMemoryShortTerm(16)
	require.NoError(t, err)
	ltm := memory.NewInMemoryLongTerm()
	mgr := memory.NewManager(stm, ltm, nil)

	// A fact extracted under another agent must not leak into chat recall.
	require.NoError(t, ltm.Save(context.Background(), []memory.Record{{
		UserID:     "u1",
		AgentID:    DiscussionAgentCode,
		Type:       memory.TypeEpisodic,
		Category:   "discussion",
		Content:    "원격 근무를 주제로 토론했다",
		Importance: 1.0,
	}}))

	m := model.NewMockModel("chat")
	m.AddResponse("날씨", "오늘은 맑아요.")

	b, err := NewChat(ChatConfig{Model: m, Memory: mgr})
	require.NoError(t, err)

	state := chatState("오늘 날씨 어때?", core.IntentGeneralQuestion)
	runBinding(t, b, state)

	_, ok := state.Get(KeyUserFacts)
	assert.False(t, ok, "no facts of other agents recalled")
}

func TestChatDefaultClassifierFallsBack(t *testing.T) {
	m := model.NewMockModel("chat")

	b, err := NewChat(ChatConfig{Model: m})
	require.NoError(t, err)

	state := chatState("뭐라도 말해봐", "")
	intent, err := b.Classifier.Classify(context.Background(), state, b.Intents)
	require.NoError(t, err)
	assert.Equal(t, core.IntentNonDiscussable, intent)
}
