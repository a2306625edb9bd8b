package agents

import (
	"context"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/graph"
	"github.com/hupe1980/dialogmesh/internal/jsonx"
	"github.com/hupe1980/dialogmesh/internal/util"
	"github.com/hupe1980/dialogmesh/logging"
	"github.com/hupe1980/dialogmesh/memory"
	"github.com/hupe1980/dialogmesh/model"
	"github.com/hupe1980/dialogmesh/registry"
	"github.com/hupe1980/dialogmesh/router"
)

// ChatAgentCode is the default registration code of the chat agent.
const ChatAgentCode = "chat"

// ChatIntents is the closed intent set the chat agent accepts.
var ChatIntents = []core.Intent{
	core.IntentGeneralQuestion,
	core.IntentSetupDiscussion,
	core.IntentStartDiscussion,
	core.IntentDiscussableTopic,
	core.IntentNonDiscussable,
}

// ChatConfig configures the chat agent.
type ChatConfig struct {
	// Model answers questions and drives classification when no custom
	// classifier is set.
	Model model.Model

	// Memory, when set, lets context preparation recall long-term facts
	// about the user. Recall failures never fail the run.
	Memory *memory.Manager

	// Classifier overrides the default model classifier. The default falls
	// back to non_discussable when the model's answer is unusable.
	Classifier router.Classifier

	// RecallLimit bounds how many long-term records are recalled per run.
	// Zero means 10.
	RecallLimit int

	Logger logging.Logger
}

// NewChat builds the chat agent binding: context preparation fans out on the
// classified intent to an answering, topic-suggesting, smalltalk or
// discussion-handoff stage.
func NewChat(cfg ChatConfig) (registry.Binding, error) {
	if cfg.Model == nil {
		return registry.Binding{}, &core.ConfigError{Component: "chat agent", Reason: "nil model"}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NoOpLogger{}
	}
	if cfg.Classifier == nil {
		cfg.Classifier = router.NewModelClassifier(cfg.Model, func(o *router.ModelClassifierOptions) {
			o.Fallback = core.IntentNonDiscussable
			o.Logger = cfg.Logger
		})
	}
	if cfg.RecallLimit <= 0 {
		cfg.RecallLimit = 10
	}

	b := graph.NewBuilder("chat")
	b.AddStage(graph.NewStage("prepare_context", prepareContextStage(cfg)))
	b.AddStage(graph.NewStage("answer", answerStage(cfg)))
	b.AddStage(graph.NewStage("suggest_topic", suggestTopicStage(cfg)))
	b.AddStage(graph.NewStage("small_talk", smallTalkStage(cfg)))
	b.AddStage(graph.NewStage("handoff", handoffStage()))
	b.SetEntry("prepare_context")
	b.AddConditionalEdges("prepare_context",
		func(s *core.State) core.Intent { return s.Intent },
		ChatIntents,
		map[core.Intent]string{
			core.IntentGeneralQuestion:  "answer",
			core.IntentDiscussableTopic: "suggest_topic",
			core.IntentNonDiscussable:   "small_talk",
			core.IntentSetupDiscussion:  "handoff",
			core.IntentStartDiscussion:  "handoff",
		})
	b.AddEdge("answer", graph.End)
	b.AddEdge("suggest_topic", graph.End)
	b.AddEdge("small_talk", graph.End)
	b.AddEdge("handoff", graph.End)

	g, err := b.Build()
	if err != nil {
		return registry.Binding{}, err
	}

	return registry.Binding{
		Code:       ChatAgentCode,
		Graph:      g,
		Classifier: cfg.Classifier,
		Intents:    ChatIntents,
	}, nil
}

// prepareContextStage recalls long-term facts about the user so later stages
// can personalize their answers.
func prepareContextStage(cfg ChatConfig) func(ctx context.Context, rc *graph.RunContext) (core.Delta, error) {
	return func(ctx context.Context, rc *graph.RunContext) (core.Delta, error) {
		if cfg.Memory == nil || rc.State.UserID == "" {
			return nil, nil
		}

		records, err := cfg.Memory.Recent(ctx, rc.State.UserID, rc.State.AgentID, cfg.RecallLimit)
		if err != nil {
			cfg.Logger.Warn("long-term recall failed", "user_id", rc.State.UserID, "error", err)
			return nil, nil
		}
		if len(records) == 0 {
			return nil, nil
		}

		facts := make([]string, 0, len(records))
		for _, r := range records {
			facts = append(facts, r.Content)
		}
		return core.Delta{KeyUserFacts: facts}, nil
	}
}

func answerStage(cfg ChatConfig) func(ctx context.Context, rc *graph.RunContext) (core.Delta, error) {
	return func(ctx context.Context, rc *graph.RunContext) (core.Delta, error) {
		system, err := util.RenderTemplate(answerSystemPrompt, map[string]any{
			"facts": userFacts(rc.State),
		})
		if err != nil {
			return nil, err
		}

		respCh, errCh := cfg.Model.Generate(ctx, model.Request{
			System:   system,
			Messages: historyMessages(rc.State),
		})
		text, err := model.Collect(respCh, errCh)
		if err != nil {
			return nil, err
		}

		return core.Delta{
			core.KeyDisplayText: text,
			core.KeyFinalAnswer: text,
		}, nil
	}
}

// suggestTopicStage invites the user to turn their subject into a discussion
// and offers concrete topic suggestions alongside the response.
func suggestTopicStage(cfg ChatConfig) func(ctx context.Context, rc *graph.RunContext) (core.Delta, error) {
	return func(ctx context.Context, rc *graph.RunContext) (core.Delta, error) {
		respCh, errCh := cfg.Model.Generate(ctx, model.Request{
			System:   suggestTopicSystemPrompt,
			Messages: historyMessages(rc.State),
		})
		text, err := model.Collect(respCh, errCh)
		if err != nil {
			return nil, err
		}

		var parsed struct {
			Message          string   `json:"message"`
			TopicSuggestions []string `json:"topic_suggestions"`
		}
		if err := jsonx.Decode(text, &parsed); err != nil || parsed.Message == "" {
			// Unstructured answers still reach the user; only the
			// suggestions are lost.
			cfg.Logger.Warn("topic suggestion response not parseable", "error", err)
			parsed.Message = text
			parsed.TopicSuggestions = nil
		}

		d := core.Delta{
			core.KeyDisplayText: parsed.Message,
			core.KeyFinalAnswer: parsed.Message,
		}
		if len(parsed.TopicSuggestions) > 0 {
			d[KeyTopicSuggestions] = parsed.TopicSuggestions
		}
		return d, nil
	}
}

func smallTalkStage(cfg ChatConfig) func(ctx context.Context, rc *graph.RunContext) (core.Delta, error) {
	return func(ctx context.Context, rc *graph.RunContext) (core.Delta, error) {
		respCh, errCh := cfg.Model.Generate(ctx, model.Request{
			System:   smallTalkSystemPrompt,
			Messages: historyMessages(rc.State),
		})
		text, err := model.Collect(respCh, errCh)
		if err != nil {
			return nil, err
		}

		return core.Delta{
			core.KeyDisplayText: text,
			core.KeyFinalAnswer: text,
		}, nil
	}
}

// handoffStage responds when a discussion intent reaches the chat agent with
// no redirect bound, pointing the user at the discussion flow.
func handoffStage() func(ctx context.Context, rc *graph.RunContext) (core.Delta, error) {
	return func(ctx context.Context, rc *graph.RunContext) (core.Delta, error) {
		const text = "토론을 시작할 준비가 되었어요. 토론 에이전트를 통해 진행해 주세요."
		return core.Delta{
			core.KeyDisplayText: text,
			core.KeyFinalAnswer: text,
		}, nil
	}
}

func userFacts(s *core.State) []string {
	v, ok := s.Get(KeyUserFacts)
	if !ok {
		return nil
	}
	facts, _ := v.([]string)
	return facts
}
