package agents

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/graph"
	"github.com/hupe1980/dialogmesh/internal/jsonx"
	"github.com/hupe1980/dialogmesh/logging"
	"github.com/hupe1980/dialogmesh/model"
	"github.com/hupe1980/dialogmesh/registry"
	"github.com/hupe1980/dialogmesh/router"
	"github.com/hupe1980/dialogmesh/schedule"
	"github.com/hupe1980/dialogmesh/tool"
)

// DiscussionAgentCode is the default registration code of the discussion agent.
const DiscussionAgentCode = "discussion"

// MaterialsToolName is the tool the discussion agent calls to gather
// per-speaker reference materials.
const MaterialsToolName = "search_materials"

// DiscussionIntents is the closed intent set the discussion agent accepts.
var DiscussionIntents = []core.Intent{
	core.IntentSetupDiscussion,
	core.IntentStartDiscussion,
}

// defaultSpeakers carries a discussion when the model's plan is unusable.
var defaultSpeakers = []Speaker{
	{Name: "찬성 측", Role: "토론 주제에 찬성하는 입장"},
	{Name: "반대 측", Role: "토론 주제에 반대하는 입장"},
	{Name: "사회자", Role: "중립적으로 토론을 진행하는 사회자"},
}

// DiscussionConfig configures the discussion agent.
type DiscussionConfig struct {
	// Model plans the discussion, generates every speaker's speech and
	// writes the wrap-up summary.
	Model model.Model

	// Tools supplies reference materials via MaterialsToolName. Nil or a
	// missing tool means speakers argue from the model alone.
	Tools *tool.Registry

	// Scheduler merges the speakers' concurrent streams. Nil uses defaults.
	Scheduler *schedule.Scheduler

	// Classifier overrides the default model classifier. The default falls
	// back to start_discussion when the model's answer is unusable.
	Classifier router.Classifier

	Logger logging.Logger
}

// NewDiscussion builds the discussion agent binding: plan topic and speakers,
// gather materials, stream the panel through the scheduler, wrap up.
func NewDiscussion(cfg DiscussionConfig) (registry.Binding, error) {
	if cfg.Model == nil {
		return registry.Binding{}, &core.ConfigError{Component: "discussion agent", Reason: "nil model"}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NoOpLogger{}
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = schedule.New(func(o *schedule.Options) { o.Logger = cfg.Logger })
	}
	if cfg.Classifier == nil {
		cfg.Classifier = router.NewModelClassifier(cfg.Model, func(o *router.ModelClassifierOptions) {
			o.Fallback = core.IntentStartDiscussion
			o.Logger = cfg.Logger
		})
	}

	b := graph.NewBuilder("discussion")
	b.AddStage(graph.NewStage("setup", setupStage(cfg)))
	b.AddStage(graph.NewStage("get_materials", materialsStage(cfg)))
	b.AddStage(graph.NewStage("proceed", proceedStage(cfg)))
	b.AddStage(graph.NewStage("wrap_up", wrapUpStage(cfg)))
	b.SetEntry("setup")
	b.AddEdge("setup", "get_materials")
	b.AddEdge("get_materials", "proceed")
	b.AddEdge("proceed", "wrap_up")
	b.AddEdge("wrap_up", graph.End)

	g, err := b.Build()
	if err != nil {
		return registry.Binding{}, err
	}

	return registry.Binding{
		Code:       DiscussionAgentCode,
		Graph:      g,
		Classifier: cfg.Classifier,
		Intents:    DiscussionIntents,
	}, nil
}

// setupStage plans topic, speakers and ground rules with the model and
// streams the host's opening. An unusable plan falls back to the user's query
// as topic with the default panel, so a discussion always starts.
func setupStage(cfg DiscussionConfig) func(ctx context.Context, rc *graph.RunContext) (core.Delta, error) {
	return func(ctx context.Context, rc *graph.RunContext) (core.Delta, error) {
		text, err := generate(ctx, cfg.Model, "", setupDiscussionPrompt, map[string]any{
			"query":   rc.State.Query,
			"history": rc.State.History,
		})
		if err != nil {
			return nil, fmt.Errorf("plan discussion: %w", err)
		}

		var plan struct {
			Topic    string    `json:"topic"`
			Speakers []Speaker `json:"speakers"`
			Rules    []string  `json:"discussion_rules"`
		}
		if err := jsonx.Decode(text, &plan); err != nil {
			cfg.Logger.Warn("discussion plan not parseable, using defaults", "error", err)
		}
		if plan.Topic == "" {
			plan.Topic = rc.State.Query
		}
		if len(plan.Speakers) == 0 {
			plan.Speakers = defaultSpeakers
		}

		names := make([]string, len(plan.Speakers))
		for i, sp := range plan.Speakers {
			names[i] = sp.Name
		}
		host := fmt.Sprintf("오늘 토론 주제는 '%s'입니다.\n이번 토론에서는 %s 이렇게 %d명을 모셨습니다. 토론을 시작하겠습니다.\n",
			plan.Topic, strings.Join(names, ", "), len(plan.Speakers))

		return core.Delta{
			KeyTopic:    plan.Topic,
			KeySpeakers: plan.Speakers,
			KeyRules:    plan.Rules,
			core.KeyStream: &core.StreamDirective{
				Kind:       core.EventToken,
				Text:       host,
				Role:       "host",
				CharPacing: true,
			},
		}, nil
	}
}

// materialsStage gathers reference materials per speaker in parallel. Tool
// failures produce empty materials and never abort the discussion.
func materialsStage(cfg DiscussionConfig) func(ctx context.Context, rc *graph.RunContext) (core.Delta, error) {
	return func(ctx context.Context, rc *graph.RunContext) (core.Delta, error) {
		speakers := stateSpeakers(rc.State)
		topic := rc.State.GetString(KeyTopic)

		materials := make(map[string][]string, len(speakers))
		if cfg.Tools == nil {
			return core.Delta{KeyMaterials: materials}, nil
		}

		var (
			mu sync.Mutex
			wg sync.WaitGroup
		)
		for _, sp := range speakers {
			wg.Add(1)
			go func(sp Speaker) {
				defer wg.Done()

				result, err := cfg.Tools.Call(ctx, MaterialsToolName, map[string]any{
					"topic":       topic,
					"perspective": sp.Name,
				})
				if err != nil {
					cfg.Logger.Warn("material search failed", "speaker", sp.Name, "error", err)
					return
				}

				docs := toStringSlice(result)
				mu.Lock()
				materials[sp.Name] = docs
				mu.Unlock()
			}(sp)
		}
		wg.Wait()

		return core.Delta{KeyMaterials: materials}, nil
	}
}

// proceedStage runs the panel: every speaker generates a speech concurrently
// and the scheduler interleaves the fragments fairly. A failed speaker is
// reported through its terminal event; the rest of the panel continues.
func proceedStage(cfg DiscussionConfig) func(ctx context.Context, rc *graph.RunContext) (core.Delta, error) {
	return func(ctx context.Context, rc *graph.RunContext) (core.Delta, error) {
		speakers := stateSpeakers(rc.State)
		topic := rc.State.GetString(KeyTopic)
		rules := stateStrings(rc.State, KeyRules)
		materials, _ := stateValue[map[string][]string](rc.State, KeyMaterials)

		sources := make([]schedule.Source, 0, len(speakers))
		for _, sp := range speakers {
			sources = append(sources, schedule.Source{
				Name: sp.Name,
				Run: func(ctx context.Context, yield func(core.Event) error) (core.Delta, error) {
					speech, err := generate(ctx, cfg.Model, "", speechPrompt, map[string]any{
						"speaker":   sp.Name,
						"role":      sp.Role,
						"topic":     topic,
						"materials": materials[sp.Name],
						"rules":     rules,
					})
					if err != nil {
						return nil, err
					}
					speech = strings.TrimSpace(speech)

					for _, fragment := range strings.SplitAfter(speech, " ") {
						if fragment == "" {
							continue
						}
						if err := yield(core.NewTokenEvent(rc.RunID, fragment)); err != nil {
							return nil, err
						}
					}

					return core.Delta{speechKey(sp.Name): Speech{Speaker: sp.Name, Text: speech}}, nil
				},
			})
		}

		merged, err := cfg.Scheduler.Run(ctx, rc, sources)
		if err != nil {
			return nil, err
		}

		// The merged delta is keyed per speaker; the script keeps the
		// planned speaking order regardless of stream interleaving.
		script := make([]Speech, 0, len(speakers))
		for _, sp := range speakers {
			if speech, ok := merged[speechKey(sp.Name)].(Speech); ok {
				script = append(script, speech)
			}
		}
		return core.Delta{KeyScript: script}, nil
	}
}

// wrapUpStage summarizes the script and closes the session with follow-up
// topic suggestions.
func wrapUpStage(cfg DiscussionConfig) func(ctx context.Context, rc *graph.RunContext) (core.Delta, error) {
	return func(ctx context.Context, rc *graph.RunContext) (core.Delta, error) {
		script, _ := stateValue[[]Speech](rc.State, KeyScript)
		topic := rc.State.GetString(KeyTopic)

		text, err := generate(ctx, cfg.Model, "", wrapUpPrompt, map[string]any{
			"topic":  topic,
			"script": script,
		})
		if err != nil {
			return nil, fmt.Errorf("wrap up discussion: %w", err)
		}

		var parsed struct {
			Message          string   `json:"message"`
			TopicSuggestions []string `json:"topic_suggestions"`
		}
		if err := jsonx.Decode(text, &parsed); err != nil || parsed.Message == "" {
			cfg.Logger.Warn("wrap-up response not parseable", "error", err)
			parsed.Message = text
			parsed.TopicSuggestions = nil
		}

		d := core.Delta{
			core.KeyDisplayText: parsed.Message,
			core.KeyFinalAnswer: parsed.Message,
			core.KeyMemoryText:  memoryText(script, parsed.Message),
		}
		if len(parsed.TopicSuggestions) > 0 {
			d[KeyTopicSuggestions] = parsed.TopicSuggestions
		}
		return d, nil
	}
}

// memoryText renders the full discussion for the stored exchange: every
// speech in speaking order, followed by the closing summary.
func memoryText(script []Speech, summary string) string {
	var sb strings.Builder
	for _, sp := range script {
		sb.WriteString(sp.Speaker)
		sb.WriteString(": ")
		sb.WriteString(sp.Text)
		sb.WriteString("\n")
	}
	if summary != "" {
		sb.WriteString("\n")
		sb.WriteString(summary)
	}
	return sb.String()
}

func speechKey(speaker string) string { return "speech:" + speaker }

func stateSpeakers(s *core.State) []Speaker {
	speakers, _ := stateValue[[]Speaker](s, KeySpeakers)
	return speakers
}

func stateStrings(s *core.State, key string) []string {
	v, _ := stateValue[[]string](s, key)
	return v
}

func stateValue[T any](s *core.State, key string) (T, bool) {
	var zero T
	v, ok := s.Get(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// toStringSlice normalizes a tool result into displayable material snippets.
func toStringSlice(v any) []string {
	switch docs := v.(type) {
	case []string:
		return docs
	case []any:
		out := make([]string, 0, len(docs))
		for _, d := range docs {
			if s, ok := d.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if docs == "" {
			return nil
		}
		return []string{docs}
	default:
		return nil
	}
}
