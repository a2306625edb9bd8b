package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/graph"
	"github.com/hupe1980/dialogmesh/logging"
	"github.com/hupe1980/dialogmesh/memory"
	"github.com/hupe1980/dialogmesh/registry"
	"github.com/hupe1980/dialogmesh/translate"
)

// Config holds the engine's runtime limits.
type Config struct {
	// MaxConcurrentRuns caps the number of runs in flight. Invoke fails
	// immediately when the cap is reached.
	MaxConcurrentRuns int

	// EventBufferSize is the capacity of each run's outbound event channel.
	EventBufferSize int

	// ExtractTimeout bounds the asynchronous long-term extraction started
	// after a successful run.
	ExtractTimeout time.Duration
}

// DefaultConfig provides production-ready defaults.
var DefaultConfig = Config{
	MaxConcurrentRuns: 10,
	EventBufferSize:   100,
	ExtractTimeout:    time.Minute,
}

// Options holds the engine's collaborators. All fields have working in-memory
// defaults so the engine runs with zero external services.
type Options struct {
	Config   Config
	Registry *registry.Registry
	Memory   *memory.Manager
	Executor *graph.Executor
	Logger   logging.Logger
}

// WithConfig overrides the default runtime limits.
func WithConfig(cfg Config) func(o *Options) {
	return func(o *Options) { o.Config = cfg }
}

// WithRegistry sets the agent registry the engine resolves bindings from.
func WithRegistry(r *registry.Registry) func(o *Options) {
	return func(o *Options) { o.Registry = r }
}

// WithMemory sets the memory manager used for transcript persistence and
// long-term extraction.
func WithMemory(m *memory.Manager) func(o *Options) {
	return func(o *Options) { o.Memory = m }
}

// WithExecutor sets the graph executor. Use this to configure the step bound
// or a custom translator.
func WithExecutor(ex *graph.Executor) func(o *Options) {
	return func(o *Options) { o.Executor = ex }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

// Engine coordinates classification, graph execution, streaming and memory
// persistence for conversational runs. It is safe for concurrent use.
type Engine struct {
	config   Config
	registry *registry.Registry
	memory   *memory.Manager
	executor *graph.Executor
	logger   logging.Logger

	activeRuns map[string]context.CancelFunc
	runsMu     sync.Mutex
	sem        chan struct{}
}

// New creates an Engine. Without options it uses in-memory stores, a
// character-paced translator and a no-op logger, which is suitable for
// development and tests.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config:   DefaultConfig,
		Registry: registry.New(),
		Logger:   logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Config.MaxConcurrentRuns <= 0 {
		opts.Config.MaxConcurrentRuns = DefaultConfig.MaxConcurrentRuns
	}
	if opts.Config.EventBufferSize <= 0 {
		opts.Config.EventBufferSize = DefaultConfig.EventBufferSize
	}
	if opts.Config.ExtractTimeout <= 0 {
		opts.Config.ExtractTimeout = DefaultConfig.ExtractTimeout
	}

	if opts.Memory == nil {
		stm, _ := memory.NewInMemoryShortTerm(128)
		opts.Memory = memory.NewManager(stm, memory.NewInMemoryLongTerm(), nil)
	}

	if opts.Executor == nil {
		translator := translate.New()
		opts.Executor = graph.NewExecutor(func(o *graph.ExecutorOptions) {
			o.Translator = translator
			o.Logger = opts.Logger
		})
	}

	return &Engine{
		config:     opts.Config,
		registry:   opts.Registry,
		memory:     opts.Memory,
		executor:   opts.Executor,
		logger:     opts.Logger,
		activeRuns: make(map[string]context.CancelFunc),
		sem:        make(chan struct{}, opts.Config.MaxConcurrentRuns),
	}
}

// Registry returns the engine's agent registry for registration at startup.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Invoke starts one run asynchronously and returns channels for real-time
// event streaming.
//
// The returned events channel carries every outbound event of the run and is
// closed when the run finishes. The errors channel receives at most one
// terminal error and is closed together with the events channel; an
// immediate error is returned directly when the run cannot be started at all
// (unknown agent, invalid request, concurrency cap reached).
func (e *Engine) Invoke(ctx context.Context, req core.Request) (string, <-chan core.Event, <-chan error, error) {
	if req.AgentCode == "" {
		return "", nil, nil, fmt.Errorf("invoke: agent code is required")
	}
	if req.UserID == "" {
		return "", nil, nil, fmt.Errorf("invoke: user id is required")
	}
	if req.Query == "" {
		return "", nil, nil, fmt.Errorf("invoke: query is required")
	}

	binding, ok := e.registry.Agent(req.AgentCode)
	if !ok {
		return "", nil, nil, &core.RoutingError{AgentCode: req.AgentCode, Reason: "not registered"}
	}

	select {
	case e.sem <- struct{}{}:
	default:
		return "", nil, nil, fmt.Errorf("invoke: concurrent run limit %d reached", e.config.MaxConcurrentRuns)
	}

	runID := core.NewID()
	emitter := core.NewEmitter(runID, e.config.EventBufferSize)
	errsCh := make(chan error, 1)

	runCtx, cancel := context.WithCancel(ctx)

	e.runsMu.Lock()
	e.activeRuns[runID] = cancel
	e.runsMu.Unlock()

	go func() {
		defer func() {
			emitter.Close()
			close(errsCh)

			e.runsMu.Lock()
			delete(e.activeRuns, runID)
			e.runsMu.Unlock()

			cancel()
			<-e.sem
		}()

		if err := e.run(runCtx, runID, binding, req, emitter); err != nil {
			e.logger.Error("run failed", "run_id", runID, "agent", req.AgentCode, "error", err)
			_ = emitter.Emit(runCtx, core.NewErrorEvent(runID, err))
			errsCh <- err
		}
	}()

	return runID, emitter.Events(), errsCh, nil
}

// InvokeSync runs one request to completion and returns all events it
// produced. It is a convenience wrapper around Invoke for request-response
// callers that do not need real-time streaming.
func (e *Engine) InvokeSync(ctx context.Context, req core.Request) (string, []core.Event, error) {
	runID, eventsCh, errsCh, err := e.Invoke(ctx, req)
	if err != nil {
		return "", nil, err
	}

	var events []core.Event
	for ev := range eventsCh {
		events = append(events, ev)
	}
	return runID, events, <-errsCh
}

// Cancel stops a running invocation by its run ID. The run's context is
// cancelled and its channels are closed once in-flight work unwinds.
func (e *Engine) Cancel(runID string) error {
	e.runsMu.Lock()
	cancel, ok := e.activeRuns[runID]
	e.runsMu.Unlock()

	if !ok {
		return fmt.Errorf("run %s not found", runID)
	}

	cancel()
	return nil
}

// ActiveRuns reports the number of runs currently in flight.
func (e *Engine) ActiveRuns() int {
	e.runsMu.Lock()
	defer e.runsMu.Unlock()
	return len(e.activeRuns)
}

// run executes the full pipeline for one request. It is the sole writer of
// the run's emitter.
func (e *Engine) run(ctx context.Context, runID string, binding registry.Binding, req core.Request, emitter *core.Emitter) error {
	state := core.NewState(req.Query, req.UserID, req.SessionID, binding.Code, req.PriorMessages)
	memKey := memory.SessionKey(req.UserID, time.Now(), req.SessionID)

	// An explicit transcript in the request wins; otherwise the session's
	// short-term memory supplies the history the classifier and stages see.
	if len(req.PriorMessages) == 0 {
		entries, err := e.memory.ReadRecent(ctx, memKey)
		if err != nil {
			e.logger.Warn("short-term recall failed", "run_id", runID, "error", err)
		}
		for _, entry := range entries {
			if entry.Kind != memory.KindMessage {
				continue
			}
			if entry.User != "" {
				state.History = append(state.History, core.Turn{Role: "user", Content: entry.User})
			}
			if entry.Bot != "" {
				state.History = append(state.History, core.Turn{Role: "assistant", Content: entry.Bot})
			}
		}
	}

	intent, err := binding.Classifier.Classify(ctx, state, binding.Intents)
	if err != nil {
		return fmt.Errorf("classify intent: %w", err)
	}
	state.Intent = intent

	// One redirect hop at most: the redirect table maps an intent to the
	// agent that owns it, never to a further redirect.
	if target, ok := e.registry.AgentForIntent(intent); ok && target.Code != binding.Code {
		e.logger.Info("intent redirect", "run_id", runID, "from", binding.Code, "to", target.Code, "intent", intent)
		binding = target
		state.AgentID = target.Code
	}

	if err := emitter.Emit(ctx, core.NewStatusEvent(runID, string(intent))); err != nil {
		return err
	}

	rc := &graph.RunContext{
		RunID:   runID,
		State:   state,
		Emitter: emitter,
		Logger:  e.logger,
	}

	if err := e.executor.Execute(ctx, binding.Graph, rc); err != nil {
		return err
	}

	done := core.NewDoneEvent(runID)
	if answer := state.GetString(core.KeyFinalAnswer); answer != "" {
		done.Message = &core.Message{Role: "assistant", Content: answer}
	}
	if err := emitter.Emit(ctx, done); err != nil {
		return err
	}

	e.persistTurn(ctx, runID, memKey, req, state)
	return nil
}

// persistTurn writes the completed exchange to short-term memory as one
// entry and starts long-term extraction in the background. Memory failures
// never fail the run; they are logged and the response the user already
// received stands.
func (e *Engine) persistTurn(ctx context.Context, runID, memKey string, req core.Request, state *core.State) {
	if ctx.Err() != nil {
		return
	}

	// A stage may have written a fuller rendition of the bot side, such as
	// the complete discussion script; it replaces the plain final answer.
	bot := state.GetString(core.KeyMemoryText)
	if bot == "" {
		bot = state.GetString(core.KeyFinalAnswer)
	}
	if err := e.memory.AppendTurn(ctx, memKey, state.AgentID, req.Query, bot); err != nil {
		e.logger.Warn("short-term append failed", "run_id", runID, "error", err)
	}

	extractCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.ExtractTimeout)

	go func() {
		defer cancel()

		n, err := e.memory.ExtractAndSave(extractCtx, req.UserID, state.AgentID, memKey)
		if err != nil {
			e.logger.Warn("long-term extraction failed", "run_id", runID, "error", err)
			return
		}
		if n > 0 {
			e.logger.Debug("long-term extraction saved facts", "run_id", runID, "count", n)
		}
	}()
}
