// Package dialogmesh provides a high-level façade over the conversational
// workflow engine. Most applications interact with this package by:
//  1. Creating a DialogMesh via New() (optionally overriding the in-memory
//     defaults for memory, execution and logging)
//  2. Registering agent bindings (the ready-made agents package or custom
//     graphs) and intent redirects
//  3. Invoking agents asynchronously (Invoke) or synchronously (InvokeSync)
//
// The façade delegates orchestration to engine.Engine while keeping setup
// ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply a SQLite-backed memory
// manager and a structured logger.
package dialogmesh

import (
	"context"

	"github.com/hupe1980/dialogmesh/config"
	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/engine"
	"github.com/hupe1980/dialogmesh/graph"
	"github.com/hupe1980/dialogmesh/logging"
	"github.com/hupe1980/dialogmesh/memory"
	"github.com/hupe1980/dialogmesh/registry"
	"github.com/hupe1980/dialogmesh/translate"
)

// Options configures the DialogMesh instance.
type Options struct {
	// EngineConfig holds the runtime limits (concurrency, buffers,
	// extraction timeout).
	EngineConfig engine.Config

	// Memory overrides the default in-memory manager.
	Memory *memory.Manager

	// Executor overrides the default executor. Use this to tune the step
	// bound or the streaming translator.
	Executor *graph.Executor

	// Logger defaults to a no-op logger if nil.
	Logger logging.Logger
}

// DialogMesh is the high-level façade aggregating the engine and its
// registry.
type DialogMesh struct {
	engine *engine.Engine
}

// New creates a DialogMesh instance with optional overrides. Any unset
// collaborator is initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) *DialogMesh {
	opts := Options{
		EngineConfig: engine.DefaultConfig,
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	e := engine.New(func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.Logger = opts.Logger
		if opts.Memory != nil {
			o.Memory = opts.Memory
		}
		if opts.Executor != nil {
			o.Executor = opts.Executor
		}
	})

	return &DialogMesh{engine: e}
}

// NewFromConfig builds a DialogMesh from an environment-driven configuration,
// mapping each tunable onto the component it governs: run limits onto the
// engine, the step bound and pacing delay onto the executor and translator,
// the write timeout and cache size onto the memory tier. A configured DB path
// switches long-term memory from in-process to SQLite. Option functions run
// afterwards, so explicit overrides win over the configuration.
func NewFromConfig(cfg *config.Config, optFns ...func(o *Options)) (*DialogMesh, error) {
	opts := Options{
		EngineConfig: engine.Config{
			MaxConcurrentRuns: cfg.MaxConcurrentRuns,
			EventBufferSize:   cfg.EventBufferSize,
			ExtractTimeout:    engine.DefaultConfig.ExtractTimeout,
		},
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Memory == nil {
		stm, err := memory.NewInMemoryShortTerm(cfg.ShortTermCacheSize)
		if err != nil {
			return nil, err
		}
		var ltm memory.LongTermStore = memory.NewInMemoryLongTerm()
		if cfg.LongTermDBPath != "" {
			sqlite, err := memory.NewSQLiteLongTerm(cfg.LongTermDBPath)
			if err != nil {
				return nil, err
			}
			ltm = sqlite
		}
		opts.Memory = memory.NewManager(stm, ltm, nil, func(o *memory.ManagerOptions) {
			o.WriteTimeout = cfg.STMWriteTimeout
			o.Logger = opts.Logger
		})
	}

	if opts.Executor == nil {
		translator := translate.New(func(o *translate.Options) {
			o.CharDelay = cfg.CharDelay
		})
		opts.Executor = graph.NewExecutor(func(o *graph.ExecutorOptions) {
			o.MaxSteps = cfg.MaxSteps
			o.Translator = translator
			o.Logger = opts.Logger
		})
	}

	e := engine.New(func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.Logger = opts.Logger
		o.Memory = opts.Memory
		o.Executor = opts.Executor
	})

	return &DialogMesh{engine: e}, nil
}

// RegisterAgent adds an agent binding to the underlying registry.
func (m *DialogMesh) RegisterAgent(b registry.Binding) error {
	return m.engine.Registry().RegisterAgent(b)
}

// BindIntent redirects requests classified with intent to the named agent.
func (m *DialogMesh) BindIntent(intent core.Intent, agentCode string) error {
	return m.engine.Registry().BindIntent(intent, agentCode)
}

// Invoke starts an asynchronous run returning event and error channels.
func (m *DialogMesh) Invoke(ctx context.Context, req core.Request) (string, <-chan core.Event, <-chan error, error) {
	return m.engine.Invoke(ctx, req)
}

// InvokeSync is a synchronous helper that drains the async channels,
// accumulates events and returns the run ID.
func (m *DialogMesh) InvokeSync(ctx context.Context, req core.Request) (string, []core.Event, error) {
	return m.engine.InvokeSync(ctx, req)
}

// Cancel stops a running invocation by its run ID.
func (m *DialogMesh) Cancel(runID string) error {
	return m.engine.Cancel(runID)
}
