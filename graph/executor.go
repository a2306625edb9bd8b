package graph

import (
	"context"
	"fmt"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/logging"
)

// ExecutorOptions configure an Executor.
type ExecutorOptions struct {
	// MaxSteps bounds the number of stage executions per run so a cyclic
	// graph cannot spin forever.
	MaxSteps int

	// Translator renders each stage's delta into outbound events. When nil,
	// deltas are merged silently.
	Translator Translator

	Logger logging.Logger
}

// Executor walks a Graph for one request. It owns the state merge: a stage's
// returned delta is applied only on success; a failing stage's partial work
// is discarded and the run ends with exactly one error.
type Executor struct {
	opts ExecutorOptions
}

// NewExecutor creates an Executor.
func NewExecutor(optFns ...func(o *ExecutorOptions)) *Executor {
	opts := ExecutorOptions{
		MaxSteps: 32,
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Executor{opts: opts}
}

// Execute runs g from its entry stage until an edge reaches End. The state in
// rc is mutated in place; events flow through rc.Emitter via the configured
// translator. The first stage failure, cancellation or routing violation
// aborts the walk and is returned to the caller.
func (e *Executor) Execute(ctx context.Context, g *Graph, rc *RunContext) error {
	logger := e.opts.Logger
	if rc.Logger != nil {
		logger = rc.Logger
	}

	cur := g.entry
	for steps := 0; ; steps++ {
		if steps >= e.opts.MaxSteps {
			return &core.StageError{
				Stage: cur,
				Err:   fmt.Errorf("step bound %d exceeded", e.opts.MaxSteps),
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		stage := g.stages[cur]
		logger.Debug("stage start", "graph", g.name, "stage", cur, "step", steps)

		delta, err := stage.Run(ctx, rc)
		if err != nil {
			// Discard the failing stage's delta; state keeps the last
			// consistent snapshot.
			return &core.StageError{Stage: cur, Err: err}
		}
		rc.State.Merge(delta)

		if e.opts.Translator != nil && len(delta) > 0 {
			if terr := e.opts.Translator.Translate(ctx, rc, cur, delta); terr != nil {
				return &core.StageError{Stage: cur, Err: terr}
			}
		}

		next, err := g.next(cur, rc.State)
		if err != nil {
			return err
		}
		logger.Debug("stage done", "graph", g.name, "stage", cur, "next", next)
		if next == End {
			return nil
		}
		cur = next
	}
}
