// Package graph implements the staged workflow executor at the heart of
// dialogmesh. An agent is compiled into a directed graph of named stages
// connected by static or intent-conditional edges; the executor walks the
// graph for one request, merging each stage's partial state update and
// handing it to the response translator for streaming.
package graph

import (
	"context"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/logging"
)

// End is the reserved terminal node name. An edge pointing at End finishes
// the run.
const End = "__end__"

// RunContext carries the per-request execution environment into stages.
type RunContext struct {
	RunID   string
	State   *core.State
	Emitter *core.Emitter
	Logger  logging.Logger
}

// Stage is one unit of work in a graph. Run returns a partial state update;
// the executor owns the merge. A stage must not mutate shared state outside
// the returned delta except through RunContext.Emitter.
type Stage interface {
	// Name returns the unique stage name used in edges and error reports.
	Name() string

	// Run executes the stage against the current state.
	Run(ctx context.Context, rc *RunContext) (core.Delta, error)
}

// StageFunc adapts a plain function into a Stage.
type StageFunc struct {
	name string
	fn   func(ctx context.Context, rc *RunContext) (core.Delta, error)
}

// NewStage wraps fn as a named Stage.
func NewStage(name string, fn func(ctx context.Context, rc *RunContext) (core.Delta, error)) *StageFunc {
	return &StageFunc{name: name, fn: fn}
}

// Name implements Stage.
func (s *StageFunc) Name() string { return s.name }

// Run implements Stage.
func (s *StageFunc) Run(ctx context.Context, rc *RunContext) (core.Delta, error) {
	return s.fn(ctx, rc)
}

// Selector picks the routing value for a conditional edge from the current
// state. Classification itself happens before graph execution; selectors only
// read the already-populated state.
type Selector func(s *core.State) core.Intent

// Translator converts a completed stage's delta into outbound events.
// Implemented by the translate package; declared here so the executor does
// not depend on it.
type Translator interface {
	Translate(ctx context.Context, rc *RunContext, stage string, d core.Delta) error
}

// edge is the compiled outgoing route of one stage. Exactly one of target or
// selector is set.
type edge struct {
	target   string
	selector Selector
	routes   map[core.Intent]string
}

// Graph is an immutable, validated stage graph produced by a Builder.
type Graph struct {
	name   string
	entry  string
	stages map[string]Stage
	edges  map[string]edge
}

// Name returns the graph's name.
func (g *Graph) Name() string { return g.name }

// Entry returns the entry stage name.
func (g *Graph) Entry() string { return g.entry }

// Stages returns the stage names in no particular order.
func (g *Graph) Stages() []string {
	out := make([]string, 0, len(g.stages))
	for name := range g.stages {
		out = append(out, name)
	}
	return out
}

// next resolves the stage following cur, or an error when a conditional edge
// sees a value outside its declared domain.
func (g *Graph) next(cur string, s *core.State) (string, error) {
	e := g.edges[cur]
	if e.selector == nil {
		return e.target, nil
	}
	intent := e.selector(s)
	target, ok := e.routes[intent]
	if !ok {
		return "", &core.RoutingError{
			AgentCode: g.name,
			Intent:    intent,
			Reason:    "no route from stage " + cur,
		}
	}
	return target, nil
}
