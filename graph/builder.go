package graph

import (
	"fmt"

	"github.com/hupe1980/dialogmesh/core"
)

// Builder assembles a Graph. All structural errors surface from Build, never
// at execution time: missing stages, dangling edges and non-exhaustive
// conditional routes reject the whole graph.
type Builder struct {
	name   string
	entry  string
	stages map[string]Stage
	edges  map[string]edge
	errs   []string
}

// NewBuilder creates a builder for a named graph.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:   name,
		stages: map[string]Stage{},
		edges:  map[string]edge{},
	}
}

// AddStage registers a stage. Duplicate names are a build error.
func (b *Builder) AddStage(s Stage) *Builder {
	name := s.Name()
	if name == "" || name == End {
		b.errs = append(b.errs, fmt.Sprintf("invalid stage name %q", name))
		return b
	}
	if _, exists := b.stages[name]; exists {
		b.errs = append(b.errs, fmt.Sprintf("duplicate stage %q", name))
		return b
	}
	b.stages[name] = s
	return b
}

// SetEntry declares the entry stage.
func (b *Builder) SetEntry(name string) *Builder {
	b.entry = name
	return b
}

// AddEdge connects from to to unconditionally. to may be End.
func (b *Builder) AddEdge(from, to string) *Builder {
	if _, exists := b.edges[from]; exists {
		b.errs = append(b.errs, fmt.Sprintf("stage %q already has an outgoing edge", from))
		return b
	}
	b.edges[from] = edge{target: to}
	return b
}

// AddConditionalEdges connects from to one of routes depending on the
// selector's value. domain declares every value the selector can produce;
// Build rejects the graph unless each domain value maps to exactly one
// target.
func (b *Builder) AddConditionalEdges(from string, sel Selector, domain []core.Intent, routes map[core.Intent]string) *Builder {
	if _, exists := b.edges[from]; exists {
		b.errs = append(b.errs, fmt.Sprintf("stage %q already has an outgoing edge", from))
		return b
	}
	if sel == nil {
		b.errs = append(b.errs, fmt.Sprintf("nil selector on stage %q", from))
		return b
	}
	for _, v := range domain {
		if _, ok := routes[v]; !ok {
			b.errs = append(b.errs, fmt.Sprintf("stage %q: no route for %q", from, v))
		}
	}
	for v := range routes {
		if !containsIntent(domain, v) {
			b.errs = append(b.errs, fmt.Sprintf("stage %q: route for %q outside declared domain", from, v))
		}
	}
	b.edges[from] = edge{selector: sel, routes: routes}
	return b
}

// Build validates the assembled graph and returns it. Any accumulated error
// fails the build; a rejected graph is never partially usable.
func (b *Builder) Build() (*Graph, error) {
	errs := append([]string{}, b.errs...)

	if b.entry == "" {
		errs = append(errs, "no entry stage set")
	} else if _, ok := b.stages[b.entry]; !ok {
		errs = append(errs, fmt.Sprintf("entry stage %q not registered", b.entry))
	}

	for name := range b.stages {
		e, ok := b.edges[name]
		if !ok {
			errs = append(errs, fmt.Sprintf("stage %q has no outgoing edge", name))
			continue
		}
		if e.selector == nil {
			if !b.validTarget(e.target) {
				errs = append(errs, fmt.Sprintf("stage %q points at unknown stage %q", name, e.target))
			}
			continue
		}
		for v, target := range e.routes {
			if !b.validTarget(target) {
				errs = append(errs, fmt.Sprintf("stage %q route %q points at unknown stage %q", name, v, target))
			}
		}
	}

	for from := range b.edges {
		if _, ok := b.stages[from]; !ok {
			errs = append(errs, fmt.Sprintf("edge from unknown stage %q", from))
		}
	}

	if len(errs) > 0 {
		return nil, &core.ConfigError{
			Component: "graph " + b.name,
			Reason:    joinErrs(errs),
		}
	}

	return &Graph{
		name:   b.name,
		entry:  b.entry,
		stages: b.stages,
		edges:  b.edges,
	}, nil
}

func (b *Builder) validTarget(target string) bool {
	if target == End {
		return true
	}
	_, ok := b.stages[target]
	return ok
}

func containsIntent(domain []core.Intent, v core.Intent) bool {
	for _, d := range domain {
		if d == v {
			return true
		}
	}
	return false
}

func joinErrs(errs []string) string {
	out := errs[0]
	for _, e := range errs[1:] {
		out += "; " + e
	}
	return out
}
