// Package registry maps agent codes to their compiled graphs, classifiers
// and declared intent sets, plus the intent redirect table that lets one
// agent's classification hand a request to another agent.
package registry

import (
	"fmt"
	"sync"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/graph"
	"github.com/hupe1980/dialogmesh/router"
)

// Binding couples an agent code with everything the engine needs to serve it.
type Binding struct {
	// Code is the external identifier requests address the agent by.
	Code string

	// Graph is the agent's compiled stage graph.
	Graph *graph.Graph

	// Classifier assigns one of Intents to each request.
	Classifier router.Classifier

	// Intents is the closed set of intents the agent accepts.
	Intents []core.Intent
}

// Registry is the concurrency-safe binding table. Registration fails closed:
// an invalid binding is rejected whole and the previous state stays intact.
type Registry struct {
	mu        sync.RWMutex
	agents    map[string]Binding
	redirects map[core.Intent]string
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		agents:    make(map[string]Binding),
		redirects: make(map[core.Intent]string),
	}
}

// RegisterAgent validates and stores a binding.
func (r *Registry) RegisterAgent(b Binding) error {
	if b.Code == "" {
		return &core.ConfigError{Component: "registry", Reason: "empty agent code"}
	}
	if b.Graph == nil {
		return &core.ConfigError{Component: "agent " + b.Code, Reason: "nil graph"}
	}
	if b.Classifier == nil {
		return &core.ConfigError{Component: "agent " + b.Code, Reason: "nil classifier"}
	}
	if len(b.Intents) == 0 {
		return &core.ConfigError{Component: "agent " + b.Code, Reason: "empty intent set"}
	}
	seen := make(map[core.Intent]struct{}, len(b.Intents))
	for _, intent := range b.Intents {
		if intent == "" {
			return &core.ConfigError{Component: "agent " + b.Code, Reason: "empty intent"}
		}
		if _, dup := seen[intent]; dup {
			return &core.ConfigError{
				Component: "agent " + b.Code,
				Reason:    fmt.Sprintf("duplicate intent %q", intent),
			}
		}
		seen[intent] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[b.Code]; exists {
		return &core.ConfigError{
			Component: "registry",
			Reason:    fmt.Sprintf("agent %q already registered", b.Code),
		}
	}
	r.agents[b.Code] = b
	return nil
}

// BindIntent redirects requests classified with intent to the named agent.
// The target agent must already be registered and accept the intent.
func (r *Registry) BindIntent(intent core.Intent, agentCode string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.agents[agentCode]
	if !ok {
		return &core.ConfigError{
			Component: "registry",
			Reason:    fmt.Sprintf("intent %q bound to unknown agent %q", intent, agentCode),
		}
	}
	if !accepts(b, intent) {
		return &core.ConfigError{
			Component: "registry",
			Reason:    fmt.Sprintf("agent %q does not accept intent %q", agentCode, intent),
		}
	}
	if existing, bound := r.redirects[intent]; bound && existing != agentCode {
		return &core.ConfigError{
			Component: "registry",
			Reason:    fmt.Sprintf("intent %q already bound to agent %q", intent, existing),
		}
	}
	r.redirects[intent] = agentCode
	return nil
}

// Agent returns the binding for an agent code.
func (r *Registry) Agent(code string) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.agents[code]
	return b, ok
}

// AgentForIntent resolves the redirect table. The second return is false when
// the intent has no redirect.
func (r *Registry) AgentForIntent(intent core.Intent) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	code, ok := r.redirects[intent]
	if !ok {
		return Binding{}, false
	}
	b, ok := r.agents[code]
	return b, ok
}

// Codes lists the registered agent codes in no particular order.
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]string, 0, len(r.agents))
	for code := range r.agents {
		codes = append(codes, code)
	}
	return codes
}

func accepts(b Binding, intent core.Intent) bool {
	for _, a := range b.Intents {
		if a == intent {
			return true
		}
	}
	return false
}
