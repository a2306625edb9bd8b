// Package engine orchestrates one conversational run end to end: it resolves
// the agent binding for a request, classifies the user's intent, follows an
// optional intent redirect to another agent, executes that agent's graph and
// streams the resulting events back to the caller, then persists the turn to
// short-term memory and triggers asynchronous long-term extraction.
//
// The Engine is constructed once with functional options and is safe for
// concurrent use. Each Invoke call runs in its own goroutine with an isolated
// state, emitter and cancellable context; runs can be stopped individually by
// their run ID.
package engine
