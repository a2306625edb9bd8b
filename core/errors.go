package core

import "fmt"

// RoutingError reports a classification outcome outside the agent's declared
// intent set, or a request naming an unknown agent code.
type RoutingError struct {
	AgentCode string
	Intent    Intent
	Reason    string
}

func (e *RoutingError) Error() string {
	if e.Intent != "" {
		return fmt.Sprintf("routing: agent %q does not accept intent %q: %s", e.AgentCode, e.Intent, e.Reason)
	}
	return fmt.Sprintf("routing: %s (agent %q)", e.Reason, e.AgentCode)
}

// ConfigError reports an invalid graph or binding detected at registration
// time. Registration fails closed on it.
type ConfigError struct {
	Component string
	Reason    string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Component, e.Reason)
}

// StageError wraps a failure inside one graph stage.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %q: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// MemoryWriteError reports a failed memory persistence attempt. Memory writes
// never fail the run; callers log this and continue.
type MemoryWriteError struct {
	Tier string // "stm" or "ltm"
	Err  error
}

func (e *MemoryWriteError) Error() string {
	return fmt.Sprintf("memory write (%s): %v", e.Tier, e.Err)
}

func (e *MemoryWriteError) Unwrap() error { return e.Err }

// ParticipantError reports a failed speaker inside a multi-speaker session.
// The session continues with the remaining speakers.
type ParticipantError struct {
	Speaker string
	Err     error
}

func (e *ParticipantError) Error() string {
	return fmt.Sprintf("participant %q: %v", e.Speaker, e.Err)
}

func (e *ParticipantError) Unwrap() error { return e.Err }
