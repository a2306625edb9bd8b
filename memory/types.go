// Package memory implements the two-tier conversation memory: a short-term
// store of session exchanges keyed by user, day and session, and a long-term
// store of facts extracted per user and agent with importance scores. A
// Manager ties both tiers to the run pipeline: synchronous bounded-time
// appends after each run, asynchronous fact extraction, and periodic cleanup
// of low-importance facts.
package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes short-term entry payloads.
type Kind string

const (
	KindMessage Kind = "message"
	KindSummary Kind = "summary"
)

// Type is the long-term classification of an extracted fact.
type Type string

const (
	TypeSemantic   Type = "semantic"
	TypeEpisodic   Type = "episodic"
	TypeProcedural Type = "procedural"
)

// Types lists every long-term memory type, in extraction bucket order.
var Types = []Type{TypeSemantic, TypeEpisodic, TypeProcedural}

// Entry is one short-term record: a complete user/bot exchange of one turn,
// or a rolling summary of the session. Both sides of a turn live in one entry
// so one conversational exchange is always one row.
type Entry struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	AgentID   string    `json:"agent_id,omitempty"`
	User      string    `json:"user,omitempty"`
	Bot       string    `json:"bot"`
	CreatedAt time.Time `json:"created_at"`
}

// Record is one long-term fact extracted from conversation under one agent. A
// fact appearing under several categories yields one record per category.
type Record struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	AgentID    string    `json:"agent_id,omitempty"`
	Type       Type      `json:"memory_type"`
	Category   string    `json:"category"`
	Content    string    `json:"content"`
	Importance float64   `json:"importance"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	AccessedAt time.Time `json:"accessed_at,omitempty"`
}

// SessionKey addresses one short-term session bucket. Sessions without an
// explicit ID get a generated "unknown" bucket so their messages are never
// mixed into another session.
//
// Keys carry a "mem:" namespace prefix on top of the user/date/session parts
// so short-term buckets never collide with other data when the backing store
// shares its keyspace.
func SessionKey(userID string, day time.Time, sessionID string) string {
	if sessionID == "" {
		sessionID = "unknown_" + uuid.NewString()
	}
	return fmt.Sprintf("mem:%s:%s:%s", userID, day.UTC().Format("2006-01-02"), sessionID)
}

// ShortTermStore holds raw session transcripts.
type ShortTermStore interface {
	// Append adds an entry to the session bucket identified by key.
	Append(ctx context.Context, key string, entry Entry) error

	// Recent returns up to limit latest entries of a bucket in
	// chronological order.
	Recent(ctx context.Context, key string, limit int) ([]Entry, error)

	// Keys lists buckets of a user for one day.
	Keys(ctx context.Context, userID string, day time.Time) ([]string, error)
}

// LongTermStore persists extracted facts.
type LongTermStore interface {
	// Save inserts one record per fact and category.
	Save(ctx context.Context, records []Record) error

	// Search returns a user's records under one agent matching query with
	// importance at or above minImportance, newest first. An empty agentID
	// matches every agent. Returned records are stamped as accessed.
	Search(ctx context.Context, userID, agentID, query string, minImportance float64, limit int) ([]Record, error)

	// Recent returns a user's newest records under one agent. An empty
	// agentID matches every agent.
	Recent(ctx context.Context, userID, agentID string, limit int) ([]Record, error)

	// Cleanup deletes records older than cutoff whose importance is below
	// maxImportance, returning the number removed. Safe to repeat.
	Cleanup(ctx context.Context, cutoff time.Time, maxImportance float64) (int, error)
}
