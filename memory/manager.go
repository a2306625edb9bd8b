package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/logging"
)

// ManagerOptions configure a Manager.
type ManagerOptions struct {
	// WriteTimeout bounds synchronous short-term appends. A slow store may
	// delay the response by at most this much.
	WriteTimeout time.Duration

	// RecentLimit caps the transcript window fed to reads and extraction.
	RecentLimit int

	// CleanupMaxImportance is the importance ceiling below which old records
	// are removed by Cleanup.
	CleanupMaxImportance float64

	Logger logging.Logger
}

// Manager coordinates both memory tiers for the run pipeline. Memory writes
// never fail a run: every error surfaces as *core.MemoryWriteError for the
// caller to log.
type Manager struct {
	stm       ShortTermStore
	ltm       LongTermStore
	extractor *Extractor
	opts      ManagerOptions
}

// NewManager creates a Manager. stm and ltm must be non-nil; extractor may be
// nil, which disables long-term extraction.
func NewManager(stm ShortTermStore, ltm LongTermStore, extractor *Extractor, optFns ...func(o *ManagerOptions)) *Manager {
	opts := ManagerOptions{
		WriteTimeout:         2 * time.Second,
		RecentLimit:          50,
		CleanupMaxImportance: 0.5,
		Logger:               logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Manager{stm: stm, ltm: ltm, extractor: extractor, opts: opts}
}

// AppendTurn writes one completed exchange to the short-term bucket as a
// single entry, bounded by the configured write timeout. The bot side carries
// the full response of the turn, a discussion script included.
func (m *Manager) AppendTurn(ctx context.Context, key, agentID, user, bot string) error {
	return m.append(ctx, key, Entry{
		Kind:    KindMessage,
		AgentID: agentID,
		User:    user,
		Bot:     bot,
	})
}

// AppendSummary writes a rolling session summary to the bucket. Summaries are
// kept apart from the exchanges; ReadSession returns the latest one next to
// the transcript.
func (m *Manager) AppendSummary(ctx context.Context, key, agentID, content string) error {
	return m.append(ctx, key, Entry{
		Kind:    KindSummary,
		AgentID: agentID,
		Bot:     content,
	})
}

func (m *Manager) append(ctx context.Context, key string, entry Entry) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.WriteTimeout)
	defer cancel()

	if err := m.stm.Append(writeCtx, key, entry); err != nil {
		return &core.MemoryWriteError{Tier: "stm", Err: err}
	}
	return nil
}

// ReadRecent returns the latest short-term entries of a bucket.
func (m *Manager) ReadRecent(ctx context.Context, key string) ([]Entry, error) {
	return m.stm.Recent(ctx, key, m.opts.RecentLimit)
}

// ReadSession splits a bucket into its message transcript and the latest
// session summary. The summary is empty when none has been written.
func (m *Manager) ReadSession(ctx context.Context, key string) ([]Entry, string, error) {
	entries, err := m.stm.Recent(ctx, key, m.opts.RecentLimit)
	if err != nil {
		return nil, "", err
	}

	var (
		messages []Entry
		summary  string
	)
	for _, e := range entries {
		if e.Kind == KindSummary {
			summary = e.Bot
			continue
		}
		messages = append(messages, e)
	}
	return messages, summary, nil
}

// ExtractAndSave mines the bucket's transcript into long-term records. It is
// meant to run after the response has been delivered; a cancelled context
// skips the model call entirely.
func (m *Manager) ExtractAndSave(ctx context.Context, userID, agentID, key string) (int, error) {
	if m.extractor == nil {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	transcript, err := m.stm.Recent(ctx, key, m.opts.RecentLimit)
	if err != nil {
		return 0, &core.MemoryWriteError{Tier: "ltm", Err: fmt.Errorf("read transcript: %w", err)}
	}
	records, err := m.extractor.Extract(ctx, userID, agentID, transcript)
	if err != nil {
		return 0, &core.MemoryWriteError{Tier: "ltm", Err: err}
	}
	if len(records) == 0 {
		return 0, nil
	}
	if err := m.ltm.Save(ctx, records); err != nil {
		return 0, &core.MemoryWriteError{Tier: "ltm", Err: err}
	}
	m.opts.Logger.Debug("memories saved", "user", userID, "count", len(records))
	return len(records), nil
}

// Search queries the long-term tier, scoped to one agent unless agentID is
// empty.
func (m *Manager) Search(ctx context.Context, userID, agentID, query string, minImportance float64, limit int) ([]Record, error) {
	return m.ltm.Search(ctx, userID, agentID, query, minImportance, limit)
}

// Recent returns the newest long-term records of a user under one agent.
func (m *Manager) Recent(ctx context.Context, userID, agentID string, limit int) ([]Record, error) {
	return m.ltm.Recent(ctx, userID, agentID, limit)
}

// Cleanup removes long-term records older than maxAge whose importance is
// below the configured ceiling.
func (m *Manager) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	return m.ltm.Cleanup(ctx, cutoff, m.opts.CleanupMaxImportance)
}
