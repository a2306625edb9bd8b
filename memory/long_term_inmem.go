package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryLongTerm is a process-local LongTermStore used as the default when
// no database is wired, and in tests.
type InMemoryLongTerm struct {
	mu      sync.RWMutex
	records []Record
}

// NewInMemoryLongTerm creates an empty store.
func NewInMemoryLongTerm() *InMemoryLongTerm {
	return &InMemoryLongTerm{}
}

// Save implements LongTermStore.
func (s *InMemoryLongTerm) Save(ctx context.Context, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if r.ID == "" {
			r.ID = "mem-" + uuid.NewString()
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = time.Now()
		}
		if r.UpdatedAt.IsZero() {
			r.UpdatedAt = r.CreatedAt
		}
		s.records = append(s.records, r)
	}
	return nil
}

// Search implements LongTermStore.
func (s *InMemoryLongTerm) Search(ctx context.Context, userID, agentID, query string, minImportance float64, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	query = strings.TrimSpace(query)

	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Record{}
	for i := range s.records {
		r := &s.records[i]
		if r.UserID != userID || r.Importance < minImportance {
			continue
		}
		if agentID != "" && r.AgentID != agentID {
			continue
		}
		if query != "" && !strings.Contains(r.Content, query) && !strings.Contains(r.Category, query) {
			continue
		}
		r.AccessedAt = now
		out = append(out, *r)
	}
	sortNewestFirst(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Recent implements LongTermStore.
func (s *InMemoryLongTerm) Recent(ctx context.Context, userID, agentID string, limit int) ([]Record, error) {
	return s.Search(ctx, userID, agentID, "", 0, limit)
}

// Cleanup implements LongTermStore.
func (s *InMemoryLongTerm) Cleanup(ctx context.Context, cutoff time.Time, maxImportance float64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	removed := 0
	for _, r := range s.records {
		if r.CreatedAt.Before(cutoff) && r.Importance < maxImportance {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return removed, nil
}

func sortNewestFirst(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
}
