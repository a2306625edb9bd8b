package memory

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteLongTerm is the canonical persistent LongTermStore.
type SQLiteLongTerm struct {
	db *sql.DB
}

// NewSQLiteLongTerm creates/opens the memory database at path.
func NewSQLiteLongTerm(path string) (*SQLiteLongTerm, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create memory db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Single-process memory service. Use one shared connection to avoid
	// writer lock contention with SQLite under concurrent goroutines.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteLongTerm{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the underlying database handle.
func (s *SQLiteLongTerm) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteLongTerm) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			agent_id TEXT NOT NULL DEFAULT '',
			memory_type TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			importance REAL NOT NULL DEFAULT 1,
			source TEXT NOT NULL DEFAULT '',
			created_at_ms INTEGER NOT NULL,
			updated_at_ms INTEGER NOT NULL,
			accessed_at_ms INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS memories_user_idx ON memories(user_id, agent_id, created_at_ms DESC);`,
		`CREATE INDEX IF NOT EXISTS memories_cleanup_idx ON memories(created_at_ms, importance);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init sqlite schema failed on %q: %w", trimSQL(stmt), err)
		}
	}
	return nil
}

func trimSQL(stmt string) string {
	line := strings.TrimSpace(stmt)
	if len(line) > 96 {
		return line[:96] + "..."
	}
	return line
}

// Save implements LongTermStore.
func (s *SQLiteLongTerm) Save(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save memories begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO memories(id, user_id, agent_id, memory_type, category, content, importance, source, created_at_ms, updated_at_ms)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("save memories prepare: %w", err)
	}
	defer stmt.Close()

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
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.UserID, r.AgentID, string(r.Type), r.Category, r.Content, r.Importance, r.Source,
			r.CreatedAt.UnixMilli(), r.UpdatedAt.UnixMilli(),
		); err != nil {
			return fmt.Errorf("save memory record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save memories commit: %w", err)
	}
	return nil
}

// Search implements LongTermStore.
func (s *SQLiteLongTerm) Search(ctx context.Context, userID, agentID, query string, minImportance float64, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	query = strings.TrimSpace(query)

	rows, err := s.db.QueryContext(ctx, `
SELECT id, user_id, agent_id, memory_type, category, content, importance, source, created_at_ms, updated_at_ms, accessed_at_ms
FROM memories
WHERE user_id = ?
AND (? = '' OR agent_id = ?)
AND importance >= ?
AND (? = '' OR content LIKE '%' || ? || '%' OR category LIKE '%' || ? || '%')
ORDER BY created_at_ms DESC
LIMIT ?`, userID, agentID, agentID, minImportance, query, query, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	s.touch(ctx, records)
	return records, nil
}

// Recent implements LongTermStore.
func (s *SQLiteLongTerm) Recent(ctx context.Context, userID, agentID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, user_id, agent_id, memory_type, category, content, importance, source, created_at_ms, updated_at_ms, accessed_at_ms
FROM memories
WHERE user_id = ?
AND (? = '' OR agent_id = ?)
ORDER BY created_at_ms DESC
LIMIT ?`, userID, agentID, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent memories: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	s.touch(ctx, records)
	return records, nil
}

// touch stamps read records as accessed. Access-time bookkeeping is best
// effort and never fails the read.
func (s *SQLiteLongTerm) touch(ctx context.Context, records []Record) {
	if len(records) == 0 {
		return
	}
	now := time.Now()
	args := make([]any, 0, len(records)+1)
	args = append(args, now.UnixMilli())
	placeholders := make([]string, len(records))
	for i := range records {
		placeholders[i] = "?"
		args = append(args, records[i].ID)
		records[i].AccessedAt = now
	}
	_, _ = s.db.ExecContext(ctx,
		"UPDATE memories SET accessed_at_ms = ? WHERE id IN ("+strings.Join(placeholders, ", ")+")", args...)
}

// Cleanup implements LongTermStore. The predicate is absolute, so re-running
// with the same cutoff deletes nothing new.
func (s *SQLiteLongTerm) Cleanup(ctx context.Context, cutoff time.Time, maxImportance float64) (int, error) {
	res, err := s.db.ExecContext(ctx, `
DELETE FROM memories
WHERE created_at_ms < ?
AND importance < ?`, cutoff.UnixMilli(), maxImportance)
	if err != nil {
		return 0, fmt.Errorf("cleanup memories: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	out := []Record{}
	for rows.Next() {
		var r Record
		var memType string
		var createdMS, updatedMS, accessedMS int64
		if err := rows.Scan(&r.ID, &r.UserID, &r.AgentID, &memType, &r.Category, &r.Content, &r.Importance, &r.Source,
			&createdMS, &updatedMS, &accessedMS); err != nil {
			return nil, fmt.Errorf("scan memory record: %w", err)
		}
		r.Type = Type(memType)
		r.CreatedAt = time.UnixMilli(createdMS)
		r.UpdatedAt = time.UnixMilli(updatedMS)
		if accessedMS > 0 {
			r.AccessedAt = time.UnixMilli(accessedMS)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory records: %w", err)
	}
	return out, nil
}
