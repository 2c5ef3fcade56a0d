// Package transcript keeps every agent reply for later review.
package transcript

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const timeLayout = "2006-01-02T15:04:05.000Z"

var reasonPattern = regexp.MustCompile(`(?is)reason:\s*(.*)$`)

// Entry is one stored agent reply.
type Entry struct {
	ID      int64  `json:"id"`
	Time    string `json:"time"`
	AgentID string `json:"model"`
	Message string `json:"message"`
}

// Reason is the trailing rationale of one reply.
type Reason struct {
	Time    string `json:"time"`
	AgentID string `json:"model"`
	Reason  string `json:"reason"`
}

type Store struct {
	mu  sync.Mutex
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the transcript database at path.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("transcript path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

// SetClock replaces the time source for testing.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS logs (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			time    TEXT NOT NULL,
			model   TEXT NOT NULL,
			message TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_logs_time ON logs(time)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("transcript schema: %w", err)
		}
	}
	return nil
}

func (s *Store) handle() (*sql.DB, func() time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, nil, fmt.Errorf("transcript store closed")
	}
	return s.db, s.now, nil
}

// Save stores a reply. The message is trimmed.
func (s *Store) Save(ctx context.Context, agentID, message string) error {
	db, now, err := s.handle()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO logs (time, model, message) VALUES (?, ?, ?)`,
		now().UTC().Format(timeLayout), agentID, strings.TrimSpace(message))
	if err != nil {
		return fmt.Errorf("save transcript for %s: %w", agentID, err)
	}
	return nil
}

// All returns every reply oldest first.
func (s *Store) All(ctx context.Context) ([]Entry, error) {
	db, _, err := s.handle()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT id, time, model, message FROM logs ORDER BY time ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query transcripts: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Time, &e.AgentID, &e.Message); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Reasons extracts the "reason:" text of every reply that has one.
func (s *Store) Reasons(ctx context.Context) ([]Reason, error) {
	entries, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	var out []Reason
	for _, e := range entries {
		if r := ExtractReason(e.Message); r != "" {
			out = append(out, Reason{Time: e.Time, AgentID: e.AgentID, Reason: r})
		}
	}
	return out, nil
}

// ExtractReason returns the text after the first "reason:" marker.
func ExtractReason(message string) string {
	m := reasonPattern.FindStringSubmatch(message)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
