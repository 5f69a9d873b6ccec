package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

const (
	driverName  = "sqlite"
	maxAttempts = 5
)

// CallRecord is one finished tool invocation.
type CallRecord struct {
	ID        string
	CallID    string
	Tool      string
	Project   string
	Context   string
	Modes     []string
	Outcome   string
	ErrorCode string
	Message   string
	StartedAt time.Time
	Duration  time.Duration
}

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

type Store struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
}

func Open(path string) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("history path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("history path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory %q: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(2000)&_pragma=journal_mode(WAL)", cleanPath)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite history %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite history %q: %w", cleanPath, err)
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanPath, err)
	}

	return &Store{path: cleanPath, db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// SaveCalls writes a batch in one transaction. Records without an ID get a ULID.
func (s *Store) SaveCalls(records []CallRecord) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	const query = `
INSERT INTO tool_calls (
  id, call_id, tool, project, context_name, modes, outcome, error_code, message, started_at_utc, duration_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING
`
	return s.withRetry("save tool calls", func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		stmt, err := tx.Prepare(query)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		defer stmt.Close()

		for i := range records {
			rec := &records[i]
			if rec.ID == "" {
				rec.ID = ulid.Make().String()
			}
			started := rec.StartedAt
			if started.IsZero() {
				started = time.Now()
			}
			if _, err := stmt.Exec(
				rec.ID,
				rec.CallID,
				rec.Tool,
				rec.Project,
				rec.Context,
				strings.Join(rec.Modes, ","),
				rec.Outcome,
				rec.ErrorCode,
				rec.Message,
				started.UTC().Format(time.RFC3339Nano),
				rec.Duration.Milliseconds(),
			); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
		return tx.Commit()
	})
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(limit int) ([]CallRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
SELECT id, call_id, tool, project, context_name, modes, outcome, error_code, message, started_at_utc, duration_ms
FROM tool_calls
ORDER BY started_at_utc DESC, id DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent tool calls: %w", err)
	}
	defer rows.Close()

	out := make([]CallRecord, 0, limit)
	for rows.Next() {
		var (
			rec        CallRecord
			modes      string
			startedRaw string
			durationMs int64
		)
		if err := rows.Scan(&rec.ID, &rec.CallID, &rec.Tool, &rec.Project, &rec.Context, &modes, &rec.Outcome, &rec.ErrorCode, &rec.Message, &startedRaw, &durationMs); err != nil {
			return nil, fmt.Errorf("scan tool call: %w", err)
		}
		if modes != "" {
			rec.Modes = strings.Split(modes, ",")
		}
		rec.StartedAt, _ = time.Parse(time.RFC3339Nano, startedRaw)
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountByOutcome returns per-outcome call counts for a tool, or for all tools
// when tool is empty.
func (s *Store) CountByOutcome(tool string) (map[string]int, error) {
	query := `SELECT outcome, COUNT(*) FROM tool_calls`
	args := []any{}
	if tool != "" {
		query += ` WHERE tool = ?`
		args = append(args, tool)
	}
	query += ` GROUP BY outcome`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("count tool calls: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan tool call count: %w", err)
		}
		out[outcome] = n
	}
	return out, rows.Err()
}

func (s *Store) withRetry(op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isLockError(err) || attempt == maxAttempts {
			break
		}
		time.Sleep(time.Duration(attempt*25) * time.Millisecond)
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}
