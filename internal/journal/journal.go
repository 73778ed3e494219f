// Package journal records completion events in a local SQLite database.
// Every completion of a recurring task is an advance, not a new row in the
// category, so the journal is the only place the history of advances exists.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Schema for the journal database
const schema = `
CREATE TABLE IF NOT EXISTS completions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    task_id TEXT NOT NULL,
    task_text TEXT,
    category_id TEXT,
    previous_due TEXT,
    next_due TEXT,
    terminal INTEGER NOT NULL,
    completed_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_completions_task ON completions(task_id);
CREATE INDEX IF NOT EXISTS idx_completions_at ON completions(completed_at);
`

// Entry is one recorded completion. For a recurring task that advanced,
// NextDue holds the rewritten due date and Terminal is false; for a
// non-recurring or exhausted task, Terminal is true.
type Entry struct {
	TaskID      string
	TaskText    string
	CategoryID  string
	PreviousDue string
	NextDue     string
	Terminal    bool
	CompletedAt time.Time
}

// Stats summarizes recorded completions.
type Stats struct {
	Total    int
	Advanced int
	Terminal int
}

// Recorder writes and reads the completion journal.
type Recorder struct {
	db *sql.DB
}

// Open opens or creates the journal database at the given path.
func Open(dbPath string) (*Recorder, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}

	return &Recorder{db: db}, nil
}

// Close closes the database connection.
func (r *Recorder) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Record appends one completion entry.
func (r *Recorder) Record(ctx context.Context, e Entry) error {
	at := e.CompletedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO completions (task_id, task_text, category_id, previous_due, next_due, terminal, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.TaskID, e.TaskText, e.CategoryID, e.PreviousDue, e.NextDue, boolToInt(e.Terminal), at.Unix())
	return err
}

// StatsSince summarizes completions recorded at or after since.
func (r *Recorder) StatsSince(ctx context.Context, since time.Time) (Stats, error) {
	var s Stats
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN terminal = 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN terminal = 1 THEN 1 ELSE 0 END), 0)
		FROM completions WHERE completed_at >= ?
	`, since.Unix()).Scan(&s.Total, &s.Advanced, &s.Terminal)
	if err != nil {
		return Stats{}, err
	}
	return s, nil
}

// Recent returns the most recent entries, newest first.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT task_id, task_text, category_id, previous_due, next_due, terminal, completed_at
		FROM completions ORDER BY completed_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var terminal int
		var at int64
		if err := rows.Scan(&e.TaskID, &e.TaskText, &e.CategoryID, &e.PreviousDue, &e.NextDue, &terminal, &at); err != nil {
			return nil, err
		}
		e.Terminal = terminal != 0
		e.CompletedAt = time.Unix(at, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
