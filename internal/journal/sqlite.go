// ABOUTME: SQLite implementation of the journal using modernc.org/sqlite
// ABOUTME: Appends fleet events and lists them newest first with filters

package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000

	// timeFormat is fixed width so created_at sorts lexically.
	timeFormat = "2006-01-02T15:04:05.000000000Z07:00"
)

// SQLiteJournal stores events in a SQLite database.
type SQLiteJournal struct {
	db     *sql.DB
	runID  string
	logger *slog.Logger
}

// Open opens (or creates) the journal database at path. Events recorded
// without a RunID are stamped with runID. Parent directories are created if
// needed.
func Open(path, runID string) (*SQLiteJournal, error) {
	logger := slog.Default().With("component", "journal")

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	j := &SQLiteJournal{db: db, runID: runID, logger: logger}
	if err := j.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("journal opened", "path", path, "run_id", runID)
	return j, nil
}

func (j *SQLiteJournal) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS fleet_events (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			agent_id INTEGER NOT NULL,
			kind TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_fleet_events_run ON fleet_events(run_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_fleet_events_agent ON fleet_events(agent_id, created_at);
	`
	_, err := j.db.Exec(schema)
	return err
}

// RunID returns the run ID stamped on events.
func (j *SQLiteJournal) RunID() string {
	return j.runID
}

// Record appends an event. Generates ID, RunID and CreatedAt if not set.
func (j *SQLiteJournal) Record(ctx context.Context, e *Event) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.RunID == "" {
		e.RunID = j.runID
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO fleet_events (id, run_id, agent_id, kind, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.RunID, e.AgentID, string(e.Kind), e.Detail, e.CreatedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("recording %s event: %w", e.Kind, err)
	}
	return nil
}

// List returns events matching f, newest first.
func (j *SQLiteJournal) List(ctx context.Context, f Filter) ([]*Event, error) {
	var (
		where []string
		args  []any
	)
	if f.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, f.RunID)
	}
	if f.AgentID != nil {
		where = append(where, "agent_id = ?")
		args = append(args, *f.AgentID)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	query := "SELECT id, run_id, agent_id, kind, detail, created_at FROM fleet_events"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var (
			e         Event
			kind      string
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.AgentID, &kind, &e.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		e.Kind = Kind(kind)
		e.CreatedAt, err = time.Parse(timeFormat, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// Close closes the database.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
