// Package buildlog persists pipeline lifecycle events to SQLite so build
// history survives restarts and can be inspected after the fact.
package buildlog

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Event is one recorded pipeline occurrence.
type Event struct {
	ID         int64
	PipelineID string
	Repo       string
	Stage      string
	EventType  string
	Detail     string
	Timestamp  time.Time
}

// Event types recorded by the orchestrator.
const (
	EventStarted      = "started"
	EventStageOK      = "stage_ok"
	EventStageFailed  = "stage_failed"
	EventFinished     = "finished"
	EventFailed       = "failed"
	EventPrecondition = "precondition_failed"
)

// Store is a SQLite-backed pipeline event log. Use ":memory:" for an
// in-memory database, or a file path for persistent storage.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection keeps ":memory:" databases coherent across the pool.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS pipeline_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		pipeline_id TEXT NOT NULL,
		repo TEXT NOT NULL,
		stage TEXT,
		event_type TEXT NOT NULL,
		detail TEXT,
		timestamp INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pipeline_id ON pipeline_events(pipeline_id);
	CREATE INDEX IF NOT EXISTS idx_repo ON pipeline_events(repo);
	CREATE INDEX IF NOT EXISTS idx_pipeline_timestamp ON pipeline_events(timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append records one pipeline event.
func (s *Store) Append(ctx context.Context, pipelineID, repo, stage, eventType, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO pipeline_events (pipeline_id, repo, stage, event_type, detail, timestamp) VALUES (?, ?, ?, ?, ?, ?)",
		pipelineID, repo, stage, eventType, detail, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert pipeline event: %w", err)
	}

	return nil
}

// ByPipeline retrieves all events for one pipeline run, in insertion order.
func (s *Store) ByPipeline(ctx context.Context, pipelineID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, pipeline_id, repo, stage, event_type, detail, timestamp FROM pipeline_events WHERE pipeline_id = ? ORDER BY id",
		pipelineID,
	)
	if err != nil {
		return nil, fmt.Errorf("query pipeline events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ByRepo retrieves the most recent events for a repository, newest first,
// capped at limit.
func (s *Store) ByRepo(ctx context.Context, repo string, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, pipeline_id, repo, stage, event_type, detail, timestamp FROM pipeline_events WHERE repo = ? ORDER BY id DESC LIMIT ?",
		repo, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query pipeline events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// PruneBefore deletes events recorded before cutoff and reports how many
// rows were removed.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM pipeline_events WHERE timestamp < ?", cutoff.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("prune pipeline events: %w", err)
	}
	return res.RowsAffected()
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var e Event
		var stage, detail sql.NullString
		var timestampUnix int64

		if err := rows.Scan(&e.ID, &e.PipelineID, &e.Repo, &stage, &e.EventType, &detail, &timestampUnix); err != nil {
			return nil, fmt.Errorf("scan pipeline event: %w", err)
		}

		e.Stage = stage.String
		e.Detail = detail.String
		e.Timestamp = time.Unix(timestampUnix, 0)
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return events, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
