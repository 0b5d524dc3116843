// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists research tasks in SQLite. It is the durable half
// of the orchestrator's task state; the orchestrator reaches it only
// through CreateTask, UpdateTask, ReadTask and ListTasks.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/deep-research/pkg/types"
)

// ErrNotFound is returned when no task has the requested id.
var ErrNotFound = errors.New("task not found")

const defaultPath = "data/research.db"

// Store manages the research task database.
type Store struct {
	db *sqlx.DB
}

// NewStore opens or creates the database at cfg.Path and creates the
// schema if it does not exist.
func NewStore(cfg types.StoreConfig) (*Store, error) {
	path := cfg.Path
	if path == "" {
		path = defaultPath
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer avoids SQLITE_BUSY between workers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS research_tasks (
			id TEXT PRIMARY KEY,
			query TEXT NOT NULL,
			strategy TEXT NOT NULL,
			status TEXT NOT NULL,
			progress REAL NOT NULL DEFAULT 0,
			progress_message TEXT NOT NULL DEFAULT '',
			result_knowledge TEXT NOT NULL DEFAULT '',
			result_sources TEXT NOT NULL DEFAULT '',
			result_metadata TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			completed_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_research_tasks_status ON research_tasks(status)`,
		`CREATE INDEX IF NOT EXISTS idx_research_tasks_created ON research_tasks(created_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// CreateTask inserts a pending task and returns its id.
func (s *Store) CreateTask(ctx context.Context, query, strategy string) (string, error) {
	now := time.Now().UTC()
	rec := types.TaskRecord{
		ID:              uuid.NewString(),
		Query:           query,
		Strategy:        strategy,
		Status:          types.StatusPending,
		ProgressMessage: "Queued",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO research_tasks
		(id, query, strategy, status, progress, progress_message, created_at, updated_at)
		VALUES (:id, :query, :strategy, :status, :progress, :progress_message, :created_at, :updated_at)`, rec)
	if err != nil {
		return "", fmt.Errorf("inserting task: %w", err)
	}
	return rec.ID, nil
}

// UpdateTask applies the non-nil fields of u to task id.
func (s *Store) UpdateTask(ctx context.Context, id string, u types.TaskUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if u.Status != nil {
		add("status", string(*u.Status))
	}
	if u.Progress != nil {
		add("progress", *u.Progress)
	}
	if u.ProgressMessage != nil {
		add("progress_message", *u.ProgressMessage)
	}
	if u.ResultKnowledge != nil {
		add("result_knowledge", *u.ResultKnowledge)
	}
	if u.ResultSources != nil {
		add("result_sources", *u.ResultSources)
	}
	if u.ResultMetadata != nil {
		add("result_metadata", *u.ResultMetadata)
	}
	if u.ErrorMessage != nil {
		add("error_message", *u.ErrorMessage)
	}
	if u.CompletedAt != nil {
		add("completed_at", u.CompletedAt.UTC())
	}
	args = append(args, id)

	q := "UPDATE research_tasks SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	res, err := s.db.ExecContext(ctx, s.db.Rebind(q), args...)
	if err != nil {
		return fmt.Errorf("updating task %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating task %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// ReadTask returns task id.
func (s *Store) ReadTask(ctx context.Context, id string) (types.TaskRecord, error) {
	var rec types.TaskRecord
	err := s.db.GetContext(ctx, &rec, `SELECT * FROM research_tasks WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return rec, fmt.Errorf("reading task %s: %w", id, err)
	}
	return rec, nil
}

// ListTasks returns tasks newest first. An empty status lists every task;
// limit <= 0 means no limit.
func (s *Store) ListTasks(ctx context.Context, status types.Status, limit int) ([]types.TaskRecord, error) {
	q := `SELECT * FROM research_tasks`
	var args []any
	if status != "" {
		q += ` WHERE status = ?`
		args = append(args, string(status))
	}
	q += ` ORDER BY created_at DESC, id`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	var recs []types.TaskRecord
	if err := s.db.SelectContext(ctx, &recs, q, args...); err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	return recs, nil
}
