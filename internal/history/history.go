// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/knightcli/knight/internal/plan"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrRunNotFound   = errors.New("run not found")
	ErrDatabaseError = errors.New("database error")
)

// =============================================================================
// SCHEMA
// =============================================================================

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    goal        TEXT NOT NULL,
    interactive INTEGER NOT NULL DEFAULT 0,
    step_count  INTEGER NOT NULL DEFAULT 0,
    outcome     TEXT NOT NULL DEFAULT 'running',
    started_at  INTEGER NOT NULL,
    finished_at INTEGER
);

CREATE TABLE IF NOT EXISTS steps (
    run_id    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    idx       INTEGER NOT NULL,
    command   TEXT NOT NULL,
    arguments TEXT NOT NULL DEFAULT '{}',
    status    TEXT NOT NULL,
    detail    TEXT NOT NULL DEFAULT '',
    at        INTEGER NOT NULL,
    PRIMARY KEY (run_id, idx)
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
`

// =============================================================================
// STORE
// =============================================================================

// Run is one recorded plan execution.
type Run struct {
	ID          string
	Goal        string
	Interactive bool
	StepCount   int
	Outcome     string
	StartedAt   time.Time
	FinishedAt  time.Time // zero while running
}

// StepRecord is one recorded step disposition within a run.
type StepRecord struct {
	Index     int
	Command   string
	Arguments map[string]any
	Status    string
	Detail    string
	At        time.Time
}

// Store is a SQLite-backed audit log of plan runs. It implements
// plan.Recorder.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// RECORDER
// =============================================================================

// BeginRun registers a plan as started.
func (s *Store) BeginRun(p *plan.Plan, interactive bool) error {
	_, err := s.db.Exec(
		`INSERT INTO runs (id, goal, interactive, step_count, started_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Goal, boolInt(interactive), p.NonTerminalCount(), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// RecordStep stores the disposition of a single step.
func (s *Store) RecordStep(planID string, index int, step plan.Step, status, detail string) error {
	args := "{}"
	if len(step.Arguments) > 0 {
		if encoded, err := json.Marshal(step.Arguments); err == nil {
			args = string(encoded)
		}
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO steps (run_id, idx, command, arguments, status, detail, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		planID, index, step.Command, args, status, detail, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// EndRun marks a run finished with its outcome.
func (s *Store) EndRun(planID string, outcome string) error {
	res, err := s.db.Exec(
		`UPDATE runs SET outcome = ?, finished_at = ? WHERE id = ?`,
		outcome, time.Now().Unix(), planID,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// =============================================================================
// QUERIES
// =============================================================================

// Recent returns the most recent runs, newest first.
func (s *Store) Recent(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(
		`SELECT id, goal, interactive, step_count, outcome, started_at, COALESCE(finished_at, 0)
		 FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var interactive int
		var started, finished int64
		if err := rows.Scan(&r.ID, &r.Goal, &interactive, &r.StepCount, &r.Outcome, &started, &finished); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		r.Interactive = interactive != 0
		r.StartedAt = time.Unix(started, 0)
		if finished != 0 {
			r.FinishedAt = time.Unix(finished, 0)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Steps returns the recorded steps of one run, in order.
func (s *Store) Steps(runID string) ([]StepRecord, error) {
	rows, err := s.db.Query(
		`SELECT idx, command, arguments, status, detail, at
		 FROM steps WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var steps []StepRecord
	for rows.Next() {
		var rec StepRecord
		var args string
		var at int64
		if err := rows.Scan(&rec.Index, &rec.Command, &args, &rec.Status, &rec.Detail, &at); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		if err := json.Unmarshal([]byte(args), &rec.Arguments); err != nil {
			rec.Arguments = map[string]any{}
		}
		rec.At = time.Unix(at, 0)
		steps = append(steps, rec)
	}
	return steps, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
