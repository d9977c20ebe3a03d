// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package history keeps the reports of past recovery sweeps in SQLite.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	xglog "github.com/yoyostream/transcoderd/internal/log"
	"github.com/yoyostream/transcoderd/internal/persistence/sqlite"
	"github.com/yoyostream/transcoderd/internal/recovery"
)

// ErrCorrupt is returned by Check when the integrity check reports damage.
var ErrCorrupt = errors.New("history database corrupt")

const schema = `
CREATE TABLE IF NOT EXISTS sweeps (
	id             TEXT PRIMARY KEY,
	mode           TEXT    NOT NULL,
	started_at     INTEGER NOT NULL,
	duration_ms    INTEGER NOT NULL,
	scanned        INTEGER NOT NULL,
	fixed          INTEGER NOT NULL,
	renamed        INTEGER NOT NULL,
	repaired       INTEGER NOT NULL,
	end_time_fixed INTEGER NOT NULL,
	collisions     INTEGER NOT NULL,
	failed         INTEGER NOT NULL,
	cancelled      INTEGER NOT NULL,
	error          TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_sweeps_started_at ON sweeps(started_at);
`

// Store persists sweep reports and keeps the newest Retain of them.
type Store struct {
	db     *sql.DB
	retain int
	logger zerolog.Logger
}

// Open opens or creates the store at path.
func Open(path string, retain int) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("history: create dir: %w", err)
	}
	db, err := sqlite.Open(path, sqlite.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: migrate: %w", err)
	}
	return &Store{db: db, retain: retain, logger: xglog.WithComponent("history")}, nil
}

// SaveReport stores r and prunes reports beyond the retention limit.
func (s *Store) SaveReport(ctx context.Context, r recovery.Report) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sweeps
			(id, mode, started_at, duration_ms, scanned, fixed, renamed, repaired,
			 end_time_fixed, collisions, failed, cancelled, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.Mode), r.StartedAt.UnixMilli(), r.Duration.Milliseconds(),
		r.Scanned, r.Fixed, r.Renamed, r.Repaired, r.EndTimeFixed, r.Collisions, r.Failed,
		boolInt(r.Cancelled), r.Error,
	)
	if err != nil {
		return fmt.Errorf("history: insert: %w", err)
	}

	if s.retain > 0 {
		res, err := s.db.ExecContext(ctx, `
			DELETE FROM sweeps WHERE id NOT IN (
				SELECT id FROM sweeps ORDER BY started_at DESC, rowid DESC LIMIT ?
			)`, s.retain)
		if err != nil {
			return fmt.Errorf("history: prune: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			s.logger.Debug().Int64("pruned", n).Msg("pruned old sweep reports")
		}
	}
	return nil
}

// List returns up to limit reports, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]recovery.Report, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mode, started_at, duration_ms, scanned, fixed, renamed, repaired,
		       end_time_fixed, collisions, failed, cancelled, error
		FROM sweeps ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	out := []recovery.Report{}
	for rows.Next() {
		var (
			r          recovery.Report
			mode       string
			startedAt  int64
			durationMs int64
			cancelled  int
		)
		if err := rows.Scan(&r.ID, &mode, &startedAt, &durationMs, &r.Scanned, &r.Fixed,
			&r.Renamed, &r.Repaired, &r.EndTimeFixed, &r.Collisions, &r.Failed,
			&cancelled, &r.Error); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		r.Mode = recovery.Mode(mode)
		r.StartedAt = time.UnixMilli(startedAt)
		r.Duration = time.Duration(durationMs) * time.Millisecond
		r.Cancelled = cancelled != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// Check runs a quick integrity check.
func (s *Store) Check(ctx context.Context) error {
	issues, err := sqlite.Verify(ctx, s.db, false)
	if err != nil {
		return err
	}
	if len(issues) > 0 {
		return fmt.Errorf("%w: %v", ErrCorrupt, issues)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
