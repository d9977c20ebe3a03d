// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package workday

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// snapshotPath is where the calendar of year is persisted.
func snapshotPath(dir string, year int) string {
	return filepath.Join(dir, fmt.Sprintf("workday-%d.json", year))
}

// writeSnapshot persists cal atomically (fsync + rename).
func writeSnapshot(dir string, cal Calendar) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	data, err := json.Marshal(cal)
	if err != nil {
		return fmt.Errorf("encode calendar: %w", err)
	}

	pending, err := renameio.NewPendingFile(snapshotPath(dir, cal.Year), renameio.WithPermissions(0o640))
	if err != nil {
		return fmt.Errorf("create pending snapshot: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// readSnapshot loads a persisted calendar.
func readSnapshot(dir string, year int) (Calendar, error) {
	data, err := os.ReadFile(snapshotPath(dir, year))
	if err != nil {
		return Calendar{}, err
	}
	var cal Calendar
	if err := json.Unmarshal(data, &cal); err != nil {
		return Calendar{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if cal.Year != year {
		return Calendar{}, fmt.Errorf("snapshot year mismatch: want %d, got %d", year, cal.Year)
	}
	return cal, nil
}
