package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_EnablesWAL(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "wal.sqlite"), DefaultConfig())
	require.NoError(t, err)
	defer db.Close()

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode;").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var busy int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout;").Scan(&busy))
	assert.Equal(t, 5000, busy)
}

func TestVerify_Healthy(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "ok.sqlite"), DefaultConfig())
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY, data TEXT)")
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		_, err = db.Exec("INSERT INTO t (data) VALUES (?)", "payload")
		require.NoError(t, err)
	}

	for _, full := range []bool{false, true} {
		issues, err := Verify(context.Background(), db, full)
		require.NoError(t, err)
		assert.Nil(t, issues)
	}
}

func TestOpen_BadPath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "dir", "x.sqlite"), DefaultConfig())
	assert.Error(t, err)
}
