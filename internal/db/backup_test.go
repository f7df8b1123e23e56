package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupCopiesSnapshots(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 1, 3, 0, 0, 0, time.UTC)
	require.NoError(t, database.RecordSnapshot(ctx, &Snapshot{CalendarID: "c1", EncodedName: "n", SavedAt: now}))

	dir := filepath.Join(t.TempDir(), "backups")
	path, err := database.Backup(ctx, dir, now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "journal_20260201_030000.db"), path)

	restored, err := NewDB(path)
	require.NoError(t, err)
	defer restored.Close()
	last, err := restored.LastSnapshot(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "n", last.EncodedName)

	_, err = database.Backup(ctx, dir, now)
	assert.Error(t, err, "same timestamp must not overwrite")

	_, err = database.Backup(ctx, "", now)
	assert.Error(t, err)
}

func TestCleanupBackups(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	files := []struct {
		name string
		age  time.Duration
	}{
		{"journal_old.db", 10 * 24 * time.Hour},
		{"journal_new.db", time.Hour},
		{"other_old.db", 10 * 24 * time.Hour},
		{"journal_old.txt", 10 * 24 * time.Hour},
	}
	for _, f := range files {
		p := filepath.Join(dir, f.name)
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
		mod := now.Add(-f.age)
		require.NoError(t, os.Chtimes(p, mod, mod))
	}

	removed, err := CleanupBackups(dir, now.Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	left, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range left {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"journal_new.db", "other_old.db", "journal_old.txt"}, names)

	removed, err = CleanupBackups(filepath.Join(dir, "missing"), now)
	require.NoError(t, err)
	assert.Zero(t, removed)
}
