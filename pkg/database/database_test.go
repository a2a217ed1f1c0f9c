package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "dir", "reconciler.db")
	db, err := Open(context.Background(), Config{Path: path, MaxOpenConns: 4}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpen_CreatesDirectoryAndEnforcesForeignKeys(t *testing.T) {
	db := openTemp(t)

	assert.FileExists(t, db.Path())

	var enforced int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&enforced))
	assert.Equal(t, 1, enforced)

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(context.Background(), Config{}, zap.NewNop())
	assert.Error(t, err)
}

var schemaV2 = fstest.MapFS{
	"001_projects.sql": {Data: []byte(`CREATE TABLE projects (id INTEGER PRIMARY KEY, name TEXT NOT NULL);`)},
	"002_trades.sql": {Data: []byte(`
		CREATE TABLE trades (id INTEGER PRIMARY KEY, project_id INTEGER NOT NULL REFERENCES projects(id));
		CREATE INDEX idx_trades_project ON trades(project_id);`)},
	"README.md": {Data: []byte("not a migration")},
}

func TestMigrator_AppliesPendingOnce(t *testing.T) {
	db := openTemp(t)
	m := NewMigrator(db.DB, zap.NewNop())
	ctx := context.Background()

	applied, err := m.Migrate(ctx, fstest.MapFS{"001_projects.sql": schemaV2["001_projects.sql"]})
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	applied, err = m.Migrate(ctx, schemaV2)
	require.NoError(t, err)
	assert.Equal(t, 1, applied, "only the new migration runs")

	applied, err = m.Migrate(ctx, schemaV2)
	require.NoError(t, err)
	assert.Zero(t, applied)

	version, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	_, err = db.Exec(`INSERT INTO trades (id, project_id) VALUES (1, 99)`)
	assert.Error(t, err, "foreign keys are enforced on migrated tables")
}

func TestMigrator_RefusesNewerSchema(t *testing.T) {
	db := openTemp(t)
	m := NewMigrator(db.DB, zap.NewNop())
	ctx := context.Background()

	_, err := m.Migrate(ctx, schemaV2)
	require.NoError(t, err)

	_, err = m.Migrate(ctx, fstest.MapFS{"001_projects.sql": schemaV2["001_projects.sql"]})
	assert.ErrorIs(t, err, ErrSchemaTooNew)
}

func TestMigrator_FailedMigrationIsNotRecorded(t *testing.T) {
	db := openTemp(t)
	m := NewMigrator(db.DB, zap.NewNop())
	ctx := context.Background()

	_, err := m.Migrate(ctx, fstest.MapFS{
		"001_projects.sql": schemaV2["001_projects.sql"],
		"002_broken.sql":   {Data: []byte(`CREATE TABLE broken (;`)},
	})
	require.Error(t, err)

	version, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestLoadMigrations(t *testing.T) {
	tests := []struct {
		name    string
		fsys    fstest.MapFS
		want    []int
		wantErr string
	}{
		{name: "ordered by version", fsys: fstest.MapFS{
			"010_later.sql": {Data: []byte("SELECT 1;")},
			"002_first.sql": {Data: []byte("SELECT 1;")},
		}, want: []int{2, 10}},
		{name: "duplicate version", fsys: fstest.MapFS{
			"001_a.sql": {Data: []byte("SELECT 1;")},
			"1_b.sql":   {Data: []byte("SELECT 1;")},
		}, wantErr: "share version 1"},
		{name: "missing version", fsys: fstest.MapFS{
			"initial.sql": {Data: []byte("SELECT 1;")},
		}, wantErr: "invalid migration filename"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			migrations, err := LoadMigrations(tt.fsys)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			var versions []int
			for _, m := range migrations {
				versions = append(versions, m.Version)
			}
			assert.Equal(t, tt.want, versions)
		})
	}
}

func TestIsBusy(t *testing.T) {
	assert.True(t, IsBusy(sqlite3.Error{Code: sqlite3.ErrBusy}))
	assert.True(t, IsBusy(fmt.Errorf("upsert mapping: %w", sqlite3.Error{Code: sqlite3.ErrLocked})))
	assert.False(t, IsBusy(sqlite3.Error{Code: sqlite3.ErrConstraint}))
	assert.False(t, IsBusy(errors.New("database is locked")))
	assert.False(t, IsBusy(nil))
}
