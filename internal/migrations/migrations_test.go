package migrations

import (
	"errors"
	"io/fs"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestMigrationFiles_Paired(t *testing.T) {
	entries, err := fs.ReadDir(MigrationFiles, ".")
	require.NoError(t, err)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}

	require.Equal(t, map[string]bool{"001_create_events": true, "002_create_checkpoints": true}, ups)
	require.Equal(t, ups, downs)
}

func TestMigrationFiles_Schema(t *testing.T) {
	events, err := fs.ReadFile(MigrationFiles, "001_create_events.up.sql")
	require.NoError(t, err)
	require.Contains(t, string(events), "id          TEXT PRIMARY KEY")
	require.Contains(t, string(events), "raw         JSONB NOT NULL")

	checkpoints, err := fs.ReadFile(MigrationFiles, "002_create_checkpoints.up.sql")
	require.NoError(t, err)
	require.Contains(t, string(checkpoints), "CHECK (id = 1)")
}

// fakeMigrator records the calls apply makes.
type fakeMigrator struct {
	version uint
	dirty   bool
	upErr   error

	forced []int
	ups    int
}

func (f *fakeMigrator) Version() (uint, bool, error) {
	return f.version, f.dirty, nil
}

func (f *fakeMigrator) Force(version int) error {
	f.forced = append(f.forced, version)
	f.dirty = false
	return nil
}

func (f *fakeMigrator) Up() error {
	f.ups++
	if f.upErr != nil {
		return f.upErr
	}
	f.version = 2
	return nil
}

func TestApply_DisabledLeavesDirtyStateAlone(t *testing.T) {
	m := &fakeMigrator{version: 1, dirty: true}

	require.NoError(t, apply(m, false, zerolog.Nop()))
	require.Empty(t, m.forced)
	require.Zero(t, m.ups)
	require.True(t, m.dirty)
}

func TestApply_ForcesDirtyVersionBeforeUp(t *testing.T) {
	m := &fakeMigrator{version: 1, dirty: true}

	require.NoError(t, apply(m, true, zerolog.Nop()))
	require.Equal(t, []int{1}, m.forced)
	require.Equal(t, 1, m.ups)
	require.Equal(t, uint(2), m.version)
}

func TestApply_NoChange(t *testing.T) {
	m := &fakeMigrator{version: 2, upErr: migrate.ErrNoChange}

	require.NoError(t, apply(m, true, zerolog.Nop()))
	require.Empty(t, m.forced)
	require.Equal(t, 1, m.ups)
}

func TestApply_UpFailure(t *testing.T) {
	m := &fakeMigrator{upErr: errors.New("syntax error at or near")}

	err := apply(m, true, zerolog.Nop())
	require.ErrorContains(t, err, "failed to run migrations")
}
