package database

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"testing/fstest"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func expectLockedCheck(mock pgxmock.PgxPoolIface, name string, exists bool) {
	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(\$1\)`).
		WithArgs(migrationLockKey).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(name).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(exists))
}

func TestRunMigrations_AppliesPendingInOrder(t *testing.T) {
	mock := NewMockPool(t)

	migrations := fstest.MapFS{
		"002_sessions.up.sql": {Data: []byte("CREATE TABLE refresh_sessions (id TEXT)")},
		"001_users.up.sql":    {Data: []byte("CREATE TABLE users (id TEXT)")},
		"001_users.down.sql":  {Data: []byte("DROP TABLE users")},
		"README.md":           {Data: []byte("ignored")},
	}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	expectLockedCheck(mock, "001_users.up.sql", true)
	mock.ExpectRollback()

	expectLockedCheck(mock, "002_sessions.up.sql", false)
	mock.ExpectExec("CREATE TABLE refresh_sessions").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO schema_migrations").
		WithArgs("002_sessions.up.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := RunMigrations(context.Background(), mock, migrations, discardLogger())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_SQLErrorIsNotRetried(t *testing.T) {
	mock := NewMockPool(t)

	migrations := fstest.MapFS{
		"001_users.up.sql": {Data: []byte("CREATE TABLE users (")},
	}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	expectLockedCheck(mock, "001_users.up.sql", false)
	mock.ExpectExec("CREATE TABLE users").
		WillReturnError(errStr("syntax error at end of input"))
	mock.ExpectRollback()

	err := RunMigrations(context.Background(), mock, migrations, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execute migration 001_users.up.sql")
	assert.NotContains(t, err.Error(), "attempts")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_LockFailureRollsBack(t *testing.T) {
	mock := NewMockPool(t)

	migrations := fstest.MapFS{
		"001_users.up.sql": {Data: []byte("CREATE TABLE users (id TEXT)")},
	}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs(migrationLockKey).
		WillReturnError(errStr("permission denied for function pg_advisory_xact_lock"))
	mock.ExpectRollback()

	err := RunMigrations(context.Background(), mock, migrations, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lock migrations")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_CanceledDuringRetry(t *testing.T) {
	mock := NewMockPool(t)
	ctx, cancel := context.WithCancel(context.Background())

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnError(errStr("dial tcp 127.0.0.1:5432: connection refused"))
	cancel()

	err := RunMigrations(ctx, mock, fstest.MapFS{}, discardLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunMigrations_NothingToApply(t *testing.T) {
	mock := NewMockPool(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	err := RunMigrations(context.Background(), mock, fstest.MapFS{}, discardLogger())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
