package database

import (
	"context"
	"regexp"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	v, ok := parseVersion("V12__add_index.sql")
	assert.True(t, ok)
	assert.Equal(t, 12, v)

	_, ok = parseVersion("init.sql")
	assert.False(t, ok)
	_, ok = parseVersion("Vx__bad.sql")
	assert.False(t, ok)
}

func TestListMigrationsSortsByVersion(t *testing.T) {
	source := fstest.MapFS{
		"migrations/V10__later.sql": {Data: []byte("SELECT 10")},
		"migrations/V2__second.sql": {Data: []byte("SELECT 2")},
		"migrations/README.md":      {Data: []byte("ignored")},
	}
	migs, err := listMigrations(source)
	require.NoError(t, err)
	require.Len(t, migs, 2)
	assert.Equal(t, 2, migs[0].Version)
	assert.Equal(t, 10, migs[1].Version)
}

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	migs, err := listMigrations(migrationFiles)
	require.NoError(t, err)
	require.NotEmpty(t, migs)
	assert.Equal(t, 1, migs[0].Version)
	assert.Contains(t, migs[0].SQL, "student_activities")
	require.Len(t, migs, 2)
	assert.Equal(t, 2, migs[1].Version)
	assert.Contains(t, migs[1].SQL, "CHECK (usn = upper(btrim(usn))")
	assert.Contains(t, migs[1].SQL, "CHECK (status IN ('pending', 'approved', 'rejected'))")
	assert.Contains(t, migs[1].SQL, "CHECK (status IN ('Pending', 'Approved', 'Rejected'))")
}

func TestMigrateSkipsAppliedVersions(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	sqlxDB := sqlx.NewDb(db, "sqlmock")

	source := fstest.MapFS{
		"migrations/V1__init.sql": {Data: []byte("CREATE TABLE a (id INT)")},
		"migrations/V2__more.sql": {Data: []byte("CREATE TABLE b (id INT)")},
	}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE b (id INT)")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_migrations")).
		WithArgs(2, "V2__more.sql").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, migrate(context.Background(), sqlxDB, source))
	require.NoError(t, mock.ExpectationsWereMet())
}
