package docstore

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPostgresStoreMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	return NewPostgresStore(sqlxDB, "", nil), mock, func() {
		sqlxDB.Close()
		db.Close()
	}
}

func TestBuildSelectWithFilters(t *testing.T) {
	query, args, err := buildSelect(Collection("academic_years").Where("status", "Active"), true)
	require.NoError(t, err)
	assert.Equal(t, "SELECT path, id, data FROM documents WHERE collection = $1 AND data -> $2 = $3::jsonb ORDER BY id ASC FOR UPDATE", query)
	assert.Equal(t, []interface{}{"academic_years", "status", `"Active"`}, args)

	_, _, err = buildSelect(Query{Collection: "academic_years/y1"}, false)
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestPostgresStoreGetNotFound(t *testing.T) {
	store, mock, cleanup := newPostgresStoreMock(t)
	defer cleanup()

	mock.ExpectQuery("SELECT path, id, data FROM documents WHERE path = \\$1").
		WithArgs("academic_years/y9").
		WillReturnRows(sqlmock.NewRows([]string{"path", "id", "data"}))

	_, err := store.Get(context.Background(), "academic_years/y9")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreQueryDecodesRows(t *testing.T) {
	store, mock, cleanup := newPostgresStoreMock(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"path", "id", "data"}).
		AddRow("academic_years/y1", "y1", []byte(`{"label":"2023-2024","status":"Active"}`))
	mock.ExpectQuery("SELECT path, id, data FROM documents WHERE collection = \\$1 AND data -> \\$2").
		WithArgs("academic_years", "status", `"Active"`).
		WillReturnRows(rows)

	docs, err := store.Query(context.Background(), Collection("academic_years").Where("status", "Active"))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "2023-2024", docs[0].Data["label"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreTransactionLocksAndNotifies(t *testing.T) {
	store, mock, cleanup := newPostgresStoreMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs("academic_years").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT path, id, data FROM documents WHERE collection = \\$1 .* FOR UPDATE").
		WithArgs("academic_years", "status", `"Active"`).
		WillReturnRows(sqlmock.NewRows([]string{"path", "id", "data"}).
			AddRow("academic_years/y1", "y1", []byte(`{"status":"Active"}`)))
	mock.ExpectExec("UPDATE documents SET data = data").
		WithArgs("academic_years/y1", `{"status":"Archived"}`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE documents SET data = data").
		WithArgs("academic_years/y2", `{"status":"Active"}`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("SELECT pg_notify").
		WithArgs(ChangeChannel, "academic_years").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := store.RunTransaction(context.Background(), func(ctx context.Context, tx Tx) error {
		active, err := tx.Query(Collection("academic_years").Where("status", "Active"))
		if err != nil {
			return err
		}
		for _, doc := range active {
			if err := tx.Update(doc.Path, map[string]interface{}{"status": "Archived"}); err != nil {
				return err
			}
		}
		return tx.Update("academic_years/y2", map[string]interface{}{"status": "Active"})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreTransactionRollsBackOnError(t *testing.T) {
	store, mock, cleanup := newPostgresStoreMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE documents SET data = data").
		WithArgs("academic_years/y1", `{"status":"Archived"}`, sqlmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := store.RunTransaction(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.Update("academic_years/y1", map[string]interface{}{"status": "Archived"})
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreUpdateMissingReturnsNotFound(t *testing.T) {
	store, mock, cleanup := newPostgresStoreMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE documents SET data = data").
		WithArgs("academic_years/y9", `{"label":"x"}`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.Update(context.Background(), "academic_years/y9", map[string]interface{}{"label": "x"})
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreWatchRequiresDSN(t *testing.T) {
	store, _, cleanup := newPostgresStoreMock(t)
	defer cleanup()

	_, err := store.Watch(context.Background(), Collection("academic_years"))
	assert.Error(t, err)
}
