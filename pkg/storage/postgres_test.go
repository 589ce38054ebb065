package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &PostgresStore{db: db}, mock
}

func TestPostgresStore_Save(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	snap := testSnapshot("sess-pg", base)

	mock.ExpectExec("INSERT INTO sessions").
		WithArgs("sess-pg", "report.pdf", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Save(context.Background(), snap)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveError(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO sessions").
		WillReturnError(errors.New("connection reset"))

	err := store.Save(context.Background(), testSnapshot("sess-pg", base))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save snapshot")
}

func TestPostgresStore_Get(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	snap := testSnapshot("sess-pg", base)
	payload, err := json.Marshal(snap)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT payload FROM sessions").
		WithArgs("sess-pg").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(payload))

	got, err := store.Get(context.Background(), "sess-pg")
	require.NoError(t, err)
	assert.Equal(t, snap, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectQuery("SELECT payload FROM sessions").
		WithArgs("absent").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_GetCorruptPayload(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectQuery("SELECT payload FROM sessions").
		WithArgs("sess-bad").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow([]byte("{not json")))

	_, err := store.Get(context.Background(), "sess-bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal snapshot")
}

func TestPostgresStore_List(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "file_name", "started_at", "last_activity", "octet_length"}).
		AddRow("sess-b", "b.pdf", base.Add(time.Hour), base.Add(2*time.Hour), int64(2048)).
		AddRow("sess-a", "a.pdf", base, base.Add(time.Hour), int64(1024))

	mock.ExpectQuery("SELECT id, file_name, started_at, last_activity").
		WillReturnRows(rows)

	infos, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "sess-b", infos[0].ID)
	assert.Equal(t, "b.pdf", infos[0].FileName)
	assert.Equal(t, int64(2048), infos[0].SizeBytes)
	assert.Equal(t, "sess-a", infos[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Delete(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectExec("DELETE FROM sessions").
		WithArgs("sess-pg").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, store.Delete(context.Background(), "sess-pg"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteNotFound(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectExec("DELETE FROM sessions").
		WithArgs("absent").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, store.Delete(context.Background(), "absent"), ErrNotFound)
}

func TestPostgresStore_Ping(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectPing()
	assert.NoError(t, store.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	assert.Error(t, store.Ping(context.Background()))
}

func TestPostgresStore_Name(t *testing.T) {
	store, _ := newMockPostgresStore(t)
	assert.Equal(t, TypePostgres, store.Name())
}
