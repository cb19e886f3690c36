package source

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edusync/idnsync/pkg/types"
)

func mockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })

	// Bind as pgx so Rebind produces $N placeholders like production.
	return &DB{db: sqlx.NewDb(raw, "pgx")}, mock
}

func eventRows() *sqlmock.Rows {
	return sqlmock.NewRows(eventColumns)
}

func addEvent(rows *sqlmock.Rows, id int64, status string, typ float64, attempt float64) {
	rows.AddRow(
		id, "uniqueid=4711", status, typ,
		time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC),
		"TRIGGER", types.SourceView, nil, nil, nil,
		nil, nil, nil, nil, nil, attempt, nil,
	)
}

func TestPendingEvents(t *testing.T) {
	db, mock := mockDB(t)

	rows := eventRows()
	addEvent(rows, 1, "N  ", 5, 0)
	addEvent(rows, 2, "E", 6, 3)
	mock.ExpectQuery(`SELECT record_id::bigint AS record_id, (.+) FROM person_eventlog WHERE status IN \('N', 'E'\) ORDER BY record_id LIMIT \$1`).
		WithArgs(100).
		WillReturnRows(rows)

	events, err := db.PendingEvents(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, events, 2)

	// char(3) padding is trimmed during scan normalization.
	assert.Equal(t, types.StatusNew, events[0].Status)
	assert.Equal(t, types.EventTypeInsert, events[0].Type)
	assert.Equal(t, int64(1), events[0].RecordID)
	assert.Equal(t, types.StatusError, events[1].Status)
	assert.Equal(t, float64(3), events[1].Attempt)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventsSince(t *testing.T) {
	db, mock := mockDB(t)
	watermark := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)

	rows := eventRows()
	addEvent(rows, 7, "S", 6, 0)
	mock.ExpectQuery(`SELECT (.+) FROM person_eventlog WHERE event_time > \$1 ORDER BY event_time, record_id LIMIT \$2`).
		WithArgs(watermark, 50).
		WillReturnRows(rows)

	events, err := db.EventsSince(context.Background(), watermark, 50)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(7), events[0].RecordID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPersonByUniqueID(t *testing.T) {
	db, mock := mockDB(t)

	mock.ExpectQuery(`SELECT (.+) FROM persons_dirsync_v WHERE uniqueid = \$1`).
		WithArgs(int64(4711)).
		WillReturnRows(sqlmock.NewRows([]string{"uniqueid", "username"}).
			AddRow(float64(4711), "jdoe"))

	rows, err := db.PersonByUniqueID(context.Background(), "4711")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "jdoe", rows[0]["username"])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPersonByUniqueIDRejectsGarbage(t *testing.T) {
	db, _ := mockDB(t)

	_, err := db.PersonByUniqueID(context.Background(), "not-a-number")
	assert.Error(t, err)
}

func TestPersonsByUsername(t *testing.T) {
	db, mock := mockDB(t)

	mock.ExpectQuery(`SELECT (.+) FROM persons_dirsync_v WHERE username IN \(\$1, \$2\)`).
		WithArgs("jdoe", "jdoe2").
		WillReturnRows(sqlmock.NewRows([]string{"uniqueid", "username"}).
			AddRow(float64(99), "jdoe2"))

	rows, err := db.PersonsByUsername(context.Background(), "jdoe", "jdoe2")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "jdoe2", rows[0]["username"])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPersonsByUsernameEmptySet(t *testing.T) {
	db, _ := mockDB(t)

	rows, err := db.PersonsByUsername(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rows)
}

func TestUniqueIDBounds(t *testing.T) {
	db, mock := mockDB(t)

	mock.ExpectQuery(`SELECT MIN\(uniqueid\), MAX\(uniqueid\) FROM persons_dirsync_v`).
		WillReturnRows(sqlmock.NewRows([]string{"min", "max"}).
			AddRow(float64(3), float64(4711)))

	lo, hi, ok, err := db.UniqueIDBounds(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(3), lo)
	assert.Equal(t, int64(4711), hi)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUniqueIDBoundsEmptyView(t *testing.T) {
	db, mock := mockDB(t)

	mock.ExpectQuery(`SELECT MIN\(uniqueid\), MAX\(uniqueid\) FROM persons_dirsync_v`).
		WillReturnRows(sqlmock.NewRows([]string{"min", "max"}).AddRow(nil, nil))

	_, _, ok, err := db.UniqueIDBounds(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPersonRange(t *testing.T) {
	db, mock := mockDB(t)

	mock.ExpectQuery(`SELECT (.+) FROM persons_dirsync_v WHERE uniqueid >= \$1 AND uniqueid < \$2`).
		WithArgs(int64(1000), int64(2000)).
		WillReturnRows(sqlmock.NewRows([]string{"uniqueid"}).
			AddRow(float64(1500)))

	rows, err := db.PersonRange(context.Background(), 1000, 2000)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteBack(t *testing.T) {
	db, mock := mockDB(t)
	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE person_eventlog SET status = \$1, attempt = \$2, error_message = \$3, read_time = \$4 WHERE record_id = \$5`).
		WithArgs("S", float64(0), nil, now, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE person_eventlog SET status = \$1, attempt = \$2, error_message = \$3, read_time = \$4 WHERE record_id = \$5`).
		WithArgs("E", float64(4), "directory unavailable", now, int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := db.WriteBack(context.Background(), []EventUpdate{
		{RecordID: 1, Status: types.StatusSuccess, Attempt: 0, ReadTime: now},
		{RecordID: 2, Status: types.StatusError, Attempt: 4, Message: "directory unavailable", ReadTime: now},
	})
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteBackEmpty(t *testing.T) {
	db, mock := mockDB(t)

	require.NoError(t, db.WriteBack(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTruncate(t *testing.T) {
	long := make([]byte, maxMessageLen+100)
	for i := range long {
		long[i] = 'x'
	}

	assert.Len(t, truncate(string(long), maxMessageLen), maxMessageLen)
	assert.Equal(t, "short", truncate("short", maxMessageLen))
}
