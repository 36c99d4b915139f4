package audit

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestStoreWriteInsertsRow(t *testing.T) {
	db, dbMock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dbMock.
		ExpectExec(`insert into "job_audit_log".*`).
		WithArgs("task-1", "market-outlook", "publish_catalog", "done", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	store := &Store{db: db}
	store.Write(Record{
		TaskID:    "task-1",
		Channel:   "market-outlook",
		Phase:     "publish_catalog",
		Outcome:   "done",
		Timestamp: time.Unix(0, 0),
	})

	require.NoError(t, dbMock.ExpectationsWereMet())
}

func TestStoreWriteWithNilDBIsNoop(t *testing.T) {
	var store *Store
	require.NotPanics(t, func() {
		store.Write(Record{TaskID: "task-2"})
	})

	store = &Store{}
	require.NotPanics(t, func() {
		store.Write(Record{TaskID: "task-3"})
	})
}

func TestOpenWithEmptyDSNIsNoop(t *testing.T) {
	store, err := Open("")
	require.NoError(t, err)
	require.Nil(t, store.db)
	require.NoError(t, store.Close())
}
