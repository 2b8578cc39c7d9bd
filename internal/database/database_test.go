package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap/zaptest"
)

type testModel struct {
	name   string
	schema string
}

func (m testModel) Name() string   { return m.name }
func (m testModel) Schema() string { return m.schema }

func TestSyncAppliesSchemasInOrder(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer mockDB.Close()

	db := New(sqlx.NewDb(mockDB, "sqlmock"), zaptest.NewLogger(t))
	db.Register(
		testModel{name: "visits", schema: "CREATE TABLE IF NOT EXISTS visits (id INTEGER)"},
		testModel{name: "notes", schema: "CREATE TABLE IF NOT EXISTS notes (id INTEGER)"},
		testModel{name: "empty"},
	)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS notes").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS visits").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := db.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSyncRollsBackOnFailure(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer mockDB.Close()

	db := New(sqlx.NewDb(mockDB, "sqlmock"), zaptest.NewLogger(t))
	db.Register(testModel{name: "notes", schema: "CREATE TABLE IF NOT EXISTS notes (id INTEGER)"})

	mock.ExpectBegin()
	mock.ExpectExec(".*").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	if err := db.Sync(context.Background()); err == nil {
		t.Fatalf("expected sync error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle"}, zaptest.NewLogger(t))
	if !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("expected ErrUnknownDriver, got %v", err)
	}
}

func TestOpenSQLiteAndSync(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, Config{Driver: "sqlite", DSN: ":memory:"}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	db.Register(testModel{name: "notes", schema: "CREATE TABLE IF NOT EXISTS notes (id INTEGER PRIMARY KEY, body TEXT)"})
	if err := db.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	// idempotent
	if err := db.Sync(ctx); err != nil {
		t.Fatalf("second sync: %v", err)
	}

	var count int
	if err := db.SQL().GetContext(ctx, &count, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'notes'"); err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected notes table, got %d", count)
	}
}
