package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newMockRepository(t *testing.T) (*CredentialRepository, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Discard,
	})
	if err != nil {
		t.Fatalf("gorm open: %v", err)
	}

	repo := NewCredentialRepository(db, "", zap.NewNop())
	repo.initialBackoff = time.Millisecond
	repo.maxBackoff = 2 * time.Millisecond
	return repo, mock
}

func TestCredentialRepositoryLoad(t *testing.T) {
	repo, mock := newMockRepository(t)

	rows := sqlmock.NewRows([]string{"name", "value", "updated_at"}).
		AddRow(DefaultCredentialKey, "AIza-stored", time.Now())
	mock.ExpectQuery(`SELECT \* FROM "credentials" WHERE name = \$1`).WillReturnRows(rows)

	value, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if value != "AIza-stored" {
		t.Fatalf("unexpected value %q", value)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCredentialRepositoryLoadMissingRow(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`SELECT \* FROM "credentials"`).
		WillReturnRows(sqlmock.NewRows([]string{"name", "value", "updated_at"}))

	value, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("expected missing row to be empty, got %v", err)
	}
	if value != "" {
		t.Fatalf("unexpected value %q", value)
	}
}

func TestCredentialRepositorySaveUpserts(t *testing.T) {
	repo, mock := newMockRepository(t)
	repo.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	mock.ExpectExec(`INSERT INTO "credentials" .* ON CONFLICT \("name"\) DO UPDATE`).
		WithArgs(DefaultCredentialKey, "abc", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Save(context.Background(), "abc"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCredentialRepositoryDoesNotRetryPermanentErrors(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(`INSERT INTO "credentials"`).WillReturnError(errors.New("permission denied"))

	if err := repo.Save(context.Background(), "abc"); err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
