package pairingcodes

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/pocketdesk/pocketdesk/internal/common"
	"github.com/pocketdesk/pocketdesk/internal/relay/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestCreate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	q := `(?s)^\s*INSERT\s+INTO\s+pairing_codes`
	mock.ExpectExec(q).
		WithArgs("ABC234", "u-1", now, now.Add(5*time.Minute), false, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &models.PairingCode{
		Code: "ABC234", UserID: "u-1", CreatedAt: now, ExpiresAt: now.Add(5 * time.Minute),
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
}

func TestFind(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	q := `(?s)^\s*SELECT\s+code,`
	rows := sqlmock.NewRows([]string{"code", "user_id", "created_at", "expires_at", "used", "attempts"}).
		AddRow("ABC234", "u-1", now, now.Add(5*time.Minute), false, 1)
	mock.ExpectQuery(q).WithArgs("ABC234").WillReturnRows(rows)

	c, err := repo.Find(context.Background(), "ABC234")
	if err != nil {
		t.Fatalf("Find error: %v", err)
	}
	if c.UserID != "u-1" || c.Used || c.Attempts != 1 {
		t.Fatalf("unexpected row: %+v", c)
	}
}

func TestFind_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*SELECT\s+code,`
	mock.ExpectQuery(q).WithArgs("NOSUCH").WillReturnError(sql.ErrNoRows)

	_, err := repo.Find(context.Background(), "NOSUCH")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestMarkUsed_SingleShot(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*UPDATE\s+pairing_codes\s+SET\s+used\s*=\s*TRUE\s+WHERE\s+code\s*=\s*\$1\s+AND\s+used\s*=\s*FALSE`

	mock.ExpectExec(q).WithArgs("ABC234").WillReturnResult(sqlmock.NewResult(0, 1))
	if err := repo.MarkUsed(context.Background(), "ABC234"); err != nil {
		t.Fatalf("MarkUsed error: %v", err)
	}

	// second transition matches no rows
	mock.ExpectExec(q).WithArgs("ABC234").WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.MarkUsed(context.Background(), "ABC234")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestCountCreatedSince(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	cutoff := time.Now().Add(-10 * time.Minute)
	q := `(?s)^\s*SELECT\s+COUNT\(\*\)\s+FROM\s+pairing_codes\s+WHERE\s+user_id\s*=\s*\$1\s+AND\s+created_at\s*>=\s*\$2`

	rows := sqlmock.NewRows([]string{"count"}).AddRow(2)
	mock.ExpectQuery(q).WithArgs("u-1", cutoff).WillReturnRows(rows)

	n, err := repo.CountCreatedSince(context.Background(), "u-1", cutoff)
	if err != nil {
		t.Fatalf("CountCreatedSince error: %v", err)
	}
	if n != 2 {
		t.Fatalf("want 2, got %d", n)
	}
}

func TestInvalidateUnused(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	q := `(?s)^\s*UPDATE\s+pairing_codes\s+SET\s+expires_at\s*=\s*\$2\s+WHERE\s+user_id\s*=\s*\$1\s+AND\s+used\s*=\s*FALSE`
	mock.ExpectExec(q).WithArgs("u-1", now).WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.InvalidateUnused(context.Background(), "u-1", now); err != nil {
		t.Fatalf("InvalidateUnused error: %v", err)
	}
}

func TestDeleteExpired(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	cutoff := time.Now().Add(-10 * time.Minute)
	q := `(?s)^\s*DELETE\s+FROM\s+pairing_codes\s+WHERE\s+expires_at\s*<=\s*\$1`
	mock.ExpectExec(q).WithArgs(cutoff).WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.DeleteExpired(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("DeleteExpired error: %v", err)
	}
	if n != 4 {
		t.Fatalf("want 4 deleted, got %d", n)
	}
}
