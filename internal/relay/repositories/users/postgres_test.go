package users

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
	q := `(?s)^\s*INSERT\s+INTO\s+users.*RETURNING\s+id`
	rows := sqlmock.NewRows([]string{"id"}).AddRow("u-1")
	mock.ExpectQuery(q).
		WithArgs("owner", "k7f2", []byte("$2a$10$hash"), now).
		WillReturnRows(rows)

	u, err := repo.Create(context.Background(), &models.User{
		Name: "owner", APIKeyID: "k7f2", APIKeyHash: []byte("$2a$10$hash"), CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if u.ID != "u-1" {
		t.Fatalf("want id u-1, got %q", u.ID)
	}
}

func TestFindByKeyID(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	q := `(?s)^\s*SELECT\s+id,.*WHERE\s+api_key_id\s*=\s*\$1`
	rows := sqlmock.NewRows([]string{"id", "name", "api_key_id", "api_key_hash", "created_at"}).
		AddRow("u-1", "owner", "k7f2", []byte("$2a$10$hash"), now)
	mock.ExpectQuery(q).WithArgs("k7f2").WillReturnRows(rows)

	u, err := repo.FindByKeyID(context.Background(), "k7f2")
	if err != nil {
		t.Fatalf("FindByKeyID error: %v", err)
	}
	if u.ID != "u-1" || string(u.APIKeyHash) != "$2a$10$hash" {
		t.Fatalf("unexpected row: %+v", u)
	}
}

func TestFindByKeyID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*SELECT\s+id,`
	mock.ExpectQuery(q).WithArgs("nope").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByKeyID(context.Background(), "nope")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestCount(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*SELECT\s+COUNT\(\*\)\s+FROM\s+users`
	mock.ExpectQuery(q).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	n, err := repo.Count(context.Background())
	if err != nil {
		t.Fatalf("Count error: %v", err)
	}
	if n != 1 {
		t.Fatalf("want 1, got %d", n)
	}
}
