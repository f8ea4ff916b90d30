// Package store opens the desktop's local SQLite database, applies
// migrations, and bundles the repositories built on it.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/pocketdesk/pocketdesk/internal/desktop/migrations"
	"github.com/pocketdesk/pocketdesk/internal/desktop/repositories/applied"
	"github.com/pocketdesk/pocketdesk/internal/desktop/repositories/outbox"
	"github.com/pocketdesk/pocketdesk/internal/desktop/repositories/projects"
	"github.com/pocketdesk/pocketdesk/internal/desktop/repositories/settings"
	"github.com/pocketdesk/pocketdesk/internal/desktop/repositories/tasks"
	"github.com/pocketdesk/pocketdesk/internal/desktop/repositories/transactions"
)

// Repositories bundles the desktop's local persistence.
type Repositories struct {
	Outbox       outbox.Repository
	Applied      applied.Repository
	Settings     settings.Repository
	Tasks        tasks.Repository
	Projects     projects.Repository
	Transactions transactions.Repository
	DB           *sql.DB
}

// RunMigrations applies the embedded schema migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// InitDatabase opens the SQLite file, migrates it, and constructs the
// repositories.
func InitDatabase(ctx context.Context, dsn string) (*Repositories, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(ctx, db); err != nil {
		return nil, err
	}

	repos := &Repositories{
		Outbox:       outbox.NewSQLiteRepository(db),
		Applied:      applied.NewSQLiteRepository(db),
		Settings:     settings.NewSQLiteRepository(db),
		Tasks:        tasks.NewSQLiteRepository(db),
		Projects:     projects.NewSQLiteRepository(db),
		Transactions: transactions.NewSQLiteRepository(db),
		DB:           db,
	}
	return repos, nil
}
