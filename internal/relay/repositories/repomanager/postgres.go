package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/pocketdesk/pocketdesk/internal/relay/migrations"
	"github.com/pocketdesk/pocketdesk/internal/relay/repositories/devices"
	"github.com/pocketdesk/pocketdesk/internal/relay/repositories/entities"
	"github.com/pocketdesk/pocketdesk/internal/relay/repositories/pairingcodes"
	"github.com/pocketdesk/pocketdesk/internal/relay/repositories/pendingevents"
	"github.com/pocketdesk/pocketdesk/internal/relay/repositories/sessions"
	"github.com/pocketdesk/pocketdesk/internal/relay/repositories/users"
)

type PostgresRepositoryManager struct {
	db            *sql.DB
	sessions      sessions.Repository
	devices       devices.Repository
	pairingCodes  pairingcodes.Repository
	pendingEvents pendingevents.Repository
	entities      entities.Repository
	users         users.Repository
}

// NewPostgresRepositoryManager opens the database and constructs all
// repositories over the shared handle.
func NewPostgresRepositoryManager(dsn string) (RepositoryManager, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	return &PostgresRepositoryManager{
		db:            db,
		sessions:      sessions.NewPostgresRepository(db),
		devices:       devices.NewPostgresRepository(db),
		pairingCodes:  pairingcodes.NewPostgresRepository(db),
		pendingEvents: pendingevents.NewPostgresRepository(db),
		entities:      entities.NewPostgresRepository(db),
		users:         users.NewPostgresRepository(db),
	}, nil
}

func (m *PostgresRepositoryManager) Conn() *sql.DB {
	return m.db
}

func (m *PostgresRepositoryManager) Sessions() sessions.Repository {
	return m.sessions
}

func (m *PostgresRepositoryManager) Devices() devices.Repository {
	return m.devices
}

func (m *PostgresRepositoryManager) PairingCodes() pairingcodes.Repository {
	return m.pairingCodes
}

func (m *PostgresRepositoryManager) PendingEvents() pendingevents.Repository {
	return m.pendingEvents
}

func (m *PostgresRepositoryManager) Entities() entities.Repository {
	return m.entities
}

func (m *PostgresRepositoryManager) Users() users.Repository {
	return m.users
}

func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	return goose.UpContext(ctx, m.db, ".")
}

func (m *PostgresRepositoryManager) Close() error {
	return m.db.Close()
}
