// Package repomanager wires the relay's repositories to a single database
// handle and owns schema migrations.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/pocketdesk/pocketdesk/internal/relay/repositories/devices"
	"github.com/pocketdesk/pocketdesk/internal/relay/repositories/entities"
	"github.com/pocketdesk/pocketdesk/internal/relay/repositories/pairingcodes"
	"github.com/pocketdesk/pocketdesk/internal/relay/repositories/pendingevents"
	"github.com/pocketdesk/pocketdesk/internal/relay/repositories/sessions"
	"github.com/pocketdesk/pocketdesk/internal/relay/repositories/users"
)

// RepositoryManager exposes the relay's repositories plus the underlying
// connection for transactional flows (dbx.WithTx).
type RepositoryManager interface {
	Conn() *sql.DB
	Sessions() sessions.Repository
	Devices() devices.Repository
	PairingCodes() pairingcodes.Repository
	PendingEvents() pendingevents.Repository
	Entities() entities.Repository
	Users() users.Repository
	RunMigrations(ctx context.Context) error
	Close() error
}
