package pendingevents

import (
	"context"
	"fmt"

	"github.com/pocketdesk/pocketdesk/internal/dbx"
	"github.com/pocketdesk/pocketdesk/internal/relay/models"
)

// PostgresRepository implements Repository over dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists a pending event. This happens before any push attempt so
// a crash between persist and push still leaves the event recoverable.
func (r *PostgresRepository) Create(ctx context.Context, ev *models.PendingEvent) error {
	query := `
		INSERT INTO pending_events (event_id, user_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.db.ExecContext(ctx, query,
		ev.EventID, ev.UserID, ev.EventType, []byte(ev.Payload), ev.CreatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ListByUser returns the user's backlog ordered by created_at ascending.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]models.PendingEvent, error) {
	query := `
		SELECT event_id, user_id, event_type, payload, created_at
		FROM pending_events
		WHERE user_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.PendingEvent
	for rows.Next() {
		var ev models.PendingEvent
		var payload []byte
		if err := rows.Scan(&ev.EventID, &ev.UserID, &ev.EventType, &payload, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.Payload = payload
		result = append(result, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes an acknowledged event. Acknowledging an already-deleted
// eventId is a no-op, which keeps duplicate acks harmless.
func (r *PostgresRepository) Delete(ctx context.Context, eventID string) error {
	query := `
		DELETE FROM pending_events WHERE event_id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, eventID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
