package entities

import (
	"context"
	"fmt"

	"github.com/pocketdesk/pocketdesk/internal/common"
	"github.com/pocketdesk/pocketdesk/internal/dbx"
	"github.com/pocketdesk/pocketdesk/internal/relay/models"
)

// PostgresRepository implements Repository over dbx.DBTX. Documents are
// stored as jsonb; the relay never interprets the fields.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Upsert inserts the document or overwrites it wholesale by id.
func (r *PostgresRepository) Upsert(ctx context.Context, e *models.Entity) error {
	query := `
		INSERT INTO entities (id, user_id, entity_type, data, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id, entity_type) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query,
		e.ID, e.UserID, e.EntityType, []byte(e.Data), e.UpdatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Delete removes a document. Deleting a missing id returns
// common.ErrorNotFound so the API can answer 404.
func (r *PostgresRepository) Delete(ctx context.Context, userID, entityType, id string) error {
	query := `
		DELETE FROM entities WHERE user_id = $1 AND entity_type = $2 AND id = $3
	`
	res, err := r.db.ExecContext(ctx, query, userID, entityType, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if ra == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// ListByUser returns the user's full collection for one entity type.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID, entityType string) ([]models.Entity, error) {
	query := `
		SELECT id, user_id, entity_type, data, updated_at
		FROM entities
		WHERE user_id = $1 AND entity_type = $2
		ORDER BY updated_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, userID, entityType)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.Entity
	for rows.Next() {
		var e models.Entity
		var data []byte
		if err := rows.Scan(&e.ID, &e.UserID, &e.EntityType, &data, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.Data = data
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
