package transactions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pocketdesk/pocketdesk/internal/common"
	"github.com/pocketdesk/pocketdesk/internal/dbx"
	"github.com/pocketdesk/pocketdesk/internal/desktop/models"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Upsert inserts or overwrites a transaction by id.
func (r *SQLiteRepository) Upsert(ctx context.Context, t *models.Transaction) error {
	query := ` INSERT INTO transactions (id, amount, currency, category, note, occurred_at, updated_at)
			values (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET amount = excluded.amount,
				currency = excluded.currency,
				category = excluded.category,
				note = excluded.note,
				occurred_at = excluded.occurred_at,
				updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.Amount, t.Currency, t.Category, t.Note, t.OccurredAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert transaction: %w", err)
	}
	return nil
}

// DeleteByID removes a transaction. Missing ids return common.ErrorNotFound.
func (r *SQLiteRepository) DeleteByID(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `delete from transactions where id=?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// GetByID returns a single transaction, or common.ErrorNotFound.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	query := `select id, amount, currency, category, note, occurred_at, updated_at from transactions where id=?`
	t := &models.Transaction{}
	if err := r.db.QueryRowContext(ctx, query, id).
		Scan(&t.ID, &t.Amount, &t.Currency, &t.Category, &t.Note, &t.OccurredAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return t, nil
}

// GetAll lists all transactions.
func (r *SQLiteRepository) GetAll(ctx context.Context) ([]models.Transaction, error) {
	query := `select id, amount, currency, category, note, occurred_at, updated_at from transactions order by occurred_at asc`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select transactions: %w", err)
	}
	defer rows.Close()

	var result []models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.Amount, &t.Currency, &t.Category, &t.Note, &t.OccurredAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
