package tasks

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

// Upsert inserts or overwrites a task by id. All columns are replaced
// unconditionally (last-pull-wins).
func (r *SQLiteRepository) Upsert(ctx context.Context, t *models.Task) error {
	query := ` INSERT INTO tasks (id, title, notes, status, project_id, due_date, updated_at)
			values (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET title = excluded.title,
				notes = excluded.notes,
				status = excluded.status,
				project_id = excluded.project_id,
				due_date = excluded.due_date,
				updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.Title, t.Notes, t.Status, t.ProjectID, t.DueDate, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert task: %w", err)
	}
	return nil
}

// DeleteByID removes a task. Missing ids return common.ErrorNotFound.
func (r *SQLiteRepository) DeleteByID(ctx context.Context, id string) error {
	query := `delete from tasks where id=?`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
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

// GetByID returns a single task, or common.ErrorNotFound.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Task, error) {
	query := `select id, title, notes, status, project_id, due_date, updated_at from tasks where id=?`
	t := &models.Task{}
	if err := r.db.QueryRowContext(ctx, query, id).
		Scan(&t.ID, &t.Title, &t.Notes, &t.Status, &t.ProjectID, &t.DueDate, &t.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return t, nil
}

// GetAll lists all tasks.
func (r *SQLiteRepository) GetAll(ctx context.Context) ([]models.Task, error) {
	query := `select id, title, notes, status, project_id, due_date, updated_at from tasks order by updated_at asc`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select tasks: %w", err)
	}
	defer rows.Close()

	var result []models.Task
	for rows.Next() {
		var t models.Task
		if err := rows.Scan(&t.ID, &t.Title, &t.Notes, &t.Status, &t.ProjectID, &t.DueDate, &t.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
