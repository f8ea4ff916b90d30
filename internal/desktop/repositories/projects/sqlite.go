package projects

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

// Upsert inserts or overwrites a project by id.
func (r *SQLiteRepository) Upsert(ctx context.Context, p *models.Project) error {
	query := ` INSERT INTO projects (id, name, description, status, progress, updated_at)
			values (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name,
				description = excluded.description,
				status = excluded.status,
				progress = excluded.progress,
				updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.Name, p.Description, p.Status, p.Progress, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert project: %w", err)
	}
	return nil
}

// DeleteByID removes a project and its progress logs.
func (r *SQLiteRepository) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `delete from progress_logs where project_id=?`, id); err != nil {
		return fmt.Errorf("failed to delete progress logs: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `delete from projects where id=?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
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

// GetByID returns a single project, or common.ErrorNotFound.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Project, error) {
	query := `select id, name, description, status, progress, updated_at from projects where id=?`
	p := &models.Project{}
	if err := r.db.QueryRowContext(ctx, query, id).
		Scan(&p.ID, &p.Name, &p.Description, &p.Status, &p.Progress, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return p, nil
}

// GetAll lists all projects.
func (r *SQLiteRepository) GetAll(ctx context.Context) ([]models.Project, error) {
	query := `select id, name, description, status, progress, updated_at from projects order by updated_at asc`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select projects: %w", err)
	}
	defer rows.Close()

	var result []models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Status, &p.Progress, &p.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// LogProgress records a progress entry for an existing project and moves
// the project's progress to the logged value.
func (r *SQLiteRepository) LogProgress(ctx context.Context, log *models.ProgressLog) error {
	res, err := r.db.ExecContext(ctx,
		`update projects set progress=? where id=?`, log.Progress, log.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to update project progress: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return common.ErrorNotFound
	}

	query := `insert into progress_logs (id, project_id, progress, note, logged_at)
			values (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET progress = excluded.progress,
				note = excluded.note,
				logged_at = excluded.logged_at`
	if _, err := r.db.ExecContext(ctx, query,
		log.ID, log.ProjectID, log.Progress, log.Note, log.LoggedAt); err != nil {
		return fmt.Errorf("failed to insert progress log: %w", err)
	}
	return nil
}

// GetProgressLogs lists a project's progress entries oldest first.
func (r *SQLiteRepository) GetProgressLogs(ctx context.Context, projectID string) ([]models.ProgressLog, error) {
	query := `select id, project_id, progress, note, logged_at from progress_logs where project_id=? order by logged_at asc`
	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to select progress logs: %w", err)
	}
	defer rows.Close()

	var result []models.ProgressLog
	for rows.Next() {
		var l models.ProgressLog
		if err := rows.Scan(&l.ID, &l.ProjectID, &l.Progress, &l.Note, &l.LoggedAt); err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
