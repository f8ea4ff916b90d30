// Package projects provides the SQLite-backed repository for local
// projects and their progress logs.
package projects

import (
	"context"

	"github.com/pocketdesk/pocketdesk/internal/desktop/models"
)

// Repository defines persistence operations for projects.
type Repository interface {
	Upsert(ctx context.Context, p *models.Project) error
	DeleteByID(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*models.Project, error)
	GetAll(ctx context.Context) ([]models.Project, error)
	// LogProgress records a progress entry and moves the project's progress
	// to the logged value. Fails with common.ErrorNotFound when the project
	// does not exist locally.
	LogProgress(ctx context.Context, log *models.ProgressLog) error
	GetProgressLogs(ctx context.Context, projectID string) ([]models.ProgressLog, error)
}
