package models

import "time"

// Project groups tasks and tracks progress toward completion.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	Progress    int       `json:"progress"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ProgressLog is a dated progress note attached to a project. Logged via
// the bot's project.progress_logged event or locally.
type ProgressLog struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	Progress  int       `json:"progress"`
	Note      string    `json:"note,omitempty"`
	LoggedAt  time.Time `json:"loggedAt"`
}
