// Package models contains the desktop-side data model shared by
// repositories, the reconciler, and the sync services.
package models

import "time"

// Task is a to-do item in the local store.
type Task struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Notes     string     `json:"notes,omitempty"`
	Status    string     `json:"status"`
	ProjectID string     `json:"projectId,omitempty"`
	DueDate   *time.Time `json:"dueDate,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt"`
}
