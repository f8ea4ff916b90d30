package models

import (
	"encoding/json"
	"time"
)

// Outbox actions.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// SyncQueueEntry is a durable record of a local mutation awaiting delivery
// to the relay. Synced flips 0 to 1 exactly once and never reverses; an
// unsynced row is never deleted.
type SyncQueueEntry struct {
	ID         string
	EntityType string
	Action     string
	EntityID   string
	Payload    json.RawMessage
	CreatedAt  time.Time
	Synced     bool
}
