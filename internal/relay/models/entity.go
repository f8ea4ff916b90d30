package models

import (
	"encoding/json"
	"time"
)

// Entity types served by the relay's read/mutation APIs.
const (
	EntityTask        = "task"
	EntityProject     = "project"
	EntityTransaction = "transaction"
)

// EntityTypes lists every collection the relay stores, in the order the
// desktop pulls them.
var EntityTypes = []string{EntityTask, EntityProject, EntityTransaction}

// KnownEntityType reports whether t names a stored collection.
func KnownEntityType(t string) bool {
	for _, known := range EntityTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Entity is a schemaless document row in one of the relay's collections.
// The relay does not interpret Data beyond requiring valid JSON; the desktop
// and the bot agree on the field shape per entity type.
type Entity struct {
	ID         string
	UserID     string
	EntityType string
	Data       json.RawMessage
	UpdatedAt  time.Time
}
