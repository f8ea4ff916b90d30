package models

import (
	"encoding/json"
	"time"
)

// PendingEvent is a bot-originated mutation persisted before any delivery
// attempt. The row exists until a live connection acknowledges the eventId;
// replay-on-connect drains whatever is left.
type PendingEvent struct {
	EventID   string
	UserID    string
	EventType string
	Payload   json.RawMessage
	CreatedAt time.Time
}
