package models

import "time"

// AppliedEvent is the idempotency ledger row for one reconciled event. Its
// existence means "never re-apply, just re-acknowledge". Rows are
// append-only.
type AppliedEvent struct {
	EventID   string
	EventType string
	AppliedAt time.Time
	Source    string
}
