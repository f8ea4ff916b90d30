// Package event defines the event envelope exchanged between the relay and
// desktop over the live channel, plus the registry of known event types.
package event

import (
	"encoding/json"
	"time"
)

// Known event types carried by the live channel. The type string dispatches
// the desktop reconciler's handler.
const (
	TaskCreated = "task.created"
	TaskUpdated = "task.updated"
	TaskDeleted = "task.deleted"

	ProjectCreated        = "project.created"
	ProjectUpdated        = "project.updated"
	ProjectDeleted        = "project.deleted"
	ProjectProgressLogged = "project.progress_logged"

	TransactionCreated = "transaction.created"
	TransactionUpdated = "transaction.updated"
	TransactionDeleted = "transaction.deleted"
)

// SourceBot marks envelopes originating from the conversational bot.
const SourceBot = "bot"

var knownTypes = map[string]struct{}{
	TaskCreated:           {},
	TaskUpdated:           {},
	TaskDeleted:           {},
	ProjectCreated:        {},
	ProjectUpdated:        {},
	ProjectDeleted:        {},
	ProjectProgressLogged: {},
	TransactionCreated:    {},
	TransactionUpdated:    {},
	TransactionDeleted:    {},
}

// KnownType reports whether t is an event type the desktop can reconcile.
func KnownType(t string) bool {
	_, ok := knownTypes[t]
	return ok
}

// Envelope wraps a domain event with its delivery metadata. EventID is the
// sole idempotency anchor: the desktop's applied-event ledger keys on it.
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source"`
	IsReplay  bool            `json:"isReplay"`
}

// Live-channel message kinds.
const (
	MessageSyncEvent = "sync-event"
	MessageEventAck  = "event-ack"
)

// Message is the top-level frame on the live channel. Type selects which of
// the remaining fields is meaningful: sync-event carries Event (server to
// client), event-ack carries EventID (client to server).
type Message struct {
	Type    string    `json:"type"`
	Event   *Envelope `json:"event,omitempty"`
	EventID string    `json:"eventId,omitempty"`
}
