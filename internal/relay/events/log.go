// Package events implements the relay's durable event log. Every
// bot-originated mutation is persisted as a pending event before any push
// attempt, pushed to live connections if there are any, and deleted only
// when a connection acknowledges the eventId.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pocketdesk/pocketdesk/internal/event"
	"github.com/pocketdesk/pocketdesk/internal/logging"
	"github.com/pocketdesk/pocketdesk/internal/relay/models"
	"github.com/pocketdesk/pocketdesk/internal/relay/repositories/pendingevents"
)

// Broadcaster pushes an envelope to every live connection of a user and
// reports whether at least one connection was live. Presence information
// only; delivery is guaranteed by the pending-event row, not by the push.
type Broadcaster interface {
	EmitTo(userID string, env *event.Envelope) bool
}

// NopBroadcaster drops every emit. Used when no live hub is attached.
type NopBroadcaster struct{}

func (NopBroadcaster) EmitTo(string, *event.Envelope) bool { return false }

// Log is the event log service.
type Log struct {
	pending     pendingevents.Repository
	broadcaster Broadcaster
	logger      logging.Logger
	now         func() time.Time
}

// NewLog constructs the event log. Pass nil broadcaster to fall back to
// NopBroadcaster.
func NewLog(pending pendingevents.Repository, b Broadcaster, logger logging.Logger) *Log {
	if b == nil {
		b = NopBroadcaster{}
	}
	return &Log{
		pending:     pending,
		broadcaster: b,
		logger:      logger.With("module", "event_log"),
		now:         time.Now,
	}
}

// SetBroadcaster attaches the live hub after construction. The hub needs the
// log for acknowledgements and the log needs the hub for pushes; the app
// wires the cycle through this setter.
func (l *Log) SetBroadcaster(b Broadcaster) {
	l.broadcaster = b
}

// Publish persists the event and then pushes it to the user's live
// connections. The returned online flag says whether anyone was connected
// at push time.
func (l *Log) Publish(ctx context.Context, userID, eventType string, payload json.RawMessage) (eventID string, online bool, err error) {
	eventID = uuid.NewString()
	now := l.now()

	// Durability precedes delivery: a crash after this insert but before the
	// push still leaves the event replayable on the next connect.
	if err := l.pending.Create(ctx, &models.PendingEvent{
		EventID:   eventID,
		UserID:    userID,
		EventType: eventType,
		Payload:   payload,
		CreatedAt: now,
	}); err != nil {
		return "", false, fmt.Errorf("persisting event: %w", err)
	}

	online = l.broadcaster.EmitTo(userID, &event.Envelope{
		EventID:   eventID,
		EventType: eventType,
		Payload:   payload,
		Timestamp: now,
		Source:    event.SourceBot,
		IsReplay:  false,
	})

	l.logger.Info(ctx, "event published", "event_id", eventID, "event_type", eventType, "user_id", userID, "online", online)

	return eventID, online, nil
}

// Acknowledge removes the pending event. Only authenticated live
// connections invoke this.
func (l *Log) Acknowledge(ctx context.Context, eventID string) error {
	if err := l.pending.Delete(ctx, eventID); err != nil {
		return fmt.Errorf("acknowledging event: %w", err)
	}
	l.logger.Debug(ctx, "event acknowledged", "event_id", eventID)
	return nil
}

// PendingFor returns the user's undelivered backlog in original publish
// order, ready for replay-on-connect.
func (l *Log) PendingFor(ctx context.Context, userID string) ([]models.PendingEvent, error) {
	return l.pending.ListByUser(ctx, userID)
}
