// Package reconciler applies incoming relay events to the local store
// exactly once, using the applied-event ledger as the idempotency record.
package reconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pocketdesk/pocketdesk/internal/desktop/models"
	"github.com/pocketdesk/pocketdesk/internal/desktop/repositories/applied"
	"github.com/pocketdesk/pocketdesk/internal/desktop/repositories/projects"
	"github.com/pocketdesk/pocketdesk/internal/desktop/repositories/tasks"
	"github.com/pocketdesk/pocketdesk/internal/desktop/repositories/transactions"
	"github.com/pocketdesk/pocketdesk/internal/event"
	"github.com/pocketdesk/pocketdesk/internal/logging"
)

// Handler applies one event's payload to the local store.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Reconciler dispatches events to handlers keyed by event type.
type Reconciler struct {
	ledger   applied.Repository
	handlers map[string]Handler
	logger   logging.Logger
	now      func() time.Time
}

// New builds a Reconciler with handlers for every known event type wired
// over the local repositories.
func New(ledger applied.Repository, tr tasks.Repository, pr projects.Repository, xr transactions.Repository, logger logging.Logger) *Reconciler {
	r := &Reconciler{
		ledger:   ledger,
		handlers: make(map[string]Handler),
		logger:   logger.With("module", "reconciler"),
		now:      time.Now,
	}

	r.handlers[event.TaskCreated] = taskUpsert(tr)
	r.handlers[event.TaskUpdated] = taskUpsert(tr)
	r.handlers[event.TaskDeleted] = deleteByID(tr.DeleteByID)

	r.handlers[event.ProjectCreated] = projectUpsert(pr)
	r.handlers[event.ProjectUpdated] = projectUpsert(pr)
	r.handlers[event.ProjectDeleted] = deleteByID(pr.DeleteByID)
	r.handlers[event.ProjectProgressLogged] = progressLogged(pr)

	r.handlers[event.TransactionCreated] = transactionUpsert(xr)
	r.handlers[event.TransactionUpdated] = transactionUpsert(xr)
	r.handlers[event.TransactionDeleted] = deleteByID(xr.DeleteByID)

	return r
}

// Apply reconciles one envelope. It returns ack=true when the caller must
// acknowledge the event to the relay.
//
// An event already in the ledger is re-acknowledged without side effects.
// A handler failure leaves the event unapplied and unacknowledged so the
// relay redelivers it on the next connect. A ledger write failure after a
// successful handler is logged but still acknowledged; retrying would
// re-run the side effect forever.
func (r *Reconciler) Apply(ctx context.Context, env *event.Envelope) (ack bool, err error) {
	seen, err := r.ledger.Exists(ctx, env.EventID)
	if err != nil {
		return false, fmt.Errorf("ledger lookup failed: %w", err)
	}
	if seen {
		r.logger.Debug(ctx, "event already applied", "event_id", env.EventID)
		return true, nil
	}

	handler, ok := r.handlers[env.EventType]
	if !ok {
		return false, fmt.Errorf("no handler for event type %q", env.EventType)
	}

	if err := handler(ctx, env.Payload); err != nil {
		r.logger.Error(ctx, "event handler failed",
			"event_id", env.EventID, "event_type", env.EventType, "error", err)
		return false, err
	}

	row := &models.AppliedEvent{
		EventID:   env.EventID,
		EventType: env.EventType,
		AppliedAt: r.now(),
		Source:    env.Source,
	}
	if err := r.ledger.Insert(ctx, row); err != nil {
		r.logger.Error(ctx, "failed to record applied event",
			"event_id", env.EventID, "error", err)
	}
	return true, nil
}

func taskUpsert(repo tasks.Repository) Handler {
	return func(ctx context.Context, payload json.RawMessage) error {
		var t models.Task
		if err := json.Unmarshal(payload, &t); err != nil {
			return fmt.Errorf("invalid task payload: %w", err)
		}
		if t.ID == "" {
			return fmt.Errorf("task payload missing id")
		}
		return repo.Upsert(ctx, &t)
	}
}

func projectUpsert(repo projects.Repository) Handler {
	return func(ctx context.Context, payload json.RawMessage) error {
		var p models.Project
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("invalid project payload: %w", err)
		}
		if p.ID == "" {
			return fmt.Errorf("project payload missing id")
		}
		return repo.Upsert(ctx, &p)
	}
}

func progressLogged(repo projects.Repository) Handler {
	return func(ctx context.Context, payload json.RawMessage) error {
		var log models.ProgressLog
		if err := json.Unmarshal(payload, &log); err != nil {
			return fmt.Errorf("invalid progress payload: %w", err)
		}
		if log.ProjectID == "" {
			return fmt.Errorf("progress payload missing projectId")
		}
		return repo.LogProgress(ctx, &log)
	}
}

func transactionUpsert(repo transactions.Repository) Handler {
	return func(ctx context.Context, payload json.RawMessage) error {
		var t models.Transaction
		if err := json.Unmarshal(payload, &t); err != nil {
			return fmt.Errorf("invalid transaction payload: %w", err)
		}
		if t.ID == "" {
			return fmt.Errorf("transaction payload missing id")
		}
		return repo.Upsert(ctx, &t)
	}
}

func deleteByID(del func(ctx context.Context, id string) error) Handler {
	return func(ctx context.Context, payload json.RawMessage) error {
		var ref struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(payload, &ref); err != nil {
			return fmt.Errorf("invalid delete payload: %w", err)
		}
		if ref.ID == "" {
			return fmt.Errorf("delete payload missing id")
		}
		return del(ctx, ref.ID)
	}
}
