// Package outbox delivers locally queued mutations to the relay. Entries
// are persisted before any network attempt and pushed strictly in queue
// order.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/pocketdesk/pocketdesk/internal/desktop/models"
	outboxrepo "github.com/pocketdesk/pocketdesk/internal/desktop/repositories/outbox"
	"github.com/pocketdesk/pocketdesk/internal/logging"
)

// retainSynced is how many delivered entries survive pruning for
// troubleshooting.
const retainSynced = 100

// Pusher sends a single queue entry to the relay.
type Pusher interface {
	PushMutation(ctx context.Context, e *models.SyncQueueEntry) error
}

// Service owns the local mutation queue.
type Service struct {
	queue  outboxrepo.Repository
	pusher Pusher
	logger logging.Logger
	now    func() time.Time
}

func NewService(queue outboxrepo.Repository, pusher Pusher, logger logging.Logger) *Service {
	return &Service{
		queue:  queue,
		pusher: pusher,
		logger: logger.With("module", "outbox"),
		now:    time.Now,
	}
}

// Enqueue durably records a local mutation. It never touches the network.
func (s *Service) Enqueue(ctx context.Context, entityType, action, entityID string, payload json.RawMessage) (*models.SyncQueueEntry, error) {
	e := &models.SyncQueueEntry{
		ID:         uuid.NewString(),
		EntityType: entityType,
		Action:     action,
		EntityID:   entityID,
		Payload:    payload,
		CreatedAt:  s.now(),
	}
	if err := s.queue.Enqueue(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// SyncCRUD records the mutation and then attempts an immediate push. A
// failed push is absorbed: the entry stays queued for the next
// ProcessQueue pass and the local operation still succeeds.
func (s *Service) SyncCRUD(ctx context.Context, entityType, action, entityID string, payload json.RawMessage) error {
	e, err := s.Enqueue(ctx, entityType, action, entityID, payload)
	if err != nil {
		return err
	}

	if err := s.pusher.PushMutation(ctx, e); err != nil {
		s.logger.Debug(ctx, "immediate push failed, entry stays queued",
			"entity_type", entityType, "action", action, "error", err)
		return nil
	}

	if err := s.queue.MarkSynced(ctx, entityType, entityID, action); err != nil {
		s.logger.Error(ctx, "failed to mark entry synced", "error", err)
	}
	return nil
}

// ProcessQueue pushes all unsynced entries in creation order and stops at
// the first failure, leaving that entry and everything behind it queued.
// Returns the number of entries delivered.
func (s *Service) ProcessQueue(ctx context.Context) (int, error) {
	entries, err := s.queue.ListUnsynced(ctx)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for i := range entries {
		e := &entries[i]
		if err := s.pusher.PushMutation(ctx, e); err != nil {
			s.logger.Info(ctx, "queue drain stopped",
				"delivered", delivered, "remaining", len(entries)-delivered, "error", err)
			return delivered, err
		}
		if err := s.queue.MarkSyncedByID(ctx, e.ID); err != nil {
			return delivered, err
		}
		delivered++
	}

	if delivered == len(entries) {
		if err := s.queue.PruneSynced(ctx, retainSynced); err != nil {
			s.logger.Error(ctx, "failed to prune synced entries", "error", err)
		}
	}
	return delivered, nil
}

// Backlog reports how many entries await delivery.
func (s *Service) Backlog(ctx context.Context) (int, error) {
	return s.queue.CountUnsynced(ctx)
}
