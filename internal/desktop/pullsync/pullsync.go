// Package pullsync refreshes the local store from the relay's full
// collections. The relay copy wins for every document it returns.
package pullsync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pocketdesk/pocketdesk/internal/desktop/models"
	"github.com/pocketdesk/pocketdesk/internal/desktop/repositories/projects"
	"github.com/pocketdesk/pocketdesk/internal/desktop/repositories/tasks"
	"github.com/pocketdesk/pocketdesk/internal/desktop/repositories/transactions"
	"github.com/pocketdesk/pocketdesk/internal/logging"
)

// Fetcher pulls one entity type's collection from the relay.
type Fetcher interface {
	FetchCollection(ctx context.Context, entityType string) ([]json.RawMessage, error)
}

// Syncer merges relay collections into the local repositories.
type Syncer struct {
	fetcher      Fetcher
	tasks        tasks.Repository
	projects     projects.Repository
	transactions transactions.Repository
	logger       logging.Logger
}

func New(fetcher Fetcher, tr tasks.Repository, pr projects.Repository, xr transactions.Repository, logger logging.Logger) *Syncer {
	return &Syncer{
		fetcher:      fetcher,
		tasks:        tr,
		projects:     pr,
		transactions: xr,
		logger:       logger.With("module", "pull_sync"),
	}
}

// SyncAll pulls every entity collection and merges each in turn. A failed
// pull of one collection does not block the others.
func (s *Syncer) SyncAll(ctx context.Context) error {
	var firstErr error

	record := func(name string, err error) {
		if err != nil {
			s.logger.Error(ctx, "collection sync failed", "collection", name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	record("tasks", s.syncTasks(ctx))
	record("projects", s.syncProjects(ctx))
	record("transactions", s.syncTransactions(ctx))

	return firstErr
}

// An empty collection is skipped wholesale. An empty reply usually means
// a fresh or misbehaving relay, and merging it would be a no-op anyway
// since the merge never deletes local rows.
func (s *Syncer) syncTasks(ctx context.Context) error {
	docs, err := s.fetcher.FetchCollection(ctx, "task")
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}
	for _, doc := range docs {
		var t models.Task
		if err := json.Unmarshal(doc, &t); err != nil {
			return fmt.Errorf("malformed task document: %w", err)
		}
		if t.ID == "" {
			return fmt.Errorf("malformed task document: missing id")
		}
		if err := s.tasks.Upsert(ctx, &t); err != nil {
			return err
		}
	}
	s.logger.Debug(ctx, "tasks merged", "count", len(docs))
	return nil
}

func (s *Syncer) syncProjects(ctx context.Context) error {
	docs, err := s.fetcher.FetchCollection(ctx, "project")
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}
	for _, doc := range docs {
		var p models.Project
		if err := json.Unmarshal(doc, &p); err != nil {
			return fmt.Errorf("malformed project document: %w", err)
		}
		if p.ID == "" {
			return fmt.Errorf("malformed project document: missing id")
		}
		if err := s.projects.Upsert(ctx, &p); err != nil {
			return err
		}
	}
	s.logger.Debug(ctx, "projects merged", "count", len(docs))
	return nil
}

func (s *Syncer) syncTransactions(ctx context.Context) error {
	docs, err := s.fetcher.FetchCollection(ctx, "transaction")
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}
	for _, doc := range docs {
		var t models.Transaction
		if err := json.Unmarshal(doc, &t); err != nil {
			return fmt.Errorf("malformed transaction document: %w", err)
		}
		if t.ID == "" {
			return fmt.Errorf("malformed transaction document: missing id")
		}
		if err := s.transactions.Upsert(ctx, &t); err != nil {
			return err
		}
	}
	s.logger.Debug(ctx, "transactions merged", "count", len(docs))
	return nil
}
