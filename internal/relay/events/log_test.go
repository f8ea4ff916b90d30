package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocketdesk/pocketdesk/internal/common"
	"github.com/pocketdesk/pocketdesk/internal/event"
	"github.com/pocketdesk/pocketdesk/internal/logging"
	"github.com/pocketdesk/pocketdesk/internal/relay/models"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewJSONHandler(io.Discard, nil)))
}

type fakePending struct {
	rows      []models.PendingEvent
	createErr error
}

func (f *fakePending) Create(ctx context.Context, ev *models.PendingEvent) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.rows = append(f.rows, *ev)
	return nil
}

func (f *fakePending) ListByUser(ctx context.Context, userID string) ([]models.PendingEvent, error) {
	var out []models.PendingEvent
	for _, r := range f.rows {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakePending) Delete(ctx context.Context, eventID string) error {
	for i, r := range f.rows {
		if r.EventID == eventID {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			return nil
		}
	}
	return common.ErrorNotFound
}

// recordingBroadcaster notes whether the pending row existed at emit time.
type recordingBroadcaster struct {
	pending     *fakePending
	online      bool
	emitted     []*event.Envelope
	durableSeen bool
}

func (b *recordingBroadcaster) EmitTo(userID string, env *event.Envelope) bool {
	for _, r := range b.pending.rows {
		if r.EventID == env.EventID {
			b.durableSeen = true
		}
	}
	b.emitted = append(b.emitted, env)
	return b.online
}

func TestPublish_PersistsBeforePush(t *testing.T) {
	pending := &fakePending{}
	b := &recordingBroadcaster{pending: pending, online: true}
	l := NewLog(pending, b, testLogger())
	ctx := context.Background()

	eventID, online, err := l.Publish(ctx, "u-1", event.TaskCreated, json.RawMessage(`{"id":"t1"}`))
	require.NoError(t, err)

	assert.True(t, online)
	assert.NotEmpty(t, eventID)
	assert.True(t, b.durableSeen, "pending row must exist before the push")
	require.Len(t, b.emitted, 1)
	assert.Equal(t, eventID, b.emitted[0].EventID)
	assert.Equal(t, event.SourceBot, b.emitted[0].Source)
	assert.False(t, b.emitted[0].IsReplay)
}

func TestPublish_OfflineKeepsEventPending(t *testing.T) {
	pending := &fakePending{}
	b := &recordingBroadcaster{pending: pending, online: false}
	l := NewLog(pending, b, testLogger())
	ctx := context.Background()

	eventID, online, err := l.Publish(ctx, "u-1", event.TaskCreated, json.RawMessage(`{"id":"t1"}`))
	require.NoError(t, err)
	assert.False(t, online)

	backlog, err := l.PendingFor(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, backlog, 1)
	assert.Equal(t, eventID, backlog[0].EventID)
}

func TestPublish_PersistFailureEmitsNothing(t *testing.T) {
	pending := &fakePending{createErr: errors.New("db down")}
	b := &recordingBroadcaster{pending: pending}
	l := NewLog(pending, b, testLogger())

	_, _, err := l.Publish(context.Background(), "u-1", event.TaskCreated, json.RawMessage(`{"id":"t1"}`))
	require.Error(t, err)
	assert.Empty(t, b.emitted)
}

func TestAcknowledge_RemovesPending(t *testing.T) {
	pending := &fakePending{}
	l := NewLog(pending, nil, testLogger())
	ctx := context.Background()

	eventID, _, err := l.Publish(ctx, "u-1", event.TaskCreated, json.RawMessage(`{"id":"t1"}`))
	require.NoError(t, err)

	require.NoError(t, l.Acknowledge(ctx, eventID))

	backlog, err := l.PendingFor(ctx, "u-1")
	require.NoError(t, err)
	assert.Empty(t, backlog)
}

func TestPendingFor_IsPerUser(t *testing.T) {
	pending := &fakePending{}
	l := NewLog(pending, nil, testLogger())
	ctx := context.Background()

	_, _, err := l.Publish(ctx, "u-1", event.TaskCreated, json.RawMessage(`{"id":"t1"}`))
	require.NoError(t, err)
	_, _, err = l.Publish(ctx, "u-2", event.TaskCreated, json.RawMessage(`{"id":"t2"}`))
	require.NoError(t, err)

	backlog, err := l.PendingFor(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, backlog, 1)
	assert.Equal(t, "u-1", backlog[0].UserID)
}

func TestNewLog_NilBroadcasterPublishes(t *testing.T) {
	pending := &fakePending{}
	l := NewLog(pending, nil, testLogger())
	l.now = func() time.Time { return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC) }

	_, online, err := l.Publish(context.Background(), "u-1", event.TaskCreated, json.RawMessage(`{"id":"t1"}`))
	require.NoError(t, err)
	assert.False(t, online)
}
