package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKnownType(t *testing.T) {
	for _, typ := range []string{
		TaskCreated, TaskUpdated, TaskDeleted,
		ProjectCreated, ProjectUpdated, ProjectDeleted, ProjectProgressLogged,
		TransactionCreated, TransactionUpdated, TransactionDeleted,
	} {
		assert.True(t, KnownType(typ), typ)
	}

	assert.False(t, KnownType("task.exploded"))
	assert.False(t, KnownType(""))
}

func TestEnvelopeJSON(t *testing.T) {
	env := &Envelope{
		EventID:   "ev-1",
		EventType: TaskCreated,
		Payload:   json.RawMessage(`{"id":"t-1"}`),
		Timestamp: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		Source:    SourceBot,
		IsReplay:  true,
	}

	raw, err := json.Marshal(&Message{Type: MessageSyncEvent, Event: env})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "sync-event", got["type"])

	inner, ok := got["event"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ev-1", inner["eventId"])
	assert.Equal(t, "task.created", inner["eventType"])
	assert.Equal(t, "bot", inner["source"])
	assert.Equal(t, true, inner["isReplay"])
}

func TestAckMessageOmitsEvent(t *testing.T) {
	raw, err := json.Marshal(&Message{Type: MessageEventAck, EventID: "ev-1"})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "event-ack", got["type"])
	assert.Equal(t, "ev-1", got["eventId"])
	_, hasEvent := got["event"]
	assert.False(t, hasEvent)
}
