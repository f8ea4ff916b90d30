// Package livechannel manages the relay's websocket connections: session
// authentication, per-user connection groups, backlog replay on connect,
// and acknowledgement intake.
package livechannel

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pocketdesk/pocketdesk/internal/event"
	"github.com/pocketdesk/pocketdesk/internal/logging"
	"github.com/pocketdesk/pocketdesk/internal/relay/models"
)

// TokenValidator authenticates connection attempts. Implemented by the
// pairing service.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*models.Session, error)
}

// EventLog is the slice of the event log the hub needs: backlog for replay
// and acknowledgement handling.
type EventLog interface {
	Acknowledge(ctx context.Context, eventID string) error
	PendingFor(ctx context.Context, userID string) ([]models.PendingEvent, error)
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second

	sendBuffer = 256
)

// Hub groups live connections by userId. It implements events.Broadcaster
// (EmitTo) and pairing.ConnectionCloser (CloseSessions).
type Hub struct {
	validator TokenValidator
	log       EventLog
	logger    logging.Logger
	upgrader  websocket.Upgrader

	mu     sync.RWMutex
	byUser map[string]map[*connection]struct{}
}

type connection struct {
	ws     *websocket.Conn
	userID string
	token  string
	send   chan *event.Message
	closed chan struct{}
	once   sync.Once

	// Live emits arriving while the backlog replay is still in flight are
	// held back so older pending events always go out first.
	mu        sync.Mutex
	replaying bool
	held      []*event.Message
}

// NewHub constructs the hub.
func NewHub(validator TokenValidator, log EventLog, logger logging.Logger) *Hub {
	return &Hub{
		validator: validator,
		log:       log,
		logger:    logger.With("module", "live_channel"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		byUser: map[string]map[*connection]struct{}{},
	}
}

// ServeHTTP authenticates and upgrades a live-channel connection. The token
// comes from the "token" query parameter. Auth failures answer 401 before
// the upgrade; the desktop treats that status as the recover-session
// trigger.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token := r.URL.Query().Get("token")
	session, err := h.validator.ValidateToken(ctx, token)
	if err != nil {
		h.logger.Warn(ctx, "live connection rejected", "error", err)
		http.Error(w, "invalid or expired session token", http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(ctx, "websocket upgrade failed", "error", err)
		return
	}

	c := &connection{
		ws:        ws,
		userID:    session.UserID,
		token:     token,
		send:      make(chan *event.Message, sendBuffer),
		closed:    make(chan struct{}),
		replaying: true,
	}

	h.register(c)
	h.logger.Info(ctx, "live connection joined", "user_id", c.userID, "device_id", session.DeviceID)

	go c.writePump()
	go h.readPump(c)

	h.replayBacklog(c)
}

func (h *Hub) register(c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group, ok := h.byUser[c.userID]
	if !ok {
		group = map[*connection]struct{}{}
		h.byUser[c.userID] = group
	}
	group[c] = struct{}{}
}

func (h *Hub) unregister(c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if group, ok := h.byUser[c.userID]; ok {
		delete(group, c)
		if len(group) == 0 {
			delete(h.byUser, c.userID)
		}
	}
}

// replayBacklog re-emits the user's pending events in created order with
// the replay flag set, then releases any live emits held back during the
// flush. This is what makes delivery at-least-once across reconnects.
func (h *Hub) replayBacklog(c *connection) {
	ctx := context.Background()

	backlog, err := h.log.PendingFor(ctx, c.userID)
	if err != nil {
		h.logger.Error(ctx, "backlog fetch failed", "user_id", c.userID, "error", err)
		c.finishReplay()
		return
	}

	for i := range backlog {
		ev := &backlog[i]
		c.deliver(&event.Message{
			Type: event.MessageSyncEvent,
			Event: &event.Envelope{
				EventID:   ev.EventID,
				EventType: ev.EventType,
				Payload:   ev.Payload,
				Timestamp: ev.CreatedAt,
				Source:    event.SourceBot,
				IsReplay:  true,
			},
		})
	}

	c.finishReplay()

	if len(backlog) > 0 {
		h.logger.Info(ctx, "backlog replayed", "user_id", c.userID, "count", len(backlog))
	}
}

// EmitTo pushes the envelope to every live connection of the user and
// reports whether at least one was connected.
func (h *Hub) EmitTo(userID string, env *event.Envelope) bool {
	h.mu.RLock()
	group := h.byUser[userID]
	conns := make([]*connection, 0, len(group))
	for c := range group {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	msg := &event.Message{Type: event.MessageSyncEvent, Event: env}
	for _, c := range conns {
		c.enqueue(msg)
	}
	return len(conns) > 0
}

// CloseSessions closes every connection authenticated with the given token.
// Called by the pairing service on unpair.
func (h *Hub) CloseSessions(token string) {
	h.mu.RLock()
	var victims []*connection
	for _, group := range h.byUser {
		for c := range group {
			if c.token == token {
				victims = append(victims, c)
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range victims {
		c.close()
	}
}

// Connected reports whether the user has at least one live connection.
func (h *Hub) Connected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID]) > 0
}

func (h *Hub) readPump(c *connection) {
	defer func() {
		h.unregister(c)
		c.close()
	}()

	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg event.Message
		if err := c.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn(context.Background(), "live connection read error", "user_id", c.userID, "error", err)
			}
			return
		}

		if msg.Type == event.MessageEventAck && msg.EventID != "" {
			if err := h.log.Acknowledge(context.Background(), msg.EventID); err != nil {
				h.logger.Error(context.Background(), "ack handling failed", "event_id", msg.EventID, "error", err)
			}
		}
	}
}

// enqueue queues a message for delivery, holding it back while the
// connection's backlog replay is still running so replayed events keep
// their created order ahead of live ones.
func (c *connection) enqueue(msg *event.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.replaying {
		c.held = append(c.held, msg)
		return
	}
	c.deliver(msg)
}

// finishReplay marks the replay done and flushes held live emits in arrival
// order. The lock spans the flush so no concurrent enqueue can jump ahead
// of a held message.
func (c *connection) finishReplay() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, msg := range c.held {
		c.deliver(msg)
	}
	c.held = nil
	c.replaying = false
}

// deliver pushes to the send channel. A full buffer means the consumer
// stopped draining; the connection is closed and the undelivered events
// stay pending for the next replay.
func (c *connection) deliver(msg *event.Message) {
	select {
	case c.send <- msg:
	case <-c.closed:
	default:
		c.close()
	}
}

func (c *connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *connection) close() {
	c.once.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}
