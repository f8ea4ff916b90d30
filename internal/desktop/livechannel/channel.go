// Package livechannel maintains the desktop's websocket connection to the
// relay and feeds incoming events through the reconciler.
package livechannel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pocketdesk/pocketdesk/internal/common"
	"github.com/pocketdesk/pocketdesk/internal/event"
	"github.com/pocketdesk/pocketdesk/internal/logging"
)

const (
	handshakeTimeout = 10 * time.Second
	readTimeout      = 90 * time.Second
	writeTimeout     = 10 * time.Second
)

// Credentials is the desktop's stored identity needed to connect and to
// recover a rejected session.
type Credentials struct {
	SessionToken string
	DeviceID     string
	UserID       string
}

// CredentialStore loads and persists the session credentials.
type CredentialStore interface {
	Credentials(ctx context.Context) (*Credentials, error)
	SaveSessionToken(ctx context.Context, token string) error
}

// Recoverer exchanges a registered device identity for a fresh session
// token.
type Recoverer interface {
	RecoverSession(ctx context.Context, deviceID, userID string) (token string, err error)
}

// Applier reconciles one incoming envelope. ack reports whether the event
// must be acknowledged.
type Applier interface {
	Apply(ctx context.Context, env *event.Envelope) (ack bool, err error)
}

// Channel is one desktop's live connection to the relay.
type Channel struct {
	wsURL     string
	store     CredentialStore
	recoverer Recoverer
	applier   Applier
	logger    logging.Logger

	mu   sync.Mutex
	conn *websocket.Conn

	// Connected is signalled after each successful handshake, before the
	// read loop starts. The app drains the outbox and pull-syncs on it.
	onConnect func(ctx context.Context)
}

func New(relayURL string, store CredentialStore, recoverer Recoverer, applier Applier, logger logging.Logger) *Channel {
	return &Channel{
		wsURL:     toWebsocketURL(relayURL),
		store:     store,
		recoverer: recoverer,
		applier:   applier,
		logger:    logger.With("module", "live_channel"),
	}
}

// SetOnConnect registers the callback invoked after each successful
// handshake.
func (c *Channel) SetOnConnect(fn func(ctx context.Context)) {
	c.onConnect = fn
}

// RunOnce dials the relay, runs the read loop, and returns when the
// connection drops or ctx is cancelled. A rejected token triggers one
// session recovery attempt; if that fails the error is
// common.ErrRepairRequired and the device must be re-paired.
func (c *Channel) RunOnce(ctx context.Context) error {
	creds, err := c.store.Credentials(ctx)
	if err != nil {
		return err
	}
	if creds.SessionToken == "" || creds.DeviceID == "" {
		return common.ErrRepairRequired
	}

	conn, err := c.dial(ctx, creds.SessionToken)
	if err != nil {
		if !isAuthRejection(err) {
			return err
		}
		token, rerr := c.recoverSession(ctx, creds)
		if rerr != nil {
			return rerr
		}
		conn, err = c.dial(ctx, token)
		if err != nil {
			if isAuthRejection(err) {
				return common.ErrRepairRequired
			}
			return err
		}
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
	}()

	c.logger.Info(ctx, "live channel connected")
	if c.onConnect != nil {
		c.onConnect(ctx)
	}

	return c.readLoop(ctx, conn)
}

func (c *Channel) dial(ctx context.Context, token string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}

	u := c.wsURL + "?token=" + url.QueryEscape(token)
	conn, resp, err := dialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, common.ErrInvalidToken
		}
		return nil, fmt.Errorf("dial failed: %w", err)
	}
	return conn, nil
}

// recoverSession asks the relay for a fresh token and persists it. Any
// failure means the device cannot self-heal and needs a new pairing code.
func (c *Channel) recoverSession(ctx context.Context, creds *Credentials) (string, error) {
	c.logger.Info(ctx, "session rejected, attempting recovery", "device_id", creds.DeviceID)

	token, err := c.recoverer.RecoverSession(ctx, creds.DeviceID, creds.UserID)
	if err != nil {
		c.logger.Error(ctx, "session recovery failed", "error", err)
		return "", common.ErrRepairRequired
	}
	if err := c.store.SaveSessionToken(ctx, token); err != nil {
		return "", err
	}
	c.logger.Info(ctx, "session recovered")
	return token, nil
}

func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeTimeout))
	})

	// The watcher unblocks the read below on cancellation and exits with
	// the loop, so a dropped connection does not strand it.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var msg event.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("connection lost: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		if msg.Type != event.MessageSyncEvent || msg.Event == nil {
			continue
		}

		ack, err := c.applier.Apply(ctx, msg.Event)
		if err != nil {
			c.logger.Error(ctx, "event not applied, awaiting redelivery",
				"event_id", msg.Event.EventID, "error", err)
		}
		if ack {
			if err := c.sendAck(msg.Event.EventID); err != nil {
				return fmt.Errorf("ack failed: %w", err)
			}
		}
	}
}

func (c *Channel) sendAck(eventID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(event.Message{Type: event.MessageEventAck, EventID: eventID})
}

func isAuthRejection(err error) bool {
	return errors.Is(err, common.ErrInvalidToken)
}

func toWebsocketURL(relayURL string) string {
	u := relayURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return strings.TrimSuffix(u, "/") + "/ws"
}
