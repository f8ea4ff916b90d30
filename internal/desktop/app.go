// Package desktop initializes and runs the desktop sync agent: the local
// store, the outbox, the reconciler, and the live channel with its
// reconnect loop.
package desktop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pocketdesk/pocketdesk/internal/common"
	"github.com/pocketdesk/pocketdesk/internal/desktop/config"
	"github.com/pocketdesk/pocketdesk/internal/desktop/livechannel"
	"github.com/pocketdesk/pocketdesk/internal/desktop/outbox"
	"github.com/pocketdesk/pocketdesk/internal/desktop/pullsync"
	"github.com/pocketdesk/pocketdesk/internal/desktop/reconciler"
	"github.com/pocketdesk/pocketdesk/internal/desktop/relayclient"
	"github.com/pocketdesk/pocketdesk/internal/desktop/repositories/settings"
	"github.com/pocketdesk/pocketdesk/internal/desktop/store"
	"github.com/pocketdesk/pocketdesk/internal/logging"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	repos   *store.Repositories
	client  *relayclient.Client
	outbox  *outbox.Service
	puller  *pullsync.Syncer
	channel *livechannel.Channel

	// connected flips when a handshake succeeds, so the reconnect loop can
	// reset its backoff. Touched only from the loop's goroutine.
	connected bool
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	repos, err := store.InitDatabase(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	client := relayclient.New(c.RelayURL, c.APIKey)

	ob := outbox.NewService(repos.Outbox, client, logger)

	rec := reconciler.New(repos.Applied, repos.Tasks, repos.Projects, repos.Transactions, logger)

	puller := pullsync.New(client, repos.Tasks, repos.Projects, repos.Transactions, logger)

	creds := &settingsCredentials{settings: repos.Settings}
	channel := livechannel.New(c.RelayURL, creds, &sessionRecoverer{client: client}, rec, logger)

	app := &App{
		config:  c,
		logger:  logger,
		repos:   repos,
		client:  client,
		outbox:  ob,
		puller:  puller,
		channel: channel,
	}

	channel.SetOnConnect(app.onConnect)

	return app, nil
}

// settingsCredentials adapts the settings repository to the live channel's
// credential store.
type settingsCredentials struct {
	settings settings.Repository
}

func (s *settingsCredentials) Credentials(ctx context.Context) (*livechannel.Credentials, error) {
	token, err := s.settings.Get(ctx, settings.KeySessionToken)
	if err != nil {
		return nil, err
	}
	deviceID, err := s.settings.Get(ctx, settings.KeyDeviceID)
	if err != nil {
		return nil, err
	}
	userID, err := s.settings.Get(ctx, settings.KeyUserID)
	if err != nil {
		return nil, err
	}
	return &livechannel.Credentials{
		SessionToken: token,
		DeviceID:     deviceID,
		UserID:       userID,
	}, nil
}

func (s *settingsCredentials) SaveSessionToken(ctx context.Context, token string) error {
	return s.settings.Set(ctx, settings.KeySessionToken, token)
}

// sessionRecoverer adapts the relay client to the live channel's recovery
// hook.
type sessionRecoverer struct {
	client *relayclient.Client
}

func (r *sessionRecoverer) RecoverSession(ctx context.Context, deviceID, userID string) (string, error) {
	result, err := r.client.RecoverSession(ctx, deviceID, userID)
	if err != nil {
		return "", err
	}
	return result.SessionToken, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Pair redeems a pairing code, stores the resulting session, and announces
// the device.
func (app *App) Pair(ctx context.Context, code string) error {
	result, err := app.client.VerifyCode(ctx, code)
	if err != nil {
		return fmt.Errorf("pairing failed: %w", err)
	}

	s := app.repos.Settings
	if err := s.Set(ctx, settings.KeySessionToken, result.SessionToken); err != nil {
		return err
	}
	if err := s.Set(ctx, settings.KeyDeviceID, result.DeviceID); err != nil {
		return err
	}
	if err := s.Set(ctx, settings.KeyUserID, result.UserID); err != nil {
		return err
	}
	if err := s.Set(ctx, settings.KeyDeviceName, app.config.DeviceName); err != nil {
		return err
	}

	if err := app.client.RegisterDevice(ctx, result.SessionToken, result.DeviceID, app.config.DeviceName); err != nil {
		return fmt.Errorf("device registration failed: %w", err)
	}

	app.logger.Info(ctx, "device paired", "device_id", result.DeviceID)
	return nil
}

// SyncMutation durably queues a local CRUD mutation and attempts one
// immediate push. The desktop's CRUD layer calls it after writing its own
// store; a failed push leaves the entry queued for the next drain.
func (app *App) SyncMutation(ctx context.Context, entityType, action, entityID string, payload json.RawMessage) error {
	return app.outbox.SyncCRUD(ctx, entityType, action, entityID, payload)
}

// Backlog reports how many queued mutations still await delivery.
func (app *App) Backlog(ctx context.Context) (int, error) {
	return app.outbox.Backlog(ctx)
}

// onConnect drains the outbox and pull-syncs the collections. Push before
// pull so local edits reach the relay before its copy overwrites ours.
func (app *App) onConnect(ctx context.Context) {
	app.connected = true

	delivered, err := app.outbox.ProcessQueue(ctx)
	if err != nil {
		app.logger.Error(ctx, "outbox drain incomplete", "delivered", delivered, "error", err)
	} else if delivered > 0 {
		app.logger.Info(ctx, "outbox drained", "delivered", delivered)
	}

	if err := app.puller.SyncAll(ctx); err != nil {
		app.logger.Error(ctx, "pull sync failed", "error", err)
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.initSignalHandler(cancelFunc)

	if app.config.PairingCode != "" {
		if err := app.Pair(ctx, app.config.PairingCode); err != nil {
			app.logger.Error(ctx, "pairing failed", "error", err)
		}
		app.close(ctx)
		return
	}

	app.logger.Info(ctx, "starting desktop agent...")

	delay := app.config.ReconnectMinDelay
	for {
		app.connected = false
		err := app.channel.RunOnce(ctx)
		if ctx.Err() != nil {
			break
		}

		if errors.Is(err, common.ErrRepairRequired) {
			app.logger.Error(ctx, "session cannot be recovered, re-pair this device with a new code")
			break
		}

		if app.connected {
			delay = app.config.ReconnectMinDelay
		}
		if err != nil {
			app.logger.Warn(ctx, "live channel down, reconnecting", "delay", delay.String(), "error", err)
		}

		select {
		case <-ctx.Done():
		case <-time.After(delay):
		}
		if ctx.Err() != nil {
			break
		}

		delay *= 2
		if delay > app.config.ReconnectMaxDelay {
			delay = app.config.ReconnectMaxDelay
		}
	}

	app.close(ctx)
}

func (app *App) close(ctx context.Context) {
	if err := app.repos.DB.Close(); err != nil {
		app.logger.Warn(ctx, "db close error", "error", err)
	}
}
