// Package relay initializes and runs the relay server: storage, pairing,
// the event log, the live channel, and the HTTP API, with graceful
// shutdown on OS signals.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pocketdesk/pocketdesk/internal/logging"
	"github.com/pocketdesk/pocketdesk/internal/relay/apikeys"
	"github.com/pocketdesk/pocketdesk/internal/relay/config"
	"github.com/pocketdesk/pocketdesk/internal/relay/events"
	"github.com/pocketdesk/pocketdesk/internal/relay/httpapi"
	"github.com/pocketdesk/pocketdesk/internal/relay/livechannel"
	"github.com/pocketdesk/pocketdesk/internal/relay/pairing"
	"github.com/pocketdesk/pocketdesk/internal/relay/repositories/repomanager"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	repos   repomanager.RepositoryManager
	pairing *pairing.Service
	apikeys *apikeys.Service
	log     *events.Log
	hub     *livechannel.Hub
	server  *httpapi.Server
}

func NewApp(c *config.Config) (*App, error) {
	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	rm, err := repomanager.NewPostgresRepositoryManager(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	ak := apikeys.NewService(rm.Users(), logger)

	ps := pairing.NewService(rm.Conn(), rm.Sessions(), rm.Devices(), rm.PairingCodes(), nil, pairing.Options{
		SecretKey:       []byte(c.SecretKey),
		CodeTTL:         c.PairingCodeTTL,
		SessionTTL:      c.SessionTTL,
		RateLimitWindow: c.PairingRateWindow,
		RateLimitMax:    c.PairingRateMax,
	}, logger)

	log := events.NewLog(rm.PendingEvents(), nil, logger)

	hub := livechannel.NewHub(ps, log, logger)
	log.SetBroadcaster(hub)
	ps.SetConnectionCloser(hub)

	server := httpapi.NewServer(ps, log, hub, ak, rm.Entities(), logger)

	return &App{
		config:  c,
		logger:  logger,
		repos:   rm,
		pairing: ps,
		apikeys: ak,
		log:     log,
		hub:     hub,
		server:  server,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) runSweeper(ctx context.Context) {
	if app.config.SweepInterval <= 0 {
		return
	}

	ticker := time.NewTicker(app.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			app.pairing.Sweep(ctx)
		}
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting relay...")

	app.initSignalHandler(cancelFunc)

	if err := app.repos.RunMigrations(ctx); err != nil {
		app.logger.Error(ctx, "migrations failed", "error", err)
		return
	}

	if app.config.BootstrapUser != "" {
		userID, key, err := app.apikeys.Bootstrap(ctx, app.config.BootstrapUser)
		if err != nil {
			app.logger.Error(ctx, "bootstrap failed", "error", err)
			return
		}
		if key != "" {
			// The plaintext key is shown exactly once.
			fmt.Fprintf(os.Stderr, "bootstrap user %s provisioned, api key: %s\n", userID, key)
		}
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.runSweeper(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.server.Run(ctx, app.config.EndpointAddrHTTP); err != nil {
			app.logger.Error(ctx, "http server error", "error", err)
			cancelFunc()
		}
	}()

	wg.Wait()

	if err := app.repos.Close(); err != nil {
		app.logger.Warn(ctx, "db close error", "error", err)
	}
}
