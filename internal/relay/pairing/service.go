// Package pairing implements the identity layer: short-lived pairing codes,
// their exchange for long-lived device sessions, device registration, and
// session recovery for known devices.
package pairing

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/pocketdesk/pocketdesk/internal/common"
	"github.com/pocketdesk/pocketdesk/internal/dbx"
	"github.com/pocketdesk/pocketdesk/internal/logging"
	"github.com/pocketdesk/pocketdesk/internal/relay/auth"
	"github.com/pocketdesk/pocketdesk/internal/relay/models"
	"github.com/pocketdesk/pocketdesk/internal/relay/repositories/devices"
	"github.com/pocketdesk/pocketdesk/internal/relay/repositories/pairingcodes"
	"github.com/pocketdesk/pocketdesk/internal/relay/repositories/sessions"
)

// codeAlphabet excludes visually ambiguous characters (0/O, 1/I/L).
const codeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

const codeLength = 6

// ConnectionCloser closes live connections authenticated with a session
// token. The live channel hub implements it; NopCloser is the fallback when
// no hub is attached (tests, tooling).
type ConnectionCloser interface {
	CloseSessions(token string)
}

// NopCloser is a ConnectionCloser that does nothing.
type NopCloser struct{}

func (NopCloser) CloseSessions(string) {}

// Options bundles the tunables of the pairing service.
type Options struct {
	SecretKey       []byte
	CodeTTL         time.Duration
	SessionTTL      time.Duration
	RateLimitWindow time.Duration
	RateLimitMax    int
}

// Service implements pairing-code and session lifecycle operations.
type Service struct {
	db       *sql.DB
	sessions sessions.Repository
	devices  devices.Repository
	codes    pairingcodes.Repository
	closer   ConnectionCloser
	opts     Options
	logger   logging.Logger
	now      func() time.Time
}

// NewService constructs the pairing service. The *sql.DB handle is needed in
// addition to the repositories because code redemption runs in a single
// transaction. Pass nil closer to fall back to NopCloser.
func NewService(db *sql.DB, sr sessions.Repository, dr devices.Repository, cr pairingcodes.Repository, closer ConnectionCloser, opts Options, logger logging.Logger) *Service {
	if closer == nil {
		closer = NopCloser{}
	}
	if opts.CodeTTL <= 0 {
		opts.CodeTTL = 5 * time.Minute
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 30 * 24 * time.Hour
	}
	if opts.RateLimitWindow <= 0 {
		opts.RateLimitWindow = 10 * time.Minute
	}
	if opts.RateLimitMax <= 0 {
		opts.RateLimitMax = 3
	}
	return &Service{
		db:       db,
		sessions: sr,
		devices:  dr,
		codes:    cr,
		closer:   closer,
		opts:     opts,
		logger:   logger.With("module", "pairing"),
		now:      time.Now,
	}
}

// SetConnectionCloser attaches the live hub after construction. The hub
// validates tokens through this service and this service closes connections
// through the hub; the app wires the cycle through this setter.
func (s *Service) SetConnectionCloser(closer ConnectionCloser) {
	if closer == nil {
		closer = NopCloser{}
	}
	s.closer = closer
}

// GeneratedCode is the result of GenerateCode.
type GeneratedCode struct {
	Code      string
	ExpiresAt time.Time
}

// GenerateCode mints a fresh single-use pairing code for the user. At most
// RateLimitMax codes may be generated per rolling RateLimitWindow; prior
// unused codes are invalidated so only the newest one redeems.
func (s *Service) GenerateCode(ctx context.Context, userID string) (*GeneratedCode, error) {
	now := s.now()

	count, err := s.codes.CountCreatedSince(ctx, userID, now.Add(-s.opts.RateLimitWindow))
	if err != nil {
		return nil, fmt.Errorf("rate limit check: %w", err)
	}
	if count >= s.opts.RateLimitMax {
		return nil, common.ErrRateLimited
	}

	if err := s.codes.InvalidateUnused(ctx, userID, now); err != nil {
		return nil, fmt.Errorf("invalidating previous codes: %w", err)
	}

	code, err := randomCode()
	if err != nil {
		return nil, fmt.Errorf("generating code: %w", err)
	}

	pc := &models.PairingCode{
		Code:      code,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.opts.CodeTTL),
	}
	if err := s.codes.Create(ctx, pc); err != nil {
		return nil, fmt.Errorf("storing code: %w", err)
	}

	s.logger.Info(ctx, "pairing code generated", "user_id", userID, "expires_at", pc.ExpiresAt)

	return &GeneratedCode{Code: code, ExpiresAt: pc.ExpiresAt}, nil
}

// RedeemResult is the session minted by RedeemCode.
type RedeemResult struct {
	Token     string
	DeviceID  string
	UserID    string
	ExpiresAt time.Time
}

// RedeemCode exchanges a valid pairing code for a new device session. The
// used flag flips and the session row is inserted in one transaction, so a
// code can never mint two sessions.
func (s *Service) RedeemCode(ctx context.Context, code string) (*RedeemResult, error) {
	now := s.now()

	pc, err := s.codes.Find(ctx, code)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidCode
		}
		return nil, fmt.Errorf("looking up code: %w", err)
	}

	if pc.Expired(now) {
		return nil, common.ErrCodeExpired
	}

	if pc.Used {
		return nil, common.ErrCodeAlreadyUsed
	}

	deviceID := uuid.NewString()
	expiresAt := now.Add(s.opts.SessionTTL)

	token, err := auth.GenerateToken(pc.UserID, deviceID, s.opts.SecretKey, s.opts.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("signing token: %w", err)
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := pairingcodes.NewPostgresRepository(tx).MarkUsed(ctx, code); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrCodeAlreadyUsed
			}
			return err
		}
		return sessions.NewPostgresRepository(tx).Create(ctx, &models.Session{
			Token:        token,
			UserID:       pc.UserID,
			DeviceID:     deviceID,
			CreatedAt:    now,
			ExpiresAt:    expiresAt,
			LastActivity: now,
		})
	})
	if err != nil {
		if errors.Is(err, common.ErrCodeAlreadyUsed) {
			return nil, common.ErrCodeAlreadyUsed
		}
		return nil, fmt.Errorf("redeeming code: %w", err)
	}

	s.logger.Info(ctx, "pairing code redeemed", "user_id", pc.UserID, "device_id", deviceID)

	return &RedeemResult{
		Token:     token,
		DeviceID:  deviceID,
		UserID:    pc.UserID,
		ExpiresAt: expiresAt,
	}, nil
}

// RegisterDevice upserts the device record for a valid session, refreshing
// name and last_seen.
func (s *Service) RegisterDevice(ctx context.Context, token, deviceID, name string) error {
	session, err := s.ValidateToken(ctx, token)
	if err != nil {
		return err
	}

	now := s.now()
	return s.devices.Upsert(ctx, &models.Device{
		DeviceID:  deviceID,
		UserID:    session.UserID,
		Name:      name,
		Enabled:   true,
		LastSeen:  now,
		CreatedAt: now,
	})
}

// RecoverResult is the fresh session issued by RecoverSession.
type RecoverResult struct {
	Token     string
	ExpiresAt time.Time
}

// RecoverSession issues a brand-new session for a device whose token was
// rejected. It requires an enabled device row for the (device, user) pair;
// failure is terminal and the caller must re-pair.
func (s *Service) RecoverSession(ctx context.Context, deviceID, userID string) (*RecoverResult, error) {
	device, err := s.devices.Find(ctx, deviceID, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrDeviceNotRegistered
		}
		return nil, fmt.Errorf("looking up device: %w", err)
	}
	if !device.Enabled {
		return nil, common.ErrDeviceNotRegistered
	}

	now := s.now()
	expiresAt := now.Add(s.opts.SessionTTL)

	token, err := auth.GenerateToken(userID, deviceID, s.opts.SecretKey, s.opts.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("signing token: %w", err)
	}

	if err := s.sessions.Create(ctx, &models.Session{
		Token:        token,
		UserID:       userID,
		DeviceID:     deviceID,
		CreatedAt:    now,
		ExpiresAt:    expiresAt,
		LastActivity: now,
	}); err != nil {
		return nil, fmt.Errorf("storing session: %w", err)
	}

	s.logger.Info(ctx, "session recovered", "user_id", userID, "device_id", deviceID)

	return &RecoverResult{Token: token, ExpiresAt: expiresAt}, nil
}

// ValidateToken checks signature, expiry, and revocation for a session
// token, refreshing last_activity on success.
func (s *Service) ValidateToken(ctx context.Context, token string) (*models.Session, error) {
	if _, err := auth.ParseToken(token, s.opts.SecretKey); err != nil {
		return nil, err
	}

	session, err := s.sessions.Find(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, fmt.Errorf("looking up session: %w", err)
	}

	if session.Expired(s.now()) {
		return nil, common.ErrSessionExpired
	}

	if err := s.sessions.TouchActivity(ctx, token, s.now()); err != nil {
		s.logger.Warn(ctx, "failed to refresh session activity", "error", err)
	}

	return session, nil
}

// Unpair revokes the session and closes any live connection using it.
func (s *Service) Unpair(ctx context.Context, token string) error {
	session, err := s.sessions.Find(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrInvalidToken
		}
		return fmt.Errorf("looking up session: %w", err)
	}

	if err := s.sessions.Delete(ctx, token); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}

	s.closer.CloseSessions(token)

	s.logger.Info(ctx, "device unpaired", "user_id", session.UserID, "device_id", session.DeviceID)

	return nil
}

// ListDevices returns the devices registered for the session's user.
func (s *Service) ListDevices(ctx context.Context, token string) ([]models.Device, error) {
	session, err := s.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.devices.ListByUser(ctx, session.UserID)
}

// SetDeviceEnabled toggles whether a device may recover sessions. Disabling
// blocks recovery without deleting the device's history.
func (s *Service) SetDeviceEnabled(ctx context.Context, token, deviceID string, enabled bool) error {
	session, err := s.ValidateToken(ctx, token)
	if err != nil {
		return err
	}
	if err := s.devices.SetEnabled(ctx, deviceID, session.UserID, enabled); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrDeviceNotRegistered
		}
		return err
	}
	return nil
}

// Sweep removes expired sessions and pairing codes. It bounds storage
// growth; every validation path re-checks expiry on its own. Codes are kept
// for a full rate-limit window past expiry so the rolling count stays
// accurate.
func (s *Service) Sweep(ctx context.Context) {
	now := s.now()
	if n, err := s.sessions.DeleteExpired(ctx, now); err != nil {
		s.logger.Warn(ctx, "session sweep failed", "error", err)
	} else if n > 0 {
		s.logger.Info(ctx, "expired sessions removed", "count", n)
	}
	if n, err := s.codes.DeleteExpired(ctx, now.Add(-s.opts.RateLimitWindow)); err != nil {
		s.logger.Warn(ctx, "pairing code sweep failed", "error", err)
	} else if n > 0 {
		s.logger.Info(ctx, "expired pairing codes removed", "count", n)
	}
}

func randomCode() (string, error) {
	buf := make([]byte, codeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
