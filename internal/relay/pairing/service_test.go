package pairing

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocketdesk/pocketdesk/internal/common"
	"github.com/pocketdesk/pocketdesk/internal/logging"
	"github.com/pocketdesk/pocketdesk/internal/relay/auth"
	"github.com/pocketdesk/pocketdesk/internal/relay/models"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewJSONHandler(io.Discard, nil)))
}

type fakeCodes struct {
	codes   map[string]*models.PairingCode
	created int
}

func newFakeCodes() *fakeCodes {
	return &fakeCodes{codes: map[string]*models.PairingCode{}}
}

func (f *fakeCodes) Create(ctx context.Context, c *models.PairingCode) error {
	cc := *c
	f.codes[c.Code] = &cc
	f.created++
	return nil
}

func (f *fakeCodes) Find(ctx context.Context, code string) (*models.PairingCode, error) {
	c, ok := f.codes[code]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cc := *c
	return &cc, nil
}

func (f *fakeCodes) CountCreatedSince(ctx context.Context, userID string, cutoff time.Time) (int, error) {
	n := 0
	for _, c := range f.codes {
		if c.UserID == userID && !c.CreatedAt.Before(cutoff) {
			n++
		}
	}
	return n, nil
}

func (f *fakeCodes) MarkUsed(ctx context.Context, code string) error {
	c, ok := f.codes[code]
	if !ok || c.Used {
		return common.ErrorNotFound
	}
	c.Used = true
	return nil
}

func (f *fakeCodes) InvalidateUnused(ctx context.Context, userID string, now time.Time) error {
	for _, c := range f.codes {
		if c.UserID == userID && !c.Used && c.ExpiresAt.After(now) {
			c.ExpiresAt = now
		}
	}
	return nil
}

func (f *fakeCodes) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for k, c := range f.codes {
		if !c.ExpiresAt.After(cutoff) {
			delete(f.codes, k)
			n++
		}
	}
	return n, nil
}

type fakeSessions struct {
	sessions map[string]*models.Session
	deleted  []string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: map[string]*models.Session{}}
}

func (f *fakeSessions) Create(ctx context.Context, s *models.Session) error {
	ss := *s
	f.sessions[s.Token] = &ss
	return nil
}

func (f *fakeSessions) Find(ctx context.Context, token string) (*models.Session, error) {
	s, ok := f.sessions[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	ss := *s
	return &ss, nil
}

func (f *fakeSessions) TouchActivity(ctx context.Context, token string, at time.Time) error {
	if s, ok := f.sessions[token]; ok {
		s.LastActivity = at
	}
	return nil
}

func (f *fakeSessions) Delete(ctx context.Context, token string) error {
	delete(f.sessions, token)
	f.deleted = append(f.deleted, token)
	return nil
}

func (f *fakeSessions) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	for k, s := range f.sessions {
		if s.Expired(now) {
			delete(f.sessions, k)
			n++
		}
	}
	return n, nil
}

type fakeDevices struct {
	devices map[string]*models.Device
}

func newFakeDevices() *fakeDevices {
	return &fakeDevices{devices: map[string]*models.Device{}}
}

func key(deviceID, userID string) string { return deviceID + "/" + userID }

func (f *fakeDevices) Upsert(ctx context.Context, d *models.Device) error {
	dd := *d
	f.devices[key(d.DeviceID, d.UserID)] = &dd
	return nil
}

func (f *fakeDevices) Find(ctx context.Context, deviceID, userID string) (*models.Device, error) {
	d, ok := f.devices[key(deviceID, userID)]
	if !ok {
		return nil, common.ErrorNotFound
	}
	dd := *d
	return &dd, nil
}

func (f *fakeDevices) ListByUser(ctx context.Context, userID string) ([]models.Device, error) {
	var out []models.Device
	for _, d := range f.devices {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeDevices) SetEnabled(ctx context.Context, deviceID, userID string, enabled bool) error {
	d, ok := f.devices[key(deviceID, userID)]
	if !ok {
		return common.ErrorNotFound
	}
	d.Enabled = enabled
	return nil
}

type recordingCloser struct {
	closed []string
}

func (c *recordingCloser) CloseSessions(token string) {
	c.closed = append(c.closed, token)
}

type fixture struct {
	svc      *Service
	codes    *fakeCodes
	sessions *fakeSessions
	devices  *fakeDevices
	mock     sqlmock.Sqlmock
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{
		codes:    newFakeCodes(),
		sessions: newFakeSessions(),
		devices:  newFakeDevices(),
		mock:     mock,
		now:      time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(db, f.sessions, f.devices, f.codes, nil, Options{
		SecretKey: []byte("test-secret"),
	}, testLogger())
	f.svc.now = func() time.Time { return f.now }
	return f
}

// expectRedeemTx sets up the transaction the redeem path runs: mark the
// code used, insert the session, commit.
func (f *fixture) expectRedeemTx() {
	f.mock.ExpectBegin()
	f.mock.ExpectExec(`(?s)UPDATE\s+pairing_codes\s+SET\s+used\s*=\s*TRUE`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec(`(?s)INSERT\s+INTO\s+sessions`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()
}

func TestGenerateCode_Format(t *testing.T) {
	f := newFixture(t)

	code, err := f.svc.GenerateCode(context.Background(), "u-1")
	require.NoError(t, err)

	assert.Len(t, code.Code, codeLength)
	for _, c := range code.Code {
		assert.Contains(t, codeAlphabet, string(c))
	}
	assert.Equal(t, f.now.Add(5*time.Minute), code.ExpiresAt)
}

func TestGenerateCode_InvalidatesPreviousCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.GenerateCode(ctx, "u-1")
	require.NoError(t, err)
	f.now = f.now.Add(time.Minute)
	_, err = f.svc.GenerateCode(ctx, "u-1")
	require.NoError(t, err)

	// only the newest code redeems
	_, err = f.svc.RedeemCode(ctx, first.Code)
	assert.True(t, errors.Is(err, common.ErrCodeExpired))
}

func TestGenerateCode_RateLimited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.GenerateCode(ctx, "u-1")
		require.NoError(t, err)
		f.now = f.now.Add(time.Minute)
	}

	_, err := f.svc.GenerateCode(ctx, "u-1")
	assert.True(t, errors.Is(err, common.ErrRateLimited))

	// a different user is unaffected
	_, err = f.svc.GenerateCode(ctx, "u-2")
	assert.NoError(t, err)

	// the window rolls: 11 minutes after the first code there is room again
	f.now = f.now.Add(9 * time.Minute)
	_, err = f.svc.GenerateCode(ctx, "u-1")
	assert.NoError(t, err)
}

func TestRedeemCode_MintsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.codes.Create(ctx, &models.PairingCode{
		Code: "ABC234", UserID: "u-1", CreatedAt: f.now, ExpiresAt: f.now.Add(5 * time.Minute),
	})
	f.expectRedeemTx()

	result, err := f.svc.RedeemCode(ctx, "ABC234")
	require.NoError(t, err)

	assert.Equal(t, "u-1", result.UserID)
	assert.NotEmpty(t, result.DeviceID)
	assert.Equal(t, f.now.Add(30*24*time.Hour), result.ExpiresAt)

	claims, err := auth.ParseToken(result.Token, []byte("test-secret"))
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, result.DeviceID, claims.DeviceID)

	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRedeemCode_Invalid(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RedeemCode(context.Background(), "NOSUCH")
	assert.True(t, errors.Is(err, common.ErrInvalidCode))
}

func TestRedeemCode_AlreadyUsed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.codes.Create(ctx, &models.PairingCode{
		Code: "ABC234", UserID: "u-1", CreatedAt: f.now, ExpiresAt: f.now.Add(5 * time.Minute), Used: true,
	})

	_, err := f.svc.RedeemCode(ctx, "ABC234")
	assert.True(t, errors.Is(err, common.ErrCodeAlreadyUsed))
}

func TestRedeemCode_Expired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.codes.Create(ctx, &models.PairingCode{
		Code: "ABC234", UserID: "u-1", CreatedAt: f.now.Add(-10 * time.Minute), ExpiresAt: f.now.Add(-5 * time.Minute),
	})

	_, err := f.svc.RedeemCode(ctx, "ABC234")
	assert.True(t, errors.Is(err, common.ErrCodeExpired))
}

func TestRedeemCode_UsedAndExpiredReportsExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.codes.Create(ctx, &models.PairingCode{
		Code: "ABC234", UserID: "u-1", CreatedAt: f.now.Add(-10 * time.Minute),
		ExpiresAt: f.now.Add(-5 * time.Minute), Used: true,
	})

	_, err := f.svc.RedeemCode(ctx, "ABC234")
	assert.True(t, errors.Is(err, common.ErrCodeExpired))
}

func TestRedeemCode_LostRaceMapsToAlreadyUsed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.codes.Create(ctx, &models.PairingCode{
		Code: "ABC234", UserID: "u-1", CreatedAt: f.now, ExpiresAt: f.now.Add(5 * time.Minute),
	})

	// another redeemer flipped used between Find and the transaction
	f.mock.ExpectBegin()
	f.mock.ExpectExec(`(?s)UPDATE\s+pairing_codes\s+SET\s+used\s*=\s*TRUE`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectRollback()

	_, err := f.svc.RedeemCode(ctx, "ABC234")
	assert.True(t, errors.Is(err, common.ErrCodeAlreadyUsed))
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func redeem(t *testing.T, f *fixture, code string) *RedeemResult {
	t.Helper()
	f.expectRedeemTx()
	result, err := f.svc.RedeemCode(context.Background(), code)
	require.NoError(t, err)
	// the tx path writes through sqlmock; mirror the session into the fake
	require.NoError(t, f.sessions.Create(context.Background(), &models.Session{
		Token:     result.Token,
		UserID:    result.UserID,
		DeviceID:  result.DeviceID,
		CreatedAt: f.now,
		ExpiresAt: result.ExpiresAt,
	}))
	return result
}

func seedCode(f *fixture, code, userID string) {
	f.codes.Create(context.Background(), &models.PairingCode{
		Code: code, UserID: userID, CreatedAt: f.now, ExpiresAt: f.now.Add(5 * time.Minute),
	})
}

func TestValidateToken_Success(t *testing.T) {
	f := newFixture(t)
	seedCode(f, "ABC234", "u-1")
	result := redeem(t, f, "ABC234")

	session, err := f.svc.ValidateToken(context.Background(), result.Token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", session.UserID)
	assert.Equal(t, result.DeviceID, session.DeviceID)
}

func TestValidateToken_Garbage(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ValidateToken(context.Background(), "not-a-token")
	assert.True(t, errors.Is(err, common.ErrInvalidToken))
}

func TestValidateToken_RevokedSession(t *testing.T) {
	f := newFixture(t)
	seedCode(f, "ABC234", "u-1")
	result := redeem(t, f, "ABC234")

	require.NoError(t, f.sessions.Delete(context.Background(), result.Token))

	_, err := f.svc.ValidateToken(context.Background(), result.Token)
	assert.True(t, errors.Is(err, common.ErrInvalidToken))
}

func TestValidateToken_ExpiredSessionRow(t *testing.T) {
	f := newFixture(t)
	seedCode(f, "ABC234", "u-1")
	result := redeem(t, f, "ABC234")

	// the stored row expires even if the signed expiry has not passed
	f.sessions.sessions[result.Token].ExpiresAt = f.now.Add(-time.Minute)

	_, err := f.svc.ValidateToken(context.Background(), result.Token)
	assert.True(t, errors.Is(err, common.ErrSessionExpired))
}

func TestUnpair_RevokesAndClosesConnections(t *testing.T) {
	f := newFixture(t)
	closer := &recordingCloser{}
	f.svc.SetConnectionCloser(closer)

	seedCode(f, "ABC234", "u-1")
	result := redeem(t, f, "ABC234")

	require.NoError(t, f.svc.Unpair(context.Background(), result.Token))

	assert.Contains(t, f.sessions.deleted, result.Token)
	assert.Equal(t, []string{result.Token}, closer.closed)

	err := f.svc.Unpair(context.Background(), result.Token)
	assert.True(t, errors.Is(err, common.ErrInvalidToken))
}

func TestRecoverSession_RequiresEnabledDevice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RecoverSession(ctx, "dev-1", "u-1")
	assert.True(t, errors.Is(err, common.ErrDeviceNotRegistered))

	require.NoError(t, f.devices.Upsert(ctx, &models.Device{
		DeviceID: "dev-1", UserID: "u-1", Name: "laptop", Enabled: true, CreatedAt: f.now,
	}))

	result, err := f.svc.RecoverSession(ctx, "dev-1", "u-1")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)

	session, err := f.sessions.Find(ctx, result.Token)
	require.NoError(t, err)
	assert.Equal(t, "dev-1", session.DeviceID)

	// disabling the device blocks further recovery
	require.NoError(t, f.devices.SetEnabled(ctx, "dev-1", "u-1", false))
	_, err = f.svc.RecoverSession(ctx, "dev-1", "u-1")
	assert.True(t, errors.Is(err, common.ErrDeviceNotRegistered))
}

func TestRegisterDevice(t *testing.T) {
	f := newFixture(t)
	seedCode(f, "ABC234", "u-1")
	result := redeem(t, f, "ABC234")
	ctx := context.Background()

	require.NoError(t, f.svc.RegisterDevice(ctx, result.Token, result.DeviceID, "laptop"))

	d, err := f.devices.Find(ctx, result.DeviceID, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "laptop", d.Name)
	assert.True(t, d.Enabled)
}

func TestSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seedCode(f, "OLD234", "u-1")
	f.codes.codes["OLD234"].ExpiresAt = f.now.Add(-time.Hour)
	seedCode(f, "NEW234", "u-1")
	f.codes.codes["NEW234"].ExpiresAt = f.now.Add(-time.Minute)
	require.NoError(t, f.sessions.Create(ctx, &models.Session{
		Token: "tok-old", UserID: "u-1", ExpiresAt: f.now.Add(-time.Hour),
	}))

	f.svc.Sweep(ctx)

	_, err := f.codes.Find(ctx, "OLD234")
	assert.True(t, errors.Is(err, common.ErrorNotFound))

	// a recently expired code survives until it ages out of the rate window
	_, err = f.codes.Find(ctx, "NEW234")
	assert.NoError(t, err)

	_, err = f.sessions.Find(ctx, "tok-old")
	assert.True(t, errors.Is(err, common.ErrorNotFound))
}

func TestRedeemCode_TxFailureSurfaces(t *testing.T) {
	f := newFixture(t)
	seedCode(f, "ABC234", "u-1")

	f.mock.ExpectBegin()
	f.mock.ExpectExec(`(?s)UPDATE\s+pairing_codes\s+SET\s+used\s*=\s*TRUE`).
		WillReturnError(sql.ErrConnDone)
	f.mock.ExpectRollback()

	_, err := f.svc.RedeemCode(context.Background(), "ABC234")
	require.Error(t, err)
	assert.False(t, errors.Is(err, common.ErrCodeAlreadyUsed))
}
