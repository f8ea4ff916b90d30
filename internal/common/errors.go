// Package common defines shared constants and sentinel errors used across
// the relay and desktop layers of PocketDesk. Callers should use errors.Is
// to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Pairing errors.
	ErrInvalidCode     = errors.New("invalid pairing code")
	ErrCodeExpired     = errors.New("pairing code expired")
	ErrCodeAlreadyUsed = errors.New("pairing code already used")
	ErrRateLimited     = errors.New("pairing code rate limit exceeded")

	// Session lifecycle errors.
	ErrInvalidToken        = errors.New("invalid session token")
	ErrSessionExpired      = errors.New("session expired")
	ErrDeviceNotRegistered = errors.New("device not registered")
	ErrDeviceDisabled      = errors.New("device disabled")

	// ErrRepairRequired is surfaced to the desktop caller when session
	// recovery itself has failed; the only way forward is a new pairing.
	ErrRepairRequired = errors.New("re-pair required")
)
