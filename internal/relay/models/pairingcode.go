package models

import "time"

// PairingCode is a short-lived, single-use secret exchanged for a device
// session. Used transitions false to true exactly once, atomically with the
// session insert.
type PairingCode struct {
	Code      string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
	Used      bool
	Attempts  int
}

// Expired reports whether the code is past its TTL at the given time.
func (c *PairingCode) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
