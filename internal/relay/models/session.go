// Package models contains the relay-side data model shared by repositories
// and services.
package models

import "time"

// Session is a long-lived device credential minted when a pairing code is
// redeemed (or recovered for a registered device). The token itself is the
// primary key; deleting the row revokes the session.
type Session struct {
	Token        string
	UserID       string
	DeviceID     string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	LastActivity time.Time
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
