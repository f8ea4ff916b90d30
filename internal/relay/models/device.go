package models

import "time"

// Device is a desktop installation known to the relay. Enabled=false blocks
// session recovery for the device without deleting its history.
type Device struct {
	DeviceID  string
	UserID    string
	Name      string
	Enabled   bool
	LastSeen  time.Time
	CreatedAt time.Time
}
