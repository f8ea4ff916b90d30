package models

import "time"

// User is an account on the relay. API keys take the form pd_<keyID>_<secret>;
// only the bcrypt hash of the secret is stored, looked up by key id.
type User struct {
	ID         string
	Name       string
	APIKeyID   string
	APIKeyHash []byte
	CreatedAt  time.Time
}
