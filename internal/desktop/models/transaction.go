package models

import "time"

// Transaction is a financial record in the local store. Amount is stored in
// minor currency units (cents).
type Transaction struct {
	ID         string    `json:"id"`
	Amount     int64     `json:"amount"`
	Currency   string    `json:"currency"`
	Category   string    `json:"category,omitempty"`
	Note       string    `json:"note,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
