package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RequestStatusPending   = "pending"
	RequestStatusCompleted = "completed"
	RequestStatusDeclined  = "declined"
	RequestStatusExpired   = "expired"
)

// MoneyRequest is a solicitation for funds from another user. No money
// moves until the designated payer accepts it.
type MoneyRequest struct {
	ID          string          `json:"id" db:"id"`
	RequesterID string          `json:"requesterId" db:"requester_id"`
	PayerID     string          `json:"payerId" db:"payer_id"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Message     string          `json:"message" db:"message"`
	Status      string          `json:"status" db:"status"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
	ExpiresAt   time.Time       `json:"expiresAt" db:"expires_at"`
}
