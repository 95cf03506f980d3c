package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EscrowStatusPending   = "pending"
	EscrowStatusActive    = "active"
	EscrowStatusCompleted = "completed"
	EscrowStatusDisputed  = "disputed"
	EscrowStatusRefunded  = "refunded"
)

// EscrowTransaction represents funds removed from the buyer's spendable
// balance and held by the platform until the trade settles. It reaches a
// terminal state (completed or refunded) exactly once.
type EscrowTransaction struct {
	ID            string          `json:"id" db:"id"`
	ProductID     string          `json:"productId" db:"product_id"`
	BuyerID       string          `json:"buyerId" db:"buyer_id"`
	SellerID      string          `json:"sellerId" db:"seller_id"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	Status        string          `json:"status" db:"status"`
	DisputeReason string          `json:"disputeReason,omitempty" db:"dispute_reason"`
	CreatedAt     time.Time       `json:"createdAt" db:"created_at"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty" db:"completed_at"`
}

// IsTerminal reports whether the escrow can no longer transition.
func (e *EscrowTransaction) IsTerminal() bool {
	return e.Status == EscrowStatusCompleted || e.Status == EscrowStatusRefunded
}
