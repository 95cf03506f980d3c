package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Wallet transaction types. Amounts are signed: debits carry negative
// amounts, credits positive.
const (
	TxTypeTopup      = "topup"
	TxTypeWithdrawal = "withdrawal"
	TxTypePayment    = "payment"
	TxTypeCommission = "commission"
	TxTypeSend       = "send"
	TxTypeReceive    = "receive"
)

const (
	TxStatusCompleted = "completed"
	TxStatusFailed    = "failed"
)

// WalletTransaction is one immutable ledger row. Rows are only ever
// written inside the same SQL transaction as the balance change they
// represent, and are never updated afterwards except the status field.
type WalletTransaction struct {
	ID          string          `json:"id" db:"id"`
	UserID      string          `json:"userId" db:"user_id"`
	Type        string          `json:"type" db:"type"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Status      string          `json:"status" db:"status"`
	Description string          `json:"description" db:"description"`
	Metadata    json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
}

// Account holds the denormalized current balance for a user. The balance
// must always equal the sum of the user's wallet transaction amounts.
type Account struct {
	UserID    string          `json:"userId" db:"user_id"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	Version   int             `json:"version" db:"version"` // for optimistic locking
	Frozen    bool            `json:"frozen" db:"frozen"`
	UpdatedAt time.Time       `json:"updatedAt" db:"updated_at"`
}
