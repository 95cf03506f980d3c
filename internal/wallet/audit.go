package wallet

import (
	"encoding/json"
	"log"
	"time"

	"github.com/shopspring/decimal"
)

type AuditEvent struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	RefID     string    `json:"ref_id"`
	UserID    string    `json:"user_id"`
	Amount    string    `json:"amount,omitempty"`
	Status    string    `json:"status"`
	Details   any       `json:"details,omitempty"`
}

// AuditLogger writes one structured line per money movement. It is a log
// sink, not the ledger: the wallet_transactions table remains the source
// of truth.
type AuditLogger struct{}

func NewAuditLogger() *AuditLogger {
	return &AuditLogger{}
}

func (a *AuditLogger) LogCommit(refID string, users []string, amount decimal.Decimal, reason string) {
	a.log(AuditEvent{
		Timestamp: time.Now(),
		EventType: "COMMIT",
		RefID:     refID,
		Amount:    amount.String(),
		Status:    "SUCCESS",
		Details:   map[string]any{"users": users, "reason": reason},
	})
}

func (a *AuditLogger) LogError(refID, userID string, err error) {
	a.log(AuditEvent{
		Timestamp: time.Now(),
		EventType: "ERROR",
		RefID:     refID,
		UserID:    userID,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	})
}

func (a *AuditLogger) log(event AuditEvent) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
