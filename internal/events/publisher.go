package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

// Event types consumed by the notification service.
const (
	TypeBalanceChanged     = "balanceChanged"
	TypeEscrowStateChanged = "escrowStateChanged"
)

type BalanceChangedEvent struct {
	Type       string    `json:"type"`
	UserID     string    `json:"userId"`
	NewBalance string    `json:"newBalance"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurredAt"`
}

type EscrowStateChangedEvent struct {
	Type       string    `json:"type"`
	EscrowID   string    `json:"escrowId"`
	NewState   string    `json:"newState"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Publisher emits post-commit wallet events to Kafka. Delivery is
// best-effort: the engine never blocks a commit on it, and a publisher
// built with no brokers silently drops events.
type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(brokers []string, topic string) *Publisher {
	if len(brokers) == 0 {
		return &Publisher{}
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (p *Publisher) BalanceChanged(ctx context.Context, userID string, newBalance decimal.Decimal, reason string) error {
	return p.publish(ctx, userID, BalanceChangedEvent{
		Type:       TypeBalanceChanged,
		UserID:     userID,
		NewBalance: newBalance.String(),
		Reason:     reason,
		OccurredAt: time.Now(),
	})
}

func (p *Publisher) EscrowStateChanged(ctx context.Context, escrowID, newState string) error {
	return p.publish(ctx, escrowID, EscrowStateChangedEvent{
		Type:       TypeEscrowStateChanged,
		EscrowID:   escrowID,
		NewState:   newState,
		OccurredAt: time.Now(),
	})
}

func (p *Publisher) publish(ctx context.Context, key string, event any) error {
	if p == nil || p.writer == nil {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: data,
	})
}

func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
