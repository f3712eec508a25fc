package event

import (
	"time"

	"chipvault/internal/ledger"

	"github.com/google/uuid"
)

// Credit represents a game server awarding winnings to a player
type Credit struct {
	SettlementID uuid.UUID      `json:"settlement_id"`
	Server       ledger.Address `json:"server"`
	User         ledger.Address `json:"user"`
	Amount       int64          `json:"amount"`
	Sequence     int64          `json:"sequence"`
	Timestamp    time.Time      `json:"timestamp"`
}

func (c *Credit) IdempotencyKey() string {
	return c.SettlementID.String()
}

func (c *Credit) EventType() EventType {
	return EventTypeCredit
}

func (c *Credit) SourceSequence() int64 {
	return c.Sequence
}

func (c *Credit) OccurredAt() time.Time {
	return c.Timestamp
}

// Debit represents a game server collecting a player's stake
type Debit struct {
	SettlementID uuid.UUID      `json:"settlement_id"`
	Server       ledger.Address `json:"server"`
	User         ledger.Address `json:"user"`
	Amount       int64          `json:"amount"`
	Sequence     int64          `json:"sequence"`
	Timestamp    time.Time      `json:"timestamp"`
}

func (d *Debit) IdempotencyKey() string {
	return d.SettlementID.String()
}

func (d *Debit) EventType() EventType {
	return EventTypeDebit
}

func (d *Debit) SourceSequence() int64 {
	return d.Sequence
}

func (d *Debit) OccurredAt() time.Time {
	return d.Timestamp
}
