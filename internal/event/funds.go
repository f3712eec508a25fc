package event

import (
	"time"

	"chipvault/internal/ledger"

	"github.com/google/uuid"
)

// Deposit represents a user locking collateral for chips
type Deposit struct {
	DepositID uuid.UUID      `json:"deposit_id"`
	User      ledger.Address `json:"user"`
	Amount    int64          `json:"amount"`
	Sequence  int64          `json:"sequence"`
	Timestamp time.Time      `json:"timestamp"`
}

func (d *Deposit) IdempotencyKey() string {
	return d.DepositID.String()
}

func (d *Deposit) EventType() EventType {
	return EventTypeDeposit
}

func (d *Deposit) SourceSequence() int64 {
	return d.Sequence
}

func (d *Deposit) OccurredAt() time.Time {
	return d.Timestamp
}

// Withdraw represents a user redeeming chips for collateral
type Withdraw struct {
	WithdrawalID uuid.UUID      `json:"withdrawal_id"`
	User         ledger.Address `json:"user"`
	Amount       int64          `json:"amount"`
	Sequence     int64          `json:"sequence"`
	Timestamp    time.Time      `json:"timestamp"`
}

func (w *Withdraw) IdempotencyKey() string {
	return w.WithdrawalID.String()
}

func (w *Withdraw) EventType() EventType {
	return EventTypeWithdraw
}

func (w *Withdraw) SourceSequence() int64 {
	return w.Sequence
}

func (w *Withdraw) OccurredAt() time.Time {
	return w.Timestamp
}
