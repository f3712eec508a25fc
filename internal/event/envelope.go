package event

import (
	"time"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeDeposit
	EventTypeWithdraw
	EventTypeCredit
	EventTypeDebit
	EventTypeServerAuthorized
	EventTypeServerRevoked
	EventTypeOwnershipTransferred
)

// Envelope wraps every event in the log
type Envelope struct {
	// Global monotonic sequence assigned by the vault
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Upstream sequence for ordering validation
	SourceSequence int64

	// JSON-encoded event-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all event payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// SourceSequence returns upstream ordering key
	SourceSequence() int64

	// OccurredAt returns the versioned input timestamp
	OccurredAt() time.Time
}

func (et EventType) String() string {
	switch et {
	case EventTypeDeposit:
		return "Deposit"
	case EventTypeWithdraw:
		return "Withdraw"
	case EventTypeCredit:
		return "Credit"
	case EventTypeDebit:
		return "Debit"
	case EventTypeServerAuthorized:
		return "ServerAuthorized"
	case EventTypeServerRevoked:
		return "ServerRevoked"
	case EventTypeOwnershipTransferred:
		return "OwnershipTransferred"
	default:
		return "Unknown"
	}
}
