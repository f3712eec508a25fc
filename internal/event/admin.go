package event

import (
	"time"

	"chipvault/internal/ledger"

	"github.com/google/uuid"
)

// ServerAuthorized represents the owner adding a game server
// to the authorized set
type ServerAuthorized struct {
	ChangeID  uuid.UUID      `json:"change_id"`
	Owner     ledger.Address `json:"owner"`
	Server    ledger.Address `json:"server"`
	Sequence  int64          `json:"sequence"`
	Timestamp time.Time      `json:"timestamp"`
}

func (s *ServerAuthorized) IdempotencyKey() string {
	return s.ChangeID.String()
}

func (s *ServerAuthorized) EventType() EventType {
	return EventTypeServerAuthorized
}

func (s *ServerAuthorized) SourceSequence() int64 {
	return s.Sequence
}

func (s *ServerAuthorized) OccurredAt() time.Time {
	return s.Timestamp
}

// ServerRevoked represents the owner removing a game server
// from the authorized set
type ServerRevoked struct {
	ChangeID  uuid.UUID      `json:"change_id"`
	Owner     ledger.Address `json:"owner"`
	Server    ledger.Address `json:"server"`
	Sequence  int64          `json:"sequence"`
	Timestamp time.Time      `json:"timestamp"`
}

func (s *ServerRevoked) IdempotencyKey() string {
	return s.ChangeID.String()
}

func (s *ServerRevoked) EventType() EventType {
	return EventTypeServerRevoked
}

func (s *ServerRevoked) SourceSequence() int64 {
	return s.Sequence
}

func (s *ServerRevoked) OccurredAt() time.Time {
	return s.Timestamp
}

// OwnershipTransferred represents the owner handing control
// of the vault to a new address
type OwnershipTransferred struct {
	ChangeID      uuid.UUID      `json:"change_id"`
	PreviousOwner ledger.Address `json:"previous_owner"`
	NewOwner      ledger.Address `json:"new_owner"`
	Sequence      int64          `json:"sequence"`
	Timestamp     time.Time      `json:"timestamp"`
}

func (o *OwnershipTransferred) IdempotencyKey() string {
	return o.ChangeID.String()
}

func (o *OwnershipTransferred) EventType() EventType {
	return EventTypeOwnershipTransferred
}

func (o *OwnershipTransferred) SourceSequence() int64 {
	return o.Sequence
}

func (o *OwnershipTransferred) OccurredAt() time.Time {
	return o.Timestamp
}
