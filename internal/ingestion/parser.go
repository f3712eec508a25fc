package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"chipvault/internal/event"
	"chipvault/internal/ledger"

	"github.com/google/uuid"
)

// ParseRawEvent converts a RawEvent (JSON bytes + event type string)
// into a typed event.Event. The ingestion bridge validates and parses
// raw settlement instructions before dispatching to the vault.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "Credit":
		return parseCredit(raw.Data)
	case "Debit":
		return parseDebit(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match the game servers' producers.

type settlementJSON struct {
	SettlementID string `json:"settlement_id"`
	Server       string `json:"server"`
	User         string `json:"user"`
	Amount       int64  `json:"amount"`
	Sequence     int64  `json:"sequence"`
	TimestampUs  int64  `json:"timestamp_us"`
}

func parseCredit(data []byte) (*event.Credit, error) {
	j, err := parseSettlement(data, "Credit")
	if err != nil {
		return nil, err
	}
	return &event.Credit{
		SettlementID: j.settlementID,
		Server:       j.server,
		User:         j.user,
		Amount:       j.amount,
		Sequence:     j.sequence,
		Timestamp:    j.timestamp,
	}, nil
}

func parseDebit(data []byte) (*event.Debit, error) {
	j, err := parseSettlement(data, "Debit")
	if err != nil {
		return nil, err
	}
	return &event.Debit{
		SettlementID: j.settlementID,
		Server:       j.server,
		User:         j.user,
		Amount:       j.amount,
		Sequence:     j.sequence,
		Timestamp:    j.timestamp,
	}, nil
}

type parsedSettlement struct {
	settlementID uuid.UUID
	server       ledger.Address
	user         ledger.Address
	amount       int64
	sequence     int64
	timestamp    time.Time
}

func parseSettlement(data []byte, kind string) (*parsedSettlement, error) {
	var j settlementJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse %s: %w", kind, err)
	}

	settlementID, err := uuid.Parse(j.SettlementID)
	if err != nil {
		return nil, fmt.Errorf("parse settlement_id: %w", err)
	}
	server, err := ledger.ParseAddress(j.Server)
	if err != nil {
		return nil, fmt.Errorf("parse server: %w", err)
	}
	user, err := ledger.ParseAddress(j.User)
	if err != nil {
		return nil, fmt.Errorf("parse user: %w", err)
	}

	return &parsedSettlement{
		settlementID: settlementID,
		server:       server,
		user:         user,
		amount:       j.Amount,
		sequence:     j.Sequence,
		timestamp:    time.UnixMicro(j.TimestampUs),
	}, nil
}
