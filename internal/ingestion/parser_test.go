package ingestion_test

import (
	"testing"
	"time"

	"chipvault/internal/event"
	"chipvault/internal/ingestion"
)

func rawEvent(data string) ingestion.RawEvent {
	return ingestion.RawEvent{
		Subject:   "casino.settlement.credit.test",
		Data:      []byte(data),
		Timestamp: time.Now(),
	}
}

func TestParseCredit_Valid(t *testing.T) {
	data := `{
		"settlement_id": "550e8400-e29b-41d4-a716-446655440000",
		"server": "0x00000000000000000000000000000000000000a1",
		"user": "0x00000000000000000000000000000000000000b2",
		"amount": 300,
		"sequence": 42,
		"timestamp_us": 1717243200000000
	}`

	evt, err := ingestion.ParseRawEvent(rawEvent(data), "Credit")
	if err != nil {
		t.Fatalf("ParseRawEvent failed: %v", err)
	}

	credit, ok := evt.(*event.Credit)
	if !ok {
		t.Fatalf("expected *event.Credit, got %T", evt)
	}
	if credit.IdempotencyKey() != "550e8400-e29b-41d4-a716-446655440000" {
		t.Errorf("idempotency key: got %q", credit.IdempotencyKey())
	}
	if string(credit.Server) != "0x00000000000000000000000000000000000000a1" {
		t.Errorf("server: got %q", credit.Server)
	}
	if string(credit.User) != "0x00000000000000000000000000000000000000b2" {
		t.Errorf("user: got %q", credit.User)
	}
	if credit.Amount != 300 {
		t.Errorf("amount: got %d, want 300", credit.Amount)
	}
	if credit.SourceSequence() != 42 {
		t.Errorf("sequence: got %d, want 42", credit.SourceSequence())
	}
	if credit.Timestamp.UnixMicro() != 1717243200000000 {
		t.Errorf("timestamp: got %d", credit.Timestamp.UnixMicro())
	}
}

func TestParseDebit_Valid(t *testing.T) {
	data := `{
		"settlement_id": "550e8400-e29b-41d4-a716-446655440001",
		"server": "0x00000000000000000000000000000000000000a1",
		"user": "0x00000000000000000000000000000000000000b2",
		"amount": 150,
		"sequence": 43,
		"timestamp_us": 1717243201000000
	}`

	evt, err := ingestion.ParseRawEvent(rawEvent(data), "Debit")
	if err != nil {
		t.Fatalf("ParseRawEvent failed: %v", err)
	}

	debit, ok := evt.(*event.Debit)
	if !ok {
		t.Fatalf("expected *event.Debit, got %T", evt)
	}
	if debit.Amount != 150 {
		t.Errorf("amount: got %d, want 150", debit.Amount)
	}
	if debit.EventType() != event.EventTypeDebit {
		t.Errorf("event type: got %v", debit.EventType())
	}
}

func TestParse_NormalizesAddressCase(t *testing.T) {
	data := `{
		"settlement_id": "550e8400-e29b-41d4-a716-446655440002",
		"server": "0x00000000000000000000000000000000000000A1",
		"user": "0x00000000000000000000000000000000000000B2",
		"amount": 1,
		"sequence": 1,
		"timestamp_us": 1
	}`

	evt, err := ingestion.ParseRawEvent(rawEvent(data), "Credit")
	if err != nil {
		t.Fatalf("ParseRawEvent failed: %v", err)
	}
	credit := evt.(*event.Credit)
	if string(credit.Server) != "0x00000000000000000000000000000000000000a1" {
		t.Errorf("server not lowercased: %q", credit.Server)
	}
}

func TestParse_InvalidSettlementID(t *testing.T) {
	data := `{
		"settlement_id": "not-a-uuid",
		"server": "0x00000000000000000000000000000000000000a1",
		"user": "0x00000000000000000000000000000000000000b2",
		"amount": 1,
		"sequence": 1,
		"timestamp_us": 1
	}`

	if _, err := ingestion.ParseRawEvent(rawEvent(data), "Credit"); err == nil {
		t.Error("expected error for invalid settlement_id")
	}
}

func TestParse_InvalidAddress(t *testing.T) {
	data := `{
		"settlement_id": "550e8400-e29b-41d4-a716-446655440003",
		"server": "not-an-address",
		"user": "0x00000000000000000000000000000000000000b2",
		"amount": 1,
		"sequence": 1,
		"timestamp_us": 1
	}`

	if _, err := ingestion.ParseRawEvent(rawEvent(data), "Debit"); err == nil {
		t.Error("expected error for invalid server address")
	}
}

func TestParse_MalformedJSON(t *testing.T) {
	if _, err := ingestion.ParseRawEvent(rawEvent(`{"settlement_id"`), "Credit"); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestParse_UnknownEventType(t *testing.T) {
	if _, err := ingestion.ParseRawEvent(rawEvent(`{}`), "Jackpot"); err == nil {
		t.Error("expected error for unknown event type")
	}
}
