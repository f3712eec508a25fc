package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	JournalTypeChipMint JournalType = iota
	JournalTypeChipBurn
	JournalTypeCollateralIn
	JournalTypeCollateralOut
	JournalTypeReversal
)

func (jt JournalType) String() string {
	switch jt {
	case JournalTypeChipMint:
		return "chip_mint"
	case JournalTypeChipBurn:
		return "chip_burn"
	case JournalTypeCollateralIn:
		return "collateral_in"
	case JournalTypeCollateralOut:
		return "collateral_out"
	case JournalTypeReversal:
		return "reversal"
	default:
		return "unknown"
	}
}

// Journal represents a single double-entry journal entry
type Journal struct {
	JournalID     uuid.UUID   // Unique identifier
	BatchID       uuid.UUID   // Groups entries produced by one operation
	EventRef      string      // Idempotency key of source operation
	Sequence      int64       // Global event sequence (assigned at emit)
	DebitAccount  AccountKey  // Account receiving debit (balance increases)
	CreditAccount AccountKey  // Account receiving credit (balance decreases)
	Amount        int64       // Base units (ALWAYS positive)
	JournalType   JournalType // Entry type
	Timestamp     int64       // Epoch microseconds
}

// Batch represents the balanced set of journal entries for one operation
type Batch struct {
	BatchID   uuid.UUID
	EventRef  string
	Sequence  int64
	Timestamp int64
	Journals  []Journal
}

// Validate ensures the batch is well-formed.
// Each journal entry is a balanced transfer by construction (a single
// positive amount moves from credit account to debit account), so
// Σ debits == Σ credits holds per-entry. Multi-leg operations (deposit =
// chip mint + collateral in) use multiple entries under one batch_id.
func (b *Batch) Validate() error {
	if len(b.Journals) == 0 {
		return fmt.Errorf("batch %s is empty", b.BatchID)
	}

	for _, j := range b.Journals {
		if j.Amount <= 0 {
			return fmt.Errorf("journal %s has non-positive amount: %d", j.JournalID, j.Amount)
		}
		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}
		if j.DebitAccount == j.CreditAccount {
			return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
		}
	}

	return nil
}

// Reverse builds the mirror batch that undoes b. Used by withdrawal
// rollback when the outbound collateral transfer fails.
func (b *Batch) Reverse() *Batch {
	reversalID := uuid.New()
	rev := &Batch{
		BatchID:   reversalID,
		EventRef:  b.EventRef,
		Sequence:  b.Sequence,
		Timestamp: b.Timestamp,
		Journals:  make([]Journal, 0, len(b.Journals)),
	}
	for _, j := range b.Journals {
		rev.Journals = append(rev.Journals, Journal{
			JournalID:     uuid.New(),
			BatchID:       reversalID,
			EventRef:      j.EventRef,
			Sequence:      j.Sequence,
			DebitAccount:  j.CreditAccount,
			CreditAccount: j.DebitAccount,
			Amount:        j.Amount,
			JournalType:   JournalTypeReversal,
			Timestamp:     j.Timestamp,
		})
	}
	return rev
}
