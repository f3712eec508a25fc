package ledger

import (
	"fmt"
	"math"

	"github.com/google/uuid"
)

// JournalGenerator creates balanced journal batches for vault operations.
// Pre-checks (sufficiency, overflow) run here against the live tracker so
// no batch that would corrupt the ledger is ever constructed.
type JournalGenerator struct {
	tracker *BalanceTracker
}

func NewJournalGenerator(tracker *BalanceTracker) *JournalGenerator {
	return &JournalGenerator{tracker: tracker}
}

// GenerateDeposit creates journals for a collateral deposit.
// Two legs: chip mint (user:chips ← vault:chips_issued) and custody
// intake (vault:collateral ← external:collateral), same amount — 1:1 parity.
func (jg *JournalGenerator) GenerateDeposit(user Address, amount int64, eventRef string, timestamp int64) (*Batch, error) {
	if err := jg.checkMintOverflow(user, amount); err != nil {
		return nil, err
	}
	if jg.tracker.TotalCollateral() > math.MaxInt64-amount {
		return nil, fmt.Errorf("deposit would overflow total collateral")
	}

	batchID := uuid.New()
	batch := &Batch{
		BatchID:   batchID,
		EventRef:  eventRef,
		Timestamp: timestamp,
		Journals: []Journal{
			{
				JournalID:     uuid.New(),
				BatchID:       batchID,
				EventRef:      eventRef,
				DebitAccount:  NewUserChipsKey(user),
				CreditAccount: NewSystemKey(SubTypeChipsIssued),
				Amount:        amount,
				JournalType:   JournalTypeChipMint,
				Timestamp:     timestamp,
			},
			{
				JournalID:     uuid.New(),
				BatchID:       batchID,
				EventRef:      eventRef,
				DebitAccount:  NewSystemKey(SubTypeCollateral),
				CreditAccount: NewExternalKey(),
				Amount:        amount,
				JournalType:   JournalTypeCollateralIn,
				Timestamp:     timestamp,
			},
		},
	}
	return batch, nil
}

// GenerateWithdraw creates journals for chip redemption.
// Pre-check: the user must hold at least amount chips.
func (jg *JournalGenerator) GenerateWithdraw(user Address, amount int64, eventRef string, timestamp int64) (*Batch, error) {
	if err := jg.tracker.ValidateSufficientChips(user, amount); err != nil {
		return nil, fmt.Errorf("withdrawal pre-check failed: %w", err)
	}

	batchID := uuid.New()
	batch := &Batch{
		BatchID:   batchID,
		EventRef:  eventRef,
		Timestamp: timestamp,
		Journals: []Journal{
			{
				JournalID:     uuid.New(),
				BatchID:       batchID,
				EventRef:      eventRef,
				DebitAccount:  NewSystemKey(SubTypeChipsIssued),
				CreditAccount: NewUserChipsKey(user),
				Amount:        amount,
				JournalType:   JournalTypeChipBurn,
				Timestamp:     timestamp,
			},
			{
				JournalID:     uuid.New(),
				BatchID:       batchID,
				EventRef:      eventRef,
				DebitAccount:  NewExternalKey(),
				CreditAccount: NewSystemKey(SubTypeCollateral),
				Amount:        amount,
				JournalType:   JournalTypeCollateralOut,
				Timestamp:     timestamp,
			},
		},
	}
	return batch, nil
}

// GenerateCredit creates the chip-mint journal for a settlement credit.
// No collateral leg: backing is the authorized server's trust assumption.
func (jg *JournalGenerator) GenerateCredit(user Address, amount int64, eventRef string, timestamp int64) (*Batch, error) {
	if err := jg.checkMintOverflow(user, amount); err != nil {
		return nil, err
	}

	batchID := uuid.New()
	return &Batch{
		BatchID:   batchID,
		EventRef:  eventRef,
		Timestamp: timestamp,
		Journals: []Journal{
			{
				JournalID:     uuid.New(),
				BatchID:       batchID,
				EventRef:      eventRef,
				DebitAccount:  NewUserChipsKey(user),
				CreditAccount: NewSystemKey(SubTypeChipsIssued),
				Amount:        amount,
				JournalType:   JournalTypeChipMint,
				Timestamp:     timestamp,
			},
		},
	}, nil
}

// GenerateDebit creates the chip-burn journal for a settlement debit.
// Pre-check: the user must hold at least amount chips.
func (jg *JournalGenerator) GenerateDebit(user Address, amount int64, eventRef string, timestamp int64) (*Batch, error) {
	if err := jg.tracker.ValidateSufficientChips(user, amount); err != nil {
		return nil, fmt.Errorf("debit pre-check failed: %w", err)
	}

	batchID := uuid.New()
	return &Batch{
		BatchID:   batchID,
		EventRef:  eventRef,
		Timestamp: timestamp,
		Journals: []Journal{
			{
				JournalID:     uuid.New(),
				BatchID:       batchID,
				EventRef:      eventRef,
				DebitAccount:  NewSystemKey(SubTypeChipsIssued),
				CreditAccount: NewUserChipsKey(user),
				Amount:        amount,
				JournalType:   JournalTypeChipBurn,
				Timestamp:     timestamp,
			},
		},
	}, nil
}

// checkMintOverflow guards int64 wraparound on chip issuance. A silent
// wrap here is a direct asset-theft vector, so it is rejected up front.
func (jg *JournalGenerator) checkMintOverflow(user Address, amount int64) error {
	if jg.tracker.ChipBalance(user) > math.MaxInt64-amount {
		return fmt.Errorf("mint would overflow chip balance of %s", user)
	}
	if jg.tracker.TotalChips() > math.MaxInt64-amount {
		return fmt.Errorf("mint would overflow total chips outstanding")
	}
	return nil
}
