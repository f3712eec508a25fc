package ledger

import (
	"fmt"
)

// BalanceTracker maintains in-memory account balances.
// Not safe for concurrent use — callers serialize through the vault lock.
type BalanceTracker struct {
	balances map[AccountKey]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]int64),
	}
}

// ApplyJournal applies a single journal entry to balances
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	bt.balances[j.DebitAccount] += j.Amount
	bt.balances[j.CreditAccount] -= j.Amount
}

// ApplyBatch validates and applies all journals in a batch
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	for _, j := range batch.Journals {
		bt.ApplyJournal(j)
	}

	return nil
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) int64 {
	return bt.balances[key]
}

// SetBalance overwrites an account balance. Only used during snapshot restore.
func (bt *BalanceTracker) SetBalance(key AccountKey, balance int64) {
	bt.balances[key] = balance
}

// ChipBalance returns a user's chip balance (0 for never-seen users).
func (bt *BalanceTracker) ChipBalance(user Address) int64 {
	return bt.balances[NewUserChipsKey(user)]
}

// TotalChips returns chips outstanding across all users.
// The issuing counter-account runs negative by exactly the amount minted.
func (bt *BalanceTracker) TotalChips() int64 {
	return -bt.balances[NewSystemKey(SubTypeChipsIssued)]
}

// TotalCollateral returns collateral currently held in custody.
func (bt *BalanceTracker) TotalCollateral() int64 {
	return bt.balances[NewSystemKey(SubTypeCollateral)]
}

// ValidateChipsNonNegative checks a user's chip balance >= 0
func (bt *BalanceTracker) ValidateChipsNonNegative(user Address) error {
	if b := bt.ChipBalance(user); b < 0 {
		return fmt.Errorf("user %s has negative chip balance: %d", user, b)
	}
	return nil
}

// ValidateSufficientChips checks if a user can cover a debit/withdrawal
func (bt *BalanceTracker) ValidateSufficientChips(user Address, required int64) error {
	if b := bt.ChipBalance(user); b < required {
		return fmt.Errorf("insufficient chips: have=%d, need=%d", b, required)
	}
	return nil
}

// ComputeGlobalBalance sums all account balances (0 for a zero-sum ledger)
func (bt *BalanceTracker) ComputeGlobalBalance() int64 {
	var total int64
	for _, balance := range bt.balances {
		total += balance
	}
	return total
}

// Snapshot returns a copy of all balances (for state hashing and persistence)
func (bt *BalanceTracker) Snapshot() map[AccountKey]int64 {
	snapshot := make(map[AccountKey]int64, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = v
	}
	return snapshot
}
