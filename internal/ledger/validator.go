package ledger

import (
	"fmt"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies batch is balanced
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateUserChipsNonNegative checks user chip balance >= 0
func (v *InvariantValidator) ValidateUserChipsNonNegative(user Address) error {
	return v.tracker.ValidateChipsNonNegative(user)
}

// ValidateGlobalBalance verifies the double-entry system is zero-sum
func (v *InvariantValidator) ValidateGlobalBalance() error {
	if total := v.tracker.ComputeGlobalBalance(); total != 0 {
		return fmt.Errorf("global balance is non-zero: %d", total)
	}
	return nil
}

// SolvencyDeficit returns totalChips - totalCollateral when chips
// outstanding exceed collateral held, zero otherwise. A positive
// deficit means the vault cannot redeem every chip; it is reported
// for monitoring rather than enforced, since authorized servers are
// trusted to net out their credits and debits.
func (v *InvariantValidator) SolvencyDeficit() int64 {
	deficit := v.tracker.TotalChips() - v.tracker.TotalCollateral()
	if deficit < 0 {
		return 0
	}
	return deficit
}

// ValidateSolvent returns an error when chips outstanding exceed
// collateral. Used at snapshot and recovery boundaries.
func (v *InvariantValidator) ValidateSolvent() error {
	if d := v.SolvencyDeficit(); d > 0 {
		return fmt.Errorf("solvency deficit: chips exceed collateral by %d", d)
	}
	return nil
}
