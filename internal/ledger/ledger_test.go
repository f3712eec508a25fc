package ledger_test

import (
	"math"
	"testing"

	"chipvault/internal/ledger"

	"github.com/google/uuid"
)

const (
	alice = ledger.Address("0x00000000000000000000000000000000000a11ce")
	bob   = ledger.Address("0x0000000000000000000000000000000000000b0b")
)

// ============================================================================
// Test: Address
// ============================================================================

func TestParseAddress_Valid(t *testing.T) {
	addr, err := ledger.ParseAddress("0x52908400098527886E0F7030069857D2E4169EE7")
	if err != nil {
		t.Fatalf("ParseAddress failed: %v", err)
	}
	if addr != ledger.Address("0x52908400098527886e0f7030069857d2e4169ee7") {
		t.Errorf("address should be lowercased, got %q", addr)
	}
}

func TestParseAddress_Invalid(t *testing.T) {
	cases := []string{
		"",
		"0x",
		"52908400098527886e0f7030069857d2e4169ee7",   // missing prefix
		"0x52908400098527886e0f7030069857d2e4169e",   // too short
		"0x52908400098527886e0f7030069857d2e4169ee7a", // too long
		"0xzz908400098527886e0f7030069857d2e4169ee7", // non-hex
	}
	for _, s := range cases {
		if _, err := ledger.ParseAddress(s); err == nil {
			t.Errorf("ParseAddress(%q) should fail", s)
		}
	}
}

func TestAddress_IsZero(t *testing.T) {
	if !ledger.ZeroAddress.IsZero() {
		t.Error("zero address should report IsZero")
	}
	if alice.IsZero() {
		t.Error("non-zero address should not report IsZero")
	}
}

// ============================================================================
// Test: AccountKey
// ============================================================================

func TestAccountKey_UserPath(t *testing.T) {
	key := ledger.NewUserChipsKey(alice)

	path := key.AccountPath()
	expected := "user:" + string(alice) + ":chips"
	if path != expected {
		t.Errorf("got %q, want %q", path, expected)
	}
}

func TestAccountKey_SystemPaths(t *testing.T) {
	if got := ledger.NewSystemKey(ledger.SubTypeChipsIssued).AccountPath(); got != "vault:chips_issued" {
		t.Errorf("got %q, want %q", got, "vault:chips_issued")
	}
	if got := ledger.NewSystemKey(ledger.SubTypeCollateral).AccountPath(); got != "vault:collateral" {
		t.Errorf("got %q, want %q", got, "vault:collateral")
	}
}

func TestAccountKey_ExternalPath(t *testing.T) {
	if got := ledger.NewExternalKey().AccountPath(); got != "external:collateral" {
		t.Errorf("got %q, want %q", got, "external:collateral")
	}
}

func TestParseAccountPath_RoundTrip(t *testing.T) {
	keys := []ledger.AccountKey{
		ledger.NewUserChipsKey(alice),
		ledger.NewSystemKey(ledger.SubTypeChipsIssued),
		ledger.NewSystemKey(ledger.SubTypeCollateral),
		ledger.NewExternalKey(),
	}
	for _, key := range keys {
		parsed, err := ledger.ParseAccountPath(key.AccountPath())
		if err != nil {
			t.Fatalf("ParseAccountPath(%q) failed: %v", key.AccountPath(), err)
		}
		if parsed != key {
			t.Errorf("round trip of %q: got %+v, want %+v", key.AccountPath(), parsed, key)
		}
	}
}

func TestParseAccountPath_Invalid(t *testing.T) {
	cases := []string{
		"",
		"user:chips",
		"user:notanaddress:chips",
		"vault:positions",
		"bogus:collateral",
	}
	for _, s := range cases {
		if _, err := ledger.ParseAccountPath(s); err == nil {
			t.Errorf("ParseAccountPath(%q) should fail", s)
		}
	}
}

// ============================================================================
// Test: BalanceTracker
// ============================================================================

func TestBalanceTracker_InitialBalanceZero(t *testing.T) {
	bt := ledger.NewBalanceTracker()

	if balance := bt.ChipBalance(alice); balance != 0 {
		t.Errorf("initial balance should be 0, got %d", balance)
	}
	if bt.TotalChips() != 0 || bt.TotalCollateral() != 0 {
		t.Error("empty tracker should have zero totals")
	}
}

func TestBalanceTracker_DepositBatch(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	gen := ledger.NewJournalGenerator(bt)

	batch, err := gen.GenerateDeposit(alice, 1_000_000, "evt-1", 1)
	if err != nil {
		t.Fatalf("GenerateDeposit failed: %v", err)
	}
	if err := bt.ApplyBatch(batch); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}

	if got := bt.ChipBalance(alice); got != 1_000_000 {
		t.Errorf("chips: got %d, want 1_000_000", got)
	}
	if got := bt.TotalChips(); got != 1_000_000 {
		t.Errorf("total chips: got %d, want 1_000_000", got)
	}
	if got := bt.TotalCollateral(); got != 1_000_000 {
		t.Errorf("total collateral: got %d, want 1_000_000", got)
	}
}

func TestBalanceTracker_GlobalBalanceZeroSum(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	gen := ledger.NewJournalGenerator(bt)

	for _, step := range []struct {
		build func() (*ledger.Batch, error)
	}{
		{func() (*ledger.Batch, error) { return gen.GenerateDeposit(alice, 1_000_000, "evt-1", 1) }},
		{func() (*ledger.Batch, error) { return gen.GenerateCredit(bob, 250_000, "evt-2", 2) }},
		{func() (*ledger.Batch, error) { return gen.GenerateDebit(bob, 100_000, "evt-3", 3) }},
		{func() (*ledger.Batch, error) { return gen.GenerateWithdraw(alice, 400_000, "evt-4", 4) }},
	} {
		batch, err := step.build()
		if err != nil {
			t.Fatalf("batch build failed: %v", err)
		}
		if err := bt.ApplyBatch(batch); err != nil {
			t.Fatalf("ApplyBatch failed: %v", err)
		}
		if total := bt.ComputeGlobalBalance(); total != 0 {
			t.Fatalf("non-zero global balance after batch: %d", total)
		}
	}
}

func TestBalanceTracker_ValidateSufficientChips(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	gen := ledger.NewJournalGenerator(bt)

	// No balance — should fail
	if err := bt.ValidateSufficientChips(alice, 100); err == nil {
		t.Error("expected error for insufficient balance")
	}

	batch, _ := gen.GenerateDeposit(alice, 1_000, "evt-1", 1)
	if err := bt.ApplyBatch(batch); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}

	if err := bt.ValidateSufficientChips(alice, 1_000); err != nil {
		t.Errorf("should have sufficient balance: %v", err)
	}
	if err := bt.ValidateSufficientChips(alice, 1_001); err == nil {
		t.Error("expected error for 1_001 > 1_000")
	}
}

func TestBalanceTracker_Snapshot(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	gen := ledger.NewJournalGenerator(bt)

	batch, _ := gen.GenerateDeposit(alice, 999, "evt-1", 1)
	if err := bt.ApplyBatch(batch); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}

	snap := bt.Snapshot()
	if len(snap) == 0 {
		t.Fatal("snapshot should not be empty")
	}

	// Mutating snapshot should not affect tracker
	for k := range snap {
		snap[k] = 0
	}

	if bt.ChipBalance(alice) != 999 {
		t.Error("tracker balance should not be affected by snapshot mutation")
	}
}

// ============================================================================
// Test: JournalGenerator
// ============================================================================

func TestGenerateWithdraw_InsufficientChips_Fails(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	gen := ledger.NewJournalGenerator(bt)

	if _, err := gen.GenerateWithdraw(alice, 1, "evt-1", 1); err == nil {
		t.Error("withdraw with no chips should fail pre-check")
	}
}

func TestGenerateDebit_InsufficientChips_Fails(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	gen := ledger.NewJournalGenerator(bt)

	batch, _ := gen.GenerateDeposit(alice, 50, "evt-1", 1)
	if err := bt.ApplyBatch(batch); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}

	if _, err := gen.GenerateDebit(alice, 51, "evt-2", 2); err == nil {
		t.Error("debit above balance should fail pre-check")
	}
}

func TestGenerateCredit_OverflowGuard(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	gen := ledger.NewJournalGenerator(bt)

	batch, err := gen.GenerateCredit(alice, math.MaxInt64, "evt-1", 1)
	if err != nil {
		t.Fatalf("GenerateCredit failed: %v", err)
	}
	if err := bt.ApplyBatch(batch); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}

	if _, err := gen.GenerateCredit(alice, 1, "evt-2", 2); err == nil {
		t.Error("credit past MaxInt64 should fail overflow guard")
	}
}

func TestGeneratedBatches_Validate(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	gen := ledger.NewJournalGenerator(bt)

	deposit, err := gen.GenerateDeposit(alice, 500, "evt-1", 1)
	if err != nil {
		t.Fatalf("GenerateDeposit failed: %v", err)
	}
	if len(deposit.Journals) != 2 {
		t.Fatalf("deposit should have 2 journals, got %d", len(deposit.Journals))
	}
	if err := deposit.Validate(); err != nil {
		t.Errorf("deposit batch should validate: %v", err)
	}

	if err := bt.ApplyBatch(deposit); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}

	withdraw, err := gen.GenerateWithdraw(alice, 200, "evt-2", 2)
	if err != nil {
		t.Fatalf("GenerateWithdraw failed: %v", err)
	}
	if err := withdraw.Validate(); err != nil {
		t.Errorf("withdraw batch should validate: %v", err)
	}

	credit, err := gen.GenerateCredit(alice, 10, "evt-3", 3)
	if err != nil {
		t.Fatalf("GenerateCredit failed: %v", err)
	}
	if len(credit.Journals) != 1 {
		t.Fatalf("credit should have 1 journal, got %d", len(credit.Journals))
	}
	if err := credit.Validate(); err != nil {
		t.Errorf("credit batch should validate: %v", err)
	}
}

// ============================================================================
// Test: Batch Validation
// ============================================================================

func TestBatchValidate_EmptyBatch_Fails(t *testing.T) {
	batch := &ledger.Batch{
		BatchID:  uuid.New(),
		Journals: []ledger.Journal{},
	}

	if err := batch.Validate(); err == nil {
		t.Error("empty batch should fail validation")
	}
}

func TestBatchValidate_ZeroAmount_Fails(t *testing.T) {
	batchID := uuid.New()
	batch := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{
			{
				JournalID:     uuid.New(),
				BatchID:       batchID,
				DebitAccount:  ledger.NewUserChipsKey(alice),
				CreditAccount: ledger.NewSystemKey(ledger.SubTypeChipsIssued),
				Amount:        0,
			},
		},
	}

	if err := batch.Validate(); err == nil {
		t.Error("zero amount should fail validation")
	}
}

func TestBatchValidate_NegativeAmount_Fails(t *testing.T) {
	batchID := uuid.New()
	batch := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{
			{
				JournalID:     uuid.New(),
				BatchID:       batchID,
				DebitAccount:  ledger.NewUserChipsKey(alice),
				CreditAccount: ledger.NewSystemKey(ledger.SubTypeChipsIssued),
				Amount:        -100,
			},
		},
	}

	if err := batch.Validate(); err == nil {
		t.Error("negative amount should fail validation")
	}
}

func TestBatchValidate_SelfTransfer_Fails(t *testing.T) {
	batchID := uuid.New()
	sameAccount := ledger.NewUserChipsKey(alice)

	batch := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{
			{
				JournalID:     uuid.New(),
				BatchID:       batchID,
				DebitAccount:  sameAccount,
				CreditAccount: sameAccount,
				Amount:        100,
			},
		},
	}

	if err := batch.Validate(); err == nil {
		t.Error("self-transfer should fail validation")
	}
}

func TestBatchValidate_MismatchedBatchID_Fails(t *testing.T) {
	batchID := uuid.New()
	batch := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{
			{
				JournalID:     uuid.New(),
				BatchID:       uuid.New(), // Different batch ID
				DebitAccount:  ledger.NewUserChipsKey(alice),
				CreditAccount: ledger.NewSystemKey(ledger.SubTypeChipsIssued),
				Amount:        100,
			},
		},
	}

	if err := batch.Validate(); err == nil {
		t.Error("mismatched batch ID should fail validation")
	}
}

// ============================================================================
// Test: Batch Reversal
// ============================================================================

func TestBatchReverse_RestoresState(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	gen := ledger.NewJournalGenerator(bt)

	deposit, _ := gen.GenerateDeposit(alice, 1_000, "evt-1", 1)
	if err := bt.ApplyBatch(deposit); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}

	withdraw, err := gen.GenerateWithdraw(alice, 600, "evt-2", 2)
	if err != nil {
		t.Fatalf("GenerateWithdraw failed: %v", err)
	}
	if err := bt.ApplyBatch(withdraw); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}
	if got := bt.ChipBalance(alice); got != 400 {
		t.Fatalf("after withdraw: got %d, want 400", got)
	}

	reversal := withdraw.Reverse()
	if err := reversal.Validate(); err != nil {
		t.Fatalf("reversal batch should validate: %v", err)
	}
	for _, j := range reversal.Journals {
		if j.JournalType != ledger.JournalTypeReversal {
			t.Errorf("reversal journal type: got %v, want %v", j.JournalType, ledger.JournalTypeReversal)
		}
	}
	if err := bt.ApplyBatch(reversal); err != nil {
		t.Fatalf("ApplyBatch(reversal) failed: %v", err)
	}

	if got := bt.ChipBalance(alice); got != 1_000 {
		t.Errorf("after reversal: got %d, want 1_000", got)
	}
	if got := bt.TotalCollateral(); got != 1_000 {
		t.Errorf("collateral after reversal: got %d, want 1_000", got)
	}
	if total := bt.ComputeGlobalBalance(); total != 0 {
		t.Errorf("non-zero global balance after reversal: %d", total)
	}
}

// ============================================================================
// Test: InvariantValidator
// ============================================================================

func TestInvariantValidator_GlobalBalanceZero(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	gen := ledger.NewJournalGenerator(bt)
	v := ledger.NewInvariantValidator(bt)

	// Empty ledger — should pass
	if err := v.ValidateGlobalBalance(); err != nil {
		t.Errorf("empty ledger should have zero global balance: %v", err)
	}

	deposit, _ := gen.GenerateDeposit(alice, 1_000_000, "evt-1", 1)
	if err := bt.ApplyBatch(deposit); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}

	if err := v.ValidateGlobalBalance(); err != nil {
		t.Errorf("balanced ledger should have zero global balance: %v", err)
	}
}

func TestInvariantValidator_SolvencyDeficit(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	gen := ledger.NewJournalGenerator(bt)
	v := ledger.NewInvariantValidator(bt)

	deposit, _ := gen.GenerateDeposit(alice, 1_000, "evt-1", 1)
	if err := bt.ApplyBatch(deposit); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}
	if d := v.SolvencyDeficit(); d != 0 {
		t.Errorf("deposit alone should leave no deficit, got %d", d)
	}
	if err := v.ValidateSolvent(); err != nil {
		t.Errorf("vault should be solvent: %v", err)
	}

	// Uncollateralized credit pushes chips past collateral
	credit, _ := gen.GenerateCredit(bob, 300, "evt-2", 2)
	if err := bt.ApplyBatch(credit); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}
	if d := v.SolvencyDeficit(); d != 300 {
		t.Errorf("deficit: got %d, want 300", d)
	}
	if err := v.ValidateSolvent(); err == nil {
		t.Error("expected solvency error after uncollateralized credit")
	}

	// Matching debit restores solvency
	debit, _ := gen.GenerateDebit(bob, 300, "evt-3", 3)
	if err := bt.ApplyBatch(debit); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}
	if err := v.ValidateSolvent(); err != nil {
		t.Errorf("vault should be solvent again: %v", err)
	}
}
