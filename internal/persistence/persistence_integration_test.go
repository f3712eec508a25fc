package persistence_test

import (
	"bytes"
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"

	"chipvault/internal/persistence"
	"chipvault/internal/testutil"
)

func setupPersistence(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	db, cleanup := testutil.SetupTestDB(t)

	if err := persistence.NewMigrator(db, "../../migrations").Up(context.Background()); err != nil {
		cleanup()
		t.Fatalf("run migrations: %v", err)
	}

	return db, cleanup
}

func testEventRow(seq int64, eventType string) persistence.EventRow {
	hash := make([]byte, 32)
	hash[0] = byte(seq + 1)
	prev := make([]byte, 32)
	prev[0] = byte(seq)
	return persistence.EventRow{
		Sequence:       seq,
		EventType:      eventType,
		IdempotencyKey: uuid.NewString(),
		Payload:        []byte(`{"user":"0x0000000000000000000000000000000000000001","amount":100}`),
		StateHash:      hash,
		PrevHash:       prev,
		Timestamp:      time.UnixMicro(1_000_000 + seq*1000),
		SourceSequence: seq,
	}
}

func testJournalRow(seq int64) persistence.JournalRow {
	return persistence.JournalRow{
		JournalID:     uuid.NewString(),
		BatchID:       uuid.NewString(),
		EventRef:      uuid.NewString(),
		Sequence:      seq,
		DebitAccount:  "user:0x0000000000000000000000000000000000000001:chips",
		CreditAccount: "vault:chips_issued",
		Amount:        100,
		JournalType:   1,
		Timestamp:     1_000_000 + seq*1000,
	}
}

func TestEventLogWriter_WriteAndReplay(t *testing.T) {
	db, cleanup := setupPersistence(t)
	defer cleanup()
	ctx := context.Background()

	writer := persistence.NewEventLogWriter(db)
	snapMgr := persistence.NewSnapshotManager(db)

	events := []persistence.EventRow{
		testEventRow(1, "Deposit"),
		testEventRow(2, "Credit"),
		testEventRow(3, "Withdraw"),
	}
	journals := []persistence.JournalRow{
		testJournalRow(1), testJournalRow(2), testJournalRow(3),
	}

	if err := writer.WriteEventBatch(ctx, db, events); err != nil {
		t.Fatalf("WriteEventBatch failed: %v", err)
	}
	if err := writer.WriteJournalBatch(ctx, db, journals); err != nil {
		t.Fatalf("WriteJournalBatch failed: %v", err)
	}

	loaded, err := snapMgr.LoadEventsFrom(ctx, 0, 10)
	if err != nil {
		t.Fatalf("LoadEventsFrom failed: %v", err)
	}
	if len(loaded) != 3 {
		t.Fatalf("expected 3 events, got %d", len(loaded))
	}
	for i, row := range loaded {
		want := events[i]
		if row.Sequence != want.Sequence {
			t.Errorf("row %d: sequence %d, want %d", i, row.Sequence, want.Sequence)
		}
		if row.EventType != want.EventType {
			t.Errorf("row %d: event type %q, want %q", i, row.EventType, want.EventType)
		}
		if !bytes.Equal(row.StateHash, want.StateHash) {
			t.Errorf("row %d: state hash mismatch", i)
		}
	}

	seq, err := snapMgr.GetLatestSequence(ctx)
	if err != nil {
		t.Fatalf("GetLatestSequence failed: %v", err)
	}
	if seq != 3 {
		t.Errorf("latest sequence %d, want 3", seq)
	}

	// Rewriting the same batch after a crash must be a no-op
	if err := writer.WriteEventBatch(ctx, db, events); err != nil {
		t.Fatalf("duplicate WriteEventBatch failed: %v", err)
	}
	loaded, err = snapMgr.LoadEventsFrom(ctx, 0, 10)
	if err != nil {
		t.Fatalf("LoadEventsFrom after rewrite failed: %v", err)
	}
	if len(loaded) != 3 {
		t.Errorf("expected 3 events after rewrite, got %d", len(loaded))
	}
}

func TestEventLogWriter_WriteInTransaction(t *testing.T) {
	db, cleanup := setupPersistence(t)
	defer cleanup()
	ctx := context.Background()

	writer := persistence.NewEventLogWriter(db)
	snapMgr := persistence.NewSnapshotManager(db)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}

	events := []persistence.EventRow{testEventRow(1, "Deposit")}
	if err := writer.WriteEventBatch(ctx, tx, events); err != nil {
		tx.Rollback()
		t.Fatalf("WriteEventBatch in tx failed: %v", err)
	}
	if err := writer.WriteJournalBatch(ctx, tx, []persistence.JournalRow{testJournalRow(1)}); err != nil {
		tx.Rollback()
		t.Fatalf("WriteJournalBatch in tx failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	seq, err := snapMgr.GetLatestSequence(ctx)
	if err != nil {
		t.Fatalf("GetLatestSequence failed: %v", err)
	}
	if seq != 1 {
		t.Errorf("latest sequence %d, want 1", seq)
	}
}

func TestSnapshotManager_SaveLoadVerify(t *testing.T) {
	db, cleanup := setupPersistence(t)
	defer cleanup()
	ctx := context.Background()

	snapMgr := persistence.NewSnapshotManager(db)

	hash := make([]byte, 32)
	hash[0] = 0xab
	snap := &persistence.SnapshotData{
		Sequence:  42,
		StateHash: hash,
		Owner:     "0x0000000000000000000000000000000000000001",
		Authorized: []string{
			"0x0000000000000000000000000000000000000002",
		},
		Balances: map[string]int64{
			"user:0x000000000000000000000000000000000000000a:chips": 500,
			"vault:chips_issued": -500,
			"vault:collateral":   500,
		},
		IdempotencyKeys: []string{"Deposit:key-1", "Credit:key-2"},
		CreatedAt:       time.Now().UTC(),
	}

	if err := snapMgr.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	// Unverified snapshots must not be loaded
	loaded, err := snapMgr.LoadLatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadLatestSnapshot failed: %v", err)
	}
	if loaded != nil {
		t.Fatal("expected nil before verification, got a snapshot")
	}

	if err := snapMgr.MarkVerified(ctx, 42); err != nil {
		t.Fatalf("MarkVerified failed: %v", err)
	}

	loaded, err = snapMgr.LoadLatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadLatestSnapshot after verify failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected a snapshot after verification, got nil")
	}
	if loaded.Sequence != 42 {
		t.Errorf("sequence %d, want 42", loaded.Sequence)
	}
	if loaded.Owner != snap.Owner {
		t.Errorf("owner %q, want %q", loaded.Owner, snap.Owner)
	}
	if !bytes.Equal(loaded.StateHash, hash) {
		t.Error("state hash mismatch after round trip")
	}
	if len(loaded.Balances) != 3 {
		t.Errorf("expected 3 balances, got %d", len(loaded.Balances))
	}
	if got := loaded.Balances["vault:chips_issued"]; got != -500 {
		t.Errorf("chips_issued balance %d, want -500", got)
	}
	if len(loaded.IdempotencyKeys) != 2 {
		t.Errorf("expected 2 idempotency keys, got %d", len(loaded.IdempotencyKeys))
	}
}

func TestPostgresIdempotencyChecker(t *testing.T) {
	db, cleanup := setupPersistence(t)
	defer cleanup()
	ctx := context.Background()

	writer := persistence.NewEventLogWriter(db)
	checker := persistence.NewPostgresIdempotencyChecker(db)

	row := testEventRow(1, "Deposit")

	dup, err := checker.IsDuplicate("Deposit", row.IdempotencyKey)
	if err != nil {
		t.Fatalf("IsDuplicate failed: %v", err)
	}
	if dup {
		t.Error("expected not duplicate before write")
	}

	if err := writer.WriteEventBatch(ctx, db, []persistence.EventRow{row}); err != nil {
		t.Fatalf("WriteEventBatch failed: %v", err)
	}

	dup, err = checker.IsDuplicate("Deposit", row.IdempotencyKey)
	if err != nil {
		t.Fatalf("IsDuplicate after write failed: %v", err)
	}
	if !dup {
		t.Error("expected duplicate after write")
	}

	// Same key under a different type is a distinct event
	dup, err = checker.IsDuplicate("Withdraw", row.IdempotencyKey)
	if err != nil {
		t.Fatalf("IsDuplicate cross-type failed: %v", err)
	}
	if dup {
		t.Error("expected not duplicate for different event type")
	}

	keys, err := checker.LoadRecentKeys(ctx, 10)
	if err != nil {
		t.Fatalf("LoadRecentKeys failed: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("expected 1 key, got %d", len(keys))
	}
	if want := "Deposit:" + row.IdempotencyKey; keys[0] != want {
		t.Errorf("key %q, want %q", keys[0], want)
	}
}
