package bank

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"chipvault/internal/ledger"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RecordingBank records every collateral movement in Postgres before
// acknowledging it. It stands in for the real custody/payment rail:
// the transfer table is the reconciliation source for treasury.
//
// A transfer row is written with ON CONFLICT DO NOTHING on ref, so a
// retried operation acks without double-recording.
type RecordingBank struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewRecordingBank(db *sql.DB, logger zerolog.Logger) *RecordingBank {
	return &RecordingBank{
		db:     db,
		logger: logger.With().Str("component", "bank").Logger(),
	}
}

// TransferIn records collateral arriving from a user address.
func (b *RecordingBank) TransferIn(ctx context.Context, from ledger.Address, amount int64, ref string) error {
	return b.record(ctx, "in", from, amount, ref)
}

// TransferOut records collateral paid out to a user address.
func (b *RecordingBank) TransferOut(ctx context.Context, to ledger.Address, amount int64, ref string) error {
	return b.record(ctx, "out", to, amount, ref)
}

func (b *RecordingBank) record(ctx context.Context, direction string, counterparty ledger.Address, amount int64, ref string) error {
	query := `INSERT INTO bank.transfers
		(transfer_id, ref, direction, counterparty, amount, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (ref) DO NOTHING`

	_, err := b.db.ExecContext(ctx, query,
		uuid.New().String(), ref, direction, string(counterparty), amount, time.Now().UTC(),
	)
	if err != nil {
		b.logger.Error().
			Err(err).
			Str("direction", direction).
			Str("counterparty", string(counterparty)).
			Int64("amount", amount).
			Str("ref", ref).
			Msg("transfer record failed")
		return fmt.Errorf("record %s transfer: %w", direction, err)
	}

	b.logger.Debug().
		Str("direction", direction).
		Str("counterparty", string(counterparty)).
		Int64("amount", amount).
		Str("ref", ref).
		Msg("transfer recorded")

	return nil
}
