package projection

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"chipvault/internal/event"
	"chipvault/internal/vault"
)

// ProjectionWorker updates read-model tables from processed events.
// The projection channel is non-blocking with drop: if projections fall
// behind, they can be rebuilt from the event log.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan vault.Output
	lastSeq   int64
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan vault.Output) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
	}
}

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			if err := pw.processOutput(ctx, output); err != nil {
				log.Printf("WARN: projection update failed at seq=%d: %v", output.Envelope.Sequence, err)
				// Continue — projections are eventually consistent
				// and can be rebuilt from the event log
			}

			pw.lastSeq = output.Envelope.Sequence
		}
	}
}

func (pw *ProjectionWorker) processOutput(ctx context.Context, output vault.Output) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	seq := output.Envelope.Sequence

	if output.Batch != nil {
		for _, j := range output.Batch.Journals {
			if err := pw.updateBalanceProjection(ctx, tx, j.DebitAccount.AccountPath(), j.CreditAccount.AccountPath(), j.Amount, seq); err != nil {
				return fmt.Errorf("balance projection: %w", err)
			}
		}
	}

	if err := pw.updateAuthProjection(ctx, tx, output, seq); err != nil {
		return fmt.Errorf("auth projection: %w", err)
	}

	// Update projection watermark
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, seq); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

// updateBalanceProjection mirrors the in-memory tracker convention:
// a debit increases the account balance, a credit decreases it.
func (pw *ProjectionWorker) updateBalanceProjection(ctx context.Context, tx *sql.Tx, debitAccount, creditAccount string, amount, seq int64) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, balance, last_sequence)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_path)
		DO UPDATE SET balance = projections.balances.balance + $2, last_sequence = $3
	`, debitAccount, amount, seq); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, balance, last_sequence)
		VALUES ($1, -$2, $3)
		ON CONFLICT (account_path)
		DO UPDATE SET balance = projections.balances.balance - $2, last_sequence = $3
	`, creditAccount, amount, seq); err != nil {
		return err
	}

	return nil
}

// updateAuthProjection maintains the authorized-server and owner
// read models from authorization events.
func (pw *ProjectionWorker) updateAuthProjection(ctx context.Context, tx *sql.Tx, output vault.Output, seq int64) error {
	switch output.Envelope.EventType {
	case event.EventTypeServerAuthorized:
		var evt event.ServerAuthorized
		if err := json.Unmarshal(output.Envelope.Payload, &evt); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projections.authorized_servers (server_address, authorized_seq)
			VALUES ($1, $2)
			ON CONFLICT (server_address) DO NOTHING
		`, evt.Server.String(), seq)
		return err

	case event.EventTypeServerRevoked:
		var evt event.ServerRevoked
		if err := json.Unmarshal(output.Envelope.Payload, &evt); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			DELETE FROM projections.authorized_servers WHERE server_address = $1
		`, evt.Server.String())
		return err

	case event.EventTypeOwnershipTransferred:
		var evt event.OwnershipTransferred
		if err := json.Unmarshal(output.Envelope.Payload, &evt); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projections.vault_meta (key, value, last_sequence)
			VALUES ('owner', $1, $2)
			ON CONFLICT (key) DO UPDATE SET value = $1, last_sequence = $2
		`, evt.NewOwner.String(), seq)
		return err
	}

	return nil
}

// RebuildProjections rebuilds the balance read model from the event log.
// Balances follow the tracker convention: sum of debits minus sum of credits.
func RebuildProjections(ctx context.Context, db *sql.DB) error {
	truncateStatements := []string{
		`TRUNCATE projections.balances`,
		`TRUNCATE projections.authorized_servers`,
		`DELETE FROM projections.vault_meta`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}

	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, balance, last_sequence)
		SELECT
			debit_account AS account_path,
			SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM event_log.journal
		GROUP BY debit_account
		ON CONFLICT (account_path) DO UPDATE
			SET balance = EXCLUDED.balance, last_sequence = EXCLUDED.last_sequence
	`)
	if err != nil {
		return fmt.Errorf("rebuild debit balances: %w", err)
	}

	// Subtract credits
	_, err = db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, balance, last_sequence)
		SELECT
			credit_account AS account_path,
			-SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM event_log.journal
		GROUP BY credit_account
		ON CONFLICT (account_path) DO UPDATE
			SET balance = projections.balances.balance + EXCLUDED.balance,
			    last_sequence = GREATEST(projections.balances.last_sequence, EXCLUDED.last_sequence)
	`)
	if err != nil {
		return fmt.Errorf("rebuild credit balances: %w", err)
	}

	log.Println("INFO: projection rebuild complete")
	return nil
}
