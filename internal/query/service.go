package query

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"

	"chipvault/internal/ledger"
)

// QueryService provides read-only access to the projection tables and
// the event log. All responses include as_of_sequence so callers can
// reason about projection freshness.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// GetBalance returns a user's current chip balance.
func (qs *QueryService) GetBalance(ctx context.Context, addr ledger.Address) (*BalanceResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	chips, err := qs.getProjectedBalance(ctx, ledger.NewUserChipsKey(addr).AccountPath())
	if err != nil {
		return nil, err
	}

	return &BalanceResponse{
		Address:      addr.String(),
		ChipBalance:  chips,
		AsOfSequence: asOfSeq,
	}, nil
}

// GetVault returns the aggregate chip and collateral totals.
func (qs *QueryService) GetVault(ctx context.Context) (*VaultResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	issued, err := qs.getProjectedBalance(ctx, ledger.NewSystemKey(ledger.SubTypeChipsIssued).AccountPath())
	if err != nil {
		return nil, err
	}
	collateral, err := qs.getProjectedBalance(ctx, ledger.NewSystemKey(ledger.SubTypeCollateral).AccountPath())
	if err != nil {
		return nil, err
	}

	// chips_issued is a liability account: it goes negative as chips
	// are minted, so total chips outstanding is its negation.
	totalChips := -issued

	deficit := int64(0)
	if totalChips > collateral {
		deficit = totalChips - collateral
	}

	owner, err := qs.getMeta(ctx, "owner")
	if err != nil {
		return nil, err
	}

	return &VaultResponse{
		TotalChips:      totalChips,
		TotalCollateral: collateral,
		SolvencyDeficit: deficit,
		Owner:           owner,
		AsOfSequence:    asOfSeq,
	}, nil
}

// GetServerStatus reports whether an address is an authorized game server.
func (qs *QueryService) GetServerStatus(ctx context.Context, addr ledger.Address) (*ServerStatusResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	var one int
	err = qs.db.QueryRowContext(ctx, `
		SELECT 1 FROM projections.authorized_servers WHERE server_address = $1
	`, addr.String()).Scan(&one)

	authorized := true
	if err == sql.ErrNoRows {
		authorized = false
	} else if err != nil {
		return nil, err
	}

	return &ServerStatusResponse{
		Address:      addr.String(),
		Authorized:   authorized,
		AsOfSequence: asOfSeq,
	}, nil
}

// GetEventHistory returns events in descending sequence order with
// cursor-based pagination.
func (qs *QueryService) GetEventHistory(ctx context.Context, limit int, beforeSequence *int64) ([]EventHistoryEntry, error) {
	query := `
		SELECT sequence, event_type, idempotency_key, payload,
		       state_hash, prev_hash, timestamp
		FROM event_log.events
	`
	args := []interface{}{}
	argIdx := 1

	if beforeSequence != nil {
		query += fmt.Sprintf(" WHERE sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []EventHistoryEntry
	for rows.Next() {
		var e EventHistoryEntry
		var payload, stateHash, prevHash []byte
		var ts sql.NullTime
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &payload,
			&stateHash, &prevHash, &ts,
		); err != nil {
			return nil, err
		}
		e.Payload = string(payload)
		e.StateHash = hex.EncodeToString(stateHash)
		e.PrevHash = hex.EncodeToString(prevHash)
		if ts.Valid {
			e.Timestamp = ts.Time.UnixMicro()
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// GetJournalHistory returns journal entries touching a user's accounts
// with cursor-based pagination.
func (qs *QueryService) GetJournalHistory(ctx context.Context, addr ledger.Address, limit int, beforeSequence *int64) ([]JournalHistoryEntry, error) {
	accountPrefix := fmt.Sprintf("user:%s:%%", addr)

	query := `
		SELECT journal_id, batch_id, event_ref, sequence,
		       debit_account, credit_account, amount, journal_type, timestamp
		FROM event_log.journal
		WHERE (debit_account LIKE $1 OR credit_account LIKE $1)
	`
	args := []interface{}{accountPrefix}
	argIdx := 2

	if beforeSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.EventRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.Amount,
			&e.JournalType, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// VerifyIntegrity checks hash chain continuity, the global zero-sum
// invariant, and solvency against the projected balances.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM event_log.events e1
		JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.prev_hash != e2.state_hash
		ORDER BY e1.sequence
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Double-entry means all balances sum to zero
	err = qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(balance), 0) FROM projections.balances
	`).Scan(&report.GlobalImbalance)
	if err != nil {
		return nil, err
	}

	issued, err := qs.getProjectedBalance(ctx, ledger.NewSystemKey(ledger.SubTypeChipsIssued).AccountPath())
	if err != nil {
		return nil, err
	}
	collateral, err := qs.getProjectedBalance(ctx, ledger.NewSystemKey(ledger.SubTypeCollateral).AccountPath())
	if err != nil {
		return nil, err
	}
	if -issued > collateral {
		report.SolvencyDeficit = -issued - collateral
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 &&
		report.GlobalImbalance == 0 &&
		report.SolvencyDeficit == 0
	return report, nil
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}

func (qs *QueryService) getProjectedBalance(ctx context.Context, accountPath string) (int64, error) {
	var balance int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(balance, 0) FROM projections.balances
		WHERE account_path = $1
	`, accountPath).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return balance, err
}

func (qs *QueryService) getMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := qs.db.QueryRowContext(ctx, `
		SELECT value FROM projections.vault_meta WHERE key = $1
	`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}
