package query

// BalanceResponse represents a user's chip balance for API queries.
type BalanceResponse struct {
	Address      string `json:"address"`
	ChipBalance  int64  `json:"chip_balance"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// VaultResponse represents aggregate vault state for API queries.
type VaultResponse struct {
	TotalChips      int64  `json:"total_chips"`
	TotalCollateral int64  `json:"total_collateral"`
	SolvencyDeficit int64  `json:"solvency_deficit"`
	Owner           string `json:"owner,omitempty"`
	AsOfSequence    int64  `json:"as_of_sequence"`
}

// ServerStatusResponse reports whether an address is in the
// authorized-server set.
type ServerStatusResponse struct {
	Address      string `json:"address"`
	Authorized   bool   `json:"authorized"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// EventHistoryEntry represents an event-log row for API queries.
type EventHistoryEntry struct {
	Sequence       int64  `json:"sequence"`
	EventType      string `json:"event_type"`
	IdempotencyKey string `json:"idempotency_key"`
	Payload        string `json:"payload"`
	StateHash      string `json:"state_hash"`
	PrevHash       string `json:"prev_hash"`
	Timestamp      int64  `json:"timestamp"`
}

// JournalHistoryEntry represents a journal entry for API queries.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	EventRef      string `json:"event_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	Amount        int64  `json:"amount"`
	JournalType   int32  `json:"journal_type"`
	Timestamp     int64  `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy       bool    `json:"is_healthy"`
	HashChainBreaks []int64 `json:"hash_chain_breaks,omitempty"`
	GlobalImbalance int64   `json:"global_imbalance"`
	SolvencyDeficit int64   `json:"solvency_deficit"`
}
