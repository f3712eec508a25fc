package server

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"chipvault/internal/event"
	"chipvault/internal/ledger"
	"chipvault/internal/vault"
)

// callerHeader identifies the on-platform address making the request.
// Signature verification happens at the platform gateway; by the time a
// request reaches the vault this header is trusted.
const callerHeader = "X-Caller-Address"

type depositRequest struct {
	DepositID string `json:"deposit_id"`
	User      string `json:"user"`
	Amount    int64  `json:"amount"`
}

type withdrawRequest struct {
	WithdrawalID string `json:"withdrawal_id"`
	User         string `json:"user"`
	Amount       int64  `json:"amount"`
}

type settlementRequest struct {
	SettlementID string `json:"settlement_id"`
	User         string `json:"user"`
	Amount       int64  `json:"amount"`
}

type serverChangeRequest struct {
	ChangeID string `json:"change_id"`
	Server   string `json:"server"`
}

type ownershipRequest struct {
	ChangeID string `json:"change_id"`
	NewOwner string `json:"new_owner"`
}

type commandResponse struct {
	Sequence  int64  `json:"sequence"`
	StateHash string `json:"state_hash"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	id, err := parseOrNewUUID(req.DepositID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	user, ok := s.fundsCaller(w, r, req.User)
	if !ok {
		return
	}

	evt := &event.Deposit{
		DepositID: id,
		User:      user,
		Amount:    req.Amount,
		Timestamp: time.Now().UTC(),
	}
	s.runCommand(w, r, "deposit", func() error {
		return s.vault.Deposit(r.Context(), evt)
	})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	id, err := parseOrNewUUID(req.WithdrawalID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	user, ok := s.fundsCaller(w, r, req.User)
	if !ok {
		return
	}

	evt := &event.Withdraw{
		WithdrawalID: id,
		User:         user,
		Amount:       req.Amount,
		Timestamp:    time.Now().UTC(),
	}
	s.runCommand(w, r, "withdraw", func() error {
		return s.vault.Withdraw(r.Context(), evt)
	})
}

// fundsCaller resolves the account a deposit or withdrawal acts on.
// Funds move only for the authenticated caller: the body's user field,
// when present, must match the caller header, so one user can never
// move another user's collateral.
func (s *Server) fundsCaller(w http.ResponseWriter, r *http.Request, bodyUser string) (ledger.Address, bool) {
	caller := callerAddress(r)
	if caller.IsZero() {
		s.writeError(w, http.StatusForbidden, vault.ErrUnauthorized)
		return ledger.ZeroAddress, false
	}

	if bodyUser != "" {
		user, err := ledger.ParseAddress(bodyUser)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return ledger.ZeroAddress, false
		}
		if user.IsZero() {
			s.writeError(w, http.StatusBadRequest, vault.ErrInvalidAddress)
			return ledger.ZeroAddress, false
		}
		if user != caller {
			s.writeError(w, http.StatusForbidden, vault.ErrUnauthorized)
			return ledger.ZeroAddress, false
		}
	}

	return caller, true
}

func (s *Server) handleCredit(w http.ResponseWriter, r *http.Request) {
	evt, ok := s.decodeSettlement(w, r)
	if !ok {
		return
	}
	credit := event.Credit(*evt)
	s.runCommand(w, r, "credit", func() error {
		return s.vault.Credit(&credit)
	})
}

func (s *Server) handleDebit(w http.ResponseWriter, r *http.Request) {
	evt, ok := s.decodeSettlement(w, r)
	if !ok {
		return
	}
	debit := event.Debit(*evt)
	s.runCommand(w, r, "debit", func() error {
		return s.vault.Debit(&debit)
	})
}

// decodeSettlement reads a settlement body and stamps the caller header
// as the acting server. Returned as a Credit; Debit shares the layout.
func (s *Server) decodeSettlement(w http.ResponseWriter, r *http.Request) (*event.Credit, bool) {
	var req settlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return nil, false
	}

	id, err := parseOrNewUUID(req.SettlementID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return nil, false
	}
	user, err := ledger.ParseAddress(req.User)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return nil, false
	}

	return &event.Credit{
		SettlementID: id,
		Server:       callerAddress(r),
		User:         user,
		Amount:       req.Amount,
		Timestamp:    time.Now().UTC(),
	}, true
}

// callerAddress parses the caller header; an absent or malformed header
// becomes the zero address, which no authorization check accepts.
func callerAddress(r *http.Request) ledger.Address {
	addr, err := ledger.ParseAddress(r.Header.Get(callerHeader))
	if err != nil {
		return ledger.ZeroAddress
	}
	return addr
}

func (s *Server) handleAuthorizeServer(w http.ResponseWriter, r *http.Request) {
	var req serverChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	id, err := parseOrNewUUID(req.ChangeID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	server, err := ledger.ParseAddress(req.Server)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	evt := &event.ServerAuthorized{
		ChangeID:  id,
		Owner:     callerAddress(r),
		Server:    server,
		Timestamp: time.Now().UTC(),
	}
	s.runCommand(w, r, "authorize_server", func() error {
		return s.vault.AuthorizeServer(evt)
	})
}

func (s *Server) handleRevokeServer(w http.ResponseWriter, r *http.Request) {
	addr, err := ledger.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	evt := &event.ServerRevoked{
		ChangeID:  uuid.New(),
		Owner:     callerAddress(r),
		Server:    addr,
		Timestamp: time.Now().UTC(),
	}
	s.runCommand(w, r, "revoke_server", func() error {
		return s.vault.RevokeServer(evt)
	})
}

func (s *Server) handleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	var req ownershipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	id, err := parseOrNewUUID(req.ChangeID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	newOwner, err := ledger.ParseAddress(req.NewOwner)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	evt := &event.OwnershipTransferred{
		ChangeID:      id,
		PreviousOwner: callerAddress(r),
		NewOwner:      newOwner,
		Timestamp:     time.Now().UTC(),
	}
	s.runCommand(w, r, "transfer_ownership", func() error {
		return s.vault.TransferOwnership(evt)
	})
}

// --- queries ---

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := ledger.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"address":      addr.String(),
		"chip_balance": s.vault.BalanceOf(addr),
		"sequence":     s.vault.GetSequence(),
	})
	s.observeQuery("balance", http.StatusOK)
}

func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	servers := s.vault.AuthorizedServers()
	out := make([]string, 0, len(servers))
	for _, a := range servers {
		out = append(out, a.String())
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"servers":  out,
		"sequence": s.vault.GetSequence(),
	})
	s.observeQuery("servers", http.StatusOK)
}

func (s *Server) handleGetServerStatus(w http.ResponseWriter, r *http.Request) {
	addr, err := ledger.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"address":    addr.String(),
		"authorized": s.vault.IsAuthorized(addr),
		"sequence":   s.vault.GetSequence(),
	})
	s.observeQuery("server_status", http.StatusOK)
}

func (s *Server) handleGetOwner(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"owner":    s.vault.Owner().String(),
		"sequence": s.vault.GetSequence(),
	})
	s.observeQuery("owner", http.StatusOK)
}

func (s *Server) handleGetVault(w http.ResponseWriter, r *http.Request) {
	chips, collateral := s.vault.Totals()
	deficit := int64(0)
	if chips > collateral {
		deficit = chips - collateral
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_chips":      chips,
		"total_collateral": collateral,
		"solvency_deficit": deficit,
		"owner":            s.vault.Owner().String(),
		"sequence":         s.vault.GetSequence(),
	})
	s.observeQuery("vault", http.StatusOK)
}

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	limit := parseQueryInt(r, "limit", 100)
	var before *int64
	if v := r.URL.Query().Get("before"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		before = &n
	}

	entries, err := s.queries.GetEventHistory(r.Context(), limit, before)
	if err != nil {
		s.logger.Error().Err(err).Msg("event history query failed")
		s.writeError(w, http.StatusInternalServerError, errors.New("query failed"))
		s.observeQuery("events", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"events": entries})
	s.observeQuery("events", http.StatusOK)
}

func (s *Server) handleGetJournal(w http.ResponseWriter, r *http.Request) {
	addr, err := ledger.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	limit := parseQueryInt(r, "limit", 100)
	var before *int64
	if v := r.URL.Query().Get("before"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		before = &n
	}

	entries, err := s.queries.GetJournalHistory(r.Context(), addr, limit, before)
	if err != nil {
		s.logger.Error().Err(err).Msg("journal history query failed")
		s.writeError(w, http.StatusInternalServerError, errors.New("query failed"))
		s.observeQuery("journal", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"journal": entries})
	s.observeQuery("journal", http.StatusOK)
}

func (s *Server) handleVerifyIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := s.queries.VerifyIntegrity(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("integrity check failed")
		s.writeError(w, http.StatusInternalServerError, errors.New("integrity check failed"))
		s.observeQuery("integrity", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, report)
	s.observeQuery("integrity", http.StatusOK)
}

// --- helpers ---

// runCommand executes a vault operation and maps its error to an HTTP
// status. Success returns the new sequence and hash-chain tip.
func (s *Server) runCommand(w http.ResponseWriter, r *http.Request, op string, fn func() error) {
	if err := fn(); err != nil {
		status := statusForError(err)
		s.writeError(w, status, err)
		s.observeQuery(op, status)
		return
	}

	hash := s.vault.GetStateHash()
	s.writeJSON(w, http.StatusOK, commandResponse{
		Sequence:  s.vault.GetSequence(),
		StateHash: hexHash(hash),
	})
	s.observeQuery(op, http.StatusOK)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, vault.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, vault.ErrInvalidAmount), errors.Is(err, vault.ErrInvalidAddress):
		return http.StatusBadRequest
	case errors.Is(err, vault.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, vault.ErrTransferFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("response encode failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) observeQuery(endpoint string, status int) {
	if s.metrics == nil {
		return
	}
	s.metrics.QueryRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	if status >= 400 {
		s.metrics.QueryErrors.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	}
}

// parseOrNewUUID accepts a client-supplied idempotency key or mints one
// for fire-and-forget callers.
func parseOrNewUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.New(), nil
	}
	return uuid.Parse(s)
}

func parseQueryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > 1000 {
		return fallback
	}
	return n
}

func hexHash(h [32]byte) string {
	return hex.EncodeToString(h[:])
}
