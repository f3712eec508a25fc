package vault

import "errors"

// Operation failures. Every failure aborts the whole operation with no
// partial state change.
var (
	// ErrUnauthorized means the caller lacks the required role.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInsufficientBalance means a debit or withdrawal exceeds the
	// user's current chip balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidAmount means a zero or negative amount was supplied
	// where a positive amount is required.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidAddress means a zero or malformed identity was supplied
	// where a real identity is required.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrTransferFailed means the outbound collateral transfer could
	// not complete. The operation's bookkeeping is rolled back.
	ErrTransferFailed = errors.New("transfer failed")
)
