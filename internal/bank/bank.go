// Package bank moves collateral between the vault's custody account and
// user addresses. The vault treats it as an external system: transfers
// can fail and the caller rolls its bookkeeping back.
package bank

import (
	"context"

	"chipvault/internal/ledger"
)

// Transferer executes collateral movements. TransferIn pulls collateral
// from a user into custody (deposit), TransferOut pays collateral back
// out (withdrawal). ref is the operation's idempotency key so the
// downstream payment system can dedup retries.
type Transferer interface {
	TransferIn(ctx context.Context, from ledger.Address, amount int64, ref string) error
	TransferOut(ctx context.Context, to ledger.Address, amount int64, ref string) error
}
