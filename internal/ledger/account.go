package ledger

import (
	"fmt"
	"strings"
)

// Address is a 0x-prefixed, 20-byte hex identity for users, servers,
// and the owner. Stored lowercased so map lookups are case-insensitive.
type Address string

// ZeroAddress is the null identity sentinel. It is never a valid caller,
// user, or ownership target.
const ZeroAddress Address = "0x0000000000000000000000000000000000000000"

const addressHexLen = 40

// ParseAddress validates and normalizes an address string.
func ParseAddress(s string) (Address, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return "", fmt.Errorf("address %q missing 0x prefix", s)
	}
	hex := s[2:]
	if len(hex) != addressHexLen {
		return "", fmt.Errorf("address %q has %d hex chars, want %d", s, len(hex), addressHexLen)
	}
	for _, c := range hex {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return "", fmt.Errorf("address %q contains non-hex character %q", s, c)
		}
	}
	return Address("0x" + strings.ToLower(hex)), nil
}

// IsZero reports whether the address is the null sentinel.
func (a Address) IsZero() bool {
	return a == ZeroAddress || a == ""
}

func (a Address) String() string {
	return string(a)
}

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeUser AccountScope = iota
	AccountScopeSystem
	AccountScopeExternal
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// User sub-types
	SubTypeChips AccountSubType = iota

	// System sub-types
	SubTypeChipsIssued
	SubTypeCollateral

	// External sub-types
	SubTypeExternalCollateral
)

// AccountKey is the in-memory key for balance tracking.
type AccountKey struct {
	Scope   AccountScope
	Entity  Address // user address; empty for system/external accounts
	SubType AccountSubType
}

// NewUserChipsKey creates the chip-balance key for a user
func NewUserChipsKey(user Address) AccountKey {
	return AccountKey{
		Scope:   AccountScopeUser,
		Entity:  user,
		SubType: SubTypeChips,
	}
}

// NewSystemKey creates a key for vault-level accounts
func NewSystemKey(subType AccountSubType) AccountKey {
	return AccountKey{
		Scope:   AccountScopeSystem,
		SubType: subType,
	}
}

// NewExternalKey creates the external custody boundary key
func NewExternalKey() AccountKey {
	return AccountKey{
		Scope:   AccountScopeExternal,
		SubType: SubTypeExternalCollateral,
	}
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	switch k.Scope {
	case AccountScopeUser:
		return fmt.Sprintf("user:%s:%s", k.Entity, k.subTypeName())
	case AccountScopeSystem:
		return fmt.Sprintf("vault:%s", k.subTypeName())
	case AccountScopeExternal:
		return fmt.Sprintf("external:%s", k.subTypeName())
	}
	return "unknown"
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeChips:
		return "chips"
	case SubTypeChipsIssued:
		return "chips_issued"
	case SubTypeCollateral:
		return "collateral"
	case SubTypeExternalCollateral:
		return "collateral"
	default:
		return "unknown"
	}
}

// ParseAccountPath reverses AccountPath. Used during snapshot restore.
func ParseAccountPath(path string) (AccountKey, error) {
	parts := strings.Split(path, ":")
	switch {
	case len(parts) == 3 && parts[0] == "user" && parts[2] == "chips":
		addr, err := ParseAddress(parts[1])
		if err != nil {
			return AccountKey{}, fmt.Errorf("account path %q: %w", path, err)
		}
		return NewUserChipsKey(addr), nil
	case len(parts) == 2 && parts[0] == "vault" && parts[1] == "chips_issued":
		return NewSystemKey(SubTypeChipsIssued), nil
	case len(parts) == 2 && parts[0] == "vault" && parts[1] == "collateral":
		return NewSystemKey(SubTypeCollateral), nil
	case len(parts) == 2 && parts[0] == "external" && parts[1] == "collateral":
		return NewExternalKey(), nil
	}
	return AccountKey{}, fmt.Errorf("unrecognized account path %q", path)
}
