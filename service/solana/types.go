package solana

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the flow of value relative to the analyzed wallet.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// NativeMint labels native SOL wherever a mint identifier is expected.
const NativeMint = "SOL"

// StakedSOL labels SOL delegated through stake accounts in asset listings.
const StakedSOL = "stakedSOL"

// Transaction represents one parsed wallet transaction.
// This is our domain model, independent of the indexer response format.
// Amount is a non-negative magnitude in whole units of TokenMint
// (SOL when TokenMint is empty); Direction carries the sign.
type Transaction struct {
	Signature    string
	Timestamp    time.Time
	Amount       decimal.Decimal
	Counterparty string // empty when no counterparty could be determined
	TokenMint    string // empty for native SOL
	Direction    Direction
	Type         string // indexer classification, e.g. TRANSFER, SWAP
}

// Mint returns the transaction's asset identifier, NativeMint for SOL.
func (t Transaction) Mint() string {
	if t.TokenMint == "" {
		return NativeMint
	}
	return t.TokenMint
}

// TokenBalance is a fungible token holding in whole token units.
type TokenBalance struct {
	Mint   string
	Symbol string
	Amount decimal.Decimal
}

// BalanceSnapshot is the wallet's holdings captured once per run.
type BalanceSnapshot struct {
	Address string
	Native  decimal.Decimal         // SOL
	Tokens  map[string]TokenBalance // keyed by mint
	Staked  decimal.Decimal         // SOL locked in stake accounts
	// Warnings lists lookups that degraded without failing the snapshot.
	Warnings []string
}

// IsEmpty reports whether every balance in the snapshot is zero.
func (b *BalanceSnapshot) IsEmpty() bool {
	if b == nil {
		return true
	}
	if !b.Native.IsZero() || !b.Staked.IsZero() {
		return false
	}
	for _, tok := range b.Tokens {
		if !tok.Amount.IsZero() {
			return false
		}
	}
	return true
}
