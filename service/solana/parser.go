package solana

import (
	"fmt"
	"strings"
	"time"

	"github.com/brojonat/solcredit/service/helius"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// Well-known Solana program IDs
var (
	// StakeProgramID owns every native stake account.
	StakeProgramID = solana.MustPublicKeyFromBase58("Stake11111111111111111111111111111111111111")
)

// Stake account layout: [0..4] state enum, [4..12] rent exempt reserve,
// [12..44] staker authority, [44..76] withdrawer authority.
const stakeWithdrawerOffset = 44

// 1 SOL = 10^9 lamports.
const lamportsDecimals = 9

// LamportsToSOL normalizes a lamport amount to whole SOL.
func LamportsToSOL(lamports int64) decimal.Decimal {
	return decimal.New(lamports, -lamportsDecimals)
}

// transactionFromEnhanced converts one indexer transaction to our domain model
// from the point of view of wallet.
//
// Native legs win over token legs: when any SOL moved into or out of the
// wallet, Amount is the net SOL flow. Otherwise the largest token leg touching
// the wallet is used. A transaction touching the wallet with neither keeps a
// zero amount so the filter discards it.
func transactionFromEnhanced(wallet string, tx helius.EnhancedTransaction) (Transaction, error) {
	txn := Transaction{
		Signature: tx.Signature,
		Timestamp: time.Unix(tx.Timestamp, 0).UTC(),
		Amount:    decimal.Zero,
		Direction: DirectionOut,
		Type:      tx.Type,
	}
	if txn.Type == "" {
		txn.Type = "UNKNOWN"
	}

	if parseNativeLegs(wallet, tx.NativeTransfers, &txn) {
		return txn, nil
	}

	ok, err := parseTokenLegs(wallet, tx.TokenTransfers, &txn)
	if err != nil {
		return Transaction{}, fmt.Errorf("transaction %s: %w", tx.Signature, err)
	}
	if ok {
		return txn, nil
	}

	if tx.FeePayer != "" && tx.FeePayer != wallet {
		txn.Counterparty = tx.FeePayer
	}
	return txn, nil
}

// parseNativeLegs nets all SOL transfers touching wallet. It returns false
// when no native leg involves the wallet.
func parseNativeLegs(wallet string, legs []helius.NativeTransfer, txn *Transaction) bool {
	var in, out int64
	var inPeer, outPeer string
	var inMax, outMax int64
	touched := false

	for _, leg := range legs {
		switch {
		case leg.ToUserAccount == wallet && leg.FromUserAccount != wallet:
			touched = true
			in += leg.Amount
			if leg.Amount > inMax {
				inMax, inPeer = leg.Amount, leg.FromUserAccount
			}
		case leg.FromUserAccount == wallet && leg.ToUserAccount != wallet:
			touched = true
			out += leg.Amount
			if leg.Amount > outMax {
				outMax, outPeer = leg.Amount, leg.ToUserAccount
			}
		}
	}
	if !touched {
		return false
	}

	net := in - out
	if net > 0 {
		txn.Direction = DirectionIn
		txn.Counterparty = inPeer
	} else {
		txn.Direction = DirectionOut
		txn.Counterparty = outPeer
		net = -net
	}
	txn.Amount = LamportsToSOL(net)
	return true
}

// parseTokenLegs picks the largest token transfer touching wallet.
func parseTokenLegs(wallet string, legs []helius.TokenTransfer, txn *Transaction) (bool, error) {
	found := false
	best := decimal.Zero

	for _, leg := range legs {
		var dir Direction
		var peer string
		switch {
		case leg.ToUserAccount == wallet && leg.FromUserAccount != wallet:
			dir, peer = DirectionIn, leg.FromUserAccount
		case leg.FromUserAccount == wallet && leg.ToUserAccount != wallet:
			dir, peer = DirectionOut, leg.ToUserAccount
		default:
			continue
		}

		amount, err := decimal.NewFromString(leg.TokenAmount.String())
		if err != nil {
			return false, fmt.Errorf("invalid token amount %q: %w", leg.TokenAmount, err)
		}
		amount = amount.Abs()

		if !found || amount.GreaterThan(best) {
			found = true
			best = amount
			txn.Amount = amount
			txn.Direction = dir
			txn.Counterparty = peer
			txn.TokenMint = leg.Mint
		}
	}
	return found, nil
}

// tokenBalanceFromAsset converts a DAS fungible asset to a TokenBalance.
// Assets without a symbol and zero balances are skipped (ok == false); they
// are overwhelmingly unverified spam mints.
func tokenBalanceFromAsset(asset helius.Asset) (TokenBalance, bool, error) {
	info := asset.TokenInfo
	if info == nil {
		return TokenBalance{}, false, nil
	}
	symbol := strings.TrimSpace(info.Symbol)
	if symbol == "" || strings.EqualFold(symbol, "unknown") {
		return TokenBalance{}, false, nil
	}

	raw := info.Balance.String()
	if raw == "" {
		return TokenBalance{}, false, nil
	}
	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return TokenBalance{}, false, fmt.Errorf("asset %s: invalid balance %q: %w", asset.ID, raw, err)
	}
	balance = balance.Shift(-info.Decimals)
	if balance.IsZero() {
		return TokenBalance{}, false, nil
	}

	return TokenBalance{
		Mint:   asset.ID,
		Symbol: symbol,
		Amount: balance,
	}, true, nil
}
