package solana

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/solcredit/service/helius"
	"github.com/brojonat/solcredit/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
)

const (
	assetsPageSize = 100
	maxAssetPages  = 10
)

// HeliusAPI is the subset of the Helius client this package needs.
type HeliusAPI interface {
	GetTransactions(ctx context.Context, address, before string, limit int) ([]helius.EnhancedTransaction, error)
	GetAssetsByOwner(ctx context.Context, owner string, page, limit int) (*helius.AssetsPage, error)
}

// DefaultMaxRawTransactions caps how many raw transactions are paged in when
// FetchOptions.MaxRaw is unset.
const DefaultMaxRawTransactions = 10000

// FetchOptions bounds history paging.
type FetchOptions struct {
	// Qualifying is how many transactions moving at least MinAmount to
	// collect before paging stops.
	Qualifying int
	MinAmount  decimal.Decimal
	// MaxRaw caps raw transactions (dust included) so a history of nothing
	// but dust still ends.
	MaxRaw int
}

// Client fetches one wallet's transaction history and balances.
// It combines the Helius indexer with the Solana RPC stake program lookup.
type Client struct {
	helius  HeliusAPI
	rpc     RPCClient
	fetch   FetchOptions
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewClient creates a new chain data client. If metrics is nil, no metrics will be recorded.
func NewClient(h HeliusAPI, rpcClient RPCClient, opts FetchOptions, m *metrics.Metrics, logger *slog.Logger) *Client {
	if opts.MaxRaw <= 0 {
		opts.MaxRaw = DefaultMaxRawTransactions
	}
	return &Client{
		helius:  h,
		rpc:     rpcClient,
		fetch:   opts,
		logger:  logger,
		metrics: m,
	}
}

// FetchTransactions pages backwards through the wallet's history, newest
// first. Paging continues until fetch.Qualifying transactions of at least
// fetch.MinAmount were seen, fetch.MaxRaw transactions were fetched, or the
// indexer returns an empty page. Short pages do not end the history.
func (c *Client) FetchTransactions(ctx context.Context, address string) ([]Transaction, error) {
	if _, err := ValidateAddress(address); err != nil {
		return nil, err
	}

	maxRaw := c.fetch.MaxRaw
	transactions := make([]Transaction, 0, min(maxRaw, helius.MaxPageSize))
	seen := make(map[string]struct{})
	before := ""
	pages := 0
	qualifying := 0
	done := func() bool {
		return len(transactions) >= maxRaw || (c.fetch.Qualifying > 0 && qualifying >= c.fetch.Qualifying)
	}

	for !done() {
		pageSize := min(helius.MaxPageSize, maxRaw-len(transactions))
		page, err := c.helius.GetTransactions(ctx, address, before, pageSize)
		pages++
		if err != nil {
			c.logger.ErrorContext(ctx, "failed to fetch transactions",
				"address", address,
				"page", pages,
				"error", err,
			)
			return nil, &ChainDataUnavailableError{Op: "fetch transactions", Address: address, Err: err}
		}
		if len(page) == 0 {
			break
		}

		for _, raw := range page {
			if done() {
				break
			}
			// Skip duplicates across page boundaries.
			if _, exists := seen[raw.Signature]; exists {
				continue
			}
			seen[raw.Signature] = struct{}{}

			txn, err := transactionFromEnhanced(address, raw)
			if err != nil {
				c.logger.WarnContext(ctx, "failed to parse transaction, skipping",
					"signature", raw.Signature,
					"error", err,
				)
				continue
			}
			transactions = append(transactions, txn)
			if txn.Amount.Abs().GreaterThanOrEqual(c.fetch.MinAmount) {
				qualifying++
			}
		}

		last := page[len(page)-1].Signature
		if last == "" || last == before {
			break
		}
		before = last
	}

	c.metrics.RecordPages("helius", pages)
	c.logger.InfoContext(ctx, "fetched transactions",
		"address", address,
		"count", len(transactions),
		"qualifying", qualifying,
		"pages", pages,
	)
	return transactions, nil
}

// FetchBalances captures native, token and staked balances for the wallet.
// A failed stake lookup degrades to zero stake with a warning; every other
// failure is fatal.
func (c *Client) FetchBalances(ctx context.Context, address string) (*BalanceSnapshot, error) {
	owner, err := ValidateAddress(address)
	if err != nil {
		return nil, err
	}

	snapshot := &BalanceSnapshot{
		Address: address,
		Native:  decimal.Zero,
		Tokens:  make(map[string]TokenBalance),
		Staked:  decimal.Zero,
	}

	nativeSeen := false
	for page := 1; page <= maxAssetPages; page++ {
		result, err := c.helius.GetAssetsByOwner(ctx, address, page, assetsPageSize)
		if err != nil {
			c.logger.ErrorContext(ctx, "failed to fetch assets",
				"address", address,
				"page", page,
				"error", err,
			)
			return nil, &ChainDataUnavailableError{Op: "fetch balances", Address: address, Err: err}
		}

		if result.NativeBalance != nil && !nativeSeen {
			nativeSeen = true
			snapshot.Native = LamportsToSOL(int64(result.NativeBalance.Lamports))
		}

		for _, asset := range result.Items {
			bal, ok, err := tokenBalanceFromAsset(asset)
			if err != nil {
				c.logger.WarnContext(ctx, "failed to parse asset, skipping", "error", err)
				continue
			}
			if ok {
				snapshot.Tokens[bal.Mint] = bal
			}
		}

		if len(result.Items) < assetsPageSize {
			break
		}
	}

	if !nativeSeen {
		native, err := c.rpc.GetBalance(ctx, owner, rpc.CommitmentFinalized)
		if err != nil {
			return nil, &ChainDataUnavailableError{Op: "fetch native balance", Address: address, Err: err}
		}
		snapshot.Native = LamportsToSOL(int64(native.Value))
	}

	staked, err := c.stakedBalance(ctx, owner)
	if err != nil {
		c.logger.WarnContext(ctx, "stake account lookup failed, assuming no stake",
			"address", address,
			"error", err,
		)
		snapshot.Warnings = append(snapshot.Warnings, fmt.Sprintf("stake account lookup failed: %v", err))
	} else {
		snapshot.Staked = staked
	}

	c.logger.InfoContext(ctx, "fetched balances",
		"address", address,
		"native_sol", snapshot.Native.String(),
		"tokens", len(snapshot.Tokens),
		"staked_sol", snapshot.Staked.String(),
	)
	return snapshot, nil
}

// stakedBalance sums lamports of every stake account whose withdrawer is owner.
func (c *Client) stakedBalance(ctx context.Context, owner solana.PublicKey) (decimal.Decimal, error) {
	start := time.Now()
	accounts, err := c.rpc.GetProgramAccountsWithOpts(ctx, StakeProgramID, &rpc.GetProgramAccountsOpts{
		Encoding: solana.EncodingBase64,
		Filters: []rpc.RPCFilter{
			{
				Memcmp: &rpc.RPCFilterMemcmp{
					Offset: stakeWithdrawerOffset,
					Bytes:  solana.Base58(owner.Bytes()),
				},
			},
		},
	})

	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordAPICall("solana_rpc", "getProgramAccounts", status, time.Since(start).Seconds())

	if err != nil {
		return decimal.Zero, err
	}

	var lamports int64
	for _, acct := range accounts {
		if acct == nil || acct.Account == nil {
			continue
		}
		lamports += int64(acct.Account.Lamports)
	}
	return LamportsToSOL(lamports), nil
}
