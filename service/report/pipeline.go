// Package report runs the credit pipeline for one wallet and renders the
// resulting CreditReport.
package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/brojonat/solcredit/service/metrics"
	"github.com/brojonat/solcredit/service/narrative"
	"github.com/brojonat/solcredit/service/scoring"
	"github.com/brojonat/solcredit/service/solana"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Policies for wallets without usable data.
const (
	PolicyReport = "report"
	PolicyAbort  = "abort"
)

// ChainDataSource provides one wallet's raw chain data.
type ChainDataSource interface {
	FetchTransactions(ctx context.Context, address string) ([]solana.Transaction, error)
	FetchBalances(ctx context.Context, address string) (*solana.BalanceSnapshot, error)
}

// NarrativeGenerator writes the free-text part of a report.
type NarrativeGenerator interface {
	GenerateNarrative(ctx context.Context, in narrative.Input) (string, error)
}

// Options configures a Pipeline.
type Options struct {
	Filter                 scoring.Filter
	Weights                scoring.Weights
	InsufficientDataPolicy string
}

// Pipeline turns an address into a CreditReport:
// fetch, filter, aggregate, score, narrate.
type Pipeline struct {
	source   ChainDataSource
	narrator NarrativeGenerator
	filter   scoring.Filter
	scorer   *scoring.Synthesizer
	policy   string
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewPipeline creates a new Pipeline. narrator may be nil, in which case
// reports carry no narrative. If metrics is nil, no metrics will be recorded.
func NewPipeline(source ChainDataSource, narrator NarrativeGenerator, opts Options, m *metrics.Metrics, logger *slog.Logger) (*Pipeline, error) {
	if source == nil {
		return nil, fmt.Errorf("chain data source is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	policy := opts.InsufficientDataPolicy
	switch policy {
	case "":
		policy = PolicyReport
	case PolicyReport, PolicyAbort:
	default:
		return nil, fmt.Errorf("unknown insufficient data policy %q", policy)
	}

	scorer, err := scoring.NewSynthesizer(opts.Weights, opts.Filter.MaxTransactions)
	if err != nil {
		return nil, fmt.Errorf("failed to create score synthesizer: %w", err)
	}

	return &Pipeline{
		source:   source,
		narrator: narrator,
		filter:   opts.Filter,
		scorer:   scorer,
		policy:   policy,
		now:      time.Now,
		logger:   logger,
		metrics:  m,
	}, nil
}

// Run produces the report for address. The address is validated before any
// network call. Chain data failures, invalid feature sets and (under the
// abort policy) insufficient data are fatal; a narrative failure only adds
// a warning.
func (p *Pipeline) Run(ctx context.Context, address string) (*CreditReport, error) {
	if _, err := solana.ValidateAddress(address); err != nil {
		return nil, err
	}

	p.logger.InfoContext(ctx, "analyzing wallet", "address", address)

	raw, snapshot, err := p.fetch(ctx, address)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	retained, stats := p.filter.ApplyWithStats(raw)
	p.metrics.RecordStage("filter", nil, time.Since(start).Seconds())
	p.metrics.RecordFilter(stats.Raw, stats.Retained, stats.Small)
	p.logger.DebugContext(ctx, "filtered transactions",
		"address", address,
		"raw", stats.Raw,
		"small", stats.Small,
		"retained", stats.Retained,
	)

	var warnings []string
	warnings = append(warnings, snapshot.Warnings...)

	start = time.Now()
	features, err := scoring.Aggregate(retained, snapshot)
	p.metrics.RecordStage("aggregate", err, time.Since(start).Seconds())

	var score scoring.Score
	var insufficient *scoring.InsufficientDataError
	switch {
	case errors.As(err, &insufficient):
		if p.policy == PolicyAbort {
			return nil, fmt.Errorf("failed to aggregate features: %w", err)
		}
		p.logger.WarnContext(ctx, "insufficient data, reporting minimum score", "address", address)
		warnings = append(warnings, err.Error())
		features = emptyFeatures()
		score = scoring.MinimumScore()
	case err != nil:
		return nil, fmt.Errorf("failed to aggregate features: %w", err)
	default:
		start = time.Now()
		score, err = p.scorer.Score(features)
		p.metrics.RecordStage("score", err, time.Since(start).Seconds())
		if err != nil {
			return nil, fmt.Errorf("failed to score wallet: %w", err)
		}
	}

	assets := holdings(snapshot, retained)

	text, err := p.narrate(ctx, narrative.Input{
		Address:   address,
		Features:  features,
		Score:     score,
		Activity:  stats,
		MinAmount: p.filter.MinAmount,
		Native:    snapshot.Native,
		Staked:    snapshot.Staked,
		Holdings:  assets,
	})
	if err != nil {
		var unavailable *NarrativeUnavailableError
		if !errors.As(err, &unavailable) {
			return nil, err
		}
		warnings = append(warnings, err.Error())
	}

	r := &CreditReport{
		Address:     address,
		Score:       score.Value,
		Tier:        score.Tier,
		Features:    features,
		Narrative:   text,
		GeneratedAt: p.now().UTC(),
		Warnings:    warnings,
		Activity:    stats,
		Assets:      assets,
	}

	p.metrics.RecordReport(string(r.Tier), float64(r.Score))
	p.logger.InfoContext(ctx, "credit report generated",
		"address", address,
		"score", r.Score,
		"tier", r.Tier,
		"warnings", len(r.Warnings),
	)
	return r, nil
}

// fetch pulls transactions and balances concurrently. The first failure
// cancels the other request.
func (p *Pipeline) fetch(ctx context.Context, address string) ([]solana.Transaction, *solana.BalanceSnapshot, error) {
	start := time.Now()

	var (
		raw      []solana.Transaction
		snapshot *solana.BalanceSnapshot
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		raw, err = p.source.FetchTransactions(gctx, address)
		return err
	})
	g.Go(func() error {
		var err error
		snapshot, err = p.source.FetchBalances(gctx, address)
		return err
	})
	err := g.Wait()
	p.metrics.RecordStage("fetch", err, time.Since(start).Seconds())

	if err != nil {
		var invalid *solana.InvalidAddressError
		var unavailable *solana.ChainDataUnavailableError
		if !errors.As(err, &invalid) && !errors.As(err, &unavailable) {
			err = &solana.ChainDataUnavailableError{Op: "fetch chain data", Address: address, Err: err}
		}
		p.logger.ErrorContext(ctx, "failed to fetch chain data", "address", address, "error", err)
		return nil, nil, fmt.Errorf("failed to fetch chain data: %w", err)
	}
	if snapshot == nil {
		snapshot = &solana.BalanceSnapshot{Address: address, Tokens: map[string]solana.TokenBalance{}}
	}
	return raw, snapshot, nil
}

// narrate returns "" and a *NarrativeUnavailableError when generation fails.
// Cancellation of ctx is returned as is.
func (p *Pipeline) narrate(ctx context.Context, in narrative.Input) (string, error) {
	if p.narrator == nil {
		return "", nil
	}

	start := time.Now()
	text, err := p.narrator.GenerateNarrative(ctx, in)
	p.metrics.RecordStage("narrative", err, time.Since(start).Seconds())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		p.metrics.RecordNarrative("unavailable")
		p.logger.WarnContext(ctx, "narrative unavailable, emitting report without it",
			"address", in.Address,
			"error", err,
		)
		return "", &NarrativeUnavailableError{Address: in.Address, Err: err}
	}

	p.metrics.RecordNarrative("success")
	return text, nil
}

func emptyFeatures() *scoring.FeatureSet {
	return &scoring.FeatureSet{
		TotalInflow:      decimal.Zero,
		TotalOutflow:     decimal.Zero,
		TransactionTypes: map[string]int{},
	}
}

// holdings lists native SOL, staked SOL and every token position, each with
// the share of retained transactions that moved it.
func holdings(snapshot *solana.BalanceSnapshot, retained []solana.Transaction) []narrative.Holding {
	perMint := make(map[string]int)
	for _, t := range retained {
		perMint[t.Mint()]++
	}
	share := func(mint string) float64 {
		if len(retained) == 0 {
			return 0
		}
		return float64(perMint[mint]) / float64(len(retained))
	}

	out := make([]narrative.Holding, 0, len(snapshot.Tokens)+2)
	if snapshot.Native.IsPositive() {
		out = append(out, narrative.Holding{
			Symbol:  solana.NativeMint,
			Mint:    solana.NativeMint,
			Balance: snapshot.Native,
			Share:   share(solana.NativeMint),
		})
	}
	if snapshot.Staked.IsPositive() {
		// Stake is never moved by a wallet transfer, so its share is zero.
		out = append(out, narrative.Holding{
			Symbol:  solana.StakedSOL,
			Mint:    solana.StakedSOL,
			Balance: snapshot.Staked,
		})
	}

	mints := make([]string, 0, len(snapshot.Tokens))
	for mint := range snapshot.Tokens {
		mints = append(mints, mint)
	}
	sort.Strings(mints)
	for _, mint := range mints {
		tok := snapshot.Tokens[mint]
		out = append(out, narrative.Holding{
			Symbol:  tok.Symbol,
			Mint:    mint,
			Balance: tok.Amount,
			Share:   share(mint),
		})
	}
	return out
}
