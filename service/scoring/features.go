package scoring

import (
	"time"

	"github.com/brojonat/solcredit/service/solana"
	"github.com/shopspring/decimal"
)

// FeatureSet is the fixed set of inputs to the score.
// Volumes are in SOL and only count native transfers; token transfers
// contribute to activity, counterparties and types.
type FeatureSet struct {
	TransactionCount    int             `json:"transaction_count"`
	TotalInflow         decimal.Decimal `json:"total_inflow"`
	TotalOutflow        decimal.Decimal `json:"total_outflow"`
	CounterpartyCount   int             `json:"counterparty_count"`
	AssetDiversity      int             `json:"asset_diversity"`
	StakingRatio        float64         `json:"staking_ratio"`
	ActivitySpanSeconds int64           `json:"activity_span_seconds"`
	TransactionTypes    map[string]int  `json:"transaction_types"`
}

// ActivitySpan is the time between the oldest and newest retained transaction.
func (f *FeatureSet) ActivitySpan() time.Duration {
	return time.Duration(f.ActivitySpanSeconds) * time.Second
}

// TotalVolume is inflow plus outflow.
func (f *FeatureSet) TotalVolume() decimal.Decimal {
	return f.TotalInflow.Add(f.TotalOutflow)
}

// Aggregate reduces filtered transactions and a balance snapshot to a
// FeatureSet. It returns *InsufficientDataError when there are no
// transactions and every balance is zero.
func Aggregate(txns []solana.Transaction, snapshot *solana.BalanceSnapshot) (*FeatureSet, error) {
	if len(txns) == 0 && snapshot.IsEmpty() {
		address := ""
		if snapshot != nil {
			address = snapshot.Address
		}
		return nil, &InsufficientDataError{Address: address}
	}

	fs := &FeatureSet{
		TransactionCount: len(txns),
		TotalInflow:      decimal.Zero,
		TotalOutflow:     decimal.Zero,
		TransactionTypes: make(map[string]int),
	}

	counterparties := make(map[string]struct{})
	var oldest, newest time.Time
	for i, t := range txns {
		if t.TokenMint == "" {
			switch t.Direction {
			case solana.DirectionIn:
				fs.TotalInflow = fs.TotalInflow.Add(t.Amount.Abs())
			case solana.DirectionOut:
				fs.TotalOutflow = fs.TotalOutflow.Add(t.Amount.Abs())
			}
		}

		if t.Counterparty != "" {
			counterparties[t.Counterparty] = struct{}{}
		}
		fs.TransactionTypes[t.Type]++

		if i == 0 || t.Timestamp.Before(oldest) {
			oldest = t.Timestamp
		}
		if i == 0 || t.Timestamp.After(newest) {
			newest = t.Timestamp
		}
	}
	fs.CounterpartyCount = len(counterparties)
	if len(txns) >= 2 {
		fs.ActivitySpanSeconds = int64(newest.Sub(oldest) / time.Second)
	}

	if snapshot != nil {
		fs.AssetDiversity = assetDiversity(snapshot)
		fs.StakingRatio = stakingRatio(snapshot)
	}

	return fs, nil
}

// assetDiversity counts distinct assets with a non-zero balance, native SOL included.
func assetDiversity(s *solana.BalanceSnapshot) int {
	n := 0
	if s.Native.IsPositive() {
		n++
	}
	for _, tok := range s.Tokens {
		if !tok.Amount.IsZero() {
			n++
		}
	}
	return n
}

// stakingRatio is staked / (liquid SOL + staked), 0 without a stake position.
func stakingRatio(s *solana.BalanceSnapshot) float64 {
	if !s.Staked.IsPositive() {
		return 0
	}
	total := s.Native.Add(s.Staked)
	if !total.IsPositive() {
		return 0
	}
	ratio, _ := s.Staked.Div(total).Float64()
	return ratio
}
