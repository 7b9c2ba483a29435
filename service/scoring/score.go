package scoring

import (
	"fmt"
	"math"
)

// Score scale bounds.
const (
	MinScore = 0
	MaxScore = 1000
)

// Normalization saturation points. A feature at or above its point
// contributes its full weight.
const (
	diversitySaturation = 10      // distinct assets
	volumeSaturation    = 10000.0 // SOL moved in the sample
)

// Tier is a qualitative risk bucket.
type Tier string

const (
	TierLow    Tier = "low risk"
	TierMedium Tier = "medium risk"
	TierHigh   Tier = "high risk"
)

// Tier boundaries on the 0-1000 scale.
const (
	lowRiskFloor    = 700
	mediumRiskFloor = 400
)

// TierFor buckets a score value.
func TierFor(value int) Tier {
	switch {
	case value >= lowRiskFloor:
		return TierLow
	case value >= mediumRiskFloor:
		return TierMedium
	default:
		return TierHigh
	}
}

// Score is the synthesized credit assessment.
type Score struct {
	Value int  `json:"score"`
	Tier  Tier `json:"tier"`
}

// MinimumScore is the lowest-confidence assessment, used when a wallet has
// no usable data and policy says to report anyway.
func MinimumScore() Score {
	return Score{Value: MinScore, Tier: TierFor(MinScore)}
}

// Weights are the fixed per-feature weights of the score.
type Weights struct {
	Activity  float64
	Diversity float64
	Staking   float64
	Volume    float64
}

// DefaultWeights favors activity and volume over composition.
var DefaultWeights = Weights{Activity: 0.3, Diversity: 0.2, Staking: 0.2, Volume: 0.3}

func (w Weights) total() float64 {
	return w.Activity + w.Diversity + w.Staking + w.Volume
}

// Synthesizer maps a FeatureSet to a Score with a weighted sum of features
// normalized to [0, 1].
type Synthesizer struct {
	Weights Weights
	// MaxTransactions is the sample size at which activity saturates.
	MaxTransactions int
}

// NewSynthesizer validates the weights and returns a Synthesizer.
func NewSynthesizer(w Weights, maxTransactions int) (*Synthesizer, error) {
	for name, v := range map[string]float64{
		"activity": w.Activity, "diversity": w.Diversity, "staking": w.Staking, "volume": w.Volume,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%s weight must be a finite non-negative number, got %v", name, v)
		}
	}
	if w.total() == 0 {
		return nil, fmt.Errorf("at least one weight must be non-zero")
	}
	if maxTransactions <= 0 {
		maxTransactions = DefaultMaxTransactions
	}
	return &Synthesizer{Weights: w, MaxTransactions: maxTransactions}, nil
}

// Score computes the assessment. The result is always within [MinScore, MaxScore].
func (s *Synthesizer) Score(fs *FeatureSet) (Score, error) {
	if err := validate(fs); err != nil {
		return Score{}, err
	}

	total := s.Weights.total()
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return Score{}, fmt.Errorf("scoring weights must sum to a positive finite number")
	}

	maxTx := s.MaxTransactions
	if maxTx <= 0 {
		maxTx = DefaultMaxTransactions
	}

	volume, _ := fs.TotalVolume().Float64()

	sum := s.Weights.Activity*unit(float64(fs.TransactionCount)/float64(maxTx)) +
		s.Weights.Diversity*unit(float64(fs.AssetDiversity)/diversitySaturation) +
		s.Weights.Staking*unit(fs.StakingRatio) +
		s.Weights.Volume*unit(math.Log1p(volume)/math.Log1p(volumeSaturation))

	value := MinScore
	if !math.IsNaN(sum) {
		value = clamp(int(math.Round(MaxScore*unit(sum/total))), MinScore, MaxScore)
	}

	return Score{Value: value, Tier: TierFor(value)}, nil
}

func validate(fs *FeatureSet) error {
	switch {
	case fs == nil:
		return &InvalidFeatureSetError{Field: "feature set", Reason: "is missing"}
	case fs.TransactionTypes == nil:
		return &InvalidFeatureSetError{Field: "transaction_types", Reason: "is missing"}
	case fs.TransactionCount < 0:
		return &InvalidFeatureSetError{Field: "transaction_count", Reason: "is negative"}
	case fs.CounterpartyCount < 0:
		return &InvalidFeatureSetError{Field: "counterparty_count", Reason: "is negative"}
	case fs.CounterpartyCount > fs.TransactionCount:
		return &InvalidFeatureSetError{Field: "counterparty_count", Reason: "exceeds transaction_count"}
	case fs.AssetDiversity < 0:
		return &InvalidFeatureSetError{Field: "asset_diversity", Reason: "is negative"}
	case fs.TotalInflow.IsNegative():
		return &InvalidFeatureSetError{Field: "total_inflow", Reason: "is negative"}
	case fs.TotalOutflow.IsNegative():
		return &InvalidFeatureSetError{Field: "total_outflow", Reason: "is negative"}
	case math.IsNaN(fs.StakingRatio) || fs.StakingRatio < 0 || fs.StakingRatio > 1:
		return &InvalidFeatureSetError{Field: "staking_ratio", Reason: "is outside [0, 1]"}
	case fs.ActivitySpanSeconds < 0:
		return &InvalidFeatureSetError{Field: "activity_span_seconds", Reason: "is negative"}
	}
	return nil
}

// unit clamps x into [0, 1]; NaN becomes 0.
func unit(x float64) float64 {
	switch {
	case math.IsNaN(x) || x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
