// Package scoring turns a wallet's raw transactions and balances into a
// credit score: Filter drops noise and bounds the sample, Aggregate reduces
// it to a FeatureSet, and Synthesizer maps that to a 0-1000 score and tier.
// Every step is a pure function of its inputs.
package scoring

import (
	"container/heap"
	"sort"

	"github.com/brojonat/solcredit/service/solana"
	"github.com/shopspring/decimal"
)

// Default filter parameters.
var (
	DefaultMinAmount = decimal.RequireFromString("0.1")
)

const DefaultMaxTransactions = 100

// Filter keeps the MaxTransactions most recent transactions whose absolute
// amount is at least MinAmount.
type Filter struct {
	MinAmount       decimal.Decimal
	MaxTransactions int
}

// FilterStats summarizes one filter pass.
type FilterStats struct {
	Raw        int `json:"raw_transactions"`
	Qualifying int `json:"qualifying_transactions"`
	Small      int `json:"small_transactions"`
	Retained   int `json:"retained_transactions"`
}

// NewFilter returns a filter with the given threshold (in native units) and cap.
func NewFilter(minAmount float64, maxTransactions int) Filter {
	return Filter{
		MinAmount:       decimal.NewFromFloat(minAmount),
		MaxTransactions: maxTransactions,
	}
}

// Apply returns the retained transactions, newest first.
func (f Filter) Apply(txns []solana.Transaction) []solana.Transaction {
	out, _ := f.ApplyWithStats(txns)
	return out
}

// ApplyWithStats is Apply plus counts for reporting.
//
// Selection is a bounded min-heap keyed on recency: the heap root is the
// oldest transaction currently kept, so each qualifying transaction costs
// O(log N) and the input order does not matter.
func (f Filter) ApplyWithStats(txns []solana.Transaction) ([]solana.Transaction, FilterStats) {
	stats := FilterStats{Raw: len(txns)}
	if f.MaxTransactions <= 0 {
		for _, t := range txns {
			if f.qualifies(t) {
				stats.Qualifying++
			}
		}
		stats.Small = stats.Raw - stats.Qualifying
		return []solana.Transaction{}, stats
	}

	h := make(recencyHeap, 0, min(len(txns), f.MaxTransactions))
	for _, t := range txns {
		if !f.qualifies(t) {
			continue
		}
		stats.Qualifying++

		if len(h) < f.MaxTransactions {
			heap.Push(&h, t)
			continue
		}
		if newer(t, h[0]) {
			h[0] = t
			heap.Fix(&h, 0)
		}
	}

	out := []solana.Transaction(h)
	sort.Slice(out, func(i, j int) bool { return newer(out[i], out[j]) })

	stats.Small = stats.Raw - stats.Qualifying
	stats.Retained = len(out)
	return out, stats
}

func (f Filter) qualifies(t solana.Transaction) bool {
	return t.Amount.Abs().GreaterThanOrEqual(f.MinAmount)
}

// newer orders by timestamp, then by signature so equal timestamps still
// produce a total, deterministic order.
func newer(a, b solana.Transaction) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return a.Signature > b.Signature
}

// recencyHeap is a min-heap: the root is the oldest element.
type recencyHeap []solana.Transaction

func (h recencyHeap) Len() int           { return len(h) }
func (h recencyHeap) Less(i, j int) bool { return newer(h[j], h[i]) }
func (h recencyHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *recencyHeap) Push(x any) { *h = append(*h, x.(solana.Transaction)) }

func (h *recencyHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
