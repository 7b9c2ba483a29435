package scoring

import "fmt"

// InsufficientDataError signals that a wallet has neither retained
// transactions nor any balance, so no meaningful score exists.
// Callers decide whether to emit a minimum-confidence report or abort.
type InsufficientDataError struct {
	Address string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: no qualifying transactions and zero balances", e.Address)
}

// InvalidFeatureSetError reports a feature set that violates the aggregator's
// contract. It always indicates a bug upstream of the synthesizer.
type InvalidFeatureSetError struct {
	Field  string
	Reason string
}

func (e *InvalidFeatureSetError) Error() string {
	return fmt.Sprintf("invalid feature set: %s %s", e.Field, e.Reason)
}
