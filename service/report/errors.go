package report

import "fmt"

// NarrativeUnavailableError wraps a failed narrative generation. It never
// aborts a run: the report is emitted with an empty narrative and a warning.
type NarrativeUnavailableError struct {
	Address string
	Err     error
}

func (e *NarrativeUnavailableError) Error() string {
	return fmt.Sprintf("narrative unavailable for %s: %v", e.Address, e.Err)
}

func (e *NarrativeUnavailableError) Unwrap() error {
	return e.Err
}
