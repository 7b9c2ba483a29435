package solana

import "fmt"

// InvalidAddressError is returned before any network call when the input is
// not a well-formed Solana address.
type InvalidAddressError struct {
	Address string
	Reason  string
}

func (e *InvalidAddressError) Error() string {
	return fmt.Sprintf("invalid address %q: %s", e.Address, e.Reason)
}

// ChainDataUnavailableError wraps any upstream failure while fetching chain
// data. It is fatal for the run.
type ChainDataUnavailableError struct {
	Op      string
	Address string
	Err     error
}

func (e *ChainDataUnavailableError) Error() string {
	return fmt.Sprintf("chain data unavailable (%s %s): %v", e.Op, e.Address, e.Err)
}

func (e *ChainDataUnavailableError) Unwrap() error {
	return e.Err
}
