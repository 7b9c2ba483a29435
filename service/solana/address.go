package solana

import (
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// ValidateAddress checks that address is a base58 encoded 32-byte public key
// and returns it parsed.
func ValidateAddress(address string) (solana.PublicKey, error) {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return solana.PublicKey{}, &InvalidAddressError{Address: address, Reason: "address is empty"}
	}
	if trimmed != address {
		return solana.PublicKey{}, &InvalidAddressError{Address: address, Reason: "address has surrounding whitespace"}
	}

	raw, err := base58.Decode(address)
	if err != nil {
		return solana.PublicKey{}, &InvalidAddressError{Address: address, Reason: "not valid base58"}
	}
	if len(raw) != solana.PublicKeyLength {
		return solana.PublicKey{}, &InvalidAddressError{
			Address: address,
			Reason:  "decoded length is not 32 bytes",
		}
	}

	return solana.PublicKeyFromBytes(raw), nil
}
