package solana

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAddress(t *testing.T) {
	t.Run("valid address", func(t *testing.T) {
		pk, err := ValidateAddress(wallet)
		require.NoError(t, err)
		assert.Equal(t, wallet, pk.String())
	})

	t.Run("system program id", func(t *testing.T) {
		_, err := ValidateAddress("11111111111111111111111111111111")
		assert.NoError(t, err)
	})

	invalid := map[string]string{
		"empty":         "",
		"whitespace":    " " + wallet,
		"bad alphabet":  "0OIl0OIl0OIl0OIl0OIl0OIl0OIl0OIl",
		"too short":     "abc",
		"evm address":   "0x742d35Cc6634C0532925a3b844Bc454e4438f44e",
		"signature len": "5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7",
	}
	for name, addr := range invalid {
		t.Run(name, func(t *testing.T) {
			_, err := ValidateAddress(addr)
			require.Error(t, err)

			var addrErr *InvalidAddressError
			require.True(t, errors.As(err, &addrErr))
			assert.Equal(t, addr, addrErr.Address)
		})
	}
}
