package protocol

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Account is one account reference supplied with an invocation.
type Account struct {
	Key      solana.PublicKey
	Signer   bool
	Writable bool
}

// RequireAccounts fails with ErrInsufficientAccounts when fewer than n are present.
func RequireAccounts(accounts []Account, n int) error {
	if len(accounts) < n {
		return fmt.Errorf("%w: have %d need %d", ErrInsufficientAccounts, len(accounts), n)
	}
	return nil
}

// Window selects accounts by index. Any out-of-range index is invalid
// instruction data.
func Window(accounts []Account, indices []uint8) ([]Account, error) {
	out := make([]Account, 0, len(indices))
	for _, idx := range indices {
		if int(idx) >= len(accounts) {
			return nil, invalid("account index %d out of range (%d accounts)", idx, len(accounts))
		}
		out = append(out, accounts[idx])
	}
	return out, nil
}
