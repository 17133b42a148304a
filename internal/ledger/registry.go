package ledger

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var (
	ErrDuplicateProgram = errors.New("ledger: program identifiers must be distinct")
	ErrZeroProgram      = errors.New("ledger: program identifier is zero")
)

// ProgramRegistry names the collaborating programs. Set once at initialization.
type ProgramRegistry struct {
	TokenIssuer  solana.PublicKey `json:"token_issuer"`
	YieldToken   solana.PublicKey `json:"yield_token"`
	SOLStrategy  solana.PublicKey `json:"sol_strategy"`
	USDCStrategy solana.PublicKey `json:"usdc_strategy"`
	Accelerator  solana.PublicKey `json:"accelerator"`
}

// Programs returns the identifiers in wire order.
func (r ProgramRegistry) Programs() []solana.PublicKey {
	return []solana.PublicKey{r.TokenIssuer, r.YieldToken, r.SOLStrategy, r.USDCStrategy, r.Accelerator}
}

// Validate requires five distinct, non-zero identifiers.
func (r ProgramRegistry) Validate() error {
	ids := r.Programs()
	for i, id := range ids {
		if id.IsZero() {
			return fmt.Errorf("%w: identifier %d", ErrZeroProgram, i)
		}
		for j := 0; j < i; j++ {
			if ids[j].Equals(id) {
				return fmt.Errorf("%w: identifiers %d and %d are both %s", ErrDuplicateProgram, j, i, id)
			}
		}
	}
	return nil
}
