package ports

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
)

// ControllerSeed is the PDA seed of the controller state account.
var ControllerSeed = []byte("protocol_controller")

// SolanaKeys derives program addresses with the solana-go PDA search.
type SolanaKeys struct{}

func (SolanaKeys) FindProgramAddress(seeds [][]byte, program solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(seeds, program)
}

// ControllerAddress derives the controller state account for program.
func ControllerAddress(keys AuthorityKeyDerivation, program solana.PublicKey) (solana.PublicKey, uint8, error) {
	return keys.FindProgramAddress([][]byte{ControllerSeed}, program)
}

// SystemClock reads wall-clock time.
type SystemClock struct{}

func (SystemClock) Now(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return time.Now().Unix(), nil
}
