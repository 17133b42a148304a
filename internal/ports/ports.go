// Package ports declares the external collaborators the controller calls.
//
// Implementations live outside this module except for the system clock, the
// solana PDA deriver and the deterministic simulation in ports/sim.
package ports

import (
	"context"
	"fmt"

	"github.com/danmuck/reservectl/internal/ledger"
	"github.com/gagliardetto/solana-go"
)

// Port names used in collaborator errors and logs.
const (
	NameCustody  = "custody"
	NameStrategy = "strategy_manager"
	NameIssuer   = "token_issuer"
	NameOracle   = "oracle"
	NameKeys     = "key_derivation"
	NameClock    = "clock"
)

// Pausable is implemented by every collaborator the emergency fan-out reaches.
type Pausable interface {
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
}

// Balances is collateral per asset class.
type Balances struct {
	SOL  uint64
	USDC uint64
}

// Of returns the balance for asset.
func (b Balances) Of(asset ledger.Asset) uint64 {
	if asset == ledger.AssetSOL {
		return b.SOL
	}
	return b.USDC
}

// CollateralCustody holds accepted collateral in escrow.
type CollateralCustody interface {
	Pausable
	Accept(ctx context.Context, asset ledger.Asset, amount uint64) error
	Release(ctx context.Context, asset ledger.Asset, amount uint64) error
	Balances(ctx context.Context) (Balances, error)
}

// HarvestScope selects which strategies a harvest reaches.
type HarvestScope uint8

const (
	HarvestSOL  HarvestScope = 1
	HarvestUSDC HarvestScope = 2
	HarvestAll  HarvestScope = 3
)

func (s HarvestScope) String() string {
	switch s {
	case HarvestSOL:
		return "SOL strategies only"
	case HarvestUSDC:
		return "USDC strategies only"
	case HarvestAll:
		return "all strategies"
	default:
		return "invalid mode"
	}
}

// RebalanceTrigger names why a rebalance was requested.
type RebalanceTrigger uint8

const (
	RebalanceScheduled RebalanceTrigger = 1
	RebalanceDrift     RebalanceTrigger = 2
	RebalanceManual    RebalanceTrigger = 3
)

func (r RebalanceTrigger) String() string {
	switch r {
	case RebalanceScheduled:
		return "scheduled"
	case RebalanceDrift:
		return "allocation drift"
	case RebalanceManual:
		return "manual"
	default:
		return "unknown"
	}
}

// StrategyManager deploys collateral into yield strategies.
type StrategyManager interface {
	Pausable
	Deploy(ctx context.Context, asset ledger.Asset, amount uint64) error
	// Withdraw pulls up to amount back from strategies and reports what arrived.
	Withdraw(ctx context.Context, asset ledger.Asset, amount uint64) (uint64, error)
	// Harvest collects yield across scope and returns the total collected.
	Harvest(ctx context.Context, scope HarvestScope) (uint64, error)
	// Allocations reports collateral currently deployed per asset.
	Allocations(ctx context.Context) (Balances, error)
	// HarvestedTotal reports lifetime yield as seen by the strategies.
	HarvestedTotal(ctx context.Context) (uint64, error)
	Rebalance(ctx context.Context, trigger RebalanceTrigger) error
}

// TokenIssuer mints and burns the stablecoin and the yield-bearing token.
type TokenIssuer interface {
	Pausable
	Mint(ctx context.Context, amount uint64) error
	Burn(ctx context.Context, amount uint64) error
	// MintYieldUnits issues yield-token units to stakers by time-weighted balance.
	MintYieldUnits(ctx context.Context, units uint64, stakers uint32) error
}

// PriceOracleAggregator returns the aggregated SOL/USD price at 1e9 scale.
type PriceOracleAggregator interface {
	SOLPriceUSD(ctx context.Context) (uint64, error)
}

// AuthorityKeyDerivation derives program addresses.
type AuthorityKeyDerivation interface {
	FindProgramAddress(seeds [][]byte, program solana.PublicKey) (solana.PublicKey, uint8, error)
}

// Clock is the single source of timestamps (unix seconds).
type Clock interface {
	Now(ctx context.Context) (int64, error)
}

// Failure is a collaborator error carrying an opaque numeric code.
type Failure struct {
	Status uint32
	Reason string
}

func (f *Failure) Error() string {
	if f.Reason == "" {
		return fmt.Sprintf("collaborator failure code=%d", f.Status)
	}
	return fmt.Sprintf("collaborator failure code=%d: %s", f.Status, f.Reason)
}

func (f *Failure) Code() uint32 {
	return f.Status
}

// Fail builds a Failure.
func Fail(code uint32, reason string) error {
	return &Failure{Status: code, Reason: reason}
}
