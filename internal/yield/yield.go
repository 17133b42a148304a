// Package yield harvests strategy yield and splits it between treasury and
// stakers.
package yield

import (
	"context"
	"fmt"

	"github.com/danmuck/reservectl/internal/fixedmath"
	"github.com/danmuck/reservectl/internal/ledger"
	"github.com/danmuck/reservectl/internal/ports"
	"github.com/danmuck/reservectl/internal/protocol"
	"github.com/rs/zerolog/log"
)

// UnitValue is the USD value of one yield-token unit at 1e6 scale ($100).
const UnitValue uint64 = 100_000_000

// Split is the result of dividing a yield amount. Dust is distributable value
// below one unit; it stays with the treasury.
type Split struct {
	TotalYield       uint64 `json:"total_yield"`
	TreasuryFee      uint64 `json:"treasury_fee"`
	Distributable    uint64 `json:"distributable"`
	Units            uint64 `json:"units_minted"`
	Dust             uint64 `json:"dust"`
	TreasuryRetained uint64 `json:"treasury_retained"`
	Stakers          uint32 `json:"eligible_stakers"`
}

// SplitYield computes the treasury fee and staker units. With no eligible
// stakers nothing is minted and the whole amount is retained.
func SplitYield(total uint64, stakers uint32, feeBps uint16) (Split, error) {
	if uint64(feeBps) > fixedmath.BpsDenominator {
		return Split{}, fmt.Errorf("%w: treasury fee %d bps exceeds %d", protocol.ErrParameterValidationFailed, feeBps, fixedmath.BpsDenominator)
	}
	s := Split{TotalYield: total, Stakers: stakers}
	s.TreasuryFee = fixedmath.MulDiv(total, uint64(feeBps), fixedmath.BpsDenominator)
	s.Distributable = fixedmath.SatSub(total, s.TreasuryFee)
	if stakers == 0 {
		s.TreasuryRetained = total
		s.Dust = s.Distributable
		return s, nil
	}
	s.Units = s.Distributable / UnitValue
	s.Dust = s.Distributable - s.Units*UnitValue
	s.TreasuryRetained = fixedmath.SatAdd(s.TreasuryFee, s.Dust)
	return s, nil
}

// Harvest is the result of one harvest call.
type Harvest struct {
	Scope     ports.HarvestScope `json:"scope"`
	Amount    uint64             `json:"amount"`
	Total     uint64             `json:"total_yield_harvested"`
	Timestamp int64              `json:"timestamp"`
}

// Coordinator drives harvests and distributions through the collaborator ports.
type Coordinator struct {
	strategies ports.StrategyManager
	issuer     ports.TokenIssuer
	clock      ports.Clock
}

func New(strategies ports.StrategyManager, issuer ports.TokenIssuer, clock ports.Clock) *Coordinator {
	return &Coordinator{strategies: strategies, issuer: issuer, clock: clock}
}

// ParseScope validates a harvest mode byte.
func ParseScope(mode uint8) (ports.HarvestScope, error) {
	scope := ports.HarvestScope(mode)
	switch scope {
	case ports.HarvestSOL, ports.HarvestUSDC, ports.HarvestAll:
		return scope, nil
	default:
		return 0, fmt.Errorf("%w: invalid harvest mode %d", protocol.ErrYieldHarvestingFailed, mode)
	}
}

// Harvest collects yield once across scope and accumulates it into the record.
func (c *Coordinator) Harvest(ctx context.Context, rec *ledger.Record, mode uint8) (Harvest, error) {
	scope, err := ParseScope(mode)
	if err != nil {
		return Harvest{}, err
	}
	amount, err := c.strategies.Harvest(ctx, scope)
	if err != nil {
		return Harvest{}, protocol.Collaborator(ports.NameStrategy, "harvest", err)
	}
	now, err := c.clock.Now(ctx)
	if err != nil {
		return Harvest{}, protocol.Collaborator(ports.NameClock, "now", err)
	}
	rec.TotalYieldHarvested = fixedmath.SatAdd(rec.TotalYieldHarvested, amount)

	log.Info().Msgf(
		"yield.Coordinator.Harvest scope=%q harvested=%s total=%s",
		scope, fixedmath.USD(amount), fixedmath.USD(rec.TotalYieldHarvested),
	)
	return Harvest{Scope: scope, Amount: amount, Total: rec.TotalYieldHarvested, Timestamp: now}, nil
}

// Distribute splits total yield and mints staker units through the issuer.
func (c *Coordinator) Distribute(ctx context.Context, p protocol.DistributionPayload) (Split, error) {
	split, err := SplitYield(p.TotalYield, p.EligibleStakers, p.TreasuryFeeBps)
	if err != nil {
		return Split{}, err
	}
	if split.Units > 0 {
		if err := c.issuer.MintYieldUnits(ctx, split.Units, split.Stakers); err != nil {
			return Split{}, protocol.Collaborator(ports.NameIssuer, "mint_yield_units", err)
		}
	}
	log.Info().Msgf(
		"yield.Coordinator.Distribute total=%s fee=%s distributable=%s units=%d stakers=%d retained=%s",
		fixedmath.USD(split.TotalYield),
		fixedmath.USD(split.TreasuryFee),
		fixedmath.USD(split.Distributable),
		split.Units,
		split.Stakers,
		fixedmath.USD(split.TreasuryRetained),
	)
	return split, nil
}
