// Package vaultsync refreshes ledger fields from custody and strategy reads.
package vaultsync

import (
	"context"
	"fmt"

	"github.com/danmuck/reservectl/internal/ledger"
	"github.com/danmuck/reservectl/internal/ports"
	"github.com/danmuck/reservectl/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Kind selects what a sync reads.
type Kind uint8

const (
	CollateralBalances  Kind = 1
	AccumulatedYields   Kind = 2
	StrategyAllocations Kind = 3
	FullSync            Kind = 4
)

func (k Kind) String() string {
	switch k {
	case CollateralBalances:
		return "collateral_balances"
	case AccumulatedYields:
		return "accumulated_yields"
	case StrategyAllocations:
		return "strategy_allocations"
	case FullSync:
		return "full_sync"
	default:
		return "unknown"
	}
}

// Result reports what a sync observed.
type Result struct {
	Kind        Kind            `json:"kind"`
	Custody     *ports.Balances `json:"custody,omitempty"`
	Allocations *ports.Balances `json:"allocations,omitempty"`
	Harvested   *uint64         `json:"harvested,omitempty"`
}

// Syncer reads collaborator state into the ledger.
type Syncer struct {
	custody    ports.CollateralCustody
	strategies ports.StrategyManager
}

func New(custody ports.CollateralCustody, strategies ports.StrategyManager) *Syncer {
	return &Syncer{custody: custody, strategies: strategies}
}

// Sync runs the read selected by kind. Full sync refreshes balances, checks
// allocations against them, then refreshes yields.
func (s *Syncer) Sync(ctx context.Context, rec *ledger.Record, kind uint8) (Result, error) {
	k := Kind(kind)
	res := Result{Kind: k}
	var err error
	switch k {
	case CollateralBalances:
		err = s.balances(ctx, rec, &res)
	case AccumulatedYields:
		err = s.yields(ctx, rec, &res)
	case StrategyAllocations:
		err = s.allocations(ctx, rec, &res)
	case FullSync:
		if err = s.balances(ctx, rec, &res); err != nil {
			break
		}
		if err = s.allocations(ctx, rec, &res); err != nil {
			break
		}
		err = s.yields(ctx, rec, &res)
	default:
		return Result{}, fmt.Errorf("%w: unknown sync type %d", protocol.ErrCoordinationOperationMismatch, kind)
	}
	if err != nil {
		return Result{}, err
	}
	log.Debug().Msgf("vaultsync.Syncer.Sync kind=%s sol_tvl=%d usdc_tvl=%d harvested=%d",
		k, rec.CurrentSOLTVL, rec.CurrentUSDCTVL, rec.TotalYieldHarvested)
	return res, nil
}

func (s *Syncer) balances(ctx context.Context, rec *ledger.Record, res *Result) error {
	b, err := s.custody.Balances(ctx)
	if err != nil {
		return protocol.Collaborator(ports.NameCustody, "balances", err)
	}
	rec.CurrentSOLTVL = b.SOL
	rec.CurrentUSDCTVL = b.USDC
	res.Custody = &b
	return nil
}

func (s *Syncer) yields(ctx context.Context, rec *ledger.Record, res *Result) error {
	total, err := s.strategies.HarvestedTotal(ctx)
	if err != nil {
		return protocol.Collaborator(ports.NameStrategy, "harvested_total", err)
	}
	if total > rec.TotalYieldHarvested {
		rec.TotalYieldHarvested = total
	}
	res.Harvested = &total
	return nil
}

func (s *Syncer) allocations(ctx context.Context, rec *ledger.Record, res *Result) error {
	a, err := s.strategies.Allocations(ctx)
	if err != nil {
		return protocol.Collaborator(ports.NameStrategy, "allocations", err)
	}
	for _, asset := range []ledger.Asset{ledger.AssetSOL, ledger.AssetUSDC} {
		if deployed, tvl := a.Of(asset), rec.TVL(asset); deployed > tvl {
			return fmt.Errorf("%w: %s deployed %d exceeds tvl %d", protocol.ErrCoordinationOperationMismatch, asset, deployed, tvl)
		}
	}
	res.Allocations = &a
	return nil
}
