package sim

import (
	"context"

	"github.com/danmuck/reservectl/internal/ledger"
	"github.com/danmuck/reservectl/internal/ports"
	"github.com/gagliardetto/solana-go"
)

var (
	_ ports.CollateralCustody     = (*Custody)(nil)
	_ ports.StrategyManager       = (*Strategies)(nil)
	_ ports.TokenIssuer           = (*Issuer)(nil)
	_ ports.PriceOracleAggregator = (*Oracle)(nil)
	_ ports.Clock                 = (*Clock)(nil)
)

// Custody escrows collateral.
type Custody struct{ w *World }

func (c *Custody) p() pauser { return pauser{w: c.w, name: "custody"} }

func (c *Custody) Pause(ctx context.Context) error  { return c.p().Pause(ctx) }
func (c *Custody) Resume(ctx context.Context) error { return c.p().Resume(ctx) }

func (c *Custody) Accept(ctx context.Context, asset ledger.Asset, amount uint64) error {
	if err := c.w.enter("custody.accept"); err != nil {
		return err
	}
	if err := c.p().guard(); err != nil {
		return err
	}
	addTo(&c.w.state.Escrow, asset, amount)
	return nil
}

func (c *Custody) Release(ctx context.Context, asset ledger.Asset, amount uint64) error {
	if err := c.w.enter("custody.release"); err != nil {
		return err
	}
	if err := c.p().guard(); err != nil {
		return err
	}
	if !subFrom(&c.w.state.Escrow, asset, amount) {
		return ports.Fail(CodeInsufficientBalance, "escrow balance too low")
	}
	return nil
}

func (c *Custody) Balances(ctx context.Context) (ports.Balances, error) {
	if err := c.w.enter("custody.balances"); err != nil {
		return ports.Balances{}, err
	}
	return c.w.state.Escrow, nil
}

// Strategies deploys escrowed collateral and accrues yield.
type Strategies struct{ w *World }

func (s *Strategies) p() pauser { return pauser{w: s.w, name: "strategy"} }

func (s *Strategies) Pause(ctx context.Context) error  { return s.p().Pause(ctx) }
func (s *Strategies) Resume(ctx context.Context) error { return s.p().Resume(ctx) }

func (s *Strategies) Deploy(ctx context.Context, asset ledger.Asset, amount uint64) error {
	if err := s.w.enter("strategy.deploy"); err != nil {
		return err
	}
	if err := s.p().guard(); err != nil {
		return err
	}
	addTo(&s.w.state.Deployed, asset, amount)
	return nil
}

func (s *Strategies) Withdraw(ctx context.Context, asset ledger.Asset, amount uint64) (uint64, error) {
	if err := s.w.enter("strategy.withdraw"); err != nil {
		return 0, err
	}
	if err := s.p().guard(); err != nil {
		return 0, err
	}
	got := amount
	if avail := s.w.state.Deployed.Of(asset); avail < got {
		got = avail
	}
	subFrom(&s.w.state.Deployed, asset, got)
	return got, nil
}

func (s *Strategies) Harvest(ctx context.Context, scope ports.HarvestScope) (uint64, error) {
	if err := s.w.enter("strategy.harvest"); err != nil {
		return 0, err
	}
	if err := s.p().guard(); err != nil {
		return 0, err
	}
	var total uint64
	if scope == ports.HarvestSOL || scope == ports.HarvestAll {
		total += s.w.state.PendingYield.SOL
		s.w.state.PendingYield.SOL = 0
	}
	if scope == ports.HarvestUSDC || scope == ports.HarvestAll {
		total += s.w.state.PendingYield.USDC
		s.w.state.PendingYield.USDC = 0
	}
	s.w.state.HarvestedTotal += total
	return total, nil
}

func (s *Strategies) Allocations(ctx context.Context) (ports.Balances, error) {
	if err := s.w.enter("strategy.allocations"); err != nil {
		return ports.Balances{}, err
	}
	return s.w.state.Deployed, nil
}

func (s *Strategies) HarvestedTotal(ctx context.Context) (uint64, error) {
	if err := s.w.enter("strategy.harvested_total"); err != nil {
		return 0, err
	}
	return s.w.state.HarvestedTotal, nil
}

func (s *Strategies) Rebalance(ctx context.Context, trigger ports.RebalanceTrigger) error {
	if err := s.w.enter("strategy.rebalance"); err != nil {
		return err
	}
	return s.p().guard()
}

// Issuer tracks stablecoin supply and yield-token issuance.
type Issuer struct{ w *World }

func (i *Issuer) p() pauser { return pauser{w: i.w, name: "issuer"} }

func (i *Issuer) Pause(ctx context.Context) error  { return i.p().Pause(ctx) }
func (i *Issuer) Resume(ctx context.Context) error { return i.p().Resume(ctx) }

func (i *Issuer) Mint(ctx context.Context, amount uint64) error {
	if err := i.w.enter("issuer.mint"); err != nil {
		return err
	}
	if err := i.p().guard(); err != nil {
		return err
	}
	i.w.state.Supply += amount
	return nil
}

func (i *Issuer) Burn(ctx context.Context, amount uint64) error {
	if err := i.w.enter("issuer.burn"); err != nil {
		return err
	}
	if err := i.p().guard(); err != nil {
		return err
	}
	if i.w.state.Supply < amount {
		return ports.Fail(CodeInsufficientBalance, "supply too low")
	}
	i.w.state.Supply -= amount
	return nil
}

func (i *Issuer) MintYieldUnits(ctx context.Context, units uint64, stakers uint32) error {
	if err := i.w.enter("issuer.mint_yield_units"); err != nil {
		return err
	}
	if err := i.p().guard(); err != nil {
		return err
	}
	i.w.state.YieldUnits += units
	return nil
}

// Oracle reports the configured SOL price.
type Oracle struct{ w *World }

func (o *Oracle) SOLPriceUSD(ctx context.Context) (uint64, error) {
	if err := o.w.enter("oracle.price"); err != nil {
		return 0, err
	}
	return o.w.state.PriceUSD, nil
}

// Clock returns the simulated time and advances it by the configured tick.
type Clock struct{ w *World }

func (c *Clock) Now(ctx context.Context) (int64, error) {
	if err := c.w.enter("clock.now"); err != nil {
		return 0, err
	}
	now := c.w.state.Now
	c.w.state.Now += c.w.state.Tick
	return now, nil
}

// Keys is the derivation used alongside the simulation.
func Keys() ports.AuthorityKeyDerivation {
	return ports.SolanaKeys{}
}

// ProgramID is a fixed controller program id for simulations.
var ProgramID = func() solana.PublicKey {
	var key solana.PublicKey
	copy(key[:], "reservectl/controller/program/v1")
	return key
}()
