// Package saga sequences mint and burn across custody, strategies and the
// token issuer. It issues no compensating calls: the invocation boundary
// discards every effect when any phase fails.
package saga

import (
	"context"
	"fmt"

	"github.com/danmuck/reservectl/internal/fixedmath"
	"github.com/danmuck/reservectl/internal/ledger"
	"github.com/danmuck/reservectl/internal/ports"
	"github.com/danmuck/reservectl/internal/protocol"
	"github.com/danmuck/reservectl/internal/solvency"
	"github.com/rs/zerolog/log"
)

// Phase names a saga step for logs and errors.
type Phase string

const (
	PhasePreCheck  Phase = "pre_check"
	PhaseCustody   Phase = "custody"
	PhaseStrategy  Phase = "strategy"
	PhaseIssuer    Phase = "issuer"
	PhasePostCheck Phase = "post_check"
)

// Result summarizes a completed saga.
type Result struct {
	Asset      ledger.Asset    `json:"asset"`
	Amount     uint64          `json:"amount"`
	Collateral uint64          `json:"collateral"`
	Phases     []Phase         `json:"phases"`
	Report     solvency.Report `json:"report"`
}

// Coordinator runs the mint and burn sequences.
type Coordinator struct {
	engine     *solvency.Engine
	custody    ports.CollateralCustody
	strategies ports.StrategyManager
	issuer     ports.TokenIssuer
}

func New(engine *solvency.Engine, custody ports.CollateralCustody, strategies ports.StrategyManager, issuer ports.TokenIssuer) *Coordinator {
	return &Coordinator{engine: engine, custody: custody, strategies: strategies, issuer: issuer}
}

func asset(kind uint8) (ledger.Asset, error) {
	a := ledger.Asset(kind)
	if !a.Valid() {
		return 0, fmt.Errorf("%w: collateral type %d", protocol.ErrParameterValidationFailed, kind)
	}
	return a, nil
}

// Mint runs: pre-check, custody accept, strategy deploy, issuer mint, post-check.
func (c *Coordinator) Mint(ctx context.Context, st *ledger.State, p protocol.MintPayload) (Result, error) {
	a, err := asset(p.CollateralType)
	if err != nil {
		return Result{}, err
	}
	if p.Amount == 0 || p.CollateralAmount == 0 {
		return Result{}, fmt.Errorf("%w: mint and collateral amounts must be positive", protocol.ErrParameterValidationFailed)
	}
	res := Result{Asset: a, Amount: p.Amount, Collateral: p.CollateralAmount}

	if _, err := c.check(ctx, st, PhasePreCheck); err != nil {
		return Result{}, err
	}
	res.Phases = append(res.Phases, PhasePreCheck)

	if err := c.custody.Accept(ctx, a, p.CollateralAmount); err != nil {
		return Result{}, protocol.Collaborator(ports.NameCustody, "accept", err)
	}
	res.Phases = append(res.Phases, PhaseCustody)

	if err := c.strategies.Deploy(ctx, a, p.CollateralAmount); err != nil {
		return Result{}, protocol.Collaborator(ports.NameStrategy, "deploy", err)
	}
	res.Phases = append(res.Phases, PhaseStrategy)

	if err := c.issuer.Mint(ctx, p.Amount); err != nil {
		return Result{}, protocol.Collaborator(ports.NameIssuer, "mint", err)
	}
	res.Phases = append(res.Phases, PhaseIssuer)

	st.Record.TotalMinted = fixedmath.SatAdd(st.Record.TotalMinted, p.Amount)
	st.Record.AddTVL(a, p.CollateralAmount)

	report, err := c.check(ctx, st, PhasePostCheck)
	if err != nil {
		return Result{}, err
	}
	res.Phases = append(res.Phases, PhasePostCheck)
	res.Report = report

	log.Info().Msgf(
		"saga.Coordinator.Mint minted=%s collateral=%d asset=%s ratio=%s",
		fixedmath.USD(p.Amount), p.CollateralAmount, a, fixedmath.Percent(report.RatioBps),
	)
	return res, nil
}

// Burn runs: issuer burn, strategy withdraw, custody release, post-check.
func (c *Coordinator) Burn(ctx context.Context, st *ledger.State, p protocol.BurnPayload) (Result, error) {
	a, err := asset(p.RedeemType)
	if err != nil {
		return Result{}, err
	}
	if p.Amount == 0 {
		return Result{}, fmt.Errorf("%w: burn amount must be positive", protocol.ErrParameterValidationFailed)
	}
	res := Result{Asset: a, Amount: p.Amount}

	if err := c.issuer.Burn(ctx, p.Amount); err != nil {
		return Result{}, protocol.Collaborator(ports.NameIssuer, "burn", err)
	}
	res.Phases = append(res.Phases, PhaseIssuer)

	withdrawn, err := c.strategies.Withdraw(ctx, a, p.ExpectedCollateral)
	if err != nil {
		return Result{}, protocol.Collaborator(ports.NameStrategy, "withdraw", err)
	}
	if withdrawn < p.ExpectedCollateral {
		return Result{}, fmt.Errorf("%w: withdrew %d of expected %d %s", protocol.ErrCoordinationOperationMismatch, withdrawn, p.ExpectedCollateral, a)
	}
	res.Phases = append(res.Phases, PhaseStrategy)

	if err := c.custody.Release(ctx, a, withdrawn); err != nil {
		return Result{}, protocol.Collaborator(ports.NameCustody, "release", err)
	}
	res.Phases = append(res.Phases, PhaseCustody)
	res.Collateral = withdrawn

	st.Record.TotalBurned = fixedmath.SatAdd(st.Record.TotalBurned, p.Amount)
	st.Record.SubTVL(a, withdrawn)

	report, err := c.check(ctx, st, PhasePostCheck)
	if err != nil {
		return Result{}, err
	}
	res.Phases = append(res.Phases, PhasePostCheck)
	res.Report = report

	log.Info().Msgf(
		"saga.Coordinator.Burn burned=%s released=%d asset=%s ratio=%s",
		fixedmath.USD(p.Amount), withdrawn, a, fixedmath.Percent(report.RatioBps),
	)
	return res, nil
}

func (c *Coordinator) check(ctx context.Context, st *ledger.State, phase Phase) (solvency.Report, error) {
	report, err := c.engine.Evaluate(ctx, &st.Record, st.Params.MinCollateralRatioBps)
	if err != nil {
		return solvency.Report{}, err
	}
	if report.Health == solvency.Unhealthy {
		return solvency.Report{}, fmt.Errorf(
			"%w: %s ratio %d bps below minimum %d bps",
			protocol.ErrInsufficientCollateralization, phase, report.RatioBps, report.MinRatioBps,
		)
	}
	return report, nil
}
