package controller

import (
	"errors"
	"fmt"

	"github.com/danmuck/reservectl/internal/emergency"
	"github.com/danmuck/reservectl/internal/fixedmath"
	"github.com/danmuck/reservectl/internal/ledger"
	"github.com/danmuck/reservectl/internal/ports"
	"github.com/danmuck/reservectl/internal/protocol"
	"github.com/danmuck/reservectl/internal/solvency"
	"github.com/rs/zerolog/log"
)

func (c *Controller) initialize(cl *call) error {
	if cl.state.Initialized {
		return protocol.ErrAlreadyInitialized
	}
	if !cl.accounts[1].Signer {
		return fmt.Errorf("%w: initializer must sign", protocol.ErrUnauthorized)
	}
	p, err := protocol.DecodeInit(cl.payload)
	if err != nil {
		return err
	}
	registry := ledger.ProgramRegistry{
		TokenIssuer:  p.TokenIssuer,
		YieldToken:   p.YieldToken,
		SOLStrategy:  p.SOLStrategy,
		USDCStrategy: p.USDCStrategy,
		Accelerator:  p.Accelerator,
	}
	if err := registry.Validate(); err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrParameterValidationFailed, err)
	}

	*cl.state = ledger.State{
		Initialized: true,
		Authority:   cl.accounts[1].Key,
		Registry:    registry,
		Params:      ledger.DefaultParams(),
	}
	log.Info().Msgf("controller.Controller.initialize authority=%s token_issuer=%s", cl.state.Authority, registry.TokenIssuer)
	cl.output(cl.state.Registry)
	return nil
}

func (c *Controller) updateParameters(cl *call) error {
	p, err := protocol.DecodeParams(cl.payload)
	if err != nil {
		return err
	}
	if err := cl.state.Params.Apply(p.Selector, p.Value); err != nil {
		if errors.Is(err, ledger.ErrInvalidParameter) {
			return fmt.Errorf("%w: %v", protocol.ErrParameterValidationFailed, err)
		}
		return err
	}
	log.Info().Msgf("controller.Controller.updateParameters %s=%d", ledger.ParamName(p.Selector), p.Value)
	cl.output(cl.state.Params)
	return nil
}

func (c *Controller) emergencyPause(cl *call) error {
	p, err := protocol.DecodeEmergency(cl.payload)
	if err != nil {
		return err
	}
	return c.pause(cl, ledger.EmergencyType(p.Type), ledger.TriggerInstruction)
}

func (c *Controller) masterPauseAll(cl *call) error {
	return c.pause(cl, ledger.EmergencyManualOverride, ledger.TriggerAuthority)
}

func (c *Controller) circuitBreaker(cl *call) error {
	p, err := protocol.DecodeEmergency(cl.payload)
	if err != nil {
		return err
	}
	return c.pause(cl, ledger.EmergencyType(p.Type), ledger.TriggerAuthority)
}

func (c *Controller) pause(cl *call, kind ledger.EmergencyType, trigger string) error {
	ev, err := c.emergency.Pause(cl.ctx, &cl.state.Record, kind, trigger)
	if err != nil {
		return err
	}
	cl.event(ev)
	cl.output(ev)
	return nil
}

func (c *Controller) resume(cl *call) error {
	resumed, err := c.emergency.Resume(cl.ctx, &cl.state.Record)
	if err != nil {
		return err
	}
	cl.output(map[string]bool{"resumed": resumed})
	return nil
}

func (c *Controller) syncVaultState(cl *call) error {
	p, err := protocol.DecodeSelector(cl.payload)
	if err != nil {
		return err
	}
	res, err := c.sync.Sync(cl.ctx, &cl.state.Record, p.Value)
	if err != nil {
		return err
	}
	cl.output(res)
	return nil
}

func (c *Controller) validateSolvency(cl *call) error {
	p, err := protocol.DecodeSolvency(cl.payload)
	if err != nil {
		return err
	}
	return c.solvencyCheck(cl, p.MinRatioBps)
}

func (c *Controller) monitorHealth(cl *call) error {
	return c.solvencyCheck(cl, cl.state.Params.MinCollateralRatioBps)
}

// solvencyCheck evaluates and, when unhealthy, latches EmergencyPaused. The
// invocation still succeeds so the latch is committed.
func (c *Controller) solvencyCheck(cl *call, minBps uint16) error {
	report, err := c.solvency.Evaluate(cl.ctx, &cl.state.Record, minBps)
	if err != nil {
		return err
	}
	switch report.Health {
	case solvency.Unhealthy:
		log.Warn().Msgf("controller.Controller.solvencyCheck ratio=%s below minimum=%s",
			fixedmath.Percent(report.RatioBps), fixedmath.Percent(minBps))
		if err := c.latch(cl, ledger.EmergencyLowCollateralization); err != nil {
			return err
		}
	case solvency.NearThreshold:
		log.Warn().Msgf("controller.Controller.solvencyCheck ratio=%s near minimum=%s",
			fixedmath.Percent(report.RatioBps), fixedmath.Percent(minBps))
	}
	cl.output(report)
	return nil
}

func (c *Controller) liquidationTrigger(cl *call) error {
	params := cl.state.Params
	report, err := c.solvency.Evaluate(cl.ctx, &cl.state.Record, params.MinCollateralRatioBps)
	if err != nil {
		return err
	}
	if report.Defined && report.RatioBps < params.EmergencyThresholdBps {
		log.Warn().Msgf("controller.Controller.liquidationTrigger ratio=%s below emergency threshold=%s",
			fixedmath.Percent(report.RatioBps), fixedmath.Percent(params.EmergencyThresholdBps))
		if err := c.latch(cl, ledger.EmergencyLiquidationThreshold); err != nil {
			return err
		}
	}
	cl.output(report)
	return nil
}

// latch enters EmergencyPaused from an automatic check. An already paused
// protocol is left as is.
func (c *Controller) latch(cl *call, kind ledger.EmergencyType) error {
	if emergency.PhaseOf(cl.state.Record, cl.state.Params.MinCollateralRatioBps) == emergency.EmergencyPaused {
		log.Debug().Msgf("controller.Controller.latch already paused type=%d", kind)
		return nil
	}
	ev, err := c.emergency.Pause(cl.ctx, &cl.state.Record, kind, ledger.TriggerSolvency)
	if err != nil {
		return err
	}
	cl.event(ev)
	return nil
}

func (c *Controller) mintWorkflow(asset ledger.Asset) func(*call) error {
	return func(cl *call) error {
		p, err := protocol.DecodeMint(cl.payload)
		if err != nil {
			return err
		}
		if ledger.Asset(p.CollateralType) != asset {
			return fmt.Errorf("%w: %s workflow got collateral type %d", protocol.ErrCoordinationOperationMismatch, asset, p.CollateralType)
		}
		return c.runMint(cl, p)
	}
}

func (c *Controller) mint(cl *call) error {
	p, err := protocol.DecodeMint(cl.payload)
	if err != nil {
		return err
	}
	return c.runMint(cl, p)
}

func (c *Controller) runMint(cl *call, p protocol.MintPayload) error {
	res, err := c.saga.Mint(cl.ctx, cl.state, p)
	if err != nil {
		return err
	}
	cl.output(res)
	return nil
}

func (c *Controller) redeem(cl *call) error {
	p, err := protocol.DecodeBurn(cl.payload)
	if err != nil {
		return err
	}
	res, err := c.saga.Burn(cl.ctx, cl.state, p)
	if err != nil {
		return err
	}
	cl.output(res)
	return nil
}

func (c *Controller) harvestYield(cl *call) error {
	p, err := protocol.DecodeSelector(cl.payload)
	if err != nil {
		return err
	}
	return c.harvest(cl, p.Value)
}

func (c *Controller) collectYield(asset ledger.Asset) func(*call) error {
	return func(cl *call) error {
		return c.harvest(cl, uint8(asset))
	}
}

func (c *Controller) harvest(cl *call, mode uint8) error {
	h, err := c.yield.Harvest(cl.ctx, &cl.state.Record, mode)
	if err != nil {
		return err
	}
	cl.output(h)
	return nil
}

func (c *Controller) distributeYield(cl *call) error {
	p, err := protocol.DecodeDistribution(cl.payload)
	if err != nil {
		return err
	}
	split, err := c.yield.Distribute(cl.ctx, p)
	if err != nil {
		return err
	}
	cl.output(split)
	return nil
}

func (c *Controller) rebalance(cl *call) error {
	p, err := protocol.DecodeSelector(cl.payload)
	if err != nil {
		return err
	}
	trigger := ports.RebalanceTrigger(p.Value)
	switch trigger {
	case ports.RebalanceScheduled, ports.RebalanceDrift, ports.RebalanceManual:
	default:
		return fmt.Errorf("%w: unknown rebalance trigger %d", protocol.ErrCoordinationOperationMismatch, p.Value)
	}
	if err := c.strategies.Rebalance(cl.ctx, trigger); err != nil {
		return protocol.Collaborator(ports.NameStrategy, "rebalance", err)
	}
	log.Info().Msgf("controller.Controller.rebalance trigger=%q", trigger)
	cl.output(map[string]string{"trigger": trigger.String()})
	return nil
}

func (c *Controller) readPrice(cl *call) error {
	price, err := c.oracle.SOLPriceUSD(cl.ctx)
	if err != nil {
		return protocol.Collaborator(ports.NameOracle, "sol_price_usd", err)
	}
	log.Info().Msgf("controller.Controller.readPrice sol=%s", fixedmath.PriceUSD(price))
	cl.output(map[string]any{"sol_price_usd": price, "display": fixedmath.PriceUSD(price)})
	return nil
}
