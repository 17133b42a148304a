package controller

import (
	"context"
	"fmt"

	"github.com/danmuck/reservectl/internal/ledger"
	"github.com/danmuck/reservectl/internal/protocol"
	"github.com/danmuck/reservectl/internal/protocol/batch"
	"github.com/rs/zerolog/log"
)

// access is the gate a handler requires before it runs.
type access uint8

const (
	// open handlers run before initialization.
	open access = iota
	// initialized handlers need an initialized state.
	initialized
	// signer handlers also need accounts[1] to sign.
	signer
	// authority handlers need accounts[1] to be the stored authority and sign.
	authority
)

// handler is one dispatch table entry. halts marks economic operations that
// are refused while the protocol is paused.
type handler struct {
	minAccounts int
	access      access
	halts       bool
	run         func(*call) error
}

func (c *Controller) table() map[protocol.Opcode]handler {
	return map[protocol.Opcode]handler{
		protocol.OpInitialize:           {minAccounts: 10, access: open, run: c.initialize},
		protocol.OpUpdateParameters:     {minAccounts: 2, access: authority, run: c.updateParameters},
		protocol.OpEmergencyPause:       {minAccounts: 6, access: signer, run: c.emergencyPause},
		protocol.OpSyncVaultState:       {minAccounts: 4, access: initialized, run: c.syncVaultState},
		protocol.OpValidateSolvency:     {minAccounts: 5, access: initialized, run: c.validateSolvency},
		protocol.OpSOLMintWorkflow:      {minAccounts: 6, access: initialized, halts: true, run: c.mintWorkflow(ledger.AssetSOL)},
		protocol.OpCollectSOLYield:      {minAccounts: 4, access: initialized, halts: true, run: c.collectYield(ledger.AssetSOL)},
		protocol.OpUSDCMintWorkflow:     {minAccounts: 6, access: initialized, halts: true, run: c.mintWorkflow(ledger.AssetUSDC)},
		protocol.OpCollectUSDCYield:     {minAccounts: 4, access: initialized, halts: true, run: c.collectYield(ledger.AssetUSDC)},
		protocol.OpHarvestYield:         {minAccounts: 4, access: initialized, halts: true, run: c.harvestYield},
		protocol.OpDistributeYield:      {minAccounts: 4, access: initialized, halts: true, run: c.distributeYield},
		protocol.OpRebalanceStrategies:  {minAccounts: 4, access: initialized, halts: true, run: c.rebalance},
		protocol.OpReadAggregatedPrice:  {minAccounts: 1, access: open, run: c.readPrice},
		protocol.OpMint:                 {minAccounts: 6, access: initialized, halts: true, run: c.mint},
		protocol.OpRedeem:               {minAccounts: 6, access: initialized, halts: true, run: c.redeem},
		protocol.OpMonitorHealth:        {minAccounts: 5, access: initialized, run: c.monitorHealth},
		protocol.OpLiquidationTrigger:   {minAccounts: 5, access: initialized, run: c.liquidationTrigger},
		protocol.OpMasterPauseAll:       {minAccounts: 2, access: authority, run: c.masterPauseAll},
		protocol.OpMasterCircuitBreaker: {minAccounts: 2, access: authority, run: c.circuitBreaker},
		protocol.OpResumeOperations:     {minAccounts: 2, access: authority, run: c.resume},
	}
}

// Handles reports whether the controller itself implements op.
func (c *Controller) Handles(op protocol.Opcode) bool {
	if op == protocol.OpBatch {
		return true
	}
	_, ok := c.handlers[op]
	return ok
}

func (c *Controller) dispatch(cl *call) error {
	h, ok := c.handlers[cl.op]
	if !ok {
		if cl.op.Known() {
			return fmt.Errorf("%w: %s is reserved", protocol.ErrInvalidInstructionData, cl.op)
		}
		return fmt.Errorf("%w: unknown opcode %d", protocol.ErrInvalidInstructionData, uint8(cl.op))
	}
	if err := c.admit(cl, h); err != nil {
		return err
	}
	return h.run(cl)
}

func (c *Controller) admit(cl *call, h handler) error {
	if err := protocol.RequireAccounts(cl.accounts, h.minAccounts); err != nil {
		return fmt.Errorf("%s: %w", cl.op, err)
	}
	if !cl.accounts[0].Key.Equals(c.stateKey) {
		return fmt.Errorf("%w: accounts[0] %s is not the controller state account", protocol.ErrInvalidInstructionData, cl.accounts[0].Key)
	}
	if h.access >= initialized && !cl.state.Initialized {
		return fmt.Errorf("%s: %w", cl.op, protocol.ErrNotInitialized)
	}
	if h.access >= signer {
		if len(cl.accounts) < 2 || !cl.accounts[1].Signer {
			return fmt.Errorf("%w: %s requires a signer", protocol.ErrUnauthorized, cl.op)
		}
	}
	if h.access == authority && !cl.accounts[1].Key.Equals(cl.state.Authority) {
		return fmt.Errorf("%w: %s is not the protocol authority", protocol.ErrUnauthorized, cl.accounts[1].Key)
	}
	if h.halts && cl.state.Record.IsPaused {
		return fmt.Errorf("%w: %s refused", protocol.ErrProtocolPaused, cl.op)
	}
	return nil
}

func (c *Controller) batch(ctx context.Context, st *ledger.State, accounts []protocol.Account, body []byte, exec *Execution) error {
	ops, err := batch.Parse(body)
	if err != nil {
		return err
	}
	windows := make([][]protocol.Account, len(ops))
	for i, sub := range ops {
		windows[i], err = protocol.Window(accounts, sub.AccountIndices)
		if err != nil {
			return &protocol.BatchError{Index: sub.Index, Opcode: sub.Opcode(), Err: err}
		}
	}
	for i, sub := range ops {
		err := c.dispatch(&call{
			ctx:      ctx,
			state:    st,
			accounts: windows[i],
			payload:  sub.Payload[1:],
			op:       sub.Opcode(),
			index:    sub.Index,
			exec:     exec,
		})
		if err != nil {
			log.Warn().Err(err).Msgf("controller.Controller.batch aborted index=%d opcode=%s", sub.Index, sub.Opcode())
			return &protocol.BatchError{Index: sub.Index, Opcode: sub.Opcode(), Err: err}
		}
	}
	log.Debug().Msgf("controller.Controller.batch completed count=%d", len(ops))
	return nil
}
