package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/reservectl/internal/emergency"
	"github.com/danmuck/reservectl/internal/ledger"
	"github.com/danmuck/reservectl/internal/observability"
	"github.com/danmuck/reservectl/internal/ports"
	"github.com/danmuck/reservectl/internal/protocol"
	"github.com/danmuck/reservectl/internal/saga"
	"github.com/danmuck/reservectl/internal/solvency"
	"github.com/danmuck/reservectl/internal/vaultsync"
	"github.com/danmuck/reservectl/internal/yield"
	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog/log"
)

var ErrMissingPort = errors.New("controller: missing collaborator port")

// Deps are the collaborators a controller is wired to.
type Deps struct {
	Program    solana.PublicKey
	Keys       ports.AuthorityKeyDerivation
	Custody    ports.CollateralCustody
	Strategies ports.StrategyManager
	Issuer     ports.TokenIssuer
	Oracle     ports.PriceOracleAggregator
	Clock      ports.Clock
}

func (d Deps) validate() error {
	missing := func(name string) error { return fmt.Errorf("%w: %s", ErrMissingPort, name) }
	switch {
	case d.Keys == nil:
		return missing(ports.NameKeys)
	case d.Custody == nil:
		return missing(ports.NameCustody)
	case d.Strategies == nil:
		return missing(ports.NameStrategy)
	case d.Issuer == nil:
		return missing(ports.NameIssuer)
	case d.Oracle == nil:
		return missing(ports.NameOracle)
	case d.Clock == nil:
		return missing(ports.NameClock)
	}
	return nil
}

// Controller dispatches instructions to handlers.
type Controller struct {
	program    solana.PublicKey
	stateKey   solana.PublicKey
	oracle     ports.PriceOracleAggregator
	strategies ports.StrategyManager
	solvency   *solvency.Engine
	emergency  *emergency.Machine
	yield      *yield.Coordinator
	saga       *saga.Coordinator
	sync       *vaultsync.Syncer
	handlers   map[protocol.Opcode]handler
}

// New wires a controller and derives its state account address.
func New(d Deps) (*Controller, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	stateKey, _, err := ports.ControllerAddress(d.Keys, d.Program)
	if err != nil {
		return nil, protocol.Collaborator(ports.NameKeys, "find_program_address", err)
	}
	engine := solvency.New(d.Oracle, d.Clock)
	c := &Controller{
		program:    d.Program,
		stateKey:   stateKey,
		oracle:     d.Oracle,
		strategies: d.Strategies,
		solvency:   engine,
		emergency:  emergency.New(d.Clock, d.Custody, d.Strategies, d.Issuer),
		yield:      yield.New(d.Strategies, d.Issuer, d.Clock),
		saga:       saga.New(engine, d.Custody, d.Strategies, d.Issuer),
		sync:       vaultsync.New(d.Custody, d.Strategies),
	}
	c.handlers = c.table()
	return c, nil
}

// StateKey is the address accounts[0] must carry.
func (c *Controller) StateKey() solana.PublicKey {
	return c.stateKey
}

// Program is the controller program id.
func (c *Controller) Program() solana.PublicKey {
	return c.program
}

// Output is what one handler reported. Index is the batch position, or -1
// outside a batch.
type Output struct {
	Opcode protocol.Opcode `json:"opcode"`
	Name   string          `json:"name"`
	Index  int             `json:"index"`
	Detail any             `json:"detail,omitempty"`
}

// Execution collects the effects of one Process call.
type Execution struct {
	Opcode  protocol.Opcode         `json:"opcode"`
	Outputs []Output                `json:"outputs,omitempty"`
	Events  []ledger.EmergencyEvent `json:"events,omitempty"`
}

// call is the per-handler view of an invocation.
type call struct {
	ctx      context.Context
	state    *ledger.State
	accounts []protocol.Account
	payload  []byte
	op       protocol.Opcode
	index    int
	exec     *Execution
}

func (cl *call) output(detail any) {
	cl.exec.Outputs = append(cl.exec.Outputs, Output{
		Opcode: cl.op,
		Name:   cl.op.String(),
		Index:  cl.index,
		Detail: detail,
	})
}

func (cl *call) event(ev ledger.EmergencyEvent) {
	cl.exec.Events = append(cl.exec.Events, ev)
}

// Process runs one instruction against st. On error st may hold partial
// changes; callers discard it.
func (c *Controller) Process(ctx context.Context, st *ledger.State, accounts []protocol.Account, data []byte) (Execution, error) {
	start := time.Now()
	if len(data) == 0 {
		err := fmt.Errorf("%w: empty instruction", protocol.ErrInvalidInstructionData)
		observability.RecordInstruction("empty", protocol.Code(err), time.Since(start))
		return Execution{}, err
	}
	op := protocol.Opcode(data[0])
	exec := Execution{Opcode: op}

	var err error
	if op == protocol.OpBatch {
		err = c.batch(ctx, st, accounts, data[1:], &exec)
	} else {
		err = c.dispatch(&call{
			ctx:      ctx,
			state:    st,
			accounts: accounts,
			payload:  data[1:],
			op:       op,
			index:    -1,
			exec:     &exec,
		})
	}

	code := protocol.Code(err)
	observability.RecordInstruction(op.String(), code, time.Since(start))
	if err != nil {
		log.Debug().Err(err).Msgf("controller.Controller.Process opcode=%s code=%d", op, code)
		return exec, err
	}
	log.Debug().Msgf("controller.Controller.Process opcode=%s accounts=%d outputs=%d events=%d",
		op, len(accounts), len(exec.Outputs), len(exec.Events))
	return exec, nil
}
