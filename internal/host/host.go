// Package host is the execution environment around the controller. It admits
// one invocation at a time and makes each one all-or-nothing: on any error the
// controller state and every journaled collaborator are restored and nothing is
// persisted.
package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/reservectl/internal/controller"
	"github.com/danmuck/reservectl/internal/ledger"
	"github.com/danmuck/reservectl/internal/observability"
	"github.com/danmuck/reservectl/internal/protocol"
	"github.com/danmuck/reservectl/internal/store"
	"github.com/rs/zerolog/log"
)

var ErrPersist = errors.New("host: persist failed")

// Journal is a collaborator whose effects can be rolled back.
type Journal interface {
	Checkpoint() func()
}

// Persister stores committed invocations.
type Persister interface {
	Commit(ctx context.Context, c store.Commit) error
}

// Options configure an Environment. Both fields are optional.
type Options struct {
	Journal   Journal
	Persister Persister
	Now       func() time.Time
}

// Environment serializes invocations against one controller state.
type Environment struct {
	mu      sync.Mutex
	ctrl    *controller.Controller
	state   ledger.State
	journal Journal
	persist Persister
	now     func() time.Time
}

func New(ctrl *controller.Controller, initial ledger.State, opts Options) *Environment {
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	observability.RecordLedger(initial.Record.GlobalCollateralRatio, initial.Record.IsPaused)
	return &Environment{
		ctrl:    ctrl,
		state:   initial,
		journal: opts.Journal,
		persist: opts.Persister,
		now:     now,
	}
}

// Receipt reports the outcome of one invocation.
type Receipt struct {
	Opcode     string               `json:"opcode"`
	Committed  bool                 `json:"committed"`
	Code       uint32               `json:"code"`
	Error      string               `json:"error,omitempty"`
	BatchIndex *int                 `json:"batch_index,omitempty"`
	Execution  controller.Execution `json:"execution"`
	Record     ledger.Record        `json:"record"`
}

// Invoke runs one instruction. The returned receipt is always populated; err
// is the controller or persistence error that caused a rollback.
func (e *Environment) Invoke(ctx context.Context, accounts []protocol.Account, data []byte) (Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	opcode := "empty"
	if len(data) > 0 {
		opcode = protocol.Opcode(data[0]).String()
	}
	working := e.state
	restore := func() {}
	if e.journal != nil {
		restore = e.journal.Checkpoint()
	}

	exec, err := e.ctrl.Process(ctx, &working, accounts, data)
	if err == nil && e.persist != nil {
		commit := store.Commit{State: working, Events: exec.Events, Data: data, At: e.now()}
		if perr := e.persist.Commit(ctx, commit); perr != nil {
			err = fmt.Errorf("%w: %v", ErrPersist, perr)
		}
	}
	if err != nil {
		restore()
		observability.RecordInvocation(false)
		log.Warn().Err(err).Msgf("host.Environment.Invoke rolled back opcode=%s code=%d", opcode, protocol.Code(err))
		return e.receipt(opcode, controller.Execution{}, err), err
	}

	e.state = working
	for _, ev := range exec.Events {
		observability.RecordEmergency(uint32(ev.Type), ev.Trigger)
	}
	observability.RecordInvocation(true)
	observability.RecordLedger(working.Record.GlobalCollateralRatio, working.Record.IsPaused)
	log.Debug().Msgf("host.Environment.Invoke committed opcode=%s events=%d", opcode, len(exec.Events))
	return e.receipt(opcode, exec, nil), nil
}

func (e *Environment) receipt(opcode string, exec controller.Execution, err error) Receipt {
	r := Receipt{
		Opcode:    opcode,
		Committed: err == nil,
		Code:      protocol.Code(err),
		Execution: exec,
		Record:    e.state.Record,
	}
	if err != nil {
		r.Error = err.Error()
		var be *protocol.BatchError
		if errors.As(err, &be) {
			idx := be.Index
			r.BatchIndex = &idx
		}
	}
	return r
}

// State returns a copy of the committed state.
func (e *Environment) State() ledger.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Controller exposes the wrapped controller.
func (e *Environment) Controller() *controller.Controller {
	return e.ctrl
}
