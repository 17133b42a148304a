// Package sim is an in-memory, deterministic stand-in for every collaborator
// port. All collaborators share one World so the host can checkpoint and
// restore their effects together with the controller state.
package sim

import (
	"context"
	"maps"

	"github.com/danmuck/reservectl/internal/ledger"
	"github.com/danmuck/reservectl/internal/ports"
)

// Failure codes returned by the simulation itself.
const (
	CodeInsufficientBalance uint32 = 0x1001
	CodeInjected            uint32 = 0x1002
	CodePaused              uint32 = 0x1003
)

// Snapshot is the complete simulated collaborator state.
type Snapshot struct {
	Escrow         ports.Balances
	Deployed       ports.Balances
	PendingYield   ports.Balances
	HarvestedTotal uint64
	Supply         uint64
	YieldUnits     uint64
	PriceUSD       uint64
	Now            int64
	Tick           int64
	Paused         map[string]bool
	Calls          []string
}

// World owns the simulated collaborators.
type World struct {
	state    Snapshot
	failures map[string]uint32
}

// NewWorld returns a world with the given SOL price (1e9 scale) and clock start.
func NewWorld(priceUSD uint64, now int64) *World {
	return &World{
		state: Snapshot{
			PriceUSD: priceUSD,
			Now:      now,
			Paused:   make(map[string]bool),
		},
		failures: make(map[string]uint32),
	}
}

// State returns a copy of the current simulated state.
func (w *World) State() Snapshot {
	return cloneSnapshot(w.state)
}

// Checkpoint captures the current state and returns a function that restores it.
func (w *World) Checkpoint() func() {
	saved := cloneSnapshot(w.state)
	return func() {
		w.state = cloneSnapshot(saved)
	}
}

// FailOn makes the named call ("custody.accept", "strategy.pause", ...) fail with code.
func (w *World) FailOn(call string, code uint32) {
	w.failures[call] = code
}

// ClearFailures removes every injected failure.
func (w *World) ClearFailures() {
	w.failures = make(map[string]uint32)
}

// SetPrice changes the oracle price.
func (w *World) SetPrice(priceUSD uint64) {
	w.state.PriceUSD = priceUSD
}

// SetTick advances the clock by tick seconds after each read.
func (w *World) SetTick(tick int64) {
	w.state.Tick = tick
}

// AccrueYield adds harvestable yield for asset.
func (w *World) AccrueYield(asset ledger.Asset, amount uint64) {
	switch asset {
	case ledger.AssetSOL:
		w.state.PendingYield.SOL += amount
	case ledger.AssetUSDC:
		w.state.PendingYield.USDC += amount
	}
}

// Fund places collateral directly in escrow, bypassing the controller.
func (w *World) Fund(asset ledger.Asset, amount uint64) {
	addTo(&w.state.Escrow, asset, amount)
}

// Calls lists every collaborator call in order.
func (w *World) Calls() []string {
	return append([]string(nil), w.state.Calls...)
}

func (w *World) enter(call string) error {
	w.state.Calls = append(w.state.Calls, call)
	if code, ok := w.failures[call]; ok {
		return ports.Fail(code, "injected failure: "+call)
	}
	return nil
}

func (w *World) Custody() *Custody       { return &Custody{w: w} }
func (w *World) Strategies() *Strategies { return &Strategies{w: w} }
func (w *World) Issuer() *Issuer         { return &Issuer{w: w} }
func (w *World) Oracle() *Oracle         { return &Oracle{w: w} }
func (w *World) Clock() *Clock           { return &Clock{w: w} }

func cloneSnapshot(s Snapshot) Snapshot {
	out := s
	out.Paused = maps.Clone(s.Paused)
	if out.Paused == nil {
		out.Paused = make(map[string]bool)
	}
	out.Calls = append([]string(nil), s.Calls...)
	return out
}

func addTo(b *ports.Balances, asset ledger.Asset, amount uint64) {
	if asset == ledger.AssetSOL {
		b.SOL += amount
	} else {
		b.USDC += amount
	}
}

func subFrom(b *ports.Balances, asset ledger.Asset, amount uint64) bool {
	if asset == ledger.AssetSOL {
		if b.SOL < amount {
			return false
		}
		b.SOL -= amount
		return true
	}
	if b.USDC < amount {
		return false
	}
	b.USDC -= amount
	return true
}

type pauser struct {
	w    *World
	name string
}

func (p pauser) Pause(ctx context.Context) error {
	if err := p.w.enter(p.name + ".pause"); err != nil {
		return err
	}
	p.w.state.Paused[p.name] = true
	return nil
}

func (p pauser) Resume(ctx context.Context) error {
	if err := p.w.enter(p.name + ".resume"); err != nil {
		return err
	}
	delete(p.w.state.Paused, p.name)
	return nil
}

func (p pauser) guard() error {
	if p.w.state.Paused[p.name] {
		return ports.Fail(CodePaused, p.name+" is paused")
	}
	return nil
}
