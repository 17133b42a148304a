package sim

import (
	"context"
	"testing"

	"github.com/danmuck/reservectl/internal/ledger"
	"github.com/danmuck/reservectl/internal/ports"
	"github.com/danmuck/reservectl/internal/protocol"
	"github.com/danmuck/reservectl/internal/testutil/testlog"
)

func TestCheckpointRestoresEverything(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	w := NewWorld(150_000_000_000, 1_700_000_000)
	if err := w.Custody().Accept(ctx, ledger.AssetSOL, 10); err != nil {
		t.Fatalf("accept: %v", err)
	}
	restore := w.Checkpoint()

	if err := w.Issuer().Mint(ctx, 99); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := w.Strategies().Pause(ctx); err != nil {
		t.Fatalf("pause: %v", err)
	}
	restore()

	st := w.State()
	if st.Supply != 0 || st.Paused["strategy"] || st.Escrow.SOL != 10 {
		t.Fatalf("restore incomplete: %+v", st)
	}
	if len(st.Calls) != 1 {
		t.Fatalf("call log should be restored, got %v", st.Calls)
	}
}

func TestInjectedFailureCarriesCode(t *testing.T) {
	testlog.Start(t)
	w := NewWorld(0, 0)
	w.FailOn("issuer.pause", 77)
	err := w.Issuer().Pause(context.Background())
	if err == nil {
		t.Fatalf("expected injected failure")
	}
	if got := protocol.Code(protocol.Collaborator(ports.NameIssuer, "pause", err)); got != 77 {
		t.Fatalf("expected code 77, got %d", got)
	}
	if w.State().Paused["issuer"] {
		t.Fatalf("failed pause must not change state")
	}
}

func TestWithdrawReportsShortfall(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	w := NewWorld(0, 0)
	s := w.Strategies()
	if err := s.Deploy(ctx, ledger.AssetUSDC, 40); err != nil {
		t.Fatalf("deploy: %v", err)
	}
	got, err := s.Withdraw(ctx, ledger.AssetUSDC, 100)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got != 40 {
		t.Fatalf("expected 40 withdrawn, got %d", got)
	}
}

func TestHarvestScopes(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	w := NewWorld(0, 0)
	w.AccrueYield(ledger.AssetSOL, 5)
	w.AccrueYield(ledger.AssetUSDC, 7)

	got, err := w.Strategies().Harvest(ctx, ports.HarvestUSDC)
	if err != nil || got != 7 {
		t.Fatalf("usdc harvest got=%d err=%v", got, err)
	}
	got, err = w.Strategies().Harvest(ctx, ports.HarvestAll)
	if err != nil || got != 5 {
		t.Fatalf("all harvest got=%d err=%v", got, err)
	}
	if total := w.State().HarvestedTotal; total != 12 {
		t.Fatalf("expected harvested total 12, got %d", total)
	}
}

func TestPausedCollaboratorRefusesWork(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	w := NewWorld(0, 0)
	c := w.Custody()
	if err := c.Pause(ctx); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := c.Accept(ctx, ledger.AssetSOL, 1); err == nil {
		t.Fatalf("paused custody must refuse collateral")
	}
	if err := c.Resume(ctx); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if err := c.Accept(ctx, ledger.AssetSOL, 1); err != nil {
		t.Fatalf("resumed custody should accept: %v", err)
	}
}

func TestClockTicks(t *testing.T) {
	testlog.Start(t)
	w := NewWorld(0, 100)
	w.SetTick(5)
	clk := w.Clock()
	a, _ := clk.Now(context.Background())
	b, _ := clk.Now(context.Background())
	if a != 100 || b != 105 {
		t.Fatalf("unexpected ticks %d %d", a, b)
	}
}
