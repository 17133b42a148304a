package emergency

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/danmuck/reservectl/internal/ledger"
	"github.com/danmuck/reservectl/internal/ports"
	"github.com/danmuck/reservectl/internal/ports/sim"
	"github.com/danmuck/reservectl/internal/protocol"
	"github.com/danmuck/reservectl/internal/testutil/testlog"
)

func newMachine(w *sim.World) *Machine {
	return New(w.Clock(), w.Custody(), w.Strategies(), w.Issuer())
}

func TestPauseSetsFlagsAndEvent(t *testing.T) {
	testlog.Start(t)
	w := sim.NewWorld(0, 1_000)
	rec := ledger.Record{}
	event, err := newMachine(w).Pause(context.Background(), &rec, ledger.EmergencyManualOverride, ledger.TriggerInstruction)
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if !rec.IsPaused || !rec.EmergencyMode || rec.EmergencyOverrideCount != 1 || rec.LastEmergencyAction != 1_000 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if event.Type != ledger.EmergencyManualOverride || event.OverrideCount != 1 || event.Timestamp != 1_000 {
		t.Fatalf("unexpected event %+v", event)
	}
	st := w.State()
	for _, name := range []string{"custody", "strategy", "issuer"} {
		if !st.Paused[name] {
			t.Fatalf("%s not paused", name)
		}
	}
}

func TestPauseIdempotentFlagStrictCounter(t *testing.T) {
	testlog.Start(t)
	w := sim.NewWorld(0, 0)
	m := newMachine(w)
	rec := ledger.Record{}
	for i := 1; i <= 3; i++ {
		if _, err := m.Pause(context.Background(), &rec, ledger.EmergencyOracleDeviation, ledger.TriggerInstruction); err != nil {
			t.Fatalf("pause %d: %v", i, err)
		}
		if !rec.IsPaused || rec.EmergencyOverrideCount != uint64(i) {
			t.Fatalf("activation %d: %+v", i, rec)
		}
	}
}

func TestPauseCounterSaturates(t *testing.T) {
	testlog.Start(t)
	w := sim.NewWorld(0, 0)
	rec := ledger.Record{EmergencyOverrideCount: math.MaxUint64}
	event, err := newMachine(w).Pause(context.Background(), &rec, ledger.EmergencyLowCollateralization, ledger.TriggerSolvency)
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if rec.EmergencyOverrideCount != math.MaxUint64 || event.OverrideCount != math.MaxUint64 {
		t.Fatalf("counter should stay at max, got %d", rec.EmergencyOverrideCount)
	}
}

func TestPauseFanOutFailureLeavesRecordUntouched(t *testing.T) {
	testlog.Start(t)
	w := sim.NewWorld(0, 5)
	w.FailOn("strategy.pause", 31)
	rec := ledger.Record{TotalMinted: 9}
	before := ledger.EncodeRecord(rec)

	_, err := newMachine(w).Pause(context.Background(), &rec, ledger.EmergencyStrategyFailure, ledger.TriggerInstruction)
	var collab *protocol.CollaboratorError
	if !errors.As(err, &collab) || collab.Port != ports.NameStrategy || collab.Code != 31 {
		t.Fatalf("expected strategy collaborator error, got %v", err)
	}
	if string(ledger.EncodeRecord(rec)) != string(before) {
		t.Fatalf("record changed on failed fan-out: %+v", rec)
	}
	if w.State().Paused["issuer"] {
		t.Fatalf("fan-out must stop at the first failure")
	}
}

func TestUnknownTypeAccepted(t *testing.T) {
	testlog.Start(t)
	w := sim.NewWorld(0, 0)
	rec := ledger.Record{}
	event, err := newMachine(w).Pause(context.Background(), &rec, ledger.EmergencyType(99), ledger.TriggerInstruction)
	if err != nil {
		t.Fatalf("unknown type should be accepted: %v", err)
	}
	if event.Type != 99 || event.Type.String() != "unknown type" {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestResume(t *testing.T) {
	testlog.Start(t)
	w := sim.NewWorld(0, 10)
	w.SetTick(10)
	m := newMachine(w)
	rec := ledger.Record{}

	resumed, err := m.Resume(context.Background(), &rec)
	if err != nil || resumed {
		t.Fatalf("resume while normal should be a no-op, got %t %v", resumed, err)
	}
	if _, err := m.Pause(context.Background(), &rec, ledger.EmergencyManualOverride, ledger.TriggerAuthority); err != nil {
		t.Fatalf("pause: %v", err)
	}
	resumed, err = m.Resume(context.Background(), &rec)
	if err != nil || !resumed {
		t.Fatalf("resume: %t %v", resumed, err)
	}
	if rec.IsPaused || rec.EmergencyMode || rec.EmergencyOverrideCount != 1 || rec.LastEmergencyAction != 20 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if len(w.State().Paused) != 0 {
		t.Fatalf("collaborators still paused: %v", w.State().Paused)
	}
}

func TestPhaseOf(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name string
		rec  ledger.Record
		want Phase
	}{
		{"fresh", ledger.Record{}, Normal},
		{"healthy", ledger.Record{LastSolvencyCheck: 1, GlobalCollateralRatio: 15_000}, Normal},
		{"near threshold", ledger.Record{LastSolvencyCheck: 1, GlobalCollateralRatio: 10_050}, Warning},
		{"latched", ledger.Record{EmergencyMode: true, LastSolvencyCheck: 1, GlobalCollateralRatio: 15_000}, Warning},
		{"paused", ledger.Record{IsPaused: true, EmergencyMode: true}, EmergencyPaused},
	}
	for _, tc := range cases {
		if got := PhaseOf(tc.rec, 10_000); got != tc.want {
			t.Fatalf("%s: got %s want %s", tc.name, got, tc.want)
		}
	}
}
