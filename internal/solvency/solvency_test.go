package solvency

import (
	"context"
	"errors"
	"testing"

	"github.com/danmuck/reservectl/internal/ledger"
	"github.com/danmuck/reservectl/internal/ports/sim"
	"github.com/danmuck/reservectl/internal/protocol"
	"github.com/danmuck/reservectl/internal/testutil/testlog"
)

func TestRatioReferenceValues(t *testing.T) {
	testlog.Start(t)
	ratio, solValue, backing, defined := Ratio(10_000_000_000, 150_000_000_000, 500_000_000, 2_000_000_000)
	if solValue != 1_500_000_000 {
		t.Fatalf("sol value: got %d", solValue)
	}
	if backing != 2_000_000_000 {
		t.Fatalf("backing: got %d", backing)
	}
	if ratio != 10_000 || !defined {
		t.Fatalf("ratio: got %d defined=%t", ratio, defined)
	}
}

func TestRatioZeroSupplyIsUndefined(t *testing.T) {
	testlog.Start(t)
	ratio, _, _, defined := Ratio(1, 1, 1, 0)
	if defined || ratio != UndefinedRatio {
		t.Fatalf("expected undefined sentinel, got %d defined=%t", ratio, defined)
	}
}

func TestRatioMonotonic(t *testing.T) {
	testlog.Start(t)
	const price = 150_000_000_000
	prev := uint16(0)
	for usdc := uint64(0); usdc <= 4_000_000_000; usdc += 250_000_000 {
		r, _, _, _ := Ratio(10_000_000_000, price, usdc, 2_000_000_000)
		if r < prev {
			t.Fatalf("ratio decreased as backing grew: %d < %d", r, prev)
		}
		prev = r
	}
	prev = UndefinedRatio
	for supply := uint64(500_000_000); supply <= 10_000_000_000; supply += 500_000_000 {
		r, _, _, _ := Ratio(10_000_000_000, price, 500_000_000, supply)
		if r > prev {
			t.Fatalf("ratio increased as supply grew: %d > %d", r, prev)
		}
		prev = r
	}
}

func TestRatioSaturatesWithoutPanic(t *testing.T) {
	testlog.Start(t)
	const max = ^uint64(0)
	r, _, backing, _ := Ratio(max, max, max, 1)
	if backing != max || r != UndefinedRatio {
		t.Fatalf("expected saturation, got ratio=%d backing=%d", r, backing)
	}
}

func TestClassify(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		ratio uint16
		want  Health
	}{
		{9_999, Unhealthy},
		{10_000, NearThreshold},
		{10_099, NearThreshold},
		{10_100, Healthy},
	}
	for _, tc := range cases {
		if got := Classify(tc.ratio, 10_000); got != tc.want {
			t.Fatalf("ratio %d: got %s want %s", tc.ratio, got, tc.want)
		}
	}
	if got := Classify(65_535, 65_500); got != NearThreshold {
		t.Fatalf("band must saturate at the top, got %s", got)
	}
}

func TestEvaluateStampsAndClearsEmergencyMode(t *testing.T) {
	testlog.Start(t)
	w := sim.NewWorld(150_000_000_000, 1_700_000_000)
	e := New(w.Oracle(), w.Clock())
	rec := ledger.Record{
		IsPaused:       true,
		EmergencyMode:  true,
		TotalMinted:    1_000_000_000,
		CurrentSOLTVL:  10_000_000_000,
		CurrentUSDCTVL: 500_000_000,
	}
	report, err := e.Evaluate(context.Background(), &rec, 10_000)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if report.Health != Healthy || report.RatioBps != 20_000 {
		t.Fatalf("unexpected report %+v", report)
	}
	if rec.EmergencyMode {
		t.Fatalf("healthy evaluation should clear emergency_mode")
	}
	if !rec.IsPaused {
		t.Fatalf("evaluation must never resume")
	}
	if rec.LastSolvencyCheck != 1_700_000_000 || rec.GlobalCollateralRatio != 20_000 {
		t.Fatalf("record not stamped: %+v", rec)
	}
}

func TestEvaluateUnhealthyKeepsEmergencyMode(t *testing.T) {
	testlog.Start(t)
	w := sim.NewWorld(100_000_000_000, 42)
	e := New(w.Oracle(), w.Clock())
	rec := ledger.Record{
		EmergencyMode: true,
		TotalMinted:   2_000_000_000,
		CurrentSOLTVL: 10_000_000_000,
	}
	report, err := e.Evaluate(context.Background(), &rec, 10_000)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if report.Health != Unhealthy || report.RatioBps != 5_000 {
		t.Fatalf("unexpected report %+v", report)
	}
	if !rec.EmergencyMode || rec.LastSolvencyCheck != 42 {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestEvaluateZeroSupplyHealthy(t *testing.T) {
	testlog.Start(t)
	w := sim.NewWorld(150_000_000_000, 7)
	rec := ledger.Record{}
	report, err := New(w.Oracle(), w.Clock()).Evaluate(context.Background(), &rec, 10_000)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if report.Defined || report.Health != Healthy || rec.GlobalCollateralRatio != UndefinedRatio {
		t.Fatalf("unexpected zero-supply report %+v", report)
	}
}

func TestEvaluateOracleFailure(t *testing.T) {
	testlog.Start(t)
	w := sim.NewWorld(0, 0)
	w.FailOn("oracle.price", 9)
	rec := ledger.Record{}
	_, err := New(w.Oracle(), w.Clock()).Evaluate(context.Background(), &rec, 10_000)
	var collab *protocol.CollaboratorError
	if !errors.As(err, &collab) || collab.Code != 9 {
		t.Fatalf("expected collaborator error code 9, got %v", err)
	}
}
