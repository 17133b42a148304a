// Package solvency computes the global collateralization ratio and classifies
// it against the configured minimum.
package solvency

import (
	"context"
	"math"

	"github.com/danmuck/reservectl/internal/fixedmath"
	"github.com/danmuck/reservectl/internal/ledger"
	"github.com/danmuck/reservectl/internal/ports"
	"github.com/danmuck/reservectl/internal/protocol"
	"github.com/rs/zerolog/log"
)

const (
	// WarningBandBps is the hysteresis band above the minimum.
	WarningBandBps uint16 = 100
	// UndefinedRatio is stored when net supply is zero.
	UndefinedRatio uint16 = math.MaxUint16
)

// Health classifies a ratio against the minimum.
type Health uint8

const (
	Unhealthy Health = iota
	NearThreshold
	Healthy
)

func (h Health) String() string {
	switch h {
	case Unhealthy:
		return "unhealthy"
	case NearThreshold:
		return "near_threshold"
	case Healthy:
		return "healthy"
	default:
		return "unknown"
	}
}

// Report is the outcome of one evaluation.
type Report struct {
	PriceUSD     uint64 `json:"sol_price_usd"`
	SOLValueUSD  uint64 `json:"sol_value_usd"`
	TotalBacking uint64 `json:"total_backing"`
	NetSupply    uint64 `json:"net_supply"`
	RatioBps     uint16 `json:"ratio_bps"`
	Defined      bool   `json:"defined"`
	MinRatioBps  uint16 `json:"min_ratio_bps"`
	Health       Health `json:"health"`
	CheckedAt    int64  `json:"checked_at"`
}

// Ratio computes the collateralization ratio in basis points. A zero net supply
// returns UndefinedRatio with defined=false.
func Ratio(solTVL, solPriceUSD, usdcTVL, netSupply uint64) (ratio uint16, solValueUSD, backing uint64, defined bool) {
	solValueUSD = fixedmath.MulDiv(solTVL, solPriceUSD, fixedmath.PriceScale)
	backing = fixedmath.SatAdd(solValueUSD, usdcTVL)
	if netSupply == 0 {
		return UndefinedRatio, solValueUSD, backing, false
	}
	ratio = fixedmath.ToUint16(fixedmath.MulDiv(backing, fixedmath.BpsDenominator, netSupply))
	return ratio, solValueUSD, backing, true
}

// Classify places ratio into a health class for minimum minBps.
func Classify(ratio, minBps uint16) Health {
	if ratio < minBps {
		return Unhealthy
	}
	if ratio < fixedmath.SatAdd16(minBps, WarningBandBps) {
		return NearThreshold
	}
	return Healthy
}

// Engine evaluates solvency against live prices.
type Engine struct {
	oracle ports.PriceOracleAggregator
	clock  ports.Clock
}

func New(oracle ports.PriceOracleAggregator, clock ports.Clock) *Engine {
	return &Engine{oracle: oracle, clock: clock}
}

// Evaluate recomputes the ratio from rec, stores it with the check time and
// clears emergency_mode when healthy. It never touches is_paused and never
// resumes anything; acting on an unhealthy report is the caller's decision.
func (e *Engine) Evaluate(ctx context.Context, rec *ledger.Record, minBps uint16) (Report, error) {
	now, err := e.clock.Now(ctx)
	if err != nil {
		return Report{}, protocol.Collaborator(ports.NameClock, "now", err)
	}
	rec.LastSolvencyCheck = now

	price, err := e.oracle.SOLPriceUSD(ctx)
	if err != nil {
		return Report{}, protocol.Collaborator(ports.NameOracle, "sol_price_usd", err)
	}

	report := Report{
		PriceUSD:    price,
		NetSupply:   rec.NetSupply(),
		MinRatioBps: minBps,
		CheckedAt:   now,
	}
	report.RatioBps, report.SOLValueUSD, report.TotalBacking, report.Defined = Ratio(
		rec.CurrentSOLTVL, price, rec.CurrentUSDCTVL, report.NetSupply,
	)
	report.Health = Classify(report.RatioBps, minBps)
	if !report.Defined {
		report.Health = Healthy
	}

	rec.GlobalCollateralRatio = report.RatioBps
	if report.Health == Healthy && rec.EmergencyMode {
		rec.EmergencyMode = false
		log.Info().Msgf("solvency.Engine.Evaluate emergency_mode cleared ratio=%s", fixedmath.Percent(report.RatioBps))
	}

	log.Debug().Msgf(
		"solvency.Engine.Evaluate backing=%s supply=%s ratio=%s min=%s health=%s defined=%t",
		fixedmath.USD(report.TotalBacking),
		fixedmath.USD(report.NetSupply),
		fixedmath.Percent(report.RatioBps),
		fixedmath.Percent(minBps),
		report.Health,
		report.Defined,
	)
	return report, nil
}
