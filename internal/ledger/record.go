package ledger

import "github.com/danmuck/reservectl/internal/fixedmath"

// Record is the protocol-wide ledger. Field order is the wire order.
type Record struct {
	IsPaused               bool   `json:"is_paused"`
	EmergencyMode          bool   `json:"emergency_mode"`
	EmergencyOverrideCount uint64 `json:"emergency_override_count"`
	LastEmergencyAction    int64  `json:"last_emergency_action"`
	TotalMinted            uint64 `json:"total_usdtx_minted"`
	TotalBurned            uint64 `json:"total_usdtx_burned"`
	CurrentSOLTVL          uint64 `json:"current_sol_tvl"`
	CurrentUSDCTVL         uint64 `json:"current_usdc_tvl"`
	GlobalCollateralRatio  uint16 `json:"global_collateral_ratio"`
	LastSolvencyCheck      int64  `json:"last_solvency_check"`
	TotalYieldHarvested    uint64 `json:"total_yield_harvested"`
}

// NetSupply is minted minus burned, never negative.
func (r *Record) NetSupply() uint64 {
	return fixedmath.SatSub(r.TotalMinted, r.TotalBurned)
}

// Asset identifies a collateral class.
type Asset uint8

const (
	AssetSOL  Asset = 1
	AssetUSDC Asset = 2
)

func (a Asset) String() string {
	switch a {
	case AssetSOL:
		return "sol"
	case AssetUSDC:
		return "usdc"
	default:
		return "unknown"
	}
}

// Valid reports whether a names a supported collateral class.
func (a Asset) Valid() bool {
	return a == AssetSOL || a == AssetUSDC
}

// TVL returns the tracked collateral for asset.
func (r *Record) TVL(asset Asset) uint64 {
	if asset == AssetSOL {
		return r.CurrentSOLTVL
	}
	return r.CurrentUSDCTVL
}

// AddTVL credits collateral for asset with saturation.
func (r *Record) AddTVL(asset Asset, amount uint64) {
	switch asset {
	case AssetSOL:
		r.CurrentSOLTVL = fixedmath.SatAdd(r.CurrentSOLTVL, amount)
	case AssetUSDC:
		r.CurrentUSDCTVL = fixedmath.SatAdd(r.CurrentUSDCTVL, amount)
	}
}

// SubTVL debits collateral for asset, clamping at zero.
func (r *Record) SubTVL(asset Asset, amount uint64) {
	switch asset {
	case AssetSOL:
		r.CurrentSOLTVL = fixedmath.SatSub(r.CurrentSOLTVL, amount)
	case AssetUSDC:
		r.CurrentUSDCTVL = fixedmath.SatSub(r.CurrentUSDCTVL, amount)
	}
}
