package ledger

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidParameter = errors.New("ledger: invalid parameter")

// Parameter selectors accepted by the update-parameters instruction.
const (
	ParamMinCollateralRatio uint8 = 1
	ParamRebalanceFrequency uint8 = 2
	ParamYieldFrequency     uint8 = 3
	ParamEmergencyThreshold uint8 = 4
)

// Params are the tunable protocol parameters.
type Params struct {
	MinCollateralRatioBps     uint16 `json:"min_collateral_ratio_bps"`
	RebalanceFrequencySecs    uint64 `json:"rebalance_frequency_secs"`
	YieldDistributionFreqSecs uint64 `json:"yield_distribution_frequency_secs"`
	EmergencyThresholdBps     uint16 `json:"emergency_threshold_bps"`
}

func DefaultParams() Params {
	return Params{
		MinCollateralRatioBps:     10_000,
		RebalanceFrequencySecs:    86_400,
		YieldDistributionFreqSecs: 604_800,
		EmergencyThresholdBps:     9_500,
	}
}

// ParamName labels a selector for logs.
func ParamName(selector uint8) string {
	switch selector {
	case ParamMinCollateralRatio:
		return "min_collateral_ratio"
	case ParamRebalanceFrequency:
		return "rebalance_frequency"
	case ParamYieldFrequency:
		return "yield_distribution_frequency"
	case ParamEmergencyThreshold:
		return "emergency_threshold"
	default:
		return "unknown"
	}
}

// Apply sets the parameter named by selector.
func (p *Params) Apply(selector uint8, value uint64) error {
	switch selector {
	case ParamMinCollateralRatio, ParamEmergencyThreshold:
		if value > math.MaxUint16 {
			return fmt.Errorf("%w: %s %d exceeds %d bps", ErrInvalidParameter, ParamName(selector), value, math.MaxUint16)
		}
		if selector == ParamMinCollateralRatio {
			p.MinCollateralRatioBps = uint16(value)
		} else {
			p.EmergencyThresholdBps = uint16(value)
		}
	case ParamRebalanceFrequency, ParamYieldFrequency:
		if value == 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidParameter, ParamName(selector))
		}
		if selector == ParamRebalanceFrequency {
			p.RebalanceFrequencySecs = value
		} else {
			p.YieldDistributionFreqSecs = value
		}
	default:
		return fmt.Errorf("%w: unknown selector %d", ErrInvalidParameter, selector)
	}
	return nil
}
