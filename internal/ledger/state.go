package ledger

import "github.com/gagliardetto/solana-go"

// State is the controller account: identity, parameters and the ledger record.
type State struct {
	Initialized bool             `json:"initialized"`
	Authority   solana.PublicKey `json:"authority"`
	Registry    ProgramRegistry  `json:"registry"`
	Params      Params           `json:"params"`
	Record      Record           `json:"record"`
}

// EmergencyType is the code carried by a pause activation.
type EmergencyType uint32

const (
	EmergencyLowCollateralization EmergencyType = 1
	EmergencyOracleDeviation      EmergencyType = 2
	EmergencyStrategyFailure      EmergencyType = 3
	EmergencyLiquidationThreshold EmergencyType = 4
	EmergencyManualOverride       EmergencyType = 5
)

func (t EmergencyType) String() string {
	switch t {
	case EmergencyLowCollateralization:
		return "low collateralization detected"
	case EmergencyOracleDeviation:
		return "oracle price deviation"
	case EmergencyStrategyFailure:
		return "strategy failure cascade"
	case EmergencyLiquidationThreshold:
		return "liquidation threshold breached"
	case EmergencyManualOverride:
		return "manual override"
	default:
		return "unknown type"
	}
}

// Known reports whether t is one of the five named types.
func (t EmergencyType) Known() bool {
	return t >= EmergencyLowCollateralization && t <= EmergencyManualOverride
}

// Event triggers.
const (
	TriggerSolvency    = "solvency"
	TriggerInstruction = "instruction"
	TriggerAuthority   = "authority"
)

// EmergencyEvent records one pause activation.
type EmergencyEvent struct {
	Type          EmergencyType `json:"type"`
	Timestamp     int64         `json:"timestamp"`
	OverrideCount uint64        `json:"override_count"`
	Trigger       string        `json:"trigger"`
}
