package protocol

import "fmt"

// Opcode is the first byte of every instruction.
type Opcode uint8

const (
	OpInitialize           Opcode = 0
	OpUpdateParameters     Opcode = 1
	OpEmergencyPause       Opcode = 2
	OpFreezeForYield       Opcode = 10
	OpUnfreezeFromYield    Opcode = 11
	OpSyncVaultState       Opcode = 12
	OpValidateSolvency     Opcode = 13
	OpSOLMintWorkflow      Opcode = 14
	OpDeploySOLStrategy    Opcode = 15
	OpCollectSOLYield      Opcode = 16
	OpUSDCMintWorkflow     Opcode = 17
	OpDeployUSDCStrategy   Opcode = 18
	OpCollectUSDCYield     Opcode = 19
	OpHarvestYield         Opcode = 20
	OpDistributeYield      Opcode = 21
	OpRebalanceStrategies  Opcode = 22
	OpOptimizeAllocation   Opcode = 23
	OpAggregateOracle      Opcode = 30
	OpValidateDeviation    Opcode = 31
	OpUpdateRatios         Opcode = 32
	OpUpdateDynamicFees    Opcode = 33
	OpInitOracle           Opcode = 34
	OpUpdateFeedA          Opcode = 35
	OpUpdateFeedB          Opcode = 36
	OpUpdateFeedC          Opcode = 37
	OpReadAggregatedPrice  Opcode = 38
	OpMint                 Opcode = 39
	OpRedeem               Opcode = 40
	OpRegisterMerchant     Opcode = 41
	OpMerchantRedemption   Opcode = 42
	OpMonitorHealth        Opcode = 45
	OpEmergencyProcedures  Opcode = 46
	OpLiquidationTrigger   Opcode = 47
	OpWhitelistStrategy    Opcode = 50
	OpUpdateWeights        Opcode = 51
	OpPauseStrategy        Opcode = 52
	OpMasterPauseAll       Opcode = 60
	OpMasterRecallAssets   Opcode = 61
	OpMasterOverrideConfig Opcode = 62
	OpMasterUpdateFees     Opcode = 63
	OpMasterCircuitBreaker Opcode = 64
	OpResumeOperations     Opcode = 65
	OpBatch                Opcode = 255
)

var opcodeNames = map[Opcode]string{
	OpInitialize:           "initialize",
	OpUpdateParameters:     "update_parameters",
	OpEmergencyPause:       "emergency_pause",
	OpFreezeForYield:       "freeze_for_yield",
	OpUnfreezeFromYield:    "unfreeze_from_yield",
	OpSyncVaultState:       "sync_vault_state",
	OpValidateSolvency:     "validate_solvency",
	OpSOLMintWorkflow:      "sol_mint_workflow",
	OpDeploySOLStrategy:    "deploy_sol_strategy",
	OpCollectSOLYield:      "collect_sol_yield",
	OpUSDCMintWorkflow:     "usdc_mint_workflow",
	OpDeployUSDCStrategy:   "deploy_usdc_strategy",
	OpCollectUSDCYield:     "collect_usdc_yield",
	OpHarvestYield:         "harvest_yield",
	OpDistributeYield:      "distribute_yield",
	OpRebalanceStrategies:  "rebalance_strategies",
	OpOptimizeAllocation:   "optimize_allocation",
	OpAggregateOracle:      "aggregate_oracle",
	OpValidateDeviation:    "validate_deviation",
	OpUpdateRatios:         "update_ratios",
	OpUpdateDynamicFees:    "update_dynamic_fees",
	OpInitOracle:           "init_oracle",
	OpUpdateFeedA:          "update_feed_a",
	OpUpdateFeedB:          "update_feed_b",
	OpUpdateFeedC:          "update_feed_c",
	OpReadAggregatedPrice:  "read_aggregated_price",
	OpMint:                 "mint",
	OpRedeem:               "redeem",
	OpRegisterMerchant:     "register_merchant",
	OpMerchantRedemption:   "merchant_redemption",
	OpMonitorHealth:        "monitor_health",
	OpEmergencyProcedures:  "emergency_procedures",
	OpLiquidationTrigger:   "liquidation_trigger",
	OpWhitelistStrategy:    "whitelist_strategy",
	OpUpdateWeights:        "update_weights",
	OpPauseStrategy:        "pause_strategy",
	OpMasterPauseAll:       "master_pause_all",
	OpMasterRecallAssets:   "master_recall_assets",
	OpMasterOverrideConfig: "master_override_config",
	OpMasterUpdateFees:     "master_update_fees",
	OpMasterCircuitBreaker: "master_circuit_breaker",
	OpResumeOperations:     "resume_operations",
	OpBatch:                "batch",
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("opcode(%d)", uint8(o))
}

// Known reports whether o appears in the opcode table at all.
func (o Opcode) Known() bool {
	_, ok := opcodeNames[o]
	return ok
}

// BatchAllowed reports whether o may appear as a batch sub-operation.
// Nested batches are never allowed.
func BatchAllowed(o Opcode) bool {
	switch o {
	case OpInitialize, OpUpdateParameters, OpFreezeForYield, OpUnfreezeFromYield,
		OpSOLMintWorkflow, OpUSDCMintWorkflow, OpHarvestYield, OpDistributeYield,
		OpAggregateOracle, OpUpdateDynamicFees, OpMint, OpRedeem, OpMonitorHealth,
		OpWhitelistStrategy:
		return true
	default:
		return false
	}
}
