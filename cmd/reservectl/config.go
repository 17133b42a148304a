package main

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/reservectl/internal/ports"
)

// simConfig seeds the in-process collaborators used by serve, invoke and replay.
type simConfig struct {
	PriceUSD   uint64
	ClockStart int64
	ClockTick  int64
	WallClock  bool
	Escrow     ports.Balances
	Yield      ports.Balances
}

type amountsFile struct {
	SOL  uint64 `toml:"sol"`
	USDC uint64 `toml:"usdc"`
}

type simFile struct {
	SOLPriceUSD uint64      `toml:"sol_price_usd"`
	ClockStart  int64       `toml:"clock_start"`
	ClockTick   int64       `toml:"clock_tick"`
	WallClock   bool        `toml:"wall_clock"`
	Escrow      amountsFile `toml:"escrow"`
	Yield       amountsFile `toml:"yield"`
}

const defaultSOLPriceUSD = 150_000_000_000

func defaultSimConfig() simConfig {
	return simConfig{
		PriceUSD:   defaultSOLPriceUSD,
		ClockStart: time.Now().Unix(),
		ClockTick:  1,
	}
}

func loadSimConfig(path string) (simConfig, error) {
	cfg := defaultSimConfig()
	if path == "" {
		return cfg, nil
	}

	var raw simFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return simConfig{}, fmt.Errorf("load simulation config: %w", err)
	}

	if meta.IsDefined("sol_price_usd") {
		if raw.SOLPriceUSD == 0 {
			return simConfig{}, fmt.Errorf("sol_price_usd must be positive")
		}
		cfg.PriceUSD = raw.SOLPriceUSD
	}
	if meta.IsDefined("clock_start") {
		cfg.ClockStart = raw.ClockStart
	}
	if meta.IsDefined("clock_tick") {
		if raw.ClockTick < 0 {
			return simConfig{}, fmt.Errorf("clock_tick must not be negative")
		}
		cfg.ClockTick = raw.ClockTick
	}
	if meta.IsDefined("wall_clock") {
		cfg.WallClock = raw.WallClock
	}
	if meta.IsDefined("escrow", "sol") {
		cfg.Escrow.SOL = raw.Escrow.SOL
	}
	if meta.IsDefined("escrow", "usdc") {
		cfg.Escrow.USDC = raw.Escrow.USDC
	}
	if meta.IsDefined("yield", "sol") {
		cfg.Yield.SOL = raw.Yield.SOL
	}
	if meta.IsDefined("yield", "usdc") {
		cfg.Yield.USDC = raw.Yield.USDC
	}
	return cfg, nil
}
