package main

import (
	"context"
	"fmt"

	"github.com/danmuck/reservectl/internal/config"
	"github.com/danmuck/reservectl/internal/controller"
	"github.com/danmuck/reservectl/internal/host"
	"github.com/danmuck/reservectl/internal/ledger"
	"github.com/danmuck/reservectl/internal/logging"
	"github.com/danmuck/reservectl/internal/ports"
	"github.com/danmuck/reservectl/internal/ports/sim"
	"github.com/danmuck/reservectl/internal/store"
	"github.com/rs/zerolog/log"
)

// node is one assembled controller: config, store, simulated world and host.
type node struct {
	cfg   config.NodeConfig
	store *store.Store
	world *sim.World
	ctrl  *controller.Controller
	env   *host.Environment
}

func loadNodeConfig(path string) (config.NodeConfig, error) {
	if path == "" {
		return config.DefaultNodeConfig(), nil
	}
	return config.LoadNodeConfig(path)
}

func openNode(ctx context.Context, path string) (*node, error) {
	cfg, err := loadNodeConfig(path)
	if err != nil {
		return nil, err
	}
	logCfg, err := cfg.Log.Logging()
	if err != nil {
		return nil, err
	}
	logging.Apply(logCfg)

	program, err := cfg.ProgramKey()
	if err != nil {
		return nil, err
	}
	simCfg, err := loadSimConfig(cfg.Simulation)
	if err != nil {
		return nil, err
	}
	world := sim.NewWorld(simCfg.PriceUSD, simCfg.ClockStart)
	world.SetTick(simCfg.ClockTick)
	world.Fund(ledger.AssetSOL, simCfg.Escrow.SOL)
	world.Fund(ledger.AssetUSDC, simCfg.Escrow.USDC)
	world.AccrueYield(ledger.AssetSOL, simCfg.Yield.SOL)
	world.AccrueYield(ledger.AssetUSDC, simCfg.Yield.USDC)

	var clock ports.Clock = world.Clock()
	if simCfg.WallClock {
		clock = ports.SystemClock{}
	}
	ctrl, err := controller.New(controller.Deps{
		Program:    program,
		Keys:       sim.Keys(),
		Custody:    world.Custody(),
		Strategies: world.Strategies(),
		Issuer:     world.Issuer(),
		Oracle:     world.Oracle(),
		Clock:      clock,
	})
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return nil, err
	}
	state, found, err := st.Load(ctx)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("load controller state: %w", err)
	}
	log.Info().Msgf("reservectl.openNode store=%s restored=%t state=%s", cfg.StorePath, found, ctrl.StateKey())

	env := host.New(ctrl, state, host.Options{Journal: world, Persister: st})
	return &node{cfg: cfg, store: st, world: world, ctrl: ctrl, env: env}, nil
}

func (n *node) Close() error {
	return n.store.Close()
}
