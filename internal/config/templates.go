package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "node":
		return nodeTemplate, nil
	case "sim", "simulation":
		return simTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const nodeTemplate = `name = "reservectl"
addr = ":9400"
cors_origins = ["http://localhost:3000"]
program = "11111111111111111111111111111111"
store_path = "reservectl.db"
simulation = "sim.toml"
# Bearer token for POST /invoke; empty leaves it open.
admin_token = ""
tls_cert = ""
tls_key = ""

[log]
level = "info"
timestamp = true
no_color = false
`

const simTemplate = `# Simulated collaborators for local runs.
sol_price_usd = 150000000000
clock_start = 1700000000
clock_tick = 1
# Use wall-clock time instead of the ticking simulated clock.
wall_clock = false

[escrow]
sol = 0
usdc = 0

[yield]
sol = 0
usdc = 0
`
