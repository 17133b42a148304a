package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/pelletier/go-toml/v2"
)

// NodeConfig is the reservectl node configuration.
type NodeConfig struct {
	Name        string    `toml:"name"`
	Addr        string    `toml:"addr"`
	CorsOrigins []string  `toml:"cors_origins"`
	Program     string    `toml:"program"`
	StorePath   string    `toml:"store_path"`
	Simulation  string    `toml:"simulation"`
	AdminToken  string    `toml:"admin_token"`
	TLSCert     string    `toml:"tls_cert"`
	TLSKey      string    `toml:"tls_key"`
	Log         LogConfig `toml:"log"`
}

// LogConfig overrides the runtime logging profile.
type LogConfig struct {
	Level     string `toml:"level"`
	Timestamp *bool  `toml:"timestamp"`
	NoColor   *bool  `toml:"no_color"`
}

const (
	DefaultName      = "reservectl"
	DefaultAddr      = ":9400"
	DefaultProgram   = "11111111111111111111111111111111"
	DefaultStorePath = "reservectl.db"
)

func LoadNodeConfig(path string) (NodeConfig, error) {
	var cfg NodeConfig
	if err := loadToml(path, &cfg); err != nil {
		return NodeConfig{}, err
	}
	cfg.applyDefaults()
	if err := ValidateNodeConfig(cfg); err != nil {
		return NodeConfig{}, err
	}
	return cfg, nil
}

// DefaultNodeConfig is the configuration used when no file is given.
func DefaultNodeConfig() NodeConfig {
	var cfg NodeConfig
	cfg.applyDefaults()
	return cfg
}

func (c *NodeConfig) applyDefaults() {
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.Program == "" {
		c.Program = DefaultProgram
	}
	if c.StorePath == "" {
		c.StorePath = DefaultStorePath
	}
}

// ProgramKey parses the controller program id.
func (c NodeConfig) ProgramKey() (solana.PublicKey, error) {
	key, err := solana.PublicKeyFromBase58(strings.TrimSpace(c.Program))
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("node config program %q: %w", c.Program, err)
	}
	return key, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateNodeConfig(cfg NodeConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("node config missing name")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("node config missing addr")
	}
	if strings.TrimSpace(cfg.StorePath) == "" {
		return fmt.Errorf("node config missing store_path")
	}
	if _, err := cfg.ProgramKey(); err != nil {
		return err
	}
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return fmt.Errorf("node config needs both tls_cert and tls_key")
	}
	if _, err := cfg.Log.Logging(); err != nil {
		return err
	}
	return nil
}
