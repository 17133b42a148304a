package config

import (
	"fmt"
	"strings"

	"github.com/danmuck/reservectl/internal/logging"
)

// Logging resolves the runtime logger config. Environment overrides win over
// the file.
func (c LogConfig) Logging() (logging.Config, error) {
	cfg := logging.RuntimeDefaults()
	if strings.TrimSpace(c.Level) != "" {
		lvl, ok := logging.ParseLevel(c.Level)
		if !ok {
			return logging.Config{}, fmt.Errorf("log level %q not recognized", c.Level)
		}
		cfg.Level = lvl
	}
	if c.Timestamp != nil {
		cfg.Timestamp = *c.Timestamp
	}
	if c.NoColor != nil {
		cfg.NoColor = *c.NoColor
	}
	return logging.WithEnv(cfg), nil
}
