package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger returns the global logger tagged with app. Call after logging is configured.
func Logger(app string) zerolog.Logger {
	return log.Logger.With().Str("app", app).Logger()
}
