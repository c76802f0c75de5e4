package observability

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

const serviceName = "collateralvault"

// NewLogger creates a structured JSON logger scoped to one component of
// the vault service. Level comes from VAULT_LOG_LEVEL (default info);
// VAULT_LOG_PRETTY=true switches to console output for local runs.
func NewLogger(component string) zerolog.Logger {
	level := parseLogLevel(os.Getenv("VAULT_LOG_LEVEL"))

	var out = zerolog.New(os.Stdout)
	if os.Getenv("VAULT_LOG_PRETTY") == "true" {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	return out.
		Level(level).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("component", component).
		Logger()
}

func parseLogLevel(s string) zerolog.Level {
	switch s {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}
