/*
config.go - Runtime configuration

PURPOSE:
  Environment-driven configuration for the server binary. Flags in
  cmd/server/main.go override the environment for local development.

ENVIRONMENT:
  ADDR              Listen address (default :8080)
  DB_PATH           SQLite database path; ":memory:" for in-memory
  READ_TIMEOUT      HTTP read timeout
  WRITE_TIMEOUT     HTTP write timeout
  REAPER_ENABLED    Whether the pending-transaction reaper runs
  REAPER_INTERVAL   How often the reaper sweeps
  PENDING_TTL       Age after which a pending transaction is failed

SEE ALSO:
  - cmd/server/main.go: Loading and flag overrides
  - scheduler.go: Reaper configuration consumers
*/
package api

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the server.
type Config struct {
	Addr         string        `envconfig:"ADDR" default:":8080"`
	DBPath       string        `envconfig:"DB_PATH" default:"payments.db"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"15s"`

	ReaperEnabled  bool          `envconfig:"REAPER_ENABLED" default:"true"`
	ReaperInterval time.Duration `envconfig:"REAPER_INTERVAL" default:"1h"`
	PendingTTL     time.Duration `envconfig:"PENDING_TTL" default:"24h"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
