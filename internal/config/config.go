// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable named in its envconfig tag.
type Config struct {
	Env  string `envconfig:"APP_ENV" default:"dev"`   // application environment (dev/test/prod)
	Port string `envconfig:"APP_PORT" default:"8080"` // HTTP port to listen on

	// StoreDriver selects the seat store: "mysql" or "memory".
	StoreDriver string        `envconfig:"STORE_DRIVER" default:"mysql"`
	DBUser      string        `envconfig:"DB_USER"`
	DBPass      string        `envconfig:"DB_PASS"` // empty allowed
	DBHost      string        `envconfig:"DB_HOST" default:"127.0.0.1"`
	DBPort      string        `envconfig:"DB_PORT" default:"3306"`
	DBName      string        `envconfig:"DB_NAME"`
	DBTxTimeout time.Duration `envconfig:"DB_TX_TIMEOUT" default:"5s"` // bound on every transaction
	DBMigrate   bool          `envconfig:"DB_MIGRATE" default:"true"`  // apply schema.sql at startup

	JWTSecret string `envconfig:"JWT_SECRET" required:"true"` // secret used to verify access tokens

	HoldTTL             time.Duration `envconfig:"HOLD_TTL" default:"120s"`            // default hold lifetime
	HoldMaxTTL          time.Duration `envconfig:"HOLD_MAX_TTL" default:"15m"`         // cap on caller supplied TTLs
	ReaperSweepInterval time.Duration `envconfig:"REAPER_SWEEP_INTERVAL" default:"0s"` // 0 disables the sweeper

	RabbitURL       string `envconfig:"RABBITMQ_URL"` // empty disables event publishing
	PublishBuffer   int    `envconfig:"PUBLISH_BUFFER" default:"256"`
	ConsumerEnabled bool   `envconfig:"QUEUE_CONSUMER_ENABLED" default:"false"`
	ConsumerLogDir  string `envconfig:"QUEUE_CONSUMER_LOG_DIR" default:"logs"`
}

// Load reads the configuration from the environment and checks that the
// selected store has what it needs.
func Load() (Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return Config{}, err
	}
	switch c.StoreDriver {
	case "memory":
	case "mysql":
		if c.DBUser == "" || c.DBName == "" {
			return Config{}, fmt.Errorf("missing required env var: DB_USER and DB_NAME are required for STORE_DRIVER=mysql")
		}
	default:
		return Config{}, fmt.Errorf("invalid STORE_DRIVER %q", c.StoreDriver)
	}
	if c.HoldTTL <= 0 {
		return Config{}, fmt.Errorf("HOLD_TTL must be positive, got %s", c.HoldTTL)
	}
	return c, nil
}

// Production reports whether the app runs in a production environment.
func (c Config) Production() bool { return c.Env == "prod" || c.Env == "production" }
