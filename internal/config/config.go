package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store drivers
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Event publisher drivers
const (
	EventsNoop     = "noop"
	EventsRabbitMQ = "rabbitmq"
)

type HTTPConfig struct {
	Address string `env:"HTTP_ADDRESS" envDefault:":8080"`
}

type StoreConfig struct {
	Driver string `env:"STORE_DRIVER" envDefault:"memory"`
	DSN    string `env:"DATABASE_DSN"`

	// queries slower than this are logged at warn level
	SlowQuery time.Duration `env:"DB_SLOW_QUERY_THRESHOLD" envDefault:"200ms"`
}

type BiddingConfig struct {
	LockTimeout   time.Duration `env:"BID_LOCK_TIMEOUT" envDefault:"2s"`
	RetryAttempts int           `env:"BID_RETRY_ATTEMPTS" envDefault:"3"`
	RetryBackoff  time.Duration `env:"BID_RETRY_BACKOFF" envDefault:"25ms"`
}

type WalletConfig struct {
	LockTimeout time.Duration `env:"WALLET_LOCK_TIMEOUT" envDefault:"2s"`
}

type SweepConfig struct {
	Enabled  bool          `env:"SWEEP_ENABLED" envDefault:"true"`
	Interval time.Duration `env:"SWEEP_INTERVAL" envDefault:"5s"`
	Workers  int           `env:"SWEEP_WORKERS" envDefault:"4"`
}

type EventsConfig struct {
	Driver   string `env:"EVENTS_DRIVER" envDefault:"noop"`
	URL      string `env:"RABBITMQ_URL"`
	Exchange string `env:"RABBITMQ_EXCHANGE" envDefault:"auctions"`
}

// Config is the process configuration, read from the environment
type Config struct {
	HTTP      HTTPConfig
	Store     StoreConfig
	Bidding   BiddingConfig
	Wallet    WalletConfig
	Sweep     SweepConfig
	Events    EventsConfig
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads the optional dotenv files, then the environment. Variables
// already set in the environment win over the files.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed load environment from file %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks combinations the env tags cannot express
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("DATABASE_DSN is required for the postgres store"))
		}
		if c.Store.SlowQuery <= 0 {
			errs = append(errs, errors.New("DB_SLOW_QUERY_THRESHOLD must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver))
	}

	switch c.Events.Driver {
	case EventsNoop:
	case EventsRabbitMQ:
		if c.Events.URL == "" {
			errs = append(errs, errors.New("RABBITMQ_URL is required for the rabbitmq publisher"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown EVENTS_DRIVER %q", c.Events.Driver))
	}

	if c.Bidding.LockTimeout <= 0 || c.Wallet.LockTimeout <= 0 {
		errs = append(errs, errors.New("lock timeouts must be positive"))
	}
	if c.Bidding.RetryAttempts < 1 {
		errs = append(errs, errors.New("BID_RETRY_ATTEMPTS must be at least 1"))
	}
	if c.Bidding.RetryBackoff < 0 {
		errs = append(errs, errors.New("BID_RETRY_BACKOFF must not be negative"))
	}
	if c.Sweep.Enabled && (c.Sweep.Interval <= 0 || c.Sweep.Workers < 1) {
		errs = append(errs, errors.New("sweeper needs a positive interval and at least one worker"))
	}

	return errors.Join(errs...)
}
