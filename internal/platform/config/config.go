package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix namespaces every variable this service reads.
const EnvPrefix = "BARYON_"

// Event stream providers.
const (
	EventsNone  = "none"
	EventsKafka = "kafka"
	EventsNATS  = "nats"
)

// Config is the full process configuration.
type Config struct {
	Server   Server
	Redis    RedisConfig
	Auth     AuthConfig
	Postgres PostgresConfig
	Events   EventsConfig
	Rewards  RewardsConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
}

// RedisConfig configures the Redis instance holding verification keys and
// subject mappings.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL,notEmpty"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// AuthConfig holds the Redis key spaces written by the token issuer.
type AuthConfig struct {
	KeyPrefix     string        `env:"KEY_PREFIX" envDefault:"baryonic:public_keys:"`
	SubjectPrefix string        `env:"SUBJECT_PREFIX" envDefault:"baryonic:jwt:"`
	Leeway        time.Duration `env:"TOKEN_LEEWAY" envDefault:"60s"`
}

// PostgresConfig configures the ledger database.
type PostgresConfig struct {
	DSN               string `env:"POSTGRES_DSN,notEmpty"`
	MaxConns          int32  `env:"POSTGRES_MAX_CONNS" envDefault:"10"`
	SynchronousCommit string `env:"SYNCHRONOUS_COMMIT" envDefault:"remote_apply"`
	Migrate           bool   `env:"POSTGRES_MIGRATE" envDefault:"true"`
}

// EventsConfig selects where committed player events are published.
type EventsConfig struct {
	Provider     string   `env:"EVENTS_PROVIDER" envDefault:"none"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"game.player-events"`
	NATSURL      string   `env:"NATS_URL"`
	NATSSubject  string   `env:"NATS_SUBJECT" envDefault:"game.player.events"`

	PublishTimeout time.Duration `env:"EVENTS_PUBLISH_TIMEOUT" envDefault:"2s"`
}

// RewardsConfig holds the amounts moved by the built-in commands.
type RewardsConfig struct {
	DailyCoins int64 `env:"DAILY_COINS" envDefault:"150"`
	DailyXP    int64 `env:"DAILY_XP" envDefault:"0"`
	SpendCoins int64 `env:"SPEND_COINS" envDefault:"150"`
}

var synchronousCommitLevels = map[string]bool{
	"off": true, "local": true, "on": true, "remote_write": true, "remote_apply": true,
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (c *Config) Validate() error {
	var errs []error
	if _, err := ParseLogLevel(c.Server.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if !synchronousCommitLevels[c.Postgres.SynchronousCommit] {
		errs = append(errs, fmt.Errorf("invalid %sSYNCHRONOUS_COMMIT %q", EnvPrefix, c.Postgres.SynchronousCommit))
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%sREQUEST_TIMEOUT must be positive", EnvPrefix))
	}
	if c.Events.PublishTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%sEVENTS_PUBLISH_TIMEOUT must be positive", EnvPrefix))
	}
	if c.Postgres.MaxConns < 1 {
		errs = append(errs, fmt.Errorf("%sPOSTGRES_MAX_CONNS must be positive", EnvPrefix))
	}
	if c.Rewards.DailyCoins < 0 || c.Rewards.DailyXP < 0 || c.Rewards.SpendCoins < 0 {
		errs = append(errs, errors.New("reward amounts must not be negative"))
	}
	switch c.Events.Provider {
	case EventsNone:
	case EventsKafka:
		if len(c.Events.KafkaBrokers) == 0 {
			errs = append(errs, fmt.Errorf("%sKAFKA_BROKERS is required for the kafka provider", EnvPrefix))
		}
	case EventsNATS:
		if c.Events.NATSURL == "" {
			errs = append(errs, fmt.Errorf("%sNATS_URL is required for the nats provider", EnvPrefix))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid events provider %q, must be none, kafka or nats", c.Events.Provider))
	}
	return errors.Join(errs...)
}

// ParseLogLevel maps a level name onto slog.
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}
