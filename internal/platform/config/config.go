// Package config loads process configuration from the environment. An
// optional .env file is read first; real environment variables win.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"flock/pkg/platform/dedupe"
)

const (
	envPrefix     = "FLOCK"
	devSigningKey = "dev-secret-key-change-in-production"
)

// Config holds every runtime setting. Variables are FLOCK_<FIELD> with
// words split by underscores, e.g. FLOCK_DATABASE_URL.
type Config struct {
	Environment     string        `split_words:"true" default:"development"`
	Addr            string        `default:":8080"`
	LogLevel        string        `split_words:"true" default:"info"`
	ShutdownTimeout time.Duration `split_words:"true" default:"15s"`

	JWTSigningKey string `envconfig:"JWT_SIGNING_KEY" default:"dev-secret-key-change-in-production"`
	JWTIssuer     string `envconfig:"JWT_ISSUER" default:"flock"`
	JWTAudience   string `envconfig:"JWT_AUDIENCE" default:"flock-api"`

	// DatabaseURL selects Postgres storage; empty keeps everything in memory.
	DatabaseURL       string        `split_words:"true"`
	DBMaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	DBMaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	DBConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"30m"`
	TxTimeout         time.Duration `split_words:"true" default:"5s"`

	Redis RedisConfig

	KafkaBrokers []string `split_words:"true"`
	KafkaTopic   string   `split_words:"true" default:"notifications.outbound"`

	NotifyUserLimit   int           `split_words:"true" default:"30"`
	NotifyChurchLimit int           `split_words:"true" default:"300"`
	NotifyWindow      time.Duration `split_words:"true" default:"1m"`

	TaskWorkers   int `split_words:"true" default:"4"`
	TaskQueueSize int `split_words:"true" default:"256"`

	WSSendBuffer     int      `envconfig:"WS_SEND_BUFFER" default:"64"`
	WSAllowedOrigins []string `envconfig:"WS_ALLOWED_ORIGINS"`
}

// RedisConfig configures the shared rate limit store (FLOCK_REDIS_*). An
// empty URL keeps quotas in process memory.
type RedisConfig struct {
	URL          string        `envconfig:"URL"`
	PoolSize     int           `envconfig:"POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"3s"`
}

// Load reads envFile (or ./.env when empty and present) and then the
// process environment.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	cfg.WSAllowedOrigins = dedupe.Fold(cfg.WSAllowedOrigins)
	cfg.KafkaBrokers = dedupe.Values(cfg.KafkaBrokers)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Environment == "production" && c.JWTSigningKey == devSigningKey {
		return errors.New("FLOCK_JWT_SIGNING_KEY must be set in production")
	}
	if c.NotifyUserLimit <= 0 || c.NotifyChurchLimit <= 0 || c.NotifyWindow <= 0 {
		return errors.New("notification limits must be positive")
	}
	return nil
}

// InMemory reports whether storage stays in process memory.
func (c *Config) InMemory() bool {
	return c.DatabaseURL == ""
}
