// Package config reads runtime settings from the environment (and an optional
// .env file) into a typed Config.
package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const defaultWorkerCount = 2

// ErrInvalidConfig wraps every configuration failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents runtime configuration shared by the server, worker and CLI.
type Config struct {
	Address     string `env:"ADDRESS" envDefault:":8080"`
	ContentHost string `env:"CONTENT_HOST" envDefault:"chemistryguru.com.sg"`

	// SigningSecret is only needed where no caller supplies one, i.e. the
	// worker and the CLI fallback.
	SigningSecret string `env:"SIGNING_SECRET"`

	LogLevel  int    `env:"LOG_LEVEL" envDefault:"0"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	DatabaseURL string `env:"DATABASE_URL"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	S3Endpoint     string `env:"S3_ENDPOINT"`
	S3AccessKey    string `env:"S3_ACCESS_KEY"`
	S3SecretKey    string `env:"S3_SECRET_KEY"`
	S3UseSSL       bool   `env:"S3_USE_SSL" envDefault:"false"`
	S3Region       string `env:"S3_REGION" envDefault:"us-east-1"`
	ManifestBucket string `env:"MANIFEST_BUCKET" envDefault:"signed-urls"`

	Workers int `env:"WORKERS" envDefault:"2"`
}

// Prefix is prepended to every variable name.
const Prefix = "IMAGESIGNER_"

// Load reads configuration from the process environment, loading .env first
// when present.
func Load() (*Config, error) {
	// A missing .env file is fine.
	_ = godotenv.Load()
	return parse(env.Options{Prefix: Prefix})
}

// LoadFrom parses configuration from an explicit environment map.
func LoadFrom(environ map[string]string) (*Config, error) {
	return parse(env.Options{Prefix: Prefix, Environment: environ})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkerCount
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return nil, fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, cfg.LogFormat)
	}
	return cfg, nil
}

// QueueEnabled reports whether a Redis address for asynchronous jobs is set.
func (c *Config) QueueEnabled() bool { return c.RedisAddr != "" }

// DatabaseEnabled reports whether issuances are persisted in PostgreSQL.
func (c *Config) DatabaseEnabled() bool { return c.DatabaseURL != "" }

// StorageEnabled reports whether manifests can be published to object storage.
func (c *Config) StorageEnabled() bool { return c.S3Endpoint != "" }
