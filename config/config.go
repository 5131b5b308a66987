package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds every process-wide setting. It is loaded once in main and
// passed down explicitly; nothing in the codebase reads it through a global.
type Config struct {
	Env        string `yaml:"env" env:"APP_ENV" env-default:"development"`
	Debug      bool   `yaml:"debug" env:"APP_DEBUG"`
	DB         DB     `yaml:"db"`
	HTTPServer Server `yaml:"http_server"`
	Auth       Auth   `yaml:"auth"`
	CORS       CORS   `yaml:"cors"`
}

type DB struct {
	DSN string `yaml:"dsn" env:"DB_DSN" env-default:"file:dev.db?cache=shared&_pragma=foreign_keys(1)"`
}

type Server struct {
	Address      string        `yaml:"address" env:"HTTP_ADDRESS" env-default:":8000"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env-default:"60s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env-default:"10s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env-default:"10s"`
}

type Auth struct {
	SigningKey       string `yaml:"signing_key" env:"AUTH_SIGNING_KEY" env-default:"change-me-in-production"`
	AccessTTLMinutes int    `yaml:"access_ttl_minutes" env:"AUTH_ACCESS_TTL_MINUTES" env-default:"15"`
	RefreshTTLDays   int    `yaml:"refresh_ttl_days" env:"AUTH_REFRESH_TTL_DAYS" env-default:"7"`
}

type CORS struct {
	Origins string `yaml:"origins" env:"CORS_ORIGINS" env-default:"http://localhost:3000"`
}

// AccessTTL is the lifetime of issued access tokens.
func (a Auth) AccessTTL() time.Duration {
	return time.Duration(a.AccessTTLMinutes) * time.Minute
}

// RefreshTTL is the lifetime of issued refresh tokens and the max age of the
// refresh cookie.
func (a Auth) RefreshTTL() time.Duration {
	return time.Duration(a.RefreshTTLDays) * 24 * time.Hour
}

// MustLoad reads configuration or panics. A missing path falls back to
// environment variables only, so containerized deploys need no config file.
func MustLoad(path string) *Config {
	config, err := Load(path)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return config
}

func Load(path string) (*Config, error) {
	var config Config

	if path == "" {
		if err := cleanenv.ReadEnv(&config); err != nil {
			return nil, err
		}
		return &config, nil
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	if err := cleanenv.ReadConfig(path, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
