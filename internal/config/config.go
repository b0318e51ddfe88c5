package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Port     int    `env:"PORT"      envDefault:"8080"`
	Env      string `env:"ENV"       envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	StreamURL   string `env:"STREAM_URL"   envDefault:"ws://localhost:8000/ws"`
	APIBaseURL  string `env:"API_BASE_URL" envDefault:"http://localhost:8000"`
	DatabaseURL string `env:"DATABASE_URL"`

	HTTPTimeout        time.Duration `env:"HTTP_TIMEOUT"         envDefault:"10s"`
	StreamWriteTimeout time.Duration `env:"STREAM_WRITE_TIMEOUT" envDefault:"3s"`
	StreamDialTimeout  time.Duration `env:"STREAM_DIAL_TIMEOUT"  envDefault:"5s"`
	ComposingTimeout   time.Duration `env:"COMPOSING_TIMEOUT"    envDefault:"30s"`
	BreakerTimeout     time.Duration `env:"BREAKER_TIMEOUT"      envDefault:"30s"`

	FetchConcurrency int `env:"FETCH_CONCURRENCY" envDefault:"4"`
	SnapshotBuffer   int `env:"SNAPSHOT_BUFFER"   envDefault:"8"`
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Load reads an optional .env file, then the process environment.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		// godotenv never overrides variables that are already set.
		_ = godotenv.Load(f)
	}
	return Parse()
}

func Parse() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: PORT %d out of range", ErrInvalid, c.Port)
	}
	if err := checkScheme("STREAM_URL", c.StreamURL, "ws", "wss"); err != nil {
		return err
	}
	if err := checkScheme("API_BASE_URL", c.APIBaseURL, "http", "https"); err != nil {
		return err
	}
	if c.ComposingTimeout < 0 {
		return fmt.Errorf("%w: COMPOSING_TIMEOUT must not be negative", ErrInvalid)
	}
	if c.FetchConcurrency <= 0 {
		return fmt.Errorf("%w: FETCH_CONCURRENCY must be positive", ErrInvalid)
	}
	return nil
}

func checkScheme(name, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: %s %q is not a URL", ErrInvalid, name, raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%w: %s must use %v, got %q", ErrInvalid, name, schemes, u.Scheme)
}
