// Package config loads the service configuration from an optional YAML file
// overlaid with environment variables.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/redis/go-redis/v9"
)

// Config is the root configuration of publications-api and storage-init.
type Config struct {
	Env    string       `yaml:"env" env:"ENV" env-default:"local"`
	Debug  bool         `yaml:"debug" env:"DEBUG" env-default:"false"`
	HTTP   HTTPConfig   `yaml:"http"`
	DB     DBConfig     `yaml:"db"`
	Redis  RedisConfig  `yaml:"redis"`
	Auth   AuthConfig   `yaml:"auth"`
	Board  BoardConfig  `yaml:"board"`
	Azure  AzureConfig  `yaml:"azure"`
	Events EventsConfig `yaml:"events"`
}

type HTTPConfig struct {
	Host            string        `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port            string        `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	AllowOrigins    []string      `yaml:"allow_origins" env:"CORS_ALLOW_ORIGINS" env-default:"*"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// Addr returns host:port.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, h.Port)
}

type DBConfig struct {
	URL string `yaml:"url" env:"DATABASE_URL" env-default:"sqlite:publications.db"`
}

// RedisConfig enables the board cache and the shared revocation list. Both
// are skipped when ConnectionString is empty.
type RedisConfig struct {
	ConnectionString string        `yaml:"connection_string" env:"REDIS_CONNECTION_STRING"`
	CacheTTL         time.Duration `yaml:"cache_ttl" env:"REDIS_CACHE_TTL" env-default:"30s"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	JWKSURL   string        `yaml:"jwks_url" env:"AUTH_JWKS_URL"`
	Issuer    string        `yaml:"issuer" env:"AUTH_ISSUER" env-default:"publications-api"`
	Audience  string        `yaml:"audience" env:"AUTH_AUDIENCE"`
	TokenTTL  time.Duration `yaml:"token_ttl" env:"AUTH_TOKEN_TTL" env-default:"1h"`
}

type BoardConfig struct {
	PageSize    int `yaml:"page_size" env:"BOARD_PAGE_SIZE" env-default:"30"`
	MaxPageSize int `yaml:"max_page_size" env:"BOARD_MAX_PAGE_SIZE" env-default:"200"`
}

// AzureConfig enables the status history table and the event queue.
type AzureConfig struct {
	ConnectionString string `yaml:"connection_string" env:"STORAGE_CONNECTION_STRING"`
	HistoryTable     string `yaml:"history_table" env:"HISTORY_TABLE" env-default:"StatusHistory"`
	EventQueue       string `yaml:"event_queue" env:"STATUS_EVENTS_QUEUE" env-default:"status-changes"`
}

// Enabled reports whether an Azure storage account is configured.
func (a AzureConfig) Enabled() bool { return a.ConnectionString != "" }

type EventsConfig struct {
	Workers int           `yaml:"workers" env:"EVENT_WORKERS" env-default:"4"`
	Buffer  int           `yaml:"buffer" env:"EVENT_BUFFER" env-default:"256"`
	Timeout time.Duration `yaml:"timeout" env:"EVENT_TIMEOUT" env-default:"30s"`
	Handoff time.Duration `yaml:"handoff" env:"EVENT_HANDOFF" env-default:"50ms"`
}

// Load reads and validates the configuration of publications-api.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read reads the configuration without validating it. The file is taken
// from path, then from CONFIG_PATH; without either only the environment is
// used.
func Read(path string) (*Config, error) {
	var cfg Config
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", path, err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read env: %w", err)
	}
	return &cfg, nil
}

// Validate checks values the tags cannot express.
func (c *Config) Validate() error {
	var errs []error
	if c.DB.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.Auth.JWTSecret == "" && c.Auth.JWKSURL == "" {
		errs = append(errs, errors.New("either JWT_SECRET or AUTH_JWKS_URL is required"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("AUTH_TOKEN_TTL must be greater than zero"))
	}
	if c.Board.PageSize <= 0 {
		errs = append(errs, errors.New("BOARD_PAGE_SIZE must be greater than zero"))
	}
	if c.Board.MaxPageSize < c.Board.PageSize {
		errs = append(errs, errors.New("BOARD_MAX_PAGE_SIZE must not be below BOARD_PAGE_SIZE"))
	}
	if c.Events.Workers <= 0 {
		errs = append(errs, errors.New("EVENT_WORKERS must be greater than zero"))
	}
	if c.Events.Buffer < 0 {
		errs = append(errs, errors.New("EVENT_BUFFER must not be negative"))
	}
	return errors.Join(errs...)
}

// RedisOptions parses a redis:// URL or an Azure style connection string
// such as "host:6380,password=secret,ssl=True". It returns nil for an empty
// string.
func RedisOptions(conn string) (*redis.Options, error) {
	conn = strings.TrimSpace(conn)
	if conn == "" {
		return nil, nil
	}
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	if strings.Contains(parts[0], "=") || strings.TrimSpace(parts[0]) == "" {
		return nil, fmt.Errorf("invalid redis connection string %q", conn)
	}
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(strings.TrimSpace(kv[1]), "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts, nil
}
