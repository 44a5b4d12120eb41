// Package config loads and validates the daemon configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/cmdline-assistant/clad/internal/domain"
)

// DefaultPath is where the daemon looks for its configuration unless
// CLAD_CONFIG_FILE points somewhere else.
const DefaultPath = "/etc/clad/config.toml"

type Config struct {
	Backend  Backend  `toml:"backend"`
	Database Database `toml:"database"`
	HTTP     HTTP     `toml:"http"`
	Cache    Cache    `toml:"cache"`
	Logging  Logging  `toml:"logging"`
	Daemon   Daemon   `toml:"daemon"`

	Telemetry Telemetry `toml:"telemetry"`
}

type Telemetry struct {
	OTLPEndpoint string `toml:"otlp_endpoint"`
}

type Backend struct {
	Endpoint       string            `toml:"endpoint"`
	TimeoutSeconds int               `toml:"timeout"`
	Proxies        map[string]string `toml:"proxies"`
	Auth           Auth              `toml:"auth"`
}

func (b Backend) Timeout() time.Duration {
	if b.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(b.TimeoutSeconds) * time.Second
}

type Auth struct {
	CertFile  string `toml:"cert_file"`
	KeyFile   string `toml:"key_file"`
	VerifySSL bool   `toml:"verify_ssl"`
}

// Database selects and parameterizes the history store. Type is one of
// "sqlite", "postgresql" or "mysql". CredentialsDir, when set, points at a
// directory of decrypted systemd credentials that take priority over the
// plaintext User/Password fields.
type Database struct {
	Type             string `toml:"type"`
	Host             string `toml:"host"`
	Port             int    `toml:"port"`
	Name             string `toml:"database"`
	User             string `toml:"user"`
	Password         string `toml:"password"`
	ConnectionString string `toml:"connection_string"`
	CredentialsDir   string `toml:"credentials_dir"`
}

type HTTP struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
}

type Cache struct {
	Enabled    bool   `toml:"enabled"`
	RedisURL   string `toml:"redis_url"`
	TTLSeconds int    `toml:"ttl"`
}

func (c Cache) TTL() time.Duration {
	if c.TTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.TTLSeconds) * time.Second
}

type Logging struct {
	Level string `toml:"level"`
}

type Daemon struct {
	// IdleExitSeconds stops the daemon after that many seconds without a
	// request. Zero disables idle exit.
	IdleExitSeconds int `toml:"idle_exit"`
}

func (d Daemon) IdleExit() time.Duration {
	return time.Duration(d.IdleExitSeconds) * time.Second
}

func defaults() *Config {
	return &Config{
		Backend: Backend{
			Endpoint:       "https://localhost:8080",
			TimeoutSeconds: 30,
			Auth: Auth{
				CertFile:  "/etc/pki/consumer/cert.pem",
				KeyFile:   "/etc/pki/consumer/key.pem",
				VerifySSL: true,
			},
		},
		Database: Database{
			Type:             "sqlite",
			ConnectionString: "/var/lib/clad/history.db",
		},
		HTTP: HTTP{
			Enabled: true,
			Address: "127.0.0.1:8437",
		},
		Logging: Logging{Level: "info"},
	}
}

// Path returns the configuration file location, honoring the
// CLAD_CONFIG_FILE override.
func Path() string {
	if p := os.Getenv("CLAD_CONFIG_FILE"); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, &domain.ConfigError{Field: "file", Err: fmt.Errorf("parse %s: %w", path, err)}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks everything that must be fatal at startup rather than per
// request: the TLS identity files and the storage selection.
func (c *Config) Validate() error {
	if c.Backend.Endpoint == "" {
		return &domain.ConfigError{Field: "backend.endpoint", Err: fmt.Errorf("must not be empty")}
	}

	for _, f := range []struct{ field, path string }{
		{"backend.auth.cert_file", c.Backend.Auth.CertFile},
		{"backend.auth.key_file", c.Backend.Auth.KeyFile},
	} {
		if f.path == "" {
			return &domain.ConfigError{Field: f.field, Err: fmt.Errorf("must not be empty")}
		}
		if _, err := os.Stat(f.path); err != nil {
			return &domain.ConfigError{Field: f.field, Err: err}
		}
	}

	switch c.Database.Type {
	case "sqlite":
		if c.Database.ConnectionString == "" {
			return &domain.ConfigError{Field: "database.connection_string", Err: fmt.Errorf("required for sqlite")}
		}
	case "postgresql", "mysql":
		if c.Database.Host == "" || c.Database.Name == "" {
			return &domain.ConfigError{Field: "database", Err: fmt.Errorf("host and database are required for %s", c.Database.Type)}
		}
		if c.Database.Port == 0 {
			if c.Database.Type == "mysql" {
				c.Database.Port = 3306
			} else {
				c.Database.Port = 5432
			}
		}
	default:
		return &domain.ConfigError{Field: "database.type", Err: fmt.Errorf("must be one of sqlite, mysql, postgresql, not %q", c.Database.Type)}
	}

	return nil
}
