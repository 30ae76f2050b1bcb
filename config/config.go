// Package config loads the server settings from the environment and the
// CLI client settings from ~/.config/taskbroker/config.toml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// Server holds the settings of `taskbroker serve`.
type Server struct {
	Host            string        `env:"TASKBROKER_HOST" envDefault:"localhost"`
	Port            int           `env:"TASKBROKER_PORT" envDefault:"5554"`
	Store           string        `env:"TASKBROKER_STORE" envDefault:"memory"`
	DBPath          string        `env:"TASKBROKER_DB_PATH" envDefault:"taskbroker.db"`
	JWTSecret       string        `env:"TASKBROKER_JWT_SECRET"`
	TokenTTL        time.Duration `env:"TASKBROKER_TOKEN_TTL" envDefault:"24h"`
	OTelEndpoint    string        `env:"TASKBROKER_OTEL_ENDPOINT"`
	ShutdownTimeout time.Duration `env:"TASKBROKER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// ParseEnv loads configuration from environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadServer reads Server from the environment.
func LoadServer() (Server, error) {
	var cfg Server
	if err := ParseEnv(&cfg); err != nil {
		return Server{}, err
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Server{}, fmt.Errorf("TASKBROKER_PORT out of range: %d", cfg.Port)
	}
	return cfg, nil
}

// Client holds the settings of the CLI commands that talk to a server.
type Client struct {
	Server   string `toml:"server"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	Token    string `toml:"token"`
}

// DefaultServer is used when neither the config file nor a flag names one.
const DefaultServer = "localhost:5554"

// ClientPath returns the location of the client config file.
func ClientPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "taskbroker", "config.toml"), nil
}

// LoadClient reads the client config at path. A missing file yields the
// defaults.
func LoadClient(path string) (Client, error) {
	cfg := Client{Server: DefaultServer}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Client{}, fmt.Errorf("read config file %s: %w", path, err)
	}
	meta, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return Client{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Client{}, fmt.Errorf("parse config file %s: unknown key %q", path, undecoded[0].String())
	}
	cfg.Server = strings.TrimSpace(cfg.Server)
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	return cfg, nil
}

// SaveClient writes cfg to path, creating the parent directory. The file
// may hold a password, so it is readable by the owner only.
func SaveClient(path string, cfg Client) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open config file %s: %w", path, err)
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		return fmt.Errorf("write config file %s: %w", path, err)
	}
	return f.Close()
}
