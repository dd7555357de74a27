// Package config loads the ledger server configuration from YAML or TOML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

// Config represents the top-level ledger.yaml (or ledger.toml) configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Ledger   LedgerConfig   `yaml:"ledger" toml:"ledger"`
	Audit    AuditConfig    `yaml:"audit" toml:"audit"`
	Accounts AccountsConfig `yaml:"accounts" toml:"accounts"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port           int      `yaml:"port" toml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty" toml:"allowed_origins"`

	// WriteRateLimit caps mutating requests per second; 0 disables it.
	WriteRateLimit float64 `yaml:"write_rate_limit" toml:"write_rate_limit"`
	WriteBurst     int     `yaml:"write_burst" toml:"write_burst"`
}

// DatabaseConfig locates the SQLite file.
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// LedgerConfig tunes the engine.
type LedgerConfig struct {
	RetainedEarningsCode string `yaml:"retained_earnings_code" toml:"retained_earnings_code"`
	ReferencePrefix      string `yaml:"reference_prefix" toml:"reference_prefix"`
	ReferenceAttempts    int    `yaml:"reference_attempts" toml:"reference_attempts"`
}

// AuditConfig sizes the async audit queue.
type AuditConfig struct {
	Buffer int `yaml:"buffer" toml:"buffer"`
}

// AccountsConfig controls the account directory cache.
type AccountsConfig struct {
	CacheTTL string `yaml:"cache_ttl" toml:"cache_ttl"` // Go duration, e.g. "5m"; "0" disables expiry
}

// TTL parses CacheTTL.
func (a AccountsConfig) TTL() (time.Duration, error) {
	if a.CacheTTL == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(a.CacheTTL)
	if err != nil {
		return 0, fmt.Errorf("parsing accounts.cache_ttl: %w", err)
	}
	return d, nil
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
			WriteBurst:     20,
		},
		Database: DatabaseConfig{Path: "ledger.db"},
		Ledger: LedgerConfig{
			RetainedEarningsCode: "3.2",
			ReferencePrefix:      "GL-TXN",
			ReferenceAttempts:    5,
		},
		Audit:    AuditConfig{Buffer: 256},
		Accounts: AccountsConfig{CacheTTL: "5m"},
	}
}

// Load reads a config file from disk. The format follows the extension:
// .toml is parsed as TOML, anything else as YAML. Missing keys keep their
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	if isTOML(path) {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.fillDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes a Config in the format implied by the extension.
func Save(path string, cfg *Config) error {
	var (
		data []byte
		err  error
	)
	if isTOML(path) {
		data, err = toml.Marshal(*cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Validate rejects values the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Server.WriteRateLimit < 0 {
		return fmt.Errorf("server.write_rate_limit must not be negative")
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("database.path is required")
	}
	if _, err := c.Accounts.TTL(); err != nil {
		return err
	}
	return nil
}

// fillDefaults restores defaults for keys a decoder zeroed or left empty.
func (c *Config) fillDefaults() {
	d := Default()
	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
	if c.Server.WriteBurst == 0 {
		c.Server.WriteBurst = d.Server.WriteBurst
	}
	if c.Database.Path == "" {
		c.Database.Path = d.Database.Path
	}
	if c.Ledger.ReferencePrefix == "" {
		c.Ledger.ReferencePrefix = d.Ledger.ReferencePrefix
	}
	if c.Ledger.ReferenceAttempts == 0 {
		c.Ledger.ReferenceAttempts = d.Ledger.ReferenceAttempts
	}
	if c.Audit.Buffer == 0 {
		c.Audit.Buffer = d.Audit.Buffer
	}
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}
