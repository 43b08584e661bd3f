// Package config loads the YAML configuration: named connections, logging
// and transfer defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/johndauphine/tabxfer/internal/dbconfig"
	"github.com/johndauphine/tabxfer/internal/driver"
	_ "github.com/johndauphine/tabxfer/internal/driver/mssql"
	_ "github.com/johndauphine/tabxfer/internal/driver/mysql"
	_ "github.com/johndauphine/tabxfer/internal/driver/postgres"
	_ "github.com/johndauphine/tabxfer/internal/driver/sqlite"
	"github.com/johndauphine/tabxfer/internal/logging"
	"github.com/johndauphine/tabxfer/internal/secrets"
	"github.com/johndauphine/tabxfer/internal/statement"
	"github.com/johndauphine/tabxfer/internal/transfer"
)

const (
	// DefaultCooldown is how long a failed connection stays unavailable.
	DefaultCooldown = 30 * time.Second
	// DefaultCacheSize bounds the number of cached tables and views per
	// connection.
	DefaultCacheSize = 1024
	// DefaultMaxConcurrentOrders bounds transfers run at the same time.
	DefaultMaxConcurrentOrders = 2

	// fallbackMemoryMB is assumed when available memory cannot be read.
	fallbackMemoryMB = 4096
)

// Config is the top-level configuration file.
type Config struct {
	LogLevel    string                               `yaml:"log_level"`
	LogFormat   string                               `yaml:"log_format"`
	Connections map[string]*dbconfig.ConnectionConfig `yaml:"connections"`
	Transfer    TransferSettings                     `yaml:"transfer"`
}

// TransferSettings are the defaults applied to every transfer order.
type TransferSettings struct {
	transfer.Config `yaml:",inline"`
	// Strict aborts a run on the first failure; when false failures are
	// recorded and the run continues. Defaults to true.
	Strict              *bool `yaml:"strict"`
	MaxConcurrentOrders int   `yaml:"max_concurrent_orders"`
}

// IsStrict reports the configured error policy.
func (t TransferSettings) IsStrict() bool {
	return t.Strict == nil || *t.Strict
}

// Load reads, expands, defaults and validates the file at path. Credentials
// missing from the file are taken from the secrets file when there is one.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	sec, err := secrets.Load()
	var notFound *secrets.SecretsNotFoundError
	if err != nil && !errors.As(err, &notFound) {
		return nil, err
	}
	cfg, err := parse(data, sec)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML after expanding ${VAR} references from the environment.
func Parse(data []byte) (*Config, error) {
	return parse(data, nil)
}

func parse(data []byte, sec *secrets.Config) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(expandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applySecrets(sec)
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} with the variable's value. Bare $ signs are left
// alone so passwords may contain them.
func expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(m string) string {
		name := envRef.FindStringSubmatch(m)[1]
		v, ok := os.LookupEnv(name)
		if !ok {
			logging.Warn("Config references unset environment variable %s", name)
		}
		return v
	})
}

// applySecrets fills the credentials a connection leaves empty.
func (c *Config) applySecrets(sec *secrets.Config) {
	for name, conn := range c.Connections {
		cred, ok := sec.Credentials(name)
		if !ok || conn == nil {
			continue
		}
		if conn.User == "" {
			conn.User = cred.User
		}
		if conn.Password == "" {
			conn.Password = cred.Password
		}
		if conn.URL == "" && conn.Host == "" {
			conn.URL = cred.URL
		}
	}
}

func (c *Config) applyDefaults() error {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	for name, conn := range c.Connections {
		if conn == nil {
			return fmt.Errorf("connection %s: empty definition", name)
		}
		d, err := driver.Get(conn.Type)
		if err != nil {
			// reported by validate
			continue
		}
		conn.Type = d.Name()
		defaults := d.Defaults()
		if conn.Port == 0 {
			conn.Port = defaults.Port
		}
		if conn.Schema == "" {
			conn.Schema = defaults.Schema
		}
		if conn.SSLMode == "" {
			conn.SSLMode = defaults.SSLMode
		}
		if conn.Encrypt == nil && defaults.Encrypt {
			enc := true
			conn.Encrypt = &enc
		}
		if conn.Cooldown == 0 {
			conn.Cooldown = DefaultCooldown
		}
		if conn.CacheSize == 0 {
			conn.CacheSize = DefaultCacheSize
		}
	}

	t := &c.Transfer
	if t.BufferCapacity == 0 {
		t.BufferCapacity = defaultBufferCapacity(availableMemoryMB())
	}
	t.Config = t.Config.WithDefaults()
	if t.MaxConcurrentOrders == 0 {
		t.MaxConcurrentOrders = DefaultMaxConcurrentOrders
	}
	return nil
}

// defaultBufferCapacity sizes the batch queue from available memory: one
// queued batch per 512MB, between 2 and 32.
func defaultBufferCapacity(memMB int64) int {
	n := int(memMB / 512)
	if n < 2 {
		return 2
	}
	if n > 32 {
		return 32
	}
	return n
}

func (c *Config) validate() error {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	for _, name := range c.ConnectionNames() {
		if err := validateConnection(name, c.Connections[name]); err != nil {
			return err
		}
	}
	if err := c.Transfer.Config.Validate(); err != nil {
		return fmt.Errorf("transfer: %w", err)
	}
	if c.Transfer.MaxConcurrentOrders < 1 {
		return fmt.Errorf("transfer: max_concurrent_orders must be positive, got %d", c.Transfer.MaxConcurrentOrders)
	}
	return nil
}

func validateConnection(name string, conn *dbconfig.ConnectionConfig) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("connection names cannot be empty")
	}
	if conn.Type == "" {
		return fmt.Errorf("connection %s: type is required (available: %s)", name, strings.Join(driver.Available(), ", "))
	}
	d, err := driver.Get(conn.Type)
	if err != nil {
		return fmt.Errorf("connection %s: %w", name, err)
	}
	if d.Name() == "sqlite" {
		if conn.Database == "" && conn.URL == "" {
			return fmt.Errorf("connection %s: sqlite needs database (a file path or :memory:) or url", name)
		}
	} else if conn.Host == "" && conn.URL == "" {
		return fmt.Errorf("connection %s: host or url is required", name)
	}
	if conn.MaxWriters < 0 {
		return fmt.Errorf("connection %s: max_writers cannot be negative", name)
	}
	if conn.CacheSize < 0 {
		return fmt.Errorf("connection %s: cache_size cannot be negative", name)
	}
	if _, err := conn.Encodings(d.Defaults().Encodings); err != nil {
		return fmt.Errorf("connection %s: %w", name, err)
	}
	if _, err := statement.ParseForm(conn.StatementForm); err != nil {
		return fmt.Errorf("connection %s: %w", name, err)
	}
	return nil
}

// ConnectionNames returns the configured connection names, sorted.
func (c *Config) ConnectionNames() []string {
	names := make([]string, 0, len(c.Connections))
	for n := range c.Connections {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Connection returns the named connection settings.
func (c *Config) Connection(name string) (*dbconfig.ConnectionConfig, error) {
	conn, ok := c.Connections[name]
	if !ok {
		return nil, fmt.Errorf("no connection named %q (configured: %s)", name, strings.Join(c.ConnectionNames(), ", "))
	}
	return conn, nil
}

// ApplyLogging configures the package logger from the file's settings.
func (c *Config) ApplyLogging() {
	if lvl, err := logging.ParseLevel(c.LogLevel); err == nil {
		logging.SetLevel(lvl)
	}
	logging.SetFormat(c.LogFormat)
}
