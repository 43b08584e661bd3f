// Package dbconfig provides the per-connection configuration type shared by
// the config, driver and connection packages. It exists to break the import
// cycle between config and driver.
package dbconfig

import (
	"fmt"
	"time"

	"github.com/johndauphine/tabxfer/internal/value"
)

// ConnectionConfig holds the settings of one backend connection.
type ConnectionConfig struct {
	Type     string `yaml:"type"` // postgres, mssql, mysql or sqlite (aliases accepted)
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"` // sqlite: file path or ":memory:"
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Schema   string `yaml:"schema"`
	// URL is a complete driver DSN; when set it replaces host, port and the
	// credentials.
	URL             string `yaml:"url"`
	SSLMode         string `yaml:"ssl_mode"`          // PostgreSQL and MySQL
	TrustServerCert bool   `yaml:"trust_server_cert"` // MSSQL
	Encrypt         *bool  `yaml:"encrypt"`           // MSSQL
	PacketSize      int    `yaml:"packet_size"`       // MSSQL
	Charset         string `yaml:"charset"`           // MySQL (default: utf8mb4)

	// MaxWriters caps concurrent writer handles; zero uses the backend
	// capability.
	MaxWriters int `yaml:"max_writers"`

	DateEncoding      string `yaml:"date_encoding"`
	TimeEncoding      string `yaml:"time_encoding"`
	TimestampEncoding string `yaml:"timestamp_encoding"`
	BooleanEncoding   string `yaml:"boolean_encoding"`
	// StatementForm is how streamed rows reach the backend: "placeholders"
	// binds them, "literal" interpolates them into the statement text.
	StatementForm string `yaml:"statement_form"`

	// Cooldown is how long a failed open blocks further attempts.
	Cooldown     time.Duration `yaml:"cooldown"`
	CacheEnabled *bool         `yaml:"cache_enabled"`
	CacheSize    int           `yaml:"cache_size"`
}

// DSNOptions returns the driver-specific options used when building a DSN.
func (c *ConnectionConfig) DSNOptions() map[string]any {
	opts := make(map[string]any)
	if c.SSLMode != "" {
		opts["sslmode"] = c.SSLMode
	}
	if c.Encrypt != nil {
		opts["encrypt"] = *c.Encrypt
	}
	if c.TrustServerCert {
		opts["trustServerCertificate"] = true
	}
	if c.PacketSize > 0 {
		opts["packetSize"] = c.PacketSize
	}
	if c.Charset != "" {
		opts["charset"] = c.Charset
	}
	return opts
}

// Encodings parses the configured temporal and boolean encodings. Empty
// settings keep the values of defaults.
func (c *ConnectionConfig) Encodings(defaults value.Encodings) (value.Encodings, error) {
	enc := defaults
	for _, f := range []struct {
		name string
		raw  string
		dst  *value.TemporalEncoding
	}{
		{"date_encoding", c.DateEncoding, &enc.Date},
		{"time_encoding", c.TimeEncoding, &enc.Time},
		{"timestamp_encoding", c.TimestampEncoding, &enc.Timestamp},
	} {
		if f.raw == "" {
			continue
		}
		e, err := value.ParseTemporalEncoding(f.raw)
		if err != nil {
			return enc, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = e
	}
	if c.BooleanEncoding != "" {
		b, err := value.ParseBooleanEncoding(c.BooleanEncoding)
		if err != nil {
			return enc, fmt.Errorf("boolean_encoding: %w", err)
		}
		enc.Boolean = b
	}
	return enc, enc.Validate()
}

// CachingEnabled reports whether tables and views are cached (default true).
func (c *ConnectionConfig) CachingEnabled() bool {
	return c.CacheEnabled == nil || *c.CacheEnabled
}
