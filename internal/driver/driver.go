// Package driver provides pluggable backend abstractions.
// Each database (PostgreSQL, MSSQL, MySQL, SQLite) implements the Driver
// interface to provide its capabilities, dialect and catalog queries in one
// cohesive unit.
package driver

import (
	"database/sql"

	"github.com/johndauphine/tabxfer/internal/dbconfig"
	"github.com/johndauphine/tabxfer/internal/value"
)

// DriverDefaults contains default values for a database driver.
// Used by config.applyDefaults() to set sensible defaults for each database type.
type DriverDefaults struct {
	// Port is the default port (e.g., 5432 for PostgreSQL, 1433 for MSSQL).
	Port int

	// Schema is the default schema (e.g., "public" for PostgreSQL, "dbo" for MSSQL).
	Schema string

	// SSLMode is the default SSL mode for PostgreSQL-style connections.
	SSLMode string

	// Encrypt is the default encryption setting for MSSQL-style connections.
	Encrypt bool

	// Encodings is how temporal and boolean values are handed to the driver
	// unless the connection configures otherwise.
	Encodings value.Encodings
}

// Driver represents a pluggable database driver.
//
// To add a new database:
// 1. Create a package under internal/driver/<dbname>/
// 2. Implement the Driver interface
// 3. Register via init(): driver.Register(&MyDriver{})
type Driver interface {
	// Name returns the primary driver name (e.g., "mssql", "postgres").
	Name() string

	// Aliases returns alternative names for this driver.
	Aliases() []string

	// Defaults returns the default configuration values for this driver.
	Defaults() DriverDefaults

	// Capabilities describes what the backend supports.
	Capabilities() Capabilities

	// Dialect returns the SQL dialect for this database.
	Dialect() Dialect

	// Introspector returns the catalog queries for this database.
	Introspector() Introspector

	// Open creates a database handle from the connection settings. It does
	// not contact the server.
	Open(cfg *dbconfig.ConnectionConfig) (*sql.DB, error)
}
