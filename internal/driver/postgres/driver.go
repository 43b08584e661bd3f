// Package postgres provides the PostgreSQL driver implementation.
// It registers itself with the driver registry on import.
package postgres

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/johndauphine/tabxfer/internal/dbconfig"
	"github.com/johndauphine/tabxfer/internal/driver"
	"github.com/johndauphine/tabxfer/internal/respath"
	"github.com/johndauphine/tabxfer/internal/value"
)

func init() {
	driver.Register(&Driver{})
}

// Driver implements driver.Driver for PostgreSQL databases.
type Driver struct{}

// Name returns the primary driver name.
func (d *Driver) Name() string {
	return "postgres"
}

// Aliases returns alternative names for this driver.
func (d *Driver) Aliases() []string {
	return []string{"postgresql", "pg"}
}

// Defaults returns the default configuration values for PostgreSQL.
func (d *Driver) Defaults() driver.DriverDefaults {
	return driver.DriverDefaults{
		Port:      5432,
		Schema:    "public",
		SSLMode:   "require",
		Encodings: value.DefaultEncodings(),
	}
}

// Capabilities describes PostgreSQL.
func (d *Driver) Capabilities() driver.Capabilities {
	return driver.Capabilities{
		NamespaceWidth:      3,
		CatalogInStatements: false,
		IdentifierQuote:     `"`,
		IdentifierCase:      respath.CaseLower,
		SearchEscape:        `\`,
		MaxWriters:          8,
		BatchedSubmission:   true,
		ParameterLimit:      65535,
		DropIfExists:        true,
		DropCascade:         true,
		DropMultiple:        true,
		Truncate:            true,
		TruncateMultiple:    true,
		TruncateCascade:     true,
		TruncateReferenced:  true,
		AlterConstraints:    true,
		CreateSchema:        true,
		Transactions:        true,
		TransactionalDDL:    true,
		IdentityColumns:     true,
		Upsert:              driver.UpsertOnConflict,
		Update:              driver.UpdateFrom,
		CreateAs:            driver.CreateTableAs,
		Rename:              driver.AlterRenameTo,
	}
}

// Dialect returns the PostgreSQL dialect.
func (d *Driver) Dialect() driver.Dialect {
	return &Dialect{}
}

// Introspector returns the information_schema queries for PostgreSQL.
func (d *Driver) Introspector() driver.Introspector {
	return &driver.InfoSchema{
		Dialect:       &Dialect{},
		UsesCatalog:   true,
		CurrentQuery:  "SELECT current_database(), current_schema()",
		CatalogsQuery: "SELECT datname FROM pg_catalog.pg_database WHERE NOT datistemplate ORDER BY datname",
		TypesQuery: `SELECT t.typname, NULL::integer
			FROM pg_catalog.pg_type t
			JOIN pg_catalog.pg_namespace n ON n.oid = t.typnamespace
			WHERE n.nspname = 'pg_catalog' AND t.typtype = 'b' AND t.typname NOT LIKE '\_%'
			ORDER BY t.typname`,
		SystemSchemas:     []string{"pg_catalog", "information_schema", "pg_toast"},
		DataTypeExpr:      "CASE WHEN c.data_type IN ('USER-DEFINED', 'ARRAY') THEN c.udt_name ELSE c.data_type END",
		AutoIncrementExpr: "CASE WHEN c.column_default LIKE 'nextval(%' OR c.is_identity = 'YES' THEN 1 ELSE 0 END",
		GeneratedExpr:     "CASE WHEN c.is_generated = 'ALWAYS' THEN 1 ELSE 0 END",
	}
}

// Open creates a pgx-backed database handle.
func (d *Driver) Open(cfg *dbconfig.ConnectionConfig) (*sql.DB, error) {
	dsn := cfg.URL
	if dsn == "" {
		dsn = (&Dialect{}).BuildDSN(cfg)
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening connection: %w", err)
	}
	return db, nil
}
