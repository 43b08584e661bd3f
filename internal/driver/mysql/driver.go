// Package mysql provides the MySQL/MariaDB driver implementation.
// It registers itself with the driver registry on import.
package mysql

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql" // registers the "mysql" database/sql driver

	"github.com/johndauphine/tabxfer/internal/dbconfig"
	"github.com/johndauphine/tabxfer/internal/driver"
	"github.com/johndauphine/tabxfer/internal/respath"
	"github.com/johndauphine/tabxfer/internal/value"
)

func init() {
	driver.Register(&Driver{})
}

// Driver implements driver.Driver for MySQL/MariaDB databases.
type Driver struct{}

// Name returns the primary driver name.
func (d *Driver) Name() string {
	return "mysql"
}

// Aliases returns alternative names for this driver.
func (d *Driver) Aliases() []string {
	return []string{"mariadb", "maria"}
}

// Defaults returns the default configuration values for MySQL.
func (d *Driver) Defaults() driver.DriverDefaults {
	return driver.DriverDefaults{
		Port:      3306,
		Schema:    "", // MySQL uses database name, not schema
		SSLMode:   "preferred",
		Encodings: value.DefaultEncodings(),
	}
}

// Capabilities describes MySQL. A database is addressed as a schema.
func (d *Driver) Capabilities() driver.Capabilities {
	return driver.Capabilities{
		NamespaceWidth:    2,
		IdentifierQuote:   "`",
		IdentifierCase:    respath.CasePreserve,
		SearchEscape:      `\`,
		MaxWriters:        4,
		BatchedSubmission: true,
		ParameterLimit:    65535,
		DropIfExists:      true,
		DropMultiple:      true,
		Truncate:          true,
		AlterConstraints:  true,
		DropForeignKey:    "DROP FOREIGN KEY",
		Transactions:      true,
		Upsert:            driver.UpsertOnDuplicateKey,
		Update:            driver.UpdateJoinSet,
		CreateAs:          driver.CreateTableAs,
		Rename:            driver.RenameTable,
	}
}

// Dialect returns the MySQL dialect.
func (d *Driver) Dialect() driver.Dialect {
	return &Dialect{}
}

// Introspector returns the information_schema queries for MySQL.
func (d *Driver) Introspector() driver.Introspector {
	return &driver.InfoSchema{
		Dialect:              &Dialect{},
		CurrentQuery:         "SELECT NULL, DATABASE()",
		TypesQuery:           "",
		SystemSchemas:        []string{"mysql", "information_schema", "performance_schema", "sys"},
		DataTypeExpr:         "c.data_type",
		AutoIncrementExpr:    "CASE WHEN c.extra LIKE '%auto_increment%' THEN 1 ELSE 0 END",
		GeneratedExpr:        "CASE WHEN c.extra LIKE '%GENERATED%' THEN 1 ELSE 0 END",
		FKFromKeyColumnUsage: true,
	}
}

// Open creates a go-sql-driver handle.
func (d *Driver) Open(cfg *dbconfig.ConnectionConfig) (*sql.DB, error) {
	dsn := cfg.URL
	if dsn == "" {
		dsn = (&Dialect{}).BuildDSN(cfg)
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening connection: %w", err)
	}
	return db, nil
}
