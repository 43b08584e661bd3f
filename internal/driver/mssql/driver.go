// Package mssql provides the Microsoft SQL Server driver implementation.
package mssql

import (
	"database/sql"
	"fmt"

	_ "github.com/microsoft/go-mssqldb" // registers the "sqlserver" database/sql driver

	"github.com/johndauphine/tabxfer/internal/dbconfig"
	"github.com/johndauphine/tabxfer/internal/driver"
	"github.com/johndauphine/tabxfer/internal/respath"
	"github.com/johndauphine/tabxfer/internal/value"
)

func init() {
	driver.Register(&Driver{})
}

// Driver implements driver.Driver for Microsoft SQL Server.
type Driver struct{}

// Name returns the primary driver name.
func (d *Driver) Name() string {
	return "mssql"
}

// Aliases returns alternative names for the driver.
func (d *Driver) Aliases() []string {
	return []string{"sqlserver", "sql-server"}
}

// Defaults returns the default configuration values for SQL Server.
func (d *Driver) Defaults() driver.DriverDefaults {
	return driver.DriverDefaults{
		Port:      1433,
		Schema:    "dbo",
		Encrypt:   true,
		Encodings: value.DefaultEncodings(),
	}
}

// Capabilities describes SQL Server.
func (d *Driver) Capabilities() driver.Capabilities {
	return driver.Capabilities{
		NamespaceWidth:      3,
		CatalogInStatements: true,
		IdentifierQuote:     "[",
		IdentifierCase:      respath.CasePreserve,
		SearchEscape:        `\`,
		LikeEscapeClause:    true,
		MaxWriters:          8,
		BatchedSubmission:   true,
		ParameterLimit:      2100,
		MaxValuesRows:       1000,
		DropIfExists:        true,
		DropMultiple:        true,
		Truncate:            true,
		AlterConstraints:    true,
		CreateSchema:        true,
		Transactions:        true,
		TransactionalDDL:    true,
		IdentityColumns:     true,
		IdentityInsert:      true,
		CivilTypes:          true,
		Upsert:              driver.UpsertMerge,
		Update:              driver.UpdateJoinFrom,
		CreateAs:            driver.SelectInto,
		Rename:              driver.SpRename,
	}
}

// Dialect returns the MSSQL dialect.
func (d *Driver) Dialect() driver.Dialect {
	return &Dialect{}
}

// Introspector returns the information_schema queries for SQL Server.
func (d *Driver) Introspector() driver.Introspector {
	return &driver.InfoSchema{
		Dialect:       &Dialect{},
		UsesCatalog:   true,
		LikeEscape:    ` ESCAPE '\'`,
		CurrentQuery:  "SELECT DB_NAME(), SCHEMA_NAME()",
		CatalogsQuery: "SELECT name FROM sys.databases WHERE state = 0 ORDER BY name",
		TypesQuery:    "SELECT name, precision FROM sys.types WHERE is_user_defined = 0 ORDER BY name",
		SystemSchemas: []string{"sys", "INFORMATION_SCHEMA", "guest",
			"db_owner", "db_accessadmin", "db_securityadmin", "db_ddladmin",
			"db_backupoperator", "db_datareader", "db_datawriter",
			"db_denydatareader", "db_denydatawriter"},
		DataTypeExpr: "c.data_type",
		AutoIncrementExpr: "COLUMNPROPERTY(OBJECT_ID(QUOTENAME(c.table_catalog) + '.' + QUOTENAME(c.table_schema) + '.' + " +
			"QUOTENAME(c.table_name)), c.column_name, 'IsIdentity')",
		GeneratedExpr: "COLUMNPROPERTY(OBJECT_ID(QUOTENAME(c.table_catalog) + '.' + QUOTENAME(c.table_schema) + '.' + " +
			"QUOTENAME(c.table_name)), c.column_name, 'IsComputed')",
		SchemaPrefix: func(catalog string) string {
			return (&Dialect{}).QuoteIdentifier(catalog) + ".INFORMATION_SCHEMA"
		},
	}
}

// Open creates a go-mssqldb handle.
func (d *Driver) Open(cfg *dbconfig.ConnectionConfig) (*sql.DB, error) {
	dsn := cfg.URL
	if dsn == "" {
		dsn = (&Dialect{}).BuildDSN(cfg)
	}
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening connection: %w", err)
	}
	return db, nil
}
