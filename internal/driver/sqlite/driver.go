// Package sqlite provides the SQLite driver implementation on top of the
// pure-Go modernc.org/sqlite engine. A database is a single file addressed
// by object name only.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/johndauphine/tabxfer/internal/dbconfig"
	"github.com/johndauphine/tabxfer/internal/driver"
	"github.com/johndauphine/tabxfer/internal/respath"
	"github.com/johndauphine/tabxfer/internal/value"
)

func init() {
	driver.Register(&Driver{})
}

// Driver implements driver.Driver for SQLite files.
type Driver struct{}

func (d *Driver) Name() string { return "sqlite" }

func (d *Driver) Aliases() []string { return []string{"sqlite3"} }

// Defaults stores temporal values as SQL text and booleans as 0/1, which is
// how SQLite applications conventionally represent them.
func (d *Driver) Defaults() driver.DriverDefaults {
	return driver.DriverDefaults{
		Encodings: value.Encodings{
			Date:      value.TemporalSQLLiteral,
			Time:      value.TemporalSQLLiteral,
			Timestamp: value.TemporalSQLLiteral,
			Boolean:   value.BooleanBinary,
		},
	}
}

func (d *Driver) Capabilities() driver.Capabilities {
	return driver.Capabilities{
		NamespaceWidth:    1,
		IdentifierQuote:   `"`,
		IdentifierCase:    respath.CasePreserve,
		MaxWriters:        1,
		BatchedSubmission: true,
		ParameterLimit:    999,
		DropIfExists:      true,
		Transactions:      true,
		TransactionalDDL:  true,
		Upsert:            driver.UpsertOnConflict,
		Update:            driver.UpdateFrom,
		CreateAs:          driver.CreateTableAs,
		Rename:            driver.AlterRenameTo,
	}
}

func (d *Driver) Dialect() driver.Dialect { return &Dialect{} }

func (d *Driver) Introspector() driver.Introspector { return &Introspector{} }

// Open opens the database file named by Database, or the DSN in URL.
// Foreign keys are enforced on every connection.
func (d *Driver) Open(cfg *dbconfig.ConnectionConfig) (*sql.DB, error) {
	dsn := cfg.URL
	if dsn == "" {
		dsn = (&Dialect{}).BuildDSN(cfg)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening connection: %w", err)
	}
	if strings.Contains(dsn, ":memory:") {
		// Each connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	return db, nil
}
