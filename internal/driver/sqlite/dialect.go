package sqlite

import (
	"errors"
	"strconv"
	"strings"

	"modernc.org/sqlite"

	"github.com/johndauphine/tabxfer/internal/dbconfig"
	"github.com/johndauphine/tabxfer/internal/driver"
)

// Dialect implements driver.Dialect for SQLite.
type Dialect struct{}

func (d *Dialect) DBType() string { return "sqlite" }

func (d *Dialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d *Dialect) ParameterPlaceholder(_ int) string { return "?" }

// BuildDSN renders a file: URI that enables foreign keys and a busy timeout.
func (d *Dialect) BuildDSN(cfg *dbconfig.ConnectionConfig) string {
	path := cfg.Database
	if path == "" {
		path = ":memory:"
	}
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func (d *Dialect) BoolLiteral(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (d *Dialect) BytesLiteral(b []byte) string {
	return "X'" + driver.HexBytes(b) + "'"
}

func (d *Dialect) AnyRowQuery(from string) string {
	return "SELECT 1 FROM " + from + " LIMIT 1"
}

func (d *Dialect) IdentityClause() string { return "" }

// ErrorCode returns the extended SQLite result code.
func (d *Dialect) ErrorCode(err error) (string, bool) {
	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) {
		return strconv.Itoa(sqErr.Code()), true
	}
	return "", false
}
