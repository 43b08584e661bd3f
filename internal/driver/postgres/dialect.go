package postgres

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/johndauphine/tabxfer/internal/dbconfig"
	"github.com/johndauphine/tabxfer/internal/driver"
)

// Dialect implements driver.Dialect for PostgreSQL.
type Dialect struct{}

func (d *Dialect) DBType() string { return "postgres" }

func (d *Dialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d *Dialect) ParameterPlaceholder(i int) string {
	return "$" + strconv.Itoa(i)
}

// BuildDSN renders a postgres:// URL with URL-encoded credentials.
func (d *Dialect) BuildDSN(cfg *dbconfig.ConnectionConfig) string {
	params := url.Values{}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}
	params.Set("sslmode", sslMode)
	if cfg.Schema != "" {
		params.Set("search_path", cfg.Schema)
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(cfg.User), url.QueryEscape(cfg.Password),
		cfg.Host, port, url.PathEscape(cfg.Database), params.Encode())
}

func (d *Dialect) BoolLiteral(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

func (d *Dialect) BytesLiteral(b []byte) string {
	return `'\x` + driver.HexBytes(b) + `'::bytea`
}

func (d *Dialect) AnyRowQuery(from string) string {
	return "SELECT 1 FROM " + from + " LIMIT 1"
}

func (d *Dialect) IdentityClause() string {
	return "GENERATED BY DEFAULT AS IDENTITY"
}

// ErrorCode returns the SQLSTATE of a PostgreSQL error.
func (d *Dialect) ErrorCode(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, true
	}
	return "", false
}
