package mysql

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/johndauphine/tabxfer/internal/dbconfig"
	"github.com/johndauphine/tabxfer/internal/driver"
)

// Dialect implements driver.Dialect for MySQL/MariaDB.
type Dialect struct{}

func (d *Dialect) DBType() string { return "mysql" }

func (d *Dialect) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (d *Dialect) ParameterPlaceholder(_ int) string {
	return "?"
}

// BuildDSN renders user:password@tcp(host:port)/database?params.
func (d *Dialect) BuildDSN(cfg *dbconfig.ConnectionConfig) string {
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	mc := gomysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", cfg.Host, port)
	mc.DBName = cfg.Database
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.TLSConfig = tlsMode(cfg.SSLMode)

	charset := cfg.Charset
	if charset == "" {
		charset = "utf8mb4"
	}
	_ = mc.Apply(gomysql.Charset(charset, ""))
	return mc.FormatDSN()
}

// tlsMode maps the PostgreSQL-style ssl_mode spelling onto the driver's tls
// parameter.
func tlsMode(sslMode string) string {
	switch strings.ToLower(sslMode) {
	case "disable", "disabled", "false":
		return "false"
	case "require", "required", "true", "verify-full", "verify_full", "verify-identity", "verify_identity":
		return "true"
	case "verify-ca", "verify_ca":
		return "skip-verify"
	}
	return "preferred"
}

func (d *Dialect) BoolLiteral(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

func (d *Dialect) BytesLiteral(b []byte) string {
	return "X'" + driver.HexBytes(b) + "'"
}

func (d *Dialect) AnyRowQuery(from string) string {
	return "SELECT 1 FROM " + from + " LIMIT 1"
}

// IdentityClause is empty: AUTO_INCREMENT needs the key declared inline,
// while keys are added after the table is created.
func (d *Dialect) IdentityClause() string {
	return ""
}

// ErrorCode returns the MySQL error number.
func (d *Dialect) ErrorCode(err error) (string, bool) {
	var myErr *gomysql.MySQLError
	if errors.As(err, &myErr) {
		return strconv.Itoa(int(myErr.Number)), true
	}
	return "", false
}
