package mssql

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"

	"github.com/johndauphine/tabxfer/internal/dbconfig"
	"github.com/johndauphine/tabxfer/internal/driver"
)

// Dialect implements driver.Dialect for SQL Server.
type Dialect struct{}

func (d *Dialect) DBType() string { return "mssql" }

func (d *Dialect) QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (d *Dialect) ParameterPlaceholder(i int) string {
	return "@p" + strconv.Itoa(i)
}

// BuildDSN renders a sqlserver:// URL. Encryption defaults to on.
func (d *Dialect) BuildDSN(cfg *dbconfig.ConnectionConfig) string {
	port := cfg.Port
	if port == 0 {
		port = 1433
	}
	encrypt := true
	if cfg.Encrypt != nil {
		encrypt = *cfg.Encrypt
	}
	params := url.Values{}
	params.Set("database", cfg.Database)
	params.Set("encrypt", strconv.FormatBool(encrypt))
	if cfg.TrustServerCert {
		params.Set("TrustServerCertificate", "true")
	}
	if cfg.PacketSize > 0 {
		params.Set("packet size", strconv.Itoa(cfg.PacketSize))
	}
	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, port),
		RawQuery: params.Encode(),
	}
	return u.String()
}

func (d *Dialect) BoolLiteral(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (d *Dialect) BytesLiteral(b []byte) string {
	return "0x" + driver.HexBytes(b)
}

func (d *Dialect) AnyRowQuery(from string) string {
	return "SELECT TOP 1 1 FROM " + from
}

func (d *Dialect) IdentityClause() string {
	return "IDENTITY(1,1)"
}

// ErrorCode returns the SQL Server error number.
func (d *Dialect) ErrorCode(err error) (string, bool) {
	var msErr mssql.Error
	if errors.As(err, &msErr) {
		return strconv.Itoa(int(msErr.Number)), true
	}
	return "", false
}
