package driver

import (
	"encoding/hex"
	"strings"

	"github.com/johndauphine/tabxfer/internal/dbconfig"
)

// Dialect renders the backend-specific fragments of SQL text.
type Dialect interface {
	DBType() string

	// QuoteIdentifier quotes one identifier, escaping embedded quotes.
	QuoteIdentifier(name string) string

	// ParameterPlaceholder returns the placeholder of the i-th (1-based)
	// bind parameter.
	ParameterPlaceholder(i int) string

	// BuildDSN renders the driver connection string.
	BuildDSN(cfg *dbconfig.ConnectionConfig) string

	BoolLiteral(b bool) string
	BytesLiteral(b []byte) string

	// AnyRowQuery selects at most one row of from, used for emptiness checks.
	AnyRowQuery(from string) string

	// IdentityClause is appended to auto-increment column definitions.
	IdentityClause() string

	// ErrorCode extracts the backend error code from a driver error.
	ErrorCode(err error) (string, bool)
}

// HexBytes renders b as hexadecimal digits.
func HexBytes(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}

// ColumnList quotes and joins column names with d.
func ColumnList(d Dialect, cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.QuoteIdentifier(c)
	}
	return strings.Join(quoted, ", ")
}
