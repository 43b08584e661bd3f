// Package typemap builds the per-connection type catalog: the vendor-neutral
// description of every type a backend reports, patched with a built-in table
// of known corrections and linked to ANSI codes for cross-vendor coercion.
package typemap

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/johndauphine/tabxfer/internal/value"
)

// Code is a canonical type code. Values follow the JDBC/ANSI numbering so
// that codes reported by backends and the built-in table agree; JSON and UUID
// use private values.
type Code int

const (
	CodeOther         Code = 1111
	CodeBit           Code = -7
	CodeTinyInt       Code = -6
	CodeSmallInt      Code = 5
	CodeInteger       Code = 4
	CodeBigInt        Code = -5
	CodeFloat         Code = 6
	CodeReal          Code = 7
	CodeDouble        Code = 8
	CodeNumeric       Code = 2
	CodeDecimal       Code = 3
	CodeChar          Code = 1
	CodeVarchar       Code = 12
	CodeLongVarchar   Code = -1
	CodeNChar         Code = -15
	CodeNVarchar      Code = -9
	CodeLongNVarchar  Code = -16
	CodeClob          Code = 2005
	CodeNClob         Code = 2011
	CodeBinary        Code = -2
	CodeVarbinary     Code = -3
	CodeLongVarbinary Code = -4
	CodeBlob          Code = 2004
	CodeBoolean       Code = 16
	CodeDate          Code = 91
	CodeTime          Code = 92
	CodeTimestamp     Code = 93
	CodeTimeTZ        Code = 2013
	CodeTimestampTZ   Code = 2014
	CodeJSON          Code = 9001
	CodeUUID          Code = 9002
)

var codeNames = map[Code]string{
	CodeOther:         "OTHER",
	CodeBit:           "BIT",
	CodeTinyInt:       "TINYINT",
	CodeSmallInt:      "SMALLINT",
	CodeInteger:       "INTEGER",
	CodeBigInt:        "BIGINT",
	CodeFloat:         "FLOAT",
	CodeReal:          "REAL",
	CodeDouble:        "DOUBLE",
	CodeNumeric:       "NUMERIC",
	CodeDecimal:       "DECIMAL",
	CodeChar:          "CHAR",
	CodeVarchar:       "VARCHAR",
	CodeLongVarchar:   "LONGVARCHAR",
	CodeNChar:         "NCHAR",
	CodeNVarchar:      "NVARCHAR",
	CodeLongNVarchar:  "LONGNVARCHAR",
	CodeClob:          "CLOB",
	CodeNClob:         "NCLOB",
	CodeBinary:        "BINARY",
	CodeVarbinary:     "VARBINARY",
	CodeLongVarbinary: "LONGVARBINARY",
	CodeBlob:          "BLOB",
	CodeBoolean:       "BOOLEAN",
	CodeDate:          "DATE",
	CodeTime:          "TIME",
	CodeTimestamp:     "TIMESTAMP",
	CodeTimeTZ:        "TIME_WITH_TIMEZONE",
	CodeTimestampTZ:   "TIMESTAMP_WITH_TIMEZONE",
	CodeJSON:          "JSON",
	CodeUUID:          "UUID",
}

func (c Code) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return "CODE(" + strconv.Itoa(int(c)) + ")"
}

// ReportedType is one row of a backend's self-reported type list. Zero
// values mean the backend did not report the field.
type ReportedType struct {
	Name             string
	Code             Code
	MaxPrecision     int
	DefaultPrecision int
	MinScale         int
	MaxScale         int
	LiteralPrefix    string
	LiteralSuffix    string
	AutoIncrement    bool
}

// Entry is a canonical type of one backend. Entries are immutable once the
// catalog is built.
type Entry struct {
	Code             Code
	Name             string
	Aliases          []string
	Kind             value.Kind
	MaxPrecision     int
	DefaultPrecision int
	MinScale         int
	MaxScale         int
	LiteralPrefix    string
	LiteralSuffix    string
	// Sized types accept a length or precision specifier.
	Sized bool
	// MandatorySize types must always be emitted with a specifier.
	MandatorySize bool
	// Unbounded is the specifier emitted for an unlimited size, e.g. "max".
	Unbounded     string
	AutoIncrement bool
	// ANSI is the canonical ANSI code used when coercing across vendors.
	ANSI Code
}

// HasName reports whether name (case-insensitive) is the entry name or one
// of its aliases.
func (e *Entry) HasName(name string) bool {
	if strings.EqualFold(e.Name, name) {
		return true
	}
	for _, a := range e.Aliases {
		if strings.EqualFold(a, name) {
			return true
		}
	}
	return false
}

// Render returns the DDL text of the type for a column with the given
// precision and scale. A zero precision falls back to the default precision
// when the size is mandatory and is omitted otherwise.
func (e *Entry) Render(precision, scale int) string {
	if !e.Sized {
		return e.Name
	}
	if e.Unbounded != "" && (precision <= 0 || (e.MaxPrecision > 0 && precision > e.MaxPrecision)) {
		return e.Name + "(" + e.Unbounded + ")"
	}
	if precision <= 0 {
		if !e.MandatorySize {
			return e.Name
		}
		precision = e.DefaultPrecision
		if precision <= 0 {
			precision = 1
		}
	}
	if e.Kind == value.Decimal && scale > 0 {
		return fmt.Sprintf("%s(%d,%d)", e.Name, precision, scale)
	}
	return fmt.Sprintf("%s(%d)", e.Name, precision)
}

func (e *Entry) String() string {
	return fmt.Sprintf("%s (%s, %s)", e.Name, e.Code, e.Kind)
}

// UnknownTypeError is returned when a type name or code cannot be mapped to
// an entry of the catalog nor to an ANSI type.
type UnknownTypeError struct {
	Dialect string
	Name    string
	Code    Code
}

func (e *UnknownTypeError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("unknown %s type %q", e.Dialect, e.Name)
	}
	return fmt.Sprintf("no %s type for code %s", e.Dialect, e.Code)
}

// SplitSpec splits a declared type such as "numeric(10, 2)" or
// "varchar(20)" into its base name and size. Missing parts are zero.
func SplitSpec(spec string) (name string, precision, scale int) {
	spec = strings.TrimSpace(spec)
	open := strings.IndexByte(spec, '(')
	if open < 0 {
		return normalizeName(spec), 0, 0
	}
	name = normalizeName(spec[:open])
	end := strings.IndexByte(spec[open:], ')')
	if end < 0 {
		return name, 0, 0
	}
	args := strings.Split(spec[open+1:open+end], ",")
	if len(args) > 0 {
		precision, _ = strconv.Atoi(strings.TrimSpace(args[0]))
	}
	if len(args) > 1 {
		scale, _ = strconv.Atoi(strings.TrimSpace(args[1]))
	}
	// keep modifiers that follow the size, e.g. "varchar(10) binary"
	if rest := strings.TrimSpace(spec[open+end+1:]); rest != "" && !strings.HasPrefix(strings.ToLower(rest), "unsigned") {
		name = name + " " + normalizeName(rest)
	}
	return name, precision, scale
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
