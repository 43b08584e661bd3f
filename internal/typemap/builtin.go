package typemap

import "github.com/johndauphine/tabxfer/internal/value"

// descriptor is one row of the built-in correction table. It fills the
// fields a backend leaves out of its type report and names the aliases that
// fold into the same canonical entry.
type descriptor struct {
	name             string
	code             Code
	kind             value.Kind
	aliases          []string
	maxPrecision     int
	defaultPrecision int
	maxScale         int
	sized            bool
	mandatory        bool
	unbounded        string
	prefix           string
	suffix           string
	ansi             Code
	autoIncrement    bool
	// preferred marks the entry used for DDL when several share a code.
	preferred bool
	// fix replaces reported values the driver is known to get wrong.
	fix *correction
}

// correction holds values that win over the backend's report.
type correction struct {
	maxPrecision     int
	defaultPrecision int
	maxScale         int
	// notAutoIncrement clears a reported auto-increment flag.
	notAutoIncrement bool
}

const (
	pgMaxVarchar = 10485760
	pgMaxNumeric = 1000
)

func (d descriptor) ansiCode() Code {
	if d.ansi != 0 {
		return d.ansi
	}
	return d.code
}

const quote = "'"

// ansiTypes are the dialect-independent fallbacks.
var ansiTypes = []descriptor{
	{name: "character", code: CodeChar, kind: value.Text, aliases: []string{"char"}, sized: true, mandatory: true, defaultPrecision: 1, prefix: quote, suffix: quote},
	{name: "character varying", code: CodeVarchar, kind: value.Text, aliases: []string{"varchar", "char varying"}, sized: true, mandatory: true, defaultPrecision: 255, prefix: quote, suffix: quote},
	{name: "character large object", code: CodeClob, kind: value.Text, aliases: []string{"clob", "char large object"}, prefix: quote, suffix: quote},
	{name: "long varchar", code: CodeLongVarchar, kind: value.Text, prefix: quote, suffix: quote, ansi: CodeClob},
	{name: "national character", code: CodeNChar, kind: value.Text, aliases: []string{"nchar", "national char"}, sized: true, mandatory: true, defaultPrecision: 1, prefix: quote, suffix: quote},
	{name: "national character varying", code: CodeNVarchar, kind: value.Text, aliases: []string{"nvarchar", "national char varying"}, sized: true, mandatory: true, defaultPrecision: 255, prefix: quote, suffix: quote},
	{name: "national character large object", code: CodeNClob, kind: value.Text, aliases: []string{"nclob", "nchar large object"}, prefix: quote, suffix: quote},
	{name: "tinyint", code: CodeTinyInt, kind: value.Integer, maxPrecision: 3, ansi: CodeSmallInt},
	{name: "smallint", code: CodeSmallInt, kind: value.Integer, maxPrecision: 5},
	{name: "integer", code: CodeInteger, kind: value.Integer, aliases: []string{"int"}, maxPrecision: 10},
	{name: "bigint", code: CodeBigInt, kind: value.Integer, maxPrecision: 19},
	{name: "decimal", code: CodeDecimal, kind: value.Decimal, aliases: []string{"dec"}, sized: true, maxPrecision: 38, maxScale: 38, defaultPrecision: 18},
	{name: "numeric", code: CodeNumeric, kind: value.Decimal, sized: true, maxPrecision: 38, maxScale: 38, defaultPrecision: 18},
	{name: "real", code: CodeReal, kind: value.Float},
	{name: "float", code: CodeFloat, kind: value.Float},
	{name: "double precision", code: CodeDouble, kind: value.Float, aliases: []string{"double"}},
	{name: "boolean", code: CodeBoolean, kind: value.Boolean, aliases: []string{"bool"}},
	{name: "bit", code: CodeBit, kind: value.Boolean, ansi: CodeBoolean},
	{name: "date", code: CodeDate, kind: value.Date, prefix: "DATE '", suffix: quote},
	{name: "time", code: CodeTime, kind: value.Time, aliases: []string{"time without time zone"}, prefix: "TIME '", suffix: quote},
	{name: "timestamp", code: CodeTimestamp, kind: value.Timestamp, aliases: []string{"timestamp without time zone"}, prefix: "TIMESTAMP '", suffix: quote},
	{name: "time with time zone", code: CodeTimeTZ, kind: value.Time, prefix: quote, suffix: quote},
	{name: "timestamp with time zone", code: CodeTimestampTZ, kind: value.Timestamp, prefix: quote, suffix: quote},
	{name: "binary", code: CodeBinary, kind: value.Bytes, sized: true, mandatory: true, defaultPrecision: 1},
	{name: "binary varying", code: CodeVarbinary, kind: value.Bytes, aliases: []string{"varbinary"}, sized: true, mandatory: true, defaultPrecision: 255},
	{name: "binary large object", code: CodeBlob, kind: value.Bytes, aliases: []string{"blob"}},
	{name: "json", code: CodeJSON, kind: value.Text, prefix: quote, suffix: quote, ansi: CodeClob},
	{name: "uuid", code: CodeUUID, kind: value.Text, defaultPrecision: 36, prefix: quote, suffix: quote, ansi: CodeChar},
}

// vendorTypes holds per-dialect corrections. Names are the spelling emitted
// in DDL; aliases are the spellings drivers and catalogs report.
var vendorTypes = map[string][]descriptor{
	"postgres": {
		{name: "smallint", code: CodeSmallInt, kind: value.Integer, aliases: []string{"int2"}, maxPrecision: 5, preferred: true, fix: &correction{notAutoIncrement: true}},
		{name: "integer", code: CodeInteger, kind: value.Integer, aliases: []string{"int", "int4"}, maxPrecision: 10, preferred: true, fix: &correction{notAutoIncrement: true}},
		{name: "bigint", code: CodeBigInt, kind: value.Integer, aliases: []string{"int8"}, maxPrecision: 19, preferred: true, fix: &correction{notAutoIncrement: true}},
		{name: "serial", code: CodeInteger, kind: value.Integer, aliases: []string{"serial4"}, autoIncrement: true},
		{name: "bigserial", code: CodeBigInt, kind: value.Integer, aliases: []string{"serial8"}, autoIncrement: true},
		{name: "numeric", code: CodeNumeric, kind: value.Decimal, aliases: []string{"decimal"}, sized: true, maxPrecision: pgMaxNumeric, maxScale: pgMaxNumeric, preferred: true, fix: &correction{maxPrecision: pgMaxNumeric, maxScale: pgMaxNumeric}},
		{name: "real", code: CodeReal, kind: value.Float, aliases: []string{"float4"}, preferred: true},
		{name: "double precision", code: CodeDouble, kind: value.Float, aliases: []string{"float8", "float"}, preferred: true},
		{name: "money", code: CodeDecimal, kind: value.Decimal},
		{name: "boolean", code: CodeBoolean, kind: value.Boolean, aliases: []string{"bool"}, preferred: true},
		{name: "character", code: CodeChar, kind: value.Text, aliases: []string{"char", "bpchar"}, sized: true, mandatory: true, defaultPrecision: 1, maxPrecision: pgMaxVarchar, prefix: quote, suffix: quote, preferred: true, fix: &correction{maxPrecision: pgMaxVarchar, defaultPrecision: 1}},
		{name: "character varying", code: CodeVarchar, kind: value.Text, aliases: []string{"varchar"}, sized: true, maxPrecision: pgMaxVarchar, prefix: quote, suffix: quote, preferred: true, fix: &correction{maxPrecision: pgMaxVarchar}},
		{name: "text", code: CodeClob, kind: value.Text, prefix: quote, suffix: quote, preferred: true},
		{name: "name", code: CodeVarchar, kind: value.Text, maxPrecision: 63, prefix: quote, suffix: quote},
		{name: "bytea", code: CodeVarbinary, kind: value.Bytes, preferred: true},
		{name: "date", code: CodeDate, kind: value.Date, prefix: "DATE '", suffix: quote, preferred: true},
		{name: "time without time zone", code: CodeTime, kind: value.Time, aliases: []string{"time"}, prefix: "TIME '", suffix: quote, preferred: true},
		{name: "time with time zone", code: CodeTimeTZ, kind: value.Time, aliases: []string{"timetz"}, prefix: quote, suffix: quote, preferred: true},
		{name: "timestamp without time zone", code: CodeTimestamp, kind: value.Timestamp, aliases: []string{"timestamp"}, prefix: "TIMESTAMP '", suffix: quote, preferred: true},
		{name: "timestamp with time zone", code: CodeTimestampTZ, kind: value.Timestamp, aliases: []string{"timestamptz"}, prefix: quote, suffix: quote, preferred: true},
		{name: "uuid", code: CodeUUID, kind: value.Text, defaultPrecision: 36, prefix: quote, suffix: quote, ansi: CodeChar, preferred: true},
		{name: "json", code: CodeJSON, kind: value.Text, prefix: quote, suffix: quote, ansi: CodeClob, preferred: true},
		{name: "jsonb", code: CodeJSON, kind: value.Text, prefix: quote, suffix: quote, ansi: CodeClob},
		{name: "xml", code: CodeOther, kind: value.Text, prefix: quote, suffix: quote, ansi: CodeClob},
		{name: "inet", code: CodeOther, kind: value.Text, prefix: quote, suffix: quote, ansi: CodeVarchar},
		{name: "cidr", code: CodeOther, kind: value.Text, prefix: quote, suffix: quote, ansi: CodeVarchar},
		{name: "macaddr", code: CodeOther, kind: value.Text, prefix: quote, suffix: quote, ansi: CodeChar},
		{name: "oid", code: CodeBigInt, kind: value.Integer},
	},
	"mssql": {
		{name: "tinyint", code: CodeTinyInt, kind: value.Integer, maxPrecision: 3, preferred: true},
		{name: "smallint", code: CodeSmallInt, kind: value.Integer, maxPrecision: 5, preferred: true},
		{name: "int", code: CodeInteger, kind: value.Integer, aliases: []string{"integer"}, maxPrecision: 10, preferred: true},
		{name: "bigint", code: CodeBigInt, kind: value.Integer, maxPrecision: 19, preferred: true},
		{name: "decimal", code: CodeDecimal, kind: value.Decimal, aliases: []string{"dec"}, sized: true, maxPrecision: 38, maxScale: 38, defaultPrecision: 18, preferred: true},
		{name: "numeric", code: CodeNumeric, kind: value.Decimal, sized: true, maxPrecision: 38, maxScale: 38, defaultPrecision: 18, preferred: true},
		{name: "money", code: CodeDecimal, kind: value.Decimal, maxPrecision: 19, maxScale: 4},
		{name: "smallmoney", code: CodeDecimal, kind: value.Decimal, maxPrecision: 10, maxScale: 4},
		{name: "real", code: CodeReal, kind: value.Float, preferred: true},
		{name: "float", code: CodeDouble, kind: value.Float, aliases: []string{"double precision"}, preferred: true},
		{name: "bit", code: CodeBit, kind: value.Boolean, ansi: CodeBoolean, preferred: true},
		{name: "char", code: CodeChar, kind: value.Text, aliases: []string{"character"}, sized: true, mandatory: true, defaultPrecision: 1, maxPrecision: 8000, prefix: quote, suffix: quote, preferred: true},
		{name: "varchar", code: CodeVarchar, kind: value.Text, aliases: []string{"character varying"}, sized: true, mandatory: true, unbounded: "max", maxPrecision: 8000, prefix: quote, suffix: quote, preferred: true},
		{name: "text", code: CodeLongVarchar, kind: value.Text, prefix: quote, suffix: quote, ansi: CodeClob},
		{name: "nchar", code: CodeNChar, kind: value.Text, sized: true, mandatory: true, defaultPrecision: 1, maxPrecision: 4000, prefix: "N'", suffix: quote, preferred: true},
		{name: "nvarchar", code: CodeNVarchar, kind: value.Text, sized: true, mandatory: true, unbounded: "max", maxPrecision: 4000, prefix: "N'", suffix: quote, preferred: true},
		{name: "ntext", code: CodeLongNVarchar, kind: value.Text, prefix: "N'", suffix: quote, ansi: CodeNClob},
		{name: "sysname", code: CodeNVarchar, kind: value.Text, maxPrecision: 128, prefix: "N'", suffix: quote},
		{name: "binary", code: CodeBinary, kind: value.Bytes, sized: true, mandatory: true, defaultPrecision: 1, maxPrecision: 8000, preferred: true},
		{name: "varbinary", code: CodeVarbinary, kind: value.Bytes, sized: true, mandatory: true, unbounded: "max", maxPrecision: 8000, preferred: true},
		{name: "image", code: CodeLongVarbinary, kind: value.Bytes, ansi: CodeBlob},
		{name: "date", code: CodeDate, kind: value.Date, prefix: quote, suffix: quote, preferred: true},
		{name: "time", code: CodeTime, kind: value.Time, prefix: quote, suffix: quote, preferred: true},
		{name: "datetime2", code: CodeTimestamp, kind: value.Timestamp, prefix: quote, suffix: quote, preferred: true},
		{name: "datetime", code: CodeTimestamp, kind: value.Timestamp, prefix: quote, suffix: quote},
		{name: "smalldatetime", code: CodeTimestamp, kind: value.Timestamp, prefix: quote, suffix: quote},
		{name: "datetimeoffset", code: CodeTimestampTZ, kind: value.Timestamp, prefix: quote, suffix: quote, preferred: true},
		{name: "uniqueidentifier", code: CodeUUID, kind: value.Text, defaultPrecision: 36, prefix: quote, suffix: quote, ansi: CodeChar, preferred: true},
		{name: "xml", code: CodeOther, kind: value.Text, prefix: "N'", suffix: quote, ansi: CodeClob},
		// rowversion is reported under its legacy name
		{name: "timestamp", code: CodeBinary, kind: value.Bytes, aliases: []string{"rowversion"}},
	},
	"mysql": {
		{name: "tinyint", code: CodeTinyInt, kind: value.Integer, maxPrecision: 3, preferred: true},
		{name: "smallint", code: CodeSmallInt, kind: value.Integer, maxPrecision: 5, preferred: true},
		{name: "mediumint", code: CodeInteger, kind: value.Integer, maxPrecision: 7},
		{name: "int", code: CodeInteger, kind: value.Integer, aliases: []string{"integer"}, maxPrecision: 10, preferred: true},
		{name: "bigint", code: CodeBigInt, kind: value.Integer, maxPrecision: 19, preferred: true},
		{name: "decimal", code: CodeDecimal, kind: value.Decimal, aliases: []string{"dec", "numeric", "fixed"}, sized: true, maxPrecision: 65, maxScale: 30, defaultPrecision: 10, preferred: true},
		{name: "float", code: CodeReal, kind: value.Float, preferred: true},
		{name: "double", code: CodeDouble, kind: value.Float, aliases: []string{"double precision", "real"}, preferred: true},
		{name: "boolean", code: CodeBoolean, kind: value.Boolean, aliases: []string{"bool"}, preferred: true},
		{name: "bit", code: CodeBit, kind: value.Bytes, sized: true, maxPrecision: 64},
		{name: "char", code: CodeChar, kind: value.Text, aliases: []string{"character"}, sized: true, defaultPrecision: 1, maxPrecision: 255, prefix: quote, suffix: quote, preferred: true},
		{name: "varchar", code: CodeVarchar, kind: value.Text, aliases: []string{"character varying"}, sized: true, mandatory: true, defaultPrecision: 255, maxPrecision: 16383, prefix: quote, suffix: quote, preferred: true},
		{name: "tinytext", code: CodeVarchar, kind: value.Text, maxPrecision: 255, prefix: quote, suffix: quote},
		{name: "text", code: CodeLongVarchar, kind: value.Text, maxPrecision: 65535, prefix: quote, suffix: quote, ansi: CodeClob, preferred: true},
		{name: "mediumtext", code: CodeLongVarchar, kind: value.Text, maxPrecision: 16777215, prefix: quote, suffix: quote, ansi: CodeClob},
		{name: "longtext", code: CodeClob, kind: value.Text, prefix: quote, suffix: quote, preferred: true},
		{name: "binary", code: CodeBinary, kind: value.Bytes, sized: true, defaultPrecision: 1, maxPrecision: 255, preferred: true},
		{name: "varbinary", code: CodeVarbinary, kind: value.Bytes, sized: true, mandatory: true, defaultPrecision: 255, maxPrecision: 65535, preferred: true},
		{name: "tinyblob", code: CodeVarbinary, kind: value.Bytes, maxPrecision: 255},
		{name: "blob", code: CodeLongVarbinary, kind: value.Bytes, maxPrecision: 65535, ansi: CodeBlob},
		{name: "mediumblob", code: CodeLongVarbinary, kind: value.Bytes, maxPrecision: 16777215, ansi: CodeBlob},
		{name: "longblob", code: CodeBlob, kind: value.Bytes, preferred: true},
		{name: "date", code: CodeDate, kind: value.Date, prefix: quote, suffix: quote, preferred: true},
		{name: "time", code: CodeTime, kind: value.Time, prefix: quote, suffix: quote, preferred: true},
		{name: "datetime", code: CodeTimestamp, kind: value.Timestamp, prefix: quote, suffix: quote, preferred: true},
		{name: "timestamp", code: CodeTimestamp, kind: value.Timestamp, prefix: quote, suffix: quote},
		{name: "year", code: CodeSmallInt, kind: value.Integer, maxPrecision: 4},
		{name: "json", code: CodeJSON, kind: value.Text, prefix: quote, suffix: quote, ansi: CodeClob, preferred: true},
		{name: "enum", code: CodeOther, kind: value.Text, prefix: quote, suffix: quote, ansi: CodeVarchar},
		{name: "set", code: CodeOther, kind: value.Text, prefix: quote, suffix: quote, ansi: CodeVarchar},
	},
	"sqlite": {
		{name: "integer", code: CodeInteger, kind: value.Integer, aliases: []string{"int"}, preferred: true},
		{name: "bigint", code: CodeBigInt, kind: value.Integer, preferred: true},
		{name: "smallint", code: CodeSmallInt, kind: value.Integer, preferred: true},
		{name: "tinyint", code: CodeTinyInt, kind: value.Integer},
		{name: "real", code: CodeReal, kind: value.Float, preferred: true},
		{name: "double", code: CodeDouble, kind: value.Float, aliases: []string{"double precision", "float"}, preferred: true},
		{name: "numeric", code: CodeNumeric, kind: value.Decimal, sized: true, preferred: true},
		{name: "decimal", code: CodeDecimal, kind: value.Decimal, sized: true, preferred: true},
		{name: "boolean", code: CodeBoolean, kind: value.Boolean, aliases: []string{"bool"}, preferred: true},
		{name: "char", code: CodeChar, kind: value.Text, aliases: []string{"character"}, sized: true, prefix: quote, suffix: quote, preferred: true},
		{name: "varchar", code: CodeVarchar, kind: value.Text, aliases: []string{"character varying", "nvarchar"}, sized: true, prefix: quote, suffix: quote, preferred: true},
		{name: "text", code: CodeClob, kind: value.Text, aliases: []string{"clob"}, prefix: quote, suffix: quote, preferred: true},
		{name: "blob", code: CodeBlob, kind: value.Bytes, preferred: true},
		{name: "date", code: CodeDate, kind: value.Date, prefix: quote, suffix: quote, preferred: true},
		{name: "time", code: CodeTime, kind: value.Time, prefix: quote, suffix: quote, preferred: true},
		{name: "datetime", code: CodeTimestamp, kind: value.Timestamp, prefix: quote, suffix: quote},
		{name: "timestamp", code: CodeTimestamp, kind: value.Timestamp, prefix: quote, suffix: quote, preferred: true},
	},
}

// fallbacks orders the codes tried when a backend has no entry for a code.
var fallbacks = map[Code][]Code{
	CodeBit:           {CodeBoolean, CodeTinyInt, CodeSmallInt},
	CodeBoolean:       {CodeBit, CodeTinyInt, CodeSmallInt},
	CodeTinyInt:       {CodeSmallInt, CodeInteger},
	CodeSmallInt:      {CodeInteger},
	CodeInteger:       {CodeBigInt},
	CodeBigInt:        {CodeNumeric, CodeDecimal},
	CodeReal:          {CodeFloat, CodeDouble},
	CodeFloat:         {CodeDouble, CodeReal},
	CodeDouble:        {CodeFloat, CodeReal},
	CodeNumeric:       {CodeDecimal},
	CodeDecimal:       {CodeNumeric},
	CodeChar:          {CodeNChar, CodeVarchar},
	CodeNChar:         {CodeChar, CodeNVarchar, CodeVarchar},
	CodeVarchar:       {CodeNVarchar, CodeLongVarchar, CodeClob},
	CodeNVarchar:      {CodeVarchar, CodeLongNVarchar, CodeNClob, CodeClob},
	CodeLongVarchar:   {CodeClob, CodeVarchar},
	CodeLongNVarchar:  {CodeNClob, CodeLongVarchar, CodeClob, CodeNVarchar},
	CodeClob:          {CodeLongVarchar, CodeNClob, CodeVarchar},
	CodeNClob:         {CodeClob, CodeLongNVarchar, CodeNVarchar},
	CodeBinary:        {CodeVarbinary, CodeBlob},
	CodeVarbinary:     {CodeLongVarbinary, CodeBlob, CodeBinary},
	CodeLongVarbinary: {CodeBlob, CodeVarbinary},
	CodeBlob:          {CodeLongVarbinary, CodeVarbinary},
	CodeTimeTZ:        {CodeTime},
	CodeTimestampTZ:   {CodeTimestamp},
	CodeJSON:          {CodeClob, CodeLongVarchar, CodeVarchar},
	CodeUUID:          {CodeChar, CodeVarchar},
	CodeOther:         {CodeVarchar, CodeClob},
}

// kindOfCode is used when neither the report nor the built-in table gives a
// value kind.
func kindOfCode(c Code) value.Kind {
	switch c {
	case CodeTinyInt, CodeSmallInt, CodeInteger, CodeBigInt:
		return value.Integer
	case CodeReal, CodeFloat, CodeDouble:
		return value.Float
	case CodeNumeric, CodeDecimal:
		return value.Decimal
	case CodeBit, CodeBoolean:
		return value.Boolean
	case CodeBinary, CodeVarbinary, CodeLongVarbinary, CodeBlob:
		return value.Bytes
	case CodeDate:
		return value.Date
	case CodeTime, CodeTimeTZ:
		return value.Time
	case CodeTimestamp, CodeTimestampTZ:
		return value.Timestamp
	}
	return value.Text
}

// Dialects lists the dialects that have a built-in correction table.
func Dialects() []string {
	return []string{"mssql", "mysql", "postgres", "sqlite"}
}

// StaticReport returns a type report made of the built-in table of a
// dialect, for backends that expose no type list.
func StaticReport(dialect string) []ReportedType {
	descs := vendorTypes[dialect]
	out := make([]ReportedType, 0, len(descs))
	for _, d := range descs {
		out = append(out, ReportedType{Name: d.name, Code: d.code})
	}
	return out
}
