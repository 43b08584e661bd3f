package typemap

import (
	"errors"
	"testing"

	"github.com/johndauphine/tabxfer/internal/value"
)

func TestSplitSpec(t *testing.T) {
	tests := []struct {
		spec      string
		name      string
		precision int
		scale     int
	}{
		{"VARCHAR(20)", "varchar", 20, 0},
		{"numeric(10, 2)", "numeric", 10, 2},
		{"  Double   Precision ", "double precision", 0, 0},
		{"int(10) unsigned", "int", 10, 0},
		{"varchar(10) binary", "varchar binary", 10, 0},
		{"text", "text", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			name, p, s := SplitSpec(tt.spec)
			if name != tt.name || p != tt.precision || s != tt.scale {
				t.Errorf("SplitSpec(%q) = %q, %d, %d; want %q, %d, %d",
					tt.spec, name, p, s, tt.name, tt.precision, tt.scale)
			}
		})
	}
}

func TestBuildFoldsAliases(t *testing.T) {
	c, err := Build("postgres", []ReportedType{
		{Name: "int4"},
		{Name: "integer"},
		{Name: "int8"},
		{Name: "varchar"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if n := len(c.Entries()); n != 3 {
		t.Fatalf("got %d entries, want 3", n)
	}
	a, err := c.ByName("INT4")
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.ByName("integer")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("int4 and integer resolved to different entries: %s, %s", a, b)
	}
	if a.Code != CodeInteger || a.Kind != value.Integer {
		t.Errorf("integer entry = %s", a)
	}
}

func TestReportedFieldsWin(t *testing.T) {
	c, err := Build("mssql", []ReportedType{
		{Name: "varchar", MaxPrecision: 4000, LiteralPrefix: "N'"},
	})
	if err != nil {
		t.Fatal(err)
	}
	e, err := c.ByName("varchar")
	if err != nil {
		t.Fatal(err)
	}
	if e.MaxPrecision != 4000 {
		t.Errorf("max precision = %d, want reported 4000", e.MaxPrecision)
	}
	if e.LiteralPrefix != "N'" {
		t.Errorf("literal prefix = %q, want reported N'", e.LiteralPrefix)
	}
	if !e.MandatorySize || e.Unbounded != "max" {
		t.Errorf("missing fields not filled from built-in table: %+v", e)
	}
}

func TestCorrectionsOverrideReport(t *testing.T) {
	c, err := Build("postgres", []ReportedType{
		{Name: "varchar", MaxPrecision: 1},
		{Name: "bpchar", MaxPrecision: 1, DefaultPrecision: 0},
		{Name: "int4", AutoIncrement: true},
		{Name: "numeric", MaxPrecision: 131089, MaxScale: 16383},
		{Name: "serial", AutoIncrement: true},
		{Name: "text", MaxPrecision: 2147483647},
	})
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name          string
		maxPrecision  int
		defPrecision  int
		maxScale      int
		autoIncrement bool
	}{
		{"varchar", 10485760, 0, 0, false},
		{"char", 10485760, 1, 0, false},
		{"integer", 10, 0, 0, false},
		{"numeric", 1000, 0, 1000, false},
		{"serial", 0, 0, 0, true},
		// no correction: the report stands
		{"text", 2147483647, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := c.ByName(tt.name)
			if err != nil {
				t.Fatal(err)
			}
			if e.MaxPrecision != tt.maxPrecision || e.DefaultPrecision != tt.defPrecision ||
				e.MaxScale != tt.maxScale || e.AutoIncrement != tt.autoIncrement {
				t.Errorf("%s = max %d default %d scale %d auto %v; want %d %d %d %v",
					tt.name, e.MaxPrecision, e.DefaultPrecision, e.MaxScale, e.AutoIncrement,
					tt.maxPrecision, tt.defPrecision, tt.maxScale, tt.autoIncrement)
			}
		})
	}
}

func TestByCodeFallback(t *testing.T) {
	tests := []struct {
		dialect string
		code    Code
		want    string
	}{
		{"postgres", CodeTinyInt, "smallint"},
		{"postgres", CodeBit, "boolean"},
		{"postgres", CodeNVarchar, "character varying"},
		{"postgres", CodeBlob, "bytea"},
		{"mssql", CodeBoolean, "bit"},
		{"mssql", CodeClob, "text"},
		{"mssql", CodeTimestampTZ, "datetimeoffset"},
		{"mysql", CodeTimestamp, "datetime"},
		{"mysql", CodeUUID, "char"},
		{"sqlite", CodeTimestampTZ, "timestamp"},
		{"sqlite", CodeJSON, "text"},
	}
	for _, tt := range tests {
		t.Run(tt.dialect+"/"+tt.code.String(), func(t *testing.T) {
			c, err := Build(tt.dialect, nil)
			if err != nil {
				t.Fatal(err)
			}
			e, err := c.ByCode(tt.code)
			if err != nil {
				t.Fatal(err)
			}
			if e.Name != tt.want {
				t.Errorf("ByCode(%s) = %s, want %s", tt.code, e.Name, tt.want)
			}
		})
	}
}

func TestByNameFallsBackToANSI(t *testing.T) {
	c, err := Build("postgres", nil)
	if err != nil {
		t.Fatal(err)
	}
	e, err := c.ByName("national character varying(30)")
	if err != nil {
		t.Fatal(err)
	}
	if e.Name != "character varying" {
		t.Errorf("got %s, want character varying", e.Name)
	}

	_, err = c.ByName("geometry")
	var ute *UnknownTypeError
	if !errors.As(err, &ute) {
		t.Fatalf("expected UnknownTypeError, got %v", err)
	}
	if ute.Name != "geometry" {
		t.Errorf("error names %q", ute.Name)
	}
}

func TestByNameStripsModifiers(t *testing.T) {
	c, err := Build("mysql", nil)
	if err != nil {
		t.Fatal(err)
	}
	e, err := c.ByName("bigint unsigned")
	if err != nil {
		t.Fatal(err)
	}
	if e.Code != CodeBigInt {
		t.Errorf("got %s", e)
	}
}

func TestRender(t *testing.T) {
	c, err := Build("mssql", nil)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name      string
		precision int
		scale     int
		want      string
	}{
		{"varchar", 20, 0, "varchar(20)"},
		{"varchar", 0, 0, "varchar(max)"},
		{"nvarchar", 10000, 0, "nvarchar(max)"},
		{"char", 0, 0, "char(1)"},
		{"decimal", 10, 2, "decimal(10,2)"},
		{"int", 10, 0, "int"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			e, err := c.ByName(tt.name)
			if err != nil {
				t.Fatal(err)
			}
			if got := e.Render(tt.precision, tt.scale); got != tt.want {
				t.Errorf("Render(%d, %d) = %q, want %q", tt.precision, tt.scale, got, tt.want)
			}
		})
	}
}

func TestANSI(t *testing.T) {
	e := ANSI(CodeVarchar)
	if e == nil || e.Name != "character varying" || !e.MandatorySize {
		t.Fatalf("ANSI(VARCHAR) = %+v", e)
	}
	if ANSI(Code(42)) != nil {
		t.Error("expected nil for unknown code")
	}
}
