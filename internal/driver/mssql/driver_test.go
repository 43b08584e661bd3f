package mssql

import (
	"fmt"
	"net/url"
	"testing"

	mssql "github.com/microsoft/go-mssqldb"

	"github.com/johndauphine/tabxfer/internal/dbconfig"
	"github.com/johndauphine/tabxfer/internal/driver"
)

func TestDriverRegistration(t *testing.T) {
	// The driver should be registered via init()
	d, err := driver.Get("mssql")
	if err != nil {
		t.Fatalf("Failed to get mssql driver: %v", err)
	}

	if d.Name() != "mssql" {
		t.Errorf("Expected driver name 'mssql', got %q", d.Name())
	}

	// Test aliases
	for _, alias := range []string{"sqlserver", "sql-server"} {
		d, err := driver.Get(alias)
		if err != nil {
			t.Errorf("Failed to get driver by alias %q: %v", alias, err)
			continue
		}
		if d.Name() != "mssql" {
			t.Errorf("Expected driver name 'mssql' for alias %q, got %q", alias, d.Name())
		}
	}
}

func TestDialect(t *testing.T) {
	dialect := &Dialect{}

	tests := []struct {
		name     string
		method   func() string
		expected string
	}{
		{"DBType", dialect.DBType, "mssql"},
		{"QuoteIdentifier", func() string { return dialect.QuoteIdentifier("test") }, `[test]`},
		{"ParameterPlaceholder", func() string { return dialect.ParameterPlaceholder(1) }, "@p1"},
		{"BoolLiteral", func() string { return dialect.BoolLiteral(false) }, "0"},
		{"BytesLiteral", func() string { return dialect.BytesLiteral([]byte{1, 0xab}) }, "0x01AB"},
		{"AnyRowQuery", func() string { return dialect.AnyRowQuery("[dbo].[t]") }, "SELECT TOP 1 1 FROM [dbo].[t]"},
		{"IdentityClause", dialect.IdentityClause, "IDENTITY(1,1)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.method()
			if result != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestAvailableDrivers(t *testing.T) {
	available := driver.Available()
	found := false
	for _, name := range available {
		if name == "mssql" {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("MSSQL driver not in available list: %v", available)
	}
}

func TestQuoteIdentifierWithSpecialChars(t *testing.T) {
	dialect := &Dialect{}

	tests := []struct {
		input    string
		expected string
	}{
		{"simple", "[simple]"},
		{"with space", "[with space]"},
		{"with]bracket", "[with]]bracket]"},
		{"schema.table", "[schema.table]"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := dialect.QuoteIdentifier(tt.input)
			if result != tt.expected {
				t.Errorf("QuoteIdentifier(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestBuildDSN(t *testing.T) {
	off := false
	tests := []struct {
		name    string
		cfg     dbconfig.ConnectionConfig
		want    map[string]string
		wantPwd string
	}{
		{
			name: "defaults",
			cfg:  dbconfig.ConnectionConfig{Host: "db", User: "sa", Password: "p@ss;word", Database: "Sales"},
			want: map[string]string{"database": "Sales", "encrypt": "true"},
			wantPwd: "p@ss;word",
		},
		{
			name: "explicit options",
			cfg: dbconfig.ConnectionConfig{Host: "db", Port: 14330, User: "sa", Password: "x", Database: "Sales",
				Encrypt: &off, TrustServerCert: true, PacketSize: 32767},
			want: map[string]string{"encrypt": "false", "TrustServerCertificate": "true", "packet size": "32767"},
			wantPwd: "x",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn := (&Dialect{}).BuildDSN(&tt.cfg)
			u, err := url.Parse(dsn)
			if err != nil {
				t.Fatalf("unparseable DSN %q: %v", dsn, err)
			}
			if u.Scheme != "sqlserver" {
				t.Errorf("scheme = %q", u.Scheme)
			}
			if pwd, _ := u.User.Password(); pwd != tt.wantPwd {
				t.Errorf("password = %q, want %q", pwd, tt.wantPwd)
			}
			q := u.Query()
			for k, v := range tt.want {
				if q.Get(k) != v {
					t.Errorf("%s = %q, want %q", k, q.Get(k), v)
				}
			}
		})
	}
}

func TestErrorCode(t *testing.T) {
	err := fmt.Errorf("insert: %w", mssql.Error{Number: 2627, Message: "Violation of PRIMARY KEY constraint"})
	code, ok := (&Dialect{}).ErrorCode(err)
	if !ok || code != "2627" {
		t.Errorf("ErrorCode = %q, %v", code, ok)
	}
}

func TestCatalogInStatements(t *testing.T) {
	s := (&Driver{}).Capabilities().Scheme("Sales", "dbo")
	p, err := s.Resolve("Orders")
	if err != nil {
		t.Fatal(err)
	}
	if got := s.QualifiedName(p); got != "[Sales].[dbo].[Orders]" {
		t.Errorf("QualifiedName = %s", got)
	}
}
