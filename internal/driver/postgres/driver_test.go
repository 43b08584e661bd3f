package postgres

import (
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/johndauphine/tabxfer/internal/dbconfig"
	"github.com/johndauphine/tabxfer/internal/driver"
)

func TestDriverRegistration(t *testing.T) {
	// The driver should be registered via init()
	d, err := driver.Get("postgres")
	if err != nil {
		t.Fatalf("Failed to get postgres driver: %v", err)
	}

	if d.Name() != "postgres" {
		t.Errorf("Expected driver name 'postgres', got %q", d.Name())
	}

	for _, alias := range []string{"postgresql", "PG"} {
		d, err := driver.Get(alias)
		if err != nil {
			t.Errorf("Failed to get driver by alias %q: %v", alias, err)
			continue
		}
		if d.Name() != "postgres" {
			t.Errorf("Expected driver name 'postgres' for alias %q, got %q", alias, d.Name())
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
		{"DBType", dialect.DBType, "postgres"},
		{"QuoteIdentifier", func() string { return dialect.QuoteIdentifier("test") }, `"test"`},
		{"QuoteIdentifierEscapes", func() string { return dialect.QuoteIdentifier(`a"b`) }, `"a""b"`},
		{"ParameterPlaceholder", func() string { return dialect.ParameterPlaceholder(3) }, "$3"},
		{"BoolLiteral", func() string { return dialect.BoolLiteral(true) }, "TRUE"},
		{"BytesLiteral", func() string { return dialect.BytesLiteral([]byte{0xca, 0xfe}) }, `'\xCAFE'::bytea`},
		{"AnyRowQuery", func() string { return dialect.AnyRowQuery(`"t"`) }, `SELECT 1 FROM "t" LIMIT 1`},
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

func TestPostgresDSNURLEncoding(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		password string
		database string
		wantUser string
		wantPass string
		wantDB   string
	}{
		{"plain credentials", "admin", "secret", "mydb", "admin", "secret", "mydb"},
		{"password with @", "admin", "pass@word", "mydb", "admin", "pass%40word", "mydb"},
		{"password with colon", "admin", "pass:word", "mydb", "admin", "pass%3Aword", "mydb"},
		{"user with @", "user@domain", "secret", "mydb", "user%40domain", "secret", "mydb"},
		{"database with spaces", "admin", "secret", "my database", "admin", "secret", "my%20database"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &dbconfig.ConnectionConfig{Host: "localhost", Port: 5432,
				User: tt.user, Password: tt.password, Database: tt.database}
			dsn := (&Dialect{}).BuildDSN(cfg)

			if !strings.Contains(dsn, "://"+tt.wantUser+":") {
				t.Errorf("DSN missing encoded user %q in %q", tt.wantUser, dsn)
			}
			if !strings.Contains(dsn, ":"+tt.wantPass+"@") {
				t.Errorf("DSN missing encoded password %q in %q", tt.wantPass, dsn)
			}
			if !strings.Contains(dsn, "/"+tt.wantDB+"?") {
				t.Errorf("DSN missing encoded database %q in %q", tt.wantDB, dsn)
			}
			if !strings.Contains(dsn, "sslmode=require") {
				t.Errorf("DSN missing default sslmode in %q", dsn)
			}
		})
	}
}

func TestErrorCode(t *testing.T) {
	d := &Dialect{}
	wrapped := fmt.Errorf("exec: %w", &pgconn.PgError{Code: "23505", Message: "duplicate key"})
	if code, ok := d.ErrorCode(wrapped); !ok || code != "23505" {
		t.Errorf("ErrorCode = %q, %v", code, ok)
	}
	if _, ok := d.ErrorCode(fmt.Errorf("plain")); ok {
		t.Error("plain error has no code")
	}
}

func TestCapabilities(t *testing.T) {
	c := (&Driver{}).Capabilities()
	if c.NamespaceWidth != 3 || c.CatalogInStatements {
		t.Errorf("namespace = %d, catalog in statements = %v", c.NamespaceWidth, c.CatalogInStatements)
	}
	s := c.Scheme("app", "public")
	p, err := s.Resolve("Orders")
	if err != nil {
		t.Fatal(err)
	}
	if got := s.QualifiedName(p); got != `"public"."orders"` {
		t.Errorf("QualifiedName = %s", got)
	}
}
