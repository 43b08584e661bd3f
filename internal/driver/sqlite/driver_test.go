package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/johndauphine/tabxfer/internal/dbconfig"
	"github.com/johndauphine/tabxfer/internal/driver"
	"github.com/johndauphine/tabxfer/internal/respath"
)

const schema = `
CREATE TABLE customers (
	id INTEGER PRIMARY KEY,
	email VARCHAR(120) NOT NULL UNIQUE,
	name TEXT
);
CREATE TABLE orders (
	order_no INTEGER NOT NULL,
	line INTEGER NOT NULL,
	customer_id INTEGER REFERENCES customers,
	amount DECIMAL(10,2),
	total DECIMAL(10,2) GENERATED ALWAYS AS (amount * 2) VIRTUAL,
	PRIMARY KEY (order_no, line)
);
CREATE VIEW big_orders AS SELECT * FROM orders WHERE amount > 100;
`

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &dbconfig.ConnectionConfig{Type: "sqlite", Database: filepath.Join(t.TempDir(), "test.db")}
	db, err := (&Driver{}).Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
	return db
}

func TestDriverRegistration(t *testing.T) {
	d, err := driver.Get("sqlite3")
	if err != nil {
		t.Fatalf("Failed to get sqlite driver: %v", err)
	}
	if d.Name() != "sqlite" {
		t.Errorf("Expected driver name 'sqlite', got %q", d.Name())
	}
}

func TestBuildDSN(t *testing.T) {
	got := (&Dialect{}).BuildDSN(&dbconfig.ConnectionConfig{Database: "/tmp/a.db"})
	want := "file:/tmp/a.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if got != want {
		t.Errorf("BuildDSN = %q, want %q", got, want)
	}
}

func TestObjects(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	in := &Introspector{}
	scheme := (&Driver{}).Capabilities().Scheme("", "")

	tests := []struct {
		glob string
		want []string
	}{
		{"*", []string{"big_orders", "customers", "orders"}},
		{"*orders", []string{"big_orders", "orders"}},
		{"customers", []string{"customers"}},
		{"missing", nil},
	}
	for _, tt := range tests {
		t.Run(tt.glob, func(t *testing.T) {
			p, err := scheme.Parse(tt.glob)
			if err != nil {
				t.Fatal(err)
			}
			objs, err := in.Objects(ctx, db, driver.Filter{Object: scheme.CompileGlob(p.Object())})
			if err != nil {
				t.Fatal(err)
			}
			var names []string
			for _, o := range objs {
				names = append(names, o.Name)
			}
			if !reflect.DeepEqual(names, tt.want) {
				t.Errorf("objects = %v, want %v", names, tt.want)
			}
		})
	}
}

func TestColumns(t *testing.T) {
	db := openTestDB(t)
	in := &Introspector{}
	ctx := context.Background()

	cols, err := in.Columns(ctx, db, driver.ObjectInfo{Name: "customers"})
	if err != nil {
		t.Fatal(err)
	}
	if len(cols) != 3 {
		t.Fatalf("got %d columns", len(cols))
	}
	if !cols[0].AutoIncrement || cols[0].Nullable {
		t.Errorf("id = %+v, want rowid alias", cols[0])
	}
	if cols[1].DataType != "VARCHAR(120)" || cols[1].Nullable {
		t.Errorf("email = %+v", cols[1])
	}

	cols, err = in.Columns(ctx, db, driver.ObjectInfo{Name: "orders"})
	if err != nil {
		t.Fatal(err)
	}
	if len(cols) != 5 {
		t.Fatalf("got %d columns", len(cols))
	}
	if cols[0].AutoIncrement {
		t.Error("composite key column is not a rowid alias")
	}
	if !cols[4].Generated {
		t.Errorf("total = %+v, want generated", cols[4])
	}
}

func TestKeys(t *testing.T) {
	db := openTestDB(t)
	in := &Introspector{}
	ctx := context.Background()
	orders := driver.ObjectInfo{Name: "orders"}
	customers := driver.ObjectInfo{Name: "customers"}

	pk, err := in.PrimaryKey(ctx, db, orders)
	if err != nil {
		t.Fatal(err)
	}
	if pk == nil || pk.Name != "pk_orders" || !reflect.DeepEqual(pk.Columns, []string{"order_no", "line"}) {
		t.Errorf("PrimaryKey = %+v", pk)
	}

	uks, err := in.UniqueKeys(ctx, db, customers)
	if err != nil {
		t.Fatal(err)
	}
	if len(uks) != 1 || !reflect.DeepEqual(uks[0].Columns, []string{"email"}) {
		t.Errorf("UniqueKeys = %+v", uks)
	}

	fks, err := in.ForeignKeys(ctx, db, orders)
	if err != nil {
		t.Fatal(err)
	}
	if len(fks) != 1 {
		t.Fatalf("ForeignKeys = %+v", fks)
	}
	fk := fks[0]
	if fk.Name != "fk_orders_0" || fk.Referenced.Name != "customers" ||
		!reflect.DeepEqual(fk.RefColumns, []string{"id"}) {
		t.Errorf("foreign key = %+v", fk)
	}

	refs, err := in.ReferencingKeys(ctx, db, customers)
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 1 || refs[0].Table.Name != "orders" {
		t.Errorf("ReferencingKeys = %+v", refs)
	}
}

func TestErrorCode(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Exec(`INSERT INTO orders (order_no, line, customer_id) VALUES (1, 1, 42)`)
	if err == nil {
		t.Fatal("expected a foreign key violation")
	}
	if _, ok := (&Dialect{}).ErrorCode(err); !ok {
		t.Errorf("no error code in %v", err)
	}
}

func TestSchemeIsObjectOnly(t *testing.T) {
	s := (&Driver{}).Capabilities().Scheme("", "")
	if _, err := s.Parse("main.orders"); err == nil {
		t.Error("two segments must be rejected")
	}
	p, err := s.Resolve("orders")
	if err != nil {
		t.Fatal(err)
	}
	if got := s.QualifiedName(p); got != `"orders"` {
		t.Errorf("QualifiedName = %s", got)
	}
	if s.CompileGlob(p.Object()).Mode != respath.MatchExact {
		t.Error("literal must compile to an exact match")
	}
}
