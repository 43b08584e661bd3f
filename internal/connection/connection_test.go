package connection

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/johndauphine/tabxfer/internal/dbconfig"
	"github.com/johndauphine/tabxfer/internal/driver"
	_ "github.com/johndauphine/tabxfer/internal/driver/postgres"
	"github.com/johndauphine/tabxfer/internal/driver/sqlite"
	"github.com/johndauphine/tabxfer/internal/model"
	"github.com/johndauphine/tabxfer/internal/respath"
	"github.com/johndauphine/tabxfer/internal/statement"
	"github.com/johndauphine/tabxfer/internal/value"
)

const schema = `
CREATE TABLE regions (id INTEGER PRIMARY KEY, name varchar(40) NOT NULL UNIQUE);
CREATE TABLE customers (
    id INTEGER PRIMARY KEY,
    email varchar(80) NOT NULL,
    region_id INTEGER REFERENCES regions(id),
    balance numeric(10,2),
    CONSTRAINT uk_email UNIQUE (email)
);
CREATE VIEW big_customers AS SELECT id, email FROM customers WHERE balance > 100;
INSERT INTO regions VALUES (1, 'north'), (2, 'south');
INSERT INTO customers VALUES (1, 'a@x.io', 1, 10.5), (2, 'b@x.io', 2, 250);
`

// mainLite is SQLite addressed through its "main" schema, so that schema
// containers exist.
type mainLite struct{ sqlite.Driver }

func (d *mainLite) Name() string      { return "sqlite-main" }
func (d *mainLite) Aliases() []string { return nil }

func (d *mainLite) Capabilities() driver.Capabilities {
	caps := d.Driver.Capabilities()
	caps.NamespaceWidth = 2
	return caps
}

func (d *mainLite) Introspector() driver.Introspector { return &mainLiteIntrospector{} }

type mainLiteIntrospector struct{ sqlite.Introspector }

func (i *mainLiteIntrospector) CurrentNamespace(context.Context, driver.Querier) (string, string, error) {
	return "", "main", nil
}

func (i *mainLiteIntrospector) Schemas(_ context.Context, _ driver.Querier, _ string, p respath.SearchPattern) ([]string, error) {
	if p.Matches("main") {
		return []string{"main"}, nil
	}
	return nil, nil
}

func init() { driver.Register(&mainLite{}) }

func newSQLite(t *testing.T, opts ...Option) *Connection {
	t.Helper()
	cfg := dbconfig.ConnectionConfig{Type: "sqlite", Database: filepath.Join(t.TempDir(), "conn.db")}
	c, err := New("lite", cfg, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func seeded(t *testing.T) *Connection {
	t.Helper()
	c := newSQLite(t)
	db, err := c.DB(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, st := range strings.Split(schema, ";") {
		if strings.TrimSpace(st) == "" {
			continue
		}
		if _, err := db.Exec(st); err != nil {
			t.Fatalf("%s: %v", st, err)
		}
	}
	return c
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	if _, err := New("x", dbconfig.ConnectionConfig{Type: "db2"}); err == nil {
		t.Error("unknown driver accepted")
	}
}

func TestFailureCooldown(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	refused := errors.New("connection refused")
	attempts := 0
	fail := true
	var open Opener = func(cfg *dbconfig.ConnectionConfig) (*sql.DB, error) {
		attempts++
		if fail {
			return nil, refused
		}
		return sql.Open("sqlite", cfg.Database)
	}
	cfg := dbconfig.ConnectionConfig{Type: "sqlite", Database: filepath.Join(t.TempDir(), "c.db"), Cooldown: time.Minute}
	c, err := New("flaky", cfg, WithClock(clock), WithOpener(open))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	ctx := context.Background()

	if st := c.State(); st.Phase != Unconnected {
		t.Fatalf("initial phase = %s", st.Phase)
	}

	_, err = c.DB(ctx)
	var ue *UnavailableError
	if !errors.As(err, &ue) || !errors.Is(err, refused) {
		t.Fatalf("first open error = %v", err)
	}
	st := c.State()
	if st.Phase != Failed || !st.Until.Equal(now.Add(time.Minute)) {
		t.Fatalf("state after failure = %+v", st)
	}

	now = now.Add(20 * time.Second)
	_, err = c.DB(ctx)
	if !errors.As(err, &ue) || ue.Remaining != 40*time.Second {
		t.Fatalf("error during cooldown = %v", err)
	}
	if attempts != 1 {
		t.Errorf("open retried during cooldown: %d attempts", attempts)
	}

	now = now.Add(time.Minute)
	if st := c.State(); st.Phase != Unconnected {
		t.Errorf("phase after cooldown = %s", st.Phase)
	}
	fail = false
	if _, err := c.DB(ctx); err != nil {
		t.Fatalf("open after cooldown: %v", err)
	}
	if st := c.State(); st.Phase != Connected {
		t.Errorf("phase = %s, want connected", st.Phase)
	}
}

func TestReopenAfterHandleClosed(t *testing.T) {
	c := newSQLite(t)
	ctx := context.Background()
	first, err := c.DB(ctx)
	if err != nil {
		t.Fatal(err)
	}
	first.Close()

	// no statement has failed yet, so the handle is not checked
	again, err := c.DB(ctx)
	if err != nil || again != first {
		t.Fatalf("DB without a failure = %p, %v; want the same handle", again, err)
	}

	err = c.ExecText(ctx, "SELECT 1")
	var se *StatementError
	if !errors.As(err, &se) {
		t.Fatalf("statement on a closed handle = %v", err)
	}
	second, err := c.DB(ctx)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if second == first {
		t.Error("closed handle returned")
	}
	if err := c.ExecText(ctx, "SELECT 1"); err != nil {
		t.Errorf("statement after reopen: %v", err)
	}
}

func TestOpenWriterBorrowsPrimaryFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w.db")
	opened := 0
	open := func(*dbconfig.ConnectionConfig) (*sql.DB, error) {
		opened++
		return sql.Open("sqlite", path)
	}
	c, err := New("pg", dbconfig.ConnectionConfig{Type: "postgres", MaxWriters: 3}, WithOpener(open))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	ctx := context.Background()

	primary, err := c.DB(ctx)
	if err != nil {
		t.Fatal(err)
	}
	w1, release1, err := c.OpenWriter(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if w1 != primary {
		t.Error("first writer did not borrow the primary handle")
	}
	w2, release2, err := c.OpenWriter(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if w2 == primary {
		t.Error("second writer shares the borrowed primary handle")
	}
	if opened != 2 {
		t.Errorf("opened %d handles, want 2", opened)
	}

	if err := release2(); err != nil {
		t.Error(err)
	}
	if err := release1(); err != nil {
		t.Error(err)
	}
	if err := primary.PingContext(ctx); err != nil {
		t.Errorf("release closed the primary handle: %v", err)
	}
	w3, release3, err := c.OpenWriter(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer release3()
	if w3 != primary || opened != 2 {
		t.Errorf("returned primary handle not borrowed again (opened %d)", opened)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	c := newSQLite(t)
	if _, err := c.DB(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := c.DB(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("DB after Close = %v", err)
	}
}

func TestOpenWriterSharesSingleWriterHandle(t *testing.T) {
	c := newSQLite(t)
	ctx := context.Background()
	primary, _ := c.DB(ctx)
	w, release, err := c.OpenWriter(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if w != primary {
		t.Error("sqlite writer should reuse the primary handle")
	}
	if err := release(); err != nil {
		t.Error(err)
	}
	if err := primary.PingContext(ctx); err != nil {
		t.Errorf("release closed the primary handle: %v", err)
	}
}

func TestResolveCachesExistingResources(t *testing.T) {
	c := seeded(t)
	ctx := context.Background()

	a, err := c.Resolve(ctx, "customers")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := c.Resolve(ctx, `"customers"`)
	if a != b {
		t.Error("resolving the same table twice returned different resources")
	}
	if a.Kind != model.KindTable {
		t.Errorf("kind = %s", a.Kind)
	}
	v, _ := c.Resolve(ctx, "big_customers")
	if v.Kind != model.KindView {
		t.Errorf("view kind = %s", v.Kind)
	}

	before := c.Cache().Len()
	missing, err := c.Resolve(ctx, "archive")
	if err != nil {
		t.Fatal(err)
	}
	if c.Cache().Len() != before {
		t.Error("absent table was cached")
	}
	if ok, _ := c.Exists(ctx, missing); ok {
		t.Error("archive reported as existing")
	}
	if ok, _ := c.Exists(ctx, a); !ok {
		t.Error("customers reported as missing")
	}

	if _, err := c.Resolve(ctx, "cust*"); err == nil {
		t.Error("glob accepted by Resolve")
	}
	if _, err := c.Resolve(ctx, "main.customers"); err == nil {
		t.Error("two segments accepted for a one-level backend")
	}
}

func TestSelect(t *testing.T) {
	c := seeded(t)
	ctx := context.Background()
	tests := []struct {
		glob  string
		kinds []model.Kind
		want  []string
	}{
		{"*", nil, []string{"big_customers", "customers", "regions"}},
		{"*customers", nil, []string{"big_customers", "customers"}},
		{"*", []model.Kind{model.KindView}, []string{"big_customers"}},
		{"region?", nil, []string{"regions"}},
		{"nothing*", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.glob, func(t *testing.T) {
			got, err := c.Select(ctx, tt.glob, tt.kinds...)
			if err != nil {
				t.Fatal(err)
			}
			var names []string
			for _, r := range got {
				names = append(names, r.Name())
			}
			if strings.Join(names, ",") != strings.Join(tt.want, ",") {
				t.Errorf("Select(%q) = %v, want %v", tt.glob, names, tt.want)
			}
		})
	}
}

func TestChildrenListedUntilInvalidated(t *testing.T) {
	cfg := dbconfig.ConnectionConfig{Type: "sqlite-main", Database: filepath.Join(t.TempDir(), "main.db")}
	c, err := New("main", cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	ctx := context.Background()
	db, err := c.DB(ctx)
	if err != nil {
		t.Fatal(err)
	}
	exec := func(q string) {
		t.Helper()
		if _, err := db.Exec(q); err != nil {
			t.Fatalf("%s: %v", q, err)
		}
	}
	exec("CREATE TABLE orders (id INTEGER)")
	exec("CREATE VIEW open_orders AS SELECT id FROM orders")

	names := func(rs []*model.Resource) string {
		var out []string
		for _, r := range rs {
			out = append(out, r.Kind.String()+" "+r.Path.String())
		}
		return strings.Join(out, ",")
	}

	mainSchema, err := c.Resolve(ctx, "main.")
	if err != nil {
		t.Fatal(err)
	}
	if mainSchema.Kind != model.KindSchema {
		t.Fatalf("main. resolved to a %s", mainSchema.Kind)
	}
	kids, err := c.Children(ctx, mainSchema)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := names(kids), "view main.open_orders,table main.orders"; got != want {
		t.Errorf("Children = %s, want %s", got, want)
	}

	exec("CREATE TABLE lines (id INTEGER)")
	if kids, _ := c.Children(ctx, mainSchema); len(kids) != 2 {
		t.Errorf("listing reloaded without invalidation: %s", names(kids))
	}
	c.Forget(respath.NewPath(respath.Lit("main"), respath.Lit("lines")))
	kids, err = c.Children(ctx, mainSchema)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := names(kids), "table main.lines,view main.open_orders,table main.orders"; got != want {
		t.Errorf("Children after Forget = %s, want %s", got, want)
	}

	schemas, err := c.Select(ctx, "m*.")
	if err != nil {
		t.Fatal(err)
	}
	if len(schemas) != 1 || schemas[0] != mainSchema {
		t.Errorf("Select(m*.) = %v, want the cached main schema", schemas)
	}

	orders, _ := c.Resolve(ctx, "main.orders")
	if _, err := c.Children(ctx, orders); err == nil {
		t.Error("a table listed children")
	}
}

func TestRelationIntrospection(t *testing.T) {
	c := seeded(t)
	ctx := context.Background()
	res, _ := c.Resolve(ctx, "customers")
	rel, err := c.Relation(ctx, res)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(rel.ColumnNames(), ","); got != "id,email,region_id,balance" {
		t.Errorf("columns = %s", got)
	}
	email, _ := rel.Column("email")
	if email.Precision != 80 || email.Nullable || email.Type.Kind != value.Text {
		t.Errorf("email = %+v", email)
	}
	bal, _ := rel.Column("balance")
	if bal.Precision != 10 || bal.Scale != 2 || bal.Type.Kind != value.Decimal {
		t.Errorf("balance = %+v", bal)
	}
	if rel.PrimaryKey == nil || strings.Join(rel.PrimaryKey.Columns, ",") != "id" {
		t.Errorf("primary key = %+v", rel.PrimaryKey)
	}
	if len(rel.UniqueKeys) != 1 || rel.UniqueKeys[0].Columns[0] != "email" {
		t.Errorf("unique keys = %+v", rel.UniqueKeys)
	}
	if len(rel.ForeignKeys) != 1 || rel.ForeignKeys[0].Referenced.Object().Name != "regions" {
		t.Errorf("foreign keys = %+v", rel.ForeignKeys)
	}

	again, _ := c.Relation(ctx, res)
	if again != rel {
		t.Error("relation introspected twice")
	}

	regions, _ := c.Resolve(ctx, "regions")
	refs, err := c.ReferencingForeignKeys(ctx, regions)
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 1 || refs[0].Holder.Name() != "customers" {
		t.Errorf("references to regions = %+v", refs)
	}
}

func TestCountAndIsEmpty(t *testing.T) {
	c := seeded(t)
	ctx := context.Background()
	res, _ := c.Resolve(ctx, "customers")
	if n, err := c.Count(ctx, res); err != nil || n != 2 {
		t.Errorf("Count = %d, %v", n, err)
	}
	if empty, err := c.IsEmpty(ctx, res); err != nil || empty {
		t.Errorf("IsEmpty = %v, %v", empty, err)
	}
	q, _ := c.Script("SELECT * FROM customers WHERE id > 100")
	if empty, err := c.IsEmpty(ctx, q); err != nil || !empty {
		t.Errorf("IsEmpty(script) = %v, %v", empty, err)
	}
}

func TestDetectShapeLeavesNothingBehind(t *testing.T) {
	c := seeded(t)
	ctx := context.Background()
	before := c.Cache().Len()

	rel, err := c.DetectShape(ctx, "SELECT c.id, c.email, r.name AS region FROM customers c JOIN regions r ON r.id = c.region_id;")
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(rel.ColumnNames(), ","); got != "id,email,region" {
		t.Errorf("shape columns = %s", got)
	}
	if c.Cache().Len() != before {
		t.Error("shape detection touched the cache")
	}
	views, err := c.Select(ctx, "tabxfer_*", model.KindView)
	if err != nil {
		t.Fatal(err)
	}
	if len(views) != 0 {
		t.Errorf("shape view left behind: %v", views)
	}

	script, _ := c.Script("SELECT id FROM regions")
	srel, err := c.Relation(ctx, script)
	if err != nil {
		t.Fatal(err)
	}
	if len(srel.Columns) != 1 || srel.Columns[0].Name != "id" {
		t.Errorf("script relation = %+v", srel.Columns)
	}
}

func TestResultSetCarriesDetectedShape(t *testing.T) {
	c := seeded(t)
	ctx := context.Background()
	rs, err := c.ResultSet(ctx, "SELECT id, email FROM customers;")
	if err != nil {
		t.Fatal(err)
	}
	if rs.Kind != model.KindResultSet || rs.Query != "" {
		t.Fatalf("ResultSet = %s kind %s", rs, rs.Kind)
	}
	rel, err := c.Relation(ctx, rs)
	if err != nil {
		t.Fatal(err)
	}
	var cols []string
	for _, col := range rel.Columns {
		cols = append(cols, col.Name)
	}
	if strings.Join(cols, ",") != "id,email" {
		t.Errorf("columns = %v", cols)
	}
	if _, err := c.ResultSet(ctx, " ; "); err == nil {
		t.Error("empty query accepted")
	}
}

func TestStatementErrorCarriesText(t *testing.T) {
	c := seeded(t)
	ctx := context.Background()
	bad := statement.Statement{SQL: "INSERT INTO customers (id, email) VALUES (?, ?)", Args: []any{1, "dup@x.io"}}
	err := c.Exec(ctx, bad)
	var se *StatementError
	if !errors.As(err, &se) {
		t.Fatalf("Exec error = %v, want StatementError", err)
	}
	if se.Statement != bad.SQL {
		t.Errorf("statement = %q", se.Statement)
	}
	if !strings.Contains(err.Error(), "INSERT INTO customers") {
		t.Errorf("error text lacks the statement: %v", err)
	}

	err = c.ExecText(ctx, "CREATE TABLE t1 (a INTEGER)", "CREATE TABLE t1 (a INTEGER)", "CREATE TABLE t2 (a INTEGER)")
	if !errors.As(err, &se) {
		t.Fatalf("ExecText error = %v", err)
	}
	t2, _ := c.Resolve(ctx, "t2")
	if ok, _ := c.Exists(ctx, t2); ok {
		t.Error("ExecText continued after a failure")
	}
}

func TestBuilderUsesSessionScheme(t *testing.T) {
	c := seeded(t)
	b, err := c.Builder(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	res, _ := c.Resolve(context.Background(), "customers")
	if got := b.Table(res.Path); got != `"customers"` {
		t.Errorf("Table = %s", got)
	}
}
