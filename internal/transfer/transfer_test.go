package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/johndauphine/tabxfer/internal/connection"
	"github.com/johndauphine/tabxfer/internal/dbconfig"
	_ "github.com/johndauphine/tabxfer/internal/driver/sqlite"
	"github.com/johndauphine/tabxfer/internal/model"
	"github.com/johndauphine/tabxfer/internal/progress"
	"github.com/johndauphine/tabxfer/internal/respath"
	"github.com/johndauphine/tabxfer/internal/statement"
	"github.com/johndauphine/tabxfer/internal/typemap"
)

const itemsDDL = `CREATE TABLE items (
	id INTEGER PRIMARY KEY,
	name VARCHAR(40) NOT NULL,
	price NUMERIC(10,2),
	active BOOLEAN
)`

func openSQLite(t *testing.T, name string, stmts ...string) *connection.Connection {
	t.Helper()
	return openSQLiteForm(t, name, "", stmts...)
}

func openSQLiteForm(t *testing.T, name, form string, stmts ...string) *connection.Connection {
	t.Helper()
	cfg := dbconfig.ConnectionConfig{Type: "sqlite", Database: filepath.Join(t.TempDir(), name+".db"), StatementForm: form}
	c, err := connection.New(name, cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	if err := c.ExecText(context.Background(), stmts...); err != nil {
		t.Fatal(err)
	}
	return c
}

func seedItems(t *testing.T, c *connection.Connection, n int) {
	t.Helper()
	db, err := c.DB(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	tx, err := db.Begin()
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= n; i++ {
		if _, err := tx.Exec("INSERT INTO items VALUES (?, ?, ?, ?)",
			i, fmt.Sprintf("item-%d", i), fmt.Sprintf("%d.%02d", i, i%100), i%2 == 0); err != nil {
			t.Fatal(err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

func resolve(t *testing.T, c *connection.Connection, locator string) *model.Resource {
	t.Helper()
	r, err := c.Resolve(context.Background(), locator)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func count(t *testing.T, c *connection.Connection, table string) int64 {
	t.Helper()
	db, err := c.DB(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	var n int64
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func smallBatches() Config {
	return Config{BatchSize: 100, CommitFrequency: 3, TargetWorkers: 4}
}

func TestParseOperation(t *testing.T) {
	tests := []struct {
		in      string
		want    Operation
		wantErr bool
	}{
		{"copy", Copy, false},
		{" UPSERT ", Upsert, false},
		{"Rename", Rename, false},
		{"merge", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOperation(tt.in)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("ParseOperation(%q) = %q, %v", tt.in, got, err)
			}
		})
	}
}

func TestStreamedCopyCreatesTarget(t *testing.T) {
	ctx := context.Background()
	src := openSQLite(t, "src", itemsDDL)
	seedItems(t, src, 2500)
	dst := openSQLite(t, "dst")

	var tracker *progress.Tracker
	m := NewManager([]*connection.Connection{src, dst}, WithProgress(func(Order) *progress.Tracker {
		tracker = progress.NewTo(io.Discard, "copy")
		return tracker
	}))
	res, err := m.Run(ctx, Order{
		Source:    resolve(t, src, "items"),
		Target:    resolve(t, dst, "items"),
		Operation: Copy,
		Config:    smallBatches(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Method != MethodStreamed || res.Rows != 2500 || res.Committed != 2500 {
		t.Errorf("result = %+v", res)
	}
	if tracker == nil || tracker.Current() != 2500 {
		t.Errorf("progress not reported")
	}
	if n := count(t, dst, "items"); n != 2500 {
		t.Errorf("target holds %d rows", n)
	}

	created := resolve(t, dst, "items")
	rel, err := dst.Relation(ctx, created)
	if err != nil {
		t.Fatal(err)
	}
	if rel.PrimaryKey == nil || rel.PrimaryKey.Columns[0] != "id" {
		t.Errorf("primary key not carried: %+v", rel.PrimaryKey)
	}
	price, _ := rel.Column("price")
	if price == nil || price.Precision != 10 || price.Scale != 2 {
		t.Errorf("price column = %+v", price)
	}

	db, _ := dst.DB(ctx)
	var name string
	var active bool
	if err := db.QueryRow("SELECT name, active FROM items WHERE id = 42").Scan(&name, &active); err != nil {
		t.Fatal(err)
	}
	if name != "item-42" || !active {
		t.Errorf("row 42 = %q, %v", name, active)
	}
}

func TestCopyOntoNonEmptyTarget(t *testing.T) {
	ctx := context.Background()
	src := openSQLite(t, "src", itemsDDL)
	seedItems(t, src, 300)
	dst := openSQLite(t, "dst", itemsDDL, "INSERT INTO items VALUES (1, 'stale', 0, 0)")
	m := NewManager([]*connection.Connection{src, dst})

	order := Order{Source: resolve(t, src, "items"), Target: resolve(t, dst, "items"), Operation: Copy, Config: smallBatches()}
	_, err := m.Run(ctx, order)
	var ne *NotEmptyError
	if !errors.As(err, &ne) {
		t.Fatalf("err = %v, want NotEmptyError", err)
	}

	order.Config.TargetOperations = []TargetOperation{TruncateTarget}
	res, err := m.Run(ctx, order)
	if err != nil {
		t.Fatal(err)
	}
	if res.Committed != 300 || count(t, dst, "items") != 300 {
		t.Errorf("committed = %d, target = %d", res.Committed, count(t, dst, "items"))
	}
}

func TestDropIfExistsRecreatesTarget(t *testing.T) {
	ctx := context.Background()
	src := openSQLite(t, "src", itemsDDL)
	seedItems(t, src, 50)
	dst := openSQLite(t, "dst", "CREATE TABLE items (id INTEGER, note TEXT)", "INSERT INTO items VALUES (1, 'x')")
	m := NewManager([]*connection.Connection{src, dst})

	res, err := m.Run(ctx, Order{
		Source:    resolve(t, src, "items"),
		Target:    resolve(t, dst, "items"),
		Operation: Insert,
		Config:    Config{TargetOperations: []TargetOperation{DropIfExists}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Committed != 50 {
		t.Errorf("committed = %d", res.Committed)
	}
	rel, err := dst.Relation(ctx, resolve(t, dst, "items"))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := rel.Column("note"); ok || len(rel.Columns) != 4 {
		t.Errorf("target was not recreated: %v", rel.ColumnNames())
	}
}

func TestSchemaMismatch(t *testing.T) {
	ctx := context.Background()
	src := openSQLite(t, "src", itemsDDL)
	seedItems(t, src, 5)
	dst := openSQLite(t, "dst", "CREATE TABLE items (id INTEGER PRIMARY KEY, price BLOB)")
	m := NewManager([]*connection.Connection{src, dst})

	_, err := m.Run(ctx, Order{Source: resolve(t, src, "items"), Target: resolve(t, dst, "items"), Operation: Insert})
	var se *SchemaMismatchError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want SchemaMismatchError", err)
	}
	if se.Column != "price" {
		t.Errorf("mismatch reported on %q", se.Column)
	}
	if count(t, dst, "items") != 0 {
		t.Error("rows written despite the mismatch")
	}
}

func TestMissingTargetNeedsCreate(t *testing.T) {
	ctx := context.Background()
	src := openSQLite(t, "src", itemsDDL)
	dst := openSQLite(t, "dst")
	m := NewManager([]*connection.Connection{src, dst})

	order := Order{Source: resolve(t, src, "items"), Target: resolve(t, dst, "items"), Operation: Upsert}
	if _, err := m.Run(ctx, order); err == nil || !strings.Contains(err.Error(), string(CreateIfAbsent)) {
		t.Fatalf("err = %v", err)
	}
	order.Config.TargetOperations = []TargetOperation{CreateIfAbsent}
	if _, err := m.Run(ctx, order); err != nil {
		t.Fatal(err)
	}
}

func TestStreamedUpsertUpdateDelete(t *testing.T) {
	ctx := context.Background()
	src := openSQLite(t, "src", itemsDDL)
	seedItems(t, src, 400)
	dst := openSQLite(t, "dst", itemsDDL,
		"INSERT INTO items VALUES (5, 'old', 1.00, 0), (999, 'keep', 2.00, 1)")
	m := NewManager([]*connection.Connection{src, dst})
	db, _ := dst.DB(ctx)

	run := func(op Operation) Result {
		t.Helper()
		res, err := m.Run(ctx, Order{Source: resolve(t, src, "items"), Target: resolve(t, dst, "items"), Operation: op, Config: smallBatches()})
		if err != nil {
			t.Fatalf("%s: %v", op, err)
		}
		return res
	}

	run(Upsert)
	if n := count(t, dst, "items"); n != 401 {
		t.Fatalf("after upsert: %d rows", n)
	}
	var name string
	db.QueryRow("SELECT name FROM items WHERE id = 5").Scan(&name)
	if name != "item-5" {
		t.Errorf("row 5 not updated: %q", name)
	}

	if _, err := db.Exec("UPDATE items SET name = 'drift'"); err != nil {
		t.Fatal(err)
	}
	run(Update)
	var drift int
	db.QueryRow("SELECT COUNT(*) FROM items WHERE name = 'drift'").Scan(&drift)
	if drift != 1 {
		t.Errorf("%d rows left unmatched, want only row 999", drift)
	}

	res := run(Delete)
	if res.Committed != 400 {
		t.Errorf("delete committed %d", res.Committed)
	}
	if n := count(t, dst, "items"); n != 1 {
		t.Errorf("after delete: %d rows", n)
	}
}

func TestStreamedRowsFollowStatementForm(t *testing.T) {
	const checked = `CREATE TABLE items (
	id INTEGER PRIMARY KEY,
	name VARCHAR(40) NOT NULL CHECK (name <> 'item-3'),
	price NUMERIC(10,2),
	active BOOLEAN
)`
	tests := []struct {
		form    string
		literal bool
	}{
		{"", false},
		{"placeholders", false},
		{"literal", true},
	}
	for _, tt := range tests {
		t.Run("form="+tt.form, func(t *testing.T) {
			ctx := context.Background()
			src := openSQLite(t, "src", itemsDDL)
			seedItems(t, src, 5)
			dst := openSQLiteForm(t, "dst", tt.form, checked)
			if got := dst.StatementForm() == statement.Literals; got != tt.literal {
				t.Fatalf("statement form = %s", dst.StatementForm())
			}

			m := NewManager([]*connection.Connection{src, dst})
			_, err := m.Run(ctx, Order{
				Source:    resolve(t, src, "items"),
				Target:    resolve(t, dst, "items"),
				Operation: Insert,
				Config:    Config{BatchSize: 1, CommitFrequency: 1, TargetWorkers: 1},
			})
			var se *connection.StatementError
			if !errors.As(err, &se) {
				t.Fatalf("err = %v, want a statement error", err)
			}
			if got := strings.Contains(se.Statement, "'item-3'"); got != tt.literal {
				t.Errorf("statement %q carries literal values: %v, want %v", se.Statement, got, tt.literal)
			}
		})
	}

	t.Run("literal rows arrive intact", func(t *testing.T) {
		ctx := context.Background()
		src := openSQLite(t, "src", itemsDDL,
			"INSERT INTO items VALUES (1, 'O''Hara', 12.50, 1), (2, 'plain', NULL, 0)")
		dst := openSQLiteForm(t, "dst", "literal")
		m := NewManager([]*connection.Connection{src, dst})
		res, err := m.Run(ctx, Order{
			Source:    resolve(t, src, "items"),
			Target:    resolve(t, dst, "items"),
			Operation: Copy,
			Config:    smallBatches(),
		})
		if err != nil {
			t.Fatal(err)
		}
		if res.Committed != 2 {
			t.Errorf("result = %+v", res)
		}
		db, _ := dst.DB(ctx)
		var name string
		var price float64
		if err := db.QueryRow("SELECT name, price FROM items WHERE id = 1").Scan(&name, &price); err != nil {
			t.Fatal(err)
		}
		if name != "O'Hara" || price != 12.5 {
			t.Errorf("row 1 = %q, %v", name, price)
		}
	})
}

func TestServerSideOnSameConnection(t *testing.T) {
	ctx := context.Background()
	c := openSQLite(t, "one", itemsDDL, "CREATE TABLE archive (id INTEGER PRIMARY KEY, name VARCHAR(40))")
	seedItems(t, c, 120)
	m := NewManager([]*connection.Connection{c})

	res, err := m.Run(ctx, Order{Source: resolve(t, c, "items"), Target: resolve(t, c, "items_copy"), Operation: Copy})
	if err != nil {
		t.Fatal(err)
	}
	if res.Method != MethodServerSide || res.Rows != 120 {
		t.Errorf("copy result = %+v", res)
	}
	if n := count(t, c, "items_copy"); n != 120 {
		t.Errorf("items_copy holds %d rows", n)
	}

	res, err = m.Run(ctx, Order{Source: resolve(t, c, "items"), Target: resolve(t, c, "archive"), Operation: Insert})
	if err != nil {
		t.Fatal(err)
	}
	if res.Method != MethodServerSide || count(t, c, "archive") != 120 {
		t.Errorf("insert result = %+v", res)
	}

	script, err := c.Script("SELECT id FROM items WHERE id > 100")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Run(ctx, Order{Source: script, Target: resolve(t, c, "archive"), Operation: Delete}); err != nil {
		t.Fatal(err)
	}
	if n := count(t, c, "archive"); n != 100 {
		t.Errorf("archive holds %d rows after delete", n)
	}
}

func TestRename(t *testing.T) {
	ctx := context.Background()
	c := openSQLite(t, "one", itemsDDL)
	seedItems(t, c, 3)
	other := openSQLite(t, "other")
	m := NewManager([]*connection.Connection{c, other})

	if _, err := m.Run(ctx, Order{Source: resolve(t, c, "items"), Target: resolve(t, other, "items"), Operation: Rename}); err == nil {
		t.Error("rename across connections accepted")
	}
	res, err := m.Run(ctx, Order{Source: resolve(t, c, "items"), Target: resolve(t, c, "goods"), Operation: Rename})
	if err != nil {
		t.Fatal(err)
	}
	if res.Method != MethodRename {
		t.Errorf("method = %s", res.Method)
	}
	if ok, _ := c.Exists(ctx, resolve(t, c, "items")); ok {
		t.Error("items still exists")
	}
	if n := count(t, c, "goods"); n != 3 {
		t.Errorf("goods holds %d rows", n)
	}
}

func TestScriptSourceAcrossConnections(t *testing.T) {
	ctx := context.Background()
	src := openSQLite(t, "src", itemsDDL)
	seedItems(t, src, 200)
	dst := openSQLite(t, "dst")
	m := NewManager([]*connection.Connection{src, dst})

	script, err := src.Script("SELECT id, name FROM items WHERE active = 1")
	if err != nil {
		t.Fatal(err)
	}
	res, err := m.Run(ctx, Order{Source: script, Target: resolve(t, dst, "active_items"), Operation: Copy})
	if err != nil {
		t.Fatal(err)
	}
	if res.Committed != 100 || count(t, dst, "active_items") != 100 {
		t.Errorf("result = %+v", res)
	}
}

func TestUnknownConnection(t *testing.T) {
	src := openSQLite(t, "src", itemsDDL)
	m := NewManager(nil)
	_, err := m.Run(context.Background(), Order{Source: resolve(t, src, "items"), Target: resolve(t, src, "x"), Operation: Copy})
	if err == nil || !strings.Contains(err.Error(), `unknown connection "src"`) {
		t.Errorf("err = %v", err)
	}
}

func TestMergeRelation(t *testing.T) {
	mssql, err := typemap.Build("mssql", typemap.StaticReport("mssql"))
	if err != nil {
		t.Fatal(err)
	}
	lite, err := typemap.Build("sqlite", typemap.StaticReport("sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	col := func(name, decl string, p, s int) model.Column {
		e, err := lite.ByName(decl)
		if err != nil {
			t.Fatal(err)
		}
		return model.Column{Name: name, Type: e, DeclaredType: decl, Precision: p, Scale: s, Nullable: true}
	}
	scheme := respath.Scheme{Width: 2, Case: respath.CaseLower, CurrentSchema: "dbo"}
	src := &model.Relation{
		Columns: []model.Column{
			col("id", "integer", 0, 0),
			col("flag", "boolean", 0, 0),
			col("amount", "numeric", 10, 2),
		},
		PrimaryKey:  &model.Key{Name: "pk_t", Columns: []string{"id"}},
		ForeignKeys: []model.ForeignKey{{Name: "fk", Columns: []string{"id"}}},
	}
	path, err := scheme.Resolve("dbo.t")
	if err != nil {
		t.Fatal(err)
	}
	out, err := MergeRelation(src, path, mssql)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{"id": "int", "flag": "bit", "amount": "numeric(10,2)"}
	for _, c := range out.Columns {
		if c.DeclaredType != want[c.Name] {
			t.Errorf("%s: %q, want %q", c.Name, c.DeclaredType, want[c.Name])
		}
	}
	if out.Path != path || len(out.ForeignKeys) != 0 || out.PrimaryKey == nil {
		t.Errorf("merged relation = %+v", out)
	}
	if src.Columns[1].Type.Name != "boolean" {
		t.Error("source relation modified")
	}
}
