package statement

import (
	"strings"
	"testing"

	"github.com/johndauphine/tabxfer/internal/driver"
	_ "github.com/johndauphine/tabxfer/internal/driver/mssql"
	_ "github.com/johndauphine/tabxfer/internal/driver/mysql"
	_ "github.com/johndauphine/tabxfer/internal/driver/postgres"
	_ "github.com/johndauphine/tabxfer/internal/driver/sqlite"
	"github.com/johndauphine/tabxfer/internal/model"
	"github.com/johndauphine/tabxfer/internal/typemap"
	"github.com/johndauphine/tabxfer/internal/value"
)

// current catalog and schema per backend used by the tests
var currents = map[string][2]string{
	"postgres": {"app", "public"},
	"mssql":    {"shop", "dbo"},
	"mysql":    {"", "shop"},
	"sqlite":   {"", ""},
}

func builderFor(t *testing.T, name string) *Builder {
	t.Helper()
	return builderWith(t, name, nil)
}

func builderWith(t *testing.T, name string, enc *value.Encodings) *Builder {
	t.Helper()
	d, err := driver.Get(name)
	if err != nil {
		t.Fatalf("driver %s: %v", name, err)
	}
	types, err := typemap.Build(d.Dialect().DBType(), nil)
	if err != nil {
		t.Fatalf("catalog %s: %v", name, err)
	}
	e := d.Defaults().Encodings
	if enc != nil {
		e = *enc
	}
	cur := currents[name]
	caps := d.Capabilities()
	return New(d.Dialect(), caps, types, e, caps.Scheme(cur[0], cur[1]))
}

func column(t *testing.T, b *Builder, name, typ string, nullable bool) model.Column {
	t.Helper()
	spec, p, s := typemap.SplitSpec(typ)
	e, err := b.types.ByName(spec)
	if err != nil {
		t.Fatalf("type %s: %v", typ, err)
	}
	return model.Column{Name: name, Type: e, DeclaredType: typ, Precision: p, Scale: s, Nullable: nullable}
}

func relation(t *testing.T, b *Builder, locator string, cols ...model.Column) *model.Relation {
	t.Helper()
	p, err := b.scheme.Resolve(locator)
	if err != nil {
		t.Fatalf("resolve %s: %v", locator, err)
	}
	return &model.Relation{Path: p, Columns: cols}
}

// customers(id PK, email unique, name) and a staging relation carrying the
// same columns.
func customers(t *testing.T, b *Builder) (tgt, src *model.Relation) {
	t.Helper()
	id := column(t, b, "id", "integer", false)
	tgt = relation(t, b, "customers",
		id,
		column(t, b, "email", "varchar(100)", false),
		column(t, b, "name", "varchar(50)", true),
	)
	tgt.PrimaryKey = &model.Key{Name: "pk_customers", Columns: []string{"id"}}
	tgt.UniqueKeys = []model.Key{{Name: "uk_email", Columns: []string{"email"}}}
	src = relation(t, b, "staging", append([]model.Column(nil), tgt.Columns...)...)
	return tgt, src
}

func TestSourceRendering(t *testing.T) {
	b := builderFor(t, "postgres")
	tgt, _ := customers(t, b)

	table := Source{Path: tgt.Path, Relation: tgt}
	if got, want := b.SelectAll(table), `SELECT "id", "email", "name" FROM "public"."customers" src`; got != want {
		t.Errorf("SelectAll(table) = %q, want %q", got, want)
	}
	query := Source{Query: "SELECT 1 AS id", Relation: nil}
	if got := b.SelectAll(query); got != "SELECT 1 AS id" {
		t.Errorf("SelectAll(query) = %q", got)
	}
	if got, want := b.Count(table), `SELECT COUNT(*) FROM "public"."customers" src`; got != want {
		t.Errorf("Count = %q, want %q", got, want)
	}
	if got := b.AnyRow(table); !strings.HasSuffix(got, "LIMIT 1") {
		t.Errorf("AnyRow = %q", got)
	}
}

func TestSourceOf(t *testing.T) {
	b := builderFor(t, "sqlite")
	tgt, _ := customers(t, b)

	res, err := model.NewTable("lite", tgt.Path, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := SourceOf(res); err == nil {
		t.Error("SourceOf should fail before the relation is known")
	}
	if err := res.SetRelation(tgt); err != nil {
		t.Fatal(err)
	}
	src, err := SourceOf(res)
	if err != nil {
		t.Fatal(err)
	}
	if src.Path != tgt.Path || src.Relation != tgt {
		t.Errorf("SourceOf = %+v", src)
	}
}
