package model

import (
	"strings"
	"testing"

	"github.com/johndauphine/tabxfer/internal/respath"
)

func table(name string, cols ...string) *Relation {
	r := &Relation{Path: respath.NewPath(respath.Lit("public"), respath.Lit(name))}
	for _, c := range cols {
		r.Columns = append(r.Columns, Column{Name: c})
	}
	return r
}

func TestAddForeignKeyChecksColumnCount(t *testing.T) {
	parent := table("orders", "region", "id")
	parent.PrimaryKey = &Key{Name: "pk_orders", Columns: []string{"region", "id"}}
	child := table("lines", "order_region", "order_id", "sku")

	err := child.AddForeignKey(ForeignKey{Name: "fk_bad", Columns: []string{"order_id"}}, parent)
	if err == nil || !strings.Contains(err.Error(), "has 1 columns") {
		t.Fatalf("expected column count error, got %v", err)
	}

	err = child.AddForeignKey(ForeignKey{Name: "fk_lines_orders", Columns: []string{"order_region", "order_id"}}, parent)
	if err != nil {
		t.Fatal(err)
	}
	fk := child.ForeignKeys[0]
	if fk.Referenced != parent.Path {
		t.Errorf("referenced = %s", fk.Referenced)
	}
	if strings.Join(fk.RefColumns, ",") != "region,id" {
		t.Errorf("ref columns = %v", fk.RefColumns)
	}
	if !child.References(parent.Path) {
		t.Error("References() = false")
	}
}

func TestAddForeignKeyNeedsPrimaryKey(t *testing.T) {
	parent := table("orders", "id")
	child := table("lines", "order_id")
	if err := child.AddForeignKey(ForeignKey{Columns: []string{"order_id"}}, parent); err == nil {
		t.Error("expected error for missing primary key")
	}
}

func TestColumnLookup(t *testing.T) {
	r := table("t", "Id", "name")
	if c, ok := r.Column("id"); !ok || c.Name != "Id" {
		t.Errorf("case-insensitive lookup failed: %v %v", c, ok)
	}
	if !r.HasColumns([]string{"ID", "NAME"}) {
		t.Error("HasColumns = false")
	}
	if r.HasColumns([]string{"id", "missing"}) {
		t.Error("HasColumns = true with missing column")
	}
}

func TestCloneIsDeep(t *testing.T) {
	r := table("t", "a", "b")
	r.PrimaryKey = &Key{Name: "pk", Columns: []string{"a"}}
	c := r.Clone()
	c.Columns[0].Name = "x"
	c.PrimaryKey.Columns[0] = "x"
	if r.Columns[0].Name != "a" || r.PrimaryKey.Columns[0] != "a" {
		t.Error("clone shares storage with original")
	}
}

func TestResourceConstructors(t *testing.T) {
	obj := respath.NewPath(respath.Lit("public"), respath.Lit("t"))
	schema := respath.NewPath(respath.Lit("public"), respath.Segment{Kind: respath.Empty})

	if _, err := NewTable("pg", schema, false); err == nil {
		t.Error("table from schema path should fail")
	}
	tbl, err := NewTable("pg", obj, true)
	if err != nil {
		t.Fatal(err)
	}
	if tbl.Kind != KindView || tbl.Name() != "t" || tbl.String() != "public.t@pg" {
		t.Errorf("view = %v %q %q", tbl.Kind, tbl.Name(), tbl.String())
	}
	if err := tbl.SetChildren(nil); err == nil {
		t.Error("view cannot hold children")
	}

	c, err := NewContainer("pg", schema)
	if err != nil {
		t.Fatal(err)
	}
	if c.Kind != KindSchema {
		t.Errorf("kind = %s", c.Kind)
	}
	if err := c.SetRelation(&Relation{}); err == nil {
		t.Error("schema cannot own a relation")
	}
	if _, err := NewContainer("pg", obj); err == nil {
		t.Error("container from object path should fail")
	}

	if _, err := NewScript("pg", " ; "); err == nil {
		t.Error("empty script should fail")
	}
	s, err := NewScript("pg", "select 1;")
	if err != nil || s.Query != "select 1" {
		t.Errorf("script = %v, %v", s, err)
	}
}
