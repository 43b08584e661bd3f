package respath

import (
	"errors"
	"testing"
)

var (
	pgScheme = Scheme{Width: 3, Quote: `"`, Case: CaseLower, Escape: `\`,
		CurrentCatalog: "app", CurrentSchema: "public"}
	mssqlScheme = Scheme{Width: 3, Quote: "[", Case: CasePreserve, Escape: `\`,
		CatalogInStatements: true, CurrentCatalog: "Sales", CurrentSchema: "dbo"}
	mysqlScheme  = Scheme{Width: 2, Quote: "`", Case: CasePreserve, Escape: `\`, CurrentSchema: "shop"}
	sqliteScheme = Scheme{Width: 1, Quote: `"`, Case: CasePreserve}
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		scheme  Scheme
		locator string
		want    Path
	}{
		{"object", pgScheme, "Orders", NewPath(Lit("orders"))},
		{"schema object", pgScheme, "Sales.Orders", NewPath(Lit("sales"), Lit("orders"))},
		{"quoted keeps case", pgScheme, `"Sales"."Or.ders"`, NewPath(Lit("Sales"), Lit("Or.ders"))},
		{"doubled quote", pgScheme, `"a""b"`, NewPath(Lit(`a"b`))},
		{"quoted is never glob", pgScheme, `"ord*"`, NewPath(Lit("ord*"))},
		{"glob", pgScheme, "public.Ord*", NewPath(Lit("public"), Segment{Name: "ord*", Kind: Glob})},
		{"schema selector", pgScheme, "public.", NewPath(Lit("public"), Segment{Kind: Empty})},
		{"catalog selector", pgScheme, "app..", NewPath(Lit("app"), Segment{Kind: Empty}, Segment{Kind: Empty})},
		{"brackets", mssqlScheme, "[My Db].dbo.[T]", NewPath(Lit("My Db"), Lit("dbo"), Lit("T"))},
		{"backticks", mysqlScheme, "`shop`.items", NewPath(Lit("shop"), Lit("items"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.scheme.Parse(tt.locator)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.locator, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %#v, want %#v", tt.locator, got, tt.want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		scheme  Scheme
		locator string
	}{
		{"too deep for sqlite", sqliteScheme, "main.t"},
		{"too deep for mysql", mysqlScheme, "a.b.c"},
		{"too deep for anything", pgScheme, "a.b.c.d"},
		{"unterminated", pgScheme, `"abc`},
		{"text after quote", pgScheme, `"a"b`},
		{"empty", pgScheme, "  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.scheme.Parse(tt.locator)
			var ae *AddressingError
			if !errors.As(err, &ae) {
				t.Fatalf("expected AddressingError, got %v", err)
			}
		})
	}
}

func TestParseTwiceIsEqual(t *testing.T) {
	a, _ := pgScheme.Parse("public.orders")
	b, _ := pgScheme.Parse("PUBLIC.Orders")
	if a != b {
		t.Errorf("%v != %v", a, b)
	}
}

func TestSelector(t *testing.T) {
	tests := []struct {
		locator string
		want    Selector
	}{
		{"orders", ObjectSelector},
		{"public.orders", ObjectSelector},
		{"public.", SchemaSelector},
		{"app.public.", SchemaSelector},
		{"app..", CatalogSelector},
		{"app..orders", ObjectSelector},
	}
	for _, tt := range tests {
		t.Run(tt.locator, func(t *testing.T) {
			p, err := pgScheme.Parse(tt.locator)
			if err != nil {
				t.Fatal(err)
			}
			if got := p.Selector(); got != tt.want {
				t.Errorf("Selector() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		scheme  Scheme
		locator string
		abs     string
	}{
		{pgScheme, "orders", "app.public.orders"},
		{pgScheme, "sales.orders", "app.sales.orders"},
		{pgScheme, "other.public.orders", "other.public.orders"},
		{mssqlScheme, "T", "Sales.dbo.T"},
		{mysqlScheme, "items", "shop.items"},
		{mysqlScheme, "crm.leads", "crm.leads"},
		{sqliteScheme, "t", "t"},
	}
	for _, tt := range tests {
		t.Run(tt.locator, func(t *testing.T) {
			p, err := tt.scheme.Parse(tt.locator)
			if err != nil {
				t.Fatal(err)
			}
			abs, err := tt.scheme.ToAbsolute(p)
			if err != nil {
				t.Fatal(err)
			}
			if abs.String() != tt.abs {
				t.Errorf("absolute = %s, want %s", abs, tt.abs)
			}
			rel := tt.scheme.ToRelative(abs)
			if rel != p {
				t.Errorf("relative = %s, want %s", rel, p)
			}
		})
	}
}

func TestToAbsoluteEmptyDefaults(t *testing.T) {
	s := Scheme{Width: 3, Case: CaseLower}
	p, _ := s.Parse("orders")
	abs, err := s.ToAbsolute(p)
	if err != nil {
		t.Fatal(err)
	}
	if abs.Depth() != 3 || abs.Catalog().Kind != Empty || abs.Schema().Kind != Empty {
		t.Errorf("got %#v", abs)
	}
	if got := s.QualifiedName(abs); got != `"orders"` {
		t.Errorf("QualifiedName = %s", got)
	}
}

func TestToRelativeKeepsSelectors(t *testing.T) {
	p, _ := pgScheme.Parse("app.public.")
	if got := pgScheme.ToRelative(p); got != p {
		t.Errorf("selector was relativized to %s", got)
	}
}

func TestQualifiedName(t *testing.T) {
	tests := []struct {
		scheme  Scheme
		locator string
		want    string
	}{
		{pgScheme, "orders", `"public"."orders"`},
		{mssqlScheme, "orders", "[Sales].[dbo].[orders]"},
		{mssqlScheme, "[a]]b]", "[Sales].[dbo].[a]]b]"},
		{mysqlScheme, "items", "`shop`.`items`"},
		{sqliteScheme, "t", `"t"`},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			abs, err := tt.scheme.Resolve(tt.locator)
			if err != nil {
				t.Fatal(err)
			}
			if got := tt.scheme.QualifiedName(abs); got != tt.want {
				t.Errorf("QualifiedName = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNavigation(t *testing.T) {
	abs, _ := pgScheme.Resolve("orders")

	parent, ok := abs.Parent()
	if !ok || parent.String() != "app.public." || parent.Selector() != SchemaSelector {
		t.Fatalf("Parent = %s, %v", parent, ok)
	}
	grand, ok := parent.Parent()
	if !ok || grand.Selector() != CatalogSelector {
		t.Fatalf("Parent of schema = %s, %v", grand, ok)
	}
	if _, ok := grand.Parent(); ok {
		t.Error("catalog should have no parent")
	}

	child, ok := parent.Child("items")
	if !ok || child.String() != "app.public.items" {
		t.Errorf("Child = %s, %v", child, ok)
	}
	sib, ok := abs.Sibling("lines")
	if !ok || sib.String() != "app.public.lines" {
		t.Errorf("Sibling = %s, %v", sib, ok)
	}
	if _, ok := abs.Child("x"); ok {
		t.Error("object path should have no child")
	}
}

func TestCompileGlob(t *testing.T) {
	tests := []struct {
		name   string
		scheme Scheme
		seg    Segment
		mode   MatchMode
		value  string
	}{
		{"literal", pgScheme, Lit("orders"), MatchExact, "orders"},
		{"empty", pgScheme, Segment{Kind: Empty}, MatchAny, ""},
		{"like", pgScheme, Segment{Name: "ord_*", Kind: Glob}, MatchLike, `ord\_%`},
		{"like escapes escape", pgScheme, Segment{Name: `a\b?%`, Kind: Glob}, MatchLike, `a\\b_\%`},
		{"no escape", sqliteScheme, Segment{Name: "ord*", Kind: Glob}, MatchClient, "ord*"},
		{"no escape literal", sqliteScheme, Lit("orders"), MatchExact, "orders"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.scheme.CompileGlob(tt.seg)
			if got.Mode != tt.mode || got.Value != tt.value {
				t.Errorf("CompileGlob = %d %q, want %d %q", got.Mode, got.Value, tt.mode, tt.value)
			}
		})
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		glob string
		name string
		fold bool
		want bool
	}{
		{"ord*", "orders", false, true},
		{"ord*", "Orders", false, false},
		{"ord*", "Orders", true, true},
		{"*s", "orders", false, true},
		{"o?ders", "orders", false, true},
		{"o?ders", "oders", false, false},
		{"*a*b*", "xxaxxbxx", false, true},
		{"*a*b", "xxaxxbxxc", false, false},
		{"*", "", false, true},
		{"?", "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.glob+"/"+tt.name, func(t *testing.T) {
			if got := Match(tt.glob, tt.name, tt.fold); got != tt.want {
				t.Errorf("Match(%q, %q, %v) = %v", tt.glob, tt.name, tt.fold, got)
			}
		})
	}
}
