package driver

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/johndauphine/tabxfer/internal/respath"
	"github.com/johndauphine/tabxfer/internal/typemap"
)

// InfoSchema implements Introspector over the standard information_schema
// views. Backends differ only in the expressions and queries configured
// here.
type InfoSchema struct {
	Dialect Dialect
	// UsesCatalog is false for backends whose information_schema reports a
	// constant catalog (MySQL reports "def").
	UsesCatalog bool
	// LikeEscape is appended after LIKE patterns, e.g. ` ESCAPE '\'`.
	LikeEscape string
	// CurrentQuery selects the current catalog and schema.
	CurrentQuery string
	// CatalogsQuery selects one column of catalog names; empty when the
	// backend has no catalog level.
	CatalogsQuery string
	// TypesQuery selects (name, max precision); empty for a static report.
	TypesQuery    string
	SystemSchemas []string
	// DataTypeExpr, AutoIncrementExpr and GeneratedExpr are evaluated per
	// row of information_schema.columns aliased c. The flags must yield 0/1.
	DataTypeExpr      string
	AutoIncrementExpr string
	GeneratedExpr     string
	// FKFromKeyColumnUsage reads foreign keys from the REFERENCED_* columns
	// of key_column_usage instead of joining referential_constraints.
	FKFromKeyColumnUsage bool
	// SchemaPrefix qualifies information_schema for another catalog; nil
	// means cross-catalog queries are not possible.
	SchemaPrefix func(catalog string) string
}

type bindArgs struct {
	d    Dialect
	vals []any
}

func (a *bindArgs) add(v any) string {
	a.vals = append(a.vals, v)
	return a.d.ParameterPlaceholder(len(a.vals))
}

// PatternClause renders the restriction of col by p, or "" when p matches
// everything or must be applied client side.
func PatternClause(col string, p respath.SearchPattern, escape string, add func(any) string) string {
	switch p.Mode {
	case respath.MatchExact:
		return col + " = " + add(p.Value)
	case respath.MatchLike:
		return col + " LIKE " + add(p.Value) + escape
	}
	return ""
}

func (s *InfoSchema) prefix(catalog string) string {
	if catalog != "" && s.SchemaPrefix != nil {
		return s.SchemaPrefix(catalog)
	}
	return "information_schema"
}

func (s *InfoSchema) systemSchemaClause(col string) string {
	if len(s.SystemSchemas) == 0 {
		return ""
	}
	quoted := make([]string, len(s.SystemSchemas))
	for i, n := range s.SystemSchemas {
		quoted[i] = "'" + n + "'"
	}
	return col + " NOT IN (" + strings.Join(quoted, ", ") + ")"
}

func where(clauses ...string) string {
	var kept []string
	for _, c := range clauses {
		if c != "" {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(kept, " AND ")
}

// CurrentNamespace implements Introspector.
func (s *InfoSchema) CurrentNamespace(ctx context.Context, q Querier) (string, string, error) {
	var catalog, schema sql.NullString
	if err := q.QueryRowContext(ctx, s.CurrentQuery).Scan(&catalog, &schema); err != nil {
		return "", "", fmt.Errorf("querying current namespace: %w", err)
	}
	if !s.UsesCatalog {
		return "", schema.String, nil
	}
	return catalog.String, schema.String, nil
}

// Types implements Introspector.
func (s *InfoSchema) Types(ctx context.Context, q Querier) ([]typemap.ReportedType, error) {
	if s.TypesQuery == "" {
		return nil, nil
	}
	rows, err := q.QueryContext(ctx, s.TypesQuery)
	if err != nil {
		return nil, fmt.Errorf("querying types: %w", err)
	}
	defer rows.Close()

	var out []typemap.ReportedType
	for rows.Next() {
		var name string
		var precision sql.NullInt64
		if err := rows.Scan(&name, &precision); err != nil {
			return nil, fmt.Errorf("scanning type: %w", err)
		}
		out = append(out, typemap.ReportedType{Name: name, MaxPrecision: int(precision.Int64)})
	}
	return out, rows.Err()
}

// Catalogs implements Introspector.
func (s *InfoSchema) Catalogs(ctx context.Context, q Querier, p respath.SearchPattern) ([]string, error) {
	if s.CatalogsQuery == "" {
		return nil, nil
	}
	names, err := scanStrings(ctx, q, s.CatalogsQuery)
	if err != nil {
		return nil, fmt.Errorf("querying catalogs: %w", err)
	}
	return filterNames(names, p), nil
}

// Schemas implements Introspector.
func (s *InfoSchema) Schemas(ctx context.Context, q Querier, catalog string, p respath.SearchPattern) ([]string, error) {
	a := &bindArgs{d: s.Dialect}
	query := "SELECT schema_name FROM " + s.prefix(catalog) + ".schemata" +
		where(s.systemSchemaClause("schema_name"), PatternClause("schema_name", p, s.LikeEscape, a.add)) +
		" ORDER BY schema_name"
	names, err := scanStrings(ctx, q, query, a.vals...)
	if err != nil {
		return nil, fmt.Errorf("querying schemas: %w", err)
	}
	return filterNames(names, p), nil
}

// Objects implements Introspector.
func (s *InfoSchema) Objects(ctx context.Context, q Querier, f Filter) ([]ObjectInfo, error) {
	a := &bindArgs{d: s.Dialect}
	query := "SELECT table_catalog, table_schema, table_name, table_type FROM " + s.prefix(f.Catalog) + ".tables" +
		where("table_type IN ('BASE TABLE', 'VIEW')",
			s.systemSchemaClause("table_schema"),
			PatternClause("table_schema", f.Schema, s.LikeEscape, a.add),
			PatternClause("table_name", f.Object, s.LikeEscape, a.add)) +
		" ORDER BY table_schema, table_name"

	rows, err := q.QueryContext(ctx, query, a.vals...)
	if err != nil {
		return nil, fmt.Errorf("querying tables: %w", err)
	}
	defer rows.Close()

	var out []ObjectInfo
	for rows.Next() {
		var catalog sql.NullString
		var o ObjectInfo
		var kind string
		if err := rows.Scan(&catalog, &o.Schema, &o.Name, &kind); err != nil {
			return nil, fmt.Errorf("scanning table: %w", err)
		}
		if s.UsesCatalog {
			o.Catalog = catalog.String
		}
		o.View = kind == "VIEW"
		if f.Schema.Matches(o.Schema) && f.Object.Matches(o.Name) {
			out = append(out, o)
		}
	}
	return out, rows.Err()
}

// Columns implements Introspector.
func (s *InfoSchema) Columns(ctx context.Context, q Querier, obj ObjectInfo) ([]ColumnInfo, error) {
	a := &bindArgs{d: s.Dialect}
	query := fmt.Sprintf(`SELECT c.column_name, %s, c.character_maximum_length, c.numeric_precision,
		c.numeric_scale, c.is_nullable, %s, %s
		FROM %s.columns c
		WHERE c.table_schema = %s AND c.table_name = %s
		ORDER BY c.ordinal_position`,
		s.DataTypeExpr, s.AutoIncrementExpr, s.GeneratedExpr, s.prefix(obj.Catalog), a.add(obj.Schema), a.add(obj.Name))

	rows, err := q.QueryContext(ctx, query, a.vals...)
	if err != nil {
		return nil, fmt.Errorf("querying columns of %s.%s: %w", obj.Schema, obj.Name, err)
	}
	defer rows.Close()

	var out []ColumnInfo
	for rows.Next() {
		var c ColumnInfo
		var length, precision, scale sql.NullInt64
		var nullable string
		var autoInc, generated sql.NullInt64
		if err := rows.Scan(&c.Name, &c.DataType, &length, &precision, &scale, &nullable, &autoInc, &generated); err != nil {
			return nil, fmt.Errorf("scanning column: %w", err)
		}
		// MSSQL reports (max) as -1
		if length.Int64 > 0 {
			c.CharLength = int(length.Int64)
		}
		c.NumericPrecision = int(precision.Int64)
		c.NumericScale = int(scale.Int64)
		c.Nullable = strings.EqualFold(nullable, "YES")
		c.AutoIncrement = autoInc.Int64 != 0
		c.Generated = generated.Int64 != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *InfoSchema) keys(ctx context.Context, q Querier, obj ObjectInfo, kind string) ([]KeyInfo, error) {
	a := &bindArgs{d: s.Dialect}
	p := s.prefix(obj.Catalog)
	query := fmt.Sprintf(`SELECT tc.constraint_name, kcu.column_name
		FROM %s.table_constraints tc
		JOIN %s.key_column_usage kcu
		  ON kcu.constraint_schema = tc.constraint_schema
		 AND kcu.constraint_name = tc.constraint_name
		 AND kcu.table_name = tc.table_name
		WHERE tc.constraint_type = '%s' AND tc.table_schema = %s AND tc.table_name = %s
		ORDER BY tc.constraint_name, kcu.ordinal_position`,
		p, p, kind, a.add(obj.Schema), a.add(obj.Name))

	rows, err := q.QueryContext(ctx, query, a.vals...)
	if err != nil {
		return nil, fmt.Errorf("querying %s keys of %s.%s: %w", strings.ToLower(kind), obj.Schema, obj.Name, err)
	}
	defer rows.Close()

	var names, cols []string
	for rows.Next() {
		var n, c string
		if err := rows.Scan(&n, &c); err != nil {
			return nil, fmt.Errorf("scanning key column: %w", err)
		}
		names = append(names, n)
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return GroupKeys(names, cols), nil
}

// PrimaryKey implements Introspector.
func (s *InfoSchema) PrimaryKey(ctx context.Context, q Querier, obj ObjectInfo) (*KeyInfo, error) {
	keys, err := s.keys(ctx, q, obj, "PRIMARY KEY")
	if err != nil || len(keys) == 0 {
		return nil, err
	}
	return &keys[0], nil
}

// UniqueKeys implements Introspector.
func (s *InfoSchema) UniqueKeys(ctx context.Context, q Querier, obj ObjectInfo) ([]KeyInfo, error) {
	return s.keys(ctx, q, obj, "UNIQUE")
}

// ForeignKeys implements Introspector.
func (s *InfoSchema) ForeignKeys(ctx context.Context, q Querier, obj ObjectInfo) ([]ForeignKeyInfo, error) {
	return s.foreignKeys(ctx, q, obj, false)
}

// ReferencingKeys implements Introspector.
func (s *InfoSchema) ReferencingKeys(ctx context.Context, q Querier, obj ObjectInfo) ([]ForeignKeyInfo, error) {
	return s.foreignKeys(ctx, q, obj, true)
}

func (s *InfoSchema) foreignKeys(ctx context.Context, q Querier, obj ObjectInfo, referencing bool) ([]ForeignKeyInfo, error) {
	a := &bindArgs{d: s.Dialect}
	p := s.prefix(obj.Catalog)
	var query string
	if s.FKFromKeyColumnUsage {
		side := "kcu.table_schema = %s AND kcu.table_name = %s"
		if referencing {
			side = "kcu.referenced_table_schema = %s AND kcu.referenced_table_name = %s"
		}
		query = fmt.Sprintf(`SELECT kcu.constraint_name, kcu.table_schema, kcu.table_name, kcu.column_name,
			kcu.referenced_table_schema, kcu.referenced_table_name, kcu.referenced_column_name
			FROM %s.key_column_usage kcu
			WHERE kcu.referenced_table_name IS NOT NULL AND `+side+`
			ORDER BY kcu.table_schema, kcu.table_name, kcu.constraint_name, kcu.ordinal_position`,
			p, a.add(obj.Schema), a.add(obj.Name))
	} else {
		side := "kcu.table_schema = %s AND kcu.table_name = %s"
		if referencing {
			side = "pk.table_schema = %s AND pk.table_name = %s"
		}
		query = fmt.Sprintf(`SELECT rc.constraint_name, kcu.table_schema, kcu.table_name, kcu.column_name,
			pk.table_schema, pk.table_name, pk.column_name
			FROM %s.referential_constraints rc
			JOIN %s.key_column_usage kcu
			  ON kcu.constraint_schema = rc.constraint_schema
			 AND kcu.constraint_name = rc.constraint_name
			JOIN %s.key_column_usage pk
			  ON pk.constraint_schema = rc.unique_constraint_schema
			 AND pk.constraint_name = rc.unique_constraint_name
			 AND pk.ordinal_position = kcu.ordinal_position
			WHERE `+side+`
			ORDER BY kcu.table_schema, kcu.table_name, rc.constraint_name, kcu.ordinal_position`,
			p, p, p, a.add(obj.Schema), a.add(obj.Name))
	}

	rows, err := q.QueryContext(ctx, query, a.vals...)
	if err != nil {
		return nil, fmt.Errorf("querying foreign keys of %s.%s: %w", obj.Schema, obj.Name, err)
	}
	defer rows.Close()

	var out []ForeignKeyInfo
	for rows.Next() {
		var name, col, refCol string
		var tbl, ref ObjectInfo
		if err := rows.Scan(&name, &tbl.Schema, &tbl.Name, &col, &ref.Schema, &ref.Name, &refCol); err != nil {
			return nil, fmt.Errorf("scanning foreign key: %w", err)
		}
		if s.UsesCatalog {
			tbl.Catalog, ref.Catalog = obj.Catalog, obj.Catalog
		}
		n := len(out)
		if n == 0 || out[n-1].Name != name || out[n-1].Table != tbl {
			out = append(out, ForeignKeyInfo{Name: name, Table: tbl, Referenced: ref})
			n++
		}
		fk := &out[n-1]
		fk.Columns = append(fk.Columns, col)
		fk.RefColumns = append(fk.RefColumns, refCol)
	}
	return out, rows.Err()
}

func scanStrings(ctx context.Context, q Querier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func filterNames(names []string, p respath.SearchPattern) []string {
	out := names[:0]
	for _, n := range names {
		if p.Matches(n) {
			out = append(out, n)
		}
	}
	return out
}
