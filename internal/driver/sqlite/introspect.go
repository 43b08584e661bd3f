package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/johndauphine/tabxfer/internal/driver"
	"github.com/johndauphine/tabxfer/internal/respath"
	"github.com/johndauphine/tabxfer/internal/typemap"
)

// Introspector reads sqlite_master and the pragma table-valued functions.
// SQLite has no information_schema, and constraint names are synthesized
// when the schema does not declare them.
type Introspector struct{}

var _ driver.Introspector = (*Introspector)(nil)

func (i *Introspector) CurrentNamespace(context.Context, driver.Querier) (string, string, error) {
	return "", "", nil
}

// Types returns nil: the built-in table describes SQLite's type affinities.
func (i *Introspector) Types(context.Context, driver.Querier) ([]typemap.ReportedType, error) {
	return nil, nil
}

func (i *Introspector) Catalogs(context.Context, driver.Querier, respath.SearchPattern) ([]string, error) {
	return nil, nil
}

func (i *Introspector) Schemas(context.Context, driver.Querier, string, respath.SearchPattern) ([]string, error) {
	return nil, nil
}

func (i *Introspector) Objects(ctx context.Context, q driver.Querier, f driver.Filter) ([]driver.ObjectInfo, error) {
	var args []any
	add := func(v any) string {
		args = append(args, v)
		return "?"
	}
	query := "SELECT name, type FROM sqlite_master WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite\\_%' ESCAPE '\\'"
	if c := driver.PatternClause("name", f.Object, "", add); c != "" {
		query += " AND " + c
	}
	query += " ORDER BY name"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sqlite_master: %w", err)
	}
	defer rows.Close()

	var out []driver.ObjectInfo
	for rows.Next() {
		var name, kind string
		if err := rows.Scan(&name, &kind); err != nil {
			return nil, fmt.Errorf("scanning object: %w", err)
		}
		if f.Object.Matches(name) {
			out = append(out, driver.ObjectInfo{Name: name, View: kind == "view"})
		}
	}
	return out, rows.Err()
}

type xinfo struct {
	name     string
	declType string
	notNull  bool
	pk       int
	hidden   int
}

func tableInfo(ctx context.Context, q driver.Querier, table string) ([]xinfo, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT name, type, "notnull", pk, hidden FROM pragma_table_xinfo(?) ORDER BY cid`, table)
	if err != nil {
		return nil, fmt.Errorf("querying columns of %s: %w", table, err)
	}
	defer rows.Close()

	var out []xinfo
	for rows.Next() {
		var c xinfo
		if err := rows.Scan(&c.name, &c.declType, &c.notNull, &c.pk, &c.hidden); err != nil {
			return nil, fmt.Errorf("scanning column: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Columns reports generated columns (hidden 2 and 3) and treats a sole
// INTEGER primary key as the rowid alias, which auto-increments.
func (i *Introspector) Columns(ctx context.Context, q driver.Querier, obj driver.ObjectInfo) ([]driver.ColumnInfo, error) {
	info, err := tableInfo(ctx, q, obj.Name)
	if err != nil {
		return nil, err
	}
	pkCount := 0
	for _, c := range info {
		if c.pk > 0 {
			pkCount++
		}
	}

	out := make([]driver.ColumnInfo, 0, len(info))
	for _, c := range info {
		if c.hidden == 1 {
			continue
		}
		declType := strings.TrimSpace(c.declType)
		if declType == "" {
			declType = "blob"
		}
		rowid := pkCount == 1 && c.pk == 1 && strings.EqualFold(declType, "integer")
		out = append(out, driver.ColumnInfo{
			Name:          c.name,
			DataType:      declType,
			Nullable:      !c.notNull && !rowid,
			AutoIncrement: rowid,
			Generated:     c.hidden == 2 || c.hidden == 3,
		})
	}
	return out, nil
}

func (i *Introspector) PrimaryKey(ctx context.Context, q driver.Querier, obj driver.ObjectInfo) (*driver.KeyInfo, error) {
	info, err := tableInfo(ctx, q, obj.Name)
	if err != nil {
		return nil, err
	}
	var pk []xinfo
	for _, c := range info {
		if c.pk > 0 {
			pk = append(pk, c)
		}
	}
	if len(pk) == 0 {
		return nil, nil
	}
	sort.Slice(pk, func(a, b int) bool { return pk[a].pk < pk[b].pk })
	key := &driver.KeyInfo{Name: "pk_" + obj.Name}
	for _, c := range pk {
		key.Columns = append(key.Columns, c.name)
	}
	return key, nil
}

// UniqueKeys returns the unique constraints and unique indexes.
func (i *Introspector) UniqueKeys(ctx context.Context, q driver.Querier, obj driver.ObjectInfo) ([]driver.KeyInfo, error) {
	names, err := scanStrings(ctx, q,
		`SELECT name FROM pragma_index_list(?) WHERE "unique" = 1 AND origin IN ('u', 'c') ORDER BY name`, obj.Name)
	if err != nil {
		return nil, fmt.Errorf("querying indexes of %s: %w", obj.Name, err)
	}
	keys := make([]driver.KeyInfo, 0, len(names))
	for _, n := range names {
		cols, err := scanStrings(ctx, q, `SELECT name FROM pragma_index_info(?) ORDER BY seqno`, n)
		if err != nil {
			return nil, fmt.Errorf("querying index %s: %w", n, err)
		}
		keys = append(keys, driver.KeyInfo{Name: n, Columns: cols})
	}
	return keys, nil
}

// ForeignKeys names each key fk_<table>_<id>. A reference without column
// list targets the referenced table's primary key.
func (i *Introspector) ForeignKeys(ctx context.Context, q driver.Querier, obj driver.ObjectInfo) ([]driver.ForeignKeyInfo, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, "table", "from", "to" FROM pragma_foreign_key_list(?) ORDER BY id, seq`, obj.Name)
	if err != nil {
		return nil, fmt.Errorf("querying foreign keys of %s: %w", obj.Name, err)
	}
	var out []driver.ForeignKeyInfo
	var missing []bool
	lastID := -1
	for rows.Next() {
		var id int
		var ref, from string
		var to sql.NullString
		if err := rows.Scan(&id, &ref, &from, &to); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning foreign key: %w", err)
		}
		if id != lastID {
			out = append(out, driver.ForeignKeyInfo{
				Name:       "fk_" + obj.Name + "_" + strconv.Itoa(id),
				Table:      driver.ObjectInfo{Name: obj.Name},
				Referenced: driver.ObjectInfo{Name: ref},
			})
			missing = append(missing, false)
			lastID = id
		}
		fk := &out[len(out)-1]
		fk.Columns = append(fk.Columns, from)
		fk.RefColumns = append(fk.RefColumns, to.String)
		if !to.Valid || to.String == "" {
			missing[len(missing)-1] = true
		}
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}

	for n := range out {
		if !missing[n] {
			continue
		}
		pk, err := i.PrimaryKey(ctx, q, out[n].Referenced)
		if err != nil {
			return nil, err
		}
		if pk == nil || len(pk.Columns) != len(out[n].Columns) {
			return nil, fmt.Errorf("foreign key %s references %s without a matching primary key",
				out[n].Name, out[n].Referenced.Name)
		}
		out[n].RefColumns = append([]string(nil), pk.Columns...)
	}
	return out, nil
}

// ReferencingKeys scans every table, since SQLite keeps no reverse index of
// foreign keys.
func (i *Introspector) ReferencingKeys(ctx context.Context, q driver.Querier, obj driver.ObjectInfo) ([]driver.ForeignKeyInfo, error) {
	tables, err := i.Objects(ctx, q, driver.Filter{})
	if err != nil {
		return nil, err
	}
	var out []driver.ForeignKeyInfo
	for _, t := range tables {
		if t.View {
			continue
		}
		fks, err := i.ForeignKeys(ctx, q, t)
		if err != nil {
			return nil, err
		}
		for _, fk := range fks {
			if strings.EqualFold(fk.Referenced.Name, obj.Name) {
				out = append(out, fk)
			}
		}
	}
	return out, nil
}

func scanStrings(ctx context.Context, q driver.Querier, query string, args ...any) ([]string, error) {
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
