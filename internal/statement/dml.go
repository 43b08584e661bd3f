package statement

import (
	"fmt"
	"sort"
	"strings"

	"github.com/johndauphine/tabxfer/internal/driver"
	"github.com/johndauphine/tabxfer/internal/logging"
	"github.com/johndauphine/tabxfer/internal/model"
	"github.com/johndauphine/tabxfer/internal/respath"
)

// ConflictKey picks the key identifying target rows from source rows: the
// narrowest target unique key whose columns all appear in the source, ties
// broken by name, else the primary key when the source carries it. It
// returns nil when no key is usable.
func ConflictKey(src, tgt *model.Relation) *model.Key {
	var candidates []model.Key
	for _, uk := range tgt.UniqueKeys {
		if len(uk.Columns) > 0 && src.HasColumns(uk.Columns) {
			candidates = append(candidates, uk)
		}
	}
	if len(candidates) > 0 {
		sort.SliceStable(candidates, func(i, j int) bool {
			if len(candidates[i].Columns) != len(candidates[j].Columns) {
				return len(candidates[i].Columns) < len(candidates[j].Columns)
			}
			return candidates[i].Name < candidates[j].Name
		})
		k := candidates[0]
		return &k
	}
	if tgt.PrimaryKey != nil && len(tgt.PrimaryKey.Columns) > 0 && src.HasColumns(tgt.PrimaryKey.Columns) {
		k := *tgt.PrimaryKey
		return &k
	}
	return nil
}

// selectAs renders the source query producing cols, aliasing source columns
// whose spelling differs from the target's.
func (b *Builder) selectAs(src Source, cols []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		name := c
		if src.Relation != nil {
			if sc, ok := src.Relation.Column(c); ok {
				name = sc.Name
			}
		}
		if name == c {
			parts[i] = b.quote(c)
		} else {
			parts[i] = b.quote(name) + " AS " + b.quote(c)
		}
	}
	return "SELECT " + strings.Join(parts, ", ") + " FROM " + b.from(src)
}

func (b *Builder) columnsFor(src Source, tgt *model.Relation) ([]string, error) {
	if src.Relation == nil {
		return nil, fmt.Errorf("source of %s has no known structure", tgt.Name())
	}
	cols := sharedColumns(src.Relation, tgt)
	if len(cols) == 0 {
		return nil, fmt.Errorf("source and %s have no columns in common", tgt.Name())
	}
	return cols, nil
}

// IdentityInsert returns the statements enabling and disabling explicit
// identity values on tgt when cols writes one of its identity columns.
func (b *Builder) IdentityInsert(tgt *model.Relation, cols []string) (on, off string, needed bool) {
	if !b.caps.IdentityInsert {
		return "", "", false
	}
	for _, c := range cols {
		if col, ok := tgt.Column(c); ok && col.AutoIncrement {
			t := b.Table(tgt.Path)
			return "SET IDENTITY_INSERT " + t + " ON", "SET IDENTITY_INSERT " + t + " OFF", true
		}
	}
	return "", "", false
}

func (b *Builder) wrapIdentity(tgt *model.Relation, cols []string, sql string) string {
	on, off, ok := b.IdentityInsert(tgt, cols)
	if !ok {
		return sql
	}
	return on + ";\n" + strings.TrimSuffix(sql, ";") + ";\n" + off
}

// CreateAsSelect renders the creation of tgt from the rows of src.
func (b *Builder) CreateAsSelect(src Source, tgt respath.Path) Statement {
	cols := "*"
	if src.Relation != nil {
		cols = b.columnList(src.Relation.ColumnNames())
	}
	if b.caps.CreateAs == driver.SelectInto {
		return Statement{SQL: "SELECT " + cols + " INTO " + b.Table(tgt) + " FROM " + b.from(src)}
	}
	return Statement{SQL: "CREATE TABLE " + b.Table(tgt) + " AS SELECT " + cols + " FROM " + b.from(src)}
}

// CopyStatements renders a server-side copy: create-as-select when the
// target is absent or has no known columns, else insert-from-select.
func (b *Builder) CopyStatements(src Source, tgt *model.Relation, targetExists bool) ([]Statement, error) {
	if !targetExists || len(tgt.Columns) == 0 {
		var out []Statement
		if targetExists {
			out = append(out, Statement{SQL: "DROP TABLE " + b.Table(tgt.Path)})
		}
		return append(out, b.CreateAsSelect(src, tgt.Path)), nil
	}
	st, err := b.InsertFromSelect(src, tgt)
	if err != nil {
		return nil, err
	}
	return []Statement{st}, nil
}

// InsertFromSelect renders INSERT INTO tgt SELECT ... over the shared
// columns.
func (b *Builder) InsertFromSelect(src Source, tgt *model.Relation) (Statement, error) {
	cols, err := b.columnsFor(src, tgt)
	if err != nil {
		return Statement{}, err
	}
	sql := "INSERT INTO " + b.Table(tgt.Path) + " (" + b.columnList(cols) + ") " + b.selectAs(src, cols)
	return Statement{SQL: b.wrapIdentity(tgt, cols, sql)}, nil
}

// UpsertFromSelect renders an insert-or-update of tgt from src keyed by
// ConflictKey. Without a usable key the conflict clause is omitted and a
// warning logged.
func (b *Builder) UpsertFromSelect(src Source, tgt *model.Relation) (Statement, error) {
	cols, err := b.columnsFor(src, tgt)
	if err != nil {
		return Statement{}, err
	}
	key := ConflictKey(src.Relation, tgt)
	table := b.Table(tgt.Path)
	insert := "INSERT INTO " + table + " (" + b.columnList(cols) + ") " + b.selectAs(src, cols)
	if key == nil {
		logging.Warn("No unique key of %s is covered by the source; upserting as plain insert", tgt.Name())
		return Statement{SQL: b.wrapIdentity(tgt, cols, insert)}, nil
	}
	rest := without(cols, key.Columns)
	var sql string
	switch b.caps.Upsert {
	case driver.UpsertOnDuplicateKey:
		sql = insert + " ON DUPLICATE KEY UPDATE " + b.duplicateKeyUpdate(key.Columns, rest)
	case driver.UpsertMerge:
		sql = b.merge(table, "("+b.selectAs(src, cols)+")", "", cols, key.Columns, rest)
	default:
		// WHERE keeps SQLite from reading ON CONFLICT as a join constraint.
		sql = insert + " WHERE 1=1 ON CONFLICT (" + b.columnList(key.Columns) + ") " + b.onConflictAction(rest)
	}
	return Statement{SQL: b.wrapIdentity(tgt, cols, sql)}, nil
}

func (b *Builder) onConflictAction(rest []string) string {
	if len(rest) == 0 {
		return "DO NOTHING"
	}
	return "DO UPDATE SET " + b.assignments("", "EXCLUDED", rest, ", ")
}

func (b *Builder) duplicateKeyUpdate(key, rest []string) string {
	if len(rest) == 0 {
		q := b.quote(key[0])
		return q + " = " + q
	}
	out := make([]string, len(rest))
	for i, c := range rest {
		q := b.quote(c)
		out[i] = q + " = VALUES(" + q + ")"
	}
	return strings.Join(out, ", ")
}

// merge renders MERGE INTO table AS t USING using AS s. columnAliases is
// appended to the source alias for VALUES sources.
func (b *Builder) merge(table, using, columnAliases string, cols, key, rest []string) string {
	var sb strings.Builder
	sb.WriteString("MERGE INTO " + table + " AS t USING " + using + " AS s" + columnAliases)
	sb.WriteString(" ON " + b.assignments("t", "s", key, " AND "))
	if len(rest) > 0 {
		sb.WriteString(" WHEN MATCHED THEN UPDATE SET " + b.assignments("t", "s", rest, ", "))
	}
	sb.WriteString(" WHEN NOT MATCHED THEN INSERT (" + b.columnList(cols) + ") VALUES (" + b.prefixed("s", cols) + ");")
	return sb.String()
}

func (b *Builder) requireKey(op string, src Source, tgt *model.Relation) (*model.Key, error) {
	key := ConflictKey(src.Relation, tgt)
	if key == nil {
		return nil, fmt.Errorf("%s %s: no unique key or primary key of the target is present in the source", op, tgt.Name())
	}
	return key, nil
}

// UpdateFromSelect renders an update of the non-key columns of tgt from
// the source rows matched on ConflictKey.
func (b *Builder) UpdateFromSelect(src Source, tgt *model.Relation) (Statement, error) {
	cols, err := b.columnsFor(src, tgt)
	if err != nil {
		return Statement{}, err
	}
	key, err := b.requireKey("update", src, tgt)
	if err != nil {
		return Statement{}, err
	}
	rest := without(cols, key.Columns)
	if len(rest) == 0 {
		return Statement{}, fmt.Errorf("update %s: every shared column is a key column", tgt.Name())
	}
	table := b.Table(tgt.Path)
	query := "(" + b.selectAs(src, cols) + ") s"
	on := b.assignments("t", "s", key.Columns, " AND ")
	switch b.caps.Update {
	case driver.UpdateJoinFrom:
		return Statement{SQL: "UPDATE t SET " + b.assignments("t", "s", rest, ", ") +
			" FROM " + table + " AS t JOIN " + query + " ON " + on}, nil
	case driver.UpdateJoinSet:
		return Statement{SQL: "UPDATE " + table + " t JOIN " + query + " ON " + on +
			" SET " + b.assignments("t", "s", rest, ", ")}, nil
	}
	return Statement{SQL: "UPDATE " + table + " AS t SET " + b.assignments("", "s", rest, ", ") +
		" FROM " + query + " WHERE " + on}, nil
}

// DeleteFromSelect renders the deletion of the target rows whose
// ConflictKey tuple appears in the source.
func (b *Builder) DeleteFromSelect(src Source, tgt *model.Relation) (Statement, error) {
	if src.Relation == nil {
		return Statement{}, fmt.Errorf("source of %s has no known structure", tgt.Name())
	}
	key, err := b.requireKey("delete", src, tgt)
	if err != nil {
		return Statement{}, err
	}
	table := b.Table(tgt.Path)
	if len(key.Columns) == 1 {
		return Statement{SQL: "DELETE FROM " + table + " WHERE " + b.quote(key.Columns[0]) +
			" IN (" + b.selectAs(src, key.Columns) + ")"}, nil
	}
	return Statement{SQL: "DELETE FROM " + table + " WHERE EXISTS (SELECT 1 FROM (" + b.selectAs(src, key.Columns) +
		") s WHERE " + b.assignments(b.quote(tgt.Name()), "s", key.Columns, " AND ") + ")"}, nil
}
