package statement

import (
	"fmt"
	"strings"

	"github.com/johndauphine/tabxfer/internal/driver"
	"github.com/johndauphine/tabxfer/internal/model"
	"github.com/johndauphine/tabxfer/internal/respath"
	"github.com/johndauphine/tabxfer/internal/value"
)

// Form selects how row values reach the backend.
type Form int

const (
	// Placeholders binds values as driver arguments.
	Placeholders Form = iota
	// Literals interpolates values as SQL literal text.
	Literals
)

// ParseForm reads a configured form: "placeholders" (the default when
// empty) or "literal".
func ParseForm(s string) (Form, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "placeholder", "placeholders":
		return Placeholders, nil
	case "literal", "literals":
		return Literals, nil
	}
	return Placeholders, fmt.Errorf("unknown statement form %q (want placeholders or literal)", s)
}

func (f Form) String() string {
	if f == Literals {
		return "literal"
	}
	return "placeholders"
}

// Shape is the target side of row statements: the table, the columns a row
// carries (in row order) and the key columns used to match existing rows.
type Shape struct {
	Path     respath.Path
	Columns  []*model.Column
	Key      []string
	relation *model.Relation
	cols     []string
}

// ShapeOf builds the shape of rows carrying cols of rel. key may be nil for
// insert-only shapes.
func ShapeOf(rel *model.Relation, cols []string, key *model.Key) (Shape, error) {
	s := Shape{Path: rel.Path, relation: rel}
	for _, name := range cols {
		c, ok := rel.Column(name)
		if !ok {
			return Shape{}, fmt.Errorf("%s has no column %s", rel.Name(), name)
		}
		s.Columns = append(s.Columns, c)
		s.cols = append(s.cols, c.Name)
	}
	if key != nil {
		for _, k := range key.Columns {
			if !containsFold(s.cols, k) {
				return Shape{}, fmt.Errorf("key column %s of %s is not carried by the rows", k, rel.Name())
			}
			s.Key = append(s.Key, k)
		}
	}
	return s, nil
}

// ColumnNames returns the target spelling of the shape's columns.
func (s Shape) ColumnNames() []string { return s.cols }

func (s Shape) index(name string) int {
	for i, c := range s.cols {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

// renderer accumulates bind arguments or literal text for one statement.
type renderer struct {
	b    *Builder
	form Form
	args []any
}

func (r *renderer) value(v value.Value, col *model.Column) (string, error) {
	if r.form == Literals {
		return r.b.Literal(v, col)
	}
	a, err := r.b.Coerce(v, col)
	if err != nil {
		return "", err
	}
	r.args = append(r.args, a)
	return r.b.dialect.ParameterPlaceholder(len(r.args)), nil
}

func (r *renderer) tuple(s Shape, row []value.Value) (string, error) {
	if len(row) != len(s.Columns) {
		return "", fmt.Errorf("row has %d values, %s expects %d", len(row), s.Path, len(s.Columns))
	}
	parts := make([]string, len(row))
	for i, v := range row {
		p, err := r.value(v, s.Columns[i])
		if err != nil {
			return "", err
		}
		parts[i] = p
	}
	return "(" + strings.Join(parts, ", ") + ")", nil
}

func (r *renderer) values(s Shape, rows [][]value.Value) (string, error) {
	tuples := make([]string, len(rows))
	for i, row := range rows {
		t, err := r.tuple(s, row)
		if err != nil {
			return "", err
		}
		tuples[i] = t
	}
	return "VALUES " + strings.Join(tuples, ", "), nil
}

// match renders "k = v AND ..." over the key columns of row.
func (r *renderer) match(s Shape, row []value.Value) (string, error) {
	parts := make([]string, len(s.Key))
	for i, k := range s.Key {
		idx := s.index(k)
		p, err := r.value(row[idx], s.Columns[idx])
		if err != nil {
			return "", err
		}
		parts[i] = r.b.quote(s.Columns[idx].Name) + " = " + p
	}
	return strings.Join(parts, " AND "), nil
}

// RowsPerStatement is the number of rows one batched statement may carry
// for the given column count.
func (b *Builder) RowsPerStatement(columns int) int {
	if !b.caps.BatchedSubmission || columns <= 0 {
		return 1
	}
	n := 1000
	if b.caps.ParameterLimit > 0 {
		n = b.caps.ParameterLimit / columns
	}
	if b.caps.MaxValuesRows > 0 && n > b.caps.MaxValuesRows {
		n = b.caps.MaxValuesRows
	}
	if n < 1 {
		n = 1
	}
	return n
}

func (b *Builder) chunks(s Shape, rows [][]value.Value, render func([][]value.Value) (Statement, error)) ([]Statement, error) {
	per := b.RowsPerStatement(len(s.Columns))
	out := make([]Statement, 0, (len(rows)+per-1)/per)
	for start := 0; start < len(rows); start += per {
		end := start + per
		if end > len(rows) {
			end = len(rows)
		}
		st, err := render(rows[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// InsertRow renders an INSERT of one row.
func (b *Builder) InsertRow(s Shape, row []value.Value, form Form) (Statement, error) {
	return b.insertValues(s, [][]value.Value{row}, form)
}

// InsertRows renders the fewest INSERT statements carrying rows within the
// backend's parameter and row limits.
func (b *Builder) InsertRows(s Shape, rows [][]value.Value, form Form) ([]Statement, error) {
	return b.chunks(s, rows, func(batch [][]value.Value) (Statement, error) {
		return b.insertValues(s, batch, form)
	})
}

func (b *Builder) insertValues(s Shape, rows [][]value.Value, form Form) (Statement, error) {
	r := &renderer{b: b, form: form}
	vals, err := r.values(s, rows)
	if err != nil {
		return Statement{}, err
	}
	return Statement{
		SQL:  "INSERT INTO " + b.Table(s.Path) + " (" + b.columnList(s.cols) + ") " + vals,
		Args: r.args,
	}, nil
}

// UpsertRow renders an insert-or-update of one row keyed by the shape key.
func (b *Builder) UpsertRow(s Shape, row []value.Value, form Form) (Statement, error) {
	return b.upsertValues(s, [][]value.Value{row}, form)
}

// UpsertRows is the batched form of UpsertRow.
func (b *Builder) UpsertRows(s Shape, rows [][]value.Value, form Form) ([]Statement, error) {
	return b.chunks(s, rows, func(batch [][]value.Value) (Statement, error) {
		return b.upsertValues(s, batch, form)
	})
}

func (b *Builder) upsertValues(s Shape, rows [][]value.Value, form Form) (Statement, error) {
	if len(s.Key) == 0 {
		return b.insertValues(s, rows, form)
	}
	r := &renderer{b: b, form: form}
	vals, err := r.values(s, rows)
	if err != nil {
		return Statement{}, err
	}
	table := b.Table(s.Path)
	rest := without(s.cols, s.Key)
	insert := "INSERT INTO " + table + " (" + b.columnList(s.cols) + ") " + vals
	var sql string
	switch b.caps.Upsert {
	case driver.UpsertOnDuplicateKey:
		sql = insert + " ON DUPLICATE KEY UPDATE " + b.duplicateKeyUpdate(s.Key, rest)
	case driver.UpsertMerge:
		sql = b.merge(table, "("+vals+")", " ("+b.columnList(s.cols)+")", s.cols, s.Key, rest)
	default:
		sql = insert + " ON CONFLICT (" + b.columnList(s.Key) + ") " + b.onConflictAction(rest)
	}
	return Statement{SQL: sql, Args: r.args}, nil
}

// UpdateRow renders an UPDATE of the non-key columns of the row matched on
// the shape key.
func (b *Builder) UpdateRow(s Shape, row []value.Value, form Form) (Statement, error) {
	if len(s.Key) == 0 {
		return Statement{}, fmt.Errorf("update %s: no key columns", s.Path)
	}
	if len(row) != len(s.Columns) {
		return Statement{}, fmt.Errorf("row has %d values, %s expects %d", len(row), s.Path, len(s.Columns))
	}
	r := &renderer{b: b, form: form}
	var sets []string
	for i, c := range s.Columns {
		if containsFold(s.Key, c.Name) {
			continue
		}
		p, err := r.value(row[i], c)
		if err != nil {
			return Statement{}, err
		}
		sets = append(sets, b.quote(c.Name)+" = "+p)
	}
	if len(sets) == 0 {
		return Statement{}, fmt.Errorf("update %s: every column is a key column", s.Path)
	}
	where, err := r.match(s, row)
	if err != nil {
		return Statement{}, err
	}
	return Statement{
		SQL:  "UPDATE " + b.Table(s.Path) + " SET " + strings.Join(sets, ", ") + " WHERE " + where,
		Args: r.args,
	}, nil
}

// DeleteRow renders a DELETE of the row matched on the shape key.
func (b *Builder) DeleteRow(s Shape, row []value.Value, form Form) (Statement, error) {
	if len(s.Key) == 0 {
		return Statement{}, fmt.Errorf("delete %s: no key columns", s.Path)
	}
	if len(row) != len(s.Columns) {
		return Statement{}, fmt.Errorf("row has %d values, %s expects %d", len(row), s.Path, len(s.Columns))
	}
	r := &renderer{b: b, form: form}
	where, err := r.match(s, row)
	if err != nil {
		return Statement{}, err
	}
	return Statement{SQL: "DELETE FROM " + b.Table(s.Path) + " WHERE " + where, Args: r.args}, nil
}

// IdentityInsertFor is IdentityInsert for the columns of a row shape.
func (b *Builder) IdentityInsertFor(s Shape) (on, off string, needed bool) {
	if s.relation == nil {
		return "", "", false
	}
	return b.IdentityInsert(s.relation, s.cols)
}
