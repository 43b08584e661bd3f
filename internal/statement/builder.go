// Package statement renders dialect-correct DDL and DML text for one
// connection. A Builder never executes anything; every method is a pure
// function of its inputs and the connection's dialect, capabilities, type
// catalog and value encodings.
package statement

import (
	"fmt"
	"strings"

	"github.com/johndauphine/tabxfer/internal/driver"
	"github.com/johndauphine/tabxfer/internal/model"
	"github.com/johndauphine/tabxfer/internal/respath"
	"github.com/johndauphine/tabxfer/internal/typemap"
	"github.com/johndauphine/tabxfer/internal/value"
)

// Statement is SQL text with its bind arguments. Args is empty for literal
// and DDL statements.
type Statement struct {
	SQL  string
	Args []any
}

func (s Statement) String() string { return s.SQL }

// Builder renders statements for one connection.
type Builder struct {
	dialect driver.Dialect
	caps    driver.Capabilities
	types   *typemap.Catalog
	enc     value.Encodings
	scheme  respath.Scheme
}

// New returns a Builder. The scheme supplies identifier quoting and the
// qualification rules of the connection.
func New(d driver.Dialect, caps driver.Capabilities, types *typemap.Catalog, enc value.Encodings, scheme respath.Scheme) *Builder {
	return &Builder{dialect: d, caps: caps, types: types, enc: enc, scheme: scheme}
}

// Capabilities returns the capability set the builder renders for.
func (b *Builder) Capabilities() driver.Capabilities { return b.caps }

// Encodings returns the value encodings applied by Coerce and Literal.
func (b *Builder) Encodings() value.Encodings { return b.enc }

// Types returns the type catalog used to render column types.
func (b *Builder) Types() *typemap.Catalog { return b.types }

// Table renders the qualified name of an absolute path.
func (b *Builder) Table(p respath.Path) string {
	return b.scheme.QualifiedName(p)
}

func (b *Builder) quote(name string) string {
	return b.dialect.QuoteIdentifier(name)
}

func (b *Builder) columnList(cols []string) string {
	return driver.ColumnList(b.dialect, cols)
}

// prefixed renders "alias.col" for each column.
func (b *Builder) prefixed(alias string, cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = alias + "." + b.quote(c)
	}
	return strings.Join(out, ", ")
}

// assignments renders "lhs.c = rhs.c" pairs joined by sep. An empty alias
// leaves that side unqualified.
func (b *Builder) assignments(lhs, rhs string, cols []string, sep string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		q := b.quote(c)
		l, r := q, q
		if lhs != "" {
			l = lhs + "." + q
		}
		if rhs != "" {
			r = rhs + "." + q
		}
		out[i] = l + " = " + r
	}
	return strings.Join(out, sep)
}

// Source is the row producer of a server-side statement: a table or view on
// the builder's connection, or a query.
type Source struct {
	Path     respath.Path
	Query    string
	Relation *model.Relation
}

// SourceOf describes a table, view or script resource.
func SourceOf(res *model.Resource) (Source, error) {
	rel, ok := res.Relation()
	if !ok {
		return Source{}, fmt.Errorf("%s has no known structure", res)
	}
	switch res.Kind {
	case model.KindTable, model.KindView:
		return Source{Path: res.Path, Relation: rel}, nil
	case model.KindScript:
		return Source{Query: res.Query, Relation: rel}, nil
	}
	return Source{}, fmt.Errorf("%s resource %s cannot be selected from", res.Kind, res)
}

// Select renders SELECT cols FROM the source.
func (b *Builder) Select(src Source, cols []string) string {
	return "SELECT " + b.columnList(cols) + " FROM " + b.from(src)
}

// SelectAll renders a query returning every column of the source in
// relation order.
func (b *Builder) SelectAll(src Source) string {
	if src.Query != "" && src.Relation == nil {
		return src.Query
	}
	return b.Select(src, src.Relation.ColumnNames())
}

func (b *Builder) from(src Source) string {
	if src.Query != "" {
		return "(" + src.Query + ") src"
	}
	return b.Table(src.Path) + " src"
}

// Count renders SELECT COUNT(*) over the source.
func (b *Builder) Count(src Source) string {
	return "SELECT COUNT(*) FROM " + b.from(src)
}

// AnyRow renders a query returning at most one row of the source.
func (b *Builder) AnyRow(src Source) string {
	return b.dialect.AnyRowQuery(b.from(src))
}

// sharedColumns returns the writable target columns that the source also
// carries, in target order, using the target's spelling.
func sharedColumns(src, tgt *model.Relation) []string {
	var out []string
	for _, c := range tgt.Columns {
		if c.Generated {
			continue
		}
		if _, ok := src.Column(c.Name); ok {
			out = append(out, c.Name)
		}
	}
	return out
}

func without(cols, drop []string) []string {
	var out []string
	for _, c := range cols {
		if !containsFold(drop, c) {
			out = append(out, c)
		}
	}
	return out
}

func containsFold(list []string, s string) bool {
	for _, x := range list {
		if strings.EqualFold(x, s) {
			return true
		}
	}
	return false
}
