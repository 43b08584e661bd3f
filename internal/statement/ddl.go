package statement

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/johndauphine/tabxfer/internal/driver"
	"github.com/johndauphine/tabxfer/internal/logging"
	"github.com/johndauphine/tabxfer/internal/model"
	"github.com/johndauphine/tabxfer/internal/respath"
	"github.com/johndauphine/tabxfer/internal/typemap"
)

// ColumnType returns the DDL type text of col in the builder's dialect. The
// column's entry is used as is when it belongs to this catalog; otherwise
// the type is translated through its ANSI code.
func (b *Builder) ColumnType(col *model.Column) (string, error) {
	e, err := b.entryFor(col)
	if err != nil {
		return "", err
	}
	precision, scale := col.Precision, col.Scale
	if e.MaxPrecision > 0 && precision > e.MaxPrecision && e.Unbounded == "" {
		logging.Warn("Column %s: precision %d exceeds %s maximum %d, using %d",
			col.Name, precision, e.Name, e.MaxPrecision, e.MaxPrecision)
		precision = e.MaxPrecision
	}
	if e.MaxScale > 0 && scale > e.MaxScale {
		logging.Warn("Column %s: scale %d exceeds %s maximum %d, using %d",
			col.Name, scale, e.Name, e.MaxScale, e.MaxScale)
		scale = e.MaxScale
	}
	return e.Render(precision, scale), nil
}

func (b *Builder) entryFor(col *model.Column) (*typemap.Entry, error) {
	if col.Type == nil {
		if col.DeclaredType == "" {
			return nil, fmt.Errorf("column %s has no type", col.Name)
		}
		return b.types.ByName(col.DeclaredType)
	}
	if own, err := b.types.ByName(col.Type.Name); err == nil && own.Code == col.Type.Code {
		return own, nil
	}
	code := col.Type.ANSI
	if code == 0 {
		code = col.Type.Code
	}
	return b.types.ByCode(code)
}

func (b *Builder) columnDef(rel *model.Relation, col *model.Column) (string, error) {
	typ, err := b.ColumnType(col)
	if err != nil {
		return "", fmt.Errorf("column %s of %s: %w", col.Name, rel.Name(), err)
	}
	def := b.quote(col.Name) + " " + typ
	if col.AutoIncrement && b.caps.IdentityColumns {
		if clause := b.dialect.IdentityClause(); clause != "" {
			def += " " + clause
		}
	}
	if !col.Nullable || rel.IsPrimaryKeyColumn(col.Name) {
		def += " NOT NULL"
	}
	return def, nil
}

// CreateTable renders CREATE TABLE with typed columns. Constraints are
// declared inline only when the backend cannot add them afterwards.
func (b *Builder) CreateTable(rel *model.Relation) (string, error) {
	if len(rel.Columns) == 0 {
		return "", fmt.Errorf("relation %s has no columns", rel.Name())
	}
	parts := make([]string, 0, len(rel.Columns)+2)
	for i := range rel.Columns {
		def, err := b.columnDef(rel, &rel.Columns[i])
		if err != nil {
			return "", err
		}
		parts = append(parts, def)
	}
	if !b.caps.AlterConstraints {
		if rel.PrimaryKey != nil {
			parts = append(parts, b.primaryKeyClause(rel))
		}
		for i, uk := range rel.UniqueKeys {
			parts = append(parts, b.uniqueClause(rel, uk, i))
		}
		for i, fk := range rel.ForeignKeys {
			parts = append(parts, b.foreignKeyClause(rel, fk, i))
		}
	}
	return "CREATE TABLE " + b.Table(rel.Path) + " (\n    " + strings.Join(parts, ",\n    ") + "\n)", nil
}

// constraintName keeps a declared name unless the backend reserves it, and
// synthesizes one otherwise.
func constraintName(declared, prefix, table string, i int) string {
	if declared != "" && !strings.HasPrefix(strings.ToLower(declared), "sqlite_") {
		return declared
	}
	name := prefix + "_" + table
	if i > 0 || prefix != "pk" {
		name += "_" + strconv.Itoa(i+1)
	}
	return name
}

func (b *Builder) primaryKeyClause(rel *model.Relation) string {
	name := constraintName(rel.PrimaryKey.Name, "pk", rel.Name(), 0)
	return "CONSTRAINT " + b.quote(name) + " PRIMARY KEY (" + b.columnList(rel.PrimaryKey.Columns) + ")"
}

func (b *Builder) uniqueClause(rel *model.Relation, uk model.Key, i int) string {
	name := constraintName(uk.Name, "uk", rel.Name(), i)
	return "CONSTRAINT " + b.quote(name) + " UNIQUE (" + b.columnList(uk.Columns) + ")"
}

func (b *Builder) foreignKeyClause(rel *model.Relation, fk model.ForeignKey, i int) string {
	name := constraintName(fk.Name, "fk", rel.Name(), i)
	return "CONSTRAINT " + b.quote(name) + " FOREIGN KEY (" + b.columnList(fk.Columns) + ") REFERENCES " +
		b.Table(fk.Referenced) + " (" + b.columnList(fk.RefColumns) + ")"
}

func (b *Builder) alterable() error {
	if !b.caps.AlterConstraints {
		return fmt.Errorf("%s cannot add or drop constraints after creation", b.dialect.DBType())
	}
	return nil
}

// AddPrimaryKey renders ALTER TABLE ... ADD CONSTRAINT ... PRIMARY KEY.
func (b *Builder) AddPrimaryKey(rel *model.Relation) (string, error) {
	if err := b.alterable(); err != nil {
		return "", err
	}
	if rel.PrimaryKey == nil {
		return "", fmt.Errorf("relation %s has no primary key", rel.Name())
	}
	return "ALTER TABLE " + b.Table(rel.Path) + " ADD " + b.primaryKeyClause(rel), nil
}

// AddUniqueKeys renders one ALTER TABLE per unique key.
func (b *Builder) AddUniqueKeys(rel *model.Relation) ([]string, error) {
	if err := b.alterable(); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rel.UniqueKeys))
	for i, uk := range rel.UniqueKeys {
		out = append(out, "ALTER TABLE "+b.Table(rel.Path)+" ADD "+b.uniqueClause(rel, uk, i))
	}
	return out, nil
}

// AddForeignKeys renders one ALTER TABLE per foreign key.
func (b *Builder) AddForeignKeys(rel *model.Relation) ([]string, error) {
	if err := b.alterable(); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rel.ForeignKeys))
	for i, fk := range rel.ForeignKeys {
		out = append(out, "ALTER TABLE "+b.Table(rel.Path)+" ADD "+b.foreignKeyClause(rel, fk, i))
	}
	return out, nil
}

// CreateTableStatements renders the table followed by its primary key,
// unique keys and, when withForeignKeys is set, its foreign keys.
func (b *Builder) CreateTableStatements(rel *model.Relation, withForeignKeys bool) ([]string, error) {
	create, err := b.CreateTable(rel)
	if err != nil {
		return nil, err
	}
	out := []string{create}
	if !b.caps.AlterConstraints {
		return out, nil
	}
	if rel.PrimaryKey != nil {
		pk, err := b.AddPrimaryKey(rel)
		if err != nil {
			return nil, err
		}
		out = append(out, pk)
	}
	uks, err := b.AddUniqueKeys(rel)
	if err != nil {
		return nil, err
	}
	out = append(out, uks...)
	if withForeignKeys {
		fks, err := b.AddForeignKeys(rel)
		if err != nil {
			return nil, err
		}
		out = append(out, fks...)
	}
	return out, nil
}

// CreateSchema renders CREATE SCHEMA for the schema segment of p.
func (b *Builder) CreateSchema(p respath.Path) (string, error) {
	if !b.caps.CreateSchema {
		return "", fmt.Errorf("%s does not support CREATE SCHEMA", b.dialect.DBType())
	}
	seg := p.Schema()
	if seg.Kind != respath.Literal {
		return "", fmt.Errorf("path %s names no schema", p)
	}
	return "CREATE SCHEMA " + b.quote(seg.Name), nil
}

// CreateView renders CREATE VIEW p AS query.
func (b *Builder) CreateView(p respath.Path, query string) (string, error) {
	query = strings.TrimRight(strings.TrimSpace(query), ";")
	if query == "" {
		return "", fmt.Errorf("view %s: empty query", p)
	}
	return "CREATE VIEW " + b.Table(p) + " AS " + query, nil
}

// DropOptions are the optional clauses of DROP.
type DropOptions struct {
	IfExists bool
	Cascade  bool
}

// TruncateOptions are the optional clauses of TRUNCATE.
type TruncateOptions struct {
	Cascade bool
}

func dropKeyword(k model.Kind) (string, error) {
	switch k {
	case model.KindTable:
		return "TABLE", nil
	case model.KindView:
		return "VIEW", nil
	case model.KindSchema:
		return "SCHEMA", nil
	case model.KindCatalog:
		return "DATABASE", nil
	}
	return "", fmt.Errorf("%s resources cannot be dropped", k)
}

func (b *Builder) dropName(r *model.Resource) string {
	switch r.Kind {
	case model.KindSchema:
		return b.quote(r.Path.Schema().Name)
	case model.KindCatalog:
		return b.quote(r.Path.Catalog().Name)
	}
	return b.Table(r.Path)
}

// Drop renders DROP statements. Resources of one kind share a statement
// when the backend allows it; flags the backend lacks are left out.
func (b *Builder) Drop(resources []*model.Resource, opts DropOptions) ([]string, error) {
	var out []string
	var kinds []model.Kind
	groups := make(map[model.Kind][]string)
	for _, r := range resources {
		kw, err := dropKeyword(r.Kind)
		if err != nil {
			return nil, err
		}
		name := b.dropName(r)
		if !b.caps.DropMultiple || r.Kind == model.KindCatalog {
			out = append(out, b.drop(kw, []string{name}, opts))
			continue
		}
		if _, ok := groups[r.Kind]; !ok {
			kinds = append(kinds, r.Kind)
		}
		groups[r.Kind] = append(groups[r.Kind], name)
	}
	for _, k := range kinds {
		kw, _ := dropKeyword(k)
		out = append(out, b.drop(kw, groups[k], opts))
	}
	return out, nil
}

func (b *Builder) drop(keyword string, names []string, opts DropOptions) string {
	s := "DROP " + keyword + " "
	if opts.IfExists {
		if b.caps.DropIfExists {
			s += "IF EXISTS "
		} else {
			logging.Debug("%s has no DROP IF EXISTS, omitting the clause", b.dialect.DBType())
		}
	}
	s += strings.Join(names, ", ")
	if opts.Cascade && b.caps.DropCascade && keyword != "DATABASE" {
		s += " CASCADE"
	}
	return s
}

// Truncate renders the statements emptying tables: one multi-table TRUNCATE
// when supported, else one per table, and DELETE FROM when the backend has
// no TRUNCATE.
func (b *Builder) Truncate(tables []*model.Resource, opts TruncateOptions) ([]string, error) {
	names := make([]string, 0, len(tables))
	for _, t := range tables {
		if t.Kind != model.KindTable {
			return nil, fmt.Errorf("%s resource %s cannot be truncated", t.Kind, t)
		}
		names = append(names, b.Table(t.Path))
	}
	if len(names) == 0 {
		return nil, nil
	}
	if !b.caps.Truncate {
		out := make([]string, len(names))
		for i, n := range names {
			out[i] = "DELETE FROM " + n
		}
		return out, nil
	}
	suffix := ""
	if opts.Cascade && b.caps.TruncateCascade {
		suffix = " CASCADE"
	}
	if b.caps.TruncateMultiple {
		return []string{"TRUNCATE TABLE " + strings.Join(names, ", ") + suffix}, nil
	}
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = "TRUNCATE TABLE " + n + suffix
	}
	return out, nil
}

// DeleteAll renders DELETE FROM p, used where TRUNCATE is refused.
func (b *Builder) DeleteAll(p respath.Path) string {
	return "DELETE FROM " + b.Table(p)
}

// DropForeignKey renders the removal of one foreign key of rel.
func (b *Builder) DropForeignKey(rel *model.Relation, fk model.ForeignKey) (string, error) {
	if err := b.alterable(); err != nil {
		return "", err
	}
	if fk.Name == "" {
		return "", fmt.Errorf("foreign key of %s has no name", rel.Name())
	}
	clause := b.caps.DropForeignKey
	if clause == "" {
		clause = "DROP CONSTRAINT"
	}
	return "ALTER TABLE " + b.Table(rel.Path) + " " + clause + " " + b.quote(fk.Name), nil
}

// Rename renders a metadata-only rename of a table within its namespace.
func (b *Builder) Rename(from, to respath.Path) (string, error) {
	if from.Schema() != to.Schema() || from.Catalog() != to.Catalog() {
		return "", fmt.Errorf("cannot rename %s to %s: namespaces differ", from, to)
	}
	newName := to.Object().Name
	switch b.caps.Rename {
	case driver.RenameTable:
		return "RENAME TABLE " + b.Table(from) + " TO " + b.Table(to), nil
	case driver.SpRename:
		old := b.quote(from.Object().Name)
		if s := from.Schema(); s.Kind == respath.Literal {
			old = b.quote(s.Name) + "." + old
		}
		return "EXEC sp_rename N'" + strings.ReplaceAll(old, "'", "''") + "', N'" +
			strings.ReplaceAll(newName, "'", "''") + "'", nil
	}
	return "ALTER TABLE " + b.Table(from) + " RENAME TO " + b.quote(newName), nil
}
