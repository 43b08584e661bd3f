package connection

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/johndauphine/tabxfer/internal/driver"
	"github.com/johndauphine/tabxfer/internal/logging"
	"github.com/johndauphine/tabxfer/internal/model"
	"github.com/johndauphine/tabxfer/internal/respath"
	"github.com/johndauphine/tabxfer/internal/statement"
	"github.com/johndauphine/tabxfer/internal/typemap"
)

// Reference is a foreign key held by another table.
type Reference struct {
	Holder     *model.Resource
	ForeignKey model.ForeignKey
}

// Resolve returns the resource a locator names. Existing tables and views,
// and every schema or catalog, are cached; a table that does not exist yet
// is returned uncached so it can be created.
func (c *Connection) Resolve(ctx context.Context, locator string) (*model.Resource, error) {
	scheme, err := c.Scheme(ctx)
	if err != nil {
		return nil, err
	}
	p, err := scheme.Resolve(locator)
	if err != nil {
		return nil, err
	}
	if p.HasGlob() {
		return nil, &respath.AddressingError{Locator: locator, Reason: "wildcards select several resources"}
	}
	return c.ResolvePath(ctx, p)
}

// ResolvePath is Resolve for an absolute path.
func (c *Connection) ResolvePath(ctx context.Context, p respath.Path) (*model.Resource, error) {
	key := p.String()
	if r, ok := c.cache.Get(key); ok {
		return r, nil
	}
	if p.Selector() != respath.ObjectSelector {
		r, err := model.NewContainer(c.name, p)
		if err != nil {
			return nil, err
		}
		return c.cache.Put(key, r), nil
	}

	info, found, err := c.lookup(ctx, p)
	if err != nil {
		return nil, err
	}
	if !found {
		return model.NewTable(c.name, p, false)
	}
	scheme, err := c.Scheme(ctx)
	if err != nil {
		return nil, err
	}
	p = pathOf(scheme, info)
	r, err := model.NewTable(c.name, p, info.View)
	if err != nil {
		return nil, err
	}
	return c.cache.Put(p.String(), r), nil
}

// Script wraps query text as a resource of this connection.
func (c *Connection) Script(query string) (*model.Resource, error) {
	return model.NewScript(c.name, query)
}

// ResultSet runs shape detection on query text and returns the detected
// columns as a result-set resource, which carries its relation but no
// query and cannot be read back.
func (c *Connection) ResultSet(ctx context.Context, query string) (*model.Resource, error) {
	script, err := c.Script(query)
	if err != nil {
		return nil, err
	}
	rel, err := c.DetectShape(ctx, script.Query)
	if err != nil {
		return nil, err
	}
	return model.NewResultSet(c.name, rel), nil
}

// Forget drops a resource and everything beneath it from the cache.
func (c *Connection) Forget(p respath.Path) {
	c.cache.Invalidate(p)
}

func (c *Connection) lookup(ctx context.Context, p respath.Path) (driver.ObjectInfo, bool, error) {
	scheme, err := c.Scheme(ctx)
	if err != nil {
		return driver.ObjectInfo{}, false, err
	}
	db, err := c.DB(ctx)
	if err != nil {
		return driver.ObjectInfo{}, false, err
	}
	objs, err := c.drv.Introspector().Objects(ctx, db, filterFor(scheme, p))
	if err != nil {
		return driver.ObjectInfo{}, false, fmt.Errorf("looking up %s: %w", p, err)
	}
	name := p.Object().Name
	for _, o := range objs {
		if o.Name == name {
			return o, true, nil
		}
	}
	if scheme.Case != respath.CasePreserve {
		for _, o := range objs {
			if strings.EqualFold(o.Name, name) {
				return o, true, nil
			}
		}
	}
	return driver.ObjectInfo{}, false, nil
}

func filterFor(scheme respath.Scheme, p respath.Path) driver.Filter {
	f := driver.Filter{
		Schema: scheme.CompileGlob(p.Schema()),
		Object: scheme.CompileGlob(p.Object()),
	}
	if cat := p.Catalog(); cat.Kind == respath.Literal {
		f.Catalog = cat.Name
	}
	return f
}

// pathOf turns an introspected object into an absolute path, filling the
// levels the backend did not report from the session defaults.
func pathOf(scheme respath.Scheme, o driver.ObjectInfo) respath.Path {
	catalog, schema := o.Catalog, o.Schema
	if catalog == "" {
		catalog = scheme.CurrentCatalog
	}
	if schema == "" {
		schema = scheme.CurrentSchema
	}
	switch scheme.Width {
	case 3:
		return respath.NewPath(respath.Lit(catalog), respath.Lit(schema), respath.Lit(o.Name))
	case 2:
		return respath.NewPath(respath.Lit(schema), respath.Lit(o.Name))
	}
	return respath.NewPath(respath.Lit(o.Name))
}

func infoOf(r *model.Resource) driver.ObjectInfo {
	return driver.ObjectInfo{
		Catalog: r.Path.Catalog().Name,
		Schema:  r.Path.Schema().Name,
		Name:    r.Path.Object().Name,
		View:    r.Kind == model.KindView,
	}
}

// Select lists the resources a glob matches. Object globs list tables and
// views, restricted to kinds when given; schema and catalog selectors list
// containers.
func (c *Connection) Select(ctx context.Context, glob string, kinds ...model.Kind) ([]*model.Resource, error) {
	scheme, err := c.Scheme(ctx)
	if err != nil {
		return nil, err
	}
	p, err := scheme.Resolve(glob)
	if err != nil {
		return nil, err
	}
	return c.selectPath(ctx, scheme, p, glob, kinds...)
}

// Children lists the tables and views of a schema, or the schemas of a
// catalog. The listing stays on the container until the cache resets it.
func (c *Connection) Children(ctx context.Context, res *model.Resource) ([]*model.Resource, error) {
	if !res.Kind.IsContainer() {
		return nil, fmt.Errorf("%s %s holds no children", res.Kind, res)
	}
	if kids, ok := res.Children(); ok {
		return kids, nil
	}
	scheme, err := c.Scheme(ctx)
	if err != nil {
		return nil, err
	}
	segs := res.Path.Segments()
	for i, s := range segs {
		if !s.IsSet() {
			segs[i] = respath.Segment{Name: "*", Kind: respath.Glob}
			break
		}
	}
	kids, err := c.selectPath(ctx, scheme, respath.NewPath(segs...), res.Path.String())
	if err != nil {
		return nil, err
	}
	if err := res.SetChildren(kids); err != nil {
		return nil, err
	}
	return kids, nil
}

func (c *Connection) selectPath(ctx context.Context, scheme respath.Scheme, p respath.Path, glob string, kinds ...model.Kind) ([]*model.Resource, error) {
	db, err := c.DB(ctx)
	if err != nil {
		return nil, err
	}
	in := c.drv.Introspector()

	var out []*model.Resource
	switch p.Selector() {
	case respath.CatalogSelector:
		names, err := in.Catalogs(ctx, db, scheme.CompileGlob(p.Catalog()))
		if err != nil {
			return nil, fmt.Errorf("listing catalogs: %w", err)
		}
		for _, n := range names {
			r, err := c.ResolvePath(ctx, respath.NewPath(respath.Lit(n), respath.Segment{Kind: respath.Empty}, respath.Segment{Kind: respath.Empty}))
			if err != nil {
				return nil, err
			}
			out = append(out, r)
		}
		return out, nil

	case respath.SchemaSelector:
		if p.Catalog().Kind == respath.Glob {
			return nil, &respath.AddressingError{Locator: glob, Reason: "catalog wildcards are only supported when listing catalogs"}
		}
		names, err := in.Schemas(ctx, db, p.Catalog().Name, scheme.CompileGlob(p.Schema()))
		if err != nil {
			return nil, fmt.Errorf("listing schemas: %w", err)
		}
		for _, n := range names {
			sp, _ := p.Sibling(n)
			r, err := c.ResolvePath(ctx, sp)
			if err != nil {
				return nil, err
			}
			out = append(out, r)
		}
		return out, nil
	}

	if p.Catalog().Kind == respath.Glob {
		return nil, &respath.AddressingError{Locator: glob, Reason: "catalog wildcards are only supported when listing catalogs"}
	}
	f := filterFor(scheme, p)
	objs, err := in.Objects(ctx, db, f)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", glob, err)
	}
	for _, o := range objs {
		if !f.Object.Matches(o.Name) || !f.Schema.Matches(o.Schema) && o.Schema != "" {
			continue
		}
		kind := model.KindTable
		if o.View {
			kind = model.KindView
		}
		if len(kinds) > 0 && !hasKind(kinds, kind) {
			continue
		}
		op := pathOf(scheme, o)
		r, ok := c.cache.Get(op.String())
		if !ok {
			r, err = model.NewTable(c.name, op, o.View)
			if err != nil {
				return nil, err
			}
			r = c.cache.Put(op.String(), r)
		}
		out = append(out, r)
	}
	return out, nil
}

func hasKind(kinds []model.Kind, k model.Kind) bool {
	for _, x := range kinds {
		if x == k {
			return true
		}
	}
	return false
}

// Relation returns the column and key structure of a table, view or script,
// introspecting it on first use.
func (c *Connection) Relation(ctx context.Context, res *model.Resource) (*model.Relation, error) {
	if rel, ok := res.Relation(); ok {
		return rel, nil
	}
	var rel *model.Relation
	var err error
	switch res.Kind {
	case model.KindTable, model.KindView:
		rel, err = c.introspect(ctx, res)
	case model.KindScript:
		rel, err = c.DetectShape(ctx, res.Query)
	default:
		return nil, fmt.Errorf("%s %s has no relation", res.Kind, res)
	}
	if err != nil {
		return nil, err
	}
	if err := res.SetRelation(rel); err != nil {
		return nil, err
	}
	return rel, nil
}

func (c *Connection) introspect(ctx context.Context, res *model.Resource) (*model.Relation, error) {
	db, err := c.DB(ctx)
	if err != nil {
		return nil, err
	}
	types, err := c.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	scheme, err := c.Scheme(ctx)
	if err != nil {
		return nil, err
	}
	in := c.drv.Introspector()
	obj := infoOf(res)

	infos, err := in.Columns(ctx, db, obj)
	if err != nil {
		return nil, fmt.Errorf("reading columns of %s: %w", res, err)
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("%s does not exist or has no columns", res)
	}
	rel := &model.Relation{Path: res.Path}
	for _, ci := range infos {
		rel.Columns = append(rel.Columns, columnOf(types, ci))
	}
	if res.Kind == model.KindView {
		return rel, nil
	}

	pk, err := in.PrimaryKey(ctx, db, obj)
	if err != nil {
		return nil, fmt.Errorf("reading primary key of %s: %w", res, err)
	}
	if pk != nil {
		rel.PrimaryKey = &model.Key{Name: pk.Name, Columns: pk.Columns}
	}
	uks, err := in.UniqueKeys(ctx, db, obj)
	if err != nil {
		return nil, fmt.Errorf("reading unique keys of %s: %w", res, err)
	}
	for _, uk := range uks {
		rel.UniqueKeys = append(rel.UniqueKeys, model.Key{Name: uk.Name, Columns: uk.Columns})
	}
	fks, err := in.ForeignKeys(ctx, db, obj)
	if err != nil {
		return nil, fmt.Errorf("reading foreign keys of %s: %w", res, err)
	}
	for _, fk := range fks {
		rel.ForeignKeys = append(rel.ForeignKeys, model.ForeignKey{
			Name:       fk.Name,
			Columns:    fk.Columns,
			Referenced: pathOf(scheme, fk.Referenced),
			RefColumns: fk.RefColumns,
		})
	}
	return rel, nil
}

// columnOf maps an introspected column onto the catalog. Types the catalog
// cannot name are carried as unbounded text.
func columnOf(types *typemap.Catalog, ci driver.ColumnInfo) model.Column {
	spec, precision, scale := typemap.SplitSpec(ci.DataType)
	entry, err := types.ByName(spec)
	if err != nil {
		logging.Warn("Column %s: %v, treating it as text", ci.Name, err)
		entry = typemap.ANSI(typemap.CodeClob)
	}
	if precision == 0 {
		switch {
		case ci.NumericPrecision > 0 && entry.Kind.IsNumeric():
			precision, scale = ci.NumericPrecision, ci.NumericScale
		case ci.CharLength > 0:
			precision = ci.CharLength
		}
	}
	return model.Column{
		Name:          ci.Name,
		Type:          entry,
		DeclaredType:  ci.DataType,
		Precision:     precision,
		Scale:         scale,
		Nullable:      ci.Nullable,
		AutoIncrement: ci.AutoIncrement,
		Generated:     ci.Generated,
	}
}

// Exists reports whether the resource is present in the backend. Scripts
// and result sets always exist.
func (c *Connection) Exists(ctx context.Context, res *model.Resource) (bool, error) {
	switch res.Kind {
	case model.KindTable, model.KindView:
		_, found, err := c.lookup(ctx, res.Path)
		return found, err
	case model.KindSchema, model.KindCatalog:
		scheme, err := c.Scheme(ctx)
		if err != nil {
			return false, err
		}
		db, err := c.DB(ctx)
		if err != nil {
			return false, err
		}
		var names []string
		if res.Kind == model.KindSchema {
			names, err = c.drv.Introspector().Schemas(ctx, db, res.Path.Catalog().Name, scheme.CompileGlob(res.Path.Schema()))
		} else {
			names, err = c.drv.Introspector().Catalogs(ctx, db, scheme.CompileGlob(res.Path.Catalog()))
		}
		if err != nil {
			return false, err
		}
		return len(names) > 0, nil
	}
	return true, nil
}

func (c *Connection) sourceOf(ctx context.Context, res *model.Resource) (*statement.Builder, statement.Source, error) {
	b, err := c.Builder(ctx)
	if err != nil {
		return nil, statement.Source{}, err
	}
	if res.Kind == model.KindScript {
		return b, statement.Source{Query: res.Query}, nil
	}
	return b, statement.Source{Path: res.Path}, nil
}

// Count returns the number of rows of a table, view or script.
func (c *Connection) Count(ctx context.Context, res *model.Resource) (int64, error) {
	b, src, err := c.sourceOf(ctx, res)
	if err != nil {
		return 0, err
	}
	db, err := c.DB(ctx)
	if err != nil {
		return 0, err
	}
	q := b.Count(src)
	var n int64
	if err := db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, c.WrapError(q, err)
	}
	return n, nil
}

// IsEmpty reports whether the resource has no rows, reading at most one.
func (c *Connection) IsEmpty(ctx context.Context, res *model.Resource) (bool, error) {
	b, src, err := c.sourceOf(ctx, res)
	if err != nil {
		return false, err
	}
	db, err := c.DB(ctx)
	if err != nil {
		return false, err
	}
	q := b.AnyRow(src)
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return false, c.WrapError(q, err)
	}
	defer rows.Close()
	empty := !rows.Next()
	return empty, rows.Err()
}

// ReferencingForeignKeys returns the foreign keys of other tables that point
// at res. Self references are left out.
func (c *Connection) ReferencingForeignKeys(ctx context.Context, res *model.Resource) ([]Reference, error) {
	scheme, err := c.Scheme(ctx)
	if err != nil {
		return nil, err
	}
	db, err := c.DB(ctx)
	if err != nil {
		return nil, err
	}
	fks, err := c.drv.Introspector().ReferencingKeys(ctx, db, infoOf(res))
	if err != nil {
		return nil, fmt.Errorf("reading references to %s: %w", res, err)
	}
	var out []Reference
	for _, fk := range fks {
		hp := pathOf(scheme, fk.Table)
		if hp == res.Path {
			continue
		}
		holder, err := c.ResolvePath(ctx, hp)
		if err != nil {
			return nil, err
		}
		out = append(out, Reference{
			Holder: holder,
			ForeignKey: model.ForeignKey{
				Name:       fk.Name,
				Columns:    fk.Columns,
				Referenced: res.Path,
				RefColumns: fk.RefColumns,
			},
		})
	}
	return out, nil
}

// DetectShape describes the columns a query returns. A uniquely named view
// is created over the query and always dropped afterwards; backends that
// refuse the view fall back to the column types of an empty result. The
// cache is never touched.
func (c *Connection) DetectShape(ctx context.Context, query string) (*model.Relation, error) {
	b, err := c.Builder(ctx)
	if err != nil {
		return nil, err
	}
	scheme, _ := c.Scheme(ctx)
	db, err := c.DB(ctx)
	if err != nil {
		return nil, err
	}

	name := "tabxfer_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	vp, err := scheme.ToAbsolute(respath.NewPath(respath.Lit(name)))
	if err != nil {
		return nil, err
	}
	create, err := b.CreateView(vp, query)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, create); err != nil {
		logging.Debug("Connection %s: cannot create shape view (%v), reading result metadata", c.name, err)
		return c.resultShape(ctx, db, b, query)
	}

	view, err := model.NewTable(c.name, vp, true)
	if err != nil {
		return nil, err
	}
	defer func() {
		drops, err := b.Drop([]*model.Resource{view}, statement.DropOptions{IfExists: true})
		if err != nil {
			logging.Warn("Connection %s: dropping shape view %s: %v", c.name, name, err)
			return
		}
		dctx := context.WithoutCancel(ctx)
		for _, d := range drops {
			if _, err := db.ExecContext(dctx, d); err != nil {
				logging.Warn("Connection %s: %v", c.name, c.WrapError(d, err))
			}
		}
	}()

	rel, err := c.introspect(ctx, view)
	if err != nil {
		return nil, err
	}
	rel.Path = respath.Path{}
	return rel, nil
}

func (c *Connection) resultShape(ctx context.Context, db *sql.DB, b *statement.Builder, query string) (*model.Relation, error) {
	q := "SELECT * FROM " + "(" + strings.TrimRight(strings.TrimSpace(query), ";") + ") src WHERE 1 = 0"
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, c.WrapError(q, err)
	}
	defer rows.Close()
	cts, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("reading result columns: %w", err)
	}
	rel := &model.Relation{}
	for _, ct := range cts {
		ci := driver.ColumnInfo{Name: ct.Name(), DataType: strings.ToLower(ct.DatabaseTypeName())}
		if ci.DataType == "" {
			ci.DataType = "text"
		}
		if n, ok := ct.Nullable(); ok {
			ci.Nullable = n
		} else {
			ci.Nullable = true
		}
		if p, s, ok := ct.DecimalSize(); ok {
			ci.NumericPrecision, ci.NumericScale = int(p), int(s)
		}
		if l, ok := ct.Length(); ok && l > 0 && l < 1<<31 {
			ci.CharLength = int(l)
		}
		rel.Columns = append(rel.Columns, columnOf(b.Types(), ci))
	}
	return rel, rows.Err()
}
