package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/johndauphine/tabxfer/internal/connection"
	"github.com/johndauphine/tabxfer/internal/dag"
	"github.com/johndauphine/tabxfer/internal/logging"
	"github.com/johndauphine/tabxfer/internal/model"
	"github.com/johndauphine/tabxfer/internal/statement"
)

// DependentsError is returned when a drop or truncate would break foreign
// keys of relations that were not named and force was not given.
type DependentsError struct {
	Action     string
	Dependents []*model.Relation
}

func (e *DependentsError) Error() string {
	return fmt.Sprintf("%s would break foreign keys of %s; name them or force the operation",
		e.Action, dag.Describe(e.Dependents))
}

// Create creates rels on conn with every referenced relation created before
// its referencers. Where the backend adds constraints after creation, the
// foreign keys are added once every table exists.
func (o *Orchestrator) Create(ctx context.Context, conn *connection.Connection, rels []*model.Relation) (*Report, error) {
	rep := &Report{}
	g := dag.Build(rels)
	if ext := g.External(); len(ext) > 0 {
		logging.Warn("Foreign keys reference %d relations outside the set; they must already exist", len(ext))
	}
	ordered, err := g.CreationOrder()
	if err != nil {
		return rep, err
	}
	b, err := conn.Builder(ctx)
	if err != nil {
		return rep, err
	}
	deferFKs := b.Capabilities().AlterConstraints

	for _, rel := range ordered {
		start := time.Now()
		stmts, err := b.CreateTableStatements(rel, !deferFKs)
		if err == nil {
			err = conn.ExecText(ctx, stmts...)
		}
		conn.Forget(rel.Path)
		if err := o.settle(rep, Outcome{Resource: rel.Path.String() + "@" + conn.Name(), Action: "create", Elapsed: time.Since(start), Err: err}); err != nil {
			return rep, err
		}
	}
	if !deferFKs {
		return rep, nil
	}
	for _, rel := range ordered {
		if len(rel.ForeignKeys) == 0 {
			continue
		}
		start := time.Now()
		stmts, err := b.AddForeignKeys(rel)
		if err == nil {
			err = conn.ExecText(ctx, stmts...)
		}
		if err := o.settle(rep, Outcome{Resource: rel.Path.String() + "@" + conn.Name(), Action: "add-fk", Elapsed: time.Since(start), Err: err}); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

// closure holds the relations of the named tables and of every table that
// references them, directly or transitively.
type closure struct {
	byPath    map[string]*model.Resource
	targets   []*model.Relation
	universe  []*model.Relation
	refs      []connection.Reference
	dependent []*model.Relation
}

func (c *closure) resource(rel *model.Relation) *model.Resource {
	return c.byPath[rel.Path.String()]
}

// referencers loads the relations of tables and walks the referencing
// foreign keys of the backend to find the tables depending on them.
func referencers(ctx context.Context, conn *connection.Connection, tables []*model.Resource) (*closure, error) {
	c := &closure{byPath: make(map[string]*model.Resource)}
	queue := make([]*model.Resource, 0, len(tables))
	for _, t := range tables {
		if t.Kind != model.KindTable {
			continue
		}
		rel, err := conn.Relation(ctx, t)
		if err != nil {
			return nil, err
		}
		c.byPath[t.Path.String()] = t
		c.targets = append(c.targets, rel)
		c.universe = append(c.universe, rel)
		queue = append(queue, t)
	}
	for len(queue) > 0 {
		res := queue[0]
		queue = queue[1:]
		refs, err := conn.ReferencingForeignKeys(ctx, res)
		if err != nil {
			return nil, err
		}
		for _, ref := range refs {
			c.refs = append(c.refs, ref)
			key := ref.Holder.Path.String()
			if _, seen := c.byPath[key]; seen {
				continue
			}
			rel, err := conn.Relation(ctx, ref.Holder)
			if err != nil {
				return nil, err
			}
			c.byPath[key] = ref.Holder
			c.universe = append(c.universe, rel)
			queue = append(queue, ref.Holder)
		}
	}
	c.dependent = dag.Dependents(c.targets, c.universe)
	return c, nil
}

// Truncate empties tables on conn. Tables referencing them that were not
// named make it fail unless force is set; with force they are emptied too,
// referencers first.
func (o *Orchestrator) Truncate(ctx context.Context, conn *connection.Connection, tables []*model.Resource, force bool) (*Report, error) {
	rep := &Report{}
	for _, t := range tables {
		if t.Kind != model.KindTable {
			return rep, fmt.Errorf("%s resource %s cannot be truncated", t.Kind, t)
		}
	}
	cl, err := referencers(ctx, conn, tables)
	if err != nil {
		return rep, err
	}
	if len(cl.dependent) > 0 && !force {
		return rep, &DependentsError{Action: "truncate", Dependents: cl.dependent}
	}
	ordered, err := dag.Build(append(append([]*model.Relation(nil), cl.targets...), cl.dependent...)).DropOrder()
	if err != nil {
		return rep, err
	}
	b, err := conn.Builder(ctx)
	if err != nil {
		return rep, err
	}
	caps := b.Capabilities()

	if caps.Truncate && caps.TruncateMultiple {
		resources := make([]*model.Resource, len(ordered))
		for i, rel := range ordered {
			resources[i] = cl.resource(rel)
		}
		start := time.Now()
		stmts, err := b.Truncate(resources, statement.TruncateOptions{})
		if err == nil {
			err = conn.ExecText(ctx, stmts...)
		}
		for _, r := range resources {
			if err := o.settle(rep, Outcome{Resource: r.String(), Action: "truncate", Elapsed: time.Since(start), Err: err}); err != nil {
				return rep, err
			}
		}
		return rep, nil
	}

	for _, rel := range ordered {
		res := cl.resource(rel)
		start := time.Now()
		var stmts []string
		if caps.Truncate && !caps.TruncateReferenced && referenced(rel, cl.universe) {
			stmts = []string{b.DeleteAll(rel.Path)}
		} else if stmts, err = b.Truncate([]*model.Resource{res}, statement.TruncateOptions{}); err != nil {
			return rep, err
		}
		err := conn.ExecText(ctx, stmts...)
		if err := o.settle(rep, Outcome{Resource: res.String(), Action: "truncate", Elapsed: time.Since(start), Err: err}); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

func referenced(rel *model.Relation, universe []*model.Relation) bool {
	for _, other := range universe {
		if other != rel && other.References(rel.Path) {
			return true
		}
	}
	return false
}

// Drop drops resources on conn. Tables referenced by unlisted tables make it
// fail unless force is set or the backend cascades; with force the
// referencing foreign keys are dropped, or the referencing tables themselves
// where the backend cannot alter constraints.
func (o *Orchestrator) Drop(ctx context.Context, conn *connection.Connection, resources []*model.Resource, opts statement.DropOptions, force bool) (*Report, error) {
	rep := &Report{}
	b, err := conn.Builder(ctx)
	if err != nil {
		return rep, err
	}
	caps := b.Capabilities()

	var tables, others []*model.Resource
	for _, r := range resources {
		if r.Kind == model.KindTable {
			tables = append(tables, r)
		} else {
			others = append(others, r)
		}
	}

	var ordered []*model.Relation
	var cl *closure
	if len(tables) > 0 {
		if cl, err = referencers(ctx, conn, tables); err != nil {
			return rep, err
		}
		cascades := opts.Cascade && caps.DropCascade
		if len(cl.dependent) > 0 && !force && !cascades {
			return rep, &DependentsError{Action: "drop", Dependents: cl.dependent}
		}
		drop := cl.targets
		if len(cl.dependent) > 0 && !cascades {
			if caps.AlterConstraints {
				if err := o.dropReferences(ctx, conn, b, cl, rep); err != nil {
					return rep, err
				}
			} else {
				drop = append(append([]*model.Relation(nil), cl.targets...), cl.dependent...)
			}
		}
		if ordered, err = dag.Build(drop).DropOrder(); err != nil {
			return rep, err
		}
	}

	run := func(res *model.Resource) error {
		start := time.Now()
		stmts, err := b.Drop([]*model.Resource{res}, opts)
		if err == nil {
			err = conn.ExecText(ctx, stmts...)
		}
		if err == nil {
			conn.Forget(res.Path)
		}
		return o.settle(rep, Outcome{Resource: res.String(), Action: "drop", Elapsed: time.Since(start), Err: err})
	}
	for _, rel := range ordered {
		if err := run(cl.resource(rel)); err != nil {
			return rep, err
		}
	}
	for _, r := range others {
		if err := run(r); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

// dropReferences removes the foreign keys that unlisted tables hold on the
// tables being dropped.
func (o *Orchestrator) dropReferences(ctx context.Context, conn *connection.Connection, b *statement.Builder, cl *closure, rep *Report) error {
	targets := make(map[string]bool, len(cl.targets))
	for _, t := range cl.targets {
		targets[t.Path.String()] = true
	}
	for _, ref := range cl.refs {
		holder := ref.Holder.Path.String()
		if targets[holder] || !targets[ref.ForeignKey.Referenced.String()] {
			continue
		}
		rel, err := conn.Relation(ctx, ref.Holder)
		if err != nil {
			return err
		}
		start := time.Now()
		st, err := b.DropForeignKey(rel, ref.ForeignKey)
		if err == nil {
			err = conn.ExecText(ctx, st)
		}
		conn.Forget(ref.Holder.Path)
		out := Outcome{Resource: ref.Holder.String() + " " + ref.ForeignKey.Name, Action: "drop-fk", Elapsed: time.Since(start), Err: err}
		if err := o.settle(rep, out); err != nil {
			return err
		}
	}
	return nil
}
