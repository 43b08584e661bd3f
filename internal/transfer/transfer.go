// Package transfer moves the rows of one source resource into one target
// resource, choosing between a metadata rename, a statement executed inside
// the backend and a streamed read/write pipeline.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/johndauphine/tabxfer/internal/connection"
	"github.com/johndauphine/tabxfer/internal/logging"
	"github.com/johndauphine/tabxfer/internal/model"
	"github.com/johndauphine/tabxfer/internal/pipeline"
	"github.com/johndauphine/tabxfer/internal/pool"
	"github.com/johndauphine/tabxfer/internal/progress"
	"github.com/johndauphine/tabxfer/internal/statement"
)

// Operation is what a transfer does with the source rows.
type Operation string

const (
	Copy   Operation = "copy"
	Insert Operation = "insert"
	Upsert Operation = "upsert"
	Update Operation = "update"
	Delete Operation = "delete"
	Rename Operation = "rename"
)

// ParseOperation accepts the command-line spelling of an operation.
func ParseOperation(s string) (Operation, error) {
	switch op := Operation(strings.ToLower(strings.TrimSpace(s))); op {
	case Copy, Insert, Upsert, Update, Delete, Rename:
		return op, nil
	}
	return "", fmt.Errorf("unknown operation %q (valid: copy, insert, upsert, update, delete, rename)", s)
}

// keyed operations match target rows on a unique key.
func (o Operation) keyed() bool { return o == Upsert || o == Update || o == Delete }

// Method is how a transfer was carried out.
type Method string

const (
	MethodRename     Method = "rename"
	MethodServerSide Method = "server-side"
	MethodStreamed   Method = "streamed"
)

// Order is one transfer request. Source and Target carry the name of their
// connection in Conn.
type Order struct {
	Source    *model.Resource
	Target    *model.Resource
	Operation Operation
	Config    Config
}

func (o Order) String() string {
	return fmt.Sprintf("%s %s -> %s", o.Operation, o.Source, o.Target)
}

// Result reports one transfer. Rows is the number of rows read or affected;
// Committed counts only rows durably written, -1 when the backend did not
// report it.
type Result struct {
	Rows      int64
	Committed int64
	Elapsed   time.Duration
	Method    Method
}

// Manager runs orders against a fixed set of connections.
type Manager struct {
	conns    map[string]*connection.Connection
	progress func(o Order) *progress.Tracker
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithProgress makes streamed transfers report rows to the tracker newTracker
// returns for each order.
func WithProgress(newTracker func(o Order) *progress.Tracker) ManagerOption {
	return func(m *Manager) { m.progress = newTracker }
}

// NewManager creates a manager over conns, keyed by connection name.
func NewManager(conns []*connection.Connection, opts ...ManagerOption) *Manager {
	m := &Manager{conns: make(map[string]*connection.Connection, len(conns))}
	for _, c := range conns {
		m.conns[c.Name()] = c
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connection returns the connection named name.
func (m *Manager) Connection(name string) (*connection.Connection, error) {
	c, ok := m.conns[name]
	if !ok {
		return nil, fmt.Errorf("unknown connection %q", name)
	}
	return c, nil
}

// plan carries the state of one run between its steps.
type plan struct {
	order  Order
	cfg    Config
	src    *connection.Connection
	tgt    *connection.Connection
	srcRel *model.Relation
	exists bool
}

// Run executes one order.
func (m *Manager) Run(ctx context.Context, o Order) (Result, error) {
	start := time.Now()
	res, err := m.run(ctx, o)
	res.Elapsed = time.Since(start)
	if err != nil {
		return res, fmt.Errorf("%s: %w", o, err)
	}
	logging.Info("%s: %d rows (%s) in %s", o, res.Rows, res.Method, res.Elapsed.Round(time.Millisecond))
	return res, nil
}

func (m *Manager) run(ctx context.Context, o Order) (Result, error) {
	if o.Source == nil || o.Target == nil {
		return Result{}, errors.New("order needs a source and a target")
	}
	cfg := o.Config.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	if o.Target.Kind != model.KindTable {
		return Result{}, fmt.Errorf("target %s is a %s, not a table", o.Target, o.Target.Kind)
	}
	src, err := m.Connection(o.Source.Conn)
	if err != nil {
		return Result{}, err
	}
	tgt, err := m.Connection(o.Target.Conn)
	if err != nil {
		return Result{}, err
	}
	p := &plan{order: o, cfg: cfg, src: src, tgt: tgt}

	if o.Operation == Rename {
		return m.rename(ctx, p)
	}
	if p.srcRel, err = src.Relation(ctx, o.Source); err != nil {
		return Result{}, err
	}
	if err := m.prepareTarget(ctx, p); err != nil {
		return Result{}, err
	}
	if src == tgt && o.Source.Kind != model.KindResultSet {
		return m.serverSide(ctx, p)
	}
	return m.streamed(ctx, p)
}

// prepareTarget applies the pre-operations and records whether the target
// exists afterwards.
func (m *Manager) prepareTarget(ctx context.Context, p *plan) error {
	tgt, target := p.tgt, p.order.Target
	exists, err := tgt.Exists(ctx, target)
	if err != nil {
		return err
	}
	b, err := tgt.Builder(ctx)
	if err != nil {
		return err
	}
	switch {
	case exists && p.cfg.Has(DropIfExists):
		stmts, err := b.Drop([]*model.Resource{target}, statement.DropOptions{IfExists: true})
		if err != nil {
			return err
		}
		if err := tgt.ExecText(ctx, stmts...); err != nil {
			return err
		}
		tgt.Forget(target.Path)
		exists = false
		logging.Info("Dropped %s before %s", target, p.order.Operation)
	case exists && p.cfg.Has(TruncateTarget):
		stmts, err := b.Truncate([]*model.Resource{target}, statement.TruncateOptions{})
		if err != nil {
			return err
		}
		if err := tgt.ExecText(ctx, stmts...); err != nil {
			return err
		}
		logging.Info("Truncated %s before %s", target, p.order.Operation)
	}
	p.exists = exists
	return nil
}

// refresh forgets and re-resolves the target after DDL changed it.
func (p *plan) refresh(ctx context.Context) (*model.Resource, *model.Relation, error) {
	p.tgt.Forget(p.order.Target.Path)
	res, err := p.tgt.ResolvePath(ctx, p.order.Target.Path)
	if err != nil {
		return nil, nil, err
	}
	rel, err := p.tgt.Relation(ctx, res)
	if err != nil {
		return nil, nil, err
	}
	p.order.Target = res
	p.exists = true
	return res, rel, nil
}

func (m *Manager) rename(ctx context.Context, p *plan) (Result, error) {
	from, to := p.order.Source, p.order.Target
	if p.src != p.tgt {
		return Result{}, errors.New("rename needs the source and target on the same connection")
	}
	if from.Kind != model.KindTable {
		return Result{}, fmt.Errorf("%s is a %s; only tables can be renamed", from, from.Kind)
	}
	if ok, err := p.src.Exists(ctx, from); err != nil {
		return Result{}, err
	} else if !ok {
		return Result{}, fmt.Errorf("%s does not exist", from)
	}
	if ok, err := p.tgt.Exists(ctx, to); err != nil {
		return Result{}, err
	} else if ok {
		return Result{}, fmt.Errorf("%s already exists", to)
	}
	b, err := p.src.Builder(ctx)
	if err != nil {
		return Result{}, err
	}
	st, err := b.Rename(from.Path, to.Path)
	if err != nil {
		return Result{}, err
	}
	if err := p.src.ExecText(ctx, st); err != nil {
		return Result{}, err
	}
	p.src.Forget(from.Path)
	p.src.Forget(to.Path)
	return Result{Committed: -1, Method: MethodRename}, nil
}

func (m *Manager) serverSide(ctx context.Context, p *plan) (Result, error) {
	conn := p.src
	b, err := conn.Builder(ctx)
	if err != nil {
		return Result{}, err
	}
	source, err := statement.SourceOf(p.order.Source)
	if err != nil {
		return Result{}, err
	}

	var tgtRel *model.Relation
	if p.exists {
		if tgtRel, err = conn.Relation(ctx, p.order.Target); err != nil {
			return Result{}, err
		}
		if _, err := matchColumns(p.srcRel, tgtRel, p.order.Target.String()); err != nil {
			return Result{}, err
		}
	}

	var stmts []statement.Statement
	switch op := p.order.Operation; op {
	case Copy:
		if p.exists {
			if err := m.requireEmpty(ctx, p); err != nil {
				return Result{}, err
			}
		} else {
			tgtRel = &model.Relation{Path: p.order.Target.Path}
		}
		if stmts, err = b.CopyStatements(source, tgtRel, p.exists); err != nil {
			return Result{}, err
		}
	default:
		if !p.exists {
			if tgtRel, err = m.create(ctx, p); err != nil {
				return Result{}, err
			}
		}
		var st statement.Statement
		switch op {
		case Insert:
			st, err = b.InsertFromSelect(source, tgtRel)
		case Upsert:
			st, err = b.UpsertFromSelect(source, tgtRel)
		case Update:
			st, err = b.UpdateFromSelect(source, tgtRel)
		case Delete:
			st, err = b.DeleteFromSelect(source, tgtRel)
		default:
			err = fmt.Errorf("unsupported operation %q", op)
		}
		if err != nil {
			return Result{}, err
		}
		stmts = []statement.Statement{st}
	}

	res := Result{Method: MethodServerSide}
	for _, st := range stmts {
		n, err := conn.ExecCount(ctx, st)
		if err != nil {
			return res, err
		}
		res.Rows = n
	}
	conn.Forget(p.order.Target.Path)
	if res.Rows <= 0 && p.order.Operation == Copy {
		// create-as-select does not report affected rows on every backend
		if target, err := conn.ResolvePath(ctx, p.order.Target.Path); err == nil {
			if n, err := conn.Count(ctx, target); err == nil {
				res.Rows = n
			}
		}
	}
	res.Committed = res.Rows
	return res, nil
}

func (m *Manager) requireEmpty(ctx context.Context, p *plan) error {
	empty, err := p.tgt.IsEmpty(ctx, p.order.Target)
	if err != nil {
		return err
	}
	if !empty {
		return &NotEmptyError{Target: p.order.Target.String()}
	}
	return nil
}

// create creates the absent target from the source relation and returns the
// target's relation as introspected afterwards.
func (m *Manager) create(ctx context.Context, p *plan) (*model.Relation, error) {
	// a dropped target is recreated for every operation
	if p.order.Operation != Copy && !p.cfg.Has(CreateIfAbsent) && !p.cfg.Has(DropIfExists) {
		return nil, fmt.Errorf("target %s does not exist; add %s to create it", p.order.Target, CreateIfAbsent)
	}
	types, err := p.tgt.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	b, err := p.tgt.Builder(ctx)
	if err != nil {
		return nil, err
	}
	rel, err := MergeRelation(p.srcRel, p.order.Target.Path, types)
	if err != nil {
		return nil, fmt.Errorf("translating %s for %s: %w", p.order.Source, p.tgt.Name(), err)
	}
	stmts, err := b.CreateTableStatements(rel, false)
	if err != nil {
		return nil, err
	}
	if err := p.tgt.ExecText(ctx, stmts...); err != nil {
		return nil, err
	}
	logging.Info("Created %s with %d columns", p.order.Target, len(rel.Columns))
	_, created, err := p.refresh(ctx)
	return created, err
}

func (m *Manager) streamed(ctx context.Context, p *plan) (Result, error) {
	res := Result{Method: MethodStreamed}
	var tgtRel *model.Relation
	var err error
	if p.exists {
		if tgtRel, err = p.tgt.Relation(ctx, p.order.Target); err != nil {
			return res, err
		}
		if p.order.Operation == Copy {
			if err := m.requireEmpty(ctx, p); err != nil {
				return res, err
			}
		}
	} else if tgtRel, err = m.create(ctx, p); err != nil {
		return res, err
	}

	pairs, err := matchColumns(p.srcRel, tgtRel, p.order.Target.String())
	if err != nil {
		return res, err
	}
	var key *model.Key
	if p.order.Operation.keyed() {
		key = statement.ConflictKey(p.srcRel, tgtRel)
		if key == nil && p.order.Operation != Upsert {
			return res, fmt.Errorf("no unique key or primary key of %s is present in the source", p.order.Target)
		}
		if key == nil {
			logging.Warn("No unique key of %s is covered by the source; upserting as plain insert", p.order.Target)
		}
	}
	if p.order.Operation == Delete {
		pairs = keyPairs(pairs, key)
	}

	srcCols := make([]model.Column, len(pairs))
	srcNames := make([]string, len(pairs))
	tgtNames := make([]string, len(pairs))
	for i, pr := range pairs {
		srcCols[i] = *pr.src
		srcNames[i] = pr.src.Name
		tgtNames[i] = pr.tgt.Name
	}
	shape, err := statement.ShapeOf(tgtRel, tgtNames, key)
	if err != nil {
		return res, err
	}

	srcB, err := p.src.Builder(ctx)
	if err != nil {
		return res, err
	}
	tgtB, err := p.tgt.Builder(ctx)
	if err != nil {
		return res, err
	}
	source, err := statement.SourceOf(p.order.Source)
	if err != nil {
		return res, err
	}
	srcDB, err := p.src.DB(ctx)
	if err != nil {
		return res, err
	}

	writers := p.cfg.TargetWorkers
	if limit := p.tgt.MaxWriters(); writers > limit {
		logging.Debug("%s allows %d concurrent writers, not %d", p.tgt.Name(), limit, writers)
		writers = limit
	}

	var prog *progress.Tracker
	if m.progress != nil {
		prog = m.progress(p.order)
		if n, err := p.src.Count(ctx, p.order.Source); err == nil {
			prog.SetTotal(n)
		}
		defer prog.Finish()
	}

	streamCfg := pipeline.StreamConfig{
		BatchSize:       p.cfg.BatchSize,
		CommitFrequency: p.cfg.CommitFrequency,
		Op:              rowOp(p.order.Operation),
		Form:            p.tgt.StatementForm(),
		Name:            p.order.Target.String(),
		Wrap:            p.tgt.WrapError,
	}
	newWriter := func(ctx context.Context, id int) (pool.Worker, error) {
		db, release, err := p.tgt.OpenWriter(ctx)
		if err != nil {
			return nil, err
		}
		cfg := streamCfg
		cfg.Release = release
		return pipeline.NewInsertStream(db, tgtB, shape, cfg), nil
	}

	pl := pipeline.New(pipeline.Source{
		DB:      srcDB,
		Query:   srcB.Select(source, srcNames),
		Columns: srcCols,
		Builder: srcB,
		Name:    p.order.Source.String(),
	}, pipeline.Config{
		FetchSize:      p.cfg.FetchSize,
		BatchSize:      p.cfg.BatchSize,
		Writers:        writers,
		BufferCapacity: p.cfg.BufferCapacity,
	}, newWriter, prog)

	out, err := pl.Run(ctx)
	res.Rows = out.Read
	res.Committed = out.Committed
	if err != nil {
		logging.Error("%s: stopped after %d of %d rows committed", p.order, out.Committed, out.Read)
	}
	return res, err
}

func keyPairs(pairs []columnPair, key *model.Key) []columnPair {
	var out []columnPair
	for _, pr := range pairs {
		for _, k := range key.Columns {
			if strings.EqualFold(pr.tgt.Name, k) {
				out = append(out, pr)
				break
			}
		}
	}
	return out
}

func rowOp(op Operation) pipeline.RowOp {
	switch op {
	case Upsert:
		return pipeline.UpsertRows
	case Update:
		return pipeline.UpdateRows
	case Delete:
		return pipeline.DeleteRows
	}
	return pipeline.InsertRows
}
