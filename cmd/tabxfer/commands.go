package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/johndauphine/tabxfer/internal/connection"
	"github.com/johndauphine/tabxfer/internal/model"
	"github.com/johndauphine/tabxfer/internal/orchestrator"
	"github.com/johndauphine/tabxfer/internal/progress"
	"github.com/johndauphine/tabxfer/internal/statement"
	"github.com/johndauphine/tabxfer/internal/transfer"
	"github.com/johndauphine/tabxfer/internal/util"
)

// splitLocator splits "conn:locator". The locator part may be empty.
func splitLocator(arg string) (conn, locator string, err error) {
	i := strings.IndexByte(arg, ':')
	if i <= 0 {
		return "", "", fmt.Errorf("%q is not of the form connection:locator", arg)
	}
	return arg[:i], arg[i+1:], nil
}

// transferConfig applies the command-line overrides to the configured
// transfer defaults.
func transferConfig(c *cli.Context, base transfer.Config) (transfer.Config, error) {
	tc := base
	for flag, field := range map[string]*int{
		"fetch-size":       &tc.FetchSize,
		"batch-size":       &tc.BatchSize,
		"commit-frequency": &tc.CommitFrequency,
		"workers":          &tc.TargetWorkers,
		"buffer":           &tc.BufferCapacity,
	} {
		if c.IsSet(flag) {
			*field = c.Int(flag)
		}
	}
	if c.IsSet("target-ops") {
		tc.TargetOperations = nil
		for _, s := range util.SplitCSV(c.String("target-ops")) {
			op, err := transfer.ParseTargetOperation(s)
			if err != nil {
				return tc, err
			}
			tc.TargetOperations = append(tc.TargetOperations, op)
		}
	}
	return tc, tc.Validate()
}

func runTransfer(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("transfer needs SOURCE and TARGET, got %d arguments", c.NArg())
	}
	op, err := transfer.ParseOperation(c.String("op"))
	if err != nil {
		return err
	}
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()
	tc, err := transferConfig(c, e.cfg.Transfer.Config)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	orders, err := e.orders(ctx, c.Args().Get(0), c.Args().Get(1), c.String("query"), op, tc)
	if err != nil {
		return err
	}

	var opts []transfer.ManagerOption
	concurrent := e.cfg.Transfer.MaxConcurrentOrders > 1 && len(orders) > 1
	if !c.Bool("no-progress") && !concurrent {
		opts = append(opts, transfer.WithProgress(func(o transfer.Order) *progress.Tracker {
			return progress.New(o.Target.String())
		}))
	}
	policy := orchestrator.PolicyFor(e.cfg.Transfer.IsStrict() && !c.Bool("lenient"))
	orch := orchestrator.New(e.conns, transfer.NewManager(e.conns, opts...),
		orchestrator.WithPolicy(policy),
		orchestrator.WithMaxConcurrentOrders(e.cfg.Transfer.MaxConcurrentOrders))

	started := time.Now()
	rep, runErr := orch.RunOrders(ctx, orders)
	fmt.Print(rep.Summary())
	if err := outputJSON(c, newRunResult(rep, len(orders), started, time.Now())); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	if failed := rep.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d of %d orders failed", len(failed), len(orders))
	}
	if c.Bool("validate") {
		_, err := orch.Validate(ctx, orders)
		return err
	}
	return nil
}

// orders builds the transfer orders of one command line. A source glob
// yields one order per matching table or view, each targeting the same name
// under the target locator.
func (e *env) orders(ctx context.Context, srcArg, dstArg, query string, op transfer.Operation, tc transfer.Config) ([]transfer.Order, error) {
	srcName, srcLoc, err := splitLocator(srcArg)
	if err != nil {
		return nil, err
	}
	dstName, dstLoc, err := splitLocator(dstArg)
	if err != nil {
		return nil, err
	}
	src, err := e.connection(srcName)
	if err != nil {
		return nil, err
	}
	dst, err := e.connection(dstName)
	if err != nil {
		return nil, err
	}
	order := func(s *model.Resource, locator string) (transfer.Order, error) {
		t, err := dst.Resolve(ctx, locator)
		if err != nil {
			return transfer.Order{}, err
		}
		return transfer.Order{Source: s, Target: t, Operation: op, Config: tc}, nil
	}

	if query != "" {
		if srcLoc != "" {
			return nil, fmt.Errorf("--query reads from a connection; drop %q from the source", srcLoc)
		}
		s, err := src.Script(query)
		if err != nil {
			return nil, err
		}
		o, err := order(s, dstLoc)
		return []transfer.Order{o}, err
	}

	scheme, err := src.Scheme(ctx)
	if err != nil {
		return nil, err
	}
	p, err := scheme.Parse(srcLoc)
	if err != nil {
		return nil, err
	}
	dstScheme, err := dst.Scheme(ctx)
	if err != nil {
		return nil, err
	}
	if !p.HasGlob() {
		s, err := src.Resolve(ctx, srcLoc)
		if err != nil {
			return nil, err
		}
		if dstLoc == "" {
			dstLoc = dstScheme.QuoteIdent(s.Name())
		}
		o, err := order(s, dstLoc)
		return []transfer.Order{o}, err
	}

	sources, err := src.Select(ctx, srcLoc, model.KindTable, model.KindView)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no table or view of %s matches %s", srcName, srcLoc)
	}
	orders := make([]transfer.Order, 0, len(sources))
	for _, s := range sources {
		locator := dstScheme.QuoteIdent(s.Name())
		if dstLoc != "" {
			locator = dstLoc + "." + locator
		}
		o, err := order(s, locator)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// resources resolves arguments of one connection; globs select every
// matching resource.
func (e *env) resources(ctx context.Context, args []string) (*connection.Connection, []*model.Resource, error) {
	if len(args) == 0 {
		return nil, nil, fmt.Errorf("no resources given")
	}
	var conn *connection.Connection
	var out []*model.Resource
	for _, arg := range args {
		name, loc, err := splitLocator(arg)
		if err != nil {
			return nil, nil, err
		}
		c, err := e.connection(name)
		if err != nil {
			return nil, nil, err
		}
		if conn != nil && c != conn {
			return nil, nil, fmt.Errorf("resources of %s and %s cannot be handled together", conn.Name(), c.Name())
		}
		conn = c
		if strings.ContainsAny(loc, "*?") {
			rs, err := c.Select(ctx, loc)
			if err != nil {
				return nil, nil, err
			}
			out = append(out, rs...)
			continue
		}
		r, err := c.Resolve(ctx, loc)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, r)
	}
	return conn, out, nil
}

func runDrop(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()
	ctx, cancel := signalContext()
	defer cancel()

	conn, res, err := e.resources(ctx, c.Args().Slice())
	if err != nil {
		return err
	}
	orch := orchestrator.New(e.conns, nil, orchestrator.WithPolicy(orchestrator.PolicyFor(!c.Bool("lenient"))))
	opts := statement.DropOptions{IfExists: c.Bool("if-exists"), Cascade: c.Bool("cascade")}
	rep, err := orch.Drop(ctx, conn, res, opts, c.Bool("force"))
	fmt.Print(rep.Summary())
	if err != nil {
		return err
	}
	return rep.Err()
}

func runTruncate(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()
	ctx, cancel := signalContext()
	defer cancel()

	conn, res, err := e.resources(ctx, c.Args().Slice())
	if err != nil {
		return err
	}
	orch := orchestrator.New(e.conns, nil, orchestrator.WithPolicy(orchestrator.PolicyFor(!c.Bool("lenient"))))
	rep, err := orch.Truncate(ctx, conn, res, c.Bool("force"))
	fmt.Print(rep.Summary())
	if err != nil {
		return err
	}
	return rep.Err()
}

func runList(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("list needs one CONNECTION:GLOB argument")
	}
	name, glob, err := splitLocator(c.Args().First())
	if err != nil {
		return err
	}
	if glob == "" {
		glob = "*"
	}
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()
	conn, err := e.connection(name)
	if err != nil {
		return err
	}
	ctx := context.Background()
	rs, err := listResources(ctx, conn, glob)
	if err != nil {
		return err
	}
	scheme, err := conn.Scheme(ctx)
	if err != nil {
		return err
	}
	for _, r := range rs {
		fmt.Printf("%-8s %s\n", r.Kind, scheme.Format(scheme.ToRelative(r.Path)))
	}
	return nil
}

// listResources lists the children of a named schema or catalog, and the
// matches of anything else.
func listResources(ctx context.Context, conn *connection.Connection, glob string) ([]*model.Resource, error) {
	if !strings.ContainsAny(glob, "*?") {
		if res, err := conn.Resolve(ctx, glob); err == nil && res.Kind.IsContainer() {
			return conn.Children(ctx, res)
		}
	}
	return conn.Select(ctx, glob)
}

func runDescribe(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("describe needs one RESOURCE argument")
	}
	name, loc, err := splitLocator(c.Args().First())
	if err != nil {
		return err
	}
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()
	conn, err := e.connection(name)
	if err != nil {
		return err
	}
	ctx := context.Background()
	var res *model.Resource
	if q := c.String("query"); q != "" {
		res, err = conn.ResultSet(ctx, q)
	} else {
		res, err = conn.Resolve(ctx, loc)
	}
	if err != nil {
		return err
	}
	rel, err := conn.Relation(ctx, res)
	if err != nil {
		return err
	}
	printRelation(rel)
	return nil
}

func printRelation(rel *model.Relation) {
	fmt.Printf("%-30s %-24s %-10s %s\n", "COLUMN", "TYPE", "NULL", "KIND")
	for _, col := range rel.Columns {
		null := "NOT NULL"
		if col.Nullable {
			null = "NULL"
		}
		kind := ""
		if col.Type != nil {
			kind = col.Type.Kind.String()
		}
		var flags []string
		if rel.IsPrimaryKeyColumn(col.Name) {
			flags = append(flags, "pk")
		}
		if col.AutoIncrement {
			flags = append(flags, "autoincrement")
		}
		if col.Generated {
			flags = append(flags, "generated")
		}
		fmt.Printf("%-30s %-24s %-10s %s %s\n", col.Name, col.DeclaredType, null, kind, strings.Join(flags, ","))
	}
	if pk := rel.PrimaryKey; pk != nil {
		fmt.Printf("\nprimary key %s (%s)\n", pk.Name, strings.Join(pk.Columns, ", "))
	}
	for _, uk := range rel.UniqueKeys {
		fmt.Printf("unique %s (%s)\n", uk.Name, strings.Join(uk.Columns, ", "))
	}
	for _, fk := range rel.ForeignKeys {
		fmt.Printf("foreign key %s (%s) references %s (%s)\n",
			fk.Name, strings.Join(fk.Columns, ", "), fk.Referenced, strings.Join(fk.RefColumns, ", "))
	}
}

func runTypes(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("types needs one CONNECTION argument")
	}
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()
	conn, err := e.connection(strings.TrimSuffix(c.Args().First(), ":"))
	if err != nil {
		return err
	}
	types, err := conn.Catalog(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("%-28s %-22s %-10s %10s  %s\n", "NAME", "ANSI", "KIND", "PRECISION", "ALIASES")
	for _, entry := range types.Entries() {
		fmt.Printf("%-28s %-22s %-10s %10d  %s\n",
			entry.Name, entry.ANSI, entry.Kind, entry.MaxPrecision, strings.Join(entry.Aliases, ", "))
	}
	return nil
}

func runCheck(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()
	ctx, cancel := signalContext()
	defer cancel()

	res := orchestrator.New(e.conns, nil).HealthCheck(ctx)
	for _, h := range res.Connections {
		if h.Connected {
			fmt.Printf("%-20s %-10s OK     %s tables, %s\n", h.Name, h.Type, humanize.Comma(int64(h.Tables)), h.Latency.Round(time.Millisecond))
			continue
		}
		fmt.Printf("%-20s %-10s %-6s %s\n", h.Name, h.Type, strings.ToUpper(h.State.String()), h.Error)
	}
	if !res.Healthy {
		return fmt.Errorf("one or more connections are unavailable")
	}
	return nil
}
