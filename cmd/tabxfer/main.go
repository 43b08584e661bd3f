package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/johndauphine/tabxfer/internal/config"
	"github.com/johndauphine/tabxfer/internal/connection"
	"github.com/johndauphine/tabxfer/internal/logging"
	"github.com/johndauphine/tabxfer/internal/version"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    version.Name,
		Usage:   version.Description,
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "tabxfer.yaml",
				Usage:   "Path to configuration file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override the configured log level (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "transfer",
				Usage:     "Move rows from a source resource to a target resource",
				ArgsUsage: "SOURCE TARGET",
				Action:    runTransfer,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "op",
						Value: "copy",
						Usage: "copy, insert, upsert, update, delete or rename",
					},
					&cli.StringFlag{
						Name:  "query",
						Usage: "Read from this query on the source connection instead of a table",
					},
					&cli.IntFlag{Name: "fetch-size", Usage: "Rows fetched per round trip"},
					&cli.IntFlag{Name: "batch-size", Usage: "Rows per submitted batch"},
					&cli.IntFlag{Name: "commit-frequency", Usage: "Batches between commits"},
					&cli.IntFlag{Name: "workers", Usage: "Concurrent target writers"},
					&cli.IntFlag{Name: "buffer", Usage: "Batches queued between reader and writers"},
					&cli.StringFlag{
						Name:  "target-ops",
						Usage: "Comma-separated target pre-operations: drop_if_exists, truncate, create_if_absent",
					},
					&cli.BoolFlag{Name: "lenient", Usage: "Record failed orders and continue"},
					&cli.BoolFlag{Name: "validate", Usage: "Compare row counts after a copy or insert"},
					&cli.BoolFlag{Name: "no-progress", Usage: "Do not draw progress bars"},
					&cli.BoolFlag{Name: "output-json", Usage: "Print the run result as JSON"},
					&cli.StringFlag{Name: "output-file", Usage: "Write the run result as JSON to this file"},
				},
			},
			{
				Name:      "drop",
				Usage:     "Drop tables, views or schemas",
				ArgsUsage: "RESOURCE...",
				Action:    runDrop,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "if-exists", Usage: "Ignore resources that do not exist"},
					&cli.BoolFlag{Name: "cascade", Usage: "Let the backend drop dependent objects"},
					&cli.BoolFlag{Name: "force", Usage: "Also remove foreign keys or tables referencing the dropped tables"},
					&cli.BoolFlag{Name: "lenient", Usage: "Record failures and continue"},
				},
			},
			{
				Name:      "truncate",
				Usage:     "Remove every row of tables",
				ArgsUsage: "TABLE...",
				Action:    runTruncate,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Usage: "Also empty tables referencing the named tables"},
					&cli.BoolFlag{Name: "lenient", Usage: "Record failures and continue"},
				},
			},
			{
				Name:      "list",
				Usage:     "List resources matching a glob",
				ArgsUsage: "CONNECTION:GLOB",
				Action:    runList,
			},
			{
				Name:      "describe",
				Usage:     "Show the columns and keys of a table, view or query",
				ArgsUsage: "RESOURCE",
				Action:    runDescribe,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "query", Usage: "Describe the result of this query instead"},
				},
			},
			{
				Name:      "types",
				Usage:     "Show the type catalog of a connection",
				ArgsUsage: "CONNECTION",
				Action:    runTypes,
			},
			{
				Name:   "check",
				Usage:  "Open every configured connection and report its state",
				Action: runCheck,
			},
		},
	}
}

// env holds the configuration and the connections built from it.
type env struct {
	cfg   *config.Config
	conns []*connection.Connection
	names map[string]*connection.Connection
}

func setup(c *cli.Context) (*env, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.ApplyLogging()
	if c.IsSet("log-level") {
		lvl, err := logging.ParseLevel(c.String("log-level"))
		if err != nil {
			return nil, err
		}
		logging.SetLevel(lvl)
	}

	e := &env{cfg: cfg, names: make(map[string]*connection.Connection)}
	for _, name := range cfg.ConnectionNames() {
		conn, err := connection.New(name, *cfg.Connections[name])
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("connection %s: %w", name, err)
		}
		e.conns = append(e.conns, conn)
		e.names[name] = conn
	}
	return e, nil
}

func (e *env) connection(name string) (*connection.Connection, error) {
	conn, ok := e.names[name]
	if !ok {
		_, err := e.cfg.Connection(name)
		return nil, err
	}
	return conn, nil
}

// Close closes every connection and flushes the logger.
func (e *env) Close() {
	for _, conn := range e.conns {
		if err := conn.Close(); err != nil {
			logging.Warn("Closing connection %s: %v", conn.Name(), err)
		}
	}
	logging.Sync()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nInterrupted. Cancelling...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
