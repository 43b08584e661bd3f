// Package connection owns one configured backend: its lazily opened handle,
// availability state, type catalog and resource cache.
package connection

import (
	"context"
	"database/sql"
	sqldriver "database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/johndauphine/tabxfer/internal/cache"
	"github.com/johndauphine/tabxfer/internal/dbconfig"
	"github.com/johndauphine/tabxfer/internal/driver"
	"github.com/johndauphine/tabxfer/internal/logging"
	"github.com/johndauphine/tabxfer/internal/respath"
	"github.com/johndauphine/tabxfer/internal/statement"
	"github.com/johndauphine/tabxfer/internal/typemap"
	"github.com/johndauphine/tabxfer/internal/value"
)

const defaultCooldown = 30 * time.Second

// ErrClosed is returned by every call made after Close.
var ErrClosed = errors.New("connection is closed")

// Phase is the availability of a connection.
type Phase int

const (
	Unconnected Phase = iota
	Connected
	Failed
)

func (p Phase) String() string {
	switch p {
	case Unconnected:
		return "unconnected"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// State is a snapshot of the connection state machine. At is when the phase
// was entered; Until and Cause are set only while Failed.
type State struct {
	Phase Phase
	At    time.Time
	Until time.Time
	Cause error
}

// UnavailableError is returned while a failed connection cools down.
type UnavailableError struct {
	Connection string
	Cause      error
	Remaining  time.Duration
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("connection %s unavailable for another %s: %v",
		e.Connection, e.Remaining.Round(time.Second), e.Cause)
}

func (e *UnavailableError) Unwrap() error { return e.Cause }

// StatementError carries the text of a statement the backend rejected.
type StatementError struct {
	Statement string
	// Code is the backend error code, when the driver exposes one.
	Code  string
	Cause error
}

func (e *StatementError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("executing %s: [%s] %v", e.Statement, e.Code, e.Cause)
	}
	return fmt.Sprintf("executing %s: %v", e.Statement, e.Cause)
}

func (e *StatementError) Unwrap() error { return e.Cause }

// Opener creates a database handle from connection settings.
type Opener func(cfg *dbconfig.ConnectionConfig) (*sql.DB, error)

// Option customizes a Connection.
type Option func(*Connection)

// WithClock replaces time.Now, used for the failure cooldown.
func WithClock(now func() time.Time) Option {
	return func(c *Connection) { c.now = now }
}

// WithOpener replaces the driver's Open.
func WithOpener(open Opener) Option {
	return func(c *Connection) { c.open = open }
}

// Connection is one named backend. It is safe for concurrent use.
type Connection struct {
	name  string
	cfg   dbconfig.ConnectionConfig
	drv   driver.Driver
	caps  driver.Capabilities
	enc   value.Encodings
	form  statement.Form
	cache *cache.Cache
	now   func() time.Time
	open  Opener

	mu    sync.Mutex
	state State
	db    *sql.DB
	// suspect is set when a statement failed because the handle was lost;
	// the next DB call pings before handing the handle out.
	suspect bool
	lent    bool
	writers []*sql.DB
	scheme  *respath.Scheme
	types   *typemap.Catalog
	closed  bool
}

// New creates a connection from its settings. Nothing is opened until the
// first call that needs the backend.
func New(name string, cfg dbconfig.ConnectionConfig, opts ...Option) (*Connection, error) {
	d, err := driver.Get(cfg.Type)
	if err != nil {
		return nil, fmt.Errorf("connection %s: %w", name, err)
	}
	enc, err := cfg.Encodings(d.Defaults().Encodings)
	if err != nil {
		return nil, fmt.Errorf("connection %s: %w", name, err)
	}
	form, err := statement.ParseForm(cfg.StatementForm)
	if err != nil {
		return nil, fmt.Errorf("connection %s: %w", name, err)
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}
	resources, err := cache.New(cfg.CachingEnabled(), cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	c := &Connection{
		name:  name,
		cfg:   cfg,
		drv:   d,
		caps:  d.Capabilities(),
		enc:   enc,
		form:  form,
		cache: resources,
		now:   time.Now,
		open:  d.Open,
	}
	for _, o := range opts {
		o(c)
	}
	c.state = State{Phase: Unconnected, At: c.now()}
	return c, nil
}

func (c *Connection) Name() string                      { return c.name }
func (c *Connection) Driver() driver.Driver             { return c.drv }
func (c *Connection) Capabilities() driver.Capabilities { return c.caps }
func (c *Connection) Dialect() driver.Dialect           { return c.drv.Dialect() }
func (c *Connection) Encodings() value.Encodings        { return c.enc }
func (c *Connection) Cache() *cache.Cache               { return c.cache }

// StatementForm is how streamed rows are written to this connection.
func (c *Connection) StatementForm() statement.Form { return c.form }

// State returns the current state, moving a Failed connection whose
// cooldown has passed back to Unconnected.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked()
	return c.state
}

func (c *Connection) expireLocked() {
	if c.state.Phase == Failed && !c.now().Before(c.state.Until) {
		c.state = State{Phase: Unconnected, At: c.now()}
	}
}

// MaxWriters is the number of concurrent writers the connection accepts:
// the configured limit capped by the backend's.
func (c *Connection) MaxWriters() int {
	n := c.caps.MaxWriters
	if n < 1 {
		n = 1
	}
	if c.cfg.MaxWriters > 0 && c.cfg.MaxWriters < n {
		n = c.cfg.MaxWriters
	}
	return n
}

// DB returns the primary handle, opening it on first use and reopening it
// after a statement reported the handle lost.
func (c *Connection) DB(ctx context.Context) (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dbLocked(ctx)
}

func (c *Connection) dbLocked(ctx context.Context) (*sql.DB, error) {
	if c.closed {
		return nil, ErrClosed
	}
	c.expireLocked()
	switch c.state.Phase {
	case Failed:
		return nil, &UnavailableError{Connection: c.name, Cause: c.state.Cause, Remaining: c.state.Until.Sub(c.now())}
	case Connected:
		if !c.suspect {
			return c.db, nil
		}
		err := c.db.PingContext(ctx)
		if err == nil {
			c.suspect = false
			return c.db, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logging.Warn("Connection %s: handle lost (%v), reopening", c.name, err)
		c.db.Close()
		c.db = nil
		c.suspect = false
		c.state = State{Phase: Unconnected, At: c.now()}
	}

	db, err := c.openHandle(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		at := c.now()
		c.state = State{Phase: Failed, At: at, Until: at.Add(c.cfg.Cooldown), Cause: err}
		logging.Error("Connection %s failed, unavailable for %s: %v", c.name, c.cfg.Cooldown, err)
		return nil, &UnavailableError{Connection: c.name, Cause: err, Remaining: c.cfg.Cooldown}
	}
	c.db = db
	c.state = State{Phase: Connected, At: c.now()}
	logging.Debug("Connection %s opened (%s)", c.name, c.drv.Name())
	return db, nil
}

func (c *Connection) openHandle(ctx context.Context) (*sql.DB, error) {
	db, err := c.open(&c.cfg)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", c.drv.Name(), err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging %s: %w", c.drv.Name(), err)
	}
	return db, nil
}

// OpenWriter returns a handle for one writer. Backends that accept a single
// writer share the primary handle. Otherwise the first writer borrows the
// primary handle and later ones get their own; release closes an own handle
// and returns a borrowed one.
func (c *Connection) OpenWriter(ctx context.Context) (*sql.DB, func() error, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	primary, err := c.dbLocked(ctx)
	if err != nil {
		return nil, nil, err
	}
	if c.MaxWriters() <= 1 {
		return primary, func() error { return nil }, nil
	}
	if !c.lent {
		c.lent = true
		var once sync.Once
		return primary, func() error {
			once.Do(func() {
				c.mu.Lock()
				c.lent = false
				c.mu.Unlock()
			})
			return nil
		}, nil
	}
	db, err := c.openHandle(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("opening writer for %s: %w", c.name, err)
	}
	c.writers = append(c.writers, db)
	var once sync.Once
	release := func() error {
		var err error
		once.Do(func() {
			c.mu.Lock()
			for i, w := range c.writers {
				if w == db {
					c.writers = append(c.writers[:i], c.writers[i+1:]...)
					break
				}
			}
			c.mu.Unlock()
			err = db.Close()
		})
		return err
	}
	return db, release, nil
}

// Scheme returns the addressing scheme, reading the session's current
// catalog and schema on first use. A configured schema takes precedence.
func (c *Connection) Scheme(ctx context.Context) (respath.Scheme, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scheme != nil {
		return *c.scheme, nil
	}
	db, err := c.dbLocked(ctx)
	if err != nil {
		return respath.Scheme{}, err
	}
	catalog, schema, err := c.drv.Introspector().CurrentNamespace(ctx, db)
	if err != nil {
		return respath.Scheme{}, fmt.Errorf("connection %s: %w", c.name, err)
	}
	if c.cfg.Schema != "" && c.caps.NamespaceWidth >= 2 {
		schema = c.cfg.Schema
	}
	if catalog == "" && c.caps.NamespaceWidth == 3 {
		catalog = c.cfg.Database
	}
	s := c.caps.Scheme(catalog, schema)
	c.scheme = &s
	return s, nil
}

// Catalog returns the type catalog, built from the backend's type report on
// first use.
func (c *Connection) Catalog(ctx context.Context) (*typemap.Catalog, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.types != nil {
		return c.types, nil
	}
	db, err := c.dbLocked(ctx)
	if err != nil {
		return nil, err
	}
	reported, err := c.drv.Introspector().Types(ctx, db)
	if err != nil {
		logging.Warn("Connection %s: type report unavailable, using built-in types: %v", c.name, err)
		reported = nil
	}
	types, err := typemap.Build(c.drv.Name(), reported)
	if err != nil {
		return nil, fmt.Errorf("building type catalog for %s: %w", c.name, err)
	}
	c.types = types
	return types, nil
}

// Builder returns a statement builder for this connection.
func (c *Connection) Builder(ctx context.Context) (*statement.Builder, error) {
	scheme, err := c.Scheme(ctx)
	if err != nil {
		return nil, err
	}
	types, err := c.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	return statement.New(c.drv.Dialect(), c.caps, types, c.enc, scheme), nil
}

// Exec runs one statement on the primary handle.
func (c *Connection) Exec(ctx context.Context, st statement.Statement) error {
	db, err := c.DB(ctx)
	if err != nil {
		return err
	}
	return c.exec(ctx, db, st)
}

// ExecCount runs one statement and returns the rows it affected, or -1 when
// the backend does not report it.
func (c *Connection) ExecCount(ctx context.Context, st statement.Statement) (int64, error) {
	db, err := c.DB(ctx)
	if err != nil {
		return 0, err
	}
	logging.Debug("[%s] %s", c.name, st.SQL)
	res, err := db.ExecContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return 0, c.WrapError(st.SQL, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return -1, nil
	}
	return n, nil
}

// ExecAll runs statements in order, stopping at the first failure.
func (c *Connection) ExecAll(ctx context.Context, stmts []statement.Statement) error {
	db, err := c.DB(ctx)
	if err != nil {
		return err
	}
	for _, st := range stmts {
		if err := c.exec(ctx, db, st); err != nil {
			return err
		}
	}
	return nil
}

// ExecText runs plain statement texts in order.
func (c *Connection) ExecText(ctx context.Context, texts ...string) error {
	stmts := make([]statement.Statement, len(texts))
	for i, t := range texts {
		stmts[i] = statement.Statement{SQL: t}
	}
	return c.ExecAll(ctx, stmts)
}

// Execer is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (c *Connection) exec(ctx context.Context, db Execer, st statement.Statement) error {
	logging.Debug("[%s] %s", c.name, st.SQL)
	if _, err := db.ExecContext(ctx, st.SQL, st.Args...); err != nil {
		return c.WrapError(st.SQL, err)
	}
	return nil
}

// WrapError attaches the statement text and backend error code to err.
func (c *Connection) WrapError(stmt string, err error) error {
	if handleLost(err) {
		c.mu.Lock()
		c.suspect = true
		c.mu.Unlock()
	}
	se := &StatementError{Statement: stmt, Cause: err}
	if code, ok := c.drv.Dialect().ErrorCode(err); ok {
		se.Code = code
	}
	return se
}

func handleLost(err error) bool {
	return errors.Is(err, sqldriver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		strings.Contains(err.Error(), "sql: database is closed")
}

// Close releases every handle. Calling it again is a no-op.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	var errs []error
	for _, w := range c.writers {
		errs = append(errs, w.Close())
	}
	c.writers = nil
	if c.db != nil {
		errs = append(errs, c.db.Close())
		c.db = nil
	}
	c.cache.Purge()
	c.state = State{Phase: Unconnected, At: c.now()}
	return errors.Join(errs...)
}
