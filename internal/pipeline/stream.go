package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/johndauphine/tabxfer/internal/logging"
	"github.com/johndauphine/tabxfer/internal/statement"
	"github.com/johndauphine/tabxfer/internal/value"
)

// ErrStreamClosed is returned by writes after Close or Abort.
var ErrStreamClosed = errors.New("insert stream is closed")

// RowOp renders the statements that apply a batch of rows to the target.
type RowOp func(b *statement.Builder, s statement.Shape, rows [][]value.Value, form statement.Form) ([]statement.Statement, error)

// InsertRows inserts every row.
func InsertRows(b *statement.Builder, s statement.Shape, rows [][]value.Value, form statement.Form) ([]statement.Statement, error) {
	return b.InsertRows(s, rows, form)
}

// UpsertRows inserts rows, updating those whose key already exists.
func UpsertRows(b *statement.Builder, s statement.Shape, rows [][]value.Value, form statement.Form) ([]statement.Statement, error) {
	return b.UpsertRows(s, rows, form)
}

// UpdateRows updates the target row matching each row's key.
func UpdateRows(b *statement.Builder, s statement.Shape, rows [][]value.Value, form statement.Form) ([]statement.Statement, error) {
	return perRow(rows, func(row []value.Value) (statement.Statement, error) {
		return b.UpdateRow(s, row, form)
	})
}

// DeleteRows deletes the target row matching each row's key.
func DeleteRows(b *statement.Builder, s statement.Shape, rows [][]value.Value, form statement.Form) ([]statement.Statement, error) {
	return perRow(rows, func(row []value.Value) (statement.Statement, error) {
		return b.DeleteRow(s, row, form)
	})
}

func perRow(rows [][]value.Value, render func([]value.Value) (statement.Statement, error)) ([]statement.Statement, error) {
	out := make([]statement.Statement, 0, len(rows))
	for _, row := range rows {
		st, err := render(row)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// StreamConfig tunes an InsertStream.
type StreamConfig struct {
	// BatchSize is the number of rows submitted together.
	BatchSize int
	// CommitFrequency is the number of batches between commits.
	CommitFrequency int
	// Op renders a batch; InsertRows when nil.
	Op   RowOp
	Form statement.Form
	// Name labels log lines, usually the target locator.
	Name string
	// Wrap attaches the statement text to an execution error.
	Wrap func(stmt string, err error) error
	// Release is called once when the stream is closed or aborted.
	Release func() error
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// InsertStream buffers rows and writes them in batches on one session,
// committing every CommitFrequency batches. It is used by one goroutine.
type InsertStream struct {
	db    *sql.DB
	b     *statement.Builder
	shape statement.Shape
	cfg   StreamConfig

	conn    *sql.Conn
	tx      *sql.Tx
	pending [][]value.Value

	identityOn, identityOff string
	identity                bool
	identitySet             bool

	sinceCommit int
	uncommitted int64
	rows        int64
	batches     int64
	commits     int64
	committed   int64
	closed      bool
}

// NewInsertStream creates a stream writing shape rows through db.
func NewInsertStream(db *sql.DB, b *statement.Builder, shape statement.Shape, cfg StreamConfig) *InsertStream {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.CommitFrequency < 1 {
		cfg.CommitFrequency = 1
	}
	if cfg.Op == nil {
		cfg.Op = InsertRows
	}
	if cfg.Name == "" {
		cfg.Name = shape.Path.String()
	}
	s := &InsertStream{
		db:      db,
		b:       b,
		shape:   shape,
		cfg:     cfg,
		pending: make([][]value.Value, 0, cfg.BatchSize),
	}
	s.identityOn, s.identityOff, s.identity = b.IdentityInsertFor(shape)
	return s
}

// Write buffers one row, submitting the batch once it is full.
func (s *InsertStream) Write(ctx context.Context, row []value.Value) error {
	if s.closed {
		return ErrStreamClosed
	}
	s.pending = append(s.pending, row)
	if len(s.pending) >= s.cfg.BatchSize {
		return s.submit(ctx)
	}
	return nil
}

// WriteBatch writes rows one by one, so batch boundaries do not depend on
// how the caller groups them.
func (s *InsertStream) WriteBatch(ctx context.Context, rows [][]value.Value) error {
	for _, row := range rows {
		if err := s.Write(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

func (s *InsertStream) session(ctx context.Context) (execer, error) {
	if s.conn == nil {
		conn, err := s.db.Conn(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquiring session for %s: %w", s.cfg.Name, err)
		}
		s.conn = conn
	}
	if !s.b.Capabilities().Transactions {
		if s.identity && !s.identitySet {
			if err := s.exec(ctx, s.conn, s.identityOn); err != nil {
				return nil, err
			}
			s.identitySet = true
		}
		return s.conn, nil
	}
	if s.tx == nil {
		tx, err := s.conn.BeginTx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("beginning transaction on %s: %w", s.cfg.Name, err)
		}
		s.tx = tx
		// identity insert is scoped to the session; it is switched on per
		// transaction and off again before the commit
		if s.identity {
			if err := s.exec(ctx, tx, s.identityOn); err != nil {
				return nil, err
			}
		}
	}
	return s.tx, nil
}

func (s *InsertStream) exec(ctx context.Context, ex execer, st string, args ...any) error {
	if _, err := ex.ExecContext(ctx, st, args...); err != nil {
		if s.cfg.Wrap != nil {
			return s.cfg.Wrap(st, err)
		}
		return fmt.Errorf("executing %s: %w", st, err)
	}
	return nil
}

func (s *InsertStream) submit(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	stmts, err := s.cfg.Op(s.b, s.shape, s.pending, s.cfg.Form)
	if err != nil {
		return fmt.Errorf("rendering batch for %s: %w", s.cfg.Name, err)
	}
	ex, err := s.session(ctx)
	if err != nil {
		return err
	}
	for _, st := range stmts {
		if err := s.exec(ctx, ex, st.SQL, st.Args...); err != nil {
			return err
		}
	}

	n := int64(len(s.pending))
	s.pending = s.pending[:0]
	s.rows += n
	s.batches++
	s.sinceCommit++
	if s.tx == nil {
		s.committed += n
	} else {
		s.uncommitted += n
	}
	if s.sinceCommit >= s.cfg.CommitFrequency {
		return s.commit(ctx)
	}
	return nil
}

func (s *InsertStream) commit(ctx context.Context) error {
	if s.tx != nil {
		if s.identity {
			if err := s.exec(ctx, s.tx, s.identityOff); err != nil {
				return err
			}
		}
		tx := s.tx
		s.tx = nil
		if err := tx.Commit(); err != nil {
			s.uncommitted = 0
			return fmt.Errorf("committing %s: %w", s.cfg.Name, err)
		}
	}
	s.commits++
	s.committed += s.uncommitted
	s.uncommitted = 0
	s.sinceCommit = 0
	return nil
}

// Close submits the final partial batch and commits pending work. A failed
// flush rolls back what was not yet committed. Closing twice is a no-op.
func (s *InsertStream) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	err := s.submit(ctx)
	if err == nil && s.sinceCommit > 0 {
		err = s.commit(ctx)
	}
	if err != nil {
		s.rollback()
	} else if s.identitySet {
		if ierr := s.exec(ctx, s.conn, s.identityOff); ierr != nil {
			logging.Warn("%s: %v", s.cfg.Name, ierr)
		}
	}
	s.closed = true
	logging.Info("%s: %d rows written in %d batches, %d commits, %d rows committed",
		s.cfg.Name, s.rows, s.batches, s.commits, s.committed)
	if rerr := s.release(); err == nil {
		err = rerr
	}
	return err
}

// Abort discards uncommitted work and releases the session.
func (s *InsertStream) Abort() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.pending = nil
	s.rollback()
	logging.Warn("%s: aborted after %d rows, %d committed", s.cfg.Name, s.rows, s.committed)
	return s.release()
}

func (s *InsertStream) rollback() {
	if s.tx != nil {
		if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			logging.Warn("%s: rollback: %v", s.cfg.Name, err)
		}
		s.tx = nil
	}
	s.uncommitted = 0
	s.sinceCommit = 0
}

func (s *InsertStream) release() error {
	var errs []error
	if s.conn != nil {
		errs = append(errs, s.conn.Close())
		s.conn = nil
	}
	if s.cfg.Release != nil {
		errs = append(errs, s.cfg.Release())
		s.cfg.Release = nil
	}
	return errors.Join(errs...)
}

// Rows is the number of rows submitted.
func (s *InsertStream) Rows() int64 { return s.rows }

// Batches is the number of batches submitted.
func (s *InsertStream) Batches() int64 { return s.batches }

// Commits is the number of commits performed.
func (s *InsertStream) Commits() int64 { return s.commits }

// Committed is the number of rows durably written.
func (s *InsertStream) Committed() int64 { return s.committed }
