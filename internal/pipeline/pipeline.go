package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/johndauphine/tabxfer/internal/logging"
	"github.com/johndauphine/tabxfer/internal/model"
	"github.com/johndauphine/tabxfer/internal/pool"
	"github.com/johndauphine/tabxfer/internal/progress"
	"github.com/johndauphine/tabxfer/internal/statement"
	"github.com/johndauphine/tabxfer/internal/value"
)

// Config contains pipeline execution configuration.
type Config struct {
	// FetchSize is the number of rows read between cancellation checks and
	// progress log lines.
	FetchSize int

	// BatchSize is the number of rows per queued batch.
	BatchSize int

	// Writers is the number of parallel writer goroutines.
	Writers int

	// BufferCapacity is the number of batches queued between the reader and
	// the writers.
	BufferCapacity int
}

// Source is the query the reader runs and the columns it returns, in order.
type Source struct {
	DB      *sql.DB
	Query   string
	Columns []model.Column
	// Builder decodes raw driver values with the source's encodings.
	Builder *statement.Builder
	Name    string
}

// Result reports one run. Committed counts only rows durably written.
type Result struct {
	Read      int64
	Written   int64
	Committed int64
	Stats     Stats
}

// Pipeline moves the rows of one source query to the writers one worker
// factory creates: one reader, a bounded queue and N writers.
type Pipeline struct {
	src       Source
	cfg       Config
	newWriter pool.WorkerFactory
	prog      *progress.Tracker
}

// New creates a pipeline. prog may be nil.
func New(src Source, cfg Config, newWriter pool.WorkerFactory, prog *progress.Tracker) *Pipeline {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.FetchSize < 1 {
		cfg.FetchSize = cfg.BatchSize
	}
	if cfg.Writers < 1 {
		cfg.Writers = 1
	}
	return &Pipeline{src: src, cfg: cfg, newWriter: newWriter, prog: prog}
}

// Run reads the source to the end, or until a writer fails or ctx is
// cancelled.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	wp := pool.NewWriterPool(ctx, pool.WriterPoolConfig{
		NumWriters: p.cfg.Writers,
		BufferSize: p.cfg.BufferCapacity,
		NewWorker:  p.newWriter,
		Prog:       p.prog,
	})
	wp.Start()

	var res Result
	readErr := p.read(wp.Context(), wp, &res)
	if readErr != nil {
		wp.Cancel()
	}
	wp.Wait()

	res.Written = wp.Written()
	res.Committed = wp.Committed()
	res.Stats.WriteTime = wp.WriteTime()
	res.Stats.Rows = res.Committed
	logging.Debug("%s: %s", p.src.Name, res.Stats.String())

	if err := wp.Error(); err != nil {
		return res, err
	}
	if readErr != nil {
		return res, readErr
	}
	return res, nil
}

func (p *Pipeline) read(ctx context.Context, wp *pool.WriterPool, res *Result) error {
	queryStart := time.Now()
	rows, err := p.src.DB.QueryContext(ctx, p.src.Query)
	res.Stats.QueryTime = time.Since(queryStart)
	if err != nil {
		return fmt.Errorf("querying %s: %w", p.src.Name, err)
	}
	defer rows.Close()

	cols := p.src.Columns
	raw := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range raw {
		dest[i] = &raw[i]
	}

	var seq int64
	batch := make([][]value.Value, 0, p.cfg.BatchSize)
	submit := func() bool {
		if len(batch) == 0 {
			return true
		}
		ok := wp.Submit(pool.WriteJob{Rows: batch, Seq: seq})
		seq++
		batch = make([][]value.Value, 0, p.cfg.BatchSize)
		return ok
	}

	for rows.Next() {
		scanStart := time.Now()
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("scanning %s: %w", p.src.Name, err)
		}
		row := make([]value.Value, len(cols))
		for i := range raw {
			v, err := p.src.Builder.Decode(raw[i], &cols[i])
			if err != nil {
				return fmt.Errorf("decoding %s.%s: %w", p.src.Name, cols[i].Name, err)
			}
			row[i] = v
		}
		res.Stats.ScanTime += time.Since(scanStart)
		res.Read++

		batch = append(batch, row)
		if len(batch) == p.cfg.BatchSize && !submit() {
			return ctx.Err()
		}
		if res.Read%int64(p.cfg.FetchSize) == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			logging.Debug("%s: %d rows read", p.src.Name, res.Read)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", p.src.Name, err)
	}
	if !submit() {
		return ctx.Err()
	}
	return nil
}
