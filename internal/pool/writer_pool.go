// Package pool runs a bounded set of writer goroutines fed from one queue.
package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/johndauphine/tabxfer/internal/logging"
	"github.com/johndauphine/tabxfer/internal/progress"
	"github.com/johndauphine/tabxfer/internal/value"
)

// WriteJob is one batch of decoded rows.
type WriteJob struct {
	Rows [][]value.Value
	Seq  int64
}

// Worker consumes the jobs of one writer goroutine. WriteBatch is called for
// each job; Close once the queue is drained, Abort instead when the run
// failed or was cancelled.
type Worker interface {
	WriteBatch(ctx context.Context, rows [][]value.Value) error
	Close(ctx context.Context) error
	Abort() error
	// Committed is the number of rows durably written.
	Committed() int64
}

// WorkerFactory creates the worker of writer id.
type WorkerFactory func(ctx context.Context, id int) (Worker, error)

// WriterPoolConfig holds the configuration for creating a writer pool.
type WriterPoolConfig struct {
	NumWriters int
	// BufferSize is the number of jobs queued before Submit blocks.
	BufferSize int
	NewWorker  WorkerFactory
	Prog       *progress.Tracker
}

// WriterPool manages a pool of parallel write workers.
type WriterPool struct {
	numWriters int
	newWorker  WorkerFactory
	prog       *progress.Tracker

	jobChan chan WriteJob

	totalWriteTime int64 // atomic, nanoseconds
	totalWritten   int64 // atomic, rows handed to workers
	writeErr       atomic.Pointer[error]

	writerWg sync.WaitGroup
	parent   context.Context
	ctx      context.Context
	cancel   context.CancelFunc

	mu        sync.Mutex
	started   bool
	committed []int64
}

// NewWriterPool creates a writer pool. Nothing runs until Start.
func NewWriterPool(ctx context.Context, cfg WriterPoolConfig) *WriterPool {
	writerCtx, cancel := context.WithCancel(ctx)
	n := cfg.NumWriters
	if n < 1 {
		n = 1
	}
	buf := cfg.BufferSize
	if buf < 1 {
		buf = 1
	}
	logging.Debug("WriterPool: %d writers, queue capacity %d", n, buf)
	return &WriterPool{
		numWriters: n,
		newWorker:  cfg.NewWorker,
		prog:       cfg.Prog,
		jobChan:    make(chan WriteJob, buf),
		parent:     ctx,
		ctx:        writerCtx,
		cancel:     cancel,
		committed:  make([]int64, n),
	}
}

// Start launches the writer goroutines.
func (wp *WriterPool) Start() {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.started {
		return
	}
	for i := 0; i < wp.numWriters; i++ {
		wp.writerWg.Add(1)
		go wp.worker(i)
	}
	wp.started = true
}

func (wp *WriterPool) fail(err error) {
	wp.writeErr.CompareAndSwap(nil, &err)
	wp.cancel()
}

func (wp *WriterPool) worker(id int) {
	defer wp.writerWg.Done()

	w, err := wp.newWorker(wp.ctx, id)
	if err != nil {
		wp.fail(fmt.Errorf("starting writer %d: %w", id, err))
		return
	}
	defer func() {
		wp.mu.Lock()
		wp.committed[id] = w.Committed()
		wp.mu.Unlock()
	}()

	for job := range wp.jobChan {
		select {
		case <-wp.ctx.Done():
			wp.abort(id, w)
			return
		default:
		}

		writeStart := time.Now()
		if err := w.WriteBatch(wp.ctx, job.Rows); err != nil {
			wp.fail(fmt.Errorf("writer %d, batch %d: %w", id, job.Seq, err))
			wp.abort(id, w)
			return
		}
		atomic.AddInt64(&wp.totalWriteTime, int64(time.Since(writeStart)))

		rowCount := int64(len(job.Rows))
		atomic.AddInt64(&wp.totalWritten, rowCount)
		if wp.prog != nil {
			wp.prog.Add(rowCount)
		}
	}

	if wp.ctx.Err() != nil {
		wp.abort(id, w)
		return
	}
	closeStart := time.Now()
	if err := w.Close(wp.ctx); err != nil {
		wp.fail(fmt.Errorf("closing writer %d: %w", id, err))
	}
	atomic.AddInt64(&wp.totalWriteTime, int64(time.Since(closeStart)))
}

func (wp *WriterPool) abort(id int, w Worker) {
	if err := w.Abort(); err != nil {
		logging.Warn("WriterPool: aborting writer %d: %v", id, err)
	}
}

// Submit queues a job, blocking while the queue is full. It returns false
// once the pool has been cancelled.
func (wp *WriterPool) Submit(job WriteJob) bool {
	select {
	case wp.jobChan <- job:
		return true
	case <-wp.ctx.Done():
		return false
	}
}

// Wait closes the queue and waits for every writer to finish.
func (wp *WriterPool) Wait() {
	logging.Debug("WriterPool.Wait: closing jobChan (len=%d)", len(wp.jobChan))
	close(wp.jobChan)
	wp.writerWg.Wait()
	wp.cancel()
	logging.Debug("WriterPool.Wait: all writers finished")
}

// Error returns the first write error, or the cancellation of the context
// the pool was created with.
func (wp *WriterPool) Error() error {
	if err := wp.writeErr.Load(); err != nil {
		return *err
	}
	return wp.parent.Err()
}

// WriteTime returns the total time spent writing, summed over writers.
func (wp *WriterPool) WriteTime() time.Duration {
	return time.Duration(atomic.LoadInt64(&wp.totalWriteTime))
}

// Written returns the rows handed to writers without error.
func (wp *WriterPool) Written() int64 {
	return atomic.LoadInt64(&wp.totalWritten)
}

// Committed returns the rows durably written. It is final after Wait.
func (wp *WriterPool) Committed() int64 {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	var n int64
	for _, c := range wp.committed {
		n += c
	}
	return n
}

// Context returns the writer pool's context.
func (wp *WriterPool) Context() context.Context {
	return wp.ctx
}

// Cancel stops the pool; writers abort their pending work.
func (wp *WriterPool) Cancel() {
	wp.cancel()
}

// NumWriters returns the configured number of workers.
func (wp *WriterPool) NumWriters() int {
	return wp.numWriters
}
