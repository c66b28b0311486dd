// Package pool provides a worker pool for concurrent date processing.
// Each date's resolution is independent, so dates can run in parallel while
// the steps within one date stay strictly sequential.
package pool

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
)

type (
	// DateProcessor processes a single calendar date into a snapshot row.
	DateProcessor interface {
		ProcessDate(context.Context, time.Time) error
	}

	// PoolOpts contains configuration options for creating a new Pool.
	PoolOpts struct {
		Logg        *slog.Logger  // Structured logger
		WorkerCount int           // Number of worker goroutines
		Processor   DateProcessor // Date processor instance
	}

	// Pool manages a worker pool for concurrent date processing.
	Pool struct {
		logg       *slog.Logger
		workerPool pond.Pool
		processor  DateProcessor
		pending    sync.WaitGroup
		stopOnce   sync.Once
	}
)

// New creates a new Pool instance with the specified number of workers.
func New(o PoolOpts) *Pool {
	return &Pool{
		logg: o.Logg,
		workerPool: pond.NewPool(
			o.WorkerCount,
		),
		processor: o.Processor,
	}
}

// Stop gracefully stops the worker pool, waiting for all in-flight tasks to complete.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.workerPool.StopAndWait()
	})
}

// Push submits a date for processing asynchronously (non-blocking).
// The date will be processed by an available worker from the pool.
func (p *Pool) Push(date time.Time) {
	p.pending.Add(1)
	p.workerPool.Submit(func() {
		defer p.pending.Done()
		ctx := context.Background()
		if err := p.processor.ProcessDate(ctx, date); err != nil {
			p.logg.Error("date processing failed",
				"date", date.Format(time.DateOnly),
				"error", err,
			)
		}
	})
}

// WaitIdle blocks until every pushed date has finished processing.
func (p *Pool) WaitIdle() {
	p.pending.Wait()
}

// Size returns the number of tasks currently waiting in the queue.
func (p *Pool) Size() uint64 {
	return p.workerPool.WaitingTasks()
}

// ActiveWorkers returns the number of workers currently processing tasks.
func (p *Pool) ActiveWorkers() int64 {
	return p.workerPool.RunningWorkers()
}
