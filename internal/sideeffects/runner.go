// Package sideeffects runs best-effort work after a request has been answered:
// loyalty accrual, event mirroring, promo redemption, dispatch cancellation.
// Tasks never affect the caller. Failures are logged and counted.
package sideeffects

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dejobratic/nooks/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultWorkers   = 4
	DefaultQueueSize = 256
	DefaultTimeout   = 10 * time.Second
)

// Task is one unit of best-effort work.
type Task = func(ctx context.Context) error

type Config struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

type job struct {
	name string
	fn   Task
	link trace.Link
}

// Runner executes tasks on a fixed worker pool fed by a bounded queue.
type Runner struct {
	cfg     Config
	logger  *slog.Logger
	metrics *Metrics

	mu     sync.RWMutex
	closed bool
	queue  chan job
	wg     sync.WaitGroup
}

func NewRunner(cfg Config, logger *slog.Logger, metrics *Metrics) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Runner{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		queue:   make(chan job, cfg.QueueSize),
	}
}

// Submit enqueues fn under name. The task runs detached from ctx; its span is
// linked to the span in ctx. Submit reports false when the task was dropped
// because the queue is full or the runner has stopped.
func (r *Runner) Submit(ctx context.Context, name string, fn Task) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.closed {
		select {
		case r.queue <- job{name: name, fn: fn, link: trace.LinkFromContext(ctx)}:
			return true
		default:
		}
	}

	r.metrics.RecordTask(ctx, name, statusDropped, 0)
	r.logger.WarnContext(ctx, "side effect dropped", "task", name)
	return false
}

// Run starts the workers and blocks until ctx is cancelled. Queued tasks are
// drained before Run returns.
func (r *Runner) Run(ctx context.Context) error {
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.work()
	}

	<-ctx.Done()

	r.mu.Lock()
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
	return nil
}

func (r *Runner) work() {
	defer r.wg.Done()
	for j := range r.queue {
		r.execute(j)
	}
}

func (r *Runner) execute(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Timeout)
	defer cancel()

	ctx, span := telemetry.StartSpan(ctx, "sideeffect."+j.name, trace.WithLinks(j.link))
	defer span.End()
	telemetry.AddSpanAttributes(span, attribute.String("side_effect.task", j.name))

	start := time.Now()
	err := runSafely(ctx, j.fn)
	duration := time.Since(start).Seconds()

	if err != nil {
		telemetry.RecordSpanError(span, err)
		r.metrics.RecordTask(ctx, j.name, statusFailure, duration)
		r.logger.ErrorContext(ctx, "side effect failed", "task", j.name, "error", err)
		return
	}

	telemetry.SetSpanSuccess(span)
	r.metrics.RecordTask(ctx, j.name, statusSuccess, duration)
}

func runSafely(ctx context.Context, fn Task) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn(ctx)
}
