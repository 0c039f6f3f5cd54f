package scanning

import (
	"context"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	domain "github.com/ahrav/frostfile/internal/domain/scanning"
	"github.com/ahrav/frostfile/pkg/common/logger"
)

// Coordinator runs scan jobs. Each job enumerates its root in the
// background, fans the files out to a fixed pool of workers and folds every
// result into the job aggregate. Only one job is current at a time; starting
// another cancels and detaches the previous one.
type Coordinator struct {
	scanner    Scanner
	enumerator Enumerator
	sink       EventSink
	workers    int

	mu      sync.Mutex
	current *run

	logger  *logger.Logger
	metrics ScanMetrics
	tracer  trace.Tracer
}

// run is the per-job state owned by the coordinator.
type run struct {
	job      *domain.Job
	cancel   context.CancelFunc
	notifier *notifier
	logger   *logger.Logger
}

// NewCoordinator creates a Coordinator. A workers value of zero or less uses
// runtime.GOMAXPROCS(0).
func NewCoordinator(
	scanner Scanner,
	enumerator Enumerator,
	sink EventSink,
	workers int,
	logger *logger.Logger,
	metrics ScanMetrics,
	tracer trace.Tracer,
) (*Coordinator, error) {
	if scanner == nil {
		return nil, ErrNoScanner
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	return &Coordinator{
		scanner:    scanner,
		enumerator: enumerator,
		sink:       sink,
		workers:    workers,
		logger:     logger.With("component", "coordinator"),
		metrics:    metrics,
		tracer:     tracer,
	}, nil
}

// Workers returns the size of the worker pool.
func (c *Coordinator) Workers() int { return c.workers }

// Start begins scanning root and returns without waiting for any work. The
// returned job can be polled through Snapshot or joined through Done.
func (c *Coordinator) Start(ctx context.Context, root string) (*domain.Job, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.scanning.start",
		trace.WithAttributes(attribute.String("root", root)))
	defer span.End()

	job := domain.NewJob(root)
	if err := job.BeginEnumeration(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to begin enumeration")
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{
		job:    job,
		cancel: cancel,
		logger: c.logger.With("job_id", job.JobID().String(), "root", root),
	}
	r.notifier = newNotifier(c.sink, r.logger)

	c.mu.Lock()
	prev := c.current
	c.current = r
	c.mu.Unlock()

	if prev != nil {
		prev.notifier.detach()
		c.cancelRun(ctx, prev)
		r.logger.Info(ctx, "Superseded previous scan", "previous_job_id", prev.job.JobID().String())
	}

	go r.notifier.run(context.WithoutCancel(runCtx))
	go c.execute(runCtx, r)

	span.SetAttributes(attribute.String("job_id", job.JobID().String()))
	span.SetStatus(codes.Ok, "scan started")
	r.logger.Info(ctx, "Scan started", "workers", c.workers)

	return job, nil
}

// Cancel asks the current job to stop. Dispatch halts once the request is
// observed, files already being scanned finish, and the job then becomes
// Cancelled. Calling Cancel with no running job, or more than once, is a
// no-op.
func (c *Coordinator) Cancel(ctx context.Context) {
	c.mu.Lock()
	r := c.current
	c.mu.Unlock()

	if r == nil {
		return
	}
	c.cancelRun(ctx, r)
}

func (c *Coordinator) cancelRun(ctx context.Context, r *run) {
	if r.job.RequestCancel() {
		r.logger.Info(ctx, "Scan cancellation requested")
	}
	r.cancel()
}

// Snapshot returns the progress of the current job, or an Idle snapshot when
// no job was ever started.
func (c *Coordinator) Snapshot() domain.Progress {
	c.mu.Lock()
	r := c.current
	c.mu.Unlock()

	if r == nil {
		return domain.Progress{Status: domain.JobStatusIdle}
	}
	return r.job.Snapshot()
}

// Current returns the current job, or nil before the first Start.
func (c *Coordinator) Current() *domain.Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	return c.current.job
}

// Drained returns a channel closed once every event of the current job has
// been handed to the sink. It returns nil before the first Start.
func (c *Coordinator) Drained() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	return c.current.notifier.Done()
}

func (c *Coordinator) execute(ctx context.Context, r *run) {
	ctx, span := c.tracer.Start(ctx, "coordinator.scanning.execute",
		trace.WithAttributes(
			attribute.String("job_id", r.job.JobID().String()),
			attribute.String("root", r.job.Root()),
		))
	defer span.End()
	defer r.cancel()

	paths := c.enumerate(ctx, r)

	status, err := r.job.CompleteEnumeration(len(paths))
	if err != nil {
		span.RecordError(err)
		r.logger.Error(ctx, "Failed to complete enumeration", "error", err)
	}
	span.SetAttributes(attribute.Int("total", len(paths)))
	r.logger.Info(ctx, "Enumeration finished", "total", len(paths), "status", status.String())
	r.notifier.push(domain.ProgressEvent{Progress: r.job.Snapshot()})

	if status == domain.JobStatusScanning {
		c.dispatch(ctx, r, paths)
	}

	// Workers have drained. Anything not completed was cut short.
	r.job.FinishCancelled()
	c.finish(ctx, r)

	span.SetStatus(codes.Ok, "scan finished")
}

// enumerate materialises the file list. A root that cannot be stat'ed is
// kept as a single item so the scanner reports it as an Error result.
func (c *Coordinator) enumerate(ctx context.Context, r *run) []string {
	ctx, span := c.tracer.Start(ctx, "coordinator.scanning.enumerate")
	defer span.End()

	start := time.Now()
	root := r.job.Root()

	if _, err := c.enumerator.Stat(root); err != nil {
		span.RecordError(err)
		r.logger.Warn(ctx, "Scan root is not accessible", "error", err)
		return []string{root}
	}

	var paths []string
	for path := range c.enumerator.Walk(ctx, root) {
		paths = append(paths, path)
	}

	c.metrics.ObserveEnumeration(ctx, len(paths), time.Since(start))
	span.SetAttributes(attribute.Int("files", len(paths)))
	return paths
}

// dispatch feeds paths to the worker pool and returns once every worker has
// exited. Workers check for cancellation before each item.
func (c *Coordinator) dispatch(ctx context.Context, r *run, paths []string) {
	workers := min(c.workers, len(paths))
	scanCtx := context.WithoutCancel(ctx)
	work := make(chan string)

	// Nothing here returns an error; the group only joins the feeder and the
	// workers. Cancellation reaches them through ctx and the job flag.
	var g errgroup.Group
	g.Go(func() error {
		defer close(work)
		for _, path := range paths {
			select {
			case <-ctx.Done():
				return nil
			case work <- path:
			}
		}
		return nil
	})

	for range workers {
		g.Go(func() error {
			c.metrics.AddActiveWorkers(ctx, 1)
			defer c.metrics.AddActiveWorkers(ctx, -1)

			for path := range work {
				if ctx.Err() != nil || r.job.CancelRequested() {
					continue
				}
				c.scanOne(scanCtx, r, path)
			}
			return nil
		})
	}

	_ = g.Wait()
}

func (c *Coordinator) scanOne(ctx context.Context, r *run, path string) {
	result := c.scanner.Scan(ctx, path)

	// Enqueue while the job lock is held so progress reaches the notifier in
	// the order the aggregate changed.
	err := r.job.RecordResultFunc(result, func(progress domain.Progress, _ bool) {
		r.notifier.push(
			domain.ResultEvent{JobID: r.job.JobID(), Result: result, OccurredAt: time.Now()},
			domain.ProgressEvent{Progress: progress},
		)
	})
	if err != nil {
		r.logger.Warn(ctx, "Dropped scan result", "path", path, "error", err)
	}
}

func (c *Coordinator) finish(ctx context.Context, r *run) {
	final := r.job.Snapshot()
	c.metrics.IncJobs(ctx, final.Status)

	r.notifier.push(domain.NewSummaryEvent(final))
	r.notifier.close()

	r.logger.Info(ctx, "Scan finished",
		"status", final.Status.String(),
		"scanned", final.Scanned,
		"total", final.Total,
		"clean", final.Clean,
		"infected", final.Infected,
		"errors", final.Errors,
		"elapsed", final.Elapsed,
	)
}
