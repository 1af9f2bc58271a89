package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/veranemoloko/retro-installer/internal/domain"
	"github.com/veranemoloko/retro-installer/internal/metrics"
)

const (
	DefaultCeiling      = 3
	DefaultPollInterval = 500 * time.Millisecond
)

// Queue hands out queued tasks, each at most once.
type Queue interface {
	NextQueued(ctx context.Context) (*domain.Task, error)
}

// Runner drives one task through the pipeline.
type Runner interface {
	Run(ctx context.Context, task *domain.Task)
}

// Options tunes the dispatcher.
type Options struct {
	Ceiling      int
	PollInterval time.Duration
}

// Dispatcher polls the queue and starts at most Ceiling executors at a time,
// one new executor per tick.
type Dispatcher struct {
	queue  Queue
	runner Runner
	opts   Options
	logger *slog.Logger

	sem    *semaphore.Weighted
	active atomic.Int32
	wg     sync.WaitGroup

	mu       sync.Mutex
	running  map[string]context.CancelFunc
	started  bool
	stopLoop context.CancelFunc
	loopDone chan struct{}
	taskCtx  context.Context
	stopWork context.CancelFunc
}

// New creates a Dispatcher. Zero options fall back to the defaults.
func New(queue Queue, runner Runner, opts Options, logger *slog.Logger) *Dispatcher {
	if opts.Ceiling <= 0 {
		opts.Ceiling = DefaultCeiling
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		queue:   queue,
		runner:  runner,
		opts:    opts,
		logger:  logger,
		sem:     semaphore.NewWeighted(int64(opts.Ceiling)),
		running: make(map[string]context.CancelFunc),
	}
}

// Start begins polling until ctx is cancelled or Shutdown is called.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return
	}
	d.started = true

	// Executors outlive the polling context so Shutdown can choose to drain.
	d.taskCtx, d.stopWork = context.WithCancel(context.WithoutCancel(ctx))

	loopCtx, cancel := context.WithCancel(ctx)
	d.stopLoop = cancel
	d.loopDone = make(chan struct{})

	go d.loop(loopCtx, d.loopDone)

	d.logger.Info("Dispatcher started", "ceiling", d.opts.Ceiling, "poll_interval", d.opts.PollInterval)
}

// Active returns the number of executors currently running.
func (d *Dispatcher) Active() int {
	return int(d.active.Load())
}

// CancelTask cancels the context of a running executor. It reports whether
// the task was running here. The executor may still finish its current I/O.
func (d *Dispatcher) CancelTask(id string) bool {
	d.mu.Lock()
	cancel, ok := d.running[id]
	d.mu.Unlock()

	if ok {
		cancel()
	}
	return ok
}

// Shutdown stops polling. With drain it waits for running executors to
// finish, otherwise it cancels them first. It returns ctx.Err() if the
// executors are still running when ctx expires.
func (d *Dispatcher) Shutdown(ctx context.Context, drain bool) error {
	d.mu.Lock()
	stopLoop, loopDone, stopWork := d.stopLoop, d.loopDone, d.stopWork
	d.mu.Unlock()

	if stopLoop == nil {
		return nil
	}

	stopLoop()
	<-loopDone

	if !drain {
		stopWork()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		stopWork()
		d.logger.Info("Dispatcher stopped", "drained", drain)
		return nil
	case <-ctx.Done():
		stopWork()
		d.logger.Warn("Dispatcher shutdown timed out", "active", d.Active())
		return ctx.Err()
	}
}

func (d *Dispatcher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()

	for {
		d.tick(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *Dispatcher) tick(ctx context.Context) {
	if !d.sem.TryAcquire(1) {
		return
	}

	task, err := d.queue.NextQueued(ctx)
	if err != nil || task == nil {
		d.sem.Release(1)
		if err != nil && ctx.Err() == nil {
			d.logger.Error("Failed to fetch queued task", "error", err)
		}
		return
	}

	d.launch(task)
}

func (d *Dispatcher) launch(task *domain.Task) {
	taskCtx, cancel := context.WithCancel(d.taskCtx)

	d.mu.Lock()
	d.running[task.ID] = cancel
	d.mu.Unlock()

	d.active.Add(1)
	metrics.ActiveExecutors.Inc()
	d.wg.Add(1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("Executor panicked", "task_id", task.ID, "error", fmt.Sprint(r))
			}
			cancel()
			d.mu.Lock()
			delete(d.running, task.ID)
			d.mu.Unlock()
			d.active.Add(-1)
			metrics.ActiveExecutors.Dec()
			d.sem.Release(1)
			d.wg.Done()
		}()

		d.logger.Debug("Executor started", "task_id", task.ID, "active", d.Active())
		d.runner.Run(taskCtx, task)
	}()
}
