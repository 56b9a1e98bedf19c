// Package workerpool provides a bounded worker pool for structured
// concurrent fan-out. Each submitted task carries its own function, timeout,
// and result channel, so a caller can fan N independent checks out and fan
// their results back in without shared channels racing between requests.
package workerpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// TaskFunc is the unit of work. It must honor ctx cancellation.
type TaskFunc func(ctx context.Context) (interface{}, error)

// Task represents a unit of work to be processed.
type Task struct {
	ID      string
	Context context.Context
	Timeout time.Duration
	Run     TaskFunc
}

// Result is the outcome of one task.
type Result struct {
	TaskID string
	Data   interface{}
	Err    error
}

// Config holds worker pool configuration.
type Config struct {
	// Workers is the number of concurrent workers.
	Workers int
	// QueueSize is the size of the task queue.
	QueueSize int
	// DefaultTimeout applies to tasks that do not set their own.
	DefaultTimeout time.Duration
	// GracefulShutdownTimeout bounds Stop().
	GracefulShutdownTimeout time.Duration
}

// DefaultConfig returns defaults sized for per-request checker fan-out.
func DefaultConfig() Config {
	return Config{
		Workers:                 32,
		QueueSize:               1024,
		DefaultTimeout:          2 * time.Second,
		GracefulShutdownTimeout: 30 * time.Second,
	}
}

type submission struct {
	task *Task
	out  chan Result
}

// Pool manages a bounded set of workers.
type Pool struct {
	config Config
	logger *zap.Logger

	tasks chan submission
	wg    sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	// Metrics
	tasksSubmitted int64
	tasksCompleted int64
	tasksFailed    int64
	activeWorkers  int64
	queueDepth     int64
}

// New creates a new worker pool.
func New(cfg Config, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultConfig().DefaultTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		config: cfg,
		logger: logger,
		tasks:  make(chan submission, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches all workers.
func (p *Pool) Start() {
	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("worker pool started",
		zap.Int("workers", p.config.Workers),
		zap.Int("queue_size", p.config.QueueSize))
}

// Submit queues a task and returns the channel its single Result will be
// delivered on. The channel is buffered so a worker never blocks on a caller
// that stopped waiting.
func (p *Pool) Submit(task *Task) (<-chan Result, error) {
	if task == nil || task.Run == nil {
		return nil, fmt.Errorf("task function is required")
	}

	select {
	case <-p.ctx.Done():
		return nil, fmt.Errorf("pool is shutting down")
	default:
	}

	out := make(chan Result, 1)
	select {
	case p.tasks <- submission{task: task, out: out}:
		atomic.AddInt64(&p.tasksSubmitted, 1)
		atomic.AddInt64(&p.queueDepth, 1)
		return out, nil
	default:
		return nil, fmt.Errorf("task queue is full")
	}
}

// Stop gracefully shuts down the pool.
func (p *Pool) Stop() error {
	p.logger.Info("stopping worker pool")

	p.cancel()
	close(p.tasks)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-time.After(p.config.GracefulShutdownTimeout):
		p.logger.Warn("worker pool shutdown timed out")
	}
	return nil
}

// worker is the main worker goroutine.
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	atomic.AddInt64(&p.activeWorkers, 1)
	defer atomic.AddInt64(&p.activeWorkers, -1)

	for sub := range p.tasks {
		atomic.AddInt64(&p.queueDepth, -1)
		sub.out <- p.execute(id, sub.task)
	}
}

// execute runs one task under its timeout, converting panics into errors so
// a misbehaving task cannot take the worker down.
func (p *Pool) execute(workerID int, task *Task) (result Result) {
	result.TaskID = task.ID

	base := task.Context
	if base == nil {
		base = p.ctx
	}
	timeout := task.Timeout
	if timeout <= 0 {
		timeout = p.config.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(base, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("task panicked: %v", r)
		}
		if result.Err != nil {
			atomic.AddInt64(&p.tasksFailed, 1)
			p.logger.Error("task failed",
				zap.String("task_id", task.ID),
				zap.Int("worker_id", workerID),
				zap.Error(result.Err))
		} else {
			atomic.AddInt64(&p.tasksCompleted, 1)
		}
	}()

	result.Data, result.Err = task.Run(ctx)
	return result
}

// Stats holds current pool statistics.
type Stats struct {
	TasksSubmitted int64
	TasksCompleted int64
	TasksFailed    int64
	ActiveWorkers  int64
	QueueDepth     int64
	QueueCapacity  int
	Workers        int
}

// Stats returns current pool statistics.
func (p *Pool) Stats() Stats {
	return Stats{
		TasksSubmitted: atomic.LoadInt64(&p.tasksSubmitted),
		TasksCompleted: atomic.LoadInt64(&p.tasksCompleted),
		TasksFailed:    atomic.LoadInt64(&p.tasksFailed),
		ActiveWorkers:  atomic.LoadInt64(&p.activeWorkers),
		QueueDepth:     atomic.LoadInt64(&p.queueDepth),
		QueueCapacity:  p.config.QueueSize,
		Workers:        p.config.Workers,
	}
}

// IsHealthy returns true if the queue is not backing up significantly.
func (p *Pool) IsHealthy() bool {
	stats := p.Stats()
	return float64(stats.QueueDepth)/float64(stats.QueueCapacity) < 0.9
}
