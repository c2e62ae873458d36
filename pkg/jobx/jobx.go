// Package jobx is a small background job queue used for off-request work
// such as transactional email delivery. Jobs are durable in the backend,
// retried with a delay on failure, and processed by a pool of workers.
package jobx

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Abraxas-365/cabina/pkg/errx"
	"github.com/Abraxas-365/cabina/pkg/logx"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRetrying  Status = "retrying"
)

// Job is a unit of work to enqueue.
type Job struct {
	Type    string          `json:"type"`
	Queue   string          `json:"queue"`
	Payload json.RawMessage `json:"payload"`

	// MaxRetries bounds re-delivery after failures. Zero means 3.
	MaxRetries int `json:"max_retries"`
}

// JobInfo is the stored representation of a job.
type JobInfo struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Queue      string          `json:"queue"`
	Payload    json.RawMessage `json:"payload"`
	Status     Status          `json:"status"`
	Error      string          `json:"error,omitempty"`
	MaxRetries int             `json:"max_retries"`
	Attempts   int             `json:"attempts"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// HandlerFunc processes one job. A nil return completes the job; an error
// triggers retry until MaxRetries is exhausted.
type HandlerFunc func(ctx context.Context, job *JobInfo) error

// Enqueuer is the producer side of the queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, job Job) (string, error)
}

// Queue is the full backend contract the worker runs against.
type Queue interface {
	Enqueuer

	GetJob(ctx context.Context, jobID string) (*JobInfo, error)
	Dequeue(ctx context.Context, queues []string, timeout time.Duration) (*JobInfo, error)
	Complete(ctx context.Context, jobID string) error
	Fail(ctx context.Context, jobID string, errMsg string) (retry bool, err error)
	Retry(ctx context.Context, jobID string, delay time.Duration) error
	PromoteScheduled(ctx context.Context, queues []string) error
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("JOBX")

var (
	CodeJobNotFound    = ErrRegistry.Register("JOB_NOT_FOUND", errx.TypeNotFound, 404, "Job not found")
	CodeBackendFailed  = ErrRegistry.Register("BACKEND_FAILED", errx.TypeExternal, 500, "Job backend operation failed")
	CodeAlreadyRunning = ErrRegistry.Register("ALREADY_RUNNING", errx.TypeConflict, 409, "Worker is already running")
)

// ============================================================================
// Worker
// ============================================================================

// Options configures the worker pool.
type Options struct {
	Queues          []string
	Concurrency     int
	PollInterval    time.Duration
	DequeueTimeout  time.Duration
	RetryDelay      time.Duration
	ShutdownTimeout time.Duration
}

func (o *Options) withDefaults() {
	if len(o.Queues) == 0 {
		o.Queues = []string{"default"}
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 2
	}
	if o.PollInterval == 0 {
		o.PollInterval = time.Second
	}
	if o.DequeueTimeout == 0 {
		o.DequeueTimeout = 5 * time.Second
	}
	if o.RetryDelay == 0 {
		o.RetryDelay = 30 * time.Second
	}
	if o.ShutdownTimeout == 0 {
		o.ShutdownTimeout = 30 * time.Second
	}
}

// Worker dispatches dequeued jobs to registered handlers.
type Worker struct {
	queue    Queue
	opts     Options
	handlers map[string]HandlerFunc
	mu       sync.RWMutex
	running  bool
}

// NewWorker creates a worker pool over the given backend.
func NewWorker(queue Queue, opts Options) *Worker {
	opts.withDefaults()
	return &Worker{
		queue:    queue,
		opts:     opts,
		handlers: make(map[string]HandlerFunc),
	}
}

// Register adds a handler for a job type.
func (w *Worker) Register(jobType string, handler HandlerFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = handler
}

// Start begins processing and blocks until ctx is cancelled, then drains
// in-flight jobs up to the shutdown timeout.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return ErrRegistry.New(CodeAlreadyRunning)
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	logx.Infof("jobx: starting %d workers on queues %v", w.opts.Concurrency, w.opts.Queues)

	var wg sync.WaitGroup

	// Scheduler: moves due delayed jobs back to the ready queue.
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.schedulerLoop(ctx)
	}()

	for i := 0; i < w.opts.Concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.workerLoop(ctx, id)
		}(i)
	}

	<-ctx.Done()
	logx.Info("jobx: shutting down workers...")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logx.Info("jobx: all workers stopped")
	case <-time.After(w.opts.ShutdownTimeout):
		logx.Warn("jobx: shutdown timed out, some jobs may not have completed")
	}

	return nil
}

func (w *Worker) schedulerLoop(ctx context.Context) {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.queue.PromoteScheduled(ctx, w.opts.Queues); err != nil {
				if ctx.Err() != nil {
					return
				}
				logx.WithError(err).Warn("jobx: failed to promote scheduled jobs")
			}
		}
	}
}

func (w *Worker) workerLoop(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.queue.Dequeue(ctx, w.opts.Queues, w.opts.DequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logx.WithError(err).Warnf("jobx: worker %d dequeue error", id)
			time.Sleep(w.opts.PollInterval)
			continue
		}
		if job == nil {
			continue
		}

		w.processJob(ctx, job)
	}
}

func (w *Worker) processJob(ctx context.Context, job *JobInfo) {
	w.mu.RLock()
	handler, ok := w.handlers[job.Type]
	w.mu.RUnlock()

	if !ok {
		logx.Warnf("jobx: no handler for job type %q (id=%s)", job.Type, job.ID)
		_, _ = w.queue.Fail(ctx, job.ID, "no handler registered for job type")
		return
	}

	if err := handler(ctx, job); err != nil {
		logx.WithError(err).Warnf("jobx: job %s (type=%s) failed", job.ID, job.Type)

		shouldRetry, failErr := w.queue.Fail(ctx, job.ID, err.Error())
		if failErr != nil {
			logx.WithError(failErr).Errorf("jobx: failed to mark job %s as failed", job.ID)
			return
		}
		if shouldRetry {
			if retryErr := w.queue.Retry(ctx, job.ID, w.opts.RetryDelay); retryErr != nil {
				logx.WithError(retryErr).Errorf("jobx: failed to retry job %s", job.ID)
			}
		}
		return
	}

	if err := w.queue.Complete(ctx, job.ID); err != nil {
		logx.WithError(err).Errorf("jobx: failed to complete job %s", job.ID)
	}
}
