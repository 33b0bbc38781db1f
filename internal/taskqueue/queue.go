// Package taskqueue implements the background persistence dispatcher: a
// bounded work channel consumed by a single dedicated goroutine selecting
// against a stop channel.
package taskqueue

import (
	"context"
	"log/slog"
	"time"

	"limit/internal/metrics"
)

// Task is one unit of fire-and-forget persistence work. Run should perform
// its own error handling internally; a returned error is logged and counted
// but never surfaces to the original caller.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Queue is the single process-wide background dispatcher. Submit blocks
// when the work channel (capacity 100) is full, propagating backpressure to
// callers.
type Queue struct {
	work    chan Task
	stop    chan struct{}
	done    chan struct{}
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Queue and starts its consumer goroutine. Call Stop to drain
// and shut it down.
func New(m *metrics.Metrics, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		work:    make(chan Task, 100),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		metrics: m,
		logger:  logger,
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		select {
		case task := <-q.work:
			go q.execute(task)
		case <-q.stop:
			// Drain whatever is already queued before exiting.
			for {
				select {
				case task := <-q.work:
					go q.execute(task)
				default:
					return
				}
			}
		}
	}
}

func (q *Queue) execute(task Task) {
	start := time.Now()
	err := task.Run(context.Background())
	elapsed := time.Since(start).Seconds()

	if q.metrics != nil {
		q.metrics.TaskDuration.WithLabelValues(task.Name).Observe(elapsed)
	}

	if err != nil {
		q.logger.Error("background task failed", "task", task.Name, "error", err)
		if q.metrics != nil {
			q.metrics.TaskOutcomes.WithLabelValues(task.Name, "failure").Inc()
		}
		return
	}
	q.logger.Info("background task completed", "task", task.Name, "elapsed_ms", elapsed*1000)
	if q.metrics != nil {
		q.metrics.TaskOutcomes.WithLabelValues(task.Name, "success").Inc()
	}
}

// Submit enqueues a single task, blocking if the work channel is full.
func (q *Queue) Submit(task Task) {
	q.work <- task
}

// SubmitBatch enqueues every task in order, blocking per-task on capacity.
func (q *Queue) SubmitBatch(tasks []Task) {
	for _, t := range tasks {
		q.Submit(t)
	}
}

// Stop signals the consumer goroutine to drain remaining queued tasks and
// exit, then blocks until it has done so. In-flight task goroutines spawned
// before Stop returns may still be running; Stop only guarantees the
// dispatcher loop itself has exited.
func (q *Queue) Stop() {
	close(q.stop)
	<-q.done
}
