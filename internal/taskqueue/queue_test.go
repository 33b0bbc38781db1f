package taskqueue

import (
	"context"
	"errors"
	"log/slog"
	"io"
	"sync"
	"testing"
	"time"

	"limit/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSubmitRunsTask(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	q := New(m, discardLogger())
	defer q.Stop()

	var wg sync.WaitGroup
	wg.Add(1)
	ran := false
	q.Submit(Task{Name: "t1", Run: func(ctx context.Context) error {
		ran = true
		wg.Done()
		return nil
	}})

	waitOrTimeout(t, &wg, time.Second)
	if !ran {
		t.Fatal("task did not run")
	}
}

func TestSubmitBatchRunsAll(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	q := New(m, discardLogger())
	defer q.Stop()

	const n = 5
	var wg sync.WaitGroup
	wg.Add(n)
	tasks := make([]Task, n)
	for i := 0; i < n; i++ {
		tasks[i] = Task{Name: "batch", Run: func(ctx context.Context) error {
			wg.Done()
			return nil
		}}
	}
	q.SubmitBatch(tasks)
	waitOrTimeout(t, &wg, time.Second)
}

func TestFailingTaskDoesNotPropagate(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	q := New(m, discardLogger())
	defer q.Stop()

	var wg sync.WaitGroup
	wg.Add(1)
	q.Submit(Task{Name: "failer", Run: func(ctx context.Context) error {
		defer wg.Done()
		return errors.New("boom")
	}})
	waitOrTimeout(t, &wg, time.Second)
	// reaching here without panicking/blocking is the assertion: failure was swallowed.
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("timed out waiting for task completion")
	}
}
