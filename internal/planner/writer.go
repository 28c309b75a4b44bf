package planner

import (
	"context"
	"sync"

	"github.com/verte-zerg/dayplan/internal/logger"
)

const (
	queueSize   = 64
	maxRetained = 16
)

// Task is an idempotent background write. Later writes of the same data win.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Writer runs persistence writes on a background goroutine. Failed tasks are
// kept, up to a bound, and re-run by Retry at the next planning cycle.
type Writer struct {
	mu      sync.Mutex
	queue   chan Task
	failed  []Task
	closed  bool
	pending sync.WaitGroup
	done    chan struct{}
	log     *logger.Logger
}

// NewWriter starts a writer.
func NewWriter(log *logger.Logger) *Writer {
	w := &Writer{
		queue: make(chan Task, queueSize),
		done:  make(chan struct{}),
		log:   logger.OrNop(log).With("component", "writer"),
	}
	go w.loop()
	return w
}

func (w *Writer) loop() {
	defer close(w.done)
	for t := range w.queue {
		if err := t.Run(context.Background()); err != nil {
			w.log.Warn("background write failed", "stage", t.Name, "error", err)
			w.retain(t)
		}
		w.pending.Done()
	}
}

// Submit enqueues t without waiting for it to run.
func (w *Writer) Submit(t Task) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		w.log.Warn("write dropped after close", "stage", t.Name)
		return
	}
	w.pending.Add(1)
	select {
	case w.queue <- t:
	default:
		w.pending.Done()
		w.log.Warn("write queue full", "stage", t.Name)
		w.retainLocked(t)
	}
}

// Retry resubmits every retained task and returns how many were resubmitted.
func (w *Writer) Retry() int {
	w.mu.Lock()
	tasks := w.failed
	w.failed = nil
	w.mu.Unlock()
	for _, t := range tasks {
		w.Submit(t)
	}
	return len(tasks)
}

// Failed returns the names of retained tasks, oldest first.
func (w *Writer) Failed() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	names := make([]string, len(w.failed))
	for i, t := range w.failed {
		names[i] = t.Name
	}
	return names
}

// Flush blocks until every submitted task has run.
func (w *Writer) Flush() {
	w.pending.Wait()
}

// Close drains the queue and stops the goroutine.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()
	<-w.done
}

func (w *Writer) retain(t Task) {
	w.mu.Lock()
	w.retainLocked(t)
	w.mu.Unlock()
}

func (w *Writer) retainLocked(t Task) {
	w.failed = append(w.failed, t)
	if over := len(w.failed) - maxRetained; over > 0 {
		w.failed = append([]Task(nil), w.failed[over:]...)
	}
}
