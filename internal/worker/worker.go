// Package worker runs the asynchronous order execution loop: a single
// consumer goroutine draining a buffered queue of order IDs, which
// serializes fills and keeps ledger writes free of write conflicts.
package worker

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Executor fills one order by ID
type Executor interface {
	Execute(orderID string) error
}

// Worker consumes accepted orders and executes them one at a time
type Worker struct {
	executor Executor
	queue    chan string
	stop     chan struct{}
	stopped  chan struct{}
	log      zerolog.Logger
}

// New creates a worker with the given queue capacity
func New(executor Executor, queueSize int, log zerolog.Logger) *Worker {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Worker{
		executor: executor,
		queue:    make(chan string, queueSize),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
		log:      log.With().Str("module", "worker").Logger(),
	}
}

// Enqueue schedules an order for execution. Fails when the queue is full or
// the worker is shutting down; the order stays PENDING and is recovered on
// the next startup.
func (w *Worker) Enqueue(orderID string) error {
	select {
	case <-w.stop:
		return fmt.Errorf("worker is shutting down")
	default:
	}

	select {
	case w.queue <- orderID:
		return nil
	default:
		return fmt.Errorf("execution queue is full")
	}
}

// Run starts the consumer loop. Blocks until Stop() is called; on stop the
// already queued orders are drained before the loop exits.
func (w *Worker) Run() {
	defer close(w.stopped)

	for {
		select {
		case <-w.stop:
			w.drain()
			return
		case orderID := <-w.queue:
			w.execute(orderID)
		}
	}
}

// Stop signals the worker to drain and exit, then waits for it
func (w *Worker) Stop() {
	close(w.stop)
	<-w.stopped
}

// drain executes everything still queued at shutdown
func (w *Worker) drain() {
	for {
		select {
		case orderID := <-w.queue:
			w.execute(orderID)
		default:
			return
		}
	}
}

func (w *Worker) execute(orderID string) {
	if err := w.executor.Execute(orderID); err != nil {
		w.log.Error().Err(err).Str("order_id", orderID).Msg("Order execution failed")
	}
}
