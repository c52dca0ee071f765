// Package workerpool runs accepted connections on a fixed set of worker
// goroutines fed by a bounded FIFO queue.
//
// Producers never block: Submit rejects a task when the queue is full or the
// pool is shutting down, and the caller stays responsible for closing the
// rejected connection. Workers hold no pool lock while a handler runs.
package workerpool

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/dittoserve/internal/logger"
)

var (
	// ErrQueueFull is returned by Submit when every queue slot is occupied.
	ErrQueueFull = errors.New("workerpool: queue full")

	// ErrPoolClosed is returned by Submit once Shutdown has started.
	ErrPoolClosed = errors.New("workerpool: pool closed")
)

// Task is one accepted connection waiting for, or owned by, a worker.
//
// A task belongs to the queue until a worker dequeues it and to that worker
// afterwards. Whoever owns it last closes the connection.
type Task struct {
	// ID correlates log lines for this connection.
	ID string

	// Conn is the accepted connection.
	Conn net.Conn

	// RemoteAddr is the peer address as reported at accept time.
	RemoteAddr string

	// AcceptedAt is when the acceptor produced the task.
	AcceptedAt time.Time
}

// NewTask wraps an accepted connection.
func NewTask(conn net.Conn) *Task {
	remote := ""
	if addr := conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	return &Task{
		ID:         uuid.NewString(),
		Conn:       conn,
		RemoteAddr: remote,
		AcceptedAt: time.Now(),
	}
}

// Close closes the task's connection.
func (t *Task) Close() error {
	if t.Conn == nil {
		return nil
	}
	return t.Conn.Close()
}

// Handler processes a dequeued task. Implementations own the task and must
// close its connection before returning.
type Handler interface {
	HandleTask(task *Task)
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(task *Task)

// HandleTask calls f(task).
func (f HandlerFunc) HandleTask(task *Task) {
	f(task)
}

// Stats is a point-in-time snapshot of pool occupancy.
type Stats struct {
	Workers  int
	Busy     int
	Queued   int
	Capacity int
}

// Pool is a fixed-size worker pool with a bounded FIFO queue.
//
// The queue is a buffered channel, which gives strict submission order and
// guarantees a task is received by exactly one worker.
//
// Thread safety:
// Submit, Shutdown and Stats are safe for concurrent use.
type Pool struct {
	handler  Handler
	tasks    chan *Task
	workers  int
	capacity int

	// mu orders Submit against Shutdown: once closing is set under the write
	// lock, no further send on tasks can happen.
	mu      sync.RWMutex
	closing bool

	quit         chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
	busy         atomic.Int32
}

// New creates a pool and starts its workers.
//
// Parameters:
//   - workers: number of worker goroutines (must be > 0)
//   - capacity: maximum number of queued tasks (must be > 0)
//   - handler: invoked once per dequeued task
//
// Returns an error if any parameter is invalid.
func New(workers, capacity int, handler Handler) (*Pool, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("workerpool: invalid worker count %d", workers)
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("workerpool: invalid queue capacity %d", capacity)
	}
	if handler == nil {
		return nil, errors.New("workerpool: handler is required")
	}

	p := &Pool{
		handler:  handler,
		tasks:    make(chan *Task, capacity),
		workers:  workers,
		capacity: capacity,
		quit:     make(chan struct{}),
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker(i)
	}

	logger.Debug("Worker pool started: workers=%d queue_capacity=%d", workers, capacity)
	return p, nil
}

// Submit enqueues a task without blocking.
//
// Returns ErrQueueFull when the queue is at capacity and ErrPoolClosed after
// Shutdown has begun. In both cases the task is not retained and the caller
// must close its connection.
func (p *Pool) Submit(task *Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closing {
		return ErrPoolClosed
	}

	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops accepting tasks, waits for every worker to finish the task
// it is running, then closes the connections of tasks still queued.
//
// Shutdown is idempotent and blocks until all workers have exited.
func (p *Pool) Shutdown() {
	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.closing = true
		p.mu.Unlock()

		close(p.quit)
		p.wg.Wait()

		dropped := 0
	drain:
		for {
			select {
			case task := <-p.tasks:
				_ = task.Close()
				dropped++
			default:
				break drain
			}
		}

		if dropped > 0 {
			logger.Warn("Worker pool shut down with %d queued connection(s) closed unprocessed", dropped)
		} else {
			logger.Debug("Worker pool shut down")
		}
	})
}

// Stats returns a snapshot of pool occupancy.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:  p.workers,
		Busy:     int(p.busy.Load()),
		Queued:   len(p.tasks),
		Capacity: p.capacity,
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		// Shutdown wins over pending work: a worker that sees quit exits
		// even if tasks remain queued.
		select {
		case <-p.quit:
			return
		default:
		}

		select {
		case <-p.quit:
			return
		case task := <-p.tasks:
			if p.isClosing() {
				// Dequeued while Shutdown was starting; treat it like the queued remainder.
				_ = task.Close()
				continue
			}
			p.run(id, task)
		}
	}
}

func (p *Pool) isClosing() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closing
}

func (p *Pool) run(id int, task *Task) {
	p.busy.Add(1)
	defer p.busy.Add(-1)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Worker %d: panic handling connection %s from %s: %v",
				id, task.ID, task.RemoteAddr, r)
			_ = task.Close()
		}
	}()

	p.handler.HandleTask(task)
}
