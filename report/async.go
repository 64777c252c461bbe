package report

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrQueueFull is returned by Async.Send when its buffer is full. The
// cycle is dropped.
var ErrQueueFull = errors.New("report: async queue full")

// Async delivers cycles to a slow sink from a background goroutine, so
// page cycles never wait on the network.
type Async struct {
	next   Sink
	ch     chan Cycle
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	err    error
	mu     sync.RWMutex
	closed bool
}

// NewAsync wraps next with a buffer of size cycles (default 256).
func NewAsync(next Sink, size int, logger *slog.Logger) *Async {
	if size <= 0 {
		size = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := &Async{
		next:   next,
		ch:     make(chan Cycle, size),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for c := range a.ch {
		if err := a.next.Send(a.ctx, c); err != nil {
			a.logger.Warn("report: async delivery failed", "cycle_id", c.ID, "page_id", c.PageID, "error", err)
		}
	}
}

// Send queues c without blocking.
func (a *Async) Send(_ context.Context, c Cycle) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return errors.New("report: async sink closed")
	}
	select {
	case a.ch <- c:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting cycles, waits for the queued ones to be
// delivered and closes the wrapped sink once. Later calls return the
// first result.
func (a *Async) Close() error {
	a.once.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.ch)
		a.mu.Unlock()
		<-a.done
		a.cancel()
		a.err = a.next.Close()
	})
	return a.err
}
