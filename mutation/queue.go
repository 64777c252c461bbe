package mutation

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/hazyhaar/canary/idgen"
)

// Queue is the delivery half of a Subscription: an unbounded FIFO of
// batches with blocking, cancellable iteration. Hosts push records at
// their settle points; subscribers range over Batches.
type Queue struct {
	mu      sync.Mutex
	items   []Batch
	notify  chan struct{}
	done    chan struct{}
	once    sync.Once
	seq     uint64
	batches uint64
	records uint64
	newID   idgen.Generator
}

// NewQueue creates an open queue. A nil gen uses prefixed UUIDv7 IDs.
func NewQueue(gen idgen.Generator) *Queue {
	if gen == nil {
		gen = idgen.Prefixed("mb_", idgen.Default)
	}
	return &Queue{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		newID:  gen,
	}
}

// Push stamps records into a new Batch and enqueues it. Empty input and
// pushes after Close are dropped; the return value reports enqueueing.
func (q *Queue) Push(records []Record) bool {
	if len(records) == 0 || q.Closed() {
		return false
	}

	q.mu.Lock()
	q.seq++
	q.items = append(q.items, Batch{
		ID:        q.newID(),
		Seq:       q.seq,
		Records:   records,
		Timestamp: time.Now().UnixMilli(),
	})
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// Batches yields queued batches in order, blocking while the queue is
// empty. It ends when ctx is done or the queue is closed; batches still
// queued at Close are not delivered.
func (q *Queue) Batches(ctx context.Context) iter.Seq[Batch] {
	return func(yield func(Batch) bool) {
		for {
			b, ok := q.pop()
			if ok {
				if !yield(b) {
					return
				}
				continue
			}
			select {
			case <-ctx.Done():
				return
			case <-q.done:
				return
			case <-q.notify:
			}
		}
	}
}

func (q *Queue) pop() (Batch, bool) {
	select {
	case <-q.done:
		return Batch{}, false
	default:
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Batch{}, false
	}
	b := q.items[0]
	q.items[0] = Batch{}
	q.items = q.items[1:]
	q.batches++
	q.records += uint64(len(b.Records))
	return b, true
}

// Close stops delivery. Safe to call more than once.
func (q *Queue) Close() {
	q.once.Do(func() {
		close(q.done)
		q.mu.Lock()
		q.items = nil
		q.mu.Unlock()
	})
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

// Counts returns the number of batches and records delivered so far.
func (q *Queue) Counts() (batches, records uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.batches, q.records
}
