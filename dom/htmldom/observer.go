package htmldom

import (
	"context"
	"iter"
	"slices"

	"golang.org/x/net/html"

	"github.com/hazyhaar/canary/dom"
	"github.com/hazyhaar/canary/mutation"
)

// observer is a mutation.Subscription on an htmldom Document. Records
// accumulate in pending until the document settles.
type observer struct {
	d       *Document
	target  *html.Node
	path    string
	opts    mutation.Options
	pending []mutation.Record
	q       *mutation.Queue
}

// Observe subscribes to mutations of target (and its subtree when
// opts.Subtree is set). Nothing is delivered until Settle.
func (d *Document) Observe(target dom.Node, opts mutation.Options) (mutation.Subscription, error) {
	t, err := d.unwrap(target)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	o := &observer{
		d:      d,
		target: t,
		path:   xpathOf(t),
		opts:   opts,
		q:      mutation.NewQueue(d.newID),
	}
	d.observers = append(d.observers, o)
	return o, nil
}

// record queues rec on every observer interested in a change of n.
// Caller holds d.mu.
func (d *Document) record(n *html.Node, rec mutation.Record) {
	for _, o := range d.observers {
		if !o.opts.Allows(rec) || !o.covers(n) {
			continue
		}
		o.pending = append(o.pending, rec)
	}
}

func (o *observer) covers(n *html.Node) bool {
	if n == o.target {
		return true
	}
	if !o.opts.Subtree {
		return false
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if p == o.target {
			return true
		}
	}
	return false
}

// Settle delivers every observer's pending records as one batch per
// observer and reports how many batches were delivered.
func (d *Document) Settle() int {
	type delivery struct {
		o       *observer
		records []mutation.Record
	}

	d.mu.Lock()
	var out []delivery
	for _, o := range d.observers {
		if len(o.pending) == 0 {
			continue
		}
		out = append(out, delivery{o: o, records: o.pending})
		o.pending = nil
	}
	d.mu.Unlock()

	n := 0
	for _, dl := range out {
		if dl.o.q.Push(dl.records) {
			n++
		}
	}
	return n
}

// Pending reports how many records are waiting for the next Settle,
// across all observers.
func (d *Document) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, o := range d.observers {
		n += len(o.pending)
	}
	return n
}

func (o *observer) Batches(ctx context.Context) iter.Seq[mutation.Batch] {
	return o.q.Batches(ctx)
}

func (o *observer) Disconnect() {
	o.q.Close()
	o.d.mu.Lock()
	defer o.d.mu.Unlock()
	o.d.observers = slices.DeleteFunc(o.d.observers, func(x *observer) bool { return x == o })
	o.pending = nil
}

func (o *observer) Info() mutation.Info {
	batches, records := o.q.Counts()
	return mutation.Info{
		Target:    o.path,
		Options:   o.opts,
		Batches:   batches,
		Records:   records,
		Connected: !o.q.Closed(),
	}
}
