package cdpdom

import (
	"context"
	"iter"
	"slices"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/canary/dom"
	"github.com/hazyhaar/canary/mutation"
)

// subscription is a mutation.Subscription fed by the page's DOM events.
// Records are matched by XPath against the observed node's path, since
// node IDs do not survive a refresh.
type subscription struct {
	d    *Document
	path string
	opts mutation.Options
	deb  *debouncer
	q    *mutation.Queue
}

// Observe subscribes to DOM events under target. Events are grouped into
// batches by the document's debouncer.
func (d *Document) Observe(target dom.Node, opts mutation.Options) (mutation.Subscription, error) {
	t, ok := target.(*node)
	if !ok || t == nil || t.d != d {
		return nil, ErrForeignNode
	}
	if d.ctx.Err() != nil {
		return nil, mutation.ErrDisconnected
	}

	s, start := d.subscribe(t.Path(), opts)
	if start {
		go d.listen()
	}
	d.logger.Debug("cdpdom: observing", "target", s.path)
	return s, nil
}

// subscribe registers a subscription and reports whether the event
// listener still has to be started.
func (d *Document) subscribe(path string, opts mutation.Options) (*subscription, bool) {
	s := &subscription{
		d:    d,
		path: path,
		opts: opts,
		q:    mutation.NewQueue(d.newID),
	}
	s.deb = newDebouncer(d.debounce, func(recs []mutation.Record) { s.q.Push(recs) })

	d.subsMu.Lock()
	defer d.subsMu.Unlock()
	d.subs = append(d.subs, s)
	start := !d.listening
	d.listening = true
	return s, start
}

// listen mirrors DOM events into the tree and dispatches them as records
// until the document is closed.
func (d *Document) listen() {
	wait := d.page.Context(d.ctx).EachEvent(
		func(e *proto.DOMChildNodeInserted) {
			d.mu.Lock()
			if d.tree != nil {
				d.tree.insert(e.ParentNodeID, e.PreviousNodeID, e.Node)
			}
			path := d.pathLocked(e.ParentNodeID)
			d.mu.Unlock()
			d.dispatch(e.ParentNodeID, mutation.Record{Op: mutation.OpChildList, Target: path, Added: 1})
		},

		func(e *proto.DOMChildNodeRemoved) {
			d.mu.Lock()
			path := d.pathLocked(e.ParentNodeID)
			if d.tree != nil {
				d.tree.remove(e.NodeID)
			}
			d.mu.Unlock()
			d.dispatch(e.ParentNodeID, mutation.Record{Op: mutation.OpChildList, Target: path, Removed: 1})
		},

		func(e *proto.DOMSetChildNodes) {
			d.mu.Lock()
			if d.tree != nil {
				d.tree.setChildren(e.ParentID, e.Nodes)
			}
			d.mu.Unlock()
		},

		func(e *proto.DOMAttributeModified) {
			var old string
			d.update(e.NodeID, func(en *entry) { old = en.setAttr(e.Name, e.Value) })
			d.dispatch(e.NodeID, mutation.Record{
				Op: mutation.OpAttributes, Target: d.path(e.NodeID),
				Name: e.Name, Value: e.Value, OldValue: old,
			})
		},

		func(e *proto.DOMAttributeRemoved) {
			var old string
			d.update(e.NodeID, func(en *entry) { old, _ = en.removeAttr(e.Name) })
			d.dispatch(e.NodeID, mutation.Record{
				Op: mutation.OpAttributes, Target: d.path(e.NodeID),
				Name: e.Name, OldValue: old,
			})
		},

		func(e *proto.DOMCharacterDataModified) {
			var old string
			d.update(e.NodeID, func(en *entry) { old, en.value = en.value, e.CharacterData })
			d.dispatch(e.NodeID, mutation.Record{
				Op: mutation.OpCharacterData, Target: d.path(e.NodeID),
				Value: e.CharacterData, OldValue: old,
			})
		},

		func(e *proto.DOMDocumentUpdated) {
			// The whole document was replaced: old node IDs are void.
			d.mu.Lock()
			d.tree = nil
			d.mu.Unlock()
			d.broadcast(mutation.Record{Op: mutation.OpChildList, Target: "/"})
		},
	)
	wait()
}

func (d *Document) path(id proto.DOMNodeID) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.pathLocked(id)
}

func (d *Document) pathLocked(id proto.DOMNodeID) string {
	if d.tree == nil {
		return ""
	}
	return d.tree.path(id)
}

// dispatch hands rec to every subscription that selects it. A node the
// mirror does not know cannot be placed, so its records go to every
// subscription that selects their kind.
func (d *Document) dispatch(id proto.DOMNodeID, rec mutation.Record) {
	d.mu.RLock()
	known := d.tree != nil && d.tree.known(id)
	d.mu.RUnlock()

	for _, s := range d.subscriptions() {
		if !s.opts.Allows(rec) {
			continue
		}
		if known && !s.opts.Within(s.path, rec.Target) {
			continue
		}
		s.deb.add(rec)
	}
}

func (d *Document) broadcast(rec mutation.Record) {
	for _, s := range d.subscriptions() {
		if s.opts.Allows(rec) {
			s.deb.add(rec)
		}
	}
}

func (d *Document) subscriptions() []*subscription {
	d.subsMu.Lock()
	defer d.subsMu.Unlock()
	return slices.Clone(d.subs)
}

func (d *Document) unsubscribe(s *subscription) {
	d.subsMu.Lock()
	defer d.subsMu.Unlock()
	d.subs = slices.DeleteFunc(d.subs, func(x *subscription) bool { return x == s })
}

func (s *subscription) Batches(ctx context.Context) iter.Seq[mutation.Batch] {
	return s.q.Batches(ctx)
}

func (s *subscription) Disconnect() {
	s.d.unsubscribe(s)
	s.close()
}

func (s *subscription) close() {
	s.deb.stop()
	s.q.Close()
}

func (s *subscription) Info() mutation.Info {
	batches, records := s.q.Counts()
	return mutation.Info{
		Target:    s.path,
		Options:   s.opts,
		Batches:   batches,
		Records:   records,
		Connected: !s.q.Closed(),
	}
}
