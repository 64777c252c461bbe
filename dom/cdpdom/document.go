// Package cdpdom hosts a rendered document in a live Chrome page, driven
// over the DevTools protocol with go-rod. Reads are served from a mirror
// of the remote DOM, rebuilt on Refresh and kept current by DOM events;
// writes go straight to the page.
package cdpdom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/canary/dom"
	"github.com/hazyhaar/canary/idgen"
)

var (
	// ErrNoDocument is returned when the page has no document to mirror.
	ErrNoDocument = errors.New("cdpdom: page has no document")
	// ErrForeignNode is returned when observing a node of another host or
	// document.
	ErrForeignNode = errors.New("cdpdom: node does not belong to this document")
)

// Document is a live page document. All methods are safe for concurrent
// use.
type Document struct {
	page     *rod.Page
	logger   *slog.Logger
	debounce DebounceConfig
	newID    idgen.Generator
	poll     time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.RWMutex
	tree *tree

	subsMu    sync.Mutex
	subs      []*subscription
	listening bool
}

// Option configures a Document.
type Option func(*Document)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Document) { d.logger = l }
}

// WithDebounce sets how DOM events are grouped into mutation batches.
func WithDebounce(cfg DebounceConfig) Option {
	return func(d *Document) { d.debounce = cfg }
}

// WithIDGenerator sets the generator used for mutation batch IDs.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(d *Document) { d.newID = gen }
}

// New wraps page. The DOM domain is enabled right away; the mirror is
// built on first use or on Refresh.
func New(ctx context.Context, page *rod.Page, opts ...Option) (*Document, error) {
	d := &Document{
		page:   page,
		logger: slog.Default(),
		poll:   50 * time.Millisecond,
	}
	for _, o := range opts {
		o(d)
	}
	d.ctx, d.cancel = context.WithCancel(ctx)

	if err := (proto.DOMEnable{}).Call(page); err != nil {
		d.cancel()
		return nil, fmt.Errorf("cdpdom: enable DOM domain: %w", err)
	}
	return d, nil
}

// Refresh rebuilds the mirror from DOM.getDocument with unlimited depth,
// which also makes every node eligible for DOM events.
func (d *Document) Refresh() error {
	depth := -1
	res, err := proto.DOMGetDocument{Depth: &depth}.Call(d.page.Context(d.ctx))
	if err != nil {
		return fmt.Errorf("cdpdom: DOM.getDocument: %w", err)
	}
	if res.Root == nil {
		return ErrNoDocument
	}

	t := newTree(res.Root)
	d.mu.Lock()
	d.tree = t
	d.mu.Unlock()

	d.logger.Debug("cdpdom: mirror rebuilt", "nodes", len(t.nodes))
	return nil
}

// snapshot returns the mirror, building it on first use.
func (d *Document) snapshot() *tree {
	d.mu.RLock()
	t := d.tree
	d.mu.RUnlock()
	if t != nil {
		return t
	}
	if err := d.Refresh(); err != nil {
		d.logger.Warn("cdpdom: build mirror", "error", err)
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.tree
}

// Root returns the document element.
func (d *Document) Root() dom.Node {
	t := d.snapshot()
	if t == nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if e := t.root(); e != nil {
		return &node{d: d, id: e.id}
	}
	return nil
}

// Body returns the body element, nil when there is none.
func (d *Document) Body() dom.Node {
	t := d.snapshot()
	if t == nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if e := t.body(); e != nil {
		return &node{d: d, id: e.id}
	}
	return nil
}

// Select runs DOM.querySelectorAll on the document. Matches the mirror
// does not know yet are left out; an invalid selector matches nothing.
func (d *Document) Select(selector string) []dom.Node {
	t := d.snapshot()
	if t == nil {
		return nil
	}
	d.mu.RLock()
	docID := t.doc
	d.mu.RUnlock()

	res, err := proto.DOMQuerySelectorAll{NodeID: docID, Selector: selector}.Call(d.page.Context(d.ctx))
	if err != nil {
		d.logger.Debug("cdpdom: querySelectorAll", "selector", selector, "error", err)
		return nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]dom.Node, 0, len(res.NodeIDs))
	for _, id := range res.NodeIDs {
		if d.tree.known(id) {
			out = append(out, &node{d: d, id: id})
		}
	}
	return out
}

// ReadyState evaluates document.readyState in the page. Evaluation
// errors read as Loading.
func (d *Document) ReadyState() dom.ReadyState {
	res, err := d.page.Context(d.ctx).Eval(`() => document.readyState`)
	if err != nil {
		d.logger.Debug("cdpdom: read readyState", "error", err)
		return dom.Loading
	}
	return dom.ReadyState(res.Value.Str())
}

// OnReady runs fn once the page has left the loading state: immediately
// when it already has, otherwise from a goroutine polling readyState.
// fn never runs once the document is closed.
func (d *Document) OnReady(fn func()) {
	if d.ReadyState() != dom.Loading {
		fn()
		return
	}
	go func() {
		tick := time.NewTicker(d.poll)
		defer tick.Stop()
		for {
			select {
			case <-d.ctx.Done():
				return
			case <-tick.C:
				if d.ReadyState() != dom.Loading {
					fn()
					return
				}
			}
		}
	}()
}

// Close stops event delivery and disconnects every subscription. The page
// itself is left open.
func (d *Document) Close() {
	d.cancel()
	d.subsMu.Lock()
	subs := d.subs
	d.subs = nil
	d.subsMu.Unlock()
	for _, s := range subs {
		s.close()
	}
}

// update applies fn to the entry of id under the write lock, when known.
func (d *Document) update(id proto.DOMNodeID, fn func(*entry)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tree == nil {
		return
	}
	if e, ok := d.tree.nodes[id]; ok {
		fn(e)
	}
}
