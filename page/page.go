// Package page holds the page-lifetime state of a branded document: the
// entry point that runs one apply cycle and the observer handle of the
// watcher that keeps the document branded.
//
// A Context stands in for the globals a content script would hang off
// window. Secondary loaders reach the entry point through Bootstrap,
// which tolerates a context whose entry point is not defined yet.
package page

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/canary/applicator"
	"github.com/hazyhaar/canary/dom"
	"github.com/hazyhaar/canary/idgen"
	"github.com/hazyhaar/canary/mutation"
	"github.com/hazyhaar/canary/report"
	"github.com/hazyhaar/canary/watcher"
)

var (
	// ErrNoEntryPoint is returned by Run before Define.
	ErrNoEntryPoint = errors.New("page: entry point not defined")
	// ErrClosed is returned by Run after Close.
	ErrClosed = errors.New("page: context closed")
)

// Context is the page-lifetime scope. Apply cycles run one at a time
// under its lock, whatever triggered them.
type Context struct {
	id     string
	doc    dom.Document
	sink   report.Sink
	logger *slog.Logger
	newID  idgen.Generator

	cycleMu sync.Mutex // held for the whole apply cycle

	mu      sync.Mutex
	app     *applicator.Applicator
	sub     mutation.Subscription
	watcher *watcher.Watcher
	seq     uint64
	last    report.Cycle
	closed  bool
}

// Option configures a Context.
type Option func(*Context)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Context) { c.logger = l }
}

// WithSink sets the sink receiving one report per apply cycle.
func WithSink(s report.Sink) Option {
	return func(c *Context) { c.sink = s }
}

// WithIDGenerator sets the generator for cycle IDs.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(c *Context) { c.newID = gen }
}

// New creates a Context for doc. id names the page in reports and logs.
func New(id string, doc dom.Document, opts ...Option) *Context {
	c := &Context{
		id:     id,
		doc:    doc,
		logger: slog.Default(),
		newID:  idgen.Prefixed("cyc_", idgen.Default),
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = c.logger.With("page_id", id)
	return c
}

// ID returns the page ID.
func (c *Context) ID() string { return c.id }

// Document returns the page document.
func (c *Context) Document() dom.Document { return c.doc }

// Define makes app the context's entry point. Defining again replaces
// the applicator used by later cycles.
func (c *Context) Define(app *applicator.Applicator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.app = app
}

// EntryPoint returns the zero-argument function that runs one full apply
// cycle, or nil before Define. It may be called any number of times.
func (c *Context) EntryPoint() func() {
	c.mu.Lock()
	defined := c.app != nil
	c.mu.Unlock()
	if !defined {
		return nil
	}
	return func() {
		if _, err := c.Run(report.TriggerManual); err != nil {
			c.logger.Debug("page: entry point", "error", err)
		}
	}
}

// Apply runs one manual apply cycle.
func (c *Context) Apply() (report.Cycle, error) {
	return c.Run(report.TriggerManual)
}

// Run runs one apply cycle and reports it to the sink. Cycles never
// overlap: a caller arriving during a cycle waits for it to finish.
func (c *Context) Run(trigger report.Trigger) (report.Cycle, error) {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	c.mu.Lock()
	app, closed := c.app, c.closed
	c.mu.Unlock()
	if closed {
		return report.Cycle{}, ErrClosed
	}
	if app == nil {
		return report.Cycle{}, ErrNoEntryPoint
	}

	st := app.Apply(c.doc)

	c.mu.Lock()
	c.seq++
	cy := report.Cycle{
		ID:        c.newID(),
		PageID:    c.id,
		Seq:       c.seq,
		Trigger:   trigger,
		Stats:     st,
		Timestamp: time.Now().UnixMilli(),
	}
	c.last = cy
	c.mu.Unlock()

	if c.sink != nil {
		if err := c.sink.Send(context.Background(), cy); err != nil {
			c.logger.Warn("page: report cycle", "cycle_id", cy.ID, "error", err)
		}
	}
	return cy, nil
}

// Observer returns the observer handle, nil until the watcher attached.
func (c *Context) Observer() mutation.Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sub
}

// Watcher returns the attached watcher, nil until it attached.
func (c *Context) Watcher() *watcher.Watcher {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.watcher
}

// Last returns the most recent cycle report.
func (c *Context) Last() report.Cycle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Cycles returns the number of cycles run.
func (c *Context) Cycles() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Close disconnects the observer and ends the page lifetime. Later cycles
// fail with ErrClosed.
func (c *Context) Close() {
	c.mu.Lock()
	c.closed = true
	sub := c.sub
	c.mu.Unlock()
	if sub != nil {
		sub.Disconnect()
	}
}

// Install defines app as the entry point and, once the document is ready,
// runs the initial cycle and attaches a watcher through obs. The watcher
// lives until ctx is done or the observer is disconnected. A context gets
// one observer: installing twice only redefines the entry point.
func Install(ctx context.Context, c *Context, app *applicator.Applicator, obs mutation.Observable) error {
	if c == nil || app == nil || obs == nil {
		return fmt.Errorf("page: install: missing context, applicator or observable")
	}
	c.Define(app)

	c.doc.OnReady(func() {
		if _, err := c.Run(report.TriggerInit); err != nil {
			c.logger.Warn("page: initial cycle", "error", err)
			return
		}

		c.mu.Lock()
		attached := c.sub != nil || c.closed
		c.mu.Unlock()
		if attached {
			return
		}

		w := watcher.New(watcher.Config{
			Attributes: app.Brand().Attributes(),
			Apply: func() {
				if _, err := c.Run(report.TriggerMutation); err != nil {
					c.logger.Debug("page: mutation cycle", "error", err)
				}
			},
			Logger: c.logger,
		})
		sub, err := w.Attach(ctx, c.doc, obs)
		if err != nil {
			c.logger.Warn("page: attach watcher", "error", err)
			return
		}

		// Close or another Install may have run while the watcher attached.
		c.mu.Lock()
		lost := c.closed || c.sub != nil
		if !lost {
			c.sub, c.watcher = sub, w
		}
		c.mu.Unlock()
		if lost {
			sub.Disconnect()
		}
	})
	return nil
}

// Bootstrap is the hook for loaders that may run before or after
// Install: once the document is ready it runs one cycle through the entry
// point, if one is defined by then. A nil context or a missing entry
// point is a no-op.
func Bootstrap(c *Context) {
	if c == nil || c.doc == nil {
		return
	}
	c.doc.OnReady(func() {
		if c.EntryPoint() == nil {
			c.logger.Debug("page: bootstrap without entry point")
			return
		}
		if _, err := c.Run(report.TriggerBootstrap); err != nil {
			c.logger.Debug("page: bootstrap cycle", "error", err)
		}
	})
}
