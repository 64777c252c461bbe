// Package htmldom hosts a rendered document in process, on top of
// golang.org/x/net/html. It behaves like a browser document as far as the
// applicator and watcher can tell: CSS selector queries, ready-state
// callbacks and a MutationObserver model whose records are delivered in
// batches at explicit settle points (the microtask checkpoint of a
// browser).
package htmldom

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/canary/dom"
	"github.com/hazyhaar/canary/idgen"
	"github.com/hazyhaar/canary/mutation"
)

var (
	// ErrForeignNode is returned when a node from another host or document
	// is passed to a Document method.
	ErrForeignNode = errors.New("htmldom: node does not belong to this document")
	// ErrNotElement is returned when an element is required.
	ErrNotElement = errors.New("htmldom: not an element")
	// ErrNotCharacterData is returned by SetValue on nodes without a value.
	ErrNotCharacterData = errors.New("htmldom: node has no character data")
)

// Document is an in-process rendered document. All methods are safe for
// concurrent use.
type Document struct {
	mu        sync.Mutex
	root      *html.Node // html.DocumentNode
	state     dom.ReadyState
	ready     []func()
	observers []*observer
	newID     idgen.Generator

	selMu     sync.Mutex
	selectors map[string]cascadia.Selector
}

// Option configures a Document.
type Option func(*Document)

// WithReadyState sets the initial ready state.
func WithReadyState(s dom.ReadyState) Option {
	return func(d *Document) { d.state = s }
}

// WithIDGenerator sets the generator used for mutation batch IDs.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(d *Document) { d.newID = gen }
}

func newDocument(root *html.Node, state dom.ReadyState, opts []Option) *Document {
	d := &Document{
		root:      root,
		state:     state,
		selectors: make(map[string]cascadia.Selector),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Parse parses a complete HTML document. The result is Complete unless
// WithReadyState says otherwise.
func Parse(r io.Reader, opts ...Option) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("htmldom: parse: %w", err)
	}
	return newDocument(root, dom.Complete, opts), nil
}

// ParseString is Parse on a string.
func ParseString(s string, opts ...Option) (*Document, error) {
	return Parse(strings.NewReader(s), opts...)
}

// New returns a document that is still loading: a bare html element with
// neither head nor body. Content arrives through AppendHTML and the load
// completes with SetReadyState.
func New(opts ...Option) *Document {
	root := &html.Node{Type: html.DocumentNode}
	root.AppendChild(&html.Node{Type: html.ElementNode, Data: "html", DataAtom: atom.Html})
	return newDocument(root, dom.Loading, opts)
}

// Root returns the document element.
func (d *Document) Root() dom.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, _ := htmlquery.Query(d.root, "/*")
	return d.wrap(n)
}

// Body returns the body element, nil when there is none yet.
func (d *Document) Body() dom.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, _ := htmlquery.Query(d.root, "/html/body")
	return d.wrap(n)
}

// Select matches a CSS selector group against the whole document.
func (d *Document) Select(selector string) []dom.Node {
	sel, ok := d.compile(selector)
	if !ok {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	matches := sel.MatchAll(d.root)
	out := make([]dom.Node, 0, len(matches))
	for _, m := range matches {
		out = append(out, d.wrap(m))
	}
	return out
}

func (d *Document) compile(selector string) (cascadia.Selector, bool) {
	d.selMu.Lock()
	defer d.selMu.Unlock()
	if sel, ok := d.selectors[selector]; ok {
		return sel, sel != nil
	}
	sel, err := cascadia.Compile(selector)
	if err != nil {
		sel = nil
	}
	d.selectors[selector] = sel
	return sel, sel != nil
}

// ReadyState returns the current ready state.
func (d *Document) ReadyState() dom.ReadyState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// OnReady runs fn once the document has left the loading state.
func (d *Document) OnReady(fn func()) {
	d.mu.Lock()
	if d.state == dom.Loading {
		d.ready = append(d.ready, fn)
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()
	fn()
}

// SetReadyState moves the document to s. Leaving the loading state runs
// the pending OnReady callbacks, once, in registration order.
func (d *Document) SetReadyState(s dom.ReadyState) {
	d.mu.Lock()
	d.state = s
	var run []func()
	if s != dom.Loading {
		run, d.ready = d.ready, nil
	}
	d.mu.Unlock()

	for _, fn := range run {
		fn()
	}
}

// AppendHTML parses fragment in the context of parent and appends the
// resulting nodes to it, producing one childList record.
func (d *Document) AppendHTML(parent dom.Node, fragment string) error {
	p, err := d.unwrap(parent)
	if err != nil {
		return err
	}
	if p.Type != html.ElementNode {
		return ErrNotElement
	}

	nodes, err := html.ParseFragment(strings.NewReader(fragment), p)
	if err != nil {
		return fmt.Errorf("htmldom: parse fragment: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, n := range nodes {
		p.AppendChild(n)
	}
	d.record(p, mutation.Record{Op: mutation.OpChildList, Target: xpathOf(p), Added: len(nodes)})
	return nil
}

// Remove detaches n from its parent, producing one childList record.
// Removing a detached node is a no-op.
func (d *Document) Remove(n dom.Node) error {
	c, err := d.unwrap(n)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	p := c.Parent
	if p == nil {
		return nil
	}
	path := xpathOf(p)
	p.RemoveChild(c)
	d.record(p, mutation.Record{Op: mutation.OpChildList, Target: path, Removed: 1})
	return nil
}

// Render writes the document as HTML.
func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return html.Render(w, d.root)
}

// String renders the document, "" on error.
func (d *Document) String() string {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return ""
	}
	return buf.String()
}

func (d *Document) unwrap(n dom.Node) (*html.Node, error) {
	w, ok := n.(*node)
	if !ok || w == nil || w.d != d {
		return nil, ErrForeignNode
	}
	return w.n, nil
}
