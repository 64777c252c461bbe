// Package applicator makes a rendered document consistent with a brand:
// logo images swapped, the source brand string replaced in text nodes,
// tracked attributes and document metadata.
//
// Every pass is idempotent and monotonic. A value is written only when it
// changes, so re-applying to a branded document touches nothing and
// produces no mutation records for an observer to react to.
package applicator

import (
	"log/slog"
	"time"

	"github.com/hazyhaar/canary/brand"
	"github.com/hazyhaar/canary/dom"
)

// Marker attributes carried by processed logo images.
const (
	AttrOriginalSrc = "data-original-src"
	AttrApplied     = "data-canary-logo-applied"
	AttrLogo        = "data-canary-logo"
)

// Stats counts the values one apply cycle changed.
type Stats struct {
	Logos      int           `json:"logos"`
	Texts      int           `json:"texts"`
	Attributes int           `json:"attributes"`
	Metadata   int           `json:"metadata"`
	Duration   time.Duration `json:"duration"`
}

// Changed is the total number of changed values.
func (s Stats) Changed() int {
	return s.Logos + s.Texts + s.Attributes + s.Metadata
}

// Applicator runs apply cycles for one brand. It holds no per-document
// state and may be shared between documents.
type Applicator struct {
	brand  *brand.Brand
	logger *slog.Logger
}

// Option configures an Applicator.
type Option func(*Applicator)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Applicator) { a.logger = l }
}

// New creates an Applicator. A nil brand means brand.Default().
func New(b *brand.Brand, opts ...Option) *Applicator {
	if b == nil {
		b = brand.Default()
	}
	a := &Applicator{brand: b, logger: slog.Default()}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Brand returns the brand applied.
func (a *Applicator) Brand() *brand.Brand { return a.brand }

// Apply runs one apply cycle: logos, text, attributes, metadata. A nil
// document, a missing body or missing elements are skipped silently.
func (a *Applicator) Apply(doc dom.Document) Stats {
	var st Stats
	if doc == nil {
		return st
	}
	start := time.Now()

	if r, ok := doc.(dom.Refresher); ok {
		if err := r.Refresh(); err != nil {
			a.logger.Warn("applicator: refresh document", "error", err)
			return st
		}
	}

	st.Logos = a.Logos(doc)
	st.Texts = a.Text(doc.Body())
	st.Attributes = a.Attributes(doc)
	st.Metadata = a.Metadata(doc)
	st.Duration = time.Since(start)

	if st.Changed() > 0 {
		a.logger.Debug("applicator: cycle applied",
			"logos", st.Logos, "texts", st.Texts,
			"attributes", st.Attributes, "metadata", st.Metadata,
			"duration", st.Duration)
	}
	return st
}

// Text replaces the source brand in every text node under root, except
// text directly inside an exempt tag. A nil root is a no-op. Returns the
// number of text nodes changed.
func (a *Applicator) Text(root dom.Node) int {
	n := 0
	for _, t := range dom.TextNodes(root) {
		if a.brand.Exempt(dom.ParentName(t)) {
			continue
		}
		if a.replaceValue(t) {
			n++
		}
	}
	return n
}

// Attributes replaces the source brand in the tracked attributes of every
// element of the document, each attribute independently. Returns the
// number of attribute values changed.
func (a *Applicator) Attributes(doc dom.Document) int {
	attrs := a.brand.Attributes()
	n := 0
	for _, el := range dom.Elements(doc.Root()) {
		for _, name := range attrs {
			if a.replaceAttr(el, name) {
				n++
			}
		}
	}
	return n
}

// Metadata replaces the source brand in the document title and in the
// content of the brand's metadata elements.
func (a *Applicator) Metadata(doc dom.Document) int {
	n := 0
	if titles := doc.Select("title"); len(titles) > 0 {
		for _, c := range titles[0].Children() {
			if c.Type() == dom.TextNode && a.replaceValue(c) {
				n++
			}
		}
	}
	for _, meta := range doc.Select(a.brand.MetaSelector()) {
		if a.replaceAttr(meta, "content") {
			n++
		}
	}
	return n
}

func (a *Applicator) replaceValue(n dom.Node) bool {
	v, ok := a.brand.Replace(n.Value())
	if !ok {
		return false
	}
	if err := n.SetValue(v); err != nil {
		a.logger.Debug("applicator: set text", "path", n.Path(), "error", err)
		return false
	}
	return true
}

func (a *Applicator) replaceAttr(el dom.Node, name string) bool {
	cur, ok := el.Attr(name)
	if !ok {
		return false
	}
	v, ok := a.brand.Replace(cur)
	if !ok {
		return false
	}
	return a.setAttr(el, name, v)
}

// setAttr writes name=value unless the element already carries it.
func (a *Applicator) setAttr(el dom.Node, name, value string) bool {
	if cur, ok := el.Attr(name); ok && cur == value {
		return false
	}
	if err := el.SetAttr(name, value); err != nil {
		a.logger.Debug("applicator: set attribute", "path", el.Path(), "name", name, "error", err)
		return false
	}
	return true
}

func (a *Applicator) removeAttr(el dom.Node, name string) bool {
	if _, ok := el.Attr(name); !ok {
		return false
	}
	if err := el.RemoveAttr(name); err != nil {
		a.logger.Debug("applicator: remove attribute", "path", el.Path(), "name", name, "error", err)
		return false
	}
	return true
}
