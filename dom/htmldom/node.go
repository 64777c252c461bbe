package htmldom

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/canary/dom"
	"github.com/hazyhaar/canary/mutation"
)

// node adapts an *html.Node to dom.Node. Wrappers are created on demand;
// two wrappers of the same *html.Node are interchangeable.
type node struct {
	d *Document
	n *html.Node
}

func (d *Document) wrap(n *html.Node) dom.Node {
	if n == nil {
		return nil
	}
	return &node{d: d, n: n}
}

func (w *node) Type() dom.NodeType {
	switch w.n.Type {
	case html.ElementNode:
		return dom.ElementNode
	case html.TextNode:
		return dom.TextNode
	case html.CommentNode:
		return dom.CommentNode
	case html.DocumentNode:
		return dom.DocumentNode
	case html.DoctypeNode:
		return dom.DoctypeNode
	}
	return 0
}

func (w *node) Name() string {
	switch w.n.Type {
	case html.ElementNode:
		return strings.ToUpper(w.n.Data)
	case html.TextNode:
		return "#text"
	case html.CommentNode:
		return "#comment"
	case html.DocumentNode:
		return "#document"
	}
	return w.n.Data
}

func (w *node) Value() string {
	w.d.mu.Lock()
	defer w.d.mu.Unlock()
	if w.n.Type != html.TextNode && w.n.Type != html.CommentNode {
		return ""
	}
	return w.n.Data
}

// SetValue replaces the character data of a text or comment node. Like a
// browser, it queues a characterData record even when the value is equal.
func (w *node) SetValue(v string) error {
	w.d.mu.Lock()
	defer w.d.mu.Unlock()
	if w.n.Type != html.TextNode && w.n.Type != html.CommentNode {
		return ErrNotCharacterData
	}
	old := w.n.Data
	w.n.Data = v
	w.d.record(w.n, mutation.Record{
		Op:       mutation.OpCharacterData,
		Target:   xpathOf(w.n),
		Value:    v,
		OldValue: old,
	})
	return nil
}

func (w *node) Parent() dom.Node {
	w.d.mu.Lock()
	defer w.d.mu.Unlock()
	return w.d.wrap(w.n.Parent)
}

func (w *node) Children() []dom.Node {
	w.d.mu.Lock()
	defer w.d.mu.Unlock()
	var out []dom.Node
	for c := w.n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, w.d.wrap(c))
	}
	return out
}

func (w *node) Attr(name string) (string, bool) {
	w.d.mu.Lock()
	defer w.d.mu.Unlock()
	if i := attrIndex(w.n, name); i >= 0 {
		return w.n.Attr[i].Val, true
	}
	return "", false
}

// SetAttr sets an attribute, queueing an attributes record even when the
// value is unchanged.
func (w *node) SetAttr(name, value string) error {
	w.d.mu.Lock()
	defer w.d.mu.Unlock()
	if w.n.Type != html.ElementNode {
		return ErrNotElement
	}
	name = strings.ToLower(name)
	var old string
	if i := attrIndex(w.n, name); i >= 0 {
		old = w.n.Attr[i].Val
		w.n.Attr[i].Val = value
	} else {
		w.n.Attr = append(w.n.Attr, html.Attribute{Key: name, Val: value})
	}
	w.d.record(w.n, mutation.Record{
		Op:       mutation.OpAttributes,
		Target:   xpathOf(w.n),
		Name:     name,
		Value:    value,
		OldValue: old,
	})
	return nil
}

// RemoveAttr removes an attribute. Removing an absent attribute queues
// nothing.
func (w *node) RemoveAttr(name string) error {
	w.d.mu.Lock()
	defer w.d.mu.Unlock()
	if w.n.Type != html.ElementNode {
		return ErrNotElement
	}
	i := attrIndex(w.n, name)
	if i < 0 {
		return nil
	}
	old := w.n.Attr[i].Val
	w.n.Attr = append(w.n.Attr[:i], w.n.Attr[i+1:]...)
	w.d.record(w.n, mutation.Record{
		Op:       mutation.OpAttributes,
		Target:   xpathOf(w.n),
		Name:     strings.ToLower(name),
		OldValue: old,
	})
	return nil
}

func (w *node) Path() string {
	w.d.mu.Lock()
	defer w.d.mu.Unlock()
	return xpathOf(w.n)
}

func attrIndex(n *html.Node, name string) int {
	name = strings.ToLower(name)
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return i
		}
	}
	return -1
}
