package cdpdom

import (
	"fmt"
	"slices"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/canary/dom"
)

// node is a handle on a remote node. Reads come from the mirror; a node
// the mirror no longer knows reads as empty.
type node struct {
	d  *Document
	id proto.DOMNodeID
}

func (n *node) entry() (entry, bool) {
	n.d.mu.RLock()
	defer n.d.mu.RUnlock()
	if n.d.tree == nil {
		return entry{}, false
	}
	e, ok := n.d.tree.nodes[n.id]
	if !ok {
		return entry{}, false
	}
	c := *e
	c.attrs = slices.Clone(e.attrs)
	c.children = slices.Clone(e.children)
	return c, true
}

func (n *node) Type() dom.NodeType {
	e, _ := n.entry()
	return e.typ
}

func (n *node) Name() string {
	e, _ := n.entry()
	return e.name
}

func (n *node) Value() string {
	e, _ := n.entry()
	return e.value
}

func (n *node) SetValue(v string) error {
	err := proto.DOMSetNodeValue{NodeID: n.id, Value: v}.Call(n.d.page.Context(n.d.ctx))
	if err != nil {
		return fmt.Errorf("cdpdom: DOM.setNodeValue %d: %w", n.id, err)
	}
	n.d.update(n.id, func(e *entry) { e.value = v })
	return nil
}

func (n *node) Parent() dom.Node {
	e, ok := n.entry()
	if !ok || e.parent == 0 {
		return nil
	}
	return &node{d: n.d, id: e.parent}
}

func (n *node) Children() []dom.Node {
	e, _ := n.entry()
	out := make([]dom.Node, 0, len(e.children))
	for _, c := range e.children {
		out = append(out, &node{d: n.d, id: c})
	}
	return out
}

func (n *node) Attr(name string) (string, bool) {
	e, _ := n.entry()
	return e.attr(name)
}

func (n *node) SetAttr(name, value string) error {
	err := proto.DOMSetAttributeValue{NodeID: n.id, Name: name, Value: value}.Call(n.d.page.Context(n.d.ctx))
	if err != nil {
		return fmt.Errorf("cdpdom: DOM.setAttributeValue %d %s: %w", n.id, name, err)
	}
	n.d.update(n.id, func(e *entry) { e.setAttr(name, value) })
	return nil
}

func (n *node) RemoveAttr(name string) error {
	err := proto.DOMRemoveAttribute{NodeID: n.id, Name: name}.Call(n.d.page.Context(n.d.ctx))
	if err != nil {
		return fmt.Errorf("cdpdom: DOM.removeAttribute %d %s: %w", n.id, name, err)
	}
	n.d.update(n.id, func(e *entry) { e.removeAttr(name) })
	return nil
}

func (n *node) Path() string {
	n.d.mu.RLock()
	defer n.d.mu.RUnlock()
	if n.d.tree == nil {
		return ""
	}
	return n.d.tree.path(n.id)
}
