package cdpdom

import (
	"fmt"
	"slices"
	"strings"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/canary/dom"
)

// entry mirrors one remote node.
type entry struct {
	id       proto.DOMNodeID
	parent   proto.DOMNodeID // 0 for the document node
	typ      dom.NodeType
	name     string
	value    string
	attrs    []string // flat name/value pairs, as CDP sends them
	children []proto.DOMNodeID
}

func (e *entry) attr(name string) (string, bool) {
	for i := 0; i+1 < len(e.attrs); i += 2 {
		if strings.EqualFold(e.attrs[i], name) {
			return e.attrs[i+1], true
		}
	}
	return "", false
}

// setAttr sets name and returns the previous value.
func (e *entry) setAttr(name, value string) string {
	for i := 0; i+1 < len(e.attrs); i += 2 {
		if strings.EqualFold(e.attrs[i], name) {
			old := e.attrs[i+1]
			e.attrs[i+1] = value
			return old
		}
	}
	e.attrs = append(e.attrs, name, value)
	return ""
}

func (e *entry) removeAttr(name string) (string, bool) {
	for i := 0; i+1 < len(e.attrs); i += 2 {
		if strings.EqualFold(e.attrs[i], name) {
			old := e.attrs[i+1]
			e.attrs = slices.Delete(e.attrs, i, i+2)
			return old, true
		}
	}
	return "", false
}

// tree indexes the remote DOM by node ID. It is rebuilt from
// DOM.getDocument on refresh and kept current by DOM events in between.
// Not safe for concurrent use; Document guards it.
type tree struct {
	nodes map[proto.DOMNodeID]*entry
	doc   proto.DOMNodeID
}

func newTree(root *proto.DOMNode) *tree {
	t := &tree{nodes: make(map[proto.DOMNodeID]*entry)}
	if root != nil {
		t.doc = root.NodeID
		t.add(0, root)
	}
	return t
}

// add indexes n and its known descendants under parent, without touching
// the parent's child list.
func (t *tree) add(parent proto.DOMNodeID, n *proto.DOMNode) {
	if n == nil {
		return
	}
	typ := dom.NodeType(n.NodeType)
	name := n.NodeName
	if typ == dom.ElementNode {
		name = strings.ToUpper(name)
	}
	e := &entry{
		id:     n.NodeID,
		parent: parent,
		typ:    typ,
		name:   name,
		value:  n.NodeValue,
		attrs:  slices.Clone(n.Attributes),
	}
	t.nodes[n.NodeID] = e
	for _, c := range n.Children {
		e.children = append(e.children, c.NodeID)
		t.add(n.NodeID, c)
	}
}

// insert adds n to parent's children right after prev (first when prev
// is 0).
func (t *tree) insert(parent, prev proto.DOMNodeID, n *proto.DOMNode) {
	p, ok := t.nodes[parent]
	if !ok || n == nil {
		return
	}
	if _, dup := t.nodes[n.NodeID]; dup {
		t.remove(n.NodeID)
	}
	t.add(parent, n)

	at := 0
	if prev != 0 {
		if i := slices.Index(p.children, prev); i >= 0 {
			at = i + 1
		} else {
			at = len(p.children)
		}
	}
	p.children = slices.Insert(p.children, at, n.NodeID)
}

// setChildren replaces the children of parent, as sent by DOM.setChildNodes.
func (t *tree) setChildren(parent proto.DOMNodeID, nodes []*proto.DOMNode) {
	p, ok := t.nodes[parent]
	if !ok {
		return
	}
	for _, c := range p.children {
		t.drop(c)
	}
	p.children = p.children[:0]
	for _, n := range nodes {
		t.add(parent, n)
		p.children = append(p.children, n.NodeID)
	}
}

// remove detaches id from its parent and forgets its subtree.
func (t *tree) remove(id proto.DOMNodeID) {
	e, ok := t.nodes[id]
	if !ok {
		return
	}
	if p, ok := t.nodes[e.parent]; ok {
		p.children = slices.DeleteFunc(p.children, func(c proto.DOMNodeID) bool { return c == id })
	}
	t.drop(id)
}

func (t *tree) drop(id proto.DOMNodeID) {
	e, ok := t.nodes[id]
	if !ok {
		return
	}
	for _, c := range e.children {
		t.drop(c)
	}
	delete(t.nodes, id)
}

// root returns the document element.
func (t *tree) root() *entry {
	d, ok := t.nodes[t.doc]
	if !ok {
		return nil
	}
	for _, c := range d.children {
		if e := t.nodes[c]; e != nil && e.typ == dom.ElementNode {
			return e
		}
	}
	return nil
}

// body returns the BODY child of the document element.
func (t *tree) body() *entry {
	r := t.root()
	if r == nil {
		return nil
	}
	for _, c := range r.children {
		if e := t.nodes[c]; e != nil && e.name == "BODY" {
			return e
		}
	}
	return nil
}

// path computes the XPath of id from the current tree. Sibling indexes
// appear only when the parent has several children with the same tag.
func (t *tree) path(id proto.DOMNodeID) string {
	e, ok := t.nodes[id]
	if !ok {
		return fmt.Sprintf("/unknown[nodeId=%d]", id)
	}

	switch e.typ {
	case dom.DocumentNode:
		return ""
	case dom.DoctypeNode:
		return t.path(e.parent)
	case dom.TextNode:
		return t.path(e.parent) + "/text()"
	case dom.CommentNode:
		return t.path(e.parent) + "/comment()"
	case dom.ElementNode:
	default:
		return t.path(e.parent) + "/" + strings.ToLower(e.name)
	}

	tag := strings.ToLower(e.name)
	p, ok := t.nodes[e.parent]
	if !ok {
		return "/" + tag
	}
	parentPath := t.path(e.parent)

	idx, total := 0, 0
	for _, c := range p.children {
		s := t.nodes[c]
		if s == nil || s.typ != dom.ElementNode || s.name != e.name {
			continue
		}
		total++
		if c == id {
			idx = total
		}
	}
	if total > 1 {
		return fmt.Sprintf("%s/%s[%d]", parentPath, tag, idx)
	}
	return parentPath + "/" + tag
}

func (t *tree) known(id proto.DOMNodeID) bool {
	_, ok := t.nodes[id]
	return ok
}
