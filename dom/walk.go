package dom

// Walk visits root and its descendants in document order. Returning false
// from fn skips the node's children. A nil root is a no-op.
func Walk(root Node, fn func(Node) bool) {
	if root == nil {
		return
	}
	if !fn(root) {
		return
	}
	for _, c := range root.Children() {
		Walk(c, fn)
	}
}

// TextNodes returns the text nodes under root in document order.
func TextNodes(root Node) []Node {
	var out []Node
	Walk(root, func(n Node) bool {
		if n.Type() == TextNode {
			out = append(out, n)
		}
		return true
	})
	return out
}

// Elements returns root (if an element) and its element descendants in
// document order.
func Elements(root Node) []Node {
	var out []Node
	Walk(root, func(n Node) bool {
		if n.Type() == ElementNode {
			out = append(out, n)
		}
		return true
	})
	return out
}

// ParentName returns the name of n's parent, "" when it has none.
func ParentName(n Node) string {
	p := n.Parent()
	if p == nil {
		return ""
	}
	return p.Name()
}
