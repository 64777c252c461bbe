package htmldom

import (
	"fmt"

	"golang.org/x/net/html"
)

// xpathOf computes an XPath for n: positional predicates only where
// siblings share the tag name, "/text()" and "/comment()" for character
// data. Detached subtrees are rooted at their topmost ancestor.
func xpathOf(n *html.Node) string {
	if n == nil {
		return ""
	}
	switch n.Type {
	case html.DocumentNode:
		return ""
	case html.TextNode:
		return xpathOf(n.Parent) + "/text()"
	case html.CommentNode:
		return xpathOf(n.Parent) + "/comment()"
	case html.ElementNode:
	default:
		return xpathOf(n.Parent)
	}

	parentPath := xpathOf(n.Parent)
	if n.Parent == nil {
		return "/" + n.Data
	}

	idx, total := 0, 0
	for s := n.Parent.FirstChild; s != nil; s = s.NextSibling {
		if s.Type != html.ElementNode || s.Data != n.Data {
			continue
		}
		total++
		if s == n {
			idx = total
		}
	}
	if total > 1 {
		return fmt.Sprintf("%s/%s[%d]", parentPath, n.Data, idx)
	}
	return parentPath + "/" + n.Data
}
