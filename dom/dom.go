// Package dom is the minimal view of a rendered document that the brand
// applicator and the mutation watcher work against. Hosts implement it
// over an in-process html tree (htmldom) or a live browser page (cdpdom).
//
// Node names follow the DOM convention: upper-case tag names for elements,
// "#text" for text nodes, "#document" for the document node.
package dom

// NodeType mirrors DOM Node.nodeType.
type NodeType int

const (
	ElementNode  NodeType = 1
	TextNode     NodeType = 3
	CommentNode  NodeType = 8
	DocumentNode NodeType = 9
	DoctypeNode  NodeType = 10
)

// ReadyState mirrors document.readyState.
type ReadyState string

const (
	Loading     ReadyState = "loading"
	Interactive ReadyState = "interactive"
	Complete    ReadyState = "complete"
)

// Node is a node of a rendered document. Write methods return an error
// only when the host failed to apply the change; callers treat writes as
// best-effort.
type Node interface {
	Type() NodeType
	Name() string
	// Value is the text of a text or comment node, "" otherwise.
	Value() string
	SetValue(v string) error
	// Parent returns nil for the document node and detached nodes.
	Parent() Node
	// Children returns the child nodes in document order.
	Children() []Node
	Attr(name string) (string, bool)
	SetAttr(name, value string) error
	RemoveAttr(name string) error
	// Path is an XPath locating the node, used in mutation records and logs.
	Path() string
}

// Document is a rendered document.
type Document interface {
	// Root is the document element, nil when the document is empty.
	Root() Node
	// Body is the body element, nil before it has been parsed.
	Body() Node
	// Select returns the elements matching a CSS selector group in
	// document order. An invalid selector matches nothing.
	Select(selector string) []Node
	ReadyState() ReadyState
	// OnReady runs fn once the document has finished loading, immediately
	// when it already has.
	OnReady(fn func())
}

// Refresher is implemented by documents that mirror a remote DOM and must
// resynchronise before a full pass over it.
type Refresher interface {
	Refresh() error
}
