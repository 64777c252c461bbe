// Package mutation defines the DOM change records delivered to observers
// and the subscription contract shared by every DOM host.
//
// A host (the in-process html tree, or a live Chrome page) turns its
// changes into Records, groups them into Batches at its settle points and
// hands them to subscribers as a lazy sequence.
package mutation

// Op is the kind of DOM mutation observed.
type Op string

const (
	OpChildList     Op = "childList"     // node inserted or removed; target is the parent
	OpCharacterData Op = "characterData" // text node value changed
	OpAttributes    Op = "attributes"    // attribute set or removed
)

// Record is a single DOM mutation.
type Record struct {
	Op       Op     `json:"op"`
	Target   string `json:"target"`              // XPath of the mutated node (parent for childList)
	Name     string `json:"name,omitempty"`      // attribute name for attributes
	Value    string `json:"value,omitempty"`     // new value, when known
	OldValue string `json:"old_value,omitempty"` // previous value, when known
	Added    int    `json:"added,omitempty"`     // childList: nodes inserted
	Removed  int    `json:"removed,omitempty"`   // childList: nodes removed
}

// Batch is the unit delivered to a subscriber: every record collected
// between two settle points.
type Batch struct {
	ID        string   `json:"id"`
	Seq       uint64   `json:"seq"` // monotonically increasing per subscription
	Records   []Record `json:"records"`
	Timestamp int64    `json:"timestamp"` // epoch milliseconds at delivery
}
