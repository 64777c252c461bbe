package mutation

import (
	"slices"
	"strings"
)

// Options selects which mutations a subscription receives. It mirrors the
// init dictionary of a DOM MutationObserver.
type Options struct {
	ChildList       bool     `json:"child_list"`
	Subtree         bool     `json:"subtree"`
	CharacterData   bool     `json:"character_data"`
	Attributes      bool     `json:"attributes"`
	AttributeFilter []string `json:"attribute_filter,omitempty"`
}

// Allows reports whether rec is of a kind selected by o. Whether the
// record's target lies under the observed node is the host's concern.
func (o Options) Allows(rec Record) bool {
	switch rec.Op {
	case OpChildList:
		return o.ChildList
	case OpCharacterData:
		return o.CharacterData
	case OpAttributes:
		if !o.Attributes {
			return false
		}
		if len(o.AttributeFilter) == 0 {
			return true
		}
		return slices.Contains(o.AttributeFilter, strings.ToLower(rec.Name))
	}
	return false
}

// Within reports whether path lies at or under root for the given options:
// any descendant when Subtree is set, the root itself otherwise. Paths are
// XPaths as produced by the hosts ("/html/body/div[2]").
func (o Options) Within(root, path string) bool {
	if path == root {
		return true
	}
	if !o.Subtree {
		return false
	}
	if root == "" || root == "/" {
		return true
	}
	return strings.HasPrefix(path, root+"/")
}
