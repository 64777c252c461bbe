package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// blocklist holds lower-cased CDP resource types.
type blocklist map[string]bool

var resourceAliases = map[string]proto.NetworkResourceType{
	"images":      proto.NetworkResourceTypeImage,
	"fonts":       proto.NetworkResourceTypeFont,
	"media":       proto.NetworkResourceTypeMedia,
	"stylesheets": proto.NetworkResourceTypeStylesheet,
}

func newBlocklist(names []string) blocklist {
	if len(names) == 0 {
		return nil
	}
	b := make(blocklist, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if t, ok := resourceAliases[n]; ok {
			n = strings.ToLower(string(t))
		}
		b[n] = true
	}
	return b
}

// blocks reports whether requests of type t are failed. The document
// itself always loads.
func (b blocklist) blocks(t proto.NetworkResourceType) bool {
	if t == proto.NetworkResourceTypeDocument {
		return false
	}
	return b[strings.ToLower(string(t))]
}

// install hijacks the page's requests and fails the blocked ones.
func (b blocklist) install(page *rod.Page) {
	if len(b) == 0 {
		return
	}
	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if b.blocks(h.Request.Type()) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
}
