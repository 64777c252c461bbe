package mutation

import (
	"context"
	"errors"
	"iter"

	"github.com/hazyhaar/canary/dom"
)

// ErrDisconnected is returned when observing through a subscription that
// has been torn down.
var ErrDisconnected = errors.New("mutation: subscription disconnected")

// Info is a point-in-time view of a subscription, for diagnostics.
type Info struct {
	Target    string  `json:"target"`
	Options   Options `json:"options"`
	Batches   uint64  `json:"batches"`
	Records   uint64  `json:"records"`
	Connected bool    `json:"connected"`
}

// Subscription is a live observation of part of a document. It stays
// connected until Disconnect is called or its host goes away.
type Subscription interface {
	// Batches yields delivered batches in order. The sequence ends when
	// ctx is done or the subscription is disconnected.
	Batches(ctx context.Context) iter.Seq[Batch]
	// Disconnect stops delivery. Safe to call more than once.
	Disconnect()
	// Info describes the subscription.
	Info() Info
}

// Observable is implemented by DOM hosts that can report mutations.
// target must be a node previously obtained from the same host.
type Observable interface {
	Observe(target dom.Node, opts Options) (Subscription, error)
}
