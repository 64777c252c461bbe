// Package watcher re-applies branding when a document changes in a way
// that could reintroduce the source brand: inserted or removed nodes, text
// updates, and updates to tracked attributes.
//
// The reactive loop is a fold over the subscription's lazy sequence of
// batches. Batch contents matter only through Qualifies; one qualifying
// batch triggers exactly one re-apply, since a cycle rescans the whole
// document anyway.
package watcher

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/hazyhaar/canary/dom"
	"github.com/hazyhaar/canary/mutation"
)

// Target picks the node to observe and the options to observe it with:
// the body with attribute tracking when a body exists, otherwise the
// document element with the reduced childList/characterData filter.
// Target returns a nil node for an empty document.
func Target(doc dom.Document, attrs []string) (dom.Node, mutation.Options) {
	if body := doc.Body(); body != nil {
		return body, mutation.Options{
			ChildList:       true,
			Subtree:         true,
			CharacterData:   true,
			Attributes:      true,
			AttributeFilter: slices.Clone(attrs),
		}
	}
	return doc.Root(), mutation.Options{
		ChildList:     true,
		Subtree:       true,
		CharacterData: true,
	}
}

// Qualifies scans b in order and reports whether any record warrants a
// re-apply. The scan stops at the first qualifying record.
func Qualifies(b mutation.Batch, attrs []string) bool {
	for _, rec := range b.Records {
		switch rec.Op {
		case mutation.OpChildList, mutation.OpCharacterData:
			return true
		case mutation.OpAttributes:
			if slices.Contains(attrs, strings.ToLower(rec.Name)) {
				return true
			}
		}
	}
	return false
}

// Fold consumes seq until it ends or ctx is done, calling apply once per
// qualifying batch. It returns the number of re-applies.
func Fold(ctx context.Context, seq iter.Seq[mutation.Batch], attrs []string, apply func()) int {
	n := 0
	for b := range seq {
		if ctx.Err() != nil {
			break
		}
		if Qualifies(b, attrs) {
			apply()
			n++
		}
	}
	return n
}

// Config configures a Watcher.
type Config struct {
	// Attributes is the tracked attribute list.
	Attributes []string
	// Apply runs one apply cycle. Required.
	Apply  func()
	Logger *slog.Logger
}

// Watcher ties a subscription to an apply function.
type Watcher struct {
	attrs  []string
	apply  func()
	logger *slog.Logger

	reapplied atomic.Uint64
	done      chan struct{}
}

// New creates a Watcher.
func New(cfg Config) *Watcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	attrs := make([]string, 0, len(cfg.Attributes))
	for _, a := range cfg.Attributes {
		attrs = append(attrs, strings.ToLower(a))
	}
	return &Watcher{
		attrs:  attrs,
		apply:  cfg.Apply,
		logger: cfg.Logger,
		done:   make(chan struct{}),
	}
}

// Attach subscribes to doc through obs and folds the batches into
// re-applies on a new goroutine, until ctx is done or the subscription
// is disconnected. The subscription is the observer handle; Attach never
// disconnects it on its own. Attach must be called at most once.
func (w *Watcher) Attach(ctx context.Context, doc dom.Document, obs mutation.Observable) (mutation.Subscription, error) {
	if w.apply == nil {
		return nil, fmt.Errorf("watcher: no apply function")
	}
	target, opts := Target(doc, w.attrs)
	if target == nil {
		return nil, fmt.Errorf("watcher: document has no root element")
	}

	sub, err := obs.Observe(target, opts)
	if err != nil {
		return nil, fmt.Errorf("watcher: observe %s: %w", target.Path(), err)
	}

	w.logger.Info("watcher: attached",
		"target", target.Path(), "attributes", opts.Attributes)

	go func() {
		defer close(w.done)
		n := Fold(ctx, sub.Batches(ctx), w.attrs, func() {
			w.reapplied.Add(1)
			w.apply()
		})
		w.logger.Info("watcher: stopped", "target", target.Path(), "reapplied", n)
	}()
	return sub, nil
}

// Reapplied returns the number of re-applies triggered so far.
func (w *Watcher) Reapplied() uint64 { return w.reapplied.Load() }

// Done is closed when the fold started by Attach has returned.
func (w *Watcher) Done() <-chan struct{} { return w.done }
