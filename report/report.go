// Package report carries apply-cycle reports to output backends. A Cycle
// is emitted for every apply cycle a page context runs.
package report

import (
	"context"

	"github.com/hazyhaar/canary/applicator"
)

// Trigger says what started an apply cycle.
type Trigger string

const (
	TriggerInit      Trigger = "init"      // page ready
	TriggerMutation  Trigger = "mutation"  // qualifying mutation batch
	TriggerBootstrap Trigger = "bootstrap" // secondary loader hook
	TriggerManual    Trigger = "manual"    // entry point called directly
)

// Cycle describes one apply cycle.
type Cycle struct {
	ID        string           `json:"id"`
	PageID    string           `json:"page_id"`
	Seq       uint64           `json:"seq"` // per page context
	Trigger   Trigger          `json:"trigger"`
	Stats     applicator.Stats `json:"stats"`
	Timestamp int64            `json:"timestamp"` // epoch milliseconds at completion
}

// Sink is the output interface.
type Sink interface {
	Send(ctx context.Context, c Cycle) error
	Close() error
}

// CycleFunc is called for each cycle.
type CycleFunc func(ctx context.Context, c Cycle) error

// Callback delivers cycles via a Go function call, for embedders that
// live in the same binary.
type Callback struct {
	fn CycleFunc
}

// NewCallback creates a Callback sink. fn may be nil.
func NewCallback(fn CycleFunc) *Callback {
	return &Callback{fn: fn}
}

func (c *Callback) Send(ctx context.Context, cy Cycle) error {
	if c.fn != nil {
		return c.fn(ctx, cy)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
