package cdpdom

import (
	"sync"
	"time"

	"github.com/hazyhaar/canary/mutation"
)

// DebounceConfig controls how DOM events are grouped into batches.
type DebounceConfig struct {
	// Window is the quiet period that ends a batch. Default: 100ms.
	Window time.Duration
	// MaxBuffer flushes immediately when this many records accumulate.
	// Default: 1000.
	MaxBuffer int
}

func (dc *DebounceConfig) defaults() {
	if dc.Window <= 0 {
		dc.Window = 100 * time.Millisecond
	}
	if dc.MaxBuffer <= 0 {
		dc.MaxBuffer = 1000
	}
}

// debouncer collects records and hands them to flushFn, compressed, when
// the window expires or the buffer fills. Safe for concurrent use.
type debouncer struct {
	cfg     DebounceConfig
	flushFn func([]mutation.Record)

	mu      sync.Mutex
	records []mutation.Record
	timer   *time.Timer
	stopped bool
}

func newDebouncer(cfg DebounceConfig, flushFn func([]mutation.Record)) *debouncer {
	cfg.defaults()
	return &debouncer{cfg: cfg, flushFn: flushFn}
}

func (d *debouncer) add(rec mutation.Record) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.records = append(d.records, rec)

	if len(d.records) >= d.cfg.MaxBuffer {
		recs := d.take()
		d.mu.Unlock()
		d.flushFn(compress(recs))
		return
	}

	// (Re)start the window.
	if d.timer == nil {
		d.timer = time.AfterFunc(d.cfg.Window, d.flush)
	} else {
		d.timer.Reset(d.cfg.Window)
	}
	d.mu.Unlock()
}

// flush emits the buffered records now.
func (d *debouncer) flush() {
	d.mu.Lock()
	recs := d.take()
	d.mu.Unlock()
	if len(recs) > 0 {
		d.flushFn(compress(recs))
	}
}

// stop discards buffered records and ignores later ones.
func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.take()
}

// take empties the buffer. Caller holds d.mu.
func (d *debouncer) take() []mutation.Record {
	recs := d.records
	d.records = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	return recs
}

// compress folds runs of updates that only the last one matters for:
// consecutive attribute records on the same (target, name) and
// consecutive character data records on the same target keep the last
// value and the first old value. childList records are never folded.
func compress(records []mutation.Record) []mutation.Record {
	if len(records) <= 1 {
		return records
	}

	result := make([]mutation.Record, 0, len(records))
	for i := 0; i < len(records); i++ {
		rec := records[i]
		if rec.Op == mutation.OpChildList {
			result = append(result, rec)
			continue
		}

		firstOld := rec.OldValue
		j := i + 1
		for j < len(records) &&
			records[j].Op == rec.Op &&
			records[j].Target == rec.Target &&
			(rec.Op != mutation.OpAttributes || records[j].Name == rec.Name) {
			rec = records[j]
			j++
		}
		rec.OldValue = firstOld
		result = append(result, rec)
		i = j - 1
	}
	return result
}
