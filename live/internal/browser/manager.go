// Package browser manages the Chrome instance branded pages live in:
// launch or remote connect via rod, headful mode under Xvfb, periodic
// recycling on a time or JS heap threshold.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
)

// ErrClosed is returned by a closed Manager.
var ErrClosed = errors.New("browser: manager is closed")

// Mode selects how Chrome is launched.
type Mode int

const (
	Headless Mode = iota // default
	Headful              // under Xvfb
)

// ParseMode maps "headless" and "headful" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "headless":
		return Headless, nil
	case "headful":
		return Headful, nil
	}
	return Headless, fmt.Errorf("browser: unknown mode %q", s)
}

// Reason says why Chrome was recycled.
type Reason string

const (
	ReasonInterval Reason = "interval"
	ReasonMemory   Reason = "memory"
	ReasonManual   Reason = "manual"
)

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty launches a local Chrome.
	RemoteURL string

	Mode Mode

	// Stealth opens tabs through go-rod/stealth.
	Stealth bool

	// MemoryLimit is the JS heap, summed over all tabs, above which
	// Chrome is recycled. Default: 1GB.
	MemoryLimit int64

	// RecycleInterval is the maximum lifetime of a Chrome process.
	// Default: 4h.
	RecycleInterval time.Duration

	// CheckInterval is the period of the recycle checks. Default: 30s.
	CheckInterval time.Duration

	// Block lists resource types whose requests are failed: images,
	// fonts, media, stylesheets, or any CDP resource type name.
	Block []string

	// XvfbDisplay for headful mode. Default: ":99".
	XvfbDisplay string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = 1 << 30
	}
	if c.RecycleInterval <= 0 {
		c.RecycleInterval = 4 * time.Hour
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 30 * time.Second
	}
	if c.XvfbDisplay == "" {
		c.XvfbDisplay = ":99"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// RecycleCallback is called around a Chrome recycle so tabs can be
// closed and reopened.
type RecycleCallback struct {
	BeforeRecycle func(Reason)
	AfterRecycle  func(b *rod.Browser)
}

// Manager owns one Chrome generation at a time.
type Manager struct {
	cfg     Config
	blocked blocklist

	mu     sync.RWMutex
	cur    *chrome
	gen    int
	closed bool
	cb     *RecycleCallback
}

// NewManager creates a Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg, blocked: newBlocklist(cfg.Block)}
}

// Config returns the effective configuration.
func (m *Manager) Config() Config { return m.cfg }

// SetRecycleCallback sets the callback for recycle events.
func (m *Manager) SetRecycleCallback(cb *RecycleCallback) {
	m.mu.Lock()
	m.cb = cb
	m.mu.Unlock()
}

// Start launches Chrome (or connects to a remote instance) and starts the
// recycle monitor, which runs until ctx is done.
func (m *Manager) Start(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if m.cur != nil {
		return m.cur.browser, nil
	}

	c, err := m.spawn()
	if err != nil {
		return nil, err
	}
	m.cur = c
	go m.monitor(ctx)
	return c.browser, nil
}

// Browser returns the current rod browser handle, nil before Start.
func (m *Manager) Browser() *rod.Browser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cur == nil {
		return nil
	}
	return m.cur.browser
}

// Generation counts the Chrome processes started so far.
func (m *Manager) Generation() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gen
}

// Recycle replaces Chrome with a fresh process, calling the recycle
// callbacks around the swap.
func (m *Manager) Recycle(reason Reason) error {
	m.mu.RLock()
	closed, cb, old := m.closed, m.cb, m.cur
	m.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	log := m.cfg.Logger.With("reason", reason)
	if old != nil {
		log = log.With("generation", old.gen, "uptime", time.Since(old.started))
	}
	log.Info("browser: recycling")
	if cb != nil && cb.BeforeRecycle != nil {
		cb.BeforeRecycle(reason)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.cur != nil {
		m.cur.shutdown(m.cfg.Logger)
		m.cur = nil
	}
	c, err := m.spawn()
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("browser: relaunch: %w", err)
	}
	m.cur = c
	m.mu.Unlock()

	if cb != nil && cb.AfterRecycle != nil {
		cb.AfterRecycle(c.browser)
	}
	m.cfg.Logger.Info("browser: recycled", "generation", c.gen)
	return nil
}

// Close shuts down Chrome and Xvfb. A remote Chrome is disconnected, not
// killed.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.cur != nil {
		m.cur.shutdown(m.cfg.Logger)
		m.cur = nil
	}
	return nil
}

// monitor recycles Chrome when it is too old or its tabs use too much
// heap. It stops with ctx or the manager.
func (m *Manager) monitor(ctx context.Context) {
	log := m.cfg.Logger
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m.mu.RLock()
		closed, c := m.closed, m.cur
		m.mu.RUnlock()
		if closed {
			return
		}
		if c == nil {
			continue
		}

		reason := Reason("")
		if time.Since(c.started) > m.cfg.RecycleInterval {
			reason = ReasonInterval
		} else if used, err := heapUsage(c.browser); err != nil {
			log.Debug("browser: heap check failed", "error", err)
		} else if used > m.cfg.MemoryLimit {
			log.Info("browser: memory limit exceeded", "used", used, "limit", m.cfg.MemoryLimit)
			reason = ReasonMemory
		}
		if reason == "" {
			continue
		}
		if err := m.Recycle(reason); err != nil {
			log.Error("browser: recycle failed", "reason", reason, "error", err)
		}
	}
}

// heapUsage sums performance.memory.usedJSHeapSize over every open tab.
func heapUsage(b *rod.Browser) (int64, error) {
	pages, err := b.Pages()
	if err != nil {
		return 0, fmt.Errorf("browser: list pages: %w", err)
	}
	if len(pages) == 0 {
		return 0, errors.New("browser: no pages for heap check")
	}
	var total int64
	for _, p := range pages {
		res, err := p.Eval(`() => performance.memory ? performance.memory.usedJSHeapSize : 0`)
		if err != nil {
			continue
		}
		total += int64(res.Value.Int())
	}
	return total, nil
}
