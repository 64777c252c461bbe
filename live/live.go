// Package live keeps pages of a running web application branded inside a
// real Chrome: one session per page, each with its own tab, CDP-backed
// document, page context and watcher.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/canary/applicator"
	"github.com/hazyhaar/canary/brand"
	"github.com/hazyhaar/canary/dom/cdpdom"
	"github.com/hazyhaar/canary/live/internal/browser"
	"github.com/hazyhaar/canary/mutation"
	"github.com/hazyhaar/canary/page"
	"github.com/hazyhaar/canary/report"
)

var (
	// ErrClosed is returned by a stopped Manager.
	ErrClosed = errors.New("live: manager closed")
	// ErrUnknownPage is returned for a page ID without a session.
	ErrUnknownPage = errors.New("live: unknown page")
	// ErrNoObserver is returned before a session's watcher has attached.
	ErrNoObserver = errors.New("live: observer not attached")
)

// Page identifies a page to keep branded.
type Page struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// BrowserConfig configures Chrome: launch or remote, stealth, memory
// limit, recycling and resource blocking.
type BrowserConfig = browser.Config

// BrowserMode selects headless or headful Chrome.
type BrowserMode = browser.Mode

const (
	Headless = browser.Headless
	Headful  = browser.Headful
)

// ParseBrowserMode maps "headless" and "headful" to a BrowserMode.
func ParseBrowserMode(s string) (BrowserMode, error) { return browser.ParseMode(s) }

// Config configures a Manager.
type Config struct {
	Browser  BrowserConfig
	Brand    *brand.Brand // nil means brand.Default()
	Debounce cdpdom.DebounceConfig
	Sink     report.Sink // receives every cycle of every session
	Logger   *slog.Logger
}

// Manager owns the browser and the sessions.
type Manager struct {
	cfg     Config
	app     *applicator.Applicator
	browser *browser.Manager
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// New creates a Manager. Call Start before opening pages.
func New(cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Brand == nil {
		cfg.Brand = brand.Default()
	}
	if cfg.Browser.Logger == nil {
		cfg.Browser.Logger = cfg.Logger
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:      cfg,
		app:      applicator.New(cfg.Brand, applicator.WithLogger(cfg.Logger)),
		browser:  browser.NewManager(cfg.Browser),
		logger:   cfg.Logger,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
}

// Start launches or connects to Chrome. Sessions survive a browser
// recycle: they are closed before it and reopened after.
func (m *Manager) Start(ctx context.Context) error {
	if m.isClosed() {
		return ErrClosed
	}
	var pages []Page
	m.browser.SetRecycleCallback(&browser.RecycleCallback{
		BeforeRecycle: func(reason browser.Reason) {
			m.logger.Info("live: closing sessions for browser recycle", "reason", reason)
			pages = m.pages()
			m.closeAll()
		},
		AfterRecycle: func(*rod.Browser) {
			for _, p := range pages {
				if _, err := m.Open(m.ctx, p); err != nil {
					m.logger.Error("live: reopen after recycle", "page_id", p.ID, "error", err)
				}
			}
		},
	})
	if _, err := m.browser.Start(ctx); err != nil {
		return fmt.Errorf("live: start browser: %w", err)
	}
	return nil
}

// Open opens a tab on p.URL and installs branding on it. An existing
// session for p.ID is replaced.
func (m *Manager) Open(ctx context.Context, p Page) (*Session, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}
	if p.ID == "" || p.URL == "" {
		return nil, fmt.Errorf("live: open: page id and url required")
	}

	tab, err := browser.OpenTab(ctx, m.browser, p.URL)
	if err != nil {
		return nil, fmt.Errorf("live: open %s: %w", p.ID, err)
	}
	logger := m.logger.With("page_id", p.ID)

	doc, err := cdpdom.New(m.ctx, tab,
		cdpdom.WithLogger(logger),
		cdpdom.WithDebounce(m.cfg.Debounce))
	if err != nil {
		tab.Close()
		return nil, fmt.Errorf("live: open %s: %w", p.ID, err)
	}

	pc := page.New(p.ID, doc, page.WithLogger(m.logger), page.WithSink(m.cfg.Sink))
	s := newSession(p, pc, func() {
		doc.Close()
		tab.Close()
	})
	if err := page.Install(m.ctx, pc, m.app, doc); err != nil {
		s.Close()
		return nil, fmt.Errorf("live: open %s: %w", p.ID, err)
	}

	m.add(s)
	logger.Info("live: page opened", "url", p.URL)
	return s, nil
}

// Sync reconciles the sessions with pages: new pages are opened, pages
// whose URL changed are reopened, missing pages are closed. Failures are
// joined; the other pages are still processed.
func (m *Manager) Sync(ctx context.Context, pages []Page) error {
	want := make(map[string]Page, len(pages))
	for _, p := range pages {
		want[p.ID] = p
	}

	var errs []error
	for _, cur := range m.pages() {
		if p, ok := want[cur.ID]; !ok || p.URL != cur.URL {
			if err := m.CloseSession(cur.ID); err != nil {
				errs = append(errs, err)
			}
		}
	}
	for _, p := range pages {
		if _, ok := m.Session(p.ID); ok {
			continue
		}
		if _, err := m.Open(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Session returns the session of a page.
func (m *Manager) Session(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Sessions describes every session, ordered by page ID.
func (m *Manager) Sessions() []SessionInfo {
	m.mu.Lock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.Unlock()

	out := make([]SessionInfo, 0, len(list))
	for _, s := range list {
		out = append(out, s.Info())
	}
	slices.SortFunc(out, func(a, b SessionInfo) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Apply runs one manual cycle on a page through its entry point.
func (m *Manager) Apply(id string) (report.Cycle, error) {
	s, ok := m.Session(id)
	if !ok {
		return report.Cycle{}, ErrUnknownPage
	}
	return s.pc.Apply()
}

// Observer describes the observer handle of a page.
func (m *Manager) Observer(id string) (mutation.Info, error) {
	s, ok := m.Session(id)
	if !ok {
		return mutation.Info{}, ErrUnknownPage
	}
	sub := s.pc.Observer()
	if sub == nil {
		return mutation.Info{}, ErrNoObserver
	}
	return sub.Info(), nil
}

// Disconnect tears down the observer of a page. The page stays open and
// its entry point keeps working; it is no longer re-branded on change.
func (m *Manager) Disconnect(id string) error {
	s, ok := m.Session(id)
	if !ok {
		return ErrUnknownPage
	}
	sub := s.pc.Observer()
	if sub == nil {
		return ErrNoObserver
	}
	sub.Disconnect()
	m.logger.Info("live: observer disconnected", "page_id", id)
	return nil
}

// CloseSession closes a page's session.
func (m *Manager) CloseSession(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrUnknownPage
	}
	s.Close()
	m.logger.Info("live: page closed", "page_id", id)
	return nil
}

// Stop closes every session and the browser. Later calls return
// ErrClosed.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.closed = true
	m.mu.Unlock()

	m.closeAll()
	m.cancel()
	if err := m.browser.Close(); err != nil {
		return fmt.Errorf("live: close browser: %w", err)
	}
	return nil
}

func (m *Manager) add(s *Session) {
	m.mu.Lock()
	old := m.sessions[s.page.ID]
	m.sessions[s.page.ID] = s
	m.mu.Unlock()
	if old != nil {
		old.Close()
	}
}

func (m *Manager) pages() []Page {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Page, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.page)
	}
	return out
}

func (m *Manager) closeAll() {
	m.mu.Lock()
	list := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range list {
		s.Close()
	}
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Session is one branded page.
type Session struct {
	page    Page
	pc      *page.Context
	opened  time.Time
	release func()
	once    sync.Once
}

func newSession(p Page, pc *page.Context, release func()) *Session {
	return &Session{page: p, pc: pc, opened: time.Now(), release: release}
}

// Page returns the page the session brands.
func (s *Session) Page() Page { return s.page }

// Context returns the session's page context.
func (s *Session) Context() *page.Context { return s.pc }

// Close ends the page context and releases the tab. Safe to call more
// than once.
func (s *Session) Close() {
	s.once.Do(func() {
		s.pc.Close()
		if s.release != nil {
			s.release()
		}
	})
}

// SessionInfo describes a session for the admin API.
type SessionInfo struct {
	ID        string         `json:"id"`
	URL       string         `json:"url"`
	Opened    int64          `json:"opened"` // epoch milliseconds
	Cycles    uint64         `json:"cycles"`
	Reapplied uint64         `json:"reapplied"`
	Last      *report.Cycle  `json:"last,omitempty"`
	Observer  *mutation.Info `json:"observer,omitempty"`
}

// Info describes the session.
func (s *Session) Info() SessionInfo {
	info := SessionInfo{
		ID:     s.page.ID,
		URL:    s.page.URL,
		Opened: s.opened.UnixMilli(),
		Cycles: s.pc.Cycles(),
	}
	if info.Cycles > 0 {
		last := s.pc.Last()
		info.Last = &last
	}
	if w := s.pc.Watcher(); w != nil {
		info.Reapplied = w.Reapplied()
	}
	if sub := s.pc.Observer(); sub != nil {
		oi := sub.Info()
		info.Observer = &oi
	}
	return info
}
