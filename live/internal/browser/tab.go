package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// NavigateTimeout bounds the navigation of a new tab.
const NavigateTimeout = 30 * time.Second

// OpenTab creates a tab in the current Chrome, with stealth and resource
// blocking as configured, and navigates it to pageURL. It returns once
// the navigation is committed; DOM readiness is the caller's concern.
func OpenTab(ctx context.Context, m *Manager, pageURL string) (*rod.Page, error) {
	b := m.Browser()
	if b == nil {
		return nil, errors.New("browser: no active browser")
	}

	create := func() (*rod.Page, error) { return b.Page(proto.TargetCreateTarget{}) }
	if m.cfg.Stealth {
		create = func() (*rod.Page, error) { return stealth.Page(b) }
	}
	tab, err := create()
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	m.blocked.install(tab)

	navCtx, cancel := context.WithTimeout(ctx, NavigateTimeout)
	defer cancel()
	if err := tab.Context(navCtx).Navigate(pageURL); err != nil {
		tab.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	return tab, nil
}
