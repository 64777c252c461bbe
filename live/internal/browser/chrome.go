package browser

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// chrome is one Chrome generation: the rod connection and whatever was
// started locally to host it.
type chrome struct {
	browser *rod.Browser
	lnch    *launcher.Launcher // nil for a remote Chrome
	display *display           // nil unless headful and local
	started time.Time
	gen     int
}

// spawn starts the next generation. Caller holds m.mu.
func (m *Manager) spawn() (*chrome, error) {
	log := m.cfg.Logger
	c := &chrome{gen: m.gen + 1}

	controlURL := m.cfg.RemoteURL
	if controlURL != "" {
		log.Info("browser: connecting to remote", "url", controlURL)
	} else {
		l := launcher.New().
			Headless(m.cfg.Mode == Headless).
			Set("disable-blink-features", "AutomationControlled")
		if m.cfg.Mode == Headful {
			d, err := startDisplay(m.cfg.XvfbDisplay, log)
			if err != nil {
				return nil, fmt.Errorf("browser: xvfb: %w", err)
			}
			c.display = d
			l = l.Env("DISPLAY=" + d.name)
		}
		u, err := l.Launch()
		if err != nil {
			c.shutdown(log)
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		c.lnch = l
		controlURL = u
		log.Info("browser: launched local chrome", "url", u, "headful", m.cfg.Mode == Headful)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		c.shutdown(log)
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	c.browser = b
	c.started = time.Now()
	m.gen = c.gen
	return c, nil
}

// shutdown releases the generation. A remote Chrome is only disconnected.
func (c *chrome) shutdown(log *slog.Logger) {
	if c.browser != nil {
		if c.lnch != nil {
			c.browser.Close()
		}
		c.browser = nil
	}
	if c.lnch != nil {
		c.lnch.Cleanup()
		c.lnch = nil
	}
	if c.display != nil {
		c.display.stop(log)
		c.display = nil
	}
}

// display is an Xvfb virtual screen for headful Chrome.
type display struct {
	name string
	cmd  *exec.Cmd
}

// startDisplay launches Xvfb on name (":99") and waits up to two seconds
// for its socket to appear.
func startDisplay(name string, log *slog.Logger) (*display, error) {
	cmd := exec.Command("Xvfb", name, "-screen", "0", "1920x1080x24", "-ac")
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start xvfb: %w", err)
	}
	d := &display{name: name, cmd: cmd}

	sock, err := socketPath(name)
	if err != nil {
		d.stop(log)
		return nil, err
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(sock); err == nil {
			break
		}
		if time.Now().After(deadline) {
			log.Warn("browser: xvfb socket not ready, continuing", "display", name)
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	log.Info("browser: xvfb started", "display", name, "pid", cmd.Process.Pid)
	return d, nil
}

func (d *display) stop(log *slog.Logger) {
	if d.cmd.Process != nil {
		d.cmd.Process.Kill()
		d.cmd.Wait()
	}
	log.Info("browser: xvfb stopped", "display", d.name)
}

// socketPath maps ":99" (or ":99.0") to the X11 socket of that display.
func socketPath(name string) (string, error) {
	n, ok := strings.CutPrefix(name, ":")
	if !ok || n == "" {
		return "", errors.New("browser: display must look like :N")
	}
	n, _, _ = strings.Cut(n, ".")
	for _, r := range n {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("browser: bad display %q", name)
		}
	}
	return "/tmp/.X11-unix/X" + n, nil
}
