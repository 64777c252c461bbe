package browser

import (
	"errors"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

func TestBlocklist(t *testing.T) {
	b := newBlocklist([]string{"fonts", " Media ", "Ping", "documents", "document"})
	tests := []struct {
		typ  proto.NetworkResourceType
		want bool
	}{
		{proto.NetworkResourceTypeFont, true},
		{proto.NetworkResourceTypeMedia, true},
		{proto.NetworkResourceTypePing, true},
		{proto.NetworkResourceTypeImage, false},
		{proto.NetworkResourceTypeStylesheet, false},
		{proto.NetworkResourceTypeScript, false},
		// WHY: blocking the document would leave nothing to brand.
		{proto.NetworkResourceTypeDocument, false},
	}
	for _, tt := range tests {
		if got := b.blocks(tt.typ); got != tt.want {
			t.Errorf("blocks(%s) = %v, want %v", tt.typ, got, tt.want)
		}
	}
	if newBlocklist(nil).blocks(proto.NetworkResourceTypeImage) {
		t.Error("empty blocklist blocks")
	}
}

func TestSocketPath(t *testing.T) {
	tests := []struct {
		name, want string
		ok         bool
	}{
		{":99", "/tmp/.X11-unix/X99", true},
		{":1.0", "/tmp/.X11-unix/X1", true},
		{"99", "", false},
		{":", "", false},
		{":x1", "", false},
	}
	for _, tt := range tests {
		got, err := socketPath(tt.name)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("socketPath(%q) = %q, %v", tt.name, got, err)
		}
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode(""); err != nil || m != Headless {
		t.Errorf("empty: %v %v", m, err)
	}
	if m, err := ParseMode("headful"); err != nil || m != Headful {
		t.Errorf("headful: %v %v", m, err)
	}
	if _, err := ParseMode("xvfb"); err == nil {
		t.Error("expected error")
	}
}

func TestManager_Defaults(t *testing.T) {
	m := NewManager(Config{})
	cfg := m.Config()
	if cfg.MemoryLimit != 1<<30 || cfg.RecycleInterval != 4*time.Hour ||
		cfg.CheckInterval != 30*time.Second || cfg.XvfbDisplay != ":99" || cfg.Logger == nil {
		t.Errorf("defaults: %+v", cfg)
	}
	if m.Browser() != nil || m.Generation() != 0 {
		t.Error("browser before Start")
	}
}

func TestManager_Closed(t *testing.T) {
	m := NewManager(Config{})
	m.Close()
	if _, err := m.Start(t.Context()); !errors.Is(err, ErrClosed) {
		t.Errorf("Start after Close: got %v", err)
	}
	if err := m.Recycle(ReasonManual); !errors.Is(err, ErrClosed) {
		t.Errorf("Recycle after Close: got %v", err)
	}
	if _, err := OpenTab(t.Context(), m, "http://example.com"); err == nil {
		t.Error("OpenTab without browser")
	}
}
