package brand

import (
	"errors"
	"slices"
	"testing"
)

func TestDefault(t *testing.T) {
	b := Default()
	if b.Source() != "Open WebUI" {
		t.Errorf("Source: got %q", b.Source())
	}
	if b.Target() != "Canary Builds" {
		t.Errorf("Target: got %q", b.Target())
	}
	if b.LogoPath() != "/canary-logo.png" {
		t.Errorf("LogoPath: got %q", b.LogoPath())
	}
	if len(b.Attributes()) != 9 {
		t.Errorf("Attributes: got %d, want 9", len(b.Attributes()))
	}
}

func TestReplace(t *testing.T) {
	b := Default()
	tests := []struct {
		in      string
		want    string
		changed bool
	}{
		{"Welcome to Open WebUI", "Welcome to Canary Builds", true},
		{"Open WebUI - Open WebUI", "Canary Builds - Canary Builds", true},
		{"MyOpen WebUIApp", "MyCanary BuildsApp", true}, // no word boundaries
		{"open webui", "open webui", false},             // case-sensitive
		{"Open.WebUI", "Open.WebUI", false},             // literal, not a pattern
		{"", "", false},
	}
	for _, tt := range tests {
		got, changed := b.Replace(tt.in)
		if got != tt.want || changed != tt.changed {
			t.Errorf("Replace(%q) = (%q, %v), want (%q, %v)", tt.in, got, changed, tt.want, tt.changed)
		}
	}
}

func TestReplace_Idempotent(t *testing.T) {
	b := Default()
	once, _ := b.Replace("Open WebUI rocks")
	twice, changed := b.Replace(once)
	if changed || twice != once {
		t.Fatalf("second Replace changed %q to %q", once, twice)
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Source: "Acme", Target: "Acme Pro"})
	if !errors.Is(err, ErrTargetContainsSource) {
		t.Fatalf("target containing source: got %v", err)
	}

	_, err = New(Config{Source: "Acme", Target: "Acme"})
	if !errors.Is(err, ErrTargetContainsSource) {
		t.Fatalf("identical brands: got %v", err)
	}
}

func TestNew_Defaults(t *testing.T) {
	b, err := New(Config{Source: "Acme", Target: "Globex"})
	if err != nil {
		t.Fatal(err)
	}
	if b.LogoPath() != "/canary-logo.png" {
		t.Errorf("LogoPath default: got %q", b.LogoPath())
	}
	if !b.Exempt("script") || !b.Exempt("CODE") {
		t.Error("default exempt tags missing")
	}
	if b.Exempt("DIV") {
		t.Error("DIV must not be exempt")
	}
}

func TestAttributes(t *testing.T) {
	attrs := Default().Attributes()
	for _, name := range []string{"title", "aria-label", "data-tooltip", "content"} {
		if !slices.Contains(attrs, name) {
			t.Errorf("%q not tracked", name)
		}
	}
	for _, name := range []string{"href", "class", "data-id", "src"} {
		if slices.Contains(attrs, name) {
			t.Errorf("%q tracked", name)
		}
	}
}

func TestAttributes_Copy(t *testing.T) {
	b := Default()
	attrs := b.Attributes()
	attrs[0] = "href"
	if slices.Contains(b.Attributes(), "href") {
		t.Fatal("mutating the returned slice changed the brand")
	}
}

func TestGenericAlt(t *testing.T) {
	b := Default()
	if !b.GenericAlt("logo") {
		t.Error(`GenericAlt("logo") = false`)
	}
	if b.GenericAlt("Company mark") {
		t.Error(`GenericAlt("Company mark") = true`)
	}
}

func TestConfig_Roundtrip(t *testing.T) {
	b := Default()
	again, err := New(b.Config())
	if err != nil {
		t.Fatal(err)
	}
	if again.LogoSelector() != b.LogoSelector() || again.MetaSelector() != b.MetaSelector() {
		t.Error("selectors changed through Config()")
	}
}
