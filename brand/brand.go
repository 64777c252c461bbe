// Package brand holds the immutable brand configuration: which string is
// replaced by which, where the replacement logo lives, and which parts of
// the DOM are eligible for substitution.
//
// A Brand is built once (New or Default) and never changes afterwards.
// Every accessor returns copies, so callers cannot alter a Brand that is
// shared between an applicator and a watcher.
package brand

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	// ErrEmptySource is returned when the source brand string is empty.
	ErrEmptySource = errors.New("brand: empty source string")
	// ErrTargetContainsSource is returned when the target embeds the source;
	// such a pair would grow the text on every re-apply.
	ErrTargetContainsSource = errors.New("brand: target contains source")
	// ErrNoLogoPath is returned when the logo path is empty.
	ErrNoLogoPath = errors.New("brand: empty logo path")
)

// Config is the serialisable form of a Brand. Zero fields take the
// defaults of Default.
type Config struct {
	Source        string   `yaml:"source"`
	Target        string   `yaml:"target"`
	LogoPath      string   `yaml:"logo_path"`
	ExemptTags    []string `yaml:"exempt_tags"`
	Attributes    []string `yaml:"attributes"`
	LogoSelectors []string `yaml:"logo_selectors"`
	MetaSelectors []string `yaml:"meta_selectors"`
	GenericAlts   []string `yaml:"generic_alts"`
}

// DefaultConfig returns the built-in Open WebUI → Canary Builds configuration.
func DefaultConfig() Config {
	return Config{
		Source:     "Open WebUI",
		Target:     "Canary Builds",
		LogoPath:   "/canary-logo.png",
		ExemptTags: []string{"SCRIPT", "STYLE", "NOSCRIPT", "TEXTAREA", "CODE"},
		Attributes: []string{
			"title",
			"aria-label",
			"aria-description",
			"aria-labelledby",
			"alt",
			"placeholder",
			"content",
			"data-title",
			"data-tooltip",
		},
		LogoSelectors: []string{
			`img#logo`,
			`img#logo-her`,
			`img[alt="logo"]`,
			`img[src$="splash.png"]`,
			`img[src$="splash-dark.png"]`,
			`img[src$="favicon.png"]`,
			`img[src$="favicon-dark.png"]`,
			`img[src$="logo.png"]`,
		},
		MetaSelectors: []string{
			`meta[name="application-name"]`,
			`meta[name="apple-mobile-web-app-title"]`,
			`meta[property="og:title"]`,
			`meta[property="og:site_name"]`,
			`meta[name="description"]`,
		},
		GenericAlts: []string{"logo"},
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Source == "" {
		c.Source = def.Source
	}
	if c.Target == "" {
		c.Target = def.Target
	}
	if c.LogoPath == "" {
		c.LogoPath = def.LogoPath
	}
	if len(c.ExemptTags) == 0 {
		c.ExemptTags = def.ExemptTags
	}
	if len(c.Attributes) == 0 {
		c.Attributes = def.Attributes
	}
	if len(c.LogoSelectors) == 0 {
		c.LogoSelectors = def.LogoSelectors
	}
	if len(c.MetaSelectors) == 0 {
		c.MetaSelectors = def.MetaSelectors
	}
	if c.GenericAlts == nil {
		c.GenericAlts = def.GenericAlts
	}
}

// Brand is a validated, immutable brand configuration.
type Brand struct {
	source   string
	target   string
	logoPath string
	exempt   map[string]struct{}
	attrs    []string
	logoSel  []string
	metaSel  []string
	generic  []string
}

// New validates cfg, fills zero fields with defaults and returns a Brand.
func New(cfg Config) (*Brand, error) {
	cfg.applyDefaults()

	if cfg.Source == "" {
		return nil, ErrEmptySource
	}
	if strings.Contains(cfg.Target, cfg.Source) {
		return nil, fmt.Errorf("%w: %q in %q", ErrTargetContainsSource, cfg.Source, cfg.Target)
	}
	if cfg.LogoPath == "" {
		return nil, ErrNoLogoPath
	}

	b := &Brand{
		source:   cfg.Source,
		target:   cfg.Target,
		logoPath: cfg.LogoPath,
		exempt:   make(map[string]struct{}, len(cfg.ExemptTags)),
		attrs:    normalise(cfg.Attributes, strings.ToLower),
		logoSel:  slices.Clone(cfg.LogoSelectors),
		metaSel:  slices.Clone(cfg.MetaSelectors),
		generic:  slices.Clone(cfg.GenericAlts),
	}
	for _, tag := range cfg.ExemptTags {
		b.exempt[strings.ToUpper(strings.TrimSpace(tag))] = struct{}{}
	}
	return b, nil
}

// Default returns the built-in brand. It cannot fail.
func Default() *Brand {
	b, err := New(DefaultConfig())
	if err != nil {
		panic(err)
	}
	return b
}

// Source is the string being replaced.
func (b *Brand) Source() string { return b.source }

// Target is the replacement string.
func (b *Brand) Target() string { return b.target }

// LogoPath is the path written to the src of every matched logo.
func (b *Brand) LogoPath() string { return b.logoPath }

// Attributes returns the tracked attribute names, lower-case.
func (b *Brand) Attributes() []string { return slices.Clone(b.attrs) }

// Exempt reports whether text directly inside tag is left alone. The
// comparison is case-insensitive; DOM node names are upper-case.
func (b *Brand) Exempt(tag string) bool {
	_, ok := b.exempt[strings.ToUpper(tag)]
	return ok
}

// LogoSelector is the logo selector list joined into one selector group.
func (b *Brand) LogoSelector() string { return strings.Join(b.logoSel, ", ") }

// MetaSelector is the metadata selector list joined into one selector group.
func (b *Brand) MetaSelector() string { return strings.Join(b.metaSel, ", ") }

// GenericAlt reports whether alt is placeholder text that should be
// replaced by the target brand.
func (b *Brand) GenericAlt(alt string) bool {
	return slices.Contains(b.generic, alt)
}

// Contains reports whether s holds the source string.
func (b *Brand) Contains(s string) bool {
	return strings.Contains(s, b.source)
}

// Replace substitutes every occurrence of the source in s. Matching is a
// literal, case-sensitive substring match with no word boundaries. The
// boolean is false when s held no occurrence, in which case s is
// returned unchanged.
func (b *Brand) Replace(s string) (string, bool) {
	if !strings.Contains(s, b.source) {
		return s, false
	}
	return strings.ReplaceAll(s, b.source, b.target), true
}

// Config returns the serialisable form of b.
func (b *Brand) Config() Config {
	tags := make([]string, 0, len(b.exempt))
	for t := range b.exempt {
		tags = append(tags, t)
	}
	slices.Sort(tags)
	return Config{
		Source:        b.source,
		Target:        b.target,
		LogoPath:      b.logoPath,
		ExemptTags:    tags,
		Attributes:    slices.Clone(b.attrs),
		LogoSelectors: slices.Clone(b.logoSel),
		MetaSelectors: slices.Clone(b.metaSel),
		GenericAlts:   slices.Clone(b.generic),
	}
}

func normalise(in []string, fn func(string) string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = fn(strings.TrimSpace(s))
		if s == "" || slices.Contains(out, s) {
			continue
		}
		out = append(out, s)
	}
	return out
}
