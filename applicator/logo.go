package applicator

import (
	"strings"

	"github.com/aymerick/douceur/parser"

	"github.com/hazyhaar/canary/dom"
)

// darkInvertClass inverts an image on dark themes; the replacement logo
// is already styled for both.
const darkInvertClass = "dark:invert"

// Logos brands every image matched by the brand's logo selectors that is
// not yet marked processed. Returns the number of images branded.
func (a *Applicator) Logos(doc dom.Document) int {
	n := 0
	for _, img := range doc.Select(a.brand.LogoSelector()) {
		if a.brandLogo(img) {
			n++
		}
	}
	return n
}

// brandLogo swaps one image. The original src is recorded only once, so
// it survives any number of cycles; an image already marked is left
// untouched even though its new src may match a selector again.
func (a *Applicator) brandLogo(img dom.Node) bool {
	if v, _ := img.Attr(AttrApplied); v == "true" {
		return false
	}

	if orig, ok := img.Attr(AttrOriginalSrc); !ok || orig == "" {
		src, _ := img.Attr("src")
		a.setAttr(img, AttrOriginalSrc, src)
	}
	a.setAttr(img, AttrApplied, "true")
	a.removeAttr(img, "srcset")
	a.setAttr(img, "src", a.brand.LogoPath())
	a.setAttr(img, AttrLogo, "true")

	alt, _ := img.Attr("alt")
	if alt == "" || a.brand.GenericAlt(alt) || a.brand.Contains(alt) {
		a.setAttr(img, "alt", a.brand.Target())
	}

	if class, ok := img.Attr("class"); ok {
		if stripped, changed := removeToken(class, darkInvertClass); changed {
			a.setAttr(img, "class", stripped)
		}
	}
	if style, ok := img.Attr("style"); ok {
		if stripped, changed := removeDeclaration(style, "filter"); changed {
			if stripped == "" {
				a.removeAttr(img, "style")
			} else {
				a.setAttr(img, "style", stripped)
			}
		}
	}
	return true
}

// removeToken drops every occurrence of token from a class list.
func removeToken(list, token string) (string, bool) {
	fields := strings.Fields(list)
	kept := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != token {
			kept = append(kept, f)
		}
	}
	if len(kept) == len(fields) {
		return list, false
	}
	return strings.Join(kept, " "), true
}

// removeDeclaration drops the declarations of property from an inline
// style. Property names compare case-insensitively. A style that does not
// parse, or has no such declaration, is returned unchanged.
func removeDeclaration(style, property string) (string, bool) {
	// The parser drops the value of a last declaration left open.
	text := strings.TrimSpace(style)
	if !strings.HasSuffix(text, ";") {
		text += ";"
	}
	decls, err := parser.ParseDeclarations(text)
	if err != nil {
		return style, false
	}
	kept := make([]string, 0, len(decls))
	for _, d := range decls {
		if strings.EqualFold(d.Property, property) {
			continue
		}
		kept = append(kept, d.String())
	}
	if len(kept) == len(decls) {
		return style, false
	}
	return strings.Join(kept, " "), true
}
