package htmldom

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/canary/dom"
	"github.com/hazyhaar/canary/mutation"
)

const page = `<!DOCTYPE html>
<html>
<head><title>Open WebUI - Settings</title></head>
<body>
<div id="app"><p class="a">one</p><p>two</p></div>
<img id="logo" src="/old-logo.png" alt="logo">
</body>
</html>`

func mustParse(t *testing.T, s string) *Document {
	t.Helper()
	d, err := ParseString(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestParse_RootAndBody(t *testing.T) {
	d := mustParse(t, page)
	if got := d.Root().Name(); got != "HTML" {
		t.Errorf("Root: got %q", got)
	}
	if got := d.Body().Name(); got != "BODY" {
		t.Errorf("Body: got %q", got)
	}
	if d.ReadyState() != dom.Complete {
		t.Errorf("ReadyState: got %q", d.ReadyState())
	}
}

func TestNew_NoBody(t *testing.T) {
	d := New()
	if d.Body() != nil {
		t.Fatal("Body of a loading document should be nil")
	}
	if d.Root() == nil {
		t.Fatal("Root should be the html element")
	}
	if err := d.AppendHTML(d.Root(), "<body><p>late</p></body>"); err != nil {
		t.Fatal(err)
	}
	if d.Body() == nil {
		t.Fatal("Body missing after AppendHTML")
	}
}

func TestSelect(t *testing.T) {
	d := mustParse(t, page)

	ps := d.Select("p")
	if len(ps) != 2 {
		t.Fatalf("Select(p): got %d", len(ps))
	}
	if v, _ := ps[0].Attr("class"); v != "a" {
		t.Errorf("document order broken: first p class=%q", v)
	}

	logos := d.Select(`img#logo, img[src$="logo.png"]`)
	if len(logos) != 1 {
		t.Errorf("selector group should match the image once, got %d", len(logos))
	}

	if got := d.Select("p[[["); got != nil {
		t.Errorf("invalid selector: got %v", got)
	}
}

func TestXPath(t *testing.T) {
	d := mustParse(t, page)
	ps := d.Select("p")
	if got := ps[1].Path(); got != "/html/body/div/p[2]" {
		t.Errorf("Path: got %q", got)
	}
	text := ps[0].Children()[0]
	if got := text.Path(); got != "/html/body/div/p[1]/text()" {
		t.Errorf("text Path: got %q", got)
	}
}

func TestAttr(t *testing.T) {
	d := mustParse(t, page)
	img := d.Select("img")[0]

	if err := img.SetAttr("Title", "x"); err != nil {
		t.Fatal(err)
	}
	if v, ok := img.Attr("title"); !ok || v != "x" {
		t.Errorf("Attr(title) = %q, %v", v, ok)
	}
	if err := img.RemoveAttr("title"); err != nil {
		t.Fatal(err)
	}
	if _, ok := img.Attr("title"); ok {
		t.Error("title still present after RemoveAttr")
	}
	if err := d.Body().Children()[0].SetAttr("x", "y"); !errors.Is(err, ErrNotElement) {
		t.Errorf("SetAttr on text node: got %v", err)
	}
}

func TestOnReady(t *testing.T) {
	d := New()
	var calls []string
	d.OnReady(func() { calls = append(calls, "a") })
	d.OnReady(func() { calls = append(calls, "b") })
	if len(calls) != 0 {
		t.Fatal("callbacks ran while loading")
	}

	d.SetReadyState(dom.Interactive)
	d.SetReadyState(dom.Complete)
	if strings.Join(calls, ",") != "a,b" {
		t.Fatalf("calls: got %v", calls)
	}

	d.OnReady(func() { calls = append(calls, "c") })
	if len(calls) != 3 {
		t.Fatal("OnReady on a loaded document must run immediately")
	}
}

func TestObserve_FiltersAndSettle(t *testing.T) {
	d := mustParse(t, page)
	sub, err := d.Observe(d.Body(), mutation.Options{
		ChildList:       true,
		Subtree:         true,
		CharacterData:   true,
		Attributes:      true,
		AttributeFilter: []string{"title"},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Disconnect()

	img := d.Select("img")[0]
	img.SetAttr("class", "x")                                  // filtered out
	img.SetAttr("title", "hello")                              // kept
	d.Select("title")[0].Children()[0].SetValue("head change") // outside body
	d.AppendHTML(d.Select("#app")[0], "<span>new</span>")

	if got := d.Pending(); got != 2 {
		t.Fatalf("Pending: got %d, want 2", got)
	}
	if n := d.Settle(); n != 1 {
		t.Fatalf("Settle: delivered %d batches, want 1", n)
	}
	if d.Pending() != 0 {
		t.Fatal("records left pending after Settle")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for b := range sub.Batches(ctx) {
		if len(b.Records) != 2 {
			t.Fatalf("batch: got %d records", len(b.Records))
		}
		if b.Records[0].Op != mutation.OpAttributes || b.Records[0].Name != "title" {
			t.Errorf("record 0: %+v", b.Records[0])
		}
		if b.Records[1].Op != mutation.OpChildList || b.Records[1].Target != "/html/body/div" {
			t.Errorf("record 1: %+v", b.Records[1])
		}
		break
	}

	info := sub.Info()
	if info.Target != "/html/body" || info.Batches != 1 || !info.Connected {
		t.Errorf("Info: %+v", info)
	}
}

func TestObserve_Disconnect(t *testing.T) {
	d := mustParse(t, page)
	sub, err := d.Observe(d.Body(), mutation.Options{ChildList: true, Subtree: true})
	if err != nil {
		t.Fatal(err)
	}
	sub.Disconnect()
	sub.Disconnect()

	d.AppendHTML(d.Body(), "<p>after</p>")
	if d.Pending() != 0 {
		t.Error("disconnected observer still collects records")
	}
	if sub.Info().Connected {
		t.Error("Info reports connected after Disconnect")
	}
}

func TestObserve_ForeignNode(t *testing.T) {
	a := mustParse(t, page)
	b := mustParse(t, page)
	if _, err := a.Observe(b.Body(), mutation.Options{ChildList: true}); !errors.Is(err, ErrForeignNode) {
		t.Fatalf("got %v, want ErrForeignNode", err)
	}
}

func TestRemove(t *testing.T) {
	d := mustParse(t, page)
	sub, _ := d.Observe(d.Body(), mutation.Options{ChildList: true, Subtree: true})
	defer sub.Disconnect()

	p := d.Select("p")[1]
	if err := d.Remove(p); err != nil {
		t.Fatal(err)
	}
	if err := d.Remove(p); err != nil {
		t.Fatal(err)
	}
	if len(d.Select("p")) != 1 {
		t.Fatal("p not removed")
	}
	if d.Pending() != 1 {
		t.Errorf("Pending: got %d, want 1", d.Pending())
	}
}
