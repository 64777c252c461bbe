package config

import (
	"context"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/canary/internal/dbopen"
)

func TestRegistry_PutLoadStatus(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	ctx := context.Background()

	if err := PutPage(ctx, db, PageConfig{ID: "b", URL: "http://b/"}); err != nil {
		t.Fatal(err)
	}
	if err := PutPage(ctx, db, PageConfig{URL: "http://a.local/chat"}); err != nil {
		t.Fatal(err)
	}
	if err := PutPage(ctx, db, PageConfig{ID: "x"}); err == nil {
		t.Error("expected error for page without url")
	}

	pages, err := LoadPages(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 2 || pages[0].ID != "a.local-chat" || pages[1].ID != "b" {
		t.Fatalf("pages: %+v", pages)
	}

	if err := SetStatus(ctx, db, "b", "paused"); err != nil {
		t.Fatal(err)
	}
	pages, _ = LoadPages(ctx, db)
	if len(pages) != 1 {
		t.Errorf("paused page still loaded: %+v", pages)
	}
	if err := SetStatus(ctx, db, "nope", "paused"); err == nil {
		t.Error("expected error for unknown page")
	}
	if err := SetStatus(ctx, db, "b", "deleted"); err == nil {
		t.Error("expected CHECK failure for unknown status")
	}
}

func TestRegistry_Version(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	ctx := context.Background()

	v0, err := Version(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	PutPage(ctx, db, PageConfig{ID: "a", URL: "http://a/"})
	v1, _ := Version(ctx, db)
	if v1 == v0 {
		t.Error("version unchanged after insert")
	}
	db.Exec(`DELETE FROM brand_pages`)
	v2, _ := Version(ctx, db)
	if v2 == v1 {
		t.Error("version unchanged after delete")
	}
}

func TestRegistry_VersionDeleteAndUpdate(t *testing.T) {
	// WHAT: deleting one page and rewriting another within the same
	// millisecond still moves the version.
	// WHY: a max-timestamp-plus-count token stays put when the row count
	// drops by one and the newest timestamp rises by one.
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	ctx := context.Background()

	for _, stmt := range []string{
		`INSERT INTO brand_pages (id, url, updated_at) VALUES ('a', 'http://a/', 1000)`,
		`INSERT INTO brand_pages (id, url, updated_at) VALUES ('b', 'http://b/', 1000)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatal(err)
		}
	}
	before, err := Version(ctx, db)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := db.Exec(`DELETE FROM brand_pages WHERE id = 'a'`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`UPDATE brand_pages SET url = 'http://b2/', updated_at = 1001 WHERE id = 'b'`); err != nil {
		t.Fatal(err)
	}
	after, _ := Version(ctx, db)
	if after == before {
		t.Fatalf("version unchanged: %d", after)
	}
	if after != before+2 {
		t.Errorf("version: got %d, want %d", after, before+2)
	}
}

func TestRegistry_SchemaIdempotent(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema), dbopen.WithSchema(Schema))
	PutPage(context.Background(), db, PageConfig{ID: "a", URL: "http://a/"})
	v, err := Version(context.Background(), db)
	if err != nil {
		t.Fatal(err)
	}
	if v != 1 {
		t.Errorf("version after one insert: got %d, want 1", v)
	}
}

func TestWatchPages(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var loads [][]PageConfig
	done := make(chan struct{})
	go func() {
		defer close(done)
		WatchPages(ctx, db, 10*time.Millisecond, nil, func(p []PageConfig) error {
			mu.Lock()
			defer mu.Unlock()
			loads = append(loads, p)
			return nil
		})
	}()

	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(loads)
	}
	waitFor(t, func() bool { return count() == 1 })

	PutPage(context.Background(), db, PageConfig{ID: "a", URL: "http://a/"})
	waitFor(t, func() bool { return count() == 2 })

	// No change, no reload.
	time.Sleep(50 * time.Millisecond)
	if count() != 2 {
		t.Errorf("reloads: got %d, want 2", count())
	}

	mu.Lock()
	if len(loads[0]) != 0 || len(loads[1]) != 1 {
		t.Errorf("loads: %+v", loads)
	}
	mu.Unlock()

	cancel()
	<-done
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
