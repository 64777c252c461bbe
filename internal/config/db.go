package config

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/canary/internal/dbopen"
)

// Schema for the brand_pages registry. brand_pages_version holds one row
// whose counter every insert, update and delete bumps.
const Schema = `
CREATE TABLE IF NOT EXISTS brand_pages (
	id          TEXT PRIMARY KEY,
	url         TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'active' CHECK(status IN ('active','paused')),
	updated_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS brand_pages_version (
	id      INTEGER PRIMARY KEY CHECK(id = 1),
	version INTEGER NOT NULL
);
INSERT OR IGNORE INTO brand_pages_version (id, version) VALUES (1, 0);

CREATE TRIGGER IF NOT EXISTS trg_brand_pages_insert
AFTER INSERT ON brand_pages
FOR EACH ROW
BEGIN
	UPDATE brand_pages_version SET version = version + 1 WHERE id = 1;
END;

CREATE TRIGGER IF NOT EXISTS trg_brand_pages_update
AFTER UPDATE ON brand_pages
FOR EACH ROW
BEGIN
	UPDATE brand_pages_version SET version = version + 1 WHERE id = 1;
END;

CREATE TRIGGER IF NOT EXISTS trg_brand_pages_delete
AFTER DELETE ON brand_pages
FOR EACH ROW
BEGIN
	UPDATE brand_pages_version SET version = version + 1 WHERE id = 1;
END;
`

// LoadPages reads the active pages of the registry, ordered by ID.
func LoadPages(ctx context.Context, db *sql.DB) ([]PageConfig, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, url FROM brand_pages
		WHERE status = 'active'
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("config: load pages: %w", err)
	}
	defer rows.Close()

	var pages []PageConfig
	for rows.Next() {
		var p PageConfig
		if err := rows.Scan(&p.ID, &p.URL); err != nil {
			return nil, fmt.Errorf("config: scan page: %w", err)
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// PutPage inserts or updates an active page.
func PutPage(ctx context.Context, db *sql.DB, p PageConfig) error {
	if p.URL == "" {
		return ErrNoURL
	}
	if p.ID == "" {
		p.ID = PageID(p.URL)
	}
	_, err := dbopen.Exec(ctx, db, `
		INSERT INTO brand_pages (id, url, status, updated_at) VALUES (?, ?, 'active', ?)
		ON CONFLICT(id) DO UPDATE SET url = excluded.url, status = 'active', updated_at = excluded.updated_at
	`, p.ID, p.URL, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("config: put page %s: %w", p.ID, err)
	}
	return nil
}

// SetStatus pauses or reactivates a page.
func SetStatus(ctx context.Context, db *sql.DB, id, status string) error {
	res, err := dbopen.Exec(ctx, db,
		`UPDATE brand_pages SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("config: set status %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("config: set status: no page %q", id)
	}
	return nil
}

// Version is the registry's change counter. It grows on every write to
// brand_pages, including writes made outside this package.
func Version(ctx context.Context, db *sql.DB) (int64, error) {
	var v int64
	err := db.QueryRowContext(ctx,
		`SELECT version FROM brand_pages_version WHERE id = 1`).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("config: registry version: %w", err)
	}
	return v, nil
}

// WatchPages polls the registry every interval and calls reload with the
// active pages whenever the version changes, starting with the current
// list. A failed reload is retried on the next poll. It blocks until ctx
// is done.
func WatchPages(ctx context.Context, db *sql.DB, interval time.Duration, logger *slog.Logger, reload func([]PageConfig) error) {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Second
	}

	last := int64(-1)
	check := func() {
		v, err := Version(ctx, db)
		if err != nil {
			logger.Warn("config: registry version check failed", "error", err)
			return
		}
		if v == last {
			return
		}
		pages, err := LoadPages(ctx, db)
		if err != nil {
			logger.Warn("config: registry load failed", "error", err)
			return
		}
		start := time.Now()
		if err := reload(pages); err != nil {
			logger.Error("config: registry reload failed", "error", err, "version", v)
			return
		}
		logger.Info("config: registry reloaded",
			"old_version", last, "version", v, "pages", len(pages), "duration", time.Since(start))
		last = v
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}
