package report

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hazyhaar/canary/applicator"
	"github.com/hazyhaar/canary/internal/dbopen"
)

// Schema for the cycle history table.
const Schema = `
CREATE TABLE IF NOT EXISTS brand_cycles (
	id          TEXT PRIMARY KEY,
	page_id     TEXT NOT NULL,
	seq         INTEGER NOT NULL,
	cause       TEXT NOT NULL,
	logos       INTEGER NOT NULL DEFAULT 0,
	texts       INTEGER NOT NULL DEFAULT 0,
	attributes  INTEGER NOT NULL DEFAULT 0,
	metadata    INTEGER NOT NULL DEFAULT 0,
	duration_us INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_brand_cycles_page ON brand_cycles(page_id, created_at);
`

// Store records cycles in SQLite. Cycles that changed nothing are not
// stored unless All is set.
type Store struct {
	db  *sql.DB
	All bool
}

// NewStore creates a Store on db. The schema must already exist.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Send(ctx context.Context, c Cycle) error {
	if !s.All && c.Stats.Changed() == 0 {
		return nil
	}
	_, err := dbopen.Exec(ctx, s.db, `
		INSERT INTO brand_cycles
			(id, page_id, seq, cause, logos, texts, attributes, metadata, duration_us, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.PageID, c.Seq, string(c.Trigger),
		c.Stats.Logos, c.Stats.Texts, c.Stats.Attributes, c.Stats.Metadata,
		c.Stats.Duration.Microseconds(), c.Timestamp)
	if err != nil {
		return fmt.Errorf("report: store cycle %s: %w", c.ID, err)
	}
	return nil
}

func (s *Store) Close() error { return nil }

// History returns the latest stored cycles of a page, newest first.
func (s *Store) History(ctx context.Context, pageID string, limit int) ([]Cycle, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, page_id, seq, cause, logos, texts, attributes, metadata, duration_us, created_at
		FROM brand_cycles
		WHERE page_id = ?
		ORDER BY created_at DESC, seq DESC
		LIMIT ?
	`, pageID, limit)
	if err != nil {
		return nil, fmt.Errorf("report: history %s: %w", pageID, err)
	}
	defer rows.Close()

	var out []Cycle
	for rows.Next() {
		var c Cycle
		var trigger string
		var st applicator.Stats
		var us int64
		if err := rows.Scan(&c.ID, &c.PageID, &c.Seq, &trigger,
			&st.Logos, &st.Texts, &st.Attributes, &st.Metadata, &us, &c.Timestamp); err != nil {
			return nil, fmt.Errorf("report: scan cycle: %w", err)
		}
		c.Trigger = Trigger(trigger)
		st.Duration = time.Duration(us) * time.Microsecond
		c.Stats = st
		out = append(out, c)
	}
	return out, rows.Err()
}
