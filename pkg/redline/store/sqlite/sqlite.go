package sqlite

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/redline/pkg/redline/store"
)

// sqliteStore implements the Store interface using SQLite
type sqliteStore struct {
	db *sql.DB
}

// Open opens a SQLite database with WAL mode enabled.
func Open(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	// Wait out writer contention instead of failing fast
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, err
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS feedback_events (
	id TEXT PRIMARY KEY,
	suggestion_id TEXT,
	action TEXT NOT NULL,
	domain TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_text TEXT,
	replacement TEXT,
	confidence REAL DEFAULT 0,
	context TEXT,
	at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_feedback_events_pair
	ON feedback_events (domain, entity_type, at);

CREATE TABLE IF NOT EXISTS domain_patterns (
	domain TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	replacement TEXT NOT NULL,
	success_rate REAL NOT NULL,
	occurrences INTEGER NOT NULL,
	last_seen TEXT,
	PRIMARY KEY(domain, entity_type, replacement)
);

CREATE TABLE IF NOT EXISTS adaptive_thresholds (
	domain TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	base REAL NOT NULL,
	current REAL NOT NULL,
	last_adjusted TEXT,
	sample_count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY(domain, entity_type)
);
`

	_, err := db.ExecContext(ctx, schema)
	return err
}

// SaveEvent inserts a feedback event. Events are immutable; a repeated
// ID replaces the old row rather than duplicating it.
func (s *sqliteStore) SaveEvent(ctx context.Context, e store.EventRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO feedback_events (id, suggestion_id, action, domain, entity_type, entity_text, replacement, confidence, context, at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	suggestion_id=excluded.suggestion_id,
	action=excluded.action,
	domain=excluded.domain,
	entity_type=excluded.entity_type,
	entity_text=excluded.entity_text,
	replacement=excluded.replacement,
	confidence=excluded.confidence,
	context=excluded.context,
	at=excluded.at;
`,
		e.ID,
		e.SuggestionID,
		e.Action,
		e.Domain,
		e.EntityType,
		e.EntityText,
		e.Replacement,
		e.Confidence,
		e.Context,
		e.At.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// RecentEvents returns up to n events for the pair, newest first.
func (s *sqliteStore) RecentEvents(ctx context.Context, domain, entityType string, n int) ([]store.EventRecord, error) {
	if n <= 0 {
		n = 50
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, suggestion_id, action, domain, entity_type, entity_text, replacement, confidence, context, at
FROM feedback_events
WHERE domain = ? AND entity_type = ?
ORDER BY at DESC, id DESC
LIMIT ?;
`, domain, entityType, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.EventRecord
	for rows.Next() {
		var e store.EventRecord
		var at string
		if err := rows.Scan(&e.ID, &e.SuggestionID, &e.Action, &e.Domain, &e.EntityType,
			&e.EntityText, &e.Replacement, &e.Confidence, &e.Context, &at); err != nil {
			return nil, err
		}
		if parsed, perr := time.Parse(time.RFC3339Nano, at); perr == nil {
			e.At = parsed
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// SavePattern inserts or updates a learned replacement pattern
func (s *sqliteStore) SavePattern(ctx context.Context, p store.PatternRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO domain_patterns (domain, entity_type, replacement, success_rate, occurrences, last_seen)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(domain, entity_type, replacement) DO UPDATE SET
	success_rate=excluded.success_rate,
	occurrences=excluded.occurrences,
	last_seen=excluded.last_seen;
`,
		p.Domain,
		p.EntityType,
		p.Replacement,
		p.SuccessRate,
		p.Occurrences,
		p.LastSeen.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// Patterns returns the patterns for a pair, best success rate first.
func (s *sqliteStore) Patterns(ctx context.Context, domain, entityType string) ([]store.PatternRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT domain, entity_type, replacement, success_rate, occurrences, last_seen
FROM domain_patterns
WHERE domain = ? AND entity_type = ?
ORDER BY success_rate DESC, replacement ASC;
`, domain, entityType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patterns []store.PatternRecord
	for rows.Next() {
		var p store.PatternRecord
		var lastSeen string
		if err := rows.Scan(&p.Domain, &p.EntityType, &p.Replacement, &p.SuccessRate, &p.Occurrences, &lastSeen); err != nil {
			return nil, err
		}
		if parsed, perr := time.Parse(time.RFC3339Nano, lastSeen); perr == nil {
			p.LastSeen = parsed
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

// SaveThreshold inserts or updates threshold state for a pair
func (s *sqliteStore) SaveThreshold(ctx context.Context, t store.ThresholdRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO adaptive_thresholds (domain, entity_type, base, current, last_adjusted, sample_count)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(domain, entity_type) DO UPDATE SET
	base=excluded.base,
	current=excluded.current,
	last_adjusted=excluded.last_adjusted,
	sample_count=excluded.sample_count;
`,
		t.Domain,
		t.EntityType,
		t.Base,
		t.Current,
		t.LastAdjusted.UTC().Format(time.RFC3339Nano),
		t.SampleCount,
	)
	return err
}

// Thresholds returns all persisted threshold states
func (s *sqliteStore) Thresholds(ctx context.Context) ([]store.ThresholdRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT domain, entity_type, base, current, last_adjusted, sample_count
FROM adaptive_thresholds
ORDER BY domain, entity_type;
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var thresholds []store.ThresholdRecord
	for rows.Next() {
		var t store.ThresholdRecord
		var adjusted string
		if err := rows.Scan(&t.Domain, &t.EntityType, &t.Base, &t.Current, &adjusted, &t.SampleCount); err != nil {
			return nil, err
		}
		if parsed, perr := time.Parse(time.RFC3339Nano, adjusted); perr == nil {
			t.LastAdjusted = parsed
		}
		thresholds = append(thresholds, t)
	}
	return thresholds, rows.Err()
}
