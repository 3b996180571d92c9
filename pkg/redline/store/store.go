package store

import (
	"context"
	"time"
)

// Store is the main interface for persisting and querying feedback data
type Store interface {
	Close() error

	// Feedback events
	SaveEvent(ctx context.Context, e EventRecord) error
	RecentEvents(ctx context.Context, domain, entityType string, n int) ([]EventRecord, error)

	// Learned replacement patterns
	SavePattern(ctx context.Context, p PatternRecord) error
	Patterns(ctx context.Context, domain, entityType string) ([]PatternRecord, error)

	// Adaptive thresholds
	SaveThreshold(ctx context.Context, t ThresholdRecord) error
	Thresholds(ctx context.Context) ([]ThresholdRecord, error)
}

// EventRecord is one user decision on a suggestion, flattened for storage.
type EventRecord struct {
	ID           string
	SuggestionID string
	Action       string
	Domain       string
	EntityType   string
	EntityText   string
	Replacement  string
	Confidence   float64
	Context      string
	At           time.Time
}

// PatternRecord is a learned replacement with its running success rate,
// keyed by (domain, entity type, replacement).
type PatternRecord struct {
	Domain      string
	EntityType  string
	Replacement string
	SuccessRate float64
	Occurrences int64
	LastSeen    time.Time
}

// ThresholdRecord is the persisted auto-apply threshold state for a
// (domain, entity type) pair.
type ThresholdRecord struct {
	Domain       string
	EntityType   string
	Base         float64
	Current      float64
	LastAdjusted time.Time
	SampleCount  int64
}
