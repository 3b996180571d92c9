package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/cognicore/redline/pkg/redline/store"
)

// Store is an in-memory implementation of store.Store for tests and
// single-process deployments that do not need persistence.
type Store struct {
	mu         sync.RWMutex
	events     []store.EventRecord
	patterns   map[string]store.PatternRecord
	thresholds map[string]store.ThresholdRecord
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		patterns:   make(map[string]store.PatternRecord),
		thresholds: make(map[string]store.ThresholdRecord),
	}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// SaveEvent appends a feedback event.
func (s *Store) SaveEvent(ctx context.Context, e store.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

// RecentEvents returns up to n events for the pair, newest first.
func (s *Store) RecentEvents(ctx context.Context, domain, entityType string, n int) ([]store.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 {
		n = 50
	}

	var matched []store.EventRecord
	for _, e := range s.events {
		if e.Domain == domain && e.EntityType == entityType {
			matched = append(matched, e)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].At.Equal(matched[j].At) {
			return matched[i].At.After(matched[j].At)
		}
		return matched[i].ID > matched[j].ID
	})

	if len(matched) > n {
		matched = matched[:n]
	}
	return matched, nil
}

// SavePattern inserts or replaces a pattern, keyed by
// (domain, entity type, replacement).
func (s *Store) SavePattern(ctx context.Context, p store.PatternRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns[patternKey(p.Domain, p.EntityType, p.Replacement)] = p
	return nil
}

// Patterns returns the patterns for a pair, best success rate first.
func (s *Store) Patterns(ctx context.Context, domain, entityType string) ([]store.PatternRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.PatternRecord
	for _, p := range s.patterns {
		if p.Domain == domain && p.EntityType == entityType {
			out = append(out, p)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].SuccessRate != out[j].SuccessRate {
			return out[i].SuccessRate > out[j].SuccessRate
		}
		return out[i].Replacement < out[j].Replacement
	})
	return out, nil
}

// SaveThreshold inserts or replaces threshold state for a pair.
func (s *Store) SaveThreshold(ctx context.Context, t store.ThresholdRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thresholds[t.Domain+"\x00"+t.EntityType] = t
	return nil
}

// Thresholds returns all persisted threshold states.
func (s *Store) Thresholds(ctx context.Context) ([]store.ThresholdRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.ThresholdRecord, 0, len(s.thresholds))
	for _, t := range s.thresholds {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Domain != out[j].Domain {
			return out[i].Domain < out[j].Domain
		}
		return out[i].EntityType < out[j].EntityType
	})
	return out, nil
}

func patternKey(domain, entityType, replacement string) string {
	return domain + "\x00" + entityType + "\x00" + replacement
}
