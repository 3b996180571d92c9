package feedback

import (
	"context"
	"crypto/rand"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/cognicore/redline/pkg/redline/domain"
	"github.com/cognicore/redline/pkg/redline/entity"
	"github.com/cognicore/redline/pkg/redline/internalerr"
	"github.com/cognicore/redline/pkg/redline/stats"
	"github.com/cognicore/redline/pkg/redline/store"
)

// Config tunes what the service learns from events.
type Config struct {
	// HistorySize bounds the per-pair outcome ring. Oldest outcomes are
	// dropped past this.
	// Default: 50
	HistorySize int

	// PatternMinConfidence is the suggestion confidence an accept must
	// carry before its replacement becomes a reusable pattern.
	// Default: 0.7
	PatternMinConfidence float64

	// Calibration tunes the threshold recalibration pass.
	Calibration CalibrationConfig

	// Stats tunes the windowed statistics behind calibration.
	Stats stats.Config
}

// DefaultConfig returns the stock learning configuration.
func DefaultConfig() Config {
	return Config{
		HistorySize:          50,
		PatternMinConfidence: 0.7,
		Calibration:          DefaultCalibrationConfig(),
		Stats:                stats.DefaultConfig(),
	}
}

// Threshold is the adaptive auto-apply state for one
// (domain, entity type) pair.
type Threshold struct {
	Domain       string      `json:"domain"`
	EntityType   entity.Type `json:"entityType"`
	Base         float64     `json:"base"`
	Current      float64     `json:"current"`
	LastAdjusted time.Time   `json:"lastAdjusted,omitempty"`
	SampleCount  int         `json:"sampleCount"`
}

type pairKey struct {
	domain     string
	entityType entity.Type
}

// ring is a bounded chronological outcome buffer.
type ring struct {
	buf  []int
	size int
}

func (r *ring) push(v int) {
	r.buf = append(r.buf, v)
	if len(r.buf) > r.size {
		r.buf = r.buf[len(r.buf)-r.size:]
	}
}

// last returns up to n outcomes, oldest first.
func (r *ring) last(n int) []int {
	if n <= 0 || n > len(r.buf) {
		n = len(r.buf)
	}
	out := make([]int, n)
	copy(out, r.buf[len(r.buf)-n:])
	return out
}

// patternState carries the running counters behind a learned pattern.
type patternState struct {
	accepted int
	total    int
	lastSeen time.Time
}

func (p *patternState) successRate() float64 {
	if p.total == 0 {
		return 0
	}
	return float64(p.accepted) / float64(p.total)
}

// Service records feedback events and owns the learned patterns and
// adaptive thresholds. All methods are safe for concurrent use.
//
// The in-memory state is authoritative; the store is a write-through
// journal used to survive restarts. A store failure leaves the memory
// state updated and is reported to the caller.
type Service struct {
	cfg   Config
	log   *zap.Logger
	store store.Store
	clock func() time.Time

	mu         sync.RWMutex
	history    map[pairKey]*ring
	patterns   map[pairKey]map[string]*patternState
	thresholds map[pairKey]*Threshold

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

// NewService builds a feedback service. The store may be nil for a
// purely in-memory deployment; the logger may be nil.
func NewService(cfg Config, st store.Store, log *zap.Logger) *Service {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultConfig().HistorySize
	}
	if cfg.PatternMinConfidence <= 0 {
		cfg.PatternMinConfidence = DefaultConfig().PatternMinConfidence
	}
	if cfg.Calibration == (CalibrationConfig{}) {
		cfg.Calibration = DefaultCalibrationConfig()
	}
	if cfg.Stats == (stats.Config{}) {
		cfg.Stats = stats.DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		cfg:        cfg,
		log:        log,
		store:      st,
		clock:      time.Now,
		history:    make(map[pairKey]*ring),
		patterns:   make(map[pairKey]map[string]*patternState),
		thresholds: make(map[pairKey]*Threshold),
		entropy:    ulid.Monotonic(rand.Reader, 0),
	}
}

func (s *Service) newID() string {
	s.entropyMu.Lock()
	defer s.entropyMu.Unlock()
	return ulid.MustNew(ulid.Now(), s.entropy).String()
}

// Record validates and applies one feedback event: the outcome joins the
// pair's history ring, pattern counters update, and the event is written
// through to the store. The returned event carries the assigned ID and
// timestamp.
func (s *Service) Record(ctx context.Context, e Event) (Event, error) {
	if _, err := ParseAction(string(e.Action)); err != nil {
		return Event{}, err
	}
	if e.SuggestionID == "" {
		return Event{}, fmt.Errorf("%w: feedback event without suggestion id", internalerr.ErrInvalidInput)
	}
	if e.Domain == "" {
		e.Domain = domain.General
	}
	e.EntityType = entity.ParseType(string(e.EntityType))
	e.Confidence = stats.Clamp01(e.Confidence)
	if e.ID == "" {
		e.ID = s.newID()
	}
	if e.At.IsZero() {
		e.At = s.clock()
	}

	key := pairKey{domain: e.Domain, entityType: e.EntityType}

	s.mu.Lock()
	r := s.history[key]
	if r == nil {
		r = &ring{size: s.cfg.HistorySize}
		s.history[key] = r
	}
	r.push(e.Action.Outcome())

	th := s.thresholdLocked(key)
	th.SampleCount = len(r.buf)

	pattern := s.learnPatternLocked(key, e)
	s.mu.Unlock()

	s.log.Debug("feedback recorded",
		zap.String("id", e.ID),
		zap.String("action", string(e.Action)),
		zap.String("domain", e.Domain),
		zap.String("entityType", string(e.EntityType)))

	if s.store == nil {
		return e, nil
	}
	if err := s.store.SaveEvent(ctx, eventRecord(e)); err != nil {
		return e, fmt.Errorf("save feedback event: %w", err)
	}
	if pattern != nil {
		if err := s.store.SavePattern(ctx, *pattern); err != nil {
			return e, fmt.Errorf("save pattern: %w", err)
		}
	}
	return e, nil
}

// thresholdLocked returns the pair's threshold state, creating it from
// the domain's base threshold on first sight. Callers hold s.mu.
func (s *Service) thresholdLocked(key pairKey) *Threshold {
	th := s.thresholds[key]
	if th == nil {
		base := domain.BaseThreshold(key.domain)
		th = &Threshold{
			Domain:     key.domain,
			EntityType: key.entityType,
			Base:       base,
			Current:    base,
		}
		s.thresholds[key] = th
	}
	return th
}

// learnPatternLocked updates pattern counters for the event and returns
// the record to persist, or nil when the event teaches nothing. An
// existing pattern's rate moves with every decision on its replacement;
// a new pattern is only born from a confident accept.
func (s *Service) learnPatternLocked(key pairKey, e Event) *store.PatternRecord {
	if e.Replacement == "" {
		return nil
	}

	reps := s.patterns[key]
	st, exists := reps[e.Replacement]
	accepted := e.Action == ActionAccept

	switch {
	case exists:
		st.total++
		if accepted {
			st.accepted++
		}
		st.lastSeen = e.At
	case accepted && e.Confidence > s.cfg.PatternMinConfidence:
		if reps == nil {
			reps = make(map[string]*patternState)
			s.patterns[key] = reps
		}
		st = &patternState{accepted: 1, total: 1, lastSeen: e.At}
		reps[e.Replacement] = st
	default:
		return nil
	}

	return &store.PatternRecord{
		Domain:      key.domain,
		EntityType:  string(key.entityType),
		Replacement: e.Replacement,
		SuccessRate: st.successRate(),
		Occurrences: int64(st.total),
		LastSeen:    st.lastSeen,
	}
}

// PatternsFor implements domain.PatternSource.
func (s *Service) PatternsFor(domainName string, t entity.Type) []domain.Pattern {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reps := s.patterns[pairKey{domain: domainName, entityType: t}]
	if len(reps) == 0 {
		return nil
	}

	out := make([]domain.Pattern, 0, len(reps))
	for replacement, st := range reps {
		out = append(out, domain.Pattern{
			Domain:      domainName,
			EntityType:  t,
			Replacement: replacement,
			SuccessRate: st.successRate(),
			Occurrences: st.total,
			LastSeen:    st.lastSeen,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SuccessRate != out[j].SuccessRate {
			return out[i].SuccessRate > out[j].SuccessRate
		}
		return out[i].Replacement < out[j].Replacement
	})
	return out
}

// RecentOutcomes implements domain.PatternSource. Outcomes come back
// oldest first.
func (s *Service) RecentOutcomes(domainName string, t entity.Type, n int) []int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r := s.history[pairKey{domain: domainName, entityType: t}]
	if r == nil {
		return nil
	}
	return r.last(n)
}

// ThresholdFor returns the live auto-apply threshold for a pair, falling
// back to the domain's base threshold when no feedback has arrived yet.
// The scorer consumes this as its threshold source.
func (s *Service) ThresholdFor(domainName string, t entity.Type) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if th, ok := s.thresholds[pairKey{domain: domainName, entityType: t}]; ok {
		return th.Current
	}
	return domain.BaseThreshold(domainName)
}

// Thresholds returns a snapshot of every tracked pair, ordered by
// domain then entity type.
func (s *Service) Thresholds() []Threshold {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Threshold, 0, len(s.thresholds))
	for _, th := range s.thresholds {
		out = append(out, *th)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Domain != out[j].Domain {
			return out[i].Domain < out[j].Domain
		}
		return out[i].EntityType < out[j].EntityType
	})
	return out
}

// Load hydrates thresholds, patterns and outcome history from the store.
// Pairs are discovered through the persisted thresholds, which calibration
// writes for every pair it has ever seen.
func (s *Service) Load(ctx context.Context) error {
	if s.store == nil {
		return nil
	}

	records, err := s.store.Thresholds(ctx)
	if err != nil {
		return fmt.Errorf("load thresholds: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range records {
		key := pairKey{domain: rec.Domain, entityType: entity.ParseType(rec.EntityType)}
		s.thresholds[key] = &Threshold{
			Domain:       rec.Domain,
			EntityType:   key.entityType,
			Base:         rec.Base,
			Current:      rec.Current,
			LastAdjusted: rec.LastAdjusted,
			SampleCount:  int(rec.SampleCount),
		}

		patterns, err := s.store.Patterns(ctx, rec.Domain, rec.EntityType)
		if err != nil {
			return fmt.Errorf("load patterns for %s/%s: %w", rec.Domain, rec.EntityType, err)
		}
		for _, p := range patterns {
			reps := s.patterns[key]
			if reps == nil {
				reps = make(map[string]*patternState)
				s.patterns[key] = reps
			}
			total := int(p.Occurrences)
			reps[p.Replacement] = &patternState{
				accepted: int(p.SuccessRate*float64(total) + 0.5),
				total:    total,
				lastSeen: p.LastSeen,
			}
		}

		events, err := s.store.RecentEvents(ctx, rec.Domain, rec.EntityType, s.cfg.HistorySize)
		if err != nil {
			return fmt.Errorf("load events for %s/%s: %w", rec.Domain, rec.EntityType, err)
		}
		r := &ring{size: s.cfg.HistorySize}
		// RecentEvents is newest first; the ring wants chronological order.
		for i := len(events) - 1; i >= 0; i-- {
			r.push(Action(events[i].Action).Outcome())
		}
		s.history[key] = r
	}

	s.log.Info("feedback state loaded", zap.Int("pairs", len(records)))
	return nil
}

func eventRecord(e Event) store.EventRecord {
	return store.EventRecord{
		ID:           e.ID,
		SuggestionID: e.SuggestionID,
		Action:       string(e.Action),
		Domain:       e.Domain,
		EntityType:   string(e.EntityType),
		EntityText:   e.EntityText,
		Replacement:  e.Replacement,
		Confidence:   e.Confidence,
		Context:      e.Context,
		At:           e.At,
	}
}
