package domain

import (
	"strings"

	"github.com/cognicore/redline/pkg/redline/stats"
	"github.com/cognicore/redline/pkg/redline/suggest"
)

// AdjusterConfig tunes the domain adjustment multiplier. Each component
// is a multiplier centered on 1.0; the weighted blend of the three is
// clamped to [MinMultiplier, MaxMultiplier].
type AdjusterConfig struct {
	// PatternWeight is the share of the multiplier driven by learned
	// replacement patterns.
	// Default: 0.40
	PatternWeight float64

	// PerformanceWeight is the share driven by recent feedback
	// outcomes for the domain/entity-type pair.
	// Default: 0.35
	PerformanceWeight float64

	// ContextWeight is the share driven by request context: brand
	// alignment, user segment, content-type hints.
	// Default: 0.25
	ContextWeight float64

	// PerformanceWindow is how many recent outcomes feed the
	// performance component.
	// Default: 20
	PerformanceWindow int

	// BrandBonus raises the context component when the suggestion
	// aligns with the caller's brand vocabulary.
	// Default: 0.10
	BrandBonus float64

	// AdminBonus raises the context component for admin editors.
	// Default: 0.05
	AdminBonus float64

	// CriticalBonus raises the context component on content types
	// marked critical or important.
	// Default: 0.10
	CriticalBonus float64

	// DraftPenalty lowers the context component on draft or test
	// content.
	// Default: 0.20
	DraftPenalty float64

	// MinMultiplier and MaxMultiplier bound the blended multiplier.
	// Defaults: 0.1 and 2.0
	MinMultiplier float64
	MaxMultiplier float64
}

// DefaultAdjusterConfig returns the stock adjustment weights.
func DefaultAdjusterConfig() AdjusterConfig {
	return AdjusterConfig{
		PatternWeight:     0.40,
		PerformanceWeight: 0.35,
		ContextWeight:     0.25,
		PerformanceWindow: 20,
		BrandBonus:        0.10,
		AdminBonus:        0.05,
		CriticalBonus:     0.10,
		DraftPenalty:      0.20,
		MinMultiplier:     0.1,
		MaxMultiplier:     2.0,
	}
}

// Adjuster scales suggestion confidence by domain experience. With a
// nil PatternSource every history component stays neutral and only the
// request context moves the multiplier.
type Adjuster struct {
	cfg AdjusterConfig
	src PatternSource
}

// NewAdjuster builds an adjuster reading learned state from src.
func NewAdjuster(cfg AdjusterConfig, src PatternSource) *Adjuster {
	def := DefaultAdjusterConfig()
	if cfg.PatternWeight <= 0 && cfg.PerformanceWeight <= 0 && cfg.ContextWeight <= 0 {
		cfg.PatternWeight = def.PatternWeight
		cfg.PerformanceWeight = def.PerformanceWeight
		cfg.ContextWeight = def.ContextWeight
	}
	if cfg.PerformanceWindow <= 0 {
		cfg.PerformanceWindow = def.PerformanceWindow
	}
	if cfg.BrandBonus == 0 {
		cfg.BrandBonus = def.BrandBonus
	}
	if cfg.AdminBonus == 0 {
		cfg.AdminBonus = def.AdminBonus
	}
	if cfg.CriticalBonus == 0 {
		cfg.CriticalBonus = def.CriticalBonus
	}
	if cfg.DraftPenalty == 0 {
		cfg.DraftPenalty = def.DraftPenalty
	}
	if cfg.MinMultiplier <= 0 {
		cfg.MinMultiplier = def.MinMultiplier
	}
	if cfg.MaxMultiplier <= 0 {
		cfg.MaxMultiplier = def.MaxMultiplier
	}
	return &Adjuster{cfg: cfg, src: src}
}

// Apply stamps Domain and DomainAdjustedConfidence on every suggestion
// in place.
func (a *Adjuster) Apply(d Context, req suggest.Request, suggestions []suggest.Suggestion) {
	for i := range suggestions {
		m := a.Multiplier(d, req, suggestions[i])
		suggestions[i].Domain = d.Domain
		suggestions[i].DomainAdjustedConfidence = stats.Clamp01(suggestions[i].Confidence * m)
		if suggestions[i].Metrics == nil {
			suggestions[i].Metrics = &suggest.Metrics{}
		}
		suggestions[i].Metrics.Multiplier = m
	}
}

// Multiplier blends the pattern, performance and context components.
func (a *Adjuster) Multiplier(d Context, req suggest.Request, s suggest.Suggestion) float64 {
	p := a.patternComponent(d.Domain, s)
	perf := a.performanceComponent(d.Domain, s)
	ctx := a.contextComponent(req, s)

	m := a.cfg.PatternWeight*p + a.cfg.PerformanceWeight*perf + a.cfg.ContextWeight*ctx
	return stats.Clamp(m, a.cfg.MinMultiplier, a.cfg.MaxMultiplier)
}

// patternComponent rewards replacements that match a previously
// successful pattern, scaled by how far that pattern's success rate
// sits from the coin-flip line.
func (a *Adjuster) patternComponent(domain string, s suggest.Suggestion) float64 {
	if a.src == nil {
		return 1.0
	}
	best := -1.0
	for _, p := range a.src.PatternsFor(domain, s.Entity.Type) {
		if strings.EqualFold(p.Replacement, s.Replacement) && p.SuccessRate > best {
			best = p.SuccessRate
		}
	}
	if best < 0 {
		return 1.0
	}
	return 1.0 + (best - 0.5)
}

// performanceComponent follows the recent acceptance rate for the
// domain/entity-type pair.
func (a *Adjuster) performanceComponent(domain string, s suggest.Suggestion) float64 {
	if a.src == nil {
		return 1.0
	}
	outcomes := a.src.RecentOutcomes(domain, s.Entity.Type, a.cfg.PerformanceWindow)
	if len(outcomes) == 0 {
		return 1.0
	}
	return 1.0 + (stats.AcceptanceRate(outcomes) - 0.5)
}

// contextComponent applies request-level bonuses and penalties.
func (a *Adjuster) contextComponent(req suggest.Request, s suggest.Suggestion) float64 {
	c := 1.0
	if a.brandAligned(req, s) {
		c += a.cfg.BrandBonus
	}
	if strings.EqualFold(req.UserSegment, "admin") {
		c += a.cfg.AdminBonus
	}
	ct := strings.ToLower(req.ContentType)
	if strings.Contains(ct, "critical") || strings.Contains(ct, "important") {
		c += a.cfg.CriticalBonus
	}
	if strings.Contains(ct, "draft") || strings.Contains(ct, "test") {
		c -= a.cfg.DraftPenalty
	}
	return c
}

func (a *Adjuster) brandAligned(req suggest.Request, s suggest.Suggestion) bool {
	if s.Source == suggest.SourceBrandkit {
		return true
	}
	for _, t := range req.BrandTerms {
		if strings.EqualFold(strings.TrimSpace(t), s.Replacement) {
			return true
		}
	}
	return false
}
