package domain

import (
	"math"
	"testing"

	"github.com/cognicore/redline/pkg/redline/entity"
	"github.com/cognicore/redline/pkg/redline/suggest"
)

type stubPatterns struct {
	patterns []Pattern
	outcomes []int
}

func (s *stubPatterns) PatternsFor(string, entity.Type) []Pattern { return s.patterns }
func (s *stubPatterns) RecentOutcomes(_ string, _ entity.Type, n int) []int {
	if len(s.outcomes) > n {
		return s.outcomes[len(s.outcomes)-n:]
	}
	return s.outcomes
}

func brandSuggestion(replacement string) suggest.Suggestion {
	return suggest.Suggestion{
		Entity:      entity.Entity{Text: "x", Type: entity.Brand, Confidence: 0.8},
		Replacement: replacement,
		Confidence:  0.8,
		Source:      suggest.SourceAI,
	}
}

func TestMultiplierNeutralWithoutHistory(t *testing.T) {
	a := NewAdjuster(DefaultAdjusterConfig(), nil)
	m := a.Multiplier(Context{Domain: General}, suggest.Request{}, brandSuggestion("Acme"))
	if math.Abs(m-1.0) > 1e-9 {
		t.Errorf("neutral multiplier = %v, want 1.0", m)
	}
}

func TestMultiplierPatternComponent(t *testing.T) {
	src := &stubPatterns{patterns: []Pattern{
		{Replacement: "acme", SuccessRate: 0.9},
		{Replacement: "other", SuccessRate: 1.0},
	}}
	a := NewAdjuster(DefaultAdjusterConfig(), src)

	m := a.Multiplier(Context{Domain: Technology}, suggest.Request{}, brandSuggestion("Acme"))
	// pattern = 1.4, performance = 1.0, context = 1.0
	want := 0.40*1.4 + 0.35*1.0 + 0.25*1.0
	if math.Abs(m-want) > 1e-9 {
		t.Errorf("multiplier = %v, want %v", m, want)
	}
}

func TestMultiplierPerformanceComponent(t *testing.T) {
	src := &stubPatterns{outcomes: []int{1, 1, 1, 1}}
	a := NewAdjuster(DefaultAdjusterConfig(), src)

	m := a.Multiplier(Context{Domain: Technology}, suggest.Request{}, brandSuggestion("Acme"))
	// pattern = 1.0, performance = 1.5, context = 1.0
	want := 0.40*1.0 + 0.35*1.5 + 0.25*1.0
	if math.Abs(m-want) > 1e-9 {
		t.Errorf("multiplier = %v, want %v", m, want)
	}
}

func TestMultiplierContextComponent(t *testing.T) {
	a := NewAdjuster(DefaultAdjusterConfig(), nil)

	s := brandSuggestion("Contentstack")
	s.Source = suggest.SourceBrandkit
	req := suggest.Request{UserSegment: "admin", ContentType: "critical_landing_page"}
	m := a.Multiplier(Context{Domain: General}, req, s)
	// context = 1.0 + 0.10 (brand) + 0.05 (admin) + 0.10 (critical)
	want := 0.40 + 0.35 + 0.25*1.25
	if math.Abs(m-want) > 1e-9 {
		t.Errorf("multiplier = %v, want %v", m, want)
	}

	req = suggest.Request{ContentType: "draft_post"}
	m = a.Multiplier(Context{Domain: General}, req, brandSuggestion("x"))
	want = 0.40 + 0.35 + 0.25*0.8
	if math.Abs(m-want) > 1e-9 {
		t.Errorf("draft multiplier = %v, want %v", m, want)
	}
}

func TestMultiplierClamped(t *testing.T) {
	cfg := DefaultAdjusterConfig()
	cfg.MaxMultiplier = 1.05
	src := &stubPatterns{patterns: []Pattern{{Replacement: "acme", SuccessRate: 1.0}}, outcomes: []int{1, 1}}
	a := NewAdjuster(cfg, src)

	m := a.Multiplier(Context{Domain: Technology}, suggest.Request{}, brandSuggestion("Acme"))
	if m != 1.05 {
		t.Errorf("multiplier = %v, want clamped 1.05", m)
	}
}

func TestApplyStampsSuggestions(t *testing.T) {
	a := NewAdjuster(DefaultAdjusterConfig(), &stubPatterns{outcomes: []int{1, 1, 1, 1}})
	ss := []suggest.Suggestion{brandSuggestion("Acme")}

	a.Apply(Context{Domain: Finance}, suggest.Request{}, ss)

	if ss[0].Domain != Finance {
		t.Errorf("domain = %s, want finance", ss[0].Domain)
	}
	// multiplier 1.175 over confidence 0.8
	want := 0.8 * 1.175
	if math.Abs(ss[0].DomainAdjustedConfidence-want) > 1e-9 {
		t.Errorf("adjusted = %v, want %v", ss[0].DomainAdjustedConfidence, want)
	}
	if ss[0].Metrics == nil || math.Abs(ss[0].Metrics.Multiplier-1.175) > 1e-9 {
		t.Errorf("metrics = %+v", ss[0].Metrics)
	}
}

func TestApplyClampsAdjustedConfidence(t *testing.T) {
	a := NewAdjuster(DefaultAdjusterConfig(), &stubPatterns{
		patterns: []Pattern{{Replacement: "acme", SuccessRate: 1.0}},
		outcomes: []int{1, 1, 1, 1},
	})
	s := brandSuggestion("Acme")
	s.Confidence = 0.95
	ss := []suggest.Suggestion{s}

	a.Apply(Context{Domain: Technology}, suggest.Request{}, ss)
	if ss[0].DomainAdjustedConfidence > 1.0 {
		t.Errorf("adjusted confidence %v escaped [0,1]", ss[0].DomainAdjustedConfidence)
	}
}
