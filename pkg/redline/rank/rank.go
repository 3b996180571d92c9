// Package rank orders suggestions by a weighted relevance score and
// marks the ones confident enough to auto-apply.
package rank

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/cognicore/redline/pkg/redline/domain"
	"github.com/cognicore/redline/pkg/redline/entity"
	"github.com/cognicore/redline/pkg/redline/internalerr"
	"github.com/cognicore/redline/pkg/redline/stats"
	"github.com/cognicore/redline/pkg/redline/suggest"
)

// Weights defines the relevance blend. The five components must sum to
// 1.0 so the score stays in the unit interval.
type Weights struct {
	Base    float64 // producer confidence after domain adjustment
	Source  float64 // producer priority
	Text    float64 // surface similarity between mention and replacement
	Entity  float64 // canonical entity-type importance
	Context float64 // alignment with the caller's rule and brand terms
}

// DefaultWeights returns the stock relevance blend.
func DefaultWeights() Weights {
	return Weights{
		Base:    0.40,
		Source:  0.25,
		Text:    0.20,
		Entity:  0.10,
		Context: 0.05,
	}
}

// Validate checks the blend sums to 1.0 within a small tolerance.
func (w Weights) Validate() error {
	sum := w.Base + w.Source + w.Text + w.Entity + w.Context
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("%w: relevance weights sum to %.3f, want 1.0", internalerr.ErrInvalidConfig, sum)
	}
	return nil
}

// Config tunes scoring, ordering and result caps.
type Config struct {
	Weights Weights

	// SourcePriorities orders the producers; the scorer normalizes by
	// the largest value. Defaults: heuristic 1, contextual 3, ai 4,
	// brandkit 5.
	SourcePriorities map[suggest.Source]int

	// SourceCaps bound each producer's contribution before scoring.
	// Defaults: ai 5, contextual 3, brandkit 8, heuristic 10.
	SourceCaps map[suggest.Source]int

	// MaxTotal bounds the ranked result.
	// Default: 15
	MaxTotal int
}

// DefaultConfig returns the stock scoring configuration.
func DefaultConfig() Config {
	return Config{
		Weights: DefaultWeights(),
		SourcePriorities: map[suggest.Source]int{
			suggest.SourceHeuristic:  1,
			suggest.SourceContextual: 3,
			suggest.SourceAI:         4,
			suggest.SourceBrandkit:   5,
		},
		SourceCaps: map[suggest.Source]int{
			suggest.SourceAI:         5,
			suggest.SourceContextual: 3,
			suggest.SourceBrandkit:   8,
			suggest.SourceHeuristic:  10,
		},
		MaxTotal: 15,
	}
}

// entityWeights is the fixed importance table per canonical type.
// Exact-match types score high; free-text types score low.
var entityWeights = map[entity.Type]float64{
	entity.Email:        0.90,
	entity.URL:          0.90,
	entity.Brand:        0.85,
	entity.Product:      0.80,
	entity.Version:      0.80,
	entity.Technology:   0.75,
	entity.Organization: 0.70,
	entity.Person:       0.70,
	entity.Currency:     0.65,
	entity.Location:     0.60,
	entity.Date:         0.60,
	entity.Percentage:   0.60,
	entity.Time:         0.55,
	entity.Other:        0.40,
}

// ThresholdSource returns the live auto-apply threshold for a
// domain/entity-type pair. The feedback service implements it.
type ThresholdSource func(domainName string, t entity.Type) float64

// Scorer computes relevance and produces the final ordered, capped
// suggestion list. Scoring the same inputs against the same threshold
// state is deterministic.
type Scorer struct {
	cfg        Config
	thresholds ThresholdSource
}

// NewScorer builds a scorer. A nil threshold source falls back to the
// per-domain base thresholds.
func NewScorer(cfg Config, thresholds ThresholdSource) *Scorer {
	def := DefaultConfig()
	if cfg.Weights == (Weights{}) {
		cfg.Weights = def.Weights
	}
	if len(cfg.SourcePriorities) == 0 {
		cfg.SourcePriorities = def.SourcePriorities
	}
	if len(cfg.SourceCaps) == 0 {
		cfg.SourceCaps = def.SourceCaps
	}
	if cfg.MaxTotal <= 0 {
		cfg.MaxTotal = def.MaxTotal
	}
	if thresholds == nil {
		thresholds = func(domainName string, _ entity.Type) float64 {
			return domain.BaseThreshold(domainName)
		}
	}
	return &Scorer{cfg: cfg, thresholds: thresholds}
}

// Rank caps each source's contribution, scores what survives, orders by
// relevance and truncates to MaxTotal. Input order never influences the
// result.
func (s *Scorer) Rank(req suggest.Request, suggestions []suggest.Suggestion) []suggest.Suggestion {
	capped := s.applySourceCaps(suggestions)

	for i := range capped {
		s.score(req, &capped[i])
	}

	sort.SliceStable(capped, func(i, j int) bool {
		a, b := capped[i], capped[j]
		if a.Relevance != b.Relevance {
			return a.Relevance > b.Relevance
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		pa, pb := s.cfg.SourcePriorities[a.Source], s.cfg.SourcePriorities[b.Source]
		if pa != pb {
			return pa > pb
		}
		if a.Entity.Text != b.Entity.Text {
			return a.Entity.Text < b.Entity.Text
		}
		return a.Replacement < b.Replacement
	})

	if len(capped) > s.cfg.MaxTotal {
		capped = capped[:s.cfg.MaxTotal]
	}
	return capped
}

// applySourceCaps keeps each producer's highest-confidence suggestions
// up to its cap, before any scoring happens.
func (s *Scorer) applySourceCaps(suggestions []suggest.Suggestion) []suggest.Suggestion {
	bySource := make(map[suggest.Source][]suggest.Suggestion)
	for _, sg := range suggestions {
		bySource[sg.Source] = append(bySource[sg.Source], sg)
	}

	out := make([]suggest.Suggestion, 0, len(suggestions))
	for _, src := range suggest.Sources() {
		group := bySource[src]
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].Confidence != group[j].Confidence {
				return group[i].Confidence > group[j].Confidence
			}
			return group[i].Replacement < group[j].Replacement
		})
		if cap, ok := s.cfg.SourceCaps[src]; ok && len(group) > cap {
			group = group[:cap]
		}
		out = append(out, group...)
	}
	return out
}

// score fills Relevance, AutoApply and Metrics in place.
func (s *Scorer) score(req suggest.Request, sg *suggest.Suggestion) {
	base := sg.Confidence
	if sg.Domain != "" {
		base = sg.DomainAdjustedConfidence
	}

	maxPriority := 1
	for _, p := range s.cfg.SourcePriorities {
		if p > maxPriority {
			maxPriority = p
		}
	}
	sourceWeight := float64(s.cfg.SourcePriorities[sg.Source]) / float64(maxPriority)

	text := s.textRelevance(req, sg)
	entityWeight := entityWeights[sg.Entity.Type]
	if entityWeight == 0 {
		entityWeight = entityWeights[entity.Other]
	}
	alignment := s.contextAlignment(req, sg)

	w := s.cfg.Weights
	score := w.Base*base +
		w.Source*sourceWeight +
		w.Text*text +
		w.Entity*entityWeight +
		w.Context*alignment

	domainName := sg.Domain
	if domainName == "" {
		domainName = domain.General
	}
	threshold := s.thresholds(domainName, sg.Entity.Type)

	multiplier := 1.0
	if sg.Metrics != nil && sg.Metrics.Multiplier != 0 {
		multiplier = sg.Metrics.Multiplier
	}

	sg.Relevance = stats.Round3(stats.Clamp01(score))
	sg.AutoApply = base >= threshold
	sg.Metrics = &suggest.Metrics{
		BaseConfidence:   base,
		SourceWeight:     sourceWeight,
		TextRelevance:    text,
		EntityWeight:     entityWeight,
		ContextAlignment: alignment,
		Multiplier:       multiplier,
		Threshold:        threshold,
	}
}

// textRelevance blends four surface signals, equally weighted: length
// similarity, leading-case preservation, token overlap with the
// caller's rule, and how early the mention appears in the text.
func (s *Scorer) textRelevance(req suggest.Request, sg *suggest.Suggestion) float64 {
	lengthSim := lengthSimilarity(sg.Entity.Text, sg.Replacement)

	casePreserved := 0.0
	if leadingCaseMatches(sg.Entity.Text, sg.Replacement) {
		casePreserved = 1.0
	}

	ruleOverlap := 0.5
	if req.Rule != nil {
		ruleTokens := tokenize(req.Rule.Find + " " + req.Rule.Replace)
		ruleOverlap = jaccard(tokenize(sg.Replacement), ruleTokens)
	}

	position := 0.5
	if idx := strings.Index(strings.ToLower(req.Text), strings.ToLower(sg.Entity.Text)); idx >= 0 {
		frac := float64(idx) / 1000.0
		if frac > 1 {
			frac = 1
		}
		position = 1.0 - frac
	}

	return 0.25*lengthSim + 0.25*casePreserved + 0.25*ruleOverlap + 0.25*position
}

// contextAlignment rewards suggestions that line up with what the
// caller told us about the edit.
func (s *Scorer) contextAlignment(req suggest.Request, sg *suggest.Suggestion) float64 {
	if sg.Source == suggest.SourceBrandkit {
		for _, t := range req.BrandTerms {
			if strings.EqualFold(strings.TrimSpace(t), sg.Replacement) {
				return 1.0
			}
		}
	}
	if (sg.Source == suggest.SourceAI || sg.Source == suggest.SourceContextual) && req.Rule != nil {
		return 0.75
	}
	return 0.5
}

func lengthSimilarity(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	if la == 0 || lb == 0 {
		return 0
	}
	if la > lb {
		la, lb = lb, la
	}
	return float64(la) / float64(lb)
}

func leadingCaseMatches(a, b string) bool {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return false
	}
	return unicode.IsUpper(ra[0]) == unicode.IsUpper(rb[0])
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// jaccard calculates Jaccard similarity between two string slices.
func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}

	aSet := make(map[string]struct{}, len(a))
	for _, s := range a {
		aSet[s] = struct{}{}
	}

	bSet := make(map[string]struct{}, len(b))
	for _, s := range b {
		bSet[s] = struct{}{}
	}

	intersection := 0
	for s := range aSet {
		if _, ok := bSet[s]; ok {
			intersection++
		}
	}

	union := len(aSet) + len(bSet) - intersection
	if union == 0 {
		return 0
	}

	return float64(intersection) / float64(union)
}
