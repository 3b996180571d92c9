package rank

import (
	"math"
	"testing"

	"github.com/cognicore/redline/pkg/redline/domain"
	"github.com/cognicore/redline/pkg/redline/entity"
	"github.com/cognicore/redline/pkg/redline/suggest"
)

func mkSuggestion(text string, typ entity.Type, replacement string, conf float64, src suggest.Source) suggest.Suggestion {
	e := entity.Entity{Text: text, Type: typ, Confidence: conf, Source: entity.SourcePattern}
	return suggest.NewSuggestion(e, replacement, conf, src, "test")
}

func TestDefaultWeightsValidate(t *testing.T) {
	if err := DefaultWeights().Validate(); err != nil {
		t.Fatalf("default weights should validate: %v", err)
	}

	bad := Weights{Base: 0.5, Source: 0.5, Text: 0.5}
	if err := bad.Validate(); err == nil {
		t.Error("weights summing to 1.5 should fail validation")
	}
}

func TestScoreComponents(t *testing.T) {
	scorer := NewScorer(DefaultConfig(), nil)

	req := suggest.Request{Text: "Contact us at support@old.example.com today."}
	sg := mkSuggestion("support@old.example.com", entity.Email, "contact@company.com", 0.6, suggest.SourceHeuristic)

	ranked := scorer.Rank(req, []suggest.Suggestion{sg})
	if len(ranked) != 1 {
		t.Fatalf("expected 1 suggestion, got %d", len(ranked))
	}

	m := ranked[0].Metrics
	if m == nil {
		t.Fatal("metrics should be populated")
	}

	if math.Abs(m.BaseConfidence-0.6) > 0.001 {
		t.Errorf("base confidence: got %f, want 0.6", m.BaseConfidence)
	}
	// heuristic priority 1 of max 5
	if math.Abs(m.SourceWeight-0.2) > 0.001 {
		t.Errorf("source weight: got %f, want 0.2", m.SourceWeight)
	}
	// length 19/23, case match 1.0, no rule 0.5, mention at byte 14 → 0.986
	wantText := 0.25*(19.0/23.0) + 0.25*1.0 + 0.25*0.5 + 0.25*0.986
	if math.Abs(m.TextRelevance-wantText) > 0.001 {
		t.Errorf("text relevance: got %f, want %f", m.TextRelevance, wantText)
	}
	if math.Abs(m.EntityWeight-0.9) > 0.001 {
		t.Errorf("entity weight for email: got %f, want 0.9", m.EntityWeight)
	}
	if math.Abs(m.ContextAlignment-0.5) > 0.001 {
		t.Errorf("context alignment: got %f, want 0.5", m.ContextAlignment)
	}

	want := 0.4*0.6 + 0.25*0.2 + 0.2*wantText + 0.1*0.9 + 0.05*0.5
	if math.Abs(ranked[0].Relevance-want) > 0.001 {
		t.Errorf("relevance: got %f, want %f", ranked[0].Relevance, want)
	}

	// unstamped domain falls back to the general base threshold
	if math.Abs(m.Threshold-domain.BaseThreshold(domain.General)) > 0.001 {
		t.Errorf("threshold: got %f, want general base", m.Threshold)
	}
	if !ranked[0].AutoApply {
		t.Error("0.6 confidence should auto-apply against the 0.40 general threshold")
	}
}

func TestScoreUsesAdjustedConfidence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = Weights{Base: 1.0}
	scorer := NewScorer(cfg, nil)

	sg := mkSuggestion("BP 140/90", entity.Other, "blood pressure 140/90", 0.9, suggest.SourceAI)
	sg.Domain = domain.Healthcare
	sg.DomainAdjustedConfidence = 0.45

	ranked := scorer.Rank(suggest.Request{Text: "BP 140/90"}, []suggest.Suggestion{sg})

	if math.Abs(ranked[0].Relevance-0.45) > 0.001 {
		t.Errorf("relevance should use the adjusted confidence: got %f, want 0.45", ranked[0].Relevance)
	}
	// healthcare base threshold is 0.90; the adjusted 0.45 must not auto-apply
	if ranked[0].AutoApply {
		t.Error("0.45 adjusted confidence should not clear the healthcare threshold")
	}
}

func TestScorePreservesMultiplier(t *testing.T) {
	scorer := NewScorer(DefaultConfig(), nil)

	sg := mkSuggestion("http://x.io", entity.URL, "https://x.io", 0.7, suggest.SourceHeuristic)
	sg.Domain = domain.Technology
	sg.DomainAdjustedConfidence = 0.84
	sg.Metrics = &suggest.Metrics{Multiplier: 1.2}

	ranked := scorer.Rank(suggest.Request{Text: "see http://x.io"}, []suggest.Suggestion{sg})

	if math.Abs(ranked[0].Metrics.Multiplier-1.2) > 0.001 {
		t.Errorf("multiplier stamped upstream should survive scoring, got %f", ranked[0].Metrics.Multiplier)
	}
}

func TestThresholdSourceInjection(t *testing.T) {
	thresholds := func(domainName string, typ entity.Type) float64 {
		if typ == entity.Version {
			return 0.75
		}
		return 0.4
	}
	scorer := NewScorer(DefaultConfig(), thresholds)

	above := mkSuggestion("v1.2", entity.Version, "v1.3", 0.8, suggest.SourceHeuristic)
	below := mkSuggestion("v2.0", entity.Version, "v2.1", 0.7, suggest.SourceHeuristic)

	ranked := scorer.Rank(suggest.Request{Text: "v1.2 and v2.0"}, []suggest.Suggestion{above, below})

	for _, sg := range ranked {
		if math.Abs(sg.Metrics.Threshold-0.75) > 0.001 {
			t.Errorf("threshold for %q: got %f, want 0.75", sg.Entity.Text, sg.Metrics.Threshold)
		}
		switch sg.Entity.Text {
		case "v1.2":
			if !sg.AutoApply {
				t.Error("0.8 confidence should clear a 0.75 threshold")
			}
		case "v2.0":
			if sg.AutoApply {
				t.Error("0.7 confidence should not clear a 0.75 threshold")
			}
		}
	}
}

func TestContextAlignmentValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = Weights{Context: 1.0}
	scorer := NewScorer(cfg, nil)

	rule := &suggest.ReplaceRule{Find: "old", Replace: "new"}

	tests := []struct {
		name string
		req  suggest.Request
		sg   suggest.Suggestion
		want float64
	}{
		{
			name: "brandkit matching brand term",
			req:  suggest.Request{Text: "x", BrandTerms: []string{"ConcordCMS"}},
			sg:   mkSuggestion("concord", entity.Brand, "ConcordCMS", 0.9, suggest.SourceBrandkit),
			want: 1.0,
		},
		{
			name: "brandkit without matching term",
			req:  suggest.Request{Text: "x"},
			sg:   mkSuggestion("concord", entity.Brand, "ConcordCMS", 0.9, suggest.SourceBrandkit),
			want: 0.5,
		},
		{
			name: "ai with rule",
			req:  suggest.Request{Text: "x", Rule: rule},
			sg:   mkSuggestion("old", entity.Other, "newer", 0.6, suggest.SourceAI),
			want: 0.75,
		},
		{
			name: "contextual with rule",
			req:  suggest.Request{Text: "x", Rule: rule},
			sg:   mkSuggestion("old", entity.Other, "newest", 0.6, suggest.SourceContextual),
			want: 0.75,
		},
		{
			name: "heuristic is neutral",
			req:  suggest.Request{Text: "x", Rule: rule},
			sg:   mkSuggestion("v1.0", entity.Version, "v1.1", 0.5, suggest.SourceHeuristic),
			want: 0.5,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ranked := scorer.Rank(tc.req, []suggest.Suggestion{tc.sg})
			got := ranked[0].Metrics.ContextAlignment
			if math.Abs(got-tc.want) > 0.001 {
				t.Errorf("alignment: got %f, want %f", got, tc.want)
			}
		})
	}
}

func TestSourceCapKeepsHighestConfidence(t *testing.T) {
	scorer := NewScorer(DefaultConfig(), nil)

	var in []suggest.Suggestion
	confs := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7}
	for i, c := range confs {
		sg := mkSuggestion("term", entity.Other, string(rune('a'+i))+"-alt", c, suggest.SourceAI)
		in = append(in, sg)
	}

	ranked := scorer.Rank(suggest.Request{Text: "term"}, in)

	if len(ranked) != 5 {
		t.Fatalf("ai suggestions should be capped at 5, got %d", len(ranked))
	}
	for _, sg := range ranked {
		if sg.Confidence < 0.3 {
			t.Errorf("cap should drop the lowest-confidence entries, kept %f", sg.Confidence)
		}
	}
}

func TestMaxTotalTruncation(t *testing.T) {
	scorer := NewScorer(DefaultConfig(), nil)

	var in []suggest.Suggestion
	for i := 0; i < 12; i++ {
		in = append(in, mkSuggestion("h", entity.Other, string(rune('a'+i)), 0.5, suggest.SourceHeuristic))
	}
	for i := 0; i < 8; i++ {
		in = append(in, mkSuggestion("b", entity.Brand, string(rune('a'+i)), 0.6, suggest.SourceBrandkit))
	}

	ranked := scorer.Rank(suggest.Request{Text: "h b"}, in)

	// heuristic capped at 10, brandkit at 8, total truncated to 15
	if len(ranked) != 15 {
		t.Fatalf("expected 15 ranked suggestions, got %d", len(ranked))
	}
}

func TestRankOrdering(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = Weights{Base: 1.0}
	scorer := NewScorer(cfg, nil)

	low := mkSuggestion("alpha", entity.Other, "a", 0.3, suggest.SourceHeuristic)
	high := mkSuggestion("beta", entity.Other, "b", 0.9, suggest.SourceHeuristic)

	ranked := scorer.Rank(suggest.Request{Text: "alpha beta"}, []suggest.Suggestion{low, high})

	if ranked[0].Entity.Text != "beta" {
		t.Errorf("higher relevance should rank first, got %q", ranked[0].Entity.Text)
	}
}

func TestRankTieBreakSourcePriority(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = Weights{Base: 1.0}
	scorer := NewScorer(cfg, nil)

	h := mkSuggestion("term", entity.Other, "same", 0.5, suggest.SourceHeuristic)
	b := mkSuggestion("term", entity.Other, "same", 0.5, suggest.SourceBrandkit)

	ranked := scorer.Rank(suggest.Request{Text: "term"}, []suggest.Suggestion{h, b})

	if ranked[0].Source != suggest.SourceBrandkit {
		t.Errorf("equal relevance and confidence should break on source priority, got %q first", ranked[0].Source)
	}
}

func TestRankTieBreakEntityText(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = Weights{Base: 1.0}
	scorer := NewScorer(cfg, nil)

	z := mkSuggestion("zeta", entity.Other, "r", 0.5, suggest.SourceHeuristic)
	a := mkSuggestion("alpha", entity.Other, "r", 0.5, suggest.SourceHeuristic)

	ranked := scorer.Rank(suggest.Request{Text: "none"}, []suggest.Suggestion{z, a})

	if ranked[0].Entity.Text != "alpha" {
		t.Errorf("full ties should order by entity text, got %q first", ranked[0].Entity.Text)
	}
}

func TestRankInputOrderIndependence(t *testing.T) {
	scorer := NewScorer(DefaultConfig(), nil)
	req := suggest.Request{Text: "visit http://a.io and http://b.io for v1.2 details"}

	s1 := mkSuggestion("http://a.io", entity.URL, "https://a.io", 0.7, suggest.SourceHeuristic)
	s2 := mkSuggestion("http://b.io", entity.URL, "https://b.io", 0.7, suggest.SourceHeuristic)
	s3 := mkSuggestion("v1.2", entity.Version, "v1.3", 0.5, suggest.SourceHeuristic)
	s4 := mkSuggestion("details", entity.Other, "specifics", 0.6, suggest.SourceAI)

	forward := scorer.Rank(req, []suggest.Suggestion{s1, s2, s3, s4})
	reversed := scorer.Rank(req, []suggest.Suggestion{s4, s3, s2, s1})

	if len(forward) != len(reversed) {
		t.Fatalf("lengths differ: %d vs %d", len(forward), len(reversed))
	}
	for i := range forward {
		if forward[i].ID != reversed[i].ID {
			t.Errorf("position %d differs by input order: %q vs %q", i, forward[i].Entity.Text, reversed[i].Entity.Text)
		}
	}
}

func TestRankEmptyInput(t *testing.T) {
	scorer := NewScorer(DefaultConfig(), nil)

	ranked := scorer.Rank(suggest.Request{Text: "anything"}, nil)

	if len(ranked) != 0 {
		t.Errorf("empty input should rank to empty output, got %d", len(ranked))
	}
}

func TestJaccardSimilarity(t *testing.T) {
	if sim := jaccard([]string{"ai", "ml"}, []string{"ai", "ml"}); sim != 1.0 {
		t.Errorf("perfect overlap should be 1.0, got %f", sim)
	}
	if sim := jaccard([]string{"ai"}, []string{"web"}); sim != 0.0 {
		t.Errorf("no overlap should be 0.0, got %f", sim)
	}
	// intersection {ai}, union {ai, ml, nlp, web} → 0.25
	if sim := jaccard([]string{"ai", "ml", "nlp"}, []string{"ai", "web"}); sim != 0.25 {
		t.Errorf("expected 0.25, got %f", sim)
	}
}

func TestJaccardEmptySets(t *testing.T) {
	if sim := jaccard(nil, nil); sim != 1.0 {
		t.Errorf("two empty sets should have 1.0 similarity, got %f", sim)
	}
	if sim := jaccard([]string{"ai"}, nil); sim != 0.0 {
		t.Errorf("one empty set should have 0 similarity, got %f", sim)
	}
}

func TestJaccardDuplicateElements(t *testing.T) {
	// duplicates collapse: intersection {ai}, union {ai, ml, web} → 1/3
	sim := jaccard([]string{"ai", "ai", "ml", "ml"}, []string{"ai", "web"})
	if math.Abs(sim-1.0/3.0) > 0.01 {
		t.Errorf("expected 1/3, got %f", sim)
	}
}

func TestTextRelevanceRuleOverlap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = Weights{Text: 1.0}
	scorer := NewScorer(cfg, nil)

	rule := &suggest.ReplaceRule{Find: "launch window", Replace: "release window"}
	req := suggest.Request{Text: "the launch window opens soon", Rule: rule}

	overlapping := mkSuggestion("launch window", entity.Other, "release window", 0.6, suggest.SourceContextual)
	unrelated := mkSuggestion("launch window", entity.Other, "go time", 0.6, suggest.SourceContextual)

	ranked := scorer.Rank(req, []suggest.Suggestion{unrelated, overlapping})

	if ranked[0].Replacement != "release window" {
		t.Errorf("replacement sharing the rule's tokens should score higher, got %q first", ranked[0].Replacement)
	}
}

func TestTextRelevancePositionBonus(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = Weights{Text: 1.0}
	scorer := NewScorer(cfg, nil)

	padding := ""
	for i := 0; i < 200; i++ {
		padding += "word "
	}
	req := suggest.Request{Text: "early mention here. " + padding + "late mention"}

	early := mkSuggestion("early mention", entity.Other, "lead mention", 0.6, suggest.SourceAI)
	late := mkSuggestion("late mention", entity.Other, "tail mention", 0.6, suggest.SourceAI)

	ranked := scorer.Rank(req, []suggest.Suggestion{late, early})

	if ranked[0].Entity.Text != "early mention" {
		t.Errorf("earlier mentions should score higher, got %q first", ranked[0].Entity.Text)
	}
}
