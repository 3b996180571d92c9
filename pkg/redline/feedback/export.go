package feedback

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/redline/pkg/redline/entity"
	"github.com/cognicore/redline/pkg/redline/stats"
	"github.com/cognicore/redline/pkg/redline/suggest"
)

// ExportOptions filters which learned patterns graduate into glossary
// terms.
type ExportOptions struct {
	// MinSuccessRate a pattern must hold to be exported.
	// Default: 0.8
	MinSuccessRate float64

	// MinOccurrences a pattern must have seen.
	// Default: 3
	MinOccurrences int
}

// DefaultExportOptions returns the stock export filter.
func DefaultExportOptions() ExportOptions {
	return ExportOptions{MinSuccessRate: 0.8, MinOccurrences: 3}
}

// ExportGlossary writes the service's proven replacement patterns as
// glossary YAML readable by suggest.LoadGlossary, closing the loop from
// feedback back into the brandkit producer. Variant spellings come from
// the stored events behind each pattern; patterns with no recorded
// surface forms are skipped since they could never match. Returns the
// number of exported terms.
func (s *Service) ExportGlossary(ctx context.Context, w io.Writer, opts ExportOptions) (int, error) {
	if opts.MinSuccessRate <= 0 {
		opts.MinSuccessRate = DefaultExportOptions().MinSuccessRate
	}
	if opts.MinOccurrences <= 0 {
		opts.MinOccurrences = DefaultExportOptions().MinOccurrences
	}

	type candidate struct {
		key         pairKey
		replacement string
		rate        float64
	}

	s.mu.RLock()
	var candidates []candidate
	for key, reps := range s.patterns {
		for replacement, st := range reps {
			if st.successRate() >= opts.MinSuccessRate && st.total >= opts.MinOccurrences {
				candidates = append(candidates, candidate{key: key, replacement: replacement, rate: st.successRate()})
			}
		}
	}
	s.mu.RUnlock()

	// The same replacement can earn its keep in several domains; merge
	// into one term per canonical spelling.
	type accum struct {
		confidence float64
		entityType entity.Type
		variants   map[string]string // lowercased -> surface form
	}
	terms := make(map[string]*accum)

	for _, c := range candidates {
		a := terms[c.replacement]
		if a == nil {
			a = &accum{entityType: c.key.entityType, variants: make(map[string]string)}
			terms[c.replacement] = a
		}
		if c.rate > a.confidence {
			a.confidence = c.rate
			a.entityType = c.key.entityType
		}
		if s.store == nil {
			continue
		}
		events, err := s.store.RecentEvents(ctx, c.key.domain, string(c.key.entityType), s.cfg.HistorySize)
		if err != nil {
			return 0, fmt.Errorf("load events for %s/%s: %w", c.key.domain, c.key.entityType, err)
		}
		for _, e := range events {
			if e.Replacement != c.replacement || e.EntityText == "" {
				continue
			}
			if strings.EqualFold(e.EntityText, c.replacement) {
				continue
			}
			a.variants[strings.ToLower(e.EntityText)] = e.EntityText
		}
	}

	var out []suggest.Term
	for canonical, a := range terms {
		if len(a.variants) == 0 {
			continue
		}
		variants := make([]string, 0, len(a.variants))
		for _, v := range a.variants {
			variants = append(variants, v)
		}
		sort.Strings(variants)
		out = append(out, suggest.Term{
			Canonical:  canonical,
			Variants:   variants,
			Confidence: stats.Round3(a.confidence),
			Reason:     "learned from feedback",
			EntityType: a.entityType,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Canonical < out[j].Canonical })

	doc := struct {
		Terms []suggest.Term `yaml:"terms"`
	}{Terms: out}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return 0, err
	}
	if _, err := w.Write(data); err != nil {
		return 0, err
	}
	return len(out), nil
}
