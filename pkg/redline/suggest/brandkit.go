package suggest

import (
	"context"
	"strings"

	"github.com/cognicore/redline/pkg/redline/entity"
)

// Brandkit turns glossary hits into replacement suggestions. Matches
// are lexical, so this producer ignores the extracted entity set and
// scans the text directly.
type Brandkit struct {
	glossary *Glossary
}

// NewBrandkit builds the producer. A nil glossary produces nothing.
func NewBrandkit(glossary *Glossary) *Brandkit {
	return &Brandkit{glossary: glossary}
}

func (b *Brandkit) Name() string { return string(SourceBrandkit) }

func (b *Brandkit) Produce(_ context.Context, req Request, _ []entity.Entity) ([]Suggestion, error) {
	if b.glossary == nil {
		return nil, nil
	}

	preferred := make(map[string]struct{}, len(req.BrandTerms))
	for _, t := range req.BrandTerms {
		preferred[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}

	var out []Suggestion
	for _, m := range b.glossary.Scan(req.Text) {
		conf := m.Term.Confidence
		// Terms the caller explicitly prefers rank a notch higher.
		if _, ok := preferred[strings.ToLower(m.Term.Canonical)]; ok {
			conf = clamp01(conf + 0.05)
		}

		e := entity.Entity{
			Text:          m.Surface,
			Type:          m.Term.EntityType,
			Confidence:    m.Term.Confidence,
			Source:        entity.SourcePattern,
			OriginalLabel: "glossary",
		}
		s := NewSuggestion(e, m.Term.Canonical, conf, SourceBrandkit, m.Term.Reason)
		s.Context = ContextWindow(req.Text, m.Surface)
		out = append(out, s)
	}
	return out, nil
}
