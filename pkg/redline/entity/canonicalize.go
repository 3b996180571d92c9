package entity

import "strings"

// Canonicalizer resolves raw extraction labels into the canonical type
// vocabulary. Resolution order: lexical overrides for well-known brand
// and product names, then per-type context patterns over the mention
// text, then the raw-label table, then the Other fallback.
type Canonicalizer struct {
	brandOverrides   map[string]struct{}
	productOverrides map[string]struct{}
	labelTable       map[string]Type
}

// Confidence levels reported by each resolution tier.
const (
	overrideConfidence = 0.95
	patternConfidence  = 0.85
	fallbackConfidence = 0.30
)

// NewCanonicalizer builds a canonicalizer with the stock override lists
// and label table.
func NewCanonicalizer() *Canonicalizer {
	c := &Canonicalizer{
		brandOverrides:   make(map[string]struct{}),
		productOverrides: make(map[string]struct{}),
		labelTable:       make(map[string]Type),
	}
	for _, b := range defaultBrandNames {
		c.brandOverrides[b] = struct{}{}
	}
	for _, p := range defaultProductNames {
		c.productOverrides[p] = struct{}{}
	}
	for label, t := range defaultLabelTable {
		c.labelTable[label] = t
	}
	return c
}

// Well-known names that win over whatever label an extractor assigned.
var defaultBrandNames = []string{
	"gemini", "contentstack", "google", "microsoft", "apple",
	"amazon", "netflix", "spotify", "adobe", "salesforce",
}

var defaultProductNames = []string{
	"chatgpt", "claude", "photoshop", "illustrator", "premiere",
	"excel", "word", "powerpoint", "teams", "slack", "zoom", "figma",
}

// defaultLabelTable maps NER-style raw labels to canonical types.
// Labels with no useful canonical home (cardinals, events, works of
// art) map to Other and keep the extractor's confidence.
var defaultLabelTable = map[string]Type{
	"person":       Person,
	"per":          Person,
	"org":          Organization,
	"organization": Organization,
	"gpe":          Location,
	"loc":          Location,
	"location":     Location,
	"product":      Product,
	"brand":        Brand,
	"tech":         Technology,
	"technology":   Technology,
	"date":         Date,
	"time":         Time,
	"email":        Email,
	"url":          URL,
	"uri":          URL,
	"version":      Version,
	"money":        Currency,
	"currency":     Currency,
	"percent":      Percentage,
	"percentage":   Percentage,
	"event":        Other,
	"work_of_art":  Other,
	"law":          Other,
	"language":     Other,
	"norp":         Other,
	"fac":          Other,
	"cardinal":     Other,
	"ordinal":      Other,
	"quantity":     Other,
}

// AddBrandOverride registers an extra brand name (lowercased).
func (c *Canonicalizer) AddBrandOverride(name string) {
	c.brandOverrides[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
}

// AddProductOverride registers an extra product name (lowercased).
func (c *Canonicalizer) AddProductOverride(name string) {
	c.productOverrides[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
}

// Canonicalize resolves a raw label and mention text to a canonical
// type and confidence. rawConfidence is the extractor's own confidence
// and survives only a label-table resolution; overrides and pattern
// hits report their tier's fixed confidence.
func (c *Canonicalizer) Canonicalize(rawLabel, text string, rawConfidence float64) (Type, float64) {
	lower := strings.ToLower(strings.TrimSpace(text))

	if _, ok := c.brandOverrides[lower]; ok {
		return Brand, overrideConfidence
	}
	if _, ok := c.productOverrides[lower]; ok {
		return Product, overrideConfidence
	}

	if t, ok := matchContextPattern(text); ok {
		return t, patternConfidence
	}

	label := strings.ToLower(strings.TrimSpace(rawLabel))
	if t, ok := c.labelTable[label]; ok {
		return t, clamp01(rawConfidence)
	}

	return Other, fallbackConfidence
}

// Resolve canonicalizes a raw span into an Entity. Spans that are empty
// after trimming resolve to a zero Entity and ok=false.
func (c *Canonicalizer) Resolve(s Span, source Source) (Entity, bool) {
	text := strings.TrimSpace(s.Text)
	if text == "" {
		return Entity{}, false
	}
	t, conf := c.Canonicalize(s.Label, text, s.Confidence)
	return Entity{
		Text:          text,
		Type:          t,
		Confidence:    conf,
		Source:        source,
		OriginalLabel: s.Label,
	}, true
}

// ResolveAll canonicalizes a batch of spans, dropping empties.
func (c *Canonicalizer) ResolveAll(spans []Span, source Source) []Entity {
	out := make([]Entity, 0, len(spans))
	for _, s := range spans {
		if e, ok := c.Resolve(s, source); ok {
			out = append(out, e)
		}
	}
	return out
}
