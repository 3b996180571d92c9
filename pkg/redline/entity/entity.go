// Package entity defines the canonical entity vocabulary and the three
// extraction passes (pattern, lexical NLP, external NER) whose merged
// output feeds the suggestion producers.
package entity

import (
	"context"
	"strings"
)

// Type is the canonical entity type. The set is closed: every raw label
// from any extraction pass resolves to exactly one of these values.
type Type string

const (
	Person       Type = "person"
	Organization Type = "organization"
	Location     Type = "location"
	Product      Type = "product"
	Brand        Type = "brand"
	Technology   Type = "technology"
	Date         Type = "date"
	Time         Type = "time"
	Email        Type = "email"
	URL          Type = "url"
	Version      Type = "version"
	Currency     Type = "currency"
	Percentage   Type = "percentage"
	Other        Type = "other"
)

// Types lists every canonical type in declaration order.
func Types() []Type {
	return []Type{
		Person, Organization, Location, Product, Brand, Technology,
		Date, Time, Email, URL, Version, Currency, Percentage, Other,
	}
}

// ParseType resolves a free-form string to a canonical type. Unknown
// strings resolve to Other.
func ParseType(s string) Type {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Types() {
		if t == known {
			return known
		}
	}
	return Other
}

// Source records which extraction pass produced an entity.
type Source string

const (
	SourcePattern Source = "pattern"
	SourceNLP     Source = "nlp"
	SourceNER     Source = "ner"
)

// Entity is one canonicalized mention found in the analyzed text.
type Entity struct {
	Text          string  `json:"text"`
	Type          Type    `json:"type"`
	Confidence    float64 `json:"confidence"`
	Source        Source  `json:"source"`
	OriginalLabel string  `json:"originalLabel,omitempty"`
}

// Span is a raw mention as reported by an external NER service, before
// canonicalization.
type Span struct {
	Text       string  `json:"text"`
	Label      string  `json:"label"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
}

// Oracle extracts raw spans from text using an external NER service.
// Implementations live outside this package; a nil oracle simply drops
// the NER pass from extraction.
type Oracle interface {
	Extract(ctx context.Context, text string) ([]Span, error)
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
