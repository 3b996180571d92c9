// Package suggest defines the suggestion model and the four producers:
// heuristic rewrite rules, the AI oracle, the brandkit glossary and the
// rule-driven contextual producer. Producers are independent; a failing
// producer contributes zero suggestions and never fails the request.
package suggest

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/cognicore/redline/pkg/redline/entity"
	"github.com/cognicore/redline/pkg/redline/internalerr"
)

// Source identifies which producer created a suggestion. The set is
// closed; scoring weights and per-source caps key off it.
type Source string

const (
	SourceHeuristic  Source = "heuristic"
	SourceAI         Source = "ai"
	SourceBrandkit   Source = "brandkit"
	SourceContextual Source = "contextual"
)

// Sources lists every producer source.
func Sources() []Source {
	return []Source{SourceHeuristic, SourceAI, SourceBrandkit, SourceContextual}
}

// ParseSource resolves a string to a known source.
func ParseSource(s string) (Source, error) {
	src := Source(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Sources() {
		if src == known {
			return known, nil
		}
	}
	return "", fmt.Errorf("%w: unknown suggestion source %q", internalerr.ErrInvalidInput, s)
}

// Suggestion is one proposed replacement. Producers fill the base
// fields; the domain stage stamps Domain and DomainAdjustedConfidence;
// the ranking stage stamps Relevance, AutoApply and Metrics. Nothing
// else mutates a suggestion after creation.
type Suggestion struct {
	ID          string        `json:"id"`
	Entity      entity.Entity `json:"entity"`
	Replacement string        `json:"replacement"`
	Confidence  float64       `json:"confidence"`
	Source      Source        `json:"source"`
	Reason      string        `json:"reason"`
	Context     string        `json:"context,omitempty"`

	Domain                   string  `json:"domain,omitempty"`
	DomainAdjustedConfidence float64 `json:"domainAdjustedConfidence,omitempty"`

	Relevance float64  `json:"relevance,omitempty"`
	AutoApply bool     `json:"autoApply,omitempty"`
	Metrics   *Metrics `json:"metrics,omitempty"`
}

// Metrics is the scoring breakdown attached to a ranked suggestion,
// enough for a UI to render the rationale behind the ordering.
type Metrics struct {
	BaseConfidence   float64 `json:"baseConfidence"`
	SourceWeight     float64 `json:"sourceWeight"`
	TextRelevance    float64 `json:"textRelevance"`
	EntityWeight     float64 `json:"entityWeight"`
	ContextAlignment float64 `json:"contextAlignment"`
	Multiplier       float64 `json:"multiplier"`
	Threshold        float64 `json:"threshold"`
}

// Request carries the text under edit plus the editorial context the
// CMS knows about it.
type Request struct {
	Text        string            `json:"text"`
	ContentType string            `json:"contentType,omitempty"`
	Rule        *ReplaceRule      `json:"rule,omitempty"`
	BrandTerms  []string          `json:"brandTerms,omitempty"`
	UserSegment string            `json:"userSegment,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ReplaceRule is the caller's existing find/replace rule, when editing
// happens in the context of one.
type ReplaceRule struct {
	Find    string `json:"find"`
	Replace string `json:"replace"`
}

// Fingerprint digests the request into a stable cache key: the text
// (or its first prefixRunes runes when prefixRunes > 0) plus every
// context field, with metadata keys sorted so identical requests always
// digest alike.
func (r Request) Fingerprint(prefixRunes int) string {
	text := r.Text
	if prefixRunes > 0 {
		if runes := []rune(text); len(runes) > prefixRunes {
			text = string(runes[:prefixRunes])
		}
	}

	h := sha256.New()
	write := func(parts ...string) {
		for _, p := range parts {
			h.Write([]byte(p))
			h.Write([]byte{0})
		}
	}
	write(text, r.ContentType, r.UserSegment)
	if r.Rule != nil {
		write(r.Rule.Find, r.Rule.Replace)
	}
	write(r.BrandTerms...)

	keys := make([]string, 0, len(r.Metadata))
	for k := range r.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		write(k, r.Metadata[k])
	}

	return hex.EncodeToString(h.Sum(nil))
}

// Producer generates suggestions for a request given the entities
// already extracted from its text.
type Producer interface {
	Name() string
	Produce(ctx context.Context, req Request, entities []entity.Entity) ([]Suggestion, error)
}

// Candidate is a raw oracle proposal before validation and entity
// matching.
type Candidate struct {
	Original    string  `json:"original"`
	Replacement string  `json:"replacement"`
	Confidence  float64 `json:"confidence"`
	Reason      string  `json:"reason"`
}

// Oracle is the AI backend used by the ai and contextual producers.
type Oracle interface {
	// Suggest proposes up to max replacement candidates for the text.
	Suggest(ctx context.Context, text string, req Request, max int) ([]Candidate, error)
	// Alternatives proposes up to max alternative replacements that
	// stay consistent with an existing find/replace rule.
	Alternatives(ctx context.Context, rule ReplaceRule, window string, max int) ([]Candidate, error)
}

// idGen hands out monotonic ULIDs. MonotonicEntropy is not safe for
// concurrent readers, so a mutex serializes producers.
type idGen struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

var ids = &idGen{entropy: ulid.Monotonic(rand.Reader, 0)}

func (g *idGen) next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Now(), g.entropy).String()
}

// NewSuggestion assembles a suggestion with a fresh ID and clamped
// confidence. All producers construct through here.
func NewSuggestion(e entity.Entity, replacement string, confidence float64, source Source, reason string) Suggestion {
	return Suggestion{
		ID:          ids.next(),
		Entity:      e,
		Replacement: replacement,
		Confidence:  clamp01(confidence),
		Source:      source,
		Reason:      reason,
	}
}

// ContextWindow cuts a ±40 rune window around the first occurrence of
// the mention in the text, for display next to the suggestion.
func ContextWindow(text, mention string) string {
	idx := strings.Index(strings.ToLower(text), strings.ToLower(mention))
	if idx < 0 {
		return ""
	}
	runes := []rune(text)
	// Convert the byte offset to a rune offset.
	start := len([]rune(text[:idx]))
	end := start + len([]rune(mention))

	lo := start - 40
	if lo < 0 {
		lo = 0
	}
	hi := end + 40
	if hi > len(runes) {
		hi = len(runes)
	}
	return string(runes[lo:hi])
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
