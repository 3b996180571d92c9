package suggest

import (
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/redline/pkg/redline/entity"
)

// Glossary stores the brandkit vocabulary: canonical spellings plus the
// variants editors actually type.
//
// Design principles:
// - Bidirectional: normalize any variant to canonical, or expand a
//   canonical to all its variants
// - Explainable: every match carries the term's reason
// - Curated: loaded from YAML, optionally extended from learned
//   replacement patterns
type Glossary struct {
	// canonical key -> term
	terms map[string]Term

	// normalized variant -> canonical key
	reverseIndex map[string]string

	// longest variant length in words, for the greedy scanner
	maxWords int
}

// Term is one glossary entry.
type Term struct {
	// Canonical is the spelling the brand guide wants.
	Canonical string `yaml:"canonical"`
	// Variants are the spellings to rewrite, matched case-insensitively
	// and ignoring punctuation between words.
	Variants []string `yaml:"variants"`
	// Confidence of suggestions from this term. Default: 0.85
	Confidence float64 `yaml:"confidence,omitempty"`
	// Reason shown next to suggestions. Default: "brand style guide"
	Reason string `yaml:"reason,omitempty"`
	// EntityType the canonical belongs to. Default: brand
	EntityType entity.Type `yaml:"entityType,omitempty"`
}

// NewGlossary creates an empty glossary.
func NewGlossary() *Glossary {
	return &Glossary{
		terms:        make(map[string]Term),
		reverseIndex: make(map[string]string),
		maxWords:     1,
	}
}

// LoadGlossary loads terms from a YAML file.
//
// Expected format:
//
//	terms:
//	  - canonical: Contentstack
//	    variants: [contentstack, content stack, Content-Stack]
//	    confidence: 0.9
//	    reason: brand style guide
//	    entityType: brand
func LoadGlossary(path string) (*Glossary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Terms []Term `yaml:"terms"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	g := NewGlossary()
	for _, t := range doc.Terms {
		g.AddTerm(t)
	}
	return g, nil
}

// normKey lowercases and reduces a phrase to its words joined by single
// spaces, the same form the scanner builds, so "Content-Stack" and
// "content stack" share a key.
func normKey(s string) string {
	words := scanWords(strings.ToLower(s))
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = w.text
	}
	return strings.Join(parts, " ")
}

// AddTerm registers a term. Re-adding a canonical replaces its old
// variant set; stale reverse index entries are cleaned up first.
func (g *Glossary) AddTerm(t Term) {
	t.Canonical = strings.TrimSpace(t.Canonical)
	if t.Canonical == "" {
		return
	}
	if t.Confidence <= 0 || t.Confidence > 1 {
		t.Confidence = 0.85
	}
	if t.Reason == "" {
		t.Reason = "brand style guide"
	}
	if t.EntityType == "" {
		t.EntityType = entity.Brand
	} else {
		t.EntityType = entity.ParseType(string(t.EntityType))
	}

	key := normKey(t.Canonical)
	if key == "" {
		return
	}
	if old, exists := g.terms[key]; exists {
		for _, v := range old.Variants {
			delete(g.reverseIndex, normKey(v))
		}
	}

	// The canonical is always matchable itself so casing drift like
	// "contentstack" -> "Contentstack" gets caught.
	seen := map[string]bool{key: true}
	variants := []string{t.Canonical}
	g.addVariant(key, key)

	for _, v := range t.Variants {
		norm := normKey(v)
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		variants = append(variants, strings.TrimSpace(v))
		g.addVariant(norm, key)
	}

	t.Variants = variants
	g.terms[key] = t
}

func (g *Glossary) addVariant(norm, canonical string) {
	g.reverseIndex[norm] = canonical
	if n := len(strings.Fields(norm)); n > g.maxWords {
		g.maxWords = n
	}
}

// Lookup returns the term a variant belongs to.
func (g *Glossary) Lookup(variant string) (Term, bool) {
	canonical, ok := g.reverseIndex[normKey(variant)]
	if !ok {
		return Term{}, false
	}
	t, ok := g.terms[canonical]
	return t, ok
}

// Len reports the number of canonical terms.
func (g *Glossary) Len() int { return len(g.terms) }

// Terms returns every registered term.
func (g *Glossary) Terms() []Term {
	out := make([]Term, 0, len(g.terms))
	for _, t := range g.terms {
		out = append(out, t)
	}
	return out
}

// Match is one glossary hit in a text.
type Match struct {
	Term    Term
	Surface string // original spelling found in the text
	Start   int    // byte offset of the surface form
}

// Scan finds glossary hits with greedy longest-match over the word
// sequence, case-insensitively and word-boundary aligned. Hits whose
// surface form already equals the canonical spelling are not reported.
func (g *Glossary) Scan(text string) []Match {
	words := scanWords(text)
	if len(words) == 0 || len(g.reverseIndex) == 0 {
		return nil
	}

	var out []Match
	i := 0
	for i < len(words) {
		advance := 1
		maxPhrase := g.maxWords
		if remaining := len(words) - i; maxPhrase > remaining {
			maxPhrase = remaining
		}
		for n := maxPhrase; n >= 1; n-- {
			parts := make([]string, 0, n)
			for _, w := range words[i : i+n] {
				parts = append(parts, strings.ToLower(w.text))
			}
			canonical, ok := g.reverseIndex[strings.Join(parts, " ")]
			if !ok {
				continue
			}
			term := g.terms[canonical]
			surface := text[words[i].start:words[i+n-1].end]
			if surface != term.Canonical {
				out = append(out, Match{Term: term, Surface: surface, Start: words[i].start})
			}
			advance = n
			break
		}
		i += advance
	}
	return out
}

// scanWord is a token with byte offsets into the original text.
type scanWord struct {
	text  string
	start int
	end   int
}

func scanWords(text string) []scanWord {
	var words []scanWord
	start := -1
	for i, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			words = append(words, scanWord{text: text[start:i], start: start, end: i})
			start = -1
		}
	}
	if start >= 0 {
		words = append(words, scanWord{text: text[start:], start: start, end: len(text)})
	}
	return words
}
