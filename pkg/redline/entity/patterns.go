package entity

import (
	"regexp"
	"strings"
)

// patternDef is one entry in the regex bank: the canonical type it
// recognizes, the unanchored form used for whole-text extraction, the
// anchored form used by the canonicalizer's context tier, and the fixed
// confidence reported by extraction hits.
type patternDef struct {
	typ        Type
	find       *regexp.Regexp
	exact      *regexp.Regexp
	confidence float64
}

func def(t Type, expr string, confidence float64) patternDef {
	return patternDef{
		typ:        t,
		find:       regexp.MustCompile(expr),
		exact:      regexp.MustCompile(`^(?:` + expr + `)$`),
		confidence: confidence,
	}
}

// patternBank is evaluated in order; for the canonicalizer the first
// anchored match wins.
var patternBank = []patternDef{
	def(Email, `[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`, 0.95),
	def(URL, `https?://[^\s<>"']+`, 0.95),
	def(Version, `\bv?\d+\.\d+(?:\.\d+)?(?:-[0-9A-Za-z.]+)?\b`, 0.90),
	def(Percentage, `\b\d+(?:\.\d+)?\s?(?:%|percent\b)`, 0.85),
	def(Currency, `[$€£¥]\s?\d+(?:,\d{3})*(?:\.\d+)?|\b\d+(?:\.\d+)?\s?(?:USD|EUR|GBP|dollars?|euros?)\b`, 0.85),
	def(Date, `\b\d{4}-\d{2}-\d{2}\b`, 0.80),
	def(Date, `\b\d{1,2}/\d{1,2}/\d{2,4}\b`, 0.80),
	def(Date, `\b(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2}(?:,\s?\d{4})?\b`, 0.80),
	def(Time, `\b\d{1,2}:\d{2}(?::\d{2})?\s?(?:[AaPp][Mm])?\b`, 0.80),
}

// matchContextPattern reports the canonical type whose anchored pattern
// the mention text matches, if any. Bank order decides when more than
// one pattern would match.
func matchContextPattern(text string) (Type, bool) {
	t := strings.TrimSpace(text)
	if t == "" {
		return Other, false
	}
	for _, d := range patternBank {
		if d.exact.MatchString(t) {
			return d.typ, true
		}
	}
	return Other, false
}

// ExtractPatterns runs the full regex bank over the text and returns
// every hit as a canonicalized entity with Source pattern. Overlapping
// hits of different types are all reported; the merge step dedupes
// identical surface forms.
func ExtractPatterns(text string) []Entity {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var out []Entity
	seen := make(map[string]struct{})
	for _, d := range patternBank {
		for _, m := range d.find.FindAllString(text, -1) {
			m = strings.TrimSpace(m)
			if d.typ == URL {
				m = strings.TrimRight(m, ".,;:!?)")
			}
			if m == "" {
				continue
			}
			key := strings.ToLower(m) + "\x00" + string(d.typ)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, Entity{
				Text:          m,
				Type:          d.typ,
				Confidence:    d.confidence,
				Source:        SourcePattern,
				OriginalLabel: string(d.typ),
			})
		}
	}
	return out
}
