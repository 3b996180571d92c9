package entity

import (
	"strings"
	"unicode"
)

// Tagger is the lexical extraction pass: title-case sequence detection
// for people and organizations, month+year dates, a technology keyword
// list, and capitalized noun phrases. It is deliberately shallow; deep
// recognition is the NER oracle's job. All candidates resolve through
// the canonicalizer so brand/product overrides still win.
type Tagger struct {
	canon     *Canonicalizer
	stopwords map[string]struct{}
	tech      map[string]struct{}
	orgSuffix map[string]struct{}
	months    map[string]struct{}
}

var nlpStopwords = []string{
	"the", "a", "an", "and", "or", "but", "in", "on", "at", "to",
	"for", "of", "with", "by", "from", "as", "is", "are", "was",
	"were", "be", "been", "this", "that", "these", "those", "it",
	"its", "we", "you", "they", "he", "she", "i", "our", "your",
}

var nlpTechKeywords = []string{
	"api", "sdk", "kubernetes", "docker", "javascript", "typescript",
	"python", "golang", "react", "graphql", "postgres", "mysql",
	"redis", "aws", "azure", "linux", "oauth", "json", "yaml",
	"html", "css", "http", "https", "grpc", "webhook", "cdn",
}

var nlpOrgSuffixes = []string{"inc", "corp", "ltd", "llc", "gmbh", "co"}

var nlpMonths = []string{
	"january", "february", "march", "april", "may", "june", "july",
	"august", "september", "october", "november", "december",
}

// NewTagger builds a tagger backed by the given canonicalizer. A nil
// canonicalizer gets the stock one.
func NewTagger(canon *Canonicalizer) *Tagger {
	if canon == nil {
		canon = NewCanonicalizer()
	}
	g := &Tagger{
		canon:     canon,
		stopwords: make(map[string]struct{}),
		tech:      make(map[string]struct{}),
		orgSuffix: make(map[string]struct{}),
		months:    make(map[string]struct{}),
	}
	for _, w := range nlpStopwords {
		g.stopwords[w] = struct{}{}
	}
	for _, w := range nlpTechKeywords {
		g.tech[w] = struct{}{}
	}
	for _, w := range nlpOrgSuffixes {
		g.orgSuffix[w] = struct{}{}
	}
	for _, w := range nlpMonths {
		g.months[w] = struct{}{}
	}
	return g
}

// word is a token with its original casing plus sentence position info.
type word struct {
	text          string
	sentenceStart bool
}

// Extract runs the lexical pass over the text.
func (g *Tagger) Extract(text string) []Entity {
	words := splitWords(text)
	if len(words) == 0 {
		return nil
	}

	var out []Entity
	emit := func(mention, label string, tokens int) {
		conf := nlpConfidence(tokens)
		if e, ok := g.canon.Resolve(Span{Text: mention, Label: label, Confidence: conf}, SourceNLP); ok {
			out = append(out, e)
		}
	}

	i := 0
	for i < len(words) {
		w := words[i]
		lower := strings.ToLower(w.text)

		if _, ok := g.tech[lower]; ok {
			emit(w.text, "technology", 1)
			i++
			continue
		}

		if _, ok := g.months[lower]; ok && isTitleCase(w.text) && i+1 < len(words) && isNumeric(words[i+1].text) {
			emit(w.text+" "+words[i+1].text, "date", 2)
			i += 2
			continue
		}

		if isTitleCase(w.text) && !g.isStopword(lower) {
			run := []string{w.text}
			j := i + 1
			for j < len(words) && isTitleCase(words[j].text) && !g.isStopword(strings.ToLower(words[j].text)) {
				run = append(run, words[j].text)
				j++
			}

			mention := strings.Join(run, " ")
			switch {
			case g.endsWithOrgSuffix(run):
				emit(mention, "organization", len(run))
			case len(run) >= 2 && len(run) <= 3:
				emit(mention, "person", len(run))
			case len(run) == 1 && !w.sentenceStart && len(w.text) > 2:
				// Lone mid-sentence capitalized token: keep as a noun
				// phrase so overrides can still reclassify it.
				emit(mention, "noun_phrase", 1)
			}
			i = j
			continue
		}

		i++
	}
	return out
}

func (g *Tagger) isStopword(lower string) bool {
	_, ok := g.stopwords[lower]
	return ok
}

func (g *Tagger) endsWithOrgSuffix(run []string) bool {
	if len(run) < 2 {
		return false
	}
	last := strings.ToLower(strings.TrimRight(run[len(run)-1], "."))
	_, ok := g.orgSuffix[last]
	return ok
}

// nlpConfidence scales with mention length in tokens, capped at 1.
func nlpConfidence(tokens int) float64 {
	return clamp01(0.3 + 0.4*float64(tokens)/3.0)
}

// splitWords tokenizes preserving case and marking sentence starts.
// Token characters are letters, digits and apostrophes; everything else
// separates, with . ! ? and newlines opening a new sentence.
func splitWords(text string) []word {
	var words []word
	sentenceStart := true
	var cur strings.Builder

	flush := func() {
		if cur.Len() == 0 {
			return
		}
		tok := strings.Trim(cur.String(), "'")
		cur.Reset()
		if tok == "" {
			return
		}
		words = append(words, word{text: tok, sentenceStart: sentenceStart})
		sentenceStart = false
	}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
			cur.WriteRune(r)
			continue
		}
		flush()
		if strings.ContainsRune(".!?\n", r) {
			sentenceStart = true
		}
	}
	flush()

	return words
}

func isTitleCase(s string) bool {
	for i, r := range s {
		if i == 0 {
			return unicode.IsUpper(r)
		}
	}
	return false
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
