package entity

import (
	"sort"
	"strings"
)

// Merge folds any number of extraction batches into one set, deduping
// case-insensitively on mention text and keeping the highest-confidence
// instance of each. Confidence ties break on source (pattern over ner
// over nlp) and then type, so the same batches merge to the same slice
// in any order. Merging a merged result with its own inputs changes
// nothing.
func Merge(batches ...[]Entity) []Entity {
	best := make(map[string]Entity)
	for _, batch := range batches {
		for _, e := range batch {
			text := strings.TrimSpace(e.Text)
			if text == "" {
				continue
			}
			e.Text = text
			e.Confidence = clamp01(e.Confidence)

			key := strings.ToLower(text)
			cur, ok := best[key]
			if !ok || wins(e, cur) {
				best[key] = e
			}
		}
	}

	out := make([]Entity, 0, len(best))
	for _, e := range best {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return strings.ToLower(out[i].Text) < strings.ToLower(out[j].Text)
	})
	return out
}

var sourceRank = map[Source]int{SourcePattern: 3, SourceNER: 2, SourceNLP: 1}

// wins reports whether a beats b for the same mention text.
func wins(a, b Entity) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if sourceRank[a.Source] != sourceRank[b.Source] {
		return sourceRank[a.Source] > sourceRank[b.Source]
	}
	return a.Type < b.Type
}
