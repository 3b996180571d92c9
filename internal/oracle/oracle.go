// Package oracle adapts external generative-AI backends to the
// suggest.Oracle interface. Two adapters exist: the Anthropic Messages
// API and an OpenAI-compatible chat-completions endpoint for
// self-hosted gateways. Both demand strict JSON from the model and
// refuse anything that does not decode.
package oracle

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/cognicore/redline/pkg/redline/suggest"
)

const systemPrompt = `You are a copy-editing assistant for CMS content. You propose precise textual replacements: brand spellings, outdated versions, insecure URLs, stale contact details, terminology fixes. Respond ONLY with a JSON array, no prose, where each element is {"original": string, "replacement": string, "confidence": number between 0 and 1, "reason": string}. Propose nothing when the text needs no changes: an empty array is a valid answer.`

func suggestPrompt(text string, req suggest.Request, max int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Propose at most %d replacement suggestions for this content", max)
	if req.ContentType != "" {
		fmt.Fprintf(&b, " (content type: %s)", req.ContentType)
	}
	b.WriteString(".\n")
	if len(req.BrandTerms) > 0 {
		fmt.Fprintf(&b, "Preferred brand terms: %s\n", strings.Join(req.BrandTerms, ", "))
	}
	fmt.Fprintf(&b, "\nContent:\n%s\n", text)
	return b.String()
}

func alternativesPrompt(rule suggest.ReplaceRule, window string, max int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "An editor replaces %q with %q. Propose at most %d alternative replacements for %q that stay consistent with that rule and with the surrounding text.\n",
		rule.Find, rule.Replace, max, rule.Find)
	if window != "" {
		fmt.Fprintf(&b, "\nSurrounding text:\n%s\n", window)
	}
	fmt.Fprintf(&b, "\nUse %q as the original in every element.\n", rule.Find)
	return b.String()
}

// parseCandidates decodes the model's reply into candidates. Markdown
// fences are stripped first; if the reply still is not a bare array the
// outermost bracketed slice is tried before giving up.
func parseCandidates(raw string) ([]suggest.Candidate, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var candidates []suggest.Candidate
	if err := json.Unmarshal([]byte(cleaned), &candidates); err == nil {
		return candidates, nil
	}

	start := strings.Index(cleaned, "[")
	end := strings.LastIndex(cleaned, "]")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), &candidates); err == nil {
			return candidates, nil
		}
	}
	return nil, fmt.Errorf("oracle reply is not a JSON candidate array")
}

// newBreaker builds the circuit breaker shared by both adapters: trip
// at a 60% failure ratio over at least 10 requests, retry after a
// minute.
func newBreaker(name string, log *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("oracle breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}
