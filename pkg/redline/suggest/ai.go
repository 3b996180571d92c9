package suggest

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cognicore/redline/pkg/redline/entity"
)

// AIConfig tunes the oracle-backed producer.
type AIConfig struct {
	// MinTextLength is the minimum trimmed text length worth an oracle
	// round trip; shorter requests skip the producer entirely.
	// Default: 10
	MinTextLength int

	// MaxSuggestions caps how many candidates are requested from and
	// accepted back out of the oracle.
	// Default: 5
	MaxSuggestions int
}

// DefaultAIConfig returns the stock oracle settings.
func DefaultAIConfig() AIConfig {
	return AIConfig{
		MinTextLength:  10,
		MaxSuggestions: 5,
	}
}

// AI asks the oracle for free-form improvement candidates and keeps the
// ones that survive shape validation. Malformed candidates are dropped
// one by one; an oracle failure surfaces as an error the pipeline
// degrades to zero suggestions.
type AI struct {
	cfg    AIConfig
	oracle Oracle
	logger *zap.Logger
}

// NewAI builds the AI producer. A nil oracle produces nothing.
func NewAI(cfg AIConfig, oracle Oracle, logger *zap.Logger) *AI {
	if cfg.MinTextLength <= 0 {
		cfg.MinTextLength = DefaultAIConfig().MinTextLength
	}
	if cfg.MaxSuggestions <= 0 {
		cfg.MaxSuggestions = DefaultAIConfig().MaxSuggestions
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AI{cfg: cfg, oracle: oracle, logger: logger}
}

func (a *AI) Name() string { return string(SourceAI) }

func (a *AI) Produce(ctx context.Context, req Request, entities []entity.Entity) ([]Suggestion, error) {
	if a.oracle == nil {
		return nil, nil
	}
	text := strings.TrimSpace(req.Text)
	if len(text) < a.cfg.MinTextLength {
		return nil, nil
	}

	candidates, err := a.oracle.Suggest(ctx, req.Text, req, a.cfg.MaxSuggestions)
	if err != nil {
		return nil, fmt.Errorf("ai oracle: %w", err)
	}

	byText := make(map[string]entity.Entity, len(entities))
	for _, e := range entities {
		byText[strings.ToLower(e.Text)] = e
	}

	var out []Suggestion
	for _, c := range candidates {
		if len(out) >= a.cfg.MaxSuggestions {
			break
		}
		if !validCandidate(c) {
			a.logger.Debug("discarding malformed oracle candidate",
				zap.String("original", c.Original),
				zap.String("replacement", c.Replacement),
				zap.Float64("confidence", c.Confidence))
			continue
		}

		e, ok := byText[strings.ToLower(strings.TrimSpace(c.Original))]
		if !ok {
			// The oracle proposed a span no extractor saw; carry it as
			// an Other entity so the suggestion stays usable.
			e = entity.Entity{
				Text:       strings.TrimSpace(c.Original),
				Type:       entity.Other,
				Confidence: 0.5,
				Source:     entity.SourceNLP,
			}
		}

		reason := c.Reason
		if reason == "" {
			reason = "suggested rewrite"
		}
		s := NewSuggestion(e, strings.TrimSpace(c.Replacement), c.Confidence, SourceAI, reason)
		s.Context = ContextWindow(req.Text, e.Text)
		out = append(out, s)
	}
	return out, nil
}

// validCandidate checks the oracle candidate shape: both sides present,
// actually different, confidence usable.
func validCandidate(c Candidate) bool {
	orig := strings.TrimSpace(c.Original)
	repl := strings.TrimSpace(c.Replacement)
	if orig == "" || repl == "" {
		return false
	}
	if strings.EqualFold(orig, repl) {
		return false
	}
	return c.Confidence > 0 && c.Confidence <= 1
}
