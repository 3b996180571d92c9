package suggest

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cognicore/redline/pkg/redline/entity"
)

// ContextualConfig tunes the rule-driven producer.
type ContextualConfig struct {
	// MaxAlternatives caps how many alternative replacements are
	// requested for the caller's find/replace rule.
	// Default: 3
	MaxAlternatives int

	// Window is the rune radius around the rule's find text handed to
	// the oracle as context.
	// Default: 120
	Window int
}

// DefaultContextualConfig returns the stock settings.
func DefaultContextualConfig() ContextualConfig {
	return ContextualConfig{MaxAlternatives: 3, Window: 120}
}

// Contextual proposes alternatives to the caller's existing
// find/replace rule. Without a rule on the request it produces nothing.
type Contextual struct {
	cfg    ContextualConfig
	oracle Oracle
	logger *zap.Logger
}

// NewContextual builds the contextual producer. A nil oracle produces
// nothing.
func NewContextual(cfg ContextualConfig, oracle Oracle, logger *zap.Logger) *Contextual {
	if cfg.MaxAlternatives <= 0 {
		cfg.MaxAlternatives = DefaultContextualConfig().MaxAlternatives
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultContextualConfig().Window
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Contextual{cfg: cfg, oracle: oracle, logger: logger}
}

func (c *Contextual) Name() string { return string(SourceContextual) }

func (c *Contextual) Produce(ctx context.Context, req Request, _ []entity.Entity) ([]Suggestion, error) {
	if c.oracle == nil || req.Rule == nil {
		return nil, nil
	}
	rule := *req.Rule
	if strings.TrimSpace(rule.Find) == "" {
		return nil, nil
	}

	window := ruleWindow(req.Text, rule.Find, c.cfg.Window)
	candidates, err := c.oracle.Alternatives(ctx, rule, window, c.cfg.MaxAlternatives)
	if err != nil {
		return nil, fmt.Errorf("contextual oracle: %w", err)
	}

	e := entity.Entity{
		Text:       rule.Find,
		Type:       entity.Other,
		Confidence: 0.5,
		Source:     entity.SourceNLP,
	}

	var out []Suggestion
	for _, cand := range candidates {
		if len(out) >= c.cfg.MaxAlternatives {
			break
		}
		repl := strings.TrimSpace(cand.Replacement)
		if repl == "" || strings.EqualFold(repl, rule.Replace) || strings.EqualFold(repl, rule.Find) {
			c.logger.Debug("discarding contextual alternative",
				zap.String("replacement", cand.Replacement))
			continue
		}
		reason := cand.Reason
		if reason == "" {
			reason = fmt.Sprintf("alternative to replacing %q with %q", rule.Find, rule.Replace)
		}
		s := NewSuggestion(e, repl, cand.Confidence, SourceContextual, reason)
		s.Context = window
		out = append(out, s)
	}
	return out, nil
}

// ruleWindow cuts a rune window around the first occurrence of the
// rule's find text; when the text doesn't contain it, the head of the
// text serves as context.
func ruleWindow(text, find string, radius int) string {
	idx := strings.Index(strings.ToLower(text), strings.ToLower(find))
	runes := []rune(text)
	if idx < 0 {
		if len(runes) <= 2*radius {
			return text
		}
		return string(runes[:2*radius])
	}
	start := len([]rune(text[:idx]))
	end := start + len([]rune(find))

	lo := start - radius
	if lo < 0 {
		lo = 0
	}
	hi := end + radius
	if hi > len(runes) {
		hi = len(runes)
	}
	return string(runes[lo:hi])
}
