package suggest

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cognicore/redline/pkg/redline/entity"
)

// HeuristicConfig tunes the pure rewrite rules.
type HeuristicConfig struct {
	// ContactEmail is the address suggested in place of ad-hoc contact
	// addresses found in the text.
	// Default: contact@company.com
	ContactEmail string
}

// DefaultHeuristicConfig returns the stock rule settings.
func DefaultHeuristicConfig() HeuristicConfig {
	return HeuristicConfig{ContactEmail: "contact@company.com"}
}

// Heuristic is the no-I/O producer: fixed-confidence rewrites for
// version, URL and email entities. Rule confidences sit in the
// 0.5-0.7 band, below every oracle-backed producer.
type Heuristic struct {
	cfg HeuristicConfig
}

// NewHeuristic builds the heuristic producer.
func NewHeuristic(cfg HeuristicConfig) *Heuristic {
	if cfg.ContactEmail == "" {
		cfg.ContactEmail = DefaultHeuristicConfig().ContactEmail
	}
	return &Heuristic{cfg: cfg}
}

func (h *Heuristic) Name() string { return string(SourceHeuristic) }

// Produce applies every rule to every matching entity. It never fails.
func (h *Heuristic) Produce(_ context.Context, req Request, entities []entity.Entity) ([]Suggestion, error) {
	var out []Suggestion
	for _, e := range entities {
		switch e.Type {
		case entity.Version:
			if next, ok := bumpMinor(e.Text); ok {
				s := NewSuggestion(e, next, 0.5, SourceHeuristic, "newer minor version available")
				s.Context = ContextWindow(req.Text, e.Text)
				out = append(out, s)
			}
		case entity.URL:
			if strings.HasPrefix(e.Text, "http://") {
				s := NewSuggestion(e, "https://"+strings.TrimPrefix(e.Text, "http://"), 0.7,
					SourceHeuristic, "prefer https over http")
				s.Context = ContextWindow(req.Text, e.Text)
				out = append(out, s)
			}
		case entity.Email:
			if !strings.EqualFold(e.Text, h.cfg.ContactEmail) {
				s := NewSuggestion(e, h.cfg.ContactEmail, 0.6,
					SourceHeuristic, "use the standard contact address")
				s.Context = ContextWindow(req.Text, e.Text)
				out = append(out, s)
			}
		}
	}
	return out, nil
}

var versionRe = regexp.MustCompile(`^(v?)(\d+)\.(\d+)(?:\.(\d+))?$`)

// bumpMinor increments the minor component and zeroes the patch.
// Prerelease versions are left alone.
func bumpMinor(version string) (string, bool) {
	m := versionRe.FindStringSubmatch(strings.TrimSpace(version))
	if m == nil {
		return "", false
	}
	minor, err := strconv.Atoi(m[3])
	if err != nil {
		return "", false
	}
	next := fmt.Sprintf("%s%s.%d", m[1], m[2], minor+1)
	if m[4] != "" {
		next += ".0"
	}
	return next, true
}
