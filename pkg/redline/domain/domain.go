// Package domain detects which industry a piece of content belongs to
// and adjusts suggestion confidence with what the feedback history says
// about that industry. Detection is keyword driven; the interesting
// state (patterns, outcomes) is owned by the feedback service and read
// here through PatternSource.
package domain

import (
	"time"

	"github.com/cognicore/redline/pkg/redline/entity"
)

// Canonical domains, in priority order. When a text matches several,
// the earlier one wins.
const (
	Healthcare = "healthcare"
	Finance    = "finance"
	Legal      = "legal"
	Technology = "technology"
	Ecommerce  = "ecommerce"
	General    = "general"
)

// PriorityOrder lists the canonical domains from most to least
// sensitive. General is the absence of a match, not a member.
func PriorityOrder() []string {
	return []string{Healthcare, Finance, Legal, Technology, Ecommerce}
}

// DefaultBaseThresholds returns the stock auto-apply threshold per
// domain. Sensitive industries sit high so almost nothing auto-applies
// without a feedback record backing it.
func DefaultBaseThresholds() map[string]float64 {
	return map[string]float64{
		Healthcare: 0.90,
		Finance:    0.85,
		Legal:      0.80,
		Technology: 0.60,
		Ecommerce:  0.50,
		General:    0.40,
	}
}

// BaseThreshold returns the stock threshold for a domain, falling back
// to the general default for unknown names.
func BaseThreshold(domain string) float64 {
	if t, ok := DefaultBaseThresholds()[domain]; ok {
		return t
	}
	return DefaultBaseThresholds()[General]
}

// Context is a detection result.
type Context struct {
	Domain     string   `json:"domain"`
	Confidence float64  `json:"confidence"`
	Signals    []string `json:"signals,omitempty"`
}

// Pattern is a replacement that has worked before in a domain. Patterns
// are created and updated by the feedback service; the adjuster only
// reads them.
type Pattern struct {
	Domain      string      `json:"domain"`
	EntityType  entity.Type `json:"entityType"`
	Replacement string      `json:"replacement"`
	SuccessRate float64     `json:"successRate"`
	Occurrences int         `json:"occurrences"`
	LastSeen    time.Time   `json:"lastSeen"`
}

// PatternSource exposes the feedback service's learned state to the
// adjuster without giving it ownership.
type PatternSource interface {
	// PatternsFor returns the learned patterns for a domain/entity-type
	// pair.
	PatternsFor(domain string, t entity.Type) []Pattern
	// RecentOutcomes returns up to n of the latest 0/1 feedback
	// outcomes for the pair, oldest first.
	RecentOutcomes(domain string, t entity.Type, n int) []int
}
