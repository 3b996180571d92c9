// Package feedback records how editors respond to suggestions and turns
// that history into learned replacement patterns and adaptive auto-apply
// thresholds. It owns all mutable cross-request state; the detector and
// scorer only read it through narrow interfaces.
package feedback

import (
	"fmt"
	"time"

	"github.com/cognicore/redline/pkg/redline/entity"
	"github.com/cognicore/redline/pkg/redline/internalerr"
)

// Action is what the editor did with a suggestion.
type Action string

const (
	ActionAccept Action = "accept"
	ActionReject Action = "reject"
	ActionModify Action = "modify"
	ActionIgnore Action = "ignore"
	ActionUndo   Action = "undo"
)

// Actions lists every valid action.
func Actions() []Action {
	return []Action{ActionAccept, ActionReject, ActionModify, ActionIgnore, ActionUndo}
}

// ParseAction validates a raw action string.
func ParseAction(s string) (Action, error) {
	for _, a := range Actions() {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: unknown feedback action %q", internalerr.ErrInvalidInput, s)
}

// Outcome reduces an action to the binary signal the calibration math
// runs on. Only accept counts as success.
func (a Action) Outcome() int {
	if a == ActionAccept {
		return 1
	}
	return 0
}

// Event is one recorded editor decision.
type Event struct {
	ID           string      `json:"id"`
	SuggestionID string      `json:"suggestionId"`
	Action       Action      `json:"action"`
	Domain       string      `json:"domain"`
	EntityType   entity.Type `json:"entityType"`
	EntityText   string      `json:"entityText,omitempty"`
	Replacement  string      `json:"replacement,omitempty"`
	Confidence   float64     `json:"confidence"`
	Context      string      `json:"context,omitempty"`
	At           time.Time   `json:"at"`
}
