package redline

import (
	"context"
	"testing"

	"github.com/cognicore/redline/pkg/redline/domain"
	"github.com/cognicore/redline/pkg/redline/entity"
	"github.com/cognicore/redline/pkg/redline/feedback"
	"github.com/cognicore/redline/pkg/redline/store/memstore"
	"github.com/cognicore/redline/pkg/redline/suggest"
)

// Walks the full loop an editor session exercises: generate, record
// decisions, calibrate, generate again with the learned state live, and
// finally reopen the engine on the same store.
func TestWorkflowGenerateFeedbackCalibrateRegenerate(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()

	oracle := &stubOracle{candidates: []suggest.Candidate{
		{Original: "2.1.0", Replacement: "2.4.0", Confidence: 0.9, Reason: "matches the release branch"},
	}}

	e := newTestEngine(t, Options{Store: st, AIOracle: oracle})

	// Technology keywords steer the detector away from general.
	res, err := e.GenerateSuggestions(ctx, suggest.Request{
		Text: "The api deployment runs version 2.1.0 on the kubernetes backend",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Domain.Domain != domain.Technology {
		t.Fatalf("domain = %q, want technology", res.Domain.Domain)
	}

	var heuristic *suggest.Suggestion
	for i := range res.Suggestions {
		if res.Suggestions[i].Source == suggest.SourceHeuristic &&
			res.Suggestions[i].Entity.Type == entity.Version {
			heuristic = &res.Suggestions[i]
		}
	}
	if heuristic == nil {
		t.Fatalf("no heuristic version suggestion in %+v", res.Suggestions)
	}
	// Technology base threshold is 0.6; a cold 0.5 stays manual.
	if heuristic.AutoApply {
		t.Error("cold heuristic suggestion should not auto-apply in technology")
	}
	if heuristic.Metrics.Threshold != 0.6 {
		t.Errorf("threshold = %v, want technology base 0.6", heuristic.Metrics.Threshold)
	}

	// Twelve accepts clear the calibration sample floor and feed the
	// adjuster's performance window.
	for i := 0; i < 12; i++ {
		if _, err := e.RecordFeedback(ctx, feedback.Event{
			SuggestionID: heuristic.ID,
			Action:       feedback.ActionAccept,
			Domain:       domain.Technology,
			EntityType:   entity.Version,
			EntityText:   "2.1.0",
			Replacement:  "2.2.0",
			Confidence:   0.8,
		}); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	if got := e.Stats().TrackedPairs; got != 1 {
		t.Errorf("trackedPairs = %d, want 1", got)
	}

	report, err := e.Calibrate(ctx)
	if err != nil {
		t.Fatalf("calibrate: %v", err)
	}
	if report.Evaluated != 1 {
		t.Fatalf("evaluated = %d, want 1", report.Evaluated)
	}
	// Unanimous acceptance is the high-acceptance rule: 0.6 + 0.15.
	adj := report.Adjustments[0]
	if adj.Reason != feedback.ReasonHighAcceptance {
		t.Errorf("reason = %q, want high_acceptance", adj.Reason)
	}
	if adj.After != 0.75 {
		t.Errorf("threshold after = %v, want 0.75", adj.After)
	}
	if got := e.feedback.ThresholdFor(domain.Technology, entity.Version); got != 0.75 {
		t.Errorf("live threshold = %v, want 0.75", got)
	}

	// Fresh text, same pair: the accept history now lifts confidence
	// through the performance component.
	res, err = e.GenerateSuggestions(ctx, suggest.Request{
		Text: "The api deployment ships version 3.4.0 on the kubernetes backend",
	})
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	heuristic = nil
	var ai *suggest.Suggestion
	for i := range res.Suggestions {
		s := &res.Suggestions[i]
		switch {
		case s.Source == suggest.SourceHeuristic && s.Entity.Type == entity.Version:
			heuristic = s
		case s.Source == suggest.SourceAI:
			ai = s
		}
	}
	if heuristic == nil {
		t.Fatal("no heuristic version suggestion after recalibration")
	}
	if heuristic.DomainAdjustedConfidence <= heuristic.Confidence {
		t.Errorf("adjusted %v not lifted above raw %v by accept history",
			heuristic.DomainAdjustedConfidence, heuristic.Confidence)
	}
	if heuristic.Metrics.Threshold != 0.75 {
		t.Errorf("regenerated threshold = %v, want 0.75", heuristic.Metrics.Threshold)
	}
	// 0.5 lifted to ~0.59 still sits under the raised bar.
	if heuristic.AutoApply {
		t.Error("heuristic suggestion should stay manual under the raised threshold")
	}
	if ai != nil && ai.DomainAdjustedConfidence < heuristic.DomainAdjustedConfidence {
		t.Error("high-confidence ai suggestion ranked below the heuristic lift")
	}

	// Learned state is store-backed: a new engine on the same store sees
	// the calibrated threshold without replaying events.
	if err := e.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	reopened, err := New(Options{Config: testConfig(), Store: st})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if got := reopened.Feedback().ThresholdFor(domain.Technology, entity.Version); got != 0.75 {
		t.Errorf("reopened threshold = %v, want persisted 0.75", got)
	}
	if got := reopened.Stats().TrackedPairs; got != 1 {
		t.Errorf("reopened trackedPairs = %d, want 1", got)
	}
}
