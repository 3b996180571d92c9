package suggest

import (
	"context"
	"testing"

	"github.com/cognicore/redline/pkg/redline/entity"
)

func TestHeuristicVersionBump(t *testing.T) {
	h := NewHeuristic(DefaultHeuristicConfig())
	req := Request{Text: "Running version 2.1.0 in production."}
	ents := []entity.Entity{{Text: "2.1.0", Type: entity.Version, Confidence: 0.9, Source: entity.SourcePattern}}

	got, err := h.Produce(context.Background(), req, ents)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d suggestions, want 1", len(got))
	}
	s := got[0]
	if s.Replacement != "2.2.0" {
		t.Errorf("replacement = %q, want 2.2.0", s.Replacement)
	}
	if s.Confidence != 0.5 {
		t.Errorf("confidence = %v, want 0.5", s.Confidence)
	}
	if s.Source != SourceHeuristic {
		t.Errorf("source = %s, want heuristic", s.Source)
	}
	if s.ID == "" {
		t.Error("suggestion should carry an ID")
	}
}

func TestBumpMinor(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2.1.0", "2.2.0", true},
		{"v1.3", "v1.4", true},
		{"v1.9.9", "v1.10.0", true},
		{"2.1.0-beta", "", false},
		{"not-a-version", "", false},
	}
	for _, tc := range cases {
		got, ok := bumpMinor(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("bumpMinor(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestHeuristicHTTPSUpgrade(t *testing.T) {
	h := NewHeuristic(DefaultHeuristicConfig())
	req := Request{Text: "See http://acme.com/docs and https://acme.com/safe."}
	ents := []entity.Entity{
		{Text: "http://acme.com/docs", Type: entity.URL, Confidence: 0.95, Source: entity.SourcePattern},
		{Text: "https://acme.com/safe", Type: entity.URL, Confidence: 0.95, Source: entity.SourcePattern},
	}

	got, err := h.Produce(context.Background(), req, ents)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d suggestions, want only the http upgrade", len(got))
	}
	if got[0].Replacement != "https://acme.com/docs" {
		t.Errorf("replacement = %q", got[0].Replacement)
	}
	if got[0].Confidence != 0.7 {
		t.Errorf("confidence = %v, want 0.7", got[0].Confidence)
	}
}

func TestHeuristicContactEmail(t *testing.T) {
	h := NewHeuristic(HeuristicConfig{ContactEmail: "hello@acme.com"})
	req := Request{Text: "Write to bob@acme.com or hello@acme.com."}
	ents := []entity.Entity{
		{Text: "bob@acme.com", Type: entity.Email, Confidence: 0.95, Source: entity.SourcePattern},
		{Text: "hello@acme.com", Type: entity.Email, Confidence: 0.95, Source: entity.SourcePattern},
	}

	got, err := h.Produce(context.Background(), req, ents)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d suggestions, want 1 (standard address untouched)", len(got))
	}
	if got[0].Replacement != "hello@acme.com" || got[0].Confidence != 0.6 {
		t.Errorf("got %+v", got[0])
	}
}
