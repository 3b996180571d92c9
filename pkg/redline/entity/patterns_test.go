package entity

import "testing"

func findByText(entities []Entity, text string) (Entity, bool) {
	for _, e := range entities {
		if e.Text == text {
			return e, true
		}
	}
	return Entity{}, false
}

func TestExtractPatterns(t *testing.T) {
	text := "Email support@acme.com or visit http://acme.com/docs. " +
		"Version 2.1.0 ships 2024-03-15 at 14:30 and costs $49.99, " +
		"a 20% discount until March 15, 2024."

	got := ExtractPatterns(text)

	cases := []struct {
		text string
		typ  Type
		conf float64
	}{
		{"support@acme.com", Email, 0.95},
		{"http://acme.com/docs", URL, 0.95},
		{"2.1.0", Version, 0.90},
		{"20%", Percentage, 0.85},
		{"$49.99", Currency, 0.85},
		{"2024-03-15", Date, 0.80},
		{"March 15, 2024", Date, 0.80},
		{"14:30", Time, 0.80},
	}
	for _, tc := range cases {
		e, ok := findByText(got, tc.text)
		if !ok {
			t.Errorf("missing %s entity %q", tc.typ, tc.text)
			continue
		}
		if e.Type != tc.typ {
			t.Errorf("%q: type = %s, want %s", tc.text, e.Type, tc.typ)
		}
		if e.Confidence != tc.conf {
			t.Errorf("%q: confidence = %v, want %v", tc.text, e.Confidence, tc.conf)
		}
		if e.Source != SourcePattern {
			t.Errorf("%q: source = %s, want pattern", tc.text, e.Source)
		}
	}
}

func TestExtractPatternsEmptyText(t *testing.T) {
	if got := ExtractPatterns("   "); got != nil {
		t.Errorf("blank text extracted %d entities, want none", len(got))
	}
}

func TestExtractPatternsDedupesRepeats(t *testing.T) {
	got := ExtractPatterns("ping ops@acme.io, again ops@acme.io")
	count := 0
	for _, e := range got {
		if e.Type == Email {
			count++
		}
	}
	if count != 1 {
		t.Errorf("repeated address extracted %d times, want 1", count)
	}
}
