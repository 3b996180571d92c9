package suggest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cognicore/redline/pkg/redline/entity"
)

func TestGlossaryAddTermDefaults(t *testing.T) {
	g := NewGlossary()
	g.AddTerm(Term{Canonical: "Contentstack", Variants: []string{"content stack"}})

	term, ok := g.Lookup("content stack")
	if !ok {
		t.Fatal("variant should resolve")
	}
	if term.Confidence != 0.85 {
		t.Errorf("confidence = %v, want default 0.85", term.Confidence)
	}
	if term.Reason != "brand style guide" {
		t.Errorf("reason = %q", term.Reason)
	}
	if term.EntityType != entity.Brand {
		t.Errorf("entityType = %s, want brand", term.EntityType)
	}
}

func TestGlossaryScan(t *testing.T) {
	g := NewGlossary()
	g.AddTerm(Term{Canonical: "Contentstack", Variants: []string{"content stack", "Content-Stack"}, Confidence: 0.9})
	g.AddTerm(Term{Canonical: "GitHub", Variants: []string{"github", "git hub"}})

	text := "We moved the content stack to github; Content-Stack docs and GitHub stay."
	matches := g.Scan(text)

	wantSurfaces := map[string]string{
		"content stack": "Contentstack",
		"github":        "GitHub",
		"Content-Stack": "Contentstack",
	}
	if len(matches) != len(wantSurfaces) {
		t.Fatalf("got %d matches, want %d: %+v", len(matches), len(wantSurfaces), matches)
	}
	for _, m := range matches {
		want, ok := wantSurfaces[m.Surface]
		if !ok {
			t.Errorf("unexpected match %q", m.Surface)
			continue
		}
		if m.Term.Canonical != want {
			t.Errorf("%q resolved to %q, want %q", m.Surface, m.Term.Canonical, want)
		}
	}
}

func TestGlossaryScanSkipsExactCanonical(t *testing.T) {
	g := NewGlossary()
	g.AddTerm(Term{Canonical: "GitHub"})

	if matches := g.Scan("All code lives on GitHub today."); len(matches) != 0 {
		t.Errorf("exact canonical produced matches: %+v", matches)
	}
	if matches := g.Scan("All code lives on Github today."); len(matches) != 1 {
		t.Errorf("casing drift produced %d matches, want 1", len(matches))
	}
}

func TestGlossaryReplaceTermCleansIndex(t *testing.T) {
	g := NewGlossary()
	g.AddTerm(Term{Canonical: "Acme", Variants: []string{"acme inc"}})
	g.AddTerm(Term{Canonical: "Acme", Variants: []string{"acme co"}})

	if _, ok := g.Lookup("acme inc"); ok {
		t.Error("stale variant should be gone after re-add")
	}
	if _, ok := g.Lookup("acme co"); !ok {
		t.Error("new variant should resolve")
	}
	if g.Len() != 1 {
		t.Errorf("Len = %d, want 1", g.Len())
	}
}

func TestLoadGlossary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "glossary.yaml")
	doc := `terms:
  - canonical: Contentstack
    variants: [content stack, contentstack cms]
    confidence: 0.92
    reason: brand guide v3
    entityType: brand
  - canonical: Photoshop
    variants: [photo shop]
    entityType: product
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	g, err := LoadGlossary(path)
	if err != nil {
		t.Fatalf("LoadGlossary: %v", err)
	}
	if g.Len() != 2 {
		t.Fatalf("Len = %d, want 2", g.Len())
	}

	term, ok := g.Lookup("contentstack cms")
	if !ok || term.Confidence != 0.92 || term.Reason != "brand guide v3" {
		t.Errorf("term = %+v", term)
	}
	term, ok = g.Lookup("photo shop")
	if !ok || term.EntityType != entity.Product {
		t.Errorf("photoshop term = %+v", term)
	}
}

func TestLoadGlossaryMissingFile(t *testing.T) {
	if _, err := LoadGlossary(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("want error for missing file")
	}
}
