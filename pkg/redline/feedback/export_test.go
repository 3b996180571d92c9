package feedback

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cognicore/redline/pkg/redline/domain"
	"github.com/cognicore/redline/pkg/redline/entity"
	"github.com/cognicore/redline/pkg/redline/store/memstore"
	"github.com/cognicore/redline/pkg/redline/suggest"
)

func recordAccept(t *testing.T, svc *Service, domainName, entityText, replacement string) {
	t.Helper()
	_, err := svc.Record(context.Background(), Event{
		SuggestionID: "sg-1",
		Action:       ActionAccept,
		Domain:       domainName,
		EntityType:   entity.Brand,
		EntityText:   entityText,
		Replacement:  replacement,
		Confidence:   0.9,
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
}

func recordReject(t *testing.T, svc *Service, domainName, entityText, replacement string) {
	t.Helper()
	_, err := svc.Record(context.Background(), Event{
		SuggestionID: "sg-1",
		Action:       ActionReject,
		Domain:       domainName,
		EntityType:   entity.Brand,
		EntityText:   entityText,
		Replacement:  replacement,
		Confidence:   0.9,
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
}

func TestExportGlossaryRoundTrip(t *testing.T) {
	svc := NewService(DefaultConfig(), memstore.New(), nil)

	// A proven pattern with two distinct surface forms.
	recordAccept(t, svc, domain.Technology, "cogni-core", "CogniCore")
	recordAccept(t, svc, domain.Technology, "cogni-core", "CogniCore")
	recordAccept(t, svc, domain.Technology, "Cogni Core", "CogniCore")
	recordAccept(t, svc, domain.Technology, "Cogni Core", "CogniCore")

	// Too unreliable: one accept against two rejects.
	recordAccept(t, svc, domain.Technology, "shoplyy", "Shoply")
	recordReject(t, svc, domain.Technology, "shoplyy", "Shoply")
	recordReject(t, svc, domain.Technology, "shoplyy", "Shoply")

	// Too rare: a single sighting.
	recordAccept(t, svc, domain.Technology, "newbee", "NewBee")

	var buf bytes.Buffer
	n, err := svc.ExportGlossary(context.Background(), &buf, ExportOptions{})
	if err != nil {
		t.Fatalf("ExportGlossary: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 exported term, got %d:\n%s", n, buf.String())
	}

	path := filepath.Join(t.TempDir(), "learned.yaml")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write glossary: %v", err)
	}

	g, err := suggest.LoadGlossary(path)
	if err != nil {
		t.Fatalf("LoadGlossary: %v", err)
	}
	if g.Len() != 1 {
		t.Fatalf("loaded glossary size: got %d, want 1", g.Len())
	}

	term, ok := g.Lookup("cogni-core")
	if !ok {
		t.Fatal("exported variant should resolve after reload")
	}
	if term.Canonical != "CogniCore" {
		t.Errorf("canonical: got %q, want CogniCore", term.Canonical)
	}
	if term.Confidence != 1.0 {
		t.Errorf("confidence should carry the pattern success rate, got %f", term.Confidence)
	}
	if term.Reason != "learned from feedback" {
		t.Errorf("reason: got %q", term.Reason)
	}
	if term.EntityType != entity.Brand {
		t.Errorf("entity type: got %q, want brand", term.EntityType)
	}

	if _, ok := g.Lookup("Cogni Core"); !ok {
		t.Error("second variant should resolve too")
	}
}

func TestExportGlossaryMergesDomains(t *testing.T) {
	svc := NewService(DefaultConfig(), memstore.New(), nil)

	recordAccept(t, svc, domain.Technology, "cogni-core", "CogniCore")
	recordAccept(t, svc, domain.Technology, "cogni-core", "CogniCore")
	recordAccept(t, svc, domain.Technology, "cogni-core", "CogniCore")

	recordAccept(t, svc, domain.Finance, "Cogni Core", "CogniCore")
	recordAccept(t, svc, domain.Finance, "Cogni Core", "CogniCore")
	recordAccept(t, svc, domain.Finance, "Cogni Core", "CogniCore")

	var buf bytes.Buffer
	n, err := svc.ExportGlossary(context.Background(), &buf, DefaultExportOptions())
	if err != nil {
		t.Fatalf("ExportGlossary: %v", err)
	}
	if n != 1 {
		t.Fatalf("one canonical across two domains should merge, got %d terms", n)
	}

	path := filepath.Join(t.TempDir(), "learned.yaml")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write glossary: %v", err)
	}
	g, err := suggest.LoadGlossary(path)
	if err != nil {
		t.Fatalf("LoadGlossary: %v", err)
	}

	term, ok := g.Lookup("cogni-core")
	if !ok {
		t.Fatal("technology variant missing")
	}
	if len(term.Variants) != 2 {
		t.Fatalf("variants from both domains should merge, got %v", term.Variants)
	}
	if _, ok := g.Lookup("Cogni Core"); !ok {
		t.Error("finance variant missing")
	}
}

func TestExportGlossarySkipsVariantless(t *testing.T) {
	// No store means no recorded surface forms to resurface.
	svc := NewService(DefaultConfig(), nil, nil)

	recordAccept(t, svc, domain.Technology, "cogni-core", "CogniCore")
	recordAccept(t, svc, domain.Technology, "cogni-core", "CogniCore")
	recordAccept(t, svc, domain.Technology, "cogni-core", "CogniCore")

	var buf bytes.Buffer
	n, err := svc.ExportGlossary(context.Background(), &buf, DefaultExportOptions())
	if err != nil {
		t.Fatalf("ExportGlossary: %v", err)
	}
	if n != 0 {
		t.Errorf("a term with no variants can never match; got %d terms", n)
	}
}

func TestExportGlossaryIgnoresCaseOnlyVariants(t *testing.T) {
	svc := NewService(DefaultConfig(), memstore.New(), nil)

	// "cognicore" differs from the canonical only by case; the glossary
	// scanner is case-insensitive already, so it carries no signal.
	recordAccept(t, svc, domain.Technology, "cognicore", "CogniCore")
	recordAccept(t, svc, domain.Technology, "cognicore", "CogniCore")
	recordAccept(t, svc, domain.Technology, "cognicore", "CogniCore")

	var buf bytes.Buffer
	n, err := svc.ExportGlossary(context.Background(), &buf, DefaultExportOptions())
	if err != nil {
		t.Fatalf("ExportGlossary: %v", err)
	}
	if n != 0 {
		t.Errorf("case-only variants should not produce a term, got %d:\n%s", n, buf.String())
	}
}
