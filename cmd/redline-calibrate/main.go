package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/cognicore/redline/pkg/redline/config"
	"github.com/cognicore/redline/pkg/redline/entity"
	"github.com/cognicore/redline/pkg/redline/feedback"
	"github.com/cognicore/redline/pkg/redline/store/sqlite"
)

func main() {
	var (
		dbPath     = flag.String("db", "", "SQLite database with feedback state (required)")
		configPath = flag.String("config", "", "Config file (optional)")
		domainName = flag.String("domain", "", "Only report this domain")
		entityType = flag.String("entity-type", "", "Only report this entity type")
		apply      = flag.Bool("apply", false, "Run calibration and persist the adjusted thresholds")
		exportPath = flag.String("export-glossary", "", "Write proven patterns as glossary YAML to this file")
		jsonOut    = flag.Bool("json", false, "Print output as JSON")
		verbose    = flag.Bool("verbose", false, "Log service internals to stderr")
	)
	flag.Parse()

	if *dbPath == "" {
		log.Fatal("--db required")
	}

	ctx := context.Background()

	logger := zap.NewNop()
	if *verbose {
		var err error
		logger, err = zap.NewDevelopment()
		if err != nil {
			log.Fatalf("logger: %v", err)
		}
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfg = loaded
	}

	st, err := sqlite.Open(ctx, *dbPath)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	svc := feedback.NewService(cfg.FeedbackConfig(), st, logger)
	if err := svc.Load(ctx); err != nil {
		log.Fatalf("load feedback state: %v", err)
	}

	if *exportPath != "" {
		f, err := os.Create(*exportPath)
		if err != nil {
			log.Fatalf("create glossary file: %v", err)
		}
		n, err := svc.ExportGlossary(ctx, f, feedback.DefaultExportOptions())
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			log.Fatalf("export glossary: %v", err)
		}
		fmt.Printf("Exported %d terms to %s\n", n, *exportPath)
	}

	if *apply {
		report, err := svc.Calibrate(ctx)
		if err != nil {
			log.Fatalf("calibrate: %v", err)
		}
		printReport(report, *domainName, *entityType, *jsonOut)
		return
	}

	printThresholds(svc.Thresholds(), *domainName, *entityType, *jsonOut)
}

func printThresholds(thresholds []feedback.Threshold, domainName, entityType string, jsonOut bool) {
	var out []feedback.Threshold
	for _, th := range thresholds {
		if !matches(th.Domain, string(th.EntityType), domainName, entityType) {
			continue
		}
		out = append(out, th)
	}

	if jsonOut {
		printJSON(out)
		return
	}

	if len(out) == 0 {
		fmt.Println("No tracked pairs.")
		return
	}
	fmt.Printf("%-14s %-12s %8s %8s %8s\n", "DOMAIN", "ENTITY", "BASE", "CURRENT", "SAMPLES")
	for _, th := range out {
		fmt.Printf("%-14s %-12s %8.2f %8.2f %8d\n",
			th.Domain, th.EntityType, th.Base, th.Current, th.SampleCount)
	}
	fmt.Println("\nRun with --apply to recalibrate.")
}

func printReport(report feedback.Report, domainName, entityType string, jsonOut bool) {
	filtered := report
	filtered.Adjustments = nil
	for _, adj := range report.Adjustments {
		if matches(adj.Domain, string(adj.EntityType), domainName, entityType) {
			filtered.Adjustments = append(filtered.Adjustments, adj)
		}
	}

	if jsonOut {
		printJSON(filtered)
		return
	}

	fmt.Printf("Calibrated %d pairs at %s: %d changed, %d flagged\n\n",
		report.Evaluated, report.At.Format("2006-01-02 15:04:05"), report.Changed, report.Flagged)
	if len(filtered.Adjustments) == 0 {
		fmt.Println("Nothing to show for the given filters.")
		return
	}
	for _, adj := range filtered.Adjustments {
		marker := " "
		if adj.Flagged {
			marker = "!"
		}
		fmt.Printf("%s %s/%s: %.2f -> %.2f (%s)\n",
			marker, adj.Domain, adj.EntityType, adj.Before, adj.After, adj.Reason)
		fmt.Printf("    samples %d  acceptance %.2f  f1 %.2f  stability %.2f  trend %s\n",
			adj.SampleCount, adj.AcceptanceRate, adj.F1, adj.Stability, adj.Trend)
		if adj.Significant {
			fmt.Printf("    acceptance rate significantly off 0.5 (z=%.2f)\n", adj.ZScore)
		}
	}
}

func matches(pairDomain, pairType, wantDomain, wantType string) bool {
	if wantDomain != "" && !strings.EqualFold(pairDomain, wantDomain) {
		return false
	}
	if wantType != "" && pairType != string(entity.ParseType(wantType)) {
		return false
	}
	return true
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("marshal: %v", err)
	}
	fmt.Println(string(out))
}
