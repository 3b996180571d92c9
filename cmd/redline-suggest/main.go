package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cognicore/redline/internal/htmltext"
	"github.com/cognicore/redline/internal/ner"
	"github.com/cognicore/redline/internal/oracle"
	"github.com/cognicore/redline/pkg/redline"
	"github.com/cognicore/redline/pkg/redline/config"
	"github.com/cognicore/redline/pkg/redline/feedback"
	"github.com/cognicore/redline/pkg/redline/store/sqlite"
	"github.com/cognicore/redline/pkg/redline/suggest"
)

func main() {
	var (
		configPath   = flag.String("config", "", "Config file (optional, watched for changes)")
		glossaryPath = flag.String("glossary", "", "Brand glossary file (optional)")
		dbPath       = flag.String("db", "", "SQLite database for feedback state (optional, in-memory when unset)")
		text         = flag.String("text", "", "Text to analyze (one-shot mode)")
		file         = flag.String("file", "", "File to analyze instead of --text")
		contentType  = flag.String("content-type", "", "Content type hint, e.g. release_notes")
		find         = flag.String("find", "", "Existing find pattern for contextual alternatives")
		replace      = flag.String("replace", "", "Existing replacement for contextual alternatives")
		segment      = flag.String("segment", "", "User segment, e.g. admin")
		html         = flag.Bool("html", false, "Treat input as HTML and flatten it first")
		jsonOut      = flag.Bool("json", false, "Print the full result as JSON")
		aiBase       = flag.String("ai-base", "", "Optional: OpenAI-compatible endpoint for the AI producer")
		aiModel      = flag.String("ai-model", "", "Optional: model name for --ai-base")
		aiAPIKey     = flag.String("ai-api-key", "", "Optional: API key for --ai-base")
		verbose      = flag.Bool("verbose", false, "Log engine internals to stderr")
	)
	flag.Parse()

	ctx := context.Background()

	logger := zap.NewNop()
	if *verbose {
		var err error
		logger, err = zap.NewDevelopment()
		if err != nil {
			log.Fatalf("logger: %v", err)
		}
	}

	engine, cleanup, err := buildEngine(ctx, buildOptions{
		configPath:   *configPath,
		glossaryPath: *glossaryPath,
		dbPath:       *dbPath,
		aiBase:       *aiBase,
		aiModel:      *aiModel,
		aiAPIKey:     *aiAPIKey,
		logger:       logger,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer cleanup()

	input := *text
	if *file != "" {
		data, err := os.ReadFile(*file)
		if err != nil {
			log.Fatalf("read input: %v", err)
		}
		input = string(data)
	}

	// One-shot mode
	if input != "" {
		if *html {
			input = htmltext.Flatten(input)
		}
		req := buildRequest(input, *contentType, *segment, *find, *replace)
		if err := runOnce(ctx, engine, req, *jsonOut); err != nil {
			log.Fatal(err)
		}
		return
	}

	// Interactive mode
	fmt.Println("===========================================")
	fmt.Println("  Redline Suggest CLI")
	fmt.Println("  Content suggestion engine")
	fmt.Println("===========================================")
	fmt.Println()
	fmt.Println("Paste text to get suggestions (Ctrl+D to exit).")
	fmt.Println("After a result: accept N / reject N to record feedback.")
	fmt.Println()

	var last *redline.Result
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if action, idx, ok := parseFeedbackCommand(line); ok {
			if err := recordFeedback(ctx, engine, last, action, idx); err != nil {
				fmt.Println("Error:", err)
			}
			continue
		}

		in := line
		if *html {
			in = htmltext.Flatten(in)
		}
		req := buildRequest(in, *contentType, *segment, *find, *replace)
		res, err := engine.GenerateSuggestions(ctx, req)
		if err != nil {
			fmt.Println("Error:", err)
			continue
		}
		last = res
		printResult(res, *jsonOut)
	}

	fmt.Println("\nGoodbye!")
}

type buildOptions struct {
	configPath   string
	glossaryPath string
	dbPath       string
	aiBase       string
	aiModel      string
	aiAPIKey     string
	logger       *zap.Logger
}

func buildEngine(ctx context.Context, bo buildOptions) (*redline.Engine, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	opts := redline.Options{Logger: bo.logger}

	var watcher *config.Watcher
	if bo.configPath != "" {
		w, err := config.NewWatcher(bo.configPath, bo.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("load config: %w", err)
		}
		closers = append(closers, func() { w.Close() })
		watcher = w
		opts.Config = w.Config()
	}

	if bo.glossaryPath != "" {
		g, err := suggest.LoadGlossary(bo.glossaryPath)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("load glossary: %w", err)
		}
		opts.Glossary = g
	}

	if bo.dbPath != "" {
		st, err := sqlite.Open(ctx, bo.dbPath)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("open store: %w", err)
		}
		opts.Store = st
	}

	opts.AIOracle = pickAIOracle(bo)
	if url := os.Getenv("NER_SERVICE_URL"); url != "" {
		cfg := ner.DefaultConfig(url)
		cfg.APIKey = os.Getenv("NER_API_KEY")
		opts.NEROracle = ner.New(cfg, bo.logger)
	}

	engine, err := redline.New(opts)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closers = append(closers, func() { engine.Close() })

	if watcher != nil {
		watcher.OnChange(func(cfg *config.Config) {
			if err := engine.UpdateConfig(cfg); err != nil {
				bo.logger.Warn("config update rejected", zap.Error(err))
			}
		})
	}

	return engine, cleanup, nil
}

// pickAIOracle prefers an explicit OpenAI-compatible endpoint over the
// Anthropic environment key. With neither, the AI producers stay off.
func pickAIOracle(bo buildOptions) suggest.Oracle {
	if bo.aiBase != "" && bo.aiModel != "" {
		return oracle.NewOpenAI(bo.aiBase, bo.aiAPIKey, bo.aiModel, bo.logger)
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		return oracle.NewAnthropic(key, oracle.DefaultAnthropicModel, bo.logger)
	}
	return nil
}

func buildRequest(text, contentType, segment, find, replace string) suggest.Request {
	req := suggest.Request{
		Text:        text,
		ContentType: contentType,
		UserSegment: segment,
	}
	if find != "" {
		req.Rule = &suggest.ReplaceRule{Find: find, Replace: replace}
	}
	return req
}

func runOnce(ctx context.Context, engine *redline.Engine, req suggest.Request, jsonOut bool) error {
	res, err := engine.GenerateSuggestions(ctx, req)
	if err != nil {
		return err
	}
	printResult(res, jsonOut)
	return nil
}

func printResult(res *redline.Result, jsonOut bool) {
	if jsonOut {
		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			fmt.Println("Error:", err)
			return
		}
		fmt.Println(string(out))
		return
	}

	fmt.Printf("\nDomain: %s (%.2f", res.Domain.Domain, res.Domain.Confidence)
	if len(res.Domain.Signals) > 0 {
		fmt.Printf(", signals: %s", strings.Join(res.Domain.Signals, ", "))
	}
	fmt.Println(")")

	if len(res.Suggestions) == 0 {
		fmt.Println("No suggestions.")
		fmt.Println()
		return
	}

	for i, s := range res.Suggestions {
		marker := " "
		if s.AutoApply {
			marker = "*"
		}
		fmt.Printf("\n%s %d. [%s/%s] %q -> %q\n", marker, i+1, s.Source, s.Entity.Type, s.Entity.Text, s.Replacement)
		fmt.Printf("     relevance %.3f  confidence %.2f", s.Relevance, s.Confidence)
		if s.DomainAdjustedConfidence != s.Confidence {
			fmt.Printf(" (adjusted %.2f)", s.DomainAdjustedConfidence)
		}
		fmt.Println()
		if s.Reason != "" {
			fmt.Printf("     %s\n", s.Reason)
		}
	}
	fmt.Println("\n* = above the auto-apply threshold")
	fmt.Printf("(%d entities, %v%s)\n\n", len(res.Entities), res.Elapsed.Round(time.Millisecond), cacheNote(res))
}

func cacheNote(res *redline.Result) string {
	if res.CacheHit {
		return ", cached"
	}
	return ""
}

// parseFeedbackCommand recognizes "accept N" and "reject N".
func parseFeedbackCommand(line string) (feedback.Action, int, bool) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return "", 0, false
	}
	action, err := feedback.ParseAction(fields[0])
	if err != nil {
		return "", 0, false
	}
	idx, err := strconv.Atoi(fields[1])
	if err != nil || idx < 1 {
		return "", 0, false
	}
	return action, idx - 1, true
}

func recordFeedback(ctx context.Context, engine *redline.Engine, last *redline.Result, action feedback.Action, idx int) error {
	if last == nil {
		return fmt.Errorf("no result to give feedback on yet")
	}
	if idx >= len(last.Suggestions) {
		return fmt.Errorf("suggestion %d out of range", idx+1)
	}
	s := last.Suggestions[idx]
	ev, err := engine.RecordFeedback(ctx, feedback.Event{
		SuggestionID: s.ID,
		Action:       action,
		Domain:       s.Domain,
		EntityType:   s.Entity.Type,
		EntityText:   s.Entity.Text,
		Replacement:  s.Replacement,
		Confidence:   s.DomainAdjustedConfidence,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Recorded %s for %q -> %q (%s)\n", ev.Action, s.Entity.Text, s.Replacement, ev.ID)
	return nil
}
