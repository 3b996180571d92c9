// Package config holds every tunable of the suggestion engine in one
// YAML-loadable structure. Files are read over the defaults, so a
// config file only names what it changes. Every load is range-validated
// before it is accepted; a file that fails validation never becomes the
// live configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/cognicore/redline/pkg/redline/cache"
	"github.com/cognicore/redline/pkg/redline/domain"
	"github.com/cognicore/redline/pkg/redline/feedback"
	"github.com/cognicore/redline/pkg/redline/internalerr"
	"github.com/cognicore/redline/pkg/redline/rank"
	"github.com/cognicore/redline/pkg/redline/stats"
	"github.com/cognicore/redline/pkg/redline/suggest"
	"github.com/cognicore/redline/pkg/redline/throttle"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "1h".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("bad duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config is the full engine configuration.
type Config struct {
	Engine    EngineSettings   `yaml:"engine"`
	Producers ProducerSettings `yaml:"producers"`
	Ranking   RankingSettings  `yaml:"ranking"`
	Domains   DomainSettings   `yaml:"domains"`
	Feedback  FeedbackSettings `yaml:"feedback"`
	Cache     CacheSettings    `yaml:"cache"`
	Throttle  ThrottleSettings `yaml:"throttle"`
}

// EngineSettings tunes the request pipeline itself.
type EngineSettings struct {
	// RequestTimeout bounds one full generate call.
	// Default: 30s
	RequestTimeout Duration `yaml:"requestTimeout"`

	// ProducerTimeout bounds each oracle-backed producer within a
	// request.
	// Default: 10s
	ProducerTimeout Duration `yaml:"producerTimeout"`

	// BatchChunkSize is how many cache-missing requests one pooled
	// batch task processes.
	// Default: 5
	BatchChunkSize int `yaml:"batchChunkSize" validate:"gte=1,lte=100"`

	// CalibrationSchedule is the 5-field cron expression for background
	// threshold calibration. Empty disables the scheduler.
	// Default: */30 * * * *
	CalibrationSchedule string `yaml:"calibrationSchedule"`
}

// ProducerSettings tunes the four suggestion producers.
type ProducerSettings struct {
	// Heuristic rule settings.
	Heuristic HeuristicSettings `yaml:"heuristic"`

	// AI oracle settings.
	AI AISettings `yaml:"ai"`

	// Contextual alternative settings.
	Contextual ContextualSettings `yaml:"contextual"`

	// MinConfidence drops a producer's suggestions below its floor
	// before they reach scoring, keyed by source name.
	// Default: 0 for every source (nothing dropped)
	MinConfidence map[string]float64 `yaml:"minConfidence" validate:"dive,gte=0,lte=1"`
}

// HeuristicSettings mirrors suggest.HeuristicConfig.
type HeuristicSettings struct {
	// ContactEmail suggested in place of ad-hoc contact addresses.
	// Default: contact@company.com
	ContactEmail string `yaml:"contactEmail"`
}

// AISettings mirrors suggest.AIConfig.
type AISettings struct {
	// MinTextLength below which the oracle call is skipped.
	// Default: 10
	MinTextLength int `yaml:"minTextLength" validate:"gte=1"`

	// MaxSuggestions requested from and accepted back out of the
	// oracle.
	// Default: 5
	MaxSuggestions int `yaml:"maxSuggestions" validate:"gte=1,lte=20"`
}

// ContextualSettings mirrors suggest.ContextualConfig.
type ContextualSettings struct {
	// MaxAlternatives requested for the caller's find/replace rule.
	// Default: 3
	MaxAlternatives int `yaml:"maxAlternatives" validate:"gte=1,lte=10"`

	// WindowRunes of context around the rule's find text.
	// Default: 120
	WindowRunes int `yaml:"windowRunes" validate:"gte=10"`
}

// RankingSettings mirrors rank.Config.
type RankingSettings struct {
	// Weights of the five relevance components. Must sum to 1.
	Weights WeightSettings `yaml:"weights"`

	// SourcePriorities orders the producers for the source-weight
	// component. Positive integers up to 10.
	// Defaults: heuristic 1, contextual 3, ai 4, brandkit 5
	SourcePriorities map[string]int `yaml:"sourcePriorities" validate:"dive,gte=1,lte=10"`

	// SourceCaps bound each producer's contribution before scoring.
	// Defaults: ai 5, contextual 3, brandkit 8, heuristic 10
	SourceCaps map[string]int `yaml:"sourceCaps" validate:"dive,gte=0,lte=50"`

	// MaxTotal bounds the ranked result.
	// Default: 15
	MaxTotal int `yaml:"maxTotal" validate:"gte=1,lte=100"`
}

// WeightSettings are the relevance component weights.
type WeightSettings struct {
	Base    float64 `yaml:"base" validate:"gte=0,lte=1"`
	Source  float64 `yaml:"source" validate:"gte=0,lte=1"`
	Text    float64 `yaml:"text" validate:"gte=0,lte=1"`
	Entity  float64 `yaml:"entity" validate:"gte=0,lte=1"`
	Context float64 `yaml:"context" validate:"gte=0,lte=1"`
}

// DomainSettings tunes detection and adjustment.
type DomainSettings struct {
	Detection  DetectionSettings  `yaml:"detection"`
	Adjustment AdjustmentSettings `yaml:"adjustment"`
}

// DetectionSettings mirrors domain.DetectorConfig.
type DetectionSettings struct {
	// CacheTTL of a detection result.
	// Default: 10m
	CacheTTL Duration `yaml:"cacheTTL"`

	// CacheSize caps cached detections.
	// Default: 512
	CacheSize int `yaml:"cacheSize" validate:"gte=1"`

	// FingerprintRunes of text in the cache fingerprint.
	// Default: 100
	FingerprintRunes int `yaml:"fingerprintRunes" validate:"gte=10"`
}

// AdjustmentSettings mirrors domain.AdjusterConfig.
type AdjustmentSettings struct {
	// PatternWeight, PerformanceWeight and ContextWeight split the
	// multiplier between learned patterns, recent outcomes and request
	// context. Must sum to 1.
	// Defaults: 0.40 / 0.35 / 0.25
	PatternWeight     float64 `yaml:"patternWeight" validate:"gte=0,lte=1"`
	PerformanceWeight float64 `yaml:"performanceWeight" validate:"gte=0,lte=1"`
	ContextWeight     float64 `yaml:"contextWeight" validate:"gte=0,lte=1"`

	// PerformanceWindow of recent outcomes feeding the performance
	// component.
	// Default: 20
	PerformanceWindow int `yaml:"performanceWindow" validate:"gte=1,lte=50"`

	// MinMultiplier and MaxMultiplier bound the blended multiplier.
	// Defaults: 0.1 and 2.0
	MinMultiplier float64 `yaml:"minMultiplier" validate:"gte=0.1"`
	MaxMultiplier float64 `yaml:"maxMultiplier" validate:"lte=3.0"`
}

// FeedbackSettings mirrors feedback.Config.
type FeedbackSettings struct {
	// HistorySize of the per-pair outcome ring.
	// Default: 50
	HistorySize int `yaml:"historySize" validate:"gte=10,lte=1000"`

	// PatternMinConfidence an accept must carry before its replacement
	// becomes a reusable pattern.
	// Default: 0.7
	PatternMinConfidence float64 `yaml:"patternMinConfidence" validate:"gte=0,lte=1"`

	Calibration CalibrationSettings `yaml:"calibration"`
	Stats       StatsSettings       `yaml:"stats"`
}

// CalibrationSettings mirrors feedback.CalibrationConfig.
type CalibrationSettings struct {
	// MinSamples below which a threshold resets to base.
	// Default: 10
	MinSamples int `yaml:"minSamples" validate:"gte=1"`

	// LowAcceptance and HighAcceptance trigger decrease/increase.
	// Defaults: 0.3 and 0.9
	LowAcceptance  float64 `yaml:"lowAcceptance" validate:"gte=0,lte=1"`
	HighAcceptance float64 `yaml:"highAcceptance" validate:"gte=0,lte=1"`

	// MinStability below which a threshold drifts toward base.
	// Default: 0.6
	MinStability float64 `yaml:"minStability" validate:"gte=0,lte=1"`

	// MinF1 below which a pair is flagged.
	// Default: 0.5
	MinF1 float64 `yaml:"minF1" validate:"gte=0,lte=1"`

	// DecreaseStep, IncreaseStep and TrendStep are the adjustment
	// magnitudes.
	// Defaults: 0.10 / 0.15 / 0.05
	DecreaseStep float64 `yaml:"decreaseStep" validate:"gte=0,lte=0.5"`
	IncreaseStep float64 `yaml:"increaseStep" validate:"gte=0,lte=0.5"`
	TrendStep    float64 `yaml:"trendStep" validate:"gte=0,lte=0.5"`

	// DriftFraction of the way an unstable threshold moves toward
	// base.
	// Default: 0.3
	DriftFraction float64 `yaml:"driftFraction" validate:"gte=0,lte=1"`

	// MinThreshold and MaxThreshold bound every calibration result.
	// Defaults: 0.1 and 0.9
	MinThreshold float64 `yaml:"minThreshold" validate:"gte=0,lte=1"`
	MaxThreshold float64 `yaml:"maxThreshold" validate:"gte=0,lte=1"`
}

// StatsSettings mirrors stats.Config.
type StatsSettings struct {
	// Window for stability estimation.
	// Default: 10
	Window int `yaml:"window" validate:"gte=2"`

	// TrendDeadband below which a stream counts as stable.
	// Default: 0.05
	TrendDeadband float64 `yaml:"trendDeadband" validate:"gte=0,lte=0.5"`

	// MinTrendSamples for trend detection.
	// Default: 4
	MinTrendSamples int `yaml:"minTrendSamples" validate:"gte=2"`

	// SignificanceZ bar for the 99% significance flag.
	// Default: 2.58
	SignificanceZ float64 `yaml:"significanceZ" validate:"gte=0"`
}

// CacheSettings mirrors cache.Config.
type CacheSettings struct {
	// MaxBytes caps the summed size of cached keys and values.
	// Default: 20971520 (20 MiB)
	MaxBytes int64 `yaml:"maxBytes" validate:"gte=1024"`

	// TTL per entry.
	// Default: 1h
	TTL Duration `yaml:"ttl"`

	// SweepInterval between expiry scans. Zero disables the sweeper.
	// Default: 5m
	SweepInterval Duration `yaml:"sweepInterval"`
}

// ThrottleSettings mirrors throttle.Config plus the batch pool.
type ThrottleSettings struct {
	// MaxInFlight requests admitted at once.
	// Default: 8
	MaxInFlight int `yaml:"maxInFlight" validate:"gte=1,lte=256"`

	// QueueTimeout a queued request waits before failing.
	// Default: 10s
	QueueTimeout Duration `yaml:"queueTimeout"`

	// PoolWorkers processing batch chunks.
	// Default: 8
	PoolWorkers int `yaml:"poolWorkers" validate:"gte=1,lte=64"`

	// PoolQueue is the pending-chunk queue size.
	// Default: 32
	PoolQueue int `yaml:"poolQueue" validate:"gte=1"`
}

// Default returns the stock configuration, matching each component's
// own defaults.
func Default() *Config {
	return &Config{
		Engine: EngineSettings{
			RequestTimeout:      Duration(30 * time.Second),
			ProducerTimeout:     Duration(10 * time.Second),
			BatchChunkSize:      5,
			CalibrationSchedule: feedback.DefaultCalibrationSchedule,
		},
		Producers: ProducerSettings{
			Heuristic: HeuristicSettings{ContactEmail: "contact@company.com"},
			AI: AISettings{
				MinTextLength:  10,
				MaxSuggestions: 5,
			},
			Contextual: ContextualSettings{
				MaxAlternatives: 3,
				WindowRunes:     120,
			},
			MinConfidence: map[string]float64{},
		},
		Ranking: RankingSettings{
			Weights: WeightSettings{
				Base:    0.40,
				Source:  0.25,
				Text:    0.20,
				Entity:  0.10,
				Context: 0.05,
			},
			SourcePriorities: map[string]int{
				string(suggest.SourceHeuristic):  1,
				string(suggest.SourceContextual): 3,
				string(suggest.SourceAI):         4,
				string(suggest.SourceBrandkit):   5,
			},
			SourceCaps: map[string]int{
				string(suggest.SourceAI):         5,
				string(suggest.SourceContextual): 3,
				string(suggest.SourceBrandkit):   8,
				string(suggest.SourceHeuristic):  10,
			},
			MaxTotal: 15,
		},
		Domains: DomainSettings{
			Detection: DetectionSettings{
				CacheTTL:         Duration(10 * time.Minute),
				CacheSize:        512,
				FingerprintRunes: 100,
			},
			Adjustment: AdjustmentSettings{
				PatternWeight:     0.40,
				PerformanceWeight: 0.35,
				ContextWeight:     0.25,
				PerformanceWindow: 20,
				MinMultiplier:     0.1,
				MaxMultiplier:     2.0,
			},
		},
		Feedback: FeedbackSettings{
			HistorySize:          50,
			PatternMinConfidence: 0.7,
			Calibration: CalibrationSettings{
				MinSamples:     10,
				LowAcceptance:  0.3,
				HighAcceptance: 0.9,
				MinStability:   0.6,
				MinF1:          0.5,
				DecreaseStep:   0.10,
				IncreaseStep:   0.15,
				TrendStep:      0.05,
				DriftFraction:  0.3,
				MinThreshold:   0.1,
				MaxThreshold:   0.9,
			},
			Stats: StatsSettings{
				Window:          10,
				TrendDeadband:   0.05,
				MinTrendSamples: 4,
				SignificanceZ:   2.58,
			},
		},
		Cache: CacheSettings{
			MaxBytes:      20 << 20,
			TTL:           Duration(time.Hour),
			SweepInterval: Duration(5 * time.Minute),
		},
		Throttle: ThrottleSettings{
			MaxInFlight:  8,
			QueueTimeout: Duration(10 * time.Second),
			PoolWorkers:  8,
			PoolQueue:    32,
		},
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", internalerr.ErrInvalidConfig, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate range-checks every field and reports the full list of
// violations in one ErrInvalidConfig-wrapped error.
func (c *Config) Validate() error {
	var problems []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", internalerr.ErrInvalidConfig, err)
		}
		for _, fe := range verrs {
			problems = append(problems, fmt.Sprintf("%s: fails %s=%s (value %v)",
				fe.Namespace(), fe.Tag(), fe.Param(), fe.Value()))
		}
	}

	if sum := c.Ranking.Weights.Base + c.Ranking.Weights.Source + c.Ranking.Weights.Text +
		c.Ranking.Weights.Entity + c.Ranking.Weights.Context; sum < 0.999 || sum > 1.001 {
		problems = append(problems, fmt.Sprintf("ranking.weights: sum to %.3f, want 1.0", sum))
	}
	if sum := c.Domains.Adjustment.PatternWeight + c.Domains.Adjustment.PerformanceWeight +
		c.Domains.Adjustment.ContextWeight; sum < 0.999 || sum > 1.001 {
		problems = append(problems, fmt.Sprintf("domains.adjustment: component weights sum to %.3f, want 1.0", sum))
	}
	if c.Domains.Adjustment.MinMultiplier > c.Domains.Adjustment.MaxMultiplier {
		problems = append(problems, "domains.adjustment: minMultiplier exceeds maxMultiplier")
	}
	if c.Feedback.Calibration.MinThreshold >= c.Feedback.Calibration.MaxThreshold {
		problems = append(problems, "feedback.calibration: minThreshold must be below maxThreshold")
	}
	if c.Feedback.Calibration.LowAcceptance >= c.Feedback.Calibration.HighAcceptance {
		problems = append(problems, "feedback.calibration: lowAcceptance must be below highAcceptance")
	}
	for _, d := range []struct {
		name string
		val  Duration
	}{
		{"engine.requestTimeout", c.Engine.RequestTimeout},
		{"engine.producerTimeout", c.Engine.ProducerTimeout},
		{"cache.ttl", c.Cache.TTL},
		{"throttle.queueTimeout", c.Throttle.QueueTimeout},
	} {
		if d.val <= 0 {
			problems = append(problems, d.name+": must be positive")
		}
	}

	problems = append(problems, badSourceKeys("producers.minConfidence", keysOf(c.Producers.MinConfidence))...)
	problems = append(problems, badSourceKeys("ranking.sourcePriorities", keysOfInt(c.Ranking.SourcePriorities))...)
	problems = append(problems, badSourceKeys("ranking.sourceCaps", keysOfInt(c.Ranking.SourceCaps))...)

	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return fmt.Errorf("%w: %s", internalerr.ErrInvalidConfig, strings.Join(problems, "; "))
}

func badSourceKeys(field string, keys []string) []string {
	var problems []string
	for _, k := range keys {
		if _, err := suggest.ParseSource(k); err != nil {
			problems = append(problems, fmt.Sprintf("%s: unknown source %q", field, k))
		}
	}
	return problems
}

func keysOf(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func keysOfInt(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// MinConfidence returns the configured floor for a producer source.
func (c *Config) MinConfidence(src suggest.Source) float64 {
	return c.Producers.MinConfidence[string(src)]
}

// RankConfig converts the ranking section for rank.NewScorer.
func (c *Config) RankConfig() rank.Config {
	priorities := make(map[suggest.Source]int, len(c.Ranking.SourcePriorities))
	for k, v := range c.Ranking.SourcePriorities {
		priorities[suggest.Source(k)] = v
	}
	caps := make(map[suggest.Source]int, len(c.Ranking.SourceCaps))
	for k, v := range c.Ranking.SourceCaps {
		caps[suggest.Source(k)] = v
	}
	return rank.Config{
		Weights: rank.Weights{
			Base:    c.Ranking.Weights.Base,
			Source:  c.Ranking.Weights.Source,
			Text:    c.Ranking.Weights.Text,
			Entity:  c.Ranking.Weights.Entity,
			Context: c.Ranking.Weights.Context,
		},
		SourcePriorities: priorities,
		SourceCaps:       caps,
		MaxTotal:         c.Ranking.MaxTotal,
	}
}

// CacheConfig converts the cache section for cache.New.
func (c *Config) CacheConfig() cache.Config {
	return cache.Config{
		MaxBytes:      c.Cache.MaxBytes,
		TTL:           time.Duration(c.Cache.TTL),
		SweepInterval: time.Duration(c.Cache.SweepInterval),
	}
}

// ThrottleConfig converts the throttle section for throttle.NewLimiter.
func (c *Config) ThrottleConfig() throttle.Config {
	return throttle.Config{
		MaxInFlight:  c.Throttle.MaxInFlight,
		QueueTimeout: time.Duration(c.Throttle.QueueTimeout),
	}
}

// DetectorConfig converts the detection section for domain.NewDetector.
func (c *Config) DetectorConfig() domain.DetectorConfig {
	return domain.DetectorConfig{
		CacheTTL:         time.Duration(c.Domains.Detection.CacheTTL),
		CacheSize:        c.Domains.Detection.CacheSize,
		FingerprintRunes: c.Domains.Detection.FingerprintRunes,
	}
}

// AdjusterConfig converts the adjustment section for domain.NewAdjuster.
func (c *Config) AdjusterConfig() domain.AdjusterConfig {
	def := domain.DefaultAdjusterConfig()
	return domain.AdjusterConfig{
		PatternWeight:     c.Domains.Adjustment.PatternWeight,
		PerformanceWeight: c.Domains.Adjustment.PerformanceWeight,
		ContextWeight:     c.Domains.Adjustment.ContextWeight,
		PerformanceWindow: c.Domains.Adjustment.PerformanceWindow,
		BrandBonus:        def.BrandBonus,
		AdminBonus:        def.AdminBonus,
		CriticalBonus:     def.CriticalBonus,
		DraftPenalty:      def.DraftPenalty,
		MinMultiplier:     c.Domains.Adjustment.MinMultiplier,
		MaxMultiplier:     c.Domains.Adjustment.MaxMultiplier,
	}
}

// FeedbackConfig converts the feedback section for feedback.NewService.
func (c *Config) FeedbackConfig() feedback.Config {
	return feedback.Config{
		HistorySize:          c.Feedback.HistorySize,
		PatternMinConfidence: c.Feedback.PatternMinConfidence,
		Calibration: feedback.CalibrationConfig{
			MinSamples:     c.Feedback.Calibration.MinSamples,
			LowAcceptance:  c.Feedback.Calibration.LowAcceptance,
			HighAcceptance: c.Feedback.Calibration.HighAcceptance,
			MinStability:   c.Feedback.Calibration.MinStability,
			MinF1:          c.Feedback.Calibration.MinF1,
			DecreaseStep:   c.Feedback.Calibration.DecreaseStep,
			IncreaseStep:   c.Feedback.Calibration.IncreaseStep,
			TrendStep:      c.Feedback.Calibration.TrendStep,
			DriftFraction:  c.Feedback.Calibration.DriftFraction,
			MinThreshold:   c.Feedback.Calibration.MinThreshold,
			MaxThreshold:   c.Feedback.Calibration.MaxThreshold,
		},
		Stats: stats.Config{
			Window:          c.Feedback.Stats.Window,
			TrendDeadband:   c.Feedback.Stats.TrendDeadband,
			MinTrendSamples: c.Feedback.Stats.MinTrendSamples,
			SignificanceZ:   c.Feedback.Stats.SignificanceZ,
		},
	}
}

// AIConfig converts the ai section for suggest.NewAI.
func (c *Config) AIConfig() suggest.AIConfig {
	return suggest.AIConfig{
		MinTextLength:  c.Producers.AI.MinTextLength,
		MaxSuggestions: c.Producers.AI.MaxSuggestions,
	}
}

// HeuristicConfig converts the heuristic section for
// suggest.NewHeuristic.
func (c *Config) HeuristicConfig() suggest.HeuristicConfig {
	return suggest.HeuristicConfig{ContactEmail: c.Producers.Heuristic.ContactEmail}
}

// ContextualConfig converts the contextual section for
// suggest.NewContextual.
func (c *Config) ContextualConfig() suggest.ContextualConfig {
	return suggest.ContextualConfig{
		MaxAlternatives: c.Producers.Contextual.MaxAlternatives,
		Window:          c.Producers.Contextual.WindowRunes,
	}
}
