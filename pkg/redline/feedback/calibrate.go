package feedback

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/cognicore/redline/pkg/redline/entity"
	"github.com/cognicore/redline/pkg/redline/stats"
	"github.com/cognicore/redline/pkg/redline/store"
)

// Calibration reasons, attached to every evaluated pair.
const (
	ReasonInsufficientSamples = "insufficient_samples"
	ReasonLowAcceptance       = "low_acceptance"
	ReasonHighAcceptance      = "high_acceptance"
	ReasonDecliningTrend      = "declining_trend"
	ReasonLowStability        = "low_stability"
	ReasonNoChange            = "no_change"
)

// CalibrationConfig tunes the recalibration pass.
type CalibrationConfig struct {
	// MinSamples is the history length below which a pair's threshold is
	// reset to base instead of adjusted.
	// Default: 10
	MinSamples int

	// LowAcceptance triggers a threshold decrease below this rate.
	// Default: 0.3
	LowAcceptance float64

	// HighAcceptance triggers a threshold increase above this rate.
	// Default: 0.9
	HighAcceptance float64

	// MinStability marks a pair unstable below this index and drifts its
	// threshold toward base.
	// Default: 0.6
	MinStability float64

	// MinF1 flags a pair for attention below this score.
	// Default: 0.5
	MinF1 float64

	// DecreaseStep is the low-acceptance adjustment.
	// Default: 0.10
	DecreaseStep float64

	// IncreaseStep is the high-acceptance adjustment.
	// Default: 0.15
	IncreaseStep float64

	// TrendStep is the declining-trend adjustment.
	// Default: 0.05
	TrendStep float64

	// DriftFraction is how far an unstable threshold moves toward base.
	// Default: 0.3
	DriftFraction float64

	// MinThreshold and MaxThreshold bound every calibration result.
	// Defaults: 0.1 and 0.9
	MinThreshold float64
	MaxThreshold float64
}

// DefaultCalibrationConfig returns the stock calibration tuning.
func DefaultCalibrationConfig() CalibrationConfig {
	return CalibrationConfig{
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
	}
}

// PairMetrics summarizes a pair's feedback history. Precision is proxied
// by the acceptance rate; recall discounts it by how much the current
// threshold holds back.
type PairMetrics struct {
	Domain         string      `json:"domain"`
	EntityType     entity.Type `json:"entityType"`
	SampleCount    int         `json:"sampleCount"`
	AcceptanceRate float64     `json:"acceptanceRate"`
	Precision      float64     `json:"precision"`
	Recall         float64     `json:"recall"`
	F1             float64     `json:"f1"`
	Stability      float64     `json:"stability"`
	Trend          stats.Trend `json:"trend"`
	ZScore         float64     `json:"zScore"`
	Significant    bool        `json:"significant"`
}

// Adjustment is one pair's calibration outcome.
type Adjustment struct {
	PairMetrics
	Flagged              bool    `json:"flagged"`
	Before               float64 `json:"before"`
	After                float64 `json:"after"`
	Reason               string  `json:"reason"`
	EstimatedImprovement float64 `json:"estimatedImprovement"`
}

// Report is the result of one calibration pass.
type Report struct {
	At          time.Time    `json:"at"`
	Evaluated   int          `json:"evaluated"`
	Flagged     int          `json:"flagged"`
	Changed     int          `json:"changed"`
	Adjustments []Adjustment `json:"adjustments"`
}

// Calibrate re-derives every tracked pair's threshold from its feedback
// history and persists the results. It never runs inside a suggestion
// request; the scheduler or an operator invokes it.
func (s *Service) Calibrate(ctx context.Context) (Report, error) {
	now := s.clock()
	report := Report{At: now}

	s.mu.Lock()
	keys := make([]pairKey, 0, len(s.history))
	for key := range s.history {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].domain != keys[j].domain {
			return keys[i].domain < keys[j].domain
		}
		return keys[i].entityType < keys[j].entityType
	})

	var pending []store.ThresholdRecord
	for _, key := range keys {
		adj := s.calibratePairLocked(key, now)
		report.Adjustments = append(report.Adjustments, adj)
		report.Evaluated++
		if adj.Flagged {
			report.Flagged++
		}
		if adj.After != adj.Before {
			report.Changed++
		}

		th := s.thresholds[key]
		pending = append(pending, store.ThresholdRecord{
			Domain:       th.Domain,
			EntityType:   string(th.EntityType),
			Base:         th.Base,
			Current:      th.Current,
			LastAdjusted: th.LastAdjusted,
			SampleCount:  int64(th.SampleCount),
		})
	}
	s.mu.Unlock()

	for _, adj := range report.Adjustments {
		if adj.After != adj.Before {
			s.log.Info("threshold calibrated",
				zap.String("domain", adj.Domain),
				zap.String("entityType", string(adj.EntityType)),
				zap.Float64("before", adj.Before),
				zap.Float64("after", adj.After),
				zap.String("reason", adj.Reason),
				zap.Float64("acceptanceRate", adj.AcceptanceRate),
				zap.Float64("estimatedImprovement", adj.EstimatedImprovement),
				zap.Bool("significant", adj.Significant))
		}
	}

	if s.store != nil {
		for _, rec := range pending {
			if err := s.store.SaveThreshold(ctx, rec); err != nil {
				return report, fmt.Errorf("save threshold %s/%s: %w", rec.Domain, rec.EntityType, err)
			}
		}
	}
	return report, nil
}

// calibratePairLocked evaluates one pair and applies the first matching
// rule. Callers hold s.mu.
func (s *Service) calibratePairLocked(key pairKey, now time.Time) Adjustment {
	cc := s.cfg.Calibration
	th := s.thresholdLocked(key)
	outcomes := s.history[key].last(0)

	m := s.pairMetricsLocked(key, th, outcomes)
	adj := Adjustment{
		PairMetrics: m,
		Before:      th.Current,
		After:       th.Current,
		Reason:      ReasonNoChange,
	}
	adj.Flagged = m.SampleCount < cc.MinSamples ||
		m.AcceptanceRate < cc.LowAcceptance ||
		m.AcceptanceRate > cc.HighAcceptance ||
		m.Stability < cc.MinStability ||
		m.Trend == stats.TrendDeclining ||
		m.F1 < cc.MinF1

	// Rates from a handful of events are noise, so the sample check runs
	// before any rate-driven rule.
	switch {
	case m.SampleCount < cc.MinSamples:
		adj.After = th.Base
		adj.Reason = ReasonInsufficientSamples
	case m.AcceptanceRate < cc.LowAcceptance:
		adj.After = th.Current - cc.DecreaseStep
		adj.Reason = ReasonLowAcceptance
	case m.AcceptanceRate > cc.HighAcceptance:
		adj.After = th.Current + cc.IncreaseStep
		adj.Reason = ReasonHighAcceptance
	case m.Trend == stats.TrendDeclining:
		adj.After = th.Current - cc.TrendStep
		adj.Reason = ReasonDecliningTrend
	case m.Stability < cc.MinStability:
		adj.After = th.Current + cc.DriftFraction*(th.Base-th.Current)
		adj.Reason = ReasonLowStability
	}

	adj.After = stats.Round3(stats.Clamp(adj.After, cc.MinThreshold, cc.MaxThreshold))
	adj.EstimatedImprovement = stats.EstimatedImprovement(adj.Before, adj.After, m.AcceptanceRate)

	if adj.After != adj.Before {
		th.Current = adj.After
		th.LastAdjusted = now
	}
	th.SampleCount = m.SampleCount
	return adj
}

func (s *Service) pairMetricsLocked(key pairKey, th *Threshold, outcomes []int) PairMetrics {
	rate := stats.AcceptanceRate(outcomes)
	precision := rate
	recall := stats.Clamp01(rate * (1.1 - th.Current))
	f1 := 0.0
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	z := stats.ZScoreProportion(rate, len(outcomes))

	return PairMetrics{
		Domain:         key.domain,
		EntityType:     key.entityType,
		SampleCount:    len(outcomes),
		AcceptanceRate: rate,
		Precision:      precision,
		Recall:         recall,
		F1:             f1,
		Stability:      stats.Stability(outcomes, s.cfg.Stats),
		Trend:          stats.TrendOf(outcomes, s.cfg.Stats),
		ZScore:         z,
		Significant:    stats.Significant99(z, s.cfg.Stats),
	}
}
