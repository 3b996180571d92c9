// Package stats holds the acceptance math shared by domain adjustment
// and threshold calibration: rates, stability, trend direction and the
// significance test applied to feedback outcome streams.
package stats

import "math"

// Trend classifies how an acceptance stream is moving over time.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

// Config controls the windowed statistics.
type Config struct {
	// Window is the sliding-window size used for stability estimation.
	// Default: 10
	Window int

	// TrendDeadband is the half-vs-half rate difference below which a
	// stream counts as stable rather than improving/declining.
	// Default: 0.05
	TrendDeadband float64

	// MinTrendSamples is the minimum stream length for trend detection.
	// Shorter streams report TrendStable.
	// Default: 4
	MinTrendSamples int

	// SignificanceZ is the z-score bar for the 99% significance flag.
	// Default: 2.58 (two-sided 99%)
	SignificanceZ float64
}

// DefaultConfig returns the windowing defaults used by calibration.
func DefaultConfig() Config {
	return Config{
		Window:          10,
		TrendDeadband:   0.05,
		MinTrendSamples: 4,
		SignificanceZ:   2.58,
	}
}

// AcceptanceRate is the mean of a 0/1 outcome stream. Empty streams
// report 0.
func AcceptanceRate(outcomes []int) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	sum := 0
	for _, o := range outcomes {
		if o > 0 {
			sum++
		}
	}
	return float64(sum) / float64(len(outcomes))
}

// Stability measures how consistent the acceptance rate is across
// sliding windows: 1 minus the population stddev of per-window rates.
// Streams too short to form two windows are considered fully stable.
func Stability(outcomes []int, cfg Config) float64 {
	w := cfg.Window
	if w <= 0 {
		w = DefaultConfig().Window
	}
	if len(outcomes) < w+1 {
		return 1.0
	}

	var rates []float64
	for i := 0; i+w <= len(outcomes); i++ {
		rates = append(rates, AcceptanceRate(outcomes[i:i+w]))
	}
	if len(rates) < 2 {
		return 1.0
	}

	mean := 0.0
	for _, r := range rates {
		mean += r
	}
	mean /= float64(len(rates))

	variance := 0.0
	for _, r := range rates {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(rates))

	return Clamp01(1.0 - math.Sqrt(variance))
}

// TrendOf compares the first and second half of the stream. A rate
// difference inside the deadband reports TrendStable.
func TrendOf(outcomes []int, cfg Config) Trend {
	min := cfg.MinTrendSamples
	if min <= 0 {
		min = DefaultConfig().MinTrendSamples
	}
	if len(outcomes) < min {
		return TrendStable
	}

	half := len(outcomes) / 2
	first := AcceptanceRate(outcomes[:half])
	second := AcceptanceRate(outcomes[half:])

	deadband := cfg.TrendDeadband
	if deadband <= 0 {
		deadband = DefaultConfig().TrendDeadband
	}

	switch {
	case second-first > deadband:
		return TrendImproving
	case first-second > deadband:
		return TrendDeclining
	default:
		return TrendStable
	}
}

// ZScoreProportion runs a one-proportion z-test of the observed rate
// against the null hypothesis p0 = 0.5 (feedback is a coin flip).
func ZScoreProportion(rate float64, n int) float64 {
	if n <= 0 {
		return 0
	}
	se := math.Sqrt(0.25 / float64(n))
	return (rate - 0.5) / se
}

// Significant99 reports whether a z-score clears the two-sided 99% bar.
func Significant99(z float64, cfg Config) bool {
	bar := cfg.SignificanceZ
	if bar <= 0 {
		bar = DefaultConfig().SignificanceZ
	}
	return math.Abs(z) > bar
}

// EstimatedImprovement projects how much a threshold move should help:
// proportional to the size of the move and to the headroom left in the
// acceptance rate.
func EstimatedImprovement(oldThreshold, newThreshold, rate float64) float64 {
	return Round3(math.Abs(newThreshold-oldThreshold) * (1.0 - rate))
}

// Round3 rounds half away from zero to three decimals.
func Round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}

// Clamp bounds x to [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Clamp01 bounds x to the unit interval.
func Clamp01(x float64) float64 {
	return Clamp(x, 0, 1)
}
