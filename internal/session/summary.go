// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package session

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// Trend is the direction of stability across a session.
type Trend string

const (
	TrendStable    Trend = "Stable"
	TrendImproving Trend = "Improving"
	TrendDeclining Trend = "Declining"
)

const (
	trendWindow    = 3
	trendThreshold = 5.0
)

// Summary is derived from a throw list on demand and never stored as the
// source of truth.
type Summary struct {
	Count        int     `json:"count"`
	AvgPushoff   float64 `json:"avg_pushoff"`
	AvgVelocity  float64 `json:"avg_velocity"`
	AvgStability float64 `json:"avg_stability"`
	BestGlide    string  `json:"best_glide"`
	Consistency  float64 `json:"consistency"`
	Improvement  Trend   `json:"improvement"`
}

// Summarize folds an ordered (oldest first) throw list into a Summary.
// It has no side effects; the same input always yields the same result.
func Summarize(throws []ThrowMetrics) Summary {
	sum := Summary{
		Count:       len(throws),
		BestGlide:   string(GlideGood),
		Improvement: TrendStable,
	}
	if len(throws) == 0 {
		return sum
	}

	pushoff := make([]float64, len(throws))
	velocity := make([]float64, len(throws))
	stability := make([]float64, len(throws))
	var excellent, veryGood int
	for i, m := range throws {
		pushoff[i] = m.PushoffStrength
		velocity[i] = m.PeakVelocity
		stability[i] = m.StabilityScore
		switch m.GlideEfficiency {
		case GlideExcellent:
			excellent++
		case GlideVeryGood:
			veryGood++
		}
	}

	sum.AvgPushoff = stat.Mean(pushoff, nil)
	sum.AvgVelocity = stat.Mean(velocity, nil)
	sum.AvgStability = stat.Mean(stability, nil)

	switch {
	case excellent > 0:
		sum.BestGlide = fmt.Sprintf("%d %s", excellent, GlideExcellent)
	case veryGood > 0:
		sum.BestGlide = fmt.Sprintf("%d %s", veryGood, GlideVeryGood)
	}

	avgCV := (CoefficientOfVariation(pushoff) +
		CoefficientOfVariation(velocity) +
		CoefficientOfVariation(stability)) / 3
	sum.Consistency = max(0, 100-avgCV*10)

	sum.Improvement = trend(stability)
	return sum
}

// CoefficientOfVariation returns popStdDev/mean*100, or 0 for an empty
// series or a zero mean.
func CoefficientOfVariation(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	mean, std := stat.PopMeanStdDev(x, nil)
	if mean == 0 {
		return 0
	}
	return std / mean * 100
}

func trend(stability []float64) Trend {
	if len(stability) < trendWindow {
		return TrendStable
	}
	early := stat.Mean(stability[:trendWindow], nil)
	recent := stat.Mean(stability[len(stability)-trendWindow:], nil)
	switch {
	case recent > early+trendThreshold:
		return TrendImproving
	case recent < early-trendThreshold:
		return TrendDeclining
	}
	return TrendStable
}
