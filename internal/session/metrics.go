// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package session

import (
	"fmt"
	"math"
	"time"
)

// Glide is the glide-efficiency classification of one delivery.
type Glide string

const (
	GlidePoor      Glide = "Poor (High Drag)"
	GlideGood      Glide = "Good"
	GlideVeryGood  Glide = "Very Good"
	GlideExcellent Glide = "Excellent"
)

// ParseGlide validates a stored label.
func ParseGlide(s string) (Glide, error) {
	switch g := Glide(s); g {
	case GlidePoor, GlideGood, GlideVeryGood, GlideExcellent:
		return g, nil
	}
	return "", fmt.Errorf("unknown glide efficiency %q", s)
}

// ThrowMetrics is the finalized record of one delivery. It is created once
// by the analysis pipeline and never modified afterwards.
type ThrowMetrics struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	PushoffStrength float64 `json:"pushoff_strength"` // m/s²
	PeakVelocity    float64 `json:"peak_velocity"`    // m/s
	SlideDuration   float64 `json:"slide_duration"`   // s
	DecelRate       float64 `json:"decel_rate"`       // m/s², absolute
	StabilityScore  float64 `json:"stability_score"`  // 0..100

	GlideEfficiency Glide `json:"glide_efficiency"`
}

// Finite reports whether every numeric field is a finite number.
func (m ThrowMetrics) Finite() bool {
	for _, v := range [...]float64{m.PushoffStrength, m.PeakVelocity, m.SlideDuration, m.DecelRate, m.StabilityScore} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
