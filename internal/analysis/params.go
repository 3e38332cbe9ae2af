// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package analysis turns a frozen capture of one delivery into a trimmed
// capture, a velocity series, a stability series and a ThrowMetrics record.
//
// Every function in this package is pure and synchronous. Callers must pass
// a frozen imu.RawCapture, never a live buffer.
package analysis

import (
	"fmt"
	"strings"
)

// Axis selects an angular-rate axis.
type Axis uint8

const (
	Pitch Axis = 1 << iota // gx
	Roll                   // gy
	Yaw                    // gz
)

// Axes is a set of angular-rate axes.
type Axes uint8

// DefaultStabilityAxes excludes yaw: heading changes during a delivery are
// intentional and not a sign of instability.
const DefaultStabilityAxes = Axes(Pitch) | Axes(Roll)

// Has reports whether a is in the set.
func (s Axes) Has(a Axis) bool {
	return s&Axes(a) != 0
}

func (s Axes) String() string {
	var names []string
	if s.Has(Pitch) {
		names = append(names, "pitch")
	}
	if s.Has(Roll) {
		names = append(names, "roll")
	}
	if s.Has(Yaw) {
		names = append(names, "yaw")
	}
	return strings.Join(names, ",")
}

// ParseAxes reads a comma separated list such as "pitch,roll".
func ParseAxes(s string) (Axes, error) {
	var axes Axes
	for _, name := range strings.Split(s, ",") {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "pitch", "x":
			axes |= Axes(Pitch)
		case "roll", "y":
			axes |= Axes(Roll)
		case "yaw", "z":
			axes |= Axes(Yaw)
		case "":
		default:
			return 0, fmt.Errorf("unknown stability axis %q", name)
		}
	}
	if axes == 0 {
		return 0, fmt.Errorf("at least one stability axis is required")
	}
	return axes, nil
}

// Params holds the thresholds of the pipeline.
type Params struct {
	// Trimming
	StartThreshold  float64 // m/s², first sample above this starts the delivery
	PreRoll         int     // samples kept before the start
	EndSearchOffset int     // samples after the start before looking for the end
	CalmThreshold   float64 // m/s², samples below this count as calm
	CalmRun         int     // consecutive calm samples that end the delivery
	SettleMargin    int     // calm samples kept after the delivery

	// Stability
	StabilityHalfWindow int
	StabilityAxes       Axes

	// Metrics
	PushoffFraction     float64 // share of samples treated as push-off
	GlidePoorAbove      float64
	GlideVeryGoodBelow  float64
	GlideExcellentBelow float64
}

// DefaultParams returns the stock pipeline tuning.
func DefaultParams() Params {
	return Params{
		StartThreshold:  2.0,
		PreRoll:         5,
		EndSearchOffset: 30,
		CalmThreshold:   1.5,
		CalmRun:         20,
		SettleMargin:    10,

		StabilityHalfWindow: 2,
		StabilityAxes:       DefaultStabilityAxes,

		PushoffFraction:     0.2,
		GlidePoorAbove:      2.0,
		GlideVeryGoodBelow:  1.0,
		GlideExcellentBelow: 0.5,
	}
}

// Validate checks that the thresholds are usable.
func (p Params) Validate() error {
	switch {
	case p.PreRoll < 0 || p.EndSearchOffset < 0 || p.SettleMargin < 0:
		return fmt.Errorf("trim sample counts must not be negative")
	case p.CalmRun <= 0:
		return fmt.Errorf("calm run must be positive, got %d", p.CalmRun)
	case p.StabilityHalfWindow < 0:
		return fmt.Errorf("stability half window must not be negative")
	case p.StabilityAxes == 0:
		return fmt.Errorf("at least one stability axis is required")
	case p.PushoffFraction <= 0 || p.PushoffFraction > 1:
		return fmt.Errorf("push-off fraction must be in (0,1], got %v", p.PushoffFraction)
	case !(p.GlideExcellentBelow <= p.GlideVeryGoodBelow && p.GlideVeryGoodBelow <= p.GlidePoorAbove):
		return fmt.Errorf("glide thresholds must be ordered excellent <= very good <= poor")
	}
	return nil
}
