// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package recording

import (
	"math"

	"github.com/relabs-tech/delivery_analyzer/internal/imu"
)

// Params configures when a live recording stops on its own.
type Params struct {
	GracePeriod   float64 // seconds before the detector starts evaluating
	CheckInterval float64 // minimum seconds between evaluations
	CalmWindow    float64 // seconds of history kept for the calm test
	CalmThreshold float64 // m/s², every entry in the window must be below this
}

// DefaultParams returns the stock auto-stop tuning.
func DefaultParams() Params {
	return Params{
		GracePeriod:   10.0,
		CheckInterval: 0.5,
		CalmWindow:    3.0,
		CalmThreshold: 1.5,
	}
}

// MinEntries is the number of evaluations needed to cover CalmWindow.
func (p Params) MinEntries() int {
	if p.CheckInterval <= 0 {
		return 1
	}
	return int(math.Round(p.CalmWindow / p.CheckInterval))
}

type magnitudeEntry struct {
	t   float64
	mag float64
}

// AutoStopDetector watches acceleration magnitude and fires once when motion
// has stayed calm for CalmWindow seconds after the grace period.
//
// It is not safe for concurrent use; the recording Session calls it inline
// with each acceleration append.
type AutoStopDetector struct {
	params    Params
	entries   []magnitudeEntry
	lastCheck float64
	checked   bool
	fired     bool
}

// NewAutoStopDetector creates a detector for p.
func NewAutoStopDetector(p Params) *AutoStopDetector {
	return &AutoStopDetector{params: p}
}

// Armed reports whether t is past the grace period.
func (d *AutoStopDetector) Armed(t float64) bool {
	return t > d.params.GracePeriod
}

// Fired reports whether the detector has already signalled.
func (d *AutoStopDetector) Fired() bool {
	return d.fired
}

// Observe feeds one acceleration sample and returns true exactly once, on
// the evaluation that finds the window calm.
func (d *AutoStopDetector) Observe(s imu.Sample) bool {
	if d.fired || !d.Armed(s.Timestamp) {
		return false
	}
	if d.checked && s.Timestamp-d.lastCheck < d.params.CheckInterval {
		return false
	}
	d.checked = true
	d.lastCheck = s.Timestamp

	d.entries = append(d.entries, magnitudeEntry{t: s.Timestamp, mag: s.AccelMagnitude()})

	// drop entries older than the window
	cut := 0
	for cut < len(d.entries) && s.Timestamp-d.entries[cut].t > d.params.CalmWindow {
		cut++
	}
	if cut > 0 {
		d.entries = append(d.entries[:0], d.entries[cut:]...)
	}

	if len(d.entries) < d.params.MinEntries() {
		return false
	}
	for _, e := range d.entries {
		if e.mag >= d.params.CalmThreshold {
			return false
		}
	}
	d.fired = true
	return true
}

// Reset re-arms the detector for a new recording.
func (d *AutoStopDetector) Reset() {
	d.entries = d.entries[:0]
	d.lastCheck = 0
	d.checked = false
	d.fired = false
}
