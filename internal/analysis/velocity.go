// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package analysis

import (
	"math"

	"github.com/relabs-tech/delivery_analyzer/internal/imu"
)

// VelocityPoint is one entry of a VelocitySeries.
type VelocityPoint struct {
	T float64 `json:"t"` // s
	V float64 `json:"v"` // m/s
}

// VelocitySeries is forward velocity over time, one point per acceleration
// sample.
type VelocitySeries []VelocityPoint

// Integrate reconstructs forward velocity from the forward (x) axis with the
// trapezoidal rule, starting from rest. Values are not clamped and may go
// negative.
func Integrate(accel []imu.Sample) VelocitySeries {
	out := make(VelocitySeries, len(accel))
	for i := range accel {
		out[i].T = accel[i].Timestamp
		if i == 0 {
			continue
		}
		dt := accel[i].Timestamp - accel[i-1].Timestamp
		avg := (accel[i].Ax + accel[i-1].Ax) / 2
		out[i].V = out[i-1].V + avg*dt
	}
	return out
}

// PeakAbs returns the largest |v|, or 0 for an empty series.
func (v VelocitySeries) PeakAbs() float64 {
	var peak float64
	for _, p := range v {
		peak = math.Max(peak, math.Abs(p.V))
	}
	return peak
}
