// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package analysis

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/relabs-tech/delivery_analyzer/internal/imu"
)

func squaredRate(s imu.Sample, axes Axes) float64 {
	var sum float64
	if axes.Has(Pitch) {
		sum += s.Gx * s.Gx
	}
	if axes.Has(Roll) {
		sum += s.Gy * s.Gy
	}
	if axes.Has(Yaw) {
		sum += s.Gz * s.Gz
	}
	return sum
}

// StabilitySeries returns the moving RMS of the selected angular rates over
// [i-halfWindow, i+halfWindow], clamped to the series bounds.
func StabilitySeries(gyro []imu.Sample, axes Axes, halfWindow int) []float64 {
	sq := make([]float64, len(gyro))
	for i, s := range gyro {
		sq[i] = squaredRate(s, axes)
	}

	out := make([]float64, len(gyro))
	for i := range sq {
		lo := max(0, i-halfWindow)
		hi := min(len(sq)-1, i+halfWindow)
		var sum float64
		for j := lo; j <= hi; j++ {
			sum += sq[j]
		}
		out[i] = math.Sqrt(sum / float64(hi-lo+1))
	}
	return out
}

// RateVariance is the population variance of the per-sample angular-rate
// magnitude over the selected axes; 0 for an empty stream.
func RateVariance(gyro []imu.Sample, axes Axes) float64 {
	if len(gyro) == 0 {
		return 0
	}
	mags := make([]float64, len(gyro))
	for i, s := range gyro {
		mags[i] = math.Sqrt(squaredRate(s, axes))
	}
	return stat.PopVariance(mags, nil)
}

// ScoreFromVariance maps a rate variance onto 0..100, higher being steadier.
// The log keeps real-world variances, which span several orders of
// magnitude, from saturating the score.
func ScoreFromVariance(variance float64) float64 {
	score := 100 - math.Log10(variance+1)*20
	return math.Max(0, math.Min(100, score))
}

// StabilityScore is ScoreFromVariance(RateVariance(gyro, axes)).
func StabilityScore(gyro []imu.Sample, axes Axes) float64 {
	return ScoreFromVariance(RateVariance(gyro, axes))
}
