// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package analysis

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/relabs-tech/delivery_analyzer/internal/imu"
	"github.com/relabs-tech/delivery_analyzer/internal/session"
)

// ErrNonFiniteMetric is returned instead of a record holding NaN or Inf.
var ErrNonFiniteMetric = errors.New("analysis: metrics are not finite")

// Stamp is the identity given to a new ThrowMetrics.
type Stamp struct {
	ID string
	At time.Time
}

// NewStamp returns a random ID and the current time.
func NewStamp() Stamp {
	return Stamp{ID: uuid.NewString(), At: time.Now().UTC()}
}

// Result carries the metrics of one delivery and the series they were
// derived from, for presentation.
type Result struct {
	Metrics   session.ThrowMetrics `json:"metrics"`
	Trimmed   TrimmedCapture       `json:"trimmed"`
	Velocity  VelocitySeries       `json:"velocity"`
	Stability []float64            `json:"stability"`
}

// ClassifyGlide labels an absolute deceleration rate. The high-drag check
// runs first.
func ClassifyGlide(decel float64, p Params) session.Glide {
	switch {
	case decel > p.GlidePoorAbove:
		return session.GlidePoor
	case decel < p.GlideExcellentBelow:
		return session.GlideExcellent
	case decel < p.GlideVeryGoodBelow:
		return session.GlideVeryGood
	}
	return session.GlideGood
}

// PushoffWindow returns how many leading samples count as push-off: the
// PushoffFraction share of n rounded down, but at least one.
func PushoffWindow(n int, p Params) int {
	if n == 0 {
		return 0
	}
	return min(n, max(1, int(math.Floor(float64(n)*p.PushoffFraction))))
}

// PushoffStrength is the largest |ax| within the push-off window.
func PushoffStrength(accel []imu.Sample, p Params) float64 {
	var peak float64
	for _, s := range accel[:PushoffWindow(len(accel), p)] {
		peak = math.Max(peak, math.Abs(s.Ax))
	}
	return peak
}

// DecelRate is |mean| of the strictly negative ax values after the push-off
// window, or 0 when there are none.
func DecelRate(accel []imu.Sample, p Params) float64 {
	var negative []float64
	for _, s := range accel[PushoffWindow(len(accel), p):] {
		if s.Ax < 0 {
			negative = append(negative, s.Ax)
		}
	}
	if len(negative) == 0 {
		return 0
	}
	return math.Abs(stat.Mean(negative, nil))
}

// Extract reduces a trimmed capture to one ThrowMetrics.
func Extract(t TrimmedCapture, p Params, stamp Stamp) (Result, error) {
	if len(t.Accel) == 0 {
		return Result{}, ErrNoData
	}

	velocity := Integrate(t.Accel)
	decel := DecelRate(t.Accel, p)

	m := session.ThrowMetrics{
		ID:              stamp.ID,
		Timestamp:       stamp.At,
		PushoffStrength: PushoffStrength(t.Accel, p),
		PeakVelocity:    velocity.PeakAbs(),
		SlideDuration:   t.Accel[len(t.Accel)-1].Timestamp - t.Accel[0].Timestamp,
		DecelRate:       decel,
		StabilityScore:  StabilityScore(t.Gyro, p.StabilityAxes),
		GlideEfficiency: ClassifyGlide(decel, p),
	}
	if !m.Finite() {
		return Result{}, fmt.Errorf("%w: %+v", ErrNonFiniteMetric, m)
	}

	return Result{
		Metrics:   m,
		Trimmed:   t,
		Velocity:  velocity,
		Stability: StabilitySeries(t.Gyro, p.StabilityAxes, p.StabilityHalfWindow),
	}, nil
}

// Process runs the whole pipeline on a frozen capture.
func Process(c imu.RawCapture, p Params, stamp Stamp) (Result, error) {
	trimmed, err := Trim(c, p)
	if err != nil {
		return Result{}, err
	}
	return Extract(trimmed, p, stamp)
}
