// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"io"
	"math"
)

// SyntheticParams shapes a generated delivery: a still lead-in, a push-off at
// constant forward acceleration, a glide with constant drag, then rest.
type SyntheticParams struct {
	RateHz       float64 // samples per second on both streams
	Lead         float64 // seconds at rest before push-off
	Pushoff      float64 // seconds of push-off
	PushoffAccel float64 // m/s² forward during push-off
	Glide        float64 // seconds of glide
	GlideDecel   float64 // m/s² drag during glide (positive number)
	Tail         float64 // seconds at rest after the glide
	Wobble       float64 // °/s amplitude of pitch/roll oscillation
}

// DefaultSyntheticParams returns a ~15 s delivery at 50 Hz, long enough for
// the auto-stop grace period to elapse.
func DefaultSyntheticParams() SyntheticParams {
	return SyntheticParams{
		RateHz:       50,
		Lead:         1.0,
		Pushoff:      0.6,
		PushoffAccel: 4.0,
		Glide:        8.0,
		GlideDecel:   0.8,
		Tail:         5.0,
		Wobble:       20,
	}
}

// Duration is the total generated length in seconds.
func (p SyntheticParams) Duration() float64 {
	return p.Lead + p.Pushoff + p.Glide + p.Tail
}

// SyntheticSource generates a delivery on a virtual clock, one pair of
// samples per call to Next. It returns io.EOF after Duration.
type SyntheticSource struct {
	params SyntheticParams
	n      int
}

// NewSyntheticSource creates a generator for p.
func NewSyntheticSource(p SyntheticParams) *SyntheticSource {
	if p.RateHz <= 0 {
		p.RateHz = 50
	}
	return &SyntheticSource{params: p}
}

func (s *SyntheticSource) Next() (Sample, Sample, error) {
	p := s.params
	t := float64(s.n) / p.RateHz
	if t > p.Duration() {
		return Sample{}, Sample{}, io.EOF
	}
	s.n++

	var ax float64
	moving := false
	switch {
	case t < p.Lead:
	case t < p.Lead+p.Pushoff:
		ax = p.PushoffAccel
		moving = true
	case t < p.Lead+p.Pushoff+p.Glide:
		ax = -p.GlideDecel
		moving = true
	}

	gyro := Sample{Timestamp: t}
	if moving {
		gyro.Gx = p.Wobble * math.Sin(2*math.Pi*1.3*t)
		gyro.Gy = 0.6 * p.Wobble * math.Cos(2*math.Pi*0.9*t)
		gyro.Gz = 5 * math.Sin(t)
	}

	return Sample{Timestamp: t, Ax: ax}, gyro, nil
}

// SyntheticDelivery drains a SyntheticSource into two streams.
func SyntheticDelivery(p SyntheticParams) (accel, gyro []Sample) {
	src := NewSyntheticSource(p)
	for {
		a, g, err := src.Next()
		if err != nil {
			return accel, gyro
		}
		accel = append(accel, a)
		gyro = append(gyro, g)
	}
}
