// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package analysis

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/delivery_analyzer/internal/imu"
	"github.com/relabs-tech/delivery_analyzer/internal/session"
)

// forward builds an acceleration stream from forward-axis values at dt steps.
func forward(dt float64, ax ...float64) []imu.Sample {
	out := make([]imu.Sample, len(ax))
	for i, a := range ax {
		out[i] = imu.Sample{Timestamp: float64(i) * dt, Ax: a}
	}
	return out
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func concat(parts ...[]float64) []float64 {
	var out []float64
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

var testStamp = Stamp{ID: "throw-1", At: time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)}

func TestTrimStart(t *testing.T) {
	t.Parallel()
	p := DefaultParams()

	t.Run("sub-threshold stream starts at zero", func(t *testing.T) {
		t.Parallel()
		accel := forward(0.1, repeat(1.9, 80)...)
		assert.Equal(t, 0, FindStart(accel, p))
	})

	t.Run("keeps five samples of pre-roll", func(t *testing.T) {
		t.Parallel()
		accel := forward(0.1, concat(repeat(0, 12), repeat(3, 5), repeat(0, 60))...)
		assert.Equal(t, 7, FindStart(accel, p))
	})

	t.Run("threshold is strict", func(t *testing.T) {
		t.Parallel()
		accel := forward(0.1, concat(repeat(2.0, 10), []float64{2.1})...)
		assert.Equal(t, 5, FindStart(accel, p))
	})

	t.Run("uses all three axes", func(t *testing.T) {
		t.Parallel()
		accel := make([]imu.Sample, 10)
		for i := range accel {
			accel[i].Timestamp = float64(i)
		}
		accel[8].Ay = 1.5
		accel[8].Az = 1.5 // |a| = 2.12
		assert.Equal(t, 3, FindStart(accel, p))
	})
}

func TestTrimEnd(t *testing.T) {
	t.Parallel()
	p := DefaultParams()

	t.Run("ramp scenario", func(t *testing.T) {
		t.Parallel()
		accel := forward(0.1, concat(repeat(0, 3), repeat(3, 4), repeat(0, 60))...)
		start := FindStart(accel, p)
		assert.Equal(t, 0, start)
		// scan begins at 30; the run of 20 completes at 49
		assert.Equal(t, 39, FindEnd(accel, start, p))
	})

	t.Run("loud sample resets the run", func(t *testing.T) {
		t.Parallel()
		values := concat(repeat(3, 30), repeat(0, 15), []float64{2.0}, repeat(0, 30))
		accel := forward(0.1, values...)
		// run restarts at 46 and completes at 65
		assert.Equal(t, 55, FindEnd(accel, 0, p))
	})

	t.Run("no calm run keeps the tail", func(t *testing.T) {
		t.Parallel()
		accel := forward(0.1, concat(repeat(3, 40), repeat(0, 19))...)
		assert.Equal(t, 58, FindEnd(accel, 0, p))
	})

	t.Run("stream shorter than the search offset", func(t *testing.T) {
		t.Parallel()
		accel := forward(0.1, repeat(0, 12)...)
		assert.Equal(t, 11, FindEnd(accel, 0, p))
	})
}

func TestTrim(t *testing.T) {
	t.Parallel()
	p := DefaultParams()

	t.Run("empty capture", func(t *testing.T) {
		t.Parallel()
		_, err := Trim(imu.RawCapture{}, p)
		assert.ErrorIs(t, err, ErrNoData)
	})

	t.Run("slices both streams and rebases time", func(t *testing.T) {
		t.Parallel()
		accel := forward(0.1, concat(repeat(0, 12), repeat(3, 30), repeat(0, 40))...)
		gyro := forward(0.1, repeat(0, len(accel))...)
		for i := range gyro {
			gyro[i].Gx = float64(i)
		}
		tr, err := Trim(imu.RawCapture{Accel: accel, Gyro: gyro}, p)
		require.NoError(t, err)

		assert.Equal(t, 7, tr.StartIndex)
		// calm from 42; run of 20 completes at 61
		assert.Equal(t, 51, tr.EndIndex)
		assert.Equal(t, AlignByIndex, tr.Alignment)
		assert.False(t, tr.Degraded())
		require.Len(t, tr.Accel, 45)
		require.Len(t, tr.Gyro, 45)
		assert.Equal(t, 0.0, tr.Accel[0].Timestamp)
		assert.InDelta(t, 0.7, tr.Offset, 1e-12)
		assert.InDelta(t, 4.4, tr.Accel[44].Timestamp, 1e-9)
		assert.Equal(t, 7.0, tr.Gyro[0].Gx)
		assert.InDelta(t, 0.0, tr.Gyro[0].Timestamp, 1e-12)

		// the source capture is untouched
		assert.InDelta(t, 0.7, accel[7].Timestamp, 1e-12)
	})

	t.Run("mismatched streams align by timestamp", func(t *testing.T) {
		t.Parallel()
		accel := forward(0.1, concat(repeat(0, 12), repeat(3, 30), repeat(0, 40))...)
		// gyro at half the rate
		gyro := forward(0.2, repeat(1, 41)...)
		tr, err := Trim(imu.RawCapture{Accel: accel, Gyro: gyro}, p)
		require.NoError(t, err)

		assert.Equal(t, AlignByTimestamp, tr.Alignment)
		assert.True(t, tr.Degraded())
		require.NotEmpty(t, tr.Gyro)
		assert.GreaterOrEqual(t, tr.Gyro[0].Timestamp, -1e-9)
		assert.LessOrEqual(t, tr.Gyro[len(tr.Gyro)-1].Timestamp, tr.Accel[len(tr.Accel)-1].Timestamp+1e-9)
		// 0.8 s .. 5.0 s at 0.2 s steps
		assert.Len(t, tr.Gyro, 22)
	})

	t.Run("pair in flight at stop keeps index alignment", func(t *testing.T) {
		t.Parallel()
		accel := forward(0.1, concat(repeat(0, 12), repeat(3, 30), repeat(0, 40))...)
		gyro := forward(0.1, repeat(0, len(accel)-1)...)
		for i := range gyro {
			gyro[i].Gx = float64(i)
		}
		tr, err := Trim(imu.RawCapture{Accel: accel, Gyro: gyro}, p)
		require.NoError(t, err)

		assert.Equal(t, AlignByIndex, tr.Alignment)
		assert.False(t, tr.Degraded())
		require.Len(t, tr.Gyro, len(tr.Accel))
		assert.Equal(t, 7.0, tr.Gyro[0].Gx)
		assert.Equal(t, 51.0, tr.Gyro[len(tr.Gyro)-1].Gx)
	})

	t.Run("short stream that misses the end aligns by timestamp", func(t *testing.T) {
		t.Parallel()
		// no calm run, so the delivery ends at the last sample
		accel := forward(0.1, concat(repeat(0, 12), repeat(3, 70))...)
		gyro := forward(0.1, repeat(0, len(accel)-1)...)
		tr, err := Trim(imu.RawCapture{Accel: accel, Gyro: gyro}, p)
		require.NoError(t, err)

		assert.Equal(t, len(accel)-1, tr.EndIndex)
		assert.Equal(t, AlignByTimestamp, tr.Alignment)
		// samples 7..80
		assert.Len(t, tr.Gyro, 74)
	})
}

func TestIntegrate(t *testing.T) {
	t.Parallel()

	t.Run("constant acceleration", func(t *testing.T) {
		t.Parallel()
		const a, dt = 2.5, 0.01
		v := Integrate(forward(dt, repeat(a, 200)...))
		require.Len(t, v, 200)
		for i, p := range v {
			assert.InDelta(t, float64(i)*a*dt, p.V, 1e-9, "index %d", i)
		}
	})

	t.Run("starts at zero and may go negative", func(t *testing.T) {
		t.Parallel()
		v := Integrate(forward(1, 1, 1, -3, -3))
		assert.Equal(t, VelocitySeries{{0, 0}, {1, 1}, {2, 0}, {3, -3}}, v)
		assert.Equal(t, 3.0, v.PeakAbs())
	})

	t.Run("uneven steps", func(t *testing.T) {
		t.Parallel()
		accel := []imu.Sample{{Timestamp: 0, Ax: 0}, {Timestamp: 0.5, Ax: 2}, {Timestamp: 0.6, Ax: 2}}
		v := Integrate(accel)
		assert.InDelta(t, 0.5, v[1].V, 1e-12)
		assert.InDelta(t, 0.7, v[2].V, 1e-12)
	})

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		v := Integrate(nil)
		assert.Empty(t, v)
		assert.Equal(t, 0.0, v.PeakAbs())
	})
}

func gyroSeries(pitch, roll, yaw []float64) []imu.Sample {
	out := make([]imu.Sample, len(pitch))
	for i := range pitch {
		out[i] = imu.Sample{Timestamp: float64(i) * 0.02, Gx: pitch[i], Gy: roll[i], Gz: yaw[i]}
	}
	return out
}

func TestStabilitySeries(t *testing.T) {
	t.Parallel()

	gyro := gyroSeries(
		[]float64{3, 0, 0, 0, 0},
		[]float64{0, 0, 0, 0, 0},
		[]float64{100, 100, 100, 100, 100},
	)

	rms := StabilitySeries(gyro, DefaultStabilityAxes, 2)
	require.Len(t, rms, 5)
	assert.InDelta(t, math.Sqrt(3), rms[0], 1e-12) // window [0,2]
	assert.InDelta(t, math.Sqrt(9.0/4), rms[1], 1e-12)
	assert.InDelta(t, math.Sqrt(9.0/5), rms[2], 1e-12)
	assert.Equal(t, 0.0, rms[3]) // window [1,4]
	assert.Equal(t, 0.0, rms[4]) // window [2,4]

	withYaw := StabilitySeries(gyro, DefaultStabilityAxes|Axes(Yaw), 2)
	assert.Greater(t, withYaw[4], 99.0)

	assert.Empty(t, StabilitySeries(nil, DefaultStabilityAxes, 2))
}

func TestStabilityScore(t *testing.T) {
	t.Parallel()

	t.Run("known variances", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, 100.0, ScoreFromVariance(0))
		assert.InDelta(t, 60.0, ScoreFromVariance(99), 1e-9)
		assert.InDelta(t, 20.0, ScoreFromVariance(9999), 1e-9)
		assert.Equal(t, 0.0, ScoreFromVariance(1e9))
	})

	t.Run("monotone and clamped", func(t *testing.T) {
		t.Parallel()
		prev := math.Inf(1)
		for v := 0.0; v < 1e8; v = v*1.7 + 0.3 {
			s := ScoreFromVariance(v)
			assert.LessOrEqual(t, s, prev)
			assert.GreaterOrEqual(t, s, 0.0)
			assert.LessOrEqual(t, s, 100.0)
			prev = s
		}
	})

	t.Run("yaw excluded by default", func(t *testing.T) {
		t.Parallel()
		steady := gyroSeries(repeat(0, 4), repeat(0, 4), []float64{0, 500, -500, 0})
		assert.Equal(t, 100.0, StabilityScore(steady, DefaultStabilityAxes))
		assert.Less(t, StabilityScore(steady, Axes(Yaw)), 100.0)
	})

	t.Run("variance of pitch roll magnitude", func(t *testing.T) {
		t.Parallel()
		// magnitudes 0 and 20 → population variance 100
		gyro := gyroSeries([]float64{0, 12}, []float64{0, 16}, []float64{0, 0})
		assert.InDelta(t, 100.0, RateVariance(gyro, DefaultStabilityAxes), 1e-9)
	})

	t.Run("empty stream", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, 0.0, RateVariance(nil, DefaultStabilityAxes))
	})
}

func TestClassifyGlide(t *testing.T) {
	t.Parallel()
	p := DefaultParams()

	tests := []struct {
		decel float64
		want  session.Glide
	}{
		{2.5, session.GlidePoor},
		{2.0, session.GlideGood},
		{1.333, session.GlideGood},
		{1.0, session.GlideGood},
		{0.99, session.GlideVeryGood},
		{0.5, session.GlideVeryGood},
		{0.49, session.GlideExcellent},
		{0, session.GlideExcellent},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyGlide(tt.decel, p), "decel %v", tt.decel)
	}
}

func TestExtract(t *testing.T) {
	t.Parallel()
	p := DefaultParams()

	t.Run("decel scenario", func(t *testing.T) {
		t.Parallel()
		tr := TrimmedCapture{Accel: forward(0.5, 5, 5, -1, -2, -1)}
		res, err := Extract(tr, p, testStamp)
		require.NoError(t, err)

		m := res.Metrics
		assert.Equal(t, "throw-1", m.ID)
		assert.Equal(t, testStamp.At, m.Timestamp)
		assert.Equal(t, 5.0, m.PushoffStrength)
		assert.InDelta(t, 4.0/3, m.DecelRate, 1e-12)
		assert.Equal(t, session.GlideGood, m.GlideEfficiency)
		assert.Equal(t, 2.0, m.SlideDuration)
		// 0, 2.5, 3.5, 2.75, 2.0
		assert.InDelta(t, 3.5, m.PeakVelocity, 1e-12)
		assert.Equal(t, 100.0, m.StabilityScore)
		assert.Len(t, res.Velocity, 5)
		assert.Empty(t, res.Stability)
	})

	t.Run("push-off window is at least one sample", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, 1, PushoffWindow(3, p))
		assert.Equal(t, 1, PushoffWindow(1, p))
		assert.Equal(t, 0, PushoffWindow(0, p))
		assert.Equal(t, 20, PushoffWindow(100, p))
	})

	t.Run("no negative samples after push-off", func(t *testing.T) {
		t.Parallel()
		tr := TrimmedCapture{Accel: forward(0.1, -4, 1, 1, 1, 1)}
		res, err := Extract(tr, p, testStamp)
		require.NoError(t, err)
		assert.Equal(t, 0.0, res.Metrics.DecelRate)
		assert.Equal(t, 4.0, res.Metrics.PushoffStrength)
		assert.Equal(t, session.GlideExcellent, res.Metrics.GlideEfficiency)
	})

	t.Run("no data", func(t *testing.T) {
		t.Parallel()
		_, err := Extract(TrimmedCapture{}, p, testStamp)
		assert.ErrorIs(t, err, ErrNoData)
	})

	t.Run("overflowing input is refused", func(t *testing.T) {
		t.Parallel()
		tr := TrimmedCapture{Accel: forward(1e308, 1e308, 1e308)}
		_, err := Extract(tr, p, testStamp)
		assert.ErrorIs(t, err, ErrNonFiniteMetric)
	})
}

func TestProcessSyntheticDelivery(t *testing.T) {
	t.Parallel()
	accel, gyro := imu.SyntheticDelivery(imu.DefaultSyntheticParams())

	res, err := Process(imu.RawCapture{Accel: accel, Gyro: gyro}, DefaultParams(), testStamp)
	require.NoError(t, err)

	m := res.Metrics
	assert.True(t, m.Finite())
	assert.Equal(t, 45, res.Trimmed.StartIndex)
	assert.Equal(t, 89, res.Trimmed.EndIndex)
	assert.InDelta(t, 4.0, m.PushoffStrength, 1e-12)
	assert.InDelta(t, 0.8, m.DecelRate, 1e-12)
	assert.Equal(t, session.GlideVeryGood, m.GlideEfficiency)
	assert.Greater(t, m.PeakVelocity, 2.0)
	assert.GreaterOrEqual(t, m.StabilityScore, 0.0)
	assert.Less(t, m.StabilityScore, 100.0)
	assert.Len(t, res.Velocity, len(res.Trimmed.Accel))
	assert.Len(t, res.Stability, len(res.Trimmed.Gyro))

	_, err = Process(imu.RawCapture{}, DefaultParams(), testStamp)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestParams(t *testing.T) {
	t.Parallel()
	require.NoError(t, DefaultParams().Validate())

	bad := DefaultParams()
	bad.CalmRun = 0
	assert.Error(t, bad.Validate())

	bad = DefaultParams()
	bad.GlideExcellentBelow = 3
	assert.Error(t, bad.Validate())

	axes, err := ParseAxes("pitch, roll")
	require.NoError(t, err)
	assert.Equal(t, DefaultStabilityAxes, axes)
	assert.Equal(t, "pitch,roll", axes.String())

	_, err = ParseAxes("heave")
	assert.Error(t, err)
	_, err = ParseAxes("")
	assert.Error(t, err)
}
