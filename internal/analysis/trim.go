// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package analysis

import (
	"errors"

	"github.com/relabs-tech/delivery_analyzer/internal/imu"
)

// ErrNoData is returned when a capture holds no acceleration samples.
var ErrNoData = errors.New("analysis: no acceleration data")

// Alignment records how the angular-rate stream was cut.
type Alignment string

const (
	// AlignByIndex: both streams were sliced by the same index pair. The
	// lengths may differ by the one pair still in flight at stop time.
	AlignByIndex Alignment = "index"
	// AlignByTimestamp: the streams differed in length, so angular-rate
	// samples were kept by time span instead. Accuracy is degraded.
	AlignByTimestamp Alignment = "timestamp"
)

// TrimmedCapture is a capture cut to the delivery. Timestamps are shifted so
// the first acceleration sample is at 0; Offset is the amount subtracted.
type TrimmedCapture struct {
	Accel      []imu.Sample `json:"accel"`
	Gyro       []imu.Sample `json:"gyro"`
	StartIndex int          `json:"start_index"`
	EndIndex   int          `json:"end_index"`
	Offset     float64      `json:"offset"`
	Alignment  Alignment    `json:"alignment"`
}

// Degraded reports whether the angular-rate stream could not be aligned by
// index.
func (t TrimmedCapture) Degraded() bool {
	return t.Alignment == AlignByTimestamp
}

// FindStart returns the index of the first sample whose magnitude exceeds
// StartThreshold, moved back by PreRoll. It is 0 when nothing exceeds it.
func FindStart(accel []imu.Sample, p Params) int {
	for i, s := range accel {
		if s.AccelMagnitude() > p.StartThreshold {
			return max(0, i-p.PreRoll)
		}
	}
	return 0
}

// FindEnd scans from start+EndSearchOffset for CalmRun consecutive calm
// samples and returns the index SettleMargin samples into that run. Without
// such a run it returns the last index.
func FindEnd(accel []imu.Sample, start int, p Params) int {
	last := len(accel) - 1
	run := 0
	for i := start + p.EndSearchOffset; i <= last; i++ {
		if accel[i].AccelMagnitude() < p.CalmThreshold {
			run++
		} else {
			run = 0
		}
		if run == p.CalmRun {
			return min(last, max(start, i-p.CalmRun+p.SettleMargin))
		}
	}
	return last
}

// Trim cuts a capture to the delivery interval.
func Trim(c imu.RawCapture, p Params) (TrimmedCapture, error) {
	if c.Empty() {
		return TrimmedCapture{}, ErrNoData
	}

	start := FindStart(c.Accel, p)
	end := FindEnd(c.Accel, start, p)
	offset := c.Accel[start].Timestamp

	out := TrimmedCapture{
		Accel:      rebase(c.Accel[start:end+1], offset),
		StartIndex: start,
		EndIndex:   end,
		Offset:     offset,
		Alignment:  AlignByIndex,
	}

	switch {
	case pairedStreams(len(c.Accel), len(c.Gyro), end):
		out.Gyro = rebase(c.Gyro[start:end+1], offset)
	default:
		out.Alignment = AlignByTimestamp
		out.Gyro = rebase(withinSpan(c.Gyro, offset, c.Accel[end].Timestamp), offset)
	}
	return out, nil
}

// pairedStreams reports whether the angular-rate stream can be cut by the
// acceleration indices: it covers end and differs from the acceleration
// count by at most one sample.
func pairedStreams(accel, gyro, end int) bool {
	diff := accel - gyro
	return gyro > end && diff >= -1 && diff <= 1
}

func withinSpan(samples []imu.Sample, from, to float64) []imu.Sample {
	lo := 0
	for lo < len(samples) && samples[lo].Timestamp < from {
		lo++
	}
	hi := lo
	for hi < len(samples) && samples[hi].Timestamp <= to {
		hi++
	}
	return samples[lo:hi]
}

func rebase(samples []imu.Sample, offset float64) []imu.Sample {
	out := make([]imu.Sample, len(samples))
	for i, s := range samples {
		s.Timestamp -= offset
		out[i] = s
	}
	return out
}
