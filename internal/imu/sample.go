// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"fmt"
	"math"
)

// Kind tags which stream a sample belongs to. Acceleration and angular rate
// arrive on independent streams with their own timestamps.
type Kind uint8

const (
	Acceleration Kind = iota
	AngularRate
)

func (k Kind) String() string {
	switch k {
	case Acceleration:
		return "accel"
	case AngularRate:
		return "gyro"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// MarshalText encodes the kind as "accel" or "gyro".
func (k Kind) MarshalText() ([]byte, error) {
	switch k {
	case Acceleration, AngularRate:
		return []byte(k.String()), nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(k))
}

// UnmarshalText accepts "accel"/"acceleration" and "gyro"/"angular_rate".
func (k *Kind) UnmarshalText(text []byte) error {
	kind, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// ParseKind maps a wire name to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "accel", "acceleration", "a":
		return Acceleration, nil
	case "gyro", "angular_rate", "g":
		return AngularRate, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Sample is a single timestamped triaxial reading.
//
// Timestamp is in seconds relative to the start of the recording.
// Acceleration axes are in m/s² (x forward, y lateral, z vertical) and
// angular rates in °/s (x pitch, y roll, z yaw). An acceleration sample only
// uses Ax..Az, an angular-rate sample only Gx..Gz.
type Sample struct {
	Timestamp float64 `json:"t"`

	Ax float64 `json:"ax,omitempty"` // accel
	Ay float64 `json:"ay,omitempty"`
	Az float64 `json:"az,omitempty"`

	Gx float64 `json:"gx,omitempty"` // gyro
	Gy float64 `json:"gy,omitempty"`
	Gz float64 `json:"gz,omitempty"`
}

// AccelMagnitude returns sqrt(ax²+ay²+az²).
func (s Sample) AccelMagnitude() float64 {
	return math.Sqrt(s.Ax*s.Ax + s.Ay*s.Ay + s.Az*s.Az)
}

func (s Sample) finite() bool {
	for _, v := range [...]float64{s.Timestamp, s.Ax, s.Ay, s.Az, s.Gx, s.Gy, s.Gz} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Reading is the wire form of a sample pushed by a sensor feed.
type Reading struct {
	Kind Kind `json:"kind"`
	Sample
}

// Source is anything that can produce paired accel/gyro samples over time:
// the SPI IMU, a serial-attached IMU or the synthetic generator.
type Source interface {
	Next() (accel, gyro Sample, err error)
}
