// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"log"
	"math"
	"time"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/delivery_analyzer/internal/imu"
)

// StandardGravity in m/s².
const StandardGravity = 9.80665

// Counts is one raw register read of the six motion axes.
type Counts struct {
	Ax, Ay, Az int16
	Gx, Gy, Gz int16
}

// CountsReader reads raw axis counts from an IMU.
type CountsReader interface {
	ReadCounts() (Counts, error)
}

// AccelScale returns m/s² per LSB for an accelerometer range selector
// (0=±2g, 1=±4g, 2=±8g, 3=±16g).
func AccelScale(rangeSel byte) float64 {
	return StandardGravity * float64(int(1)<<rangeSel) / 16384.0
}

// GyroScale returns °/s per LSB for a gyroscope range selector
// (0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s).
func GyroScale(rangeSel byte) float64 {
	return float64(int(1)<<rangeSel) / 131.0
}

// MPUSource converts raw counts to a linear acceleration and angular rate
// feed. The resting baseline, gravity included, is subtracted from every
// acceleration reading.
type MPUSource struct {
	name       string
	dev        CountsReader
	accelScale float64
	gyroScale  float64
	baseline   [3]float64
	start      time.Time
	now        func() time.Time
}

// NewMPUSource wraps a CountsReader. now may be nil.
func NewMPUSource(name string, dev CountsReader, accelRange, gyroRange byte, now func() time.Time) *MPUSource {
	if now == nil {
		now = time.Now
	}
	return &MPUSource{
		name:       name,
		dev:        dev,
		accelScale: AccelScale(accelRange),
		gyroScale:  GyroScale(gyroRange),
		start:      now(),
		now:        now,
	}
}

// CaptureBaseline averages n readings taken at rest. It must be called while
// the device is still.
func (s *MPUSource) CaptureBaseline(n int) error {
	if n <= 0 {
		s.baseline = [3]float64{}
		return nil
	}
	var sum [3]float64
	for i := 0; i < n; i++ {
		c, err := s.dev.ReadCounts()
		if err != nil {
			return fmt.Errorf("%s IMU baseline: %w", s.name, err)
		}
		sum[0] += float64(c.Ax) * s.accelScale
		sum[1] += float64(c.Ay) * s.accelScale
		sum[2] += float64(c.Az) * s.accelScale
	}
	for i := range sum {
		s.baseline[i] = sum[i] / float64(n)
	}
	log.Printf("%s IMU: baseline %.3f %.3f %.3f m/s² (|g|=%.3f)", s.name,
		s.baseline[0], s.baseline[1], s.baseline[2],
		math.Sqrt(s.baseline[0]*s.baseline[0]+s.baseline[1]*s.baseline[1]+s.baseline[2]*s.baseline[2]))
	return nil
}

// Restart makes the next reading's timestamp relative to now.
func (s *MPUSource) Restart() {
	s.start = s.now()
}

// Next reads one pair of samples stamped with the same time.
func (s *MPUSource) Next() (accel, gyro imu.Sample, err error) {
	c, err := s.dev.ReadCounts()
	if err != nil {
		return accel, gyro, fmt.Errorf("%s IMU read: %w", s.name, err)
	}
	t := s.now().Sub(s.start).Seconds()

	accel = imu.Sample{
		Timestamp: t,
		Ax:        float64(c.Ax)*s.accelScale - s.baseline[0],
		Ay:        float64(c.Ay)*s.accelScale - s.baseline[1],
		Az:        float64(c.Az)*s.accelScale - s.baseline[2],
	}
	gyro = imu.Sample{
		Timestamp: t,
		Gx:        float64(c.Gx) * s.gyroScale,
		Gy:        float64(c.Gy) * s.gyroScale,
		Gz:        float64(c.Gz) * s.gyroScale,
	}
	return accel, gyro, nil
}

type mpuDevice struct {
	name string
	dev  *mpu9250.MPU9250
}

// OpenMPU9250 initializes an MPU9250 over SPI with the given range
// selectors and returns it as a CountsReader.
func OpenMPU9250(name, spiDev, csPin string, accelRange, gyroRange byte) (CountsReader, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%s IMU: periph host init: %w", name, err)
	}

	cs := gpioreg.ByName(csPin)
	if cs == nil {
		return nil, fmt.Errorf("%s IMU: CS pin %q not found", name, csPin)
	}

	tr, err := mpu9250.NewSpiTransport(spiDev, cs)
	if err != nil {
		return nil, fmt.Errorf("%s IMU: SPI transport (%s): %w", name, spiDev, err)
	}

	dev, err := mpu9250.New(*tr)
	if err != nil {
		return nil, fmt.Errorf("%s IMU: device creation: %w", name, err)
	}
	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("%s IMU: initialization: %w", name, err)
	}

	if err := dev.SetAccelRange(accelRange); err != nil {
		return nil, fmt.Errorf("%s IMU: set accel range: %w", name, err)
	}
	log.Printf("%s IMU: accelerometer range set to %d (±%dg)", name, accelRange, []int{2, 4, 8, 16}[accelRange])

	if err := dev.SetGyroRange(gyroRange); err != nil {
		return nil, fmt.Errorf("%s IMU: set gyro range: %w", name, err)
	}
	log.Printf("%s IMU: gyroscope range set to %d (±%d°/s)", name, gyroRange, []int{250, 500, 1000, 2000}[gyroRange])

	if res, err := dev.SelfTest(); err != nil {
		log.Printf("Warning: %s IMU self-test failed: %v", name, err)
	} else {
		log.Printf("%s IMU self-test passed: accel dev %.2f%% %.2f%% %.2f%%, gyro dev %.2f%% %.2f%% %.2f%%", name,
			res.AccelDeviation.X, res.AccelDeviation.Y, res.AccelDeviation.Z,
			res.GyroDeviation.X, res.GyroDeviation.Y, res.GyroDeviation.Z)
	}

	if err := dev.Calibrate(); err != nil {
		log.Printf("Warning: %s IMU calibration failed: %v", name, err)
	} else {
		log.Printf("%s IMU calibration complete", name)
	}

	return &mpuDevice{name: name, dev: dev}, nil
}

func (m *mpuDevice) ReadCounts() (Counts, error) {
	var c Counts
	reads := []struct {
		axis string
		dst  *int16
		get  func() (int16, error)
	}{
		{"accel X", &c.Ax, m.dev.GetAccelerationX},
		{"accel Y", &c.Ay, m.dev.GetAccelerationY},
		{"accel Z", &c.Az, m.dev.GetAccelerationZ},
		{"gyro X", &c.Gx, m.dev.GetRotationX},
		{"gyro Y", &c.Gy, m.dev.GetRotationY},
		{"gyro Z", &c.Gz, m.dev.GetRotationZ},
	}
	for _, r := range reads {
		v, err := r.get()
		if err != nil {
			return Counts{}, fmt.Errorf("%s IMU %s: %w", m.name, r.axis, err)
		}
		*r.dst = v
	}
	return c, nil
}
