// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrOutOfOrderTimestamp = errors.New("imu: timestamp out of order")
	ErrNonFiniteSample     = errors.New("imu: non-finite sample value")
	ErrUnknownKind         = errors.New("imu: unknown sample kind")
)

// RawCapture is an immutable copy of a Buffer taken at one point in time.
// Generation identifies the recording it was taken from.
type RawCapture struct {
	Accel      []Sample `json:"accel"`
	Gyro       []Sample `json:"gyro"`
	Generation uint64   `json:"generation"`
	// Duplicates counts samples that repeated the previous timestamp of
	// their stream.
	Duplicates int `json:"duplicates,omitempty"`
}

// Empty reports whether the capture has no acceleration samples.
func (c RawCapture) Empty() bool {
	return len(c.Accel) == 0
}

// Buffer is the append-only sample log of one recording.
//
// There is one writer (the sensor feed); Snapshot may be called from other
// goroutines. Reset starts a new generation, after which snapshots from the
// previous generation are no longer current.
type Buffer struct {
	mu         sync.RWMutex
	accel      []Sample
	gyro       []Sample
	generation uint64
	duplicates int
}

// NewBuffer returns an empty buffer at generation 1.
func NewBuffer() *Buffer {
	return &Buffer{generation: 1}
}

// Append adds a sample to the stream selected by kind. Samples with a
// timestamp earlier than the previous sample of the same kind are rejected;
// a repeated timestamp is kept and counted in Duplicates.
func (b *Buffer) Append(s Sample, kind Kind) error {
	if !s.finite() {
		return fmt.Errorf("%w at t=%v", ErrNonFiniteSample, s.Timestamp)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var stream *[]Sample
	switch kind {
	case Acceleration:
		stream = &b.accel
	case AngularRate:
		stream = &b.gyro
	default:
		return fmt.Errorf("%w: %d", ErrUnknownKind, uint8(kind))
	}

	if n := len(*stream); n > 0 {
		prev := (*stream)[n-1].Timestamp
		if s.Timestamp < prev {
			return fmt.Errorf("%w: %s t=%.4f after t=%.4f", ErrOutOfOrderTimestamp, kind, s.Timestamp, prev)
		}
		if s.Timestamp == prev {
			b.duplicates++
		}
	}
	*stream = append(*stream, s)
	return nil
}

// Len returns the number of samples held for kind.
func (b *Buffer) Len(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if kind == AngularRate {
		return len(b.gyro)
	}
	return len(b.accel)
}

// Snapshot copies both streams into a RawCapture.
func (b *Buffer) Snapshot() RawCapture {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return RawCapture{
		Accel:      append([]Sample(nil), b.accel...),
		Gyro:       append([]Sample(nil), b.gyro...),
		Generation: b.generation,
		Duplicates: b.duplicates,
	}
}

// Reset clears both streams and bumps the generation.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accel = nil
	b.gyro = nil
	b.duplicates = 0
	b.generation++
}

// Generation returns the current generation stamp.
func (b *Buffer) Generation() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.generation
}

// IsCurrent reports whether c was taken from the buffer's current generation.
func (b *Buffer) IsCurrent(c RawCapture) bool {
	return c.Generation == b.Generation()
}
