// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/devices/v3/ssd1306/image1bit"

	"github.com/relabs-tech/delivery_analyzer/internal/recording"
	"github.com/relabs-tech/delivery_analyzer/internal/session"
)

type fakeScreen struct {
	frames []image.Image
}

func (s *fakeScreen) Bounds() image.Rectangle { return image.Rect(0, 0, displayWidth, displayHeight) }

func (s *fakeScreen) Draw(_ image.Rectangle, src image.Image, _ image.Point) error {
	s.frames = append(s.frames, src)
	return nil
}

func litPixels(img image.Image) int {
	n := 0
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.At(x, y) == image1bit.On {
				n++
			}
		}
	}
	return n
}

func TestDisplayLines(t *testing.T) {
	d := &DisplayData{}
	assert.Equal(t, []string{"Delivery", "Waiting..."}, d.Lines())

	d.setThrow(ThrowMessage{Throw: session.ThrowMetrics{
		PeakVelocity:    2.31,
		PushoffStrength: 4.2,
		SlideDuration:   6.5,
		StabilityScore:  72,
		DecelRate:       0.8,
		GlideEfficiency: session.GlideVeryGood,
	}})
	lines := d.Lines()
	assert.Equal(t, "V 2.31 P 4.2", lines[0])
	assert.Equal(t, "Very Good", lines[3])
	// no summary yet, the throw stays on screen
	assert.Equal(t, lines, d.Lines())

	d.setSummary(SummaryMessage{Summary: session.Summary{
		Count: 3, AvgStability: 70, Consistency: 85, Improvement: session.TrendImproving,
	}})
	first, second := d.Lines(), d.Lines()
	assert.NotEqual(t, first, second)
	assert.Equal(t, []string{"Throws 3", "Stab avg 70", "Consist 85%", "Improving"}, second)

	d.setEvent(recording.Event{Type: recording.EventAutoStopArmed, State: recording.AutoStopArmed, At: 10.02})
	assert.Equal(t, []string{"Auto-stop on", "t=10.0s"}, d.Lines())

	d.setEvent(recording.Event{Type: recording.EventStopped, State: recording.Stopped})
	assert.NotEqual(t, "Auto-stop on", d.Lines()[0])
}

func TestDrawLines(t *testing.T) {
	s := &fakeScreen{}
	require.NoError(t, drawLines(s, []string{"Delivery", "Waiting..."}))
	require.Len(t, s.frames, 1)
	lit := litPixels(s.frames[0])
	assert.Positive(t, lit)

	require.NoError(t, drawLines(s, nil))
	assert.Zero(t, litPixels(s.frames[1]))

	long := []string{"a line that is far too long for the panel", "2", "3", "4", "5"}
	require.NoError(t, drawLines(s, long))
	assert.Positive(t, litPixels(s.frames[2]))
}

func TestAddrBusRedirectsDisplayAddress(t *testing.T) {
	rec := &i2ctest.Record{}
	bus := &addrBus{Bus: rec, addr: 0x3D}

	require.NoError(t, bus.Tx(ssd1306Addr, []byte{0x00, 0xAE}, nil))
	require.NoError(t, bus.Tx(0x50, []byte{0x01}, nil))

	require.Len(t, rec.Ops, 2)
	assert.Equal(t, uint16(0x3D), rec.Ops[0].Addr)
	assert.Equal(t, []byte{0x00, 0xAE}, rec.Ops[0].W)
	assert.Equal(t, uint16(0x50), rec.Ops[1].Addr)
}
