// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/delivery_analyzer/internal/config"
	"github.com/relabs-tech/delivery_analyzer/internal/recording"
)

const (
	displayWidth  = 128
	displayHeight = 64
	lineHeight    = 13
	maxLineChars  = displayWidth / 7

	// ssd1306Addr is the address the driver always talks to.
	ssd1306Addr = 0x3C
)

// addrBus redirects transactions for the stock SSD1306 address to addr, so a
// panel strapped to 0x3D works with the stock driver.
type addrBus struct {
	i2c.Bus
	addr uint16
}

func (b *addrBus) Tx(addr uint16, w, r []byte) error {
	if addr == ssd1306Addr {
		addr = b.addr
	}
	return b.Bus.Tx(addr, w, r)
}

// screen is the drawing surface of an SSD1306.
type screen interface {
	Bounds() image.Rectangle
	Draw(r image.Rectangle, src image.Image, sp image.Point) error
}

// DisplayData holds the latest published data for the OLED.
type DisplayData struct {
	mu sync.RWMutex

	throw     ThrowMessage
	haveThrow bool

	summary     SummaryMessage
	haveSummary bool

	event     recording.Event
	haveEvent bool

	page int
}

func (d *DisplayData) setThrow(m ThrowMessage) {
	d.mu.Lock()
	d.throw, d.haveThrow = m, true
	d.page = 0
	d.mu.Unlock()
}

func (d *DisplayData) setSummary(m SummaryMessage) {
	d.mu.Lock()
	d.summary, d.haveSummary = m, true
	d.mu.Unlock()
}

func (d *DisplayData) setEvent(e recording.Event) {
	d.mu.Lock()
	d.event, d.haveEvent = e, true
	d.mu.Unlock()
}

// Lines returns the text for the next frame. While a recording is active
// the recording status is shown; otherwise the last throw and the session
// summary alternate on each call.
func (d *DisplayData) Lines() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.haveEvent && d.event.State.Active() {
		status := "Recording"
		if d.event.State == recording.AutoStopArmed {
			status = "Auto-stop on"
		}
		return []string{status, fmt.Sprintf("t=%.1fs", d.event.At)}
	}

	page := d.page
	d.page++
	switch {
	case !d.haveThrow && !d.haveSummary:
		return []string{"Delivery", "Waiting..."}
	case d.haveThrow && (page%2 == 0 || !d.haveSummary):
		m := d.throw.Throw
		return []string{
			fmt.Sprintf("V %.2f P %.1f", m.PeakVelocity, m.PushoffStrength),
			fmt.Sprintf("Slide %.1fs", m.SlideDuration),
			fmt.Sprintf("Stab %.0f D %.2f", m.StabilityScore, m.DecelRate),
			string(m.GlideEfficiency),
		}
	}
	s := d.summary.Summary
	return []string{
		fmt.Sprintf("Throws %d", s.Count),
		fmt.Sprintf("Stab avg %.0f", s.AvgStability),
		fmt.Sprintf("Consist %.0f%%", s.Consistency),
		string(s.Improvement),
	}
}

// renderLines draws up to four lines of 7x13 text.
func renderLines(lines []string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, displayWidth, displayHeight))

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		if (i+1)*lineHeight > displayHeight {
			break
		}
		if len(line) > maxLineChars {
			line = line[:maxLineChars]
		}
		drawer.Dot = fixed.P(0, (i+1)*lineHeight)
		drawer.DrawString(line)
	}
	return img
}

func drawLines(dev screen, lines []string) error {
	return dev.Draw(dev.Bounds(), renderLines(lines), image.Point{})
}

// RunDisplay shows the last throw and the session summary on an SSD1306.
func RunDisplay() error {
	cfg := config.Get()

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(cfg.DisplayI2CBus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(&addrBus{Bus: bus, addr: cfg.DisplayI2CAddr}, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Printf("display: initialized at 0x%02X", cfg.DisplayI2CAddr)

	if err := drawLines(dev, []string{"Delivery", "Analyzer", "Starting..."}); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	data := &DisplayData{}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDDisplay)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	if err := subscribeJSON(client, cfg.TopicThrows, "display", data.setThrow); err != nil {
		return err
	}
	if err := subscribeJSON(client, cfg.TopicSummary, "display", data.setSummary); err != nil {
		return err
	}
	if err := subscribeJSON(client, cfg.TopicEvents, "display", data.setEvent); err != nil {
		return err
	}

	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()

	log.Println("display: starting update loop")
	for range ticker.C {
		if err := drawLines(dev, data.Lines()); err != nil {
			log.Printf("display: error updating display: %v", err)
		}
	}
	return nil
}
