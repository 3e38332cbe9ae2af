// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/relabs-tech/delivery_analyzer/internal/analysis"
	"github.com/relabs-tech/delivery_analyzer/internal/config"
	"github.com/relabs-tech/delivery_analyzer/internal/recording"
)

func printThrow(w io.Writer, m ThrowMessage) {
	t := m.Throw
	fmt.Fprintf(w,
		"[THROW] %s  pushoff=%5.2f m/s²  peak=%5.2f m/s  slide=%5.2f s  decel=%5.2f m/s²  stability=%5.1f  glide=%s\n",
		t.Timestamp.Format("15:04:05"), t.PushoffStrength, t.PeakVelocity, t.SlideDuration,
		t.DecelRate, t.StabilityScore, t.GlideEfficiency,
	)
	if m.Alignment == analysis.AlignByTimestamp {
		fmt.Fprintf(w, "        streams aligned by %s\n", m.Alignment)
	}
}

func printSummary(w io.Writer, m SummaryMessage) {
	s := m.Summary
	fmt.Fprintf(w,
		"[SUMM ] throws=%d  avg pushoff=%5.2f  avg velocity=%5.2f  avg stability=%5.1f  best=%s  consistency=%5.1f  trend=%s\n",
		s.Count, s.AvgPushoff, s.AvgVelocity, s.AvgStability, s.BestGlide, s.Consistency, s.Improvement,
	)
}

func printEvent(w io.Writer, e recording.Event) {
	line := fmt.Sprintf("[EVENT] %-18s state=%-15s t=%6.2f", e.Type, e.State, e.At)
	if e.Reason != recording.StopNone {
		line += " reason=" + string(e.Reason)
	}
	if e.Err != "" {
		line += " error=" + e.Err
	}
	fmt.Fprintln(w, line)
}

// RunConsoleMQTT prints published throws, summaries and recording events.
func RunConsoleMQTT() error {
	cfg := config.Get()

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}

	if err := subscribeJSON(client, cfg.TopicThrows, "console", func(m ThrowMessage) { printThrow(os.Stdout, m) }); err != nil {
		return err
	}
	if err := subscribeJSON(client, cfg.TopicSummary, "console", func(m SummaryMessage) { printSummary(os.Stdout, m) }); err != nil {
		return err
	}
	if err := subscribeJSON(client, cfg.TopicEvents, "console", func(e recording.Event) { printEvent(os.Stdout, e) }); err != nil {
		return err
	}

	waitForSignal()

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}
