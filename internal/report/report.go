// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package report exports a stored session as a YAML document.
package report

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/relabs-tech/delivery_analyzer/internal/session"
	"github.com/relabs-tech/delivery_analyzer/internal/store"
)

type SessionInfo struct {
	ID        string    `yaml:"id"`
	Name      string    `yaml:"name"`
	CreatedAt time.Time `yaml:"created_at"`
}

type ThrowEntry struct {
	Index           int       `yaml:"index"`
	ID              string    `yaml:"id"`
	RecordedAt      time.Time `yaml:"recorded_at"`
	PushoffStrength float64   `yaml:"pushoff_strength"`
	PeakVelocity    float64   `yaml:"peak_velocity"`
	SlideDuration   float64   `yaml:"slide_duration"`
	DecelRate       float64   `yaml:"decel_rate"`
	StabilityScore  float64   `yaml:"stability_score"`
	GlideEfficiency string    `yaml:"glide_efficiency"`
}

type SummaryEntry struct {
	Count        int     `yaml:"count"`
	AvgPushoff   float64 `yaml:"avg_pushoff"`
	AvgVelocity  float64 `yaml:"avg_velocity"`
	AvgStability float64 `yaml:"avg_stability"`
	BestGlide    string  `yaml:"best_glide"`
	Consistency  float64 `yaml:"consistency"`
	Improvement  string  `yaml:"improvement"`
}

// SessionReport is the exported form of one session.
type SessionReport struct {
	GeneratedAt time.Time    `yaml:"generated_at"`
	Session     SessionInfo  `yaml:"session"`
	Summary     SummaryEntry `yaml:"summary"`
	Throws      []ThrowEntry `yaml:"throws"`
}

// Build assembles a report. The summary is recomputed from throws.
func Build(s *store.Session, throws []session.ThrowMetrics, generatedAt time.Time) SessionReport {
	sum := session.Summarize(throws)
	r := SessionReport{
		GeneratedAt: generatedAt.UTC(),
		Session:     SessionInfo{ID: s.ID, Name: s.Name, CreatedAt: s.CreatedAt.UTC()},
		Summary: SummaryEntry{
			Count:        sum.Count,
			AvgPushoff:   sum.AvgPushoff,
			AvgVelocity:  sum.AvgVelocity,
			AvgStability: sum.AvgStability,
			BestGlide:    sum.BestGlide,
			Consistency:  sum.Consistency,
			Improvement:  string(sum.Improvement),
		},
		Throws: make([]ThrowEntry, 0, len(throws)),
	}
	for i, m := range throws {
		r.Throws = append(r.Throws, ThrowEntry{
			Index:           i + 1,
			ID:              m.ID,
			RecordedAt:      m.Timestamp.UTC(),
			PushoffStrength: m.PushoffStrength,
			PeakVelocity:    m.PeakVelocity,
			SlideDuration:   m.SlideDuration,
			DecelRate:       m.DecelRate,
			StabilityScore:  m.StabilityScore,
			GlideEfficiency: string(m.GlideEfficiency),
		})
	}
	return r
}

// WriteYAML encodes r with two-space indentation.
func WriteYAML(w io.Writer, r SessionReport) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return enc.Close()
}

// ReadYAML decodes a report written by WriteYAML.
func ReadYAML(rd io.Reader) (SessionReport, error) {
	var r SessionReport
	if err := yaml.NewDecoder(rd).Decode(&r); err != nil {
		return r, fmt.Errorf("decode report: %w", err)
	}
	return r, nil
}

// SessionSource is the part of the store a report is read from.
type SessionSource interface {
	GetSession(id string) (*store.Session, error)
	ListSessions() ([]*store.Session, error)
	ListThrows(sessionID string) ([]session.ThrowMetrics, error)
}

// Resolve finds a session by ID, then by name.
func Resolve(src SessionSource, ref string) (*store.Session, error) {
	if s, err := src.GetSession(ref); err == nil {
		return s, nil
	}
	sessions, err := src.ListSessions()
	if err != nil {
		return nil, err
	}
	for _, s := range sessions {
		if s.Name == ref {
			return s, nil
		}
	}
	return nil, fmt.Errorf("session %q: %w", ref, store.ErrNotFound)
}

// Export writes the YAML report of the session named or identified by ref.
func Export(src SessionSource, ref string, w io.Writer, now time.Time) error {
	s, err := Resolve(src, ref)
	if err != nil {
		return err
	}
	throws, err := src.ListThrows(s.ID)
	if err != nil {
		return err
	}
	return WriteYAML(w, Build(s, throws, now))
}
