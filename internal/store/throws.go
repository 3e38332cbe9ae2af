// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/relabs-tech/delivery_analyzer/internal/session"
)

// Session is one practice session grouping an ordered list of throws.
type Session struct {
	ID        string    `json:"session_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateSession inserts a new session with a generated ID.
func (db *DB) CreateSession(name string) (*Session, error) {
	s := &Session{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := db.Exec(`INSERT INTO sessions (session_id, name, created_at) VALUES (?, ?, ?)`,
		s.ID, s.Name, s.CreatedAt.UnixNano()); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return s, nil
}

// GetSession returns one session by ID.
func (db *DB) GetSession(id string) (*Session, error) {
	var s Session
	var created int64
	err := db.QueryRow(`SELECT session_id, name, created_at FROM sessions WHERE session_id = ?`, id).
		Scan(&s.ID, &s.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	s.CreatedAt = time.Unix(0, created).UTC()
	return &s, nil
}

// ListSessions returns all sessions, newest first.
func (db *DB) ListSessions() ([]*Session, error) {
	rows, err := db.Query(`SELECT session_id, name, created_at FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		var s Session
		var created int64
		if err := rows.Scan(&s.ID, &s.Name, &created); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		s.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, &s)
	}
	return out, rows.Err()
}

// InsertThrow stores a finalized throw under sessionID.
func (db *DB) InsertThrow(sessionID string, m session.ThrowMetrics) error {
	if m.ID == "" {
		return fmt.Errorf("insert throw: missing id")
	}
	if !m.Finite() {
		return fmt.Errorf("insert throw %s: non-finite metrics", m.ID)
	}
	_, err := db.Exec(`
		INSERT INTO throws (
			throw_id, session_id, recorded_at,
			pushoff_strength, peak_velocity, slide_duration,
			decel_rate, stability_score, glide_efficiency
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, sessionID, m.Timestamp.UnixNano(),
		m.PushoffStrength, m.PeakVelocity, m.SlideDuration,
		m.DecelRate, m.StabilityScore, string(m.GlideEfficiency),
	)
	if err != nil {
		return fmt.Errorf("insert throw: %w", err)
	}
	return nil
}

// ListThrows returns the throws of a session in recording order.
func (db *DB) ListThrows(sessionID string) ([]session.ThrowMetrics, error) {
	rows, err := db.Query(`
		SELECT throw_id, recorded_at,
		       pushoff_strength, peak_velocity, slide_duration,
		       decel_rate, stability_score, glide_efficiency
		FROM throws
		WHERE session_id = ?
		ORDER BY recorded_at ASC, rowid ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query throws: %w", err)
	}
	defer rows.Close()

	var out []session.ThrowMetrics
	for rows.Next() {
		m, err := scanThrow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteThrow removes one throw.
func (db *DB) DeleteThrow(id string) error {
	res, err := db.Exec(`DELETE FROM throws WHERE throw_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete throw: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("throw %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanThrow(rows *sql.Rows) (session.ThrowMetrics, error) {
	var m session.ThrowMetrics
	var recorded int64
	var glide string
	if err := rows.Scan(&m.ID, &recorded,
		&m.PushoffStrength, &m.PeakVelocity, &m.SlideDuration,
		&m.DecelRate, &m.StabilityScore, &glide); err != nil {
		return m, fmt.Errorf("scan throw: %w", err)
	}
	g, err := session.ParseGlide(glide)
	if err != nil {
		return m, fmt.Errorf("scan throw %s: %w", m.ID, err)
	}
	m.GlideEfficiency = g
	m.Timestamp = time.Unix(0, recorded).UTC()
	return m, nil
}
