// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package session

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrDuplicateThrow = errors.New("session: duplicate throw id")
	ErrThrowNotFound  = errors.New("session: throw not found")
)

// Log is the ordered, append-only (except for user deletes) throw list of
// one session. Readers always get a copy, so a Summary never observes a
// half-applied append.
type Log struct {
	mu     sync.RWMutex
	throws []ThrowMetrics
}

// NewLog seeds a log with previously persisted throws, oldest first.
func NewLog(existing []ThrowMetrics) *Log {
	return &Log{throws: append([]ThrowMetrics(nil), existing...)}
}

// Append adds a throw at the end of the list.
func (l *Log) Append(m ThrowMetrics) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range l.throws {
		if t.ID == m.ID {
			return fmt.Errorf("%w: %s", ErrDuplicateThrow, m.ID)
		}
	}
	l.throws = append(l.throws, m)
	return nil
}

// Delete removes the throw with id.
func (l *Log) Delete(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, t := range l.throws {
		if t.ID == id {
			l.throws = append(l.throws[:i:i], l.throws[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrThrowNotFound, id)
}

// Len returns the number of throws.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.throws)
}

// Snapshot returns a copy of the throw list.
func (l *Log) Snapshot() []ThrowMetrics {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]ThrowMetrics(nil), l.throws...)
}

// Summary recomputes the session summary from a snapshot.
func (l *Log) Summary() Summary {
	return Summarize(l.Snapshot())
}
