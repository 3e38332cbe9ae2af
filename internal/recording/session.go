// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package recording

import (
	"errors"
	"fmt"
	"sync"

	"github.com/relabs-tech/delivery_analyzer/internal/imu"
)

var (
	ErrRecordingActive = errors.New("recording: a recording is already active")
	ErrNotRecording    = errors.New("recording: no active recording")
	ErrNotStopped      = errors.New("recording: capture is only available once stopped")
)

// State is the lifecycle position of a Session.
type State int

const (
	Idle State = iota
	Recording
	AutoStopArmed
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case AutoStopArmed:
		return "auto_stop_armed"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{Idle, Recording, AutoStopArmed, Stopped} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown recording state %q", text)
}

// Active reports whether samples are being accepted.
func (s State) Active() bool {
	return s == Recording || s == AutoStopArmed
}

// StopReason records which trigger ended the recording.
type StopReason string

const (
	StopNone   StopReason = ""
	StopManual StopReason = "manual"
	StopAuto   StopReason = "auto"
)

// EventType names a domain event raised by a Session.
type EventType string

const (
	EventStarted        EventType = "started"
	EventAutoStopArmed  EventType = "auto_stop_armed"
	EventAutoStopped    EventType = "auto_stopped"
	EventStopped        EventType = "stopped"
	EventSampleRejected EventType = "sample_rejected"
	// EventAlignmentDegraded is raised by the host after processing, when
	// the two streams could only be aligned by timestamp.
	EventAlignmentDegraded EventType = "alignment_degraded"
)

// Event is published to the host's EventSink after each state change or
// rejected sample. At is the sample timestamp that caused it, if any.
type Event struct {
	Type   EventType  `json:"type"`
	State  State      `json:"state"`
	Reason StopReason `json:"reason,omitempty"`
	At     float64    `json:"at"`
	Err    string     `json:"error,omitempty"`
}

// EventSink receives session events. It is called synchronously, without
// the session lock held, so it may call back into the Session.
type EventSink func(Event)

// Session owns the sample buffer of one recording and drives the
// Idle → Recording → AutoStopArmed → Stopped state machine.
type Session struct {
	mu       sync.Mutex
	buffer   *imu.Buffer
	detector *AutoStopDetector
	state    State
	reason   StopReason
	capture  imu.RawCapture
	lastT    float64
	sink     EventSink
}

// NewSession creates an idle session. sink may be nil.
func NewSession(p Params, sink EventSink) *Session {
	if sink == nil {
		sink = func(Event) {}
	}
	return &Session{
		buffer:   imu.NewBuffer(),
		detector: NewAutoStopDetector(p),
		sink:     sink,
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Reason returns why the last recording stopped.
func (s *Session) Reason() StopReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Start begins a new recording. The buffer must be idle or stopped.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.state.Active() {
		s.mu.Unlock()
		return ErrRecordingActive
	}
	s.buffer.Reset()
	s.detector.Reset()
	s.state = Recording
	s.reason = StopNone
	s.capture = imu.RawCapture{}
	s.lastT = 0
	s.mu.Unlock()

	s.sink(Event{Type: EventStarted, State: Recording})
	return nil
}

// Ingest appends one reading. Acceleration readings are also fed to the
// auto-stop detector; stopped is true when that ended the recording.
// A rejected sample returns its error but leaves the recording running.
func (s *Session) Ingest(r imu.Reading) (stopped bool, err error) {
	s.mu.Lock()
	if !s.state.Active() {
		s.mu.Unlock()
		return false, ErrNotRecording
	}

	if err := s.buffer.Append(r.Sample, r.Kind); err != nil {
		state := s.state
		s.mu.Unlock()
		s.sink(Event{Type: EventSampleRejected, State: state, At: r.Timestamp, Err: err.Error()})
		return false, err
	}
	if r.Timestamp > s.lastT {
		s.lastT = r.Timestamp
	}

	var events []Event
	if r.Kind == imu.Acceleration {
		if s.state == Recording && s.detector.Armed(r.Timestamp) {
			s.state = AutoStopArmed
			events = append(events, Event{Type: EventAutoStopArmed, State: AutoStopArmed, At: r.Timestamp})
		}
		if s.detector.Observe(r.Sample) {
			s.stopLocked(StopAuto)
			stopped = true
			events = append(events,
				Event{Type: EventAutoStopped, State: Stopped, Reason: StopAuto, At: r.Timestamp},
				Event{Type: EventStopped, State: Stopped, Reason: StopAuto, At: r.Timestamp},
			)
		}
	}
	s.mu.Unlock()

	for _, e := range events {
		s.sink(e)
	}
	return stopped, nil
}

// Stop ends the recording and freezes the capture. Stopping an already
// stopped or idle session is a no-op and returns changed=false.
func (s *Session) Stop() (capture imu.RawCapture, changed bool) {
	s.mu.Lock()
	if !s.state.Active() {
		capture = s.capture
		s.mu.Unlock()
		return capture, false
	}
	s.stopLocked(StopManual)
	capture = s.capture
	at := s.lastT
	s.mu.Unlock()

	s.sink(Event{Type: EventStopped, State: Stopped, Reason: StopManual, At: at})
	return capture, true
}

func (s *Session) stopLocked(reason StopReason) {
	s.capture = s.buffer.Snapshot()
	s.state = Stopped
	s.reason = reason
}

// Capture returns the frozen capture of the last recording.
func (s *Session) Capture() (imu.RawCapture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Stopped {
		return imu.RawCapture{}, ErrNotStopped
	}
	return s.capture, nil
}

// Live returns a snapshot of the samples recorded so far, for previews.
func (s *Session) Live() imu.RawCapture {
	return s.buffer.Snapshot()
}
