// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/relabs-tech/delivery_analyzer/internal/analysis"
	"github.com/relabs-tech/delivery_analyzer/internal/config"
	"github.com/relabs-tech/delivery_analyzer/internal/imu"
	"github.com/relabs-tech/delivery_analyzer/internal/recording"
	"github.com/relabs-tech/delivery_analyzer/internal/session"
	"github.com/relabs-tech/delivery_analyzer/internal/store"
)

// Control commands accepted on the control topic.
const (
	CommandStart  = "start"
	CommandStop   = "stop"
	CommandDelete = "delete"
	CommandReload = "reload"
)

// ControlMessage is the payload of the control topic.
type ControlMessage struct {
	Command string `json:"command"`
	ThrowID string `json:"throw_id,omitempty"`
}

// ThrowMessage is published once per analysed delivery.
type ThrowMessage struct {
	SessionID string                  `json:"session_id"`
	Throw     session.ThrowMetrics    `json:"throw"`
	Alignment analysis.Alignment      `json:"alignment"`
	Velocity  analysis.VelocitySeries `json:"velocity"`
	Stability []float64               `json:"stability"`
}

// SummaryMessage is published (retained) whenever the session's throw list
// changes.
type SummaryMessage struct {
	SessionID string          `json:"session_id"`
	Summary   session.Summary `json:"summary"`
}

// ThrowStore is the part of the store the recorder writes to.
type ThrowStore interface {
	InsertThrow(sessionID string, m session.ThrowMetrics) error
	ListThrows(sessionID string) ([]session.ThrowMetrics, error)
	DeleteThrow(id string) error
}

// Topics the recorder publishes to.
type Topics struct {
	Throws  string
	Summary string
	Events  string
}

// Recorder turns a live reading feed into stored, published throws. It owns
// the recording session and the in-memory throw log of one practice session.
type Recorder struct {
	pub       Publisher
	store     ThrowStore
	sessionID string
	topics    Topics
	params    analysis.Params
	stamp     func() analysis.Stamp

	rec *recording.Session

	mu         sync.Mutex
	log        *session.Log
	origin     float64
	haveOrigin bool
}

// NewRecorder loads the session's stored throws and returns an idle
// recorder. store may be nil for a memory-only session.
func NewRecorder(pub Publisher, st ThrowStore, sessionID string, topics Topics, ap analysis.Params, rp recording.Params) (*Recorder, error) {
	if err := ap.Validate(); err != nil {
		return nil, err
	}
	r := &Recorder{
		pub:       pub,
		store:     st,
		sessionID: sessionID,
		topics:    topics,
		params:    ap,
		stamp:     analysis.NewStamp,
		log:       session.NewLog(nil),
	}
	r.rec = recording.NewSession(rp, r.emit)
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Recorder) emit(e recording.Event) {
	if r.topics.Events == "" {
		return
	}
	if err := r.pub.Publish(r.topics.Events, false, e); err != nil {
		log.Printf("recorder: publish event %s: %v", e.Type, err)
	}
}

// State returns the recording state.
func (r *Recorder) State() recording.State {
	return r.rec.State()
}

// Summary returns the current session summary.
func (r *Recorder) Summary() session.Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.log.Summary()
}

// Throws returns the session's throws in recording order.
func (r *Recorder) Throws() []session.ThrowMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.log.Snapshot()
}

// HandleControl applies one control command.
func (r *Recorder) HandleControl(msg ControlMessage) error {
	switch msg.Command {
	case CommandStart:
		r.mu.Lock()
		r.haveOrigin = false
		r.mu.Unlock()
		if err := r.rec.Start(); err != nil {
			return err
		}
		log.Printf("recorder: recording started")
		return nil
	case CommandStop:
		if _, changed := r.rec.Stop(); !changed {
			if r.rec.State() == recording.Stopped {
				return nil
			}
			return recording.ErrNotRecording
		}
		_, err := r.finish()
		return err
	case CommandDelete:
		return r.DeleteThrow(msg.ThrowID)
	case CommandReload:
		return r.Reload()
	}
	return fmt.Errorf("unknown command %q", msg.Command)
}

// HandleReading feeds one reading into the active recording. Timestamps are
// shifted so the first reading after Start is at 0. Readings outside a
// recording are dropped.
func (r *Recorder) HandleReading(rd imu.Reading) {
	if !r.rec.State().Active() {
		return
	}
	r.mu.Lock()
	if !r.haveOrigin {
		r.origin = rd.Timestamp
		r.haveOrigin = true
	}
	rd.Timestamp -= r.origin
	r.mu.Unlock()

	stopped, err := r.rec.Ingest(rd)
	switch {
	case errors.Is(err, recording.ErrNotRecording):
		return
	case err != nil:
		log.Printf("recorder: rejected %s sample at %.3fs: %v", rd.Kind, rd.Timestamp, err)
		return
	}
	if stopped {
		log.Printf("recorder: auto-stopped at %.2fs", rd.Timestamp)
		if _, err := r.finish(); err != nil {
			log.Printf("recorder: %v", err)
		}
	}
}

// finish analyses the frozen capture of the last recording, stores the throw
// and publishes it with the new summary.
func (r *Recorder) finish() (analysis.Result, error) {
	capture, err := r.rec.Capture()
	if err != nil {
		return analysis.Result{}, err
	}
	if capture.Duplicates > 0 {
		log.Printf("recorder: %d samples repeated the previous timestamp", capture.Duplicates)
	}
	res, err := analysis.Process(capture, r.params, r.stamp())
	if err != nil {
		return res, fmt.Errorf("no metrics for this delivery: %w", err)
	}
	if res.Trimmed.Degraded() {
		r.emit(recording.Event{
			Type:  recording.EventAlignmentDegraded,
			State: recording.Stopped,
			Err: fmt.Sprintf("%d acceleration / %d angular-rate samples, aligned by timestamp",
				len(capture.Accel), len(capture.Gyro)),
		})
	}

	if r.store != nil {
		if err := r.store.InsertThrow(r.sessionID, res.Metrics); err != nil {
			return res, err
		}
	}

	r.mu.Lock()
	if err := r.log.Append(res.Metrics); err != nil {
		r.mu.Unlock()
		return res, err
	}
	summary := r.log.Summary()
	r.mu.Unlock()

	m := res.Metrics
	log.Printf("recorder: throw %s pushoff=%.2f peak=%.2f slide=%.2fs decel=%.2f stability=%.1f glide=%s",
		m.ID, m.PushoffStrength, m.PeakVelocity, m.SlideDuration, m.DecelRate, m.StabilityScore, m.GlideEfficiency)

	r.publish(r.topics.Throws, false, ThrowMessage{
		SessionID: r.sessionID,
		Throw:     m,
		Alignment: res.Trimmed.Alignment,
		Velocity:  res.Velocity,
		Stability: res.Stability,
	})
	r.publish(r.topics.Summary, true, SummaryMessage{SessionID: r.sessionID, Summary: summary})
	return res, nil
}

// DeleteThrow removes a throw from the store and the log and republishes
// the summary.
func (r *Recorder) DeleteThrow(id string) error {
	if r.store != nil {
		if err := r.store.DeleteThrow(id); err != nil {
			return err
		}
	}
	r.mu.Lock()
	err := r.log.Delete(id)
	summary := r.log.Summary()
	r.mu.Unlock()
	if err != nil && r.store == nil {
		return err
	}
	r.publish(r.topics.Summary, true, SummaryMessage{SessionID: r.sessionID, Summary: summary})
	return nil
}

// Reload replaces the in-memory log with the stored throws.
func (r *Recorder) Reload() error {
	if r.store == nil {
		return nil
	}
	throws, err := r.store.ListThrows(r.sessionID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.log = session.NewLog(throws)
	summary := r.log.Summary()
	r.mu.Unlock()
	r.publish(r.topics.Summary, true, SummaryMessage{SessionID: r.sessionID, Summary: summary})
	return nil
}

func (r *Recorder) publish(topic string, retained bool, v any) {
	if topic == "" {
		return
	}
	if err := r.pub.Publish(topic, retained, v); err != nil {
		log.Printf("recorder: publish %s: %v", topic, err)
	}
}

// openSession finds the session called name or creates it.
func openSession(db *store.DB, name string) (*store.Session, error) {
	sessions, err := db.ListSessions()
	if err != nil {
		return nil, err
	}
	for _, s := range sessions {
		if s.Name == name {
			return s, nil
		}
	}
	return db.CreateSession(name)
}

// RunRecorder subscribes to the reading and control topics and records
// throws into the configured session until interrupted.
func RunRecorder() error {
	cfg := config.Get()

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	sess, err := openSession(db, cfg.SessionName)
	if err != nil {
		return err
	}
	log.Printf("recorder: session %q (%s)", sess.Name, sess.ID)

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDRecorder)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	ap, rp := cfg.Pipeline()
	rec, err := NewRecorder(mqttPublisher{client}, db, sess.ID, Topics{
		Throws:  cfg.TopicThrows,
		Summary: cfg.TopicSummary,
		Events:  cfg.TopicEvents,
	}, ap, rp)
	if err != nil {
		return err
	}
	log.Printf("recorder: %d stored throws loaded", len(rec.Throws()))

	if err := subscribeJSON(client, cfg.TopicSamples, "recorder", rec.HandleReading); err != nil {
		return err
	}
	if err := subscribeJSON(client, cfg.TopicControl, "recorder", func(msg ControlMessage) {
		if err := rec.HandleControl(msg); err != nil {
			log.Printf("recorder: %s: %v", msg.Command, err)
		}
	}); err != nil {
		return err
	}

	waitForSignal()
	if rec.State().Active() {
		log.Println("recorder: stopping active recording")
		if err := rec.HandleControl(ControlMessage{Command: CommandStop}); err != nil {
			log.Printf("recorder: %v", err)
		}
	}
	log.Println("recorder: shutting down")
	return nil
}
