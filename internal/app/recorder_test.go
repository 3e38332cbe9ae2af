// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"io"
	"log"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/delivery_analyzer/internal/analysis"
	"github.com/relabs-tech/delivery_analyzer/internal/imu"
	"github.com/relabs-tech/delivery_analyzer/internal/monitoring"
	"github.com/relabs-tech/delivery_analyzer/internal/recording"
	"github.com/relabs-tech/delivery_analyzer/internal/session"
	"github.com/relabs-tech/delivery_analyzer/internal/store"
)

func init() {
	log.SetOutput(io.Discard)
	monitoring.SetLogger(nil)
}

type published struct {
	topic    string
	retained bool
	v        any
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *fakePublisher) Publish(topic string, retained bool, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic, retained, v})
	return nil
}

func (p *fakePublisher) on(topic string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, m := range p.msgs {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func (p *fakePublisher) eventTypes() []recording.EventType {
	var out []recording.EventType
	for _, m := range p.on("events") {
		out = append(out, m.v.(recording.Event).Type)
	}
	return out
}

var testTopics = Topics{Throws: "throws", Summary: "summary", Events: "events"}

// feed plays a synthetic delivery shifted by offset seconds, with every
// gyroEvery-th angular-rate sample delivered.
func feed(r *Recorder, offset float64, gyroEvery int) {
	accel, gyro := imu.SyntheticDelivery(imu.DefaultSyntheticParams())
	for i := range accel {
		a := accel[i]
		a.Timestamp += offset
		r.HandleReading(imu.Reading{Kind: imu.Acceleration, Sample: a})
		if i%gyroEvery == 0 {
			g := gyro[i]
			g.Timestamp += offset
			r.HandleReading(imu.Reading{Kind: imu.AngularRate, Sample: g})
		}
	}
}

func newTestRecorder(t *testing.T, st ThrowStore, sessionID string) (*Recorder, *fakePublisher) {
	t.Helper()
	pub := &fakePublisher{}
	r, err := NewRecorder(pub, st, sessionID, testTopics, analysis.DefaultParams(), recording.DefaultParams())
	require.NoError(t, err)
	return r, pub
}

func TestRecorderAutoStopProducesThrow(t *testing.T) {
	r, pub := newTestRecorder(t, nil, "s1")

	require.NoError(t, r.HandleControl(ControlMessage{Command: CommandStart}))
	feed(r, 100, 1)

	assert.Equal(t, recording.Stopped, r.State())
	throws := r.Throws()
	require.Len(t, throws, 1)
	m := throws[0]
	assert.NotEmpty(t, m.ID)
	assert.InDelta(t, 4.0, m.PushoffStrength, 1e-9)
	assert.InDelta(t, 0.8, m.DecelRate, 1e-9)
	assert.Equal(t, session.GlideVeryGood, m.GlideEfficiency)

	assert.Equal(t, []recording.EventType{
		recording.EventStarted,
		recording.EventAutoStopArmed,
		recording.EventAutoStopped,
		recording.EventStopped,
	}, pub.eventTypes())

	thrown := pub.on("throws")
	require.Len(t, thrown, 1)
	msg := thrown[0].v.(ThrowMessage)
	assert.Equal(t, "s1", msg.SessionID)
	assert.Equal(t, analysis.AlignByIndex, msg.Alignment)
	assert.NotEmpty(t, msg.Velocity)

	summaries := pub.on("summary")
	require.NotEmpty(t, summaries)
	last := summaries[len(summaries)-1]
	assert.True(t, last.retained)
	assert.Equal(t, 1, last.v.(SummaryMessage).Summary.Count)

	// a second delivery with a later clock
	require.NoError(t, r.HandleControl(ControlMessage{Command: CommandStart}))
	feed(r, 250, 1)
	assert.Len(t, r.Throws(), 2)
	assert.Equal(t, 2, r.Summary().Count)
}

func TestRecorderManualStopAndErrors(t *testing.T) {
	r, pub := newTestRecorder(t, nil, "s1")

	assert.ErrorIs(t, r.HandleControl(ControlMessage{Command: CommandStop}), recording.ErrNotRecording)
	assert.Error(t, r.HandleControl(ControlMessage{Command: "jump"}))

	// readings outside a recording are dropped
	r.HandleReading(imu.Reading{Kind: imu.Acceleration, Sample: imu.Sample{Timestamp: 1, Ax: 3}})
	assert.Empty(t, pub.eventTypes())

	require.NoError(t, r.HandleControl(ControlMessage{Command: CommandStart}))
	assert.ErrorIs(t, r.HandleControl(ControlMessage{Command: CommandStart}), recording.ErrRecordingActive)

	// stop before any sample: nothing to analyse
	err := r.HandleControl(ControlMessage{Command: CommandStop})
	assert.ErrorIs(t, err, analysis.ErrNoData)
	assert.Empty(t, r.Throws())
	assert.Empty(t, pub.on("throws"))

	// out of order sample is rejected but the recording continues
	require.NoError(t, r.HandleControl(ControlMessage{Command: CommandStart}))
	r.HandleReading(imu.Reading{Kind: imu.Acceleration, Sample: imu.Sample{Timestamp: 5}})
	r.HandleReading(imu.Reading{Kind: imu.Acceleration, Sample: imu.Sample{Timestamp: 4}})
	assert.Equal(t, recording.Recording, r.State())
	assert.Contains(t, pub.eventTypes(), recording.EventSampleRejected)
}

func TestRecorderStopAfterAutoStop(t *testing.T) {
	r, pub := newTestRecorder(t, nil, "s1")
	require.NoError(t, r.HandleControl(ControlMessage{Command: CommandStart}))
	feed(r, 0, 1)
	require.Equal(t, recording.Stopped, r.State())
	events := len(pub.eventTypes())

	assert.NoError(t, r.HandleControl(ControlMessage{Command: CommandStop}))
	assert.Len(t, r.Throws(), 1)
	assert.Len(t, pub.eventTypes(), events)
	assert.Len(t, pub.on("throws"), 1)
}

func TestRecorderDegradedAlignment(t *testing.T) {
	r, pub := newTestRecorder(t, nil, "s1")
	require.NoError(t, r.HandleControl(ControlMessage{Command: CommandStart}))
	feed(r, 0, 2)

	require.Len(t, r.Throws(), 1)
	assert.Contains(t, pub.eventTypes(), recording.EventAlignmentDegraded)
	msg := pub.on("throws")[0].v.(ThrowMessage)
	assert.Equal(t, analysis.AlignByTimestamp, msg.Alignment)
}

func TestRecorderWithStore(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "recorder.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sess, err := openSession(db, "practice")
	require.NoError(t, err)
	again, err := openSession(db, "practice")
	require.NoError(t, err)
	assert.Equal(t, sess.ID, again.ID)

	r, _ := newTestRecorder(t, db, sess.ID)
	require.NoError(t, r.HandleControl(ControlMessage{Command: CommandStart}))
	feed(r, 0, 1)

	stored, err := db.ListThrows(sess.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, r.Throws()[0].ID, stored[0].ID)

	// a new recorder picks the stored throws up
	r2, pub2 := newTestRecorder(t, db, sess.ID)
	assert.Len(t, r2.Throws(), 1)
	require.NotEmpty(t, pub2.on("summary"))

	require.NoError(t, r2.HandleControl(ControlMessage{Command: CommandDelete, ThrowID: stored[0].ID}))
	assert.Empty(t, r2.Throws())
	assert.ErrorIs(t, r2.HandleControl(ControlMessage{Command: CommandDelete, ThrowID: stored[0].ID}), store.ErrNotFound)

	// r still holds the deleted throw until it reloads
	assert.Len(t, r.Throws(), 1)
	require.NoError(t, r.HandleControl(ControlMessage{Command: CommandReload}))
	assert.Empty(t, r.Throws())
}
