// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/delivery_analyzer/internal/imu"
)

// ErrSkipLine marks a line that carries no sample (blank, comment, header
// or an NMEA sentence of another type).
var ErrSkipLine = errors.New("sensors: no sample on line")

// ErrMalformedLine wraps a line that could not be decoded. Reading may
// continue after it.
var ErrMalformedLine = errors.New("sensors: malformed line")

// TypeIMURaw is the sentence type of the framed feed: $IMRAW,t,ax,ay,az,gx,gy,gz*hh
const TypeIMURaw = "RAW"

// IMURaw is a decoded $IMRAW sentence.
type IMURaw struct {
	nmea.BaseSentence
	T          float64
	Ax, Ay, Az float64
	Gx, Gy, Gz float64
}

func newIMURaw(s nmea.BaseSentence) (nmea.Sentence, error) {
	p := nmea.NewParser(s)
	return IMURaw{
		BaseSentence: s,
		T:            p.Float64(0, "timestamp"),
		Ax:           p.Float64(1, "ax"),
		Ay:           p.Float64(2, "ay"),
		Az:           p.Float64(3, "az"),
		Gx:           p.Float64(4, "gx"),
		Gy:           p.Float64(5, "gy"),
		Gz:           p.Float64(6, "gz"),
	}, p.Err()
}

var sentenceParser = nmea.SentenceParser{
	CustomParsers: map[string]nmea.ParserFunc{
		TypeIMURaw: newIMURaw,
	},
}

// ParseLine decodes one line of a serial IMU feed. Two forms are accepted:
// plain CSV "t,ax,ay,az,gx,gy,gz" and the checksummed $IMRAW sentence.
// Units are seconds, m/s² and °/s.
func ParseLine(line string) (accel, gyro imu.Sample, err error) {
	line = strings.TrimSpace(line)
	switch {
	case line == "", strings.HasPrefix(line, "#"):
		return accel, gyro, ErrSkipLine
	case strings.HasPrefix(line, "$"):
		return parseSentence(line)
	}

	fields := strings.Split(line, ",")
	if len(fields) != 7 {
		return accel, gyro, fmt.Errorf("want 7 fields, got %d", len(fields))
	}
	var v [7]float64
	for i, f := range fields {
		v[i], err = strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			if i == 0 {
				// header row such as "t,ax,ay,az,gx,gy,gz"
				return accel, gyro, ErrSkipLine
			}
			return accel, gyro, fmt.Errorf("field %d: %w", i, err)
		}
	}
	return pair(v[0], v[1], v[2], v[3], v[4], v[5], v[6])
}

func parseSentence(line string) (accel, gyro imu.Sample, err error) {
	s, err := sentenceParser.Parse(line)
	if err != nil {
		return accel, gyro, err
	}
	raw, ok := s.(IMURaw)
	if !ok {
		return accel, gyro, ErrSkipLine
	}
	return pair(raw.T, raw.Ax, raw.Ay, raw.Az, raw.Gx, raw.Gy, raw.Gz)
}

func pair(t, ax, ay, az, gx, gy, gz float64) (imu.Sample, imu.Sample, error) {
	return imu.Sample{Timestamp: t, Ax: ax, Ay: ay, Az: az},
		imu.Sample{Timestamp: t, Gx: gx, Gy: gy, Gz: gz},
		nil
}

// LineSource reads samples line by line from a serial port or any reader.
type LineSource struct {
	r      io.ReadCloser
	reader *bufio.Reader
	line   int
}

// NewLineSource wraps r.
func NewLineSource(r io.ReadCloser) *LineSource {
	return &LineSource{r: r, reader: bufio.NewReader(r)}
}

// OpenSerial opens a serial-attached IMU.
func OpenSerial(port string, baud int) (*LineSource, error) {
	opts := serial.OpenOptions{
		PortName:              port,
		BaudRate:              uint(baud),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	p, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", port, err)
	}
	return NewLineSource(p), nil
}

// Next returns the next sample pair. Lines without a sample are skipped; a
// malformed line is returned as an error and the caller may keep reading.
// io.EOF is returned when the stream ends.
func (s *LineSource) Next() (accel, gyro imu.Sample, err error) {
	for {
		text, rerr := s.reader.ReadString('\n')
		if rerr != nil && (rerr != io.EOF || text == "") {
			return accel, gyro, rerr
		}
		s.line++
		accel, gyro, err = ParseLine(text)
		if errors.Is(err, ErrSkipLine) {
			continue
		}
		if err != nil {
			return accel, gyro, fmt.Errorf("line %d: %w: %w", s.line, ErrMalformedLine, err)
		}
		return accel, gyro, nil
	}
}

// Close closes the underlying port.
func (s *LineSource) Close() error {
	return s.r.Close()
}
