// Package telemetry frames ranging readings as text lines and fans them out
// to topic-prefix subscribers.
//
// A frame is one line of four space-separated tokens:
//
//	<topic> <distance_mm> <signal_rate> <range_status>
//
// with the signal rate formatted to two decimals, e.g. "tof 900 2.00 2".
package telemetry

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/banshee-data/range.report/internal/tof"
)

// DefaultTopic is the topic the publisher uses unless configured otherwise.
const DefaultTopic = "tof"

// ErrMalformedFrame matches every *DecodeError.
var ErrMalformedFrame = errors.New("telemetry: malformed frame")

// DecodeError describes why a line is not a frame.
type DecodeError struct {
	Line   string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("telemetry: decode %q: %s: %v", e.Line, e.Reason, e.Err)
	}
	return fmt.Sprintf("telemetry: decode %q: %s", e.Line, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrMalformedFrame }

// Frame is one published reading.
type Frame struct {
	Topic       string
	DistanceMM  uint16
	SignalRate  float64
	RangeStatus uint8
}

// FromReading frames r under topic.
func FromReading(topic string, r tof.Reading) Frame {
	return Frame{
		Topic:       topic,
		DistanceMM:  r.DistanceMM,
		SignalRate:  r.SignalRate,
		RangeStatus: r.RangeStatus,
	}
}

// Reading returns the reading carried by f.
func (f Frame) Reading() tof.Reading {
	return tof.Reading{DistanceMM: f.DistanceMM, SignalRate: f.SignalRate, RangeStatus: f.RangeStatus}
}

// Class classifies the frame's range status.
func (f Frame) Class() tof.StatusClass { return tof.Classify(f.RangeStatus) }

// Encode returns the wire line for f, without a trailing newline.
func (f Frame) Encode() string {
	return fmt.Sprintf("%s %d %.2f %d", f.Topic, f.DistanceMM, f.SignalRate, f.RangeStatus)
}

func (f Frame) String() string { return f.Encode() }

// Decode parses a wire line. It never panics; every failure is a
// *DecodeError.
func Decode(line string) (Frame, error) {
	fields := strings.Fields(line)
	if len(fields) != 4 {
		return Frame{}, &DecodeError{Line: line, Reason: fmt.Sprintf("want 4 fields, got %d", len(fields))}
	}

	distance, err := strconv.ParseUint(fields[1], 10, 16)
	if err != nil {
		return Frame{}, &DecodeError{Line: line, Reason: "distance", Err: err}
	}
	signal, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return Frame{}, &DecodeError{Line: line, Reason: "signal rate", Err: err}
	}
	if signal < 0 || math.IsNaN(signal) || math.IsInf(signal, 0) {
		return Frame{}, &DecodeError{Line: line, Reason: fmt.Sprintf("signal rate %q out of range", fields[2])}
	}
	status, err := strconv.ParseUint(fields[3], 10, 8)
	if err != nil {
		return Frame{}, &DecodeError{Line: line, Reason: "range status", Err: err}
	}
	if status > 31 {
		return Frame{}, &DecodeError{Line: line, Reason: fmt.Sprintf("range status %d out of range", status)}
	}

	return Frame{
		Topic:       fields[0],
		DistanceMM:  uint16(distance),
		SignalRate:  signal,
		RangeStatus: uint8(status),
	}, nil
}

// ValidateTopic reports whether topic can be the first token of a frame.
func ValidateTopic(topic string) error {
	if topic == "" {
		return errors.New("telemetry: empty topic")
	}
	if strings.IndexFunc(topic, unicode.IsSpace) >= 0 {
		return fmt.Errorf("telemetry: topic %q contains whitespace", topic)
	}
	return nil
}
