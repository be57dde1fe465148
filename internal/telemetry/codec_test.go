package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/range.report/internal/tof"
)

func TestEncode(t *testing.T) {
	f := FromReading(DefaultTopic, tof.Reading{DistanceMM: 900, SignalRate: 2.0, RangeStatus: 2})
	assert.Equal(t, "tof 900 2.00 2", f.Encode())
	assert.Equal(t, "tof 900 2.00 2", f.String())

	f = Frame{Topic: "bay1", DistanceMM: 65535, SignalRate: 511.9921875, RangeStatus: 31}
	assert.Equal(t, "bay1 65535 511.99 31", f.Encode())
}

func TestRoundTrip(t *testing.T) {
	readings := []tof.Reading{
		{DistanceMM: 0, SignalRate: 0, RangeStatus: 0},
		{DistanceMM: 900, SignalRate: 2.0, RangeStatus: 2},
		{DistanceMM: 1234, SignalRate: 3.0078125, RangeStatus: 7},
		{DistanceMM: 65535, SignalRate: 65535.0 / 128.0, RangeStatus: 31},
	}
	for _, r := range readings {
		got, err := Decode(FromReading("tof", r).Encode())
		require.NoError(t, err)
		assert.Equal(t, "tof", got.Topic)
		assert.Equal(t, r.DistanceMM, got.DistanceMM)
		assert.Equal(t, r.RangeStatus, got.RangeStatus)
		assert.InDelta(t, r.SignalRate, got.SignalRate, 0.01)
		assert.Equal(t, r.Class(), got.Class())
	}
}

func TestDecode(t *testing.T) {
	f, err := Decode("tof 900 2.00 2\n")
	require.NoError(t, err)
	assert.Equal(t, Frame{Topic: "tof", DistanceMM: 900, SignalRate: 2.0, RangeStatus: 2}, f)
	assert.Equal(t, tof.Reading{DistanceMM: 900, SignalRate: 2.0, RangeStatus: 2}, f.Reading())

	f, err = Decode("  tof\t12   0.5 0 ")
	require.NoError(t, err)
	assert.Equal(t, uint16(12), f.DistanceMM)
}

func TestDecode_Malformed(t *testing.T) {
	for _, line := range []string{
		"",
		"tof 900 2.00",
		"tof 900 2.00 2 extra",
		"tof abc 2.00 2",
		"tof -1 2.00 2",
		"tof 65536 2.00 2",
		"tof 900.5 2.00 2",
		"tof 900 fast 2",
		"tof 900 -0.5 2",
		"tof 900 NaN 2",
		"tof 900 +Inf 2",
		"tof 900 2.00 x",
		"tof 900 2.00 32",
		"tof 900 2.00 -1",
		"tof 900 2.00 2.5",
	} {
		_, err := Decode(line)
		require.Error(t, err, "line %q", line)
		assert.ErrorIs(t, err, ErrMalformedFrame, "line %q", line)
		var de *DecodeError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, line, de.Line)
	}
}

func TestDecode_NeverPanics(t *testing.T) {
	for _, line := range []string{"\x00\x01\x02\x03", "   ", "a b c d", string([]byte{0xff, 0xfe, ' ', '1', ' ', '1', ' ', '1'})} {
		assert.NotPanics(t, func() { _, _ = Decode(line) })
	}
	_, err := Decode(string([]byte{0xff, 0xfe, ' ', '1', ' ', '1', ' ', '1'}))
	assert.NoError(t, err, "topic token is opaque")
}

func TestValidateTopic(t *testing.T) {
	assert.NoError(t, ValidateTopic("tof"))
	assert.NoError(t, ValidateTopic("garage/door"))
	assert.Error(t, ValidateTopic(""))
	assert.Error(t, ValidateTopic("two words"))
	assert.Error(t, ValidateTopic("tab\there"))
}

func TestDecodeError_Message(t *testing.T) {
	_, err := Decode("tof 900 2.00")
	assert.EqualError(t, err, `telemetry: decode "tof 900 2.00": want 4 fields, got 3`)
}
