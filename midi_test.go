package midiedit

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestVariableIntRead(t *testing.T) {
	expected := []uint32{
		0x00000000,
		0x00000040,
		0x0000007F,
		0x00000080,
		0x00002000,
		0x00003FFF,
		0x00004000,
		0x00100000,
		0x001FFFFF,
		0x00200000,
		0x08000000,
		0x0FFFFFFF,
	}
	expectedCounts := []int{1, 1, 1, 2, 2, 2, 3, 3, 3, 4, 4, 4}
	// This should contain the variable-length integers equivalent to those in
	// the "expected" slice, followed by an integer that hits EOF too soon.
	data := []byte{
		0x00,
		0x40,
		0x7F,
		0x81, 0x00,
		0xC0, 0x00,
		0xFF, 0x7F,
		0x81, 0x80, 0x00,
		0xC0, 0x80, 0x00,
		0xFF, 0xFF, 0x7F,
		0x81, 0x80, 0x80, 0x00,
		0xC0, 0x80, 0x80, 0x00,
		0xFF, 0xFF, 0xFF, 0x7F,
		0xff, 0xff,
	}
	r := bytes.NewReader(data)
	for i, v := range expected {
		valueRead, count, e := ReadVariableInt(r)
		if e != nil {
			t.Logf("Failed reading variable-length int 0x%08x: %s\n", v, e)
			t.FailNow()
		}
		if valueRead != v {
			t.Logf("Read wrong value for variable-length int. Expected "+
				"0x%08x, got 0x%08x.\n", v, valueRead)
			t.FailNow()
		}
		if count != expectedCounts[i] {
			t.Logf("Read wrong byte count for 0x%08x. Expected %d, got "+
				"%d.\n", v, expectedCounts[i], count)
			t.FailNow()
		}
	}
	_, _, e := ReadVariableInt(r)
	if e == nil {
		t.Logf("Didn't get expected error for reading an incomplete int.\n")
		t.FailNow()
	}
	// Remember, we don't want to get an io.EOF error on an integer that's
	// incomplete--this would make it harder to tell the difference between a
	// track that ends normally and one that ends in the middle of a time
	// delta.
	if e == io.EOF {
		t.Logf("Got io.EOF from reading an incomplete int.\n")
		t.FailNow()
	}
	if !errors.Is(e, ErrTruncatedData) {
		t.Logf("Expected ErrTruncatedData for an incomplete int, got: %s\n",
			e)
		t.FailNow()
	}
	_, _, e = ReadVariableInt(r)
	if e != io.EOF {
		t.Logf("Didn't get io.EOF when trying to read an int at EOF: %v\n", e)
		t.FailNow()
	}
}

func TestVariableIntWrite(t *testing.T) {
	data := []uint32{
		0x00000000,
		0x00000040,
		0x0000007F,
		0x00000080,
		0x00002000,
		0x00003FFF,
		0x00004000,
		0x00100000,
		0x001FFFFF,
		0x00200000,
		0x08000000,
		0x0FFFFFFF,
	}
	expected := []byte{
		0x00,
		0x40,
		0x7F,
		0x81, 0x00,
		0xC0, 0x00,
		0xFF, 0x7F,
		0x81, 0x80, 0x00,
		0xC0, 0x80, 0x00,
		0xFF, 0xFF, 0x7F,
		0x81, 0x80, 0x80, 0x00,
		0xC0, 0x80, 0x80, 0x00,
		0xFF, 0xFF, 0xFF, 0x7F,
	}
	var output bytes.Buffer
	for _, v := range data {
		e := WriteVariableInt(&output, v)
		if e != nil {
			t.Logf("Failed writing variable int 0x%08x: %s\n", v, e)
			t.FailNow()
		}
	}
	if output.Len() != len(expected) {
		t.Logf("Wrong total encoded length: expected %d, got %d\n",
			len(expected), output.Len())
		t.FailNow()
	}
	for i, b := range output.Bytes() {
		if b != expected[i] {
			t.Logf("Got different output byte at offset %d: wanted 0x%02x, "+
				"got 0x%02x\n", i, expected[i], b)
			t.FailNow()
		}
	}
}

func TestVariableIntRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500

	properties := gopter.NewProperties(parameters)

	properties.Property("decode(encode(v)) returns v and the encoded length",
		prop.ForAll(
			func(v uint32) bool {
				var encoded bytes.Buffer
				if e := WriteVariableInt(&encoded, v); e != nil {
					return false
				}
				if encoded.Len() == 0 {
					return false
				}
				decoded, count, e := ReadVariableInt(
					bytes.NewReader(encoded.Bytes()))
				if e != nil {
					return false
				}
				return decoded == v && count == encoded.Len()
			},
			gen.UInt32(),
		))

	properties.Property("encoding uses the minimal number of 7-bit groups",
		prop.ForAll(
			func(v uint32) bool {
				var encoded bytes.Buffer
				if e := WriteVariableInt(&encoded, v); e != nil {
					return false
				}
				want := 1
				for x := v >> 7; x != 0; x = x >> 7 {
					want++
				}
				return encoded.Len() == want
			},
			gen.UInt32(),
		))

	properties.TestingRun(t)
}

// Parses a single event from data and checks that it serializes back to the
// exact same bytes, returning the parsed event.
func roundTripEvent(t *testing.T, data []byte) *Event {
	t.Helper()
	event, consumed, e := parseEvent(bytes.NewReader(data))
	if e != nil {
		t.Logf("Failed parsing event % x: %s\n", data, e)
		t.FailNow()
	}
	if consumed != len(data) {
		t.Logf("Wrong consumed count for event % x: expected %d, got %d\n",
			data, len(data), consumed)
		t.FailNow()
	}
	output := event.SMFData()
	if !bytes.Equal(output, data) {
		t.Logf("Event % x reserialized as % x\n", data, output)
		t.FailNow()
	}
	return event
}

func TestParseEventTypes(t *testing.T) {
	// Note off, channel 3: note 60, velocity 64.
	event := roundTripEvent(t, []byte{0x00, 0x83, 0x3c, 0x40})
	if !event.IsNote() || (event.Channel() != 3) || (event.Note != 0x3c) ||
		(event.Velocity != 0x40) {
		t.Logf("Parsed note-off event incorrectly: %s\n", event)
		t.FailNow()
	}
	// Note on, channel 0, with a 2-byte delta-time.
	event = roundTripEvent(t, []byte{0x81, 0x40, 0x90, 0x4c, 0x20})
	if !event.IsNote() || (event.DeltaTicks != 0xc0) ||
		(event.Note != 0x4c) || (event.Velocity != 0x20) {
		t.Logf("Parsed note-on event incorrectly: %s\n", event)
		t.FailNow()
	}
	// Aftertouch, control change, and pitch bend: 2 opaque payload bytes.
	for _, status := range []byte{0xa1, 0xb2, 0xe3} {
		event = roundTripEvent(t, []byte{0x00, status, 0x10, 0x20})
		if event.IsNote() || (len(event.Opaque) != 2) {
			t.Logf("Parsed 2-byte event 0x%02x incorrectly: %s\n", status,
				event)
			t.FailNow()
		}
	}
	// Program change and channel pressure: 1 opaque payload byte.
	for _, status := range []byte{0xc0, 0xd5} {
		event = roundTripEvent(t, []byte{0x00, status, 0x2e})
		if event.IsNote() || (len(event.Opaque) != 1) {
			t.Logf("Parsed 1-byte event 0x%02x incorrectly: %s\n", status,
				event)
			t.FailNow()
		}
	}
	// A meta event: type byte, length prefix, and payload all opaque.
	event = roundTripEvent(t, []byte{0x00, 0xff, 0x51, 0x03, 0x07, 0xa1,
		0x20})
	if event.IsNote() || (len(event.Opaque) != 5) {
		t.Logf("Parsed meta event incorrectly: %s\n", event)
		t.FailNow()
	}
	// A meta event with a non-minimal 2-byte length prefix must still
	// round-trip, since the raw length bytes are kept.
	roundTripEvent(t, []byte{0x00, 0xff, 0x06, 0x80, 0x02, 0x41, 0x42})
	// A sysex event (0xf0): length prefix but no meta-type byte.
	event = roundTripEvent(t, []byte{0x00, 0xf0, 0x03, 0x43, 0x12, 0xf7})
	if len(event.Opaque) != 4 {
		t.Logf("Parsed sysex event incorrectly: %s\n", event)
		t.FailNow()
	}
}

func TestParseEventRejectsRunningStatus(t *testing.T) {
	// A data byte where a status byte is expected; files using the
	// running-status convention look exactly like this.
	for _, status := range []byte{0x00, 0x3c, 0x7f} {
		_, _, e := parseEvent(bytes.NewReader([]byte{0x00, status, 0x40}))
		if !errors.Is(e, ErrMalformedEvent) {
			t.Logf("Expected ErrMalformedEvent for status 0x%02x, got: %v\n",
				status, e)
			t.FailNow()
		}
	}
}

func TestParseEventTruncated(t *testing.T) {
	truncated := [][]byte{
		// Delta-time only.
		{0x00},
		// Note event missing its velocity byte.
		{0x00, 0x90, 0x3c},
		// Meta event whose payload is shorter than its declared length.
		{0x00, 0xff, 0x01, 0x05, 0x41, 0x42},
	}
	for _, data := range truncated {
		_, _, e := parseEvent(bytes.NewReader(data))
		if !errors.Is(e, ErrTruncatedData) {
			t.Logf("Expected ErrTruncatedData for % x, got: %v\n", data, e)
			t.FailNow()
		}
	}
}

func TestEventSerializesOutOfRangeValues(t *testing.T) {
	event := roundTripEvent(t, []byte{0x00, 0x90, 0x3c, 0x40})
	// The serializer must faithfully write back whatever is stored, even
	// values outside 0-127; clamping is the editing code's job.
	event.Note = 200
	event.Velocity = 250
	output := event.SMFData()
	expected := []byte{0x00, 0x90, 200, 250}
	if !bytes.Equal(output, expected) {
		t.Logf("Expected % x for out-of-range note, got % x\n", expected,
			output)
		t.FailNow()
	}
}

func TestEventRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300

	properties := gopter.NewProperties(parameters)

	properties.Property("note events survive a serialize/parse round trip",
		prop.ForAll(
			func(delta uint32, onOff bool, channel, note, velocity uint8) bool {
				status := uint8(0x80) | (channel & 0xf)
				if onOff {
					status = uint8(0x90) | (channel & 0xf)
				}
				original := &Event{
					DeltaTicks: delta,
					Status:     status,
					Note:       note & 0x7f,
					Velocity:   velocity & 0x7f,
				}
				data := original.SMFData()
				parsed, consumed, e := parseEvent(bytes.NewReader(data))
				if e != nil {
					return false
				}
				return consumed == len(data) &&
					parsed.DeltaTicks == original.DeltaTicks &&
					parsed.Status == original.Status &&
					parsed.Note == original.Note &&
					parsed.Velocity == original.Velocity
			},
			gen.UInt32(),
			gen.Bool(),
			gen.UInt8(),
			gen.UInt8(),
			gen.UInt8(),
		))

	properties.Property("meta events reserialize byte-identically",
		prop.ForAll(
			func(delta uint32, metaType uint8, payload []byte) bool {
				var data bytes.Buffer
				WriteVariableInt(&data, delta)
				data.WriteByte(0xff)
				data.WriteByte(metaType)
				WriteVariableInt(&data, uint32(len(payload)))
				data.Write(payload)
				parsed, consumed, e := parseEvent(
					bytes.NewReader(data.Bytes()))
				if e != nil {
					return false
				}
				return consumed == data.Len() &&
					bytes.Equal(parsed.SMFData(), data.Bytes())
			},
			gen.UInt32(),
			gen.UInt8(),
			gen.SliceOf(gen.UInt8()),
		))

	properties.TestingRun(t)
}
