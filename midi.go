// This package defines a library for losslessly reading and writing standard
// MIDI (.mid) files. Only note-on and note-off events are decoded into
// editable fields; every other event type is carried through as opaque bytes
// so that re-encoding a parsed file reproduces it exactly. The midi_tool
// directory contains a command-line editor built on top of this library.
package midiedit

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// The error kinds returned by the parser. Parse errors abort the current
// file with no partial result; a single bad byte misaligns every offset that
// follows it, so there is nothing to recover. Use errors.Is to test for
// these; the returned errors wrap them with positional context.
var (
	// ErrBadFormat indicates a bad MThd chunk: wrong id or a declared
	// header length below the mandatory 6 bytes.
	ErrBadFormat = errors.New("invalid SMF header")
	// ErrUnsupportedTiming indicates the file's division field selects
	// SMPTE (seconds-based) timing. Only ticks-per-quarter-note timing is
	// supported.
	ErrUnsupportedTiming = errors.New("SMPTE time division is not supported")
	// ErrMalformedEvent indicates an event with a status byte outside the
	// documented type range. This includes files relying on the
	// running-status convention, which this parser rejects rather than
	// misparses.
	ErrMalformedEvent = errors.New("malformed MIDI event")
	// ErrMalformedTrack indicates a bad MTrk chunk: wrong id, or an event
	// overrunning the track's declared length.
	ErrMalformedTrack = errors.New("malformed MIDI track")
	// ErrTruncatedData indicates the stream ended before a declared length
	// was satisfied.
	ErrTruncatedData = errors.New("MIDI data ends before declared length")
)

// Reads and returns the next byte from r.
func readByte(r io.Reader) (uint8, error) {
	tmp := []uint8{0}
	_, e := io.ReadFull(r, tmp)
	return tmp[0], e
}

// Reads a MIDI-format variable-length int: 7 payload bits per byte, high bit
// set on every byte except the last. Returns the value along with the number
// of bytes consumed, so callers accounting against a declared chunk length
// know how much of their budget the int used. No upper bound on the byte
// count is enforced; well-formed files stay within 4 bytes.
func ReadVariableInt(r io.Reader) (uint32, int, error) {
	toReturn := uint32(0)
	count := 0
	for {
		b, e := readByte(r)
		if e != nil {
			if count == 0 {
				// Propagate io.EOF unchanged so track parsers can
				// distinguish a clean end of data.
				return 0, 0, e
			}
			return 0, count, fmt.Errorf("%w: inside variable-length int",
				ErrTruncatedData)
		}
		count++
		toReturn = (toReturn << 7) | uint32(b&0x7f)
		if (b & 0x80) == 0 {
			break
		}
	}
	return toReturn, count, nil
}

// Writes a MIDI-format variable-length int to the given output stream, using
// the minimal number of 7-bit groups. A value of 0 is written as a single
// zero byte, never as an empty sequence.
func WriteVariableInt(w io.Writer, n uint32) error {
	if n == 0 {
		_, e := w.Write([]byte{0})
		return e
	}
	// Break the number up into 7-bit chunks, low-order group first.
	toWrite := make([]byte, 0, 5)
	for n != 0 {
		toWrite = append(toWrite, uint8(n&0x7f))
		n = n >> 7
	}
	// Reverse into big-endian order, setting the continuation bit on every
	// byte except the last.
	reversed := make([]byte, len(toWrite))
	for i := len(toWrite) - 1; i >= 0; i-- {
		b := toWrite[i]
		if i != 0 {
			b |= 0x80
		}
		reversed[len(reversed)-i-1] = b
	}
	_, e := w.Write(reversed)
	return e
}

// An Event is one delta-time + status + payload unit within a track.
//
// Only note-on and note-off events are decoded: their two payload bytes land
// in Note and Velocity, which editing code may modify freely. For every
// other event type the payload bytes consumed during parsing are kept
// verbatim in Opaque (for meta and system events this includes the meta-type
// byte and the raw length prefix), so an unmodified event always re-encodes
// to its original bytes.
type Event struct {
	// The number of ticks since the previous event in the same track.
	DeltaTicks uint32
	// The raw status byte. The high nibble is the event type and the low
	// nibble is the channel for channel events. It is stored unmodified so
	// re-encoding reproduces the exact original byte.
	Status uint8
	// The note number and velocity. Only meaningful if IsNote() returns
	// true. The serializer writes these back without range-checking them;
	// keeping them within 0-127 is the caller's job.
	Note     uint8
	Velocity uint8
	// The payload bytes for every event type other than note-on/note-off,
	// exactly as read from the file. Treat as read-only.
	Opaque []byte
}

// Returns the event's 4-bit type nibble.
func (v *Event) Type() uint8 {
	return v.Status >> 4
}

// Returns true if this is a note-on or note-off event, i.e. if the Note and
// Velocity fields are meaningful.
func (v *Event) IsNote() bool {
	t := v.Status >> 4
	return (t == 0x8) || (t == 0x9)
}

// Returns the channel from the status byte's low nibble. Only meaningful for
// channel events (types 0x8 through 0xe).
func (v *Event) Channel() uint8 {
	return v.Status & 0xf
}

// Returns a copy of the event with its own opaque payload buffer, safe to
// modify and insert independently of the original.
func (v *Event) Clone() *Event {
	toReturn := *v
	if len(v.Opaque) != 0 {
		toReturn.Opaque = make([]byte, len(v.Opaque))
		copy(toReturn.Opaque, v.Opaque)
	}
	return &toReturn
}

func (v *Event) String() string {
	if v.IsNote() {
		state := "off"
		if v.Type() == 0x9 {
			state = "on"
		}
		return fmt.Sprintf("Delta %d: channel %d note %d %s, velocity = %d",
			v.DeltaTicks, v.Channel(), v.Note, state, v.Velocity)
	}
	return fmt.Sprintf("Delta %d: status 0x%02x, %d opaque byte(s)",
		v.DeltaTicks, v.Status, len(v.Opaque))
}

// Returns the underlying bytes for this event, as they would be written to
// an SMF file: the delta-time as a variable-length int, the stored status
// byte, then either the note and velocity bytes or the opaque payload.
func (v *Event) SMFData() []byte {
	var toReturn bytes.Buffer
	// Writes to a bytes.Buffer can't fail.
	WriteVariableInt(&toReturn, v.DeltaTicks)
	toReturn.WriteByte(v.Status)
	if v.IsNote() {
		toReturn.WriteByte(v.Note)
		toReturn.WriteByte(v.Velocity)
	} else {
		toReturn.Write(v.Opaque)
	}
	return toReturn.Bytes()
}

// Reads count bytes into the event's opaque payload, returning an error if
// the stream ends early.
func (v *Event) readOpaque(r io.Reader, count int) error {
	if count == 0 {
		return nil
	}
	data := make([]byte, count)
	if _, e := io.ReadFull(r, data); e != nil {
		return fmt.Errorf("%w: in event payload", ErrTruncatedData)
	}
	v.Opaque = append(v.Opaque, data...)
	return nil
}

// Parses and returns the event at the start of r, along with the total
// number of bytes consumed from the stream (delta-time bytes + status byte +
// payload bytes). The count is how enclosing track parsers account events
// against the track's declared length. Returns io.EOF unwrapped if and only
// if the stream was already exhausted.
func parseEvent(r io.Reader) (*Event, int, error) {
	delta, count, e := ReadVariableInt(r)
	if e != nil {
		return nil, count, e
	}
	status, e := readByte(r)
	if e != nil {
		return nil, count, fmt.Errorf("%w: before status byte",
			ErrTruncatedData)
	}
	count++
	toReturn := &Event{
		DeltaTicks: delta,
		Status:     status,
	}
	switch status >> 4 {
	case 0xf:
		// System and meta events carry a self-describing length. A meta
		// event (status 0xff) has an extra type byte before it. The raw
		// length bytes go into the opaque payload untouched, so even a
		// non-minimal length encoding survives a round trip.
		if status == 0xff {
			metaType, e := readByte(r)
			if e != nil {
				return nil, count, fmt.Errorf("%w: at meta-event type",
					ErrTruncatedData)
			}
			count++
			toReturn.Opaque = append(toReturn.Opaque, metaType)
		}
		length := uint32(0)
		for {
			b, e := readByte(r)
			if e != nil {
				return nil, count, fmt.Errorf("%w: in event length prefix",
					ErrTruncatedData)
			}
			count++
			toReturn.Opaque = append(toReturn.Opaque, b)
			length = (length << 7) | uint32(b&0x7f)
			if (b & 0x80) == 0 {
				break
			}
		}
		e = toReturn.readOpaque(r, int(length))
		if e != nil {
			return nil, count, e
		}
		count += int(length)
	case 0xa, 0xb, 0xe:
		// Aftertouch, control change, and pitch bend: 2 payload bytes.
		e = toReturn.readOpaque(r, 2)
		if e != nil {
			return nil, count, e
		}
		count += 2
	case 0xc, 0xd:
		// Program change and channel pressure: 1 payload byte.
		e = toReturn.readOpaque(r, 1)
		if e != nil {
			return nil, count, e
		}
		count++
	case 0x8, 0x9:
		n, e := readByte(r)
		if e != nil {
			return nil, count, fmt.Errorf("%w: at note number",
				ErrTruncatedData)
		}
		v, e := readByte(r)
		if e != nil {
			return nil, count, fmt.Errorf("%w: at note velocity",
				ErrTruncatedData)
		}
		count += 2
		toReturn.Note = n
		toReturn.Velocity = v
	default:
		// Type nibbles 0x0 through 0x7 mean the status byte was omitted
		// and the file expects the previous event's status to be reused
		// (running status). Supporting that would require the parser to
		// carry state between events, so such files are rejected instead.
		return nil, count, fmt.Errorf("%w: status byte 0x%02x (running "+
			"status is not supported)", ErrMalformedEvent, status)
	}
	return toReturn, count, nil
}
