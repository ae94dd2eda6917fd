package midiedit

// This file contains the chunk-level code: parsing and writing the MThd
// header and MTrk track chunks of an SMF file.

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// This corresponds to the division field of the MThd chunk. Files using the
// SMPTE timing mode (top bit set) are rejected at parse time, so a
// TimeDivision obtained from this library always holds a tick count.
type TimeDivision uint16

// Returns the number of ticks per quarter note.
func (d TimeDivision) TicksPerQuarterNote() uint16 {
	return uint16(d) & 0x7fff
}

func (d TimeDivision) String() string {
	return fmt.Sprintf("%d ticks per quarter note", d.TicksPerQuarterNote())
}

// This holds the content of a single MIDI track chunk: the events in the
// order they appear in the file. The order is meaningful, since each event's
// delta-time is relative to the event before it; editing code may mutate,
// insert, or remove events, and the declared chunk length is recomputed from
// the live event list whenever the track is written out.
type Track struct {
	Events []*Event
}

// Writes the track to the given output stream: the MTrk chunk id, the
// 4-byte big-endian length of the serialized events, then the events
// themselves.
func (t *Track) WriteToFile(file io.Writer) error {
	// The chunk size needs to go in the header, so we'll just dump the
	// chunk's data into memory first.
	chunkContent := &bytes.Buffer{}
	for _, event := range t.Events {
		chunkContent.Write(event.SMFData())
	}
	chunkType := [4]byte{'M', 'T', 'r', 'k'}
	e := binary.Write(file, binary.BigEndian, chunkType)
	if e != nil {
		return fmt.Errorf("Failed writing chunk type: %s", e)
	}
	chunkSize := uint32(chunkContent.Len())
	e = binary.Write(file, binary.BigEndian, &chunkSize)
	if e != nil {
		return fmt.Errorf("Failed writing chunk size: %s", e)
	}
	_, e = file.Write(chunkContent.Bytes())
	if e != nil {
		return fmt.Errorf("Failed writing chunk content: %s", e)
	}
	return nil
}

// Parses and returns a track chunk, assuming the given reader is at the
// start of one. Events are parsed until their consumed byte counts add up to
// exactly the chunk's declared length; an event straddling the end of the
// chunk makes the whole track malformed.
func parseTrack(file io.Reader) (*Track, error) {
	chunkType := make([]byte, 4)
	_, e := io.ReadFull(file, chunkType)
	if e != nil {
		return nil, fmt.Errorf("%w: at track chunk type", ErrTruncatedData)
	}
	if string(chunkType) != "MTrk" {
		return nil, fmt.Errorf("%w: bad chunk type %q", ErrMalformedTrack,
			string(chunkType))
	}
	var length uint32
	e = binary.Read(file, binary.BigEndian, &length)
	if e != nil {
		return nil, fmt.Errorf("%w: at track chunk length", ErrTruncatedData)
	}
	// We'll just guess for now that the track will require approximately 3
	// bytes per event.
	events := make([]*Event, 0, length/3)
	remaining := int64(length)
	for remaining > 0 {
		event, consumed, e := parseEvent(file)
		if e != nil {
			if e == io.EOF {
				e = ErrTruncatedData
			}
			return nil, fmt.Errorf("Failed reading event %d: %w",
				len(events), e)
		}
		if int64(consumed) > remaining {
			return nil, fmt.Errorf("%w: event %d runs %d byte(s) past the "+
				"declared track length", ErrMalformedTrack, len(events),
				int64(consumed)-remaining)
		}
		remaining -= int64(consumed)
		events = append(events, event)
	}
	return &Track{
		Events: events,
	}, nil
}

// Holds an entire MIDI file: the header fields and one or more tracks.
type File struct {
	// The SMF format type (0, 1, or 2). Preserved as parsed; the library
	// doesn't interpret it.
	Format uint16
	// The file's timing resolution.
	Division TimeDivision
	// The tracks, in file order.
	Tracks []*Track
	// The declared MThd length and any header bytes beyond the mandatory
	// 6, both preserved verbatim so the header round-trips exactly.
	headerLength uint32
	trailing     []byte
}

// Parses the given SMF data, returning an initialized File, or an error if
// the data was invalid. The reader is left positioned after the last track;
// closing it is the caller's job.
func ParseSMFFile(file io.Reader) (*File, error) {
	chunkType := make([]byte, 4)
	_, e := io.ReadFull(file, chunkType)
	if e != nil {
		return nil, fmt.Errorf("%w: at header chunk type", ErrTruncatedData)
	}
	if string(chunkType) != "MThd" {
		return nil, fmt.Errorf("%w: bad chunk type %q", ErrBadFormat,
			string(chunkType))
	}
	var header struct {
		Length     uint32
		Format     uint16
		TrackCount uint16
		Division   uint16
	}
	e = binary.Read(file, binary.BigEndian, &header)
	if e != nil {
		return nil, fmt.Errorf("%w: in header fields", ErrTruncatedData)
	}
	if header.Length < 6 {
		return nil, fmt.Errorf("%w: declared header length %d is below the "+
			"minimum of 6", ErrBadFormat, header.Length)
	}
	if (header.Division & 0x8000) != 0 {
		return nil, fmt.Errorf("%w: division field 0x%04x",
			ErrUnsupportedTiming, header.Division)
	}
	toReturn := &File{
		Format:       header.Format,
		Division:     TimeDivision(header.Division),
		headerLength: header.Length,
	}
	// Headers may declare more than the mandatory 6 bytes; we don't
	// interpret the extra bytes, but keep them for writing back out.
	if header.Length > 6 {
		toReturn.trailing = make([]byte, header.Length-6)
		_, e = io.ReadFull(file, toReturn.trailing)
		if e != nil {
			return nil, fmt.Errorf("%w: in trailing header bytes",
				ErrTruncatedData)
		}
	}
	toReturn.Tracks = make([]*Track, header.TrackCount)
	for i := 0; i < len(toReturn.Tracks); i++ {
		toReturn.Tracks[i], e = parseTrack(file)
		if e != nil {
			return nil, fmt.Errorf("Failed parsing track %d: %w", i, e)
		}
	}
	return toReturn, nil
}

// Writes the file to the given output stream. The declared header length,
// format, division, and trailing header bytes are written back as parsed;
// the track count and each track's chunk length are recomputed from the live
// track and event lists.
func (f *File) WriteToFile(file io.Writer) error {
	if len(f.Tracks) > 0xffff {
		return fmt.Errorf("Have too many tracks (%d), limited to %d",
			len(f.Tracks), 0xffff)
	}
	headerLength := f.headerLength
	// Allow writing a File assembled in memory rather than parsed.
	if headerLength == 0 {
		headerLength = uint32(6 + len(f.trailing))
	}
	header := struct {
		ChunkType  [4]byte
		Length     uint32
		Format     uint16
		TrackCount uint16
		Division   uint16
	}{
		ChunkType:  [4]byte{'M', 'T', 'h', 'd'},
		Length:     headerLength,
		Format:     f.Format,
		TrackCount: uint16(len(f.Tracks)),
		Division:   uint16(f.Division),
	}
	e := binary.Write(file, binary.BigEndian, &header)
	if e != nil {
		return fmt.Errorf("Failed writing SMF header: %s", e)
	}
	if len(f.trailing) > 0 {
		_, e = file.Write(f.trailing)
		if e != nil {
			return fmt.Errorf("Failed writing trailing header bytes: %s", e)
		}
	}
	for i, t := range f.Tracks {
		e = t.WriteToFile(file)
		if e != nil {
			return fmt.Errorf("Failed writing SMF track %d: %s", i, e)
		}
	}
	return nil
}

func (f *File) String() string {
	return fmt.Sprintf("Format %d, with %d track(s), %s", f.Format,
		len(f.Tracks), f.Division)
}
