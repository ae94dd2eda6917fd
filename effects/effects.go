// Package effects implements the editing operations of the midi_tool
// command: pitch shifting, velocity override, chorus duplication, and delay
// insertion. All of them work purely on the parsed event lists; none of them
// touch raw bytes, so any event type the codec doesn't model passes through
// an edited file unchanged.
package effects

import (
	"fmt"

	"github.com/moliveira/midiedit"
)

// Clamps a note or velocity value to the valid MIDI range. The codec
// serializes whatever it's given, so clamping here is what keeps edited
// files playable.
func clamp(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 127 {
		return 127
	}
	return uint8(v)
}

// Inserts event at the given index, shifting later events up.
func insertEvent(events []*midiedit.Event, index int,
	event *midiedit.Event) []*midiedit.Event {
	events = append(events, nil)
	copy(events[index+1:], events[index:])
	events[index] = event
	return events
}

// Transpose shifts every note in the given tracks by halfSteps half steps
// (negative values lower the pitch), clamping the result to 0-127.
func Transpose(tracks []*midiedit.Track, halfSteps int) {
	for _, track := range tracks {
		for _, event := range track.Events {
			if !event.IsNote() {
				continue
			}
			event.Note = clamp(int(event.Note) + halfSteps)
		}
	}
}

// SetVelocity overrides the velocity of every sounding note in the given
// tracks. The velocity must be between 1 and 127. Notes with velocity 0 are
// left alone: a zero-velocity note-on acts as a note-off, and raising it
// would hold the note forever.
func SetVelocity(tracks []*midiedit.Track, velocity uint8) error {
	if (velocity < 1) || (velocity > 127) {
		return fmt.Errorf("velocity must be between 1 and 127, got %d",
			velocity)
	}
	for _, track := range tracks {
		for _, event := range track.Events {
			if !event.IsNote() || (event.Velocity == 0) {
				continue
			}
			event.Velocity = velocity
		}
	}
	return nil
}

// Chorus inserts, for every note in the given tracks, one simultaneous
// (zero-delta) copy per interval, each pitch-shifted by that many half steps
// and clamped to 0-127. For example, intervals of 4 and 7 turn every note
// into a major triad.
func Chorus(tracks []*midiedit.Track, intervals []int) {
	for _, track := range tracks {
		// Walk backwards so the copies we insert are never revisited.
		for idx := len(track.Events) - 1; idx >= 0; idx-- {
			event := track.Events[idx]
			if !event.IsNote() {
				continue
			}
			for _, interval := range intervals {
				copied := event.Clone()
				copied.DeltaTicks = 0
				copied.Note = clamp(int(event.Note) + interval)
				track.Events = insertEvent(track.Events, idx+1, copied)
			}
		}
	}
}

// Delay inserts, for every note in the given tracks, one echoed copy per
// entry of sixteenths, delayed by that many 16th notes. Each copy is placed
// at its correct position in the event sequence: the delay is walked off
// against the delta-times of the following events, and the delta-time of the
// event the copy displaces is reduced so everything after it keeps its
// absolute position. A copy delayed past the end of the track is appended.
func Delay(tracks []*midiedit.Track, ticksPerQuarterNote uint16,
	sixteenths []int) error {
	delays := make([]uint32, 0, len(sixteenths))
	for _, s := range sixteenths {
		if s < 1 {
			return fmt.Errorf("delay must be at least one 16th note, got %d",
				s)
		}
		delays = append(delays, uint32(ticksPerQuarterNote)*uint32(s)/4)
	}
	for _, track := range tracks {
		for idx := len(track.Events) - 1; idx >= 0; idx-- {
			event := track.Events[idx]
			if !event.IsNote() {
				continue
			}
			for _, delay := range delays {
				ticks := delay
				// Find how many events after idx the copy lands, consuming
				// their delta-times along the way. offset ends up as the
				// insertion point relative to idx, and ticks as the copy's
				// own delta-time.
				offset := 0
				displaced := false
				for j := idx + 1; j < len(track.Events); j++ {
					offset = j - idx
					if track.Events[j].DeltaTicks > ticks {
						displaced = true
						break
					}
					ticks -= track.Events[j].DeltaTicks
				}
				if !displaced {
					offset++
				}
				copied := event.Clone()
				copied.DeltaTicks = ticks
				if idx+offset < len(track.Events) {
					track.Events[idx+offset].DeltaTicks -= ticks
				}
				track.Events = insertEvent(track.Events, idx+offset, copied)
			}
		}
	}
	return nil
}
