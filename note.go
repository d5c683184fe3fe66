package noteroll

import (
	"errors"
	"fmt"

	"github.com/gogpu/noteroll/spatial"
)

// Errors returned by note operations.
var (
	// ErrInvalidNote is returned for notes with out-of-range fields.
	ErrInvalidNote = errors.New("noteroll: invalid note")

	// ErrUnknownNote is returned when updating a note that was never added.
	ErrUnknownNote = errors.New("noteroll: unknown note")

	// ErrClosed is returned by operations on a closed pipeline.
	ErrClosed = errors.New("noteroll: pipeline closed")
)

// Note value limits.
const (
	MaxPitch    = 127
	MaxVelocity = 127
	MaxChannel  = 15

	// PitchRows is the number of pitch rows in the roll.
	PitchRows = MaxPitch + 1

	// DefaultTicksPerQuarter is the tick resolution used when none is set.
	DefaultTicksPerQuarter = 480
)

// NoteID identifies a note. It stays the same across edits.
type NoteID uint64

// Note is one timed, pitched event. Start and Duration are in ticks.
type Note struct {
	ID       NoteID
	Start    int64
	Duration int64
	Pitch    int
	Velocity int
	Channel  int
	Track    int
}

// End returns the tick after the last tick of the note.
func (n Note) End() int64 { return n.Start + n.Duration }

// Validate reports whether every field is in range.
func (n Note) Validate() error {
	switch {
	case n.Duration <= 0:
		return fmt.Errorf("note %d: duration %d: %w", n.ID, n.Duration, ErrInvalidNote)
	case n.Start < 0:
		return fmt.Errorf("note %d: start %d: %w", n.ID, n.Start, ErrInvalidNote)
	case n.Pitch < 0 || n.Pitch > MaxPitch:
		return fmt.Errorf("note %d: pitch %d: %w", n.ID, n.Pitch, ErrInvalidNote)
	case n.Velocity < 0 || n.Velocity > MaxVelocity:
		return fmt.Errorf("note %d: velocity %d: %w", n.ID, n.Velocity, ErrInvalidNote)
	case n.Channel < 0 || n.Channel > MaxChannel:
		return fmt.Errorf("note %d: channel %d: %w", n.ID, n.Channel, ErrInvalidNote)
	case n.Track < 0:
		return fmt.Errorf("note %d: track %d: %w", n.ID, n.Track, ErrInvalidNote)
	}
	return nil
}

// Bounds returns the note's extent in time×pitch space, with time in
// quarter notes: [start, end) × [pitch, pitch+1).
func (n Note) Bounds(ticksPerQuarter int) spatial.Box {
	tpq := float64(ticksPerQuarter)
	return spatial.Box{
		MinX: float64(n.Start) / tpq,
		MinY: float64(n.Pitch),
		MaxX: float64(n.End()) / tpq,
		MaxY: float64(n.Pitch + 1),
	}
}

var pitchClasses = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// pitchNames holds "C-1" through "G9".
var pitchNames = func() (names [PitchRows]string) {
	for p := range names {
		names[p] = fmt.Sprintf("%s%d", pitchClasses[p%12], p/12-1)
	}
	return names
}()

// PitchName returns the scientific pitch name, with middle C (60) as "C4".
func PitchName(pitch int) string {
	if pitch < 0 || pitch > MaxPitch {
		return ""
	}
	return pitchNames[pitch]
}
