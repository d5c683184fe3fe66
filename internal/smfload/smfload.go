// Package smfload reads Standard MIDI Files into notes.
//
// Note-on and note-off events are paired per track, channel and key in
// first-in first-out order. A note-on with velocity zero ends a note.
// Notes still sounding at the end of their track end there.
package smfload

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/gogpu/noteroll"
)

// ErrTimeFormat is returned for files timed in SMPTE frames.
var ErrTimeFormat = errors.New("smfload: unsupported time format")

// File is the result of loading a MIDI file.
type File struct {
	// Notes are ordered by start, then pitch, then track. IDs are 1-based
	// positions in that order.
	Notes []noteroll.Note

	// TicksPerQuarter is the resolution of Start and Duration.
	TicksPerQuarter int

	// Tracks is the number of tracks in the file.
	Tracks int

	// Unmatched counts note-off events without a sounding note.
	Unmatched int
}

// Quarters returns the end of the last note in quarter notes.
func (f *File) Quarters() float64 {
	var end int64
	for _, n := range f.Notes {
		end = max(end, n.End())
	}
	return float64(end) / float64(f.TicksPerQuarter)
}

// Load reads a MIDI file from r.
func Load(r io.Reader) (*File, error) {
	s, err := smf.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("smfload: %w", err)
	}
	return convert(s)
}

// LoadFile reads the MIDI file at path.
func LoadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

type voice struct {
	channel, key uint8
}

type sounding struct {
	start    int64
	velocity uint8
}

func convert(s *smf.SMF) (*File, error) {
	mt, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok || mt == 0 {
		return nil, fmt.Errorf("%w: %v", ErrTimeFormat, s.TimeFormat)
	}
	out := &File{TicksPerQuarter: int(mt), Tracks: len(s.Tracks)}

	for ti, track := range s.Tracks {
		open := make(map[voice][]sounding)
		var tick int64
		end := func(v voice, at int64) bool {
			q := open[v]
			if len(q) == 0 {
				return false
			}
			on := q[0]
			open[v] = q[1:]
			out.Notes = append(out.Notes, noteroll.Note{
				Start:    on.start,
				Duration: max(at-on.start, 1),
				Pitch:    int(v.key),
				Velocity: int(on.velocity),
				Channel:  int(v.channel),
				Track:    ti,
			})
			return true
		}

		for _, ev := range track {
			tick += int64(ev.Delta)
			msg := midi.Message(ev.Message)
			var ch, key, vel uint8
			switch {
			case msg.GetNoteStart(&ch, &key, &vel):
				v := voice{ch, key}
				open[v] = append(open[v], sounding{start: tick, velocity: vel})
			case msg.GetNoteEnd(&ch, &key):
				if !end(voice{ch, key}, tick) {
					out.Unmatched++
				}
			}
		}
		for v, q := range open {
			for range q {
				end(v, tick)
			}
		}
	}

	slices.SortFunc(out.Notes, func(a, b noteroll.Note) int {
		return cmp.Or(
			cmp.Compare(a.Start, b.Start),
			cmp.Compare(a.Pitch, b.Pitch),
			cmp.Compare(a.Track, b.Track),
			cmp.Compare(a.Channel, b.Channel),
			cmp.Compare(a.Duration, b.Duration),
			cmp.Compare(a.Velocity, b.Velocity),
		)
	})
	for i := range out.Notes {
		out.Notes[i].ID = noteroll.NoteID(i + 1)
	}
	return out, nil
}
