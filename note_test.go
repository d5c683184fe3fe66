package noteroll

import (
	"errors"
	"testing"

	"github.com/gogpu/noteroll/spatial"
)

func TestNote_Validate(t *testing.T) {
	ok := Note{ID: 1, Start: 0, Duration: 1, Pitch: 0, Velocity: 0, Channel: 0}
	tests := []struct {
		name   string
		modify func(*Note)
		valid  bool
	}{
		{"minimal", func(*Note) {}, true},
		{"upper limits", func(n *Note) { n.Pitch, n.Velocity, n.Channel = MaxPitch, MaxVelocity, MaxChannel }, true},
		{"zero duration", func(n *Note) { n.Duration = 0 }, false},
		{"negative duration", func(n *Note) { n.Duration = -5 }, false},
		{"negative start", func(n *Note) { n.Start = -1 }, false},
		{"pitch 128", func(n *Note) { n.Pitch = 128 }, false},
		{"negative pitch", func(n *Note) { n.Pitch = -1 }, false},
		{"velocity 128", func(n *Note) { n.Velocity = 128 }, false},
		{"channel 16", func(n *Note) { n.Channel = 16 }, false},
		{"negative track", func(n *Note) { n.Track = -1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := ok
			tt.modify(&n)
			err := n.Validate()
			if tt.valid && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidNote) {
				t.Errorf("Validate() = %v, want ErrInvalidNote", err)
			}
		})
	}
}

func TestNote_Bounds(t *testing.T) {
	n := Note{Start: 240, Duration: 960, Pitch: 60}
	want := spatial.Box{MinX: 0.5, MinY: 60, MaxX: 2.5, MaxY: 61}
	if got := n.Bounds(480); got != want {
		t.Errorf("Bounds(480) = %v, want %v", got, want)
	}
	if n.End() != 1200 {
		t.Errorf("End() = %d, want 1200", n.End())
	}
}

func TestPitchName(t *testing.T) {
	tests := []struct {
		pitch int
		want  string
	}{
		{0, "C-1"},
		{21, "A0"},
		{60, "C4"},
		{61, "C#4"},
		{127, "G9"},
	}
	for _, tt := range tests {
		if got := PitchName(tt.pitch); got != tt.want {
			t.Errorf("PitchName(%d) = %q, want %q", tt.pitch, got, tt.want)
		}
	}
}
