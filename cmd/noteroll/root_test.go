package main

import (
	"strings"
	"testing"

	"github.com/gogpu/noteroll"
	"github.com/gogpu/noteroll/perf"
)

func TestGenerate(t *testing.T) {
	a := generate(500, 7)
	b := generate(500, 7)
	if len(a) != 500 {
		t.Fatalf("len = %d, want 500", len(a))
	}
	seen := make(map[noteroll.NoteID]bool, len(a))
	for i, n := range a {
		if n != b[i] {
			t.Fatalf("note %d differs between runs with the same seed", i)
		}
		if err := n.Validate(); err != nil {
			t.Fatalf("note %d invalid: %v", i, err)
		}
		if seen[n.ID] {
			t.Fatalf("duplicate id %d", n.ID)
		}
		seen[n.ID] = true
	}
	if c := generate(500, 8); c[0] == a[0] && c[1] == a[1] && c[2] == a[2] {
		t.Error("different seeds produced the same notes")
	}
}

func TestViewportFlags(t *testing.T) {
	f := viewportFlags{width: 800, height: 600, zoomX: 40, zoomY: 10, pitch: 100}
	vp := f.viewport(2.5)
	if vp.ScrollX != 100 {
		t.Errorf("ScrollX = %v, want 100", vp.ScrollX)
	}
	if got := vp.PitchAt(0); got != 100 {
		t.Errorf("top pitch = %d, want 100", got)
	}
	if !vp.Valid() {
		t.Error("viewport should be valid")
	}
}

func TestFormatStrategies(t *testing.T) {
	if got := formatStrategies(nil); got != "-" {
		t.Errorf("empty = %q, want -", got)
	}
	got := formatStrategies(map[noteroll.Strategy]int{
		noteroll.StrategyDensity:  2,
		noteroll.StrategyDetailed: 5,
	})
	if !strings.HasPrefix(got, noteroll.StrategyDetailed.String()+" 5") {
		t.Errorf("formatStrategies() = %q, want detailed first", got)
	}
	if !strings.Contains(got, noteroll.StrategyDensity.String()+" 2") {
		t.Errorf("formatStrategies() = %q, missing density", got)
	}
}

func TestReportBox(t *testing.T) {
	out := reportBox([][2]string{{"frames", "12"}}, []perf.Suggestion{{
		Kind:     perf.ReduceSecondaryEffects,
		Severity: perf.SeverityWarning,
		Detail:   "disable shadows",
	}})
	for _, want := range []string{"frames", "12", "disable shadows"} {
		if !strings.Contains(out, want) {
			t.Errorf("reportBox() missing %q:\n%s", want, out)
		}
	}
}
