package noteroll

import "testing"

func TestStyler_ManyTracksNoThrash(t *testing.T) {
	const tracks = 64
	s := newStyler(DefaultPalette(), newTrackTable())

	pass := func() {
		for tr := range tracks {
			for v := range MaxVelocity + 1 {
				s.style(Note{Track: tr, Velocity: v}, false)
				s.style(Note{Track: tr, Velocity: v}, true)
			}
		}
	}

	pass()
	st := s.stats()
	if want := tracks * velocityLevels * 2; st.Len != want || st.Misses != uint64(want) {
		t.Errorf("Len = %d, Misses = %d after first pass, want %d", st.Len, st.Misses, want)
	}
	if st.Evictions != 0 {
		t.Errorf("Evictions = %d, want 0", st.Evictions)
	}

	pass()
	if got := s.stats(); got.Misses != st.Misses || got.Evictions != 0 {
		t.Errorf("second pass Misses = %d, Evictions = %d, want %d, 0", got.Misses, got.Evictions, st.Misses)
	}
}

func TestStyleCacheSize(t *testing.T) {
	if got := styleCacheSize(1); got != styleCacheCapacity {
		t.Errorf("styleCacheSize(1) = %d, want %d", got, styleCacheCapacity)
	}
	if got := styleCacheSize(256); got != 4*256*velocityLevels*2/16 {
		t.Errorf("styleCacheSize(256) = %d", got)
	}
}
