package noteroll

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gogpu/noteroll/spatial"
)

// noteStore holds the notes and their spatial index. The notes map and the
// grid are changed together under mu; the version increases with every
// change so derived snapshots can tell they are out of date.
type noteStore struct {
	mu      sync.RWMutex
	notes   map[NoteID]Note
	grid    *spatial.Grid
	tpq     int
	version atomic.Uint64
}

func newNoteStore(tpq int, opts ...spatial.Option) *noteStore {
	return &noteStore{
		notes: make(map[NoteID]Note),
		grid:  spatial.NewGrid(opts...),
		tpq:   tpq,
	}
}

// add validates every note before changing anything, then inserts or
// replaces them all.
func (s *noteStore) add(notes []Note) error {
	if len(notes) == 0 {
		return nil
	}
	items := make([]spatial.Item, len(notes))
	for i, n := range notes {
		if err := n.Validate(); err != nil {
			return err
		}
		items[i] = spatial.Item{ID: uint64(n.ID), Box: n.Bounds(s.tpq)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.grid.InsertMany(items); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidNote, err)
	}
	for _, n := range notes {
		s.notes[n.ID] = n
	}
	s.version.Add(1)
	return nil
}

func (s *noteStore) remove(ids []NoteID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := s.notes[id]; !ok {
			continue
		}
		delete(s.notes, id)
		s.grid.Remove(uint64(id))
		n++
	}
	if n > 0 {
		s.version.Add(1)
	}
	return n
}

// replace stores n over an existing note with the same id.
func (s *noteStore) replace(n Note) error {
	if err := n.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notes[n.ID]; !ok {
		return fmt.Errorf("note %d: %w", n.ID, ErrUnknownNote)
	}
	return s.storeLocked(n)
}

// update changes the timing and pitch of an existing note and keeps its
// other fields as they are at the time of the write.
func (s *noteStore) update(id NoteID, start, duration int64, pitch int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[id]
	if !ok {
		return fmt.Errorf("note %d: %w", id, ErrUnknownNote)
	}
	n.Start, n.Duration, n.Pitch = start, duration, pitch
	if err := n.Validate(); err != nil {
		return err
	}
	return s.storeLocked(n)
}

// storeLocked reindexes and stores n. s.mu must be held for writing.
func (s *noteStore) storeLocked(n Note) error {
	if err := s.grid.Update(uint64(n.ID), n.Bounds(s.tpq)); err != nil {
		return fmt.Errorf("note %d: %w", n.ID, err)
	}
	s.notes[n.ID] = n
	s.version.Add(1)
	return nil
}

func (s *noteStore) get(id NoteID) (Note, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notes[id]
	return n, ok
}

func (s *noteStore) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.notes)
}

// collect appends every note intersecting b to dst and returns dst with
// the store version it reflects.
func (s *noteStore) collect(dst []Note, b spatial.Box) ([]Note, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.grid.QueryFunc(b, func(id uint64, _ spatial.Box) bool {
		dst = append(dst, s.notes[NoteID(id)])
		return true
	})
	return dst, s.version.Load()
}

// ids returns the ids intersecting b in ascending order.
func (s *noteStore) ids(b spatial.Box) []NoteID {
	var out []NoteID
	s.grid.QueryFunc(b, func(id uint64, _ spatial.Box) bool {
		out = append(out, NoteID(id))
		return true
	})
	slices.Sort(out)
	return out
}

// count returns how many notes intersect b.
func (s *noteStore) count(b spatial.Box) int {
	n := 0
	s.grid.QueryFunc(b, func(uint64, spatial.Box) bool {
		n++
		return true
	})
	return n
}

func (s *noteStore) optimize() bool { return s.grid.Optimize() }

func (s *noteStore) stats() spatial.Stats { return s.grid.Stats() }
