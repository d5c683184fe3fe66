package noteroll

import "slices"

// DefaultEventBuffer is the capacity of the edit event channel.
const DefaultEventBuffer = 256

// EditEvent is a change in the editing gesture state posted by the host.
// It is one of DragUpdated, ResizeUpdated, SelectionUpdated,
// CreationUpdated or GestureEnded.
type EditEvent interface {
	editEvent()
}

// DragUpdated previews the notes in IDs moved by the given offsets.
type DragUpdated struct {
	IDs        []NoteID
	DeltaTicks int64
	DeltaPitch int
}

// ResizeUpdated previews the notes in IDs with their durations changed by
// DeltaTicks. Durations never drop below one tick.
type ResizeUpdated struct {
	IDs        []NoteID
	DeltaTicks int64
}

// SelectionUpdated replaces the selection.
type SelectionUpdated struct {
	IDs []NoteID
}

// CreationUpdated previews a note being drawn with the pointer.
type CreationUpdated struct {
	Start    int64
	Duration int64
	Pitch    int
}

// GestureEnded clears every preview. The host applies the final edit
// through UpdateNote or AddNotes.
type GestureEnded struct{}

func (DragUpdated) editEvent()      {}
func (ResizeUpdated) editEvent()    {}
func (SelectionUpdated) editEvent() {}
func (CreationUpdated) editEvent()  {}
func (GestureEnded) editEvent()     {}

// editState is what the dispatcher builds from events. It is owned by the
// render goroutine.
type editState struct {
	selection map[NoteID]struct{}
	drag      *DragUpdated
	resize    *ResizeUpdated
	creation  *CreationUpdated

	// gesture is set while a drag, resize or creation preview is shown.
	gesture bool
	// ended is set when a gesture finished during the current drain.
	ended bool
}

func newEditState() editState {
	return editState{selection: make(map[NoteID]struct{})}
}

// apply folds one event into the state.
func (s *editState) apply(ev EditEvent) {
	switch ev := ev.(type) {
	case DragUpdated:
		ev.IDs = slices.Clone(ev.IDs)
		s.drag = &ev
		s.gesture = true
	case ResizeUpdated:
		ev.IDs = slices.Clone(ev.IDs)
		s.resize = &ev
		s.gesture = true
	case CreationUpdated:
		s.creation = &ev
		s.gesture = true
	case SelectionUpdated:
		clear(s.selection)
		for _, id := range ev.IDs {
			s.selection[id] = struct{}{}
		}
	case GestureEnded:
		s.drag, s.resize, s.creation = nil, nil, nil
		if s.gesture {
			s.ended = true
		}
		s.gesture = false
	}
}

func (s *editState) selected(id NoteID) bool {
	_, ok := s.selection[id]
	return ok
}

func (s *editState) hasPreview() bool {
	return s.drag != nil || s.resize != nil || s.creation != nil
}

// drain applies every queued event without blocking and returns how many
// were applied.
func (s *editState) drain(ch <-chan EditEvent) int {
	n := 0
	for {
		select {
		case ev := <-ch:
			if ev != nil {
				s.apply(ev)
			}
			n++
		default:
			return n
		}
	}
}

// previewNote returns the note as it would look after the drag or resize
// in progress, and whether it is being previewed.
func (s *editState) previewNote(n Note) (Note, ColorID, bool) {
	if s.drag != nil && slices.Contains(s.drag.IDs, n.ID) {
		n.Start = max(n.Start+s.drag.DeltaTicks, 0)
		n.Pitch = min(max(n.Pitch+s.drag.DeltaPitch, 0), MaxPitch)
		return n, ColorDragPreview, true
	}
	if s.resize != nil && slices.Contains(s.resize.IDs, n.ID) {
		n.Duration = max(n.Duration+s.resize.DeltaTicks, 1)
		return n, ColorResizePreview, true
	}
	return n, 0, false
}
