package spatial

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

var (
	// ErrDegenerateBounds is returned for boxes with zero or negative extent
	// on either axis, or with NaN or infinite coordinates.
	ErrDegenerateBounds = errors.New("spatial: degenerate bounds")

	// ErrUnknownID is returned by Update for an identifier that is not indexed.
	ErrUnknownID = errors.New("spatial: unknown id")
)

// Default cell geometry in index units.
const (
	DefaultCellWidth  = 4.0
	DefaultCellHeight = 12.0
	DefaultMinCell    = 0.5
	DefaultMaxCell    = 4096.0

	// DefaultMaxSpan is the largest number of cells one item may occupy.
	// Larger items are kept in an overflow list.
	DefaultMaxSpan = 1024

	// rebuildThreshold is the relative cell size change that triggers a
	// rebuild in Optimize.
	rebuildThreshold = 0.10
)

// Sizing selects the heuristic used by Optimize.
type Sizing int

const (
	// SizingDensity derives per-axis cell sizes from the area per item and
	// the mean item aspect ratio.
	SizingDensity Sizing = iota

	// SizingSquare uses a single edge of twice the square root of the area
	// per item for both axes.
	SizingSquare
)

// String returns the heuristic name.
func (s Sizing) String() string {
	switch s {
	case SizingDensity:
		return "Density"
	case SizingSquare:
		return "Square"
	default:
		return fmt.Sprintf("Sizing(%d)", int(s))
	}
}

// Option configures a Grid.
type Option func(*Grid)

// WithCellSize sets the initial cell size. Non-positive values are ignored.
func WithCellSize(w, h float64) Option {
	return func(g *Grid) {
		if w > 0 {
			g.cellW = w
		}
		if h > 0 {
			g.cellH = h
		}
	}
}

// WithCellBounds sets the clamp range applied by Optimize on both axes.
func WithCellBounds(lo, hi float64) Option {
	return func(g *Grid) {
		if lo > 0 && hi >= lo {
			g.minCell = lo
			g.maxCell = hi
		}
	}
}

// WithSizing selects the Optimize heuristic.
func WithSizing(s Sizing) Option {
	return func(g *Grid) {
		g.sizing = s
	}
}

// WithMaxSpan sets how many cells one item may occupy before it moves to
// the overflow list. Non-positive values are ignored.
func WithMaxSpan(n int) Option {
	return func(g *Grid) {
		if n > 0 {
			g.maxSpan = n
		}
	}
}

// Item is an identifier with its bounds, used for bulk insertion.
type Item struct {
	ID  uint64
	Box Box
}

type cellKey struct {
	x, y int
}

type span struct {
	x0, y0, x1, y1 int
}

type slot struct {
	id  uint64
	box Box
}

// Grid is a uniform grid spatial index.
type Grid struct {
	mu sync.RWMutex

	cellW, cellH     float64
	minCell, maxCell float64
	sizing           Sizing
	maxSpan          int

	cells   map[cellKey][]slot
	entries map[uint64]Item

	// overflow holds items spanning more than maxSpan cells. Every query
	// scans it; Optimize ignores it when sizing cells.
	overflow map[uint64]Box

	// bounds covers every inserted box. It only grows between rebuilds.
	bounds    Box
	hasBounds bool

	rebuilds int
}

// NewGrid creates an empty grid.
func NewGrid(opts ...Option) *Grid {
	g := &Grid{
		cellW:   DefaultCellWidth,
		cellH:   DefaultCellHeight,
		minCell: DefaultMinCell,
		maxCell:  DefaultMaxCell,
		maxSpan:  DefaultMaxSpan,
		cells:    make(map[cellKey][]slot),
		entries:  make(map[uint64]Item),
		overflow: make(map[uint64]Box),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Insert registers id with bounds b, replacing any previous registration.
// Invalid bounds return ErrDegenerateBounds and leave the grid unchanged.
func (g *Grid) Insert(id uint64, b Box) error {
	if !b.Valid() {
		return fmt.Errorf("%w: id %d %v", ErrDegenerateBounds, id, b)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.removeLocked(id)
	g.insertLocked(id, b)
	return nil
}

// InsertMany registers all items under one lock. Every box is validated
// before the first mutation, so either all items are inserted or none.
func (g *Grid) InsertMany(items []Item) error {
	for _, it := range items {
		if !it.Box.Valid() {
			return fmt.Errorf("%w: id %d %v", ErrDegenerateBounds, it.ID, it.Box)
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, it := range items {
		g.removeLocked(it.ID)
		g.insertLocked(it.ID, it.Box)
	}
	return nil
}

// Update moves an existing id to new bounds.
func (g *Grid) Update(id uint64, b Box) error {
	if !b.Valid() {
		return fmt.Errorf("%w: id %d %v", ErrDegenerateBounds, id, b)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.removeLocked(id) {
		return fmt.Errorf("%w: %d", ErrUnknownID, id)
	}
	g.insertLocked(id, b)
	return nil
}

// Remove unregisters id. It reports whether id was present.
func (g *Grid) Remove(id uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.removeLocked(id)
}

// Get returns the bounds registered for id.
func (g *Grid) Get(id uint64) (Box, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	it, ok := g.entries[id]
	return it.Box, ok
}

// Len returns the number of indexed items.
func (g *Grid) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entries)
}

// Bounds returns a box covering all items inserted since the last rebuild.
// The second result is false when the grid has never held an item.
func (g *Grid) Bounds() (Box, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.bounds, g.hasBounds
}

// CellSize returns the current cell width and height.
func (g *Grid) CellSize() (w, h float64) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cellW, g.cellH
}

// Clear removes all items. Cell size is kept.
func (g *Grid) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.cells = make(map[cellKey][]slot)
	g.entries = make(map[uint64]Item)
	g.overflow = make(map[uint64]Box)
	g.bounds = Box{}
	g.hasBounds = false
}

// Query returns the ids of all items intersecting q, each exactly once.
// The order is unspecified.
func (g *Grid) Query(q Box) []uint64 {
	var out []uint64
	g.QueryFunc(q, func(id uint64, _ Box) bool {
		out = append(out, id)
		return true
	})
	return out
}

// QueryFunc calls fn for every item intersecting q, each exactly once,
// until fn returns false. fn runs under the read lock and must not call
// mutating methods on g.
func (g *Grid) QueryFunc(q Box, fn func(id uint64, b Box) bool) {
	if q.Empty() {
		return
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	if len(g.entries) == 0 || !q.Intersects(g.bounds) {
		return
	}

	// Clip to the occupied region so unbounded queries touch a finite
	// number of cells.
	q = Box{
		MinX: math.Max(q.MinX, g.bounds.MinX),
		MinY: math.Max(q.MinY, g.bounds.MinY),
		MaxX: math.Min(q.MaxX, g.bounds.MaxX),
		MaxY: math.Min(q.MaxY, g.bounds.MaxY),
	}
	for id, b := range g.overflow {
		if b.Intersects(q) && !fn(id, b) {
			return
		}
	}
	qs := g.spanOf(q)

	visit := func(k cellKey, slots []slot) bool {
		for _, s := range slots {
			if !s.box.Intersects(q) {
				continue
			}
			// Report from the cell holding the max of the two min corners
			// only, so items spanning several cells are seen once.
			rx := cellIndex(math.Max(s.box.MinX, q.MinX), g.cellW)
			ry := cellIndex(math.Max(s.box.MinY, q.MinY), g.cellH)
			if rx != k.x || ry != k.y {
				continue
			}
			if !fn(s.id, s.box) {
				return false
			}
		}
		return true
	}

	touched := float64(qs.x1-qs.x0+1) * float64(qs.y1-qs.y0+1)
	if touched > float64(len(g.cells)) {
		for k, slots := range g.cells {
			if k.x < qs.x0 || k.x > qs.x1 || k.y < qs.y0 || k.y > qs.y1 {
				continue
			}
			if !visit(k, slots) {
				return
			}
		}
		return
	}

	for y := qs.y0; y <= qs.y1; y++ {
		for x := qs.x0; x <= qs.x1; x++ {
			k := cellKey{x, y}
			slots, ok := g.cells[k]
			if !ok {
				continue
			}
			if !visit(k, slots) {
				return
			}
		}
	}
}

// Optimize recomputes the cell size from item density and rebuilds the
// grid when either axis changes by more than ten percent. It reports
// whether a rebuild happened.
func (g *Grid) Optimize() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := len(g.entries)
	if n == 0 {
		return false
	}

	g.recomputeBoundsLocked()
	w, h := g.suggestLocked()
	if !sizeChanged(g.cellW, w) && !sizeChanged(g.cellH, h) {
		return false
	}

	g.cellW, g.cellH = w, h
	g.rebuildLocked()
	return true
}

// Stats describes grid occupancy.
type Stats struct {
	Items      int
	Cells      int
	Slots      int
	MaxPerCell int
	AvgPerCell float64
	CellWidth  float64
	CellHeight float64
	Rebuilds   int

	// Overflow counts items kept outside the cells.
	Overflow int
}

// Stats returns a snapshot of grid occupancy.
func (g *Grid) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	st := Stats{
		Items:      len(g.entries),
		Cells:      len(g.cells),
		CellWidth:  g.cellW,
		CellHeight: g.cellH,
		Rebuilds:   g.rebuilds,
		Overflow:   len(g.overflow),
	}
	for _, slots := range g.cells {
		st.Slots += len(slots)
		st.MaxPerCell = max(st.MaxPerCell, len(slots))
	}
	if st.Cells > 0 {
		st.AvgPerCell = float64(st.Slots) / float64(st.Cells)
	}
	return st
}

func (g *Grid) insertLocked(id uint64, b Box) {
	g.entries[id] = Item{ID: id, Box: b}
	g.placeLocked(id, b)

	if g.hasBounds {
		g.bounds = g.bounds.Union(b)
	} else {
		g.bounds = b
		g.hasBounds = true
	}
}

func (g *Grid) removeLocked(id uint64) bool {
	it, ok := g.entries[id]
	if !ok {
		return false
	}
	delete(g.entries, id)

	if _, ok := g.overflow[id]; ok {
		delete(g.overflow, id)
		return true
	}
	s := g.spanOf(it.Box)
	for y := s.y0; y <= s.y1; y++ {
		for x := s.x0; x <= s.x1; x++ {
			k := cellKey{x, y}
			slots := g.cells[k]
			for i := range slots {
				if slots[i].id != id {
					continue
				}
				last := len(slots) - 1
				slots[i] = slots[last]
				slots[last] = slot{}
				slots = slots[:last]
				break
			}
			if len(slots) == 0 {
				delete(g.cells, k)
			} else {
				g.cells[k] = slots
			}
		}
	}
	return true
}

// placeLocked adds b to the cells it covers, or to the overflow list when
// it covers more than maxSpan cells.
func (g *Grid) placeLocked(id uint64, b Box) {
	if g.cellCount(b) > float64(g.maxSpan) {
		g.overflow[id] = b
		return
	}
	s := g.spanOf(b)
	for y := s.y0; y <= s.y1; y++ {
		for x := s.x0; x <= s.x1; x++ {
			k := cellKey{x, y}
			g.cells[k] = append(g.cells[k], slot{id: id, box: b})
		}
	}
}

// cellCount returns how many cells b covers, computed in floating point
// so huge boxes cannot overflow.
func (g *Grid) cellCount(b Box) float64 {
	nx := math.Floor(b.MaxX/g.cellW) - math.Floor(b.MinX/g.cellW) + 1
	ny := math.Floor(b.MaxY/g.cellH) - math.Floor(b.MinY/g.cellH) + 1
	return nx * ny
}

func (g *Grid) recomputeBoundsLocked() {
	g.hasBounds = false
	for _, it := range g.entries {
		if g.hasBounds {
			g.bounds = g.bounds.Union(it.Box)
		} else {
			g.bounds = it.Box
			g.hasBounds = true
		}
	}
}

func (g *Grid) rebuildLocked() {
	g.cells = make(map[cellKey][]slot, len(g.cells))
	clear(g.overflow)
	for id, it := range g.entries {
		g.placeLocked(id, it.Box)
	}
	g.rebuilds++
}

// suggestLocked derives a cell size from the items stored in cells.
// Overflow items are left out so one huge item cannot coarsen the grid.
func (g *Grid) suggestLocked() (w, h float64) {
	var area Box
	var n int
	var sumW, sumH float64
	for id, it := range g.entries {
		if _, ok := g.overflow[id]; ok {
			continue
		}
		if n == 0 {
			area = it.Box
		} else {
			area = area.Union(it.Box)
		}
		n++
		sumW += it.Box.Width()
		sumH += it.Box.Height()
	}
	if n == 0 {
		return g.cellW, g.cellH
	}
	areaPerItem := area.Area() / float64(n)
	if !(areaPerItem > 0) {
		return g.cellW, g.cellH
	}

	switch g.sizing {
	case SizingSquare:
		edge := g.clamp(math.Sqrt(areaPerItem) * 2)
		return edge, edge
	default:
		aspect := 1.0
		if sumW > 0 && sumH > 0 {
			aspect = sumW / sumH
		}
		w = g.clamp(math.Sqrt(areaPerItem*aspect) * 2)
		h = g.clamp(math.Sqrt(areaPerItem/aspect) * 2)
		return w, h
	}
}

func (g *Grid) clamp(v float64) float64 {
	return math.Min(math.Max(v, g.minCell), g.maxCell)
}

// spanOf returns the inclusive cell range covering b.
func (g *Grid) spanOf(b Box) span {
	return span{
		x0: cellIndex(b.MinX, g.cellW),
		y0: cellIndex(b.MinY, g.cellH),
		x1: cellIndex(b.MaxX, g.cellW),
		y1: cellIndex(b.MaxY, g.cellH),
	}
}

func cellIndex(v, size float64) int {
	return int(math.Floor(v / size))
}

func sizeChanged(old, next float64) bool {
	if old <= 0 {
		return true
	}
	return math.Abs(next-old)/old > rebuildThreshold
}
