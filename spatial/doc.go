// Package spatial provides a uniform grid index over time×pitch space.
//
// A [Grid] maps stable uint64 identifiers to axis-aligned boxes and answers
// rectangle queries in time proportional to the number of cells touched plus
// the number of candidates found. It is the culling structure behind the note
// pipeline: notes are inserted as [start, start+duration) × [pitch, pitch+1)
// boxes and the visible viewport is queried every frame.
//
// # Intersection
//
// Boxes are treated as half-open. Two boxes intersect only when they overlap
// with positive area on both axes, so notes that merely touch (one ending
// exactly where the next starts) do not intersect. A query box with zero
// width or height returns nothing.
//
// # Cell sizing
//
// The cell size is configured per axis. [Grid.Optimize] recomputes it from
// the density of the indexed items and rebuilds the grid only when either
// axis would change by more than ten percent. Two heuristics are available
// through [WithSizing]: [SizingDensity] (default) follows the mean item
// aspect ratio, [SizingSquare] uses one edge length for both axes.
//
// # Thread safety
//
// Grid is safe for concurrent use. Mutations hold an exclusive lock and
// queries hold a shared lock, so a query never observes a partially applied
// insert, remove or rebuild.
package spatial
