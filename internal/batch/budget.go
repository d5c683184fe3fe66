package batch

import "sync/atomic"

// Estimated GPU memory per pending primitive and per pending batch.
const (
	PerPrimitiveBytes = 100
	PerBatchBytes     = 200

	// DefaultCeiling is the default budget: 256 MiB.
	DefaultCeiling = 256 << 20
)

// BudgetStats holds budget counters.
type BudgetStats struct {
	Usage         int64
	Peak          int64
	Ceiling       int64
	ForcedFlushes uint64
}

// Budget estimates GPU memory held by pending batches and reports when a
// reservation would pass the ceiling.
//
// Reserve and Release are called from the render goroutine. Usage, Peak and
// Stats may be read from any goroutine.
type Budget struct {
	ceiling int64
	usage   atomic.Int64
	peak    atomic.Int64
	forced  atomic.Uint64
}

// NewBudget creates a budget. A non-positive ceiling uses DefaultCeiling.
func NewBudget(ceiling int64) *Budget {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	return &Budget{ceiling: ceiling}
}

// Cost returns the estimate for the given numbers of primitives and batches.
func Cost(primitives, batches int) int64 {
	return int64(primitives)*PerPrimitiveBytes + int64(batches)*PerBatchBytes
}

// Fits reports whether reserving the given amounts stays within the ceiling.
func (b *Budget) Fits(primitives, batches int) bool {
	return b.usage.Load()+Cost(primitives, batches) <= b.ceiling
}

// Reserve adds the estimate for primitives and batches.
func (b *Budget) Reserve(primitives, batches int) {
	u := b.usage.Add(Cost(primitives, batches))
	for {
		p := b.peak.Load()
		if u <= p || b.peak.CompareAndSwap(p, u) {
			return
		}
	}
}

// Release subtracts the estimate for primitives and batches.
func (b *Budget) Release(primitives, batches int) {
	if b.usage.Add(-Cost(primitives, batches)) < 0 {
		b.usage.Store(0)
	}
}

// Reset drops all reservations.
func (b *Budget) Reset() { b.usage.Store(0) }

// Exceeded reports whether usage is above the ceiling.
func (b *Budget) Exceeded() bool { return b.usage.Load() > b.ceiling }

// NoteForcedFlush counts a flush triggered by the budget.
func (b *Budget) NoteForcedFlush() { b.forced.Add(1) }

// Usage returns the current estimate in bytes.
func (b *Budget) Usage() int64 { return b.usage.Load() }

// Peak returns the highest estimate seen.
func (b *Budget) Peak() int64 { return b.peak.Load() }

// Ceiling returns the configured ceiling in bytes.
func (b *Budget) Ceiling() int64 { return b.ceiling }

// Stats returns a snapshot of the counters.
func (b *Budget) Stats() BudgetStats {
	return BudgetStats{
		Usage:         b.usage.Load(),
		Peak:          b.peak.Load(),
		Ceiling:       b.ceiling,
		ForcedFlushes: b.forced.Load(),
	}
}
