package parallel

import "sync/atomic"

// Generation is a monotonically increasing counter that invalidates jobs
// started before the latest Bump.
type Generation struct {
	n atomic.Uint64
}

// Bump invalidates all outstanding tokens and returns the new value.
func (g *Generation) Bump() uint64 { return g.n.Add(1) }

// Current returns the current value.
func (g *Generation) Current() uint64 { return g.n.Load() }

// Token captures the current generation.
func (g *Generation) Token() Token { return Token{g: g, id: g.n.Load()} }

// Token is handed to a job and checked between chunks of work.
type Token struct {
	g  *Generation
	id uint64
}

// ID returns the generation the token was taken in.
func (t Token) ID() uint64 { return t.id }

// Stale reports whether the generation moved on since the token was taken.
// The zero Token is never stale.
func (t Token) Stale() bool { return t.g != nil && t.g.n.Load() != t.id }

// Chunks calls fn for consecutive [lo, hi) ranges of at most size items
// covering [0, n). It stops early and returns false when tok goes stale or
// fn returns false.
func Chunks(tok Token, n, size int, fn func(lo, hi int) bool) bool {
	if size <= 0 {
		size = n
	}
	for lo := 0; lo < n; lo += size {
		if tok.Stale() {
			return false
		}
		if !fn(lo, min(lo+size, n)) {
			return false
		}
	}
	return !tok.Stale()
}
