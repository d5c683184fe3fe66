package noteroll

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"weak"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with rendering.
var loggerPtr atomic.Pointer[slog.Logger]

// live holds weak references to pipelines created with the package logger,
// so SetLogger reaches them without keeping unclosed pipelines alive.
var (
	liveMu sync.Mutex
	live   = map[weak.Pointer[Pipeline]]struct{}{}
)

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for noteroll and its sub-packages.
// By default noteroll produces no log output.
//
// Pass nil to restore the silent default. The new logger reaches running
// pipelines, their batchers and backends at the start of their next frame.
//
// Log levels used by noteroll:
//   - [slog.LevelDebug]: per-frame diagnostics (strategy, forced flushes)
//   - [slog.LevelInfo]: lifecycle events (backend selected)
//   - [slog.LevelWarn]: fallbacks and degraded frames
//   - [slog.LevelError]: aborted frames
//
// Example:
//
//	noteroll.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	liveMu.Lock()
	defer liveMu.Unlock()
	for wp := range live {
		if p := wp.Value(); p != nil {
			p.pendingLog.Store(l)
		} else {
			delete(live, wp)
		}
	}
}

// Logger returns the current logger.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

func track(p *Pipeline) {
	wp := weak.Make(p)
	liveMu.Lock()
	live[wp] = struct{}{}
	liveMu.Unlock()
	runtime.AddCleanup(p, forget, wp)
}

func untrack(p *Pipeline) { forget(weak.Make(p)) }

func forget(wp weak.Pointer[Pipeline]) {
	liveMu.Lock()
	delete(live, wp)
	liveMu.Unlock()
}
