package noteroll

import (
	"bytes"
	"context"
	"log/slog"
	"runtime"
	"strings"
	"testing"
	"time"
	"weak"

	"github.com/gogpu/noteroll/render"
)

func TestNopHandler(t *testing.T) {
	h := nopHandler{}
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if h.Enabled(context.Background(), level) {
			t.Errorf("nopHandler.Enabled(%v) = true, want false", level)
		}
	}
	if err := h.Handle(context.Background(), slog.Record{}); err != nil {
		t.Errorf("nopHandler.Handle() = %v, want nil", err)
	}
	if _, ok := h.WithAttrs([]slog.Attr{slog.String("k", "v")}).(nopHandler); !ok {
		t.Error("nopHandler.WithAttrs() did not return nopHandler")
	}
	if _, ok := h.WithGroup("g").(nopHandler); !ok {
		t.Error("nopHandler.WithGroup() did not return nopHandler")
	}
}

func TestLoggerDefaultSilent(t *testing.T) {
	l := Logger()
	if l == nil {
		t.Fatal("Logger() returned nil")
	}
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn} {
		if l.Enabled(context.Background(), level) {
			t.Errorf("default logger should not be enabled for %v", level)
		}
	}
}

func TestSetLogger(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	var buf bytes.Buffer
	custom := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	SetLogger(custom)

	if Logger() != custom {
		t.Error("Logger() did not return the custom logger set via SetLogger")
	}
	Logger().Info("test message", "key", "value")
	if !strings.Contains(buf.String(), "test message") {
		t.Errorf("expected log output to contain 'test message', got: %s", buf.String())
	}
}

func TestSetLoggerNilRestoresSilent(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	SetLogger(slog.Default())
	SetLogger(nil)

	l := Logger()
	if l == nil {
		t.Fatal("SetLogger(nil) should set nop logger, not nil")
	}
	if l.Enabled(context.Background(), slog.LevelError) {
		t.Error("SetLogger(nil) should produce a disabled logger")
	}
}

func TestSetLoggerReachesPipelineAtNextFrame(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	p := newTestPipeline(t)

	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	if p.logger() == Logger() {
		t.Fatal("logger applied before the next frame")
	}

	p.RenderFrame(testViewport(), 0, nil)
	if p.logger() != Logger() {
		t.Error("pipeline did not pick up the new logger")
	}
	if !strings.Contains(buf.String(), "noteroll: frame") {
		t.Errorf("frame diagnostics not logged, got: %s", buf.String())
	}
}

func TestWithLoggerIgnoresSetLogger(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	own := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	sc := NewSyncContext(render.NegotiateConfig{})
	t.Cleanup(func() { _ = sc.Close() })
	p, err := New(sc, WithLogger(own))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })

	SetLogger(slog.Default())
	p.RenderFrame(testViewport(), 0, nil)
	if p.logger() != own {
		t.Error("SetLogger replaced a logger given with WithLogger")
	}
}

func tracked(wp weak.Pointer[Pipeline]) bool {
	liveMu.Lock()
	defer liveMu.Unlock()
	_, ok := live[wp]
	return ok
}

func TestCloseUntracks(t *testing.T) {
	p := newTestPipeline(t)
	wp := weak.Make(p)
	if !tracked(wp) {
		t.Fatal("pipeline not tracked after New")
	}
	_ = p.Close()
	if tracked(wp) {
		t.Error("pipeline still tracked after Close")
	}
}

// unclosedPipeline creates a pipeline that is never closed and returns
// only weak handles to it.
func unclosedPipeline(t *testing.T) (weak.Pointer[Pipeline], func() bool) {
	sc := NewSyncContext(render.NegotiateConfig{})
	t.Cleanup(func() { _ = sc.Close() })
	p, err := New(sc, WithWorkers(1))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	workers := p.workers
	return weak.Make(p), func() bool { return workers.TrySubmit(func() {}) }
}

func TestUnclosedPipelineReleased(t *testing.T) {
	wp, accepts := unclosedPipeline(t)
	if !tracked(wp) {
		t.Fatal("pipeline not tracked after New")
	}

	deadline := time.Now().Add(5 * time.Second)
	for tracked(wp) || accepts() {
		if time.Now().After(deadline) {
			t.Fatalf("unclosed pipeline kept: collected = %v, tracked = %v, workers running = %v",
				wp.Value() == nil, tracked(wp), accepts())
		}
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}
	if wp.Value() != nil {
		t.Error("weak pointer still resolves after release")
	}
}
