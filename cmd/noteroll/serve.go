package main

import (
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gogpu/noteroll"
	"github.com/gogpu/noteroll/render"
)

var (
	serveAddr string
	serveFPS  float64
)

// maxViewportSize bounds the width and height accepted by POST /viewport.
// Larger requests are clamped.
const maxViewportSize = 8192

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Render continuously and serve reports over HTTP",
	Long: `serve renders frames in a loop and exposes:

  GET  /report                   performance report (JSON)
  GET  /notes?t0=&t1=&p0=&p1=    ids of notes in a time and pitch range
  GET  /frame.png                last presented frame
  POST /viewport                 set the viewport (JSON)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return serve(ctx, s)
	},
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveAddr, "addr", ":8080", "listen address")
	f.Float64Var(&serveFPS, "fps", 60, "frames rendered per second")
	viewFlags.register(serveCmd)
	rootCmd.AddCommand(serveCmd)
}

// server holds the state shared between the render loop and handlers.
// Only the render loop calls RenderFrame.
type server struct {
	s  *session
	vp atomic.Pointer[noteroll.Viewport]
}

func serve(ctx context.Context, s *session) error {
	srv := &server{s: s}
	vp := viewFlags.viewport(0)
	srv.vp.Store(&vp)

	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc("/report", srv.handleReport).Methods(http.MethodGet)
	router.HandleFunc("/notes", srv.handleNotes).Methods(http.MethodGet)
	router.HandleFunc("/frame.png", srv.handleFrame).Methods(http.MethodGet)
	router.HandleFunc("/viewport", srv.handleViewport).Methods(http.MethodPost)

	hs := &http.Server{
		Addr:              serveAddr,
		Handler:           cors.Default().Handler(router),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go srv.renderLoop(ctx)
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hs.Shutdown(shutdown)
	}()

	zlog.Info("serving", zap.String("addr", serveAddr))
	if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (srv *server) renderLoop(ctx context.Context) {
	interval := time.Duration(float64(time.Second) / max(serveFPS, 1))
	tick := time.NewTicker(interval)
	defer tick.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tick.C:
			res := srv.s.p.RenderFrame(*srv.vp.Load(), now.Sub(last), nil)
			last = now
			if res.Err != nil {
				zlog.Warn("frame failed", zap.Error(res.Err))
			}
		}
	}
}

func (srv *server) handleReport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, srv.s.p.PerformanceReport())
}

func (srv *server) handleNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	t0, err1 := strconv.ParseFloat(q.Get("t0"), 64)
	t1, err2 := strconv.ParseFloat(q.Get("t1"), 64)
	p0, err3 := strconv.Atoi(q.Get("p0"))
	p1, err4 := strconv.Atoi(q.Get("p1"))
	if err := errors.Join(err1, err2, err3, err4); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	ids := srv.s.p.QueryVisible(t0, t1, p0, p1)
	if ids == nil {
		ids = []noteroll.NoteID{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(ids), "ids": ids})
}

func (srv *server) handleFrame(w http.ResponseWriter, r *http.Request) {
	rb, ok := srv.s.sc.Backend().(*render.RasterBackend)
	if !ok {
		http.Error(w, "frames are on the GPU", http.StatusNotImplemented)
		return
	}
	img := rb.Image()
	if img == nil {
		http.Error(w, "no frame yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, img); err != nil {
		zlog.Warn("frame encode failed", zap.Error(err))
	}
}

func (srv *server) handleViewport(w http.ResponseWriter, r *http.Request) {
	var vp noteroll.Viewport
	if err := json.NewDecoder(r.Body).Decode(&vp); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if !vp.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": noteroll.ErrInvalidViewport.Error()})
		return
	}
	vp.Width = min(vp.Width, maxViewportSize)
	vp.Height = min(vp.Height, maxViewportSize)
	srv.vp.Store(&vp)
	srv.s.p.Refresh()
	writeJSON(w, http.StatusOK, vp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Warn("response encode failed", zap.Error(err))
	}
}
