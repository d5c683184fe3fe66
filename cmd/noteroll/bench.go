package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/noteroll"
	"github.com/gogpu/noteroll/perf"
)

var (
	benchFrames int
	viewFlags   viewportFlags
)

// viewportFlags are the viewport settings shared by every command.
type viewportFlags struct {
	width, height float64
	zoomX, zoomY  float64
	pitch         int
}

func (f *viewportFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.Float64Var(&f.width, "width", 1280, "viewport width in pixels")
	fl.Float64Var(&f.height, "height", 720, "viewport height in pixels")
	fl.Float64Var(&f.zoomX, "zoom-x", 60, "pixels per quarter note")
	fl.Float64Var(&f.zoomY, "zoom-y", 10, "pixels per pitch row")
	fl.IntVar(&f.pitch, "pitch", 84, "pitch at the top of the viewport")
}

// viewport returns the viewport scrolled to time t in quarter notes.
func (f *viewportFlags) viewport(t float64) noteroll.Viewport {
	return noteroll.Viewport{
		ScrollX: t * f.zoomX,
		ScrollY: float64(noteroll.MaxPitch-f.pitch) * f.zoomY,
		ZoomX:   f.zoomX,
		ZoomY:   f.zoomY,
		Width:   f.width,
		Height:  f.height,
	}
}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Render frames while scrolling through the song",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()
		return runBench(cmd.OutOrStdout(), s, benchFrames)
	},
}

func init() {
	benchCmd.Flags().IntVar(&benchFrames, "frames", 600, "number of frames")
	viewFlags.register(benchCmd)
	rootCmd.AddCommand(benchCmd)
}

func runBench(w io.Writer, s *session, frames int) error {
	visibleQuarters := viewFlags.width / viewFlags.zoomX
	span := max(s.quarters-visibleQuarters, 0)

	var presented, skipped int
	var worst time.Duration
	strategies := map[noteroll.Strategy]int{}
	start := time.Now()
	for i := range frames {
		t := 0.0
		if frames > 1 {
			t = span * float64(i) / float64(frames-1)
		}
		res := s.p.RenderFrame(viewFlags.viewport(t), 0, nil)
		switch {
		case res.Presented:
			presented++
			strategies[res.Strategy]++
		case res.Skipped:
			skipped++
		}
		worst = max(worst, res.Duration)
	}
	elapsed := time.Since(start)

	rep := s.p.PerformanceReport()
	pr := message.NewPrinter(language.English)
	rows := [][2]string{
		{"notes", pr.Sprintf("%d", s.notes)},
		{"frames", pr.Sprintf("%d presented, %d skipped", presented, skipped)},
		{"wall time", elapsed.Round(time.Millisecond).String()},
		{"worst frame", worst.Round(time.Microsecond).String()},
		{"avg fps", pr.Sprintf("%.1f", rep.AvgFPS)},
		{"p95 frame", pr.Sprintf("%.2f ms", rep.P95FrameTimeMs)},
		{"primitives", pr.Sprintf("%d", rep.Primitives)},
		{"batches", pr.Sprintf("%d", rep.Batches)},
		{"gpu memory", pr.Sprintf("%d bytes", rep.GPUMemoryEstimate)},
		{"backend", rep.Backend},
		{"strategies", formatStrategies(strategies)},
		{"style hit rate", pr.Sprintf("%.1f%%", rep.StyleHitRate*100)},
		{"index rebuilds", pr.Sprintf("%d", rep.IndexRebuilds)},
	}
	_, err := fmt.Fprintln(w, reportBox(rows, rep.Suggestions))
	return err
}

func formatStrategies(m map[noteroll.Strategy]int) string {
	var parts []string
	for _, st := range []noteroll.Strategy{noteroll.StrategyDetailed, noteroll.StrategyBatched, noteroll.StrategyDensity} {
		if n := m[st]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", st, n))
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}

var boxStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("#32CD32")).
	Padding(0, 1)

var (
	keyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888")).Width(16)
	valStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#fff"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA500"))
)

// reportBox lays out key/value rows and suggestions in a bordered box.
func reportBox(rows [][2]string, sugs []perf.Suggestion) string {
	lines := make([]string, 0, len(rows)+len(sugs))
	for _, r := range rows {
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, keyStyle.Render(r[0]), valStyle.Render(r[1])))
	}
	for _, s := range sugs {
		lines = append(lines, warnStyle.Render("! "+s.String()))
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
