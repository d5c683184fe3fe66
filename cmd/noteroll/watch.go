package main

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/noteroll"
)

var watchFPS float64

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Render interactively and show live frame statistics",
	Long: `watch renders frames while scrolling through the song and shows the
performance report in the terminal.

  left/right  scroll one bar
  +/-         zoom in/out
  space       pause auto-scroll
  q           quit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		m := newWatchModel(s, viewFlags, watchFPS)
		_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
		return err
	},
}

func init() {
	watchCmd.Flags().Float64Var(&watchFPS, "fps", 60, "frames rendered per second")
	viewFlags.register(watchCmd)
	rootCmd.AddCommand(watchCmd)
}

type frameMsg time.Time

type watchModel struct {
	s        *session
	view     viewportFlags
	interval time.Duration

	at     float64
	paused bool
	last   time.Time
	res    noteroll.FrameResult
	frames int
}

func newWatchModel(s *session, view viewportFlags, fps float64) *watchModel {
	return &watchModel{
		s:        s,
		view:     view,
		interval: time.Duration(float64(time.Second) / max(fps, 1)),
	}
}

func (m *watchModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return frameMsg(t) })
}

func (m *watchModel) Init() tea.Cmd { return m.tick() }

func (m *watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "left":
			m.scroll(-4)
		case "right":
			m.scroll(4)
		case "+", "=":
			m.zoom(1.25)
		case "-":
			m.zoom(0.8)
		case " ":
			m.paused = !m.paused
		}
		return m, nil
	case frameMsg:
		now := time.Time(msg)
		var delta time.Duration
		if !m.last.IsZero() {
			delta = now.Sub(m.last)
		}
		m.last = now
		if !m.paused {
			m.scroll(delta.Seconds() * 2)
		}
		m.res = m.s.p.RenderFrame(m.view.viewport(m.at), delta, nil)
		m.frames++
		return m, m.tick()
	}
	return m, nil
}

// scroll moves the left edge by d quarter notes and wraps at the end of
// the song.
func (m *watchModel) scroll(d float64) {
	span := max(m.s.quarters-m.view.width/m.view.zoomX, 0)
	m.at += d
	switch {
	case span == 0:
		m.at = 0
	case m.at > span:
		m.at = 0
	case m.at < 0:
		m.at = span
	}
	m.s.p.Refresh()
}

func (m *watchModel) zoom(f float64) {
	m.view.zoomX = min(max(m.view.zoomX*f, 4), 960)
	m.s.p.Refresh()
}

func (m *watchModel) View() string {
	rep := m.s.p.PerformanceReport()
	pr := message.NewPrinter(language.English)
	state := "scrolling"
	if m.paused {
		state = "paused"
	}
	rows := [][2]string{
		{"position", fmt.Sprintf("%.1f / %.1f quarters (%s)", m.at, m.s.quarters, state)},
		{"zoom", fmt.Sprintf("%.0f px/quarter", m.view.zoomX)},
		{"frames", pr.Sprintf("%d", m.frames)},
		{"strategy", m.res.Strategy.String()},
		{"visible", pr.Sprintf("%d", m.res.Visible)},
		{"primitives", pr.Sprintf("%d", m.res.Primitives)},
		{"batches", pr.Sprintf("%d", m.res.Batches)},
		{"frame time", m.res.Duration.Round(time.Microsecond).String()},
		{"avg fps", pr.Sprintf("%.1f", rep.AvgFPS)},
		{"p95 frame", pr.Sprintf("%.2f ms", rep.P95FrameTimeMs)},
		{"backend", rep.Backend},
	}
	if m.res.Err != nil {
		rows = append(rows, [2]string{"error", m.res.Err.Error()})
	}
	return reportBox(rows, rep.Suggestions) + "\n" + keyStyle.Render("q quit  ←/→ scroll  +/- zoom  space pause") + "\n"
}
