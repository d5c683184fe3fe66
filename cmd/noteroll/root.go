package main

import (
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/gogpu/noteroll"
	"github.com/gogpu/noteroll/internal/smfload"
)

var (
	configPath string
	midiPath   string
	genNotes   int
	genSeed    uint64
	verbose    bool

	zlog *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "noteroll",
	Short: "Piano-roll note rendering pipeline",
	Long: `noteroll renders the notes of a MIDI file, or of a generated song, through
the note pipeline on the CPU rasterizer and reports frame statistics.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := newZapLogger(verbose)
		if err != nil {
			return err
		}
		zlog = l
		noteroll.SetLogger(slog.New(newZapHandler(l.Core())))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if zlog != nil {
			_ = zlog.Sync()
		}
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	f.StringVarP(&midiPath, "midi", "m", "", "Standard MIDI File to load")
	f.IntVarP(&genNotes, "notes", "n", 50000, "number of generated notes when no MIDI file is given")
	f.Uint64Var(&genSeed, "seed", 1, "seed of the note generator")
	f.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// session is a pipeline with its window context and loaded notes.
type session struct {
	sc       *noteroll.SyncContext
	p        *noteroll.Pipeline
	quarters float64
	notes    int
}

// openSession loads the configuration and the notes and creates the
// pipeline.
func openSession(extra ...noteroll.Option) (*session, error) {
	var cfg noteroll.Config
	if configPath != "" {
		c, err := noteroll.LoadConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		cfg = c
	}

	notes, tpq, err := loadNotes()
	if err != nil {
		return nil, err
	}

	sc := noteroll.NewSyncContext(cfg.NegotiateConfig(), cfg.SyncOptions()...)
	opts := append(cfg.Options(), noteroll.WithTicksPerQuarter(tpq))
	p, err := noteroll.New(sc, append(opts, extra...)...)
	if err != nil {
		return nil, multierr.Append(err, sc.Close())
	}
	if err := p.AddNotes(notes); err != nil {
		return nil, multierr.Combine(err, p.Close(), sc.Close())
	}

	var end int64
	for _, n := range notes {
		end = max(end, n.End())
	}
	zlog.Info("session ready",
		zap.Int("notes", len(notes)),
		zap.Int("ticks_per_quarter", tpq),
		zap.String("backend", sc.Backend().Name()),
		zap.NamedError("fallback", sc.FallbackReason()))
	return &session{sc: sc, p: p, quarters: float64(end) / float64(tpq), notes: len(notes)}, nil
}

func (s *session) Close() error {
	return multierr.Combine(s.p.Close(), s.sc.Close())
}

func loadNotes() ([]noteroll.Note, int, error) {
	if midiPath != "" {
		f, err := smfload.LoadFile(midiPath)
		if err != nil {
			return nil, 0, err
		}
		if f.Unmatched > 0 {
			zlog.Warn("unmatched note-off events", zap.Int("count", f.Unmatched))
		}
		return f.Notes, f.TicksPerQuarter, nil
	}
	if genNotes <= 0 {
		return nil, 0, fmt.Errorf("--notes must be positive, got %d", genNotes)
	}
	return generate(genNotes, genSeed), noteroll.DefaultTicksPerQuarter, nil
}

// generate returns a song-like spread of notes: about eight notes start
// per quarter, clustered around a wandering pitch center.
func generate(n int, seed uint64) []noteroll.Note {
	const tpq = noteroll.DefaultTicksPerQuarter
	rng := rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))
	notes := make([]noteroll.Note, n)
	center := 60.0
	for i := range notes {
		if i%64 == 0 {
			center = min(max(center+rng.NormFloat64()*6, 30), 96)
		}
		pitch := int(center + rng.NormFloat64()*7)
		notes[i] = noteroll.Note{
			ID:       noteroll.NoteID(i + 1),
			Start:    int64(i/8)*tpq + rng.Int64N(tpq),
			Duration: int64(1+rng.IntN(8)) * tpq / 4,
			Pitch:    min(max(pitch, 0), noteroll.MaxPitch),
			Velocity: 40 + rng.IntN(88),
			Channel:  rng.IntN(4),
			Track:    rng.IntN(4),
		}
	}
	return notes
}
