package main

import (
	"errors"
	"fmt"
	"image/png"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/gogpu/noteroll"
	"github.com/gogpu/noteroll/render"
)

var (
	renderOut    string
	renderAt     float64
	renderSelect []uint
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render one frame to a PNG file",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		s, err := openSession(noteroll.WithOptimizeEvery(0))
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, s.Close()) }()

		if len(renderSelect) > 0 {
			ids := make([]noteroll.NoteID, len(renderSelect))
			for i, id := range renderSelect {
				ids[i] = noteroll.NoteID(id)
			}
			s.p.Post(noteroll.SelectionUpdated{IDs: ids})
		}

		vp := viewFlags.viewport(renderAt)
		res := s.p.RenderFrame(vp, 0, nil)
		if !res.Presented {
			return fmt.Errorf("frame not presented: %w", res.Err)
		}
		return writeFrame(s.sc, renderOut, res)
	},
}

func init() {
	f := renderCmd.Flags()
	f.StringVarP(&renderOut, "out", "o", "noteroll.png", "output PNG file")
	f.Float64Var(&renderAt, "at", 0, "time at the left edge in quarter notes")
	f.UintSliceVar(&renderSelect, "select", nil, "note ids drawn as selected")
	viewFlags.register(renderCmd)
	rootCmd.AddCommand(renderCmd)
}

func writeFrame(sc *noteroll.SyncContext, path string, res noteroll.FrameResult) (err error) {
	rb, ok := sc.Backend().(*render.RasterBackend)
	if !ok {
		return errors.New("frame is on the GPU; only rasterized frames can be saved")
	}
	img := rb.Image()
	if img == nil {
		return errors.New("no frame presented")
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, f.Close()) }()
	if err := png.Encode(f, img); err != nil {
		return err
	}
	zlog.Info("frame written",
		zap.String("path", path),
		zap.Stringer("strategy", res.Strategy),
		zap.Int("visible", res.Visible),
		zap.Int("primitives", res.Primitives),
		zap.Int("batches", res.Batches),
		zap.Duration("duration", res.Duration))
	return nil
}
