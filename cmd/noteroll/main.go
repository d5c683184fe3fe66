// Command noteroll loads or generates notes and drives the note rendering
// pipeline from the command line.
//
// Usage:
//
//	noteroll bench  --notes 200000 --frames 600
//	noteroll render --midi song.mid --out frame.png
//	noteroll serve  --addr :8080
//	noteroll watch  --midi song.mid
package main

import (
	"github.com/spf13/cobra"
)

func main() {
	cobra.CheckErr(rootCmd.Execute())
}
