// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// Color is a non-premultiplied 8-bit RGBA color.
type Color struct {
	R, G, B, A uint8
}

// RGB returns an opaque color.
func RGB(r, g, b uint8) Color { return Color{R: r, G: g, B: b, A: 255} }

// ParseHex parses "#RRGGBB" or "#AARRGGBB".
func ParseHex(s string) (Color, error) {
	h := strings.TrimPrefix(s, "#")
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("render: invalid color %q: %w", s, err)
	}
	switch len(h) {
	case 6:
		return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
	case 8:
		return Color{A: uint8(v >> 24), R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
	default:
		return Color{}, fmt.Errorf("render: invalid color %q: want #RRGGBB or #AARRGGBB", s)
	}
}

// MustHex is like ParseHex but panics on malformed input.
// Intended for package-level palette constants.
func MustHex(s string) Color {
	c, err := ParseHex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Hex formats c as "#RRGGBB" when opaque and "#AARRGGBB" otherwise.
func (c Color) Hex() string {
	if c.A == 255 {
		return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
	}
	return fmt.Sprintf("#%02X%02X%02X%02X", c.A, c.R, c.G, c.B)
}

// NRGBA converts c to the standard library color type.
func (c Color) NRGBA() color.NRGBA {
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: c.A}
}

// Premultiplied returns the color components scaled by alpha in [0, 1].
func (c Color) Premultiplied() [4]float32 {
	a := float32(c.A) / 255
	return [4]float32{float32(c.R) / 255 * a, float32(c.G) / 255 * a, float32(c.B) / 255 * a, a}
}

// WithAlpha returns c with alpha multiplied by f in [0, 1].
func (c Color) WithAlpha(f float64) Color {
	c.A = uint8(clamp01(f)*float64(c.A) + 0.5)
	return c
}

// Brightness scales RGB by f, clamping to the valid range.
func (c Color) Brightness(f float64) Color {
	scale := func(v uint8) uint8 {
		x := float64(v) * f
		if x > 255 {
			return 255
		}
		if x < 0 {
			return 0
		}
		return uint8(x + 0.5)
	}
	return Color{R: scale(c.R), G: scale(c.G), B: scale(c.B), A: c.A}
}

// Lerp mixes c toward o by t in [0, 1]. Alpha is interpolated too.
func (c Color) Lerp(o Color, t float64) Color {
	t = clamp01(t)
	mix := func(a, b uint8) uint8 { return uint8(float64(a) + (float64(b)-float64(a))*t + 0.5) }
	return Color{R: mix(c.R, o.R), G: mix(c.G, o.G), B: mix(c.B, o.B), A: mix(c.A, o.A)}
}

// Transparent reports whether c has zero alpha.
func (c Color) Transparent() bool { return c.A == 0 }

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// Brush describes a fill. The zero Brush draws nothing.
type Brush struct {
	Color Color
}

// Solid returns a solid color brush.
func Solid(c Color) Brush { return Brush{Color: c} }

// None reports whether the brush draws nothing.
func (b Brush) None() bool { return b.Color.Transparent() }

// Pen describes a stroke. A zero width or transparent pen draws nothing.
type Pen struct {
	Color Color
	Width float64
}

// None reports whether the pen draws nothing.
func (p Pen) None() bool { return p.Width <= 0 || p.Color.Transparent() }

// BlendMode selects how source pixels combine with the destination.
type BlendMode uint8

const (
	// BlendSrcOver is standard alpha compositing.
	BlendSrcOver BlendMode = iota
	// BlendSrc replaces the destination.
	BlendSrc
	// BlendMultiply multiplies source and destination.
	BlendMultiply
	// BlendScreen inverts, multiplies and inverts again.
	BlendScreen
)

// String returns the blend mode name.
func (m BlendMode) String() string {
	switch m {
	case BlendSrcOver:
		return "SrcOver"
	case BlendSrc:
		return "Src"
	case BlendMultiply:
		return "Multiply"
	case BlendScreen:
		return "Screen"
	default:
		return fmt.Sprintf("BlendMode(%d)", m)
	}
}
