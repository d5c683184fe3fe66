package noteroll

import (
	"fmt"
	"slices"

	"github.com/gogpu/noteroll/render"
)

// ColorID names one palette entry.
type ColorID uint8

// Palette entries.
const (
	ColorNoteFill ColorID = iota
	ColorNoteBorder
	ColorSelectedFill
	ColorSelectedBorder
	ColorShadow
	ColorLabel
	ColorDragPreview
	ColorResizePreview
	ColorCreationPreview
	ColorDensity
	ColorBackground

	colorIDCount
)

// Palette holds every color the pipeline draws with.
type Palette struct {
	NoteFill        render.Color
	NoteBorder      render.Color
	SelectedFill    render.Color
	SelectedBorder  render.Color
	Shadow          render.Color
	Label           render.Color
	DragPreview     render.Color
	ResizePreview   render.Color
	CreationPreview render.Color
	Density         render.Color
	Background      render.Color
}

// DefaultPalette returns the green editor theme.
func DefaultPalette() Palette {
	return Palette{
		NoteFill:        render.MustHex("#32CD32"),
		NoteBorder:      render.MustHex("#006400"),
		SelectedFill:    render.MustHex("#FFD700"),
		SelectedBorder:  render.MustHex("#FFA500"),
		Shadow:          render.MustHex("#40000000"),
		Label:           render.MustHex("#000000"),
		DragPreview:     render.MustHex("#4DFFA500"),
		ResizePreview:   render.MustHex("#4D1E90FF"),
		CreationPreview: render.MustHex("#8032CD32"),
		Density:         render.MustHex("#32CD32"),
		Background:      render.MustHex("#1E1E1E"),
	}
}

type colorEntry struct {
	name string
	ptr  func(*Palette) *render.Color
}

// colorTable maps every ColorID to its name and field. The array length
// makes a missing entry a compile error.
var colorTable = [colorIDCount]colorEntry{
	ColorNoteFill:        {"note-fill", func(p *Palette) *render.Color { return &p.NoteFill }},
	ColorNoteBorder:      {"note-border", func(p *Palette) *render.Color { return &p.NoteBorder }},
	ColorSelectedFill:    {"selected-fill", func(p *Palette) *render.Color { return &p.SelectedFill }},
	ColorSelectedBorder:  {"selected-border", func(p *Palette) *render.Color { return &p.SelectedBorder }},
	ColorShadow:          {"shadow", func(p *Palette) *render.Color { return &p.Shadow }},
	ColorLabel:           {"label", func(p *Palette) *render.Color { return &p.Label }},
	ColorDragPreview:     {"drag-preview", func(p *Palette) *render.Color { return &p.DragPreview }},
	ColorResizePreview:   {"resize-preview", func(p *Palette) *render.Color { return &p.ResizePreview }},
	ColorCreationPreview: {"creation-preview", func(p *Palette) *render.Color { return &p.CreationPreview }},
	ColorDensity:         {"density", func(p *Palette) *render.Color { return &p.Density }},
	ColorBackground:      {"background", func(p *Palette) *render.Color { return &p.Background }},
}

var colorByName = func() map[string]ColorID {
	m := make(map[string]ColorID, colorIDCount)
	for id, e := range colorTable {
		m[e.name] = ColorID(id)
	}
	return m
}()

// String returns the entry name used in configuration files.
func (id ColorID) String() string {
	if id < colorIDCount {
		return colorTable[id].name
	}
	return fmt.Sprintf("ColorID(%d)", id)
}

// ParseColorID looks up an entry by name.
func ParseColorID(name string) (ColorID, error) {
	id, ok := colorByName[name]
	if !ok {
		return 0, fmt.Errorf("noteroll: unknown palette color %q", name)
	}
	return id, nil
}

// ColorIDs returns every entry in declaration order.
func ColorIDs() []ColorID {
	ids := make([]ColorID, colorIDCount)
	for i := range ids {
		ids[i] = ColorID(i)
	}
	return ids
}

// ColorNames returns every entry name, sorted.
func ColorNames() []string {
	names := make([]string, 0, colorIDCount)
	for _, e := range colorTable {
		names = append(names, e.name)
	}
	slices.Sort(names)
	return names
}

// Get returns the color for id. Unknown ids return the zero color.
func (p *Palette) Get(id ColorID) render.Color {
	if id >= colorIDCount {
		return render.Color{}
	}
	return *colorTable[id].ptr(p)
}

// Set replaces the color for id. It reports false for unknown ids.
func (p *Palette) Set(id ColorID, c render.Color) bool {
	if id >= colorIDCount {
		return false
	}
	*colorTable[id].ptr(p) = c
	return true
}

// SetNamed parses a hex color and stores it under name.
func (p *Palette) SetNamed(name, hex string) error {
	id, err := ParseColorID(name)
	if err != nil {
		return err
	}
	c, err := render.ParseHex(hex)
	if err != nil {
		return fmt.Errorf("noteroll: palette %s: %w", name, err)
	}
	p.Set(id, c)
	return nil
}

// Map returns the palette as name → "#AARRGGBB"-style hex.
func (p *Palette) Map() map[string]string {
	m := make(map[string]string, colorIDCount)
	for _, e := range colorTable {
		m[e.name] = e.ptr(p).Hex()
	}
	return m
}
