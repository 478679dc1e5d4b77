package theme

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"strconv"
	"strings"
)

// GridConstants describe the column grid of a theme
type GridConstants struct {
	Columns          int     `json:"columns"`
	ColumnWidth      int     `json:"column_width"`
	GutterWidth      int     `json:"gutter_width"`
	FluidColumnWidth float64 `json:"fluid_column_width"`
	FluidGutterWidth float64 `json:"fluid_gutter_width"`
}

// ComputeGrid derives the fluid percentages of a grid
func ComputeGrid(columns, columnWidth, gutterWidth int) (GridConstants, error) {
	if columns <= 0 {
		return GridConstants{}, fmt.Errorf("grid needs at least one column, got %d", columns)
	}
	if columnWidth <= 0 || gutterWidth < 0 {
		return GridConstants{}, fmt.Errorf("invalid grid widths %d/%d", columnWidth, gutterWidth)
	}

	g := GridConstants{Columns: columns, ColumnWidth: columnWidth, GutterWidth: gutterWidth}
	total := float64(g.Width())
	g.FluidColumnWidth = float64(columnWidth) * 100 / total
	g.FluidGutterWidth = float64(gutterWidth) * 100 / total
	return g, nil
}

// Width returns the total grid width in pixels
func (g GridConstants) Width() int {
	return g.Columns*g.ColumnWidth + g.GutterWidth*(g.Columns-1)
}

func percent(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64) + "%"
}

// Less renders the grid constants file
func (g GridConstants) Less() string {
	var b strings.Builder
	fmt.Fprintf(&b, "@gridColumnWidth:\t\t%dpx;\n", g.ColumnWidth)
	fmt.Fprintf(&b, "@gridGutterWidth:\t\t%dpx;\n\n", g.GutterWidth)
	fmt.Fprintf(&b, "@fluidGridColumnWidth:\t\t%s;\n", percent(g.FluidColumnWidth))
	fmt.Fprintf(&b, "@fluidGridGutterWidth:\t\t%s;", percent(g.FluidGutterWidth))
	return b.String()
}

var (
	gridColumnColor = color.NRGBA{R: 0xe8, G: 0x4c, B: 0x3d, A: 0x33}
	gridGutterColor = color.NRGBA{}
)

// GridHeight is the height of the grid background image
const GridHeight = 20

// GridImage draws the grid background: one tinted band per column with
// transparent gutters.
func GridImage(g GridConstants) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, g.Width(), GridHeight))
	step := g.ColumnWidth + g.GutterWidth
	for x := 0; x < g.Width(); x++ {
		c := gridGutterColor
		if x%step < g.ColumnWidth {
			c = gridColumnColor
		}
		for y := 0; y < GridHeight; y++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// WriteGridPNG encodes the grid background as PNG
func WriteGridPNG(w io.Writer, g GridConstants) error {
	return png.Encode(w, GridImage(g))
}
