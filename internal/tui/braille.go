package tui

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Each terminal cell shows a 2x4 block of frame pixels as a braille glyph.
const (
	dotsX = 2
	dotsY = 4
)

// dotBit returns the braille pattern bit of the dot at (rx, ry) in a cell.
func dotBit(rx, ry int) uint8 {
	if rx == 0 {
		switch ry {
		case 0:
			return 0x01
		case 1:
			return 0x02
		case 2:
			return 0x04
		case 3:
			return 0x40
		}
	} else {
		switch ry {
		case 0:
			return 0x08
		case 1:
			return 0x10
		case 2:
			return 0x20
		case 3:
			return 0x80
		}
	}
	return 0
}

type cell struct {
	mask   uint8
	fg, bg color.RGBA
}

func (c cell) glyph() rune {
	if c.mask == 0 {
		return ' '
	}
	return rune(0x2800 + int(c.mask))
}

// contrast is the luma a dot must lie below its cell mean to be raised.
const contrast = 12

func luma(c color.RGBA) int {
	return (299*int(c.R) + 587*int(c.G) + 114*int(c.B)) / 1000
}

// quantize keeps the top four bits of each channel so that neighbouring
// cells share styles.
func quantize(c color.RGBA) color.RGBA {
	q := func(v uint8) uint8 { return v&0xf0 | v>>4 }
	return color.RGBA{q(c.R), q(c.G), q(c.B), 0xff}
}

func hex(c color.RGBA) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B))
}

type sum struct{ r, g, b, n int }

func (s *sum) add(c color.RGBA) { s.r += int(c.R); s.g += int(c.G); s.b += int(c.B); s.n++ }

func (s sum) mean() color.RGBA {
	if s.n == 0 {
		return color.RGBA{A: 0xff}
	}
	return color.RGBA{uint8(s.r / s.n), uint8(s.g / s.n), uint8(s.b / s.n), 0xff}
}

// cellAt raises the dots that are darker than the rest of the cell. The
// foreground is their average color and the background that of the others.
func cellAt(img *image.RGBA, cx, cy int) cell {
	var px [dotsX * dotsY]color.RGBA
	total := 0
	x0, y0 := img.Rect.Min.X+cx*dotsX, img.Rect.Min.Y+cy*dotsY
	for ry := 0; ry < dotsY; ry++ {
		for rx := 0; rx < dotsX; rx++ {
			c := img.RGBAAt(x0+rx, y0+ry)
			px[ry*dotsX+rx] = c
			total += luma(c)
		}
	}
	mean := total / len(px)

	var c cell
	var fg, bg sum
	for ry := 0; ry < dotsY; ry++ {
		for rx := 0; rx < dotsX; rx++ {
			p := px[ry*dotsX+rx]
			if luma(p) < mean-contrast {
				c.mask |= dotBit(rx, ry)
				fg.add(p)
			} else {
				bg.add(p)
			}
		}
	}
	c.fg, c.bg = quantize(fg.mean()), quantize(bg.mean())
	return c
}

// Rasterize converts a frame into terminal lines of colored braille cells.
// The frame is cut to whole cells. Neighbouring cells that share colors are
// styled as one run.
func Rasterize(img *image.RGBA) []string {
	cols, rows := img.Rect.Dx()/dotsX, img.Rect.Dy()/dotsY
	out := make([]string, rows)
	var sb strings.Builder
	run := make([]rune, 0, cols)
	var fg, bg color.RGBA
	hasFg := false
	flush := func() {
		if len(run) == 0 {
			return
		}
		st := lipgloss.NewStyle().Background(hex(bg))
		if hasFg {
			st = st.Foreground(hex(fg))
		}
		sb.WriteString(st.Render(string(run)))
		run = run[:0]
	}
	for cy := 0; cy < rows; cy++ {
		sb.Reset()
		for cx := 0; cx < cols; cx++ {
			c := cellAt(img, cx, cy)
			if len(run) > 0 && (c.bg != bg || (c.mask != 0 && hasFg && c.fg != fg)) {
				flush()
			}
			if len(run) == 0 {
				bg, hasFg = c.bg, false
			}
			if c.mask != 0 && !hasFg {
				fg, hasFg = c.fg, true
			}
			run = append(run, c.glyph())
		}
		flush()
		out[cy] = sb.String()
	}
	return out
}
