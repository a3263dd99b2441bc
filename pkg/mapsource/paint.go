package mapsource

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/paulmach/orb"
	"golang.org/x/image/vector"

	"github.com/beetlebugorg/chartview/pkg/viewport"
)

// BorderColor is used to outline map coverage when DrawOptions.DrawBorder
// is set.
var BorderColor = color.RGBA{0xcc, 0x22, 0x22, 0xff}

// projector maps (lat, lon) to canvas pixels for one draw call.
type projector func(lat, lon float64) (x, y float64)

// placement fixes where a source's pixel space lands on the canvas for one
// viewport: canvas = pixel - origin.
type placement struct {
	origin viewport.XY
	w, h   int
}

func place(vp viewport.Viewport, cx, cy float64) placement {
	return placement{
		origin: viewport.XY{
			X: cx - float64(vp.CanvasWidth/2+vp.LookAhead.X),
			Y: cy - float64(vp.CanvasHeight/2+vp.LookAhead.Y),
		},
		w: vp.CanvasWidth,
		h: vp.CanvasHeight,
	}
}

// samples returns canvas points checked for full coverage: corners, edge
// midpoints and the center.
func (p placement) samples() []viewport.XY {
	w, h := float64(p.w), float64(p.h)
	var pts []viewport.XY
	for _, fy := range []float64{0, 0.5, 1} {
		for _, fx := range []float64{0, 0.5, 1} {
			pts = append(pts, viewport.XY{X: p.origin.X + fx*w, Y: p.origin.Y + fy*h})
		}
	}
	return pts
}

// coversCanvas reports whether every sample point of the canvas maps to a
// covered position.
func coversCanvas(p placement, toGeo func(x, y float64) (float64, float64), covers func(lat, lon float64) bool) bool {
	for _, s := range p.samples() {
		lat, lon := toGeo(s.X, s.Y)
		if !covers(lat, lon) {
			return false
		}
	}
	return true
}

// canvasBound returns the geographic bounding box of the canvas.
func canvasBound(p placement, toGeo func(x, y float64) (float64, float64)) orb.Bound {
	var b orb.Bound
	for i, s := range p.samples() {
		lat, lon := toGeo(s.X, s.Y)
		pt := orb.Point{lon, lat}
		if i == 0 {
			b = pt.Bound()
			continue
		}
		b = b.Extend(pt)
	}
	return b
}

// ringPath traces ring onto z through proj.
func ringPath(z *vector.Rasterizer, ring orb.Ring, proj projector) {
	for i, pt := range ring {
		x, y := proj(pt.Lat(), pt.Lon())
		if i == 0 {
			z.MoveTo(float32(x), float32(y))
			continue
		}
		z.LineTo(float32(x), float32(y))
	}
	z.ClosePath()
}

// regionMask rasterises ring into an alpha mask the size of the canvas.
func regionMask(ring orb.Ring, proj projector, w, h int) *image.Alpha {
	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	if len(ring) < 3 {
		draw.Draw(mask, mask.Bounds(), image.Opaque, image.Point{}, draw.Src)
		return mask
	}
	z := vector.NewRasterizer(w, h)
	ringPath(z, ring, proj)
	z.DrawOp = draw.Src
	z.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})
	return mask
}

// strokeLine adds a segment of the given width to z as a filled quad.
func strokeLine(z *vector.Rasterizer, x0, y0, x1, y1, width float64) {
	dx, dy := x1-x0, y1-y0
	l := math.Hypot(dx, dy)
	if l == 0 {
		return
	}
	nx, ny := -dy/l*width/2, dx/l*width/2
	z.MoveTo(float32(x0+nx), float32(y0+ny))
	z.LineTo(float32(x1+nx), float32(y1+ny))
	z.LineTo(float32(x1-nx), float32(y1-ny))
	z.LineTo(float32(x0-nx), float32(y0-ny))
	z.ClosePath()
}

// strokeRing outlines ring on dst.
func strokeRing(dst draw.Image, ring orb.Ring, proj projector, c color.Color, width float64) {
	if len(ring) < 2 {
		return
	}
	b := dst.Bounds()
	z := vector.NewRasterizer(b.Dx(), b.Dy())
	for i := 1; i < len(ring); i++ {
		x0, y0 := proj(ring[i-1].Lat(), ring[i-1].Lon())
		x1, y1 := proj(ring[i].Lat(), ring[i].Lon())
		strokeLine(z, x0, y0, x1, y1, width)
	}
	z.Draw(dst, b, image.NewUniform(c), image.Point{})
}

// outline returns the coverage outline of a definition: its region, or its
// bounding box.
func outline(def *Definition) orb.Ring {
	if len(def.Region) >= 3 {
		return def.Region
	}
	b := def.Bounds
	return orb.Ring{
		{b.Min.Lon(), b.Max.Lat()},
		{b.Max.Lon(), b.Max.Lat()},
		{b.Max.Lon(), b.Min.Lat()},
		{b.Min.Lon(), b.Min.Lat()},
		{b.Min.Lon(), b.Max.Lat()},
	}
}

// decorate applies border decoration after a source has drawn.
func decorate(dst draw.Image, def *Definition, proj projector, opts DrawOptions) {
	if opts.DrawBorder {
		strokeRing(dst, outline(def), proj, BorderColor, 2)
	}
}

func imageBytes(r image.Rectangle) int64 {
	return int64(r.Dx()) * int64(r.Dy()) * 4
}
