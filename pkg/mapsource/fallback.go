package mapsource

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/paulmach/orb"
	"golang.org/x/image/vector"

	"github.com/beetlebugorg/chartview/pkg/viewport"
)

// FallbackID is the ID of the built-in world map.
const FallbackID = "fallback"

var (
	fallbackBackground = color.RGBA{0xe8, 0xee, 0xf4, 0xff}
	fallbackGrid       = color.RGBA{0xa0, 0xb0, 0xc0, 0xff}
	fallbackAxis       = color.RGBA{0x60, 0x70, 0x80, 0xff}
)

// Fallback is a plain equirectangular world. It always covers, always
// activates and draws a graticule, so there is a current map even when no
// real map is available.
type Fallback struct {
	state
}

// NewFallback returns the world fallback map with a native scale of scale
// metres per pixel at the equator, or 20 km when scale is not positive.
func NewFallback(scale float64) *Fallback {
	if scale <= 0 {
		scale = 20000
	}
	def := &Definition{
		ID:       FallbackID,
		Title:    "World",
		Kind:     KindFallback,
		Bounds:   orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}},
		Scale:    scale,
		Priority: math.MinInt32,
	}
	f := &Fallback{}
	f.init(def, scale, 1.0/8, 1<<12, false)
	return f
}

func (f *Fallback) width(z float64) float64 {
	return earthCircumference / (f.native / z)
}

func (f *Fallback) GeoToPixel(lat, lon float64) (float64, float64) {
	w := f.width(f.Zoom())
	return (lon + 180) / 360 * w, (90 - lat) / 180 * w / 2
}

func (f *Fallback) PixelToGeo(x, y float64) (float64, float64) {
	w := f.width(f.Zoom())
	return 90 - y/(w/2)*180, x/w*360 - 180
}

func (f *Fallback) Covers(lat, lon float64) bool { return true }

func (f *Fallback) Activate(_ context.Context, scale float64, _ bool) error {
	f.mu.Lock()
	f.active = true
	f.mu.Unlock()
	f.ZoomTo(scale)
	return nil
}

func (f *Fallback) Deactivate() {
	f.mu.Lock()
	f.active = false
	f.mu.Unlock()
}

// graticuleStep picks a grid spacing in degrees that leaves at least minPx
// pixels between lines.
func graticuleStep(pxPerDegree, minPx float64) float64 {
	for _, step := range []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30} {
		if step*pxPerDegree >= minPx {
			return step
		}
	}
	return 30
}

func (f *Fallback) Draw(vp viewport.Viewport, _ DrawOptions, dst draw.Image) (bool, error) {
	z := f.Zoom()
	w := f.width(z)
	cx := (vp.Center.Lon() + 180) / 360 * w
	cy := (90 - vp.Center.Lat()) / 180 * w / 2
	p := place(vp, cx, cy)

	b := image.Rect(0, 0, p.w, p.h)
	draw.Draw(dst, b, image.NewUniform(fallbackBackground), image.Point{}, draw.Src)

	pxPerDeg := w / 360
	step := graticuleStep(pxPerDeg, 80)
	lon0 := (p.origin.X/pxPerDeg - 180)
	lon1 := ((p.origin.X+float64(p.w))/pxPerDeg - 180)
	lat0 := 90 - (p.origin.Y+float64(p.h))/pxPerDeg
	lat1 := 90 - p.origin.Y/pxPerDeg

	grid := vector.NewRasterizer(p.w, p.h)
	axis := vector.NewRasterizer(p.w, p.h)
	for lon := math.Ceil(math.Max(lon0, -180)/step) * step; lon <= math.Min(lon1, 180); lon += step {
		x := (lon+180)*pxPerDeg - p.origin.X
		r := grid
		if math.Abs(lon) < step/2 {
			r = axis
		}
		strokeLine(r, x, math.Max(0, -p.origin.Y), x, math.Min(float64(p.h), w/2-p.origin.Y), 1)
	}
	for lat := math.Ceil(math.Max(lat0, -90)/step) * step; lat <= math.Min(lat1, 90); lat += step {
		y := (90-lat)*pxPerDeg - p.origin.Y
		r := grid
		if math.Abs(lat) < step/2 {
			r = axis
		}
		strokeLine(r, math.Max(0, -p.origin.X), y, math.Min(float64(p.w), w-p.origin.X), y, 1)
	}
	grid.Draw(dst, b, image.NewUniform(fallbackGrid), image.Point{})
	axis.Draw(dst, b, image.NewUniform(fallbackAxis), image.Point{})
	return true, nil
}
