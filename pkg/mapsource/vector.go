package mapsource

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/image/vector"

	"github.com/beetlebugorg/chartview/pkg/viewport"
)

// Style is how one feature category is painted.
type Style struct {
	Fill   color.RGBA
	Stroke color.RGBA
	Width  float64 // stroke width in pixels
	Radius float64 // point marker radius in pixels
}

// Theme is a render theme for vector maps.
type Theme struct {
	Name       string
	Background color.RGBA
	Default    Style
	Categories map[string]Style

	// Enabled lists the categories to draw. A nil map draws everything.
	Enabled map[string]bool
}

// StyleFor returns the style of a category and whether it is enabled.
func (t *Theme) StyleFor(category string) (Style, bool) {
	if t.Enabled != nil && !t.Enabled[category] {
		return Style{}, false
	}
	if s, ok := t.Categories[category]; ok {
		return s, true
	}
	return t.Default, true
}

// DefaultTheme returns the built-in theme used when a vector map names no
// style.
func DefaultTheme() *Theme {
	return &Theme{
		Name:       "default",
		Background: color.RGBA{0xf2, 0xef, 0xe9, 0xff},
		Default: Style{
			Fill:   color.RGBA{0xd0, 0xd0, 0xc8, 0xff},
			Stroke: color.RGBA{0x60, 0x60, 0x60, 0xff},
			Width:  1,
			Radius: 3,
		},
		Categories: map[string]Style{
			"water":    {Fill: color.RGBA{0xaa, 0xd3, 0xdf, 0xff}, Stroke: color.RGBA{0x6b, 0x9f, 0xc0, 0xff}, Width: 1},
			"land":     {Fill: color.RGBA{0xf2, 0xef, 0xe9, 0xff}},
			"forest":   {Fill: color.RGBA{0xad, 0xd1, 0x9e, 0xff}},
			"road":     {Stroke: color.RGBA{0xe8, 0x92, 0xa2, 0xff}, Width: 3},
			"track":    {Stroke: color.RGBA{0x99, 0x66, 0x00, 0xff}, Width: 1.5},
			"building": {Fill: color.RGBA{0xd9, 0xd0, 0xc9, 0xff}, Stroke: color.RGBA{0xbe, 0xad, 0xa0, 0xff}, Width: 1},
			"poi":      {Fill: color.RGBA{0x73, 0x4a, 0x08, 0xff}, Radius: 3},
		},
	}
}

// FeatureLoader reads the features of a vector map.
type FeatureLoader interface {
	LoadFeatures(ctx context.Context, def *Definition) (*geojson.FeatureCollection, error)
}

// StyleLoader resolves a theme by name.
type StyleLoader interface {
	LoadStyle(name string) (*Theme, error)
}

// VectorOptions configures a vector source.
type VectorOptions struct {
	Features FeatureLoader
	Styles   StyleLoader

	// CategoryProperty names the feature property that selects a style.
	// Default "category".
	CategoryProperty string
}

// indexedFeature wraps a feature for R-tree storage.
type indexedFeature struct {
	order    int
	category string
	geometry orb.Geometry
	bound    orb.Bound
}

// Bounds implements rtreego.Spatial.
func (f *indexedFeature) Bounds() rtreego.Rect {
	return boundRect(f.bound)
}

// boundRect converts b to an R-tree rectangle. Point features get a small
// epsilon extent (~11 m at the equator) since the tree needs non-zero sides.
func boundRect(b orb.Bound) rtreego.Rect {
	const epsilon = 0.0001
	w := b.Max.Lon() - b.Min.Lon()
	h := b.Max.Lat() - b.Min.Lat()
	if w < epsilon {
		w = epsilon
	}
	if h < epsilon {
		h = epsilon
	}
	rect, _ := rtreego.NewRect(rtreego.Point{b.Min.Lon(), b.Min.Lat()}, []float64{w, h})
	return rect
}

// Vector is a style-driven vector map rendered at continuous zoom.
//
// Its pixel space is a Web Mercator world sized so that the resolution at the
// map's central latitude equals the current scale.
type Vector struct {
	state

	opts   VectorOptions
	refLat float64

	theme *Theme
	index *rtreego.Rtree
	count int
}

// NewVector creates an inactive vector source.
func NewVector(def *Definition, opts VectorOptions) (*Vector, error) {
	if opts.Features == nil {
		return nil, &ParseError{Path: def.Path, Err: errors.New("no feature loader")}
	}
	if def.Scale <= 0 {
		return nil, &ParseError{Path: def.Path, Err: fmt.Errorf("bad native scale %v", def.Scale)}
	}
	if opts.CategoryProperty == "" {
		opts.CategoryProperty = "category"
	}
	v := &Vector{opts: opts, refLat: referenceLatitude(def.Bounds)}
	v.init(def, def.Scale, 1.0/64, 64, false)
	return v, nil
}

func (v *Vector) world(z float64) float64 {
	return mercatorWorld(v.native/z, v.refLat)
}

func (v *Vector) GeoToPixel(lat, lon float64) (float64, float64) {
	return mercatorProject(lat, lon, v.world(v.Zoom()))
}

func (v *Vector) PixelToGeo(x, y float64) (float64, float64) {
	return mercatorUnproject(x, y, v.world(v.Zoom()))
}

func (v *Vector) Covers(lat, lon float64) bool {
	return v.def.Covers(lat, lon)
}

// FeatureCount returns the number of indexed features while active.
func (v *Vector) FeatureCount() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.count
}

func (v *Vector) Activate(ctx context.Context, scale float64, force bool) error {
	if v.Active() && !force {
		v.ZoomTo(scale)
		return nil
	}

	theme := DefaultTheme()
	if v.def.Style != "" && v.opts.Styles != nil {
		t, err := v.opts.Styles.LoadStyle(v.def.Style)
		if err != nil {
			return activationError(v.def, fmt.Errorf("load style %q: %w", v.def.Style, err))
		}
		theme = t
	}

	fc, err := v.opts.Features.LoadFeatures(ctx, v.def)
	if err != nil {
		return activationError(v.def, err)
	}

	index := rtreego.NewTree(2, 25, 50)
	count := 0
	for i, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		index.Insert(&indexedFeature{
			order:    i,
			category: f.Properties.MustString(v.opts.CategoryProperty, ""),
			geometry: f.Geometry,
			bound:    f.Geometry.Bound(),
		})
		count++
	}

	v.mu.Lock()
	v.theme = theme
	v.index = index
	v.count = count
	v.active = true
	v.mu.Unlock()
	v.ZoomTo(scale)
	return nil
}

func (v *Vector) Deactivate() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.index = nil
	v.theme = nil
	v.count = 0
	v.active = false
}

// paintRank orders geometry so areas are painted under lines and lines
// under points.
func paintRank(g orb.Geometry) int {
	switch g.Dimensions() {
	case 2:
		return 0
	case 1:
		return 1
	}
	return 2
}

func (v *Vector) Draw(vp viewport.Viewport, opts DrawOptions, dst draw.Image) (bool, error) {
	v.mu.RLock()
	active, z, theme, index := v.active, v.zoom, v.theme, v.index
	v.mu.RUnlock()
	if !active {
		return false, ErrNotActive
	}

	world := v.world(z)
	cx, cy := mercatorProject(vp.Center.Lat(), vp.Center.Lon(), world)
	p := place(vp, cx, cy)
	proj := func(lat, lon float64) (float64, float64) {
		x, y := mercatorProject(lat, lon, world)
		return x - p.origin.X, y - p.origin.Y
	}
	toGeo := func(x, y float64) (float64, float64) { return mercatorUnproject(x, y, world) }
	view := canvasBound(p, toGeo)

	target := dst
	if opts.CropToBorder {
		target = image.NewRGBA(image.Rect(0, 0, p.w, p.h))
	}

	mask := regionMask(outline(v.def), proj, p.w, p.h)
	draw.DrawMask(target, image.Rect(0, 0, p.w, p.h), image.NewUniform(theme.Background), image.Point{}, mask, image.Point{}, draw.Over)

	hits := index.SearchIntersect(boundRect(view))
	features := make([]*indexedFeature, 0, len(hits))
	for _, h := range hits {
		features = append(features, h.(*indexedFeature))
	}
	sort.Slice(features, func(i, j int) bool {
		ri, rj := paintRank(features[i].geometry), paintRank(features[j].geometry)
		if ri != rj {
			return ri < rj
		}
		return features[i].order < features[j].order
	})

	// Clip a little outside the canvas so strokes do not end at its edge.
	pad := (view.Max.Lon() - view.Min.Lon()) * 0.05
	clipBound := view.Pad(pad)
	z0 := vector.NewRasterizer(p.w, p.h)
	for _, f := range features {
		style, ok := theme.StyleFor(f.category)
		if !ok {
			continue
		}
		g := clip.Geometry(clipBound, f.geometry)
		if g == nil {
			continue
		}
		paintGeometry(target, z0, g, style, proj)
	}

	if opts.CropToBorder {
		draw.DrawMask(dst, dst.Bounds(), target, image.Point{}, mask, image.Point{}, draw.Over)
	}
	decorate(dst, v.def, proj, opts)
	return coversCanvas(p, toGeo, v.Covers), nil
}

func paintGeometry(dst draw.Image, z *vector.Rasterizer, g orb.Geometry, s Style, proj projector) {
	b := dst.Bounds()
	fill := func(build func()) {
		z.Reset(b.Dx(), b.Dy())
		build()
		z.Draw(dst, b, image.NewUniform(s.Fill), image.Point{})
	}
	stroke := func(ls []orb.Point, closed bool) {
		if s.Width <= 0 || s.Stroke.A == 0 || len(ls) < 2 {
			return
		}
		z.Reset(b.Dx(), b.Dy())
		for i := 1; i < len(ls); i++ {
			x0, y0 := proj(ls[i-1].Lat(), ls[i-1].Lon())
			x1, y1 := proj(ls[i].Lat(), ls[i].Lon())
			strokeLine(z, x0, y0, x1, y1, s.Width)
		}
		if closed {
			x0, y0 := proj(ls[len(ls)-1].Lat(), ls[len(ls)-1].Lon())
			x1, y1 := proj(ls[0].Lat(), ls[0].Lon())
			strokeLine(z, x0, y0, x1, y1, s.Width)
		}
		z.Draw(dst, b, image.NewUniform(s.Stroke), image.Point{})
	}
	marker := func(pt orb.Point) {
		r := s.Radius
		if r <= 0 {
			return
		}
		x, y := proj(pt.Lat(), pt.Lon())
		z.Reset(b.Dx(), b.Dy())
		z.MoveTo(float32(x-r), float32(y-r))
		z.LineTo(float32(x+r), float32(y-r))
		z.LineTo(float32(x+r), float32(y+r))
		z.LineTo(float32(x-r), float32(y+r))
		z.ClosePath()
		c := s.Fill
		if c.A == 0 {
			c = s.Stroke
		}
		z.Draw(dst, b, image.NewUniform(c), image.Point{})
	}

	switch g := g.(type) {
	case orb.Point:
		marker(g)
	case orb.MultiPoint:
		for _, pt := range g {
			marker(pt)
		}
	case orb.LineString:
		stroke(g, false)
	case orb.MultiLineString:
		for _, ls := range g {
			stroke(ls, false)
		}
	case orb.Ring:
		paintGeometry(dst, z, orb.Polygon{g}, s, proj)
	case orb.Polygon:
		if s.Fill.A > 0 {
			fill(func() {
				for _, ring := range g {
					ringPath(z, ring, proj)
				}
			})
		}
		for _, ring := range g {
			stroke(ring, true)
		}
	case orb.MultiPolygon:
		for _, poly := range g {
			paintGeometry(dst, z, poly, s, proj)
		}
	case orb.Collection:
		for _, c := range g {
			paintGeometry(dst, z, c, s, proj)
		}
	}
}
