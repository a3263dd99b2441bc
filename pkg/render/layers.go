package render

import (
	"image/color"
	"image/draw"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/beetlebugorg/chartview/pkg/viewport"
)

// GeometryLayer draws GeoJSON lines and points, such as a recorded track or
// a set of waypoints, over the maps.
type GeometryLayer struct {
	name  string
	order int
	fc    *geojson.FeatureCollection
	color color.RGBA
	width float64
}

// NewGeometryLayer returns a layer drawing fc in c.
func NewGeometryLayer(name string, order int, fc *geojson.FeatureCollection, c color.RGBA) *GeometryLayer {
	return &GeometryLayer{name: name, order: order, fc: fc, color: c, width: 3}
}

func (l *GeometryLayer) Name() string { return l.name }
func (l *GeometryLayer) Order() int   { return l.order }

func (l *GeometryLayer) Draw(vp viewport.Viewport, proj Projector, dst draw.Image) error {
	if proj == nil {
		return nil
	}
	toCanvas := func(pt orb.Point) xy {
		x, y := proj.GeoToPixel(pt.Lat(), pt.Lon())
		c := vp.ToCanvas(viewport.XY{X: x, Y: y})
		return xy{c.X, c.Y}
	}

	p := newPen(dst)
	p.begin()
	var walk func(g orb.Geometry)
	walk = func(g orb.Geometry) {
		switch g := g.(type) {
		case orb.Point:
			c := toCanvas(g)
			p.polygon([]xy{{c.x - 4, c.y - 4}, {c.x + 4, c.y - 4}, {c.x + 4, c.y + 4}, {c.x - 4, c.y + 4}})
		case orb.MultiPoint:
			for _, pt := range g {
				walk(pt)
			}
		case orb.LineString:
			for i := 1; i < len(g); i++ {
				a, b := toCanvas(g[i-1]), toCanvas(g[i])
				p.line(a.x, a.y, b.x, b.y, l.width)
			}
		case orb.MultiLineString:
			for _, ls := range g {
				walk(ls)
			}
		case orb.Ring:
			walk(orb.LineString(g))
		case orb.Polygon:
			for _, r := range g {
				walk(r)
			}
		case orb.Collection:
			for _, c := range g {
				walk(c)
			}
		}
	}
	for _, f := range l.fc.Features {
		if f != nil && f.Geometry != nil {
			walk(f.Geometry)
		}
	}
	p.fill(l.color)
	return nil
}
