package render

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"time"

	"github.com/paulmach/orb/geo"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/beetlebugorg/chartview/pkg/viewport"
)

var (
	cursorColor  = color.RGBA{0xd0, 0x10, 0x10, 0xff}
	northColor   = color.RGBA{0x20, 0x40, 0xc0, 0xff}
	crossColor   = color.RGBA{0x20, 0x20, 0x20, 0xc0}
	scaleColor   = color.RGBA{0x00, 0x00, 0x00, 0xff}
	scaleFill    = color.RGBA{0xff, 0xff, 0xff, 0xb0}
	outlineColor = color.RGBA{0xff, 0xff, 0xff, 0xff}
)

// VectorKind selects what the cursor vector shows.
type VectorKind int

const (
	VectorNone      VectorKind = iota
	VectorProximity            // the proximity radius
	VectorSpeed                // distance travelled in one minute
)

// VectorLength returns the cursor vector length in pixels at mpp metres per
// pixel, scaled by multiplier.
func VectorLength(kind VectorKind, proximity, speed, mpp float64, multiplier int) int {
	if mpp <= 0 {
		return 0
	}
	var l int
	switch kind {
	case VectorProximity:
		l = int(proximity / mpp)
	case VectorSpeed:
		l = int(speed * 60 / mpp)
	}
	return l * multiplier
}

// Scene is the state the live overlays depend on.
type Scene struct {
	View      viewport.Viewport
	Following bool
	Moving    bool
	Fixed     bool
	Vector    int // cursor vector length in pixels
}

// pen draws antialiased shapes onto a destination image.
type pen struct {
	dst draw.Image
	z   *vector.Rasterizer
}

func newPen(dst draw.Image) *pen {
	b := dst.Bounds()
	return &pen{dst: dst, z: vector.NewRasterizer(b.Dx(), b.Dy())}
}

func (p *pen) begin() {
	b := p.dst.Bounds()
	p.z.Reset(b.Dx(), b.Dy())
}

func (p *pen) fill(c color.Color) {
	b := p.dst.Bounds()
	p.z.Draw(p.dst, b, image.NewUniform(c), image.Point{})
}

func (p *pen) polygon(pts []xy) {
	if len(pts) < 3 {
		return
	}
	p.z.MoveTo(float32(pts[0].x), float32(pts[0].y))
	for _, q := range pts[1:] {
		p.z.LineTo(float32(q.x), float32(q.y))
	}
	p.z.ClosePath()
}

// line adds a stroke of the given width as a quad.
func (p *pen) line(x0, y0, x1, y1, width float64) {
	dx, dy := x1-x0, y1-y0
	l := math.Hypot(dx, dy)
	if l == 0 {
		return
	}
	nx, ny := -dy/l*width/2, dx/l*width/2
	p.polygon([]xy{{x0 + nx, y0 + ny}, {x1 + nx, y1 + ny}, {x1 - nx, y1 - ny}, {x0 - nx, y0 - ny}})
}

type xy struct{ x, y float64 }

// turn rotates (x, y) by deg degrees clockwise on screen and moves it to
// (ox, oy).
func turn(x, y, deg, ox, oy float64) xy {
	s, c := math.Sincos(deg * math.Pi / 180)
	return xy{ox + x*c - y*s, oy + x*s + y*c}
}

// triangle returns an arrowhead of size r pointing up before rotation.
func triangle(r, deg, ox, oy float64) []xy {
	return []xy{
		turn(0, -r, deg, ox, oy),
		turn(r*0.6, r*0.6, deg, ox, oy),
		turn(-r*0.6, r*0.6, deg, ox, oy),
	}
}

// drawText writes s with a white halo so it stays legible over any map.
func drawText(dst draw.Image, s string, x, y int, c color.Color) {
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(outlineColor), Face: basicfont.Face7x13}
	for _, o := range []image.Point{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
		d.Dot = fixed.P(x+o.X, y+o.Y)
		d.DrawString(s)
	}
	d.Src = image.NewUniform(c)
	d.Dot = fixed.P(x, y)
	d.DrawString(s)
}

func textWidth(s string) int {
	return font.MeasureString(basicfont.Face7x13, s).Ceil()
}

// Overlays draws the live elements of a frame.
type Overlays struct {
	CrossHideDelay time.Duration
	Placer         viewport.ScalePlacer

	lastDrag time.Time
}

// Dragged records user panning; the crosshair shows for CrossHideDelay after.
func (o *Overlays) Dragged(now time.Time) { o.lastDrag = now }

func (o *Overlays) showCross(now time.Time) bool {
	return !o.lastDrag.IsZero() && now.Sub(o.lastDrag) < o.CrossHideDelay
}

// Draw paints the overlays of scene onto dst, which has screen size.
func (o *Overlays) Draw(dst draw.Image, s Scene, now time.Time) {
	vp := s.View
	o.drawScaleBar(dst, s, now)

	p := newPen(dst)
	c := vp.CenterOnScreen()
	cx, cy := float64(c.X), float64(c.Y)
	cross := o.showCross(now)

	if vp.Rotate && s.Following {
		p.begin()
		p.polygon(triangle(10, -vp.Heading, cx, cy-24))
		p.fill(northColor)
	}

	if s.Moving && vp.HasLocation {
		d := vp.LocationXY.Sub(vp.CenterXY)
		loc := turn(d.X, d.Y, -vp.Heading, cx, cy)
		lx, ly := loc.x, loc.y
		deg := vp.Bearing - vp.Heading

		p.begin()
		p.polygon(triangle(12, deg, lx, ly))
		if s.Fixed && s.Vector > 0 {
			tip := turn(0, -float64(s.Vector), deg, lx, ly)
			p.line(lx, ly, tip.x, tip.y, 2)
		}
		p.fill(cursorColor)

		b := dst.Bounds()
		off := lx < 0 || ly < 0 || lx > float64(b.Dx()) || ly > float64(b.Dy())
		if cross && off {
			bearing := geo.Bearing(vp.Center, vp.Location) - vp.Heading
			p.begin()
			p.polygon(triangle(10, bearing, cx, cy))
			p.fill(cursorColor)
		}
	}

	if !s.Following && cross {
		p.begin()
		p.line(cx-12, cy, cx+12, cy, 2)
		p.line(cx, cy-12, cx, cy+12, 2)
		p.fill(crossColor)
	}
}

func (o *Overlays) drawScaleBar(dst draw.Image, s Scene, now time.Time) {
	vp := s.View
	meters, width := viewport.ScaleBar(vp.Scale, vp.ViewArea, vp.Width)
	if width <= 0 {
		return
	}
	label := viewport.FormatDistance(meters)
	tw := textWidth(label)
	const bar, pad, th = 6, 6, 13

	a := vp.ViewArea
	var x, y, ty int
	switch o.Placer.Place(vp.Bearing, s.Following, vp.Rotate, now) {
	case viewport.TopLeft:
		x, y = a.Min.X+pad, a.Min.Y+pad
		ty = y + bar + th
	case viewport.TopRight:
		x, y = a.Max.X-pad-width, a.Min.Y+pad
		ty = y + bar + th
	case viewport.BottomRight:
		x, y = a.Max.X-pad-width, a.Max.Y-pad-bar
		ty = y - 3
	default:
		x, y = a.Min.X+pad, a.Max.Y-pad-bar
		ty = y - 3
	}

	bg := image.Rect(x-2, y-2, x+width+2, y+bar+2)
	draw.Draw(dst, bg, image.NewUniform(scaleFill), image.Point{}, draw.Over)

	p := newPen(dst)
	p.begin()
	fx, fy, fw := float64(x), float64(y), float64(width)
	p.line(fx, fy+bar/2, fx+fw, fy+bar/2, 2)
	p.line(fx, fy, fx, fy+bar, 1.5)
	p.line(fx+fw, fy, fx+fw, fy+bar, 1.5)
	p.line(fx+fw/2, fy+bar/4, fx+fw/2, fy+bar, 1)
	p.fill(scaleColor)

	drawText(dst, label, x+(width-tw)/2, ty, scaleColor)
}
