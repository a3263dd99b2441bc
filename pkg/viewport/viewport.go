// Package viewport describes what is on screen: screen and canvas geometry,
// the geographic and map-pixel center, the tracked location and the
// look-ahead offset that shifts the view ahead of travel.
//
// A Viewport is a plain value. Every mutation returns a modified copy, so a
// snapshot handed to the compositing worker or the presenter can never be
// observed half-updated.
//
// # Coordinate spaces
//
// Geographic positions are orb.Point values (lon, lat). Map-pixel positions
// (XY) are expressed in the current map's own resampled pixel space at its
// current zoom. Canvas pixels are relative to the top-left corner of the
// off-screen buffer, which is larger than the screen by an overscan margin so
// that small pans can be served from an already composited buffer.
//
// The map-pixel center is drawn at the canvas center displaced by the
// look-ahead offset:
//
//	canvas(xy) = xy - CenterXY + (CanvasWidth/2, CanvasHeight/2) + LookAhead
package viewport

import (
	"image"
	"math"

	"github.com/paulmach/orb"
)

// DefaultOverscan is the margin in pixels added on every side of the screen
// when sizing the canvas.
const DefaultOverscan = 64

// XY is a position in map-pixel space.
type XY struct {
	X, Y float64
}

// Add returns p+q.
func (p XY) Add(q XY) XY { return XY{p.X + q.X, p.Y + q.Y} }

// Sub returns p-q.
func (p XY) Sub(q XY) XY { return XY{p.X - q.X, p.Y - q.Y} }

// Round returns p rounded to the nearest integer pixel.
func (p XY) Round() image.Point {
	return image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
}

// Viewport is a snapshot of everything needed to composite or present one
// frame.
type Viewport struct {
	Width, Height             int // screen size
	CanvasWidth, CanvasHeight int // off-screen buffer size
	Rotate                    bool

	Center   orb.Point // geographic center of the map
	CenterXY XY        // map-pixel center in the current map's space

	Location    orb.Point // tracked position, valid when HasLocation
	LocationXY  XY
	HasLocation bool

	Bounds orb.Bound // visible geographic area

	Heading float64 // map rotation in degrees, non-zero only with Rotate
	Bearing float64 // direction of travel in degrees
	Speed   float64 // metres per second

	LookAhead image.Point
	ViewArea  image.Rectangle // part of the screen not covered by chrome

	Scale float64 // metres per pixel of the current map at its current zoom
	MapID string
}

// CanvasSize returns buffer dimensions for a w×h screen. Without rotation the
// canvas adds overscan on every side. With rotation it is a square large
// enough to cover the screen at any angle.
func CanvasSize(w, h int, rotate bool, overscan int) (int, int) {
	excess := overscan * 2
	if !rotate {
		return w + excess, h + excess
	}
	a := w
	if h > a {
		a = h
	}
	e := int(0.41421356237 * float64(a))
	if e < excess {
		e = excess
	}
	return a + e, a + e
}

// WithScreen returns v resized to a w×h screen. The view area is reset to the
// whole screen.
func (v Viewport) WithScreen(w, h int, rotate bool, overscan int) Viewport {
	v.Width, v.Height = w, h
	v.Rotate = rotate
	v.CanvasWidth, v.CanvasHeight = CanvasSize(w, h, rotate, overscan)
	v.ViewArea = image.Rect(0, 0, w, h)
	if !rotate {
		v.Heading = 0
	}
	return v
}

// WithViewArea returns v with the chrome-free part of the screen set to r,
// clipped to the screen.
func (v Viewport) WithViewArea(r image.Rectangle) Viewport {
	v.ViewArea = r.Intersect(image.Rect(0, 0, v.Width, v.Height))
	return v
}

// Empty reports whether the viewport has no drawable area.
func (v Viewport) Empty() bool {
	return v.CanvasWidth <= 0 || v.CanvasHeight <= 0
}

// CanvasOrigin returns the map-pixel position of the canvas top-left corner.
func (v Viewport) CanvasOrigin() XY {
	return XY{
		X: v.CenterXY.X - float64(v.CanvasWidth/2+v.LookAhead.X),
		Y: v.CenterXY.Y - float64(v.CanvasHeight/2+v.LookAhead.Y),
	}
}

// ToCanvas converts a map-pixel position to canvas pixels.
func (v Viewport) ToCanvas(p XY) XY {
	return p.Sub(v.CanvasOrigin())
}

// CanvasRect returns the map-pixel rectangle covered by the canvas.
func (v Viewport) CanvasRect() image.Rectangle {
	o := v.CanvasOrigin().Round()
	return image.Rect(o.X, o.Y, o.X+v.CanvasWidth, o.Y+v.CanvasHeight)
}

// ScreenRect returns the map-pixel rectangle visible on screen.
func (v Viewport) ScreenRect() image.Rectangle {
	x := int(math.Round(v.CenterXY.X)) - v.Width/2 - v.LookAhead.X
	y := int(math.Round(v.CenterXY.Y)) - v.Height/2 - v.LookAhead.Y
	return image.Rect(x, y, x+v.Width, y+v.Height)
}

// ScreenOrigin is where the canvas top-left corner lands on screen when the
// buffer was rendered for exactly this viewport.
func (v Viewport) ScreenOrigin() image.Point {
	return image.Pt((v.Width-v.CanvasWidth)/2, (v.Height-v.CanvasHeight)/2)
}

// Correction returns the screen position at which a buffer rendered for
// rendered must be painted so that it lines up with v. Only translation is
// corrected. Drift is ignored when the buffer belongs to another map or zoom
// because pixel spaces are then unrelated.
func (v Viewport) Correction(rendered Viewport) image.Point {
	origin := v.ScreenOrigin()
	if rendered.MapID != v.MapID || rendered.Scale != v.Scale {
		return origin
	}
	drift := rendered.CenterXY.Sub(v.CenterXY).Round()
	la := rendered.LookAhead.Sub(v.LookAhead)
	return origin.Add(drift).Sub(la)
}

// LocationOnScreen returns the screen position of the tracked location and
// whether it falls inside the screen.
func (v Viewport) LocationOnScreen() (image.Point, bool) {
	if !v.HasLocation {
		return image.Point{}, false
	}
	p := v.LocationXY.Sub(v.CenterXY).Round()
	p = p.Add(v.LookAhead).Add(image.Pt(v.Width/2, v.Height/2))
	return p, p.In(image.Rect(0, 0, v.Width+1, v.Height+1))
}

// CenterOnScreen returns the screen position of the map center.
func (v Viewport) CenterOnScreen() image.Point {
	return image.Pt(v.Width/2+v.LookAhead.X, v.Height/2+v.LookAhead.Y)
}
