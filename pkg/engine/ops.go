package engine

import (
	"image"
	"image/color"
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/teris-io/shortid"

	"github.com/beetlebugorg/chartview/pkg/mapsource"
	"github.com/beetlebugorg/chartview/pkg/render"
	"github.com/beetlebugorg/chartview/pkg/viewport"
)

// headingDeadband is how far in degrees the bearing may drift from the map
// heading before a rotated map is turned.
const headingDeadband = 10

// Location is a position fix.
type Location struct {
	Lat, Lon float64
	Bearing  float64 // degrees from north
	Speed    float64 // metres per second

	// Time of the fix. Zero means now.
	Time time.Time
}

// refreshLocked recomputes the map-dependent viewport fields for src.
func (e *Engine) refreshLocked(src mapsource.Source) {
	v := &e.vp
	x, y := src.GeoToPixel(v.Center.Lat(), v.Center.Lon())
	v.CenterXY = viewport.XY{X: x, Y: y}
	if v.HasLocation {
		x, y = src.GeoToPixel(v.Location.Lat(), v.Location.Lon())
		v.LocationXY = viewport.XY{X: x, Y: y}
	}
	v.Scale = src.Scale()
	v.MapID = src.ID()

	var mp orb.MultiPoint
	r := v.CanvasRect()
	for _, c := range []image.Point{r.Min, {r.Max.X, r.Min.Y}, r.Max, {r.Min.X, r.Max.Y}} {
		lat, lon := src.PixelToGeo(float64(c.X), float64(c.Y))
		mp = append(mp, orb.Point{lon, lat})
	}
	v.Bounds = mp.Bound()
}

func (e *Engine) conditionsLocked() viewport.Conditions {
	return viewport.Conditions{Moving: e.moving, Following: e.following, Fixed: e.fixed}
}

// Viewport returns a snapshot of the current view.
func (e *Engine) Viewport() viewport.Viewport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vp
}

// CurrentMap returns the current map, or nil before the first selection.
func (e *Engine) CurrentMap() mapsource.Source {
	return e.cov.Current()
}

// Coverage returns the maps drawn around the current one.
func (e *Engine) Coverage() []mapsource.Source {
	return e.cov.Covering()
}

// Conditions returns the look-ahead gate.
func (e *Engine) Conditions() viewport.Conditions {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conditionsLocked()
}

// SetLocation updates the tracked position. While following, the map is
// recentred on it, a rotated map is turned when the bearing has drifted past
// the dead band and a better map is looked for at most once per
// BestMapInterval.
func (e *Engine) SetLocation(loc Location) {
	now := loc.Time
	if now.IsZero() {
		now = e.opts.Now()
	}

	e.mu.Lock()
	v := &e.vp
	v.Location = orb.Point{loc.Lon, loc.Lat}
	v.HasLocation = true
	v.Bearing = viewport.NormalizeAngle(loc.Bearing)
	v.Speed = loc.Speed

	following := e.following
	findBest := false
	lookBearing := v.Bearing
	if following {
		v.Center = v.Location
		if v.Rotate {
			if math.Abs(viewport.AngleDiff(v.Heading, v.Bearing)) > headingDeadband {
				v.Heading = v.Bearing
			}
			// the rotated map already points the travel direction up
			lookBearing = 0
		}
		if e.bestEnabled && now.Sub(e.lastBest) >= e.opts.BestMapInterval {
			findBest = e.loadBest
			e.lastBest = now
		}
	}
	if cur := e.cov.Current(); cur != nil {
		e.refreshLocked(cur)
	}
	e.mu.Unlock()

	e.anim.SetBearing(lookBearing)
	if following {
		e.requestCoverage(coverReq{findBest: findBest})
	}
}

// ClearLocation forgets the tracked position and stops following.
func (e *Engine) ClearLocation() {
	e.SetFollowing(false)
	e.mu.Lock()
	e.vp.HasLocation = false
	e.vp.Location = orb.Point{}
	e.vp.LocationXY = viewport.XY{}
	e.vp.Bearing = 0
	e.vp.Speed = 0
	e.mu.Unlock()
}

// SetMapCenter moves the view to (lat, lon).
func (e *Engine) SetMapCenter(lat, lon float64) {
	e.mu.Lock()
	e.vp.Center = orb.Point{lon, lat}
	if cur := e.cov.Current(); cur != nil {
		e.refreshLocked(cur)
	}
	e.mu.Unlock()
	e.requestCoverage(coverReq{})
}

// Scroll moves the view by dx, dy screen pixels. On a rotated map the
// movement is turned into map space.
func (e *Engine) Scroll(dx, dy int) {
	cur := e.cov.Current()
	if cur == nil {
		return
	}
	e.mu.Lock()
	sin, cos := math.Sincos(e.vp.Heading * math.Pi / 180)
	mx := float64(dx)*cos - float64(dy)*sin
	my := float64(dx)*sin + float64(dy)*cos
	lat, lon := cur.PixelToGeo(e.vp.CenterXY.X+mx, e.vp.CenterXY.Y+my)
	e.vp.Center = orb.Point{lon, lat}
	e.refreshLocked(cur)
	e.mu.Unlock()
	e.requestCoverage(coverReq{})
}

// Drag marks user interaction with the map, which shows the center
// crosshair for a while.
func (e *Engine) Drag() {
	e.pres.Dragged()
}

func (e *Engine) zoom(fn func(src mapsource.Source) bool) bool {
	cur := e.cov.Current()
	if cur == nil || !fn(cur) {
		return false
	}
	e.mu.Lock()
	e.refreshLocked(cur)
	e.mu.Unlock()
	e.cov.InvalidateCovering()
	e.requestCoverage(coverReq{})
	return true
}

// ZoomIn steps the current map to its next finer zoom. It reports false at
// the limit.
func (e *Engine) ZoomIn() bool {
	return e.zoom(func(src mapsource.Source) bool {
		z := src.NextZoom()
		if z == 0 {
			return false
		}
		src.SetZoom(z)
		return true
	})
}

// ZoomOut steps the current map to its next coarser zoom. It reports false
// at the limit.
func (e *Engine) ZoomOut() bool {
	return e.zoom(func(src mapsource.Source) bool {
		z := src.PrevZoom()
		if z == 0 {
			return false
		}
		src.SetZoom(z)
		return true
	})
}

// SetZoom sets the zoom factor of the current map.
func (e *Engine) SetZoom(zoom float64) bool {
	return e.zoom(func(src mapsource.Source) bool {
		if zoom <= 0 {
			return false
		}
		src.SetZoom(zoom)
		return true
	})
}

// ZoomBy multiplies the zoom factor of the current map.
func (e *Engine) ZoomBy(factor float64) bool {
	return e.zoom(func(src mapsource.Source) bool {
		if factor <= 0 {
			return false
		}
		src.ZoomBy(factor)
		return true
	})
}

// SetScreen resizes the view.
func (e *Engine) SetScreen(w, h int) {
	e.mu.Lock()
	e.vp = e.vp.WithScreen(w, h, e.vp.Rotate, e.opts.Overscan)
	if cur := e.cov.Current(); cur != nil {
		e.refreshLocked(cur)
	}
	area, pct := e.vp.ViewArea, e.lookAhead
	e.mu.Unlock()
	e.anim.SetLookAhead(pct, area)
	e.RequestRender()
}

// SetViewArea sets the part of the screen not hidden by chrome. The
// look-ahead distance is derived from it.
func (e *Engine) SetViewArea(r image.Rectangle) {
	e.mu.Lock()
	e.vp = e.vp.WithViewArea(r)
	area, pct := e.vp.ViewArea, e.lookAhead
	e.mu.Unlock()
	e.anim.SetLookAhead(pct, area)
}

// SetRotate switches map rotation. The canvas is resized to cover the
// screen at any angle.
func (e *Engine) SetRotate(on bool) {
	e.mu.Lock()
	area := e.vp.ViewArea
	e.vp = e.vp.WithScreen(e.vp.Width, e.vp.Height, on, e.opts.Overscan).WithViewArea(area)
	if cur := e.cov.Current(); cur != nil {
		e.refreshLocked(cur)
	}
	e.mu.Unlock()
	e.RequestRender()
}

// SetFollowing switches location tracking. Turning it on centers the map on
// the location and starts the look-ahead from where the location currently
// is on screen. Turning it off keeps the visible area in place and drops the
// map heading.
func (e *Engine) SetFollowing(on bool) {
	e.mu.Lock()
	if on == e.following {
		e.mu.Unlock()
		return
	}
	e.following = on
	cur := e.cov.Current()
	v := &e.vp

	seed, seeded := image.Point{}, false
	if on {
		if v.HasLocation {
			if cur != nil {
				seed = v.LocationXY.Sub(v.CenterXY).Round().Add(v.LookAhead)
				seeded = true
			}
			v.Center = v.Location
		}
	} else {
		if cur != nil && v.LookAhead != (image.Point{}) {
			lat, lon := cur.PixelToGeo(v.CenterXY.X-float64(v.LookAhead.X), v.CenterXY.Y-float64(v.LookAhead.Y))
			v.Center = orb.Point{lon, lat}
		}
		v.LookAhead = image.Point{}
		v.Heading = 0
	}
	if seeded {
		v.LookAhead = seed
	}
	if cur != nil {
		e.refreshLocked(cur)
	}
	cond := e.conditionsLocked()
	e.mu.Unlock()

	if seeded {
		e.anim.Seed(seed)
	}
	e.anim.SetConditions(cond)
	e.host.ConditionsChanged(cond)
	e.requestCoverage(coverReq{})
}

// SetMoving tells whether a valid bearing is known.
func (e *Engine) SetMoving(on bool) {
	e.setCondition(func() { e.moving = on })
}

// SetFixed tells whether a valid location fix is known.
func (e *Engine) SetFixed(on bool) {
	e.setCondition(func() { e.fixed = on })
}

func (e *Engine) setCondition(set func()) {
	e.mu.Lock()
	before := e.conditionsLocked()
	set()
	cond := e.conditionsLocked()
	e.mu.Unlock()
	if cond == before {
		return
	}
	e.anim.SetConditions(cond)
	e.host.ConditionsChanged(cond)
}

// SetLookAhead sets the look-ahead distance in percent.
func (e *Engine) SetLookAhead(percent int) {
	e.mu.Lock()
	e.lookAhead = percent
	area := e.vp.ViewArea
	e.mu.Unlock()
	e.anim.SetLookAhead(percent, area)
}

// SetBestMap switches the search for better maps while following.
func (e *Engine) SetBestMap(on bool) {
	e.mu.Lock()
	e.bestEnabled = on
	e.loadBest = on
	e.mu.Unlock()
	e.requestCoverage(coverReq{findBest: on})
}

// SetAdjacentMaps switches drawing of neighbouring maps.
func (e *Engine) SetAdjacentMaps(on bool) {
	e.mu.Lock()
	e.adjacent = on
	e.mu.Unlock()
	e.Invalidate()
}

// suspendBest stops preferring finer maps until the next automatic map
// change, so a manual choice is not overridden right away.
func (e *Engine) suspendBest() {
	e.mu.Lock()
	e.loadBest = false
	e.mu.Unlock()
}

// SelectMap makes the map with the given ID current.
func (e *Engine) SelectMap(id string) {
	e.suspendBest()
	e.requestCoverage(coverReq{cmd: cmdSelect, id: id})
}

// NextMap switches to the next finer map at the view center. On the finest
// map it stays put.
func (e *Engine) NextMap() {
	e.suspendBest()
	e.requestCoverage(coverReq{cmd: cmdNext})
}

// PrevMap switches to the next coarser map at the view center, wrapping to
// the finest.
func (e *Engine) PrevMap() {
	e.suspendBest()
	e.requestCoverage(coverReq{cmd: cmdPrev})
}

// AddLayer adds or replaces an overlay layer.
func (e *Engine) AddLayer(l render.Layer) {
	e.pipe.AddLayer(l)
	e.RequestRender()
}

// RemoveLayer removes an overlay layer by name.
func (e *Engine) RemoveLayer(name string) bool {
	ok := e.pipe.RemoveLayer(name)
	if ok {
		e.RequestRender()
	}
	return ok
}

// AddGeometry adds fc as a new overlay layer and returns its generated name.
func (e *Engine) AddGeometry(fc *geojson.FeatureCollection, c color.RGBA, order int) (string, error) {
	name, err := shortid.Generate()
	if err != nil {
		return "", err
	}
	e.AddLayer(render.NewGeometryLayer(name, order, fc, c))
	return name, nil
}
