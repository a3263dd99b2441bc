// Package coverage decides which map is current and which neighbouring maps
// are drawn around it.
//
// An Engine is driven from a single worker goroutine: Select, SelectMap,
// NextMap, PrevMap, UpdateCovering and Compose must not run concurrently with
// each other. Current and Covering may be read from any goroutine.
package coverage

import (
	"context"
	"errors"
	"fmt"
	"image/draw"
	"sync/atomic"

	"github.com/paulmach/orb"
	log "github.com/sirupsen/logrus"

	"github.com/beetlebugorg/chartview/internal/metrics"
	"github.com/beetlebugorg/chartview/pkg/mapsource"
	"github.com/beetlebugorg/chartview/pkg/viewport"
)

// Catalog is the part of a map catalog the engine queries.
type Catalog interface {
	MapsAt(lat, lon, refScale float64) []mapsource.Source
	CoveringMaps(primary mapsource.Source, visible orb.Bound, primaryCovers, preferBest bool) []mapsource.Source
	Get(id string) (mapsource.Source, bool)
}

// Listener receives map selection events.
type Listener interface {
	// MapChanged is called after a new current map is active. forced is set
	// for explicit user selection.
	MapChanged(src mapsource.Source, forced bool)
	// ActivationFailed is called once per failed activation.
	ActivationFailed(def *mapsource.Definition, err error)
}

// CoverageError reports a covering map that could not be prepared. It is
// dropped from the covering set; the others are kept.
type CoverageError struct {
	MapID string
	Err   error
}

func (e *CoverageError) Error() string {
	return fmt.Sprintf("covering map %s: %v", e.MapID, e.Err)
}

func (e *CoverageError) Unwrap() error { return e.Err }

// Options tunes map selection.
type Options struct {
	// A candidate whose native scale differs from the current scale by more
	// than these ratios (current/native) is shown at its native scale;
	// otherwise the current scale carries over.
	AdoptAbove float64
	AdoptBelow float64

	// FallbackScale is the native scale of the world fallback map.
	FallbackScale float64

	DrawOptions mapsource.DrawOptions

	Listener Listener
	Logger   log.FieldLogger
}

// DefaultOptions returns the standard selection thresholds.
func DefaultOptions() Options {
	return Options{AdoptAbove: 10, AdoptBelow: 0.01}
}

// Request asks for a map at a point.
type Request struct {
	Center orb.Point

	// FindBest re-selects even when the current map still covers Center.
	FindBest bool
}

// Selection is the outcome of a selection call.
type Selection struct {
	Map      mapsource.Source
	Previous mapsource.Source
	Changed  bool
}

type coverKey struct {
	primary       string
	scale         float64
	center        orb.Point
	width, height int
	lookAhead     [2]int
	preferBest    bool
	primaryCovers bool
}

type coverSet struct {
	key        coverKey
	maps       []mapsource.Source
	preferBest bool
}

type current struct {
	src mapsource.Source
}

// Engine owns the current map and the covering set.
type Engine struct {
	cat      Catalog
	opts     Options
	log      log.FieldLogger
	fallback *mapsource.Fallback

	current       atomic.Pointer[current]
	cover         atomic.Pointer[coverSet]
	primaryCovers atomic.Bool
	coverDirty    atomic.Bool
}

// New returns an engine without a current map.
func New(cat Catalog, opts Options) *Engine {
	d := DefaultOptions()
	if opts.AdoptAbove <= 0 {
		opts.AdoptAbove = d.AdoptAbove
	}
	if opts.AdoptBelow <= 0 {
		opts.AdoptBelow = d.AdoptBelow
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	return &Engine{
		cat:      cat,
		opts:     opts,
		log:      opts.Logger.WithField("component", "coverage"),
		fallback: mapsource.NewFallback(opts.FallbackScale),
	}
}

// Current returns the current map, or nil before the first selection.
func (e *Engine) Current() mapsource.Source {
	if c := e.current.Load(); c != nil {
		return c.src
	}
	return nil
}

// Covering returns the current covering set in draw order.
func (e *Engine) Covering() []mapsource.Source {
	if s := e.cover.Load(); s != nil {
		return s.maps
	}
	return nil
}

// Fallback returns the world fallback map.
func (e *Engine) Fallback() mapsource.Source { return e.fallback }

// InvalidateCovering makes the next UpdateCovering recompute.
func (e *Engine) InvalidateCovering() { e.coverDirty.Store(true) }

// Select picks the map for req.Center.
//
// The current map is kept while it covers the point unless req.FindBest is
// set. Otherwise the best catalog candidate, or the fallback map when there
// is none, becomes current. A failed activation keeps the previous map and
// returns the error.
func (e *Engine) Select(ctx context.Context, req Request) (Selection, error) {
	cur := e.Current()
	lat, lon := req.Center.Lat(), req.Center.Lon()
	if cur != nil && !req.FindBest && cur.Covers(lat, lon) {
		return Selection{Map: cur}, nil
	}

	ref := 0.0
	if cur != nil {
		ref = cur.Scale()
	}
	var cand mapsource.Source = e.fallback
	if cands := e.cat.MapsAt(lat, lon, ref); len(cands) > 0 {
		cand = cands[0]
	}
	return e.switchTo(ctx, cand, false)
}

// SelectMap makes the map with the given ID current.
func (e *Engine) SelectMap(ctx context.Context, id string) (Selection, error) {
	var src mapsource.Source
	if id == mapsource.FallbackID {
		src = e.fallback
	} else {
		var ok bool
		if src, ok = e.cat.Get(id); !ok {
			return Selection{Map: e.Current()}, fmt.Errorf("select map %s: not found", id)
		}
	}
	return e.switchTo(ctx, src, true)
}

// NextMap switches to the next finer map covering center.
func (e *Engine) NextMap(ctx context.Context, center orb.Point) (Selection, error) {
	return e.cycle(ctx, center, -1)
}

// PrevMap switches to the next coarser map covering center. It wraps to the
// finest map, which is also the choice when the current map does not cover
// center. Without a current map it picks the coarsest.
func (e *Engine) PrevMap(ctx context.Context, center orb.Point) (Selection, error) {
	return e.cycle(ctx, center, 1)
}

func (e *Engine) cycle(ctx context.Context, center orb.Point, step int) (Selection, error) {
	maps := e.cat.MapsAt(center.Lat(), center.Lon(), 0)
	cur := e.Current()
	if len(maps) == 0 {
		return Selection{Map: cur}, nil
	}
	pos := -1
	for i, m := range maps {
		if cur != nil && m.ID() == cur.ID() {
			pos = i
			break
		}
	}
	next := 0
	switch {
	case cur == nil && step > 0:
		next = len(maps) - 1
	case pos >= 0 && pos+step >= 0 && pos+step < len(maps):
		next = pos + step
	}
	return e.switchTo(ctx, maps[next], true)
}

// switchTo activates cand and makes it current. The previous map is only
// deactivated after cand is active.
func (e *Engine) switchTo(ctx context.Context, cand mapsource.Source, forced bool) (Selection, error) {
	cur := e.Current()
	if cur != nil && cur.ID() == cand.ID() {
		return Selection{Map: cur}, nil
	}

	scale := cand.NativeScale()
	if cur != nil {
		prev := cur.Scale()
		ratio := cand.CoverageRatio(prev)
		if ratio <= e.opts.AdoptAbove && ratio >= e.opts.AdoptBelow {
			scale = prev
		}
	}

	kind := cand.Kind().String()
	metrics.ActivationsTotal.WithLabelValues(kind).Inc()
	if err := cand.Activate(ctx, scale, false); err != nil {
		metrics.ActivationFailuresTotal.WithLabelValues(kind).Inc()
		e.log.WithError(err).WithField("map", cand.ID()).Warn("Map activation failed")
		if e.opts.Listener != nil {
			e.opts.Listener.ActivationFailed(cand.Definition(), err)
		}
		if cur == nil && cand.ID() != mapsource.FallbackID {
			if sel, ferr := e.switchTo(ctx, e.fallback, false); ferr == nil {
				return sel, err
			}
		}
		return Selection{Map: cur}, err
	}

	e.current.Store(&current{src: cand})
	if cur != nil && !e.inCovering(cur) {
		cur.Deactivate()
	}
	e.coverDirty.Store(true)
	metrics.MapSwitchesTotal.Inc()

	e.log.WithFields(log.Fields{"map": cand.ID(), "scale": cand.Scale()}).Infof("Current map: %s", cand.Definition().Title)
	if e.opts.Listener != nil {
		e.opts.Listener.MapChanged(cand, forced)
	}
	return Selection{Map: cand, Previous: cur, Changed: true}, nil
}

func (e *Engine) inCovering(src mapsource.Source) bool {
	for _, m := range e.Covering() {
		if m.ID() == src.ID() {
			return true
		}
	}
	return false
}

// visibleBounds returns the geographic extent of the canvas around the map
// pixel center of primary.
func visibleBounds(primary mapsource.Source, vp viewport.Viewport) orb.Bound {
	cx, cy := primary.GeoToPixel(vp.Center.Lat(), vp.Center.Lon())
	l := cx - float64(vp.CanvasWidth)/2 - float64(vp.LookAhead.X)
	t := cy - float64(vp.CanvasHeight)/2 - float64(vp.LookAhead.Y)
	r := l + float64(vp.CanvasWidth)
	b := t + float64(vp.CanvasHeight)

	var mp orb.MultiPoint
	for _, c := range [][2]float64{{l, t}, {r, t}, {r, b}, {l, b}} {
		lat, lon := primary.PixelToGeo(c[0], c[1])
		mp = append(mp, orb.Point{lon, lat})
	}
	return mp.Bound()
}

// UpdateCovering recomputes the covering set for vp. Unchanged inputs return
// the cached set. Newly needed maps are activated at the primary's scale and
// maps no longer needed are deactivated. Maps that fail to activate are
// dropped and reported as *CoverageError values joined into the error.
func (e *Engine) UpdateCovering(ctx context.Context, vp viewport.Viewport, preferBest bool) ([]mapsource.Source, error) {
	primary := e.Current()
	if primary == nil {
		return nil, nil
	}

	key := coverKey{
		primary:       primary.ID(),
		scale:         primary.Scale(),
		center:        vp.Center,
		width:         vp.CanvasWidth,
		height:        vp.CanvasHeight,
		lookAhead:     [2]int{vp.LookAhead.X, vp.LookAhead.Y},
		preferBest:    preferBest,
		primaryCovers: e.primaryCovers.Load(),
	}
	old := e.cover.Load()
	if old != nil && old.key == key && !e.coverDirty.Load() {
		return old.maps, nil
	}
	e.coverDirty.Store(false)
	metrics.CoverageRecomputesTotal.Inc()

	scale := primary.Scale()
	var errs []error
	var maps []mapsource.Source
	for _, src := range e.cat.CoveringMaps(primary, visibleBounds(primary, vp), key.primaryCovers, preferBest) {
		if src.Active() {
			src.ZoomTo(scale)
			maps = append(maps, src)
			continue
		}
		if err := src.Activate(ctx, scale, false); err != nil {
			cerr := &CoverageError{MapID: src.ID(), Err: err}
			e.log.WithError(cerr).Warn("Dropping covering map")
			errs = append(errs, cerr)
			continue
		}
		maps = append(maps, src)
	}

	e.cover.Store(&coverSet{key: key, maps: maps, preferBest: preferBest})

	if old != nil {
		keep := make(map[string]bool, len(maps)+1)
		keep[primary.ID()] = true
		for _, m := range maps {
			keep[m.ID()] = true
		}
		for _, m := range old.maps {
			if !keep[m.ID()] {
				m.Deactivate()
			}
		}
	}
	return maps, errors.Join(errs...)
}

// ClearCovering drops the covering set and deactivates its maps.
func (e *Engine) ClearCovering() {
	old := e.cover.Swap(nil)
	if old == nil {
		return
	}
	primary := e.Current()
	for _, m := range old.maps {
		if primary == nil || m.ID() != primary.ID() {
			m.Deactivate()
		}
	}
}

// Compose draws the current map and its covering set into dst and reports
// whether the current map covered the canvas.
//
// With prefer-best set and a covering map finer than the current map, the
// current map is drawn over the coarser covering maps and under the finer
// ones.
// Otherwise the covering maps are drawn and the current map is drawn last
// only if none of them covered the canvas. A source that runs out of memory
// stops nothing; the first such error is returned after drawing.
func (e *Engine) Compose(vp viewport.Viewport, dst draw.Image) (bool, error) {
	primary := e.Current()
	if primary == nil {
		return false, nil
	}
	var set *coverSet
	if s := e.cover.Load(); s != nil && s.key.primary == primary.ID() {
		set = s
	}

	var firstErr error
	drawSrc := func(src mapsource.Source) bool {
		ok, err := src.Draw(vp, e.opts.DrawOptions, dst)
		if err != nil {
			if errors.Is(err, mapsource.ErrResourceExhausted) && firstErr == nil {
				firstErr = err
			}
			e.log.WithError(err).WithField("map", src.ID()).Debug("Draw failed")
			return false
		}
		return ok
	}

	if set == nil || len(set.maps) == 0 {
		covered := drawSrc(primary)
		e.primaryCovers.Store(covered)
		return covered, firstErr
	}

	base := false
	if set.preferBest {
		for _, m := range set.maps {
			if m.NativeScale() < primary.NativeScale() {
				base = true
				break
			}
		}
	}

	covered := e.primaryCovers.Load()
	drawn, full := false, false
	for _, m := range set.maps {
		if base && !drawn && m.NativeScale() < primary.NativeScale() {
			covered = drawSrc(primary)
			drawn = true
		}
		if drawSrc(m) {
			full = true
		}
	}
	if !base && !full {
		covered = drawSrc(primary)
	}
	e.primaryCovers.Store(covered)
	return covered, firstErr
}

// Close deactivates every map the engine activated.
func (e *Engine) Close() {
	e.ClearCovering()
	if c := e.current.Swap(nil); c != nil {
		c.src.Deactivate()
	}
}
