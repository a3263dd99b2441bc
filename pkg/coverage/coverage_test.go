package coverage

import (
	"context"
	"errors"
	"image"
	"image/draw"
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beetlebugorg/chartview/pkg/catalog"
	"github.com/beetlebugorg/chartview/pkg/mapsource"
	"github.com/beetlebugorg/chartview/pkg/viewport"
)

// metresPerDegree keeps stub projections simple.
const metresPerDegree = 100000

// events records source calls in order across stubs.
type events struct {
	mu  sync.Mutex
	log []string
}

func (e *events) add(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = append(e.log, s)
}

func (e *events) take() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.log
	e.log = nil
	return out
}

// stubSource is a flat-projection source with scripted activation and draw
// results.
type stubSource struct {
	def    *mapsource.Definition
	ev     *events
	zoom   float64
	active bool

	activateErr error
	covers      bool
	activations int
}

func newStub(ev *events, id string, scale float64, b orb.Bound) *stubSource {
	return &stubSource{
		def:  &mapsource.Definition{ID: id, Title: id, Kind: mapsource.KindRaster, Bounds: b, Scale: scale},
		ev:   ev,
		zoom: 1,
	}
}

func (s *stubSource) Definition() *mapsource.Definition { return s.def }
func (s *stubSource) ID() string                        { return s.def.ID }
func (s *stubSource) Kind() mapsource.Kind              { return s.def.Kind }

func (s *stubSource) GeoToPixel(lat, lon float64) (float64, float64) {
	k := metresPerDegree / s.Scale()
	return lon * k, -lat * k
}

func (s *stubSource) PixelToGeo(x, y float64) (float64, float64) {
	k := metresPerDegree / s.Scale()
	return -y / k, x / k
}

func (s *stubSource) Covers(lat, lon float64) bool { return s.def.Covers(lat, lon) }

func (s *stubSource) Scale() float64       { return s.def.Scale / s.zoom }
func (s *stubSource) NativeScale() float64 { return s.def.Scale }
func (s *stubSource) Zoom() float64        { return s.zoom }
func (s *stubSource) SetZoom(z float64)    { s.zoom = z }
func (s *stubSource) NextZoom() float64    { return s.zoom * 2 }
func (s *stubSource) PrevZoom() float64    { return s.zoom / 2 }
func (s *stubSource) ZoomBy(f float64)     { s.zoom *= f }
func (s *stubSource) ZoomTo(scale float64) { s.zoom = s.def.Scale / scale }

func (s *stubSource) CoverageRatio(o float64) float64 { return o / s.def.Scale }

func (s *stubSource) Activate(_ context.Context, scale float64, _ bool) error {
	s.ev.add("activate " + s.ID())
	if s.activateErr != nil {
		return &mapsource.ActivationError{MapID: s.ID(), Err: s.activateErr}
	}
	s.activations++
	s.active = true
	s.ZoomTo(scale)
	return nil
}

func (s *stubSource) Deactivate() {
	if s.active {
		s.ev.add("deactivate " + s.ID())
	}
	s.active = false
}

func (s *stubSource) Active() bool { return s.active }

func (s *stubSource) Draw(viewport.Viewport, mapsource.DrawOptions, draw.Image) (bool, error) {
	s.ev.add("draw " + s.ID())
	if !s.active {
		return false, mapsource.ErrNotActive
	}
	return s.covers, nil
}

type recordingListener struct {
	changed []string
	failed  []string
}

func (l *recordingListener) MapChanged(src mapsource.Source, _ bool) {
	l.changed = append(l.changed, src.ID())
}

func (l *recordingListener) ActivationFailed(def *mapsource.Definition, _ error) {
	l.failed = append(l.failed, def.ID)
}

func box(minLon, minLat, maxLon, maxLat float64) orb.Bound {
	return orb.Bound{Min: orb.Point{minLon, minLat}, Max: orb.Point{maxLon, maxLat}}
}

type fixture struct {
	ev       *events
	cat      *catalog.Catalog
	listener *recordingListener
	engine   *Engine
}

func newFixture(srcs ...*stubSource) *fixture {
	f := &fixture{cat: catalog.New(nil), listener: &recordingListener{}}
	for _, s := range srcs {
		f.cat.Add(s)
	}
	opts := DefaultOptions()
	opts.Listener = f.listener
	f.engine = New(f.cat, opts)
	return f
}

func at(lat, lon float64) Request { return Request{Center: orb.Point{lon, lat}} }

func TestSelectInitialUsesNativeScale(t *testing.T) {
	ev := &events{}
	a := newStub(ev, "a", 10, box(0, 0, 1, 1))
	f := newFixture(a)

	sel, err := f.engine.Select(context.Background(), at(0.5, 0.5))
	require.NoError(t, err)
	assert.True(t, sel.Changed)
	assert.Equal(t, "a", sel.Map.ID())
	assert.Equal(t, 10.0, a.Scale())
	assert.Equal(t, []string{"a"}, f.listener.changed)
}

func TestSelectScaleTransfer(t *testing.T) {
	ev := &events{}
	a := newStub(ev, "a", 10, box(0, 0, 1, 1))
	near := newStub(ev, "near", 20, box(1, 0, 2, 1))
	coarse := newStub(ev, "coarse", 2000, box(2, 0, 3, 1))
	f := newFixture(a, near, coarse)
	ctx := context.Background()

	_, err := f.engine.Select(ctx, at(0.5, 0.5))
	require.NoError(t, err)

	sel, err := f.engine.Select(ctx, at(0.5, 1.5))
	require.NoError(t, err)
	assert.Equal(t, "near", sel.Map.ID())
	assert.Equal(t, 10.0, near.Scale(), "ratio 0.5 keeps the previous scale")

	sel, err = f.engine.Select(ctx, at(0.5, 2.5))
	require.NoError(t, err)
	assert.Equal(t, "coarse", sel.Map.ID())
	assert.Equal(t, 2000.0, coarse.Scale(), "ratio 0.005 adopts the native scale")
}

func TestSelectKeepsCoveringMap(t *testing.T) {
	ev := &events{}
	a := newStub(ev, "a", 100, box(0, 0, 10, 10))
	b := newStub(ev, "b", 10, box(0, 0, 1, 1))
	f := newFixture(a, b)
	ctx := context.Background()

	_, err := f.engine.SelectMap(ctx, "a")
	require.NoError(t, err)

	sel, err := f.engine.Select(ctx, at(0.5, 0.5))
	require.NoError(t, err)
	assert.False(t, sel.Changed)
	assert.Equal(t, "a", sel.Map.ID())

	// Zoomed in to the detail map's scale, the best map is the detail map.
	a.ZoomTo(10)
	req := at(0.5, 0.5)
	req.FindBest = true
	sel, err = f.engine.Select(ctx, req)
	require.NoError(t, err)
	assert.True(t, sel.Changed)
	assert.Equal(t, "b", sel.Map.ID())
}

func TestSwitchActivatesBeforeDeactivating(t *testing.T) {
	ev := &events{}
	a := newStub(ev, "a", 10, box(0, 0, 1, 1))
	b := newStub(ev, "b", 10, box(1, 0, 2, 1))
	f := newFixture(a, b)
	ctx := context.Background()

	_, err := f.engine.Select(ctx, at(0.5, 0.5))
	require.NoError(t, err)
	ev.take()

	sel, err := f.engine.Select(ctx, at(0.5, 1.5))
	require.NoError(t, err)
	assert.Equal(t, "a", sel.Previous.ID())
	assert.Equal(t, []string{"activate b", "deactivate a"}, ev.take())
	assert.False(t, a.Active())
}

func TestActivationFailureKeepsCurrentMap(t *testing.T) {
	ev := &events{}
	a := newStub(ev, "a", 10, box(0, 0, 1, 1))
	b := newStub(ev, "b", 10, box(1, 0, 2, 1))
	b.activateErr = mapsource.ErrResourceExhausted
	f := newFixture(a, b)
	ctx := context.Background()

	_, err := f.engine.Select(ctx, at(0.5, 0.5))
	require.NoError(t, err)

	sel, err := f.engine.Select(ctx, at(0.5, 1.5))
	var ae *mapsource.ActivationError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "a", sel.Map.ID())
	assert.Equal(t, "a", f.engine.Current().ID())
	assert.True(t, a.Active())
	assert.Equal(t, []string{"b"}, f.listener.failed, "exactly one notification")
}

func TestFallbackWhenNothingCovers(t *testing.T) {
	ev := &events{}
	a := newStub(ev, "a", 10, box(0, 0, 1, 1))
	f := newFixture(a)

	sel, err := f.engine.Select(context.Background(), at(40, 40))
	require.NoError(t, err)
	assert.Equal(t, mapsource.FallbackID, sel.Map.ID())
	assert.True(t, sel.Map.Active())
}

func TestFallbackWhenFirstActivationFails(t *testing.T) {
	ev := &events{}
	a := newStub(ev, "a", 10, box(0, 0, 1, 1))
	a.activateErr = errors.New("corrupt tiles")
	f := newFixture(a)

	sel, err := f.engine.Select(context.Background(), at(0.5, 0.5))
	assert.Error(t, err)
	require.NotNil(t, sel.Map)
	assert.Equal(t, mapsource.FallbackID, f.engine.Current().ID(), "never without a current map")
	assert.Equal(t, []string{"a"}, f.listener.failed)
}

func TestNextPrevMap(t *testing.T) {
	ev := &events{}
	fine := newStub(ev, "fine", 5, box(0, 0, 1, 1))
	mid := newStub(ev, "mid", 50, box(0, 0, 1, 1))
	coarse := newStub(ev, "coarse", 500, box(0, 0, 1, 1))
	f := newFixture(fine, mid, coarse)
	ctx := context.Background()
	center := orb.Point{0.5, 0.5}

	_, err := f.engine.SelectMap(ctx, "mid")
	require.NoError(t, err)

	sel, err := f.engine.NextMap(ctx, center)
	require.NoError(t, err)
	assert.Equal(t, "fine", sel.Map.ID())

	sel, err = f.engine.NextMap(ctx, center)
	require.NoError(t, err)
	assert.False(t, sel.Changed, "already the finest")

	sel, err = f.engine.PrevMap(ctx, center)
	require.NoError(t, err)
	assert.Equal(t, "mid", sel.Map.ID())
	sel, err = f.engine.PrevMap(ctx, center)
	require.NoError(t, err)
	assert.Equal(t, "coarse", sel.Map.ID())
	sel, err = f.engine.PrevMap(ctx, center)
	require.NoError(t, err)
	assert.Equal(t, "fine", sel.Map.ID(), "wraps around")

	_, err = f.engine.SelectMap(ctx, "missing")
	assert.Error(t, err)
}

func TestPrevMapFromElsewhere(t *testing.T) {
	ev := &events{}
	fine := newStub(ev, "fine", 5, box(0, 0, 1, 1))
	coarse := newStub(ev, "coarse", 500, box(0, 0, 1, 1))
	far := newStub(ev, "far", 50, box(5, 5, 6, 6))
	center := orb.Point{0.5, 0.5}
	ctx := context.Background()

	// Nothing current yet: start from the coarsest.
	f := newFixture(fine, coarse, far)
	sel, err := f.engine.PrevMap(ctx, center)
	require.NoError(t, err)
	assert.Equal(t, "coarse", sel.Map.ID())

	// A current map away from center restarts at the finest.
	_, err = f.engine.SelectMap(ctx, "far")
	require.NoError(t, err)
	sel, err = f.engine.PrevMap(ctx, center)
	require.NoError(t, err)
	assert.Equal(t, "fine", sel.Map.ID())
}

func testViewport(lat, lon float64) viewport.Viewport {
	vp := viewport.Viewport{}.WithScreen(100, 100, false, 0)
	vp.Center = orb.Point{lon, lat}
	return vp
}

func TestUpdateCovering(t *testing.T) {
	ev := &events{}
	a := newStub(ev, "a", 1000, box(0, 0, 1, 1))
	east := newStub(ev, "east", 1000, box(1, 0, 2, 1))
	f := newFixture(a, east)
	ctx := context.Background()

	_, err := f.engine.Select(ctx, at(0.5, 0.5))
	require.NoError(t, err)

	// 1 degree is 100 px; a view centred on the seam needs the eastern map.
	vp := testViewport(0.5, 1)
	maps, err := f.engine.UpdateCovering(ctx, vp, false)
	require.NoError(t, err)
	require.Len(t, maps, 1)
	assert.Equal(t, "east", maps[0].ID())
	assert.True(t, east.Active())
	assert.Equal(t, a.Scale(), east.Scale())

	_, err = f.engine.UpdateCovering(ctx, vp, false)
	require.NoError(t, err)
	assert.Equal(t, 1, east.activations, "unchanged inputs reuse the set")

	maps, err = f.engine.UpdateCovering(ctx, testViewport(0.5, 0.5), false)
	require.NoError(t, err)
	assert.Empty(t, maps)
	assert.False(t, east.Active(), "no longer needed")
	assert.True(t, a.Active())
}

func TestUpdateCoveringDropsFailingMaps(t *testing.T) {
	ev := &events{}
	a := newStub(ev, "a", 1000, box(0, 0, 1, 1))
	east := newStub(ev, "east", 1000, box(1, 0, 2, 1))
	north := newStub(ev, "north", 1000, box(0, 1, 1, 2))
	north.activateErr = errors.New("unreadable")
	f := newFixture(a, east, north)
	ctx := context.Background()

	_, err := f.engine.Select(ctx, at(0.5, 0.5))
	require.NoError(t, err)

	maps, err := f.engine.UpdateCovering(ctx, testViewport(1, 1), false)
	var ce *CoverageError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "north", ce.MapID)
	require.Len(t, maps, 1)
	assert.Equal(t, "east", maps[0].ID())
}

func TestComposeOrder(t *testing.T) {
	ev := &events{}
	a := newStub(ev, "a", 1000, box(0, 0, 1, 1))
	east := newStub(ev, "east", 1000, box(1, 0, 2, 1))
	f := newFixture(a, east)
	ctx := context.Background()
	dst := image.NewRGBA(image.Rect(0, 0, 100, 100))

	_, err := f.engine.Select(ctx, at(0.5, 0.5))
	require.NoError(t, err)
	vp := testViewport(0.5, 1)
	_, err = f.engine.UpdateCovering(ctx, vp, false)
	require.NoError(t, err)
	ev.take()

	// No covering map is complete: the primary is drawn on top.
	_, err = f.engine.Compose(vp, dst)
	require.NoError(t, err)
	assert.Equal(t, []string{"draw east", "draw a"}, ev.take())

	// A complete covering map makes the primary unnecessary.
	east.covers = true
	_, err = f.engine.Compose(vp, dst)
	require.NoError(t, err)
	assert.Equal(t, []string{"draw east"}, ev.take())
}

func TestComposePreferBest(t *testing.T) {
	ev := &events{}
	a := newStub(ev, "a", 1000, box(0, 0, 1.2, 1))
	a.covers = true
	wide := newStub(ev, "wide", 5000, box(-10, -10, 10, 10))
	detail := newStub(ev, "detail", 100, box(0.8, 0.2, 1.1, 0.8))
	f := newFixture(a, wide, detail)
	ctx := context.Background()
	dst := image.NewRGBA(image.Rect(0, 0, 100, 100))

	_, err := f.engine.SelectMap(ctx, "a")
	require.NoError(t, err)
	vp := testViewport(0.5, 1)

	// The eastern gap needs the wide map; the finer map claims any point.
	maps, err := f.engine.UpdateCovering(ctx, vp, true)
	require.NoError(t, err)
	require.Len(t, maps, 2)
	assert.Equal(t, "wide", maps[0].ID())
	assert.Equal(t, "detail", maps[1].ID())
	ev.take()

	covered, err := f.engine.Compose(vp, dst)
	require.NoError(t, err)
	assert.True(t, covered)
	assert.Equal(t, []string{"draw wide", "draw a", "draw detail"}, ev.take(),
		"coarser maps stay under the primary, finer maps go over it")

	// A primary that covered the canvas needs nothing else without prefer-best.
	maps, err = f.engine.UpdateCovering(ctx, vp, false)
	require.NoError(t, err)
	assert.Empty(t, maps)
	ev.take()

	_, err = f.engine.Compose(vp, dst)
	require.NoError(t, err)
	assert.Equal(t, []string{"draw a"}, ev.take())
}

func TestClose(t *testing.T) {
	ev := &events{}
	a := newStub(ev, "a", 1000, box(0, 0, 1, 1))
	east := newStub(ev, "east", 1000, box(1, 0, 2, 1))
	f := newFixture(a, east)
	ctx := context.Background()

	_, err := f.engine.Select(ctx, at(0.5, 0.5))
	require.NoError(t, err)
	_, err = f.engine.UpdateCovering(ctx, testViewport(0.5, 1), false)
	require.NoError(t, err)

	f.engine.Close()
	assert.False(t, a.Active())
	assert.False(t, east.Active())
	assert.Nil(t, f.engine.Current())
}
