package mapsource

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOnlineDef() *Definition {
	return &Definition{
		ID:    "osm",
		Title: "OpenStreetMap",
		Kind:  KindOnline,
		Provider: &Provider{
			Name:         "osm",
			URL:          "https://tile.example.org/{z}/{x}/{y}.png",
			MinZoom:      2,
			MaxZoom:      10,
			ExpirationMs: 60000,
		},
	}
}

func TestOnlineZoomLevels(t *testing.T) {
	o, err := NewOnline(testOnlineDef(), OnlineOptions{Fetcher: &fakeFetcher{}})
	require.NoError(t, err)

	assert.Equal(t, 10, o.Level())
	// Native scale is the level 10 resolution at the equator.
	assert.InDelta(t, 152.87, o.NativeScale(), 0.01)

	o.ZoomTo(o.NativeScale() * 8)
	assert.Equal(t, 7, o.Level())

	o.ZoomTo(o.NativeScale() * 10000)
	assert.Equal(t, 2, o.Level(), "clamped to provider minimum")

	x, y := o.GeoToPixel(0, 0)
	assert.InDelta(t, 512, x, 1e-9)
	assert.InDelta(t, 512, y, 1e-9)
	lat, lon := o.PixelToGeo(x, y)
	assert.InDelta(t, 0, lat, 1e-9)
	assert.InDelta(t, 0, lon, 1e-9)
}

func TestOnlineRequiresFetcher(t *testing.T) {
	o, err := NewOnline(testOnlineDef(), OnlineOptions{})
	require.NoError(t, err)
	var ae *ActivationError
	assert.ErrorAs(t, o.Activate(context.Background(), 100, false), &ae)
}

func TestOnlineFetchesMissingTiles(t *testing.T) {
	fetcher := &fakeFetcher{data: encodePNG(t, solid(TileSize, TileSize, blue))}
	var landed atomic.Int32
	o, err := NewOnline(testOnlineDef(), OnlineOptions{
		Fetcher: fetcher,
		OnTile:  func(Source) { landed.Add(1) },
	})
	require.NoError(t, err)
	require.NoError(t, o.Activate(context.Background(), o.NativeScale()*64, false))
	defer o.Deactivate()
	require.Equal(t, 4, o.Level())

	vp := testViewport(10, 10, 200, 200)

	covered, err := o.Draw(vp, DrawOptions{}, canvas(vp))
	require.NoError(t, err)
	assert.False(t, covered, "nothing cached yet")

	assert.Eventually(t, func() bool { return landed.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		dst := canvas(vp)
		ok, err := o.Draw(vp, DrawOptions{}, dst)
		return err == nil && ok && dst.RGBAAt(100, 100) == blue
	}, 2*time.Second, 10*time.Millisecond)
}

func TestOnlineExpiredTileIsRefetched(t *testing.T) {
	fetcher := &fakeFetcher{data: encodePNG(t, solid(TileSize, TileSize, blue))}
	cache := NewMemoryTileCache(1 << 20)
	now := time.Now()
	o, err := NewOnline(testOnlineDef(), OnlineOptions{
		Fetcher: fetcher,
		Cache:   cache,
		Now:     func() time.Time { return now },
	})
	require.NoError(t, err)
	require.NoError(t, o.Activate(context.Background(), o.NativeScale()*128, false))
	defer o.Deactivate()
	require.Equal(t, 3, o.Level())

	// Seed every tile of level 3 as two minutes old.
	old := CachedTile{Data: fetcher.data, FetchedAt: now.Add(-2 * time.Minute)}
	for x := uint32(0); x < 8; x++ {
		for y := uint32(0); y < 8; y++ {
			require.NoError(t, cache.PutTile(context.Background(), TileKey(o.Provider(), maptile.New(x, y, 3)), old))
		}
	}

	vp := testViewport(0, 0, 100, 100)
	dst := canvas(vp)
	covered, err := o.Draw(vp, DrawOptions{}, dst)
	require.NoError(t, err)
	assert.True(t, covered, "stale tiles are still drawn")
	assert.Equal(t, blue, dst.RGBAAt(50, 50))

	assert.Eventually(t, func() bool { return fetcher.total() > 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestOnlineExpiredDecodedTileIsRefetched(t *testing.T) {
	fetcher := &fakeFetcher{data: encodePNG(t, solid(TileSize, TileSize, blue))}
	var clock atomic.Int64
	clock.Store(time.Now().UnixNano())
	o, err := NewOnline(testOnlineDef(), OnlineOptions{
		Fetcher: fetcher,
		Cache:   NewMemoryTileCache(1 << 20),
		Now:     func() time.Time { return time.Unix(0, clock.Load()) },
	})
	require.NoError(t, err)
	require.NoError(t, o.Activate(context.Background(), o.NativeScale()*128, false))
	defer o.Deactivate()

	vp := testViewport(0, 0, 100, 100)
	dst := canvas(vp)

	// Draw until every visible tile was fetched and decoded.
	require.Eventually(t, func() bool {
		covered, err := o.Draw(vp, DrawOptions{}, dst)
		return err == nil && covered
	}, 2*time.Second, 10*time.Millisecond)
	require.Positive(t, o.decoded.Len())
	fetched := fetcher.total()

	// Fresh decoded tiles cause no fetches.
	for i := 0; i < 3; i++ {
		_, err = o.Draw(vp, DrawOptions{}, dst)
		require.NoError(t, err)
	}
	assert.Equal(t, fetched, fetcher.total())

	// Past the expiration age the decoded copy is still drawn but refetched.
	clock.Add(int64(10 * time.Minute))
	covered, err := o.Draw(vp, DrawOptions{}, dst)
	require.NoError(t, err)
	assert.True(t, covered)
	assert.Equal(t, blue, dst.RGBAAt(50, 50))
	assert.Eventually(t, func() bool { return fetcher.total() > fetched }, 2*time.Second, 10*time.Millisecond)
}

func TestOnlineParentPlaceholder(t *testing.T) {
	fetcher := &fakeFetcher{err: errBoom}
	cache := NewMemoryTileCache(1 << 20)
	o, err := NewOnline(testOnlineDef(), OnlineOptions{Fetcher: fetcher, Cache: cache})
	require.NoError(t, err)
	require.NoError(t, o.Activate(context.Background(), o.NativeScale()*64, false))
	defer o.Deactivate()

	// Only the level 3 tile containing the view exists.
	parent := maptile.At(orb.Point{10, 10}, 3)
	require.NoError(t, cache.PutTile(context.Background(), TileKey(o.Provider(), parent),
		CachedTile{Data: encodePNG(t, solid(TileSize, TileSize, red)), FetchedAt: time.Now()}))

	vp := testViewport(10, 10, 20, 20)
	dst := canvas(vp)
	covered, err := o.Draw(vp, DrawOptions{}, dst)
	require.NoError(t, err)
	assert.False(t, covered)
	assert.Equal(t, red, dst.RGBAAt(10, 10))
}

func TestCachedTileExpired(t *testing.T) {
	now := time.Now()
	tile := CachedTile{FetchedAt: now.Add(-time.Minute)}
	assert.True(t, tile.Expired(time.Second, now))
	assert.False(t, tile.Expired(time.Hour, now))
	assert.False(t, tile.Expired(0, now), "zero age never expires")
}
