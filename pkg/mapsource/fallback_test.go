package mapsource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallback(t *testing.T) {
	f := NewFallback(0)
	assert.Equal(t, FallbackID, f.ID())
	assert.Equal(t, KindFallback, f.Kind())
	assert.Equal(t, 20000.0, f.NativeScale())

	for _, pt := range [][2]float64{{0, 0}, {89, 179}, {-89, -179}} {
		assert.True(t, f.Covers(pt[0], pt[1]))
	}

	require.NoError(t, f.Activate(context.Background(), 5000, false))
	assert.True(t, f.Active())
	assert.InDelta(t, 5000, f.Scale(), 1e-9)

	x, y := f.GeoToPixel(45, -90)
	lat, lon := f.PixelToGeo(x, y)
	assert.InDelta(t, 45, lat, 1e-9)
	assert.InDelta(t, -90, lon, 1e-9)

	vp := testViewport(0, 0, 200, 200)
	dst := canvas(vp)
	covered, err := f.Draw(vp, DrawOptions{}, dst)
	require.NoError(t, err)
	assert.True(t, covered)
	assert.Equal(t, fallbackBackground, dst.RGBAAt(10, 10))
	assert.NotEqual(t, fallbackBackground, dst.RGBAAt(100, 10), "prime meridian")

	f.Deactivate()
	f.Deactivate()
	assert.False(t, f.Active())
}

func TestGraticuleStep(t *testing.T) {
	assert.Equal(t, 0.01, graticuleStep(10000, 80))
	assert.Equal(t, 1.0, graticuleStep(100, 80))
	assert.Equal(t, 30.0, graticuleStep(0.1, 80))
}
