package mapsource

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"github.com/beetlebugorg/chartview/pkg/viewport"
)

var (
	red  = color.RGBA{0xff, 0, 0, 0xff}
	blue = color.RGBA{0, 0, 0xff, 0xff}
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

// testCalibration covers lon 10..10.512, lat 49.488..50 with a 512 px image.
func testCalibration() *Calibration {
	return &Calibration{Width: 512, Height: 512, A: 0.001, C: 10, E: -0.001, F: 50}
}

func testRasterDef() *Definition {
	cal := testCalibration()
	return &Definition{
		ID:          "raster-1",
		Title:       "Test raster",
		Kind:        KindRaster,
		Bounds:      cal.Bounds(),
		Calibration: cal,
	}
}

func pyramidOpener(img image.Image) RasterOpener {
	return RasterOpenerFunc(func(context.Context, *Definition) (TileReader, error) {
		return NewImagePyramid(img, 256, 4), nil
	})
}

func failingOpener(err error) RasterOpener {
	return RasterOpenerFunc(func(context.Context, *Definition) (TileReader, error) {
		return nil, err
	})
}

func testViewport(lat, lon float64, w, h int) viewport.Viewport {
	vp := viewport.Viewport{}.WithScreen(w, h, false, 0)
	vp.Center = orb.Point{lon, lat}
	return vp
}

func canvas(vp viewport.Viewport) *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, vp.CanvasWidth, vp.CanvasHeight))
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// fakeFetcher serves one PNG for every tile and counts requests.
type fakeFetcher struct {
	mu    sync.Mutex
	data  []byte
	err   error
	calls map[maptile.Tile]int
}

func (f *fakeFetcher) FetchTile(_ context.Context, _ *Provider, t maptile.Tile) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[maptile.Tile]int)
	}
	f.calls[t]++
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

func (f *fakeFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

var errBoom = errors.New("boom")
