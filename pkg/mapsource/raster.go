package mapsource

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/beetlebugorg/chartview/internal/lru"
	"github.com/beetlebugorg/chartview/internal/metrics"
	"github.com/beetlebugorg/chartview/pkg/viewport"
)

// TileReader gives access to the pixels of an activated raster map stored as
// a pyramid of square tiles. Level 0 is full resolution and level k is
// downsampled by 2^k.
type TileReader interface {
	TileSize() int
	Levels() int
	ReadTile(ctx context.Context, level, col, row int) (image.Image, error)
	Close() error
}

// RasterOpener opens the pixel store of a raster definition.
type RasterOpener interface {
	OpenRaster(ctx context.Context, def *Definition) (TileReader, error)
}

// RasterOpenerFunc adapts a function to RasterOpener.
type RasterOpenerFunc func(ctx context.Context, def *Definition) (TileReader, error)

func (f RasterOpenerFunc) OpenRaster(ctx context.Context, def *Definition) (TileReader, error) {
	return f(ctx, def)
}

// RasterOptions tunes a raster source.
type RasterOptions struct {
	// CacheBytes bounds the decoded tile cache. Default 32 MiB.
	CacheBytes int64

	// Interpolator resamples tiles. Default ApproxBiLinear.
	Interpolator xdraw.Interpolator
}

// DefaultRasterOptions returns raster options with sensible defaults.
func DefaultRasterOptions() RasterOptions {
	return RasterOptions{
		CacheBytes:   32 << 20,
		Interpolator: xdraw.ApproxBiLinear,
	}
}

type tileKey struct {
	level, col, row int
}

// Raster is a calibrated multi-zoom raster map.
//
// Its pixel space is the full-resolution image scaled by the current zoom.
// Zoom snaps to powers of two between 1/32 and 4 unless the definition says
// otherwise; the pyramid level nearest above the requested zoom is read and
// resampled.
type Raster struct {
	state

	cal    *Calibration
	opener RasterOpener
	opts   RasterOptions

	ctx    context.Context
	reader TileReader
	tiles  *lru.Cache[tileKey, image.Image]
}

// NewRaster creates an inactive raster source. The definition must carry a
// valid calibration.
func NewRaster(def *Definition, opener RasterOpener, opts RasterOptions) (*Raster, error) {
	if def.Calibration == nil {
		return nil, &ParseError{Path: def.Path, Err: errors.New("missing calibration")}
	}
	if err := def.Calibration.Validate(); err != nil {
		return nil, &ParseError{Path: def.Path, Err: err}
	}
	defaults := DefaultRasterOptions()
	if opts.CacheBytes <= 0 {
		opts.CacheBytes = defaults.CacheBytes
	}
	if opts.Interpolator == nil {
		opts.Interpolator = defaults.Interpolator
	}

	native := def.Scale
	if native <= 0 {
		native = def.Calibration.NativeScale()
	}
	r := &Raster{
		cal:    def.Calibration,
		opener: opener,
		opts:   opts,
		tiles: lru.New[tileKey, image.Image](opts.CacheBytes, func(img image.Image) int64 {
			return imageBytes(img.Bounds())
		}),
	}
	r.tiles.OnEvict(func(tileKey, image.Image) {
		metrics.DecodedEvictionsTotal.WithLabelValues("raster").Inc()
	})
	r.init(def, native, 1.0/32, 4, true)
	return r, nil
}

func (r *Raster) GeoToPixel(lat, lon float64) (float64, float64) {
	z := r.Zoom()
	x, y := r.cal.GeoToPixel(lat, lon)
	return x * z, y * z
}

func (r *Raster) PixelToGeo(x, y float64) (float64, float64) {
	z := r.Zoom()
	return r.cal.PixelToGeo(x/z, y/z)
}

func (r *Raster) Covers(lat, lon float64) bool {
	return r.def.Covers(lat, lon)
}

func (r *Raster) Activate(ctx context.Context, scale float64, force bool) error {
	if r.Active() && !force {
		r.ZoomTo(scale)
		return nil
	}

	reader, err := r.opener.OpenRaster(ctx, r.def)
	if err != nil {
		return activationError(r.def, err)
	}
	ts := reader.TileSize()
	if reader.Levels() < 1 || ts <= 0 {
		reader.Close()
		return activationError(r.def, errors.New("empty tile pyramid"))
	}
	if need := int64(ts) * int64(ts) * 4; need > r.opts.CacheBytes {
		reader.Close()
		return activationError(r.def, fmt.Errorf("tile of %d bytes exceeds cache budget: %w", need, ErrResourceExhausted))
	}

	r.mu.Lock()
	old := r.reader
	r.reader = reader
	r.ctx = ctx
	r.active = true
	r.mu.Unlock()

	r.tiles.Clear()
	if old != nil {
		old.Close()
	}
	r.ZoomTo(scale)
	return nil
}

func (r *Raster) Deactivate() {
	r.mu.Lock()
	reader := r.reader
	r.reader = nil
	r.active = false
	r.mu.Unlock()

	if reader != nil {
		reader.Close()
	}
	r.tiles.Clear()
}

// pyramidLevel picks the coarsest level that still has at least as many
// pixels as the zoom needs.
func pyramidLevel(zoom float64, levels int) int {
	if zoom >= 1 || levels <= 1 {
		return 0
	}
	l := int(math.Floor(math.Log2(1 / zoom)))
	if l > levels-1 {
		l = levels - 1
	}
	return l
}

func (r *Raster) Draw(vp viewport.Viewport, opts DrawOptions, dst draw.Image) (bool, error) {
	r.mu.RLock()
	reader, ctx, active, z := r.reader, r.ctx, r.active, r.zoom
	r.mu.RUnlock()
	if !active {
		return false, ErrNotActive
	}

	cx, cy := r.cal.GeoToPixel(vp.Center.Lat(), vp.Center.Lon())
	p := place(vp, cx*z, cy*z)
	proj := func(lat, lon float64) (float64, float64) {
		x, y := r.cal.GeoToPixel(lat, lon)
		return x*z - p.origin.X, y*z - p.origin.Y
	}
	toGeo := func(x, y float64) (float64, float64) { return r.cal.PixelToGeo(x/z, y/z) }

	level := pyramidLevel(z, reader.Levels())
	ls := math.Exp2(-float64(level)) // level pixels per full-resolution pixel
	rz := z / ls                     // canvas pixels per level pixel
	ts := reader.TileSize()

	cols := int(math.Ceil(float64(r.cal.Width) * ls / float64(ts)))
	rows := int(math.Ceil(float64(r.cal.Height) * ls / float64(ts)))
	c0 := clampInt(int(math.Floor(p.origin.X/rz/float64(ts))), 0, cols-1)
	c1 := clampInt(int(math.Floor((p.origin.X+float64(p.w))/rz/float64(ts))), 0, cols-1)
	r0 := clampInt(int(math.Floor(p.origin.Y/rz/float64(ts))), 0, rows-1)
	r1 := clampInt(int(math.Floor((p.origin.Y+float64(p.h))/rz/float64(ts))), 0, rows-1)

	var xopts *xdraw.Options
	if opts.CropToBorder {
		xopts = &xdraw.Options{DstMask: regionMask(outline(r.def), proj, p.w, p.h)}
	}

	complete := true
	for row := r0; row <= r1; row++ {
		for col := c0; col <= c1; col++ {
			key := tileKey{level, col, row}
			img, err := r.tiles.Get(key, func() (image.Image, error) {
				return reader.ReadTile(ctx, level, col, row)
			})
			if err != nil {
				if errors.Is(err, ErrResourceExhausted) {
					return false, err
				}
				complete = false
				continue
			}
			b := img.Bounds()
			tx := float64(col*ts)*rz - p.origin.X - float64(b.Min.X)*rz
			ty := float64(row*ts)*rz - p.origin.Y - float64(b.Min.Y)*rz
			m := f64.Aff3{rz, 0, tx, 0, rz, ty}
			r.opts.Interpolator.Transform(dst, m, img, b, xdraw.Over, xopts)
		}
	}

	decorate(dst, r.def, proj, opts)
	return complete && coversCanvas(p, toGeo, r.Covers), nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
