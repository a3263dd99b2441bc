package mapsource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	log "github.com/sirupsen/logrus"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/beetlebugorg/chartview/internal/lru"
	"github.com/beetlebugorg/chartview/internal/metrics"
	"github.com/beetlebugorg/chartview/pkg/viewport"
)

// Provider describes a slippy-map tile service.
type Provider struct {
	Name        string `json:"name" mapstructure:"name"`
	Title       string `json:"title" mapstructure:"title"`
	URL         string `json:"url" mapstructure:"url"`
	MinZoom     int    `json:"min_zoom" mapstructure:"min_zoom"`
	MaxZoom     int    `json:"max_zoom" mapstructure:"max_zoom"`
	Attribution string `json:"attribution,omitempty" mapstructure:"attribution"`

	// ExpirationMs is the age in milliseconds after which a cached tile is
	// fetched again. Zero keeps tiles forever.
	ExpirationMs int64 `json:"expiration_ms,omitempty" mapstructure:"expiration_ms"`
}

// Expiration returns the tile expiration age.
func (p *Provider) Expiration() time.Duration {
	return time.Duration(p.ExpirationMs) * time.Millisecond
}

// TileFetcher retrieves raw tile bytes from a provider.
type TileFetcher interface {
	FetchTile(ctx context.Context, p *Provider, t maptile.Tile) ([]byte, error)
}

// CachedTile is an encoded tile and the time it was fetched.
type CachedTile struct {
	Data      []byte
	FetchedAt time.Time
}

// Expired reports whether the tile is older than maxAge at now. A zero
// maxAge never expires.
func (t CachedTile) Expired(maxAge time.Duration, now time.Time) bool {
	return maxAge > 0 && now.Sub(t.FetchedAt) > maxAge
}

// TileCache stores encoded tiles by key.
type TileCache interface {
	GetTile(ctx context.Context, key string) (CachedTile, bool, error)
	PutTile(ctx context.Context, key string, t CachedTile) error
}

// TileKey returns the cache key of a provider tile.
func TileKey(p *Provider, t maptile.Tile) string {
	return fmt.Sprintf("%s/%d/%d/%d", p.Name, t.Z, t.X, t.Y)
}

// OnlineOptions tunes an online source.
type OnlineOptions struct {
	Fetcher TileFetcher
	Cache   TileCache // default: in-memory, 16 MiB

	Workers      int   // concurrent fetches, default 4
	QueueSize    int   // pending fetches, default 256
	DecodedBytes int64 // decoded tile budget, default 32 MiB

	// OnTile is called from a fetch worker after a new tile was stored.
	OnTile func(src Source)

	Logger log.FieldLogger
	Now    func() time.Time
}

// decodedTile is a decoded tile and the fetch time of its bytes.
type decodedTile struct {
	img       image.Image
	fetchedAt time.Time
}

// parentLevels is how many coarser levels are searched for a placeholder
// while a tile loads.
const parentLevels = 3

// Online is a slippy-map tile source.
//
// Its pixel space is the Web Mercator world at the current tile level. Zoom
// factor 1 is the provider's maximum level; every halving of the zoom goes
// one level up.
type Online struct {
	state

	provider *Provider
	opts     OnlineOptions
	log      log.FieldLogger
	decoded  *lru.Cache[string, decodedTile]

	qmu      sync.Mutex
	queue    chan maptile.Tile
	inflight map[maptile.Tile]bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewOnline creates an inactive online source for def.Provider.
func NewOnline(def *Definition, opts OnlineOptions) (*Online, error) {
	p := def.Provider
	if p == nil {
		return nil, &ParseError{Path: def.ID, Err: errors.New("missing provider")}
	}
	if p.MaxZoom < p.MinZoom || p.MaxZoom > 24 {
		return nil, &ParseError{Path: def.ID, Err: fmt.Errorf("bad zoom range %d..%d", p.MinZoom, p.MaxZoom)}
	}
	if def.Bounds.IsZero() {
		def.Bounds = orb.Bound{Min: orb.Point{-180, -MaxLatitude}, Max: orb.Point{180, MaxLatitude}}
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.DecodedBytes <= 0 {
		opts.DecodedBytes = 32 << 20
	}
	if opts.Cache == nil {
		opts.Cache = NewMemoryTileCache(16 << 20)
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	world := float64(TileSize) * math.Exp2(float64(p.MaxZoom))
	o := &Online{
		provider: p,
		opts:     opts,
		log:      opts.Logger.WithFields(log.Fields{"component": "online", "map": def.ID}),
		decoded: lru.New[string, decodedTile](opts.DecodedBytes, func(t decodedTile) int64 {
			return imageBytes(t.img.Bounds())
		}),
	}
	o.decoded.OnEvict(func(string, decodedTile) {
		metrics.DecodedEvictionsTotal.WithLabelValues("online").Inc()
	})
	minFactor := math.Exp2(float64(p.MinZoom - p.MaxZoom))
	o.init(def, mercatorResolution(world, referenceLatitude(def.Bounds)), minFactor, 1, true)
	o.minZoom, o.maxZoom = minFactor, 1
	o.zoom = o.clamp(1)
	return o, nil
}

// Provider returns the tile provider.
func (o *Online) Provider() *Provider { return o.provider }

// level returns the tile level for a zoom factor.
func (o *Online) level(z float64) maptile.Zoom {
	return maptile.Zoom(o.provider.MaxZoom + int(math.Round(math.Log2(z))))
}

// Level returns the current tile level.
func (o *Online) Level() int {
	return int(o.level(o.Zoom()))
}

func (o *Online) GeoToPixel(lat, lon float64) (float64, float64) {
	return o.geoToPixel(o.level(o.Zoom()), lat, lon)
}

func (o *Online) geoToPixel(z maptile.Zoom, lat, lon float64) (float64, float64) {
	lat = math.Max(-MaxLatitude, math.Min(MaxLatitude, lat))
	f := maptile.Fraction(orb.Point{lon, lat}, z)
	return f.X() * TileSize, f.Y() * TileSize
}

func (o *Online) PixelToGeo(x, y float64) (float64, float64) {
	world := float64(TileSize) * math.Exp2(float64(o.level(o.Zoom())))
	return mercatorUnproject(x, y, world)
}

func (o *Online) Covers(lat, lon float64) bool {
	return math.Abs(lat) <= MaxLatitude && o.def.Covers(lat, lon)
}

func (o *Online) Activate(ctx context.Context, scale float64, force bool) error {
	if o.opts.Fetcher == nil {
		return activationError(o.def, errors.New("no tile fetcher configured"))
	}
	if o.Active() {
		if force {
			o.decoded.Clear()
		}
		o.ZoomTo(scale)
		return nil
	}

	wctx, cancel := context.WithCancel(ctx)
	queue := make(chan maptile.Tile, o.opts.QueueSize)

	o.qmu.Lock()
	o.queue = queue
	o.inflight = make(map[maptile.Tile]bool)
	o.cancel = cancel
	o.qmu.Unlock()

	for i := 0; i < o.opts.Workers; i++ {
		o.wg.Add(1)
		go o.fetchLoop(wctx, queue)
	}

	o.mu.Lock()
	o.active = true
	o.mu.Unlock()
	o.ZoomTo(scale)
	return nil
}

func (o *Online) Deactivate() {
	o.mu.Lock()
	wasActive := o.active
	o.active = false
	o.mu.Unlock()
	if !wasActive {
		return
	}

	o.qmu.Lock()
	cancel := o.cancel
	o.queue = nil
	o.cancel = nil
	o.qmu.Unlock()

	if cancel != nil {
		cancel()
	}
	o.wg.Wait()
	o.decoded.Clear()
}

func (o *Online) fetchLoop(ctx context.Context, queue <-chan maptile.Tile) {
	defer o.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-queue:
			o.fetch(ctx, t)
		}
	}
}

func (o *Online) fetch(ctx context.Context, t maptile.Tile) {
	defer func() {
		o.qmu.Lock()
		delete(o.inflight, t)
		o.qmu.Unlock()
	}()

	start := time.Now()
	data, err := o.opts.Fetcher.FetchTile(ctx, o.provider, t)
	metrics.TileFetchDurationMs.WithLabelValues(o.provider.Name).Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		if ctx.Err() == nil {
			metrics.TileFetchTotal.WithLabelValues(o.provider.Name, "error").Inc()
			o.log.WithError(err).Debugf("fetch tile %d/%d/%d", t.Z, t.X, t.Y)
		}
		return
	}
	metrics.TileFetchTotal.WithLabelValues(o.provider.Name, "ok").Inc()

	key := TileKey(o.provider, t)
	if err := o.opts.Cache.PutTile(ctx, key, CachedTile{Data: data, FetchedAt: o.opts.Now()}); err != nil {
		o.log.WithError(err).Warn("store tile")
		return
	}
	o.decoded.Remove(key)
	if o.opts.OnTile != nil {
		o.opts.OnTile(o)
	}
}

// enqueue schedules a fetch unless one is already pending. A full queue drops
// the request; the next draw asks again.
func (o *Online) enqueue(t maptile.Tile) {
	o.qmu.Lock()
	defer o.qmu.Unlock()
	if o.queue == nil || o.inflight[t] {
		return
	}
	select {
	case o.queue <- t:
		o.inflight[t] = true
	default:
	}
}

// tileImage returns the decoded tile if it is available locally. With fetch
// set, missing and expired tiles are queued for download. Expired tiles are
// still returned until the new bytes arrive.
func (o *Online) tileImage(ctx context.Context, t maptile.Tile, fetch bool) (image.Image, bool) {
	key := TileKey(o.provider, t)
	maxAge := o.provider.Expiration()
	if d, ok := o.decoded.Peek(key); ok {
		if fetch && (CachedTile{FetchedAt: d.fetchedAt}).Expired(maxAge, o.opts.Now()) {
			o.enqueue(t)
		}
		return d.img, true
	}

	ct, ok, err := o.opts.Cache.GetTile(ctx, key)
	if err != nil {
		o.log.WithError(err).Debug("tile cache lookup")
	}
	if !ok {
		if fetch {
			o.enqueue(t)
		}
		return nil, false
	}
	if fetch && ct.Expired(maxAge, o.opts.Now()) {
		o.enqueue(t)
	}

	img, _, err := image.Decode(bytes.NewReader(ct.Data))
	if err != nil {
		o.log.WithError(err).Debugf("decode tile %s", key)
		if fetch {
			o.enqueue(t)
		}
		return nil, false
	}
	if err := o.decoded.Add(key, decodedTile{img: img, fetchedAt: ct.FetchedAt}); err != nil {
		o.log.WithError(err).Debugf("keep decoded tile %s", key)
	}
	return img, true
}

func (o *Online) Draw(vp viewport.Viewport, opts DrawOptions, dst draw.Image) (bool, error) {
	o.mu.RLock()
	active, z := o.active, o.zoom
	o.mu.RUnlock()
	if !active {
		return false, ErrNotActive
	}

	ctx := context.Background()
	level := o.level(z)
	n := 1 << uint(level)
	world := float64(TileSize) * float64(n)

	cx, cy := o.geoToPixel(level, vp.Center.Lat(), vp.Center.Lon())
	p := place(vp, cx, cy)
	proj := func(lat, lon float64) (float64, float64) {
		x, y := o.geoToPixel(level, lat, lon)
		return x - p.origin.X, y - p.origin.Y
	}
	toGeo := func(x, y float64) (float64, float64) { return mercatorUnproject(x, y, world) }

	var mask *image.Alpha
	if opts.CropToBorder {
		mask = regionMask(outline(o.def), proj, p.w, p.h)
	}

	tx0 := int(math.Floor(p.origin.X / TileSize))
	tx1 := int(math.Floor((p.origin.X + float64(p.w) - 1) / TileSize))
	ty0 := clampInt(int(math.Floor(p.origin.Y/TileSize)), 0, n-1)
	ty1 := clampInt(int(math.Floor((p.origin.Y+float64(p.h)-1)/TileSize)), 0, n-1)

	complete := true
	for ty := ty0; ty <= ty1; ty++ {
		for tx := tx0; tx <= tx1; tx++ {
			wx := ((tx % n) + n) % n
			t := maptile.New(uint32(wx), uint32(ty), level)
			dx := int(math.Round(float64(tx*TileSize) - p.origin.X))
			dy := int(math.Round(float64(ty*TileSize) - p.origin.Y))
			r := image.Rect(dx, dy, dx+TileSize, dy+TileSize)

			img, ok := o.tileImage(ctx, t, true)
			if !ok {
				complete = false
				o.drawParent(ctx, dst, t, r, mask)
				continue
			}
			if mask != nil {
				draw.DrawMask(dst, r, img, img.Bounds().Min, mask, r.Min, draw.Over)
			} else {
				draw.Draw(dst, r, img, img.Bounds().Min, draw.Over)
			}
		}
	}

	decorate(dst, o.def, proj, opts)
	return complete && coversCanvas(p, toGeo, o.Covers), nil
}

// drawParent stretches the matching quadrant of the nearest available
// coarser tile over r.
func (o *Online) drawParent(ctx context.Context, dst draw.Image, t maptile.Tile, r image.Rectangle, mask *image.Alpha) {
	for k := uint32(1); k <= parentLevels && uint32(t.Z) >= k; k++ {
		if int(t.Z)-int(k) < o.provider.MinZoom {
			return
		}
		parent := maptile.New(t.X>>k, t.Y>>k, t.Z-maptile.Zoom(k))
		img, ok := o.tileImage(ctx, parent, false)
		if !ok {
			continue
		}
		size := TileSize >> k
		b := img.Bounds()
		sx := b.Min.X + int(t.X&(1<<k-1))*size
		sy := b.Min.Y + int(t.Y&(1<<k-1))*size
		var xopts *xdraw.Options
		if mask != nil {
			xopts = &xdraw.Options{DstMask: mask}
		}
		xdraw.ApproxBiLinear.Scale(dst, r, img, image.Rect(sx, sy, sx+size, sy+size), xdraw.Over, xopts)
		return
	}
}

// MemoryTileCache is a small process-local TileCache used when no cache is
// configured.
type MemoryTileCache struct {
	tiles *lru.Cache[string, CachedTile]
}

// NewMemoryTileCache returns a cache bounded to maxBytes of encoded data.
func NewMemoryTileCache(maxBytes int64) *MemoryTileCache {
	return &MemoryTileCache{tiles: lru.New[string, CachedTile](maxBytes, func(t CachedTile) int64 {
		return int64(len(t.Data))
	})}
}

func (c *MemoryTileCache) GetTile(_ context.Context, key string) (CachedTile, bool, error) {
	t, ok := c.tiles.Peek(key)
	return t, ok, nil
}

func (c *MemoryTileCache) PutTile(_ context.Context, key string, t CachedTile) error {
	return c.tiles.Add(key, t)
}
