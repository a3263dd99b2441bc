package main

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/beetlebugorg/chartview/internal/config"
	"github.com/beetlebugorg/chartview/pkg/catalog"
	"github.com/beetlebugorg/chartview/pkg/engine"
	"github.com/beetlebugorg/chartview/pkg/mapsource"
)

// snapshotHost keeps a copy of the last presented image.
type snapshotHost struct {
	engine.NopHost

	mu  sync.Mutex
	img *image.RGBA
}

func (h *snapshotHost) Present(img *image.RGBA) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.img == nil || h.img.Rect != img.Rect {
		h.img = image.NewRGBA(img.Rect)
	}
	copy(h.img.Pix, img.Pix)
}

func (h *snapshotHost) ActivationFailed(def *mapsource.Definition, err error) {
	log.WithError(err).Warnf("Could not open %s", def.Title)
}

func (h *snapshotHost) OutOfMemory(err error) {
	log.WithError(err).Error("Out of memory while compositing")
}

func (h *snapshotHost) image() *image.RGBA {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.img
}

func parseSize(s string) (int, int, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("size %q: want WxH", s)
	}
	w, err := strconv.Atoi(ws)
	if err != nil {
		return 0, 0, fmt.Errorf("size %q: %w", s, err)
	}
	h, err := strconv.Atoi(hs)
	if err != nil {
		return 0, 0, fmt.Errorf("size %q: %w", s, err)
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("size %q: must be positive", s)
	}
	return w, h, nil
}

// takeSnapshot composites one w×h view centred on the configured position
// and writes it as PNG.
func takeSnapshot(ctx context.Context, cat *catalog.Catalog, opts engine.Options, c *config.Config, w, h int) error {
	host := &snapshotHost{}
	eng := engine.New(cat, host, opts)
	eng.SetScreen(w, h)
	eng.SetMapCenter(c.View.Lat, c.View.Lon)
	if err := eng.Start(ctx); err != nil {
		return err
	}
	defer eng.Shutdown()
	if err := eng.SetOnlineMaps(c.Online.Enabled); err != nil {
		log.WithError(err).Warn("Some online maps could not be enabled")
	}

	if err := waitFrame(ctx, eng, 30*time.Second); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(settle):
	}
	eng.PresentFrame()

	img := host.image()
	if img == nil {
		return fmt.Errorf("no frame was presented")
	}
	f, err := os.Create(snapshot)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	vp := eng.Viewport()
	log.Infof("Wrote %s: %s at %.5f %.5f, %.2f m/px", snapshot, vp.MapID, vp.Center.Lat(), vp.Center.Lon(), vp.Scale)
	return nil
}

func waitFrame(ctx context.Context, eng *engine.Engine, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		if f, ok := eng.Frame(); ok && f.Viewport.Width == eng.Viewport().Width {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for the first frame: %w", ctx.Err())
		case <-tick.C:
		}
	}
}
