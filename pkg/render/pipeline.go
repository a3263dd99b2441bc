package render

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/beetlebugorg/chartview/internal/metrics"
	"github.com/beetlebugorg/chartview/pkg/mapsource"
	"github.com/beetlebugorg/chartview/pkg/viewport"
)

// Compositor draws the maps of a viewport and reports whether the current
// map covered the canvas.
type Compositor interface {
	Compose(vp viewport.Viewport, dst draw.Image) (bool, error)
}

// Projector maps geographic positions into the current map's pixel space.
type Projector interface {
	GeoToPixel(lat, lon float64) (x, y float64)
}

// Layer is an overlay composited into the shared buffer above the maps.
// Layers are drawn in ascending Order.
type Layer interface {
	Name() string
	Order() int
	Draw(vp viewport.Viewport, proj Projector, dst draw.Image) error
}

// Frame is a published composite.
type Frame struct {
	Image    *image.RGBA
	Viewport viewport.Viewport
	Seq      uint64
	Covered  bool
}

// Options configures a Pipeline.
type Options struct {
	// MaxBufferBytes caps the size of one buffer. Zero means no cap.
	MaxBufferBytes int64
	Background     color.RGBA
	Logger         log.FieldLogger
}

// DefaultBackground is painted where no map draws.
var DefaultBackground = color.RGBA{0xff, 0xff, 0xff, 0xff}

// Pipeline owns the buffer pair.
type Pipeline struct {
	comp Compositor
	opts Options
	log  log.FieldLogger

	layerMu sync.RWMutex
	layers  []Layer

	// work and scratch are only touched by the producer.
	work    *image.RGBA
	scratch *image.RGBA
	seq     uint64

	mu    sync.RWMutex
	front *Frame
}

// NewPipeline returns a pipeline compositing through comp.
func NewPipeline(comp Compositor, opts Options) *Pipeline {
	if opts.Background == (color.RGBA{}) {
		opts.Background = DefaultBackground
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	return &Pipeline{
		comp: comp,
		opts: opts,
		log:  opts.Logger.WithField("component", "render"),
	}
}

// AddLayer registers an overlay layer, replacing one with the same name.
func (p *Pipeline) AddLayer(l Layer) {
	p.layerMu.Lock()
	defer p.layerMu.Unlock()
	p.removeLayerLocked(l.Name())
	p.layers = append(p.layers, l)
	sort.SliceStable(p.layers, func(i, j int) bool { return p.layers[i].Order() < p.layers[j].Order() })
}

// RemoveLayer unregisters the named layer.
func (p *Pipeline) RemoveLayer(name string) bool {
	p.layerMu.Lock()
	defer p.layerMu.Unlock()
	return p.removeLayerLocked(name)
}

func (p *Pipeline) removeLayerLocked(name string) bool {
	for i, l := range p.layers {
		if l.Name() == name {
			p.layers = append(p.layers[:i], p.layers[i+1:]...)
			return true
		}
	}
	return false
}

// Layers returns the registered layers in draw order.
func (p *Pipeline) Layers() []Layer {
	p.layerMu.RLock()
	defer p.layerMu.RUnlock()
	return append([]Layer(nil), p.layers...)
}

// buffer returns img if it has size w×h, or a new image of that size.
func (p *Pipeline) buffer(img *image.RGBA, w, h int) (*image.RGBA, error) {
	if img != nil && img.Rect.Dx() == w && img.Rect.Dy() == h {
		return img, nil
	}
	if max := p.opts.MaxBufferBytes; max > 0 && int64(w)*int64(h)*4 > max {
		return nil, fmt.Errorf("%dx%d buffer: %w", w, h, mapsource.ErrResourceExhausted)
	}
	return image.NewRGBA(image.Rect(0, 0, w, h)), nil
}

// Composite draws vp into the work buffer and publishes it. proj is the
// current map, used by overlay layers. On error the previously published
// frame stays in place.
//
// The returned frame shares the pipeline's buffer, which is drawn into again
// two composites later. Callers other than the producer use Frame or Paint.
func (p *Pipeline) Composite(ctx context.Context, vp viewport.Viewport, proj Projector) (Frame, error) {
	if vp.Empty() {
		return Frame{}, fmt.Errorf("composite: empty viewport")
	}
	start := time.Now()

	work, err := p.buffer(p.work, vp.CanvasWidth, vp.CanvasHeight)
	if err != nil {
		metrics.FramesDroppedTotal.Inc()
		return Frame{}, err
	}
	p.work = work

	target := work
	rotated := vp.Rotate && vp.Heading != 0
	if rotated {
		if p.scratch, err = p.buffer(p.scratch, vp.CanvasWidth, vp.CanvasHeight); err != nil {
			metrics.FramesDroppedTotal.Inc()
			return Frame{}, err
		}
		target = p.scratch
	}
	draw.Draw(target, target.Rect, image.NewUniform(p.opts.Background), image.Point{}, draw.Src)

	covered, err := p.comp.Compose(vp, target)
	if err != nil {
		metrics.FramesDroppedTotal.Inc()
		return Frame{}, err
	}
	for _, l := range p.Layers() {
		if ctx.Err() != nil {
			break
		}
		if err := l.Draw(vp, proj, target); err != nil {
			p.log.WithError(err).WithField("layer", l.Name()).Warn("Layer draw failed")
		}
	}
	if rotated {
		draw.Draw(work, work.Rect, image.NewUniform(p.opts.Background), image.Point{}, draw.Src)
		rotate(work, p.scratch, vp)
	}

	p.seq++
	frame := &Frame{Image: work, Viewport: vp, Seq: p.seq, Covered: covered}
	p.mu.Lock()
	old := p.front
	p.front = frame
	p.mu.Unlock()
	if old != nil {
		p.work = old.Image
	} else {
		p.work = nil
	}

	metrics.FramesTotal.Inc()
	metrics.CompositeDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000)
	return *frame, nil
}

// rotate draws src into dst turned by -vp.Heading around the point where the
// map center sits on the canvas.
func rotate(dst, src *image.RGBA, vp viewport.Viewport) {
	px := float64(vp.CanvasWidth/2 + vp.LookAhead.X)
	py := float64(vp.CanvasHeight/2 + vp.LookAhead.Y)
	a := -vp.Heading * math.Pi / 180
	sin, cos := math.Sincos(a)
	m := f64.Aff3{
		cos, -sin, px - cos*px + sin*py,
		sin, cos, py - sin*px - cos*py,
	}
	xdraw.ApproxBiLinear.Transform(dst, m, src, src.Rect, xdraw.Src, nil)
}

// Frame returns a copy of the last published frame. The image belongs to
// the caller and is never touched by later composites.
func (p *Pipeline) Frame() (Frame, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.front == nil {
		return Frame{}, false
	}
	f := *p.front
	f.Image = image.NewRGBA(p.front.Image.Rect)
	copy(f.Image.Pix, p.front.Image.Pix)
	return f, true
}

// Paint draws the last published frame into dst for the current viewport,
// correcting translation drift since it was composited. It returns false
// when nothing has been published yet.
func (p *Pipeline) Paint(dst draw.Image, current viewport.Viewport) bool {
	b := dst.Bounds()
	draw.Draw(dst, b, image.NewUniform(p.opts.Background), image.Point{}, draw.Src)

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.front == nil {
		return false
	}
	at := current.Correction(p.front.Viewport).Add(b.Min)
	img := p.front.Image
	draw.Draw(dst, img.Rect.Add(at), img, img.Rect.Min, draw.Src)
	return true
}
