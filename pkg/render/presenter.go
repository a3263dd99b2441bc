package render

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/beetlebugorg/chartview/pkg/viewport"
)

// PresenterOptions configures a Presenter.
type PresenterOptions struct {
	// Animator eases the look-ahead. Optional.
	Animator *viewport.Animator

	// Scene returns the current overlay state. Required.
	Scene func() Scene

	// OnLookAhead is called when an animator tick changed the look-ahead
	// offset. It should update the viewport and request a composite.
	OnLookAhead func(offset image.Point)

	// Present receives the finished screen image. The image is reused for
	// the next frame.
	Present func(img *image.RGBA)

	IdleHz   float64 // default 5
	ActiveHz float64 // default 20, used while the animator is moving

	CrossHideDelay time.Duration // default 5s
	ScaleMoveDelay time.Duration // default 2s

	Now func() time.Time
}

// Presenter is the consumer side of a Pipeline.
type Presenter struct {
	pipe *Pipeline
	opts PresenterOptions

	mu       sync.Mutex
	overlays Overlays
	screen   *image.RGBA
}

// NewPresenter returns a presenter painting frames of pipe.
func NewPresenter(pipe *Pipeline, opts PresenterOptions) *Presenter {
	if opts.IdleHz <= 0 {
		opts.IdleHz = 5
	}
	if opts.ActiveHz <= 0 {
		opts.ActiveHz = 20
	}
	if opts.CrossHideDelay <= 0 {
		opts.CrossHideDelay = 5 * time.Second
	}
	if opts.ScaleMoveDelay <= 0 {
		opts.ScaleMoveDelay = 2 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Presenter{
		pipe: pipe,
		opts: opts,
		overlays: Overlays{
			CrossHideDelay: opts.CrossHideDelay,
			Placer:         viewport.ScalePlacer{Delay: opts.ScaleMoveDelay},
		},
	}
}

// Dragged shows the center crosshair for the hide delay.
func (p *Presenter) Dragged() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.overlays.Dragged(p.opts.Now())
}

func hz(rate float64) time.Duration {
	return time.Duration(float64(time.Second) / rate)
}

// Frame presents one frame and returns the delay until the next one.
func (p *Presenter) Frame() time.Duration {
	interval := hz(p.opts.IdleHz)
	if a := p.opts.Animator; a != nil {
		if offset, changed := a.Tick(); changed && p.opts.OnLookAhead != nil {
			p.opts.OnLookAhead(offset)
		}
		if a.Active() {
			interval = hz(p.opts.ActiveHz)
		}
	}

	scene := p.opts.Scene()
	vp := scene.View
	if vp.Width <= 0 || vp.Height <= 0 {
		return interval
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.screen == nil || p.screen.Rect.Dx() != vp.Width || p.screen.Rect.Dy() != vp.Height {
		p.screen = image.NewRGBA(image.Rect(0, 0, vp.Width, vp.Height))
	}
	p.pipe.Paint(p.screen, vp)
	p.overlays.Draw(p.screen, scene, p.opts.Now())
	if p.opts.Present != nil {
		p.opts.Present(p.screen)
	}
	return interval
}

// Run presents frames until ctx is done.
func (p *Presenter) Run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			timer.Reset(p.Frame())
		}
	}
}
