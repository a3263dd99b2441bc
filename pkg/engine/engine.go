// Package engine ties map selection, compositing and presentation together
// behind a non-blocking API for interactive callers.
//
// One worker goroutine owns everything that may touch map IO: selecting the
// current map, activating covering maps and compositing frames. Callers post
// requests into two latest-wins slots, coverage and render, and the worker
// always serves coverage first. A second goroutine presents frames through
// the Host at the presenter rate.
//
// # Basic Usage
//
//	cat, _ := catalog.Build(ctx, root, loader, catalog.DefaultBuildOptions())
//	eng := engine.New(cat, host, engine.DefaultOptions())
//	eng.SetScreen(800, 600)
//	if err := eng.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Shutdown()
//
//	eng.SetLocation(engine.Location{Lat: 60.1, Lon: 24.9, Bearing: 45, Speed: 5})
//	eng.ZoomIn()
package engine

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/teris-io/shortid"

	"github.com/beetlebugorg/chartview/internal/coalesce"
	"github.com/beetlebugorg/chartview/internal/metrics"
	"github.com/beetlebugorg/chartview/pkg/coverage"
	"github.com/beetlebugorg/chartview/pkg/mapsource"
	"github.com/beetlebugorg/chartview/pkg/render"
	"github.com/beetlebugorg/chartview/pkg/viewport"
)

// ErrStarted is returned by Start on a running engine.
var ErrStarted = errors.New("engine already started")

// Catalog is the map catalog the engine selects from. Add and Remove are
// used for online maps.
type Catalog interface {
	coverage.Catalog
	Add(src mapsource.Source)
	Remove(id string) bool
}

// Options configures an Engine.
type Options struct {
	// Overscan is the canvas margin around the screen in pixels.
	// Default: viewport.DefaultOverscan
	Overscan int

	// Rotate turns the map to the direction of travel while following.
	Rotate bool

	// LookAhead is the look-ahead distance in percent of half the shorter
	// view side.
	LookAhead int

	// Adjacent draws neighbouring maps around the current one.
	// Default: true
	Adjacent bool

	// BestMap makes the engine search for a better map while following.
	// Default: true
	BestMap bool

	// BestMapInterval is the minimum time between two best map searches.
	// Default: 5s
	BestMapInterval time.Duration

	Coverage coverage.Options
	Render   render.Options
	Animator viewport.AnimatorOptions

	IdleHz         float64
	ActiveHz       float64
	CrossHideDelay time.Duration
	ScaleMoveDelay time.Duration

	// Providers are the online tile services SetOnlineMaps can enable.
	Providers []*mapsource.Provider
	Online    mapsource.OnlineOptions

	VectorKind       render.VectorKind
	VectorMultiplier int     // Default: 10
	Proximity        float64 // metres, for VectorProximity

	Logger log.FieldLogger
	Now    func() time.Time
}

// DefaultOptions returns options with defaults.
func DefaultOptions() Options {
	return Options{
		Overscan:         viewport.DefaultOverscan,
		LookAhead:        30,
		Adjacent:         true,
		BestMap:          true,
		BestMapInterval:  5 * time.Second,
		Coverage:         coverage.DefaultOptions(),
		Animator:         viewport.DefaultAnimatorOptions(),
		IdleHz:           5,
		ActiveHz:         20,
		CrossHideDelay:   5 * time.Second,
		ScaleMoveDelay:   2 * time.Second,
		VectorKind:       render.VectorSpeed,
		VectorMultiplier: 10,
		Proximity:        200,
	}
}

type command int

const (
	cmdLocate command = iota
	cmdSelect
	cmdNext
	cmdPrev
)

// coverReq asks the worker to re-run map selection.
type coverReq struct {
	cmd      command
	id       string
	findBest bool
	reset    bool
}

// merge folds an unconsumed request into a newer one. Explicit commands and
// flags survive being superseded by a plain relocation.
func (r coverReq) merge(pending coverReq, ok bool) coverReq {
	if !ok {
		return r
	}
	r.findBest = r.findBest || pending.findBest
	r.reset = r.reset || pending.reset
	if r.cmd == cmdLocate {
		r.cmd, r.id = pending.cmd, pending.id
	}
	return r
}

type renderReq struct{}

// Engine is a moving-map display engine.
type Engine struct {
	cat  Catalog
	host Host
	opts Options
	log  log.FieldLogger

	cov  *coverage.Engine
	pipe *render.Pipeline
	pres *render.Presenter
	anim *viewport.Animator

	coverQ  *coalesce.Slot[coverReq]
	renderQ *coalesce.Slot[renderReq]

	mu          sync.Mutex
	vp          viewport.Viewport
	following   bool
	moving      bool
	fixed       bool
	bestEnabled bool
	loadBest    bool // suspended after a manual map choice
	adjacent    bool
	lookAhead   int
	lastBest    time.Time
	online      map[string]mapsource.Source

	oomReported atomic.Bool

	runMu   sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	session string
}

// New returns a stopped engine. host may be nil.
func New(cat Catalog, host Host, opts Options) *Engine {
	d := DefaultOptions()
	if opts.Overscan <= 0 {
		opts.Overscan = d.Overscan
	}
	if opts.BestMapInterval <= 0 {
		opts.BestMapInterval = d.BestMapInterval
	}
	if opts.VectorMultiplier <= 0 {
		opts.VectorMultiplier = d.VectorMultiplier
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if host == nil {
		host = NopHost{}
	}

	e := &Engine{
		cat:         cat,
		host:        host,
		opts:        opts,
		log:         opts.Logger.WithField("component", "engine"),
		anim:        viewport.NewAnimator(opts.Animator),
		coverQ:      coalesce.New[coverReq](),
		renderQ:     coalesce.New[renderReq](),
		bestEnabled: opts.BestMap,
		loadBest:    opts.BestMap,
		adjacent:    opts.Adjacent,
		lookAhead:   opts.LookAhead,
		online:      make(map[string]mapsource.Source),
	}
	e.vp = e.vp.WithScreen(0, 0, opts.Rotate, opts.Overscan)

	covOpts := opts.Coverage
	covOpts.Listener = listener{e}
	if covOpts.Logger == nil {
		covOpts.Logger = opts.Logger
	}
	e.cov = coverage.New(cat, covOpts)

	renderOpts := opts.Render
	if renderOpts.Logger == nil {
		renderOpts.Logger = opts.Logger
	}
	e.pipe = render.NewPipeline(e.cov, renderOpts)
	e.pres = render.NewPresenter(e.pipe, render.PresenterOptions{
		Animator:       e.anim,
		Scene:          e.scene,
		OnLookAhead:    e.setLookAheadOffset,
		Present:        host.Present,
		IdleHz:         opts.IdleHz,
		ActiveHz:       opts.ActiveHz,
		CrossHideDelay: opts.CrossHideDelay,
		ScaleMoveDelay: opts.ScaleMoveDelay,
		Now:            opts.Now,
	})
	return e
}

// Start runs the worker and the presenter until ctx is done or Shutdown is
// called, and requests an initial map selection.
func (e *Engine) Start(ctx context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.cancel != nil {
		return ErrStarted
	}

	id, err := shortid.Generate()
	if err != nil {
		return err
	}
	e.session = id
	e.oomReported.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		e.run(ctx)
	}()
	go func() {
		defer e.wg.Done()
		e.pres.Run(ctx)
	}()

	e.log.WithField("session", id).Info("Engine started")
	e.requestCoverage(coverReq{})
	return nil
}

// Session returns the ID of the current run, or "" before Start.
func (e *Engine) Session() string {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return e.session
}

// Shutdown stops the goroutines, waits for an in-flight composite to finish
// and deactivates every map.
func (e *Engine) Shutdown() {
	e.runMu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	e.wg.Wait()
	e.cov.Close()
	e.log.WithField("session", e.Session()).Info("Engine stopped")
}

// Reset drops the current map and the covering maps and selects again from
// scratch, for example after the catalog was rebuilt.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.loadBest = e.bestEnabled
	e.mu.Unlock()
	e.requestCoverage(coverReq{reset: true})
}

func (e *Engine) requestCoverage(r coverReq) {
	if e.coverQ.Update(r.merge) {
		metrics.RequestsCoalescedTotal.WithLabelValues("coverage").Inc()
	}
}

// RequestRender asks for a new composite of the current state.
func (e *Engine) RequestRender() {
	if e.renderQ.Put(renderReq{}) {
		metrics.RequestsCoalescedTotal.WithLabelValues("render").Inc()
	}
}

// Invalidate forces the covering set to be recomputed on the next
// composite. Maps that are already active are not activated again.
func (e *Engine) Invalidate() {
	e.cov.InvalidateCovering()
	e.RequestRender()
}

func (e *Engine) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.coverQ.Ready():
		case <-e.renderQ.Ready():
		}

		composite := false
		if req, ok := e.coverQ.Take(); ok {
			e.selectMap(ctx, req)
			composite = true
		}
		if _, ok := e.renderQ.Take(); ok {
			composite = true
		}
		if composite && ctx.Err() == nil {
			e.composite(ctx)
		}
	}
}

func (e *Engine) selectMap(ctx context.Context, req coverReq) {
	if req.reset {
		e.cov.Close()
	}
	center := e.Viewport().Center

	var err error
	switch req.cmd {
	case cmdSelect:
		_, err = e.cov.SelectMap(ctx, req.id)
	case cmdNext:
		_, err = e.cov.NextMap(ctx, center)
	case cmdPrev:
		_, err = e.cov.PrevMap(ctx, center)
	default:
		_, err = e.cov.Select(ctx, coverage.Request{Center: center, FindBest: req.findBest})
	}
	if err != nil {
		var aerr *mapsource.ActivationError
		if !errors.As(err, &aerr) {
			e.log.WithError(err).Warn("Map selection failed")
		}
	}
}

func (e *Engine) composite(ctx context.Context) {
	cur := e.cov.Current()
	if cur == nil {
		return
	}
	e.mu.Lock()
	e.refreshLocked(cur)
	vp := e.vp
	adjacent, preferBest := e.adjacent, e.loadBest
	e.mu.Unlock()
	if vp.Width <= 0 || vp.Height <= 0 {
		return
	}

	if adjacent {
		if _, err := e.cov.UpdateCovering(ctx, vp, preferBest); err != nil {
			e.log.WithError(err).Debug("Covering maps incomplete")
		}
	} else {
		e.cov.ClearCovering()
	}

	if _, err := e.pipe.Composite(ctx, vp, cur); err != nil {
		if errors.Is(err, mapsource.ErrResourceExhausted) {
			e.outOfMemory(err)
			return
		}
		e.log.WithError(err).Warn("Composite failed")
	}
}

func (e *Engine) outOfMemory(err error) {
	if e.oomReported.CompareAndSwap(false, true) {
		e.log.WithError(err).Warn("Out of memory, keeping the last frame")
		e.host.OutOfMemory(err)
	}
}

// mapChanged runs on the worker inside a map switch.
func (e *Engine) mapChanged(src mapsource.Source, forced bool) {
	e.mu.Lock()
	if !forced {
		e.loadBest = e.bestEnabled
	}
	e.refreshLocked(src)
	e.mu.Unlock()
	e.host.MapChanged(src, forced)
}

// Frame returns a copy of the last published frame.
func (e *Engine) Frame() (render.Frame, bool) {
	return e.pipe.Frame()
}

// PresentFrame paints and presents one frame immediately and returns the
// delay the presenter would wait before the next one.
func (e *Engine) PresentFrame() time.Duration {
	return e.pres.Frame()
}

func (e *Engine) scene() render.Scene {
	e.mu.Lock()
	defer e.mu.Unlock()
	return render.Scene{
		View:      e.vp,
		Following: e.following,
		Moving:    e.moving,
		Fixed:     e.fixed,
		Vector:    render.VectorLength(e.opts.VectorKind, e.opts.Proximity, e.vp.Speed, e.vp.Scale, e.opts.VectorMultiplier),
	}
}

func (e *Engine) setLookAheadOffset(offset image.Point) {
	e.mu.Lock()
	e.vp.LookAhead = offset
	e.mu.Unlock()
	e.RequestRender()
}
