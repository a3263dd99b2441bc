package mapsource

import (
	"math"
	"sync"
)

// state carries the definition, zoom and activation flag shared by every
// variant. Variants embed it and guard their own resources with mu too.
type state struct {
	mu sync.RWMutex

	def      *Definition
	native   float64
	zoom     float64
	minZoom  float64
	maxZoom  float64
	discrete bool // zoom snaps to powers of two
	active   bool
}

func (s *state) init(def *Definition, native, minZoom, maxZoom float64, discrete bool) {
	if def.MinZoom > 0 {
		minZoom = def.MinZoom
	}
	if def.MaxZoom > 0 {
		maxZoom = def.MaxZoom
	}
	if maxZoom < minZoom {
		maxZoom = minZoom
	}
	s.def = def
	s.native = native
	s.minZoom = minZoom
	s.maxZoom = maxZoom
	s.discrete = discrete
	s.zoom = s.clamp(1)
}

func (s *state) Definition() *Definition { return s.def }

func (s *state) ID() string { return s.def.ID }

func (s *state) Kind() Kind { return s.def.Kind }

func (s *state) NativeScale() float64 { return s.native }

func (s *state) Scale() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.native / s.zoom
}

func (s *state) Zoom() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.zoom
}

func (s *state) SetZoom(zoom float64) {
	s.mu.Lock()
	s.zoom = s.clamp(zoom)
	s.mu.Unlock()
}

func (s *state) NextZoom() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.zoom >= s.maxZoom {
		return 0
	}
	return s.clamp(s.zoom * 2)
}

func (s *state) PrevZoom() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.zoom <= s.minZoom {
		return 0
	}
	return s.clamp(s.zoom / 2)
}

func (s *state) ZoomBy(factor float64) {
	if factor <= 0 {
		return
	}
	s.mu.Lock()
	s.zoom = s.clamp(s.zoom * factor)
	s.mu.Unlock()
}

func (s *state) ZoomTo(scale float64) {
	if scale <= 0 {
		return
	}
	s.SetZoom(s.native / scale)
}

func (s *state) CoverageRatio(other float64) float64 {
	return other / s.native
}

func (s *state) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// clamp limits z to the zoom range, snapping to a power of two first for
// discrete sources. Snapping is done in log space so ZoomTo picks the step
// nearest to the requested scale.
func (s *state) clamp(z float64) float64 {
	if z <= 0 || math.IsNaN(z) || math.IsInf(z, 0) {
		z = 1
	}
	if s.discrete {
		z = math.Exp2(math.Round(math.Log2(z)))
	}
	return math.Min(math.Max(z, s.minZoom), s.maxZoom)
}
