package engine

import (
	"image"

	"github.com/beetlebugorg/chartview/pkg/mapsource"
	"github.com/beetlebugorg/chartview/pkg/viewport"
)

// Host is the application embedding the engine. Methods are called from the
// engine's goroutines and must not call back into blocking engine methods.
//
// MapChanged, ActivationFailed and OutOfMemory are called from the worker.
// Present is called from the presenter with an image that is reused for the
// next frame, so it must be copied or consumed before returning.
type Host interface {
	MapChanged(src mapsource.Source, forced bool)
	ConditionsChanged(c viewport.Conditions)
	ActivationFailed(def *mapsource.Definition, err error)
	OutOfMemory(err error)
	Present(img *image.RGBA)
}

// NopHost ignores every notification.
type NopHost struct{}

func (NopHost) MapChanged(mapsource.Source, bool)             {}
func (NopHost) ConditionsChanged(viewport.Conditions)         {}
func (NopHost) ActivationFailed(*mapsource.Definition, error) {}
func (NopHost) OutOfMemory(error)                             {}
func (NopHost) Present(*image.RGBA)                           {}

// listener adapts coverage events to the host.
type listener struct {
	e *Engine
}

func (l listener) MapChanged(src mapsource.Source, forced bool) {
	l.e.mapChanged(src, forced)
}

func (l listener) ActivationFailed(def *mapsource.Definition, err error) {
	l.e.host.ActivationFailed(def, err)
}
