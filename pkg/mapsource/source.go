package mapsource

import (
	"context"
	"fmt"
	"image/draw"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/beetlebugorg/chartview/pkg/viewport"
)

// Kind identifies a map source variant.
type Kind int

const (
	KindRaster Kind = iota + 1
	KindOnline
	KindVector
	KindFallback
)

func (k Kind) String() string {
	switch k {
	case KindRaster:
		return "raster"
	case KindOnline:
		return "online"
	case KindVector:
		return "vector"
	case KindFallback:
		return "fallback"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind converts a kind name back to a Kind.
func ParseKind(s string) (Kind, error) {
	for k := KindRaster; k <= KindFallback; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown map kind %q", s)
}

// Definition describes a map independently of whether it is active.
//
// Definitions are produced by a catalog loader and may be persisted in a
// catalog index, so every field is plain data.
type Definition struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Path  string `json:"path,omitempty"`
	Kind  Kind   `json:"kind"`

	// Bounds is the geographic bounding box of the map.
	Bounds orb.Bound `json:"bounds"`

	// Region is the precise coverage outline. When empty, Bounds is used.
	Region orb.Ring `json:"region,omitempty"`

	// Scale is the native scale in metres per pixel.
	Scale float64 `json:"scale"`

	// MinZoom and MaxZoom bound the zoom factor. Zero values let the
	// variant choose its defaults.
	MinZoom float64 `json:"min_zoom,omitempty"`
	MaxZoom float64 `json:"max_zoom,omitempty"`

	// Priority breaks ties between maps of equal scale mismatch; higher wins.
	Priority int `json:"priority,omitempty"`

	Calibration *Calibration `json:"calibration,omitempty"`
	Provider    *Provider    `json:"provider,omitempty"`
	Style       string       `json:"style,omitempty"`

	// LoadError holds the reason the definition could not be parsed or
	// opened. Broken definitions stay in the catalog for diagnostics but are
	// never selected.
	LoadError string `json:"load_error,omitempty"`
}

// Broken reports whether the definition failed to load.
func (d *Definition) Broken() bool {
	return d.LoadError != ""
}

// Covers reports whether (lat, lon) lies inside the definition's coverage.
func (d *Definition) Covers(lat, lon float64) bool {
	p := orb.Point{lon, lat}
	if !d.Bounds.Contains(p) {
		return false
	}
	if len(d.Region) < 3 {
		return true
	}
	return planar.RingContains(d.Region, p)
}

// Transformer converts between geographic coordinates and the source's own
// pixel space at its current zoom.
type Transformer interface {
	GeoToPixel(lat, lon float64) (x, y float64)
	PixelToGeo(x, y float64) (lat, lon float64)
	Covers(lat, lon float64) bool
}

// Scaler controls the zoom of a source.
type Scaler interface {
	// Scale returns metres per pixel at the current zoom.
	Scale() float64
	NativeScale() float64
	Zoom() float64
	SetZoom(zoom float64)
	// NextZoom and PrevZoom return the next finer and coarser zoom steps,
	// or 0 when there is none.
	NextZoom() float64
	PrevZoom() float64
	ZoomBy(factor float64)
	// ZoomTo selects the zoom closest to the given metres per pixel.
	ZoomTo(scale float64)
	// CoverageRatio compares another scale with the native scale:
	// other / NativeScale().
	CoverageRatio(other float64) float64
}

// Activator manages the expensive resources of a source.
type Activator interface {
	// Activate prepares the source for drawing at roughly the given scale.
	// Activating an active source is a no-op unless force is set. Failures
	// are returned as *ActivationError.
	Activate(ctx context.Context, scale float64, force bool) error
	// Deactivate releases resources. It is idempotent.
	Deactivate()
	Active() bool
}

// DrawOptions controls decoration of a drawn map.
type DrawOptions struct {
	CropToBorder bool // mask pixels outside the coverage region
	DrawBorder   bool // outline the coverage region
}

// Drawer renders a source.
type Drawer interface {
	// Draw paints the source into dst, which is sized to the viewport's
	// canvas. It reports whether the source covered the whole canvas. Errors
	// wrapping ErrResourceExhausted mean memory ran out.
	Draw(vp viewport.Viewport, opts DrawOptions, dst draw.Image) (bool, error)
}

// Source is the full capability set of a map.
type Source interface {
	Definition() *Definition
	ID() string
	Kind() Kind
	Transformer
	Scaler
	Activator
	Drawer
}
