package mapsource

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

const (
	earthRadius        = 6378137.0
	earthCircumference = 2 * math.Pi * earthRadius

	// MaxLatitude is the latitude limit of the Web Mercator projection.
	MaxLatitude = 85.05112877980659

	// TileSize is the edge length of slippy-map tiles in pixels.
	TileSize = 256
)

// Calibration is an affine pixel to geographic transform for a raster map,
// laid out like a world file:
//
//	lon = A*x + B*y + C
//	lat = D*x + E*y + F
//
// where (x, y) is a pixel of the full-resolution image.
type Calibration struct {
	Width  int `json:"width"`
	Height int `json:"height"`

	A float64 `json:"a"`
	B float64 `json:"b"`
	C float64 `json:"c"`
	D float64 `json:"d"`
	E float64 `json:"e"`
	F float64 `json:"f"`
}

// Validate checks that the transform is invertible and the image non-empty.
func (c *Calibration) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return errors.New("calibration: empty image")
	}
	if c.det() == 0 {
		return errors.New("calibration: singular transform")
	}
	return nil
}

func (c *Calibration) det() float64 { return c.A*c.E - c.B*c.D }

// PixelToGeo converts a full-resolution pixel to (lat, lon).
func (c *Calibration) PixelToGeo(x, y float64) (lat, lon float64) {
	return c.D*x + c.E*y + c.F, c.A*x + c.B*y + c.C
}

// GeoToPixel converts (lat, lon) to a full-resolution pixel.
func (c *Calibration) GeoToPixel(lat, lon float64) (x, y float64) {
	det := c.det()
	dl, dp := lon-c.C, lat-c.F
	return (c.E*dl - c.B*dp) / det, (c.A*dp - c.D*dl) / det
}

// Outline returns the image border as a closed geographic ring.
func (c *Calibration) Outline() orb.Ring {
	w, h := float64(c.Width), float64(c.Height)
	ring := make(orb.Ring, 0, 5)
	for _, px := range [][2]float64{{0, 0}, {w, 0}, {w, h}, {0, h}, {0, 0}} {
		lat, lon := c.PixelToGeo(px[0], px[1])
		ring = append(ring, orb.Point{lon, lat})
	}
	return ring
}

// Bounds returns the geographic bounding box of the image.
func (c *Calibration) Bounds() orb.Bound {
	return c.Outline().Bound()
}

// NativeScale returns the ground distance of one pixel at the image center,
// averaged over both axes.
func (c *Calibration) NativeScale() float64 {
	cx, cy := float64(c.Width)/2, float64(c.Height)/2
	lat0, lon0 := c.PixelToGeo(cx, cy)
	lat1, lon1 := c.PixelToGeo(cx+1, cy)
	lat2, lon2 := c.PixelToGeo(cx, cy+1)
	p0 := orb.Point{lon0, lat0}
	dx := geo.Distance(p0, orb.Point{lon1, lat1})
	dy := geo.Distance(p0, orb.Point{lon2, lat2})
	return (dx + dy) / 2
}

// mercatorWorld returns the width in pixels of the Web Mercator world whose
// resolution at lat is mpp metres per pixel.
func mercatorWorld(mpp, lat float64) float64 {
	return earthCircumference * math.Cos(lat*math.Pi/180) / mpp
}

// mercatorResolution returns metres per pixel at lat for a world of the
// given width.
func mercatorResolution(world, lat float64) float64 {
	return earthCircumference * math.Cos(lat*math.Pi/180) / world
}

func mercatorProject(lat, lon, world float64) (x, y float64) {
	lat = math.Max(-MaxLatitude, math.Min(MaxLatitude, lat))
	s := math.Sin(lat * math.Pi / 180)
	x = (lon + 180) / 360 * world
	y = (0.5 - math.Log((1+s)/(1-s))/(4*math.Pi)) * world
	return x, y
}

func mercatorUnproject(x, y, world float64) (lat, lon float64) {
	lon = x/world*360 - 180
	n := math.Pi - 2*math.Pi*y/world
	lat = 180 / math.Pi * math.Atan(math.Sinh(n))
	return lat, lon
}

// referenceLatitude is the latitude at which a map's scale is quoted.
func referenceLatitude(b orb.Bound) float64 {
	if b.IsEmpty() {
		return 0
	}
	lat := b.Center().Y()
	return math.Max(-MaxLatitude, math.Min(MaxLatitude, lat))
}
