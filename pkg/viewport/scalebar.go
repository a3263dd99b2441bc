package viewport

import (
	"fmt"
	"image"
	"math"
	"time"
)

// ScaleBar returns a round ground distance in metres and its length in pixels
// for a scale bar drawn in area at mpp metres per pixel. The bar is about an
// eighth of the area width (a sixth in portrait) and never longer than a
// quarter of the screen.
func ScaleBar(mpp float64, area image.Rectangle, screenWidth int) (meters, width int) {
	if mpp <= 0 {
		return 0, 0
	}
	d := 6
	if area.Dx() > area.Dy() {
		d = 8
	}
	meters = roundScaleDistance(int(mpp * float64(area.Dx()) / float64(d)))
	width = int(float64(meters) / mpp)
	if screenWidth > 0 && width > screenWidth/4 {
		width /= 2
		meters /= 2
	}
	return meters, width
}

func roundScaleDistance(m int) int {
	switch {
	case m == 0:
		return 1
	case m < 10:
		return m
	case m < 40:
		return m / 10 * 10
	case m < 80:
		return 50
	case m < 130:
		return 100
	case m < 300:
		return 200
	case m < 700:
		return 500
	case m < 900:
		return 800
	case m < 1300:
		return 1000
	case m < 3000:
		return 2000
	case m < 7000:
		return 5000
	case m < 10000:
		return 8000
	case m < 80000:
		return int(math.Ceil(float64(m)/10000) * 10000)
	}
	return int(math.Ceil(float64(m)/100000) * 100000)
}

// FormatDistance renders metres as a short label, switching to kilometres at
// one kilometre.
func FormatDistance(m int) string {
	if m < 1000 {
		return fmt.Sprintf("%d m", m)
	}
	if m%1000 == 0 {
		return fmt.Sprintf("%d km", m/1000)
	}
	return fmt.Sprintf("%.1f km", float64(m)/1000)
}

// Corner names a screen corner used to place the scale bar.
type Corner int

const (
	BottomLeft Corner = iota + 1
	TopLeft
	TopRight
	BottomRight
)

// ScalePlacer keeps the scale bar in the corner the look-ahead points away
// from. A new corner is adopted only after it has been requested
// continuously for Delay, so the bar does not jump around while turning.
type ScalePlacer struct {
	Delay time.Duration

	current Corner
	since   time.Time
}

// Place returns the corner to use at time now for the given bearing.
func (p *ScalePlacer) Place(bearing float64, following, rotate bool, now time.Time) Corner {
	want := BottomLeft
	if following && !rotate {
		switch b := NormalizeAngle(bearing); {
		case b < 90:
			want = BottomLeft
		case b < 180:
			want = TopLeft
		case b < 270:
			want = TopRight
		default:
			want = BottomRight
		}
	}
	if p.current == 0 {
		p.current = want
	}
	if want == p.current {
		p.since = time.Time{}
		return p.current
	}
	if p.since.IsZero() {
		p.since = now
		return p.current
	}
	if now.Sub(p.since) >= p.Delay {
		p.current = want
		p.since = time.Time{}
	}
	return p.current
}
