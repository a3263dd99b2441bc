package tui

import (
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/beetlebugorg/chartview/pkg/engine"
)

// vessel is a dead-reckoned position used to drive the map without a
// receiver.
type vessel struct {
	pos     orb.Point
	bearing float64 // degrees
	speed   float64 // metres per second
	last    time.Time
}

// step advances the vessel to now and returns its fix.
func (v *vessel) step(now time.Time) engine.Location {
	if !v.last.IsZero() && v.speed > 0 {
		d := now.Sub(v.last).Seconds() * v.speed
		v.pos = geo.PointAtBearingAndDistance(v.pos, v.bearing, d)
	}
	v.last = now
	return engine.Location{
		Lat:     v.pos.Lat(),
		Lon:     v.pos.Lon(),
		Bearing: v.bearing,
		Speed:   v.speed,
		Time:    now,
	}
}

func (v *vessel) turn(deg float64) {
	v.bearing = math.Mod(v.bearing+deg+360, 360)
}

func (v *vessel) accelerate(mps float64) {
	v.speed = math.Max(0, v.speed+mps)
}
