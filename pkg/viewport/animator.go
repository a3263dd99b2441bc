package viewport

import (
	"image"
	"math"
	"sync"
)

// Easer drives one scalar toward a target with bounded acceleration.
//
// Each Step accelerates by Inc (capped at Max) while the gap is large compared
// to the current velocity, pushes twice as hard when the target lies behind the
// direction of motion, and brakes by half an increment otherwise. When the gap
// is smaller than one increment the value snaps to the target.
//
// Angular easers work in degrees, always take the shorter way around the
// circle and keep Value in [0, 360).
type Easer struct {
	Max, Inc float64
	Angular  bool

	Value    float64
	Target   float64
	Velocity float64
}

// Settled reports whether the value has reached its target.
func (e *Easer) Settled() bool {
	return e.Value == e.Target
}

// Reset puts the easer at rest at v.
func (e *Easer) Reset(v float64) {
	e.Value, e.Target, e.Velocity = v, v, 0
}

// Step advances the easer by one tick and reports whether the value changed.
func (e *Easer) Step() bool {
	if e.Settled() {
		return false
	}

	gap := e.Target - e.Value
	if e.Angular && math.Abs(gap) > 180 {
		gap -= signum(gap) * 360
	}

	switch {
	case math.Abs(gap) > math.Abs(e.Velocity)*(e.Max/e.Inc):
		e.Velocity += signum(gap) * e.Inc
		if math.Abs(e.Velocity) > e.Max {
			e.Velocity = signum(e.Velocity) * e.Max
		}
	case signum(gap) != signum(e.Velocity):
		e.Velocity += signum(gap) * e.Inc * 2
	case math.Abs(e.Velocity) > e.Inc:
		e.Velocity -= signum(gap) * e.Inc * 0.5
	}

	if math.Abs(gap) < e.Inc {
		e.Value = e.Target
		e.Velocity = 0
		return true
	}

	e.Value += e.Velocity
	if e.Angular {
		e.Value = NormalizeAngle(e.Value)
	}
	return true
}

// NormalizeAngle maps a in degrees into [0, 360).
func NormalizeAngle(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	return a
}

// AngleDiff returns the signed shortest turn from b to a in degrees.
func AngleDiff(a, b float64) float64 {
	d := a - b
	if math.Abs(d) > 180 {
		d -= signum(d) * 360
	}
	return d
}

func signum(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// Conditions gate the look-ahead animation. It runs only while all three hold.
type Conditions struct {
	Moving    bool // a valid bearing is known
	Following bool // the map tracks the location
	Fixed     bool // a valid location is known
}

func (c Conditions) animate() bool {
	return c.Moving && c.Following && c.Fixed
}

// AnimatorOptions configures the look-ahead and heading easers.
type AnimatorOptions struct {
	MaxShift float64 // look-ahead speed cap, pixels per tick
	IncShift float64 // look-ahead acceleration, pixels per tick²
	MaxTurn  float64 // heading speed cap, degrees per tick
	IncTurn  float64 // heading acceleration, degrees per tick²

	// Deadband is the bearing change in degrees below which the heading
	// target is left alone, so GPS jitter does not wobble the view.
	Deadband float64
}

// DefaultAnimatorOptions returns the stock easing constants.
func DefaultAnimatorOptions() AnimatorOptions {
	return AnimatorOptions{
		MaxShift: 20,
		IncShift: 2,
		MaxTurn:  20,
		IncTurn:  2,
		Deadband: 10,
	}
}

// Animator eases the look-ahead offset. Two scalars are driven each tick:
// the offset magnitude and the smoothed heading it points along. The
// resulting pixel offset is
//
//	x = round(-sin(heading) * magnitude)
//	y = round( cos(heading) * magnitude)
//
// Animator is safe for concurrent use: input handlers update targets while
// the presenter calls Tick.
type Animator struct {
	mu sync.Mutex

	opts  AnimatorOptions
	shift Easer
	turn  Easer

	cond      Conditions
	lookAhead float64 // configured magnitude for the current screen
	offset    image.Point
	dirty     bool // offset changed outside Tick
	active    bool
}

// NewAnimator returns an animator at rest.
func NewAnimator(opts AnimatorOptions) *Animator {
	if opts.IncShift <= 0 || opts.IncTurn <= 0 {
		opts = DefaultAnimatorOptions()
	}
	return &Animator{
		opts:  opts,
		shift: Easer{Max: opts.MaxShift, Inc: opts.IncShift},
		turn:  Easer{Max: opts.MaxTurn, Inc: opts.IncTurn, Angular: true},
	}
}

// SetLookAhead sets the look-ahead distance as a percentage of half the
// shorter side of area.
func (a *Animator) SetLookAhead(percent int, area image.Rectangle) {
	half := area.Dx()
	if area.Dy() < half {
		half = area.Dy()
	}
	half /= 2

	a.mu.Lock()
	defer a.mu.Unlock()
	a.lookAhead = float64(int(float64(half) * float64(percent) * 0.01))
	a.apply()
}

// SetConditions updates the animation gate. When the gate closes the offset
// collapses to zero at once, whatever the velocity was.
func (a *Animator) SetConditions(c Conditions) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cond = c
	a.apply()
}

// Conditions returns the current gate.
func (a *Animator) Conditions() Conditions {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cond
}

// apply must be called with a.mu held.
func (a *Animator) apply() {
	if a.cond.animate() {
		a.shift.Target = a.lookAhead
		return
	}
	a.shift.Reset(0)
	if a.offset != (image.Point{}) {
		a.offset = image.Point{}
		a.dirty = true
	}
}

// SetBearing proposes a new direction for the look-ahead. The target changes
// only when it differs from the current one by more than the dead band. It
// reports whether the target moved.
func (a *Animator) SetBearing(bearing float64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if math.Abs(AngleDiff(a.turn.Target, bearing)) <= a.opts.Deadband {
		return false
	}
	a.turn.Target = NormalizeAngle(bearing)
	return true
}

// Seed starts the animation from an existing offset, typically the position
// of the location on screen when following is switched on, so that the view
// does not jump.
func (a *Animator) Seed(offset image.Point) {
	a.mu.Lock()
	defer a.mu.Unlock()

	dx, dy := float64(offset.X), float64(offset.Y)
	a.shift.Value = math.Hypot(dx, dy)
	a.shift.Velocity = 0
	if offset != (image.Point{}) {
		a.turn.Value = NormalizeAngle(math.Atan2(-dx, dy) * 180 / math.Pi)
		a.turn.Velocity = 0
	}
	a.offset = offset
	a.dirty = true
}

// Tick advances both easers by one step and returns the resulting offset and
// whether it differs from the previous tick.
func (a *Animator) Tick() (image.Point, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	changed := a.shift.Step()
	// Heading only matters while there is an offset to point.
	if a.shift.Target > 0 && a.turn.Step() {
		changed = true
	}
	a.active = changed

	if changed {
		rad := a.turn.Value * math.Pi / 180
		a.offset = image.Pt(
			int(math.Round(math.Sin(rad)*-a.shift.Value)),
			int(math.Round(math.Cos(rad)*a.shift.Value)),
		)
	}
	if a.dirty {
		a.dirty = false
		changed = true
	}
	return a.offset, changed
}

// Active reports whether the last tick moved the offset.
func (a *Animator) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active || !a.shift.Settled()
}

// Offset returns the current look-ahead offset.
func (a *Animator) Offset() image.Point {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.offset
}

// Heading returns the smoothed heading in degrees.
func (a *Animator) Heading() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.turn.Value
}
