package viewport

import (
	"image"
	"testing"
)

func TestCanvasSize(t *testing.T) {
	tests := []struct {
		name         string
		w, h         int
		rotate       bool
		wantW, wantH int
	}{
		{"landscape", 800, 480, false, 928, 608},
		{"portrait", 480, 800, false, 608, 928},
		{"rotate uses diagonal", 800, 480, true, 800 + 331, 800 + 331},
		{"rotate small uses overscan", 200, 100, true, 328, 328},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := CanvasSize(tt.w, tt.h, tt.rotate, DefaultOverscan)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("CanvasSize(%d, %d, %v) = %d×%d, want %d×%d",
					tt.w, tt.h, tt.rotate, w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestWithScreenIsCopy(t *testing.T) {
	var v Viewport
	v.MapID = "a"
	u := v.WithScreen(100, 50, false, DefaultOverscan)

	if v.Width != 0 || v.CanvasWidth != 0 {
		t.Error("WithScreen modified the receiver")
	}
	if u.ViewArea != image.Rect(0, 0, 100, 50) {
		t.Errorf("ViewArea = %v", u.ViewArea)
	}
	if u.MapID != "a" {
		t.Error("WithScreen dropped unrelated fields")
	}
}

func TestCorrection(t *testing.T) {
	base := Viewport{MapID: "m", Scale: 10}.WithScreen(100, 100, false, 10)
	base.CenterXY = XY{500, 500}

	t.Run("identical", func(t *testing.T) {
		if got := base.Correction(base); got != image.Pt(-10, -10) {
			t.Errorf("Correction = %v, want (-10,-10)", got)
		}
	})

	t.Run("panned right", func(t *testing.T) {
		cur := base
		cur.CenterXY = XY{505, 497}
		// The buffer must move left by 5 and down by 3.
		if got := cur.Correction(base); got != image.Pt(-15, -7) {
			t.Errorf("Correction = %v, want (-15,-7)", got)
		}
	})

	t.Run("look-ahead grew", func(t *testing.T) {
		cur := base
		cur.LookAhead = image.Pt(0, 4)
		if got := cur.Correction(base); got != image.Pt(-10, -6) {
			t.Errorf("Correction = %v, want (-10,-6)", got)
		}
	})

	t.Run("other map", func(t *testing.T) {
		cur := base
		cur.MapID = "n"
		cur.CenterXY = XY{900, 900}
		if got := cur.Correction(base); got != image.Pt(-10, -10) {
			t.Errorf("Correction = %v, want (-10,-10)", got)
		}
	})
}

func TestCanvasMapping(t *testing.T) {
	v := Viewport{}.WithScreen(100, 80, false, 10)
	v.CenterXY = XY{1000, 2000}
	v.LookAhead = image.Pt(3, -4)

	c := v.ToCanvas(v.CenterXY).Round()
	want := image.Pt(v.CanvasWidth/2+3, v.CanvasHeight/2-4)
	if c != want {
		t.Errorf("center maps to canvas %v, want %v", c, want)
	}

	r := v.CanvasRect()
	if r.Dx() != v.CanvasWidth || r.Dy() != v.CanvasHeight {
		t.Errorf("CanvasRect size %v", r.Size())
	}
	if !v.ScreenRect().In(r) {
		t.Errorf("screen %v not inside canvas %v", v.ScreenRect(), r)
	}
}

func TestLocationOnScreen(t *testing.T) {
	v := Viewport{}.WithScreen(100, 100, false, 10)
	v.CenterXY = XY{50, 50}

	if _, ok := v.LocationOnScreen(); ok {
		t.Error("no location should not be on screen")
	}

	v.HasLocation = true
	v.LocationXY = XY{60, 40}
	p, ok := v.LocationOnScreen()
	if !ok || p != image.Pt(60, 40) {
		t.Errorf("LocationOnScreen = %v, %v", p, ok)
	}

	v.LocationXY = XY{500, 40}
	if _, ok := v.LocationOnScreen(); ok {
		t.Error("far location reported on screen")
	}
}
