package viewport

import (
	"image"
	"testing"
	"time"
)

func TestRoundScaleDistance(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, 1},
		{7, 7},
		{37, 30},
		{60, 50},
		{120, 100},
		{250, 200},
		{600, 500},
		{850, 800},
		{1200, 1000},
		{2500, 2000},
		{6000, 5000},
		{9000, 8000},
		{12000, 20000},
		{85000, 100000},
	}
	for _, tt := range tests {
		if got := roundScaleDistance(tt.in); got != tt.want {
			t.Errorf("roundScaleDistance(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestScaleBar(t *testing.T) {
	m, w := ScaleBar(10, image.Rect(0, 0, 800, 480), 800)
	// 10 m/px * 800 / 8 = 1000 m → 1000 m, 100 px
	if m != 1000 || w != 100 {
		t.Errorf("ScaleBar = %d m, %d px; want 1000 m, 100 px", m, w)
	}

	if m, w := ScaleBar(0, image.Rect(0, 0, 800, 480), 800); m != 0 || w != 0 {
		t.Errorf("zero scale should yield no bar, got %d, %d", m, w)
	}
}

func TestFormatDistance(t *testing.T) {
	tests := map[int]string{
		50:    "50 m",
		1000:  "1 km",
		2500:  "2.5 km",
		20000: "20 km",
	}
	for in, want := range tests {
		if got := FormatDistance(in); got != want {
			t.Errorf("FormatDistance(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestScalePlacerDelay(t *testing.T) {
	p := ScalePlacer{Delay: 2 * time.Second}
	t0 := time.Unix(0, 0)

	if c := p.Place(45, true, false, t0); c != BottomLeft {
		t.Fatalf("initial corner = %v", c)
	}
	if c := p.Place(200, true, false, t0.Add(time.Second)); c != BottomLeft {
		t.Errorf("corner switched before delay: %v", c)
	}
	if c := p.Place(200, true, false, t0.Add(4*time.Second)); c != TopRight {
		t.Errorf("corner after delay = %v, want TopRight", c)
	}
	if c := p.Place(200, false, false, t0.Add(5*time.Second)); c != TopRight {
		t.Errorf("corner switched immediately on unfollow: %v", c)
	}
}
