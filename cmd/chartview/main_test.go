package main

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		w, h int
		err  bool
	}{
		{"1024x768", 1024, 768, false},
		{"640X480", 640, 480, false},
		{"640", 0, 0, true},
		{"0x10", 0, 0, true},
		{"ax10", 0, 0, true},
	}
	for _, tt := range tests {
		w, h, err := parseSize(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.w, w)
		assert.Equal(t, tt.h, h)
	}
}

func TestSnapshotHostCopies(t *testing.T) {
	h := &snapshotHost{}
	assert.Nil(t, h.image())

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(1, 1, color.RGBA{1, 2, 3, 255})
	h.Present(img)
	img.Set(1, 1, color.RGBA{9, 9, 9, 255})

	got := h.image()
	require.NotNil(t, got)
	assert.Equal(t, color.RGBA{1, 2, 3, 255}, got.RGBAAt(1, 1), "host keeps its own copy")
}
