package mapsource

import (
	"context"
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"
)

// ImagePyramid is an in-memory TileReader built from a single decoded image.
// Each level halves the previous one until the image fits in one tile.
type ImagePyramid struct {
	tileSize int
	levels   []image.Image
}

// NewImagePyramid builds a pyramid of at most maxLevels levels from img.
func NewImagePyramid(img image.Image, tileSize, maxLevels int) *ImagePyramid {
	if tileSize <= 0 {
		tileSize = TileSize
	}
	if maxLevels <= 0 {
		maxLevels = 8
	}
	p := &ImagePyramid{tileSize: tileSize, levels: []image.Image{img}}
	cur := img
	for len(p.levels) < maxLevels {
		b := cur.Bounds()
		if b.Dx() <= tileSize && b.Dy() <= tileSize {
			break
		}
		w, h := (b.Dx()+1)/2, (b.Dy()+1)/2
		next := image.NewRGBA(image.Rect(0, 0, w, h))
		xdraw.ApproxBiLinear.Scale(next, next.Bounds(), cur, b, xdraw.Src, nil)
		p.levels = append(p.levels, next)
		cur = next
	}
	return p
}

func (p *ImagePyramid) TileSize() int { return p.tileSize }

func (p *ImagePyramid) Levels() int { return len(p.levels) }

// ReadTile returns the sub-image for a tile. Edge tiles are smaller than the
// tile size.
func (p *ImagePyramid) ReadTile(_ context.Context, level, col, row int) (image.Image, error) {
	if level < 0 || level >= len(p.levels) {
		return nil, fmt.Errorf("level %d out of range", level)
	}
	img := p.levels[level]
	b := img.Bounds()
	r := image.Rect(col*p.tileSize, row*p.tileSize, (col+1)*p.tileSize, (row+1)*p.tileSize).
		Add(b.Min).Intersect(b)
	if r.Empty() {
		return nil, fmt.Errorf("tile %d/%d/%d out of range", level, col, row)
	}
	sub, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	})
	if !ok {
		dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
		xdraw.Copy(dst, image.Point{}, img, r, xdraw.Src, nil)
		return dst, nil
	}
	return sub.SubImage(r), nil
}

func (p *ImagePyramid) Close() error { return nil }
