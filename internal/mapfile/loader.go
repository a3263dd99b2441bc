// Package mapfile finds maps in a directory tree and turns them into map
// sources.
//
// Two kinds of files are recognised:
//
//   - images (PNG, JPEG, GIF, TIFF, BMP, WebP) with a world file next to
//     them, such as harbour.png + harbour.pgw, become raster maps;
//   - GeoJSON feature collections (*.geojson) become vector maps. The
//     optional top-level members "title", "scale" (metres per pixel),
//     "style" and "priority" describe the map.
package mapfile

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/beetlebugorg/chartview/pkg/catalog"
	"github.com/beetlebugorg/chartview/pkg/mapsource"
)

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".tif": true, ".tiff": true, ".bmp": true, ".webp": true,
}

// vectorWidth is the pixel width a vector map spans at native scale when
// the file does not set one.
const vectorWidth = 1024

// Loader is a catalog.Loader for world-file rasters and GeoJSON vectors.
type Loader struct {
	// Styles resolves the "style" member of vector maps. Optional.
	Styles mapsource.StyleLoader

	Raster mapsource.RasterOptions

	// MaxLevels bounds the pyramid built for each raster. Default 8.
	MaxLevels int

	root string
}

var _ catalog.Loader = (*Loader)(nil)

// List walks root and returns every recognised map file. Images without a
// world file are skipped.
func (l *Loader) List(root string) ([]catalog.Resource, error) {
	l.root = root
	var out []catalog.Resource
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		switch {
		case ext == ".geojson":
		case imageExts[ext]:
			if worldFile(path) == "" {
				return nil
			}
		default:
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, catalog.Resource{Path: path, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	return out, err
}

// id is the slash separated path of a file relative to the listed root.
func (l *Loader) id(path string) string {
	if l.root != "" {
		if rel, err := filepath.Rel(l.root, path); err == nil {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(path)
}

func title(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Parse reads the definition of one map file.
func (l *Loader) Parse(ctx context.Context, r catalog.Resource) (*mapsource.Definition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.ToLower(filepath.Ext(r.Path)) == ".geojson" {
		return l.parseVector(r.Path)
	}
	return l.parseRaster(r.Path)
}

func (l *Loader) parseRaster(path string) (*mapsource.Definition, error) {
	wf := worldFile(path)
	if wf == "" {
		return nil, fmt.Errorf("%s: no world file", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cal, err := ReadWorldFile(wf, cfg.Width, cfg.Height)
	if err != nil {
		return nil, err
	}
	if err := cal.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", wf, err)
	}
	return &mapsource.Definition{
		ID:          l.id(path),
		Title:       title(path),
		Path:        path,
		Kind:        mapsource.KindRaster,
		Bounds:      cal.Bounds(),
		Region:      cal.Outline(),
		Scale:       cal.NativeScale(),
		Calibration: cal,
	}, nil
}

func readCollection(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return fc, nil
}

func (l *Loader) parseVector(path string) (*mapsource.Definition, error) {
	fc, err := readCollection(path)
	if err != nil {
		return nil, err
	}
	var b orb.Bound
	n := 0
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		if n == 0 {
			b = f.Geometry.Bound()
		} else {
			b = b.Union(f.Geometry.Bound())
		}
		n++
	}
	if n == 0 {
		return nil, fmt.Errorf("%s: no features", path)
	}

	def := &mapsource.Definition{
		ID:     l.id(path),
		Title:  title(path),
		Path:   path,
		Kind:   mapsource.KindVector,
		Bounds: b,
	}
	if m := fc.ExtraMembers; m != nil {
		def.Title = m.MustString("title", def.Title)
		def.Scale = m.MustFloat64("scale", 0)
		def.Style = m.MustString("style", "")
		def.Priority = m.MustInt("priority", 0)
	}
	if def.Scale <= 0 {
		lat := (b.Min.Lat() + b.Max.Lat()) / 2
		width := geo.Distance(orb.Point{b.Min.Lon(), lat}, orb.Point{b.Max.Lon(), lat})
		def.Scale = max(width/vectorWidth, 0.5)
	}
	return def, nil
}

// LoadFeatures implements mapsource.FeatureLoader.
func (l *Loader) LoadFeatures(ctx context.Context, def *mapsource.Definition) (*geojson.FeatureCollection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return readCollection(def.Path)
}

// OpenRaster decodes the image of a raster map into an in-memory pyramid.
func (l *Loader) OpenRaster(ctx context.Context, def *mapsource.Definition) (mapsource.TileReader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(def.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", def.Path, err)
	}
	return mapsource.NewImagePyramid(img, mapsource.TileSize, l.MaxLevels), nil
}

// Open creates an inactive source for def.
func (l *Loader) Open(def *mapsource.Definition) (mapsource.Source, error) {
	switch def.Kind {
	case mapsource.KindRaster:
		r, err := mapsource.NewRaster(def, l, l.Raster)
		if err != nil {
			return nil, err
		}
		return r, nil
	case mapsource.KindVector:
		v, err := mapsource.NewVector(def, mapsource.VectorOptions{Features: l, Styles: l.Styles})
		if err != nil {
			return nil, err
		}
		return v, nil
	}
	return nil, fmt.Errorf("%s: cannot open %s map", def.ID, def.Kind)
}
