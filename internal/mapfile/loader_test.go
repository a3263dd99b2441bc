package mapfile

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beetlebugorg/chartview/internal/store"
	"github.com/beetlebugorg/chartview/pkg/catalog"
	"github.com/beetlebugorg/chartview/pkg/mapsource"
)

const harbourWorld = "0.001\n0\n0\n-0.001\n24.0005\n60.9995\n"

const islandsGeoJSON = `{
  "type": "FeatureCollection",
  "title": "Islands",
  "scale": 5,
  "priority": 2,
  "features": [
    {"type": "Feature", "properties": {"category": "land"},
     "geometry": {"type": "Polygon", "coordinates": [[[24.1, 60.5], [24.3, 60.5], [24.3, 60.6], [24.1, 60.5]]]}},
    {"type": "Feature", "properties": {"category": "poi"},
     "geometry": {"type": "Point", "coordinates": [24.4, 60.7]}}
  ]
}`

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.Set(0, 0, color.RGBA{255, 0, 0, 255})
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func write(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func mapRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "charts"), 0o755))
	writePNG(t, filepath.Join(root, "charts", "harbour.png"), 512, 256)
	write(t, filepath.Join(root, "charts", "harbour.pgw"), harbourWorld)
	writePNG(t, filepath.Join(root, "charts", "photo.png"), 16, 16)
	writePNG(t, filepath.Join(root, "broken.png"), 16, 16)
	write(t, filepath.Join(root, "broken.wld"), "1\n2\n")
	write(t, filepath.Join(root, "islands.geojson"), islandsGeoJSON)
	write(t, filepath.Join(root, ".trash", "old.geojson"), islandsGeoJSON)
	write(t, filepath.Join(root, "notes.txt"), "hello")
	return root
}

func TestList(t *testing.T) {
	root := mapRoot(t)
	l := &Loader{}
	res, err := l.List(root)
	require.NoError(t, err)

	var paths []string
	for _, r := range res {
		rel, _ := filepath.Rel(root, r.Path)
		paths = append(paths, filepath.ToSlash(rel))
		assert.NotZero(t, r.Size)
	}
	assert.ElementsMatch(t, []string{"broken.png", "charts/harbour.png", "islands.geojson"}, paths)
}

func TestReadWorldFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.pgw")
	write(t, path, harbourWorld)
	cal, err := ReadWorldFile(path, 512, 256)
	require.NoError(t, err)

	lat, lon := cal.PixelToGeo(0, 0)
	assert.InDelta(t, 61.0, lat, 1e-9)
	assert.InDelta(t, 24.0, lon, 1e-9)
	lat, lon = cal.PixelToGeo(512, 256)
	assert.InDelta(t, 60.744, lat, 1e-9)
	assert.InDelta(t, 24.512, lon, 1e-9)

	write(t, path, "0.001\n0\nx\n")
	_, err = ReadWorldFile(path, 1, 1)
	assert.Error(t, err)
}

func TestParse(t *testing.T) {
	root := mapRoot(t)
	l := &Loader{}
	_, err := l.List(root)
	require.NoError(t, err)
	ctx := context.Background()

	def, err := l.Parse(ctx, catalog.Resource{Path: filepath.Join(root, "charts", "harbour.png")})
	require.NoError(t, err)
	assert.Equal(t, "charts/harbour.png", def.ID)
	assert.Equal(t, "harbour", def.Title)
	assert.Equal(t, mapsource.KindRaster, def.Kind)
	assert.InDelta(t, 24.0, def.Bounds.Min.Lon(), 1e-9)
	assert.InDelta(t, 61.0, def.Bounds.Max.Lat(), 1e-9)
	assert.Greater(t, def.Scale, 50.0)
	assert.True(t, def.Covers(60.9, 24.1))

	def, err = l.Parse(ctx, catalog.Resource{Path: filepath.Join(root, "islands.geojson")})
	require.NoError(t, err)
	assert.Equal(t, "Islands", def.Title)
	assert.Equal(t, mapsource.KindVector, def.Kind)
	assert.Equal(t, 5.0, def.Scale)
	assert.Equal(t, 2, def.Priority)
	assert.InDelta(t, 24.4, def.Bounds.Max.Lon(), 1e-9)
	assert.InDelta(t, 60.7, def.Bounds.Max.Lat(), 1e-9)

	_, err = l.Parse(ctx, catalog.Resource{Path: filepath.Join(root, "broken.png")})
	assert.Error(t, err)
}

func TestBuildAndActivate(t *testing.T) {
	root := mapRoot(t)
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	opts := catalog.DefaultBuildOptions()
	opts.Store = st
	l := &Loader{}
	c, err := catalog.Build(context.Background(), root, l, opts)
	require.NoError(t, err)

	require.Len(t, c.Broken(), 1)
	assert.Equal(t, filepath.Join(root, "broken.png"), c.Broken()[0].Path)

	harbour, ok := c.Get("charts/harbour.png")
	require.True(t, ok)
	ctx := context.Background()
	require.NoError(t, harbour.Activate(ctx, harbour.NativeScale(), false))
	assert.True(t, harbour.Active())
	harbour.Deactivate()

	islands, ok := c.Get("islands.geojson")
	require.True(t, ok)
	require.NoError(t, islands.Activate(ctx, 5, false))
	assert.Equal(t, 2, islands.(*mapsource.Vector).FeatureCount())
	islands.Deactivate()

	// a second build reuses the saved index
	snap, err := st.LoadIndex(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Len(t, snap.Definitions, 3)
	_, err = catalog.Build(ctx, root, &Loader{}, opts)
	require.NoError(t, err)
}
