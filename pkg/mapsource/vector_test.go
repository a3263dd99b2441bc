package mapsource

import (
	"context"
	"image/color"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticFeatures struct {
	fc  *geojson.FeatureCollection
	err error
}

func (s staticFeatures) LoadFeatures(context.Context, *Definition) (*geojson.FeatureCollection, error) {
	return s.fc, s.err
}

type staticStyles map[string]*Theme

func (s staticStyles) LoadStyle(name string) (*Theme, error) {
	if t, ok := s[name]; ok {
		return t, nil
	}
	return nil, errBoom
}

func testFeatures() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	lake := geojson.NewFeature(orb.Polygon{{{0.4, 0.4}, {0.6, 0.4}, {0.6, 0.6}, {0.4, 0.6}, {0.4, 0.4}}})
	lake.Properties["category"] = "water"
	fc.Append(lake)

	pier := geojson.NewFeature(orb.Point{0.3, 0.5})
	pier.Properties["category"] = "poi"
	fc.Append(pier)

	far := geojson.NewFeature(orb.LineString{{5, 5}, {6, 6}})
	far.Properties["category"] = "road"
	fc.Append(far)
	return fc
}

func testVectorDef() *Definition {
	return &Definition{
		ID:     "vector-1",
		Kind:   KindVector,
		Bounds: orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}},
		Scale:  1000,
	}
}

func TestVectorDraw(t *testing.T) {
	v, err := NewVector(testVectorDef(), VectorOptions{Features: staticFeatures{fc: testFeatures()}})
	require.NoError(t, err)
	require.NoError(t, v.Activate(context.Background(), 1000, false))
	assert.Equal(t, 3, v.FeatureCount())

	vp := testViewport(0.5, 0.5, 100, 100)
	dst := canvas(vp)
	covered, err := v.Draw(vp, DrawOptions{}, dst)
	require.NoError(t, err)
	assert.True(t, covered)

	theme := DefaultTheme()
	assert.Equal(t, theme.Categories["water"].Fill, dst.RGBAAt(50, 50), "inside the lake")
	assert.Equal(t, theme.Background, dst.RGBAAt(5, 5), "outside the lake")
	assert.Equal(t, theme.Categories["poi"].Fill, dst.RGBAAt(27, 50), "point marker")
}

func TestVectorDisabledCategory(t *testing.T) {
	theme := DefaultTheme()
	theme.Enabled = map[string]bool{"poi": true}
	def := testVectorDef()
	def.Style = "no-water"

	v, err := NewVector(def, VectorOptions{
		Features: staticFeatures{fc: testFeatures()},
		Styles:   staticStyles{"no-water": theme},
	})
	require.NoError(t, err)
	require.NoError(t, v.Activate(context.Background(), 1000, false))

	vp := testViewport(0.5, 0.5, 100, 100)
	dst := canvas(vp)
	_, err = v.Draw(vp, DrawOptions{}, dst)
	require.NoError(t, err)
	assert.Equal(t, theme.Background, dst.RGBAAt(50, 50))
	assert.Equal(t, theme.Categories["poi"].Fill, dst.RGBAAt(27, 50))
}

func TestVectorDrawOutsideRegion(t *testing.T) {
	v, err := NewVector(testVectorDef(), VectorOptions{Features: staticFeatures{fc: testFeatures()}})
	require.NoError(t, err)
	require.NoError(t, v.Activate(context.Background(), 1000, false))

	// The canvas straddles the western edge at lon 0.
	vp := testViewport(0.5, 0, 100, 100)
	dst := canvas(vp)
	covered, err := v.Draw(vp, DrawOptions{}, dst)
	require.NoError(t, err)
	assert.False(t, covered)
	assert.Equal(t, color.RGBA{}, dst.RGBAAt(10, 50), "nothing painted west of the map")
	assert.Equal(t, DefaultTheme().Background, dst.RGBAAt(90, 50))
}

func TestVectorActivationErrors(t *testing.T) {
	v, err := NewVector(testVectorDef(), VectorOptions{Features: staticFeatures{err: errBoom}})
	require.NoError(t, err)
	err = v.Activate(context.Background(), 1000, false)
	var ae *ActivationError
	require.ErrorAs(t, err, &ae)
	assert.ErrorIs(t, err, errBoom)
	assert.False(t, v.Active())

	def := testVectorDef()
	def.Style = "missing"
	v, err = NewVector(def, VectorOptions{Features: staticFeatures{fc: testFeatures()}, Styles: staticStyles{}})
	require.NoError(t, err)
	assert.Error(t, v.Activate(context.Background(), 1000, false))

	_, err = NewVector(&Definition{ID: "x"}, VectorOptions{Features: staticFeatures{}})
	var pe *ParseError
	assert.ErrorAs(t, err, &pe, "native scale required")
}
