package main

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"log"
	"os"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/beetlebugorg/chartview/pkg/catalog"
	"github.com/beetlebugorg/chartview/pkg/engine"
	"github.com/beetlebugorg/chartview/pkg/mapsource"
)

// features serves one in-memory collection for every definition.
type features struct{ fc *geojson.FeatureCollection }

func (f features) LoadFeatures(context.Context, *mapsource.Definition) (*geojson.FeatureCollection, error) {
	return f.fc, nil
}

type styles struct{}

func (styles) LoadStyle(string) (*mapsource.Theme, error) { return mapsource.DefaultTheme(), nil }

// host keeps the last presented frame.
type host struct {
	engine.NopHost
	last chan *image.RGBA
}

func (h host) Present(img *image.RGBA) {
	cp := image.NewRGBA(img.Rect)
	copy(cp.Pix, img.Pix)
	select {
	case h.last <- cp:
	default:
	}
}

func main() {
	// An island off Boston
	island := geojson.NewFeature(orb.Polygon{{
		{-70.95, 42.30}, {-70.90, 42.30}, {-70.90, 42.34}, {-70.95, 42.34}, {-70.95, 42.30},
	}})
	island.Properties["category"] = "land"
	fc := geojson.NewFeatureCollection()
	fc.Append(island)

	def := &mapsource.Definition{
		ID:     "boston",
		Title:  "Boston Harbor",
		Kind:   mapsource.KindVector,
		Bounds: orb.Bound{Min: orb.Point{-71.1, 42.2}, Max: orb.Point{-70.8, 42.45}},
		Scale:  20,
	}
	src, err := mapsource.NewVector(def, mapsource.VectorOptions{Features: features{fc}, Styles: styles{}})
	if err != nil {
		log.Fatal(err)
	}

	cat := catalog.New(nil)
	cat.Add(src)

	h := host{last: make(chan *image.RGBA, 1)}
	eng := engine.New(cat, h, engine.DefaultOptions())
	eng.SetScreen(800, 600)
	eng.SetMapCenter(42.32, -70.93)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := eng.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer eng.Shutdown()

	var img *image.RGBA
	select {
	case img = <-h.last:
	case <-ctx.Done():
		log.Fatal("no frame")
	}

	vp := eng.Viewport()
	fmt.Printf("Map: %s (%.1f m/px)\n", vp.MapID, vp.Scale)

	f, err := os.Create("quick-start.png")
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		log.Fatal(err)
	}
}
