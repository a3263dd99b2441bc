package main

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/beetlebugorg/chartview/pkg/catalog"
	"github.com/beetlebugorg/chartview/pkg/mapsource"
)

// empty never draws anything; the queries only look at definitions.
type empty struct{}

func (empty) LoadFeatures(context.Context, *mapsource.Definition) (*geojson.FeatureCollection, error) {
	return geojson.NewFeatureCollection(), nil
}

func main() {
	cat := catalog.New(nil)

	// Three nested harbour maps, coarsest first
	for i, m := range []struct {
		id    string
		scale float64
		bound orb.Bound
	}{
		{"approach", 50, orb.Bound{Min: orb.Point{-71.2, 42.1}, Max: orb.Point{-70.6, 42.6}}},
		{"harbor", 10, orb.Bound{Min: orb.Point{-71.1, 42.25}, Max: orb.Point{-70.9, 42.4}}},
		{"docks", 2, orb.Bound{Min: orb.Point{-71.06, 42.34}, Max: orb.Point{-71.02, 42.37}}},
	} {
		def := &mapsource.Definition{
			ID:       m.id,
			Title:    m.id,
			Kind:     mapsource.KindVector,
			Bounds:   m.bound,
			Scale:    m.scale,
			Priority: i,
		}
		src, err := mapsource.NewVector(def, mapsource.VectorOptions{Features: empty{}})
		if err != nil {
			panic(err)
		}
		cat.Add(src)
	}

	// Finest first without a reference scale
	for _, src := range cat.MapsAt(42.355, -71.04, 0) {
		fmt.Printf("  %-10s %6.1f m/px\n", src.ID(), src.NativeScale())
	}

	// Closest to 12 m/px first
	fmt.Println("near 12 m/px:")
	for _, src := range cat.MapsAt(42.355, -71.04, 12) {
		fmt.Printf("  %-10s %6.1f m/px\n", src.ID(), src.NativeScale())
	}

	// Maps needed to fill a view around the docks
	visible := orb.Bound{Min: orb.Point{-71.08, 42.33}, Max: orb.Point{-71.00, 42.38}}
	docks, _ := cat.Get("docks")
	for _, src := range cat.CoveringMaps(docks, visible, false, false) {
		fmt.Printf("covering: %s\n", src.ID())
	}
}
