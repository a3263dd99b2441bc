// Package catalog indexes map definitions and answers which maps cover a
// point or an area.
//
// A catalog is built once from a map root through a Loader. Parsing runs on
// a worker pool; the parsed definitions can be persisted through an
// IndexStore and are reused as long as the content hash of the directory
// listing is unchanged.
//
// # Basic Usage
//
//	cat, err := catalog.Build(ctx, "/data/maps", loader, catalog.DefaultBuildOptions())
//	if errors.Is(err, catalog.ErrNoMaps) {
//	    // cat is empty but usable; the coverage engine falls back to the world map
//	}
//	for _, src := range cat.MapsAt(50.1, 14.4, 25) {
//	    fmt.Println(src.ID(), src.NativeScale())
//	}
//
// # Ordering
//
// MapsAt orders candidates by scale mismatch against a reference scale, then
// by declared priority (higher first), then by ID. CoveringMaps returns its
// selection in draw order, coarsest first, so finer maps paint on top.
package catalog
