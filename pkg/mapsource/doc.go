// Package mapsource defines the map source abstraction and its variants.
//
// A Source is anything that can place geographic positions in its own pixel
// space, change zoom, be activated and deactivated, and draw itself into a
// canvas for a viewport. Four variants are provided:
//
//   - Raster: a calibrated, pre-tiled image pyramid with an affine geo transform
//   - Online: slippy-map tiles fetched through a TileFetcher and kept in a TileCache
//   - Vector: GeoJSON features rendered with a style theme at continuous zoom
//   - Fallback: a flat world map that always covers and always activates
//
// # Basic Usage
//
//	src, err := mapsource.NewRaster(def, opener, mapsource.RasterOptions{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := src.Activate(ctx, 10, false); err != nil {
//	    var ae *mapsource.ActivationError
//	    if errors.As(err, &ae) {
//	        log.Printf("map %s unusable: %v", ae.MapID, ae.Err)
//	    }
//	}
//	defer src.Deactivate()
//
//	covered, err := src.Draw(vp, mapsource.DrawOptions{}, canvas)
//
// # Pixel Spaces
//
// Every source has its own pixel space that depends on its current zoom.
// Viewports carry a geographic center, and each source derives its own pixel
// center from it when drawing, so primary and covering maps line up on the
// canvas even though their pixel spaces differ.
//
// # Zoom
//
// Zoom is a factor relative to the native scale: zoom 2 shows twice the
// detail, so Scale() == NativeScale() / Zoom(). Raster and online sources
// snap zoom to powers of two; vector and fallback sources zoom continuously.
package mapsource
