// Package render turns the current map state into pixels.
//
// A Pipeline is double buffered. The producer (Composite) draws the maps and
// overlay layers into a private work buffer and then publishes it together
// with the exact viewport it was drawn for. The consumer (Paint) copies the
// published buffer to the screen, shifted by the drift between that viewport
// and the current one, so the picture follows pans between composites.
//
// A Presenter runs the consumer at a bounded rate and draws the live
// elements (position cursor, heading indicator, scale bar, crosshair) on top
// of every frame. Those never enter the shared buffer.
package render
